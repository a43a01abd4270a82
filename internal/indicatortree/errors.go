package indicatortree

import "errors"

var (
	// ErrCycle is returned when a move would make a node its own ancestor.
	ErrCycle = errors.New("indicator move would create a cycle")
	// ErrNodeNotFound is returned by operations that must act on an existing node.
	ErrNodeNotFound = errors.New("indicator not found")
	// ErrParentNotFound is returned when a parent temp id does not resolve.
	ErrParentNotFound = errors.New("parent indicator not found")
	// ErrInvalidOrder is returned when a reorder list is not a permutation of the sibling group.
	ErrInvalidOrder = errors.New("invalid sibling order")
)

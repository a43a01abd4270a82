package indicatortree

import (
	"errors"
	"fmt"
	"sort"
)

// Validate checks the structural invariants of the tree and returns every
// violation joined into one error, or nil.
func (t *Tree) Validate() error {
	var errs []error

	ids := make([]string, 0, len(t.nodes))
	for id := range t.nodes {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	groups := make(map[string][]*Node)
	for _, id := range ids {
		n := t.nodes[id]
		if n.TempID != id {
			errs = append(errs, fmt.Errorf("node %q stored under key %q", n.TempID, id))
		}
		key := ""
		if n.ParentTempID != nil {
			key = *n.ParentTempID
			if _, ok := t.nodes[key]; !ok {
				errs = append(errs, fmt.Errorf("node %q: %w: %q", id, ErrParentNotFound, key))
				continue
			}
			if t.isAncestor(id, id) {
				errs = append(errs, fmt.Errorf("node %q: %w", id, ErrCycle))
				continue
			}
		}
		groups[key] = append(groups[key], n)
	}

	for key, members := range groups {
		sort.Slice(members, func(i, j int) bool { return lessByOrder(members[i], members[j]) })
		for i, n := range members {
			if n.Order != i+1 {
				errs = append(errs, fmt.Errorf("sibling group %q: node %q has order %d, want %d", key, n.TempID, n.Order, i+1))
			}
		}
	}

	roots := groups[""]
	if len(roots) != len(t.rootIDs) {
		errs = append(errs, fmt.Errorf("root list has %d entries for %d roots", len(t.rootIDs), len(roots)))
	} else {
		for i, n := range roots {
			if t.rootIDs[i] != n.TempID {
				errs = append(errs, fmt.Errorf("root list position %d is %q, want %q", i, t.rootIDs[i], n.TempID))
			}
		}
	}

	codes := DeriveCodes(t.nodes, t.rootIDs, t.governanceAreaID)
	for _, id := range ids {
		if want := codes[id]; t.nodes[id].Code != want {
			errs = append(errs, fmt.Errorf("node %q has code %q, want %q", id, t.nodes[id].Code, want))
		}
	}

	return errors.Join(errs...)
}

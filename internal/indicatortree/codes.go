package indicatortree

import (
	"sort"
	"strconv"
)

// DeriveCodes computes the hierarchical code of every reachable node.
//
// The root at position k gets "{governanceAreaID}.{k}" and a child at position
// k under a parent coded P gets "{P}.{k}". Positions are 1-based and follow
// rootIDs for roots and ascending order for children. Nodes that cannot be
// reached from a root are absent from the result.
func DeriveCodes(nodes map[string]*Node, rootIDs []string, governanceAreaID int) map[string]string {
	children := childIndex(nodes)
	codes := make(map[string]string, len(nodes))

	var walk func(ids []string, prefix string)
	walk = func(ids []string, prefix string) {
		for i, id := range ids {
			if _, done := codes[id]; done {
				continue
			}
			if _, ok := nodes[id]; !ok {
				continue
			}
			code := prefix + "." + strconv.Itoa(i+1)
			codes[id] = code
			walk(children[id], code)
		}
	}
	walk(rootIDs, strconv.Itoa(governanceAreaID))
	return codes
}

// RecalculateCodes rewrites every node's code from the current shape.
func (t *Tree) RecalculateCodes() {
	codes := DeriveCodes(t.nodes, t.rootIDs, t.governanceAreaID)
	for id, n := range t.nodes {
		n.Code = codes[id]
	}
}

// childIndex maps parent temp id to its children's temp ids sorted by order.
// Roots are not included.
func childIndex(nodes map[string]*Node) map[string][]string {
	idx := make(map[string][]string)
	for id, n := range nodes {
		if n.ParentTempID == nil {
			continue
		}
		idx[*n.ParentTempID] = append(idx[*n.ParentTempID], id)
	}
	for parent, ids := range idx {
		sort.Slice(ids, func(i, j int) bool {
			return lessByOrder(nodes[ids[i]], nodes[ids[j]])
		})
		idx[parent] = ids
	}
	return idx
}

// siblingIDs lists the members of the sibling group under parentID (nil for
// roots), sorted by order.
func (t *Tree) siblingIDs(parentID *string) []string {
	var ids []string
	for id, n := range t.nodes {
		if sameParent(n.ParentTempID, parentID) {
			ids = append(ids, id)
		}
	}
	sort.Slice(ids, func(i, j int) bool {
		return lessByOrder(t.nodes[ids[i]], t.nodes[ids[j]])
	})
	return ids
}

// assignOrder numbers ids 1..N in slice order and keeps the root list in step.
func (t *Tree) assignOrder(parentID *string, ids []string) {
	for i, id := range ids {
		t.nodes[id].Order = i + 1
	}
	if parentID == nil {
		t.rootIDs = append([]string(nil), ids...)
	}
}

// renumber closes gaps in the sibling group under parentID.
func (t *Tree) renumber(parentID *string) {
	t.assignOrder(parentID, t.siblingIDs(parentID))
}

package indicatortree

import "fmt"

// AddNode inserts a new node at the end of the sibling group under parentID
// (nil for a root) and returns its temp id. Fields not set in the patch take
// their defaults: name "New Indicator", active, not auto-calculable, not
// profiling-only.
//
// An unknown parentID is rejected with ErrParentNotFound and the tree is left
// unchanged.
func (t *Tree) AddNode(fields NodePatch, parentID *string) (string, error) {
	if parentID != nil {
		if _, ok := t.nodes[*parentID]; !ok {
			return "", fmt.Errorf("add indicator under %q: %w", *parentID, ErrParentNotFound)
		}
	}

	n := &Node{
		TempID:       t.newID(),
		ParentTempID: copyString(parentID),
		Name:         DefaultNodeName,
		IsActive:     true,
	}
	fields.applyTo(n)
	n.Order = len(t.siblingIDs(parentID)) + 1

	t.nodes[n.TempID] = n
	if parentID == nil {
		t.rootIDs = append(t.rootIDs, n.TempID)
	}
	t.RecalculateCodes()
	t.dirty = true
	return n.TempID, nil
}

// UpdateNode applies patch to the node with temp id id. Unknown ids are
// ignored; the return value reports whether the node existed.
func (t *Tree) UpdateNode(id string, patch NodePatch) bool {
	n, ok := t.nodes[id]
	if ok {
		patch.applyTo(n)
	}
	t.RecalculateCodes()
	if ok {
		t.dirty = true
	}
	return ok
}

// DeleteNode removes the node and all of its descendants, then closes the gap
// in the surviving sibling group. Selection and editing references into the
// removed subtree are cleared. Unknown ids are ignored; the return value is
// the number of nodes removed.
func (t *Tree) DeleteNode(id string) int {
	n, ok := t.nodes[id]
	if !ok {
		return 0
	}
	parentID := copyString(n.ParentTempID)

	removed := t.subtree(id)
	for rid := range removed {
		delete(t.nodes, rid)
	}
	if parentID == nil {
		kept := t.rootIDs[:0]
		for _, rid := range t.rootIDs {
			if !removed[rid] {
				kept = append(kept, rid)
			}
		}
		t.rootIDs = kept
	}
	if removed[t.selectedID] {
		t.selectedID = ""
	}
	if removed[t.editingID] {
		t.editingID = ""
	}

	t.renumber(parentID)
	t.RecalculateCodes()
	t.dirty = true
	return len(removed)
}

// DuplicateNode inserts a copy of the node directly after it in the same
// sibling group and returns the copy's temp id, or "" when id is unknown. The
// copy never carries a server id and its name gets a " (Copy)" suffix. When
// includeChildren is set the whole subtree is cloned with fresh temp ids and
// its relative order preserved.
func (t *Tree) DuplicateNode(id string, includeChildren bool) string {
	src, ok := t.nodes[id]
	if !ok {
		return ""
	}
	children := childIndex(t.nodes)

	for _, sid := range t.siblingIDs(src.ParentTempID) {
		if s := t.nodes[sid]; s.Order > src.Order {
			s.Order++
		}
	}

	dup := src.clone()
	dup.TempID = t.newID()
	dup.ID = nil
	dup.Name = src.Name + copySuffix
	dup.Order = src.Order + 1
	t.nodes[dup.TempID] = dup

	if includeChildren {
		t.cloneChildren(children, src.TempID, dup.TempID)
	}

	t.renumber(dup.ParentTempID)
	t.RecalculateCodes()
	t.dirty = true
	return dup.TempID
}

func (t *Tree) cloneChildren(children map[string][]string, fromParent, toParent string) {
	for _, cid := range children[fromParent] {
		c := t.nodes[cid].clone()
		c.TempID = t.newID()
		c.ID = nil
		parent := toParent
		c.ParentTempID = &parent
		t.nodes[c.TempID] = c
		t.cloneChildren(children, cid, c.TempID)
	}
}

// MoveNode reparents the node (and with it its subtree) under newParentID, nil
// meaning root. With index nil the node is appended to the new sibling group;
// otherwise it is inserted at that 0-based position, clamped to the group.
//
// Moving a node under itself or one of its descendants fails with ErrCycle and
// leaves the tree untouched.
func (t *Tree) MoveNode(id string, newParentID *string, index *int) error {
	n, ok := t.nodes[id]
	if !ok {
		return fmt.Errorf("move indicator %q: %w", id, ErrNodeNotFound)
	}
	if newParentID != nil {
		if *newParentID == id {
			return fmt.Errorf("move indicator %q under itself: %w", id, ErrCycle)
		}
		if _, ok := t.nodes[*newParentID]; !ok {
			return fmt.Errorf("move indicator %q under %q: %w", id, *newParentID, ErrParentNotFound)
		}
		if t.isAncestor(id, *newParentID) {
			return fmt.Errorf("move indicator %q under descendant %q: %w", id, *newParentID, ErrCycle)
		}
	}

	oldParentID := copyString(n.ParentTempID)
	n.ParentTempID = copyString(newParentID)
	if oldParentID == nil && newParentID != nil {
		t.dropRoot(id)
	}
	if !sameParent(oldParentID, newParentID) {
		t.renumber(oldParentID)
	}

	siblings := make([]string, 0)
	for _, sid := range t.siblingIDs(newParentID) {
		if sid != id {
			siblings = append(siblings, sid)
		}
	}
	pos := len(siblings)
	if index != nil && *index < pos {
		pos = *index
		if pos < 0 {
			pos = 0
		}
	}
	siblings = append(siblings, "")
	copy(siblings[pos+1:], siblings[pos:])
	siblings[pos] = id
	t.assignOrder(newParentID, siblings)

	t.RecalculateCodes()
	t.dirty = true
	return nil
}

// ReorderNodes renumbers the sibling group under parentID (nil for roots) to
// follow orderedIDs. The list must name every member of the group exactly
// once; anything else fails with ErrInvalidOrder and changes nothing.
func (t *Tree) ReorderNodes(parentID *string, orderedIDs []string) error {
	if parentID != nil {
		if _, ok := t.nodes[*parentID]; !ok {
			return fmt.Errorf("reorder under %q: %w", *parentID, ErrParentNotFound)
		}
	}
	current := t.siblingIDs(parentID)
	if len(current) != len(orderedIDs) {
		return fmt.Errorf("reorder: got %d ids for %d siblings: %w", len(orderedIDs), len(current), ErrInvalidOrder)
	}
	members := make(map[string]bool, len(current))
	for _, id := range current {
		members[id] = true
	}
	for _, id := range orderedIDs {
		if !members[id] {
			return fmt.Errorf("reorder: %q is not a sibling or is repeated: %w", id, ErrInvalidOrder)
		}
		delete(members, id)
	}

	t.assignOrder(parentID, orderedIDs)
	t.RecalculateCodes()
	t.dirty = true
	return nil
}

// isAncestor reports whether ancestorID appears on the parent chain of id.
func (t *Tree) isAncestor(ancestorID, id string) bool {
	cur, ok := t.nodes[id]
	for steps := 0; ok && steps <= len(t.nodes); steps++ {
		if cur.ParentTempID == nil {
			return false
		}
		if *cur.ParentTempID == ancestorID {
			return true
		}
		cur, ok = t.nodes[*cur.ParentTempID]
	}
	return false
}

// subtree returns id and every transitive descendant.
func (t *Tree) subtree(id string) map[string]bool {
	children := childIndex(t.nodes)
	out := map[string]bool{id: true}
	queue := []string{id}
	for len(queue) > 0 {
		cur := queue[0]
		queue = queue[1:]
		for _, cid := range children[cur] {
			if out[cid] {
				continue
			}
			out[cid] = true
			queue = append(queue, cid)
		}
	}
	return out
}

func (t *Tree) dropRoot(id string) {
	kept := t.rootIDs[:0]
	for _, rid := range t.rootIDs {
		if rid != id {
			kept = append(kept, rid)
		}
	}
	t.rootIDs = kept
}

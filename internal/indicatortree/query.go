package indicatortree

import "gorm.io/datatypes"

// GetNodeByID returns a copy of the node, or nil.
func (t *Tree) GetNodeByID(id string) *Node {
	return t.nodes[id].clone()
}

// GetChildrenOf returns copies of the children of parentID (nil for roots),
// sorted by order.
func (t *Tree) GetChildrenOf(parentID *string) []*Node {
	ids := t.siblingIDs(parentID)
	out := make([]*Node, 0, len(ids))
	for _, id := range ids {
		out = append(out, t.nodes[id].clone())
	}
	return out
}

// GetParentOf returns a copy of the node's parent, or nil for roots and
// unknown ids.
func (t *Tree) GetParentOf(id string) *Node {
	n, ok := t.nodes[id]
	if !ok || n.ParentTempID == nil {
		return nil
	}
	return t.nodes[*n.ParentTempID].clone()
}

// GetSiblingsOf returns the node's sibling group, itself included, sorted by
// order. Unknown ids yield nil.
func (t *Tree) GetSiblingsOf(id string) []*Node {
	n, ok := t.nodes[id]
	if !ok {
		return nil
	}
	return t.GetChildrenOf(n.ParentTempID)
}

// GetAllNodes returns copies of every node in no particular order.
func (t *Tree) GetAllNodes() []*Node {
	out := make([]*Node, 0, len(t.nodes))
	for _, n := range t.nodes {
		out = append(out, n.clone())
	}
	return out
}

// TreeViewNode is a node with its children nested for rendering.
type TreeViewNode struct {
	Node
	Children []*TreeViewNode `json:"children"`
}

// GetTreeView nests every node under its parent, roots first in root order.
func (t *Tree) GetTreeView() []*TreeViewNode {
	children := childIndex(t.nodes)
	var build func(ids []string) []*TreeViewNode
	build = func(ids []string) []*TreeViewNode {
		out := make([]*TreeViewNode, 0, len(ids))
		for _, id := range ids {
			n, ok := t.nodes[id]
			if !ok {
				continue
			}
			out = append(out, &TreeViewNode{
				Node:     *n.clone(),
				Children: build(children[id]),
			})
		}
		return out
	}
	return build(t.rootIDs)
}

// SubmissionNode is the structural intent of one indicator as sent for
// commit. Codes and server ids are assigned on the server side.
type SubmissionNode struct {
	TempID       string  `json:"temp_id"`
	ParentTempID *string `json:"parent_temp_id"`
	Order        int     `json:"order"`

	Name        string `json:"name"`
	Description string `json:"description,omitempty"`

	IsActive         bool `json:"is_active"`
	IsAutoCalculable bool `json:"is_auto_calculable"`
	IsProfilingOnly  bool `json:"is_profiling_only"`

	FormSchema        datatypes.JSON `json:"form_schema,omitempty"`
	CalculationSchema datatypes.JSON `json:"calculation_schema,omitempty"`
	RemarkSchema      datatypes.JSON `json:"remark_schema,omitempty"`
	MOVChecklist      datatypes.JSON `json:"mov_checklist,omitempty"`
}

// ExportForSubmission flattens the tree into submission payloads. Parents
// always precede their children.
func (t *Tree) ExportForSubmission() []SubmissionNode {
	children := childIndex(t.nodes)
	out := make([]SubmissionNode, 0, len(t.nodes))
	var walk func(ids []string)
	walk = func(ids []string) {
		for _, id := range ids {
			n, ok := t.nodes[id]
			if !ok {
				continue
			}
			out = append(out, SubmissionNode{
				TempID:            n.TempID,
				ParentTempID:      copyString(n.ParentTempID),
				Order:             n.Order,
				Name:              n.Name,
				Description:       n.Description,
				IsActive:          n.IsActive,
				IsAutoCalculable:  n.IsAutoCalculable,
				IsProfilingOnly:   n.IsProfilingOnly,
				FormSchema:        cloneJSON(n.FormSchema),
				CalculationSchema: cloneJSON(n.CalculationSchema),
				RemarkSchema:      cloneJSON(n.RemarkSchema),
				MOVChecklist:      cloneJSON(n.MOVChecklist),
			})
			walk(children[id])
		}
	}
	walk(t.rootIDs)
	return out
}

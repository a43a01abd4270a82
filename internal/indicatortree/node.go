package indicatortree

import (
	"bytes"
	"encoding/json"
	"fmt"

	"gorm.io/datatypes"
)

const (
	DefaultNodeName = "New Indicator"
	copySuffix      = " (Copy)"
)

// Node is one indicator (assessment question or criterion) in the hierarchy.
//
// TempID is the local identity and the store key. ID is the server identity and
// stays nil until the indicator has been committed. Code is derived from the
// node's position and is rewritten after every structural change.
type Node struct {
	ID           *int64  `json:"id,omitempty"`
	TempID       string  `json:"temp_id"`
	ParentTempID *string `json:"parent_temp_id"`
	Order        int     `json:"order"`
	Code         string  `json:"code"`

	Name        string `json:"name"`
	Description string `json:"description,omitempty"`

	IsActive         bool `json:"is_active"`
	IsAutoCalculable bool `json:"is_auto_calculable"`
	IsProfilingOnly  bool `json:"is_profiling_only"`

	// Schema payloads owned by the schema editors. Never interpreted here.
	FormSchema        datatypes.JSON `json:"form_schema,omitempty"`
	CalculationSchema datatypes.JSON `json:"calculation_schema,omitempty"`
	RemarkSchema      datatypes.JSON `json:"remark_schema,omitempty"`
	MOVChecklist      datatypes.JSON `json:"mov_checklist,omitempty"`
}

// IsRoot reports whether n has no parent.
func (n *Node) IsRoot() bool { return n.ParentTempID == nil }

func (n *Node) clone() *Node {
	if n == nil {
		return nil
	}
	out := *n
	out.ID = copyInt64(n.ID)
	out.ParentTempID = copyString(n.ParentTempID)
	out.FormSchema = cloneJSON(n.FormSchema)
	out.CalculationSchema = cloneJSON(n.CalculationSchema)
	out.RemarkSchema = cloneJSON(n.RemarkSchema)
	out.MOVChecklist = cloneJSON(n.MOVChecklist)
	return &out
}

// NodePatch carries the editable fields of a node. Nil fields are left alone.
// Identity and structural fields (temp id, parent, order, code) are not
// patchable; use MoveNode and ReorderNodes for those.
type NodePatch struct {
	Name             *string `json:"name,omitempty"`
	Description      *string `json:"description,omitempty"`
	IsActive         *bool   `json:"is_active,omitempty"`
	IsAutoCalculable *bool   `json:"is_auto_calculable,omitempty"`
	IsProfilingOnly  *bool   `json:"is_profiling_only,omitempty"`

	FormSchema        datatypes.JSON `json:"form_schema,omitempty"`
	CalculationSchema datatypes.JSON `json:"calculation_schema,omitempty"`
	RemarkSchema      datatypes.JSON `json:"remark_schema,omitempty"`
	MOVChecklist      datatypes.JSON `json:"mov_checklist,omitempty"`
}

func (p NodePatch) applyTo(n *Node) {
	if p.Name != nil {
		n.Name = *p.Name
	}
	if p.Description != nil {
		n.Description = *p.Description
	}
	if p.IsActive != nil {
		n.IsActive = *p.IsActive
	}
	if p.IsAutoCalculable != nil {
		n.IsAutoCalculable = *p.IsAutoCalculable
	}
	if p.IsProfilingOnly != nil {
		n.IsProfilingOnly = *p.IsProfilingOnly
	}
	if p.FormSchema != nil {
		n.FormSchema = cloneJSON(p.FormSchema)
	}
	if p.CalculationSchema != nil {
		n.CalculationSchema = cloneJSON(p.CalculationSchema)
	}
	if p.RemarkSchema != nil {
		n.RemarkSchema = cloneJSON(p.RemarkSchema)
	}
	if p.MOVChecklist != nil {
		n.MOVChecklist = cloneJSON(p.MOVChecklist)
	}
}

// NodeSet is the keyed node store as it travels in a snapshot. It decodes from
// either a JSON object keyed by temp id or a JSON array of nodes.
type NodeSet map[string]*Node

func (s *NodeSet) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) == 0 || bytes.Equal(data, []byte("null")) {
		*s = NodeSet{}
		return nil
	}
	if data[0] == '[' {
		var list []*Node
		if err := json.Unmarshal(data, &list); err != nil {
			return fmt.Errorf("decode node list: %w", err)
		}
		out := make(NodeSet, len(list))
		for _, n := range list {
			if n == nil || n.TempID == "" {
				continue
			}
			out[n.TempID] = n
		}
		*s = out
		return nil
	}
	var keyed map[string]*Node
	if err := json.Unmarshal(data, &keyed); err != nil {
		return fmt.Errorf("decode node map: %w", err)
	}
	out := make(NodeSet, len(keyed))
	for key, n := range keyed {
		if n == nil {
			continue
		}
		if n.TempID == "" {
			n.TempID = key
		}
		out[n.TempID] = n
	}
	*s = out
	return nil
}

func copyString(p *string) *string {
	if p == nil {
		return nil
	}
	v := *p
	return &v
}

func copyInt64(p *int64) *int64 {
	if p == nil {
		return nil
	}
	v := *p
	return &v
}

func cloneJSON(raw datatypes.JSON) datatypes.JSON {
	if raw == nil {
		return nil
	}
	out := make(datatypes.JSON, len(raw))
	copy(out, raw)
	return out
}

func sameParent(a, b *string) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	return *a == *b
}

// Package template builds indicator trees from YAML hierarchy templates.
package template

import (
	"embed"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"gopkg.in/yaml.v3"
	"gorm.io/datatypes"

	"github.com/sinag-platform/vantage-backend/internal/indicatortree"
)

//go:embed builtin/*.yaml
var builtinFS embed.FS

var ErrEmptyTemplate = errors.New("template has no indicators")

// Template is a nested indicator hierarchy as authored in YAML.
type Template struct {
	GovernanceAreaID int         `yaml:"governance_area_id"`
	CreationMode     string      `yaml:"creation_mode"`
	Indicators       []Indicator `yaml:"indicators"`
}

// Indicator is one templated node. Code is accepted for readability of the
// source file but is always re-derived from position.
type Indicator struct {
	Name             string `yaml:"name"`
	Code             string `yaml:"code"`
	Description      string `yaml:"description"`
	IsActive         *bool  `yaml:"is_active"`
	IsAutoCalculable bool   `yaml:"is_auto_calculable"`
	IsProfilingOnly  bool   `yaml:"is_profiling_only"`

	FormSchema        any `yaml:"form_schema"`
	CalculationSchema any `yaml:"calculation_schema"`
	RemarkSchema      any `yaml:"remark_schema"`
	MOVChecklist      any `yaml:"mov_checklist"`

	Children []Indicator `yaml:"children"`
}

// Parse decodes a YAML template.
func Parse(data []byte) (*Template, error) {
	var tpl Template
	if err := yaml.Unmarshal(data, &tpl); err != nil {
		return nil, fmt.Errorf("parse indicator template: %w", err)
	}
	if len(tpl.Indicators) == 0 {
		return nil, ErrEmptyTemplate
	}
	return &tpl, nil
}

// Builtin loads one of the templates shipped with the binary by base name.
func Builtin(name string) (*Template, error) {
	name = strings.TrimSuffix(strings.TrimSpace(name), ".yaml")
	data, err := builtinFS.ReadFile("builtin/" + name + ".yaml")
	if err != nil {
		return nil, fmt.Errorf("builtin template %q: %w", name, err)
	}
	return Parse(data)
}

// BuiltinNames lists the shipped templates.
func BuiltinNames() []string {
	entries, err := builtinFS.ReadDir("builtin")
	if err != nil {
		return nil
	}
	out := make([]string, 0, len(entries))
	for _, e := range entries {
		out = append(out, strings.TrimSuffix(e.Name(), ".yaml"))
	}
	return out
}

// Snapshot flattens the template into a tree snapshot. Temp ids come from
// newID (uuid when nil) and sibling orders follow document order.
func (tpl *Template) Snapshot(newID func() string) (indicatortree.Snapshot, error) {
	if newID == nil {
		newID = uuid.NewString
	}
	snap := indicatortree.Snapshot{
		Nodes:            indicatortree.NodeSet{},
		GovernanceAreaID: tpl.GovernanceAreaID,
		CreationMode:     tpl.CreationMode,
	}

	var walk func(items []Indicator, parent *string, path string) error
	walk = func(items []Indicator, parent *string, path string) error {
		for i, item := range items {
			where := fmt.Sprintf("%s[%d]", path, i)
			n, err := item.node(newID(), parent, i+1)
			if err != nil {
				return fmt.Errorf("%s: %w", where, err)
			}
			snap.Nodes[n.TempID] = n
			if parent == nil {
				snap.RootIDs = append(snap.RootIDs, n.TempID)
			}
			id := n.TempID
			if err := walk(item.Children, &id, where+".children"); err != nil {
				return err
			}
		}
		return nil
	}
	if err := walk(tpl.Indicators, nil, "indicators"); err != nil {
		return indicatortree.Snapshot{}, err
	}
	return snap, nil
}

// Build loads the template into a fresh tree with codes derived.
func (tpl *Template) Build(opts ...indicatortree.Option) (*indicatortree.Tree, error) {
	snap, err := tpl.Snapshot(nil)
	if err != nil {
		return nil, err
	}
	tree := indicatortree.FromSnapshot(snap, opts...)
	if err := tree.Validate(); err != nil {
		return nil, fmt.Errorf("template produced an invalid tree: %w", err)
	}
	return tree, nil
}

func (item Indicator) node(tempID string, parent *string, order int) (*indicatortree.Node, error) {
	name := strings.TrimSpace(item.Name)
	if name == "" {
		name = indicatortree.DefaultNodeName
	}
	active := true
	if item.IsActive != nil {
		active = *item.IsActive
	}
	n := &indicatortree.Node{
		TempID:           tempID,
		Order:            order,
		Code:             item.Code,
		Name:             name,
		Description:      strings.TrimSpace(item.Description),
		IsActive:         active,
		IsAutoCalculable: item.IsAutoCalculable,
		IsProfilingOnly:  item.IsProfilingOnly,
	}
	if parent != nil {
		p := *parent
		n.ParentTempID = &p
	}

	var err error
	if n.FormSchema, err = toJSON(item.FormSchema); err != nil {
		return nil, fmt.Errorf("form_schema: %w", err)
	}
	if n.CalculationSchema, err = toJSON(item.CalculationSchema); err != nil {
		return nil, fmt.Errorf("calculation_schema: %w", err)
	}
	if n.RemarkSchema, err = toJSON(item.RemarkSchema); err != nil {
		return nil, fmt.Errorf("remark_schema: %w", err)
	}
	if n.MOVChecklist, err = toJSON(item.MOVChecklist); err != nil {
		return nil, fmt.Errorf("mov_checklist: %w", err)
	}
	return n, nil
}

func toJSON(v any) (datatypes.JSON, error) {
	if v == nil {
		return nil, nil
	}
	raw, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	return datatypes.JSON(raw), nil
}

package template

import (
	"encoding/json"
	"errors"
	"testing"
)

func TestBuiltinFinancialAdministration(t *testing.T) {
	tpl, err := Builtin("financial_administration")
	if err != nil {
		t.Fatalf("Builtin: %v", err)
	}
	tree, err := tpl.Build()
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	if tree.GovernanceAreaID() != 1 || tree.CreationMode() != "template" {
		t.Fatalf("metadata: area=%d mode=%q", tree.GovernanceAreaID(), tree.CreationMode())
	}
	if tree.Len() != 6 {
		t.Fatalf("node count: got=%d want=6", tree.Len())
	}

	view := tree.GetTreeView()
	if len(view) != 3 {
		t.Fatalf("roots: got=%d want=3", len(view))
	}
	if view[0].Code != "1.1" || view[0].Children[1].Code != "1.1.2" || view[2].Code != "1.3" {
		t.Fatalf("codes: %q %q %q", view[0].Code, view[0].Children[1].Code, view[2].Code)
	}
	if view[0].Children[1].IsActive {
		t.Fatalf("is_active: false not honoured")
	}
	if !view[1].Children[0].IsAutoCalculable || !view[2].IsProfilingOnly {
		t.Fatalf("flags not carried")
	}

	var checklist map[string]any
	if err := json.Unmarshal(view[0].Children[0].MOVChecklist, &checklist); err != nil {
		t.Fatalf("mov checklist json: %v", err)
	}
	if items, _ := checklist["items"].([]any); len(items) != 2 {
		t.Fatalf("mov checklist items: %v", checklist)
	}
	if tree.HasUnsavedChanges() {
		t.Fatalf("freshly built tree should be clean")
	}
}

func TestTemplateCodesAreRederived(t *testing.T) {
	tpl, err := Parse([]byte(`
governance_area_id: 4
indicators:
  - name: First
    code: "9.9"
  - name: Second
    code: "9.1"
    children:
      - name: Child
        code: "bogus"
`))
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	tree, err := tpl.Build()
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	view := tree.GetTreeView()
	if view[0].Code != "4.1" || view[1].Code != "4.2" || view[1].Children[0].Code != "4.2.1" {
		t.Fatalf("codes not re-derived: %q %q %q", view[0].Code, view[1].Code, view[1].Children[0].Code)
	}
}

func TestParseRejectsEmpty(t *testing.T) {
	if _, err := Parse([]byte("governance_area_id: 1\n")); !errors.Is(err, ErrEmptyTemplate) {
		t.Fatalf("want ErrEmptyTemplate, got %v", err)
	}
	if _, err := Parse([]byte("indicators: [")); err == nil {
		t.Fatalf("malformed yaml accepted")
	}
}

func TestBuiltinNames(t *testing.T) {
	names := BuiltinNames()
	found := false
	for _, n := range names {
		if n == "financial_administration" {
			found = true
		}
	}
	if !found {
		t.Fatalf("builtin names: %v", names)
	}
}

package indicatortree

import (
	"encoding/json"
	"strconv"
	"testing"
)

func seqIDs() Option {
	next := 0
	return WithIDGenerator(func() string {
		next++
		return "n" + strconv.Itoa(next)
	})
}

func newTestTree(t *testing.T, governanceAreaID int) *Tree {
	t.Helper()
	return New(governanceAreaID, seqIDs())
}

func mustAdd(t *testing.T, tr *Tree, name string, parent *string) string {
	t.Helper()
	id, err := tr.AddNode(NodePatch{Name: &name}, parent)
	if err != nil {
		t.Fatalf("AddNode(%q): %v", name, err)
	}
	return id
}

func mustValid(t *testing.T, tr *Tree) {
	t.Helper()
	if err := tr.Validate(); err != nil {
		t.Fatalf("invariants violated: %v", err)
	}
}

func codeOf(t *testing.T, tr *Tree, id string) string {
	t.Helper()
	n := tr.GetNodeByID(id)
	if n == nil {
		t.Fatalf("node %q missing", id)
	}
	return n.Code
}

func ptr(s string) *string { return &s }

func TestNewTreeIsEmptyAndClean(t *testing.T) {
	tr := newTestTree(t, 3)
	if tr.Len() != 0 || len(tr.RootIDs()) != 0 {
		t.Fatalf("new tree not empty: len=%d roots=%v", tr.Len(), tr.RootIDs())
	}
	if tr.HasUnsavedChanges() {
		t.Fatalf("new tree should be clean")
	}
	if tr.GovernanceAreaID() != 3 {
		t.Fatalf("governance area: got=%d want=3", tr.GovernanceAreaID())
	}
	mustValid(t, tr)
}

func TestDirtyTracking(t *testing.T) {
	tr := newTestTree(t, 1)
	mustAdd(t, tr, "A", nil)
	if !tr.HasUnsavedChanges() {
		t.Fatalf("add should mark dirty")
	}
	tr.MarkAsSaved()
	if tr.HasUnsavedChanges() {
		t.Fatalf("MarkAsSaved should clear dirty")
	}

	tr.GetAllNodes()
	tr.GetTreeView()
	tr.ExportForSubmission()
	tr.GetChildrenOf(nil)
	if tr.HasUnsavedChanges() {
		t.Fatalf("projections must not mark dirty")
	}

	tr.SetDraftMetadata("draft-1", 4)
	if tr.DraftID() != "draft-1" || tr.Version() != 4 {
		t.Fatalf("draft metadata: got=%q/%d", tr.DraftID(), tr.Version())
	}
}

func TestResetDiscardsEverything(t *testing.T) {
	tr := newTestTree(t, 1)
	a := mustAdd(t, tr, "A", nil)
	tr.SelectNode(a)
	tr.SetDraftMetadata("d", 2)
	tr.Reset()
	if tr.Len() != 0 || tr.SelectedID() != "" || tr.DraftID() != "" || tr.HasUnsavedChanges() {
		t.Fatalf("reset left state behind")
	}
}

func TestLoadAcceptsObjectAndArrayNodeShapes(t *testing.T) {
	cases := []struct {
		name string
		raw  string
	}{
		{
			name: "object",
			raw: `{"governance_area_id":2,"draft_id":"d1","version":3,
				"nodes":{"a":{"name":"A","order":1,"parent_temp_id":null},
				         "b":{"temp_id":"b","name":"B","order":1,"parent_temp_id":"a","code":"stale"}}}`,
		},
		{
			name: "array",
			raw: `{"governance_area_id":2,"draft_id":"d1","version":3,"root_ids":["a"],
				"nodes":[{"temp_id":"a","name":"A","order":1,"parent_temp_id":null},
				         {"temp_id":"b","name":"B","order":1,"parent_temp_id":"a","code":"stale"}]}`,
		},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			var snap Snapshot
			if err := json.Unmarshal([]byte(tc.raw), &snap); err != nil {
				t.Fatalf("unmarshal: %v", err)
			}
			tr := FromSnapshot(snap, seqIDs())
			mustValid(t, tr)
			if tr.HasUnsavedChanges() {
				t.Fatalf("loaded tree should be clean")
			}
			if got := codeOf(t, tr, "a"); got != "2.1" {
				t.Fatalf("code a: got=%q want=2.1", got)
			}
			if got := codeOf(t, tr, "b"); got != "2.1.1" {
				t.Fatalf("code b: got=%q want=2.1.1", got)
			}
			if tr.DraftID() != "d1" || tr.Version() != 3 {
				t.Fatalf("metadata: got=%q/%d", tr.DraftID(), tr.Version())
			}
		})
	}
}

func TestSnapshotRoundTripIsIndependent(t *testing.T) {
	tr := newTestTree(t, 1)
	a := mustAdd(t, tr, "A", nil)
	mustAdd(t, tr, "A1", &a)

	snap := tr.Snapshot()
	snap.Nodes[a].Name = "mutated"
	if tr.GetNodeByID(a).Name != "A" {
		t.Fatalf("snapshot shares node memory with tree")
	}

	raw, err := json.Marshal(tr.Snapshot())
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	var back Snapshot
	if err := json.Unmarshal(raw, &back); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	restored := FromSnapshot(back)
	mustValid(t, restored)
	if restored.Len() != 2 {
		t.Fatalf("restored len: got=%d want=2", restored.Len())
	}
}

func TestSelectionAndEditing(t *testing.T) {
	tr := newTestTree(t, 1)
	a := mustAdd(t, tr, "A", nil)
	tr.SelectNode(a)
	tr.SetEditingNode(a)
	if tr.SelectedID() != a || tr.EditingID() != a {
		t.Fatalf("selection not recorded")
	}
	tr.SelectNode("missing")
	if tr.SelectedID() != "" {
		t.Fatalf("unknown selection should clear")
	}
}

func TestAssignServerIDs(t *testing.T) {
	tr := newTestTree(t, 1)
	a := mustAdd(t, tr, "A", nil)
	tr.MarkAsSaved()
	tr.AssignServerIDs(map[string]int64{a: 42, "missing": 7})
	n := tr.GetNodeByID(a)
	if n.ID == nil || *n.ID != 42 {
		t.Fatalf("server id not assigned: %v", n.ID)
	}
	if !tr.HasUnsavedChanges() {
		t.Fatalf("assigning server ids should mark dirty")
	}
}

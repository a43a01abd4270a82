// Package indicatortree holds the in-memory indicator hierarchy that an
// administrator edits before it is committed for a governance area.
//
// A Tree is a flat arena of nodes keyed by temp id plus the ordered list of
// roots. Every structural mutation renumbers the affected sibling groups and
// re-derives every node's hierarchical code, so after any call returns:
//
//   - every non-root parent id resolves to a node in the tree
//   - no node is its own ancestor
//   - sibling orders form a contiguous run starting at 1
//   - codes match DeriveCodes for the current shape
//   - the root list holds exactly the roots, ordered by order
//
// A Tree is not safe for concurrent use. It is owned by a single editing
// session; callers that share one across goroutines must serialize access.
package indicatortree

import (
	"sort"

	"github.com/google/uuid"
)

type Tree struct {
	nodes   map[string]*Node
	rootIDs []string

	governanceAreaID int
	draftID          string
	version          int
	creationMode     string
	currentStep      int

	selectedID string
	editingID  string

	dirty bool
	newID func() string
}

type Option func(*Tree)

// WithIDGenerator overrides how temp ids are minted.
func WithIDGenerator(gen func() string) Option {
	return func(t *Tree) {
		if gen != nil {
			t.newID = gen
		}
	}
}

// New returns an empty tree scoped to governanceAreaID.
func New(governanceAreaID int, opts ...Option) *Tree {
	t := &Tree{newID: uuid.NewString}
	for _, opt := range opts {
		opt(t)
	}
	t.Initialize(governanceAreaID)
	return t
}

// FromSnapshot builds a tree hydrated from a persisted snapshot.
func FromSnapshot(s Snapshot, opts ...Option) *Tree {
	t := New(s.GovernanceAreaID, opts...)
	t.Load(s)
	return t
}

// Initialize discards all state and starts an empty tree for governanceAreaID.
func (t *Tree) Initialize(governanceAreaID int) {
	t.clear()
	t.governanceAreaID = governanceAreaID
}

// Reset discards the tree entirely.
func (t *Tree) Reset() {
	t.clear()
}

func (t *Tree) clear() {
	t.nodes = make(map[string]*Node)
	t.rootIDs = nil
	t.governanceAreaID = 0
	t.draftID = ""
	t.version = 0
	t.creationMode = ""
	t.currentStep = 0
	t.selectedID = ""
	t.editingID = ""
	t.dirty = false
}

// Snapshot is the serializable form of a tree.
type Snapshot struct {
	Nodes            NodeSet  `json:"nodes"`
	RootIDs          []string `json:"root_ids"`
	GovernanceAreaID int      `json:"governance_area_id"`
	DraftID          string   `json:"draft_id,omitempty"`
	Version          int      `json:"version"`
	CreationMode     string   `json:"creation_mode,omitempty"`
	CurrentStep      int      `json:"current_step"`
}

// Load replaces the tree with the contents of s. The snapshot's node shape is
// normalized (map keys become temp ids when a node lacks one, a missing root
// list is rebuilt from parent pointers) and codes are re-derived, but the
// snapshot is not otherwise validated. The loaded tree starts clean.
func (t *Tree) Load(s Snapshot) {
	t.clear()
	t.governanceAreaID = s.GovernanceAreaID
	t.draftID = s.DraftID
	t.version = s.Version
	t.creationMode = s.CreationMode
	t.currentStep = s.CurrentStep

	for key, n := range s.Nodes {
		if n == nil {
			continue
		}
		c := n.clone()
		if c.TempID == "" {
			c.TempID = key
		}
		t.nodes[c.TempID] = c
	}

	roots := make([]string, 0, len(s.RootIDs))
	seen := make(map[string]bool, len(s.RootIDs))
	for _, id := range s.RootIDs {
		n, ok := t.nodes[id]
		if !ok || !n.IsRoot() || seen[id] {
			continue
		}
		seen[id] = true
		roots = append(roots, id)
	}
	for id, n := range t.nodes {
		if n.IsRoot() && !seen[id] {
			roots = append(roots, id)
		}
	}
	sort.SliceStable(roots, func(i, j int) bool {
		return lessByOrder(t.nodes[roots[i]], t.nodes[roots[j]])
	})
	t.rootIDs = roots

	t.RecalculateCodes()
}

// Snapshot returns a deep copy of the tree suitable for persistence.
func (t *Tree) Snapshot() Snapshot {
	nodes := make(NodeSet, len(t.nodes))
	for id, n := range t.nodes {
		nodes[id] = n.clone()
	}
	return Snapshot{
		Nodes:            nodes,
		RootIDs:          append([]string(nil), t.rootIDs...),
		GovernanceAreaID: t.governanceAreaID,
		DraftID:          t.draftID,
		Version:          t.version,
		CreationMode:     t.creationMode,
		CurrentStep:      t.currentStep,
	}
}

func (t *Tree) GovernanceAreaID() int { return t.governanceAreaID }
func (t *Tree) DraftID() string       { return t.draftID }
func (t *Tree) Version() int          { return t.version }
func (t *Tree) CreationMode() string  { return t.creationMode }
func (t *Tree) CurrentStep() int      { return t.currentStep }
func (t *Tree) Len() int              { return len(t.nodes) }

// RootIDs returns the ordered root temp ids.
func (t *Tree) RootIDs() []string { return append([]string(nil), t.rootIDs...) }

// HasUnsavedChanges reports whether the tree changed since it was loaded or
// last marked saved.
func (t *Tree) HasUnsavedChanges() bool { return t.dirty }

// MarkAsSaved clears the unsaved-changes flag.
func (t *Tree) MarkAsSaved() { t.dirty = false }

// SetDraftMetadata records the persistence identity of the draft.
func (t *Tree) SetDraftMetadata(draftID string, version int) {
	t.draftID = draftID
	t.version = version
}

func (t *Tree) SetCreationMode(mode string) { t.creationMode = mode }
func (t *Tree) SetCurrentStep(step int)     { t.currentStep = step }

// SelectedID is the node currently selected in the editor, or "".
func (t *Tree) SelectedID() string { return t.selectedID }

// EditingID is the node currently open for editing, or "".
func (t *Tree) EditingID() string { return t.editingID }

// SelectNode marks id as selected. Unknown ids clear the selection.
func (t *Tree) SelectNode(id string) {
	if _, ok := t.nodes[id]; !ok {
		t.selectedID = ""
		return
	}
	t.selectedID = id
}

// SetEditingNode marks id as being edited. Unknown ids clear the reference.
func (t *Tree) SetEditingNode(id string) {
	if _, ok := t.nodes[id]; !ok {
		t.editingID = ""
		return
	}
	t.editingID = id
}

// AssignServerIDs stamps server identities onto committed nodes.
func (t *Tree) AssignServerIDs(ids map[string]int64) {
	changed := false
	for tempID, id := range ids {
		n, ok := t.nodes[tempID]
		if !ok {
			continue
		}
		v := id
		n.ID = &v
		changed = true
	}
	if changed {
		t.dirty = true
	}
}

func lessByOrder(a, b *Node) bool {
	if a.Order != b.Order {
		return a.Order < b.Order
	}
	return a.TempID < b.TempID
}

package services

import (
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/sinag-platform/vantage-backend/internal/indicatortree"
)

// draftSession is one open draft. mu serializes every engine call on tree.
type draftSession struct {
	mu sync.Mutex

	id    uuid.UUID
	title string
	tree  *indicatortree.Tree

	// metaDirty tracks workflow changes the tree does not flag itself.
	metaDirty bool
	closed    bool
	lastUsed  time.Time
}

func (s *draftSession) dirty() bool {
	return s.tree.HasUnsavedChanges() || s.metaDirty
}

func (s *draftSession) view() *DraftView {
	return &DraftView{
		DraftID:           s.id,
		Title:             s.title,
		GovernanceAreaID:  s.tree.GovernanceAreaID(),
		Version:           s.tree.Version(),
		CreationMode:      s.tree.CreationMode(),
		CurrentStep:       s.tree.CurrentStep(),
		NodeCount:         s.tree.Len(),
		HasUnsavedChanges: s.dirty(),
		SelectedID:        s.tree.SelectedID(),
		EditingID:         s.tree.EditingID(),
		Tree:              s.tree.GetTreeView(),
	}
}

// DraftView is a draft as an editor renders it.
type DraftView struct {
	DraftID           uuid.UUID                     `json:"draft_id"`
	Title             string                        `json:"title"`
	GovernanceAreaID  int                           `json:"governance_area_id"`
	Version           int                           `json:"version"`
	CreationMode      string                        `json:"creation_mode"`
	CurrentStep       int                           `json:"current_step"`
	NodeCount         int                           `json:"node_count"`
	HasUnsavedChanges bool                          `json:"has_unsaved_changes"`
	SelectedID        string                        `json:"selected_id,omitempty"`
	EditingID         string                        `json:"editing_id,omitempty"`
	Tree              []*indicatortree.TreeViewNode `json:"tree"`
}

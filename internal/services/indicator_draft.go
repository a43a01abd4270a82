package services

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/singleflight"
	"gorm.io/datatypes"
	"gorm.io/gorm"

	"github.com/sinag-platform/vantage-backend/internal/data/cache"
	repos "github.com/sinag-platform/vantage-backend/internal/data/repos/indicators"
	types "github.com/sinag-platform/vantage-backend/internal/domain/indicators"
	"github.com/sinag-platform/vantage-backend/internal/indicatortree"
	"github.com/sinag-platform/vantage-backend/internal/indicatortree/template"
	"github.com/sinag-platform/vantage-backend/internal/observability"
	"github.com/sinag-platform/vantage-backend/internal/platform/apierr"
	"github.com/sinag-platform/vantage-backend/internal/platform/ctxutil"
	"github.com/sinag-platform/vantage-backend/internal/platform/dbctx"
	"github.com/sinag-platform/vantage-backend/internal/platform/logger"
	"github.com/sinag-platform/vantage-backend/internal/realtime"
	"github.com/sinag-platform/vantage-backend/internal/realtime/bus"
)

type CreateDraftInput struct {
	GovernanceAreaID int    `json:"governance_area_id"`
	Title            string `json:"title"`
	// Template names a builtin template to seed the draft from.
	Template string `json:"template,omitempty"`
	// SourceDraftID copies the hierarchy of another draft.
	SourceDraftID *uuid.UUID `json:"source_draft_id,omitempty"`
}

type WorkflowInput struct {
	CreationMode *string `json:"creation_mode"`
	CurrentStep  *int    `json:"current_step"`
}

type SelectionInput struct {
	SelectedID *string `json:"selected_id"`
	EditingID  *string `json:"editing_id"`
}

type CommittedIndicator struct {
	TempID string `json:"temp_id"`
	ID     int64  `json:"id"`
	Code   string `json:"code"`
}

type SubmitResult struct {
	DraftID          uuid.UUID            `json:"draft_id"`
	GovernanceAreaID int                  `json:"governance_area_id"`
	Version          int                  `json:"version"`
	SubmittedAt      time.Time            `json:"submitted_at"`
	Indicators       []CommittedIndicator `json:"indicators"`
}

type IndicatorDraftService interface {
	CreateDraft(ctx context.Context, in CreateDraftInput) (*DraftView, error)
	ImportTemplate(ctx context.Context, tpl *template.Template, title string) (*DraftView, error)
	ListDrafts(ctx context.Context, governanceAreaID int) ([]*types.IndicatorDraft, error)
	GetDraft(ctx context.Context, draftID uuid.UUID) (*DraftView, error)
	CloseDraft(ctx context.Context, draftID uuid.UUID, discard bool) error

	AddNode(ctx context.Context, draftID uuid.UUID, parentID *string, fields indicatortree.NodePatch) (*indicatortree.Node, error)
	UpdateNode(ctx context.Context, draftID uuid.UUID, nodeID string, patch indicatortree.NodePatch) (*indicatortree.Node, error)
	DeleteNode(ctx context.Context, draftID uuid.UUID, nodeID string) (int, error)
	DuplicateNode(ctx context.Context, draftID uuid.UUID, nodeID string, includeChildren bool) (*indicatortree.Node, error)
	MoveNode(ctx context.Context, draftID uuid.UUID, nodeID string, newParentID *string, index *int) (*indicatortree.Node, error)
	ReorderNodes(ctx context.Context, draftID uuid.UUID, parentID *string, orderedIDs []string) ([]*indicatortree.Node, error)
	SelectNode(ctx context.Context, draftID uuid.UUID, in SelectionInput) (*DraftView, error)
	SetWorkflow(ctx context.Context, draftID uuid.UUID, in WorkflowInput) (*DraftView, error)

	GetNode(ctx context.Context, draftID uuid.UUID, nodeID string) (*indicatortree.Node, error)
	GetChildren(ctx context.Context, draftID uuid.UUID, nodeID string) ([]*indicatortree.Node, error)
	Export(ctx context.Context, draftID uuid.UUID) ([]indicatortree.SubmissionNode, error)

	SaveDraft(ctx context.Context, draftID uuid.UUID) (*DraftView, error)
	SubmitDraft(ctx context.Context, draftID uuid.UUID) (*SubmitResult, error)

	// SaveDirty saves every open draft with unsaved changes, at most
	// concurrency at a time, and returns how many were written.
	SaveDirty(ctx context.Context, concurrency int) (int, error)
	// EvictIdle drops clean sessions unused for longer than ttl.
	EvictIdle(ttl time.Duration) int
}

type indicatorDraftService struct {
	db            *gorm.DB
	log           *logger.Logger
	draftRepo     repos.DraftRepo
	indicatorRepo repos.IndicatorRepo
	cache         cache.DraftCache
	bus           bus.Bus
	metrics       *observability.Metrics
	treeOpts      []indicatortree.Option
	now           func() time.Time

	mu       sync.RWMutex
	sessions map[uuid.UUID]*draftSession
	loads    singleflight.Group
}

func NewIndicatorDraftService(
	db *gorm.DB,
	baseLog *logger.Logger,
	draftRepo repos.DraftRepo,
	indicatorRepo repos.IndicatorRepo,
	draftCache cache.DraftCache,
	eventBus bus.Bus,
	treeOpts ...indicatortree.Option,
) IndicatorDraftService {
	if draftCache == nil {
		draftCache = cache.NewNopDraftCache()
	}
	if eventBus == nil {
		eventBus = bus.NewLocalBus()
	}
	return &indicatorDraftService{
		db:            db,
		log:           baseLog.With("service", "IndicatorDraftService"),
		draftRepo:     draftRepo,
		indicatorRepo: indicatorRepo,
		cache:         draftCache,
		bus:           eventBus,
		metrics:       observability.Current(),
		treeOpts:      treeOpts,
		now:           time.Now,
		sessions:      make(map[uuid.UUID]*draftSession),
	}
}

var (
	errDraftNotFound = apierr.NotFound("draft_not_found", errors.New("indicator draft not found"))
	errNodeNotFound  = apierr.NotFound("node_not_found", indicatortree.ErrNodeNotFound)
)

// treeError maps engine rejections onto API errors.
func treeError(err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, indicatortree.ErrCycle):
		return apierr.Conflict("move_creates_cycle", err)
	case errors.Is(err, indicatortree.ErrNodeNotFound):
		return apierr.NotFound("node_not_found", err)
	case errors.Is(err, indicatortree.ErrParentNotFound):
		return apierr.BadRequest("parent_not_found", err)
	case errors.Is(err, indicatortree.ErrInvalidOrder):
		return apierr.BadRequest("invalid_order", err)
	default:
		return err
	}
}

// reject counts a refused operation and passes err through.
func (s *indicatorDraftService) reject(op string, err error) error {
	code := "error"
	if ae, ok := apierr.As(err); ok && ae.Code != "" {
		code = ae.Code
	}
	s.metrics.IncDraftOp(op, code)
	return err
}

func (s *indicatorDraftService) trackSessions() {
	s.mu.RLock()
	n := len(s.sessions)
	s.mu.RUnlock()
	s.metrics.SetOpenDraftSessions(n)
}

func (s *indicatorDraftService) logFor(ctx context.Context, draftID uuid.UUID) *logger.Logger {
	kv := append([]interface{}{"draft_id", draftID}, ctxutil.LogFields(ctx)...)
	return s.log.With(kv...)
}

// ---- session registry ----

func (s *indicatorDraftService) lookup(draftID uuid.UUID) *draftSession {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.sessions[draftID]
}

func (s *indicatorDraftService) open(ctx context.Context, draftID uuid.UUID) (*draftSession, error) {
	if sess := s.lookup(draftID); sess != nil {
		return sess, nil
	}
	v, err, _ := s.loads.Do(draftID.String(), func() (any, error) {
		if sess := s.lookup(draftID); sess != nil {
			return sess, nil
		}
		sess, err := s.load(ctx, draftID)
		if err != nil {
			return nil, err
		}
		s.mu.Lock()
		s.sessions[draftID] = sess
		s.mu.Unlock()
		s.trackSessions()
		return sess, nil
	})
	if err != nil {
		return nil, err
	}
	return v.(*draftSession), nil
}

// load rebuilds a session from the cached snapshot when it is as new as the
// stored row, otherwise from the row itself.
func (s *indicatorDraftService) load(ctx context.Context, draftID uuid.UUID) (*draftSession, error) {
	row, err := s.draftRepo.GetByID(dbctx.New(ctx), draftID)
	if err != nil {
		return nil, apierr.Internal("draft_load_failed", err)
	}
	if row == nil {
		return nil, errDraftNotFound
	}

	var snap *indicatortree.Snapshot
	cached, err := s.cache.Get(ctx, draftID)
	if err != nil {
		s.logFor(ctx, draftID).Warn("Draft cache read failed", "error", err)
	}
	if cached != nil && cached.Version == row.Version {
		snap = cached
	} else {
		snap, err = decodeSnapshot(row.Data)
		if err != nil {
			return nil, apierr.Internal("draft_corrupt", fmt.Errorf("decode draft %s: %w", draftID, err))
		}
	}
	snap.GovernanceAreaID = row.GovernanceAreaID
	snap.CreationMode = row.CreationMode
	snap.CurrentStep = row.CurrentStep

	tree := indicatortree.FromSnapshot(*snap, s.treeOpts...)
	tree.SetDraftMetadata(draftID.String(), row.Version)
	return &draftSession{
		id:       draftID,
		title:    row.Title,
		tree:     tree,
		lastUsed: s.now(),
	}, nil
}

func decodeSnapshot(data datatypes.JSON) (*indicatortree.Snapshot, error) {
	snap := &indicatortree.Snapshot{}
	if len(data) == 0 {
		return snap, nil
	}
	if err := json.Unmarshal(data, snap); err != nil {
		return nil, err
	}
	return snap, nil
}

// withSession runs fn with the draft's session locked. A session closed while
// fn waited for the lock is reopened.
func (s *indicatorDraftService) withSession(ctx context.Context, draftID uuid.UUID, fn func(*draftSession) error) error {
	for {
		sess, err := s.open(ctx, draftID)
		if err != nil {
			return err
		}
		sess.mu.Lock()
		if sess.closed {
			sess.mu.Unlock()
			continue
		}
		sess.lastUsed = s.now()
		err = fn(sess)
		sess.mu.Unlock()
		return err
	}
}

func (s *indicatorDraftService) publish(ctx context.Context, draftID uuid.UUID, event realtime.SSEEvent, data map[string]any) {
	if data == nil {
		data = map[string]any{}
	}
	data["draft_id"] = draftID
	msg := realtime.SSEMessage{Channel: realtime.DraftChannel(draftID.String()), Event: event, Data: data}
	if scope := ctxutil.Scope(ctx); scope != nil {
		msg.Origin = scope.ClientID
	}
	if err := s.bus.Publish(ctx, msg); err != nil {
		s.logFor(ctx, draftID).Warn("Publishing draft event failed", "event", event, "error", err)
	}
}

func (s *indicatorDraftService) changed(ctx context.Context, sess *draftSession, op string, nodeID string) {
	s.metrics.IncDraftOp(op, "ok")
	s.publish(ctx, sess.id, realtime.SSEEventIndicatorDraftChanged, map[string]any{
		"op":         op,
		"node_id":    nodeID,
		"version":    sess.tree.Version(),
		"node_count": sess.tree.Len(),
	})
}

// ---- lifecycle ----

func (s *indicatorDraftService) CreateDraft(ctx context.Context, in CreateDraftInput) (*DraftView, error) {
	if name := strings.TrimSpace(in.Template); name != "" {
		tpl, err := template.Builtin(name)
		if err != nil {
			return nil, apierr.BadRequest("unknown_template", err)
		}
		if in.GovernanceAreaID > 0 {
			tpl.GovernanceAreaID = in.GovernanceAreaID
		}
		return s.ImportTemplate(ctx, tpl, in.Title)
	}
	if in.GovernanceAreaID <= 0 {
		return nil, apierr.BadRequest("invalid_governance_area", fmt.Errorf("governance_area_id must be positive"))
	}

	tree := indicatortree.New(in.GovernanceAreaID, s.treeOpts...)
	tree.SetCreationMode(types.CreationModeScratch)

	if in.SourceDraftID != nil {
		src, err := s.draftRepo.GetByID(dbctx.New(ctx), *in.SourceDraftID)
		if err != nil {
			return nil, apierr.Internal("draft_load_failed", err)
		}
		if src == nil {
			return nil, apierr.NotFound("source_draft_not_found", fmt.Errorf("source draft %s not found", *in.SourceDraftID))
		}
		snap, err := decodeSnapshot(src.Data)
		if err != nil {
			return nil, apierr.Internal("draft_corrupt", err)
		}
		for _, n := range snap.Nodes {
			if n != nil {
				n.ID = nil
			}
		}
		snap.GovernanceAreaID = in.GovernanceAreaID
		snap.CreationMode = types.CreationModeCopy
		snap.CurrentStep = 0
		tree.Load(*snap)
	}
	return s.persistNew(ctx, tree, in.Title)
}

func (s *indicatorDraftService) ImportTemplate(ctx context.Context, tpl *template.Template, title string) (*DraftView, error) {
	if tpl == nil {
		return nil, apierr.BadRequest("invalid_template", template.ErrEmptyTemplate)
	}
	if tpl.GovernanceAreaID <= 0 {
		return nil, apierr.BadRequest("invalid_governance_area", fmt.Errorf("template has no governance_area_id"))
	}
	tree, err := tpl.Build(s.treeOpts...)
	if err != nil {
		return nil, apierr.BadRequest("invalid_template", err)
	}
	if tree.CreationMode() == "" {
		tree.SetCreationMode(types.CreationModeTemplate)
	}
	return s.persistNew(ctx, tree, title)
}

func (s *indicatorDraftService) persistNew(ctx context.Context, tree *indicatortree.Tree, title string) (*DraftView, error) {
	draftID := uuid.New()
	tree.SetDraftMetadata(draftID.String(), 1)
	snap := tree.Snapshot()
	raw, err := json.Marshal(snap)
	if err != nil {
		return nil, apierr.Internal("draft_encode_failed", err)
	}
	title = strings.TrimSpace(title)
	if title == "" {
		title = fmt.Sprintf("Governance area %d indicators", tree.GovernanceAreaID())
	}
	row := &types.IndicatorDraft{
		ID:               draftID,
		GovernanceAreaID: tree.GovernanceAreaID(),
		Title:            title,
		Version:          1,
		CreationMode:     tree.CreationMode(),
		CurrentStep:      tree.CurrentStep(),
		NodeCount:        tree.Len(),
		Data:             datatypes.JSON(raw),
	}
	if _, err := s.draftRepo.Create(dbctx.New(ctx), []*types.IndicatorDraft{row}); err != nil {
		return nil, apierr.Internal("draft_create_failed", err)
	}
	s.cacheSnapshot(ctx, draftID, snap)
	tree.MarkAsSaved()

	sess := &draftSession{id: draftID, title: title, tree: tree, lastUsed: s.now()}
	s.mu.Lock()
	s.sessions[draftID] = sess
	s.mu.Unlock()
	s.trackSessions()

	s.logFor(ctx, draftID).Info("Indicator draft created",
		"governance_area_id", row.GovernanceAreaID, "creation_mode", row.CreationMode, "nodes", row.NodeCount)

	sess.mu.Lock()
	defer sess.mu.Unlock()
	return sess.view(), nil
}

func (s *indicatorDraftService) ListDrafts(ctx context.Context, governanceAreaID int) ([]*types.IndicatorDraft, error) {
	rows, err := s.draftRepo.ListByGovernanceArea(dbctx.New(ctx), governanceAreaID)
	if err != nil {
		return nil, apierr.Internal("draft_list_failed", err)
	}
	return rows, nil
}

func (s *indicatorDraftService) GetDraft(ctx context.Context, draftID uuid.UUID) (*DraftView, error) {
	var out *DraftView
	err := s.withSession(ctx, draftID, func(sess *draftSession) error {
		out = sess.view()
		return nil
	})
	return out, err
}

// CloseDraft saves pending work and drops the session. With discard the
// draft is deleted instead and pending work is lost.
func (s *indicatorDraftService) CloseDraft(ctx context.Context, draftID uuid.UUID, discard bool) error {
	if discard {
		if err := s.draftRepo.SoftDeleteByIDs(dbctx.New(ctx), []uuid.UUID{draftID}); err != nil {
			return apierr.Internal("draft_delete_failed", err)
		}
		if err := s.cache.Delete(ctx, draftID); err != nil {
			s.logFor(ctx, draftID).Warn("Draft cache delete failed", "error", err)
		}
		if sess := s.lookup(draftID); sess != nil {
			sess.mu.Lock()
			s.drop(sess)
			sess.mu.Unlock()
		}
		s.publish(ctx, draftID, realtime.SSEEventIndicatorDraftClosed, map[string]any{"discarded": true})
		return nil
	}

	sess := s.lookup(draftID)
	if sess == nil {
		row, err := s.draftRepo.GetByID(dbctx.New(ctx), draftID)
		if err != nil {
			return apierr.Internal("draft_load_failed", err)
		}
		if row == nil {
			return errDraftNotFound
		}
		return nil
	}
	sess.mu.Lock()
	defer sess.mu.Unlock()
	if sess.closed {
		return nil
	}
	if sess.dirty() {
		if err := s.saveLocked(ctx, sess, "close"); err != nil {
			return err
		}
	}
	s.drop(sess)
	s.publish(ctx, draftID, realtime.SSEEventIndicatorDraftClosed, map[string]any{"discarded": false})
	return nil
}

// drop removes sess from the registry. The caller holds sess.mu.
func (s *indicatorDraftService) drop(sess *draftSession) {
	sess.closed = true
	s.mu.Lock()
	if s.sessions[sess.id] == sess {
		delete(s.sessions, sess.id)
	}
	s.mu.Unlock()
	s.trackSessions()
}

// ---- mutations ----

func (s *indicatorDraftService) AddNode(ctx context.Context, draftID uuid.UUID, parentID *string, fields indicatortree.NodePatch) (*indicatortree.Node, error) {
	var out *indicatortree.Node
	err := s.withSession(ctx, draftID, func(sess *draftSession) error {
		id, err := sess.tree.AddNode(fields, parentID)
		if err != nil {
			return s.reject("add", treeError(err))
		}
		out = sess.tree.GetNodeByID(id)
		s.changed(ctx, sess, "add", id)
		return nil
	})
	return out, err
}

func (s *indicatorDraftService) UpdateNode(ctx context.Context, draftID uuid.UUID, nodeID string, patch indicatortree.NodePatch) (*indicatortree.Node, error) {
	var out *indicatortree.Node
	err := s.withSession(ctx, draftID, func(sess *draftSession) error {
		if !sess.tree.UpdateNode(nodeID, patch) {
			return s.reject("update", errNodeNotFound)
		}
		out = sess.tree.GetNodeByID(nodeID)
		s.changed(ctx, sess, "update", nodeID)
		return nil
	})
	return out, err
}

// DeleteNode removes the node and its subtree. Deleting a node that is
// already gone reports zero removed nodes and leaves the draft clean, so a
// retried delete succeeds.
func (s *indicatorDraftService) DeleteNode(ctx context.Context, draftID uuid.UUID, nodeID string) (int, error) {
	var removed int
	err := s.withSession(ctx, draftID, func(sess *draftSession) error {
		removed = sess.tree.DeleteNode(nodeID)
		if removed == 0 {
			s.metrics.IncDraftOp("delete", "noop")
			return nil
		}
		s.changed(ctx, sess, "delete", nodeID)
		return nil
	})
	return removed, err
}

func (s *indicatorDraftService) DuplicateNode(ctx context.Context, draftID uuid.UUID, nodeID string, includeChildren bool) (*indicatortree.Node, error) {
	var out *indicatortree.Node
	err := s.withSession(ctx, draftID, func(sess *draftSession) error {
		id := sess.tree.DuplicateNode(nodeID, includeChildren)
		if id == "" {
			return s.reject("duplicate", errNodeNotFound)
		}
		out = sess.tree.GetNodeByID(id)
		s.changed(ctx, sess, "duplicate", id)
		return nil
	})
	return out, err
}

func (s *indicatorDraftService) MoveNode(ctx context.Context, draftID uuid.UUID, nodeID string, newParentID *string, index *int) (*indicatortree.Node, error) {
	var out *indicatortree.Node
	err := s.withSession(ctx, draftID, func(sess *draftSession) error {
		if err := sess.tree.MoveNode(nodeID, newParentID, index); err != nil {
			if errors.Is(err, indicatortree.ErrCycle) {
				s.logFor(ctx, draftID).Warn("Rejected move that would create a cycle", "node_id", nodeID, "new_parent_id", newParentID)
			}
			return s.reject("move", treeError(err))
		}
		out = sess.tree.GetNodeByID(nodeID)
		s.changed(ctx, sess, "move", nodeID)
		return nil
	})
	return out, err
}

func (s *indicatorDraftService) ReorderNodes(ctx context.Context, draftID uuid.UUID, parentID *string, orderedIDs []string) ([]*indicatortree.Node, error) {
	var out []*indicatortree.Node
	err := s.withSession(ctx, draftID, func(sess *draftSession) error {
		if err := sess.tree.ReorderNodes(parentID, orderedIDs); err != nil {
			return s.reject("reorder", treeError(err))
		}
		out = sess.tree.GetChildrenOf(parentID)
		s.changed(ctx, sess, "reorder", "")
		return nil
	})
	return out, err
}

func (s *indicatorDraftService) SelectNode(ctx context.Context, draftID uuid.UUID, in SelectionInput) (*DraftView, error) {
	var out *DraftView
	err := s.withSession(ctx, draftID, func(sess *draftSession) error {
		if in.SelectedID != nil {
			sess.tree.SelectNode(*in.SelectedID)
		}
		if in.EditingID != nil {
			sess.tree.SetEditingNode(*in.EditingID)
		}
		out = sess.view()
		return nil
	})
	return out, err
}

func (s *indicatorDraftService) SetWorkflow(ctx context.Context, draftID uuid.UUID, in WorkflowInput) (*DraftView, error) {
	var out *DraftView
	err := s.withSession(ctx, draftID, func(sess *draftSession) error {
		if in.CreationMode != nil {
			mode := strings.TrimSpace(*in.CreationMode)
			switch mode {
			case types.CreationModeScratch, types.CreationModeTemplate, types.CreationModeCopy:
			default:
				return apierr.BadRequest("invalid_creation_mode", fmt.Errorf("unknown creation mode %q", mode))
			}
			if mode != sess.tree.CreationMode() {
				sess.tree.SetCreationMode(mode)
				sess.metaDirty = true
			}
		}
		if in.CurrentStep != nil {
			if *in.CurrentStep < 0 {
				return apierr.BadRequest("invalid_step", fmt.Errorf("current_step must not be negative"))
			}
			if *in.CurrentStep != sess.tree.CurrentStep() {
				sess.tree.SetCurrentStep(*in.CurrentStep)
				sess.metaDirty = true
			}
		}
		out = sess.view()
		return nil
	})
	return out, err
}

// ---- projections ----

func (s *indicatorDraftService) GetNode(ctx context.Context, draftID uuid.UUID, nodeID string) (*indicatortree.Node, error) {
	var out *indicatortree.Node
	err := s.withSession(ctx, draftID, func(sess *draftSession) error {
		out = sess.tree.GetNodeByID(nodeID)
		if out == nil {
			return errNodeNotFound
		}
		return nil
	})
	return out, err
}

func (s *indicatorDraftService) GetChildren(ctx context.Context, draftID uuid.UUID, nodeID string) ([]*indicatortree.Node, error) {
	var out []*indicatortree.Node
	err := s.withSession(ctx, draftID, func(sess *draftSession) error {
		if sess.tree.GetNodeByID(nodeID) == nil {
			return errNodeNotFound
		}
		out = sess.tree.GetChildrenOf(&nodeID)
		return nil
	})
	return out, err
}

func (s *indicatorDraftService) Export(ctx context.Context, draftID uuid.UUID) ([]indicatortree.SubmissionNode, error) {
	var out []indicatortree.SubmissionNode
	err := s.withSession(ctx, draftID, func(sess *draftSession) error {
		out = sess.tree.ExportForSubmission()
		return nil
	})
	return out, err
}

// ---- persistence ----

func (s *indicatorDraftService) SaveDraft(ctx context.Context, draftID uuid.UUID) (*DraftView, error) {
	var out *DraftView
	err := s.withSession(ctx, draftID, func(sess *draftSession) error {
		if sess.dirty() {
			if err := s.saveLocked(ctx, sess, "manual"); err != nil {
				return err
			}
		}
		out = sess.view()
		return nil
	})
	return out, err
}

// saveLocked writes the session's snapshot under optimistic concurrency. The
// caller holds sess.mu.
func (s *indicatorDraftService) saveLocked(ctx context.Context, sess *draftSession, trigger string) error {
	start := time.Now()
	version, snap, err := s.writeSnapshot(dbctx.New(ctx), sess, nil)
	if err != nil {
		status := "error"
		if ae, ok := apierr.As(err); ok {
			status = ae.Code
		}
		s.metrics.ObserveDraftSave(trigger, status, time.Since(start))
		return err
	}
	s.metrics.ObserveDraftSave(trigger, "ok", time.Since(start))
	s.cacheSnapshot(ctx, sess.id, snap)
	s.afterSave(ctx, sess, version)
	return nil
}

// writeSnapshot persists the session's tree as version+1 and returns the
// stored snapshot. serverIDs, when set, are stamped onto the stored snapshot
// only. The cache is left to the caller so it is written after commit.
func (s *indicatorDraftService) writeSnapshot(dbc dbctx.Context, sess *draftSession, serverIDs map[string]int64) (int, indicatortree.Snapshot, error) {
	snap := sess.tree.Snapshot()
	for tempID, id := range serverIDs {
		if n := snap.Nodes[tempID]; n != nil {
			v := id
			n.ID = &v
		}
	}
	expected := sess.tree.Version()
	snap.DraftID = sess.id.String()
	snap.Version = expected + 1
	raw, err := json.Marshal(snap)
	if err != nil {
		return 0, snap, apierr.Internal("draft_encode_failed", err)
	}
	version, err := s.draftRepo.SaveSnapshot(dbc, sess.id, expected, repos.SnapshotUpdate{
		Data:         datatypes.JSON(raw),
		CreationMode: sess.tree.CreationMode(),
		CurrentStep:  sess.tree.CurrentStep(),
		NodeCount:    sess.tree.Len(),
	})
	switch {
	case errors.Is(err, repos.ErrVersionConflict):
		s.logFor(dbc.Ctx, sess.id).Warn("Draft save rejected; stored version moved on", "expected_version", expected)
		return 0, snap, apierr.Conflict("draft_version_conflict", err)
	case errors.Is(err, repos.ErrDraftNotFound):
		return 0, snap, errDraftNotFound
	case err != nil:
		return 0, snap, apierr.Internal("draft_save_failed", err)
	}
	return version, snap, nil
}

func (s *indicatorDraftService) cacheSnapshot(ctx context.Context, draftID uuid.UUID, snap indicatortree.Snapshot) {
	if err := s.cache.Put(ctx, draftID, snap); err != nil {
		s.logFor(ctx, draftID).Warn("Draft cache write failed", "error", err)
	}
}

func (s *indicatorDraftService) afterSave(ctx context.Context, sess *draftSession, version int) {
	sess.tree.SetDraftMetadata(sess.id.String(), version)
	sess.tree.MarkAsSaved()
	sess.metaDirty = false
	s.publish(ctx, sess.id, realtime.SSEEventIndicatorDraftSaved, map[string]any{
		"version":    version,
		"node_count": sess.tree.Len(),
	})
}

// SubmitDraft commits the draft's hierarchy as the governance area's
// indicators. Codes are derived again from the exported structure rather than
// trusted from the editor, and the draft is saved with the assigned ids in the
// same transaction.
func (s *indicatorDraftService) SubmitDraft(ctx context.Context, draftID uuid.UUID) (*SubmitResult, error) {
	var out *SubmitResult
	err := s.withSession(ctx, draftID, func(sess *draftSession) error {
		if sess.tree.Len() == 0 {
			return apierr.BadRequest("empty_draft", fmt.Errorf("draft has no indicators"))
		}
		if err := sess.tree.Validate(); err != nil {
			return apierr.Internal("draft_invalid", err)
		}

		gov := sess.tree.GovernanceAreaID()
		exported := sess.tree.ExportForSubmission()
		codes := submissionCodes(exported, gov)
		rows := make([]repos.CommitRow, 0, len(exported))
		for _, n := range exported {
			rows = append(rows, repos.CommitRow{
				TempID:       n.TempID,
				ParentTempID: n.ParentTempID,
				Indicator: &types.Indicator{
					Code:              codes[n.TempID],
					SortOrder:         n.Order,
					Name:              n.Name,
					Description:       n.Description,
					IsActive:          n.IsActive,
					IsAutoCalculable:  n.IsAutoCalculable,
					IsProfilingOnly:   n.IsProfilingOnly,
					FormSchema:        n.FormSchema,
					CalculationSchema: n.CalculationSchema,
					RemarkSchema:      n.RemarkSchema,
					MOVChecklist:      n.MOVChecklist,
				},
			})
		}

		submittedAt := s.now().UTC()
		var (
			ids     map[string]int64
			version int
			stored  indicatortree.Snapshot
		)
		err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
			dbc := dbctx.New(ctx).WithTx(tx)
			var err error
			ids, err = s.indicatorRepo.ReplaceForGovernanceArea(dbc, gov, sess.id, rows)
			if err != nil {
				return apierr.Internal("indicator_commit_failed", err)
			}
			version, stored, err = s.writeSnapshot(dbc, sess, ids)
			if err != nil {
				return err
			}
			if err := s.draftRepo.MarkSubmitted(dbc, sess.id, submittedAt); err != nil {
				return apierr.Internal("draft_submit_failed", err)
			}
			return nil
		})
		if err != nil {
			return err
		}

		s.cacheSnapshot(ctx, sess.id, stored)
		sess.tree.AssignServerIDs(ids)
		s.afterSave(ctx, sess, version)
		s.metrics.ObserveSubmittedNodes(len(ids))

		out = &SubmitResult{
			DraftID:          sess.id,
			GovernanceAreaID: gov,
			Version:          version,
			SubmittedAt:      submittedAt,
			Indicators:       make([]CommittedIndicator, 0, len(exported)),
		}
		for _, n := range exported {
			out.Indicators = append(out.Indicators, CommittedIndicator{TempID: n.TempID, ID: ids[n.TempID], Code: codes[n.TempID]})
		}
		s.logFor(ctx, draftID).Info("Indicator draft submitted", "governance_area_id", gov, "indicators", len(ids), "version", version)
		s.publish(ctx, sess.id, realtime.SSEEventIndicatorDraftSubmitted, map[string]any{
			"version":    version,
			"indicators": len(ids),
		})
		return nil
	})
	return out, err
}

// submissionCodes derives codes from exported payloads alone.
func submissionCodes(exported []indicatortree.SubmissionNode, governanceAreaID int) map[string]string {
	nodes := make(map[string]*indicatortree.Node, len(exported))
	var roots []string
	for _, n := range exported {
		nodes[n.TempID] = &indicatortree.Node{TempID: n.TempID, ParentTempID: n.ParentTempID, Order: n.Order}
		if n.ParentTempID == nil {
			roots = append(roots, n.TempID)
		}
	}
	return indicatortree.DeriveCodes(nodes, roots, governanceAreaID)
}

func (s *indicatorDraftService) SaveDirty(ctx context.Context, concurrency int) (int, error) {
	if concurrency <= 0 {
		concurrency = 1
	}
	s.mu.RLock()
	open := make([]*draftSession, 0, len(s.sessions))
	for _, sess := range s.sessions {
		open = append(open, sess)
	}
	s.mu.RUnlock()

	var (
		mu    sync.Mutex
		saved int
		errs  []error
	)
	g := new(errgroup.Group)
	g.SetLimit(concurrency)
	for _, sess := range open {
		sess := sess
		g.Go(func() error {
			if ctx.Err() != nil {
				return nil
			}
			sess.mu.Lock()
			defer sess.mu.Unlock()
			if sess.closed || !sess.dirty() {
				return nil
			}
			err := s.saveLocked(ctx, sess, "autosave")
			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				errs = append(errs, fmt.Errorf("draft %s: %w", sess.id, err))
				return nil
			}
			saved++
			return nil
		})
	}
	_ = g.Wait()
	return saved, errors.Join(errs...)
}

func (s *indicatorDraftService) EvictIdle(ttl time.Duration) int {
	if ttl <= 0 {
		return 0
	}
	cutoff := s.now().Add(-ttl)
	s.mu.RLock()
	open := make([]*draftSession, 0, len(s.sessions))
	for _, sess := range s.sessions {
		open = append(open, sess)
	}
	s.mu.RUnlock()

	evicted := 0
	for _, sess := range open {
		if !sess.mu.TryLock() {
			continue
		}
		if !sess.closed && !sess.dirty() && sess.lastUsed.Before(cutoff) {
			s.drop(sess)
			evicted++
		}
		sess.mu.Unlock()
	}
	if evicted > 0 {
		s.log.Debug("Evicted idle draft sessions", "count", evicted)
	}
	return evicted
}

package services

import (
	"context"
	"errors"
	"net/http"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/sinag-platform/vantage-backend/internal/data/cache"
	repos "github.com/sinag-platform/vantage-backend/internal/data/repos/indicators"
	"github.com/sinag-platform/vantage-backend/internal/data/repos/testutil"
	types "github.com/sinag-platform/vantage-backend/internal/domain/indicators"
	"github.com/sinag-platform/vantage-backend/internal/indicatortree"
	"github.com/sinag-platform/vantage-backend/internal/platform/apierr"
	"github.com/sinag-platform/vantage-backend/internal/platform/dbctx"
	"github.com/sinag-platform/vantage-backend/internal/realtime"
	"github.com/sinag-platform/vantage-backend/internal/realtime/bus"
)

type recordedEvents struct {
	mu   sync.Mutex
	msgs []realtime.SSEMessage
}

func (r *recordedEvents) add(m realtime.SSEMessage) {
	r.mu.Lock()
	r.msgs = append(r.msgs, m)
	r.mu.Unlock()
}

func (r *recordedEvents) count(event realtime.SSEEvent) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := 0
	for _, m := range r.msgs {
		if m.Event == event {
			n++
		}
	}
	return n
}

type fixture struct {
	db     *gorm.DB
	svc    *indicatorDraftService
	events *recordedEvents
	clock  time.Time
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	db := testutil.DB(t)
	return newFixtureOn(t, db)
}

func newFixtureOn(t *testing.T, db *gorm.DB) *fixture {
	t.Helper()
	log := testutil.Logger(t)
	b := bus.NewLocalBus()
	f := &fixture{db: db, events: &recordedEvents{}, clock: time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)}
	if err := b.StartForwarder(context.Background(), f.events.add); err != nil {
		t.Fatalf("StartForwarder: %v", err)
	}
	svc := NewIndicatorDraftService(db, log,
		repos.NewDraftRepo(db, log),
		repos.NewIndicatorRepo(db, log),
		cache.NewNopDraftCache(),
		b,
	).(*indicatorDraftService)
	svc.now = func() time.Time { return f.clock }
	f.svc = svc
	return f
}

func str(s string) *string { return &s }

func wantStatus(t *testing.T, err error, status int) {
	t.Helper()
	ae, ok := apierr.As(err)
	if !ok {
		t.Fatalf("want api error %d, got %v", status, err)
	}
	if ae.Status != status {
		t.Fatalf("want status %d, got %d (%s: %v)", status, ae.Status, ae.Code, ae.Err)
	}
}

func TestDraftEditSaveReloadSubmit(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	view, err := f.svc.CreateDraft(ctx, CreateDraftInput{GovernanceAreaID: 1, Title: "Financial Administration"})
	if err != nil {
		t.Fatalf("CreateDraft: %v", err)
	}
	id := view.DraftID
	if view.Version != 1 || view.HasUnsavedChanges {
		t.Fatalf("fresh draft: %+v", view)
	}

	root, err := f.svc.AddNode(ctx, id, nil, indicatortree.NodePatch{Name: str("Budget")})
	if err != nil {
		t.Fatalf("AddNode root: %v", err)
	}
	child, err := f.svc.AddNode(ctx, id, &root.TempID, indicatortree.NodePatch{})
	if err != nil {
		t.Fatalf("AddNode child: %v", err)
	}
	if root.Code != "1.1" || child.Code != "1.1.1" || child.Name != indicatortree.DefaultNodeName {
		t.Fatalf("codes: root=%s child=%s name=%q", root.Code, child.Code, child.Name)
	}
	if _, err := f.svc.UpdateNode(ctx, id, child.TempID, indicatortree.NodePatch{Name: str("Posting of budget")}); err != nil {
		t.Fatalf("UpdateNode: %v", err)
	}
	if got := f.events.count(realtime.SSEEventIndicatorDraftChanged); got != 3 {
		t.Fatalf("change events: %d", got)
	}

	view, err = f.svc.SaveDraft(ctx, id)
	if err != nil {
		t.Fatalf("SaveDraft: %v", err)
	}
	if view.Version != 2 || view.HasUnsavedChanges {
		t.Fatalf("after save: version=%d dirty=%v", view.Version, view.HasUnsavedChanges)
	}
	if f.events.count(realtime.SSEEventIndicatorDraftSaved) != 1 {
		t.Fatalf("saved event missing")
	}

	// A clean save is a no-op.
	if view, _ = f.svc.SaveDraft(ctx, id); view.Version != 2 {
		t.Fatalf("clean save bumped version to %d", view.Version)
	}

	f.clock = f.clock.Add(time.Hour)
	if n := f.svc.EvictIdle(time.Minute); n != 1 {
		t.Fatalf("EvictIdle: %d", n)
	}
	view, err = f.svc.GetDraft(ctx, id)
	if err != nil {
		t.Fatalf("GetDraft after eviction: %v", err)
	}
	if view.NodeCount != 2 || len(view.Tree) != 1 || view.Tree[0].Children[0].Name != "Posting of budget" {
		t.Fatalf("reloaded tree: %+v", view)
	}

	res, err := f.svc.SubmitDraft(ctx, id)
	if err != nil {
		t.Fatalf("SubmitDraft: %v", err)
	}
	if len(res.Indicators) != 2 || res.Version != 3 {
		t.Fatalf("submit result: %+v", res)
	}
	if res.Indicators[0].TempID != root.TempID || res.Indicators[0].Code != "1.1" || res.Indicators[1].Code != "1.1.1" {
		t.Fatalf("submitted order/codes: %+v", res.Indicators)
	}

	committed, err := repos.NewIndicatorRepo(f.db, testutil.Logger(t)).ListByGovernanceArea(dbctx.New(ctx), 1)
	if err != nil || len(committed) != 2 {
		t.Fatalf("committed: len=%d err=%v", len(committed), err)
	}
	node, err := f.svc.GetNode(ctx, id, child.TempID)
	if err != nil || node.ID == nil || *node.ID != res.Indicators[1].ID {
		t.Fatalf("server id not stamped: %+v err=%v", node, err)
	}
	row, _ := repos.NewDraftRepo(f.db, testutil.Logger(t)).GetByID(dbctx.New(ctx), id)
	if row.SubmittedAt == nil || row.Version != 3 {
		t.Fatalf("draft row after submit: %+v", row)
	}
}

func TestMoveIntoDescendantIsConflict(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	view, _ := f.svc.CreateDraft(ctx, CreateDraftInput{GovernanceAreaID: 2})
	id := view.DraftID

	a, _ := f.svc.AddNode(ctx, id, nil, indicatortree.NodePatch{Name: str("A")})
	b, _ := f.svc.AddNode(ctx, id, &a.TempID, indicatortree.NodePatch{Name: str("B")})

	_, err := f.svc.MoveNode(ctx, id, a.TempID, &b.TempID, nil)
	wantStatus(t, err, http.StatusConflict)
	if !errors.Is(err, indicatortree.ErrCycle) {
		t.Fatalf("cycle error not wrapped: %v", err)
	}

	_, err = f.svc.MoveNode(ctx, id, "ghost", nil, nil)
	wantStatus(t, err, http.StatusNotFound)
	_, err = f.svc.AddNode(ctx, id, str("ghost"), indicatortree.NodePatch{})
	wantStatus(t, err, http.StatusBadRequest)
	_, err = f.svc.ReorderNodes(ctx, id, nil, []string{"ghost"})
	wantStatus(t, err, http.StatusBadRequest)

	got, err := f.svc.GetNode(ctx, id, b.TempID)
	if err != nil || got.Code != "2.1.1" {
		t.Fatalf("tree changed after rejected ops: %+v err=%v", got, err)
	}
}

func TestStaleSessionSaveConflicts(t *testing.T) {
	db := testutil.DB(t)
	first := newFixtureOn(t, db)
	second := newFixtureOn(t, db)
	ctx := context.Background()

	view, _ := first.svc.CreateDraft(ctx, CreateDraftInput{GovernanceAreaID: 3})
	id := view.DraftID

	if _, err := second.svc.GetDraft(ctx, id); err != nil {
		t.Fatalf("second open: %v", err)
	}
	if _, err := first.svc.AddNode(ctx, id, nil, indicatortree.NodePatch{}); err != nil {
		t.Fatalf("first add: %v", err)
	}
	if _, err := first.svc.SaveDraft(ctx, id); err != nil {
		t.Fatalf("first save: %v", err)
	}

	if _, err := second.svc.AddNode(ctx, id, nil, indicatortree.NodePatch{}); err != nil {
		t.Fatalf("second add: %v", err)
	}
	_, err := second.svc.SaveDraft(ctx, id)
	wantStatus(t, err, http.StatusConflict)
}

func TestWorkflowAndSelection(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	view, _ := f.svc.CreateDraft(ctx, CreateDraftInput{GovernanceAreaID: 4})
	id := view.DraftID
	n, _ := f.svc.AddNode(ctx, id, nil, indicatortree.NodePatch{})
	_, _ = f.svc.SaveDraft(ctx, id)

	step := 3
	view, err := f.svc.SetWorkflow(ctx, id, WorkflowInput{CurrentStep: &step})
	if err != nil || view.CurrentStep != 3 || !view.HasUnsavedChanges {
		t.Fatalf("SetWorkflow: %+v err=%v", view, err)
	}
	_, err = f.svc.SetWorkflow(ctx, id, WorkflowInput{CreationMode: str("freestyle")})
	wantStatus(t, err, http.StatusBadRequest)

	view, err = f.svc.SelectNode(ctx, id, SelectionInput{SelectedID: &n.TempID, EditingID: str("ghost")})
	if err != nil || view.SelectedID != n.TempID || view.EditingID != "" {
		t.Fatalf("SelectNode: %+v err=%v", view, err)
	}

	saved, err := f.svc.SaveDirty(ctx, 2)
	if err != nil || saved != 1 {
		t.Fatalf("SaveDirty: saved=%d err=%v", saved, err)
	}
	row, _ := repos.NewDraftRepo(f.db, testutil.Logger(t)).GetByID(dbctx.New(ctx), id)
	if row.CurrentStep != 3 {
		t.Fatalf("workflow step not persisted: %d", row.CurrentStep)
	}
}

func TestCreateFromTemplateAndCopy(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	view, err := f.svc.CreateDraft(ctx, CreateDraftInput{Template: "financial_administration", GovernanceAreaID: 5})
	if err != nil {
		t.Fatalf("template draft: %v", err)
	}
	if view.GovernanceAreaID != 5 || view.NodeCount == 0 || view.Tree[0].Code != "5.1" {
		t.Fatalf("template draft view: %+v", view)
	}

	src := view.DraftID
	copied, err := f.svc.CreateDraft(ctx, CreateDraftInput{GovernanceAreaID: 6, SourceDraftID: &src})
	if err != nil {
		t.Fatalf("copy draft: %v", err)
	}
	if copied.CreationMode != "copy" || copied.NodeCount != view.NodeCount || copied.Tree[0].Code != "6.1" {
		t.Fatalf("copy view: %+v", copied)
	}

	_, err = f.svc.CreateDraft(ctx, CreateDraftInput{Template: "no_such_template"})
	wantStatus(t, err, http.StatusBadRequest)
	_, err = f.svc.CreateDraft(ctx, CreateDraftInput{})
	wantStatus(t, err, http.StatusBadRequest)
	missing := uuid.New()
	_, err = f.svc.CreateDraft(ctx, CreateDraftInput{GovernanceAreaID: 1, SourceDraftID: &missing})
	wantStatus(t, err, http.StatusNotFound)
}

func TestCloseDraft(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	view, _ := f.svc.CreateDraft(ctx, CreateDraftInput{GovernanceAreaID: 7})
	id := view.DraftID
	_, _ = f.svc.AddNode(ctx, id, nil, indicatortree.NodePatch{})

	if err := f.svc.CloseDraft(ctx, id, false); err != nil {
		t.Fatalf("CloseDraft: %v", err)
	}
	if f.svc.lookup(id) != nil {
		t.Fatalf("session still registered")
	}
	view, err := f.svc.GetDraft(ctx, id)
	if err != nil || view.NodeCount != 1 || view.Version != 2 {
		t.Fatalf("pending work lost on close: %+v err=%v", view, err)
	}

	if err := f.svc.CloseDraft(ctx, id, true); err != nil {
		t.Fatalf("discard: %v", err)
	}
	_, err = f.svc.GetDraft(ctx, id)
	wantStatus(t, err, http.StatusNotFound)
	if f.events.count(realtime.SSEEventIndicatorDraftClosed) != 2 {
		t.Fatalf("closed events: %d", f.events.count(realtime.SSEEventIndicatorDraftClosed))
	}
}

func TestSubmitEmptyDraftRejected(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	view, _ := f.svc.CreateDraft(ctx, CreateDraftInput{GovernanceAreaID: 8})
	_, err := f.svc.SubmitDraft(ctx, view.DraftID)
	wantStatus(t, err, http.StatusBadRequest)
}

func TestAutosaverTick(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	view, _ := f.svc.CreateDraft(ctx, CreateDraftInput{GovernanceAreaID: 9})
	_, _ = f.svc.AddNode(ctx, view.DraftID, nil, indicatortree.NodePatch{})

	a := NewAutosaver(testutil.Logger(t), f.svc, AutosaveConfig{Interval: time.Hour, Concurrency: 2, IdleTTL: time.Minute})
	a.Tick(ctx)

	view, _ = f.svc.GetDraft(ctx, view.DraftID)
	if view.HasUnsavedChanges || view.Version != 2 {
		t.Fatalf("autosave did not flush: %+v", view)
	}

	f.clock = f.clock.Add(2 * time.Minute)
	a.Tick(ctx)
	if f.svc.lookup(view.DraftID) != nil {
		t.Fatalf("idle clean session not evicted")
	}
}

type memDraftCache struct {
	mu    sync.Mutex
	snaps map[uuid.UUID]indicatortree.Snapshot
}

func (c *memDraftCache) Get(_ context.Context, id uuid.UUID) (*indicatortree.Snapshot, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	snap, ok := c.snaps[id]
	if !ok {
		return nil, nil
	}
	return &snap, nil
}

func (c *memDraftCache) Put(_ context.Context, id uuid.UUID, snap indicatortree.Snapshot) error {
	c.mu.Lock()
	c.snaps[id] = snap
	c.mu.Unlock()
	return nil
}

func (c *memDraftCache) Delete(_ context.Context, id uuid.UUID) error {
	c.mu.Lock()
	delete(c.snaps, id)
	c.mu.Unlock()
	return nil
}

type failingSubmitRepo struct {
	repos.DraftRepo
}

func (failingSubmitRepo) MarkSubmitted(dbctx.Context, uuid.UUID, time.Time) error {
	return errors.New("disk full")
}

func TestFailedSubmitLeavesCacheAtCommittedVersion(t *testing.T) {
	db := testutil.DB(t)
	log := testutil.Logger(t)
	mem := &memDraftCache{snaps: map[uuid.UUID]indicatortree.Snapshot{}}
	svc := NewIndicatorDraftService(db, log,
		failingSubmitRepo{repos.NewDraftRepo(db, log)},
		repos.NewIndicatorRepo(db, log),
		mem, nil,
	)
	ctx := context.Background()
	view, err := svc.CreateDraft(ctx, CreateDraftInput{GovernanceAreaID: 4})
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if _, err := svc.AddNode(ctx, view.DraftID, nil, indicatortree.NodePatch{Name: str("Budget")}); err != nil {
		t.Fatalf("add: %v", err)
	}
	saved, err := svc.SaveDraft(ctx, view.DraftID)
	if err != nil {
		t.Fatalf("save: %v", err)
	}

	_, err = svc.SubmitDraft(ctx, view.DraftID)
	wantStatus(t, err, http.StatusInternalServerError)

	cached, _ := mem.Get(ctx, view.DraftID)
	if cached == nil || cached.Version != saved.Version {
		t.Fatalf("cache holds uncommitted snapshot: %+v (want version %d)", cached, saved.Version)
	}
	for _, n := range cached.Nodes {
		if n.ID != nil {
			t.Fatalf("cached node %s carries rolled-back server id %d", n.TempID, *n.ID)
		}
	}
	var indicators int64
	db.Model(&types.Indicator{}).Count(&indicators)
	if indicators != 0 {
		t.Fatalf("indicator rows survived rollback: %d", indicators)
	}
}

func TestDeleteMissingNodeIsIdempotent(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	view, _ := f.svc.CreateDraft(ctx, CreateDraftInput{GovernanceAreaID: 2})
	node, _ := f.svc.AddNode(ctx, view.DraftID, nil, indicatortree.NodePatch{})
	if _, err := f.svc.SaveDraft(ctx, view.DraftID); err != nil {
		t.Fatalf("save: %v", err)
	}
	if removed, err := f.svc.DeleteNode(ctx, view.DraftID, node.TempID); err != nil || removed != 1 {
		t.Fatalf("first delete: removed=%d err=%v", removed, err)
	}
	if _, err := f.svc.SaveDraft(ctx, view.DraftID); err != nil {
		t.Fatalf("save: %v", err)
	}
	changed := f.events.count(realtime.SSEEventIndicatorDraftChanged)

	removed, err := f.svc.DeleteNode(ctx, view.DraftID, node.TempID)
	if err != nil || removed != 0 {
		t.Fatalf("repeated delete: removed=%d err=%v", removed, err)
	}
	got, _ := f.svc.GetDraft(ctx, view.DraftID)
	if got.HasUnsavedChanges {
		t.Fatalf("no-op delete marked the draft dirty")
	}
	if f.events.count(realtime.SSEEventIndicatorDraftChanged) != changed {
		t.Fatalf("no-op delete published a change event")
	}
}

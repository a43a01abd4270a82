package indicators

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"

	"github.com/sinag-platform/vantage-backend/internal/data/repos/testutil"
	types "github.com/sinag-platform/vantage-backend/internal/domain/indicators"
	"github.com/sinag-platform/vantage-backend/internal/platform/dbctx"
)

func TestDraftRepo(t *testing.T) {
	db := testutil.DB(t)
	dbc := dbctx.New(context.Background())
	repo := NewDraftRepo(db, testutil.Logger(t))

	d := &types.IndicatorDraft{GovernanceAreaID: 2, Title: "Disaster Preparedness", Data: datatypes.JSON(`{}`)}
	if _, err := repo.Create(dbc, []*types.IndicatorDraft{d}); err != nil {
		t.Fatalf("Create: %v", err)
	}
	if d.ID == uuid.Nil || d.Version != 1 || d.CreationMode != types.CreationModeScratch {
		t.Fatalf("Create defaults: %+v", d)
	}
	other := &types.IndicatorDraft{GovernanceAreaID: 3, Title: "other"}
	if _, err := repo.Create(dbc, []*types.IndicatorDraft{other}); err != nil {
		t.Fatalf("Create other: %v", err)
	}

	got, err := repo.GetByID(dbc, d.ID)
	if err != nil || got == nil || got.Title != "Disaster Preparedness" {
		t.Fatalf("GetByID: got=%v err=%v", got, err)
	}
	if missing, err := repo.GetByID(dbc, uuid.New()); err != nil || missing != nil {
		t.Fatalf("GetByID missing: got=%v err=%v", missing, err)
	}

	list, err := repo.ListByGovernanceArea(dbc, 2)
	if err != nil || len(list) != 1 || list[0].ID != d.ID {
		t.Fatalf("ListByGovernanceArea: len=%d err=%v", len(list), err)
	}

	v, err := repo.SaveSnapshot(dbc, d.ID, 1, SnapshotUpdate{Data: datatypes.JSON(`{"nodes":{}}`), CurrentStep: 2, NodeCount: 4})
	if err != nil || v != 2 {
		t.Fatalf("SaveSnapshot: v=%d err=%v", v, err)
	}
	got, _ = repo.GetByID(dbc, d.ID)
	if got.Version != 2 || got.CurrentStep != 2 || got.NodeCount != 4 || got.LastSavedAt == nil {
		t.Fatalf("SaveSnapshot verify: %+v", got)
	}

	if _, err := repo.SaveSnapshot(dbc, d.ID, 1, SnapshotUpdate{Data: datatypes.JSON(`{}`)}); !errors.Is(err, ErrVersionConflict) {
		t.Fatalf("stale save: want ErrVersionConflict, got %v", err)
	}
	if _, err := repo.SaveSnapshot(dbc, uuid.New(), 1, SnapshotUpdate{}); !errors.Is(err, ErrDraftNotFound) {
		t.Fatalf("missing save: want ErrDraftNotFound, got %v", err)
	}

	if err := repo.MarkSubmitted(dbc, d.ID, time.Now().UTC()); err != nil {
		t.Fatalf("MarkSubmitted: %v", err)
	}
	got, _ = repo.GetByID(dbc, d.ID)
	if got.SubmittedAt == nil {
		t.Fatalf("MarkSubmitted verify: %+v", got)
	}

	if err := repo.SoftDeleteByIDs(dbc, []uuid.UUID{d.ID}); err != nil {
		t.Fatalf("SoftDeleteByIDs: %v", err)
	}
	if gone, _ := repo.GetByID(dbc, d.ID); gone != nil {
		t.Fatalf("soft-deleted draft still visible")
	}
}

package indicators

import (
	"context"
	"testing"

	"github.com/google/uuid"

	"github.com/sinag-platform/vantage-backend/internal/data/repos/testutil"
	types "github.com/sinag-platform/vantage-backend/internal/domain/indicators"
	"github.com/sinag-platform/vantage-backend/internal/platform/dbctx"
)

func strPtr(s string) *string { return &s }

func TestIndicatorRepoReplace(t *testing.T) {
	db := testutil.DB(t)
	dbc := dbctx.New(context.Background())
	repo := NewIndicatorRepo(db, testutil.Logger(t))
	draftID := uuid.New()

	rows := []CommitRow{
		{TempID: "a", Indicator: &types.Indicator{Name: "A", Code: "1.1", SortOrder: 1, IsActive: true}},
		{TempID: "a1", ParentTempID: strPtr("a"), Indicator: &types.Indicator{Name: "A1", Code: "1.1.1", SortOrder: 1}},
		{TempID: "b", Indicator: &types.Indicator{Name: "B", Code: "1.2", SortOrder: 2}},
	}
	ids, err := repo.ReplaceForGovernanceArea(dbc, 1, draftID, rows)
	if err != nil {
		t.Fatalf("ReplaceForGovernanceArea: %v", err)
	}
	if len(ids) != 3 || ids["a"] == 0 {
		t.Fatalf("ids: %v", ids)
	}

	list, err := repo.ListByGovernanceArea(dbc, 1)
	if err != nil || len(list) != 3 {
		t.Fatalf("ListByGovernanceArea: len=%d err=%v", len(list), err)
	}
	for _, ind := range list {
		if ind.Name == "A1" && (ind.ParentID == nil || *ind.ParentID != ids["a"]) {
			t.Fatalf("A1 parent: %v want %d", ind.ParentID, ids["a"])
		}
		if ind.DraftID == nil || *ind.DraftID != draftID {
			t.Fatalf("draft back-reference missing on %s", ind.Name)
		}
	}

	again, err := repo.ReplaceForGovernanceArea(dbc, 1, draftID, rows[:1])
	if err != nil {
		t.Fatalf("second replace: %v", err)
	}
	list, _ = repo.ListByGovernanceArea(dbc, 1)
	if len(list) != 1 || list[0].ID != again["a"] {
		t.Fatalf("replace did not swap hierarchy: %+v", list)
	}
}

func TestIndicatorRepoRejectsOrphans(t *testing.T) {
	db := testutil.DB(t)
	dbc := dbctx.New(context.Background())
	repo := NewIndicatorRepo(db, testutil.Logger(t))

	if _, err := repo.ReplaceForGovernanceArea(dbc, 1, uuid.Nil, []CommitRow{
		{TempID: "x", Indicator: &types.Indicator{Name: "X", Code: "1.1", SortOrder: 1}},
	}); err != nil {
		t.Fatalf("seed: %v", err)
	}

	_, err := repo.ReplaceForGovernanceArea(dbc, 1, uuid.Nil, []CommitRow{
		{TempID: "c", ParentTempID: strPtr("ghost"), Indicator: &types.Indicator{Name: "C", Code: "1.1.1", SortOrder: 1}},
	})
	if err == nil {
		t.Fatalf("orphan row accepted")
	}
	list, _ := repo.ListByGovernanceArea(dbc, 1)
	if len(list) != 1 || list[0].Name != "X" {
		t.Fatalf("failed replace was not rolled back: %+v", list)
	}
}

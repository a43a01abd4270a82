package indicators

import (
	"fmt"

	"github.com/google/uuid"
	"gorm.io/gorm"

	types "github.com/sinag-platform/vantage-backend/internal/domain/indicators"
	"github.com/sinag-platform/vantage-backend/internal/platform/dbctx"
	"github.com/sinag-platform/vantage-backend/internal/platform/logger"
)

// CommitRow is one indicator to persist, still addressed by draft temp ids.
// Rows must be ordered so parents precede their children.
type CommitRow struct {
	TempID       string
	ParentTempID *string
	Indicator    *types.Indicator
}

type IndicatorRepo interface {
	ReplaceForGovernanceArea(dbc dbctx.Context, governanceAreaID int, draftID uuid.UUID, rows []CommitRow) (map[string]int64, error)
	ListByGovernanceArea(dbc dbctx.Context, governanceAreaID int) ([]*types.Indicator, error)
}

type indicatorRepo struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewIndicatorRepo(db *gorm.DB, baseLog *logger.Logger) IndicatorRepo {
	return &indicatorRepo{db: db, log: baseLog.With("repo", "IndicatorRepo")}
}

// ReplaceForGovernanceArea swaps the committed hierarchy of an area for rows in
// one transaction and returns the assigned ids keyed by temp id.
func (r *indicatorRepo) ReplaceForGovernanceArea(dbc dbctx.Context, governanceAreaID int, draftID uuid.UUID, rows []CommitRow) (map[string]int64, error) {
	ids := make(map[string]int64, len(rows))
	run := func(tx *gorm.DB) error {
		if err := tx.Where("governance_area_id = ?", governanceAreaID).Delete(&types.Indicator{}).Error; err != nil {
			return fmt.Errorf("clear committed indicators: %w", err)
		}
		for _, row := range rows {
			ind := row.Indicator
			ind.ID = 0
			ind.GovernanceAreaID = governanceAreaID
			if draftID != uuid.Nil {
				d := draftID
				ind.DraftID = &d
			}
			ind.ParentID = nil
			if row.ParentTempID != nil {
				pid, ok := ids[*row.ParentTempID]
				if !ok {
					return fmt.Errorf("indicator %q references uncommitted parent %q", row.TempID, *row.ParentTempID)
				}
				ind.ParentID = &pid
			}
			if err := tx.Create(ind).Error; err != nil {
				return fmt.Errorf("insert indicator %q: %w", row.TempID, err)
			}
			ids[row.TempID] = ind.ID
		}
		return nil
	}

	var err error
	if dbc.Tx != nil {
		err = run(dbc.DB(r.db))
	} else {
		err = dbc.DB(r.db).Transaction(run)
	}
	if err != nil {
		r.log.Error("Replacing committed indicators failed", "governance_area_id", governanceAreaID, "error", err)
		return nil, err
	}
	return ids, nil
}

func (r *indicatorRepo) ListByGovernanceArea(dbc dbctx.Context, governanceAreaID int) ([]*types.Indicator, error) {
	var out []*types.Indicator
	if err := dbc.DB(r.db).
		Where("governance_area_id = ?", governanceAreaID).
		Order("parent_id ASC, sort_order ASC").
		Find(&out).Error; err != nil {
		return nil, err
	}
	return out, nil
}

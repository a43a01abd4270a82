package indicators

import (
	"errors"
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"

	types "github.com/sinag-platform/vantage-backend/internal/domain/indicators"
	"github.com/sinag-platform/vantage-backend/internal/platform/dbctx"
	"github.com/sinag-platform/vantage-backend/internal/platform/logger"
)

var (
	ErrDraftNotFound   = errors.New("indicator draft not found")
	ErrVersionConflict = errors.New("indicator draft version conflict")
)

// SnapshotUpdate is what a save writes besides the version bump.
type SnapshotUpdate struct {
	Data         datatypes.JSON
	CreationMode string
	CurrentStep  int
	NodeCount    int
}

type DraftRepo interface {
	Create(dbc dbctx.Context, rows []*types.IndicatorDraft) ([]*types.IndicatorDraft, error)

	GetByID(dbc dbctx.Context, id uuid.UUID) (*types.IndicatorDraft, error)
	ListByGovernanceArea(dbc dbctx.Context, governanceAreaID int) ([]*types.IndicatorDraft, error)

	SaveSnapshot(dbc dbctx.Context, id uuid.UUID, expectedVersion int, upd SnapshotUpdate) (int, error)
	MarkSubmitted(dbc dbctx.Context, id uuid.UUID, at time.Time) error

	SoftDeleteByIDs(dbc dbctx.Context, ids []uuid.UUID) error
}

type draftRepo struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewDraftRepo(db *gorm.DB, baseLog *logger.Logger) DraftRepo {
	return &draftRepo{db: db, log: baseLog.With("repo", "IndicatorDraftRepo")}
}

func (r *draftRepo) Create(dbc dbctx.Context, rows []*types.IndicatorDraft) ([]*types.IndicatorDraft, error) {
	if len(rows) == 0 {
		return []*types.IndicatorDraft{}, nil
	}
	for _, row := range rows {
		if row.ID == uuid.Nil {
			row.ID = uuid.New()
		}
		if row.Version == 0 {
			row.Version = 1
		}
		if row.CreationMode == "" {
			row.CreationMode = types.CreationModeScratch
		}
	}
	if err := dbc.DB(r.db).Create(&rows).Error; err != nil {
		return nil, err
	}
	return rows, nil
}

func (r *draftRepo) GetByID(dbc dbctx.Context, id uuid.UUID) (*types.IndicatorDraft, error) {
	if id == uuid.Nil {
		return nil, nil
	}
	var rows []*types.IndicatorDraft
	if err := dbc.DB(r.db).Where("id = ?", id).Limit(1).Find(&rows).Error; err != nil {
		return nil, err
	}
	if len(rows) == 0 {
		return nil, nil
	}
	return rows[0], nil
}

func (r *draftRepo) ListByGovernanceArea(dbc dbctx.Context, governanceAreaID int) ([]*types.IndicatorDraft, error) {
	var out []*types.IndicatorDraft
	if err := dbc.DB(r.db).
		Omit("data").
		Where("governance_area_id = ?", governanceAreaID).
		Order("updated_at DESC").
		Find(&out).Error; err != nil {
		return nil, err
	}
	return out, nil
}

// SaveSnapshot writes the snapshot only if the stored version still equals
// expectedVersion, and returns the bumped version.
func (r *draftRepo) SaveSnapshot(dbc dbctx.Context, id uuid.UUID, expectedVersion int, upd SnapshotUpdate) (int, error) {
	now := time.Now().UTC()
	res := dbc.DB(r.db).
		Model(&types.IndicatorDraft{}).
		Where("id = ? AND version = ?", id, expectedVersion).
		Updates(map[string]interface{}{
			"data":          upd.Data,
			"creation_mode": upd.CreationMode,
			"current_step":  upd.CurrentStep,
			"node_count":    upd.NodeCount,
			"version":       gorm.Expr("version + 1"),
			"last_saved_at": now,
			"updated_at":    now,
		})
	if res.Error != nil {
		return 0, res.Error
	}
	if res.RowsAffected == 0 {
		existing, err := r.GetByID(dbc, id)
		if err != nil {
			return 0, err
		}
		if existing == nil {
			return 0, ErrDraftNotFound
		}
		r.log.Warn("Stale draft save rejected", "draft_id", id, "expected_version", expectedVersion, "stored_version", existing.Version)
		return 0, ErrVersionConflict
	}
	return expectedVersion + 1, nil
}

func (r *draftRepo) MarkSubmitted(dbc dbctx.Context, id uuid.UUID, at time.Time) error {
	return dbc.DB(r.db).
		Model(&types.IndicatorDraft{}).
		Where("id = ?", id).
		Updates(map[string]interface{}{"submitted_at": at, "updated_at": at}).Error
}

func (r *draftRepo) SoftDeleteByIDs(dbc dbctx.Context, ids []uuid.UUID) error {
	if len(ids) == 0 {
		return nil
	}
	return dbc.DB(r.db).Where("id IN ?", ids).Delete(&types.IndicatorDraft{}).Error
}

package indicators

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

const (
	CreationModeScratch  = "scratch"
	CreationModeTemplate = "template"
	CreationModeCopy     = "copy"
)

// IndicatorDraft is an in-progress indicator hierarchy for one governance
// area. Data holds the serialized tree snapshot; Version increments on every
// save and guards against stale writers.
type IndicatorDraft struct {
	ID               uuid.UUID      `gorm:"type:uuid;primaryKey" json:"id"`
	GovernanceAreaID int            `gorm:"column:governance_area_id;not null;index" json:"governance_area_id"`
	Title            string         `gorm:"column:title;not null;default:''" json:"title"`
	Version          int            `gorm:"column:version;not null;default:1" json:"version"`
	CreationMode     string         `gorm:"column:creation_mode;not null;default:'scratch'" json:"creation_mode"`
	CurrentStep      int            `gorm:"column:current_step;not null;default:0" json:"current_step"`
	NodeCount        int            `gorm:"column:node_count;not null;default:0" json:"node_count"`
	Data             datatypes.JSON `gorm:"column:data" json:"data,omitempty"`
	LastSavedAt      *time.Time     `gorm:"column:last_saved_at" json:"last_saved_at,omitempty"`
	SubmittedAt      *time.Time     `gorm:"column:submitted_at;index" json:"submitted_at,omitempty"`
	CreatedAt        time.Time      `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt        time.Time      `gorm:"autoUpdateTime" json:"updated_at"`
	DeletedAt        gorm.DeletedAt `gorm:"index" json:"deleted_at,omitempty"`
}

func (IndicatorDraft) TableName() string { return "indicator_draft" }

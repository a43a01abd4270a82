package indicators

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
)

// Indicator is a committed assessment indicator. Codes and ids are assigned
// here, never trusted from the client.
type Indicator struct {
	ID               int64      `gorm:"primaryKey;autoIncrement" json:"id"`
	GovernanceAreaID int        `gorm:"column:governance_area_id;not null;index:idx_indicator_area_code,priority:1" json:"governance_area_id"`
	DraftID          *uuid.UUID `gorm:"type:uuid;column:draft_id;index" json:"draft_id,omitempty"`
	ParentID         *int64     `gorm:"column:parent_id;index" json:"parent_id,omitempty"`
	Code             string     `gorm:"column:code;not null;index:idx_indicator_area_code,priority:2" json:"code"`
	SortOrder        int        `gorm:"column:sort_order;not null" json:"sort_order"`

	Name        string `gorm:"column:name;not null" json:"name"`
	Description string `gorm:"column:description;type:text" json:"description,omitempty"`

	IsActive         bool `gorm:"column:is_active;not null" json:"is_active"`
	IsAutoCalculable bool `gorm:"column:is_auto_calculable;not null" json:"is_auto_calculable"`
	IsProfilingOnly  bool `gorm:"column:is_profiling_only;not null" json:"is_profiling_only"`

	FormSchema        datatypes.JSON `gorm:"column:form_schema" json:"form_schema,omitempty"`
	CalculationSchema datatypes.JSON `gorm:"column:calculation_schema" json:"calculation_schema,omitempty"`
	RemarkSchema      datatypes.JSON `gorm:"column:remark_schema" json:"remark_schema,omitempty"`
	MOVChecklist      datatypes.JSON `gorm:"column:mov_checklist" json:"mov_checklist,omitempty"`

	CreatedAt time.Time `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt time.Time `gorm:"autoUpdateTime" json:"updated_at"`
}

func (Indicator) TableName() string { return "indicator" }

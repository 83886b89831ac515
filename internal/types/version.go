package types

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
)

const (
	ChangeTypeManualSave   = "manual_save"
	ChangeTypeAutoSave     = "auto_save"
	ChangeTypeLockBaseline = "lock_baseline"
	ChangeTypeAIGenerated  = "ai_generated"
	ChangeTypeRestore      = "restore"
	ChangeTypeImport       = "import"
)

// ResourceVersion is one row in the resource-agnostic, append-only
// version log. Rows are never updated or deleted; restore appends.
type ResourceVersion struct {
	ID          uuid.UUID `gorm:"type:uuid;primaryKey" json:"id"`
	WorkspaceID uuid.UUID `gorm:"type:uuid;not null;index" json:"workspace_id"`

	ResourceType string    `gorm:"column:resource_type;not null;index:idx_resource_version_seq,unique,priority:1" json:"resource_type"`
	ResourceID   uuid.UUID `gorm:"type:uuid;column:resource_id;not null;index:idx_resource_version_seq,unique,priority:2" json:"resource_id"`
	Version      int       `gorm:"column:version;not null;index:idx_resource_version_seq,unique,priority:3" json:"version"`

	Snapshot   datatypes.JSON `gorm:"type:jsonb;column:snapshot;not null;default:'{}'" json:"snapshot"`
	ChangeType string         `gorm:"column:change_type;not null" json:"change_type"`
	Note       string         `gorm:"column:note;not null;default:''" json:"note,omitempty"`

	CreatedBy uuid.UUID `gorm:"type:uuid;column:created_by" json:"created_by"`
	CreatedAt time.Time `gorm:"not null;index" json:"created_at"`
}

func (ResourceVersion) TableName() string { return "resource_version" }

package types

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
)

// Persona is the subject of a chat session. Beyond the identifying
// columns its content is an open key/value record so the prompt layer
// never binds to a fixed schema.
type Persona struct {
	ID          uuid.UUID `gorm:"type:uuid;primaryKey" json:"id"`
	WorkspaceID uuid.UUID `gorm:"type:uuid;not null;index" json:"workspace_id"`

	Name      string `gorm:"column:name;not null" json:"name"`
	Archetype string `gorm:"column:archetype;not null;default:''" json:"archetype"`

	Attributes datatypes.JSON `gorm:"type:jsonb;column:attributes;not null;default:'{}'" json:"attributes"`

	ImageURL string `gorm:"column:image_url;not null;default:''" json:"image_url,omitempty"`

	CreatedAt time.Time `gorm:"not null" json:"created_at"`
	UpdatedAt time.Time `gorm:"not null" json:"updated_at"`
}

func (Persona) TableName() string { return "persona" }

package types

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
)

// Context-source records referenced by chats. This subsystem only reads
// them; their CRUD lives elsewhere. Each carries an open Fields record
// so the serializer can walk whatever the editors saved.

type BrandProfile struct {
	ID          uuid.UUID      `gorm:"type:uuid;primaryKey" json:"id"`
	WorkspaceID uuid.UUID      `gorm:"type:uuid;not null;index" json:"workspace_id"`
	Name        string         `gorm:"column:name;not null" json:"name"`
	Fields      datatypes.JSON `gorm:"type:jsonb;column:fields;not null;default:'{}'" json:"fields"`
	CreatedAt   time.Time      `gorm:"not null" json:"created_at"`
	UpdatedAt   time.Time      `gorm:"not null" json:"updated_at"`
}

func (BrandProfile) TableName() string { return "brand_profile" }

type Campaign struct {
	ID          uuid.UUID      `gorm:"type:uuid;primaryKey" json:"id"`
	WorkspaceID uuid.UUID      `gorm:"type:uuid;not null;index" json:"workspace_id"`
	Name        string         `gorm:"column:name;not null" json:"name"`
	Fields      datatypes.JSON `gorm:"type:jsonb;column:fields;not null;default:'{}'" json:"fields"`
	CreatedAt   time.Time      `gorm:"not null" json:"created_at"`
	UpdatedAt   time.Time      `gorm:"not null" json:"updated_at"`
}

func (Campaign) TableName() string { return "campaign" }

type Product struct {
	ID          uuid.UUID      `gorm:"type:uuid;primaryKey" json:"id"`
	WorkspaceID uuid.UUID      `gorm:"type:uuid;not null;index" json:"workspace_id"`
	Name        string         `gorm:"column:name;not null" json:"name"`
	Fields      datatypes.JSON `gorm:"type:jsonb;column:fields;not null;default:'{}'" json:"fields"`
	CreatedAt   time.Time      `gorm:"not null" json:"created_at"`
	UpdatedAt   time.Time      `gorm:"not null" json:"updated_at"`
}

func (Product) TableName() string { return "product" }

type Strategy struct {
	ID          uuid.UUID      `gorm:"type:uuid;primaryKey" json:"id"`
	WorkspaceID uuid.UUID      `gorm:"type:uuid;not null;index" json:"workspace_id"`
	Name        string         `gorm:"column:name;not null" json:"name"`
	Fields      datatypes.JSON `gorm:"type:jsonb;column:fields;not null;default:'{}'" json:"fields"`
	CreatedAt   time.Time      `gorm:"not null" json:"created_at"`
	UpdatedAt   time.Time      `gorm:"not null" json:"updated_at"`
}

func (Strategy) TableName() string { return "strategy" }

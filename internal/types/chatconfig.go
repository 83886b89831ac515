package types

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
)

// ChatConfig stores per-workspace prompt and model settings for one
// (item type, item subtype) scope. A null subtype means the row applies
// to every subtype of the type.
type ChatConfig struct {
	ID          uuid.UUID `gorm:"type:uuid;primaryKey" json:"id"`
	WorkspaceID uuid.UUID `gorm:"type:uuid;not null;index;index:idx_chat_config_scope,unique,priority:1" json:"workspace_id"`

	ItemType    string  `gorm:"column:item_type;not null;index:idx_chat_config_scope,unique,priority:2" json:"item_type"`
	ItemSubtype *string `gorm:"column:item_subtype;index:idx_chat_config_scope,unique,priority:3" json:"item_subtype,omitempty"`

	Provider    string  `gorm:"column:provider;not null;default:''" json:"provider"`
	Model       string  `gorm:"column:model;not null;default:''" json:"model"`
	Temperature float64 `gorm:"column:temperature;not null;default:0.7" json:"temperature"`
	MaxTokens   int     `gorm:"column:max_tokens;not null;default:1024" json:"max_tokens"`

	SystemPrompt   string `gorm:"column:system_prompt;type:text;not null;default:''" json:"system_prompt"`
	GreetingPrompt string `gorm:"column:greeting_prompt;type:text;not null;default:''" json:"greeting_prompt"`

	Dimensions         datatypes.JSON `gorm:"type:jsonb;column:dimensions;not null;default:'[]'" json:"dimensions"`
	ContextSourceTypes datatypes.JSON `gorm:"type:jsonb;column:context_source_types;not null;default:'[]'" json:"context_source_types"`

	CreatedAt time.Time `gorm:"not null" json:"created_at"`
	UpdatedAt time.Time `gorm:"not null" json:"updated_at"`
}

func (ChatConfig) TableName() string { return "chat_config" }

// KnowledgeEntry is a free-form note attached to a ChatConfig, appended
// to the resolved system prompt in Position order.
type KnowledgeEntry struct {
	ID       uuid.UUID `gorm:"type:uuid;primaryKey" json:"id"`
	ConfigID uuid.UUID `gorm:"type:uuid;not null;index" json:"config_id"`

	Position int    `gorm:"column:position;not null;default:0" json:"position"`
	Title    string `gorm:"column:title;not null;default:''" json:"title"`
	Content  string `gorm:"column:content;type:text;not null;default:''" json:"content"`

	CreatedAt time.Time `gorm:"not null" json:"created_at"`
}

func (KnowledgeEntry) TableName() string { return "knowledge_entry" }

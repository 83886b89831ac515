package types

import (
	"time"

	"github.com/google/uuid"
)

const (
	ChatRoleUser      = "user"
	ChatRoleAssistant = "assistant"

	ChatModeFree        = "free_chat"
	ChatModeInterview   = "interview"
	ChatModeExploration = "exploration"
)

type ChatSession struct {
	ID          uuid.UUID `gorm:"type:uuid;primaryKey" json:"id"`
	WorkspaceID uuid.UUID `gorm:"type:uuid;not null;index" json:"workspace_id"`
	PersonaID   uuid.UUID `gorm:"type:uuid;not null;index" json:"persona_id"`
	UserID      uuid.UUID `gorm:"type:uuid;not null;index" json:"user_id"`

	Mode  string `gorm:"column:mode;not null;default:'free_chat'" json:"mode"`
	Title string `gorm:"column:title;not null;default:''" json:"title,omitempty"`

	CreatedAt time.Time `gorm:"not null;index" json:"created_at"`
	UpdatedAt time.Time `gorm:"not null;index" json:"updated_at"`
}

func (ChatSession) TableName() string { return "chat_session" }

// ChatMessage rows are immutable once created. Seq gives a strict
// per-session order independent of timestamp resolution.
type ChatMessage struct {
	ID        uuid.UUID `gorm:"type:uuid;primaryKey" json:"id"`
	SessionID uuid.UUID `gorm:"type:uuid;not null;index;index:idx_chat_message_session_seq,unique,priority:1" json:"session_id"`

	Seq int64 `gorm:"column:seq;not null;index:idx_chat_message_session_seq,unique,priority:2" json:"seq"`

	Role    string `gorm:"column:role;not null;index" json:"role"`
	Content string `gorm:"column:content;type:text;not null;default:''" json:"content"`

	PromptTokens     int `gorm:"column:prompt_tokens;not null;default:0" json:"prompt_tokens,omitempty"`
	CompletionTokens int `gorm:"column:completion_tokens;not null;default:0" json:"completion_tokens,omitempty"`

	CreatedAt time.Time `gorm:"not null;index" json:"created_at"`
}

func (ChatMessage) TableName() string { return "chat_message" }

// SessionInsight is one takeaway extracted from a completed assistant
// turn. Extraction is best-effort; a turn may contribute zero rows.
type SessionInsight struct {
	ID        uuid.UUID `gorm:"type:uuid;primaryKey" json:"id"`
	SessionID uuid.UUID `gorm:"type:uuid;not null;index" json:"session_id"`
	MessageID uuid.UUID `gorm:"type:uuid;not null;index" json:"message_id"`

	Kind string `gorm:"column:kind;not null;default:'observation'" json:"kind"`
	Text string `gorm:"column:text;type:text;not null" json:"text"`

	CreatedAt time.Time `gorm:"not null;index" json:"created_at"`
}

func (SessionInsight) TableName() string { return "session_insight" }

package repos

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/calliopehq/persona-backend/internal/logger"
	"github.com/calliopehq/persona-backend/internal/types"
)

// SessionWithCounts decorates a session row with its message and
// insight counts for listing endpoints.
type SessionWithCounts struct {
	types.ChatSession
	MessageCount int64 `json:"message_count"`
	InsightCount int64 `json:"insight_count"`
}

type ChatSessionRepo interface {
	Create(ctx context.Context, tx *gorm.DB, session *types.ChatSession) (*types.ChatSession, error)
	GetByID(ctx context.Context, tx *gorm.DB, sessionID uuid.UUID) (*types.ChatSession, error)
	ListByPersona(ctx context.Context, tx *gorm.DB, workspaceID, personaID uuid.UUID) ([]SessionWithCounts, error)
	SetTitle(ctx context.Context, tx *gorm.DB, sessionID uuid.UUID, title string) error
	Touch(ctx context.Context, tx *gorm.DB, sessionID uuid.UUID) error
}

type chatSessionRepo struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewChatSessionRepo(db *gorm.DB, baseLog *logger.Logger) ChatSessionRepo {
	repoLog := baseLog.With("repo", "ChatSessionRepo")
	return &chatSessionRepo{db: db, log: repoLog}
}

func (sr *chatSessionRepo) Create(ctx context.Context, tx *gorm.DB, session *types.ChatSession) (*types.ChatSession, error) {
	transaction := tx
	if transaction == nil {
		transaction = sr.db
	}
	if err := transaction.WithContext(ctx).Create(session).Error; err != nil {
		return nil, err
	}
	return session, nil
}

func (sr *chatSessionRepo) GetByID(ctx context.Context, tx *gorm.DB, sessionID uuid.UUID) (*types.ChatSession, error) {
	transaction := tx
	if transaction == nil {
		transaction = sr.db
	}
	var result types.ChatSession
	err := transaction.WithContext(ctx).
		Where("id = ?", sessionID).
		First(&result).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return &result, nil
}

func (sr *chatSessionRepo) ListByPersona(ctx context.Context, tx *gorm.DB, workspaceID, personaID uuid.UUID) ([]SessionWithCounts, error) {
	transaction := tx
	if transaction == nil {
		transaction = sr.db
	}
	var results []SessionWithCounts
	err := transaction.WithContext(ctx).
		Model(&types.ChatSession{}).
		Select(`chat_session.*,
			(SELECT COUNT(*) FROM chat_message WHERE chat_message.session_id = chat_session.id) AS message_count,
			(SELECT COUNT(*) FROM session_insight WHERE session_insight.session_id = chat_session.id) AS insight_count`).
		Where("chat_session.workspace_id = ? AND chat_session.persona_id = ?", workspaceID, personaID).
		Order("chat_session.updated_at DESC").
		Find(&results).Error
	if err != nil {
		return nil, err
	}
	return results, nil
}

func (sr *chatSessionRepo) SetTitle(ctx context.Context, tx *gorm.DB, sessionID uuid.UUID, title string) error {
	transaction := tx
	if transaction == nil {
		transaction = sr.db
	}
	return transaction.WithContext(ctx).
		Model(&types.ChatSession{}).
		Where("id = ?", sessionID).
		Update("title", title).Error
}

func (sr *chatSessionRepo) Touch(ctx context.Context, tx *gorm.DB, sessionID uuid.UUID) error {
	transaction := tx
	if transaction == nil {
		transaction = sr.db
	}
	return transaction.WithContext(ctx).
		Model(&types.ChatSession{}).
		Where("id = ?", sessionID).
		Update("updated_at", time.Now()).Error
}

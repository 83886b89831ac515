package repos

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/calliopehq/persona-backend/internal/logger"
	"github.com/calliopehq/persona-backend/internal/types"
)

type ChatMessageRepo interface {
	Append(ctx context.Context, tx *gorm.DB, msg *types.ChatMessage) (*types.ChatMessage, error)
	ListBySession(ctx context.Context, tx *gorm.DB, sessionID uuid.UUID) ([]types.ChatMessage, error)
	CountBySession(ctx context.Context, tx *gorm.DB, sessionID uuid.UUID) (int64, error)
	CountBySessionAndRole(ctx context.Context, tx *gorm.DB, sessionID uuid.UUID, role string) (int64, error)
	FirstBySessionAndRole(ctx context.Context, tx *gorm.DB, sessionID uuid.UUID, role string) (*types.ChatMessage, error)
}

type chatMessageRepo struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewChatMessageRepo(db *gorm.DB, baseLog *logger.Logger) ChatMessageRepo {
	repoLog := baseLog.With("repo", "ChatMessageRepo")
	return &chatMessageRepo{db: db, log: repoLog}
}

// Append assigns the next per-session seq and inserts the row. The
// read-then-insert pair is not atomic across writers; a single writer
// per session is assumed.
func (mr *chatMessageRepo) Append(ctx context.Context, tx *gorm.DB, msg *types.ChatMessage) (*types.ChatMessage, error) {
	transaction := tx
	if transaction == nil {
		transaction = mr.db
	}
	var maxSeq int64
	err := transaction.WithContext(ctx).
		Model(&types.ChatMessage{}).
		Where("session_id = ?", msg.SessionID).
		Select("COALESCE(MAX(seq), 0)").
		Scan(&maxSeq).Error
	if err != nil {
		return nil, err
	}
	msg.Seq = maxSeq + 1
	if err := transaction.WithContext(ctx).Create(msg).Error; err != nil {
		return nil, err
	}
	return msg, nil
}

func (mr *chatMessageRepo) ListBySession(ctx context.Context, tx *gorm.DB, sessionID uuid.UUID) ([]types.ChatMessage, error) {
	transaction := tx
	if transaction == nil {
		transaction = mr.db
	}
	var results []types.ChatMessage
	err := transaction.WithContext(ctx).
		Where("session_id = ?", sessionID).
		Order("seq ASC").
		Find(&results).Error
	if err != nil {
		return nil, err
	}
	return results, nil
}

func (mr *chatMessageRepo) CountBySession(ctx context.Context, tx *gorm.DB, sessionID uuid.UUID) (int64, error) {
	transaction := tx
	if transaction == nil {
		transaction = mr.db
	}
	var count int64
	err := transaction.WithContext(ctx).
		Model(&types.ChatMessage{}).
		Where("session_id = ?", sessionID).
		Count(&count).Error
	return count, err
}

func (mr *chatMessageRepo) CountBySessionAndRole(ctx context.Context, tx *gorm.DB, sessionID uuid.UUID, role string) (int64, error) {
	transaction := tx
	if transaction == nil {
		transaction = mr.db
	}
	var count int64
	err := transaction.WithContext(ctx).
		Model(&types.ChatMessage{}).
		Where("session_id = ? AND role = ?", sessionID, role).
		Count(&count).Error
	return count, err
}

func (mr *chatMessageRepo) FirstBySessionAndRole(ctx context.Context, tx *gorm.DB, sessionID uuid.UUID, role string) (*types.ChatMessage, error) {
	transaction := tx
	if transaction == nil {
		transaction = mr.db
	}
	var result types.ChatMessage
	err := transaction.WithContext(ctx).
		Where("session_id = ? AND role = ?", sessionID, role).
		Order("seq ASC").
		First(&result).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return &result, nil
}

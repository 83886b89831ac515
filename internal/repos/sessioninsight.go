package repos

import (
	"context"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/calliopehq/persona-backend/internal/logger"
	"github.com/calliopehq/persona-backend/internal/types"
)

type SessionInsightRepo interface {
	Create(ctx context.Context, tx *gorm.DB, insights []*types.SessionInsight) ([]*types.SessionInsight, error)
	ListBySession(ctx context.Context, tx *gorm.DB, sessionID uuid.UUID) ([]types.SessionInsight, error)
	CountBySession(ctx context.Context, tx *gorm.DB, sessionID uuid.UUID) (int64, error)
}

type sessionInsightRepo struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewSessionInsightRepo(db *gorm.DB, baseLog *logger.Logger) SessionInsightRepo {
	repoLog := baseLog.With("repo", "SessionInsightRepo")
	return &sessionInsightRepo{db: db, log: repoLog}
}

func (ir *sessionInsightRepo) Create(ctx context.Context, tx *gorm.DB, insights []*types.SessionInsight) ([]*types.SessionInsight, error) {
	transaction := tx
	if transaction == nil {
		transaction = ir.db
	}
	if len(insights) == 0 {
		return []*types.SessionInsight{}, nil
	}
	if err := transaction.WithContext(ctx).Create(&insights).Error; err != nil {
		return nil, err
	}
	return insights, nil
}

func (ir *sessionInsightRepo) ListBySession(ctx context.Context, tx *gorm.DB, sessionID uuid.UUID) ([]types.SessionInsight, error) {
	transaction := tx
	if transaction == nil {
		transaction = ir.db
	}
	var results []types.SessionInsight
	err := transaction.WithContext(ctx).
		Where("session_id = ?", sessionID).
		Order("created_at ASC").
		Find(&results).Error
	if err != nil {
		return nil, err
	}
	return results, nil
}

func (ir *sessionInsightRepo) CountBySession(ctx context.Context, tx *gorm.DB, sessionID uuid.UUID) (int64, error) {
	transaction := tx
	if transaction == nil {
		transaction = ir.db
	}
	var count int64
	err := transaction.WithContext(ctx).
		Model(&types.SessionInsight{}).
		Where("session_id = ?", sessionID).
		Count(&count).Error
	if err != nil {
		return 0, err
	}
	return count, nil
}

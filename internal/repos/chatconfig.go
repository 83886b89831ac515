package repos

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/calliopehq/persona-backend/internal/logger"
	"github.com/calliopehq/persona-backend/internal/types"
)

type ChatConfigRepo interface {
	// GetByScope returns the row for an exact (type, subtype) pair. A
	// nil subtype matches rows stored with a null subtype.
	GetByScope(ctx context.Context, tx *gorm.DB, workspaceID uuid.UUID, itemType string, itemSubtype *string) (*types.ChatConfig, error)
	Upsert(ctx context.Context, tx *gorm.DB, cfg *types.ChatConfig) (*types.ChatConfig, error)
	ListKnowledge(ctx context.Context, tx *gorm.DB, configID uuid.UUID) ([]types.KnowledgeEntry, error)
}

type chatConfigRepo struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewChatConfigRepo(db *gorm.DB, baseLog *logger.Logger) ChatConfigRepo {
	repoLog := baseLog.With("repo", "ChatConfigRepo")
	return &chatConfigRepo{db: db, log: repoLog}
}

func (cr *chatConfigRepo) GetByScope(ctx context.Context, tx *gorm.DB, workspaceID uuid.UUID, itemType string, itemSubtype *string) (*types.ChatConfig, error) {
	transaction := tx
	if transaction == nil {
		transaction = cr.db
	}
	q := transaction.WithContext(ctx).
		Where("workspace_id = ? AND item_type = ?", workspaceID, itemType)
	if itemSubtype == nil {
		q = q.Where("item_subtype IS NULL")
	} else {
		q = q.Where("item_subtype = ?", *itemSubtype)
	}
	var result types.ChatConfig
	if err := q.First(&result).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return &result, nil
}

func (cr *chatConfigRepo) Upsert(ctx context.Context, tx *gorm.DB, cfg *types.ChatConfig) (*types.ChatConfig, error) {
	transaction := tx
	if transaction == nil {
		transaction = cr.db
	}
	existing, err := cr.GetByScope(ctx, transaction, cfg.WorkspaceID, cfg.ItemType, cfg.ItemSubtype)
	if err != nil && !errors.Is(err, ErrNotFound) {
		return nil, err
	}
	if existing != nil {
		cfg.ID = existing.ID
		cfg.CreatedAt = existing.CreatedAt
		if err := transaction.WithContext(ctx).Save(cfg).Error; err != nil {
			return nil, err
		}
		return cfg, nil
	}
	if err := transaction.WithContext(ctx).Create(cfg).Error; err != nil {
		return nil, err
	}
	return cfg, nil
}

func (cr *chatConfigRepo) ListKnowledge(ctx context.Context, tx *gorm.DB, configID uuid.UUID) ([]types.KnowledgeEntry, error) {
	transaction := tx
	if transaction == nil {
		transaction = cr.db
	}
	var results []types.KnowledgeEntry
	err := transaction.WithContext(ctx).
		Where("config_id = ?", configID).
		Order("position ASC, created_at ASC").
		Find(&results).Error
	if err != nil {
		return nil, err
	}
	return results, nil
}

package repos

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/calliopehq/persona-backend/internal/logger"
	"github.com/calliopehq/persona-backend/internal/types"
)

type ResourceVersionRepo interface {
	Append(ctx context.Context, tx *gorm.DB, v *types.ResourceVersion) (*types.ResourceVersion, error)
	GetByID(ctx context.Context, tx *gorm.DB, versionID uuid.UUID) (*types.ResourceVersion, error)
	ListByResource(ctx context.Context, tx *gorm.DB, resourceType string, resourceID uuid.UUID) ([]types.ResourceVersion, error)
	LatestVersionNumber(ctx context.Context, tx *gorm.DB, resourceType string, resourceID uuid.UUID) (int, error)
}

type resourceVersionRepo struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewResourceVersionRepo(db *gorm.DB, baseLog *logger.Logger) ResourceVersionRepo {
	repoLog := baseLog.With("repo", "ResourceVersionRepo")
	return &resourceVersionRepo{db: db, log: repoLog}
}

// Append inserts the row with the next version number. The log is
// append-only; nothing in this repo updates or deletes.
func (vr *resourceVersionRepo) Append(ctx context.Context, tx *gorm.DB, v *types.ResourceVersion) (*types.ResourceVersion, error) {
	transaction := tx
	if transaction == nil {
		transaction = vr.db
	}
	latest, err := vr.LatestVersionNumber(ctx, transaction, v.ResourceType, v.ResourceID)
	if err != nil {
		return nil, err
	}
	v.Version = latest + 1
	if err := transaction.WithContext(ctx).Create(v).Error; err != nil {
		return nil, err
	}
	return v, nil
}

func (vr *resourceVersionRepo) GetByID(ctx context.Context, tx *gorm.DB, versionID uuid.UUID) (*types.ResourceVersion, error) {
	transaction := tx
	if transaction == nil {
		transaction = vr.db
	}
	var result types.ResourceVersion
	err := transaction.WithContext(ctx).
		Where("id = ?", versionID).
		First(&result).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return &result, nil
}

func (vr *resourceVersionRepo) ListByResource(ctx context.Context, tx *gorm.DB, resourceType string, resourceID uuid.UUID) ([]types.ResourceVersion, error) {
	transaction := tx
	if transaction == nil {
		transaction = vr.db
	}
	var results []types.ResourceVersion
	err := transaction.WithContext(ctx).
		Where("resource_type = ? AND resource_id = ?", resourceType, resourceID).
		Order("version DESC").
		Find(&results).Error
	if err != nil {
		return nil, err
	}
	return results, nil
}

func (vr *resourceVersionRepo) LatestVersionNumber(ctx context.Context, tx *gorm.DB, resourceType string, resourceID uuid.UUID) (int, error) {
	transaction := tx
	if transaction == nil {
		transaction = vr.db
	}
	var latest int
	err := transaction.WithContext(ctx).
		Model(&types.ResourceVersion{}).
		Where("resource_type = ? AND resource_id = ?", resourceType, resourceID).
		Select("COALESCE(MAX(version), 0)").
		Scan(&latest).Error
	return latest, err
}

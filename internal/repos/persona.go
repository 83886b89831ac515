package repos

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/calliopehq/persona-backend/internal/logger"
	"github.com/calliopehq/persona-backend/internal/types"
)

var ErrNotFound = errors.New("not found")

type PersonaRepo interface {
	Create(ctx context.Context, tx *gorm.DB, personas []*types.Persona) ([]*types.Persona, error)
	GetByID(ctx context.Context, tx *gorm.DB, workspaceID, personaID uuid.UUID) (*types.Persona, error)
	Update(ctx context.Context, tx *gorm.DB, persona *types.Persona) error
}

type personaRepo struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewPersonaRepo(db *gorm.DB, baseLog *logger.Logger) PersonaRepo {
	repoLog := baseLog.With("repo", "PersonaRepo")
	return &personaRepo{db: db, log: repoLog}
}

func (pr *personaRepo) Create(ctx context.Context, tx *gorm.DB, personas []*types.Persona) ([]*types.Persona, error) {
	transaction := tx
	if transaction == nil {
		transaction = pr.db
	}
	if len(personas) == 0 {
		return []*types.Persona{}, nil
	}
	if err := transaction.WithContext(ctx).Create(&personas).Error; err != nil {
		return nil, err
	}
	return personas, nil
}

func (pr *personaRepo) GetByID(ctx context.Context, tx *gorm.DB, workspaceID, personaID uuid.UUID) (*types.Persona, error) {
	transaction := tx
	if transaction == nil {
		transaction = pr.db
	}
	var result types.Persona
	err := transaction.WithContext(ctx).
		Where("id = ? AND workspace_id = ?", personaID, workspaceID).
		First(&result).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return &result, nil
}

func (pr *personaRepo) Update(ctx context.Context, tx *gorm.DB, persona *types.Persona) error {
	transaction := tx
	if transaction == nil {
		transaction = pr.db
	}
	return transaction.WithContext(ctx).Save(persona).Error
}

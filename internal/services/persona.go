package services

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"

	"github.com/calliopehq/persona-backend/internal/apierr"
	"github.com/calliopehq/persona-backend/internal/logger"
	"github.com/calliopehq/persona-backend/internal/repos"
	"github.com/calliopehq/persona-backend/internal/types"
)

const ResourceTypePersona = "persona"

var personaFieldLabels = map[string]string{
	"name":       "Name",
	"archetype":  "Archetype",
	"attributes": "Attributes",
}

type PersonaService interface {
	Get(ctx context.Context, workspaceID, personaID uuid.UUID) (*types.Persona, error)
	// Update applies the given content fields and appends an auto-save
	// version when at least one of them actually changed.
	Update(ctx context.Context, workspaceID, userID, personaID uuid.UUID, updates map[string]any) (*types.Persona, error)
	// SnapshotApplier returns the restore callback wiring snapshots back
	// onto the live persona row.
	SnapshotApplier(workspaceID, personaID uuid.UUID) ApplySnapshot
}

type personaService struct {
	db             *gorm.DB
	log            *logger.Logger
	personaRepo    repos.PersonaRepo
	versionService VersionService
}

func NewPersonaService(db *gorm.DB, log *logger.Logger, personaRepo repos.PersonaRepo, versionService VersionService) PersonaService {
	return &personaService{
		db:             db,
		log:            log.With("service", "PersonaService"),
		personaRepo:    personaRepo,
		versionService: versionService,
	}
}

func (s *personaService) Get(ctx context.Context, workspaceID, personaID uuid.UUID) (*types.Persona, error) {
	persona, err := s.personaRepo.GetByID(ctx, nil, workspaceID, personaID)
	if err != nil {
		if errors.Is(err, repos.ErrNotFound) {
			return nil, apierr.NotFound(fmt.Errorf("persona %s not found", personaID))
		}
		return nil, err
	}
	return persona, nil
}

func (s *personaService) Update(ctx context.Context, workspaceID, userID, personaID uuid.UUID, updates map[string]any) (*types.Persona, error) {
	persona, err := s.Get(ctx, workspaceID, personaID)
	if err != nil {
		return nil, err
	}

	before := personaSnapshot(persona)
	applyPersonaFields(persona, updates)
	after := personaSnapshot(persona)

	if err := s.personaRepo.Update(ctx, nil, persona); err != nil {
		return nil, err
	}

	if _, err := s.versionService.AutoVersion(ctx, workspaceID, userID, ResourceTypePersona, persona.ID, before, after, personaFieldLabels); err != nil {
		s.log.Warn("Auto-versioning failed after persona update", "persona_id", persona.ID, "error", err)
	}
	return persona, nil
}

func (s *personaService) SnapshotApplier(workspaceID, personaID uuid.UUID) ApplySnapshot {
	return func(ctx context.Context, snapshot map[string]any) error {
		persona, err := s.personaRepo.GetByID(ctx, nil, workspaceID, personaID)
		if err != nil {
			return err
		}
		applyPersonaFields(persona, snapshot)
		return s.personaRepo.Update(ctx, nil, persona)
	}
}

func personaSnapshot(p *types.Persona) map[string]any {
	attrs := map[string]any{}
	if len(p.Attributes) > 0 {
		_ = json.Unmarshal(p.Attributes, &attrs)
	}
	return map[string]any{
		"name":       p.Name,
		"archetype":  p.Archetype,
		"attributes": attrs,
	}
}

func applyPersonaFields(p *types.Persona, fields map[string]any) {
	if v, ok := fields["name"].(string); ok {
		p.Name = v
	}
	if v, ok := fields["archetype"].(string); ok {
		p.Archetype = v
	}
	if v, ok := fields["attributes"].(map[string]any); ok {
		if raw, err := json.Marshal(v); err == nil {
			p.Attributes = datatypes.JSON(raw)
		}
	}
}

package services

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"

	"github.com/calliopehq/persona-backend/internal/apierr"
	"github.com/calliopehq/persona-backend/internal/logger"
	"github.com/calliopehq/persona-backend/internal/repos"
	"github.com/calliopehq/persona-backend/internal/types"
)

const autoVersionNoteFields = 3

// ApplySnapshot writes a snapshot's fields back onto the live resource.
// Supplied by the caller because the version log is resource-agnostic.
type ApplySnapshot func(ctx context.Context, snapshot map[string]any) error

type VersionService interface {
	CreateVersion(ctx context.Context, workspaceID, userID uuid.UUID, resourceType string, resourceID uuid.UUID, snapshot map[string]any, changeType, note string) (*types.ResourceVersion, error)
	ListVersions(ctx context.Context, workspaceID uuid.UUID, resourceType string, resourceID uuid.UUID) ([]types.ResourceVersion, error)
	// RestoreVersion applies the target snapshot to the live resource and
	// appends a new "restore" version. History is never rewritten, so
	// restores can themselves be restored (redo).
	RestoreVersion(ctx context.Context, workspaceID, userID uuid.UUID, resourceType string, resourceID, versionID uuid.UUID, apply ApplySnapshot) (*types.ResourceVersion, error)
	// AutoVersion compares content fields before and after an update and
	// appends an auto-save version only when something changed. Returns
	// nil when the records are equal.
	AutoVersion(ctx context.Context, workspaceID, userID uuid.UUID, resourceType string, resourceID uuid.UUID, before, after map[string]any, labels map[string]string) (*types.ResourceVersion, error)
}

type versionService struct {
	db          *gorm.DB
	log         *logger.Logger
	versionRepo repos.ResourceVersionRepo
}

func NewVersionService(db *gorm.DB, log *logger.Logger, versionRepo repos.ResourceVersionRepo) VersionService {
	return &versionService{
		db:          db,
		log:         log.With("service", "VersionService"),
		versionRepo: versionRepo,
	}
}

func (s *versionService) CreateVersion(ctx context.Context, workspaceID, userID uuid.UUID, resourceType string, resourceID uuid.UUID, snapshot map[string]any, changeType, note string) (*types.ResourceVersion, error) {
	raw, err := json.Marshal(snapshot)
	if err != nil {
		return nil, fmt.Errorf("marshal snapshot: %w", err)
	}
	return s.versionRepo.Append(ctx, nil, &types.ResourceVersion{
		WorkspaceID:  workspaceID,
		ResourceType: resourceType,
		ResourceID:   resourceID,
		Snapshot:     datatypes.JSON(raw),
		ChangeType:   changeType,
		Note:         note,
		CreatedBy:    userID,
	})
}

func (s *versionService) ListVersions(ctx context.Context, workspaceID uuid.UUID, resourceType string, resourceID uuid.UUID) ([]types.ResourceVersion, error) {
	versions, err := s.versionRepo.ListByResource(ctx, nil, resourceType, resourceID)
	if err != nil {
		return nil, err
	}
	out := versions[:0]
	for _, v := range versions {
		if v.WorkspaceID == workspaceID {
			out = append(out, v)
		}
	}
	return out, nil
}

func (s *versionService) RestoreVersion(ctx context.Context, workspaceID, userID uuid.UUID, resourceType string, resourceID, versionID uuid.UUID, apply ApplySnapshot) (*types.ResourceVersion, error) {
	target, err := s.versionRepo.GetByID(ctx, nil, versionID)
	if err != nil {
		if errors.Is(err, repos.ErrNotFound) {
			return nil, apierr.NotFound(fmt.Errorf("version %s not found", versionID))
		}
		return nil, err
	}
	if target.WorkspaceID != workspaceID || target.ResourceType != resourceType || target.ResourceID != resourceID {
		return nil, apierr.NotFound(fmt.Errorf("version %s not found", versionID))
	}

	var snapshot map[string]any
	if err := json.Unmarshal(target.Snapshot, &snapshot); err != nil {
		return nil, fmt.Errorf("decode snapshot for version %d: %w", target.Version, err)
	}

	if apply != nil {
		if err := apply(ctx, snapshot); err != nil {
			return nil, fmt.Errorf("apply snapshot: %w", err)
		}
	}

	return s.versionRepo.Append(ctx, nil, &types.ResourceVersion{
		WorkspaceID:  workspaceID,
		ResourceType: resourceType,
		ResourceID:   resourceID,
		Snapshot:     target.Snapshot,
		ChangeType:   types.ChangeTypeRestore,
		Note:         fmt.Sprintf("Restored from version %d", target.Version),
		CreatedBy:    userID,
	})
}

func (s *versionService) AutoVersion(ctx context.Context, workspaceID, userID uuid.UUID, resourceType string, resourceID uuid.UUID, before, after map[string]any, labels map[string]string) (*types.ResourceVersion, error) {
	changed := changedFields(before, after)
	if len(changed) == 0 {
		return nil, nil
	}
	return s.CreateVersion(ctx, workspaceID, userID, resourceType, resourceID, after, types.ChangeTypeAutoSave, autoVersionNote(changed, labels))
}

// changedFields compares the union of keys by deep value equality,
// normalized through JSON so map ordering and numeric types don't
// produce phantom diffs.
func changedFields(before, after map[string]any) []string {
	keys := map[string]bool{}
	for k := range before {
		keys[k] = true
	}
	for k := range after {
		keys[k] = true
	}

	changed := make([]string, 0)
	for k := range keys {
		if normalizeJSON(before[k]) != normalizeJSON(after[k]) {
			changed = append(changed, k)
		}
	}
	sort.Strings(changed)
	return changed
}

func normalizeJSON(v any) string {
	raw, err := json.Marshal(v)
	if err != nil {
		return fmt.Sprintf("%#v", v)
	}
	return string(raw)
}

func autoVersionNote(changed []string, labels map[string]string) string {
	shown := make([]string, 0, autoVersionNoteFields)
	for i, key := range changed {
		if i == autoVersionNoteFields {
			break
		}
		label := labels[key]
		if label == "" {
			label = humanizeKey(key)
		}
		shown = append(shown, label)
	}
	note := "Updated " + strings.Join(shown, ", ")
	if extra := len(changed) - len(shown); extra > 0 {
		note += fmt.Sprintf(" +%d more", extra)
	}
	return note
}

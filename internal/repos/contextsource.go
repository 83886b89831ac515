package repos

import (
	"context"
	"encoding/json"
	"errors"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"

	"github.com/calliopehq/persona-backend/internal/logger"
	"github.com/calliopehq/persona-backend/internal/types"
)

// ContextSourceRepo reads the records other parts of the product own,
// flattened into open key/value maps for the prompt layer.
type ContextSourceRepo interface {
	Fetch(ctx context.Context, tx *gorm.DB, workspaceID uuid.UUID, sourceType string, sourceID uuid.UUID) (map[string]any, error)
	ApplySnapshot(ctx context.Context, tx *gorm.DB, workspaceID uuid.UUID, sourceType string, sourceID uuid.UUID, snapshot map[string]any) error
}

type contextSourceRepo struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewContextSourceRepo(db *gorm.DB, baseLog *logger.Logger) ContextSourceRepo {
	repoLog := baseLog.With("repo", "ContextSourceRepo")
	return &contextSourceRepo{db: db, log: repoLog}
}

func (cs *contextSourceRepo) Fetch(ctx context.Context, tx *gorm.DB, workspaceID uuid.UUID, sourceType string, sourceID uuid.UUID) (map[string]any, error) {
	transaction := tx
	if transaction == nil {
		transaction = cs.db
	}

	var name string
	var fields []byte

	q := transaction.WithContext(ctx)
	switch sourceType {
	case "persona":
		var row types.Persona
		if err := q.Where("id = ? AND workspace_id = ?", sourceID, workspaceID).First(&row).Error; err != nil {
			return nil, mapNotFound(err)
		}
		out := flattenFields(row.Attributes)
		out["name"] = row.Name
		if row.Archetype != "" {
			out["archetype"] = row.Archetype
		}
		return out, nil
	case "brand":
		var row types.BrandProfile
		if err := q.Where("id = ? AND workspace_id = ?", sourceID, workspaceID).First(&row).Error; err != nil {
			return nil, mapNotFound(err)
		}
		name, fields = row.Name, row.Fields
	case "campaign":
		var row types.Campaign
		if err := q.Where("id = ? AND workspace_id = ?", sourceID, workspaceID).First(&row).Error; err != nil {
			return nil, mapNotFound(err)
		}
		name, fields = row.Name, row.Fields
	case "product":
		var row types.Product
		if err := q.Where("id = ? AND workspace_id = ?", sourceID, workspaceID).First(&row).Error; err != nil {
			return nil, mapNotFound(err)
		}
		name, fields = row.Name, row.Fields
	case "strategy":
		var row types.Strategy
		if err := q.Where("id = ? AND workspace_id = ?", sourceID, workspaceID).First(&row).Error; err != nil {
			return nil, mapNotFound(err)
		}
		name, fields = row.Name, row.Fields
	default:
		return nil, ErrNotFound
	}

	out := flattenFields(fields)
	out["name"] = name
	return out, nil
}

// ApplySnapshot writes a versioned snapshot back onto the live record.
// The "name" key maps to the name column; everything else lands in the
// fields document. Personas are owned by the persona service and are
// not written here.
func (cs *contextSourceRepo) ApplySnapshot(ctx context.Context, tx *gorm.DB, workspaceID uuid.UUID, sourceType string, sourceID uuid.UUID, snapshot map[string]any) error {
	transaction := tx
	if transaction == nil {
		transaction = cs.db
	}

	fields := map[string]any{}
	name := ""
	for k, v := range snapshot {
		if k == "name" {
			if s, ok := v.(string); ok {
				name = s
			}
			continue
		}
		fields[k] = v
	}
	raw, err := json.Marshal(fields)
	if err != nil {
		return err
	}

	updates := map[string]any{"fields": datatypes.JSON(raw)}
	if name != "" {
		updates["name"] = name
	}

	var model any
	switch sourceType {
	case "brand":
		model = &types.BrandProfile{}
	case "campaign":
		model = &types.Campaign{}
	case "product":
		model = &types.Product{}
	case "strategy":
		model = &types.Strategy{}
	default:
		return ErrNotFound
	}

	res := transaction.WithContext(ctx).Model(model).
		Where("id = ? AND workspace_id = ?", sourceID, workspaceID).
		Updates(updates)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

func flattenFields(raw []byte) map[string]any {
	out := map[string]any{}
	if len(raw) == 0 {
		return out
	}
	// Malformed stored JSON degrades to an empty record.
	_ = json.Unmarshal(raw, &out)
	return out
}

func mapNotFound(err error) error {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return ErrNotFound
	}
	return err
}

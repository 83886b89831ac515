package testutil

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"

	"github.com/calliopehq/persona-backend/internal/db"
	"github.com/calliopehq/persona-backend/internal/logger"
	"github.com/calliopehq/persona-backend/internal/types"
)

func Logger(tb testing.TB) *logger.Logger {
	tb.Helper()
	return logger.NewNop()
}

// DB opens a fresh in-memory database with the full schema. Each test
// gets its own instance so tests never observe each other's rows.
func DB(tb testing.TB) *gorm.DB {
	tb.Helper()
	gdb, err := db.OpenSQLiteMemory()
	if err != nil {
		tb.Fatalf("failed to init test db: %v", err)
	}
	return gdb
}

func JSONMap(tb testing.TB, m map[string]any) datatypes.JSON {
	tb.Helper()
	raw, err := json.Marshal(m)
	if err != nil {
		tb.Fatalf("marshal test json: %v", err)
	}
	return datatypes.JSON(raw)
}

func SeedPersona(tb testing.TB, ctx context.Context, tx *gorm.DB, workspaceID uuid.UUID, name string) *types.Persona {
	tb.Helper()
	p := &types.Persona{
		ID:          uuid.New(),
		WorkspaceID: workspaceID,
		Name:        name,
		Archetype:   "Skeptical Buyer",
		Attributes: JSONMap(tb, map[string]any{
			"age_range":  "25-34",
			"occupation": "Designer",
			"values":     []any{"authenticity", "craft"},
		}),
	}
	if err := tx.WithContext(ctx).Create(p).Error; err != nil {
		tb.Fatalf("seed persona: %v", err)
	}
	return p
}

func SeedSession(tb testing.TB, ctx context.Context, tx *gorm.DB, workspaceID, personaID, userID uuid.UUID) *types.ChatSession {
	tb.Helper()
	s := &types.ChatSession{
		ID:          uuid.New(),
		WorkspaceID: workspaceID,
		PersonaID:   personaID,
		UserID:      userID,
		Mode:        types.ChatModeFree,
	}
	if err := tx.WithContext(ctx).Create(s).Error; err != nil {
		tb.Fatalf("seed session: %v", err)
	}
	return s
}

func SeedBrand(tb testing.TB, ctx context.Context, tx *gorm.DB, workspaceID uuid.UUID, name string, fields map[string]any) *types.BrandProfile {
	tb.Helper()
	b := &types.BrandProfile{
		ID:          uuid.New(),
		WorkspaceID: workspaceID,
		Name:        name,
		Fields:      JSONMap(tb, fields),
	}
	if err := tx.WithContext(ctx).Create(b).Error; err != nil {
		tb.Fatalf("seed brand: %v", err)
	}
	return b
}

func SeedCampaign(tb testing.TB, ctx context.Context, tx *gorm.DB, workspaceID uuid.UUID, name string, fields map[string]any) *types.Campaign {
	tb.Helper()
	c := &types.Campaign{
		ID:          uuid.New(),
		WorkspaceID: workspaceID,
		Name:        name,
		Fields:      JSONMap(tb, fields),
	}
	if err := tx.WithContext(ctx).Create(c).Error; err != nil {
		tb.Fatalf("seed campaign: %v", err)
	}
	return c
}

package repos

import (
	"context"
	"errors"
	"testing"

	"github.com/google/uuid"

	"github.com/calliopehq/persona-backend/internal/repos/testutil"
)

func TestContextSourceRepoFetchPersona(t *testing.T) {
	db := testutil.DB(t)
	ctx := context.Background()
	repo := NewContextSourceRepo(db, testutil.Logger(t))

	ws := uuid.New()
	persona := testutil.SeedPersona(t, ctx, db, ws, "Maya")

	record, err := repo.Fetch(ctx, nil, ws, "persona", persona.ID)
	if err != nil {
		t.Fatalf("Fetch: %v", err)
	}
	if record["name"] != "Maya" {
		t.Fatalf("expected name merged into record, got %v", record["name"])
	}
	if record["archetype"] != "Skeptical Buyer" {
		t.Fatalf("expected archetype merged into record, got %v", record["archetype"])
	}
	if record["occupation"] != "Designer" {
		t.Fatalf("expected attribute fields flattened, got %v", record["occupation"])
	}
}

func TestContextSourceRepoFetchScopesAndValidates(t *testing.T) {
	db := testutil.DB(t)
	ctx := context.Background()
	repo := NewContextSourceRepo(db, testutil.Logger(t))

	ws := uuid.New()
	brand := testutil.SeedBrand(t, ctx, db, ws, "Acme", map[string]any{"mission": "Build useful things"})

	record, err := repo.Fetch(ctx, nil, ws, "brand", brand.ID)
	if err != nil {
		t.Fatalf("Fetch brand: %v", err)
	}
	if record["name"] != "Acme" || record["mission"] != "Build useful things" {
		t.Fatalf("unexpected brand record: %v", record)
	}

	if _, err := repo.Fetch(ctx, nil, uuid.New(), "brand", brand.ID); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound across workspaces, got %v", err)
	}
	if _, err := repo.Fetch(ctx, nil, ws, "unknown", brand.ID); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound for unknown source type, got %v", err)
	}
}

func TestContextSourceRepoApplySnapshot(t *testing.T) {
	db := testutil.DB(t)
	ctx := context.Background()
	repo := NewContextSourceRepo(db, testutil.Logger(t))

	ws := uuid.New()
	campaign := testutil.SeedCampaign(t, ctx, db, ws, "Launch", map[string]any{"objective": "awareness"})

	err := repo.ApplySnapshot(ctx, nil, ws, "campaign", campaign.ID, map[string]any{
		"name":      "Relaunch",
		"objective": "conversion",
		"audience":  "existing customers",
	})
	if err != nil {
		t.Fatalf("ApplySnapshot: %v", err)
	}

	record, err := repo.Fetch(ctx, nil, ws, "campaign", campaign.ID)
	if err != nil {
		t.Fatalf("Fetch after apply: %v", err)
	}
	if record["name"] != "Relaunch" {
		t.Fatalf("expected name updated, got %v", record["name"])
	}
	if record["objective"] != "conversion" || record["audience"] != "existing customers" {
		t.Fatalf("expected fields replaced, got %v", record)
	}

	if err := repo.ApplySnapshot(ctx, nil, ws, "campaign", uuid.New(), map[string]any{"name": "x"}); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound for missing row, got %v", err)
	}
}

package repos

import (
	"context"
	"errors"
	"testing"

	"github.com/google/uuid"

	"github.com/calliopehq/persona-backend/internal/repos/testutil"
	"github.com/calliopehq/persona-backend/internal/types"
)

func strPtr(s string) *string { return &s }

func TestChatConfigRepoScopeMatching(t *testing.T) {
	db := testutil.DB(t)
	ctx := context.Background()
	repo := NewChatConfigRepo(db, testutil.Logger(t))

	ws := uuid.New()

	typeLevel, err := repo.Upsert(ctx, nil, &types.ChatConfig{
		WorkspaceID:  ws,
		ItemType:     "persona",
		SystemPrompt: "type-level prompt",
	})
	if err != nil {
		t.Fatalf("Upsert type-level: %v", err)
	}
	subtyped, err := repo.Upsert(ctx, nil, &types.ChatConfig{
		WorkspaceID:  ws,
		ItemType:     "persona",
		ItemSubtype:  strPtr("interview"),
		SystemPrompt: "interview prompt",
	})
	if err != nil {
		t.Fatalf("Upsert subtyped: %v", err)
	}
	if typeLevel.ID == subtyped.ID {
		t.Fatalf("expected distinct rows for distinct scopes")
	}

	got, err := repo.GetByScope(ctx, nil, ws, "persona", nil)
	if err != nil {
		t.Fatalf("GetByScope nil subtype: %v", err)
	}
	if got.SystemPrompt != "type-level prompt" {
		t.Fatalf("nil subtype matched wrong row: %q", got.SystemPrompt)
	}

	got, err = repo.GetByScope(ctx, nil, ws, "persona", strPtr("interview"))
	if err != nil {
		t.Fatalf("GetByScope interview: %v", err)
	}
	if got.SystemPrompt != "interview prompt" {
		t.Fatalf("subtype matched wrong row: %q", got.SystemPrompt)
	}

	_, err = repo.GetByScope(ctx, nil, ws, "persona", strPtr("exploration"))
	if !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound for unstored subtype, got %v", err)
	}
}

func TestChatConfigRepoUpsertPreservesIdentity(t *testing.T) {
	db := testutil.DB(t)
	ctx := context.Background()
	repo := NewChatConfigRepo(db, testutil.Logger(t))

	ws := uuid.New()
	created, err := repo.Upsert(ctx, nil, &types.ChatConfig{
		WorkspaceID: ws,
		ItemType:    "campaign",
		Model:       "gpt-4o-mini",
	})
	if err != nil {
		t.Fatalf("Upsert create: %v", err)
	}

	updated, err := repo.Upsert(ctx, nil, &types.ChatConfig{
		WorkspaceID: ws,
		ItemType:    "campaign",
		Model:       "gpt-4o",
	})
	if err != nil {
		t.Fatalf("Upsert update: %v", err)
	}
	if updated.ID != created.ID {
		t.Fatalf("Upsert replaced the row instead of updating it")
	}
	if !updated.CreatedAt.Equal(created.CreatedAt) {
		t.Fatalf("Upsert changed CreatedAt")
	}

	got, err := repo.GetByScope(ctx, nil, ws, "campaign", nil)
	if err != nil {
		t.Fatalf("GetByScope: %v", err)
	}
	if got.Model != "gpt-4o" {
		t.Fatalf("expected updated model, got %q", got.Model)
	}
}

func TestChatConfigRepoListKnowledgeOrder(t *testing.T) {
	db := testutil.DB(t)
	ctx := context.Background()
	repo := NewChatConfigRepo(db, testutil.Logger(t))

	ws := uuid.New()
	cfg, err := repo.Upsert(ctx, nil, &types.ChatConfig{WorkspaceID: ws, ItemType: "persona"})
	if err != nil {
		t.Fatalf("Upsert: %v", err)
	}

	for _, e := range []types.KnowledgeEntry{
		{ConfigID: cfg.ID, Position: 2, Title: "second"},
		{ConfigID: cfg.ID, Position: 1, Title: "first"},
		{ConfigID: cfg.ID, Position: 3, Title: "third"},
	} {
		entry := e
		if err := db.WithContext(ctx).Create(&entry).Error; err != nil {
			t.Fatalf("seed knowledge: %v", err)
		}
	}

	entries, err := repo.ListKnowledge(ctx, nil, cfg.ID)
	if err != nil {
		t.Fatalf("ListKnowledge: %v", err)
	}
	if len(entries) != 3 {
		t.Fatalf("expected 3 entries, got %d", len(entries))
	}
	for i, want := range []string{"first", "second", "third"} {
		if entries[i].Title != want {
			t.Fatalf("entry %d: expected %q, got %q", i, want, entries[i].Title)
		}
	}
}

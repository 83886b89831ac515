package services

import (
	"context"
	"strings"
	"testing"

	"github.com/google/uuid"

	"github.com/calliopehq/persona-backend/internal/repos"
	"github.com/calliopehq/persona-backend/internal/repos/testutil"
	"github.com/calliopehq/persona-backend/internal/types"
)

func strPtr(s string) *string { return &s }

func newConfigService(t *testing.T) (ChatConfigService, repos.ChatConfigRepo) {
	t.Helper()
	db := testutil.DB(t)
	repo := repos.NewChatConfigRepo(db, testutil.Logger(t))
	return NewChatConfigService(db, testutil.Logger(t), repo, nil), repo
}

func TestResolveFallsBackToDefaults(t *testing.T) {
	svc, _ := newConfigService(t)
	ctx := context.Background()
	ws := uuid.New()

	cfg := svc.Resolve(ctx, ws, "persona", nil)
	if cfg.Temperature != 0.8 {
		t.Fatalf("expected persona default temperature, got %v", cfg.Temperature)
	}
	if !strings.Contains(cfg.SystemPrompt, "{{persona_name}}") {
		t.Fatalf("expected default system prompt template, got %q", cfg.SystemPrompt)
	}

	interview := svc.Resolve(ctx, ws, "persona", strPtr("interview"))
	if interview.Temperature != 0.6 {
		t.Fatalf("expected interview default temperature, got %v", interview.Temperature)
	}

	unknown := svc.Resolve(ctx, ws, "widget", strPtr("whatever"))
	if unknown.MaxTokens != 1024 || len(unknown.Dimensions) == 0 {
		t.Fatalf("expected generic default for unknown scope, got %+v", unknown)
	}
}

func TestResolvePrefersExactThenTypeLevel(t *testing.T) {
	svc, repo := newConfigService(t)
	ctx := context.Background()
	ws := uuid.New()

	if _, err := repo.Upsert(ctx, nil, &types.ChatConfig{
		WorkspaceID:  ws,
		ItemType:     "persona",
		SystemPrompt: "type-level prompt",
		Temperature:  0.5,
		MaxTokens:    512,
	}); err != nil {
		t.Fatalf("Upsert type-level: %v", err)
	}

	// The subtype has no exact row, so the type-level row applies.
	cfg := svc.Resolve(ctx, ws, "persona", strPtr("interview"))
	if cfg.SystemPrompt != "type-level prompt" {
		t.Fatalf("expected type-level fallback, got %q", cfg.SystemPrompt)
	}

	if _, err := repo.Upsert(ctx, nil, &types.ChatConfig{
		WorkspaceID:  ws,
		ItemType:     "persona",
		ItemSubtype:  strPtr("interview"),
		SystemPrompt: "interview prompt",
		Temperature:  0.4,
		MaxTokens:    256,
	}); err != nil {
		t.Fatalf("Upsert exact: %v", err)
	}

	cfg = svc.Resolve(ctx, ws, "persona", strPtr("interview"))
	if cfg.SystemPrompt != "interview prompt" {
		t.Fatalf("expected exact row to win, got %q", cfg.SystemPrompt)
	}
	if cfg.MaxTokens != 256 {
		t.Fatalf("expected stored max tokens, got %d", cfg.MaxTokens)
	}
}

func TestResolveMergesStoredWithDefaults(t *testing.T) {
	svc, repo := newConfigService(t)
	ctx := context.Background()
	ws := uuid.New()

	// The stored row sets only the model; blank prompts come from the
	// default tier.
	if _, err := repo.Upsert(ctx, nil, &types.ChatConfig{
		WorkspaceID: ws,
		ItemType:    "persona",
		Model:       "gpt-4o",
		Temperature: 0.9,
	}); err != nil {
		t.Fatalf("Upsert: %v", err)
	}

	cfg := svc.Resolve(ctx, ws, "persona", nil)
	if cfg.Model != "gpt-4o" {
		t.Fatalf("expected stored model, got %q", cfg.Model)
	}
	if cfg.Temperature != 0.9 {
		t.Fatalf("expected stored temperature, got %v", cfg.Temperature)
	}
	if !strings.Contains(cfg.SystemPrompt, "{{persona_name}}") {
		t.Fatalf("expected default system prompt for blank stored prompt, got %q", cfg.SystemPrompt)
	}
	if cfg.MaxTokens != 1024 {
		t.Fatalf("expected default max tokens for zero stored value, got %d", cfg.MaxTokens)
	}
}

func TestResolveAppendsKnowledge(t *testing.T) {
	db := testutil.DB(t)
	repo := repos.NewChatConfigRepo(db, testutil.Logger(t))
	svc := NewChatConfigService(db, testutil.Logger(t), repo, nil)
	ctx := context.Background()
	ws := uuid.New()

	cfg, err := repo.Upsert(ctx, nil, &types.ChatConfig{WorkspaceID: ws, ItemType: "persona"})
	if err != nil {
		t.Fatalf("Upsert: %v", err)
	}
	for _, e := range []types.KnowledgeEntry{
		{ConfigID: cfg.ID, Position: 1, Title: "Pricing", Content: "Subscription only."},
		{ConfigID: cfg.ID, Position: 2, Title: "Launch date", Content: "March."},
	} {
		entry := e
		if err := db.WithContext(ctx).Create(&entry).Error; err != nil {
			t.Fatalf("seed knowledge: %v", err)
		}
	}

	resolved := svc.Resolve(ctx, ws, "persona", nil)
	if !strings.Contains(resolved.Knowledge, "Pricing") || !strings.Contains(resolved.Knowledge, "Subscription only.") {
		t.Fatalf("expected knowledge entries rendered, got %q", resolved.Knowledge)
	}
	if strings.Index(resolved.Knowledge, "Pricing") > strings.Index(resolved.Knowledge, "Launch date") {
		t.Fatalf("expected position order preserved, got %q", resolved.Knowledge)
	}
}

func TestResolveIsDeterministic(t *testing.T) {
	svc, _ := newConfigService(t)
	ctx := context.Background()
	ws := uuid.New()

	first := svc.Resolve(ctx, ws, "persona", strPtr("interview"))
	for i := 0; i < 5; i++ {
		again := svc.Resolve(ctx, ws, "persona", strPtr("interview"))
		if again.SystemPrompt != first.SystemPrompt || again.Temperature != first.Temperature {
			t.Fatalf("resolution changed between identical calls")
		}
	}
}

func TestSaveRoundTrips(t *testing.T) {
	svc, _ := newConfigService(t)
	ctx := context.Background()
	ws := uuid.New()

	saved, err := svc.Save(ctx, &types.ChatConfig{
		WorkspaceID:  ws,
		ItemType:     "persona",
		SystemPrompt: "saved prompt",
	})
	if err != nil {
		t.Fatalf("Save: %v", err)
	}
	if saved.ID == uuid.Nil {
		t.Fatalf("expected id assigned on save")
	}

	resolved := svc.Resolve(ctx, ws, "persona", nil)
	if resolved.SystemPrompt != "saved prompt" {
		t.Fatalf("expected saved prompt resolved, got %q", resolved.SystemPrompt)
	}
}

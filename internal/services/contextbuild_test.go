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

func TestSerializeRecordDeclaredOrderAndOmission(t *testing.T) {
	svc := NewContextBuildService(testutil.Logger(t), nil)

	text := svc.SerializeRecord("persona", map[string]any{
		"occupation": "Designer",
		"name":       "Maya",
		"bio":        "",
		"zzz_custom": "odd field",
		"goals":      []any{"save time", "look good"},
	})

	// Declared fields first, declaration order, regardless of map order.
	nameIdx := strings.Index(text, "Name: Maya")
	occIdx := strings.Index(text, "Occupation: Designer")
	customIdx := strings.Index(text, "Zzz custom: odd field")
	if nameIdx < 0 || occIdx < 0 || customIdx < 0 {
		t.Fatalf("missing expected fields in:\n%s", text)
	}
	if !(nameIdx < occIdx && occIdx < customIdx) {
		t.Fatalf("wrong field order in:\n%s", text)
	}

	// Empty values render nothing, not an empty labeled line.
	if strings.Contains(text, "Bio") {
		t.Fatalf("empty field rendered:\n%s", text)
	}
	if !strings.Contains(text, "- save time") {
		t.Fatalf("list field not rendered as bullets:\n%s", text)
	}
}

func TestSerializeRecordTruncatesLongFields(t *testing.T) {
	svc := NewContextBuildService(testutil.Logger(t), nil)

	long := strings.Repeat("x", longFieldLimit+200)
	text := svc.SerializeRecord("brand", map[string]any{"mission": long})

	if !strings.Contains(text, truncationMarker) {
		t.Fatalf("expected truncation marker in:\n%s", text[:120])
	}
	if strings.Contains(text, long) {
		t.Fatalf("long field rendered untruncated")
	}
}

func TestSerializeRecordEmpty(t *testing.T) {
	svc := NewContextBuildService(testutil.Logger(t), nil)
	if got := svc.SerializeRecord("brand", map[string]any{}); got != "" {
		t.Fatalf("expected empty output for empty record, got %q", got)
	}
}

func TestSerializeRecordSkipsAllBlankMapField(t *testing.T) {
	svc := NewContextBuildService(testutil.Logger(t), nil)

	text := svc.SerializeRecord("persona", map[string]any{
		"name":         "Maya",
		"media_habits": map[string]any{"podcasts": "  ", "tv": ""},
	})

	if strings.Contains(text, "Media habits") {
		t.Fatalf("all-blank map field rendered a bare header:\n%s", text)
	}
	if !strings.Contains(text, "Name: Maya") {
		t.Fatalf("missing name field:\n%s", text)
	}
}

func TestBuildBlocksPreservesSelectionOrder(t *testing.T) {
	db := testutil.DB(t)
	ctx := context.Background()
	ws := uuid.New()

	brand := testutil.SeedBrand(t, ctx, db, ws, "Acme", map[string]any{"mission": "Useful things"})
	campaign := testutil.SeedCampaign(t, ctx, db, ws, "Spring Launch", map[string]any{"objective": "Awareness"})
	persona := testutil.SeedPersona(t, ctx, db, ws, "Maya")

	sourceRepo := repos.NewContextSourceRepo(db, testutil.Logger(t))
	svc := NewContextBuildService(testutil.Logger(t), sourceRepo)

	blocks := svc.BuildBlocks(ctx, ws, []ContextItem{
		{SourceType: "campaign", SourceID: campaign.ID},
		{SourceType: "persona", SourceID: persona.ID},
		{SourceType: "brand", SourceID: brand.ID},
	})
	if len(blocks) != 3 {
		t.Fatalf("expected 3 blocks, got %d", len(blocks))
	}
	got := []string{blocks[0].SourceType, blocks[1].SourceType, blocks[2].SourceType}
	want := []string{"campaign", "persona", "brand"}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("selection order not preserved: got %v, want %v", got, want)
		}
	}
}

func TestBuildBlocksSkipsMissingSources(t *testing.T) {
	db := testutil.DB(t)
	ctx := context.Background()
	ws := uuid.New()

	brand := testutil.SeedBrand(t, ctx, db, ws, "Acme", map[string]any{"mission": "Useful things"})
	sourceRepo := repos.NewContextSourceRepo(db, testutil.Logger(t))
	svc := NewContextBuildService(testutil.Logger(t), sourceRepo)

	blocks := svc.BuildBlocks(ctx, ws, []ContextItem{
		{SourceType: "brand", SourceID: brand.ID},
		{SourceType: "campaign", SourceID: uuid.New()},
	})
	if len(blocks) != 1 {
		t.Fatalf("expected 1 block, got %d", len(blocks))
	}
	if blocks[0].SourceType != "brand" || !strings.Contains(blocks[0].Text, "Useful things") {
		t.Fatalf("unexpected block: %+v", blocks[0])
	}
}

func TestBuildBlocksDropsLowestPriorityOverCap(t *testing.T) {
	db := testutil.DB(t)
	ctx := context.Background()
	ws := uuid.New()

	// Two sources big enough that together they exceed the total cap but
	// each fits alone. The strategy block has the lower priority and
	// must be the one dropped.
	big := strings.Repeat("m ", 300) // stays under the per-field limit
	brand := testutil.SeedBrand(t, ctx, db, ws, "Acme", map[string]any{
		"mission": big, "voice": big, "values": big, "positioning": big,
		"extra_a": big, "extra_b": big, "extra_c": big, "extra_d": big,
	})
	strategy := &types.Strategy{
		ID:          uuid.New(),
		WorkspaceID: ws,
		Name:        "Q3 plan",
		Fields: testutil.JSONMap(t, map[string]any{
			"summary": big, "pillars": big, "target_segments": big,
			"extra_a": big, "extra_b": big, "extra_c": big, "extra_d": big,
		}),
	}
	if err := db.WithContext(ctx).Create(strategy).Error; err != nil {
		t.Fatalf("seed strategy: %v", err)
	}

	sourceRepo := repos.NewContextSourceRepo(db, testutil.Logger(t))
	svc := NewContextBuildService(testutil.Logger(t), sourceRepo)

	blocks := svc.BuildBlocks(ctx, ws, []ContextItem{
		{SourceType: "strategy", SourceID: strategy.ID},
		{SourceType: "brand", SourceID: brand.ID},
	})
	if len(blocks) != 1 {
		t.Fatalf("expected 1 surviving block, got %d", len(blocks))
	}
	if blocks[0].SourceType != "brand" {
		t.Fatalf("expected the lower-priority strategy block dropped, kept %q", blocks[0].SourceType)
	}
	// Surviving block is intact, not cut mid-text.
	if strings.Contains(blocks[0].Text, truncationMarker) {
		t.Fatalf("block was cut instead of dropped whole")
	}
}

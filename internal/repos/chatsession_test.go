package repos

import (
	"context"
	"testing"

	"github.com/google/uuid"

	"github.com/calliopehq/persona-backend/internal/repos/testutil"
	"github.com/calliopehq/persona-backend/internal/types"
)

func TestChatSessionRepoListByPersonaCountsMessages(t *testing.T) {
	db := testutil.DB(t)
	ctx := context.Background()

	ws := uuid.New()
	persona := testutil.SeedPersona(t, ctx, db, ws, "Maya")
	userID := uuid.New()

	sessions := NewChatSessionRepo(db, testutil.Logger(t))
	messages := NewChatMessageRepo(db, testutil.Logger(t))

	withMessages := testutil.SeedSession(t, ctx, db, ws, persona.ID, userID)
	empty := testutil.SeedSession(t, ctx, db, ws, persona.ID, userID)

	for i := 0; i < 3; i++ {
		if _, err := messages.Append(ctx, nil, &types.ChatMessage{
			SessionID: withMessages.ID,
			Role:      types.ChatRoleUser,
			Content:   "hello",
		}); err != nil {
			t.Fatalf("Append: %v", err)
		}
	}

	listed, err := sessions.ListByPersona(ctx, nil, ws, persona.ID)
	if err != nil {
		t.Fatalf("ListByPersona: %v", err)
	}
	if len(listed) != 2 {
		t.Fatalf("ListByPersona: expected 2 sessions, got %d", len(listed))
	}
	counts := map[uuid.UUID]int64{}
	for _, s := range listed {
		counts[s.ID] = s.MessageCount
	}
	if counts[withMessages.ID] != 3 {
		t.Fatalf("expected 3 messages on first session, got %d", counts[withMessages.ID])
	}
	if counts[empty.ID] != 0 {
		t.Fatalf("expected 0 messages on empty session, got %d", counts[empty.ID])
	}
}

func TestChatSessionRepoListByPersonaCountsInsights(t *testing.T) {
	db := testutil.DB(t)
	ctx := context.Background()

	ws := uuid.New()
	persona := testutil.SeedPersona(t, ctx, db, ws, "Maya")
	userID := uuid.New()

	sessions := NewChatSessionRepo(db, testutil.Logger(t))
	insights := NewSessionInsightRepo(db, testutil.Logger(t))

	withInsights := testutil.SeedSession(t, ctx, db, ws, persona.ID, userID)
	without := testutil.SeedSession(t, ctx, db, ws, persona.ID, userID)

	if _, err := insights.Create(ctx, nil, []*types.SessionInsight{
		{SessionID: withInsights.ID, MessageID: uuid.New(), Kind: "observation", Text: "Skeptical of urgency tactics"},
		{SessionID: withInsights.ID, MessageID: uuid.New(), Kind: "objection", Text: "Price anchoring reads as manipulative"},
	}); err != nil {
		t.Fatalf("Create: %v", err)
	}

	listed, err := sessions.ListByPersona(ctx, nil, ws, persona.ID)
	if err != nil {
		t.Fatalf("ListByPersona: %v", err)
	}
	counts := map[uuid.UUID]int64{}
	for _, s := range listed {
		counts[s.ID] = s.InsightCount
	}
	if counts[withInsights.ID] != 2 {
		t.Fatalf("expected 2 insights, got %d", counts[withInsights.ID])
	}
	if counts[without.ID] != 0 {
		t.Fatalf("expected 0 insights, got %d", counts[without.ID])
	}
}

func TestChatSessionRepoListByPersonaScopesWorkspace(t *testing.T) {
	db := testutil.DB(t)
	ctx := context.Background()

	ws := uuid.New()
	otherWs := uuid.New()
	persona := testutil.SeedPersona(t, ctx, db, ws, "Maya")
	testutil.SeedSession(t, ctx, db, ws, persona.ID, uuid.New())

	sessions := NewChatSessionRepo(db, testutil.Logger(t))
	listed, err := sessions.ListByPersona(ctx, nil, otherWs, persona.ID)
	if err != nil {
		t.Fatalf("ListByPersona: %v", err)
	}
	if len(listed) != 0 {
		t.Fatalf("expected no sessions in the other workspace, got %d", len(listed))
	}
}

func TestChatSessionRepoSetTitle(t *testing.T) {
	db := testutil.DB(t)
	ctx := context.Background()

	ws := uuid.New()
	persona := testutil.SeedPersona(t, ctx, db, ws, "Maya")
	session := testutil.SeedSession(t, ctx, db, ws, persona.ID, uuid.New())

	sessions := NewChatSessionRepo(db, testutil.Logger(t))
	if err := sessions.SetTitle(ctx, nil, session.ID, "What do you value?"); err != nil {
		t.Fatalf("SetTitle: %v", err)
	}
	got, err := sessions.GetByID(ctx, nil, session.ID)
	if err != nil {
		t.Fatalf("GetByID: %v", err)
	}
	if got.Title != "What do you value?" {
		t.Fatalf("expected title set, got %q", got.Title)
	}
}

package services

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/calliopehq/persona-backend/internal/ai"
	"github.com/calliopehq/persona-backend/internal/apierr"
	"github.com/calliopehq/persona-backend/internal/logger"
	"github.com/calliopehq/persona-backend/internal/repos"
	"github.com/calliopehq/persona-backend/internal/types"
)

const (
	// SessionMessageCeiling caps messages per session. The write that
	// would exceed it creates no row.
	SessionMessageCeiling = 50

	// TitleTriggerUserMessages is how many user messages a session needs
	// before a title is derived from the first one.
	TitleTriggerUserMessages = 2

	titleMaxRunes = 60
)

// ProviderSelector maps a resolved provider name to an implementation.
// Kept as a function so the selection policy stays outside this service
// and tests can script providers.
type ProviderSelector func(name string) ai.Provider

// StreamSink receives stream events in order. Send errors mean the
// client went away; the orchestrator swallows them and finishes its
// side effects regardless.
type StreamSink interface {
	Send(event any) error
}

// MetaEvent trails the provider's terminal event and carries the ids
// the caller needs to reconcile optimistic UI state.
type MetaEvent struct {
	Meta          bool      `json:"meta"`
	MessageID     uuid.UUID `json:"messageId"`
	UserMessageID uuid.UUID `json:"userMessageId"`
	SessionID     uuid.UUID `json:"sessionId"`
}

type StartSessionResult struct {
	Session  *types.ChatSession `json:"session"`
	Greeting *types.ChatMessage `json:"greeting"`
}

type StreamTurnRequest struct {
	WorkspaceID uuid.UUID
	UserID      uuid.UUID
	PersonaID   uuid.UUID
	SessionID   *uuid.UUID
	Message     string
	Mode        string
	Context     []ContextItem
}

type ChatService interface {
	StartSession(ctx context.Context, workspaceID, userID, personaID uuid.UUID, mode string) (*StartSessionResult, error)
	ListSessions(ctx context.Context, workspaceID, personaID uuid.UUID) ([]repos.SessionWithCounts, error)
	ListMessages(ctx context.Context, workspaceID, userID, sessionID uuid.UUID) ([]types.ChatMessage, error)
	StreamTurn(ctx context.Context, req StreamTurnRequest, sink StreamSink) error
}

type chatService struct {
	db             *gorm.DB
	log            *logger.Logger
	sessionRepo    repos.ChatSessionRepo
	messageRepo    repos.ChatMessageRepo
	personaRepo    repos.PersonaRepo
	sourceRepo     repos.ContextSourceRepo
	insightRepo    repos.SessionInsightRepo
	configService  ChatConfigService
	contextService ContextBuildService
	promptService  PromptBuildService
	selectProvider ProviderSelector
}

func NewChatService(
	db *gorm.DB,
	log *logger.Logger,
	sessionRepo repos.ChatSessionRepo,
	messageRepo repos.ChatMessageRepo,
	personaRepo repos.PersonaRepo,
	sourceRepo repos.ContextSourceRepo,
	insightRepo repos.SessionInsightRepo,
	configService ChatConfigService,
	contextService ContextBuildService,
	promptService PromptBuildService,
	selectProvider ProviderSelector,
) ChatService {
	return &chatService{
		db:             db,
		log:            log.With("service", "ChatService"),
		sessionRepo:    sessionRepo,
		messageRepo:    messageRepo,
		personaRepo:    personaRepo,
		sourceRepo:     sourceRepo,
		insightRepo:    insightRepo,
		configService:  configService,
		contextService: contextService,
		promptService:  promptService,
		selectProvider: selectProvider,
	}
}

func (s *chatService) StartSession(ctx context.Context, workspaceID, userID, personaID uuid.UUID, mode string) (*StartSessionResult, error) {
	persona, err := s.personaRepo.GetByID(ctx, nil, workspaceID, personaID)
	if err != nil {
		if errors.Is(err, repos.ErrNotFound) {
			return nil, apierr.NotFound(fmt.Errorf("persona %s not found", personaID))
		}
		return nil, err
	}

	if strings.TrimSpace(mode) == "" {
		mode = types.ChatModeFree
	}
	session, err := s.sessionRepo.Create(ctx, nil, &types.ChatSession{
		WorkspaceID: workspaceID,
		PersonaID:   personaID,
		UserID:      userID,
		Mode:        mode,
	})
	if err != nil {
		return nil, err
	}

	cfg := s.configService.Resolve(ctx, workspaceID, "persona", subtypeForMode(mode))
	subject := s.subjectRecord(ctx, workspaceID, persona)
	greetingPrompt := s.promptService.Build(cfg.GreetingPrompt, subject, nil, cfg.Knowledge, workspaceID)

	provider := s.selectProvider(cfg.Provider)
	greetingText, err := provider.GenerateText(ctx, greetingPrompt, ai.GenerateOpts{
		SystemPrompt: s.promptService.Build(cfg.SystemPrompt, subject, nil, cfg.Knowledge, workspaceID),
		Model:        cfg.Model,
		MaxTokens:    cfg.MaxTokens,
		Temperature:  cfg.Temperature,
	})
	if err != nil {
		s.log.Warn("Greeting generation failed, using offline fallback", "session_id", session.ID, "error", err)
		greetingText, _ = ai.NewOfflineProvider().GenerateText(ctx, "greeting", ai.GenerateOpts{})
	}

	greeting, err := s.appendMessage(ctx, session.ID, &types.ChatMessage{
		SessionID: session.ID,
		Role:      types.ChatRoleAssistant,
		Content:   greetingText,
	})
	if err != nil {
		return nil, err
	}

	return &StartSessionResult{Session: session, Greeting: greeting}, nil
}

func (s *chatService) ListSessions(ctx context.Context, workspaceID, personaID uuid.UUID) ([]repos.SessionWithCounts, error) {
	return s.sessionRepo.ListByPersona(ctx, nil, workspaceID, personaID)
}

func (s *chatService) ListMessages(ctx context.Context, workspaceID, userID, sessionID uuid.UUID) ([]types.ChatMessage, error) {
	if _, err := s.ownedSession(ctx, workspaceID, sessionID); err != nil {
		return nil, err
	}
	return s.messageRepo.ListBySession(ctx, nil, sessionID)
}

// StreamTurn runs one conversational turn: persist the user message,
// assemble the system prompt, stream the provider response through the
// sink untouched, and on the terminal event persist the assistant
// message, emit the metadata event, and maybe derive a title.
func (s *chatService) StreamTurn(ctx context.Context, req StreamTurnRequest, sink StreamSink) error {
	message := strings.TrimSpace(req.Message)
	if message == "" {
		return apierr.InvalidRequest(fmt.Errorf("message must not be empty"))
	}

	persona, err := s.personaRepo.GetByID(ctx, nil, req.WorkspaceID, req.PersonaID)
	if err != nil {
		if errors.Is(err, repos.ErrNotFound) {
			return apierr.NotFound(fmt.Errorf("persona %s not found", req.PersonaID))
		}
		return err
	}

	session, err := s.resolveSession(ctx, req)
	if err != nil {
		return err
	}

	// History is everything before this turn's user message.
	history, err := s.messageRepo.ListBySession(ctx, nil, session.ID)
	if err != nil {
		return err
	}

	userMsg, err := s.appendMessage(ctx, session.ID, &types.ChatMessage{
		SessionID: session.ID,
		Role:      types.ChatRoleUser,
		Content:   message,
	})
	if err != nil {
		return err
	}

	cfg := s.configService.Resolve(ctx, req.WorkspaceID, "persona", subtypeForMode(session.Mode))
	subject := s.subjectRecord(ctx, req.WorkspaceID, persona)
	blocks := s.contextService.BuildBlocks(ctx, req.WorkspaceID, filterAllowed(req.Context, cfg.ContextSourceTypes))
	systemPrompt := s.promptService.Build(cfg.SystemPrompt, subject, blocks, cfg.Knowledge, req.WorkspaceID)

	provider := s.selectProvider(cfg.Provider)
	stream, err := provider.StreamChat(ctx, ai.StreamRequest{
		SystemPrompt: systemPrompt,
		History:      toProviderHistory(history),
		Message:      message,
		Model:        cfg.Model,
		MaxTokens:    cfg.MaxTokens,
		Temperature:  cfg.Temperature,
	})
	if err != nil {
		return apierr.From(err)
	}

	s.pumpStream(ctx, session, userMsg, provider, stream, sink)
	return nil
}

// pumpStream forwards every event immediately and runs the completion
// side effects when the terminal event arrives. Sink errors are
// swallowed: a disconnected client must not stop persistence once the
// provider finishes.
func (s *chatService) pumpStream(ctx context.Context, session *types.ChatSession, userMsg *types.ChatMessage, provider ai.Provider, stream <-chan ai.StreamEvent, sink StreamSink) {
	sinkAlive := true
	send := func(event any) {
		if !sinkAlive {
			return
		}
		if err := sink.Send(event); err != nil {
			s.log.Debug("Stream sink closed, continuing without forwarding", "session_id", session.ID, "error", err)
			sinkAlive = false
		}
	}

	for event := range stream {
		send(event)
		if !event.Done {
			continue
		}

		// Persistence survives client cancellation once the provider has
		// completed.
		persistCtx := context.WithoutCancel(ctx)

		assistantMsg := &types.ChatMessage{
			SessionID: session.ID,
			Role:      types.ChatRoleAssistant,
			Content:   event.FullText,
		}
		if event.Usage != nil {
			assistantMsg.PromptTokens = event.Usage.PromptTokens
			assistantMsg.CompletionTokens = event.Usage.CompletionTokens
		}
		persisted, err := s.appendMessage(persistCtx, session.ID, assistantMsg)
		if err != nil {
			// Known reconciliation gap: the stream has already been
			// delivered and is not retracted.
			s.log.Error("Failed to persist assistant message after completed stream", "session_id", session.ID, "error", err)
			return
		}

		send(MetaEvent{
			Meta:          true,
			MessageID:     persisted.ID,
			UserMessageID: userMsg.ID,
			SessionID:     session.ID,
		})

		if err := s.sessionRepo.Touch(persistCtx, nil, session.ID); err != nil {
			s.log.Warn("Failed to touch session", "session_id", session.ID, "error", err)
		}
		s.maybeSetTitle(persistCtx, session)
		s.recordInsights(persistCtx, provider, session, persisted)
	}
}

// recordInsights runs the provider analysis over the completed
// assistant turn and persists whatever insights it yields. Best-effort:
// a provider failure or an empty payload is not a turn failure.
func (s *chatService) recordInsights(ctx context.Context, provider ai.Provider, session *types.ChatSession, msg *types.ChatMessage) {
	if strings.TrimSpace(msg.Content) == "" {
		return
	}
	payload, err := provider.Analyze(ctx, msg.Content, map[string]any{
		"session_mode": session.Mode,
	})
	if err != nil {
		s.log.Warn("Insight analysis failed", "session_id", session.ID, "error", err)
		return
	}
	parsed := parseInsights(payload["insights"])
	if len(parsed) == 0 {
		return
	}
	rows := make([]*types.SessionInsight, 0, len(parsed))
	for _, in := range parsed {
		rows = append(rows, &types.SessionInsight{
			SessionID: session.ID,
			MessageID: msg.ID,
			Kind:      in.kind,
			Text:      in.text,
		})
	}
	if _, err := s.insightRepo.Create(ctx, nil, rows); err != nil {
		s.log.Warn("Failed to persist session insights", "session_id", session.ID, "error", err)
	}
}

type parsedInsight struct {
	kind string
	text string
}

// parseInsights accepts the loose shapes providers emit for the
// "insights" key: a list of strings, or a list of objects carrying
// text/summary and an optional kind/type.
func parseInsights(raw any) []parsedInsight {
	list, ok := raw.([]any)
	if !ok {
		return nil
	}
	out := make([]parsedInsight, 0, len(list))
	for _, el := range list {
		switch v := el.(type) {
		case string:
			if text := strings.TrimSpace(v); text != "" {
				out = append(out, parsedInsight{kind: "observation", text: text})
			}
		case map[string]any:
			text, _ := v["text"].(string)
			if text == "" {
				text, _ = v["summary"].(string)
			}
			text = strings.TrimSpace(text)
			if text == "" {
				continue
			}
			kind, _ := v["kind"].(string)
			if kind == "" {
				kind, _ = v["type"].(string)
			}
			kind = strings.TrimSpace(kind)
			if kind == "" {
				kind = "observation"
			}
			out = append(out, parsedInsight{kind: kind, text: text})
		}
	}
	return out
}

// maybeSetTitle derives a title from the first user message once the
// session has exactly TitleTriggerUserMessages user messages and no
// title yet. Later turns never overwrite an existing title.
func (s *chatService) maybeSetTitle(ctx context.Context, session *types.ChatSession) {
	current, err := s.sessionRepo.GetByID(ctx, nil, session.ID)
	if err != nil {
		s.log.Warn("Title check failed to load session", "session_id", session.ID, "error", err)
		return
	}
	if current.Title != "" {
		return
	}
	userCount, err := s.messageRepo.CountBySessionAndRole(ctx, nil, session.ID, types.ChatRoleUser)
	if err != nil {
		s.log.Warn("Title check failed to count messages", "session_id", session.ID, "error", err)
		return
	}
	if userCount != TitleTriggerUserMessages {
		return
	}
	first, err := s.messageRepo.FirstBySessionAndRole(ctx, nil, session.ID, types.ChatRoleUser)
	if err != nil {
		s.log.Warn("Title check failed to load first message", "session_id", session.ID, "error", err)
		return
	}
	title := truncateTitle(first.Content)
	if title == "" {
		return
	}
	if err := s.sessionRepo.SetTitle(ctx, nil, session.ID, title); err != nil {
		s.log.Warn("Failed to set session title", "session_id", session.ID, "error", err)
	}
}

// appendMessage is the single guarded write path: it checks the ceiling
// before every insert so no session ever exceeds it through this
// service. The check-then-insert pair is not transactionally atomic;
// one writer per session is assumed.
func (s *chatService) appendMessage(ctx context.Context, sessionID uuid.UUID, msg *types.ChatMessage) (*types.ChatMessage, error) {
	count, err := s.messageRepo.CountBySession(ctx, nil, sessionID)
	if err != nil {
		return nil, err
	}
	if count >= SessionMessageCeiling {
		return nil, apierr.LimitReached(fmt.Errorf("session %s reached the %d message limit", sessionID, SessionMessageCeiling))
	}
	return s.messageRepo.Append(ctx, nil, msg)
}

func (s *chatService) resolveSession(ctx context.Context, req StreamTurnRequest) (*types.ChatSession, error) {
	if req.SessionID == nil {
		mode := req.Mode
		if strings.TrimSpace(mode) == "" {
			mode = types.ChatModeFree
		}
		return s.sessionRepo.Create(ctx, nil, &types.ChatSession{
			WorkspaceID: req.WorkspaceID,
			PersonaID:   req.PersonaID,
			UserID:      req.UserID,
			Mode:        mode,
		})
	}
	session, err := s.ownedSession(ctx, req.WorkspaceID, *req.SessionID)
	if err != nil {
		return nil, err
	}
	if session.PersonaID != req.PersonaID {
		return nil, apierr.NotFound(fmt.Errorf("session %s does not belong to persona %s", session.ID, req.PersonaID))
	}
	return session, nil
}

func (s *chatService) ownedSession(ctx context.Context, workspaceID, sessionID uuid.UUID) (*types.ChatSession, error) {
	session, err := s.sessionRepo.GetByID(ctx, nil, sessionID)
	if err != nil {
		if errors.Is(err, repos.ErrNotFound) {
			return nil, apierr.NotFound(fmt.Errorf("session %s not found", sessionID))
		}
		return nil, err
	}
	if session.WorkspaceID != workspaceID {
		return nil, apierr.NotFound(fmt.Errorf("session %s not found", sessionID))
	}
	return session, nil
}

func (s *chatService) subjectRecord(ctx context.Context, workspaceID uuid.UUID, persona *types.Persona) map[string]any {
	record, err := s.sourceRepo.Fetch(ctx, nil, workspaceID, "persona", persona.ID)
	if err != nil {
		s.log.Warn("Subject fetch failed, using bare persona fields", "persona_id", persona.ID, "error", err)
		record = map[string]any{"name": persona.Name}
		if persona.Archetype != "" {
			record["archetype"] = persona.Archetype
		}
	}
	return record
}

func subtypeForMode(mode string) *string {
	if mode == "" || mode == types.ChatModeFree {
		return nil
	}
	return &mode
}

func filterAllowed(items []ContextItem, allowed []string) []ContextItem {
	if len(allowed) == 0 {
		return nil
	}
	allowedSet := make(map[string]bool, len(allowed))
	for _, t := range allowed {
		allowedSet[t] = true
	}
	out := make([]ContextItem, 0, len(items))
	for _, item := range items {
		if allowedSet[item.SourceType] {
			out = append(out, item)
		}
	}
	return out
}

func toProviderHistory(msgs []types.ChatMessage) []ai.Message {
	out := make([]ai.Message, 0, len(msgs))
	for _, m := range msgs {
		out = append(out, ai.Message{Role: m.Role, Content: m.Content})
	}
	return out
}

func truncateTitle(s string) string {
	s = strings.TrimSpace(s)
	runes := []rune(s)
	if len(runes) <= titleMaxRunes {
		return s
	}
	return strings.TrimSpace(string(runes[:titleMaxRunes])) + "…"
}

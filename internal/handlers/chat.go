package handlers

import (
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/calliopehq/persona-backend/internal/apierr"
	"github.com/calliopehq/persona-backend/internal/logger"
	"github.com/calliopehq/persona-backend/internal/middleware"
	"github.com/calliopehq/persona-backend/internal/services"
	"github.com/calliopehq/persona-backend/internal/sse"
)

type ChatHandler struct {
	log         *logger.Logger
	chatService services.ChatService
}

func NewChatHandler(log *logger.Logger, chatService services.ChatService) *ChatHandler {
	return &ChatHandler{log: log.With("handler", "ChatHandler"), chatService: chatService}
}

type startSessionRequest struct {
	Mode string `json:"mode"`
}

func (h *ChatHandler) StartSession(c *gin.Context) {
	userID, workspaceID, ok := middleware.Identity(c)
	if !ok {
		RespondError(c, http.StatusForbidden, "forbidden", fmt.Errorf("missing identity"))
		return
	}
	personaID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		RespondAPIError(c, apierr.InvalidRequest(fmt.Errorf("invalid persona id")))
		return
	}

	var req startSessionRequest
	_ = c.ShouldBindJSON(&req)

	result, err := h.chatService.StartSession(c.Request.Context(), workspaceID, userID, personaID, req.Mode)
	if err != nil {
		RespondAPIError(c, err)
		return
	}
	RespondOK(c, result)
}

type streamTurnRequest struct {
	Message   string                 `json:"message"`
	SessionID *uuid.UUID             `json:"sessionId"`
	Mode      string                 `json:"mode"`
	Context   []services.ContextItem `json:"context"`
}

// StreamTurn answers one chat turn as a server-sent event stream. The
// terminal event carries the full text and usage; a trailing meta event
// carries the persisted message ids.
func (h *ChatHandler) StreamTurn(c *gin.Context) {
	userID, workspaceID, ok := middleware.Identity(c)
	if !ok {
		RespondError(c, http.StatusForbidden, "forbidden", fmt.Errorf("missing identity"))
		return
	}
	personaID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		RespondAPIError(c, apierr.InvalidRequest(fmt.Errorf("invalid persona id")))
		return
	}

	var req streamTurnRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		RespondAPIError(c, apierr.InvalidRequest(fmt.Errorf("invalid request body")))
		return
	}

	sink, err := sse.NewEventWriter(c.Writer)
	if err != nil {
		RespondError(c, http.StatusInternalServerError, "streaming_unsupported", err)
		return
	}

	streamErr := h.chatService.StreamTurn(c.Request.Context(), services.StreamTurnRequest{
		WorkspaceID: workspaceID,
		UserID:      userID,
		PersonaID:   personaID,
		SessionID:   req.SessionID,
		Message:     req.Message,
		Mode:        req.Mode,
		Context:     req.Context,
	}, sink)
	if streamErr != nil {
		if !sink.Started() {
			RespondAPIError(c, streamErr)
			return
		}
		// The stream is already on the wire; all that's left is an
		// in-band error event.
		ae := apierr.From(streamErr)
		_ = sink.Send(gin.H{"error": apierr.UserMessage(ae), "code": ae.Code})
	}
}

func (h *ChatHandler) ListSessions(c *gin.Context) {
	_, workspaceID, ok := middleware.Identity(c)
	if !ok {
		RespondError(c, http.StatusForbidden, "forbidden", fmt.Errorf("missing identity"))
		return
	}
	personaID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		RespondAPIError(c, apierr.InvalidRequest(fmt.Errorf("invalid persona id")))
		return
	}
	sessions, err := h.chatService.ListSessions(c.Request.Context(), workspaceID, personaID)
	if err != nil {
		RespondAPIError(c, err)
		return
	}
	RespondOK(c, gin.H{"sessions": sessions})
}

func (h *ChatHandler) ListMessages(c *gin.Context) {
	userID, workspaceID, ok := middleware.Identity(c)
	if !ok {
		RespondError(c, http.StatusForbidden, "forbidden", fmt.Errorf("missing identity"))
		return
	}
	sessionID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		RespondAPIError(c, apierr.InvalidRequest(fmt.Errorf("invalid session id")))
		return
	}
	messages, err := h.chatService.ListMessages(c.Request.Context(), workspaceID, userID, sessionID)
	if err != nil {
		RespondAPIError(c, err)
		return
	}
	RespondOK(c, gin.H{"messages": messages})
}

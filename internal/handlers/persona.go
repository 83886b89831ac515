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
)

type PersonaHandler struct {
	log      *logger.Logger
	personas services.PersonaService
	images   services.PersonaImageService
}

func NewPersonaHandler(log *logger.Logger, personas services.PersonaService, images services.PersonaImageService) *PersonaHandler {
	return &PersonaHandler{
		log:      log.With("handler", "PersonaHandler"),
		personas: personas,
		images:   images,
	}
}

func (h *PersonaHandler) Get(c *gin.Context) {
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
	persona, err := h.personas.Get(c.Request.Context(), workspaceID, personaID)
	if err != nil {
		RespondAPIError(c, err)
		return
	}
	RespondOK(c, persona)
}

func (h *PersonaHandler) Update(c *gin.Context) {
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

	var updates map[string]any
	if err := c.ShouldBindJSON(&updates); err != nil {
		RespondAPIError(c, apierr.InvalidRequest(fmt.Errorf("invalid request body")))
		return
	}
	if len(updates) == 0 {
		RespondAPIError(c, apierr.InvalidRequest(fmt.Errorf("empty update")))
		return
	}

	persona, err := h.personas.Update(c.Request.Context(), workspaceID, userID, personaID, updates)
	if err != nil {
		RespondAPIError(c, err)
		return
	}
	RespondOK(c, persona)
}

func (h *PersonaHandler) GenerateImage(c *gin.Context) {
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
	url, err := h.images.Generate(c.Request.Context(), workspaceID, userID, personaID)
	if err != nil {
		RespondAPIError(c, err)
		return
	}
	RespondOK(c, gin.H{"imageUrl": url})
}

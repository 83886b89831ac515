package handlers

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/calliopehq/persona-backend/internal/apierr"
	"github.com/calliopehq/persona-backend/internal/logger"
	"github.com/calliopehq/persona-backend/internal/middleware"
	"github.com/calliopehq/persona-backend/internal/repos"
	"github.com/calliopehq/persona-backend/internal/services"
	"github.com/calliopehq/persona-backend/internal/types"
	"gorm.io/datatypes"
)

type ChatConfigHandler struct {
	log     *logger.Logger
	configs services.ChatConfigService
}

func NewChatConfigHandler(log *logger.Logger, configs services.ChatConfigService) *ChatConfigHandler {
	return &ChatConfigHandler{log: log.With("handler", "ChatConfigHandler"), configs: configs}
}

// Get returns the stored config row for one scope, or the effective
// resolved config when ?resolved=true. Scope comes from query params;
// itemType defaults to "persona".
func (h *ChatConfigHandler) Get(c *gin.Context) {
	_, workspaceID, ok := middleware.Identity(c)
	if !ok {
		RespondError(c, http.StatusForbidden, "forbidden", fmt.Errorf("missing identity"))
		return
	}
	itemType := c.DefaultQuery("itemType", "persona")
	var itemSubtype *string
	if sub := c.Query("itemSubtype"); sub != "" {
		itemSubtype = &sub
	}

	if c.Query("resolved") == "true" {
		resolved := h.configs.Resolve(c.Request.Context(), workspaceID, itemType, itemSubtype)
		RespondOK(c, resolved)
		return
	}

	cfg, err := h.configs.Get(c.Request.Context(), workspaceID, itemType, itemSubtype)
	if err != nil {
		if errors.Is(err, repos.ErrNotFound) {
			RespondAPIError(c, apierr.NotFound(fmt.Errorf("no config stored for this scope")))
			return
		}
		RespondAPIError(c, err)
		return
	}
	RespondOK(c, cfg)
}

type putConfigRequest struct {
	ItemType    string  `json:"itemType" binding:"required"`
	ItemSubtype *string `json:"itemSubtype"`

	Provider    string  `json:"provider"`
	Model       string  `json:"model"`
	Temperature float64 `json:"temperature"`
	MaxTokens   int     `json:"maxTokens"`

	SystemPrompt   string `json:"systemPrompt"`
	GreetingPrompt string `json:"greetingPrompt"`

	Dimensions         []string `json:"dimensions"`
	ContextSourceTypes []string `json:"contextSourceTypes"`
}

func (h *ChatConfigHandler) Put(c *gin.Context) {
	_, workspaceID, ok := middleware.Identity(c)
	if !ok {
		RespondError(c, http.StatusForbidden, "forbidden", fmt.Errorf("missing identity"))
		return
	}
	var req putConfigRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		RespondAPIError(c, apierr.InvalidRequest(fmt.Errorf("itemType is required")))
		return
	}

	cfg := &types.ChatConfig{
		WorkspaceID:        workspaceID,
		ItemType:           req.ItemType,
		ItemSubtype:        req.ItemSubtype,
		Provider:           req.Provider,
		Model:              req.Model,
		Temperature:        req.Temperature,
		MaxTokens:          req.MaxTokens,
		SystemPrompt:       req.SystemPrompt,
		GreetingPrompt:     req.GreetingPrompt,
		Dimensions:         mustJSONList(req.Dimensions),
		ContextSourceTypes: mustJSONList(req.ContextSourceTypes),
	}

	saved, err := h.configs.Save(c.Request.Context(), cfg)
	if err != nil {
		RespondAPIError(c, err)
		return
	}
	RespondOK(c, saved)
}

func mustJSONList(items []string) datatypes.JSON {
	if items == nil {
		items = []string{}
	}
	raw, _ := json.Marshal(items)
	return datatypes.JSON(raw)
}

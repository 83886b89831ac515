package handlers

import (
	"context"
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/calliopehq/persona-backend/internal/apierr"
	"github.com/calliopehq/persona-backend/internal/logger"
	"github.com/calliopehq/persona-backend/internal/middleware"
	"github.com/calliopehq/persona-backend/internal/repos"
	"github.com/calliopehq/persona-backend/internal/services"
)

var versionedResourceTypes = map[string]bool{
	"persona":  true,
	"brand":    true,
	"campaign": true,
	"product":  true,
	"strategy": true,
}

type VersionHandler struct {
	log        *logger.Logger
	versions   services.VersionService
	personas   services.PersonaService
	sourceRepo repos.ContextSourceRepo
}

func NewVersionHandler(log *logger.Logger, versions services.VersionService, personas services.PersonaService, sourceRepo repos.ContextSourceRepo) *VersionHandler {
	return &VersionHandler{
		log:        log.With("handler", "VersionHandler"),
		versions:   versions,
		personas:   personas,
		sourceRepo: sourceRepo,
	}
}

func (h *VersionHandler) List(c *gin.Context) {
	_, workspaceID, ok := middleware.Identity(c)
	if !ok {
		RespondError(c, http.StatusForbidden, "forbidden", fmt.Errorf("missing identity"))
		return
	}
	resourceType, resourceID, err := resourceParams(c)
	if err != nil {
		RespondAPIError(c, err)
		return
	}
	versions, err := h.versions.ListVersions(c.Request.Context(), workspaceID, resourceType, resourceID)
	if err != nil {
		RespondAPIError(c, err)
		return
	}
	RespondOK(c, gin.H{"versions": versions})
}

type restoreRequest struct {
	VersionID uuid.UUID `json:"versionId" binding:"required"`
}

func (h *VersionHandler) Restore(c *gin.Context) {
	userID, workspaceID, ok := middleware.Identity(c)
	if !ok {
		RespondError(c, http.StatusForbidden, "forbidden", fmt.Errorf("missing identity"))
		return
	}
	resourceType, resourceID, err := resourceParams(c)
	if err != nil {
		RespondAPIError(c, err)
		return
	}
	var req restoreRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		RespondAPIError(c, apierr.InvalidRequest(fmt.Errorf("versionId is required")))
		return
	}

	apply := h.applierFor(resourceType, workspaceID, resourceID)
	version, err := h.versions.RestoreVersion(c.Request.Context(), workspaceID, userID, resourceType, resourceID, req.VersionID, apply)
	if err != nil {
		RespondAPIError(c, err)
		return
	}
	RespondOK(c, version)
}

func (h *VersionHandler) applierFor(resourceType string, workspaceID, resourceID uuid.UUID) services.ApplySnapshot {
	if resourceType == "persona" {
		return h.personas.SnapshotApplier(workspaceID, resourceID)
	}
	return func(ctx context.Context, snapshot map[string]any) error {
		return h.sourceRepo.ApplySnapshot(ctx, nil, workspaceID, resourceType, resourceID, snapshot)
	}
}

func resourceParams(c *gin.Context) (string, uuid.UUID, error) {
	resourceType := c.Param("type")
	if !versionedResourceTypes[resourceType] {
		return "", uuid.Nil, apierr.InvalidRequest(fmt.Errorf("unknown resource type %q", resourceType))
	}
	resourceID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return "", uuid.Nil, apierr.InvalidRequest(fmt.Errorf("invalid resource id"))
	}
	return resourceType, resourceID, nil
}

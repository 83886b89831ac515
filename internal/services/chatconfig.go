package services

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/calliopehq/persona-backend/internal/cache"
	"github.com/calliopehq/persona-backend/internal/logger"
	"github.com/calliopehq/persona-backend/internal/repos"
	"github.com/calliopehq/persona-backend/internal/types"
)

const configCacheTTL = 5 * time.Minute

// ResolvedChatConfig is the final, fallback-applied configuration for
// one chat scope. It is derived per request and never persisted.
type ResolvedChatConfig struct {
	Provider           string   `json:"provider"`
	Model              string   `json:"model"`
	Temperature        float64  `json:"temperature"`
	MaxTokens          int      `json:"max_tokens"`
	SystemPrompt       string   `json:"system_prompt"`
	GreetingPrompt     string   `json:"greeting_prompt"`
	Dimensions         []string `json:"dimensions"`
	ContextSourceTypes []string `json:"context_source_types"`
	Knowledge          string   `json:"knowledge"`
}

type ChatConfigService interface {
	// Resolve never returns an error: storage failures degrade to the
	// built-in defaults so prompt construction can't be blocked by a
	// configuration-store outage.
	Resolve(ctx context.Context, workspaceID uuid.UUID, itemType string, itemSubtype *string) ResolvedChatConfig
	Get(ctx context.Context, workspaceID uuid.UUID, itemType string, itemSubtype *string) (*types.ChatConfig, error)
	Save(ctx context.Context, cfg *types.ChatConfig) (*types.ChatConfig, error)
}

type chatConfigService struct {
	db          *gorm.DB
	log         *logger.Logger
	configRepo  repos.ChatConfigRepo
	configCache cache.ConfigCache
}

func NewChatConfigService(db *gorm.DB, log *logger.Logger, configRepo repos.ChatConfigRepo, configCache cache.ConfigCache) ChatConfigService {
	return &chatConfigService{
		db:          db,
		log:         log.With("service", "ChatConfigService"),
		configRepo:  configRepo,
		configCache: configCache,
	}
}

func (s *chatConfigService) Resolve(ctx context.Context, workspaceID uuid.UUID, itemType string, itemSubtype *string) ResolvedChatConfig {
	key := configCacheKey(workspaceID, itemType, itemSubtype)
	if s.configCache != nil {
		var cached ResolvedChatConfig
		if s.configCache.Get(ctx, key, &cached) {
			return cached
		}
	}

	resolved := s.resolveUncached(ctx, workspaceID, itemType, itemSubtype)

	if s.configCache != nil {
		s.configCache.Set(ctx, key, resolved, configCacheTTL)
	}
	return resolved
}

func (s *chatConfigService) resolveUncached(ctx context.Context, workspaceID uuid.UUID, itemType string, itemSubtype *string) ResolvedChatConfig {
	// Exact (type, subtype) row first.
	if itemSubtype != nil {
		row, err := s.configRepo.GetByScope(ctx, nil, workspaceID, itemType, itemSubtype)
		if err == nil {
			return s.fromStored(ctx, row)
		}
		if !errors.Is(err, repos.ErrNotFound) {
			s.log.Warn("Config lookup failed, falling back to defaults", "item_type", itemType, "error", err)
			return defaultChatConfig(itemType, itemSubtype)
		}
	}

	// Then the type-level row (null subtype applies to all subtypes).
	row, err := s.configRepo.GetByScope(ctx, nil, workspaceID, itemType, nil)
	if err == nil {
		return s.fromStored(ctx, row)
	}
	if !errors.Is(err, repos.ErrNotFound) {
		s.log.Warn("Config lookup failed, falling back to defaults", "item_type", itemType, "error", err)
	}
	return defaultChatConfig(itemType, itemSubtype)
}

func (s *chatConfigService) fromStored(ctx context.Context, row *types.ChatConfig) ResolvedChatConfig {
	base := defaultChatConfig(row.ItemType, row.ItemSubtype)

	resolved := ResolvedChatConfig{
		Provider:           orDefault(row.Provider, base.Provider),
		Model:              row.Model,
		Temperature:        row.Temperature,
		MaxTokens:          row.MaxTokens,
		SystemPrompt:       orDefault(row.SystemPrompt, base.SystemPrompt),
		GreetingPrompt:     orDefault(row.GreetingPrompt, base.GreetingPrompt),
		Dimensions:         decodeStringList(row.Dimensions, base.Dimensions),
		ContextSourceTypes: decodeStringList(row.ContextSourceTypes, base.ContextSourceTypes),
	}
	if resolved.MaxTokens <= 0 {
		resolved.MaxTokens = base.MaxTokens
	}

	entries, err := s.configRepo.ListKnowledge(ctx, nil, row.ID)
	if err != nil {
		s.log.Warn("Knowledge lookup failed, resolving without custom knowledge", "config_id", row.ID, "error", err)
		return resolved
	}
	resolved.Knowledge = renderKnowledge(entries)
	return resolved
}

func (s *chatConfigService) Get(ctx context.Context, workspaceID uuid.UUID, itemType string, itemSubtype *string) (*types.ChatConfig, error) {
	return s.configRepo.GetByScope(ctx, nil, workspaceID, itemType, itemSubtype)
}

func (s *chatConfigService) Save(ctx context.Context, cfg *types.ChatConfig) (*types.ChatConfig, error) {
	saved, err := s.configRepo.Upsert(ctx, nil, cfg)
	if err != nil {
		return nil, err
	}
	if s.configCache != nil {
		s.configCache.InvalidatePrefix(ctx, configCachePrefix(cfg.WorkspaceID))
	}
	return saved, nil
}

func configCachePrefix(workspaceID uuid.UUID) string {
	return fmt.Sprintf("chatcfg:%s:", workspaceID)
}

func configCacheKey(workspaceID uuid.UUID, itemType string, itemSubtype *string) string {
	sub := "-"
	if itemSubtype != nil {
		sub = *itemSubtype
	}
	return fmt.Sprintf("%s%s:%s", configCachePrefix(workspaceID), itemType, sub)
}

func renderKnowledge(entries []types.KnowledgeEntry) string {
	if len(entries) == 0 {
		return ""
	}
	var b strings.Builder
	b.WriteString("## Custom knowledge\n")
	for _, e := range entries {
		title := strings.TrimSpace(e.Title)
		content := strings.TrimSpace(e.Content)
		if content == "" {
			continue
		}
		if title != "" {
			b.WriteString(fmt.Sprintf("### %s\n", title))
		}
		b.WriteString(content)
		b.WriteString("\n")
	}
	return strings.TrimRight(b.String(), "\n")
}

func decodeStringList(raw []byte, fallback []string) []string {
	if len(raw) == 0 {
		return fallback
	}
	var out []string
	if err := json.Unmarshal(raw, &out); err != nil || len(out) == 0 {
		return fallback
	}
	return out
}

func orDefault(val, fallback string) string {
	if strings.TrimSpace(val) == "" {
		return fallback
	}
	return val
}

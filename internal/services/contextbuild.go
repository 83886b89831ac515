package services

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/calliopehq/persona-backend/internal/logger"
	"github.com/calliopehq/persona-backend/internal/repos"
)

const (
	longFieldLimit    = 600
	totalContextLimit = 8000
	truncationMarker  = "… [truncated]"
)

// ContextItem is a caller-selected (source type, source id) pair. It is
// resolved live at request time, never cached across turns.
type ContextItem struct {
	SourceType string    `json:"source_type"`
	SourceID   uuid.UUID `json:"source_id"`
}

// ContextBlock is one labeled, serialized text fragment ready for
// prompt injection.
type ContextBlock struct {
	SourceType string
	Label      string
	Text       string
}

type ContextBuildService interface {
	// BuildBlocks fetches and serializes the selected sources. Missing
	// or failed sources are skipped, not rendered; the total-length cap
	// drops whole lowest-priority blocks rather than cutting mid-block.
	BuildBlocks(ctx context.Context, workspaceID uuid.UUID, items []ContextItem) []ContextBlock
	SerializeRecord(sourceType string, record map[string]any) string
}

type contextBuildService struct {
	log        *logger.Logger
	sourceRepo repos.ContextSourceRepo
}

func NewContextBuildService(log *logger.Logger, sourceRepo repos.ContextSourceRepo) ContextBuildService {
	return &contextBuildService{
		log:        log.With("service", "ContextBuildService"),
		sourceRepo: sourceRepo,
	}
}

type fieldSpec struct {
	Key   string
	Label string
}

// Declared fields render first, in this order. Anything else the editor
// saved renders afterwards with a humanized label.
var sourceFieldSpecs = map[string][]fieldSpec{
	"persona": {
		{Key: "name", Label: "Name"},
		{Key: "archetype", Label: "Archetype"},
		{Key: "age_range", Label: "Age range"},
		{Key: "occupation", Label: "Occupation"},
		{Key: "bio", Label: "Bio"},
		{Key: "goals", Label: "Goals"},
		{Key: "frustrations", Label: "Frustrations"},
		{Key: "values", Label: "Values"},
		{Key: "media_habits", Label: "Media habits"},
	},
	"brand": {
		{Key: "name", Label: "Brand"},
		{Key: "mission", Label: "Mission"},
		{Key: "voice", Label: "Voice"},
		{Key: "values", Label: "Brand values"},
		{Key: "positioning", Label: "Positioning"},
	},
	"campaign": {
		{Key: "name", Label: "Campaign"},
		{Key: "objective", Label: "Objective"},
		{Key: "audience", Label: "Audience"},
		{Key: "key_message", Label: "Key message"},
		{Key: "channels", Label: "Channels"},
	},
	"product": {
		{Key: "name", Label: "Product"},
		{Key: "category", Label: "Category"},
		{Key: "description", Label: "Description"},
		{Key: "features", Label: "Features"},
		{Key: "price_point", Label: "Price point"},
	},
	"strategy": {
		{Key: "name", Label: "Strategy"},
		{Key: "summary", Label: "Summary"},
		{Key: "pillars", Label: "Pillars"},
		{Key: "target_segments", Label: "Target segments"},
	},
}

var sourceBlockLabels = map[string]string{
	"persona":  "Persona profile",
	"brand":    "Brand",
	"campaign": "Campaign",
	"product":  "Product",
	"strategy": "Strategy",
}

// Lower numbers are dropped first when the total cap is exceeded.
var sourcePriority = map[string]int{
	"persona":  50,
	"brand":    40,
	"product":  30,
	"campaign": 20,
	"strategy": 10,
}

func (s *contextBuildService) BuildBlocks(ctx context.Context, workspaceID uuid.UUID, items []ContextItem) []ContextBlock {
	type indexedBlock struct {
		ContextBlock
		selectionIdx int
	}

	// Sources are independent rows; fetch them in parallel and keep
	// selection order by slot. A failed or missing source leaves its
	// slot empty rather than failing the turn.
	records := make([]map[string]any, len(items))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(4)
	for i, item := range items {
		i, item := i, item
		g.Go(func() error {
			record, err := s.sourceRepo.Fetch(gctx, nil, workspaceID, item.SourceType, item.SourceID)
			if err != nil {
				if !errors.Is(err, repos.ErrNotFound) {
					s.log.Warn("Context source fetch failed, skipping", "source_type", item.SourceType, "source_id", item.SourceID, "error", err)
				}
				return nil
			}
			records[i] = record
			return nil
		})
	}
	_ = g.Wait()

	blocks := make([]indexedBlock, 0, len(items))
	for i, item := range items {
		if records[i] == nil {
			continue
		}
		text := s.SerializeRecord(item.SourceType, records[i])
		if text == "" {
			continue
		}
		label := sourceBlockLabels[item.SourceType]
		if label == "" {
			label = humanizeKey(item.SourceType)
		}
		blocks = append(blocks, indexedBlock{
			ContextBlock: ContextBlock{SourceType: item.SourceType, Label: label, Text: text},
			selectionIdx: i,
		})
	}

	// Enforce the total cap by dropping whole lowest-priority sources;
	// among equal priorities the later-selected goes first.
	total := 0
	for _, b := range blocks {
		total += len([]rune(b.Text))
	}
	for total > totalContextLimit && len(blocks) > 0 {
		dropIdx := 0
		for i := 1; i < len(blocks); i++ {
			pi := sourcePriority[blocks[i].SourceType]
			pd := sourcePriority[blocks[dropIdx].SourceType]
			if pi < pd || (pi == pd && blocks[i].selectionIdx > blocks[dropIdx].selectionIdx) {
				dropIdx = i
			}
		}
		dropped := blocks[dropIdx]
		s.log.Debug("Dropping context source over total cap", "source_type", dropped.SourceType, "size", len([]rune(dropped.Text)))
		total -= len([]rune(dropped.Text))
		blocks = append(blocks[:dropIdx], blocks[dropIdx+1:]...)
	}

	out := make([]ContextBlock, len(blocks))
	for i, b := range blocks {
		out[i] = b.ContextBlock
	}
	return out
}

func (s *contextBuildService) SerializeRecord(sourceType string, record map[string]any) string {
	if len(record) == 0 {
		return ""
	}

	var b strings.Builder
	seen := map[string]bool{}

	for _, spec := range sourceFieldSpecs[sourceType] {
		seen[spec.Key] = true
		val, ok := record[spec.Key]
		if !ok {
			continue
		}
		writeField(&b, spec.Label, val)
	}

	// Undeclared keys render after, in sorted order for reproducibility.
	rest := make([]string, 0)
	for k := range record {
		if !seen[k] {
			rest = append(rest, k)
		}
	}
	sort.Strings(rest)
	for _, k := range rest {
		writeField(&b, humanizeKey(k), record[k])
	}

	return strings.TrimRight(b.String(), "\n")
}

// writeField omits absent or empty values entirely: a missing attribute
// never produces an empty labeled line.
func writeField(b *strings.Builder, label string, val any) {
	switch v := val.(type) {
	case nil:
		return
	case string:
		text := strings.TrimSpace(v)
		if text == "" {
			return
		}
		b.WriteString(fmt.Sprintf("%s: %s\n", label, truncateLong(text)))
	case []any:
		items := make([]string, 0, len(v))
		for _, el := range v {
			s := strings.TrimSpace(fmt.Sprintf("%v", el))
			if s != "" {
				items = append(items, s)
			}
		}
		if len(items) == 0 {
			return
		}
		b.WriteString(label + ":\n")
		for _, item := range items {
			b.WriteString(fmt.Sprintf("- %s\n", truncateLong(item)))
		}
	case map[string]any:
		keys := make([]string, 0, len(v))
		for k := range v {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		type entry struct{ key, val string }
		entries := make([]entry, 0, len(keys))
		for _, k := range keys {
			s := strings.TrimSpace(fmt.Sprintf("%v", v[k]))
			if s == "" {
				continue
			}
			entries = append(entries, entry{key: k, val: s})
		}
		if len(entries) == 0 {
			return
		}
		b.WriteString(label + ":\n")
		for _, e := range entries {
			b.WriteString(fmt.Sprintf("- %s: %s\n", humanizeKey(e.key), truncateLong(e.val)))
		}
	case bool:
		b.WriteString(fmt.Sprintf("%s: %t\n", label, v))
	default:
		s := strings.TrimSpace(fmt.Sprintf("%v", v))
		if s == "" {
			return
		}
		b.WriteString(fmt.Sprintf("%s: %s\n", label, truncateLong(s)))
	}
}

func truncateLong(s string) string {
	runes := []rune(s)
	if len(runes) <= longFieldLimit {
		return s
	}
	return string(runes[:longFieldLimit]) + truncationMarker
}

func humanizeKey(key string) string {
	parts := strings.FieldsFunc(key, func(r rune) bool {
		return r == '_' || r == '-' || r == ' '
	})
	if len(parts) == 0 {
		return key
	}
	for i, p := range parts {
		if i == 0 {
			parts[i] = strings.ToUpper(p[:1]) + p[1:]
		} else {
			parts[i] = strings.ToLower(p)
		}
	}
	return strings.Join(parts, " ")
}

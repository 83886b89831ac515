package services

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/google/uuid"

	"github.com/calliopehq/persona-backend/internal/logger"
)

var placeholderPattern = regexp.MustCompile(`\{\{\s*([a-zA-Z0-9_]+)\s*\}\}`)

type PromptBuildService interface {
	Build(template string, subject map[string]any, blocks []ContextBlock, knowledge string, workspaceID uuid.UUID) string
}

type promptBuildService struct {
	log        *logger.Logger
	serializer ContextBuildService
}

func NewPromptBuildService(log *logger.Logger, serializer ContextBuildService) PromptBuildService {
	return &promptBuildService{
		log:        log.With("service", "PromptBuildService"),
		serializer: serializer,
	}
}

// Build substitutes named placeholders with serialized content. Field
// discovery on the subject record is dynamic: any subject key is
// addressable as {{key}}. Unresolved placeholders become the empty
// string so template syntax never reaches the model.
func (s *promptBuildService) Build(template string, subject map[string]any, blocks []ContextBlock, knowledge string, workspaceID uuid.UUID) string {
	values := map[string]string{}

	for k, v := range subject {
		values[k] = scalarString(v)
	}
	if name, ok := subject["name"]; ok {
		values["persona_name"] = scalarString(name)
	}
	values["persona_profile"] = s.serializer.SerializeRecord("persona", subject)
	values["workspace_id"] = workspaceID.String()

	if len(blocks) > 0 {
		var b strings.Builder
		for _, block := range blocks {
			b.WriteString(fmt.Sprintf("## %s\n%s\n\n", block.Label, block.Text))
		}
		values["context"] = strings.TrimRight(b.String(), "\n")
	}
	if knowledge != "" {
		values["knowledge"] = knowledge
	}

	out := placeholderPattern.ReplaceAllStringFunc(template, func(match string) string {
		key := placeholderPattern.FindStringSubmatch(match)[1]
		return values[key]
	})
	return strings.TrimSpace(collapseBlankLines(out))
}

func scalarString(v any) string {
	switch val := v.(type) {
	case nil:
		return ""
	case string:
		return val
	case []any, map[string]any:
		return ""
	default:
		return fmt.Sprintf("%v", val)
	}
}

// collapseBlankLines squeezes the runs of blank lines left behind by
// empty substitutions.
func collapseBlankLines(s string) string {
	lines := strings.Split(s, "\n")
	out := make([]string, 0, len(lines))
	blank := 0
	for _, line := range lines {
		if strings.TrimSpace(line) == "" {
			blank++
			if blank > 1 {
				continue
			}
			out = append(out, "")
			continue
		}
		blank = 0
		out = append(out, line)
	}
	return strings.Join(out, "\n")
}

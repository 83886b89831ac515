package ai

import (
	"context"
	"os"
	"strings"

	"github.com/calliopehq/persona-backend/internal/logger"
)

const (
	ProviderOpenAI    = "openai"
	ProviderAnthropic = "anthropic"
	ProviderOffline   = "offline"
)

type Usage struct {
	PromptTokens     int `json:"promptTokens"`
	CompletionTokens int `json:"completionTokens"`
}

type Message struct {
	Role    string
	Content string
}

type GenerateOpts struct {
	SystemPrompt string
	Model        string
	MaxTokens    int
	Temperature  float64
}

type StreamRequest struct {
	SystemPrompt string
	History      []Message
	Message      string
	Model        string
	MaxTokens    int
	Temperature  float64
}

// StreamEvent is one element of a provider's live token stream. The
// terminal event has Done set and carries the full concatenated text
// plus usage counters; it is emitted exactly once.
type StreamEvent struct {
	Delta    string `json:"delta,omitempty"`
	Done     bool   `json:"done,omitempty"`
	FullText string `json:"fullText,omitempty"`
	Usage    *Usage `json:"usage,omitempty"`
}

type Provider interface {
	Name() string
	GenerateText(ctx context.Context, prompt string, opts GenerateOpts) (string, error)
	Analyze(ctx context.Context, content string, analysisContext map[string]any) (map[string]any, error)
	StreamChat(ctx context.Context, req StreamRequest) (<-chan StreamEvent, error)
}

type Credentials struct {
	OpenAIKey    string
	AnthropicKey string
}

func CredentialsFromEnv() Credentials {
	return Credentials{
		OpenAIKey:    strings.TrimSpace(os.Getenv("OPENAI_API_KEY")),
		AnthropicKey: strings.TrimSpace(os.Getenv("ANTHROPIC_API_KEY")),
	}
}

// Select is the pure provider-selection policy: an explicit name wins,
// else whichever hosted provider has credentials, else the offline
// generator so everything stays runnable without network access.
func Select(explicit string, creds Credentials, log *logger.Logger) Provider {
	switch strings.ToLower(strings.TrimSpace(explicit)) {
	case ProviderOpenAI:
		if creds.OpenAIKey != "" {
			return NewOpenAIProvider(creds.OpenAIKey, log)
		}
	case ProviderAnthropic:
		if creds.AnthropicKey != "" {
			return NewAnthropicProvider(creds.AnthropicKey, log)
		}
	case ProviderOffline:
		return NewOfflineProvider()
	}
	if creds.OpenAIKey != "" {
		return NewOpenAIProvider(creds.OpenAIKey, log)
	}
	if creds.AnthropicKey != "" {
		return NewAnthropicProvider(creds.AnthropicKey, log)
	}
	return NewOfflineProvider()
}

package ai

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/calliopehq/persona-backend/internal/logger"
)

func anthropicTextResponse(text string) map[string]any {
	return map[string]any{
		"content": []map[string]any{{"type": "text", "text": text}},
		"usage":   map[string]any{"input_tokens": 10, "output_tokens": 5},
	}
}

func newAnthropicTestProvider(t *testing.T, handler http.HandlerFunc) Provider {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	t.Setenv("ANTHROPIC_BASE_URL", srv.URL)
	t.Setenv("ANTHROPIC_MAX_RETRIES", "0")
	return NewAnthropicProvider("test-key", logger.NewNop())
}

func TestAnthropicAnalyzeMalformedJSONDegrades(t *testing.T) {
	p := newAnthropicTestProvider(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v1/messages" {
			t.Errorf("unexpected path %q", r.URL.Path)
		}
		_ = json.NewEncoder(w).Encode(anthropicTextResponse("Sure! Here are my thoughts: {broken"))
	})

	content := "I would never buy from a brand that fakes scarcity."
	out, err := p.Analyze(context.Background(), content, nil)
	if err != nil {
		t.Fatalf("Analyze: %v", err)
	}
	if out["summary"] != content {
		t.Fatalf("expected content-derived summary, got %v", out["summary"])
	}
	insights, ok := out["insights"].([]any)
	if !ok || len(insights) != 0 {
		t.Fatalf("expected empty insights list, got %v", out["insights"])
	}
}

func TestAnthropicAnalyzeValidJSONPassesThrough(t *testing.T) {
	p := newAnthropicTestProvider(t, func(w http.ResponseWriter, r *http.Request) {
		payload := `{"summary":"scarcity aversion","insights":["Distrusts fake urgency"]}`
		_ = json.NewEncoder(w).Encode(anthropicTextResponse(payload))
	})

	out, err := p.Analyze(context.Background(), "content", nil)
	if err != nil {
		t.Fatalf("Analyze: %v", err)
	}
	if out["summary"] != "scarcity aversion" {
		t.Fatalf("unexpected summary: %v", out["summary"])
	}
	insights, ok := out["insights"].([]any)
	if !ok || len(insights) != 1 || insights[0] != "Distrusts fake urgency" {
		t.Fatalf("unexpected insights: %v", out["insights"])
	}
}

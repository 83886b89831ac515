package ai

import (
	"context"
	"fmt"
	"strings"
)

// offlineProvider is the deterministic no-network fallback. Output
// depends only on its inputs, which keeps every upstream path testable
// and lets the whole service run without provider credentials.
type offlineProvider struct{}

func NewOfflineProvider() Provider {
	return &offlineProvider{}
}

func (p *offlineProvider) Name() string { return ProviderOffline }

func (p *offlineProvider) GenerateText(ctx context.Context, prompt string, opts GenerateOpts) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	trimmed := strings.TrimSpace(prompt)
	lower := strings.ToLower(trimmed)
	switch {
	case strings.Contains(lower, "greeting") || strings.Contains(lower, "introduce yourself"):
		return "Hi there! I'm glad you're here. Ask me anything you'd like to know about how I think and what I care about.", nil
	case strings.Contains(lower, "title"):
		return titleFrom(trimmed), nil
	default:
		return fmt.Sprintf("Here's my perspective: %s", firstSentenceOrPrefix(trimmed, 160)), nil
	}
}

func (p *offlineProvider) Analyze(ctx context.Context, content string, analysisContext map[string]any) (map[string]any, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return defaultAnalysis(content), nil
}

func (p *offlineProvider) StreamChat(ctx context.Context, req StreamRequest) (<-chan StreamEvent, error) {
	reply := offlineReply(req.Message)
	usage := &Usage{
		PromptTokens:     approxTokens(req.SystemPrompt) + approxTokens(req.Message),
		CompletionTokens: approxTokens(reply),
	}
	for _, m := range req.History {
		usage.PromptTokens += approxTokens(m.Content)
	}

	out := make(chan StreamEvent)
	go func() {
		defer close(out)
		for _, word := range strings.SplitAfter(reply, " ") {
			select {
			case out <- StreamEvent{Delta: word}:
			case <-ctx.Done():
				return
			}
		}
		select {
		case out <- StreamEvent{Done: true, FullText: reply, Usage: usage}:
		case <-ctx.Done():
		}
	}()
	return out, nil
}

func offlineReply(message string) string {
	msg := strings.TrimSpace(message)
	lower := strings.ToLower(msg)
	switch {
	case strings.Contains(lower, "value"):
		return "I value authenticity above everything else. When a brand speaks to me honestly, I listen."
	case strings.Contains(lower, "buy") || strings.Contains(lower, "purchase"):
		return "I buy from brands I trust. Price matters, but trust is what closes the deal for me."
	case strings.HasSuffix(msg, "?"):
		return fmt.Sprintf("That's a fair question. Thinking about %q, my honest answer is that it depends on whether it fits my day-to-day life.", firstSentenceOrPrefix(msg, 80))
	default:
		return fmt.Sprintf("I hear you on %q. Tell me more about what you're hoping to learn from me.", firstSentenceOrPrefix(msg, 80))
	}
}

func titleFrom(prompt string) string {
	// Last non-empty line tends to be the text to title.
	lines := strings.Split(prompt, "\n")
	for i := len(lines) - 1; i >= 0; i-- {
		if s := strings.TrimSpace(lines[i]); s != "" {
			return firstSentenceOrPrefix(s, 48)
		}
	}
	return "New conversation"
}

func firstSentenceOrPrefix(s string, max int) string {
	s = strings.TrimSpace(s)
	if idx := strings.IndexAny(s, ".!?\n"); idx > 0 && idx < max {
		return s[:idx]
	}
	runes := []rune(s)
	if len(runes) > max {
		return string(runes[:max])
	}
	return s
}

func approxTokens(s string) int {
	n := len(s) / 4
	if n == 0 && s != "" {
		n = 1
	}
	return n
}

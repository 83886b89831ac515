package ai

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	openai "github.com/sashabaranov/go-openai"

	"github.com/calliopehq/persona-backend/internal/apierr"
	"github.com/calliopehq/persona-backend/internal/logger"
	"github.com/calliopehq/persona-backend/internal/utils"
)

type openAIProvider struct {
	log    *logger.Logger
	client *openai.Client
	model  string

	requestTimeout time.Duration
}

func NewOpenAIProvider(apiKey string, log *logger.Logger) Provider {
	model := utils.GetEnv("OPENAI_MODEL", "gpt-4o-mini", log)
	timeoutSec := utils.GetEnvAsInt("AI_REQUEST_TIMEOUT_SECONDS", 60, log)
	return &openAIProvider{
		log:            log.With("provider", "openai"),
		client:         openai.NewClient(apiKey),
		model:          model,
		requestTimeout: time.Duration(timeoutSec) * time.Second,
	}
}

func (p *openAIProvider) Name() string { return ProviderOpenAI }

func (p *openAIProvider) GenerateText(ctx context.Context, prompt string, opts GenerateOpts) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, p.requestTimeout)
	defer cancel()

	req := openai.ChatCompletionRequest{
		Model:    p.pickModel(opts.Model),
		Messages: []openai.ChatCompletionMessage{},
	}
	if opts.SystemPrompt != "" {
		req.Messages = append(req.Messages, openai.ChatCompletionMessage{
			Role:    openai.ChatMessageRoleSystem,
			Content: opts.SystemPrompt,
		})
	}
	req.Messages = append(req.Messages, openai.ChatCompletionMessage{
		Role:    openai.ChatMessageRoleUser,
		Content: prompt,
	})
	if opts.MaxTokens > 0 {
		req.MaxTokens = opts.MaxTokens
	}
	if opts.Temperature > 0 {
		req.Temperature = float32(opts.Temperature)
	}

	resp, err := p.client.CreateChatCompletion(ctx, req)
	if err != nil {
		return "", p.mapError(err)
	}
	if len(resp.Choices) == 0 {
		return "", apierr.Provider(fmt.Errorf("openai returned no choices"))
	}
	return resp.Choices[0].Message.Content, nil
}

func (p *openAIProvider) Analyze(ctx context.Context, content string, analysisContext map[string]any) (map[string]any, error) {
	system := "You analyze marketing content and reply with a single JSON object."
	user := content
	if len(analysisContext) > 0 {
		if ctxJSON, err := json.Marshal(analysisContext); err == nil {
			user = fmt.Sprintf("Context: %s\n\nContent:\n%s", ctxJSON, content)
		}
	}

	ctx, cancel := context.WithTimeout(ctx, p.requestTimeout)
	defer cancel()

	resp, err := p.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model: p.model,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleSystem, Content: system},
			{Role: openai.ChatMessageRoleUser, Content: user},
		},
		ResponseFormat: &openai.ChatCompletionResponseFormat{
			Type: openai.ChatCompletionResponseFormatTypeJSONObject,
		},
	})
	if err != nil {
		return nil, p.mapError(err)
	}
	if len(resp.Choices) == 0 {
		return defaultAnalysis(content), nil
	}
	var out map[string]any
	if err := json.Unmarshal([]byte(resp.Choices[0].Message.Content), &out); err != nil {
		p.log.Warn("Analyze returned malformed JSON, using default payload", "error", err)
		return defaultAnalysis(content), nil
	}
	return out, nil
}

func (p *openAIProvider) StreamChat(ctx context.Context, req StreamRequest) (<-chan StreamEvent, error) {
	messages := make([]openai.ChatCompletionMessage, 0, len(req.History)+2)
	if req.SystemPrompt != "" {
		messages = append(messages, openai.ChatCompletionMessage{
			Role:    openai.ChatMessageRoleSystem,
			Content: req.SystemPrompt,
		})
	}
	for _, m := range req.History {
		messages = append(messages, openai.ChatCompletionMessage{Role: m.Role, Content: m.Content})
	}
	messages = append(messages, openai.ChatCompletionMessage{
		Role:    openai.ChatMessageRoleUser,
		Content: req.Message,
	})

	ccr := openai.ChatCompletionRequest{
		Model:    p.pickModel(req.Model),
		Messages: messages,
		Stream:   true,
		StreamOptions: &openai.StreamOptions{
			IncludeUsage: true,
		},
	}
	if req.MaxTokens > 0 {
		ccr.MaxTokens = req.MaxTokens
	}
	if req.Temperature > 0 {
		ccr.Temperature = float32(req.Temperature)
	}

	stream, err := p.client.CreateChatCompletionStream(ctx, ccr)
	if err != nil {
		return nil, p.mapError(err)
	}

	out := make(chan StreamEvent)
	go func() {
		defer close(out)
		defer stream.Close()

		var full strings.Builder
		var usage *Usage
		for {
			chunk, recvErr := stream.Recv()
			if errors.Is(recvErr, io.EOF) {
				break
			}
			if recvErr != nil {
				p.log.Warn("OpenAI stream terminated early", "error", recvErr)
				break
			}
			if chunk.Usage != nil {
				usage = &Usage{
					PromptTokens:     chunk.Usage.PromptTokens,
					CompletionTokens: chunk.Usage.CompletionTokens,
				}
			}
			if len(chunk.Choices) == 0 {
				continue
			}
			delta := chunk.Choices[0].Delta.Content
			if delta == "" {
				continue
			}
			full.WriteString(delta)
			select {
			case out <- StreamEvent{Delta: delta}:
			case <-ctx.Done():
				return
			}
		}
		if usage == nil {
			usage = &Usage{}
		}
		select {
		case out <- StreamEvent{Done: true, FullText: full.String(), Usage: usage}:
		case <-ctx.Done():
		}
	}()
	return out, nil
}

func (p *openAIProvider) pickModel(override string) string {
	if strings.TrimSpace(override) != "" {
		return override
	}
	return p.model
}

func (p *openAIProvider) mapError(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return apierr.Timeout(err)
	}
	var apiErr *openai.APIError
	if errors.As(err, &apiErr) {
		switch apiErr.HTTPStatusCode {
		case 401, 403:
			return apierr.Authentication(err)
		case 429:
			return apierr.RateLimited(err)
		case 408:
			return apierr.Timeout(err)
		}
	}
	return apierr.Provider(err)
}

func defaultAnalysis(content string) map[string]any {
	summary := content
	if len(summary) > 200 {
		summary = summary[:200]
	}
	return map[string]any{
		"summary":  summary,
		"insights": []any{},
	}
}

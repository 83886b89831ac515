package ai

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math/rand"
	"net"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/calliopehq/persona-backend/internal/apierr"
	"github.com/calliopehq/persona-backend/internal/logger"
	"github.com/calliopehq/persona-backend/internal/utils"
)

const anthropicVersion = "2023-06-01"

type anthropicProvider struct {
	log        *logger.Logger
	baseURL    string
	apiKey     string
	model      string
	httpClient *http.Client

	maxRetries int
}

func NewAnthropicProvider(apiKey string, log *logger.Logger) Provider {
	baseURL := utils.GetEnv("ANTHROPIC_BASE_URL", "https://api.anthropic.com", log)
	model := utils.GetEnv("ANTHROPIC_MODEL", "claude-3-5-haiku-latest", log)
	timeoutSec := utils.GetEnvAsInt("AI_REQUEST_TIMEOUT_SECONDS", 60, log)
	maxRetries := utils.GetEnvAsInt("ANTHROPIC_MAX_RETRIES", 3, log)

	return &anthropicProvider{
		log:        log.With("provider", "anthropic"),
		baseURL:    baseURL,
		apiKey:     apiKey,
		model:      model,
		httpClient: &http.Client{Timeout: time.Duration(timeoutSec) * time.Second},
		maxRetries: maxRetries,
	}
}

func (p *anthropicProvider) Name() string { return ProviderAnthropic }

type anthropicHTTPError struct {
	StatusCode int
	Body       string
}

func (e *anthropicHTTPError) Error() string {
	return fmt.Sprintf("anthropic http %d: %s", e.StatusCode, e.Body)
}

func isRetryableHTTP(code int) bool {
	if code == 408 || code == 429 {
		return true
	}
	if code >= 500 && code <= 599 {
		return true
	}
	return false
}

func isRetryableErr(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return true
	}
	var httpErr *anthropicHTTPError
	if errors.As(err, &httpErr) {
		return isRetryableHTTP(httpErr.StatusCode)
	}
	return false
}

func jitterSleep(base time.Duration) time.Duration {
	// +/- 20%
	if base <= 0 {
		return 0
	}
	j := 0.2
	delta := base.Seconds() * j
	low := base.Seconds() - delta
	high := base.Seconds() + delta
	if low < 0 {
		low = 0
	}
	v := low + rand.Float64()*(high-low)
	return time.Duration(v * float64(time.Second))
}

type anthropicMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type anthropicRequest struct {
	Model       string             `json:"model"`
	MaxTokens   int                `json:"max_tokens"`
	System      string             `json:"system,omitempty"`
	Messages    []anthropicMessage `json:"messages"`
	Temperature *float64           `json:"temperature,omitempty"`
	Stream      bool               `json:"stream,omitempty"`
}

type anthropicResponse struct {
	Content []struct {
		Type string `json:"type"`
		Text string `json:"text"`
	} `json:"content"`
	Usage struct {
		InputTokens  int `json:"input_tokens"`
		OutputTokens int `json:"output_tokens"`
	} `json:"usage"`
}

func (p *anthropicProvider) doOnce(ctx context.Context, body any) (*http.Response, []byte, error) {
	var buf bytes.Buffer
	if err := json.NewEncoder(&buf).Encode(body); err != nil {
		return nil, nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.baseURL+"/v1/messages", &buf)
	if err != nil {
		return nil, nil, err
	}
	req.Header.Set("x-api-key", p.apiKey)
	req.Header.Set("anthropic-version", anthropicVersion)
	req.Header.Set("Content-Type", "application/json")

	resp, err := p.httpClient.Do(req)
	if err != nil {
		return nil, nil, err
	}

	raw, readErr := io.ReadAll(resp.Body)
	_ = resp.Body.Close()
	if readErr != nil {
		return resp, nil, readErr
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return resp, raw, &anthropicHTTPError{StatusCode: resp.StatusCode, Body: string(raw)}
	}
	return resp, raw, nil
}

func (p *anthropicProvider) do(ctx context.Context, body any, out any) error {
	backoff := 1 * time.Second

	for attempt := 0; attempt <= p.maxRetries; attempt++ {
		if ctx.Err() != nil {
			return ctx.Err()
		}

		resp, raw, err := p.doOnce(ctx, body)
		if err == nil {
			if out == nil {
				return nil
			}
			if uErr := json.Unmarshal(raw, out); uErr != nil {
				return fmt.Errorf("anthropic decode error: %w", uErr)
			}
			return nil
		}

		if !isRetryableErr(err) {
			return err
		}
		if attempt == p.maxRetries {
			return err
		}

		sleepFor := backoff
		if resp != nil {
			ra := strings.TrimSpace(resp.Header.Get("Retry-After"))
			if ra != "" {
				if secs, parseErr := strconv.Atoi(ra); parseErr == nil && secs > 0 {
					sleepFor = time.Duration(secs) * time.Second
				}
			}
		}
		if sleepFor > 10*time.Second {
			sleepFor = 10 * time.Second
		}
		sleepFor = jitterSleep(sleepFor)

		p.log.Warn("Anthropic request retrying",
			"attempt", attempt+1,
			"max_retries", p.maxRetries,
			"sleep", sleepFor.String(),
			"error", err.Error(),
		)

		time.Sleep(sleepFor)
		backoff *= 2
	}

	return fmt.Errorf("unreachable retry loop")
}

func (p *anthropicProvider) GenerateText(ctx context.Context, prompt string, opts GenerateOpts) (string, error) {
	req := anthropicRequest{
		Model:     p.pickModel(opts.Model),
		MaxTokens: opts.MaxTokens,
		System:    opts.SystemPrompt,
		Messages:  []anthropicMessage{{Role: "user", Content: prompt}},
	}
	if req.MaxTokens <= 0 {
		req.MaxTokens = 1024
	}
	if opts.Temperature > 0 {
		req.Temperature = &opts.Temperature
	}

	var resp anthropicResponse
	if err := p.do(ctx, req, &resp); err != nil {
		return "", p.mapError(err)
	}
	var text strings.Builder
	for _, block := range resp.Content {
		if block.Type == "text" {
			text.WriteString(block.Text)
		}
	}
	if text.Len() == 0 {
		return "", apierr.Provider(fmt.Errorf("anthropic returned no text content"))
	}
	return text.String(), nil
}

func (p *anthropicProvider) Analyze(ctx context.Context, content string, analysisContext map[string]any) (map[string]any, error) {
	prompt := content
	if len(analysisContext) > 0 {
		if ctxJSON, err := json.Marshal(analysisContext); err == nil {
			prompt = fmt.Sprintf("Context: %s\n\nContent:\n%s", ctxJSON, content)
		}
	}
	text, err := p.GenerateText(ctx, prompt, GenerateOpts{
		SystemPrompt: "You analyze marketing content. Reply with a single JSON object and nothing else.",
		MaxTokens:    1024,
	})
	if err != nil {
		return nil, err
	}
	var out map[string]any
	if err := json.Unmarshal([]byte(strings.TrimSpace(text)), &out); err != nil {
		p.log.Warn("Analyze returned malformed JSON, using default payload", "error", err)
		return defaultAnalysis(content), nil
	}
	return out, nil
}

type anthropicStreamEvent struct {
	Type  string `json:"type"`
	Delta struct {
		Type string `json:"type"`
		Text string `json:"text"`
	} `json:"delta"`
	Message struct {
		Usage struct {
			InputTokens int `json:"input_tokens"`
		} `json:"usage"`
	} `json:"message"`
	Usage struct {
		OutputTokens int `json:"output_tokens"`
	} `json:"usage"`
}

func (p *anthropicProvider) StreamChat(ctx context.Context, req StreamRequest) (<-chan StreamEvent, error) {
	messages := make([]anthropicMessage, 0, len(req.History)+1)
	for _, m := range req.History {
		messages = append(messages, anthropicMessage{Role: m.Role, Content: m.Content})
	}
	messages = append(messages, anthropicMessage{Role: "user", Content: req.Message})

	body := anthropicRequest{
		Model:     p.pickModel(req.Model),
		MaxTokens: req.MaxTokens,
		System:    req.SystemPrompt,
		Messages:  messages,
		Stream:    true,
	}
	if body.MaxTokens <= 0 {
		body.MaxTokens = 1024
	}
	if req.Temperature > 0 {
		body.Temperature = &req.Temperature
	}

	var buf bytes.Buffer
	if err := json.NewEncoder(&buf).Encode(body); err != nil {
		return nil, apierr.Provider(err)
	}
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, p.baseURL+"/v1/messages", &buf)
	if err != nil {
		return nil, apierr.Provider(err)
	}
	httpReq.Header.Set("x-api-key", p.apiKey)
	httpReq.Header.Set("anthropic-version", anthropicVersion)
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Accept", "text/event-stream")

	resp, err := p.httpClient.Do(httpReq)
	if err != nil {
		return nil, p.mapError(err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		raw, _ := io.ReadAll(resp.Body)
		_ = resp.Body.Close()
		return nil, p.mapError(&anthropicHTTPError{StatusCode: resp.StatusCode, Body: string(raw)})
	}

	out := make(chan StreamEvent)
	go func() {
		defer close(out)
		defer resp.Body.Close()

		var full strings.Builder
		usage := &Usage{}

		parseErr := streamSSE(resp.Body, func(_ string, data string) error {
			var ev anthropicStreamEvent
			if err := json.Unmarshal([]byte(data), &ev); err != nil {
				return nil
			}
			switch ev.Type {
			case "message_start":
				usage.PromptTokens = ev.Message.Usage.InputTokens
			case "content_block_delta":
				if ev.Delta.Type == "text_delta" && ev.Delta.Text != "" {
					full.WriteString(ev.Delta.Text)
					select {
					case out <- StreamEvent{Delta: ev.Delta.Text}:
					case <-ctx.Done():
						return ctx.Err()
					}
				}
			case "message_delta":
				if ev.Usage.OutputTokens > 0 {
					usage.CompletionTokens = ev.Usage.OutputTokens
				}
			}
			return nil
		})
		if parseErr != nil {
			p.log.Warn("Anthropic stream terminated early", "error", parseErr)
			return
		}
		select {
		case out <- StreamEvent{Done: true, FullText: full.String(), Usage: usage}:
		case <-ctx.Done():
		}
	}()
	return out, nil
}

func (p *anthropicProvider) pickModel(override string) string {
	if strings.TrimSpace(override) != "" {
		return override
	}
	return p.model
}

func (p *anthropicProvider) mapError(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return apierr.Timeout(err)
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return apierr.Timeout(err)
	}
	var httpErr *anthropicHTTPError
	if errors.As(err, &httpErr) {
		switch {
		case httpErr.StatusCode == 401 || httpErr.StatusCode == 403:
			return apierr.Authentication(err)
		case httpErr.StatusCode == 429:
			return apierr.RateLimited(err)
		case httpErr.StatusCode == 408:
			return apierr.Timeout(err)
		}
	}
	return apierr.Provider(err)
}

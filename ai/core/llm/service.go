// Package llm provides the LLM provider client used by the tutoring core.
package llm

import (
	"context"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/sashabaranov/go-openai"
	"golang.org/x/time/rate"
)

// Message represents a chat message.
type Message struct {
	Role    string // system, user, assistant
	Content string
}

// Tier is a cost/quality level of LLM access.
type Tier string

const (
	TierQuality Tier = "quality"
	TierBalance Tier = "balance"
	TierEconomy Tier = "economy"
)

// GenerateRequest is a single provider generation request.
type GenerateRequest struct {
	Messages     []Message
	Instructions string // system prompt, prepended when non-empty
	Tier         Tier
	MaxTokens    int
	Temperature  float32
}

// GenerateResult carries the provider reply and its token usage.
type GenerateResult struct {
	Text         string
	InputTokens  int
	OutputTokens int
	DurationMs   int64
}

// Service is the LLM provider interface consumed by the orchestrator and the
// batch scheduler. Errors returned by Generate are raw transport errors; the
// fallback classifier translates them.
type Service interface {
	// Generate performs a synchronous generation call.
	Generate(ctx context.Context, req *GenerateRequest) (*GenerateResult, error)

	// Warmup sends a lightweight ping to establish the provider connection.
	Warmup(ctx context.Context)
}

// Config represents LLM service configuration.
type Config struct {
	Provider string // openai, deepseek, siliconflow, ollama
	APIKey   string
	BaseURL  string
	Timeout  int     // request timeout in seconds (default: 60)
	RPS      float64 // provider request rate limit (default: 2)

	// Models maps each tier to a concrete model name.
	Models map[Tier]string
}

type service struct {
	client  *openai.Client
	models  map[Tier]string
	timeout int
	limiter *rate.Limiter
}

// NewService creates a new LLM Service.
func NewService(cfg *Config) (Service, error) {
	if len(cfg.Models) == 0 {
		return nil, fmt.Errorf("no tier models configured")
	}

	clientConfig := openai.DefaultConfig(cfg.APIKey)
	if cfg.BaseURL != "" {
		clientConfig.BaseURL = cfg.BaseURL
	}
	clientConfig.HTTPClient = newHTTPClient()

	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 60
	}
	rps := cfg.RPS
	if rps <= 0 {
		rps = 2
	}

	return &service{
		client:  openai.NewClientWithConfig(clientConfig),
		models:  cfg.Models,
		timeout: timeout,
		limiter: rate.NewLimiter(rate.Limit(rps), 1),
	}, nil
}

// Model resolves the model for a tier, falling back to the economy model.
func (s *service) model(tier Tier) string {
	if m, ok := s.models[tier]; ok && m != "" {
		return m
	}
	return s.models[TierEconomy]
}

func (s *service) Generate(ctx context.Context, req *GenerateRequest) (*GenerateResult, error) {
	if err := s.limiter.Wait(ctx); err != nil {
		return nil, fmt.Errorf("rate limiter: %w", err)
	}

	ctx, cancel := context.WithTimeout(ctx, time.Duration(s.timeout)*time.Second)
	defer cancel()

	messages := req.Messages
	if req.Instructions != "" {
		messages = append([]Message{SystemPrompt(req.Instructions)}, messages...)
	}

	model := s.model(req.Tier)
	slog.Debug("LLM: generate request",
		"model", model,
		"tier", req.Tier,
		"messages_count", len(messages),
		"max_tokens", req.MaxTokens,
	)

	startTime := time.Now()
	resp, err := s.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model:       model,
		MaxTokens:   req.MaxTokens,
		Temperature: req.Temperature,
		Messages:    convertMessages(messages),
	})
	if err != nil {
		slog.Error("LLM: generate request failed", "model", model, "error", err)
		return nil, err
	}
	if len(resp.Choices) == 0 {
		slog.Warn("LLM: empty response")
		return nil, fmt.Errorf("empty response from LLM")
	}

	duration := time.Since(startTime)
	result := &GenerateResult{
		Text:         resp.Choices[0].Message.Content,
		InputTokens:  resp.Usage.PromptTokens,
		OutputTokens: resp.Usage.CompletionTokens,
		DurationMs:   duration.Milliseconds(),
	}

	slog.Debug("LLM: generate response received",
		"content_length", len(result.Text),
		"input_tokens", result.InputTokens,
		"output_tokens", result.OutputTokens,
		"duration_ms", result.DurationMs,
	)
	return result, nil
}

func (s *service) Warmup(ctx context.Context) {
	warmupCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	model := s.model(TierEconomy)
	startTime := time.Now()

	_, err := s.client.CreateChatCompletion(warmupCtx, openai.ChatCompletionRequest{
		Model:       model,
		MaxTokens:   1,
		Temperature: 0,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleUser, Content: "Hi"},
		},
	})
	if err != nil {
		slog.Warn("LLM: warmup ping failed (service will still work, first request may be slower)",
			"model", model,
			"error", err,
			"duration_ms", time.Since(startTime).Milliseconds(),
		)
		return
	}
	slog.Info("LLM: connection warmed up", "model", model, "duration_ms", time.Since(startTime).Milliseconds())
}

func convertMessages(messages []Message) []openai.ChatCompletionMessage {
	llmMessages := make([]openai.ChatCompletionMessage, len(messages))
	for i, m := range messages {
		role := openai.ChatMessageRoleUser
		switch m.Role {
		case "system":
			role = openai.ChatMessageRoleSystem
		case "assistant":
			role = openai.ChatMessageRoleAssistant
		}
		llmMessages[i] = openai.ChatCompletionMessage{Role: role, Content: m.Content}
	}
	return llmMessages
}

func newHTTPClient() *http.Client {
	return &http.Client{
		Timeout: 60 * time.Second,
		Transport: &http.Transport{
			DialContext: (&net.Dialer{
				Timeout:   30 * time.Second,
				KeepAlive: 30 * time.Second,
			}).DialContext,
			MaxIdleConns:          100,
			IdleConnTimeout:       90 * time.Second,
			TLSHandshakeTimeout:   10 * time.Second,
			ExpectContinueTimeout: 1 * time.Second,
		},
	}
}

// SystemPrompt creates a system message.
func SystemPrompt(content string) Message {
	return Message{Role: "system", Content: content}
}

// UserMessage creates a user message.
func UserMessage(content string) Message {
	return Message{Role: "user", Content: content}
}

// AssistantMessage creates an assistant message.
func AssistantMessage(content string) Message {
	return Message{Role: "assistant", Content: content}
}

package openai

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	openai "github.com/sashabaranov/go-openai"
	"go.uber.org/zap"

	"github.com/kailas-cloud/newsdigest/internal/domain"
	"github.com/kailas-cloud/newsdigest/internal/metrics"
)

// schemaName labels the enforced response format in the request.
const schemaName = "batch_result"

// Generator is an inference provider using the OpenAI-compatible chat API (OpenAI, Nebius, vLLM).
type Generator struct {
	client   *openai.Client
	model    string
	user     string
	provider string
	logger   *zap.Logger
}

// Config holds the chat provider settings.
type Config struct {
	APIKey   string
	BaseURL  string
	Model    string
	User     string
	Provider string
	Logger   *zap.Logger
}

// NewGenerator creates an OpenAI-compatible chat provider.
func NewGenerator(cfg *Config) *Generator {
	clientCfg := openai.DefaultConfig(cfg.APIKey)
	if cfg.BaseURL != "" {
		clientCfg.BaseURL = cfg.BaseURL
	}
	provider := cfg.Provider
	if provider == "" {
		provider = "openai"
	}
	log := cfg.Logger
	if log == nil {
		log = zap.NewNop()
	}

	return &Generator{
		client:   openai.NewClientWithConfig(clientCfg),
		model:    cfg.Model,
		user:     cfg.User,
		provider: provider,
		logger:   log,
	}
}

// Generate implements domain.Generator with a strict json_schema response format.
func (g *Generator) Generate(ctx context.Context, req domain.InferenceRequest) (domain.InferenceResponse, error) {
	messages := make([]openai.ChatCompletionMessage, 0, 2)
	if req.SystemInstruction != "" {
		messages = append(messages, openai.ChatCompletionMessage{
			Role:    openai.ChatMessageRoleSystem,
			Content: req.SystemInstruction,
		})
	}
	messages = append(messages, openai.ChatCompletionMessage{
		Role:    openai.ChatMessageRoleUser,
		Content: req.Prompt,
	})

	chatReq := openai.ChatCompletionRequest{
		Model:       g.model,
		Messages:    messages,
		Temperature: req.Temperature,
		User:        g.user,
	}
	if req.Schema != nil {
		chatReq.ResponseFormat = &openai.ChatCompletionResponseFormat{
			Type: openai.ChatCompletionResponseFormatTypeJSONSchema,
			JSONSchema: &openai.ChatCompletionResponseFormatJSONSchema{
				Name:   schemaName,
				Schema: req.Schema.JSONSchema(),
				Strict: true,
			},
		}
	}

	start := time.Now()

	resp, err := g.client.CreateChatCompletion(ctx, chatReq)

	duration := time.Since(start)

	if err != nil {
		parsed := parseAPIError(g.provider, err)
		errType := "api_error"
		if errors.Is(parsed, domain.ErrRateLimited) {
			errType = "rate_limited"
		}
		metrics.InferenceRequestsTotal.WithLabelValues(g.provider, g.model, "error").Inc()
		metrics.InferenceErrorsTotal.WithLabelValues(g.provider, g.model, errType).Inc()
		return domain.InferenceResponse{}, parsed
	}

	if len(resp.Choices) == 0 || strings.TrimSpace(resp.Choices[0].Message.Content) == "" {
		metrics.InferenceRequestsTotal.WithLabelValues(g.provider, g.model, "error").Inc()
		metrics.InferenceErrorsTotal.WithLabelValues(g.provider, g.model, "empty_response").Inc()
		return domain.InferenceResponse{}, fmt.Errorf("empty chat completion: %w", domain.ErrResponseInvalid)
	}

	metrics.InferenceRequestsTotal.WithLabelValues(g.provider, g.model, "success").Inc()
	metrics.InferenceRequestDuration.WithLabelValues(g.provider, g.model).Observe(duration.Seconds())

	promptTokens := resp.Usage.PromptTokens
	totalTokens := resp.Usage.TotalTokens
	if totalTokens > 0 {
		metrics.InferenceTokensTotal.WithLabelValues(g.provider, g.model, "prompt").Add(float64(promptTokens))
		metrics.InferenceTokensTotal.WithLabelValues(g.provider, g.model, "total").Add(float64(totalTokens))
	}

	return domain.InferenceResponse{
		Text:         resp.Choices[0].Message.Content,
		PromptTokens: promptTokens,
		TotalTokens:  totalTokens,
	}, nil
}

// HealthCheck verifies API availability via ListModels (free endpoint).
func (g *Generator) HealthCheck(ctx context.Context) error {
	if _, err := g.client.ListModels(ctx); err != nil {
		return fmt.Errorf("list models: %w", err)
	}
	return nil
}

// parseAPIError maps the upstream status onto domain errors: 429 becomes
// domain.ErrRateLimited, everything else domain.ErrProviderError.
func parseAPIError(provider string, err error) error {
	var reqErr *openai.RequestError
	if errors.As(err, &reqErr) {
		detail := extractDetail(reqErr.Body)
		if detail == "" {
			detail = strings.TrimSpace(string(reqErr.Body))
		}
		return domain.NewProviderStatusError(provider, reqErr.HTTPStatusCode, detail)
	}

	var apiErr *openai.APIError
	if errors.As(err, &apiErr) {
		return domain.NewProviderStatusError(provider, apiErr.HTTPStatusCode, apiErr.Message)
	}

	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return fmt.Errorf("chat request: %w", err)
	}
	return fmt.Errorf("chat request failed: %v: %w", err, domain.ErrProviderError)
}

// extractDetail extracts the "detail" field from a JSON error body (Nebius error format).
func extractDetail(body []byte) string {
	var parsed struct {
		Detail string `json:"detail"`
	}
	if json.Unmarshal(body, &parsed) == nil && parsed.Detail != "" {
		return parsed.Detail
	}
	return ""
}

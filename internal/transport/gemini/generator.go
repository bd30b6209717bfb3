// Package gemini implements domain.Generator on top of the Gemini API.
package gemini

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"
	"google.golang.org/genai"

	"github.com/kailas-cloud/newsdigest/internal/domain"
	"github.com/kailas-cloud/newsdigest/internal/metrics"
)

const (
	provider = "gemini"
	// DefaultModel fits the free-tier daily request allowance.
	DefaultModel = "gemini-2.0-flash"
)

// Config holds the Gemini provider settings.
type Config struct {
	APIKey  string
	Model   string
	BaseURL string // overrides the API endpoint, used by tests and proxies
	Logger  *zap.Logger
}

// Generator calls Models.GenerateContent with a JSON response schema.
type Generator struct {
	client *genai.Client
	model  string
	logger *zap.Logger
}

// NewGenerator creates a Gemini API client.
func NewGenerator(ctx context.Context, cfg *Config) (*Generator, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("gemini api key is required: %w", domain.ErrInvalidInput)
	}
	model := cfg.Model
	if model == "" {
		model = DefaultModel
	}
	log := cfg.Logger
	if log == nil {
		log = zap.NewNop()
	}

	clientCfg := &genai.ClientConfig{
		APIKey:  cfg.APIKey,
		Backend: genai.BackendGeminiAPI,
	}
	if cfg.BaseURL != "" {
		clientCfg.HTTPOptions = genai.HTTPOptions{BaseURL: cfg.BaseURL}
	}
	client, err := genai.NewClient(ctx, clientCfg)
	if err != nil {
		return nil, fmt.Errorf("create gemini client: %w", err)
	}

	return &Generator{client: client, model: model, logger: log}, nil
}

// Generate implements domain.Generator.
func (g *Generator) Generate(ctx context.Context, req domain.InferenceRequest) (domain.InferenceResponse, error) {
	temperature := req.Temperature
	config := &genai.GenerateContentConfig{
		Temperature:    &temperature,
		CandidateCount: 1,
	}
	if req.SystemInstruction != "" {
		config.SystemInstruction = genai.NewContentFromText(req.SystemInstruction, genai.RoleUser)
	}
	if req.Schema != nil {
		config.ResponseMIMEType = "application/json"
		config.ResponseSchema = toGenaiSchema(req.Schema)
	}

	start := time.Now()

	resp, err := g.client.Models.GenerateContent(ctx, g.model, genai.Text(req.Prompt), config)

	duration := time.Since(start)

	if err != nil {
		parsed := parseAPIError(err)
		errType := "api_error"
		if errors.Is(parsed, domain.ErrRateLimited) {
			errType = "rate_limited"
		}
		metrics.InferenceRequestsTotal.WithLabelValues(provider, g.model, "error").Inc()
		metrics.InferenceErrorsTotal.WithLabelValues(provider, g.model, errType).Inc()
		return domain.InferenceResponse{}, parsed
	}

	text := resp.Text()
	if strings.TrimSpace(text) == "" {
		reason := ""
		if len(resp.Candidates) > 0 {
			reason = string(resp.Candidates[0].FinishReason)
		}
		metrics.InferenceRequestsTotal.WithLabelValues(provider, g.model, "error").Inc()
		metrics.InferenceErrorsTotal.WithLabelValues(provider, g.model, "empty_response").Inc()
		return domain.InferenceResponse{}, fmt.Errorf("empty gemini response (finish reason %q): %w",
			reason, domain.ErrResponseInvalid)
	}

	metrics.InferenceRequestsTotal.WithLabelValues(provider, g.model, "success").Inc()
	metrics.InferenceRequestDuration.WithLabelValues(provider, g.model).Observe(duration.Seconds())

	out := domain.InferenceResponse{Text: text}
	if u := resp.UsageMetadata; u != nil {
		out.PromptTokens = int(u.PromptTokenCount)
		out.TotalTokens = int(u.TotalTokenCount)
		metrics.InferenceTokensTotal.WithLabelValues(provider, g.model, "prompt").Add(float64(out.PromptTokens))
		metrics.InferenceTokensTotal.WithLabelValues(provider, g.model, "total").Add(float64(out.TotalTokens))
	}
	return out, nil
}

// HealthCheck verifies that the configured model is reachable.
func (g *Generator) HealthCheck(ctx context.Context) error {
	if _, err := g.client.Models.Get(ctx, g.model, nil); err != nil {
		return fmt.Errorf("get model %s: %w", g.model, parseAPIError(err))
	}
	return nil
}

// Model returns the configured model name.
func (g *Generator) Model() string { return g.model }

func parseAPIError(err error) error {
	var apiErr genai.APIError
	if errors.As(err, &apiErr) {
		return domain.NewProviderStatusError(provider, apiErr.Code, apiErr.Message)
	}
	var apiErrPtr *genai.APIError
	if errors.As(err, &apiErrPtr) {
		return domain.NewProviderStatusError(provider, apiErrPtr.Code, apiErrPtr.Message)
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return fmt.Errorf("gemini request: %w", err)
	}
	return fmt.Errorf("gemini request failed: %v: %w", err, domain.ErrProviderError)
}

func toGenaiSchema(s *domain.Schema) *genai.Schema {
	if s == nil {
		return nil
	}
	out := &genai.Schema{
		Type:             genaiType(s.Type),
		Description:      s.Description,
		Required:         s.Required,
		PropertyOrdering: s.PropertyOrder,
		Minimum:          s.Minimum,
		Maximum:          s.Maximum,
		Items:            toGenaiSchema(s.Items),
	}
	if len(s.Properties) > 0 {
		out.Properties = make(map[string]*genai.Schema, len(s.Properties))
		for name, p := range s.Properties {
			out.Properties[name] = toGenaiSchema(p)
		}
	}
	return out
}

func genaiType(t domain.SchemaType) genai.Type {
	switch t {
	case domain.TypeObject:
		return genai.TypeObject
	case domain.TypeArray:
		return genai.TypeArray
	case domain.TypeInteger:
		return genai.TypeInteger
	default:
		return genai.TypeString
	}
}

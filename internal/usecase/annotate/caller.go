package annotate

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/kailas-cloud/newsdigest/internal/domain"
	"github.com/kailas-cloud/newsdigest/internal/logger"
	"github.com/kailas-cloud/newsdigest/internal/metrics"
)

// Stage names the protocol step a structured call belongs to.
type Stage string

const (
	StageGenerate Stage = "generate"
	StageAudit    Stage = "audit"
	StageRecovery Stage = "recovery"
	StageSingle   Stage = "single"
)

// DefaultTemperature keeps categorization near-deterministic.
const DefaultTemperature float32 = 0.2

// Caller is the structured call client: it retries a prompt until the model
// returns a payload that decodes into a BatchResult, or gives up.
type Caller struct {
	gen         Generator
	policy      RetryPolicy
	system      string
	schema      *domain.Schema
	temperature float32
	sleep       Sleeper
}

// NewCaller creates a caller enforcing schema on every request.
func NewCaller(gen Generator, policy RetryPolicy, system string, schema *domain.Schema) *Caller {
	return &Caller{
		gen:         gen,
		policy:      policy,
		system:      system,
		schema:      schema,
		temperature: DefaultTemperature,
		sleep:       sleepContext,
	}
}

// WithTemperature overrides the sampling temperature. Negative values are ignored.
func (c *Caller) WithTemperature(t float32) *Caller {
	if t >= 0 {
		c.temperature = t
	}
	return c
}

// WithSleeper replaces the backoff wait, mainly for tests.
func (c *Caller) WithSleeper(s Sleeper) *Caller {
	if s != nil {
		c.sleep = s
	}
	return c
}

// Call runs prompt through the retry ladder. The second return value is false
// when every attempt failed; no error ever reaches the caller.
func (c *Caller) Call(ctx context.Context, stage Stage, prompt string) (domain.BatchResult, bool) {
	log := logger.FromContext(ctx).With(zap.String("stage", string(stage)))
	req := domain.InferenceRequest{
		Prompt:            prompt,
		SystemInstruction: c.system,
		Temperature:       c.temperature,
		Schema:            c.schema,
	}

	maxAttempts := c.policy.attempts()
	for attempt := 1; attempt <= maxAttempts; attempt++ {
		result, err := c.attempt(ctx, req)
		metrics.CallAttemptsTotal.WithLabelValues(string(stage), outcome(err)).Inc()
		if err == nil {
			log.Debug("Structured call succeeded",
				zap.Int("attempt", attempt),
				zap.Int("articles", len(result.Articles)),
			)
			metrics.CallResultsTotal.WithLabelValues(string(stage), "ok").Inc()
			return result, true
		}

		if attempt == maxAttempts || !c.policy.Retryable(err) {
			log.Error("Structured call failed",
				zap.Int("attempt", attempt),
				zap.Int("max_attempts", maxAttempts),
				zap.Error(err),
			)
			break
		}

		delay := c.policy.Delay(err, attempt)
		log.Warn("Structured call attempt failed, retrying",
			zap.Int("attempt", attempt),
			zap.Int("max_attempts", maxAttempts),
			zap.Duration("backoff", delay),
			zap.Error(err),
		)
		if err := c.sleep(ctx, delay); err != nil {
			log.Warn("Retry wait interrupted", zap.Error(err))
			break
		}
	}

	metrics.CallResultsTotal.WithLabelValues(string(stage), "exhausted").Inc()
	return domain.BatchResult{}, false
}

func (c *Caller) attempt(ctx context.Context, req domain.InferenceRequest) (domain.BatchResult, error) {
	if err := ctx.Err(); err != nil {
		return domain.BatchResult{}, fmt.Errorf("call aborted: %w", err)
	}
	start := time.Now()
	resp, err := c.gen.Generate(ctx, req)
	if err != nil {
		return domain.BatchResult{}, fmt.Errorf("generate after %s: %w", time.Since(start).Round(time.Millisecond), err)
	}
	result, err := domain.DecodeBatchResult(resp.Text)
	if err != nil {
		return domain.BatchResult{}, fmt.Errorf("validate: %w", err)
	}
	return result, nil
}

func outcome(err error) string {
	switch {
	case err == nil:
		return "ok"
	case errors.Is(err, domain.ErrRateLimited):
		return "rate_limited"
	case errors.Is(err, domain.ErrResponseInvalid):
		return "invalid"
	case errors.Is(err, domain.ErrQuotaExceeded):
		return "quota"
	default:
		return "error"
	}
}

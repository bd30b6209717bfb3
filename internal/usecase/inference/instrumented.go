// Package inference decorates a domain.Generator with request budgeting and logging.
package inference

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/kailas-cloud/newsdigest/internal/domain"
	"github.com/kailas-cloud/newsdigest/internal/metrics"
)

// BudgetChecker is the local interface for budget enforcement.
type BudgetChecker interface {
	Check(ctx context.Context) error
	Record(n int64)
	RemainingDaily() int64
	RemainingMonthly() int64
}

// InstrumentedGenerator wraps a Generator with budget enforcement and logging.
// Transport metrics are recorded by the transports; this layer owns the budget.
type InstrumentedGenerator struct {
	inner    domain.Generator
	provider string
	model    string
	budget   BudgetChecker
	logger   *zap.Logger
}

// NewInstrumentedGenerator wraps inner. budget may be nil.
func NewInstrumentedGenerator(
	inner domain.Generator, provider, model string,
	budget BudgetChecker, logger *zap.Logger,
) *InstrumentedGenerator {
	return &InstrumentedGenerator{
		inner:    inner,
		provider: provider,
		model:    model,
		budget:   budget,
		logger:   logger,
	}
}

// Generate checks the budget, delegates, and counts the request.
// Responses served from cache do not consume budget.
func (p *InstrumentedGenerator) Generate(
	ctx context.Context, req domain.InferenceRequest,
) (domain.InferenceResponse, error) {
	if p.budget != nil {
		if err := p.budget.Check(ctx); err != nil {
			p.logger.Error("Budget exceeded",
				zap.String("provider", p.provider),
				zap.String("model", p.model),
				zap.Error(err),
			)
			return domain.InferenceResponse{}, fmt.Errorf("budget check: %w", err)
		}
	}

	start := time.Now()

	resp, err := p.inner.Generate(ctx, req)

	duration := time.Since(start)

	if err != nil {
		p.logger.Warn("Inference request failed",
			zap.String("provider", p.provider),
			zap.String("model", p.model),
			zap.Duration("duration", duration),
			zap.Error(err),
		)
		// A request the provider rejected still counts against its quota.
		if !errors.Is(err, context.Canceled) && !errors.Is(err, context.DeadlineExceeded) {
			p.record()
		}
		return domain.InferenceResponse{}, fmt.Errorf("generate: %w", err)
	}

	if !resp.Cached {
		p.record()
	}

	p.logger.Debug("Inference request completed",
		zap.String("provider", p.provider),
		zap.String("model", p.model),
		zap.Duration("duration", duration),
		zap.Bool("cached", resp.Cached),
		zap.Int("prompt_tokens", resp.PromptTokens),
		zap.Int("total_tokens", resp.TotalTokens),
	)
	return resp, nil
}

func (p *InstrumentedGenerator) record() {
	if p.budget == nil {
		return
	}
	p.budget.Record(1)
	remaining := metrics.InferenceBudgetRemaining
	remaining.WithLabelValues(p.provider, "daily").Set(float64(p.budget.RemainingDaily()))
	remaining.WithLabelValues(p.provider, "monthly").Set(float64(p.budget.RemainingMonthly()))
}

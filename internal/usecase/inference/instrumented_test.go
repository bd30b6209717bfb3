package inference

import (
	"context"
	"errors"
	"os"
	"testing"

	"go.uber.org/zap"

	"github.com/kailas-cloud/newsdigest/internal/domain"
	"github.com/kailas-cloud/newsdigest/internal/metrics"
)

func TestMain(m *testing.M) {
	metrics.Register()
	os.Exit(m.Run())
}

type mockGenerator struct {
	resp  domain.InferenceResponse
	err   error
	calls int
}

func (m *mockGenerator) Generate(_ context.Context, _ domain.InferenceRequest) (domain.InferenceResponse, error) {
	m.calls++
	return m.resp, m.err
}

func TestInstrumentedGenerator_Success(t *testing.T) {
	inner := &mockGenerator{resp: domain.InferenceResponse{Text: `{"articles":[]}`, TotalTokens: 12}}
	budget := NewBudgetTracker("test", 10, 0, BudgetActionReject, zap.NewNop())
	p := NewInstrumentedGenerator(inner, "test", "test-model", budget, zap.NewNop())

	resp, err := p.Generate(context.Background(), domain.InferenceRequest{Prompt: "p"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if resp.Text != `{"articles":[]}` {
		t.Errorf("unexpected text %q", resp.Text)
	}
	if budget.DailyUsed() != 1 {
		t.Errorf("expected one request recorded, got %d", budget.DailyUsed())
	}
}

func TestInstrumentedGenerator_NilBudget(t *testing.T) {
	inner := &mockGenerator{resp: domain.InferenceResponse{Text: "x"}}
	p := NewInstrumentedGenerator(inner, "test", "m", nil, zap.NewNop())

	if _, err := p.Generate(context.Background(), domain.InferenceRequest{}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestInstrumentedGenerator_BudgetRejects(t *testing.T) {
	inner := &mockGenerator{resp: domain.InferenceResponse{Text: "x"}}
	budget := NewBudgetTracker("test", 1, 0, BudgetActionReject, zap.NewNop())
	budget.Record(1)
	p := NewInstrumentedGenerator(inner, "test", "m", budget, zap.NewNop())

	_, err := p.Generate(context.Background(), domain.InferenceRequest{})

	if !errors.Is(err, domain.ErrQuotaExceeded) {
		t.Fatalf("expected domain.ErrQuotaExceeded, got %v", err)
	}
	if inner.calls != 0 {
		t.Errorf("inner must not be called when budget rejects, got %d calls", inner.calls)
	}
}

func TestInstrumentedGenerator_CachedDoesNotConsumeBudget(t *testing.T) {
	inner := &mockGenerator{resp: domain.InferenceResponse{Text: "x", Cached: true}}
	budget := NewBudgetTracker("test", 5, 0, BudgetActionReject, zap.NewNop())
	p := NewInstrumentedGenerator(inner, "test", "m", budget, zap.NewNop())

	for range 3 {
		if _, err := p.Generate(context.Background(), domain.InferenceRequest{}); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
	}
	if budget.DailyUsed() != 0 {
		t.Errorf("cached responses must not be counted, got %d", budget.DailyUsed())
	}
}

func TestInstrumentedGenerator_ErrorPropagates(t *testing.T) {
	upstream := domain.NewProviderStatusError("test", 429, "slow down")
	inner := &mockGenerator{err: upstream}
	budget := NewBudgetTracker("test", 5, 0, BudgetActionReject, zap.NewNop())
	p := NewInstrumentedGenerator(inner, "test", "m", budget, zap.NewNop())

	_, err := p.Generate(context.Background(), domain.InferenceRequest{})

	if !errors.Is(err, domain.ErrRateLimited) {
		t.Fatalf("expected wrapped domain.ErrRateLimited, got %v", err)
	}
	if budget.DailyUsed() != 1 {
		t.Errorf("rejected request should be counted, got %d", budget.DailyUsed())
	}
}

func TestInstrumentedGenerator_CancelledNotCounted(t *testing.T) {
	inner := &mockGenerator{err: context.Canceled}
	budget := NewBudgetTracker("test", 5, 0, BudgetActionReject, zap.NewNop())
	p := NewInstrumentedGenerator(inner, "test", "m", budget, zap.NewNop())

	_, err := p.Generate(context.Background(), domain.InferenceRequest{})

	if !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
	if budget.DailyUsed() != 0 {
		t.Errorf("cancelled request must not be counted, got %d", budget.DailyUsed())
	}
}

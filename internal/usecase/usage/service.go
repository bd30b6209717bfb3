package usage

import (
	"context"
	"time"

	domusage "github.com/kailas-cloud/newsdigest/internal/domain/usage"
)

// Service reports provider request usage.
type Service struct {
	br       BudgetReader
	provider string
	now      func() time.Time
}

// New creates a Service. br can be nil (unlimited mode, nothing counted).
func New(br BudgetReader, provider string) *Service {
	return &Service{
		br:       br,
		provider: provider,
		now:      func() time.Time { return time.Now().UTC() },
	}
}

// WithClock overrides the time source, mainly for tests.
func (s *Service) WithClock(now func() time.Time) *Service {
	if now != nil {
		s.now = now
	}
	return s
}

// GetReport builds a usage report for the given window.
func (s *Service) GetReport(_ context.Context, period domusage.Period) domusage.Report {
	now := s.now()
	var start, end time.Time
	var used, limit, remaining int64

	switch period {
	case domusage.PeriodMonth:
		start = time.Date(now.Year(), now.Month(), 1, 0, 0, 0, 0, time.UTC)
		end = start.AddDate(0, 1, 0)
		if s.br != nil {
			used, limit, remaining = s.br.MonthlyUsed(), s.br.MonthlyLimit(), s.br.RemainingMonthly()
		}
	default:
		period = domusage.PeriodDay
		start = time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.UTC)
		end = start.Add(24 * time.Hour)
		if s.br != nil {
			used, limit, remaining = s.br.DailyUsed(), s.br.DailyLimit(), s.br.RemainingDaily()
		}
	}

	return domusage.NewReport(period, start, end, s.provider, used, limit, remaining)
}

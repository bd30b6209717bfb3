package health

import (
	"context"
	"time"
)

// Status represents the aggregated health status.
type Status string

const (
	// Healthy indicates all components are operational.
	Healthy Status = "ok"
	// Degraded indicates partial failure.
	Degraded Status = "degraded"
	// Unhealthy indicates every component failed.
	Unhealthy Status = "error"
)

// CheckResult represents an individual component health check outcome.
type CheckResult string

const (
	CheckOK    CheckResult = "ok"
	CheckError CheckResult = "error"
)

// Component names reported by Check.
const (
	ComponentCache    = "cache"
	ComponentArchive  = "archive"
	ComponentProvider = "inference"
)

// DefaultCheckTimeout bounds every single component check.
const DefaultCheckTimeout = 3 * time.Second

// Report aggregates health check results.
type Report struct {
	Status Status
	Checks map[string]CheckResult
}

type check struct {
	name string
	fn   func(ctx context.Context) error
}

// Service coordinates health checks. Components that were not configured are
// not reported.
type Service struct {
	checks  []check
	timeout time.Duration
}

// New creates a Service. Any argument may be nil.
func New(cache, archive Pinger, provider ProviderChecker) *Service {
	s := &Service{timeout: DefaultCheckTimeout}
	if cache != nil {
		s.checks = append(s.checks, check{ComponentCache, cache.Ping})
	}
	if archive != nil {
		s.checks = append(s.checks, check{ComponentArchive, archive.Ping})
	}
	if provider != nil {
		s.checks = append(s.checks, check{ComponentProvider, provider.HealthCheck})
	}
	return s
}

// WithTimeout overrides the per-component timeout.
func (s *Service) WithTimeout(d time.Duration) *Service {
	if d > 0 {
		s.timeout = d
	}
	return s
}

// Check runs health checks against all components.
func (s *Service) Check(ctx context.Context) Report {
	checks := make(map[string]CheckResult, len(s.checks))
	failed := 0
	for _, c := range s.checks {
		cctx, cancel := context.WithTimeout(ctx, s.timeout)
		err := c.fn(cctx)
		cancel()
		if err != nil {
			checks[c.name] = CheckError
			failed++
			continue
		}
		checks[c.name] = CheckOK
	}

	status := Healthy
	switch {
	case failed == 0:
	case failed == len(s.checks):
		status = Unhealthy
	default:
		status = Degraded
	}
	return Report{Status: status, Checks: checks}
}

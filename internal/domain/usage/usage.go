// Package usage describes provider request usage against the configured budget.
package usage

import "time"

// Period is the budget window a report covers.
type Period string

// Budget window constants.
const (
	PeriodDay   Period = "day"
	PeriodMonth Period = "month"
)

// ParsePeriod maps a query value to a Period. Empty means PeriodDay.
func ParsePeriod(s string) (Period, bool) {
	switch Period(s) {
	case "", PeriodDay:
		return PeriodDay, true
	case PeriodMonth:
		return PeriodMonth, true
	default:
		return "", false
	}
}

// Report is a snapshot of provider requests for one budget window.
type Report struct {
	period      Period
	periodStart time.Time
	periodEnd   time.Time
	provider    string
	used        int64
	limit       int64
	remaining   int64
}

// NewReport creates a usage report. limit == 0 means unlimited.
func NewReport(period Period, start, end time.Time, provider string, used, limit, remaining int64) Report {
	if limit == 0 {
		remaining = -1
	}
	return Report{
		period:      period,
		periodStart: start,
		periodEnd:   end,
		provider:    provider,
		used:        used,
		limit:       limit,
		remaining:   remaining,
	}
}

// Period returns the budget window.
func (r Report) Period() Period { return r.period }

// PeriodStart returns the window start.
func (r Report) PeriodStart() time.Time { return r.periodStart }

// PeriodEnd returns the window end, which is also when the counter resets.
func (r Report) PeriodEnd() time.Time { return r.periodEnd }

// Provider returns the inference provider name.
func (r Report) Provider() string { return r.provider }

// Used returns the requests made in the window.
func (r Report) Used() int64 { return r.used }

// Limit returns the request cap (0 if unlimited).
func (r Report) Limit() int64 { return r.limit }

// Remaining returns the requests left (-1 if unlimited).
func (r Report) Remaining() int64 { return r.remaining }

// Unlimited reports whether the window has no cap.
func (r Report) Unlimited() bool { return r.limit == 0 }

// Exhausted reports whether a capped window is spent.
func (r Report) Exhausted() bool { return r.limit > 0 && r.remaining <= 0 }

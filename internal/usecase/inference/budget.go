package inference

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/kailas-cloud/newsdigest/internal/domain"
)

// BudgetAction defines behavior when the request budget is exhausted.
type BudgetAction string

const (
	// BudgetActionWarn logs a warning but lets the request through.
	BudgetActionWarn BudgetAction = "warn"
	// BudgetActionReject fails the request with domain.ErrQuotaExceeded.
	BudgetActionReject BudgetAction = "reject"
)

// BudgetStore persists budget counters across restarts.
// IncrBy must be safe to call repeatedly.
type BudgetStore interface {
	IncrBy(ctx context.Context, key string, val int64) error
	Get(ctx context.Context, key string) (int64, error)
}

// window is one calendar period of the budget.
type window struct {
	name     string
	limit    int64
	used     int64
	start    time.Time
	truncate func(time.Time) time.Time
	layout   string
}

func (w *window) roll(now time.Time) {
	if cur := w.truncate(now); cur.After(w.start) {
		w.start = cur
		w.used = 0
	}
}

func (w *window) exceeded() bool { return w.limit > 0 && w.used >= w.limit }

func (w *window) remaining() int64 {
	if w.limit == 0 {
		return -1
	}
	return max(w.limit-w.used, 0)
}

// BudgetTracker caps provider requests per day and per month.
// Check never leaves memory; Record persists write-behind when a store is attached.
type BudgetTracker struct {
	mu       sync.Mutex
	day      window
	month    window
	action   BudgetAction
	provider string
	store    BudgetStore
	now      func() time.Time
	logger   *zap.Logger
}

// NewBudgetTracker creates a tracker. A zero limit means unlimited.
func NewBudgetTracker(
	provider string, dailyLimit, monthlyLimit int64,
	action BudgetAction, logger *zap.Logger,
) *BudgetTracker {
	b := &BudgetTracker{
		day:      window{name: "daily", limit: dailyLimit, truncate: truncateToDay, layout: "2006-01-02"},
		month:    window{name: "monthly", limit: monthlyLimit, truncate: truncateToMonth, layout: "2006-01"},
		action:   action,
		provider: provider,
		now:      func() time.Time { return time.Now().UTC() },
		logger:   logger,
	}
	b.reset()
	return b
}

func (b *BudgetTracker) reset() {
	now := b.now()
	b.day.start, b.day.used = truncateToDay(now), 0
	b.month.start, b.month.used = truncateToMonth(now), 0
}

// WithStore attaches a persistence store and loads the current counters.
func (b *BudgetTracker) WithStore(ctx context.Context, store BudgetStore) *BudgetTracker {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.store = store
	for _, w := range []*window{&b.day, &b.month} {
		key := b.key(w, w.start)
		val, err := store.Get(ctx, key)
		if err != nil {
			b.logger.Warn("Failed to load budget from store", zap.String("key", key), zap.Error(err))
			continue
		}
		w.used = val
	}

	b.logger.Info("Budget loaded from store",
		zap.String("provider", b.provider),
		zap.Int64("daily_used", b.day.used),
		zap.Int64("monthly_used", b.month.used),
	)
	return b
}

func (b *BudgetTracker) key(w *window, t time.Time) string {
	return fmt.Sprintf("%sbudget:%s:%s:%s", domain.KeyPrefix, b.provider, w.name, t.Format(w.layout))
}

// Check verifies the budget allows another request.
func (b *BudgetTracker) Check(_ context.Context) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.rollLocked()
	if !b.day.exceeded() && !b.month.exceeded() {
		return nil
	}

	if b.action == BudgetActionReject {
		return fmt.Errorf("%s request budget exhausted: %w", b.provider, domain.ErrQuotaExceeded)
	}

	b.logger.Warn("Request budget exceeded",
		zap.String("provider", b.provider),
		zap.Int64("daily_used", b.day.used),
		zap.Int64("daily_limit", b.day.limit),
		zap.Int64("monthly_used", b.month.used),
		zap.Int64("monthly_limit", b.month.limit),
	)
	return nil
}

// Record counts n requests against both windows and persists them.
func (b *BudgetTracker) Record(n int64) {
	b.mu.Lock()
	b.rollLocked()
	b.day.used += n
	b.month.used += n
	store := b.store
	keys := []string{b.key(&b.day, b.day.start), b.key(&b.month, b.month.start)}
	b.mu.Unlock()

	if store == nil {
		return
	}

	// Background context: a cancelled request must not lose the increment.
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	for _, key := range keys {
		if err := store.IncrBy(ctx, key, n); err != nil {
			b.logger.Warn("Failed to persist budget", zap.String("key", key), zap.Error(err))
		}
	}
}

// DailyLimit returns the daily request cap (0 if unlimited).
func (b *BudgetTracker) DailyLimit() int64 { return b.day.limit }

// MonthlyLimit returns the monthly request cap (0 if unlimited).
func (b *BudgetTracker) MonthlyLimit() int64 { return b.month.limit }

// RemainingDaily returns requests left today (-1 if unlimited).
func (b *BudgetTracker) RemainingDaily() int64 {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.rollLocked()
	return b.day.remaining()
}

// RemainingMonthly returns requests left this month (-1 if unlimited).
func (b *BudgetTracker) RemainingMonthly() int64 {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.rollLocked()
	return b.month.remaining()
}

// DailyUsed returns requests made today.
func (b *BudgetTracker) DailyUsed() int64 {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.rollLocked()
	return b.day.used
}

// MonthlyUsed returns requests made this month.
func (b *BudgetTracker) MonthlyUsed() int64 {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.rollLocked()
	return b.month.used
}

func (b *BudgetTracker) rollLocked() {
	now := b.now()
	b.day.roll(now)
	b.month.roll(now)
}

func truncateToDay(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}

func truncateToMonth(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), 1, 0, 0, 0, 0, time.UTC)
}

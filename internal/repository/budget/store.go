package budget

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/kailas-cloud/newsdigest/internal/db"
)

// Default retention of persisted counters. A counter only has to outlive its
// own calendar window plus some slack for late reads.
const (
	DefaultDailyTTL   = 48 * time.Hour
	DefaultMonthlyTTL = 62 * 24 * time.Hour
)

type counterStore interface {
	Get(ctx context.Context, key string) ([]byte, error)
	IncrBy(ctx context.Context, key string, val int64) error
	Expire(ctx context.Context, key string, ttl time.Duration, nx bool) error
}

// Store persists provider request counters in the key-value store.
// Keys look like newsdigest:budget:{provider}:{daily|monthly}:{period}.
type Store struct {
	kv         counterStore
	dailyTTL   time.Duration
	monthlyTTL time.Duration
}

// New creates a counter store. Non-positive TTLs take the defaults.
func New(kv counterStore, dailyTTL, monthlyTTL time.Duration) *Store {
	if dailyTTL <= 0 {
		dailyTTL = DefaultDailyTTL
	}
	if monthlyTTL <= 0 {
		monthlyTTL = DefaultMonthlyTTL
	}
	return &Store{kv: kv, dailyTTL: dailyTTL, monthlyTTL: monthlyTTL}
}

// IncrBy adds val to the counter. The expiry is set once, on the first
// increment of the window, so later writes never extend it.
func (s *Store) IncrBy(ctx context.Context, key string, val int64) error {
	if err := s.kv.IncrBy(ctx, key, val); err != nil {
		return fmt.Errorf("increment request counter %s: %w", key, err)
	}
	if err := s.kv.Expire(ctx, key, s.ttl(key), true); err != nil {
		return fmt.Errorf("expire request counter %s: %w", key, err)
	}
	return nil
}

// Get returns the counter value, 0 for a counter never written.
func (s *Store) Get(ctx context.Context, key string) (int64, error) {
	raw, err := s.kv.Get(ctx, key)
	switch {
	case errors.Is(err, db.ErrKeyNotFound):
		return 0, nil
	case err != nil:
		return 0, fmt.Errorf("read request counter %s: %w", key, err)
	}

	n, err := strconv.ParseInt(strings.TrimSpace(string(raw)), 10, 64)
	if err != nil {
		return 0, fmt.Errorf("request counter %s holds %q: %w", key, raw, err)
	}
	return n, nil
}

func (s *Store) ttl(key string) time.Duration {
	if strings.Contains(key, ":daily:") {
		return s.dailyTTL
	}
	return s.monthlyTTL
}

// Package respcache caches validated inference responses in the KV store.
package respcache

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"

	"github.com/kailas-cloud/newsdigest/internal/db"
	"github.com/kailas-cloud/newsdigest/internal/domain"
)

var cacheKeyPrefix = domain.KeyPrefix + "resp_cache:"

// store is the consumer interface for the response cache (ISP).
type store interface {
	Get(ctx context.Context, key string) ([]byte, error)
	Set(ctx context.Context, key string, value []byte) error
	SetWithTTL(ctx context.Context, key string, value []byte, ttl time.Duration) error
}

// CachedGenerator replays earlier answers to identical requests.
// Only payloads that decode into a BatchResult are stored, so a malformed
// answer is never replayed into a retry.
type CachedGenerator struct {
	inner      domain.Generator
	store      store
	model      string
	ttl        time.Duration
	cacheTotal *prometheus.CounterVec
	logger     *zap.Logger
}

// New creates a caching decorator. ttl <= 0 keeps entries forever.
// cacheTotal is a counter vec with label "result" ("hit"/"miss"/"skip"), passed explicitly.
func New(
	inner domain.Generator,
	s store,
	model string,
	ttl time.Duration,
	cacheTotal *prometheus.CounterVec,
	logger *zap.Logger,
) *CachedGenerator {
	return &CachedGenerator{
		inner:      inner,
		store:      s,
		model:      model,
		ttl:        ttl,
		cacheTotal: cacheTotal,
		logger:     logger,
	}
}

// Generate returns a cached response or calls the inner generator.
// Cache hits carry Cached=true and no token usage.
func (c *CachedGenerator) Generate(ctx context.Context, req domain.InferenceRequest) (domain.InferenceResponse, error) {
	key := c.cacheKey(req)

	if text, ok := c.getFromCache(ctx, key); ok {
		c.incCache("hit")
		return domain.InferenceResponse{Text: text, Cached: true}, nil
	}

	c.incCache("miss")

	resp, err := c.inner.Generate(ctx, req)
	if err != nil {
		return domain.InferenceResponse{}, fmt.Errorf("generate: %w", err)
	}

	if _, err := domain.DecodeBatchResult(resp.Text); err != nil {
		c.incCache("skip")
		return resp, nil
	}
	c.putToCache(ctx, key, resp.Text)
	return resp, nil
}

func (c *CachedGenerator) incCache(result string) {
	if c.cacheTotal != nil {
		c.cacheTotal.WithLabelValues(result).Inc()
	}
}

// cacheKey covers every request field that can change the answer.
func (c *CachedGenerator) cacheKey(req domain.InferenceRequest) string {
	h := sha256.New()
	for _, part := range []string{
		c.model,
		req.SystemInstruction,
		strconv.FormatFloat(float64(req.Temperature), 'f', 3, 32),
		schemaFingerprint(req.Schema),
		req.Prompt,
	} {
		h.Write([]byte(part))
		h.Write([]byte{0})
	}
	return cacheKeyPrefix + hex.EncodeToString(h.Sum(nil))
}

func schemaFingerprint(s *domain.Schema) string {
	if s == nil {
		return ""
	}
	return string(s.JSONSchema())
}

func (c *CachedGenerator) getFromCache(ctx context.Context, key string) (string, bool) {
	data, err := c.store.Get(ctx, key)
	if err != nil {
		if !errors.Is(err, db.ErrKeyNotFound) {
			c.logger.Warn("Failed to get cached response", zap.String("key", key), zap.Error(err))
		}
		return "", false
	}
	if len(data) == 0 {
		return "", false
	}
	if _, err := domain.DecodeBatchResult(string(data)); err != nil {
		c.logger.Warn("Discarding invalid cached response", zap.String("key", key), zap.Error(err))
		return "", false
	}
	return string(data), true
}

func (c *CachedGenerator) putToCache(ctx context.Context, key, text string) {
	var err error
	if c.ttl > 0 {
		err = c.store.SetWithTTL(ctx, key, []byte(text), c.ttl)
	} else {
		err = c.store.Set(ctx, key, []byte(text))
	}
	if err != nil {
		c.logger.Warn("Failed to cache response", zap.String("key", key), zap.Error(err))
	}
}

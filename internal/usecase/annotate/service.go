package annotate

import (
	"context"
	"sort"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/semaphore"

	"github.com/kailas-cloud/newsdigest/internal/domain"
	"github.com/kailas-cloud/newsdigest/internal/logger"
	"github.com/kailas-cloud/newsdigest/internal/metrics"
)

// Config tunes the protocol and its pacing.
type Config struct {
	Annotation  domain.AnnotationConfig
	Retry       RetryPolicy
	LegacyRetry RetryPolicy
	// PassDelay separates generate and audit of one chunk; ChunkDelay separates chunks;
	// RecoveryDelay precedes every recovery call.
	PassDelay     time.Duration
	ChunkDelay    time.Duration
	RecoveryDelay time.Duration
	// AuditGapFallback keeps the draft annotation for an index the audit dropped
	// instead of routing it to recovery.
	AuditGapFallback bool
}

// DefaultConfig paces calls for a free-tier per-minute request quota.
func DefaultConfig() Config {
	return Config{
		Annotation:       domain.DefaultAnnotationConfig(),
		Retry:            AuditedRetryPolicy(),
		LegacyRetry:      LegacyRetryPolicy(),
		PassDelay:        5 * time.Second,
		ChunkDelay:       5 * time.Second,
		RecoveryDelay:    5 * time.Second,
		AuditGapFallback: true,
	}
}

// Service annotates items with the generate/audit/recover protocol.
// Chunks and passes run strictly one after another, and concurrent callers
// queue behind the run in progress: the provider quota is global.
type Service struct {
	gate     *semaphore.Weighted
	caller   StructuredCaller
	single   StructuredCaller
	prompts  *Prompter
	taxonomy domain.Taxonomy
	cfg      Config
	sleep    Sleeper
	logger   *zap.Logger
}

// New creates an annotation service over gen.
func New(gen Generator, taxonomy domain.Taxonomy, cfg Config, logger *zap.Logger) *Service {
	if logger == nil {
		logger = zap.NewNop()
	}
	cfg.Annotation = cfg.Annotation.WithDefaults()
	prompts := NewPrompter(taxonomy, cfg.Annotation)
	schema := domain.BatchResultSchema(taxonomy.Len())
	system := prompts.SystemInstruction()

	return &Service{
		gate: semaphore.NewWeighted(1),
		caller: NewCaller(gen, cfg.Retry, system, schema).
			WithTemperature(*cfg.Annotation.Temperature),
		single: NewCaller(gen, cfg.LegacyRetry, system, schema).
			WithTemperature(*cfg.Annotation.Temperature),
		prompts:  prompts,
		taxonomy: taxonomy,
		cfg:      cfg,
		sleep:    sleepContext,
		logger:   logger,
	}
}

// WithSleeper replaces every wait of the service and its callers, mainly for tests.
func (s *Service) WithSleeper(sl Sleeper) *Service {
	if sl == nil {
		return s
	}
	s.sleep = sl
	for _, c := range []StructuredCaller{s.caller, s.single} {
		if cc, ok := c.(*Caller); ok {
			cc.WithSleeper(sl)
		}
	}
	return s
}

// Taxonomy returns the category table the service resolves ids against.
func (s *Service) Taxonomy() domain.Taxonomy { return s.taxonomy }

// ProcessBatches returns exactly one annotation per input item, ordered by input
// position. It never fails: every inference failure ends in a fallback record.
// Only one run talks to the provider at a time; a caller whose ctx ends while
// waiting for its turn gets fallback records. Cancellation is honoured between
// chunks; chunks left once ctx is done fall back without calling the provider.
func (s *Service) ProcessBatches(ctx context.Context, items []domain.Item, chunkSize int) []domain.AnnotatedItem {
	if chunkSize <= 0 {
		chunkSize = s.cfg.Annotation.ChunkSize
	}
	chunks := Chunk(items, chunkSize)
	out := make([]domain.AnnotatedItem, 0, len(items))
	if len(chunks) == 0 {
		return out
	}

	log := logger.FromContextOr(ctx, s.logger)
	ctx = logger.ContextWithLogger(ctx, log)
	if err := s.gate.Acquire(ctx, 1); err == nil {
		defer s.gate.Release(1)
	}

	log.Info("Batch annotation started",
		zap.Int("items", len(items)),
		zap.Int("chunks", len(chunks)),
		zap.Int("chunk_size", chunkSize),
	)

	for i, chunk := range chunks {
		if i > 0 && ctx.Err() == nil {
			_ = s.sleep(ctx, s.cfg.ChunkDelay)
		}
		if err := ctx.Err(); err != nil {
			log.Warn("Annotation cancelled, chunk falls back",
				zap.Int("chunk", i),
				zap.Int("items", len(chunk)),
				zap.Error(err),
			)
			out = append(out, Fallback(chunk, s.taxonomy, s.fallbackSummary())...)
			continue
		}
		out = append(out, s.processChunk(ctx, i, chunk)...)
	}

	sort.SliceStable(out, func(a, b int) bool { return out[a].Position < out[b].Position })
	s.record(out)
	return out
}

func (s *Service) processChunk(ctx context.Context, n int, chunk []domain.Item) []domain.AnnotatedItem {
	start := time.Now()
	ctx, log := logger.With(ctx, nil, zap.Int("chunk", n))

	annotated := newChunkRun(s, chunk).run(ctx)

	duration := time.Since(start)
	metrics.ChunkDuration.Observe(duration.Seconds())
	log.Info("Chunk annotated",
		zap.Int("items", len(chunk)),
		zap.Duration("duration", duration),
	)
	return annotated
}

// AnnotateItem annotates one item with a single-pass call paced by the legacy
// retry policy. It never fails; exhausted retries yield the fallback record.
// It shares the provider with ProcessBatches and waits for a run in progress.
func (s *Service) AnnotateItem(ctx context.Context, item domain.Item) domain.AnnotatedItem {
	ctx, log := logger.With(ctx, logger.FromContextOr(ctx, s.logger), zap.String("title", item.Title))
	item.LocalIndex = 0

	var out domain.AnnotatedItem
	if err := s.gate.Acquire(ctx, 1); err != nil {
		log.Warn("Annotation cancelled while waiting for the provider", zap.Error(err))
	} else {
		if result, ok := s.single.Call(ctx, StageSingle, s.prompts.Single(item)); ok {
			annotated, _ := Reconcile([]domain.Item{item}, result, s.taxonomy, domain.OriginSingle)
			if len(annotated) == 1 {
				out = annotated[0]
			}
		}
		s.gate.Release(1)
	}
	if out.Origin == "" {
		out = Fallback([]domain.Item{item}, s.taxonomy, s.fallbackSummary())[0]
	}
	s.record([]domain.AnnotatedItem{out})
	return out
}

func (s *Service) fallbackSummary() string {
	return s.cfg.Annotation.FallbackSummary
}

func (s *Service) record(items []domain.AnnotatedItem) {
	counts := make(map[domain.Origin]int)
	for _, a := range items {
		counts[a.Origin]++
	}
	for origin, n := range counts {
		metrics.AnnotationsTotal.WithLabelValues(string(origin)).Add(float64(n))
	}
	if fb := counts[domain.OriginFallback]; fb > 0 {
		s.logger.Warn("Items annotated with fallback", zap.Int("fallback", fb), zap.Int("total", len(items)))
	}
}

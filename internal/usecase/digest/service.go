package digest

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/kailas-cloud/newsdigest/internal/domain"
)

// Request describes one digest run.
type Request struct {
	Items     []domain.Item
	ChunkSize int
	Weekly    bool
	// DryRun annotates and exports but leaves the archive untouched.
	DryRun bool
}

// Report is the outcome of a run.
type Report struct {
	Run      domain.Run
	Items    []domain.AnnotatedItem
	Archived bool
}

// Service runs the annotation pipeline over one ingestion batch and archives the result.
type Service struct {
	annotator Annotator
	archive   RunArchive
	provider  string
	model     string
	now       func() time.Time
	logger    *zap.Logger
}

// New creates a digest service. archive may be nil, in which case runs are
// never archived.
func New(annotator Annotator, archive RunArchive, logger *zap.Logger) *Service {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{
		annotator: annotator,
		archive:   archive,
		now:       func() time.Time { return time.Now().UTC() },
		logger:    logger,
	}
}

// WithProvider labels archived runs with the inference provider and model.
func (s *Service) WithProvider(provider, model string) *Service {
	s.provider, s.model = provider, model
	return s
}

// WithClock overrides the time source.
func (s *Service) WithClock(now func() time.Time) *Service {
	if now != nil {
		s.now = now
	}
	return s
}

// Run annotates req.Items. Annotation itself never fails; the only error is a
// failed archive write, reported together with the complete report.
func (s *Service) Run(ctx context.Context, req Request) (Report, error) {
	run := domain.Run{
		StartedAt: s.now(),
		Weekly:    req.Weekly,
		Provider:  s.provider,
		Model:     s.model,
	}

	if len(req.Items) == 0 {
		s.logger.Info("No items to annotate")
	}
	items := s.annotator.ProcessBatches(ctx, req.Items, req.ChunkSize)
	if items == nil {
		items = []domain.AnnotatedItem{}
	}
	run.FinishedAt = s.now()
	run.Tally(items)

	report := Report{Run: run, Items: items}
	log := s.logger.With(
		zap.Int("items", run.Total),
		zap.Int("fallback", run.Fallback),
		zap.Duration("duration", run.FinishedAt.Sub(run.StartedAt)),
	)

	if req.DryRun || s.archive == nil {
		log.Info("Digest run finished without archiving", zap.Bool("dry_run", req.DryRun))
		return report, nil
	}

	// A cancelled caller still gets its run archived.
	saveCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 10*time.Second)
	defer cancel()

	saved, err := s.archive.SaveRun(saveCtx, run, items)
	if err != nil {
		log.Error("Failed to archive digest run", zap.Error(err))
		return report, fmt.Errorf("archive run: %w", err)
	}
	report.Run = saved
	report.Archived = true
	log.Info("Digest run archived", zap.String("run_id", saved.ID))
	return report, nil
}

package annotate

import (
	"context"

	"go.uber.org/zap"

	"github.com/kailas-cloud/newsdigest/internal/domain"
	"github.com/kailas-cloud/newsdigest/internal/logger"
)

// State is a step of the per-chunk protocol.
type State int

const (
	StateGenerating State = iota
	StateAuditing
	StateReconciling
	StateRecovering
	StateDone
)

func (s State) String() string {
	switch s {
	case StateGenerating:
		return "GENERATING"
	case StateAuditing:
		return "AUDITING"
	case StateReconciling:
		return "RECONCILING"
	case StateRecovering:
		return "RECOVERING"
	case StateDone:
		return "DONE"
	default:
		return "UNKNOWN"
	}
}

// chunkRun carries one chunk through GENERATING → AUDITING → RECONCILING →
// RECOVERING → DONE. Each step reads the partial result of the previous one.
type chunkRun struct {
	svc   *Service
	chunk []domain.Item
	state State

	draft  domain.BatchResult
	final  domain.BatchResult
	origin domain.Origin

	annotated []domain.AnnotatedItem
	missing   []domain.Item
}

func newChunkRun(svc *Service, chunk []domain.Item) *chunkRun {
	return &chunkRun{svc: svc, chunk: chunk, state: StateGenerating}
}

// run drives the machine to DONE and returns one annotation per chunk item.
func (r *chunkRun) run(ctx context.Context) []domain.AnnotatedItem {
	for r.state != StateDone {
		from := r.state
		r.step(ctx)
		logger.FromContext(ctx).Debug("Chunk state transition",
			zap.Stringer("from", from),
			zap.Stringer("to", r.state),
		)
	}
	return r.annotated
}

func (r *chunkRun) step(ctx context.Context) {
	switch r.state {
	case StateGenerating:
		r.generate(ctx)
	case StateAuditing:
		r.audit(ctx)
	case StateReconciling:
		r.reconcile()
	case StateRecovering:
		r.recoverMissing(ctx)
	default:
		r.state = StateDone
	}
}

// generate runs pass 1. Without a draft the whole chunk falls back and no
// further call is made.
func (r *chunkRun) generate(ctx context.Context) {
	draft, ok := r.svc.caller.Call(ctx, StageGenerate, r.svc.prompts.Generate(r.chunk))
	if !ok {
		logger.FromContext(ctx).Warn("Generate pass failed, chunk falls back",
			zap.Int("items", len(r.chunk)),
		)
		r.annotated = Fallback(r.chunk, r.svc.taxonomy, r.svc.fallbackSummary())
		r.state = StateDone
		return
	}
	r.draft = draft
	r.state = StateAuditing
}

// audit runs pass 2. A failed audit keeps the draft as the final result.
func (r *chunkRun) audit(ctx context.Context) {
	r.final, r.origin = r.draft, domain.OriginGenerate
	r.state = StateReconciling

	if err := r.svc.sleep(ctx, r.svc.cfg.PassDelay); err != nil {
		logger.FromContext(ctx).Warn("Audit skipped", zap.Error(err))
		return
	}
	audited, ok := r.svc.caller.Call(ctx, StageAudit, r.svc.prompts.Audit(r.chunk, r.draft))
	if !ok {
		logger.FromContext(ctx).Warn("Audit pass failed, keeping generated draft")
		return
	}
	r.final, r.origin = audited, domain.OriginAudit
}

func (r *chunkRun) reconcile() {
	r.annotated, r.missing = Reconcile(r.chunk, r.final, r.svc.taxonomy, r.origin)

	// Indices the audit dropped keep their draft annotation.
	if r.origin == domain.OriginAudit && r.svc.cfg.AuditGapFallback && len(r.missing) > 0 {
		var fromDraft []domain.AnnotatedItem
		fromDraft, r.missing = Reconcile(r.missing, r.draft, r.svc.taxonomy, domain.OriginGenerate)
		r.annotated = append(r.annotated, fromDraft...)
	}

	if len(r.missing) == 0 {
		r.state = StateDone
		return
	}
	r.state = StateRecovering
}

// recoverMissing re-asks for the missing items alone, re-indexed from zero, in a
// single generate-only pass. Whatever is still absent falls back.
func (r *chunkRun) recoverMissing(ctx context.Context) {
	r.state = StateDone
	log := logger.FromContext(ctx)

	missing := r.missing
	r.missing = nil
	log.Info("Recovering items missing from chunk result",
		zap.Int("missing", len(missing)),
		zap.Int("items", len(r.chunk)),
	)

	if err := r.svc.sleep(ctx, r.svc.cfg.RecoveryDelay); err != nil {
		log.Warn("Recovery skipped", zap.Error(err))
		r.annotated = append(r.annotated, Fallback(missing, r.svc.taxonomy, r.svc.fallbackSummary())...)
		return
	}

	sub := reindex(missing)
	result, ok := r.svc.caller.Call(ctx, StageRecovery, r.svc.prompts.Recovery(sub))
	if !ok {
		r.annotated = append(r.annotated, Fallback(missing, r.svc.taxonomy, r.svc.fallbackSummary())...)
		return
	}

	recovered, still := Reconcile(sub, result, r.svc.taxonomy, domain.OriginRecovery)
	for _, a := range recovered {
		a.Item = missing[a.LocalIndex]
		r.annotated = append(r.annotated, a)
	}
	lost := make([]domain.Item, len(still))
	for i, it := range still {
		lost[i] = missing[it.LocalIndex]
	}
	if len(lost) > 0 {
		log.Warn("Recovery left items unannotated", zap.Int("lost", len(lost)))
	}
	r.annotated = append(r.annotated, Fallback(lost, r.svc.taxonomy, r.svc.fallbackSummary())...)
}

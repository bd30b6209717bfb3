package annotate

import (
	"context"

	"github.com/kailas-cloud/newsdigest/internal/domain"
)

// Generator invokes the inference service with an enforced response schema.
type Generator interface {
	Generate(ctx context.Context, req domain.InferenceRequest) (domain.InferenceResponse, error)
}

// StructuredCaller returns a validated BatchResult or reports that none could be obtained.
type StructuredCaller interface {
	Call(ctx context.Context, stage Stage, prompt string) (domain.BatchResult, bool)
}

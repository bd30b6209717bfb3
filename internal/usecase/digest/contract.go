package digest

import (
	"context"
	"encoding/json"

	"github.com/kailas-cloud/newsdigest/internal/domain"
)

// Annotator runs the batch annotation protocol.
type Annotator interface {
	ProcessBatches(ctx context.Context, items []domain.Item, chunkSize int) []domain.AnnotatedItem
}

// RunArchive stores finished runs.
type RunArchive interface {
	SaveRun(ctx context.Context, run domain.Run, items []domain.AnnotatedItem) (domain.Run, error)
}

// MarketSource returns the chart metadata of a futures symbol, or nil when the
// source has none.
type MarketSource interface {
	Quote(ctx context.Context, symbol string) (json.RawMessage, error)
}

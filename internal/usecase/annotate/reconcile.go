package annotate

import (
	"strings"

	"github.com/kailas-cloud/newsdigest/internal/domain"
)

// Reconcile attributes results to chunk items by index and partitions the chunk
// into annotated and missing items, both in chunk order.
// Indices outside the chunk are ignored, the first result for a duplicated index
// wins, and a result with a blank summary leaves its item missing.
func Reconcile(
	chunk []domain.Item, result domain.BatchResult,
	taxonomy domain.Taxonomy, origin domain.Origin,
) ([]domain.AnnotatedItem, []domain.Item) {
	byIndex := make(map[int]domain.AnnotationResult, len(result.Articles))
	for _, r := range result.Articles {
		if _, seen := byIndex[r.Index]; seen {
			continue
		}
		byIndex[r.Index] = r
	}

	annotated := make([]domain.AnnotatedItem, 0, len(chunk))
	var missing []domain.Item
	for _, it := range chunk {
		r, ok := byIndex[it.LocalIndex]
		summary := strings.TrimSpace(r.Summary)
		if !ok || summary == "" {
			missing = append(missing, it)
			continue
		}
		annotated = append(annotated, domain.AnnotatedItem{
			Item:     it,
			Category: taxonomy.Resolve(r.CategoryID),
			Summary:  summary,
			Origin:   origin,
		})
	}
	return annotated, missing
}

// Fallback emits the placeholder annotation for items no inference call covered.
func Fallback(items []domain.Item, taxonomy domain.Taxonomy, summary string) []domain.AnnotatedItem {
	out := make([]domain.AnnotatedItem, len(items))
	for i, it := range items {
		out[i] = domain.AnnotatedItem{
			Item:     it,
			Category: taxonomy.Default(),
			Summary:  summary,
			Origin:   domain.OriginFallback,
		}
	}
	return out
}

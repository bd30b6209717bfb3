package domain

import "time"

// Run is one archived execution of the annotation pipeline.
type Run struct {
	ID         string    `json:"id"`
	StartedAt  time.Time `json:"started_at"`
	FinishedAt time.Time `json:"finished_at"`
	Weekly     bool      `json:"is_weekly"`
	Provider   string    `json:"provider"`
	Model      string    `json:"model"`
	Total      int       `json:"total"`
	Fallback   int       `json:"fallback"`
}

// Tally fills Total and Fallback from the run's annotated items.
func (r *Run) Tally(items []AnnotatedItem) {
	r.Total = len(items)
	r.Fallback = 0
	for _, it := range items {
		if it.IsFallback() {
			r.Fallback++
		}
	}
}

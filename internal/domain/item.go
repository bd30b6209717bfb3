package domain

// Item is one unit of text fed into the annotation pipeline.
// LocalIndex is the identity within a chunk and is the only key the model echoes back.
// Position is the item's place in the caller's original sequence.
type Item struct {
	LocalIndex int    `json:"-"`
	Position   int    `json:"position"`
	Title      string `json:"title"`
	Body       string `json:"body"`
	Link       string `json:"link,omitempty"`
	Source     string `json:"source,omitempty"`
}

// Origin records which protocol stage produced an annotation.
type Origin string

const (
	OriginGenerate Origin = "generate"
	OriginAudit    Origin = "audit"
	OriginRecovery Origin = "recovery"
	OriginSingle   Origin = "single"
	OriginFallback Origin = "fallback"
)

// AnnotatedItem is the sole durable output of the pipeline: exactly one per input item.
type AnnotatedItem struct {
	Item
	Category string `json:"category"`
	Summary  string `json:"summary"`
	Origin   Origin `json:"origin"`
}

// IsFallback reports whether the item carries the placeholder annotation.
func (a AnnotatedItem) IsFallback() bool { return a.Origin == OriginFallback }

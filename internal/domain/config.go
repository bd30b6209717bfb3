package domain

// KeyPrefix namespaces every key written to the KV store.
const KeyPrefix = "newsdigest:"

// AnnotationConfig holds the prompt-level settings of the annotation protocol.
type AnnotationConfig struct {
	ChunkSize       int
	BodyLimit       int
	Temperature     *float32 // nil = default; 0 is a valid setting
	SummaryLanguage string
	RedactionMarker string
	FallbackSummary string
}

// DefaultAnnotationConfig returns the settings the coffee digest runs with.
func DefaultAnnotationConfig() AnnotationConfig {
	temperature := float32(0.2)
	return AnnotationConfig{
		ChunkSize:       20,
		BodyLimit:       1500,
		Temperature:     &temperature,
		SummaryLanguage: "Japanese",
		RedactionMarker: "[REDACTED]",
		FallbackSummary: "Automated summarization failed.",
	}
}

// WithDefaults fills zero fields from DefaultAnnotationConfig.
func (c AnnotationConfig) WithDefaults() AnnotationConfig {
	d := DefaultAnnotationConfig()
	if c.ChunkSize <= 0 {
		c.ChunkSize = d.ChunkSize
	}
	if c.BodyLimit <= 0 {
		c.BodyLimit = d.BodyLimit
	}
	if c.Temperature == nil {
		c.Temperature = d.Temperature
	}
	if c.SummaryLanguage == "" {
		c.SummaryLanguage = d.SummaryLanguage
	}
	if c.RedactionMarker == "" {
		c.RedactionMarker = d.RedactionMarker
	}
	if c.FallbackSummary == "" {
		c.FallbackSummary = d.FallbackSummary
	}
	return c
}

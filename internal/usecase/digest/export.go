package digest

import (
	"bytes"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/kailas-cloud/newsdigest/internal/domain"
)

// Export is the widget feed written after every run.
type Export struct {
	UpdatedAt  time.Time       `json:"updated_at"`
	IsWeekly   bool            `json:"is_weekly"`
	MarketData MarketData      `json:"market_data"`
	Articles   []ExportArticle `json:"articles"`
}

// ExportArticle is one annotated item as the widget renders it.
type ExportArticle struct {
	Title    string `json:"title"`
	Link     string `json:"link,omitempty"`
	Source   string `json:"source,omitempty"`
	Category string `json:"category"`
	Summary  string `json:"summary"`
}

// NewExport builds the widget feed of a run. Market data is left null; see WithMarket.
func NewExport(run domain.Run, items []domain.AnnotatedItem) Export {
	articles := make([]ExportArticle, len(items))
	for i, it := range items {
		articles[i] = ExportArticle{
			Title:    it.Title,
			Link:     it.Link,
			Source:   it.Source,
			Category: it.Category,
			Summary:  it.Summary,
		}
	}
	return Export{UpdatedAt: run.FinishedAt, IsWeekly: run.Weekly, Articles: articles}
}

// WithMarket attaches futures metadata to the feed.
func (e Export) WithMarket(m MarketData) Export {
	e.MarketData = m
	return e
}

// WriteExport writes the feed to path through a temporary file, so readers
// never observe a partial document.
func WriteExport(path string, e Export) error {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	enc.SetIndent("", "  ")
	if err := enc.Encode(e); err != nil {
		return fmt.Errorf("encode export: %w", err)
	}

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create export dir: %w", err)
	}
	tmp, err := os.CreateTemp(dir, ".news-*.json")
	if err != nil {
		return fmt.Errorf("create export temp file: %w", err)
	}
	defer func() { _ = os.Remove(tmp.Name()) }()

	if err := tmp.Chmod(0o644); err != nil {
		_ = tmp.Close()
		return fmt.Errorf("chmod export: %w", err)
	}
	if _, err := tmp.Write(buf.Bytes()); err != nil {
		_ = tmp.Close()
		return fmt.Errorf("write export: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close export: %w", err)
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		return fmt.Errorf("publish export: %w", err)
	}
	return nil
}

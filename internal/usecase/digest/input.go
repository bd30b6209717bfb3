package digest

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/kailas-cloud/newsdigest/internal/domain"
)

// inputItem is one record of the ingestion output. Feed entries carry the text
// in "content", forwarded mail in "body".
type inputItem struct {
	Title   string `json:"title"`
	Body    string `json:"body"`
	Content string `json:"content"`
	Link    string `json:"link"`
	Source  string `json:"source"`
}

// LoadItems reads the ingestion output file.
func LoadItems(path string) ([]domain.Item, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open input: %w", err)
	}
	defer func() { _ = f.Close() }()

	items, err := DecodeItems(f)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return items, nil
}

// DecodeItems parses a JSON array of items. Entries with neither title nor
// text are dropped; Position follows the order of the kept entries.
func DecodeItems(r io.Reader) ([]domain.Item, error) {
	var raw []inputItem
	if err := json.NewDecoder(r).Decode(&raw); err != nil {
		return nil, fmt.Errorf("decode items: %w: %w", domain.ErrInvalidInput, err)
	}

	items := make([]domain.Item, 0, len(raw))
	for _, in := range raw {
		body := in.Body
		if strings.TrimSpace(body) == "" {
			body = in.Content
		}
		title := strings.TrimSpace(in.Title)
		if title == "" && strings.TrimSpace(body) == "" {
			continue
		}
		if title == "" {
			title = "No Title"
		}
		items = append(items, domain.Item{
			Position: len(items),
			Title:    title,
			Body:     body,
			Link:     in.Link,
			Source:   in.Source,
		})
	}
	return items, nil
}

package domain

import (
	"fmt"
	"strings"
)

// DefaultCategories is the coffee-news taxonomy the digest was built around.
var DefaultCategories = []string{
	"1. 今週の要チェック記事（Top News）",
	"2. 市況・産地・トレード（Market & Origin）",
	"3. カフェ経営・リテール・マーケティング（Retail & Business）",
	"4. 焙煎・抽出・サイエンス（Roasting & Science）",
	"5. テクニカル・機材（Tech & Gear）",
	"6. サステナビリティ・環境・倫理（Sustainability）",
	"7. 競技会・イベント・カルチャー（Events & Culture）",
}

// Taxonomy is the fixed ordered list of category labels.
// Category ids exchanged with the model are 1-based; label 1 is the default.
type Taxonomy struct {
	labels []string
}

// NewTaxonomy validates and copies the label list.
func NewTaxonomy(labels []string) (Taxonomy, error) {
	if len(labels) == 0 {
		return Taxonomy{}, fmt.Errorf("taxonomy needs at least one category: %w", ErrInvalidInput)
	}
	seen := make(map[string]struct{}, len(labels))
	out := make([]string, len(labels))
	for i, l := range labels {
		l = strings.TrimSpace(l)
		if l == "" {
			return Taxonomy{}, fmt.Errorf("category %d is empty: %w", i+1, ErrInvalidInput)
		}
		if _, dup := seen[l]; dup {
			return Taxonomy{}, fmt.Errorf("category %q is duplicated: %w", l, ErrInvalidInput)
		}
		seen[l] = struct{}{}
		out[i] = l
	}
	return Taxonomy{labels: out}, nil
}

// MustTaxonomy is NewTaxonomy for static label lists.
func MustTaxonomy(labels []string) Taxonomy {
	t, err := NewTaxonomy(labels)
	if err != nil {
		panic(err)
	}
	return t
}

// Len returns the number of categories.
func (t Taxonomy) Len() int { return len(t.labels) }

// Labels returns a copy of the ordered labels.
func (t Taxonomy) Labels() []string {
	out := make([]string, len(t.labels))
	copy(out, t.labels)
	return out
}

// Default returns label 1.
func (t Taxonomy) Default() string {
	if len(t.labels) == 0 {
		return ""
	}
	return t.labels[0]
}

// Resolve maps a 1-based category id to its label. Out-of-range ids map to the default.
func (t Taxonomy) Resolve(id int) string {
	if id < 1 || id > len(t.labels) {
		return t.Default()
	}
	return t.labels[id-1]
}

// Contains reports whether label belongs to the taxonomy.
func (t Taxonomy) Contains(label string) bool {
	for _, l := range t.labels {
		if l == label {
			return true
		}
	}
	return false
}

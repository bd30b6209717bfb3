package domain

import (
	"errors"
	"testing"
)

func TestTaxonomy_Resolve(t *testing.T) {
	tax := MustTaxonomy([]string{"Top", "Market", "Retail"})

	tests := []struct {
		id   int
		want string
	}{
		{1, "Top"},
		{2, "Market"},
		{3, "Retail"},
		{0, "Top"},
		{4, "Top"},
		{-1, "Top"},
	}
	for _, tt := range tests {
		if got := tax.Resolve(tt.id); got != tt.want {
			t.Errorf("Resolve(%d) = %q, want %q", tt.id, got, tt.want)
		}
	}
	if tax.Default() != "Top" {
		t.Errorf("Default() = %q", tax.Default())
	}
	if !tax.Contains("Retail") || tax.Contains("Gear") {
		t.Error("Contains() mismatch")
	}
}

func TestTaxonomy_LabelsIsACopy(t *testing.T) {
	tax := MustTaxonomy([]string{"a", "b"})
	labels := tax.Labels()
	labels[0] = "changed"
	if tax.Resolve(1) != "a" {
		t.Error("mutating Labels() must not change the taxonomy")
	}
}

func TestNewTaxonomy_Invalid(t *testing.T) {
	for name, labels := range map[string][]string{
		"empty":     nil,
		"blank":     {"a", "  "},
		"duplicate": {"a", "b", "a"},
	} {
		if _, err := NewTaxonomy(labels); !errors.Is(err, ErrInvalidInput) {
			t.Errorf("%s: expected ErrInvalidInput, got %v", name, err)
		}
	}
}

func TestDefaultCategories(t *testing.T) {
	tax := MustTaxonomy(DefaultCategories)
	if tax.Len() != 7 {
		t.Fatalf("expected 7 default categories, got %d", tax.Len())
	}
}

func TestAnnotationConfig_WithDefaults(t *testing.T) {
	got := AnnotationConfig{ChunkSize: 5}.WithDefaults()
	def := DefaultAnnotationConfig()
	if got.ChunkSize != 5 {
		t.Errorf("explicit ChunkSize overwritten: %d", got.ChunkSize)
	}
	if got.FallbackSummary != def.FallbackSummary || got.BodyLimit != def.BodyLimit {
		t.Errorf("defaults not applied: %+v", got)
	}
	if got.Temperature == nil || *got.Temperature != *def.Temperature {
		t.Errorf("unset temperature must default, got %v", got.Temperature)
	}

	zero := float32(0)
	if kept := (AnnotationConfig{Temperature: &zero}).WithDefaults(); *kept.Temperature != 0 {
		t.Errorf("explicit zero temperature overwritten: %v", *kept.Temperature)
	}
}

package domain

import (
	"encoding/json"
	"fmt"
	"strings"
)

// AnnotationResult is the model's answer for one item, keyed by the index it was given.
type AnnotationResult struct {
	Index      int    `json:"index"`
	CategoryID int    `json:"categoryId"`
	Summary    string `json:"summary"`
}

// BatchResult is the full structural contract enforced on every structured call.
type BatchResult struct {
	Articles []AnnotationResult `json:"articles"`
}

// wireResult uses pointers so that absent fields are distinguishable from zero values.
type wireResult struct {
	Index      *int    `json:"index"`
	CategoryID *int    `json:"categoryId"`
	Summary    *string `json:"summary"`
}

type wireBatch struct {
	Articles *[]wireResult `json:"articles"`
}

// DecodeBatchResult parses model output into a BatchResult.
// Fails with ErrResponseInvalid when the payload is empty, is not JSON, has no
// "articles" array, or an element lacks index/summary or carries the wrong types.
// An absent categoryId decodes to 0, which the taxonomy resolves to the default.
func DecodeBatchResult(text string) (BatchResult, error) {
	raw := stripCodeFence(strings.TrimSpace(text))
	if raw == "" {
		return BatchResult{}, fmt.Errorf("empty payload: %w", ErrResponseInvalid)
	}

	var wb wireBatch
	if err := json.Unmarshal([]byte(raw), &wb); err != nil {
		return BatchResult{}, fmt.Errorf("decode batch result: %v: %w", err, ErrResponseInvalid)
	}
	if wb.Articles == nil {
		return BatchResult{}, fmt.Errorf("missing articles array: %w", ErrResponseInvalid)
	}

	out := BatchResult{Articles: make([]AnnotationResult, 0, len(*wb.Articles))}
	for i, w := range *wb.Articles {
		if w.Index == nil {
			return BatchResult{}, fmt.Errorf("article %d has no index: %w", i, ErrResponseInvalid)
		}
		if w.Summary == nil {
			return BatchResult{}, fmt.Errorf("article %d has no summary: %w", i, ErrResponseInvalid)
		}
		r := AnnotationResult{Index: *w.Index, Summary: *w.Summary}
		if w.CategoryID != nil {
			r.CategoryID = *w.CategoryID
		}
		out.Articles = append(out.Articles, r)
	}
	return out, nil
}

// EncodeBatchResult serializes a result for embedding into a follow-up prompt.
func EncodeBatchResult(r BatchResult) string {
	if r.Articles == nil {
		r.Articles = []AnnotationResult{}
	}
	data, _ := json.MarshalIndent(r, "", "  ")
	return string(data)
}

func stripCodeFence(s string) string {
	if !strings.HasPrefix(s, "```") {
		return s
	}
	s = strings.TrimPrefix(s, "```")
	if nl := strings.IndexByte(s, '\n'); nl >= 0 {
		s = s[nl+1:]
	} else {
		s = strings.TrimPrefix(s, "json")
	}
	s = strings.TrimSpace(s)
	s = strings.TrimSuffix(s, "```")
	return strings.TrimSpace(s)
}

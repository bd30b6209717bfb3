// Package textutil prepares item bodies for transmission to the model.
package textutil

import (
	"strings"
	"unicode/utf8"

	"github.com/PuerkitoBio/goquery"
)

// PlainText strips markup from feed and newsletter bodies and collapses whitespace.
// Input without any tag is only whitespace-normalized.
func PlainText(body string) string {
	if !strings.ContainsAny(body, "<&") {
		return collapse(body)
	}
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(body))
	if err != nil {
		return collapse(body)
	}
	doc.Find("script,style,noscript").Remove()
	// Block elements run together once tags are dropped.
	doc.Find("p,br,li,div,h1,h2,h3,h4,h5,h6,tr").Each(func(_ int, s *goquery.Selection) {
		s.AppendHtml(" ")
	})
	return collapse(doc.Text())
}

// Truncate caps s at limit runes, appending "..." when it cut anything.
func Truncate(s string, limit int) string {
	if limit <= 0 || utf8.RuneCountInString(s) <= limit {
		return s
	}
	n := 0
	for i := range s {
		if n == limit {
			return s[:i] + "..."
		}
		n++
	}
	return s
}

func collapse(s string) string {
	return strings.Join(strings.Fields(s), " ")
}

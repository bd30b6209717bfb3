package annotate

import (
	"fmt"
	"strings"

	"github.com/kailas-cloud/newsdigest/internal/domain"
	"github.com/kailas-cloud/newsdigest/internal/textutil"
)

// Prompter renders the prompts of every protocol stage for one taxonomy.
type Prompter struct {
	taxonomy domain.Taxonomy
	cfg      domain.AnnotationConfig
}

// NewPrompter creates a prompter. Zero config fields take their defaults.
func NewPrompter(taxonomy domain.Taxonomy, cfg domain.AnnotationConfig) *Prompter {
	return &Prompter{taxonomy: taxonomy, cfg: cfg.WithDefaults()}
}

// SystemInstruction frames the model as a trade journalist and lists the categories.
func (p *Prompter) SystemInstruction() string {
	var b strings.Builder
	b.WriteString("You are a professional journalist and editorial assistant for a specialty coffee industry digest.\n")
	fmt.Fprintf(&b, "Read each article (any language), summarize it concisely in %s, and choose the single best matching category.\n\n", p.cfg.SummaryLanguage)
	b.WriteString("Categories (answer with the categoryId number):\n")
	p.writeCategories(&b)
	return b.String()
}

// Generate is the first pass over a whole chunk.
func (p *Prompter) Generate(items []domain.Item) string {
	var b strings.Builder
	b.WriteString("Analyze every article below.\n\n")
	p.writeRules(&b)
	b.WriteString("\n## Articles\n")
	p.writeItems(&b, items)
	return b.String()
}

// Audit asks the model to review and correct the first-pass output for the same chunk.
func (p *Prompter) Audit(items []domain.Item, draft domain.BatchResult) string {
	var b strings.Builder
	b.WriteString("You are a strict fact-checking auditor. Another editor produced the draft annotations below.\n")
	b.WriteString("Compare every draft entry against its source article and return a corrected result:\n")
	b.WriteString("- remove any claim in a summary that the source article does not support;\n")
	fmt.Fprintf(&b, "- replace any remaining personal information (names of private individuals, email addresses, phone numbers) with %s;\n", p.cfg.RedactionMarker)
	b.WriteString("- tighten verbose summaries to 2-3 lines;\n")
	b.WriteString("- fix the categoryId when another category clearly fits better.\n")
	b.WriteString("Keep the original index of every entry unchanged and emit one entry per article.\n\n")
	b.WriteString("## Source articles\n")
	p.writeItems(&b, items)
	b.WriteString("\n## Draft annotations\n")
	b.WriteString(domain.EncodeBatchResult(draft))
	b.WriteString("\n")
	return b.String()
}

// Recovery is the single-pass prompt for items the model left out of a chunk result.
func (p *Prompter) Recovery(items []domain.Item) string {
	var b strings.Builder
	b.WriteString("The following articles were missing from a previous response. Analyze each of them.\n")
	b.WriteString("Do not skip any article: the response must contain exactly one entry per index listed.\n\n")
	p.writeRules(&b)
	b.WriteString("\n## Articles\n")
	p.writeItems(&b, items)
	return b.String()
}

// Single annotates one item outside of any chunk; the item is sent as index 0.
func (p *Prompter) Single(item domain.Item) string {
	item.LocalIndex = 0
	var b strings.Builder
	b.WriteString("Analyze the following coffee news article.\n\n")
	p.writeRules(&b)
	b.WriteString("\n## Article\n")
	p.writeItems(&b, []domain.Item{item})
	return b.String()
}

func (p *Prompter) writeRules(b *strings.Builder) {
	b.WriteString("## Instructions\n")
	fmt.Fprintf(b, "1. Summarize each article in %s in 2-3 lines (about 150 characters).\n", p.cfg.SummaryLanguage)
	fmt.Fprintf(b, "2. Choose the category that fits best and answer with its number (1-%d) as categoryId.\n", p.taxonomy.Len())
	fmt.Fprintf(b, "3. Replace personal information (names of private individuals, email addresses, phone numbers) with %s.\n", p.cfg.RedactionMarker)
	b.WriteString("4. Copy the exact index given to each article into its entry. Never renumber.\n")
}

func (p *Prompter) writeCategories(b *strings.Builder) {
	for i, label := range p.taxonomy.Labels() {
		fmt.Fprintf(b, "categoryId %d: %s\n", i+1, label)
	}
}

func (p *Prompter) writeItems(b *strings.Builder, items []domain.Item) {
	for _, it := range items {
		fmt.Fprintf(b, "\n[index %d]\n", it.LocalIndex)
		fmt.Fprintf(b, "Title: %s\n", strings.TrimSpace(it.Title))
		fmt.Fprintf(b, "Body: %s\n", p.body(it.Body))
	}
}

func (p *Prompter) body(raw string) string {
	return textutil.Truncate(textutil.PlainText(raw), p.cfg.BodyLimit)
}

package annotate

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"sync"
	"testing"
	"time"

	"go.uber.org/goleak"
	"go.uber.org/zap"

	"github.com/kailas-cloud/newsdigest/internal/domain"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

var errUpstream = errors.New("upstream unavailable")

var testTaxonomy = domain.MustTaxonomy(domain.DefaultCategories)

type reply struct {
	text string
	err  error
}

func answer(text string) reply { return reply{text: text} }
func failWith(err error) reply { return reply{err: err} }
func failN(n int) []reply      { return repeat(failWith(errUpstream), n) }

func repeat(r reply, n int) []reply {
	out := make([]reply, n)
	for i := range out {
		out[i] = r
	}
	return out
}

// scriptedGenerator answers each stage from its own queue. An exhausted queue
// fails the call.
type scriptedGenerator struct {
	mu      sync.Mutex
	replies map[Stage][]reply
	prompts map[Stage][]string
	calls   int
}

func newScripted() *scriptedGenerator {
	return &scriptedGenerator{
		replies: make(map[Stage][]reply),
		prompts: make(map[Stage][]string),
	}
}

func (g *scriptedGenerator) on(stage Stage, replies ...reply) *scriptedGenerator {
	g.replies[stage] = append(g.replies[stage], replies...)
	return g
}

func (g *scriptedGenerator) Generate(_ context.Context, req domain.InferenceRequest) (domain.InferenceResponse, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.calls++
	stage := stageOf(req.Prompt)
	g.prompts[stage] = append(g.prompts[stage], req.Prompt)
	queue := g.replies[stage]
	if len(queue) == 0 {
		return domain.InferenceResponse{}, fmt.Errorf("no scripted %s reply: %w", stage, errUpstream)
	}
	r := queue[0]
	g.replies[stage] = queue[1:]
	return domain.InferenceResponse{Text: r.text}, r.err
}

func (g *scriptedGenerator) callCount(stage Stage) int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return len(g.prompts[stage])
}

func stageOf(prompt string) Stage {
	switch {
	case strings.Contains(prompt, "fact-checking auditor"):
		return StageAudit
	case strings.Contains(prompt, "missing from a previous response"):
		return StageRecovery
	case strings.Contains(prompt, "## Article\n"):
		return StageSingle
	default:
		return StageGenerate
	}
}

var indexedTitle = regexp.MustCompile(`\[index (\d+)\]\nTitle: ([^\n]*)`)

// echoGenerator annotates every index present in the prompt, deriving the
// summary from the title so that attribution can be checked.
type echoGenerator struct {
	mu       sync.Mutex
	calls    int
	category func(index int) int
}

func (g *echoGenerator) Generate(_ context.Context, req domain.InferenceRequest) (domain.InferenceResponse, error) {
	g.mu.Lock()
	g.calls++
	g.mu.Unlock()

	var res domain.BatchResult
	for _, m := range indexedTitle.FindAllStringSubmatch(req.Prompt, -1) {
		idx, _ := strconv.Atoi(m[1])
		cat := 1
		if g.category != nil {
			cat = g.category(idx)
		}
		res.Articles = append(res.Articles, domain.AnnotationResult{
			Index: idx, CategoryID: cat, Summary: "summary of " + m[2],
		})
	}
	return domain.InferenceResponse{Text: domain.EncodeBatchResult(res)}, nil
}

func batch(results ...domain.AnnotationResult) string {
	return domain.EncodeBatchResult(domain.BatchResult{Articles: results})
}

func res(index, category int, summary string) domain.AnnotationResult {
	return domain.AnnotationResult{Index: index, CategoryID: category, Summary: summary}
}

func makeItems(n int) []domain.Item {
	items := make([]domain.Item, n)
	for i := range items {
		items[i] = domain.Item{
			Title:  fmt.Sprintf("item-%d", i),
			Body:   fmt.Sprintf("<p>Body of article %d</p>", i),
			Link:   fmt.Sprintf("https://example.com/%d", i),
			Source: "test",
		}
	}
	return items
}

type sleepRecorder struct {
	mu     sync.Mutex
	delays []time.Duration
}

func (s *sleepRecorder) sleep(ctx context.Context, d time.Duration) error {
	s.mu.Lock()
	s.delays = append(s.delays, d)
	s.mu.Unlock()
	return ctx.Err()
}

func newTestService(gen Generator, mutate ...func(*Config)) (*Service, *sleepRecorder) {
	cfg := DefaultConfig()
	for _, m := range mutate {
		m(&cfg)
	}
	rec := &sleepRecorder{}
	svc := New(gen, testTaxonomy, cfg, zap.NewNop()).WithSleeper(rec.sleep)
	return svc, rec
}

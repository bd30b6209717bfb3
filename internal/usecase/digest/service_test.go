package digest

import (
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kailas-cloud/newsdigest/internal/domain"
)

// --- Mocks ---

type mockAnnotator struct {
	gotItems     []domain.Item
	gotChunkSize int
	fallbackAt   map[int]bool
}

func (m *mockAnnotator) ProcessBatches(_ context.Context, items []domain.Item, chunkSize int) []domain.AnnotatedItem {
	m.gotItems, m.gotChunkSize = items, chunkSize
	out := make([]domain.AnnotatedItem, len(items))
	for i, it := range items {
		out[i] = domain.AnnotatedItem{Item: it, Category: "Market", Summary: "ok", Origin: domain.OriginAudit}
		if m.fallbackAt[i] {
			out[i].Summary, out[i].Origin = "failed", domain.OriginFallback
		}
	}
	return out
}

type mockArchive struct {
	saved []domain.Run
	err   error
	ctxOK bool
}

func (m *mockArchive) SaveRun(ctx context.Context, run domain.Run, _ []domain.AnnotatedItem) (domain.Run, error) {
	m.ctxOK = ctx.Err() == nil
	if m.err != nil {
		return domain.Run{}, m.err
	}
	run.ID = "run-1"
	m.saved = append(m.saved, run)
	return run, nil
}

var fixedNow = time.Date(2026, 10, 18, 7, 0, 0, 0, time.UTC)

func newTestService(a Annotator, archive RunArchive) *Service {
	return New(a, archive, nil).
		WithProvider("gemini", "gemini-2.0-flash").
		WithClock(func() time.Time { return fixedNow })
}

// --- Run ---

func TestRun_ArchivesAndTallies(t *testing.T) {
	ann := &mockAnnotator{fallbackAt: map[int]bool{1: true}}
	arch := &mockArchive{}
	svc := newTestService(ann, arch)

	items := []domain.Item{{Title: "a"}, {Title: "b", Position: 1}, {Title: "c", Position: 2}}
	report, err := svc.Run(context.Background(), Request{Items: items, ChunkSize: 2, Weekly: true})
	require.NoError(t, err)

	assert.Equal(t, 2, ann.gotChunkSize)
	assert.True(t, report.Archived)
	assert.Equal(t, "run-1", report.Run.ID)
	assert.Equal(t, 3, report.Run.Total)
	assert.Equal(t, 1, report.Run.Fallback)
	assert.True(t, report.Run.Weekly)
	assert.Equal(t, "gemini", report.Run.Provider)
	require.Len(t, arch.saved, 1)
	assert.Equal(t, fixedNow, arch.saved[0].StartedAt)
}

func TestRun_DryRunSkipsArchive(t *testing.T) {
	arch := &mockArchive{}
	svc := newTestService(&mockAnnotator{}, arch)

	report, err := svc.Run(context.Background(), Request{Items: []domain.Item{{Title: "a"}}, DryRun: true})
	require.NoError(t, err)
	assert.False(t, report.Archived)
	assert.Empty(t, arch.saved)
	assert.Len(t, report.Items, 1)
}

func TestRun_NoArchive(t *testing.T) {
	report, err := newTestService(&mockAnnotator{}, nil).Run(context.Background(), Request{Items: []domain.Item{{Title: "a"}}})
	require.NoError(t, err)
	assert.False(t, report.Archived)
}

func TestRun_EmptyInput(t *testing.T) {
	report, err := newTestService(&mockAnnotator{}, &mockArchive{}).Run(context.Background(), Request{})
	require.NoError(t, err)
	assert.NotNil(t, report.Items)
	assert.Zero(t, report.Run.Total)
}

func TestRun_ArchiveErrorKeepsReport(t *testing.T) {
	arch := &mockArchive{err: errors.New("disk full")}
	svc := newTestService(&mockAnnotator{}, arch)

	report, err := svc.Run(context.Background(), Request{Items: []domain.Item{{Title: "a"}}})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "disk full")
	assert.Len(t, report.Items, 1)
	assert.False(t, report.Archived)
}

func TestRun_ArchivesAfterCancellation(t *testing.T) {
	arch := &mockArchive{}
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	report, err := newTestService(&mockAnnotator{}, arch).Run(ctx, Request{Items: []domain.Item{{Title: "a"}}})
	require.NoError(t, err)
	assert.True(t, report.Archived)
	assert.True(t, arch.ctxOK)
}

// --- Input ---

func TestDecodeItems(t *testing.T) {
	in := `[
		{"title": "Feed entry", "content": "<p>from feed</p>", "link": "https://a", "source": "Daily Coffee News"},
		{"title": "Newsletter", "body": "from mail", "content": "ignored"},
		{"title": "", "body": ""},
		{"body": "untitled text"}
	]`
	items, err := DecodeItems(strings.NewReader(in))
	require.NoError(t, err)
	require.Len(t, items, 3)

	assert.Equal(t, "<p>from feed</p>", items[0].Body)
	assert.Equal(t, "Daily Coffee News", items[0].Source)
	assert.Equal(t, "from mail", items[1].Body)
	assert.Equal(t, "No Title", items[2].Title)
	for i, it := range items {
		assert.Equal(t, i, it.Position)
	}
}

func TestDecodeItems_Malformed(t *testing.T) {
	_, err := DecodeItems(strings.NewReader(`{"title": "not an array"}`))
	assert.ErrorIs(t, err, domain.ErrInvalidInput)
}

func TestLoadItems_MissingFile(t *testing.T) {
	_, err := LoadItems(filepath.Join(t.TempDir(), "absent.json"))
	assert.Error(t, err)
}

func TestLoadItems(t *testing.T) {
	path := filepath.Join(t.TempDir(), "items.json")
	require.NoError(t, os.WriteFile(path, []byte(`[{"title":"t","body":"b"}]`), 0o600))

	items, err := LoadItems(path)
	require.NoError(t, err)
	require.Len(t, items, 1)
	assert.Equal(t, "t", items[0].Title)
}

// --- Export ---

func TestWriteExport(t *testing.T) {
	path := filepath.Join(t.TempDir(), "public", "news.json")
	run := domain.Run{FinishedAt: fixedNow, Weekly: true}
	items := []domain.AnnotatedItem{{
		Item:     domain.Item{Title: "Prices & <tariffs>", Link: "https://a", Source: "rss", Body: "not exported"},
		Category: "Market",
		Summary:  "アラビカ価格が上昇",
		Origin:   domain.OriginAudit,
	}}

	require.NoError(t, WriteExport(path, NewExport(run, items)))

	raw, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(raw), "Prices & <tariffs>")
	assert.Contains(t, string(raw), "アラビカ価格が上昇")
	assert.NotContains(t, string(raw), "not exported")

	var got map[string]any
	require.NoError(t, json.Unmarshal(raw, &got))
	assert.Equal(t, "2026-10-18T07:00:00Z", got["updated_at"])
	assert.Equal(t, true, got["is_weekly"])
	assert.Len(t, got["articles"], 1)

	entries, err := os.ReadDir(filepath.Dir(path))
	require.NoError(t, err)
	assert.Len(t, entries, 1, "temporary file left behind")
}

func TestWriteExport_EmptyArticlesIsArray(t *testing.T) {
	path := filepath.Join(t.TempDir(), "news.json")
	require.NoError(t, WriteExport(path, NewExport(domain.Run{FinishedAt: fixedNow}, nil)))

	raw, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(raw), `"articles": []`)
}

// --- Market data ---

type fakeMarket struct {
	quotes map[string]json.RawMessage
	errs   map[string]error
	calls  []string
}

func (f *fakeMarket) Quote(_ context.Context, symbol string) (json.RawMessage, error) {
	f.calls = append(f.calls, symbol)
	if err := f.errs[symbol]; err != nil {
		return nil, err
	}
	return f.quotes[symbol], nil
}

func TestFetchMarketData(t *testing.T) {
	src := &fakeMarket{quotes: map[string]json.RawMessage{
		SymbolArabica: json.RawMessage(`{"regularMarketPrice":381.5}`),
		SymbolRobusta: json.RawMessage(`{"regularMarketPrice":4820}`),
	}}

	m := FetchMarketData(context.Background(), src, nil)

	assert.Equal(t, []string{"KC=F", "RC=F"}, src.calls)
	assert.JSONEq(t, `{"regularMarketPrice":381.5}`, string(m.Arabica))
	assert.JSONEq(t, `{"regularMarketPrice":4820}`, string(m.Robusta))
}

func TestFetchMarketData_FailureLeavesNull(t *testing.T) {
	src := &fakeMarket{
		quotes: map[string]json.RawMessage{SymbolRobusta: json.RawMessage(`{"regularMarketPrice":4820}`)},
		errs:   map[string]error{SymbolArabica: errors.New("429 Too Many Requests")},
	}
	path := filepath.Join(t.TempDir(), "news.json")
	run := domain.Run{FinishedAt: fixedNow}

	m := FetchMarketData(context.Background(), src, nil)
	require.NoError(t, WriteExport(path, NewExport(run, nil).WithMarket(m)))

	raw, err := os.ReadFile(path)
	require.NoError(t, err)
	var got struct {
		MarketData map[string]any `json:"market_data"`
	}
	require.NoError(t, json.Unmarshal(raw, &got))
	require.Contains(t, got.MarketData, "arabica")
	assert.Nil(t, got.MarketData["arabica"])
	assert.Equal(t, map[string]any{"regularMarketPrice": 4820.0}, got.MarketData["robusta"])
}

func TestWriteExport_NoMarketSourceWritesNulls(t *testing.T) {
	path := filepath.Join(t.TempDir(), "news.json")
	m := FetchMarketData(context.Background(), nil, nil)
	require.NoError(t, WriteExport(path, NewExport(domain.Run{FinishedAt: fixedNow}, nil).WithMarket(m)))

	raw, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(raw), `"arabica": null`)
	assert.Contains(t, string(raw), `"robusta": null`)
}

package gemini

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"strings"
	"testing"

	"go.uber.org/zap"

	"github.com/kailas-cloud/newsdigest/internal/domain"
	"github.com/kailas-cloud/newsdigest/internal/metrics"
)

func TestMain(m *testing.M) {
	metrics.Register()
	os.Exit(m.Run())
}

func newTestGenerator(t *testing.T, url string) *Generator {
	t.Helper()
	g, err := NewGenerator(context.Background(), &Config{
		APIKey:  "test-key",
		Model:   "test-model",
		BaseURL: url,
		Logger:  zap.NewNop(),
	})
	if err != nil {
		t.Fatalf("NewGenerator failed: %v", err)
	}
	return g
}

func candidateResponse(text string) map[string]any {
	return map[string]any{
		"candidates": []map[string]any{{
			"content": map[string]any{
				"role":  "model",
				"parts": []map[string]any{{"text": text}},
			},
			"finishReason": "STOP",
		}},
		"usageMetadata": map[string]any{
			"promptTokenCount":     12,
			"candidatesTokenCount": 8,
			"totalTokenCount":      20,
		},
	}
}

func TestGenerator_Generate(t *testing.T) {
	payload := `{"articles":[{"index":0,"categoryId":4,"summary":"焙煎機の新製品"}]}`
	var body map[string]any

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !strings.HasSuffix(r.URL.Path, "/models/test-model:generateContent") {
			t.Errorf("unexpected path: %s", r.URL.Path)
		}
		if r.Header.Get("x-goog-api-key") != "test-key" {
			t.Errorf("unexpected api key header: %q", r.Header.Get("x-goog-api-key"))
		}
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			t.Errorf("decode request: %v", err)
		}
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(candidateResponse(payload))
	}))
	defer server.Close()

	g := newTestGenerator(t, server.URL)
	resp, err := g.Generate(context.Background(), domain.InferenceRequest{
		Prompt:            "annotate",
		SystemInstruction: "you are an editor",
		Temperature:       0.2,
		Schema:            domain.BatchResultSchema(7),
	})
	if err != nil {
		t.Fatalf("Generate failed: %v", err)
	}

	if resp.Text != payload {
		t.Errorf("Text = %q, expected %q", resp.Text, payload)
	}
	if resp.PromptTokens != 12 || resp.TotalTokens != 20 {
		t.Errorf("usage = %d/%d, expected 12/20", resp.PromptTokens, resp.TotalTokens)
	}

	genCfg, _ := body["generationConfig"].(map[string]any)
	if genCfg["responseMimeType"] != "application/json" {
		t.Errorf("responseMimeType = %v", genCfg["responseMimeType"])
	}
	if _, ok := genCfg["responseSchema"]; !ok {
		t.Error("expected responseSchema in generationConfig")
	}
	if _, ok := body["systemInstruction"]; !ok {
		t.Error("expected systemInstruction in request")
	}
}

func TestGenerator_RateLimited(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusTooManyRequests)
		w.Write([]byte(`{"error":{"code":429,"message":"Resource has been exhausted","status":"RESOURCE_EXHAUSTED"}}`))
	}))
	defer server.Close()

	_, err := newTestGenerator(t, server.URL).Generate(context.Background(), domain.InferenceRequest{Prompt: "p"})

	if !errors.Is(err, domain.ErrRateLimited) {
		t.Fatalf("expected domain.ErrRateLimited, got %v", err)
	}
}

func TestGenerator_ServerError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusInternalServerError)
		w.Write([]byte(`{"error":{"code":500,"message":"internal","status":"INTERNAL"}}`))
	}))
	defer server.Close()

	_, err := newTestGenerator(t, server.URL).Generate(context.Background(), domain.InferenceRequest{Prompt: "p"})

	if !errors.Is(err, domain.ErrProviderError) {
		t.Fatalf("expected domain.ErrProviderError, got %v", err)
	}
}

func TestGenerator_EmptyCandidate(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"candidates":[{"finishReason":"SAFETY"}]}`))
	}))
	defer server.Close()

	_, err := newTestGenerator(t, server.URL).Generate(context.Background(), domain.InferenceRequest{Prompt: "p"})

	if !errors.Is(err, domain.ErrResponseInvalid) {
		t.Fatalf("expected domain.ErrResponseInvalid, got %v", err)
	}
	if !strings.Contains(err.Error(), "SAFETY") {
		t.Errorf("expected finish reason in error, got %v", err)
	}
}

func TestNewGenerator_RequiresKey(t *testing.T) {
	_, err := NewGenerator(context.Background(), &Config{})
	if !errors.Is(err, domain.ErrInvalidInput) {
		t.Fatalf("expected domain.ErrInvalidInput, got %v", err)
	}
}

func TestToGenaiSchema(t *testing.T) {
	s := toGenaiSchema(domain.BatchResultSchema(7))

	articles := s.Properties["articles"]
	if articles == nil || articles.Items == nil {
		t.Fatal("expected articles array with items")
	}
	cat := articles.Items.Properties["categoryId"]
	if cat == nil || cat.Minimum == nil || *cat.Maximum != 7 {
		t.Fatalf("expected categoryId bounded to 1..7, got %+v", cat)
	}
	if got := strings.Join(articles.Items.PropertyOrdering, ","); got != "index,categoryId,summary" {
		t.Errorf("PropertyOrdering = %s", got)
	}
}

// Package chi exposes the annotation pipeline over HTTP.
package chi

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	chiMiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/kailas-cloud/newsdigest/internal/domain"
	domusage "github.com/kailas-cloud/newsdigest/internal/domain/usage"
	"github.com/kailas-cloud/newsdigest/internal/metrics"
	healthuc "github.com/kailas-cloud/newsdigest/internal/usecase/health"
)

// Request limits.
const (
	DefaultMaxItems = 500
	maxBodyBytes    = 8 << 20
)

// Annotator annotates items.
type Annotator interface {
	ProcessBatches(ctx context.Context, items []domain.Item, chunkSize int) []domain.AnnotatedItem
	AnnotateItem(ctx context.Context, item domain.Item) domain.AnnotatedItem
}

// RunReader reads archived runs.
type RunReader interface {
	LatestRun(ctx context.Context) (domain.Run, error)
	ListItems(ctx context.Context, runID string) ([]domain.AnnotatedItem, error)
}

// UsageReader reports provider request usage.
type UsageReader interface {
	GetReport(ctx context.Context, period domusage.Period) domusage.Report
}

// HealthChecker aggregates component health.
type HealthChecker interface {
	Check(ctx context.Context) healthuc.Report
}

// Server serves the HTTP API.
type Server struct {
	annotator Annotator
	runs      RunReader
	usage     UsageReader
	health    HealthChecker
	logger    *zap.Logger
	maxItems  int
}

// NewServer creates an HTTP API server.
func NewServer(annotator Annotator, health HealthChecker, logger *zap.Logger) *Server {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Server{
		annotator: annotator,
		health:    health,
		logger:    logger,
		maxItems:  DefaultMaxItems,
	}
}

// WithRuns exposes the run archive under /v1/runs.
func (s *Server) WithRuns(runs RunReader) *Server {
	s.runs = runs
	return s
}

// WithUsage exposes the request budget under /v1/usage.
func (s *Server) WithUsage(usage UsageReader) *Server {
	s.usage = usage
	return s
}

// WithMaxItems caps the number of items per annotate request.
func (s *Server) WithMaxItems(n int) *Server {
	if n > 0 {
		s.maxItems = n
	}
	return s
}

// Router builds the chi router with the full middleware stack.
func (s *Server) Router(apiKeys []string) http.Handler {
	r := chi.NewRouter()
	r.Use(jsonRecoverer(s.logger))
	r.Use(chiMiddleware.RequestID)
	r.Use(wideEventMiddleware(s.logger))
	r.Use(BearerAuthMiddleware(apiKeys))
	r.Use(metrics.Middleware())

	r.NotFound(func(w http.ResponseWriter, _ *http.Request) {
		writeError(w, http.StatusNotFound, codeNotFound, "route not found")
	})
	r.MethodNotAllowed(func(w http.ResponseWriter, _ *http.Request) {
		writeError(w, http.StatusMethodNotAllowed, codeBadRequest, "method not allowed")
	})

	r.Get("/health", s.HealthCheck)
	r.Method(http.MethodGet, "/metrics", promhttp.Handler())

	r.Route("/v1", func(r chi.Router) {
		r.Post("/annotate", s.Annotate)
		r.Post("/annotate/item", s.AnnotateItem)
		if s.runs != nil {
			r.Get("/runs/latest", s.LatestRun)
		}
		if s.usage != nil {
			r.Get("/usage", s.GetUsage)
		}
	})
	return r
}

type itemRequest struct {
	Title   string `json:"title"`
	Body    string `json:"body"`
	Content string `json:"content"`
	Link    string `json:"link"`
	Source  string `json:"source"`
}

type annotateRequest struct {
	Items     []itemRequest `json:"items"`
	ChunkSize int           `json:"chunk_size"`
}

type articleResponse struct {
	Position int    `json:"position"`
	Title    string `json:"title"`
	Link     string `json:"link,omitempty"`
	Source   string `json:"source,omitempty"`
	Category string `json:"category"`
	Summary  string `json:"summary"`
	Origin   string `json:"origin"`
}

type annotateResponse struct {
	Articles []articleResponse `json:"articles"`
	Total    int               `json:"total"`
	Fallback int               `json:"fallback"`
}

type runResponse struct {
	ID         string            `json:"id"`
	StartedAt  time.Time         `json:"started_at"`
	FinishedAt time.Time         `json:"finished_at"`
	Weekly     bool              `json:"is_weekly"`
	Provider   string            `json:"provider,omitempty"`
	Model      string            `json:"model,omitempty"`
	Total      int               `json:"total"`
	Fallback   int               `json:"fallback"`
	Articles   []articleResponse `json:"articles"`
}

type usageResponse struct {
	Period            string    `json:"period"`
	PeriodStart       time.Time `json:"period_start"`
	PeriodEnd         time.Time `json:"period_end"`
	Provider          string    `json:"provider"`
	RequestsUsed      int64     `json:"requests_used"`
	RequestsLimit     *int64    `json:"requests_limit"`
	RequestsRemaining *int64    `json:"requests_remaining"`
	Exhausted         bool      `json:"exhausted"`
}

type healthResponse struct {
	Status string            `json:"status"`
	Checks map[string]string `json:"checks"`
}

// Annotate handles POST /v1/annotate.
func (s *Server) Annotate(w http.ResponseWriter, r *http.Request) {
	var req annotateRequest
	if !s.decode(w, r, &req) {
		return
	}

	if len(req.Items) == 0 || len(req.Items) > s.maxItems {
		writeError(w, http.StatusBadRequest, codeValidation,
			fmt.Sprintf("items count must be between 1 and %d", s.maxItems))
		return
	}
	if req.ChunkSize < 0 {
		writeError(w, http.StatusBadRequest, codeValidation, "chunk_size must not be negative")
		return
	}

	items := make([]domain.Item, len(req.Items))
	for i, in := range req.Items {
		item, err := itemFromRequest(in)
		if err != nil {
			writeError(w, http.StatusBadRequest, codeValidation, fmt.Sprintf("items[%d]: %v", i, err))
			return
		}
		item.Position = i
		items[i] = item
	}

	annotated := s.annotator.ProcessBatches(r.Context(), items, req.ChunkSize)
	writeJSON(w, http.StatusOK, toAnnotateResponse(annotated))
}

// AnnotateItem handles POST /v1/annotate/item.
func (s *Server) AnnotateItem(w http.ResponseWriter, r *http.Request) {
	var req itemRequest
	if !s.decode(w, r, &req) {
		return
	}
	item, err := itemFromRequest(req)
	if err != nil {
		writeError(w, http.StatusBadRequest, codeValidation, err.Error())
		return
	}

	writeJSON(w, http.StatusOK, toArticle(s.annotator.AnnotateItem(r.Context(), item)))
}

// LatestRun handles GET /v1/runs/latest.
func (s *Server) LatestRun(w http.ResponseWriter, r *http.Request) {
	run, err := s.runs.LatestRun(r.Context())
	if err != nil {
		s.handleDomainError(w, err)
		return
	}
	items, err := s.runs.ListItems(r.Context(), run.ID)
	if err != nil {
		s.handleDomainError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, runResponse{
		ID:         run.ID,
		StartedAt:  run.StartedAt,
		FinishedAt: run.FinishedAt,
		Weekly:     run.Weekly,
		Provider:   run.Provider,
		Model:      run.Model,
		Total:      run.Total,
		Fallback:   run.Fallback,
		Articles:   toArticles(items),
	})
}

// GetUsage handles GET /v1/usage?period=day|month. Limits are null when unlimited.
func (s *Server) GetUsage(w http.ResponseWriter, r *http.Request) {
	period, ok := domusage.ParsePeriod(r.URL.Query().Get("period"))
	if !ok {
		writeError(w, http.StatusBadRequest, codeValidation, "period must be \"day\" or \"month\"")
		return
	}

	report := s.usage.GetReport(r.Context(), period)
	resp := usageResponse{
		Period:       string(report.Period()),
		PeriodStart:  report.PeriodStart(),
		PeriodEnd:    report.PeriodEnd(),
		Provider:     report.Provider(),
		RequestsUsed: report.Used(),
		Exhausted:    report.Exhausted(),
	}
	if !report.Unlimited() {
		limit, remaining := report.Limit(), report.Remaining()
		resp.RequestsLimit = &limit
		resp.RequestsRemaining = &remaining
	}
	writeJSON(w, http.StatusOK, resp)
}

// HealthCheck handles GET /health.
func (s *Server) HealthCheck(w http.ResponseWriter, r *http.Request) {
	report := s.health.Check(r.Context())

	checks := make(map[string]string, len(report.Checks))
	for k, v := range report.Checks {
		checks[k] = string(v)
	}

	status := http.StatusOK
	if report.Status != healthuc.Healthy {
		status = http.StatusServiceUnavailable
	}
	writeJSON(w, status, healthResponse{Status: string(report.Status), Checks: checks})
}

func (s *Server) decode(w http.ResponseWriter, r *http.Request, v any) bool {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			writeError(w, http.StatusRequestEntityTooLarge, codeBadRequest, "request body too large")
			return false
		}
		writeError(w, http.StatusBadRequest, codeBadRequest, "Invalid request body: "+err.Error())
		return false
	}
	return true
}

func itemFromRequest(in itemRequest) (domain.Item, error) {
	body := in.Body
	if strings.TrimSpace(body) == "" {
		body = in.Content
	}
	if strings.TrimSpace(in.Title) == "" && strings.TrimSpace(body) == "" {
		return domain.Item{}, errors.New("title or body is required")
	}
	return domain.Item{
		Title:  strings.TrimSpace(in.Title),
		Body:   body,
		Link:   in.Link,
		Source: in.Source,
	}, nil
}

func toArticle(a domain.AnnotatedItem) articleResponse {
	return articleResponse{
		Position: a.Position,
		Title:    a.Title,
		Link:     a.Link,
		Source:   a.Source,
		Category: a.Category,
		Summary:  a.Summary,
		Origin:   string(a.Origin),
	}
}

func toArticles(items []domain.AnnotatedItem) []articleResponse {
	out := make([]articleResponse, len(items))
	for i, it := range items {
		out[i] = toArticle(it)
	}
	return out
}

func toAnnotateResponse(items []domain.AnnotatedItem) annotateResponse {
	resp := annotateResponse{Articles: toArticles(items), Total: len(items)}
	for _, it := range items {
		if it.IsFallback() {
			resp.Fallback++
		}
	}
	return resp
}

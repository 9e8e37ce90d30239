// Package api serves transformation tables, mappings and version lookups
// over a read-only JSON HTTP interface.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/sells-group/gdivir/internal/matchmaker"
	"github.com/sells-group/gdivir/internal/metadata"
	"github.com/sells-group/gdivir/internal/model"
	"github.com/sells-group/gdivir/internal/store"
	"github.com/sells-group/gdivir/internal/version"
)

// Resolver is the mapping surface the API reads.
type Resolver interface {
	ManyToOneDocumentation(ctx context.Context, year int, level model.Level) (*matchmaker.Documentation, error)
}

// NameResolver extracts region IDs from era name lists.
type NameResolver interface {
	ExtractCodes(ctx context.Context, names []string, level model.Level, parent string) ([]string, error)
}

// Options configures the router middleware.
type Options struct {
	AllowedOrigins []string
	// RateLimit is requests per second; zero disables limiting.
	RateLimit float64
	Burst     int
}

// Handler wires API endpoints to the matchmaker, the version tracker and
// the snapshot store.
type Handler struct {
	resolver  Resolver
	names     NameResolver
	snapshots store.SnapshotReader
	log       *zap.Logger
}

// New creates a Handler.
func New(resolver Resolver, names NameResolver, snapshots store.SnapshotReader) *Handler {
	return &Handler{
		resolver:  resolver,
		names:     names,
		snapshots: snapshots,
		log:       zap.L().With(zap.String("component", "api")),
	}
}

// Register mounts the endpoints on r.
func (h *Handler) Register(r chi.Router) {
	r.Get("/health", h.handleHealth)
	r.Get("/datasets/{dataset}/years", h.handleYears)
	r.Get("/transformations/{level}/{year}", h.handleDocumentation)
	r.Get("/mappings/{level}/{year}", h.handleMapping)
	r.Get("/conflicts/{level}/{year}", h.handleConflicts)
	r.Post("/versions/{level}/extract", h.handleExtract)
}

// Router returns a chi router with request IDs, panic recovery, CORS and
// an optional token-bucket limit in front of the endpoints.
func (h *Handler) Router(opts Options) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: opts.AllowedOrigins,
		AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodOptions},
		AllowedHeaders: []string{"Accept", "Content-Type"},
		MaxAge:         300,
	}))
	if opts.RateLimit > 0 {
		r.Use(rateLimit(rate.NewLimiter(rate.Limit(opts.RateLimit), opts.Burst)))
	}
	r.Use(h.logRequests)
	h.Register(r)
	return r
}

func rateLimit(limiter *rate.Limiter) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if !limiter.Allow() {
				writeJSON(w, http.StatusTooManyRequests, errorBody{Error: "rate limit exceeded"})
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

func (h *Handler) logRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)
		h.log.Debug("request",
			zap.String("request_id", middleware.GetReqID(r.Context())),
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Int("status", ww.Status()),
			zap.Duration("duration", time.Since(start)),
		)
	})
}

func (h *Handler) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (h *Handler) handleYears(w http.ResponseWriter, r *http.Request) {
	dataset, err := model.ParseDataset(chi.URLParam(r, "dataset"))
	if err != nil {
		h.writeError(w, r, badRequest(err))
		return
	}
	years, err := h.snapshots.Years(r.Context(), dataset)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	if years == nil {
		years = []int{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"dataset": dataset, "years": years})
}

func (h *Handler) handleDocumentation(w http.ResponseWriter, r *http.Request) {
	doc, ok := h.documentation(w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, doc)
}

func (h *Handler) handleMapping(w http.ResponseWriter, r *http.Request) {
	doc, ok := h.documentation(w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, mappingResponse{
		Year:         doc.Year,
		PreviousYear: doc.PreviousYear,
		Level:        doc.Level,
		Mapping:      doc.Mapping(),
	})
}

func (h *Handler) handleConflicts(w http.ResponseWriter, r *http.Request) {
	doc, ok := h.documentation(w, r)
	if !ok {
		return
	}
	conflicts := doc.OneToOneConflicts()
	if conflicts == nil {
		conflicts = []matchmaker.Conflict{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"year": doc.Year, "level": doc.Level, "conflicts": conflicts})
}

func (h *Handler) documentation(w http.ResponseWriter, r *http.Request) (*matchmaker.Documentation, bool) {
	level, err := model.ParseLevel(chi.URLParam(r, "level"))
	if err != nil {
		h.writeError(w, r, badRequest(err))
		return nil, false
	}
	year, err := strconv.Atoi(chi.URLParam(r, "year"))
	if err != nil {
		h.writeError(w, r, badRequest(eris.Wrap(err, "api: year")))
		return nil, false
	}
	doc, err := h.resolver.ManyToOneDocumentation(r.Context(), year, level)
	if err != nil {
		h.writeError(w, r, err)
		return nil, false
	}
	return doc, true
}

func (h *Handler) handleExtract(w http.ResponseWriter, r *http.Request) {
	level, err := model.ParseLevel(chi.URLParam(r, "level"))
	if err != nil {
		h.writeError(w, r, badRequest(err))
		return
	}
	var req extractRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, r, badRequest(eris.Wrap(err, "api: decode request")))
		return
	}
	if len(req.Names) == 0 {
		h.writeError(w, r, badRequest(eris.New("api: names are required")))
		return
	}
	ids, err := h.names.ExtractCodes(r.Context(), req.Names, level, req.Parent)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, extractResponse{IDs: ids})
}

type mappingResponse struct {
	Year         int                `json:"year"`
	PreviousYear int                `json:"previous_year"`
	Level        model.Level        `json:"level"`
	Mapping      matchmaker.Mapping `json:"mapping"`
}

type extractRequest struct {
	Names  []string `json:"names"`
	Parent string   `json:"parent,omitempty"`
}

type extractResponse struct {
	IDs []string `json:"ids"`
}

type errorBody struct {
	Error string `json:"error"`
}

type requestError struct{ err error }

func (e requestError) Error() string { return e.err.Error() }
func (e requestError) Unwrap() error { return e.err }

func badRequest(err error) error { return requestError{err: err} }

// statusOf maps domain errors onto HTTP status codes.
func statusOf(err error) int {
	var reqErr requestError
	switch {
	case errors.As(err, &reqErr):
		return http.StatusBadRequest
	case errors.Is(err, metadata.ErrYearNotFound), errors.Is(err, store.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, version.ErrNoVersion),
		errors.Is(err, version.ErrAmbiguousVersion),
		errors.Is(err, version.ErrUnresolvedName),
		errors.Is(err, matchmaker.ErrDuplicateKey):
		return http.StatusUnprocessableEntity
	default:
		return http.StatusInternalServerError
	}
}

func (h *Handler) writeError(w http.ResponseWriter, r *http.Request, err error) {
	status := statusOf(err)
	if status >= http.StatusInternalServerError {
		h.log.Error("request failed",
			zap.String("request_id", middleware.GetReqID(r.Context())),
			zap.String("path", r.URL.Path),
			zap.Error(err),
		)
	}
	writeJSON(w, status, errorBody{Error: err.Error()})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

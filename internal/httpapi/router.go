package httpapi

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"NewsDigest/internal/domain"
)

// NewsLister is the read side of article storage.
type NewsLister interface {
	Latest(ctx context.Context, limit int) ([]domain.Article, error)
}

// Options configures the read API.
type Options struct {
	CORSAllowedOrigin string
	DefaultLimit      int
	MaxLimit          int
	Metrics           http.Handler
	RequestTimeout    time.Duration
}

type newsResponse struct {
	Status string           `json:"status"`
	Count  int              `json:"count"`
	News   []domain.Article `json:"news"`
}

type errorResponse struct {
	Status  string `json:"status"`
	Message string `json:"message"`
}

type handler struct {
	news   NewsLister
	opts   Options
	logger *slog.Logger
}

// NewRouter wires /news, /health and optionally /metrics.
func NewRouter(news NewsLister, opts Options, logger *slog.Logger) http.Handler {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	if opts.DefaultLimit <= 0 {
		opts.DefaultLimit = 50
	}
	if opts.MaxLimit < opts.DefaultLimit {
		opts.MaxLimit = opts.DefaultLimit
	}
	if opts.RequestTimeout <= 0 {
		opts.RequestTimeout = 15 * time.Second
	}

	h := &handler{news: news, opts: opts, logger: logger}

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(corsMiddleware(opts.CORSAllowedOrigin))

	r.Get("/health", h.health)
	r.With(middleware.Timeout(opts.RequestTimeout)).Get("/news", h.listNews)
	if opts.Metrics != nil {
		r.Method(http.MethodGet, "/metrics", opts.Metrics)
	}

	return r
}

// corsMiddleware allows a single configured origin and answers preflight requests.
func corsMiddleware(allowedOrigin string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if allowedOrigin != "" {
				w.Header().Set("Access-Control-Allow-Origin", allowedOrigin)
				w.Header().Set("Access-Control-Allow-Methods", "GET, OPTIONS")
				w.Header().Set("Access-Control-Allow-Headers", "Content-Type")
				w.Header().Set("Vary", "Origin")
			}
			if r.Method == http.MethodOptions {
				w.WriteHeader(http.StatusNoContent)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

func (h *handler) health(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// listNews serves GET /news?limit=N.
func (h *handler) listNews(w http.ResponseWriter, r *http.Request) {
	limit := h.opts.DefaultLimit
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 {
			writeJSON(w, http.StatusBadRequest, errorResponse{Status: "error", Message: "limit must be a positive integer"})
			return
		}
		limit = min(n, h.opts.MaxLimit)
	}

	articles, err := h.news.Latest(r.Context(), limit)
	if err != nil {
		h.logger.Error("load latest news failed",
			"request_id", middleware.GetReqID(r.Context()),
			"error", err,
		)
		writeJSON(w, http.StatusInternalServerError, errorResponse{Status: "error", Message: "failed to load news"})
		return
	}
	if articles == nil {
		articles = []domain.Article{}
	}

	writeJSON(w, http.StatusOK, newsResponse{Status: "ok", Count: len(articles), News: articles})
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

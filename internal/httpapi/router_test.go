package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"NewsDigest/internal/domain"
)

type stubLister struct {
	articles  []domain.Article
	err       error
	lastLimit int
}

func (s *stubLister) Latest(_ context.Context, limit int) ([]domain.Article, error) {
	s.lastLimit = limit
	if s.err != nil {
		return nil, s.err
	}
	if len(s.articles) > limit {
		return s.articles[:limit], nil
	}
	return s.articles, nil
}

func newTestRouter(lister NewsLister) http.Handler {
	return NewRouter(lister, Options{
		CORSAllowedOrigin: "http://localhost:3000",
		DefaultLimit:      50,
		MaxLimit:          200,
		Metrics: http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
			_, _ = w.Write([]byte("newsdigest_passes_total 1\n"))
		}),
	}, nil)
}

func serve(h http.Handler, method, target string) *httptest.ResponseRecorder {
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(method, target, nil))
	return rec
}

func TestListNews(t *testing.T) {
	t.Parallel()

	published := time.Date(2025, time.October, 14, 8, 30, 0, 0, time.UTC)
	lister := &stubLister{articles: []domain.Article{
		{ID: 2, Title: "Nyeste", Link: "https://dr.example/2", PublishedAt: &published, Source: "DR", Summary: "Resumé", Category: domain.CategorySports},
		{ID: 1, Title: "Uden dato", Link: "https://dr.example/1", Source: "DR", Summary: "Resumé", Category: domain.CategoryAll},
	}}

	rec := serve(newTestRouter(lister), http.MethodGet, "/news")
	require.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, "http://localhost:3000", rec.Header().Get("Access-Control-Allow-Origin"))
	require.Equal(t, 50, lister.lastLimit)

	var body struct {
		Status string           `json:"status"`
		Count  int              `json:"count"`
		News   []map[string]any `json:"news"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	require.Equal(t, "ok", body.Status)
	require.Equal(t, 2, body.Count)
	require.Equal(t, "Nyeste", body.News[0]["title"])
	require.Equal(t, "Sport", body.News[0]["category"])
	require.Equal(t, "2025-10-14T08:30:00Z", body.News[0]["publishedAt"])
	require.Nil(t, body.News[1]["publishedAt"])
}

func TestListNewsLimit(t *testing.T) {
	t.Parallel()

	lister := &stubLister{}
	router := newTestRouter(lister)

	rec := serve(router, http.MethodGet, "/news?limit=5")
	require.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, 5, lister.lastLimit)
	require.JSONEq(t, `{"status":"ok","count":0,"news":[]}`, rec.Body.String())

	serve(router, http.MethodGet, "/news?limit=1000")
	require.Equal(t, 200, lister.lastLimit)

	for _, bad := range []string{"0", "-3", "abc"} {
		rec = serve(router, http.MethodGet, "/news?limit="+bad)
		require.Equal(t, http.StatusBadRequest, rec.Code, bad)
	}
}

func TestListNewsStorageError(t *testing.T) {
	t.Parallel()

	rec := serve(newTestRouter(&stubLister{err: errors.New("connection refused")}), http.MethodGet, "/news")
	require.Equal(t, http.StatusInternalServerError, rec.Code)
	require.JSONEq(t, `{"status":"error","message":"failed to load news"}`, rec.Body.String())
}

func TestHealthMetricsAndPreflight(t *testing.T) {
	t.Parallel()

	router := newTestRouter(&stubLister{})

	rec := serve(router, http.MethodGet, "/health")
	require.Equal(t, http.StatusOK, rec.Code)
	require.JSONEq(t, `{"status":"ok"}`, rec.Body.String())

	rec = serve(router, http.MethodGet, "/metrics")
	require.Equal(t, http.StatusOK, rec.Code)
	require.Contains(t, rec.Body.String(), "newsdigest_passes_total")

	rec = serve(router, http.MethodOptions, "/news")
	require.Equal(t, http.StatusNoContent, rec.Code)
	require.Equal(t, "GET, OPTIONS", rec.Header().Get("Access-Control-Allow-Methods"))

	rec = serve(router, http.MethodPost, "/news")
	require.Equal(t, http.StatusMethodNotAllowed, rec.Code)
}

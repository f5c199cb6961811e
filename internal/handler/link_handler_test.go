package handler

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/linksnip/linksnip/internal/model"
	"github.com/linksnip/linksnip/internal/service"
)

type fakeService struct {
	links map[string]*model.Link
	err   error
}

func (f *fakeService) Create(_ context.Context, url string, ttlHours *int) (*model.Link, error) {
	if f.err != nil {
		return nil, f.err
	}
	ttl := 24
	if ttlHours != nil {
		ttl = *ttlHours
	}
	now := time.Now()
	link := &model.Link{
		ID:        1,
		Code:      "Ab3_x9",
		URL:       url,
		CreatedAt: now,
		ExpiresAt: now.Add(time.Duration(ttl) * time.Hour),
	}
	f.links[link.Code] = link
	return link, nil
}

func (f *fakeService) Resolve(_ context.Context, code string) (string, error) {
	if f.err != nil {
		return "", f.err
	}
	link, ok := f.links[code]
	if !ok {
		return "", service.ErrNotFound
	}
	return link.URL, nil
}

func (f *fakeService) Stats(_ context.Context, code string) (*model.Link, error) {
	if f.err != nil {
		return nil, f.err
	}
	link, ok := f.links[code]
	if !ok {
		return nil, service.ErrNotFound
	}
	return link, nil
}

type recordedClick struct {
	code, ip, userAgent, referer string
}

type fakeSink struct {
	mu     sync.Mutex
	clicks []recordedClick
}

func (f *fakeSink) Enqueue(code, ip, userAgent, referer string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.clicks = append(f.clicks, recordedClick{code, ip, userAgent, referer})
}

func setup() (*gin.Engine, *fakeService, *fakeSink) {
	gin.SetMode(gin.TestMode)
	svc := &fakeService{links: make(map[string]*model.Link)}
	sink := &fakeSink{}
	h := NewLinkHandler(svc, sink, "http://localhost:8000")

	router := gin.New()
	router.GET("/", h.Index)
	router.GET("/health", h.Health)
	router.POST("/shorten", h.Shorten)
	router.GET("/stats/:code", h.Stats)
	router.GET("/:code", h.Redirect)
	return router, svc, sink
}

func TestShorten(t *testing.T) {
	router, _, _ := setup()

	body := `{"url": "https://www.example.com"}`
	req := httptest.NewRequest(http.MethodPost, "/shorten", strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	require.Equal(t, http.StatusCreated, w.Code)

	var resp ShortenResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, "Ab3_x9", resp.Code)
	assert.Equal(t, "http://localhost:8000/Ab3_x9", resp.ShortURL)
	assert.WithinDuration(t, time.Now().Add(24*time.Hour), resp.ExpiresAt, 5*time.Second)
}

func TestShortenRejectsBadBody(t *testing.T) {
	router, _, _ := setup()

	for _, body := range []string{``, `{}`, `{"url": 42}`, `not json`} {
		req := httptest.NewRequest(http.MethodPost, "/shorten", strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
		w := httptest.NewRecorder()
		router.ServeHTTP(w, req)
		assert.Equal(t, http.StatusBadRequest, w.Code, "body %q", body)
	}
}

func TestShortenRejectsInvalidURL(t *testing.T) {
	router, svc, _ := setup()
	svc.err = service.ErrInvalidURL

	req := httptest.NewRequest(http.MethodPost, "/shorten", strings.NewReader(`{"url": "nope"}`))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestShortenStoreFailure(t *testing.T) {
	router, svc, _ := setup()
	svc.err = assert.AnError

	req := httptest.NewRequest(http.MethodPost, "/shorten", strings.NewReader(`{"url": "https://example.com"}`))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusInternalServerError, w.Code)
}

func TestRedirect(t *testing.T) {
	router, svc, sink := setup()
	svc.links["Ab3_x9"] = &model.Link{Code: "Ab3_x9", URL: "https://www.example.com"}

	req := httptest.NewRequest(http.MethodGet, "/Ab3_x9", nil)
	req.Header.Set("User-Agent", "test-agent")
	req.Header.Set("Referer", "https://ref.example")
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusMovedPermanently, w.Code)
	assert.Equal(t, "https://www.example.com", w.Header().Get("Location"))

	require.Len(t, sink.clicks, 1)
	assert.Equal(t, "Ab3_x9", sink.clicks[0].code)
	assert.Equal(t, "test-agent", sink.clicks[0].userAgent)
	assert.Equal(t, "https://ref.example", sink.clicks[0].referer)
}

func TestRedirectUnknownCode(t *testing.T) {
	router, _, sink := setup()

	req := httptest.NewRequest(http.MethodGet, "/nonexistent-code", nil)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusNotFound, w.Code)
	assert.Contains(t, w.Body.String(), "not found")
	assert.Empty(t, sink.clicks, "no click recorded on failed resolution")
}

func TestStats(t *testing.T) {
	router, svc, _ := setup()
	now := time.Now()
	svc.links["Ab3_x9"] = &model.Link{
		Code:       "Ab3_x9",
		URL:        "https://www.example.com",
		CreatedAt:  now.Add(-time.Hour),
		ExpiresAt:  now.Add(23 * time.Hour),
		ClickCount: 1,
		Clicks: []model.Click{
			{ClickedAt: now, IP: "10.0.0.1", UserAgent: "test-agent", Referer: ""},
		},
	}

	req := httptest.NewRequest(http.MethodGet, "/stats/Ab3_x9", nil)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	require.Equal(t, http.StatusOK, w.Code)

	var resp StatsResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, "Ab3_x9", resp.Code)
	assert.Equal(t, "https://www.example.com", resp.URL)
	assert.Equal(t, int64(1), resp.ClickCount)
	require.Len(t, resp.Clicks, 1)
	assert.Equal(t, "10.0.0.1", resp.Clicks[0].IP)
}

func TestStatsUnknownCode(t *testing.T) {
	router, _, _ := setup()

	req := httptest.NewRequest(http.MethodGet, "/stats/missing", nil)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestHealth(t *testing.T) {
	router, _, _ := setup()

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"status": "ok"}`, w.Body.String())
}

func TestIndex(t *testing.T) {
	router, _, _ := setup()

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Header().Get("Content-Type"), "text/html")
}

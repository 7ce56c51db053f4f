package httpapi

import (
	"bytes"
	"context"
	"encoding/json"
	"image/png"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/MagnunAVF/shortener-core/internal"
	"github.com/MagnunAVF/shortener-core/internal/analytics"
	"github.com/MagnunAVF/shortener-core/internal/cache"
	"github.com/MagnunAVF/shortener-core/internal/codegen"
	"github.com/MagnunAVF/shortener-core/internal/idgen"
	"github.com/MagnunAVF/shortener-core/internal/metrics"
	"github.com/MagnunAVF/shortener-core/internal/shortener"
	"github.com/MagnunAVF/shortener-core/internal/store"
	tu "github.com/MagnunAVF/shortener-core/internal/testutil"
)

type recordedClicks struct {
	mu    sync.Mutex
	metas []internal.RequestMeta
}

func (r *recordedClicks) RecordClick(_ *internal.URLRecord, meta internal.RequestMeta, _ time.Time) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.metas = append(r.metas, meta)
}

type harness struct {
	app     *fiber.App
	svc     *shortener.Service
	clicks  *store.Clicks
	clock   *tu.Clock
	seen    *recordedClicks
	records *store.Records
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	db := tu.NewTestDB(t)
	h := &harness{
		records: store.NewRecords(db),
		clicks:  store.NewClicks(db),
		clock:   tu.NewClock(time.Date(2025, 3, 10, 9, 0, 0, 0, time.UTC)),
		seen:    &recordedClicks{},
	}
	ids, err := idgen.New(3)
	require.NoError(t, err)

	reg := prometheus.NewRegistry()
	m := metrics.New(reg)
	h.svc = shortener.NewService(shortener.Config{
		Records:   h.records,
		Cache:     cache.NewMemory(time.Hour),
		Codes:     codegen.New(h.records, codegen.WithSeed(7)),
		IDs:       ids,
		Clicks:    h.seen,
		Analytics: analytics.NewAggregator(h.clicks, h.clock.Now),
		Metrics:   m,
		BaseURL:   "https://sho.rt",
		Now:       h.clock.Now,
	})
	t.Cleanup(h.svc.Wait)
	h.app = New(h.svc, m, reg).App()
	return h
}

func (h *harness) do(t *testing.T, method, path, owner string, body any) *http.Response {
	t.Helper()
	var r io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		require.NoError(t, err)
		r = bytes.NewReader(b)
	}
	req := httptest.NewRequest(method, path, r)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if owner != "" {
		req.Header.Set(OwnerHeader, owner)
	}
	resp, err := h.app.Test(req, -1)
	require.NoError(t, err)
	t.Cleanup(func() { resp.Body.Close() })
	return resp
}

func decode[T any](t *testing.T, resp *http.Response) T {
	t.Helper()
	var v T
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&v))
	return v
}

func (h *harness) shorten(t *testing.T, owner string, req map[string]any) shortener.Allocation {
	t.Helper()
	resp := h.do(t, http.MethodPost, "/api/shorten", owner, req)
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	return decode[shortener.Allocation](t, resp)
}

func TestShortenAndRedirect(t *testing.T) {
	h := newHarness(t)
	alloc := h.shorten(t, "", map[string]any{"url": "https://example.com/page"})
	assert.Equal(t, "https://sho.rt/"+alloc.Code, alloc.ShortURL)

	req := httptest.NewRequest(http.MethodGet, "/"+alloc.Code, nil)
	req.Header.Set("User-Agent", "Mozilla/5.0 (iPhone)")
	req.Header.Set("CF-IPCountry", "BR")
	resp, err := h.app.Test(req, -1)
	require.NoError(t, err)
	defer resp.Body.Close()

	assert.Equal(t, http.StatusFound, resp.StatusCode)
	assert.Equal(t, "https://example.com/page", resp.Header.Get("Location"))

	h.seen.mu.Lock()
	require.Len(t, h.seen.metas, 1)
	assert.Equal(t, "BR", h.seen.metas[0].Country)
	assert.Equal(t, "Mozilla/5.0 (iPhone)", h.seen.metas[0].UserAgent)
	h.seen.mu.Unlock()

	h.svc.Wait()
	rec, err := h.records.FindByCode(context.Background(), alloc.Code)
	require.NoError(t, err)
	assert.EqualValues(t, 1, rec.ClickCount)
}

func TestRedirectKeepsClickDetailsAfterLaterRequests(t *testing.T) {
	h := newHarness(t)
	alloc := h.shorten(t, "", map[string]any{"url": "https://example.com/page"})

	ua := "Mozilla/5.0 (iPhone) " + strings.Repeat("A", 16)
	req := httptest.NewRequest(http.MethodGet, "/"+alloc.Code, nil)
	req.Header.Set("User-Agent", ua)
	req.Header.Set("Referer", "https://news.example/")
	req.Header.Set("X-Forwarded-For", "203.0.113.7")
	req.Header.Set("CF-IPCountry", "BR")
	resp, err := h.app.Test(req, -1)
	require.NoError(t, err)
	resp.Body.Close()
	require.Equal(t, http.StatusFound, resp.StatusCode)

	for i := 0; i < 3; i++ {
		req := httptest.NewRequest(http.MethodGet, "/health", nil)
		req.Header.Set("User-Agent", "curl/8.0 "+strings.Repeat("Z", 28))
		req.Header.Set("Referer", "https://other.example/")
		req.Header.Set("X-Forwarded-For", "198.51.100.99")
		req.Header.Set("CF-IPCountry", "US")
		resp, err := h.app.Test(req, -1)
		require.NoError(t, err)
		resp.Body.Close()
	}

	h.seen.mu.Lock()
	defer h.seen.mu.Unlock()
	require.Len(t, h.seen.metas, 1)
	got := h.seen.metas[0]
	assert.Equal(t, ua, got.UserAgent)
	assert.Equal(t, "https://news.example/", got.Referer)
	assert.Equal(t, "203.0.113.7", got.ForwardedFor)
	assert.Equal(t, "BR", got.Country)
}

func TestRedirectStatuses(t *testing.T) {
	h := newHarness(t)
	alloc := h.shorten(t, "", map[string]any{"url": "https://example.com", "expiration_days": 1})

	resp := h.do(t, http.MethodGet, "/nothere1", "", nil)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
	assert.Contains(t, decode[map[string]string](t, resp)["error"], "not found")

	h.clock.Advance(48 * time.Hour)
	resp = h.do(t, http.MethodGet, "/"+alloc.Code, "", nil)
	assert.Equal(t, http.StatusGone, resp.StatusCode)
}

func TestShortenRejectsBadInput(t *testing.T) {
	h := newHarness(t)

	cases := map[string]map[string]any{
		"scheme":     {"url": "javascript:alert(1)"},
		"empty":      {"url": ""},
		"expiration": {"url": "https://example.com", "expiration_days": 9999},
		"code":       {"url": "https://example.com", "custom_code": "no spaces"},
	}
	for name, body := range cases {
		t.Run(name, func(t *testing.T) {
			resp := h.do(t, http.MethodPost, "/api/shorten", "", body)
			assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
		})
	}

	req := httptest.NewRequest(http.MethodPost, "/api/shorten", strings.NewReader("{"))
	req.Header.Set("Content-Type", "application/json")
	resp, err := h.app.Test(req, -1)
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestCustomCodeConflict(t *testing.T) {
	h := newHarness(t)
	h.shorten(t, "", map[string]any{"url": "https://example.com/1", "custom_code": "promo"})

	resp := h.do(t, http.MethodPost, "/api/shorten", "", map[string]any{"url": "https://example.com/2", "custom_code": "promo"})
	assert.Equal(t, http.StatusConflict, resp.StatusCode)
}

func TestBulkShorten(t *testing.T) {
	h := newHarness(t)

	resp := h.do(t, http.MethodPost, "/api/bulk-shorten", "", map[string]any{
		"urls": []string{"https://a.example.com", "ftp://bad", "https://b.example.com"},
	})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	res := decode[shortener.BulkResult](t, resp)
	assert.Equal(t, 2, res.Succeeded)
	assert.Equal(t, 1, res.Failed)
	require.Len(t, res.Results, 3)

	resp = h.do(t, http.MethodPost, "/api/bulk-shorten", "", map[string]any{"urls": []string{}})
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	many := make([]string, 101)
	for i := range many {
		many[i] = "https://example.com"
	}
	resp = h.do(t, http.MethodPost, "/api/bulk-shorten", "", map[string]any{"urls": many})
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestResolveDoesNotCount(t *testing.T) {
	h := newHarness(t)
	alloc := h.shorten(t, "", map[string]any{"url": "https://example.com/r"})

	resp := h.do(t, http.MethodGet, "/api/resolve/"+alloc.Code, "", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "https://example.com/r", decode[shortener.Resolution](t, resp).LongURL)

	h.svc.Wait()
	rec, err := h.records.FindByCode(context.Background(), alloc.Code)
	require.NoError(t, err)
	assert.Zero(t, rec.ClickCount)
	assert.Empty(t, h.seen.metas)
}

func TestListLinks(t *testing.T) {
	h := newHarness(t)
	h.shorten(t, "alice", map[string]any{"url": "https://docs.example.com/one"})
	h.clock.Advance(time.Minute)
	h.shorten(t, "alice", map[string]any{"url": "https://blog.example.com/two"})
	h.shorten(t, "bob", map[string]any{"url": "https://docs.example.com/three"})

	resp := h.do(t, http.MethodGet, "/api/links", "", nil)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)

	resp = h.do(t, http.MethodGet, "/api/links?sort=createdAt&direction=asc", "alice", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	page := decode[internal.Page](t, resp)
	assert.EqualValues(t, 2, page.Total)
	require.Len(t, page.Records, 2)
	assert.Equal(t, "https://docs.example.com/one", page.Records[0].LongURL)

	resp = h.do(t, http.MethodGet, "/api/links?q=DOCS", "alice", nil)
	page = decode[internal.Page](t, resp)
	assert.EqualValues(t, 1, page.Total)

	for _, q := range []string{"sort=owner", "status=soon", "min_clicks=x", "created_from=yesterday"} {
		resp = h.do(t, http.MethodGet, "/api/links?"+q, "alice", nil)
		assert.Equal(t, http.StatusBadRequest, resp.StatusCode, q)
	}
}

func TestUpdateAndDeleteLink(t *testing.T) {
	h := newHarness(t)
	alloc := h.shorten(t, "alice", map[string]any{"url": "https://example.com/old"})
	path := "/api/links/" + alloc.Code

	resp := h.do(t, http.MethodPatch, path, "bob", map[string]any{"url": "https://example.com/new"})
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)

	resp = h.do(t, http.MethodPatch, path, "alice", map[string]any{"url": "https://example.com/new"})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "https://example.com/new", decode[internal.URLRecord](t, resp).LongURL)

	resp = h.do(t, http.MethodGet, "/"+alloc.Code, "", nil)
	assert.Equal(t, "https://example.com/new", resp.Header.Get("Location"))

	resp = h.do(t, http.MethodDelete, path, "bob", nil)
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)

	resp = h.do(t, http.MethodDelete, path, "alice", nil)
	assert.Equal(t, http.StatusNoContent, resp.StatusCode)

	resp = h.do(t, http.MethodGet, "/"+alloc.Code, "", nil)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestAnalyticsAndStats(t *testing.T) {
	h := newHarness(t)
	alloc := h.shorten(t, "alice", map[string]any{"url": "https://example.com/a"})
	h.shorten(t, "alice", map[string]any{"url": "https://example.com/b", "expiration_days": 1})

	rec, err := h.records.FindByCode(context.Background(), alloc.Code)
	require.NoError(t, err)
	country := "BR"
	_, err = h.clicks.InsertClicks(context.Background(), []internal.ClickEvent{
		{URLID: rec.ID, Code: rec.Code, ClickedAt: h.clock.Now().Add(-time.Hour), Country: &country},
		{URLID: rec.ID, Code: rec.Code, ClickedAt: h.clock.Now().Add(-time.Hour), Country: &country},
	})
	require.NoError(t, err)

	analyticsPath := "/api/links/" + alloc.Code + "/analytics?days=7"
	resp := h.do(t, http.MethodGet, analyticsPath, "", nil)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	resp = h.do(t, http.MethodGet, analyticsPath, "mallory", nil)
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)

	resp = h.do(t, http.MethodGet, analyticsPath, "alice", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	report := decode[internal.Analytics](t, resp)
	assert.Equal(t, 7, report.WindowDays)
	assert.EqualValues(t, 2, report.TotalClicks)
	require.Len(t, report.Countries, 1)
	assert.Equal(t, internal.Bucket{Label: "BR", Count: 2}, report.Countries[0])

	resp = h.do(t, http.MethodGet, "/api/links/missing1/analytics", "alice", nil)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)

	resp = h.do(t, http.MethodGet, "/api/stats", "", nil)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)

	h.clock.Advance(48 * time.Hour)
	resp = h.do(t, http.MethodGet, "/api/stats", "alice", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, internal.OwnerStats{Total: 2, Active: 1, Expired: 1}, decode[internal.OwnerStats](t, resp))
}

func TestQRCode(t *testing.T) {
	h := newHarness(t)
	alloc := h.shorten(t, "", map[string]any{"url": "https://example.com/qr"})

	resp := h.do(t, http.MethodGet, "/api/links/"+alloc.Code+"/qrcode?size=200", "", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "image/png", resp.Header.Get("Content-Type"))
	assert.Contains(t, resp.Header.Get("Content-Disposition"), "qrcode-"+alloc.Code+".png")
	img, err := png.Decode(resp.Body)
	require.NoError(t, err)
	assert.Equal(t, 200, img.Bounds().Dx())

	resp = h.do(t, http.MethodGet, "/api/links/missing1/qrcode", "", nil)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestHealthMetricsAndRequestID(t *testing.T) {
	h := newHarness(t)

	resp := h.do(t, http.MethodGet, "/health", "", nil)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.NotEmpty(t, resp.Header.Get("X-Request-ID"))

	h.do(t, http.MethodGet, "/nothere1", "", nil)

	resp = h.do(t, http.MethodGet, "/metrics", "", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	assert.Contains(t, string(body), `shortener_http_requests_total{method="GET",route="/:code",status="404"} 1`)
}

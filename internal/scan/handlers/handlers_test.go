package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aristath/optionscout/internal/cache"
	"github.com/aristath/optionscout/internal/domain"
	"github.com/aristath/optionscout/internal/scan"
)

type stubService struct {
	lastReq scan.Request
	resp    *domain.ScanResponse
	panics  bool
}

func (s *stubService) Scan(ctx context.Context, req scan.Request) *domain.ScanResponse {
	s.lastReq = req
	if s.panics {
		panic("nil map write in tier transition")
	}
	if s.resp != nil {
		return s.resp
	}
	return &domain.ScanResponse{
		Success:       true,
		Timestamp:     time.Now().UTC().Format(time.RFC3339),
		Opportunities: []domain.Opportunity{},
		Source:        domain.SourceLive,
		Metadata:      domain.ScanMetadata{FilterMode: req.FilterMode},
	}
}

type stubStatus struct {
	statuses []cache.ModeStatus
	err      error
}

func (s *stubStatus) Status() ([]cache.ModeStatus, error) {
	return s.statuses, s.err
}

func newTestRouter(svc *stubService, status *stubStatus) chi.Router {
	if status == nil {
		status = &stubStatus{}
	}
	h := New(svc, status, zerolog.Nop())
	r := chi.NewRouter()
	r.Route("/api", func(r chi.Router) {
		h.RegisterRoutes(r)
	})
	return r
}

func doRequest(t *testing.T, router chi.Router, method, target, body string) *httptest.ResponseRecorder {
	t.Helper()
	var req *http.Request
	if body != "" {
		req = httptest.NewRequest(method, target, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	} else {
		req = httptest.NewRequest(method, target, nil)
	}
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	return rec
}

func TestHandleScanDefaultsToStrictMode(t *testing.T) {
	svc := &stubService{}
	rec := doRequest(t, newTestRouter(svc, nil), http.MethodGet, "/api/scan", "")

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, domain.FilterModeStrict, svc.lastReq.FilterMode)
}

func TestHandleScanFilterModeSynonyms(t *testing.T) {
	tests := []struct {
		query string
		want  domain.FilterMode
	}{
		{"filterMode=strict", domain.FilterModeStrict},
		{"filter_mode=relaxed", domain.FilterModeRelaxed},
		{"filter=tight", domain.FilterModeStrict},
		{"mode=loose", domain.FilterModeRelaxed},
		{"mode=RELAXED", domain.FilterModeRelaxed},
	}

	for _, tt := range tests {
		t.Run(tt.query, func(t *testing.T) {
			svc := &stubService{}
			rec := doRequest(t, newTestRouter(svc, nil), http.MethodGet, "/api/scan?"+tt.query, "")

			assert.Equal(t, http.StatusOK, rec.Code)
			assert.Equal(t, tt.want, svc.lastReq.FilterMode)
		})
	}
}

func TestHandleScanUnknownModeIsBadRequest(t *testing.T) {
	svc := &stubService{}
	rec := doRequest(t, newTestRouter(svc, nil), http.MethodGet, "/api/scan?mode=aggressive", "")

	assert.Equal(t, http.StatusBadRequest, rec.Code)

	var body map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, false, body["success"])
}

func TestHandleScanQueryOverridesBody(t *testing.T) {
	svc := &stubService{}
	rec := doRequest(t, newTestRouter(svc, nil), http.MethodPost,
		"/api/scan?filterMode=relaxed", `{"filterMode":"strict"}`)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, domain.FilterModeRelaxed, svc.lastReq.FilterMode)
}

func TestHandleScanBodyModeUsedWhenQueryAbsent(t *testing.T) {
	svc := &stubService{}
	doRequest(t, newTestRouter(svc, nil), http.MethodPost, "/api/scan", `{"mode":"loose"}`)

	assert.Equal(t, domain.FilterModeRelaxed, svc.lastReq.FilterMode)
}

func TestHandleScanSizingHints(t *testing.T) {
	tests := []struct {
		name          string
		target        string
		body          string
		wantPortfolio float64
		wantBudget    int
	}{
		{"query hints", "/api/scan?portfolioSize=50000&dailyContractBudget=5", "", 50000, 5},
		{"body hints", "/api/scan", `{"portfolioSize":25000,"dailyContractBudget":2}`, 25000, 2},
		{"body numeric string", "/api/scan", `{"portfolioSize":"30000"}`, 30000, 0},
		{"negative ignored", "/api/scan?portfolioSize=-100", "", 0, 0},
		{"garbage ignored", "/api/scan?portfolioSize=lots", "", 0, 0},
		{"query wins over body", "/api/scan?portfolioSize=1000", `{"portfolioSize":9999}`, 1000, 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc := &stubService{}
			method := http.MethodGet
			if tt.body != "" {
				method = http.MethodPost
			}
			rec := doRequest(t, newTestRouter(svc, nil), method, tt.target, tt.body)

			assert.Equal(t, http.StatusOK, rec.Code)
			assert.Equal(t, tt.wantPortfolio, svc.lastReq.PortfolioSize)
			assert.Equal(t, tt.wantBudget, svc.lastReq.DailyContractBudget)
		})
	}
}

func TestHandleScanClientRequestedFallback(t *testing.T) {
	for _, target := range []string{"/api/scan?fallback=true", "/api/scan?tier=fallback"} {
		t.Run(target, func(t *testing.T) {
			svc := &stubService{}
			doRequest(t, newTestRouter(svc, nil), http.MethodGet, target, "")
			assert.True(t, svc.lastReq.ForceFallback)
		})
	}
}

func TestHandleScanMalformedBodyIsBadRequest(t *testing.T) {
	svc := &stubService{}
	rec := doRequest(t, newTestRouter(svc, nil), http.MethodPost, "/api/scan", `{"filterMode":`)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestHandleScanPanicYieldsShapedResponse(t *testing.T) {
	svc := &stubService{panics: true}
	rec := doRequest(t, newTestRouter(svc, nil), http.MethodGet, "/api/scan", "")

	require.Equal(t, http.StatusOK, rec.Code)

	var resp domain.ScanResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.True(t, resp.Success)
	assert.Empty(t, resp.Opportunities)
	assert.True(t, resp.Metadata.Fallback)
	assert.Equal(t, domain.ReasonHandlerFailure, resp.Metadata.FallbackReason)
}

func TestHandleCacheStatus(t *testing.T) {
	age := 4.2
	status := &stubStatus{statuses: []cache.ModeStatus{
		{FilterMode: domain.FilterModeStrict, Count: 3, LatestAgeMins: &age, Fresh: true},
		{FilterMode: domain.FilterModeRelaxed, Count: 0, Fresh: false},
	}}
	rec := doRequest(t, newTestRouter(&stubService{}, status), http.MethodGet, "/api/scan/cache", "")

	require.Equal(t, http.StatusOK, rec.Code)

	var body struct {
		Success bool               `json:"success"`
		Modes   []cache.ModeStatus `json:"modes"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.True(t, body.Success)
	require.Len(t, body.Modes, 2)
	assert.True(t, body.Modes[0].Fresh)
}

func TestHandleCacheStatusReadFailure(t *testing.T) {
	status := &stubStatus{err: errors.New("database is locked")}
	rec := doRequest(t, newTestRouter(&stubService{}, status), http.MethodGet, "/api/scan/cache", "")

	assert.Equal(t, http.StatusInternalServerError, rec.Code)
}

package server

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aristath/optionscout/internal/cache"
	"github.com/aristath/optionscout/internal/domain"
	"github.com/aristath/optionscout/internal/scan"
	scanhandlers "github.com/aristath/optionscout/internal/scan/handlers"
)

type noopScanner struct{}

func (noopScanner) Scan(ctx context.Context, req scan.Request) *domain.ScanResponse {
	return &domain.ScanResponse{
		Success:       true,
		Opportunities: []domain.Opportunity{},
		Source:        domain.SourceEmpty,
		Metadata:      domain.ScanMetadata{FilterMode: req.FilterMode},
	}
}

type noopStatus struct{}

func (noopStatus) Status() ([]cache.ModeStatus, error) { return nil, nil }

func newTestServer(t *testing.T) *Server {
	t.Helper()
	h := scanhandlers.New(noopScanner{}, noopStatus{}, zerolog.Nop())
	return New(Config{Port: 0, Log: zerolog.Nop(), ScanHandler: h, DevMode: true})
}

func TestHealthEndpoint(t *testing.T) {
	srv := newTestServer(t)

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	rec := httptest.NewRecorder()
	srv.router.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"status":"ok"}`, rec.Body.String())
}

func TestScanRoutesMounted(t *testing.T) {
	srv := newTestServer(t)

	req := httptest.NewRequest(http.MethodGet, "/api/scan", nil)
	rec := httptest.NewRecorder()
	srv.router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)

	var resp domain.ScanResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.True(t, resp.Success)
}

func TestSystemStatusEndpoint(t *testing.T) {
	srv := newTestServer(t)

	req := httptest.NewRequest(http.MethodGet, "/api/system/status", nil)
	rec := httptest.NewRecorder()
	srv.router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)

	var status SystemStatusResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &status))
	assert.Equal(t, "ok", status.Status)
	assert.GreaterOrEqual(t, status.Goroutines, 1)
	assert.NotEmpty(t, status.GoVersion)
}

// Package handlers exposes the scan pipeline over HTTP.
package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/aristath/optionscout/internal/cache"
	"github.com/aristath/optionscout/internal/domain"
	"github.com/aristath/optionscout/internal/scan"
)

// maxBodyBytes bounds the accepted request body.
const maxBodyBytes = 1 << 16

// ScanService runs the tiered scan pipeline.
type ScanService interface {
	Scan(ctx context.Context, req scan.Request) *domain.ScanResponse
}

// SnapshotStatus reports per-mode cache snapshot state.
type SnapshotStatus interface {
	Status() ([]cache.ModeStatus, error)
}

// Handler serves the /api/scan routes.
type Handler struct {
	svc      ScanService
	statuser SnapshotStatus
	log      zerolog.Logger
}

// New creates a scan handler.
func New(svc ScanService, statuser SnapshotStatus, log zerolog.Logger) *Handler {
	return &Handler{
		svc:      svc,
		statuser: statuser,
		log:      log.With().Str("component", "scan_handlers").Logger(),
	}
}

// scanBody is the optional JSON body of a POST scan request. Unknown
// fields are ignored; the query string takes precedence over the body.
type scanBody struct {
	FilterMode          string          `json:"filterMode"`
	FilterModeSnake     string          `json:"filter_mode"`
	Filter              string          `json:"filter"`
	Mode                string          `json:"mode"`
	PortfolioSize       json.RawMessage `json:"portfolioSize"`
	DailyContractBudget json.RawMessage `json:"dailyContractBudget"`
	Fallback            json.RawMessage `json:"fallback"`
}

// HandleScan serves GET and POST /api/scan.
func (h *Handler) HandleScan(w http.ResponseWriter, r *http.Request) {
	req, errMsg := h.parseRequest(r)
	if errMsg != "" {
		writeJSON(w, http.StatusBadRequest, map[string]any{
			"success": false,
			"error":   errMsg,
		})
		return
	}

	resp := h.scanGuarded(r, req)
	writeJSON(w, http.StatusOK, resp)
}

// scanGuarded runs the pipeline behind a panic guard. A panic is a defect,
// not a degradation, but the contract is still shaped JSON.
func (h *Handler) scanGuarded(r *http.Request, req scan.Request) (resp *domain.ScanResponse) {
	defer func() {
		if rec := recover(); rec != nil {
			h.log.Error().Interface("panic", rec).Msg("Scan pipeline panicked")
			resp = &domain.ScanResponse{
				Success:        true,
				Timestamp:      time.Now().UTC().Format(time.RFC3339),
				Opportunities:  []domain.Opportunity{},
				Source:         domain.SourceEmpty,
				TotalEvaluated: 0,
				Metadata: domain.ScanMetadata{
					Fallback:       true,
					FallbackReason: domain.ReasonHandlerFailure,
					FilterMode:     req.FilterMode,
				},
			}
		}
	}()

	return h.svc.Scan(r.Context(), req)
}

// HandleCacheStatus serves GET /api/scan/cache.
func (h *Handler) HandleCacheStatus(w http.ResponseWriter, r *http.Request) {
	statuses, err := h.statuser.Status()
	if err != nil {
		h.log.Error().Err(err).Msg("Failed to read snapshot status")
		writeJSON(w, http.StatusInternalServerError, map[string]any{
			"success": false,
			"error":   "failed to read snapshot status",
		})
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"success":   true,
		"timestamp": time.Now().UTC().Format(time.RFC3339),
		"modes":     statuses,
	})
}

// parseRequest merges query parameters over the optional JSON body.
// Sizing hints are best-effort: non-numeric or non-positive values are
// dropped silently. Only an explicitly unrecognized filter mode is a
// malformed request.
func (h *Handler) parseRequest(r *http.Request) (scan.Request, string) {
	req := scan.Request{FilterMode: domain.FilterModeStrict}

	var body scanBody
	if r.Body != nil && (r.Method == http.MethodPost || r.Method == http.MethodPut) {
		dec := json.NewDecoder(http.MaxBytesReader(nil, r.Body, maxBodyBytes))
		if err := dec.Decode(&body); err != nil && !errors.Is(err, io.EOF) {
			return req, "request body is not valid JSON"
		}
	}

	// Body first, then query, so the query wins.
	modeRaw := firstNonEmpty(body.FilterMode, body.FilterModeSnake, body.Filter, body.Mode)
	if q := queryValue(r, "filterMode", "filter_mode", "filter", "mode"); q != "" {
		modeRaw = q
	}
	if modeRaw != "" {
		mode, ok := domain.ParseFilterMode(modeRaw)
		if !ok {
			return req, "unknown filter mode: " + modeRaw
		}
		req.FilterMode = mode
	}

	req.PortfolioSize = positiveFloat(rawNumber(body.PortfolioSize), r.URL.Query().Get("portfolioSize"))
	req.DailyContractBudget = int(positiveFloat(rawNumber(body.DailyContractBudget), r.URL.Query().Get("dailyContractBudget")))

	req.ForceFallback = parseBoolish(string(body.Fallback)) ||
		parseBoolish(r.URL.Query().Get("fallback")) ||
		strings.EqualFold(r.URL.Query().Get("tier"), "fallback")

	return req, ""
}

func queryValue(r *http.Request, keys ...string) string {
	q := r.URL.Query()
	for _, k := range keys {
		if v := strings.TrimSpace(q.Get(k)); v != "" {
			return v
		}
	}
	return ""
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if s := strings.TrimSpace(v); s != "" {
			return s
		}
	}
	return ""
}

// rawNumber extracts a float from a raw JSON value, tolerating numbers
// and numeric strings. Anything else reads as zero (absent).
func rawNumber(raw json.RawMessage) float64 {
	if len(raw) == 0 {
		return 0
	}
	var f float64
	if err := json.Unmarshal(raw, &f); err == nil {
		return f
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		if f, err := strconv.ParseFloat(strings.TrimSpace(s), 64); err == nil {
			return f
		}
	}
	return 0
}

// positiveFloat returns the query value when it parses positive, else the
// body value when positive, else zero.
func positiveFloat(bodyValue float64, queryRaw string) float64 {
	if queryRaw != "" {
		if f, err := strconv.ParseFloat(queryRaw, 64); err == nil && f > 0 {
			return f
		}
	}
	if bodyValue > 0 {
		return bodyValue
	}
	return 0
}

func parseBoolish(s string) bool {
	s = strings.Trim(strings.TrimSpace(s), `"`)
	switch strings.ToLower(s) {
	case "true", "1", "yes":
		return true
	}
	return false
}

// writeJSON writes a JSON response with the given status code.
func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

package domain

import (
	"strings"
	"time"
)

// FilterMode controls how permissive the engine's selection criteria are.
type FilterMode string

const (
	FilterModeStrict  FilterMode = "strict"
	FilterModeRelaxed FilterMode = "relaxed"
)

// ParseFilterMode maps a user-supplied mode string onto a FilterMode,
// accepting the common synonyms. Unknown or empty values return ok=false so
// the caller can apply its default.
func ParseFilterMode(s string) (FilterMode, bool) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "strict", "tight":
		return FilterModeStrict, true
	case "relaxed", "loose":
		return FilterModeRelaxed, true
	default:
		return "", false
	}
}

// Source tiers for a scan response.
const (
	SourceCache    = "cache"
	SourceLive     = "live"
	SourceFallback = "enhanced-fallback"
	SourceEmpty    = "none"
)

// Reason codes attached to metadata whenever a degraded tier is used.
const (
	ReasonCacheMiss         = "cache_miss"
	ReasonSpawnError        = "spawn_error"
	ReasonTimeout           = "timeout"
	ReasonExitNonZero       = "exit_non_zero"
	ReasonNoPayload         = "no_payload"
	ReasonNoEnhancedResults = "no_enhanced_results"
	ReasonParseError        = "parse_error"
	ReasonClientRequested   = "client_requested"
	ReasonHandlerFailure    = "handler_failure"
)

// TierFailure records why one fallback tier was rejected.
type TierFailure struct {
	Tier   string `json:"tier"`
	Reason string `json:"reason"`
	Detail string `json:"detail,omitempty"`
}

// ScanMetadata describes the provenance and health of a batch of
// opportunities. fallback=true implies a non-empty FallbackReason;
// source=cache implies CacheAgeMinutes is present.
type ScanMetadata struct {
	Fallback        bool           `json:"fallback"`
	FallbackReason  string         `json:"fallbackReason,omitempty"`
	FallbackDetails string         `json:"fallbackDetails,omitempty"`
	CacheHit        bool           `json:"cacheHit"`
	CacheAgeMinutes *float64       `json:"cacheAgeMinutes,omitempty"`
	FilterMode      FilterMode     `json:"filterMode"`
	ScanID          string         `json:"scanId"`
	Symbols         []string       `json:"symbols,omitempty"`
	ElapsedMs       int64          `json:"elapsedMs"`
	DebugInfo       map[string]any `json:"debugInfo,omitempty"`
}

// ScanResponse is the shaped payload every request receives. Success stays
// true through ordinary degradation; only a malformed request (handled by
// the validation layer above this one) produces a non-success response.
type ScanResponse struct {
	Success        bool          `json:"success"`
	Timestamp      string        `json:"timestamp"`
	Opportunities  []Opportunity `json:"opportunities"`
	Source         string        `json:"source"`
	TotalEvaluated int           `json:"totalEvaluated"`
	Metadata       ScanMetadata  `json:"metadata"`
}

// CacheSnapshot is a precomputed scan result read from the snapshot store.
// The pipeline only inspects it for freshness and shape; it never writes
// one on the request path.
type CacheSnapshot struct {
	Opportunities  []Opportunity
	TotalEvaluated int
	Symbols        []string
	FilterMode     FilterMode
	ScannedAt      time.Time
	AgeMinutes     float64
}

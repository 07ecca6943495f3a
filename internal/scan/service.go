package scan

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/aristath/optionscout/internal/domain"
	"github.com/aristath/optionscout/internal/engine"
)

// logTailBytes bounds how much captured process output is carried into the
// diagnostic bag.
const logTailBytes = 1200

// derivedRiskFraction is the per-trade portfolio risk used when sizing
// recommendations are synthesized from caller hints.
const derivedRiskFraction = 0.02

// CacheGateway reads the latest fresh snapshot for a filter mode.
// (nil, nil) is a definitive miss; an error is a failed read. Both are
// treated as cache_miss by the controller.
type CacheGateway interface {
	Latest(mode domain.FilterMode) (*domain.CacheSnapshot, error)
}

// EngineRunner launches the external analysis engine.
type EngineRunner interface {
	Run(ctx context.Context, cmd engine.Command, timeout time.Duration) engine.Result
}

// Config holds the scan pipeline configuration.
type Config struct {
	EnginePath       string        // analysis engine executable
	EngineArgs       []string      // base argument list; the filter mode is appended
	EngineModulePath string        // NODE_PATH override for the engine's module resolution
	EngineTimeout    time.Duration // wall-clock budget for one invocation
	Symbols          []string      // symbol universe written to the engine's stdin
	FallbackDataPath string        // optional on-disk override of the embedded dataset
}

// Request carries the validated scan parameters.
type Request struct {
	FilterMode          domain.FilterMode
	PortfolioSize       float64 // <= 0 means not provided
	DailyContractBudget int     // <= 0 means not provided
	ForceFallback       bool    // caller explicitly asked for the static tier
}

// Service is the fallback controller: TryCache, TryLive, TryStatic, Empty,
// each terminal on success. Every tier's failure is caught and annotated;
// the caller always gets a shaped, success-tagged response.
type Service struct {
	cache   CacheGateway
	invoker EngineRunner
	cfg     Config
	log     zerolog.Logger
	now     func() time.Time
}

// NewService creates the scan service.
func NewService(cache CacheGateway, invoker EngineRunner, cfg Config, log zerolog.Logger) *Service {
	return &Service{
		cache:   cache,
		invoker: invoker,
		cfg:     cfg,
		log:     log.With().Str("module", "scan").Logger(),
		now:     time.Now,
	}
}

// liveScan is the outcome of a successful live tier run.
type liveScan struct {
	opportunities  []domain.Opportunity
	totalEvaluated int
	elapsed        time.Duration
}

// Scan runs the tiered pipeline. It never returns an error: ordinary
// degradation is expressed through metadata, and only the handler layer's
// panic guard produces a handler_failure response.
func (s *Service) Scan(ctx context.Context, req Request) *domain.ScanResponse {
	scanID := uuid.New().String()
	start := s.now()
	log := s.log.With().Str("scan_id", scanID).Str("mode", string(req.FilterMode)).Logger()

	var failures []domain.TierFailure

	// Direct route: the caller explicitly requested the fallback tier.
	if req.ForceFallback {
		log.Info().Msg("Client requested fallback tier directly")
		return s.tryStatic(req, scanID, start, domain.TierFailure{
			Tier:   domain.SourceFallback,
			Reason: domain.ReasonClientRequested,
			Detail: "fallback tier explicitly requested",
		}, nil, nil)
	}

	// Tier 1: cache.
	snap, err := s.cache.Latest(req.FilterMode)
	if err != nil {
		log.Warn().Err(err).Msg("Snapshot read failed, treating as cache miss")
		failures = append(failures, domain.TierFailure{
			Tier:   domain.SourceCache,
			Reason: domain.ReasonCacheMiss,
			Detail: fmt.Sprintf("snapshot read failed: %v", err),
		})
	} else if snap == nil {
		failures = append(failures, domain.TierFailure{
			Tier:   domain.SourceCache,
			Reason: domain.ReasonCacheMiss,
			Detail: "no fresh snapshot available",
		})
	} else {
		log.Info().
			Float64("age_minutes", snap.AgeMinutes).
			Int("opportunities", len(snap.Opportunities)).
			Msg("Serving cached snapshot")
		return s.respondCache(req, scanID, start, snap)
	}

	// Tier 2: live engine invocation.
	live, failure, debug := s.runLive(ctx, req.FilterMode)
	if failure == nil {
		log.Info().
			Int("opportunities", len(live.opportunities)).
			Int("total_evaluated", live.totalEvaluated).
			Dur("engine_elapsed", live.elapsed).
			Msg("Live scan succeeded")
		return s.respondLive(req, scanID, start, live)
	}

	log.Warn().
		Str("reason", failure.Reason).
		Str("detail", failure.Detail).
		Msg("Live tier failed, falling back to static dataset")
	failures = append(failures, *failure)

	// Tier 3: static dataset, then Empty.
	return s.tryStatic(req, scanID, start, *failure, failures, debug)
}

// ScanLive runs only the live tier, for the snapshot refresh job. Failures
// come back as plain errors carrying the reason code.
func (s *Service) ScanLive(ctx context.Context, mode domain.FilterMode) (*domain.CacheSnapshot, error) {
	live, failure, _ := s.runLive(ctx, mode)
	if failure != nil {
		return nil, fmt.Errorf("%s: %s", failure.Reason, failure.Detail)
	}
	return &domain.CacheSnapshot{
		Opportunities:  live.opportunities,
		TotalEvaluated: live.totalEvaluated,
		Symbols:        s.cfg.Symbols,
		FilterMode:     mode,
		ScannedAt:      s.now(),
	}, nil
}

// runLive invokes the engine and pushes its output through the parser,
// normalizer and ranker. Every failure mode maps to a distinct reason
// code; nothing is raised.
func (s *Service) runLive(ctx context.Context, mode domain.FilterMode) (*liveScan, *domain.TierFailure, map[string]any) {
	cmd := engine.Command{
		Path: s.cfg.EnginePath,
		Args: append(append([]string{}, s.cfg.EngineArgs...), "--filter-mode", string(mode)),
	}
	if s.cfg.EngineModulePath != "" {
		cmd.Env = map[string]string{"NODE_PATH": s.cfg.EngineModulePath}
	}
	if len(s.cfg.Symbols) > 0 {
		stdin, _ := json.Marshal(map[string]any{"symbols": s.cfg.Symbols})
		cmd.Stdin = stdin
	}

	result := s.invoker.Run(ctx, cmd, s.cfg.EngineTimeout)

	debug := map[string]any{
		"stdoutTail": tail(result.Stdout, logTailBytes),
		"stderrTail": tail(result.Stderr, logTailBytes),
		"elapsedMs":  result.Elapsed.Milliseconds(),
	}

	switch result.Outcome {
	case engine.OutcomeSpawnFailed:
		return nil, &domain.TierFailure{
			Tier:   domain.SourceLive,
			Reason: domain.ReasonSpawnError,
			Detail: result.SpawnError,
		}, debug
	case engine.OutcomeTimedOut:
		return nil, &domain.TierFailure{
			Tier:   domain.SourceLive,
			Reason: domain.ReasonTimeout,
			Detail: fmt.Sprintf("engine exceeded %s budget", s.cfg.EngineTimeout),
		}, debug
	}

	if result.ExitCode != nil && *result.ExitCode != 0 {
		return nil, &domain.TierFailure{
			Tier:   domain.SourceLive,
			Reason: domain.ReasonExitNonZero,
			Detail: fmt.Sprintf("engine exited with code %d", *result.ExitCode),
		}, debug
	}

	payload, ok := ExtractPayload(result.Stdout, result.Stderr)
	if !ok {
		return nil, &domain.TierFailure{
			Tier:   domain.SourceLive,
			Reason: domain.ReasonNoPayload,
			Detail: "no JSON payload found in engine output",
		}, debug
	}

	records, total, ok := DecodeOpportunities(payload)
	if !ok {
		return nil, &domain.TierFailure{
			Tier:   domain.SourceLive,
			Reason: domain.ReasonParseError,
			Detail: "engine payload is not an opportunity document",
		}, debug
	}

	normalized := NormalizeBatch(records, s.now())
	debug["evaluated"] = total
	debug["survived"] = len(normalized)
	if len(normalized) == 0 {
		return nil, &domain.TierFailure{
			Tier:   domain.SourceLive,
			Reason: domain.ReasonNoEnhancedResults,
			Detail: fmt.Sprintf("evaluated %d, 0 survived quality filters", total),
		}, debug
	}

	return &liveScan{
		opportunities:  RankOpportunities(normalized),
		totalEvaluated: total,
		elapsed:        result.Elapsed,
	}, nil, debug
}

// tryStatic loads the bundled dataset and runs it through the same
// normalize/rank path as live output. Absence or emptiness of the dataset
// degrades to the Empty tier.
func (s *Service) tryStatic(
	req Request,
	scanID string,
	start time.Time,
	carried domain.TierFailure,
	failures []domain.TierFailure,
	liveDebug map[string]any,
) *domain.ScanResponse {
	dataset, err := LoadStaticDataset(s.cfg.FallbackDataPath)
	if err == nil {
		normalized := NormalizeBatch(dataset.Records, s.now())
		if len(normalized) > 0 {
			ranked := RankOpportunities(normalized)
			s.applySizingHints(ranked, req)
			return s.respondStatic(req, scanID, start, carried, ranked, dataset.TotalEvaluated, failures, liveDebug)
		}
		err = fmt.Errorf("no records survived normalization")
	}

	s.log.Error().Err(err).Str("scan_id", scanID).Msg("Static dataset unavailable, returning empty result")
	failures = append(failures, domain.TierFailure{
		Tier:   domain.SourceFallback,
		Reason: carried.Reason,
		Detail: fmt.Sprintf("static dataset unavailable: %v", err),
	})
	return s.respondEmpty(req, scanID, start, carried, failures, liveDebug)
}

// --- response shaping ---

func (s *Service) respondCache(req Request, scanID string, start time.Time, snap *domain.CacheSnapshot) *domain.ScanResponse {
	opportunities := append([]domain.Opportunity{}, snap.Opportunities...)
	s.applySizingHints(opportunities, req)
	age := snap.AgeMinutes

	return &domain.ScanResponse{
		Success:        true,
		Timestamp:      s.now().UTC().Format(time.RFC3339),
		Opportunities:  opportunities,
		Source:         domain.SourceCache,
		TotalEvaluated: snap.TotalEvaluated,
		Metadata: domain.ScanMetadata{
			Fallback:        false,
			CacheHit:        true,
			CacheAgeMinutes: &age,
			FilterMode:      req.FilterMode,
			ScanID:          scanID,
			Symbols:         snap.Symbols,
			ElapsedMs:       time.Since(start).Milliseconds(),
		},
	}
}

func (s *Service) respondLive(req Request, scanID string, start time.Time, live *liveScan) *domain.ScanResponse {
	s.applySizingHints(live.opportunities, req)

	return &domain.ScanResponse{
		Success:        true,
		Timestamp:      s.now().UTC().Format(time.RFC3339),
		Opportunities:  live.opportunities,
		Source:         domain.SourceLive,
		TotalEvaluated: live.totalEvaluated,
		Metadata: domain.ScanMetadata{
			Fallback:   false,
			CacheHit:   false,
			FilterMode: req.FilterMode,
			ScanID:     scanID,
			Symbols:    s.cfg.Symbols,
			ElapsedMs:  time.Since(start).Milliseconds(),
		},
	}
}

func (s *Service) respondStatic(
	req Request,
	scanID string,
	start time.Time,
	carried domain.TierFailure,
	opportunities []domain.Opportunity,
	totalEvaluated int,
	failures []domain.TierFailure,
	liveDebug map[string]any,
) *domain.ScanResponse {
	return &domain.ScanResponse{
		Success:        true,
		Timestamp:      s.now().UTC().Format(time.RFC3339),
		Opportunities:  opportunities,
		Source:         domain.SourceFallback,
		TotalEvaluated: totalEvaluated,
		Metadata: domain.ScanMetadata{
			Fallback:        true,
			FallbackReason:  carried.Reason,
			FallbackDetails: carried.Detail,
			CacheHit:        false,
			FilterMode:      req.FilterMode,
			ScanID:          scanID,
			ElapsedMs:       time.Since(start).Milliseconds(),
			DebugInfo:       s.debugBag(carried, failures, liveDebug),
		},
	}
}

func (s *Service) respondEmpty(
	req Request,
	scanID string,
	start time.Time,
	carried domain.TierFailure,
	failures []domain.TierFailure,
	liveDebug map[string]any,
) *domain.ScanResponse {
	// The request itself did not fail - it simply found nothing. Success
	// stays true and the metadata explains every rejected tier.
	return &domain.ScanResponse{
		Success:        true,
		Timestamp:      s.now().UTC().Format(time.RFC3339),
		Opportunities:  []domain.Opportunity{},
		Source:         domain.SourceEmpty,
		TotalEvaluated: 0,
		Metadata: domain.ScanMetadata{
			Fallback:        true,
			FallbackReason:  carried.Reason,
			FallbackDetails: carried.Detail,
			CacheHit:        false,
			FilterMode:      req.FilterMode,
			ScanID:          scanID,
			ElapsedMs:       time.Since(start).Milliseconds(),
			DebugInfo:       s.debugBag(carried, failures, liveDebug),
		},
	}
}

// debugBag assembles the bounded diagnostic context carried on degraded
// responses.
func (s *Service) debugBag(carried domain.TierFailure, failures []domain.TierFailure, liveDebug map[string]any) map[string]any {
	bag := map[string]any{
		"reason":     carried.Reason,
		"capturedAt": s.now().UTC().Format(time.RFC3339),
	}
	for k, v := range liveDebug {
		bag[k] = v
	}
	if len(failures) > 0 {
		tiers := make([]any, 0, len(failures))
		for _, f := range failures {
			tiers = append(tiers, map[string]any{
				"tier":   f.Tier,
				"reason": f.Reason,
				"detail": f.Detail,
			})
		}
		bag["tierFailures"] = tiers
	}
	return domain.SanitizeDebugMap(bag)
}

// applySizingHints synthesizes a sizing recommendation for opportunities
// the engine left unsized, using the caller's portfolio hints. Engine
// sizing blocks are never overridden.
func (s *Service) applySizingHints(opportunities []domain.Opportunity, req Request) {
	if req.PortfolioSize <= 0 {
		return
	}

	for i := range opportunities {
		opp := &opportunities[i]
		if opp.PositionSizing != nil {
			continue
		}

		contractCost := opp.Ask * 100
		if contractCost <= 0 {
			continue
		}

		contracts := int(req.PortfolioSize * derivedRiskFraction / contractCost)
		if req.DailyContractBudget > 0 && contracts > req.DailyContractBudget {
			contracts = req.DailyContractBudget
		}
		if contracts < 1 {
			continue
		}

		opp.PositionSizing = &domain.PositionSizing{
			Contracts:       contracts,
			CapitalRequired: float64(contracts) * contractCost,
			MaxRiskPercent:  derivedRiskFraction * 100,
			Source:          "derived",
		}
	}
}

// tail returns the last n bytes of s.
func tail(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[len(s)-n:]
}

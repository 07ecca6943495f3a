package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/aristath/optionscout/internal/domain"
)

// LiveScanner runs the live engine pipeline for one filter mode. The scan
// service implements this; the job depends on the interface so it can be
// tested without a real engine.
type LiveScanner interface {
	ScanLive(ctx context.Context, mode domain.FilterMode) (*domain.CacheSnapshot, error)
}

// Archiver uploads a refreshed snapshot document to long-term storage.
// Optional: a nil archiver disables archiving.
type Archiver interface {
	ArchiveSnapshot(ctx context.Context, mode domain.FilterMode, scannedAt time.Time, payload []byte) error
}

// RefreshJob precomputes scan snapshots for every filter mode on a cron
// schedule. It is the writer side of the snapshot store: the request path
// only ever reads.
type RefreshJob struct {
	scanner  LiveScanner
	repo     *SnapshotRepository
	archiver Archiver
	modes    []domain.FilterMode
	timeout  time.Duration
	log      zerolog.Logger
}

// NewRefreshJob creates a new cache refresh job. archiver may be nil.
func NewRefreshJob(
	scanner LiveScanner,
	repo *SnapshotRepository,
	archiver Archiver,
	timeout time.Duration,
	log zerolog.Logger,
) *RefreshJob {
	return &RefreshJob{
		scanner:  scanner,
		repo:     repo,
		archiver: archiver,
		modes:    []domain.FilterMode{domain.FilterModeStrict, domain.FilterModeRelaxed},
		timeout:  timeout,
		log:      log.With().Str("job", "cache_refresh").Logger(),
	}
}

// Name returns the job name for scheduler logging.
func (j *RefreshJob) Name() string {
	return "cache_refresh"
}

// Run refreshes the snapshot for each filter mode. A failed mode does not
// stop the others; the first error is reported after all modes ran.
func (j *RefreshJob) Run() error {
	var firstErr error

	for _, mode := range j.modes {
		if err := j.refreshMode(mode); err != nil {
			j.log.Warn().Err(err).Str("mode", string(mode)).Msg("Snapshot refresh failed")
			if firstErr == nil {
				firstErr = err
			}
		}
	}

	if err := j.repo.Prune(); err != nil {
		j.log.Warn().Err(err).Msg("Snapshot prune failed")
	}

	return firstErr
}

func (j *RefreshJob) refreshMode(mode domain.FilterMode) error {
	ctx, cancel := context.WithTimeout(context.Background(), j.timeout)
	defer cancel()

	snap, err := j.scanner.ScanLive(ctx, mode)
	if err != nil {
		return fmt.Errorf("live scan failed for %s: %w", mode, err)
	}

	if err := j.repo.Save(*snap); err != nil {
		return fmt.Errorf("failed to store snapshot for %s: %w", mode, err)
	}

	j.log.Info().
		Str("mode", string(mode)).
		Int("opportunities", len(snap.Opportunities)).
		Int("total_evaluated", snap.TotalEvaluated).
		Msg("Snapshot refreshed")

	if j.archiver != nil {
		j.archive(ctx, snap)
	}

	return nil
}

// archive uploads the snapshot as JSON. Archive failures are logged, never
// propagated: the snapshot is already stored locally.
func (j *RefreshJob) archive(ctx context.Context, snap *domain.CacheSnapshot) {
	payload, err := json.Marshal(map[string]any{
		"filterMode":     snap.FilterMode,
		"scannedAt":      snap.ScannedAt.UTC().Format(time.RFC3339),
		"totalEvaluated": snap.TotalEvaluated,
		"symbols":        snap.Symbols,
		"opportunities":  snap.Opportunities,
	})
	if err != nil {
		j.log.Warn().Err(err).Msg("Failed to encode snapshot for archive")
		return
	}

	if err := j.archiver.ArchiveSnapshot(ctx, snap.FilterMode, snap.ScannedAt, payload); err != nil {
		j.log.Warn().Err(err).Str("mode", string(snap.FilterMode)).Msg("Snapshot archive upload failed")
	}
}

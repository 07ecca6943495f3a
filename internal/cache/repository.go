// Package cache provides the snapshot store for precomputed scan results.
// The request pipeline only reads from it; snapshots are written by the
// scheduled refresh job.
package cache

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/rs/zerolog"
	"github.com/vmihailenco/msgpack/v5"

	"github.com/aristath/optionscout/internal/domain"
)

// StalenessCutoff is the gateway-enforced freshness policy: a snapshot
// older than this is treated identically to "not found", so every caller
// gets a uniform freshness guarantee.
const StalenessCutoff = 15 * time.Minute

// keepPerMode bounds how many historical snapshots Prune retains per
// filter mode.
const keepPerMode = 12

const schema = `
CREATE TABLE IF NOT EXISTS scan_snapshots (
	id              INTEGER PRIMARY KEY AUTOINCREMENT,
	filter_mode     TEXT    NOT NULL,
	opportunities   BLOB    NOT NULL,
	total_evaluated INTEGER NOT NULL,
	symbols         TEXT    NOT NULL,
	created_at      TEXT    NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_snapshots_mode_created
	ON scan_snapshots(filter_mode, created_at DESC);
`

// SnapshotRepository handles scan snapshot database operations.
type SnapshotRepository struct {
	db  *sql.DB
	log zerolog.Logger
}

// NewSnapshotRepository creates a new snapshot repository.
func NewSnapshotRepository(db *sql.DB, log zerolog.Logger) *SnapshotRepository {
	return &SnapshotRepository{
		db:  db,
		log: log.With().Str("repo", "snapshots").Logger(),
	}
}

// Migrate creates the snapshot table if it does not exist.
func (r *SnapshotRepository) Migrate() error {
	if _, err := r.db.Exec(schema); err != nil {
		return fmt.Errorf("failed to apply snapshot schema: %w", err)
	}
	return nil
}

// Save stores a new snapshot. Opportunity payloads are msgpack-encoded;
// the symbol universe is kept as JSON for easy inspection.
func (r *SnapshotRepository) Save(snap domain.CacheSnapshot) error {
	blob, err := msgpack.Marshal(snap.Opportunities)
	if err != nil {
		return fmt.Errorf("failed to encode opportunities: %w", err)
	}
	symbols, err := json.Marshal(snap.Symbols)
	if err != nil {
		return fmt.Errorf("failed to encode symbols: %w", err)
	}

	_, err = r.db.Exec(`
		INSERT INTO scan_snapshots (filter_mode, opportunities, total_evaluated, symbols, created_at)
		VALUES (?, ?, ?, ?, ?)`,
		string(snap.FilterMode), blob, snap.TotalEvaluated, string(symbols),
		snap.ScannedAt.UTC().Format(time.RFC3339),
	)
	if err != nil {
		return fmt.Errorf("failed to insert snapshot: %w", err)
	}

	r.log.Debug().
		Str("mode", string(snap.FilterMode)).
		Int("opportunities", len(snap.Opportunities)).
		Msg("Snapshot stored")
	return nil
}

// Latest returns the most recent fresh snapshot for a filter mode, or
// (nil, nil) when none exists or the newest one is past the staleness
// cutoff. Only a failed read returns an error.
func (r *SnapshotRepository) Latest(mode domain.FilterMode) (*domain.CacheSnapshot, error) {
	row := r.db.QueryRow(`
		SELECT opportunities, total_evaluated, symbols, created_at
		FROM scan_snapshots
		WHERE filter_mode = ?
		ORDER BY created_at DESC
		LIMIT 1`, string(mode))

	var blob []byte
	var total int
	var symbolsJSON, createdAt string
	if err := row.Scan(&blob, &total, &symbolsJSON, &createdAt); err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to read snapshot: %w", err)
	}

	scannedAt, err := time.Parse(time.RFC3339, createdAt)
	if err != nil {
		return nil, fmt.Errorf("failed to parse snapshot timestamp: %w", err)
	}

	age := time.Since(scannedAt)
	if age > StalenessCutoff {
		r.log.Debug().
			Str("mode", string(mode)).
			Dur("age", age).
			Msg("Latest snapshot is stale, treating as miss")
		return nil, nil
	}

	var opportunities []domain.Opportunity
	if err := msgpack.Unmarshal(blob, &opportunities); err != nil {
		return nil, fmt.Errorf("failed to decode opportunities: %w", err)
	}
	var symbols []string
	if err := json.Unmarshal([]byte(symbolsJSON), &symbols); err != nil {
		return nil, fmt.Errorf("failed to decode symbols: %w", err)
	}

	return &domain.CacheSnapshot{
		Opportunities:  opportunities,
		TotalEvaluated: total,
		Symbols:        symbols,
		FilterMode:     mode,
		ScannedAt:      scannedAt,
		AgeMinutes:     age.Minutes(),
	}, nil
}

// ModeStatus summarizes the snapshot state for one filter mode.
type ModeStatus struct {
	FilterMode    domain.FilterMode `json:"filterMode"`
	Count         int               `json:"count"`
	LatestAgeMins *float64          `json:"latestAgeMinutes,omitempty"`
	Fresh         bool              `json:"fresh"`
}

// Status reports per-mode snapshot counts and the age of the newest entry.
func (r *SnapshotRepository) Status() ([]ModeStatus, error) {
	rows, err := r.db.Query(`
		SELECT filter_mode, COUNT(*), MAX(created_at)
		FROM scan_snapshots
		GROUP BY filter_mode`)
	if err != nil {
		return nil, fmt.Errorf("failed to query snapshot status: %w", err)
	}
	defer rows.Close()

	var out []ModeStatus
	for rows.Next() {
		var mode string
		var count int
		var latest sql.NullString
		if err := rows.Scan(&mode, &count, &latest); err != nil {
			return nil, fmt.Errorf("failed to scan snapshot status: %w", err)
		}

		status := ModeStatus{FilterMode: domain.FilterMode(mode), Count: count}
		if latest.Valid {
			if t, err := time.Parse(time.RFC3339, latest.String); err == nil {
				age := time.Since(t).Minutes()
				status.LatestAgeMins = &age
				status.Fresh = time.Since(t) <= StalenessCutoff
			}
		}
		out = append(out, status)
	}
	return out, rows.Err()
}

// Prune deletes all but the newest snapshots of each filter mode.
func (r *SnapshotRepository) Prune() error {
	_, err := r.db.Exec(`
		DELETE FROM scan_snapshots
		WHERE id IN (
			SELECT id FROM (
				SELECT id,
					ROW_NUMBER() OVER (
						PARTITION BY filter_mode
						ORDER BY created_at DESC
					) AS rn
				FROM scan_snapshots
			)
			WHERE rn > ?
		)`, keepPerMode)
	if err != nil {
		return fmt.Errorf("failed to prune snapshots: %w", err)
	}
	return nil
}

package database

import (
	"context"
	"fmt"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"github.com/GFZ-Centre-for-Early-Warning/caravan/internal/domain"
)

// ScenarioRepository handles database operations for scenarios.
type ScenarioRepository struct {
	db *sqlx.DB
}

// NewScenarioRepository creates a new scenario repository.
func NewScenarioRepository(db *sqlx.DB) *ScenarioRepository {
	return &ScenarioRepository{db: db}
}

// FindScenarioIDs returns the ids of scenarios with the given hash.
func (r *ScenarioRepository) FindScenarioIDs(ctx context.Context, hash int64) ([]int64, error) {
	query := `SELECT gid FROM processing.scenarios WHERE hash = $1 ORDER BY gid`

	var ids []int64
	if err := r.db.SelectContext(ctx, &ids, query, hash); err != nil {
		return nil, fmt.Errorf("failed to select scenarios by hash: %w", err)
	}
	return ids, nil
}

// InsertScenario inserts rec unless a scenario with the same hash exists.
// Uses INSERT ... ON CONFLICT DO NOTHING and reports whether a row was
// written.
func (r *ScenarioRepository) InsertScenario(ctx context.Context, rec *domain.ScenarioRecord) (bool, error) {
	query := `
		INSERT INTO processing.scenarios
			(hash, gmpe_id, fault_style, mag, epi_lat, epi_lon, ipo_depth, fault_strike, fault_dip)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		ON CONFLICT (hash) DO NOTHING
	`

	result, err := r.db.ExecContext(ctx, query,
		rec.Hash,
		rec.GMPEID,
		rec.FaultStyle,
		pq.Array(rec.Mag),
		pq.Array(rec.EpiLat),
		pq.Array(rec.EpiLon),
		pq.Array(rec.IpoDepth),
		nullableArray(rec.FaultStrike),
		nullableArray(rec.FaultDip),
	)
	if err != nil {
		if isUniqueViolation(err) {
			return false, nil
		}
		return false, fmt.Errorf("failed to insert scenario: %w", err)
	}

	n, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to read inserted rows: %w", err)
	}
	return n > 0, nil
}

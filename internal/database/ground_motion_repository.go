package database

import (
	"context"
	"fmt"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"github.com/GFZ-Centre-for-Early-Warning/caravan/internal/domain"
)

// GroundMotionRepository handles database operations for per-target ground
// motion rows.
type GroundMotionRepository struct {
	db *sqlx.DB
}

// NewGroundMotionRepository creates a new ground motion repository.
func NewGroundMotionRepository(db *sqlx.DB) *GroundMotionRepository {
	return &GroundMotionRepository{db: db}
}

// InsertGroundMotion writes one ground motion row.
func (r *GroundMotionRepository) InsertGroundMotion(ctx context.Context, gm *domain.GroundMotion) error {
	query := `
		INSERT INTO processing.ground_motion (target_id, geocell_id, scenario_id, session_id, ground_motion)
		VALUES ($1, $2, $3, $4, $5)
	`

	_, err := r.db.ExecContext(ctx, query,
		gm.TargetID, gm.GeocellID, gm.ScenarioID, gm.SessionID, pq.Array(gm.Payload),
	)
	if err != nil {
		return fmt.Errorf("failed to insert ground motion: %w", err)
	}
	return nil
}

// DeleteGroundMotion removes the ground motion rows of a scenario, except
// those of keepSessions, and returns how many were deleted.
func (r *GroundMotionRepository) DeleteGroundMotion(ctx context.Context, scenarioID int64, keepSessions []int64) (int64, error) {
	query := `
		DELETE FROM processing.ground_motion
		WHERE scenario_id = $1 AND NOT (session_id = ANY($2))
	`

	// A nil array binds as NULL, which would match nothing.
	if keepSessions == nil {
		keepSessions = []int64{}
	}

	result, err := r.db.ExecContext(ctx, query, scenarioID, pq.Array(keepSessions))
	if err != nil {
		return 0, fmt.Errorf("failed to delete ground motion: %w", err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to read deleted rows: %w", err)
	}
	return n, nil
}

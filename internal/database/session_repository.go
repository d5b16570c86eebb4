package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/GFZ-Centre-for-Early-Warning/caravan/internal/domain"
)

// SessionRepository handles database operations for sessions.
type SessionRepository struct {
	db *sqlx.DB
}

// NewSessionRepository creates a new session repository.
func NewSessionRepository(db *sqlx.DB) *SessionRepository {
	return &SessionRepository{db: db}
}

// CreateSession inserts a session for numTargets targets and returns its id.
func (r *SessionRepository) CreateSession(ctx context.Context, scenarioID int64, numTargets int, at time.Time) (int64, error) {
	query := `
		INSERT INTO processing.sessions (scenario_id, session_timestamp, num_targets, num_targets_failed)
		VALUES ($1, $2, $3, 0)
		RETURNING gid
	`

	var id int64
	if err := r.db.QueryRowxContext(ctx, query, scenarioID, at.UTC(), numTargets).Scan(&id); err != nil {
		return 0, fmt.Errorf("failed to insert session: %w", err)
	}
	return id, nil
}

// IncrementFailed atomically adds one to the session's failed count.
func (r *SessionRepository) IncrementFailed(ctx context.Context, sessionID int64) error {
	query := `UPDATE processing.sessions SET num_targets_failed = num_targets_failed + 1 WHERE gid = $1`

	result, err := r.db.ExecContext(ctx, query, sessionID)
	return execRequireRows(result, err, fmt.Errorf("session not found: %d", sessionID))
}

// SessionProgress returns (done_ok, done_failed, total) for a session in
// one query.
func (r *SessionRepository) SessionProgress(ctx context.Context, sessionID int64) (domain.SessionProgress, error) {
	query := `
		SELECT
			(SELECT COUNT(*) FROM processing.ground_motion WHERE session_id = s.gid) AS done_ok,
			s.num_targets_failed AS done_failed,
			s.num_targets AS total
		FROM processing.sessions s
		WHERE s.gid = $1
	`

	var p domain.SessionProgress
	if err := r.db.GetContext(ctx, &p, query, sessionID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return p, fmt.Errorf("session not found: %d", sessionID)
		}
		return p, fmt.Errorf("failed to select session progress: %w", err)
	}
	return p, nil
}

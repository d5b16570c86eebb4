package database

import (
	"context"
	"fmt"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"github.com/GFZ-Centre-for-Early-Warning/caravan/internal/domain"
)

// targetSelectColumns yields (target_id, geocell_id, lon, lat).
const targetSelectColumns = `t.gid, t.geocell_id,
	ST_X(ST_Centroid(t.the_geom)), ST_Y(ST_Centroid(t.the_geom))`

// TargetRepository reads target cells. Rows are returned as untyped driver
// values and validated by the caller.
type TargetRepository struct {
	db *sqlx.DB
}

// NewTargetRepository creates a new target repository.
func NewTargetRepository(db *sqlx.DB) *TargetRepository {
	return &TargetRepository{db: db}
}

// TargetsWithinRadius returns targets of the given tessellations within
// radiusKm of (lat, lon).
func (r *TargetRepository) TargetsWithinRadius(
	ctx context.Context,
	tessIDs []int,
	lat, lon, radiusKm float64,
) ([]domain.RawTarget, error) {
	query := `SELECT ` + targetSelectColumns + `
		FROM exposure.targets t
		WHERE t.tess_id = ANY($1)
		AND ST_DWithin(t.the_geom::geography, ST_SetSRID(ST_MakePoint($2, $3), 4326)::geography, $4)`

	return r.query(ctx, query, pq.Array(int64s(tessIDs)), lon, lat, radiusKm*1000)
}

// TargetsWithinBBox returns targets of the given tessellations inside box.
func (r *TargetRepository) TargetsWithinBBox(ctx context.Context, tessIDs []int, box domain.BBox) ([]domain.RawTarget, error) {
	query := `SELECT ` + targetSelectColumns + `
		FROM exposure.targets t
		WHERE t.tess_id = ANY($1)
		AND ST_Intersects(t.the_geom, ST_MakeEnvelope($2, $3, $4, $5, 4326))`

	return r.query(ctx, query,
		pq.Array(int64s(tessIDs)),
		min(box.Lon1, box.Lon2), min(box.Lat1, box.Lat2),
		max(box.Lon1, box.Lon2), max(box.Lat1, box.Lat2),
	)
}

func (r *TargetRepository) query(ctx context.Context, query string, args ...any) ([]domain.RawTarget, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query targets: %w", err)
	}
	defer rows.Close()

	var out []domain.RawTarget
	for rows.Next() {
		var t domain.RawTarget
		if scanErr := rows.Scan(&t.ID, &t.GeocellID, &t.Lon, &t.Lat); scanErr != nil {
			return nil, fmt.Errorf("failed to scan target: %w", scanErr)
		}
		out = append(out, t)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate targets: %w", err)
	}
	return out, nil
}

package database_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"github.com/GFZ-Centre-for-Early-Warning/caravan/internal/database"
	"github.com/GFZ-Centre-for-Early-Warning/caravan/internal/domain"
)

func newStore(t *testing.T) (*database.Store, sqlmock.Sqlmock) {
	t.Helper()

	mockDB, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("failed to create sqlmock: %v", err)
	}
	t.Cleanup(func() { mockDB.Close() })

	return database.NewStore(sqlx.NewDb(mockDB, "postgres")), mock
}

func expectationsMet(t *testing.T, mock sqlmock.Sqlmock) {
	t.Helper()

	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("unfulfilled expectations: %v", err)
	}
}

func scenarioRecord() *domain.ScenarioRecord {
	return &domain.ScenarioRecord{
		Hash:     -42,
		GMPEID:   2,
		Mag:      []float64{6.8, 6.8},
		EpiLat:   []float64{42.87, 0},
		EpiLon:   []float64{74.6, 0},
		IpoDepth: []float64{15, 15},
	}
}

func TestScenario_FindScenarioIDs(t *testing.T) {
	store, mock := newStore(t)

	mock.ExpectQuery("SELECT gid FROM processing.scenarios WHERE hash").
		WithArgs(int64(-42)).
		WillReturnRows(sqlmock.NewRows([]string{"gid"}).AddRow(int64(3)).AddRow(int64(5)))

	ids, err := store.FindScenarioIDs(context.Background(), -42)
	if err != nil {
		t.Fatalf("FindScenarioIDs() error = %v", err)
	}
	if len(ids) != 2 || ids[0] != 3 || ids[1] != 5 {
		t.Errorf("expected ids [3 5], got %v", ids)
	}

	expectationsMet(t, mock)
}

func TestScenario_InsertScenario(t *testing.T) {
	tests := []struct {
		name         string
		result       func(e *sqlmock.ExpectedExec)
		wantInserted bool
		wantErr      bool
	}{
		{
			name:         "inserted",
			result:       func(e *sqlmock.ExpectedExec) { e.WillReturnResult(sqlmock.NewResult(0, 1)) },
			wantInserted: true,
		},
		{
			name:   "conflict does nothing",
			result: func(e *sqlmock.ExpectedExec) { e.WillReturnResult(sqlmock.NewResult(0, 0)) },
		},
		{
			name:   "unique violation",
			result: func(e *sqlmock.ExpectedExec) { e.WillReturnError(&pq.Error{Code: "23505"}) },
		},
		{
			name:    "other error",
			result:  func(e *sqlmock.ExpectedExec) { e.WillReturnError(errors.New("connection reset")) },
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			store, mock := newStore(t)

			exp := mock.ExpectExec("INSERT INTO processing.scenarios .+ ON CONFLICT \\(hash\\) DO NOTHING").
				WithArgs(int64(-42), 2, nil,
					sqlmock.AnyArg(), sqlmock.AnyArg(), sqlmock.AnyArg(), sqlmock.AnyArg(),
					nil, nil)
			tt.result(exp)

			inserted, err := store.InsertScenario(context.Background(), scenarioRecord())
			if (err != nil) != tt.wantErr {
				t.Fatalf("InsertScenario() error = %v, wantErr %v", err, tt.wantErr)
			}
			if inserted != tt.wantInserted {
				t.Errorf("expected inserted=%v, got %v", tt.wantInserted, inserted)
			}

			expectationsMet(t, mock)
		})
	}
}

func TestSession_CreateSession(t *testing.T) {
	store, mock := newStore(t)
	at := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)

	mock.ExpectQuery("INSERT INTO processing.sessions .+ RETURNING gid").
		WithArgs(int64(7), at, 120).
		WillReturnRows(sqlmock.NewRows([]string{"gid"}).AddRow(int64(11)))

	id, err := store.CreateSession(context.Background(), 7, 120, at)
	if err != nil {
		t.Fatalf("CreateSession() error = %v", err)
	}
	if id != 11 {
		t.Errorf("expected id 11, got %d", id)
	}

	expectationsMet(t, mock)
}

func TestSession_IncrementFailed(t *testing.T) {
	store, mock := newStore(t)

	mock.ExpectExec("UPDATE processing.sessions SET num_targets_failed = num_targets_failed \\+ 1").
		WithArgs(int64(11)).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec("UPDATE processing.sessions").
		WithArgs(int64(12)).
		WillReturnResult(sqlmock.NewResult(0, 0))

	if err := store.IncrementFailed(context.Background(), 11); err != nil {
		t.Fatalf("IncrementFailed() error = %v", err)
	}
	if err := store.IncrementFailed(context.Background(), 12); err == nil {
		t.Error("expected error for unknown session")
	}

	expectationsMet(t, mock)
}

func TestSession_SessionProgress(t *testing.T) {
	store, mock := newStore(t)

	mock.ExpectQuery("SELECT .+ FROM processing.sessions s WHERE s.gid").
		WithArgs(int64(11)).
		WillReturnRows(sqlmock.NewRows([]string{"done_ok", "done_failed", "total"}).AddRow(int64(7), 2, 10))

	p, err := store.SessionProgress(context.Background(), 11)
	if err != nil {
		t.Fatalf("SessionProgress() error = %v", err)
	}
	if p.DoneOK != 7 || p.DoneFailed != 2 || p.Total != 10 {
		t.Errorf("unexpected progress %+v", p)
	}

	mock.ExpectQuery("SELECT .+ FROM processing.sessions s").
		WithArgs(int64(99)).
		WillReturnRows(sqlmock.NewRows([]string{"done_ok", "done_failed", "total"}))
	if _, err := store.SessionProgress(context.Background(), 99); err == nil {
		t.Error("expected error for unknown session")
	}

	expectationsMet(t, mock)
}

func TestGroundMotion_InsertAndDelete(t *testing.T) {
	store, mock := newStore(t)

	mock.ExpectExec("INSERT INTO processing.ground_motion").
		WithArgs(int64(1), int64(2), int64(3), int64(4), sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec("DELETE FROM processing.ground_motion\\s+WHERE scenario_id = \\$1 AND NOT \\(session_id = ANY\\(\\$2\\)\\)").
		WithArgs(int64(3), sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 17))

	err := store.InsertGroundMotion(context.Background(), &domain.GroundMotion{
		TargetID: 1, GeocellID: 2, ScenarioID: 3, SessionID: 4, Payload: []float64{0.5, 0.5, 6.1},
	})
	if err != nil {
		t.Fatalf("InsertGroundMotion() error = %v", err)
	}

	n, err := store.DeleteGroundMotion(context.Background(), 3, []int64{4})
	if err != nil {
		t.Fatalf("DeleteGroundMotion() error = %v", err)
	}
	if n != 17 {
		t.Errorf("expected 17 deleted rows, got %d", n)
	}

	expectationsMet(t, mock)
}

func TestTargets_WithinRadiusAndBBox(t *testing.T) {
	store, mock := newStore(t)
	cols := []string{"gid", "geocell_id", "lon", "lat"}

	mock.ExpectQuery("FROM exposure.targets t WHERE t.tess_id = ANY\\(\\$1\\) AND ST_DWithin").
		WithArgs(sqlmock.AnyArg(), 74.6, 42.87, 50000.0).
		WillReturnRows(sqlmock.NewRows(cols).
			AddRow(int64(1), int64(2), 74.5, 42.8).
			AddRow(nil, int64(3), 74.7, 42.9))

	rows, err := store.TargetsWithinRadius(context.Background(), []int{1, 2}, 42.87, 74.6, 50)
	if err != nil {
		t.Fatalf("TargetsWithinRadius() error = %v", err)
	}
	if len(rows) != 2 {
		t.Fatalf("expected 2 rows, got %d", len(rows))
	}
	if rows[1].ID != nil {
		t.Errorf("expected raw NULL id, got %v", rows[1].ID)
	}

	mock.ExpectQuery("ST_MakeEnvelope").
		WithArgs(sqlmock.AnyArg(), 74.0, 42.0, 75.0, 43.0).
		WillReturnRows(sqlmock.NewRows(cols))

	rows, err = store.TargetsWithinBBox(context.Background(), []int{1}, domain.BBox{Lon1: 75, Lat1: 43, Lon2: 74, Lat2: 42})
	if err != nil {
		t.Fatalf("TargetsWithinBBox() error = %v", err)
	}
	if len(rows) != 0 {
		t.Errorf("expected no rows, got %d", len(rows))
	}

	expectationsMet(t, mock)
}

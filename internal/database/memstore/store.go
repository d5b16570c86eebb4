// Package memstore is an in-memory implementation of the run engine storage.
// It backs tests and the serve command when no database is configured.
package memstore

import (
	"context"
	"fmt"
	"slices"
	"sync"
	"time"

	"github.com/GFZ-Centre-for-Early-Warning/caravan/internal/domain"
	"github.com/GFZ-Centre-for-Early-Warning/caravan/internal/geo"
)

type target struct {
	tessID int
	lon    float64
	lat    float64
	raw    domain.RawTarget
}

// Store holds scenarios, sessions, ground motion rows and targets.
type Store struct {
	mu           sync.Mutex
	nextScenario int64
	nextSession  int64
	scenarios    map[int64]*domain.ScenarioRecord
	sessions     map[int64]*domain.Session
	groundMotion []domain.GroundMotion
	targets      []target

	// FailGroundMotion, when set, is consulted before every ground motion
	// insert; a non-nil result fails the insert.
	FailGroundMotion func(gm *domain.GroundMotion) error
}

// New returns an empty store.
func New() *Store {
	return &Store{
		scenarios: make(map[int64]*domain.ScenarioRecord),
		sessions:  make(map[int64]*domain.Session),
	}
}

// Ping always succeeds.
func (s *Store) Ping(context.Context) error {
	return nil
}

// AddTarget registers a target of tessellation tessID located at (lon, lat).
// raw is what queries return, so tests can inject malformed rows.
func (s *Store) AddTarget(tessID int, lon, lat float64, raw domain.RawTarget) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.targets = append(s.targets, target{tessID: tessID, lon: lon, lat: lat, raw: raw})
}

// FindScenarioIDs returns the ids of scenarios with the given hash.
func (s *Store) FindScenarioIDs(_ context.Context, hash int64) ([]int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var ids []int64
	for id, rec := range s.scenarios {
		if rec.Hash == hash {
			ids = append(ids, id)
		}
	}
	slices.Sort(ids)
	return ids, nil
}

// InsertScenario inserts rec unless a scenario with the same hash exists.
func (s *Store) InsertScenario(_ context.Context, rec *domain.ScenarioRecord) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, existing := range s.scenarios {
		if existing.Hash == rec.Hash {
			return false, nil
		}
	}
	s.nextScenario++
	stored := *rec
	stored.ID = s.nextScenario
	s.scenarios[stored.ID] = &stored
	return true, nil
}

// ForceInsertScenario inserts rec without the hash check. Tests use it to
// simulate a corrupted table.
func (s *Store) ForceInsertScenario(rec *domain.ScenarioRecord) int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.nextScenario++
	stored := *rec
	stored.ID = s.nextScenario
	s.scenarios[stored.ID] = &stored
	return stored.ID
}

// DeleteGroundMotion removes the ground motion rows of a scenario, except
// those of keepSessions.
func (s *Store) DeleteGroundMotion(_ context.Context, scenarioID int64, keepSessions []int64) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	before := len(s.groundMotion)
	s.groundMotion = slices.DeleteFunc(s.groundMotion, func(gm domain.GroundMotion) bool {
		return gm.ScenarioID == scenarioID && !slices.Contains(keepSessions, gm.SessionID)
	})
	return int64(before - len(s.groundMotion)), nil
}

// CreateSession inserts a session and returns its id.
func (s *Store) CreateSession(_ context.Context, scenarioID int64, numTargets int, at time.Time) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.nextSession++
	s.sessions[s.nextSession] = &domain.Session{
		ID:         s.nextSession,
		ScenarioID: scenarioID,
		CreatedAt:  at.UTC(),
		NumTargets: numTargets,
	}
	return s.nextSession, nil
}

// IncrementFailed adds one to the session's failed count.
func (s *Store) IncrementFailed(_ context.Context, sessionID int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	sess, ok := s.sessions[sessionID]
	if !ok {
		return fmt.Errorf("session %d not found", sessionID)
	}
	sess.NumFailed++
	return nil
}

// SessionProgress returns the progress counters of a session.
func (s *Store) SessionProgress(_ context.Context, sessionID int64) (domain.SessionProgress, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	sess, ok := s.sessions[sessionID]
	if !ok {
		return domain.SessionProgress{}, fmt.Errorf("session %d not found", sessionID)
	}
	done := 0
	for _, gm := range s.groundMotion {
		if gm.SessionID == sessionID {
			done++
		}
	}
	return domain.SessionProgress{DoneOK: done, DoneFailed: sess.NumFailed, Total: sess.NumTargets}, nil
}

// InsertGroundMotion stores a ground motion row.
func (s *Store) InsertGroundMotion(_ context.Context, gm *domain.GroundMotion) error {
	if s.FailGroundMotion != nil {
		if err := s.FailGroundMotion(gm); err != nil {
			return err
		}
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	row := *gm
	row.Payload = slices.Clone(gm.Payload)
	s.groundMotion = append(s.groundMotion, row)
	return nil
}

// TargetsWithinRadius returns targets of the given tessellations within
// radiusKm of (lat, lon).
func (s *Store) TargetsWithinRadius(_ context.Context, tessIDs []int, lat, lon, radiusKm float64) ([]domain.RawTarget, error) {
	return s.filterTargets(tessIDs, func(t target) bool {
		return geo.Distance(lat, lon, t.lat, t.lon) <= radiusKm
	}), nil
}

// TargetsWithinBBox returns targets of the given tessellations inside box.
func (s *Store) TargetsWithinBBox(_ context.Context, tessIDs []int, box domain.BBox) ([]domain.RawTarget, error) {
	return s.filterTargets(tessIDs, func(t target) bool {
		return box.Contains(t.lon, t.lat)
	}), nil
}

func (s *Store) filterTargets(tessIDs []int, keep func(target) bool) []domain.RawTarget {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []domain.RawTarget
	for _, t := range s.targets {
		if slices.Contains(tessIDs, t.tessID) && keep(t) {
			out = append(out, t.raw)
		}
	}
	return out
}

// ScenarioCount returns the number of stored scenarios.
func (s *Store) ScenarioCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.scenarios)
}

// SessionCount returns the number of sessions.
func (s *Store) SessionCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.sessions)
}

// Session returns a copy of a session.
func (s *Store) Session(id int64) (domain.Session, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	sess, ok := s.sessions[id]
	if !ok {
		return domain.Session{}, false
	}
	return *sess, true
}

// GroundMotionRows returns copies of the rows written for a session.
func (s *Store) GroundMotionRows(sessionID int64) []domain.GroundMotion {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []domain.GroundMotion
	for _, gm := range s.groundMotion {
		if gm.SessionID == sessionID {
			out = append(out, gm)
		}
	}
	return out
}

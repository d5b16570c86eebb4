package domain

import "time"

// Target is a validated target cell.
type Target struct {
	ID        int64   `json:"target_id"`
	GeocellID int64   `json:"geocell_id"`
	Lon       float64 `json:"lon"`
	Lat       float64 `json:"lat"`
}

// RawTarget is a target row as returned by the driver, before validation.
type RawTarget struct {
	ID        any
	GeocellID any
	Lon       any
	Lat       any
}

// Session is one execution of a scenario against a set of targets.
type Session struct {
	ID         int64     `db:"gid"`
	ScenarioID int64     `db:"scenario_id"`
	CreatedAt  time.Time `db:"session_timestamp"`
	NumTargets int       `db:"num_targets"`
	NumFailed  int       `db:"num_targets_failed"`
}

// SessionProgress holds the counters progress is computed from.
type SessionProgress struct {
	DoneOK     int `db:"done_ok"`
	DoneFailed int `db:"done_failed"`
	Total      int `db:"total"`
}

// Done returns the number of finished targets.
func (p SessionProgress) Done() int {
	return p.DoneOK + p.DoneFailed
}

// GroundMotion is the per-target result row.
type GroundMotion struct {
	TargetID   int64
	GeocellID  int64
	ScenarioID int64
	SessionID  int64
	Payload    []float64
}

// Package domain provides the models shared by the run engine.
package domain

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// Family is the probability distribution family of a scenario parameter.
type Family int

const (
	FamilyNormal Family = iota + 1
	FamilyUniform
)

// String returns the lower case family name.
func (f Family) String() string {
	switch f {
	case FamilyNormal:
		return "normal"
	case FamilyUniform:
		return "uniform"
	default:
		return "unknown"
	}
}

// Param is a numeric scenario parameter given either as a scalar or as a
// distribution. For FamilyNormal A and B are mean and standard deviation,
// for FamilyUniform they are the bounds. A scalar keeps its value in A.
type Param struct {
	Family Family
	Scalar bool
	A      float64
	B      float64
}

// ScalarParam returns a scalar parameter of the given family.
func ScalarParam(f Family, v float64) Param {
	return Param{Family: f, Scalar: true, A: v}
}

// NormalParam returns a normally distributed parameter.
func NormalParam(mean, sd float64) Param {
	return Param{Family: FamilyNormal, A: mean, B: sd}
}

// UniformParam returns a uniformly distributed parameter.
func UniformParam(lo, hi float64) Param {
	return Param{Family: FamilyUniform, A: lo, B: hi}
}

// Mean returns the expected value of p.
func (p Param) Mean() float64 {
	if p.Scalar || p.Family == FamilyNormal {
		return p.A
	}
	return (p.A + p.B) / 2
}

// Bounds returns the smallest and largest value p can take. A normal
// distribution is unbounded, so its mean is returned twice.
func (p Param) Bounds() (float64, float64) {
	if p.Scalar || p.Family == FamilyNormal {
		return p.A, p.A
	}
	return p.A, p.B
}

// DBValue returns the two element array stored in the scenarios table.
// A uniform scalar v is stored as [v, v], a normal scalar as [v, 0].
func (p Param) DBValue() []float64 {
	if !p.Scalar {
		return []float64{p.A, p.B}
	}
	if p.Family == FamilyUniform {
		return []float64{p.A, p.A}
	}
	return []float64{p.A, 0}
}

func (p Param) String() string {
	if p.Scalar {
		return strconv.FormatFloat(p.A, 'g', -1, 64)
	}
	return fmt.Sprintf("%s(%g, %g)", p.Family, p.A, p.B)
}

// BBox is an explicit area of interest in degrees.
type BBox struct {
	Lon1 float64 `json:"lon1"`
	Lat1 float64 `json:"lat1"`
	Lon2 float64 `json:"lon2"`
	Lat2 float64 `json:"lat2"`
}

// Contains reports whether (lon, lat) lies inside the box, edges included.
func (b BBox) Contains(lon, lat float64) bool {
	minLon, maxLon := min(b.Lon1, b.Lon2), max(b.Lon1, b.Lon2)
	minLat, maxLat := min(b.Lat1, b.Lat2), max(b.Lat1, b.Lat2)
	return lon >= minLon && lon <= maxLon && lat >= minLat && lat <= maxLat
}

// ScenarioColumns lists the scenarios table columns in declared order.
// The hash of a scenario is computed over values in this order.
var ScenarioColumns = []string{
	"gid", "hash", "name", "gmpe_id", "fault_style", "mag", "epi_lat",
	"epi_lon", "ipo_depth", "fault_strike", "fault_dip", "min_rupture_depth",
	"type", "description", "the_geom",
}

// Scenario is the validated input of one run. It is immutable once a run
// has started.
type Scenario struct {
	Lat    Param
	Lon    Param
	Mag    Param
	Depth  Param
	Strike *Param
	Dip    *Param

	GMPEID     int
	FaultStyle int // 0 when unset

	Time    *time.Time
	EventID string

	GMOnly      bool
	SampleCount int
	Percentiles []float64
	TessIDs     []int
	AOI         *BBox
	IRef        float64
	KmStep      float64
}

// PersistedColumns returns the values of ScenarioColumns for s. Columns the
// scenario does not set are nil.
func (s *Scenario) PersistedColumns() []any {
	cols := make([]any, len(ScenarioColumns))
	cols[3] = int64(s.GMPEID)
	if s.FaultStyle != 0 {
		cols[4] = int64(s.FaultStyle)
	}
	cols[5] = s.Mag.DBValue()
	cols[6] = s.Lat.DBValue()
	cols[7] = s.Lon.DBValue()
	cols[8] = s.Depth.DBValue()
	if s.Strike != nil {
		cols[9] = s.Strike.DBValue()
	}
	if s.Dip != nil {
		cols[10] = s.Dip.DBValue()
	}
	return cols
}

// Epicenter returns the mean epicentre.
func (s *Scenario) Epicenter() (lat, lon float64) {
	return s.Lat.Mean(), s.Lon.Mean()
}

// String renders the input event for the run log.
func (s *Scenario) String() string {
	var b strings.Builder
	fmt.Fprintf(&b, "lat=%s lon=%s mag=%s dep=%s ipe=%d", s.Lat, s.Lon, s.Mag, s.Depth, s.GMPEID)
	if s.Strike != nil {
		fmt.Fprintf(&b, " str=%s", s.Strike)
	}
	if s.Dip != nil {
		fmt.Fprintf(&b, " dip=%s", s.Dip)
	}
	if s.FaultStyle != 0 {
		fmt.Fprintf(&b, " sof=%d", s.FaultStyle)
	}
	if s.EventID != "" {
		fmt.Fprintf(&b, " eid=%s", s.EventID)
	}
	return b.String()
}

// ScenarioRecord is the stored form of a scenario.
type ScenarioRecord struct {
	ID          int64     `db:"gid"`
	Hash        int64     `db:"hash"`
	GMPEID      int       `db:"gmpe_id"`
	FaultStyle  *int      `db:"fault_style"`
	Mag         []float64 `db:"mag"`
	EpiLat      []float64 `db:"epi_lat"`
	EpiLon      []float64 `db:"epi_lon"`
	IpoDepth    []float64 `db:"ipo_depth"`
	FaultStrike []float64 `db:"fault_strike"`
	FaultDip    []float64 `db:"fault_dip"`
}

// NewScenarioRecord builds the record to insert for s with the given hash.
func NewScenarioRecord(s *Scenario, hash int64) *ScenarioRecord {
	rec := &ScenarioRecord{
		Hash:     hash,
		GMPEID:   s.GMPEID,
		Mag:      s.Mag.DBValue(),
		EpiLat:   s.Lat.DBValue(),
		EpiLon:   s.Lon.DBValue(),
		IpoDepth: s.Depth.DBValue(),
	}
	if s.FaultStyle != 0 {
		sof := s.FaultStyle
		rec.FaultStyle = &sof
	}
	if s.Strike != nil {
		rec.FaultStrike = s.Strike.DBValue()
	}
	if s.Dip != nil {
		rec.FaultDip = s.Dip.DBValue()
	}
	return rec
}

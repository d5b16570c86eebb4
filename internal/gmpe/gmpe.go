// Package gmpe implements the intensity prediction equations used to compute
// ground motion, and evaluates them over sampled earthquake sources.
package gmpe

import (
	"fmt"
	"strings"
)

// SourceType tells whether a model treats the source as a point or as a
// finite rupture.
type SourceType int

const (
	SourcePoint SourceType = iota
	SourceExtended
)

func (t SourceType) String() string {
	if t == SourceExtended {
		return "extended"
	}
	return "point"
}

// FaultStyle is the style of faulting. Values match the sof input codes.
type FaultStyle int

const (
	FaultReverse FaultStyle = iota + 1
	FaultNormal
	FaultStrikeSlip
	FaultUnknown
)

func (s FaultStyle) String() string {
	switch s {
	case FaultReverse:
		return "reverse"
	case FaultNormal:
		return "normal"
	case FaultStrikeSlip:
		return "strike-slip"
	case FaultUnknown:
		return "unknown"
	default:
		return fmt.Sprintf("FaultStyle(%d)", int(s))
	}
}

// Bounds is a closed validity interval.
type Bounds struct {
	Min float64 `json:"min"`
	Max float64 `json:"max"`
}

// Contains reports whether v lies in the closed interval.
func (b Bounds) Contains(v float64) bool {
	return v >= b.Min && v <= b.Max
}

func (b Bounds) String() string {
	return fmt.Sprintf("[%g, %g]", b.Min, b.Max)
}

// Source is one realisation of the earthquake parameters.
type Source struct {
	Lat        float64
	Lon        float64
	Depth      float64
	Mag        float64
	Strike     float64
	Dip        float64
	FaultStyle FaultStyle
}

// Model is an intensity prediction equation.
type Model interface {
	ID() int
	Name() string
	Reference() string
	SourceType() SourceType
	// DistanceBounds bounds the epicentral distance of a station.
	DistanceBounds() Bounds
	MagnitudeBounds() Bounds
	// Distance returns the model distance, in km, from src to a station.
	Distance(src Source, lat, lon float64) float64
	// Intensity returns the intensity at model distance d.
	Intensity(src Source, d float64) float64
}

// Describe renders a model for listings.
func Describe(m Model) string {
	var b strings.Builder
	fmt.Fprintf(&b, "%d %s (%s source)", m.ID(), m.Name(), m.SourceType())
	if ref := m.Reference(); ref != "" {
		fmt.Fprintf(&b, ": %s", ref)
	}
	return b.String()
}

type modelInfo struct {
	id         int
	name       string
	ref        string
	sourceType SourceType
	dBounds    Bounds
	mBounds    Bounds
}

func (i modelInfo) ID() int                 { return i.id }
func (i modelInfo) Name() string            { return i.name }
func (i modelInfo) Reference() string       { return i.ref }
func (i modelInfo) SourceType() SourceType  { return i.sourceType }
func (i modelInfo) DistanceBounds() Bounds  { return i.dBounds }
func (i modelInfo) MagnitudeBounds() Bounds { return i.mBounds }

// Package area resolves the radius around an epicentre inside which the
// predicted intensity reaches a reference value.
package area

import (
	"fmt"
	"math"

	"github.com/GFZ-Centre-for-Early-Warning/caravan/internal/dist"
	"github.com/GFZ-Centre-for-Early-Warning/caravan/internal/geo"
	"github.com/GFZ-Centre-for-Early-Warning/caravan/internal/gmpe"
)

// MinDistance is the search floor in km. It keeps the search away from the
// degenerate zero distance evaluation.
const MinDistance = 0.001

// Field is an intensity field around an epicentre.
type Field interface {
	// MaxDistance is the largest distance in km the field can be evaluated at.
	MaxDistance() float64
	// IntensityAtOffset evaluates the field at the point displaced by
	// (dLat, dLon) degrees from the epicentre.
	IntensityAtOffset(dLat, dLon float64) (float64, error)
}

// Direction is a compass direction as unit axis offsets.
type Direction struct {
	Name string
	Lat  float64
	Lon  float64
}

// Directions are searched in this order.
var Directions = []Direction{
	{"N", 1, 0},
	{"E", 0, 1},
	{"S", -1, 0},
	{"W", 0, -1},
	{"NE", 1, 1},
	{"SE", -1, 1},
	{"SW", -1, -1},
	{"NW", 1, -1},
}

func (d Direction) diagonal() bool {
	return d.Lat != 0 && d.Lon != 0
}

// offset returns the degree offsets of the point km away in direction d.
// Diagonal offsets are scaled by 1/sqrt(2) per axis.
func (d Direction) offset(km float64) (float64, float64) {
	if d.diagonal() {
		km /= math.Sqrt2
	}
	deg := geo.KmToDeg(km)
	return d.Lat * deg, d.Lon * deg
}

type eventField struct {
	ev         *gmpe.Event
	percentile float64
}

// FromEvent returns the field of ev. Events with more than one realisation
// are reduced to the given percentile of their samples.
func FromEvent(ev *gmpe.Event, percentile float64) Field {
	return &eventField{ev: ev, percentile: percentile}
}

func (f *eventField) MaxDistance() float64 {
	return f.ev.DistanceBounds().Max
}

func (f *eventField) IntensityAtOffset(dLat, dLon float64) (float64, error) {
	samples, err := f.ev.IntensityAtOffset(dLat, dLon)
	if err != nil {
		return 0, err
	}
	if len(samples) == 1 {
		return samples[0], nil
	}
	return dist.Percentile(samples, f.percentile), nil
}

// ReferenceDistance returns the distance in km beyond which the intensity of
// field drops below iRef, resolved to step km. Every direction is searched
// independently and the largest boundary wins. A direction whose intensity
// is still at least iRef at the maximum distance makes the result that
// maximum. When no direction brackets iRef the result stays MinDistance.
func ReferenceDistance(field Field, iRef, step float64) (float64, error) {
	if step <= 0 {
		return 0, fmt.Errorf("step must be positive, got %g", step)
	}

	maxD := field.MaxDistance() - MinDistance
	d := MinDistance

	at := func(dir Direction, km float64) (float64, error) {
		dLat, dLon := dir.offset(km)
		i, err := field.IntensityAtOffset(dLat, dLon)
		if err != nil {
			return 0, fmt.Errorf("intensity at %.3f km %s: %w", km, dir.Name, err)
		}
		return i, nil
	}

	for _, dir := range Directions {
		lo, hi := MinDistance, maxD

		iLo, err := at(dir, lo)
		if err != nil {
			return 0, err
		}
		iHi, err := at(dir, hi)
		if err != nil {
			return 0, err
		}

		if iHi >= iRef {
			return maxD, nil
		}
		if iLo < iRef {
			continue
		}

		for hi-lo > step {
			mid := (lo + hi) / 2
			iMid, err := at(dir, mid)
			if err != nil {
				return 0, err
			}
			if iMid >= iRef {
				lo = mid
			} else {
				hi = mid
			}
		}
		d = max(d, hi)
	}
	return d, nil
}

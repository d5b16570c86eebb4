package gmpe

import (
	"errors"
	"fmt"
	"math"

	"github.com/GFZ-Centre-for-Early-Warning/caravan/internal/dist"
	"github.com/GFZ-Centre-for-Early-Warning/caravan/internal/domain"
	"github.com/GFZ-Centre-for-Early-Warning/caravan/internal/geo"
)

// Event is a model bound to one or more source realisations. Every
// evaluation returns one intensity per realisation; a single realisation
// is a scalar.
type Event struct {
	model   Model
	sources []Source
}

// NewEvent binds model to sources after checking magnitudes.
func NewEvent(model Model, sources []Source) (*Event, error) {
	if len(sources) == 0 {
		return nil, errors.New("event has no sources")
	}

	mb := model.MagnitudeBounds()
	for _, src := range sources {
		if !mb.Contains(src.Mag) {
			return nil, &domain.ValidationError{
				Field:  "mag",
				Value:  src.Mag,
				Reason: fmt.Sprintf("%s: magnitude not in %s", model.Name(), mb),
			}
		}
	}

	ev := &Event{model: model, sources: sources}

	// Evaluate at the epicentre once so bad parameter combinations fail
	// here rather than inside every target task.
	lat, lon := ev.Epicenter()
	samples, err := ev.IntensityAt(lat, lon)
	if err != nil {
		return nil, err
	}
	for _, v := range samples {
		if math.IsNaN(v) {
			return nil, &domain.ValidationError{
				Field:  "ipe",
				Value:  model.ID(),
				Reason: model.Name() + ": intensity is not a number for the given parameters",
			}
		}
	}

	return ev, nil
}

// FromScenario samples the scenario parameters and binds them to model.
// Scalars are repeated across realisations; a fully scalar scenario has a
// single realisation.
func FromScenario(model Model, sc *domain.Scenario, sampler *dist.Sampler) (*Event, error) {
	if model.SourceType() == SourceExtended && (sc.Strike == nil || sc.Dip == nil || sc.FaultStyle == 0) {
		return nil, &domain.ValidationError{
			Field:  "ipe",
			Value:  model.ID(),
			Reason: "Extended source type gmpe needs strike, dip and style of faulting",
		}
	}

	params := []*domain.Param{&sc.Lat, &sc.Lon, &sc.Depth, &sc.Mag, sc.Strike, sc.Dip}
	n := 1
	for _, p := range params {
		if p != nil && !p.Scalar {
			n = sampler.N()
			break
		}
	}

	draw := func(p *domain.Param) []float64 {
		out := make([]float64, n)
		switch {
		case p == nil:
		case p.Scalar || n == 1:
			for i := range out {
				out[i] = p.A
			}
		case p.Family == domain.FamilyNormal:
			out = sampler.Normal(p.A, p.B)
		default:
			out = sampler.Uniform(p.A, p.B)
		}
		return out
	}

	lats, lons := draw(&sc.Lat), draw(&sc.Lon)
	depths, mags := draw(&sc.Depth), draw(&sc.Mag)
	strikes, dips := draw(sc.Strike), draw(sc.Dip)

	sources := make([]Source, n)
	for i := range sources {
		sources[i] = Source{
			Lat:        lats[i],
			Lon:        lons[i],
			Depth:      depths[i],
			Mag:        mags[i],
			Strike:     strikes[i],
			Dip:        dips[i],
			FaultStyle: FaultStyle(sc.FaultStyle),
		}
	}

	return NewEvent(model, sources)
}

// Model returns the bound model.
func (e *Event) Model() Model {
	return e.model
}

// Realisations returns the number of source realisations.
func (e *Event) Realisations() int {
	return len(e.sources)
}

// DistanceBounds returns the model's distance bounds.
func (e *Event) DistanceBounds() Bounds {
	return e.model.DistanceBounds()
}

// MagnitudeBounds returns the model's magnitude bounds.
func (e *Event) MagnitudeBounds() Bounds {
	return e.model.MagnitudeBounds()
}

// Epicenter returns the mean epicentre over all realisations.
func (e *Event) Epicenter() (float64, float64) {
	var lat, lon float64
	for _, s := range e.sources {
		lat += s.Lat
		lon += s.Lon
	}
	n := float64(len(e.sources))
	return lat / n, lon / n
}

// IntensityAt returns the intensity at a station. It fails when the
// station's epicentral distance is outside the model's distance bounds.
func (e *Event) IntensityAt(lat, lon float64) ([]float64, error) {
	out := make([]float64, len(e.sources))
	for i, src := range e.sources {
		v, err := e.at(src, lat, lon)
		if err != nil {
			return nil, err
		}
		out[i] = v
	}
	return out, nil
}

// IntensityAtOffset returns the intensity at the point displaced by
// (dLat, dLon) degrees from each realisation's own epicentre.
func (e *Event) IntensityAtOffset(dLat, dLon float64) ([]float64, error) {
	out := make([]float64, len(e.sources))
	for i, src := range e.sources {
		v, err := e.at(src, src.Lat+dLat, src.Lon+dLon)
		if err != nil {
			return nil, err
		}
		out[i] = v
	}
	return out, nil
}

// IntensityAtDistance evaluates the model at model distance d.
func (e *Event) IntensityAtDistance(d float64) []float64 {
	out := make([]float64, len(e.sources))
	for i, src := range e.sources {
		out[i] = e.model.Intensity(src, d)
	}
	return out
}

func (e *Event) at(src Source, lat, lon float64) (float64, error) {
	epi := geo.Distance(src.Lat, src.Lon, lat, lon)
	if db := e.model.DistanceBounds(); !db.Contains(epi) {
		return 0, fmt.Errorf(
			"%s: unable to calculate intensity at (lat=%f, lon=%f), epicentral distance (%f) not in %s",
			e.model.Name(), lat, lon, epi, db,
		)
	}
	return e.model.Intensity(src, e.model.Distance(src, lat, lon)), nil
}

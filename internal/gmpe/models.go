package gmpe

import (
	"math"

	"github.com/GFZ-Centre-for-Early-Warning/caravan/internal/geo"
)

const allenRef = "Intensity attenuation for active crustal regions (Allen et al.). J Seismol (2012) 16:409-433"

// GlobalWaRup is the Allen et al. (2012) rupture distance equation for
// active crustal regions. It needs strike, dip and style of faulting.
type GlobalWaRup struct {
	modelInfo
}

// NewGlobalWaRup returns the model registered under id 1.
func NewGlobalWaRup() *GlobalWaRup {
	return &GlobalWaRup{modelInfo{
		id:         1,
		name:       "GlobalWaRup",
		ref:        allenRef,
		sourceType: SourceExtended,
		dBounds:    Bounds{Min: 0, Max: 300},
		mBounds:    Bounds{Min: 5, Max: 7.9},
	}}
}

// Distance returns the rupture distance.
func (g *GlobalWaRup) Distance(src Source, lat, lon float64) float64 {
	rld, rw := ruptureDimensions(src.FaultStyle, src.Mag)
	return ruptureDistance(lat, lon, src.Lat, src.Lon, src.Depth, src.Strike, src.Dip, rld, rw)
}

// Intensity evaluates the equation at rupture distance d.
func (g *GlobalWaRup) Intensity(src Source, d float64) float64 {
	const c0, c1, c2, c3 = 3.950, 0.913, -1.107, 0.813
	near := 1 + c3*math.Exp(src.Mag-5)
	return c0 + c1*src.Mag + c2*math.Log(math.Sqrt(d*d+near*near))
}

// GlobalWaHyp is the Allen et al. (2012) hypocentral distance equation.
type GlobalWaHyp struct {
	modelInfo
}

// NewGlobalWaHyp returns the model registered under id 2.
func NewGlobalWaHyp() *GlobalWaHyp {
	return &GlobalWaHyp{modelInfo{
		id:         2,
		name:       "GlobalWaHyp",
		ref:        allenRef,
		sourceType: SourcePoint,
		dBounds:    Bounds{Min: 0, Max: 300},
		mBounds:    Bounds{Min: 5, Max: 7.9},
	}}
}

// Distance returns the hypocentral distance, using the chord for the
// surface component.
func (g *GlobalWaHyp) Distance(src Source, lat, lon float64) float64 {
	chord := geo.Chord(src.Lat, src.Lon, lat, lon)
	return math.Sqrt(src.Depth*src.Depth + chord*chord)
}

// Intensity evaluates the equation at hypocentral distance d.
func (g *GlobalWaHyp) Intensity(src Source, d float64) float64 {
	const (
		c0, c1, c2, c4 = 2.085, 1.428, -1.402, 0.078
		m1, m2         = -0.209, 2.042
		farKm          = 50
	)
	rm := m1 + m2*math.Exp(src.Mag-5)
	i := c0 + c1*src.Mag + c2*math.Log(math.Sqrt(d*d+rm*rm))
	if d > farKm {
		i += c4 * math.Log(d/farKm)
	}
	return i
}

// CentralAsiaEmca is the Bindi et al. (2011) epicentral distance equation
// for Central Asia.
type CentralAsiaEmca struct {
	modelInfo
}

// NewCentralAsiaEmca returns the model registered under id 3.
func NewCentralAsiaEmca() *CentralAsiaEmca {
	return &CentralAsiaEmca{modelInfo{
		id:         3,
		name:       "CentralAsiaEmca",
		ref:        "Intensity prediction equations for Central Asia (Bindi et al.). Geophys. J. Int. (2011) 187, 327-337",
		sourceType: SourcePoint,
		dBounds:    Bounds{Min: 0, Max: 600},
		mBounds:    Bounds{Min: 4.6, Max: 8.3},
	}}
}

// Distance returns the epicentral distance.
func (g *CentralAsiaEmca) Distance(src Source, lat, lon float64) float64 {
	return geo.Distance(src.Lat, src.Lon, lat, lon)
}

// Intensity evaluates the equation at epicentral distance d.
func (g *CentralAsiaEmca) Intensity(src Source, d float64) float64 {
	const x1, x2, x3, x4, x5 = 1.0074538, -2.0045088, 3.2980663, 2.6920855, 4.2344195e-04
	h := src.Depth
	return x1*src.Mag + x2*math.Log10(h) + x3 -
		x4*0.5*math.Log10((d/h)*(d/h)+1) -
		x5*(math.Sqrt(d*d+h*h)-h)
}

// Package geo provides spherical earth helpers. Angles are in degrees and
// distances in kilometres unless a name says otherwise.
package geo

import "math"

// EarthRadiusKm is the mean earth radius.
const EarthRadiusKm = 6371.0

// DegToRad converts degrees to radians.
func DegToRad(deg float64) float64 {
	return deg * math.Pi / 180
}

// RadToDeg converts radians to degrees.
func RadToDeg(rad float64) float64 {
	return rad * 180 / math.Pi
}

// DegToKm converts a great circle arc in degrees to kilometres.
func DegToKm(deg float64) float64 {
	return DegToRad(deg) * EarthRadiusKm
}

// KmToDeg converts kilometres along a great circle to degrees of arc.
func KmToDeg(km float64) float64 {
	return RadToDeg(km / EarthRadiusKm)
}

// greatCircleRad is the haversine central angle between two points given
// in radians.
func greatCircleRad(lat1, lon1, lat2, lon2 float64) float64 {
	sinLat := math.Sin((lat2 - lat1) / 2)
	sinLon := math.Sin((lon2 - lon1) / 2)
	a := sinLat*sinLat + math.Cos(lat1)*math.Cos(lat2)*sinLon*sinLon
	return 2 * math.Atan2(math.Sqrt(a), math.Sqrt(1-a))
}

// Arc returns the minor great circle arc between two points, in degrees.
func Arc(lat1, lon1, lat2, lon2 float64) float64 {
	return RadToDeg(greatCircleRad(DegToRad(lat1), DegToRad(lon1), DegToRad(lat2), DegToRad(lon2)))
}

// Distance returns the great circle distance between two points.
func Distance(lat1, lon1, lat2, lon2 float64) float64 {
	return DegToKm(Arc(lat1, lon1, lat2, lon2))
}

// Chord returns the straight line distance through the earth between two
// surface points.
func Chord(lat1, lon1, lat2, lon2 float64) float64 {
	rad := greatCircleRad(DegToRad(lat1), DegToRad(lon1), DegToRad(lat2), DegToRad(lon2))
	return EarthRadiusKm * math.Sqrt(2*(1-math.Cos(rad)))
}

// Azimuth returns the initial bearing from point 1 to point 2, clockwise
// from north in [0, 360).
func Azimuth(lat1, lon1, lat2, lon2 float64) float64 {
	phi1, phi2 := DegToRad(lat1), DegToRad(lat2)
	dLambda := DegToRad(lon2 - lon1)
	if phi1 <= -math.Pi/2 || phi2 >= math.Pi/2 {
		return 0
	}
	az := math.Atan2(
		math.Cos(phi2)*math.Sin(dLambda),
		math.Cos(phi1)*math.Sin(phi2)-math.Sin(phi1)*math.Cos(phi2)*math.Cos(dLambda),
	)
	return RadToDeg(Mod(az, 2*math.Pi))
}

// Reckon returns the point reached from (lat, lon) after travelling arc
// degrees along a great circle with initial bearing az.
func Reckon(lat, lon, arc, az float64) (float64, float64) {
	phi0, lambda0 := DegToRad(lat), DegToRad(lon)
	rng, azr := DegToRad(arc), DegToRad(az)

	const epsilon = 10 * math.Pi / 180 * 1e-6
	if phi0 >= math.Pi/2-epsilon {
		azr = math.Pi
	}
	if phi0 <= epsilon-math.Pi/2 {
		azr = 0
	}

	phi := math.Asin(math.Sin(phi0)*math.Cos(rng) + math.Cos(phi0)*math.Sin(rng)*math.Cos(azr))
	lambda := lambda0 + math.Atan2(
		math.Sin(rng)*math.Sin(azr),
		math.Cos(phi0)*math.Cos(rng)-math.Sin(phi0)*math.Sin(rng)*math.Cos(azr),
	)

	return RadToDeg(phi), RadToDeg(wrapPi(lambda))
}

// wrapPi wraps an angle into [-pi, pi].
func wrapPi(a float64) float64 {
	abs := math.Abs(a) / math.Pi
	return math.Pi * (abs - 2*math.Ceil((abs-1)/2)) * sign(a)
}

func sign(x float64) float64 {
	switch {
	case x > 0:
		return 1
	case x < 0:
		return -1
	default:
		return 0
	}
}

// Mod is the floored modulus, always in [0, m) for m > 0.
func Mod(x, m float64) float64 {
	r := math.Mod(x, m)
	if r < 0 {
		r += m
	}
	return r
}

package gmpe

import (
	"math"

	"github.com/GFZ-Centre-for-Early-Warning/caravan/internal/geo"
)

// Wells and Coppersmith (1994) log-linear coefficients: rupture length
// (a, b) and rupture width (a, b).
var ruptureCoefficients = map[FaultStyle][4]float64{
	FaultStrikeSlip: {-2.57, 0.62, -0.76, 0.27},
	FaultNormal:     {-2.42, 0.58, -1.61, 0.41},
	FaultReverse:    {-1.88, 0.50, -1.14, 0.35},
	FaultUnknown:    {-2.44, 0.59, -1.01, 0.32},
}

// ruptureDimensions returns subsurface rupture length and width, in km.
func ruptureDimensions(style FaultStyle, mag float64) (float64, float64) {
	c, ok := ruptureCoefficients[style]
	if !ok {
		c = ruptureCoefficients[FaultUnknown]
	}
	return math.Pow(10, c[0]+c[1]*mag), math.Pow(10, c[2]+c[3]*mag)
}

// ruptureDistance returns the closest distance from a station to a
// rectangular rupture of length rld and width rw centred on the hypocentre.
//
// The rupture's surface projection has corners c1..c4 (c1, c4 on the
// strike-behind edge). Station azimuths from the corners, relative to
// strike, select one of nine regions around the projection.
func ruptureDistance(latSta, lonSta, latEpi, lonEpi, depth, strikeDeg, dipDeg, rld, rw float64) float64 {
	const (
		twoPi       = 2 * math.Pi
		halfPi      = math.Pi / 2
		threeHalfPi = 3 * math.Pi / 2
	)

	strike := geo.DegToRad(strikeDeg)
	dip := geo.DegToRad(dipDeg)
	sinDip, cosDip := math.Sin(dip), math.Cos(dip)

	dTor := depth - rw/2*sinDip

	l1 := rld / 2
	var w1, w2 float64
	if dTor > 0 {
		w1 = rw / 2 * cosDip
		w2 = w1
	} else {
		tanDip := math.Tan(dip)
		w1 = depth / tanDip
		w2 = rw*cosDip - depth/tanDip
	}
	l2 := l1
	ztor := math.Max(dTor, 0)

	corner := func(dist, az float64) (float64, float64) {
		return geo.Reckon(latEpi, lonEpi, geo.KmToDeg(dist), geo.RadToDeg(geo.Mod(az, twoPi)))
	}
	c1Lat, c1Lon := corner(math.Hypot(l1, w1), strike+math.Pi+math.Atan(w1/l1))
	c2Lat, c2Lon := corner(math.Hypot(l2, w1), strike+twoPi-math.Atan(w1/l2))
	c3Lat, c3Lon := corner(math.Hypot(l2, w2), strike+math.Atan(w2/l2))
	c4Lat, c4Lon := corner(math.Hypot(l1, w2), strike+math.Pi-math.Atan(w2/l1))

	azFrom := func(lat, lon float64) float64 {
		return geo.Mod(geo.DegToRad(geo.Azimuth(lat, lon, latSta, lonSta))-strike, twoPi)
	}
	az1, az2 := azFrom(c1Lat, c1Lon), azFrom(c2Lat, c2Lon)
	az3, az4 := azFrom(c3Lat, c3Lon), azFrom(c4Lat, c4Lon)

	d1 := geo.Distance(c1Lat, c1Lon, latSta, lonSta)
	d2 := geo.Distance(c2Lat, c2Lon, latSta, lonSta)
	d3 := geo.Distance(c3Lat, c3Lon, latSta, lonSta)
	d4 := geo.Distance(c4Lat, c4Lon, latSta, lonSta)

	// Joyner-Boore distance, then the strike-normal (rxx) and strike-parallel
	// (ryy) offsets from the projected rupture.
	var rjb, rxx, ryy float64
	switch {
	case az1 >= math.Pi && az1 < threeHalfPi:
		rjb = d1
		rxx, ryy = rjb*math.Sin(az1), rjb*math.Cos(az1)
	case az1 >= threeHalfPi:
		if az2 > threeHalfPi {
			rjb = d2
			rxx, ryy = rjb*math.Sin(az2), rjb*math.Cos(az2)
		} else {
			rjb = d1 * math.Abs(math.Sin(az1))
			rxx, ryy = -rjb, 0
		}
	case az1 > halfPi && az1 < math.Pi:
		if az4 > math.Pi {
			rjb = d1 * math.Abs(math.Cos(az1))
			rxx, ryy = rjb*math.Abs(math.Tan(az1)), rjb
		} else {
			rjb = d4
			rxx, ryy = rw*cosDip+rjb*math.Abs(math.Sin(az4)), rjb*math.Cos(az4)
		}
	case az1 <= halfPi && az2 >= halfPi:
		if az3 >= math.Pi {
			rjb = 0
			rxx, ryy = d2*math.Abs(math.Sin(az2)), 0
		} else {
			rjb = d3 * math.Abs(math.Sin(az3))
			rxx, ryy = rw*cosDip+rjb, 0
		}
	case az1 < halfPi && az2 < halfPi:
		if az3 > halfPi {
			rjb = d2 * math.Abs(math.Cos(az2))
			rxx, ryy = rjb*math.Abs(math.Tan(az2)), rjb
		} else {
			rjb = d3
			rxx, ryy = rw*cosDip+rjb*math.Abs(math.Sin(az3)), rjb*math.Cos(az3)
		}
	}
	ryy = math.Abs(ryy)

	var rrup float64
	if dipDeg == 90 {
		rrup = math.Hypot(rxx, ztor)
	} else {
		tanDip := math.Tan(dip)
		switch {
		case rxx < ztor*tanDip:
			rrup = math.Hypot(rxx, ztor)
		case rxx <= ztor*tanDip+rw/cosDip:
			rrup = rxx*sinDip + ztor*cosDip
		default:
			rrup = math.Hypot(rxx-rw*cosDip, ztor+rw*sinDip)
		}
	}

	return math.Hypot(rrup, ryy)
}

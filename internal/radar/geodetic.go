package radar

import "math"

// WGS84 ellipsoid.
const (
	semiMajor    = 6378137.0
	flattening   = 1.0 / 298.257223563
	eccentricity = flattening * (2.0 - flattening) // first eccentricity squared
	semiMinor    = semiMajor * (1.0 - flattening)
)

// EFG is an earth-centered, earth-fixed position in meters.
type EFG struct{ E, F, G float64 }

// LLH is a geodetic position: latitude and longitude in radians, height in meters.
type LLH struct{ Lat, Lon, Height float64 }

// RAE is a position relative to the site: range in meters, azimuth clockwise
// from north and elevation, both radians in [0, 2pi).
type RAE struct{ Range, Azimuth, Elevation float64 }

// XYZ is a local east/north/up offset from the site in meters.
type XYZ struct{ X, Y, Z float64 }

// Origin converts between the four representations for one fixed site.
// An Origin is immutable and safe for concurrent use.
type Origin struct {
	site LLH
	efg  EFG

	// rows of the EFG -> east/north/up rotation
	east, north, up [3]float64
}

// NewOrigin creates an origin at site.
func NewOrigin(site LLH) *Origin {
	sl, cl := math.Sincos(site.Lat)
	so, co := math.Sincos(site.Lon)
	return &Origin{
		site:  site,
		efg:   LLHToEFG(site),
		east:  [3]float64{-so, co, 0},
		north: [3]float64{-sl * co, -sl * so, cl},
		up:    [3]float64{cl * co, cl * so, sl},
	}
}

// Site returns the origin's geodetic position.
func (o *Origin) Site() LLH { return o.site }

// LLHToEFG converts a geodetic position to earth-centered coordinates.
func LLHToEFG(p LLH) EFG {
	sl, cl := math.Sincos(p.Lat)
	so, co := math.Sincos(p.Lon)
	n := semiMajor / math.Sqrt(1.0-eccentricity*sl*sl)
	return EFG{
		E: (n + p.Height) * cl * co,
		F: (n + p.Height) * cl * so,
		G: (n*(1.0-eccentricity) + p.Height) * sl,
	}
}

// EFGToLLH converts earth-centered coordinates to a geodetic position by
// fixed-point iteration on latitude.
func EFGToLLH(p EFG) LLH {
	lon := math.Atan2(p.F, p.E)
	r := math.Hypot(p.E, p.F)
	if r < 1e-9 {
		lat := math.Pi / 2
		if p.G < 0 {
			lat = -lat
		}
		return LLH{Lat: lat, Lon: 0, Height: math.Abs(p.G) - semiMinor}
	}

	lat := math.Atan2(p.G, r*(1.0-eccentricity))
	var h float64
	for i := 0; i < 32; i++ {
		sl := math.Sin(lat)
		n := semiMajor / math.Sqrt(1.0-eccentricity*sl*sl)
		h = r/math.Cos(lat) - n
		next := math.Atan2(p.G, r*(1.0-eccentricity*n/(n+h)))
		if math.Abs(next-lat) < 1e-15 {
			lat = next
			break
		}
		lat = next
	}
	return LLH{Lat: lat, Lon: lon, Height: h}
}

// EFGToXYZ returns the east/north/up offset of p from the site.
func (o *Origin) EFGToXYZ(p EFG) XYZ {
	d := [3]float64{p.E - o.efg.E, p.F - o.efg.F, p.G - o.efg.G}
	return XYZ{X: dot(o.east, d), Y: dot(o.north, d), Z: dot(o.up, d)}
}

// XYZToEFG is the inverse of EFGToXYZ.
func (o *Origin) XYZToEFG(p XYZ) EFG {
	return EFG{
		E: o.efg.E + o.east[0]*p.X + o.north[0]*p.Y + o.up[0]*p.Z,
		F: o.efg.F + o.east[1]*p.X + o.north[1]*p.Y + o.up[1]*p.Z,
		G: o.efg.G + o.east[2]*p.X + o.north[2]*p.Y + o.up[2]*p.Z,
	}
}

// XYZToRAE converts a local offset to range/azimuth/elevation. Offsets
// shorter than 1e-8 m have zero azimuth and elevation.
func XYZToRAE(p XYZ) RAE {
	r := math.Sqrt(p.X*p.X + p.Y*p.Y + p.Z*p.Z)
	if r < 1e-8 {
		return RAE{Range: r}
	}
	return RAE{
		Range:     r,
		Azimuth:   NormalizeRadians(math.Atan2(p.X, p.Y)),
		Elevation: NormalizeRadians(math.Atan2(p.Z, math.Hypot(p.X, p.Y))),
	}
}

// RAEToXYZ converts range/azimuth/elevation to a local offset.
func RAEToXYZ(p RAE) XYZ {
	sa, ca := math.Sincos(p.Azimuth)
	se, ce := math.Sincos(p.Elevation)
	return XYZ{
		X: p.Range * ce * sa,
		Y: p.Range * ce * ca,
		Z: p.Range * se,
	}
}

func dot(a, b [3]float64) float64 {
	return a[0]*b[0] + a[1]*b[1] + a[2]*b[2]
}

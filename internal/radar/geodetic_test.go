package radar

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
)

// angleDiff returns the smallest absolute difference between two angles.
func angleDiff(a, b float64) float64 {
	d := math.Abs(NormalizeRadians(a) - NormalizeRadians(b))
	return math.Min(d, 2*math.Pi-d)
}

func TestSiteRoundTrip(t *testing.T) {
	o := Default().Origin()
	site := o.Site()

	llh := EFGToLLH(LLHToEFG(site))
	assert.InDelta(t, site.Lat, llh.Lat, 1e-8)
	assert.InDelta(t, site.Lon, llh.Lon, 1e-8)
	assert.InDelta(t, site.Height, llh.Height, 1e-6)

	xyz := o.EFGToXYZ(LLHToEFG(site))
	rae := XYZToRAE(xyz)
	assert.InDelta(t, 0.0, rae.Range, 1e-6)
}

func TestTargetsNorthAndSouth(t *testing.T) {
	o := Default().Origin()
	site := o.Site()
	ten := DegreesToRadians(10)

	north := XYZToRAE(o.EFGToXYZ(LLHToEFG(LLH{Lat: site.Lat + ten, Lon: site.Lon})))
	assert.InDelta(t, 1109485.013, north.Range, 1e-3)
	assert.InDelta(t, 0.0, angleDiff(north.Azimuth, 0), 1e-9)
	assert.InDelta(t, 354.998, RadiansToDegrees(north.Elevation), 1e-3)

	south := XYZToRAE(o.EFGToXYZ(LLHToEFG(LLH{Lat: site.Lat - ten, Lon: site.Lon})))
	assert.InDelta(t, 1107617.155, south.Range, 1e-3)
	assert.InDelta(t, 0.0, angleDiff(south.Azimuth, math.Pi), 1e-9)
}

func TestXYZAndRAEInverse(t *testing.T) {
	o := Default().Origin()
	in := RAE{Range: 25000, Azimuth: DegreesToRadians(135), Elevation: DegreesToRadians(3)}

	efg := o.XYZToEFG(RAEToXYZ(in))
	out := XYZToRAE(o.EFGToXYZ(efg))

	assert.InDelta(t, in.Range, out.Range, 1e-6)
	assert.InDelta(t, 0.0, angleDiff(in.Azimuth, out.Azimuth), 1e-9)
	assert.InDelta(t, 0.0, angleDiff(in.Elevation, out.Elevation), 1e-9)
}

func TestLLHRoundTripAwayFromSite(t *testing.T) {
	for _, p := range []LLH{
		{Lat: DegreesToRadians(-33.9), Lon: DegreesToRadians(151.2), Height: 58},
		{Lat: DegreesToRadians(64.1), Lon: DegreesToRadians(-21.9), Height: 12000},
		{Lat: DegreesToRadians(90), Lon: 0, Height: 100},
	} {
		got := EFGToLLH(LLHToEFG(p))
		assert.InDelta(t, p.Lat, got.Lat, 1e-9)
		assert.InDelta(t, p.Height, got.Height, 1e-4)
		if math.Abs(p.Lat) < math.Pi/2 {
			assert.InDelta(t, p.Lon, got.Lon, 1e-9)
		}
	}
}

func TestTinyRangeHasZeroAngles(t *testing.T) {
	rae := XYZToRAE(XYZ{X: 1e-10, Y: -1e-10})
	assert.Equal(t, 0.0, rae.Azimuth)
	assert.Equal(t, 0.0, rae.Elevation)
}

package payload

import (
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/sidecar/internal/msg"
	"github.com/roach88/sidecar/internal/radar"
)

var (
	created = time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
	fixed   = time.Date(2024, 3, 1, 12, 0, 5, 0, time.UTC)
)

func newTestCodec(t *testing.T) *msg.Codec {
	t.Helper()
	c, err := NewCodec(radar.Default(), msg.WithClock(func() time.Time { return fixed }))
	require.NoError(t, err)
	return c
}

func header(key msg.TypeKey, seq uint32) msg.Header {
	return msg.NewHeader(msg.NewGUID("sensor", key, seq), created, nil)
}

func TestTSPIViewsAreConsistent(t *testing.T) {
	origin := radar.Default().Origin()

	rae := MakeRAE(msg.Header{}, origin, "T1", 1, 25000, 0.75, 0.05)
	efg := MakeEFG(msg.Header{}, origin, "T1", 1, rae.EFG())

	got := efg.RAE()
	assert.InDelta(t, 25000, got.Range, 1e-6)
	assert.InDelta(t, 0.75, got.Azimuth, 1e-9)
	assert.InDelta(t, 0.05, got.Elevation, 1e-9)

	llh := MakeLLH(msg.Header{}, origin, "T1", 1,
		radar.RadiansToDegrees(efg.Latitude()), radar.RadiansToDegrees(efg.Longitude()), efg.Height())
	assert.InDelta(t, rae.XYZ().X, llh.XYZ().X, 1e-6)
	assert.InDelta(t, rae.XYZ().Y, llh.XYZ().Y, 1e-6)
	assert.InDelta(t, rae.XYZ().Z, llh.XYZ().Z, 1e-6)

	xyz := MakeXYZ(msg.Header{}, origin, "T1", 1, 3000, 4000, 0)
	assert.InDelta(t, 5000, xyz.Range(), 1e-9)
	assert.InDelta(t, math.Atan2(3000, 4000), xyz.Azimuth(), 1e-12)
}

func TestTSPIAtSiteHasZeroAngles(t *testing.T) {
	cfg := radar.Default()
	origin := cfg.Origin()

	at := MakeLLH(msg.Header{}, origin, "site", 0, cfg.SiteLatitude, cfg.SiteLongitude, cfg.SiteHeight)
	assert.Less(t, at.Range(), 1e-6)

	tiny := MakeRAE(msg.Header{}, origin, "site", 0, 1e-9, 1.2, 0.3)
	assert.Zero(t, tiny.Azimuth())
	assert.Zero(t, tiny.Elevation())
}

func TestTSPIMakeLLHStoresRadians(t *testing.T) {
	p := MakeLLH(msg.Header{}, radar.Default().Origin(), "T", 0, 45, -90, 100)
	assert.Equal(t, RepLLH, p.Representation())
	assert.InDelta(t, math.Pi/4, p.Latitude(), 1e-15)
	assert.InDelta(t, -math.Pi/2, p.Longitude(), 1e-15)
	assert.Equal(t, 100.0, p.Height())
}

func TestTSPIBinaryRoundTrip(t *testing.T) {
	c := newTestCodec(t)
	in := MakeLLH(header(msg.TypeTSPI, 3), radar.Default().Origin(), "GTB", 12.5, 38.1, -116.2, 4500)
	in.Flags = FlagDropping
	in.Attributes["source"] = "frame"

	b, err := c.Encode(in)
	require.NoError(t, err)
	out, err := c.Decode(b)
	require.NoError(t, err)

	got, ok := out.(*TSPI)
	require.True(t, ok)
	assert.Equal(t, in.Header().GUID, got.Header().GUID)
	assert.Equal(t, fixed, got.Header().EmittedAt)
	assert.Equal(t, "GTB", got.Tag)
	assert.Equal(t, 12.5, got.When)
	assert.True(t, got.Dropping())
	assert.Equal(t, map[string]string{"source": "frame"}, got.Attributes)
	assert.Equal(t, in.EFG(), got.EFG())
	assert.Equal(t, RepEFG, got.Representation())
}

func TestTSPITextRoundTrip(t *testing.T) {
	c := newTestCodec(t)
	in := MakeRAE(header(msg.TypeTSPI, 9), radar.Default().Origin(), "MRA", 2, 15000, 1.1, 0.02)

	text, err := c.EncodeText(in)
	require.NoError(t, err)
	assert.Contains(t, string(text), "tag: MRA")

	out, err := c.DecodeText(text)
	require.NoError(t, err)
	got := out.(*TSPI)
	assert.Equal(t, RepRAE, got.Representation())
	assert.Equal(t, "MRA", got.Tag)
	assert.InDelta(t, 15000, got.Range(), 1e-9)
	assert.InDelta(t, 1.1, got.Azimuth(), 1e-12)
	assert.InDelta(t, 0.02, got.Elevation(), 1e-12)
}

package payload

import (
	"maps"
	"math"

	"gopkg.in/yaml.v3"

	"github.com/roach88/sidecar/internal/msg"
	"github.com/roach88/sidecar/internal/radar"
)

// Representation names the coordinate view a TSPI was constructed from.
type Representation int

const (
	RepEFG Representation = iota
	RepLLH
	RepRAE
	RepXYZ
)

// FlagDropping marks a report the source is about to stop sending.
const FlagDropping uint8 = 0x01

// TSPI is a time-space-position report for one external target.
//
// Exactly one view is authoritative; the others are derived on first access
// through the origin and cached. Derived views are pure functions of the
// authoritative one, so the cache is never invalidated. A TSPI is owned by
// one pipeline at a time and is not safe for concurrent access.
type TSPI struct {
	header msg.Header
	origin *radar.Origin

	Tag        string
	When       float64
	Flags      uint8
	Attributes map[string]string

	rep Representation
	efg *radar.EFG
	llh *radar.LLH
	rae *radar.RAE
	xyz *radar.XYZ
}

func (t *TSPI) Header() *msg.Header  { return &t.header }
func (t *TSPI) TypeKey() msg.TypeKey { return msg.TypeTSPI }

// Representation reports which view the report was built from.
func (t *TSPI) Representation() Representation { return t.rep }

// Dropping reports whether FlagDropping is set.
func (t *TSPI) Dropping() bool { return t.Flags&FlagDropping != 0 }

func newTSPI(h msg.Header, origin *radar.Origin, tag string, when float64) *TSPI {
	h.GUID.TypeKey = msg.TypeTSPI
	return &TSPI{
		header:     h,
		origin:     origin,
		Tag:        tag,
		When:       when,
		Attributes: map[string]string{},
	}
}

// MakeEFG creates a report from earth-centered coordinates in meters.
func MakeEFG(h msg.Header, origin *radar.Origin, tag string, when float64, p radar.EFG) *TSPI {
	t := newTSPI(h, origin, tag, when)
	t.setEFG(p)
	return t
}

// MakeLLH creates a report from latitude and longitude in degrees and a
// height in meters. The geodetic view is stored in radians.
func MakeLLH(h msg.Header, origin *radar.Origin, tag string, when, latDeg, lonDeg, height float64) *TSPI {
	t := newTSPI(h, origin, tag, when)
	t.rep = RepLLH
	t.llh = &radar.LLH{
		Lat:    radar.DegreesToRadians(latDeg),
		Lon:    radar.DegreesToRadians(lonDeg),
		Height: height,
	}
	return t
}

// MakeRAE creates a report from range in meters and azimuth and elevation
// in radians. A range below 1e-8 forces both angles to zero.
func MakeRAE(h msg.Header, origin *radar.Origin, tag string, when, rng, az, el float64) *TSPI {
	t := newTSPI(h, origin, tag, when)
	t.rep = RepRAE
	if math.Abs(rng) < 1e-8 {
		az, el = 0, 0
	}
	t.rae = &radar.RAE{Range: rng, Azimuth: az, Elevation: el}
	return t
}

// MakeXYZ creates a report from an east/north/up offset in meters.
func MakeXYZ(h msg.Header, origin *radar.Origin, tag string, when, x, y, z float64) *TSPI {
	t := newTSPI(h, origin, tag, when)
	t.rep = RepXYZ
	t.xyz = &radar.XYZ{X: x, Y: y, Z: z}
	return t
}

func (t *TSPI) setEFG(p radar.EFG) {
	t.rep = RepEFG
	t.efg = &p
	t.llh, t.rae, t.xyz = nil, nil, nil
}

// EFG returns the earth-centered view.
func (t *TSPI) EFG() radar.EFG {
	if t.efg == nil {
		var p radar.EFG
		switch t.rep {
		case RepLLH:
			p = radar.LLHToEFG(*t.llh)
		case RepRAE:
			p = t.origin.XYZToEFG(t.XYZ())
		case RepXYZ:
			p = t.origin.XYZToEFG(*t.xyz)
		}
		t.efg = &p
	}
	return *t.efg
}

// LLH returns the geodetic view in radians and meters.
func (t *TSPI) LLH() radar.LLH {
	if t.llh == nil {
		p := radar.EFGToLLH(t.EFG())
		t.llh = &p
	}
	return *t.llh
}

// XYZ returns the offset from the radar site.
func (t *TSPI) XYZ() radar.XYZ {
	if t.xyz == nil {
		var p radar.XYZ
		if t.rep == RepRAE {
			p = radar.RAEToXYZ(*t.rae)
		} else {
			p = t.origin.EFGToXYZ(t.EFG())
		}
		t.xyz = &p
	}
	return *t.xyz
}

// RAE returns range, azimuth and elevation from the radar site.
func (t *TSPI) RAE() radar.RAE {
	if t.rae == nil {
		p := radar.XYZToRAE(t.XYZ())
		t.rae = &p
	}
	return *t.rae
}

func (t *TSPI) Range() float64     { return t.RAE().Range }
func (t *TSPI) Azimuth() float64   { return t.RAE().Azimuth }
func (t *TSPI) Elevation() float64 { return t.RAE().Elevation }
func (t *TSPI) Latitude() float64  { return t.LLH().Lat }
func (t *TSPI) Longitude() float64 { return t.LLH().Lon }
func (t *TSPI) Height() float64    { return t.LLH().Height }

func writeTSPI(w *msg.Writer, t *TSPI) error {
	p := t.EFG()
	w.Float64(p.E)
	w.Float64(p.F)
	w.Float64(p.G)
	w.Float64(t.When)
	w.Uint8(t.Flags)
	w.String(t.Tag)
	w.StringMap(t.Attributes)
	return nil
}

func readTSPIv1(r *msg.Reader, t *TSPI) error {
	p := radar.EFG{E: r.Float64(), F: r.Float64(), G: r.Float64()}
	t.When = r.Float64()
	t.Flags = r.Uint8()
	t.Tag = r.String()
	t.Attributes = r.StringMap()
	t.setEFG(p)
	return nil
}

func tspiSchema(origin *radar.Origin) (*msg.PayloadSchema[*TSPI], error) {
	s := msg.NewPayloadSchema(msg.TypeTSPI, func() *TSPI {
		t := newTSPI(msg.Header{}, origin, "", 0)
		t.setEFG(radar.EFG{})
		return t
	}, writeTSPI)
	if err := s.Add(1, readTSPIv1); err != nil {
		return nil, err
	}
	return s, nil
}

// tspiText is the diagnostic form: the RAE view with angles in degrees.
type tspiText struct {
	Tag        string            `yaml:"tag"`
	When       float64           `yaml:"when"`
	Range      float64           `yaml:"range"`
	Azimuth    float64           `yaml:"azimuth"`
	Elevation  float64           `yaml:"elevation"`
	Flags      uint8             `yaml:"flags"`
	Attributes map[string]string `yaml:"attributes,omitempty"`
}

// MarshalYAML implements yaml.Marshaler.
func (t *TSPI) MarshalYAML() (any, error) {
	rae := t.RAE()
	return tspiText{
		Tag:        t.Tag,
		When:       t.When,
		Range:      rae.Range,
		Azimuth:    radar.RadiansToDegrees(rae.Azimuth),
		Elevation:  radar.RadiansToDegrees(rae.Elevation),
		Flags:      t.Flags,
		Attributes: t.Attributes,
	}, nil
}

// UnmarshalYAML implements yaml.Unmarshaler. The decoded report is RAE
// authoritative.
func (t *TSPI) UnmarshalYAML(value *yaml.Node) error {
	var doc tspiText
	if err := value.Decode(&doc); err != nil {
		return err
	}
	h := t.header
	*t = *MakeRAE(h, t.origin, doc.Tag, doc.When, doc.Range,
		radar.DegreesToRadians(doc.Azimuth), radar.DegreesToRadians(doc.Elevation))
	t.Flags = doc.Flags
	if doc.Attributes != nil {
		t.Attributes = maps.Clone(doc.Attributes)
	}
	return nil
}

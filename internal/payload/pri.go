package payload

import (
	"fmt"

	"gopkg.in/yaml.v3"

	"github.com/roach88/sidecar/internal/msg"
	"github.com/roach88/sidecar/internal/radar"
)

// PRI is one radar pulse: an RIU descriptor and its range-ordered samples.
type PRI[T Element] struct {
	header msg.Header
	key    msg.TypeKey
	cfg    radar.Config

	RIU     RIU
	Samples []T
}

// Kinds with a fixed element type.
type (
	Video       = PRI[int16]
	BinaryVideo = PRI[bool]
	Complex     = PRI[ComplexInt16]
	RawVideo    = PRI[int32]
)

func (p *PRI[T]) Header() *msg.Header  { return &p.header }
func (p *PRI[T]) TypeKey() msg.TypeKey { return p.key }

// AzimuthStart is the azimuth of the leading edge of the beam in radians.
func (p *PRI[T]) AzimuthStart() float64 { return p.cfg.Azimuth(p.RIU.ShaftEncoding) }

// AzimuthEnd is the azimuth of the trailing edge of the beam in radians.
func (p *PRI[T]) AzimuthEnd() float64 { return p.cfg.AzimuthEnd(p.RIU.ShaftEncoding) }

// RangeAt returns the range of a sample index in km using the descriptor's
// own scaling.
func (p *PRI[T]) RangeAt(gate int) float64 {
	return p.RIU.RangeMin + float64(gate)*p.RIU.RangeFactor
}

func newPRI[T Element](key msg.TypeKey, h msg.Header, cfg radar.Config, riu RIU, samples []T) *PRI[T] {
	h.GUID.TypeKey = key
	return &PRI[T]{header: h, key: key, cfg: cfg, RIU: riu, Samples: samples}
}

func NewVideo(h msg.Header, cfg radar.Config, riu RIU, samples []int16) *Video {
	return newPRI(msg.TypeVideo, h, cfg, riu, samples)
}

func NewBinaryVideo(h msg.Header, cfg radar.Config, riu RIU, samples []bool) *BinaryVideo {
	return newPRI(msg.TypeBinaryVideo, h, cfg, riu, samples)
}

func NewComplex(h msg.Header, cfg radar.Config, riu RIU, samples []ComplexInt16) *Complex {
	return newPRI(msg.TypeComplex, h, cfg, riu, samples)
}

func NewRawVideo(h msg.Header, cfg radar.Config, riu RIU, samples []int32) *RawVideo {
	return newPRI(msg.TypeRawVideo, h, cfg, riu, samples)
}

// priSchema builds the schema for one sample kind. Each schema owns its
// own legacy sequence counters.
func priSchema[T Element](key msg.TypeKey, cfg radar.Config, ec elementCodec[T]) (*msg.PayloadSchema[*PRI[T]], error) {
	s := msg.NewPayloadSchema(key,
		func() *PRI[T] {
			return &PRI[T]{
				key: key,
				cfg: cfg,
				RIU: RIU{RangeMin: cfg.RangeMin, RangeFactor: cfg.RangeFactor()},
			}
		},
		func(w *msg.Writer, p *PRI[T]) error {
			writeRIU(w, p.RIU)
			ec.writeAll(w, p.Samples)
			return nil
		})

	rv := &riuVersions{cfg: cfg}
	for version, read := range rv.table() {
		err := s.Add(version, func(r *msg.Reader, p *PRI[T]) error {
			p.RIU = read(r)
			p.Samples = ec.readAll(r)
			return nil
		})
		if err != nil {
			return nil, fmt.Errorf("register %s v%d: %w", key, version, err)
		}
	}
	return s, nil
}

// priText is the diagnostic form. Azimuths are derived and informational.
type priText[T Element] struct {
	RIU          RIU     `yaml:"riu"`
	AzimuthStart float64 `yaml:"azimuth_start"`
	AzimuthEnd   float64 `yaml:"azimuth_end"`
	Samples      []T     `yaml:"samples,flow"`
}

// MarshalYAML implements yaml.Marshaler.
func (p *PRI[T]) MarshalYAML() (any, error) {
	samples := p.Samples
	if samples == nil {
		samples = []T{}
	}
	return priText[T]{
		RIU:          p.RIU,
		AzimuthStart: radar.RadiansToDegrees(p.AzimuthStart()),
		AzimuthEnd:   radar.RadiansToDegrees(p.AzimuthEnd()),
		Samples:      samples,
	}, nil
}

// UnmarshalYAML implements yaml.Unmarshaler.
func (p *PRI[T]) UnmarshalYAML(value *yaml.Node) error {
	var doc priText[T]
	if err := value.Decode(&doc); err != nil {
		return err
	}
	p.RIU = doc.RIU
	p.Samples = doc.Samples
	if p.Samples == nil {
		p.Samples = []T{}
	}
	return nil
}

package payload

import (
	"math"
	"sync/atomic"

	"github.com/roach88/sidecar/internal/msg"
	"github.com/roach88/sidecar/internal/radar"
)

// Descriptor flag bits in RIU.MsgDesc.
const (
	// DescPackedReal is the packing format code stored in bits 1-3.
	DescPackedReal uint32 = 0x2

	DescAzimuthValid uint32 = 1 << 8
	DescPRIValid     uint32 = 1 << 9
	DescIRIGValid    uint32 = 1 << 10

	// legacyDesc is synthesized for layouts that predate the descriptor.
	legacyDesc = DescPackedReal<<1 | DescAzimuthValid | DescPRIValid
)

// RIU is the radar interface unit descriptor attached to every pulse.
type RIU struct {
	MsgDesc         uint32  `yaml:"desc"`
	TimeStamp       uint32  `yaml:"time"`
	SequenceCounter uint32  `yaml:"seq"`
	ShaftEncoding   uint32  `yaml:"shaft"`
	PRFEncoding     uint32  `yaml:"prf"`
	IRIGTime        float64 `yaml:"irig"`
	RangeMin        float64 `yaml:"range_min"`
	RangeFactor     float64 `yaml:"range_factor"`
}

// AzimuthValid reports whether ShaftEncoding holds a measured azimuth.
func (d RIU) AzimuthValid() bool { return d.MsgDesc&DescAzimuthValid != 0 }

func writeRIU(w *msg.Writer, d RIU) {
	w.Uint32(d.MsgDesc)
	w.Uint32(d.TimeStamp)
	w.Uint32(d.SequenceCounter)
	w.Uint32(d.ShaftEncoding)
	w.Uint32(d.PRFEncoding)
	w.Float64(d.IRIGTime)
	w.Float64(d.RangeMin)
	w.Float64(d.RangeFactor)
}

// riuVersions reads each historical descriptor layout. It belongs to one
// registered schema; the counters synthesize sequence numbers for layouts
// that did not carry them.
type riuVersions struct {
	cfg radar.Config
	v1  atomic.Uint32
	v2  atomic.Uint32
}

// v1 stored only the azimuth span and range scaling as float32.
func (rv *riuVersions) readV1(r *msg.Reader) RIU {
	azStart := r.Float32()
	_ = r.Float32() // azimuth end, implied by the beam width
	rangeMin := r.Float32()
	rangeFactor := r.Float32()
	return RIU{
		MsgDesc:         legacyDesc,
		SequenceCounter: rv.v1.Add(1),
		ShaftEncoding:   uint32(float64(azStart) / (2 * math.Pi) * float64(rv.cfg.ShaftEncodingMax)),
		RangeMin:        float64(rangeMin),
		RangeFactor:     float64(rangeFactor),
	}
}

// v2 added explicit shaft and PRF encodings.
func (rv *riuVersions) readV2(r *msg.Reader) RIU {
	rangeMin := r.Float64()
	rangeFactor := r.Float64()
	_ = r.Float64() // beam width
	shaft := r.Uint16()
	_ = r.Uint16() // shaft encoding range
	prf := r.Uint16()
	return RIU{
		MsgDesc:         legacyDesc,
		SequenceCounter: rv.v2.Add(1),
		ShaftEncoding:   uint32(shaft),
		PRFEncoding:     uint32(prf),
		RangeMin:        rangeMin,
		RangeFactor:     rangeFactor,
	}
}

// v3 is the full descriptor without range scaling; the configured values
// stand in.
func (rv *riuVersions) readV3(r *msg.Reader) RIU {
	d := readDescriptorCore(r)
	d.RangeMin = rv.cfg.RangeMin
	d.RangeFactor = rv.cfg.RangeFactor()
	return d
}

func (rv *riuVersions) readV4(r *msg.Reader) RIU {
	d := readDescriptorCore(r)
	d.RangeMin = r.Float64()
	d.RangeFactor = r.Float64()
	return d
}

func readDescriptorCore(r *msg.Reader) RIU {
	return RIU{
		MsgDesc:         r.Uint32(),
		TimeStamp:       r.Uint32(),
		SequenceCounter: r.Uint32(),
		ShaftEncoding:   r.Uint32(),
		PRFEncoding:     r.Uint32(),
		IRIGTime:        r.Float64(),
	}
}

func (rv *riuVersions) table() map[uint16]func(*msg.Reader) RIU {
	return map[uint16]func(*msg.Reader) RIU{
		1: rv.readV1,
		2: rv.readV2,
		3: rv.readV3,
		4: rv.readV4,
	}
}

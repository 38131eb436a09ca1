package payload

import (
	"encoding/binary"
	"fmt"
	"math"
	"strconv"

	"github.com/roach88/sidecar/internal/msg"
	"github.com/roach88/sidecar/internal/radar"
)

// Legacy transducer frame layout. All multi-byte fields are big-endian.
const (
	FrameSize    = 20
	frameMinSize = 18
	frameMarker  = 0x01

	frameSystemID = 1
	frameWhen     = 3
	frameE        = 5
	frameF        = 9
	frameG        = 13
	frameFlags    = 17

	// frameScale converts between meters and the fixed-point wire value.
	frameScale = 256.0
)

// systemTags maps known transducer system ids to site tags.
var systemTags = map[uint16]string{
	0x1201: "RFA",
	0x1202: "RFB",
	0x1001: "GTA",
	0x1006: "GTB",
	0x1002: "GTC",
	0x104F: "GTD",
	0x1050: "GTE",
	0x1084: "GTF",
	0x1085: "GTG",
	0x109A: "GTH",
	0x109B: "GTI",
	0x132D: "GTJ",
	0x103D: "MRA",
	0x1044: "MRB",
	0x1005: "MRC",
	0x1038: "MRD",
	0x1007: "MRE",
	0x1039: "MRF",
	0x1009: "MRG",
}

// SystemTag returns the tag for a transducer system id. Unknown ids are
// named by the class in the high nibble (I, R, G, or U) followed by the
// decimal value of the low twelve bits.
func SystemTag(id uint16) string {
	if tag, ok := systemTags[id]; ok {
		return tag
	}
	prefix := "U"
	switch id >> 12 {
	case 0:
		prefix = "I"
	case 1:
		prefix = "R"
	case 2:
		prefix = "G"
	}
	return prefix + strconv.Itoa(int(id&0x0FFF))
}

// DecodeFrame interprets a legacy transducer frame. The bytes come from an
// external device, so malformed input yields (nil, false) and never an
// error or panic.
//
// The returned report is EFG authoritative. When holds the frame's
// millisecond-of-minute counter and the attribute "system_id" holds the
// raw id in hex.
func DecodeFrame(h msg.Header, origin *radar.Origin, b []byte) (*TSPI, bool) {
	if len(b) < frameMinSize || b[0] != frameMarker {
		return nil, false
	}

	id := binary.BigEndian.Uint16(b[frameSystemID:])
	when := binary.BigEndian.Uint16(b[frameWhen:])
	p := radar.EFG{
		E: float64(int32(binary.BigEndian.Uint32(b[frameE:]))) / frameScale,
		F: float64(int32(binary.BigEndian.Uint32(b[frameF:]))) / frameScale,
		G: float64(int32(binary.BigEndian.Uint32(b[frameG:]))) / frameScale,
	}

	t := MakeEFG(h, origin, SystemTag(id), float64(when), p)
	t.Flags = b[frameFlags]
	t.Attributes["system_id"] = fmt.Sprintf("0x%04X", id)
	return t, true
}

// EncodeFrame renders t as a legacy frame. It exists for simulators and
// tests; coordinates are rounded to the frame's 1/256 m resolution.
func EncodeFrame(systemID uint16, t *TSPI) []byte {
	b := make([]byte, FrameSize)
	b[0] = frameMarker
	binary.BigEndian.PutUint16(b[frameSystemID:], systemID)
	binary.BigEndian.PutUint16(b[frameWhen:], uint16(int64(t.When)%60000))
	p := t.EFG()
	binary.BigEndian.PutUint32(b[frameE:], uint32(int32(math.Round(p.E*frameScale))))
	binary.BigEndian.PutUint32(b[frameF:], uint32(int32(math.Round(p.F*frameScale))))
	binary.BigEndian.PutUint32(b[frameG:], uint32(int32(math.Round(p.G*frameScale))))
	b[frameFlags] = t.Flags
	return b
}

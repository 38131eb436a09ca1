package msg

import "strconv"

// TypeKey identifies a message kind on the wire.
//
// Values are append-only: recordings store the numeric value, so new kinds
// go immediately before TypeUnassigned and existing values never move.
type TypeKey uint16

const (
	TypeInvalid TypeKey = iota
	TypeRawVideo
	TypeVideo
	TypeBinaryVideo
	TypeExtractions
	TypeSegmentMessage
	TypeComplex
	TypeTSPI
	TypeBugPlot
	TypeTrack
	TypeUnassigned
)

var typeKeyNames = [...]string{
	TypeInvalid:        "Invalid",
	TypeRawVideo:       "RawVideo",
	TypeVideo:          "Video",
	TypeBinaryVideo:    "BinaryVideo",
	TypeExtractions:    "Extractions",
	TypeSegmentMessage: "SegmentMessage",
	TypeComplex:        "Complex",
	TypeTSPI:           "TSPI",
	TypeBugPlot:        "BugPlot",
	TypeTrack:          "Track",
	TypeUnassigned:     "Unassigned",
}

// String returns the kind name, or "TypeKey(n)" for values outside the table.
func (k TypeKey) String() string {
	if int(k) < len(typeKeyNames) {
		return typeKeyNames[k]
	}
	return "TypeKey(" + strconv.Itoa(int(k)) + ")"
}

// Valid reports whether k names a concrete message kind.
func (k TypeKey) Valid() bool {
	return k > TypeInvalid && k < TypeUnassigned
}

// ParseTypeKey resolves a kind name as produced by String.
func ParseTypeKey(name string) (TypeKey, bool) {
	for i, n := range typeKeyNames {
		if n == name {
			return TypeKey(i), true
		}
	}
	return TypeInvalid, false
}

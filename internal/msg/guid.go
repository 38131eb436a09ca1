package msg

import (
	"strconv"
	"sync"

	"golang.org/x/text/unicode/norm"
)

// GUID is a message's logical identity: who produced it, what kind it is,
// and its position in that producer's stream of that kind.
//
// GUID is a value type. Two GUIDs are equal when all three fields match,
// which makes GUID usable as a map key for de-duplication.
type GUID struct {
	Producer string
	TypeKey  TypeKey
	Sequence uint32
}

// NewGUID creates a GUID with the producer name in NFC form.
func NewGUID(producer string, key TypeKey, seq uint32) GUID {
	return GUID{
		Producer: norm.NFC.String(producer),
		TypeKey:  key,
		Sequence: seq,
	}
}

// SequenceKey returns "producer/typeKey", the scope of the sequence counter.
func (g GUID) SequenceKey() string {
	return g.Producer + "/" + strconv.Itoa(int(g.TypeKey))
}

// String returns "producer/typeKey/sequence".
func (g GUID) String() string {
	return g.SequenceKey() + "/" + strconv.FormatUint(uint64(g.Sequence), 10)
}

// guidVersions holds every GUID layout ever written.
//
// v1 stored the type key as u32 and carried a cached printable
// representation; v2 narrowed the key to u16; v3 dropped the representation.
var guidVersions = NewVersions[func(*Reader, *GUID)]("GUID").
	MustAdd(1, func(r *Reader, g *GUID) {
		g.Producer = r.String()
		g.TypeKey = TypeKey(r.Uint32())
		g.Sequence = r.Uint32()
		_ = r.String()
	}).
	MustAdd(2, func(r *Reader, g *GUID) {
		g.Producer = r.String()
		g.TypeKey = TypeKey(r.Uint16())
		g.Sequence = r.Uint32()
		_ = r.String()
	}).
	MustAdd(3, func(r *Reader, g *GUID) {
		g.Producer = r.String()
		g.TypeKey = TypeKey(r.Uint16())
		g.Sequence = r.Uint32()
	})

func writeGUID(w *Writer, g GUID) {
	w.Uint16(guidVersions.Current())
	w.String(g.Producer)
	w.Uint16(uint16(g.TypeKey))
	w.Uint32(g.Sequence)
}

func readGUID(r *Reader) (GUID, error) {
	version := r.Uint16()
	if err := r.Err(); err != nil {
		return GUID{}, NewDecodeError("GUID", "read version tag", err)
	}
	load, err := guidVersions.Lookup(version)
	if err != nil {
		return GUID{}, err
	}
	var g GUID
	load(r, &g)
	if err := r.Err(); err != nil {
		return GUID{}, &CodecError{Code: ErrCodeDecode, Message: "read GUID", Section: "GUID", Version: version, Err: err}
	}
	return g, nil
}

// Sequencer hands out per-producer-per-type sequence numbers.
//
// The first number for a sequence key is 1. Thread-safe: producers on
// different pipelines may share one Sequencer.
type Sequencer struct {
	mu   sync.Mutex
	next map[string]uint32
}

// NewSequencer creates a Sequencer with every counter at zero.
func NewSequencer() *Sequencer {
	return &Sequencer{next: make(map[string]uint32)}
}

// Next returns a fresh GUID for producer and key.
func (s *Sequencer) Next(producer string, key TypeKey) GUID {
	g := NewGUID(producer, key, 0)
	s.mu.Lock()
	defer s.mu.Unlock()
	s.next[g.SequenceKey()]++
	g.Sequence = s.next[g.SequenceKey()]
	return g
}

package msg

import "time"

// Message is implemented by every payload type.
type Message interface {
	// Header returns the envelope shared by all kinds. The pointer is owned
	// by the message; codecs and the dispatch table update it in place.
	Header() *Header

	// TypeKey returns the kind of the concrete payload.
	TypeKey() TypeKey
}

// Header is the envelope carried by every Message.
type Header struct {
	GUID GUID

	// CreatedAt is set when the message is constructed.
	CreatedAt time.Time

	// EmittedAt is set by Encode when the message is first serialized for
	// transport. A non-zero value is never overwritten.
	EmittedAt time.Time

	// Basis optionally points at the message this one was derived from.
	// It always refers backward in time and is not serialized.
	Basis Message
}

// NewHeader creates the envelope for a newly constructed message.
func NewHeader(guid GUID, createdAt time.Time, basis Message) Header {
	return Header{
		GUID:      guid,
		CreatedAt: createdAt,
		Basis:     basis,
	}
}

// SetSequence replaces the GUID sequence number. The dispatch table uses this
// to stamp per-channel ordering on outbound messages.
func (h *Header) SetSequence(seq uint32) {
	h.GUID.Sequence = seq
}

// headerVersions holds every header layout. v1 predates emittedAt and
// reports the creation time for both stamps.
var headerVersions = NewVersions[func(*Reader, *Header) error]("Header").
	MustAdd(1, func(r *Reader, h *Header) error {
		g, err := readGUID(r)
		if err != nil {
			return err
		}
		h.GUID = g
		h.CreatedAt = r.Time()
		h.EmittedAt = h.CreatedAt
		return nil
	}).
	MustAdd(2, func(r *Reader, h *Header) error {
		g, err := readGUID(r)
		if err != nil {
			return err
		}
		h.GUID = g
		h.CreatedAt = r.Time()
		h.EmittedAt = r.Time()
		return nil
	})

// writeHeader writes the current header layout. EmittedAt is filled from
// now if and only if it is still zero.
func writeHeader(w *Writer, h *Header, now func() time.Time) {
	w.Uint16(headerVersions.Current())
	writeGUID(w, h.GUID)
	w.Time(h.CreatedAt)
	if h.EmittedAt.IsZero() {
		h.EmittedAt = now()
	}
	w.Time(h.EmittedAt)
}

func readHeader(r *Reader) (Header, error) {
	version := r.Uint16()
	if err := r.Err(); err != nil {
		return Header{}, NewDecodeError("Header", "read version tag", err)
	}
	load, err := headerVersions.Lookup(version)
	if err != nil {
		return Header{}, err
	}
	var h Header
	if err := load(r, &h); err != nil {
		return Header{}, err
	}
	if err := r.Err(); err != nil {
		return Header{}, &CodecError{Code: ErrCodeDecode, Message: "read header", Section: "Header", Version: version, Err: err}
	}
	return h, nil
}

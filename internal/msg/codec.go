package msg

import (
	"errors"
	"fmt"
	"time"
)

// Schema describes one payload kind to the Codec.
type Schema interface {
	// TypeKey returns the kind this schema reads and writes.
	TypeKey() TypeKey

	// CurrentVersion returns the version written by EncodePayload.
	CurrentVersion() uint16

	// New returns an empty message of this kind ready to be decoded into.
	New() Message

	// EncodePayload writes m at the current version.
	EncodePayload(w *Writer, m Message) error

	// DecodePayload reads the layout registered under version into m.
	DecodePayload(r *Reader, version uint16, m Message) error
}

// PayloadSchema is the Schema implementation for a concrete message type M.
type PayloadSchema[M Message] struct {
	key      TypeKey
	newFn    func() M
	encode   func(*Writer, M) error
	versions *Versions[func(*Reader, M) error]
}

// NewPayloadSchema creates a schema for kind key. newFn must return a
// message whose every field already holds its default, so that legacy
// decoders that skip fields still produce a fully initialized value.
func NewPayloadSchema[M Message](key TypeKey, newFn func() M, encode func(*Writer, M) error) *PayloadSchema[M] {
	return &PayloadSchema[M]{
		key:      key,
		newFn:    newFn,
		encode:   encode,
		versions: NewVersions[func(*Reader, M) error](key.String()),
	}
}

// Add registers the decoder for one historical layout.
func (s *PayloadSchema[M]) Add(version uint16, decode func(*Reader, M) error) error {
	return s.versions.Add(version, decode)
}

// Versions returns the registered versions in ascending order.
func (s *PayloadSchema[M]) Versions() []uint16 { return s.versions.Known() }

func (s *PayloadSchema[M]) TypeKey() TypeKey       { return s.key }
func (s *PayloadSchema[M]) CurrentVersion() uint16 { return s.versions.Current() }
func (s *PayloadSchema[M]) New() Message           { return s.newFn() }

func (s *PayloadSchema[M]) EncodePayload(w *Writer, m Message) error {
	tm, ok := m.(M)
	if !ok {
		return &CodecError{
			Code:    ErrCodeEncode,
			Message: fmt.Sprintf("message type %T does not belong to schema", m),
			Section: s.key.String(),
		}
	}
	return s.encode(w, tm)
}

func (s *PayloadSchema[M]) DecodePayload(r *Reader, version uint16, m Message) error {
	decode, err := s.versions.Lookup(version)
	if err != nil {
		return err
	}
	tm, ok := m.(M)
	if !ok {
		return NewDecodeError(s.key.String(), fmt.Sprintf("schema constructed %T", m), ErrMalformed)
	}
	return decode(r, tm)
}

// Codec encodes and decodes envelopes for every registered payload kind.
//
// Register is called during process start only; after that the Codec is
// read-only and safe for concurrent Encode/Decode calls from any pipeline.
type Codec struct {
	schemas map[TypeKey]Schema
	now     func() time.Time
}

// CodecOption configures a Codec.
type CodecOption func(*Codec)

// WithClock sets the function used to stamp EmittedAt. Defaults to the
// current UTC wall time.
func WithClock(now func() time.Time) CodecOption {
	return func(c *Codec) {
		c.now = now
	}
}

// NewCodec creates a Codec with no schemas.
func NewCodec(opts ...CodecOption) *Codec {
	c := &Codec{
		schemas: make(map[TypeKey]Schema),
		now:     func() time.Time { return time.Now().UTC() },
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Register installs s. A kind can be registered once and must have at
// least one version.
func (c *Codec) Register(s Schema) error {
	key := s.TypeKey()
	if !key.Valid() {
		return &CodecError{Code: ErrCodeUnknownType, Message: fmt.Sprintf("cannot register schema for %s", key)}
	}
	if s.CurrentVersion() == 0 {
		return &CodecError{Code: ErrCodeUnknownVersion, Message: "schema has no versions", Section: key.String()}
	}
	if _, exists := c.schemas[key]; exists {
		return &CodecError{Code: ErrCodeDuplicateVersion, Message: "schema already registered", Section: key.String()}
	}
	c.schemas[key] = s
	return nil
}

// Schema returns the schema registered for key.
func (c *Codec) Schema(key TypeKey) (Schema, bool) {
	s, ok := c.schemas[key]
	return s, ok
}

func (c *Codec) schema(key TypeKey) (Schema, error) {
	s, ok := c.schemas[key]
	if !ok {
		return nil, &CodecError{Code: ErrCodeUnknownType, Message: fmt.Sprintf("no schema for type key %d", uint16(key))}
	}
	return s, nil
}

// Encode serializes m at the current version of every section.
//
// The payload is produced first; EmittedAt is stamped only after the
// payload encoded successfully, immediately before the header is written.
func (c *Codec) Encode(m Message) ([]byte, error) {
	key := m.TypeKey()
	s, err := c.schema(key)
	if err != nil {
		return nil, err
	}
	h := m.Header()
	if h.GUID.TypeKey != key {
		return nil, &CodecError{
			Code:    ErrCodeEncode,
			Message: fmt.Sprintf("GUID type key %s does not match message type %s", h.GUID.TypeKey, key),
			Section: key.String(),
		}
	}

	payload := NewWriter(256)
	if err := s.EncodePayload(payload, m); err != nil {
		return nil, err
	}

	w := NewWriter(payload.Len() + 64 + len(h.GUID.Producer))
	w.Uint16(uint16(key))
	w.Uint16(s.CurrentVersion())
	writeHeader(w, h, c.now)
	w.Raw(payload.Bytes())
	return w.Bytes(), nil
}

// PeekTypeKey returns the kind of an encoded message without decoding it.
func PeekTypeKey(b []byte) (TypeKey, error) {
	r := NewReader(b)
	key := TypeKey(r.Uint16())
	if err := r.Err(); err != nil {
		return TypeInvalid, NewDecodeError("envelope", "read type key", err)
	}
	return key, nil
}

// Decode reads one encoded message. The whole buffer must be consumed.
func (c *Codec) Decode(b []byte) (Message, error) {
	r := NewReader(b)
	key := TypeKey(r.Uint16())
	version := r.Uint16()
	if err := r.Err(); err != nil {
		return nil, NewDecodeError("envelope", "read type key and version", err)
	}
	s, err := c.schema(key)
	if err != nil {
		return nil, err
	}

	h, err := readHeader(r)
	if err != nil {
		return nil, err
	}
	if h.GUID.TypeKey != key {
		return nil, NewDecodeError(key.String(),
			fmt.Sprintf("GUID type key %s does not match envelope", h.GUID.TypeKey), ErrMalformed)
	}

	m := s.New()
	*m.Header() = h
	if err := s.DecodePayload(r, version, m); err != nil {
		var ce *CodecError
		if errors.As(err, &ce) {
			return nil, err
		}
		return nil, &CodecError{Code: ErrCodeDecode, Message: "read payload", Section: key.String(), Version: version, Err: err}
	}
	if err := r.Err(); err != nil {
		return nil, &CodecError{Code: ErrCodeDecode, Message: "read payload", Section: key.String(), Version: version, Err: err}
	}
	if r.Remaining() != 0 {
		return nil, &CodecError{
			Code:    ErrCodeDecode,
			Message: fmt.Sprintf("%d trailing bytes after payload", r.Remaining()),
			Section: key.String(),
			Version: version,
			Err:     ErrMalformed,
		}
	}
	return m, nil
}

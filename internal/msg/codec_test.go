package msg

import (
	"encoding/binary"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// note is a minimal payload used to exercise the envelope without pulling
// in the real payload kinds.
type note struct {
	header Header
	Text   string `yaml:"text"`
	Count  uint32 `yaml:"count"`
}

func (n *note) Header() *Header  { return &n.header }
func (n *note) TypeKey() TypeKey { return TypeBugPlot }

func newNoteSchema(t *testing.T) *PayloadSchema[*note] {
	t.Helper()
	s := NewPayloadSchema(TypeBugPlot,
		func() *note { return &note{Count: 1} },
		func(w *Writer, n *note) error {
			w.String(n.Text)
			w.Uint32(n.Count)
			return nil
		})
	// v1 had no count; the constructor default stands.
	require.NoError(t, s.Add(1, func(r *Reader, n *note) error {
		n.Text = r.String()
		return nil
	}))
	require.NoError(t, s.Add(2, func(r *Reader, n *note) error {
		n.Text = r.String()
		n.Count = r.Uint32()
		return nil
	}))
	return s
}

var (
	created = time.Date(2024, 3, 1, 12, 0, 0, 250, time.UTC)
	emitted = time.Date(2024, 3, 1, 12, 0, 1, 0, time.UTC)
	fixed   = time.Date(2024, 3, 1, 12, 0, 5, 0, time.UTC)
)

func newTestCodec(t *testing.T) *Codec {
	t.Helper()
	c := NewCodec(WithClock(func() time.Time { return fixed }))
	require.NoError(t, c.Register(newNoteSchema(t)))
	return c
}

func newNote(text string, count uint32) *note {
	n := &note{Text: text, Count: count}
	n.header = NewHeader(NewGUID("extractor", TypeBugPlot, 7), created, nil)
	return n
}

func TestCodecRoundTripCurrentVersion(t *testing.T) {
	c := newTestCodec(t)
	in := newNote("bug at 12nm", 3)
	in.header.EmittedAt = emitted

	b, err := c.Encode(in)
	require.NoError(t, err)
	assert.Equal(t, uint16(TypeBugPlot), binary.BigEndian.Uint16(b[0:2]))
	assert.Equal(t, uint16(2), binary.BigEndian.Uint16(b[2:4]), "encode writes highest version")

	out, err := c.Decode(b)
	require.NoError(t, err)
	got, ok := out.(*note)
	require.True(t, ok)
	assert.Equal(t, in.header.GUID, got.header.GUID)
	assert.Equal(t, created, got.header.CreatedAt)
	assert.Equal(t, emitted, got.header.EmittedAt)
	assert.Equal(t, "bug at 12nm", got.Text)
	assert.Equal(t, uint32(3), got.Count)
}

func TestCodecStampsEmittedAtOnlyWhenUnset(t *testing.T) {
	c := newTestCodec(t)

	fresh := newNote("a", 1)
	_, err := c.Encode(fresh)
	require.NoError(t, err)
	assert.Equal(t, fixed, fresh.header.EmittedAt)

	replayed := newNote("b", 1)
	replayed.header.EmittedAt = emitted
	b, err := c.Encode(replayed)
	require.NoError(t, err)
	assert.Equal(t, emitted, replayed.header.EmittedAt)

	out, err := c.Decode(b)
	require.NoError(t, err)
	assert.Equal(t, emitted, out.Header().EmittedAt)
}

func TestCodecEncodeFailureLeavesEmittedAtUnset(t *testing.T) {
	c := NewCodec(WithClock(func() time.Time { return fixed }))
	s := NewPayloadSchema(TypeBugPlot, func() *note { return &note{} },
		func(w *Writer, n *note) error { return &CodecError{Code: ErrCodeEncode, Message: "boom"} })
	require.NoError(t, s.Add(1, func(r *Reader, n *note) error { return nil }))
	require.NoError(t, c.Register(s))

	n := newNote("x", 1)
	_, err := c.Encode(n)
	require.Error(t, err)
	assert.True(t, n.header.EmittedAt.IsZero())
}

func TestCodecDecodeLegacyPayloadVersion(t *testing.T) {
	c := newTestCodec(t)

	w := NewWriter(64)
	w.Uint16(uint16(TypeBugPlot))
	w.Uint16(1)
	writeHeader(w, &Header{GUID: NewGUID("p", TypeBugPlot, 1), CreatedAt: created, EmittedAt: emitted}, time.Now)
	w.String("legacy")

	out, err := c.Decode(w.Bytes())
	require.NoError(t, err)
	got := out.(*note)
	assert.Equal(t, "legacy", got.Text)
	assert.Equal(t, uint32(1), got.Count, "field missing from v1 takes the default")
}

func TestCodecDecodeLegacyHeaderAndGUID(t *testing.T) {
	c := newTestCodec(t)

	tests := []struct {
		name  string
		write func(w *Writer)
		emit  time.Time
	}{
		{
			name: "header v1 guid v1",
			write: func(w *Writer) {
				w.Uint16(1)
				w.Uint16(1)
				w.String("radar")
				w.Uint32(uint32(TypeBugPlot))
				w.Uint32(42)
				w.String("radar/8/42")
				w.Time(created)
			},
			emit: created,
		},
		{
			name: "header v2 guid v2",
			write: func(w *Writer) {
				w.Uint16(2)
				w.Uint16(2)
				w.String("radar")
				w.Uint16(uint16(TypeBugPlot))
				w.Uint32(42)
				w.String("radar/8/42")
				w.Time(created)
				w.Time(emitted)
			},
			emit: emitted,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := NewWriter(64)
			w.Uint16(uint16(TypeBugPlot))
			w.Uint16(2)
			tt.write(w)
			w.String("hi")
			w.Uint32(5)

			out, err := c.Decode(w.Bytes())
			require.NoError(t, err)
			h := out.Header()
			assert.Equal(t, GUID{Producer: "radar", TypeKey: TypeBugPlot, Sequence: 42}, h.GUID)
			assert.Equal(t, created, h.CreatedAt)
			assert.Equal(t, tt.emit, h.EmittedAt)
		})
	}
}

func TestCodecDecodeUnknownVersions(t *testing.T) {
	c := newTestCodec(t)
	in := newNote("x", 1)
	good, err := c.Encode(in)
	require.NoError(t, err)

	tests := []struct {
		name    string
		offset  int
		section string
	}{
		{"payload", 2, "BugPlot"},
		{"header", 4, "Header"},
		{"guid", 6, "GUID"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			b := append([]byte(nil), good...)
			binary.BigEndian.PutUint16(b[tt.offset:], 99)

			_, err := c.Decode(b)
			require.Error(t, err)
			assert.True(t, IsUnknownVersion(err), "got %v", err)

			var ce *CodecError
			require.ErrorAs(t, err, &ce)
			assert.Equal(t, tt.section, ce.Section)
			assert.Equal(t, uint16(99), ce.Version)
		})
	}
}

func TestCodecDecodeTruncatedNeverPanics(t *testing.T) {
	c := newTestCodec(t)
	b, err := c.Encode(newNote("truncate me", 9))
	require.NoError(t, err)

	for n := 0; n < len(b); n++ {
		_, err := c.Decode(b[:n])
		require.Error(t, err, "prefix of %d bytes", n)
		assert.True(t, IsDecodeError(err), "prefix of %d bytes: %v", n, err)
	}
}

func TestCodecDecodeMalformedLength(t *testing.T) {
	c := newTestCodec(t)
	b, err := c.Encode(newNote("x", 1))
	require.NoError(t, err)

	// Producer length prefix sits after type, payload, header and GUID versions.
	binary.BigEndian.PutUint32(b[8:], 1<<30)
	_, err = c.Decode(b)
	require.Error(t, err)
	assert.True(t, IsDecodeError(err))
	assert.ErrorIs(t, err, ErrMalformed)
}

func TestCodecDecodeTrailingBytes(t *testing.T) {
	c := newTestCodec(t)
	b, err := c.Encode(newNote("x", 1))
	require.NoError(t, err)

	_, err = c.Decode(append(b, 0xFF))
	require.Error(t, err)
	assert.True(t, IsDecodeError(err))
}

func TestCodecUnknownType(t *testing.T) {
	c := newTestCodec(t)
	b, err := c.Encode(newNote("x", 1))
	require.NoError(t, err)
	binary.BigEndian.PutUint16(b[0:], uint16(TypeTrack))

	_, err = c.Decode(b)
	assert.True(t, IsUnknownType(err))
}

func TestCodecGUIDTypeMismatch(t *testing.T) {
	c := newTestCodec(t)
	n := newNote("x", 1)
	n.header.GUID.TypeKey = TypeTrack

	_, err := c.Encode(n)
	require.Error(t, err)

	var ce *CodecError
	require.ErrorAs(t, err, &ce)
	assert.Equal(t, ErrCodeEncode, ce.Code)
}

func TestCodecRegister(t *testing.T) {
	c := NewCodec()
	require.NoError(t, c.Register(newNoteSchema(t)))

	err := c.Register(newNoteSchema(t))
	assert.True(t, IsDuplicateVersion(err))

	empty := NewPayloadSchema(TypeTrack, func() *note { return &note{} },
		func(w *Writer, n *note) error { return nil })
	assert.True(t, IsUnknownVersion(c.Register(empty)))

	invalid := NewPayloadSchema(TypeInvalid, func() *note { return &note{} },
		func(w *Writer, n *note) error { return nil })
	require.NoError(t, invalid.Add(1, func(r *Reader, n *note) error { return nil }))
	assert.True(t, IsUnknownType(c.Register(invalid)))
}

func TestCodecTextRoundTrip(t *testing.T) {
	c := newTestCodec(t)
	in := newNote("diagnostic", 4)
	in.header.EmittedAt = emitted

	text, err := c.EncodeText(in)
	require.NoError(t, err)
	assert.Contains(t, string(text), "type: BugPlot")
	assert.Contains(t, string(text), "producer: extractor")

	out, err := c.DecodeText(text)
	require.NoError(t, err)
	got := out.(*note)
	assert.Equal(t, in.header.GUID, got.header.GUID)
	assert.True(t, created.Equal(got.header.CreatedAt))
	assert.True(t, emitted.Equal(got.header.EmittedAt))
	assert.Equal(t, "diagnostic", got.Text)
	assert.Equal(t, uint32(4), got.Count)
}

func TestCodecDecodeTextErrors(t *testing.T) {
	c := newTestCodec(t)

	_, err := c.DecodeText([]byte("type: Nope\n"))
	assert.True(t, IsUnknownType(err))

	_, err = c.DecodeText([]byte("type: [unterminated\n"))
	assert.True(t, IsDecodeError(err))
}

func TestPeekTypeKey(t *testing.T) {
	c := newTestCodec(t)
	b, err := c.Encode(newNote("x", 1))
	require.NoError(t, err)

	key, err := PeekTypeKey(b)
	require.NoError(t, err)
	assert.Equal(t, TypeBugPlot, key)

	_, err = PeekTypeKey(b[:1])
	assert.True(t, IsDecodeError(err))
}

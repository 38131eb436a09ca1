package msg

import (
	"encoding/binary"
	"fmt"
	"math"
	"time"
	"unicode/utf8"
)

// maxStringLen bounds a single length-prefixed string. Producer names,
// tags and attribute values are short; anything larger is corrupt input.
const maxStringLen = 1 << 20

// Writer appends big-endian fields to a growing buffer.
type Writer struct {
	buf []byte
}

// NewWriter creates a Writer with room for sizeHint bytes.
func NewWriter(sizeHint int) *Writer {
	return &Writer{buf: make([]byte, 0, sizeHint)}
}

// Bytes returns the encoded bytes. The slice aliases the Writer's buffer.
func (w *Writer) Bytes() []byte { return w.buf }

// Len returns the number of bytes written so far.
func (w *Writer) Len() int { return len(w.buf) }

func (w *Writer) Uint8(v uint8)   { w.buf = append(w.buf, v) }
func (w *Writer) Uint16(v uint16) { w.buf = binary.BigEndian.AppendUint16(w.buf, v) }
func (w *Writer) Uint32(v uint32) { w.buf = binary.BigEndian.AppendUint32(w.buf, v) }
func (w *Writer) Uint64(v uint64) { w.buf = binary.BigEndian.AppendUint64(w.buf, v) }
func (w *Writer) Int16(v int16)   { w.Uint16(uint16(v)) }
func (w *Writer) Int32(v int32)   { w.Uint32(uint32(v)) }
func (w *Writer) Int64(v int64)   { w.Uint64(uint64(v)) }

func (w *Writer) Float32(v float32) { w.Uint32(math.Float32bits(v)) }
func (w *Writer) Float64(v float64) { w.Uint64(math.Float64bits(v)) }

// Bool writes a single byte, 1 for true.
func (w *Writer) Bool(v bool) {
	if v {
		w.Uint8(1)
		return
	}
	w.Uint8(0)
}

// String writes a u32 length prefix followed by the bytes of s.
func (w *Writer) String(s string) {
	w.Uint32(uint32(len(s)))
	w.buf = append(w.buf, s...)
}

// Raw appends b without a length prefix.
func (w *Writer) Raw(b []byte) { w.buf = append(w.buf, b...) }

// Time writes t as Unix seconds and nanoseconds. The zero time is written
// as the seconds value of year 1, which Reader.Time maps back to the zero time.
func (w *Writer) Time(t time.Time) {
	w.Int64(t.Unix())
	w.Uint32(uint32(t.Nanosecond()))
}

// StringMap writes a u32 count followed by key/value string pairs in
// sorted key order.
func (w *Writer) StringMap(m map[string]string) {
	keys := sortedKeys(m)
	w.Uint32(uint32(len(keys)))
	for _, k := range keys {
		w.String(k)
		w.String(m[k])
	}
}

// Reader consumes big-endian fields from a buffer.
//
// Errors are sticky: after the first failure every accessor returns the zero
// value and Err reports the original cause. Decoders read a whole section
// and check Err once.
type Reader struct {
	buf []byte
	off int
	err error
}

// NewReader creates a Reader over b. b is not copied.
func NewReader(b []byte) *Reader {
	return &Reader{buf: b}
}

// Err returns the first error encountered, if any.
func (r *Reader) Err() error { return r.err }

// Remaining returns the number of unread bytes.
func (r *Reader) Remaining() int { return len(r.buf) - r.off }

// Offset returns the number of bytes consumed.
func (r *Reader) Offset() int { return r.off }

// Fail records err unless an earlier error is already recorded.
func (r *Reader) Fail(err error) {
	if r.err == nil {
		r.err = err
	}
}

func (r *Reader) take(n int) []byte {
	if r.err != nil {
		return nil
	}
	if n < 0 || r.Remaining() < n {
		r.err = fmt.Errorf("need %d bytes at offset %d, have %d: %w", n, r.off, r.Remaining(), ErrTruncated)
		return nil
	}
	b := r.buf[r.off : r.off+n]
	r.off += n
	return b
}

func (r *Reader) Uint8() uint8 {
	b := r.take(1)
	if b == nil {
		return 0
	}
	return b[0]
}

func (r *Reader) Uint16() uint16 {
	b := r.take(2)
	if b == nil {
		return 0
	}
	return binary.BigEndian.Uint16(b)
}

func (r *Reader) Uint32() uint32 {
	b := r.take(4)
	if b == nil {
		return 0
	}
	return binary.BigEndian.Uint32(b)
}

func (r *Reader) Uint64() uint64 {
	b := r.take(8)
	if b == nil {
		return 0
	}
	return binary.BigEndian.Uint64(b)
}

func (r *Reader) Int16() int16 { return int16(r.Uint16()) }
func (r *Reader) Int32() int32 { return int32(r.Uint32()) }
func (r *Reader) Int64() int64 { return int64(r.Uint64()) }

func (r *Reader) Float32() float32 { return math.Float32frombits(r.Uint32()) }
func (r *Reader) Float64() float64 { return math.Float64frombits(r.Uint64()) }

// Bool reads one byte; any non-zero value is true.
func (r *Reader) Bool() bool { return r.Uint8() != 0 }

// String reads a u32 length prefix and that many bytes of UTF-8.
func (r *Reader) String() string {
	n := r.Uint32()
	if r.err != nil {
		return ""
	}
	if n > maxStringLen || int(n) > r.Remaining() {
		r.err = fmt.Errorf("string length %d exceeds remaining %d bytes: %w", n, r.Remaining(), ErrMalformed)
		return ""
	}
	b := r.take(int(n))
	if !utf8.Valid(b) {
		r.err = fmt.Errorf("string at offset %d is not UTF-8: %w", r.off-int(n), ErrMalformed)
		return ""
	}
	return string(b)
}

// Raw reads n bytes without copying them.
func (r *Reader) Raw(n int) []byte { return r.take(n) }

// Count reads a u32 element count and checks that count elements of
// elemSize bytes can still be present in the buffer.
func (r *Reader) Count(elemSize int) int {
	n := r.Uint32()
	if r.err != nil {
		return 0
	}
	if elemSize > 0 && uint64(n)*uint64(elemSize) > uint64(r.Remaining()) {
		r.err = fmt.Errorf("count %d x %d bytes exceeds remaining %d bytes: %w", n, elemSize, r.Remaining(), ErrMalformed)
		return 0
	}
	return int(n)
}

// Time reads a timestamp written by Writer.Time.
func (r *Reader) Time() time.Time {
	sec := r.Int64()
	nsec := r.Uint32()
	if r.err != nil {
		return time.Time{}
	}
	if nsec >= uint32(time.Second) {
		r.err = fmt.Errorf("timestamp nanoseconds %d out of range: %w", nsec, ErrMalformed)
		return time.Time{}
	}
	return time.Unix(sec, int64(nsec)).UTC()
}

// StringMap reads a map written by Writer.StringMap.
func (r *Reader) StringMap() map[string]string {
	n := r.Count(8)
	m := make(map[string]string, n)
	for i := 0; i < n && r.err == nil; i++ {
		k := r.String()
		m[k] = r.String()
	}
	return m
}

package payload

import "github.com/roach88/sidecar/internal/msg"

// ComplexInt16 is one I/Q sample.
type ComplexInt16 struct {
	I int16 `yaml:"i"`
	Q int16 `yaml:"q"`
}

// Element is the set of sample types a PRI message may carry.
type Element interface {
	bool | int16 | ComplexInt16 | int32 | float32
}

// elementCodec reads and writes one sample type.
type elementCodec[T Element] struct {
	size  int
	write func(*msg.Writer, T)
	read  func(*msg.Reader) T
}

var (
	boolElements = elementCodec[bool]{
		size:  1,
		write: func(w *msg.Writer, v bool) { w.Bool(v) },
		read:  func(r *msg.Reader) bool { return r.Bool() },
	}
	int16Elements = elementCodec[int16]{
		size:  2,
		write: func(w *msg.Writer, v int16) { w.Int16(v) },
		read:  func(r *msg.Reader) int16 { return r.Int16() },
	}
	complexElements = elementCodec[ComplexInt16]{
		size: 4,
		write: func(w *msg.Writer, v ComplexInt16) {
			w.Int16(v.I)
			w.Int16(v.Q)
		},
		read: func(r *msg.Reader) ComplexInt16 {
			return ComplexInt16{I: r.Int16(), Q: r.Int16()}
		},
	}
	int32Elements = elementCodec[int32]{
		size:  4,
		write: func(w *msg.Writer, v int32) { w.Int32(v) },
		read:  func(r *msg.Reader) int32 { return r.Int32() },
	}
	floatElements = elementCodec[float32]{
		size:  4,
		write: func(w *msg.Writer, v float32) { w.Float32(v) },
		read:  func(r *msg.Reader) float32 { return r.Float32() },
	}
)

func (ec elementCodec[T]) writeAll(w *msg.Writer, samples []T) {
	w.Uint32(uint32(len(samples)))
	for _, v := range samples {
		ec.write(w, v)
	}
}

func (ec elementCodec[T]) readAll(r *msg.Reader) []T {
	n := r.Count(ec.size)
	samples := make([]T, n)
	for i := range samples {
		samples[i] = ec.read(r)
	}
	return samples
}

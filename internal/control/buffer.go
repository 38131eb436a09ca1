package control

import "sync/atomic"

// Buffer is a handle on reference-counted bytes.
//
// Every handle must be released once. Releasing a handle more than once
// only counts the extra calls; the shared count drops once per handle.
type Buffer struct {
	shared   *sharedBytes
	released atomic.Int32
}

type sharedBytes struct {
	data   []byte
	refs   atomic.Int32
	onFree func()
}

// NewBuffer wraps data with a reference count of one. onFree, if not nil,
// runs when the last handle is released.
func NewBuffer(data []byte, onFree func()) *Buffer {
	s := &sharedBytes{data: data, onFree: onFree}
	s.refs.Store(1)
	return &Buffer{shared: s}
}

// Bytes returns the shared bytes. Callers must not modify them.
func (b *Buffer) Bytes() []byte { return b.shared.data }

// Len returns the number of bytes.
func (b *Buffer) Len() int { return len(b.shared.data) }

// Clone returns a new handle on the same bytes.
func (b *Buffer) Clone() *Buffer {
	b.shared.refs.Add(1)
	return &Buffer{shared: b.shared}
}

// Release gives up this handle.
func (b *Buffer) Release() {
	if b.released.Add(1) != 1 {
		return
	}
	if b.shared.refs.Add(-1) == 0 && b.shared.onFree != nil {
		b.shared.onFree()
	}
}

// ReleaseCount returns how many times Release was called on this handle.
func (b *Buffer) ReleaseCount() int { return int(b.released.Load()) }

// Refs returns the number of live handles on the shared bytes.
func (b *Buffer) Refs() int { return int(b.shared.refs.Load()) }

package mmap

import (
	"fmt"
	"sync/atomic"

	"github.com/hupe1980/compacta/internal/mem"
)

// Mapping is one raw memory reservation.
// It owns the underlying byte slice and is responsible for releasing it.
type Mapping struct {
	data   []byte
	size   int
	anon   bool
	closed atomic.Bool
	// unmap is the platform-specific release function; nil for heap buffers.
	unmap func([]byte) error
}

// MapAnon reserves size bytes of zeroed, read-write anonymous memory outside
// the Go heap.
func MapAnon(size int) (*Mapping, error) {
	if size <= 0 {
		return nil, fmt.Errorf("%w: %d", ErrInvalidSize, size)
	}

	data, unmapFunc, err := osMapAnon(size)
	if err != nil {
		return nil, fmt.Errorf("mmap: anonymous mapping of %d bytes: %w", size, err)
	}

	return &Mapping{
		data:  data,
		size:  size,
		anon:  true,
		unmap: unmapFunc,
	}, nil
}

// MapHeap reserves size zeroed bytes on the Go heap, aligned to
// mem.Alignment. Release is left to the garbage collector once Close drops
// the reference.
func MapHeap(size int) (*Mapping, error) {
	if size <= 0 {
		return nil, fmt.Errorf("%w: %d", ErrInvalidSize, size)
	}
	return &Mapping{
		data: mem.AllocAligned(size),
		size: size,
	}, nil
}

// Close releases the reservation. It is idempotent.
func (m *Mapping) Close() error {
	if m == nil || m.closed.Swap(true) {
		return nil
	}
	data := m.data
	m.data = nil
	if m.unmap != nil && data != nil {
		return m.unmap(data)
	}
	return nil
}

// Bytes returns the underlying byte slice, or nil once closed.
// Warning: accessing a slice obtained before Close after Close returns is
// undefined behavior for anonymous mappings (likely a crash).
func (m *Mapping) Bytes() []byte {
	if m.closed.Load() {
		return nil
	}
	return m.data
}

// Size returns the size of the reservation in bytes.
func (m *Mapping) Size() int {
	return m.size
}

// Anonymous reports whether the reservation lives outside the Go heap.
func (m *Mapping) Anonymous() bool {
	return m.anon
}

// Zero clears n bytes starting at off.
func (m *Mapping) Zero(off, n int) error {
	if m.closed.Load() {
		return ErrClosed
	}
	if off < 0 || n < 0 || off+n > m.size {
		return ErrOutOfBounds
	}
	clear(m.data[off : off+n])
	return nil
}

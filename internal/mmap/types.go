package mmap

import "errors"

var (
	// ErrClosed is returned when attempting to access a released mapping.
	ErrClosed = errors.New("mmap: mapping is closed")
	// ErrInvalidSize is returned when the requested reservation size is not positive.
	ErrInvalidSize = errors.New("mmap: invalid size")
	// ErrOutOfBounds is returned when attempting to access a range outside the mapping.
	ErrOutOfBounds = errors.New("mmap: out of bounds")
)

// Source acquires backing memory for new arenas.
type Source interface {
	Acquire(size int) (*Mapping, error)
}

// SourceFunc adapts a function to the Source interface.
type SourceFunc func(size int) (*Mapping, error)

// Acquire calls f(size).
func (f SourceFunc) Acquire(size int) (*Mapping, error) { return f(size) }

var (
	// Anon acquires anonymous off-heap mappings.
	Anon Source = SourceFunc(MapAnon)
	// Heap acquires Go heap buffers.
	Heap Source = SourceFunc(MapHeap)
)

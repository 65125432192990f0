package arena

import (
	"errors"
	"fmt"
	"slices"

	"github.com/hupe1980/compacta/internal/mmap"
)

// MemoryAcquirer is charged for every arena reservation.
type MemoryAcquirer interface {
	AcquireMemory(amount int64) error
	ReleaseMemory(amount int64)
}

var (
	// ErrInvalidCapacity is returned for a non-positive or oversized capacity.
	ErrInvalidCapacity = errors.New("arena: invalid capacity")
	// ErrInvalidID is returned for an id outside 1..MaxID.
	ErrInvalidID = errors.New("arena: invalid id")
)

// Arena is one contiguous reservation with a bump offset.
type Arena struct {
	id       uint32
	mapping  *mmap.Mapping
	buf      []byte
	capacity int
	used     int
	records  []*Record
	prev     *Arena
	next     *Arena
	acquirer MemoryAcquirer
}

// New reserves an arena of capacity bytes from src, charging acq first.
// acq may be nil.
func New(id uint32, capacity int, src mmap.Source, acq MemoryAcquirer) (*Arena, error) {
	if id == 0 || id > MaxID {
		return nil, fmt.Errorf("%w: %d", ErrInvalidID, id)
	}
	if capacity <= 0 || int64(capacity) > MaxCapacity {
		return nil, fmt.Errorf("%w: %d", ErrInvalidCapacity, capacity)
	}

	if acq != nil {
		if err := acq.AcquireMemory(int64(capacity)); err != nil {
			return nil, err
		}
	}

	mapping, err := src.Acquire(capacity)
	if err != nil {
		if acq != nil {
			acq.ReleaseMemory(int64(capacity))
		}
		return nil, err
	}

	return &Arena{
		id:       id,
		mapping:  mapping,
		buf:      mapping.Bytes(),
		capacity: capacity,
		acquirer: acq,
	}, nil
}

// ID returns the arena id encoded in its addresses.
func (a *Arena) ID() uint32 { return a.id }

// Base returns the address of offset 0.
func (a *Arena) Base() Addr { return MakeAddr(a.id, 0) }

// Capacity returns the reserved size in bytes.
func (a *Arena) Capacity() int { return a.capacity }

// Used returns the bump offset.
func (a *Arena) Used() int { return a.used }

// Available returns the bytes left above the bump offset.
func (a *Arena) Available() int { return a.capacity - a.used }

// Fits reports whether size more bytes can be bumped.
func (a *Arena) Fits(size int) bool {
	return size <= a.Available()
}

// Prev returns the arena created before this one.
func (a *Arena) Prev() *Arena { return a.prev }

// Next returns the arena created after this one.
func (a *Arena) Next() *Arena { return a.next }

// Link appends next after a in the chain.
func (a *Arena) Link(next *Arena) {
	a.next = next
	next.prev = a
}

// Records returns the live records in allocation order.
// The slice must not be modified.
func (a *Arena) Records() []*Record { return a.records }

// LiveBytes sums the sizes of live records.
func (a *Arena) LiveBytes() int {
	live := 0
	for _, r := range a.records {
		if r.Live() {
			live += r.Size
		}
	}
	return live
}

// Place bumps size bytes for rec and appends it to the live records.
// The caller must have checked Fits.
func (a *Arena) Place(rec *Record, size int) {
	rec.Offset = a.used
	rec.Size = size
	rec.Addr = a.Base() + Addr(rec.Offset)
	rec.Arena = a
	a.used += size
	a.records = append(a.records, rec)
}

// Find returns the index of the live record at addr, or -1.
func (a *Arena) Find(addr Addr) int {
	if addr == 0 {
		return -1
	}
	for i, r := range a.records {
		if r.Addr == addr {
			return i
		}
	}
	return -1
}

// Remove drops the record at index i.
//
// With compact set, every byte above the record slides down by its size and
// each later record's offset and address are rebased; onMove, if not nil,
// sees every rebased record with its previous address. Otherwise the freed
// range is zero-filled and becomes a hole. Remove returns the number of
// bytes moved.
func (a *Arena) Remove(i int, compact bool, onMove func(r *Record, old Addr)) int {
	rec := a.records[i]
	start, end := rec.Offset, rec.End()

	moved := 0
	if compact {
		moved = copy(a.buf[start:], a.buf[end:a.used])
		a.used -= rec.Size

		for j, other := range a.records {
			if j == i || other.Offset <= start {
				continue
			}
			old := other.Addr
			other.Offset -= rec.Size
			other.Addr -= Addr(rec.Size)
			if onMove != nil {
				onMove(other, old)
			}
		}
	} else {
		// Place keeps every record inside buf.
		clear(a.buf[start:end])
	}

	a.records = slices.Delete(a.records, i, i+1)
	return moved
}

// Bytes returns n bytes starting at offset.
func (a *Arena) Bytes(offset, n int) ([]byte, error) {
	if a.buf == nil {
		return nil, mmap.ErrClosed
	}
	if offset < 0 || n < 0 || offset+n > a.capacity {
		return nil, mmap.ErrOutOfBounds
	}
	return a.buf[offset : offset+n : offset+n], nil
}

// Zero clears n bytes starting at offset.
func (a *Arena) Zero(offset, n int) error {
	return a.mapping.Zero(offset, n)
}

// Anonymous reports whether the arena lives outside the Go heap.
func (a *Arena) Anonymous() bool {
	return a.mapping.Anonymous()
}

// Release returns the reservation. Calling it twice is a no-op.
func (a *Arena) Release() error {
	if a.buf == nil {
		return nil
	}
	err := a.mapping.Close()
	a.buf = nil
	a.records = nil
	if a.acquirer != nil {
		a.acquirer.ReleaseMemory(int64(a.capacity))
	}
	return err
}

// ReleaseChain releases head and every predecessor reachable through Prev,
// each exactly once, and unlinks them. It returns the first error.
func ReleaseChain(head *Arena) error {
	var firstErr error
	for a := head; a != nil; {
		prev := a.prev
		if err := a.Release(); err != nil && firstErr == nil {
			firstErr = fmt.Errorf("arena %d: %w", a.id, err)
		}
		a.prev, a.next = nil, nil
		a = prev
	}
	return firstErr
}

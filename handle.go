package compacta

import (
	"encoding/binary"
	"fmt"
	"unsafe"

	"github.com/hupe1980/compacta/internal/arena"
)

// counterSize is the size of the shared reference count that every handle
// family keeps inside the allocator.
const counterSize = 8

// Handle is a shared, reference-counted view of one allocation that stays
// valid while compaction moves the allocation around.
//
// A Handle resolves its address through the allocation's record on every
// access. The reference count is itself an 8-byte allocation, so it moves
// with compaction too. When the last Handle of a family is released, both
// the payload and the counter are deallocated.
//
// The zero Handle is released: it refers to nothing and all accessors return
// zero values.
type Handle[T any] struct {
	alloc   *Allocator
	payload *arena.Record
	counter *arena.Record
}

// NewHandle wraps the live allocation at addr in a Handle with a reference
// count of one.
//
// NewHandle panics with a *ContractViolation if addr is not the current
// address of a live allocation. It returns an error only when the counter
// itself cannot be allocated.
func NewHandle[T any](a *Allocator, addr Addr) (*Handle[T], error) {
	if !a.Active() {
		panic(violation("handle", addr, ErrNotInitialized))
	}

	ar, i := a.lookup(addr)
	if ar == nil {
		v := violation("handle", addr, a.unknown(addr))
		a.logger.LogViolation(v)
		panic(v)
	}
	payload := ar.Records()[i]

	counter, err := a.allocate(counterSize)
	if err != nil {
		return nil, fmt.Errorf("compacta: allocating handle counter: %w", err)
	}

	h := &Handle[T]{alloc: a, payload: payload, counter: counter}
	h.store(1)
	return h, nil
}

// AllocateHandle allocates room for one T and wraps it in a Handle.
// The memory is zeroed.
func AllocateHandle[T any](a *Allocator) (*Handle[T], error) {
	addr, err := a.AllocateZeroed(sizeOf[T]())
	if err != nil {
		return nil, err
	}
	h, err := NewHandle[T](a, addr)
	if err != nil {
		a.Deallocate(addr)
		return nil, err
	}
	return h, nil
}

// Valid reports whether h still refers to an allocation.
func (h *Handle[T]) Valid() bool {
	return h != nil && h.counter != nil
}

// Addr returns the current address of the payload, or the null address for
// a released handle. The result goes stale after the next compaction of the
// payload's arena.
func (h *Handle[T]) Addr() Addr {
	if !h.Valid() {
		return 0
	}
	return h.payload.Addr
}

// Size returns the payload size in bytes.
func (h *Handle[T]) Size() int {
	if !h.Valid() {
		return 0
	}
	return h.payload.Size
}

// Bytes returns the payload bytes at their current location.
// The slice must not be retained across a deallocation.
func (h *Handle[T]) Bytes() []byte {
	if !h.Valid() {
		return nil
	}
	return h.alloc.recordBytes(h.payload)
}

// Value returns the payload interpreted as a T.
//
// The pointer is only valid until the next deallocation; re-fetch it after
// any call that may compact. Value panics if the payload is smaller than T.
// T must not contain Go pointers.
func (h *Handle[T]) Value() *T {
	if !h.Valid() {
		return nil
	}
	need := sizeOf[T]()
	if need > h.payload.Size {
		panic(fmt.Sprintf("compacta: %d-byte payload cannot hold %d-byte value", h.payload.Size, need))
	}
	b := h.Bytes()
	return (*T)(unsafe.Pointer(unsafe.SliceData(b)))
}

// RefCount returns the number of live handles sharing the payload.
func (h *Handle[T]) RefCount() uint64 {
	if !h.Valid() {
		return 0
	}
	return h.load()
}

// Clone returns a new handle sharing the payload and increments the count.
// Cloning a released handle returns a released handle.
func (h *Handle[T]) Clone() *Handle[T] {
	if !h.Valid() {
		return &Handle[T]{}
	}
	h.store(h.load() + 1)
	return &Handle[T]{alloc: h.alloc, payload: h.payload, counter: h.counter}
}

// Assign makes h share src's payload. h's previous payload loses one
// reference and is freed if that was the last one. Assigning a handle to
// itself, or to another handle of the same family, changes nothing.
func (h *Handle[T]) Assign(src *Handle[T]) {
	if h.Valid() && src.Valid() && h.counter == src.counter {
		return
	}
	h.Release()
	if !src.Valid() {
		return
	}
	src.store(src.load() + 1)
	h.alloc, h.payload, h.counter = src.alloc, src.payload, src.counter
}

// Release drops h's reference. The last release deallocates the payload and
// the counter. Releasing twice is a no-op.
func (h *Handle[T]) Release() {
	if !h.Valid() {
		return
	}
	n := h.load() - 1
	if n == 0 {
		// Freeing the payload may move the counter; the record tracks it.
		h.alloc.Deallocate(h.payload.Addr)
		h.alloc.Deallocate(h.counter.Addr)
	} else {
		h.store(n)
	}
	h.payload, h.counter = nil, nil
}

func (h *Handle[T]) load() uint64 {
	return binary.LittleEndian.Uint64(h.alloc.recordBytes(h.counter))
}

func (h *Handle[T]) store(n uint64) {
	binary.LittleEndian.PutUint64(h.alloc.recordBytes(h.counter), n)
}

// recordBytes returns the bytes of a live record.
func (a *Allocator) recordBytes(r *arena.Record) []byte {
	if r.Arena == nil {
		panic(violation("handle", r.Addr, ErrStaleAddress))
	}
	b, err := r.Arena.Bytes(r.Offset, r.Size)
	if err != nil {
		panic(fmt.Sprintf("compacta: record %s: %v", r.Addr, err))
	}
	return b
}

func sizeOf[T any]() int {
	var zero T
	return int(unsafe.Sizeof(zero))
}

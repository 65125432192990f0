package compacta

import (
	"fmt"
	"unsafe"
)

// At returns the memory at addr interpreted as a T.
//
// The range [addr, addr+sizeof(T)) must lie inside the arena addr points
// into. The pointer goes stale after the next compaction of that arena, and
// T must not contain Go pointers: the garbage collector does not scan arenas.
func At[T any](a *Allocator, addr Addr) (*T, error) {
	size := sizeOf[T]()
	if size == 0 {
		return nil, fmt.Errorf("%w: zero-sized type", ErrInvalidSize)
	}
	b, err := a.Bytes(addr, size)
	if err != nil {
		return nil, err
	}
	return (*T)(unsafe.Pointer(unsafe.SliceData(b))), nil
}

// AllocateValue allocates zeroed room for one T and returns its address with
// a typed pointer to it.
func AllocateValue[T any](a *Allocator) (Addr, *T, error) {
	size := sizeOf[T]()
	if size == 0 {
		return 0, nil, fmt.Errorf("%w: zero-sized type", ErrInvalidSize)
	}
	addr, err := a.AllocateZeroed(size)
	if err != nil {
		return 0, nil, err
	}
	v, err := At[T](a, addr)
	if err != nil {
		return 0, nil, err
	}
	return addr, v, nil
}

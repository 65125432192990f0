package compacta

import (
	"errors"
	"fmt"
)

var (
	// ErrNotInitialized is returned when the allocator is not active.
	ErrNotInitialized = errors.New("compacta: allocator not initialized")

	// ErrInvalidSize is returned for allocation sizes that are not positive.
	ErrInvalidSize = errors.New("compacta: allocation size must be positive")

	// ErrOutOfMemory indicates a new arena could not be reserved.
	ErrOutOfMemory = errors.New("compacta: out of memory")

	// ErrArenaTooLarge indicates a request larger than a single arena can address.
	ErrArenaTooLarge = errors.New("compacta: allocation exceeds maximum arena size")

	// ErrUnknownAddress indicates an address not owned by any live allocation.
	ErrUnknownAddress = errors.New("compacta: address not owned by a live allocation")

	// ErrStaleAddress indicates an address that was freed or invalidated by compaction.
	ErrStaleAddress = errors.New("compacta: stale address")
)

// OutOfMemoryError reports a failed arena reservation.
//
// It always matches ErrOutOfMemory with errors.Is; the underlying cause
// (budget or operating system) can be accessed via errors.Unwrap.
type OutOfMemoryError struct {
	Requested int // bytes requested by the caller
	Capacity  int // capacity of the arena that could not be reserved
	cause     error
}

func (e *OutOfMemoryError) Error() string {
	return fmt.Sprintf("compacta: out of memory: reserving %d-byte arena for %d-byte allocation: %v",
		e.Capacity, e.Requested, e.cause)
}

func (e *OutOfMemoryError) Unwrap() []error { return []error{ErrOutOfMemory, e.cause} }

// ContractViolation is the panic value raised when a caller frees or wraps
// memory the allocator does not own, or frees it twice.
//
// It is a programming error, not a runtime condition: Deallocate and
// NewHandle panic with it rather than returning it.
type ContractViolation struct {
	Op   string // "deallocate" or "handle"
	Addr Addr
	err  error
}

func (e *ContractViolation) Error() string {
	return fmt.Sprintf("compacta: %s %s: %v", e.Op, e.Addr, e.err)
}

func (e *ContractViolation) Unwrap() error { return e.err }

func violation(op string, addr Addr, err error) *ContractViolation {
	return &ContractViolation{Op: op, Addr: addr, err: err}
}

package compacta

import "sync"

var (
	defaultMu    sync.Mutex
	defaultAlloc *Allocator
)

// Initialize activates the process-wide default allocator with the given
// default arena size and compaction mode. Further options are applied after
// those two.
//
// Initialize is idempotent: calling it while the default allocator is active
// does nothing and returns nil, even if the arguments differ.
func Initialize(defaultArenaSize int, compaction bool, opts ...Option) error {
	defaultMu.Lock()
	defer defaultMu.Unlock()

	if defaultAlloc.Active() {
		return nil
	}

	all := append([]Option{WithDefaultArenaSize(defaultArenaSize), WithCompaction(compaction)}, opts...)
	a, err := New(all...)
	if err != nil {
		return err
	}
	defaultAlloc = a
	return nil
}

// Shutdown releases every arena of the default allocator and returns it to
// the uninitialized state. It is a no-op when not initialized.
func Shutdown() error {
	defaultMu.Lock()
	defer defaultMu.Unlock()

	a := defaultAlloc
	defaultAlloc = nil
	return a.Close()
}

// Default returns the default allocator, or nil when not initialized.
func Default() *Allocator {
	defaultMu.Lock()
	defer defaultMu.Unlock()
	return defaultAlloc
}

// Allocate allocates size bytes from the default allocator.
func Allocate(size int) (Addr, error) {
	a := Default()
	if a == nil {
		return 0, ErrNotInitialized
	}
	return a.Allocate(size)
}

// Deallocate frees addr in the default allocator. It panics like
// (*Allocator).Deallocate.
func Deallocate(addr Addr) {
	a := Default()
	if a == nil {
		panic(violation("deallocate", addr, ErrNotInitialized))
	}
	a.Deallocate(addr)
}

// MakeHandle wraps addr, owned by the default allocator, in a Handle.
func MakeHandle[T any](addr Addr) (*Handle[T], error) {
	a := Default()
	if a == nil {
		panic(violation("handle", addr, ErrNotInitialized))
	}
	return NewHandle[T](a, addr)
}

// TotalReserved returns the bytes reserved by the default allocator.
func TotalReserved() int64 {
	return Default().TotalReserved()
}

// FragmentationPercent returns the fragmentation of the default allocator.
func FragmentationPercent() float64 {
	return Default().FragmentationPercent()
}

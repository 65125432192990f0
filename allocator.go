package compacta

import (
	"errors"
	"fmt"
	"time"

	"github.com/hupe1980/compacta/internal/arena"
	"github.com/hupe1980/compacta/internal/resource"
)

// Addr is a raw address returned by Allocate.
//
// It identifies the owning arena and the byte offset inside it. A raw
// address is only valid until the next compacting free in the same arena
// moves the bytes behind it; use a Handle to follow relocations.
type Addr = arena.Addr

var errArenaIDsExhausted = errors.New("arena id space exhausted")

type counters struct {
	allocations   int64
	deallocations int64
	compactions   int64
	bytesMoved    int64
	arenasCreated int64
}

// Allocator is a compacting arena allocator.
//
// Allocator is not safe for concurrent use; callers sharing one across
// goroutines must provide their own locking.
type Allocator struct {
	opts options

	head    *arena.Arena // newest arena; Next is nil
	current *arena.Arena // arena that served the last allocation
	byID    map[uint32]*arena.Arena
	nextID  uint32

	ledger *arena.Ledger
	budget *resource.Controller
	stale  *staleTracker

	logger      *Logger
	metrics     MetricsCollector
	observeFrag bool

	counters counters
	active   bool
}

// New creates an active allocator with its first arena and ledger chunk in
// place.
func New(optFns ...Option) (*Allocator, error) {
	o := applyOptions(optFns)

	a := &Allocator{
		opts:    o,
		byID:    make(map[uint32]*arena.Arena),
		nextID:  1,
		ledger:  arena.NewLedger(),
		budget:  resource.NewController(resource.Config{MemoryLimitBytes: o.memoryLimit}),
		logger:  o.logger.WithComponent("allocator"),
		metrics: o.metricsCollector,
	}
	if o.staleTracking {
		a.stale = newStaleTracker()
	}
	_, noop := o.metricsCollector.(NoopMetricsCollector)
	a.observeFrag = !noop || o.fragmentationWarn > 0

	first, err := a.createArena(o.defaultArenaSize, 0)
	if err != nil {
		a.ledger.Release()
		return nil, err
	}
	a.current = first
	a.active = true

	a.logger.LogInitialize(o.defaultArenaSize, o.compaction, first.Anonymous())
	return a, nil
}

// Active reports whether the allocator has not been closed.
func (a *Allocator) Active() bool {
	return a != nil && a.active
}

// Compaction reports whether frees compact their arena.
func (a *Allocator) Compaction() bool {
	return a.opts.compaction
}

// DefaultArenaSize returns the capacity used for new arenas.
func (a *Allocator) DefaultArenaSize() int {
	return a.opts.defaultArenaSize
}

// Allocate reserves size bytes and returns their raw address.
//
// The bytes are not cleared; use AllocateZeroed when the contents matter.
// A failed arena reservation is reported as an *OutOfMemoryError matching
// ErrOutOfMemory.
func (a *Allocator) Allocate(size int) (Addr, error) {
	start := time.Now()

	var addr Addr
	rec, err := a.allocate(size)
	if err == nil {
		addr = rec.Addr
	}

	a.metrics.RecordAllocate(size, time.Since(start), err)
	a.logger.LogAllocate(size, addr, err)
	return addr, err
}

// AllocateZeroed is Allocate followed by clearing the returned range.
func (a *Allocator) AllocateZeroed(size int) (Addr, error) {
	addr, err := a.Allocate(size)
	if err != nil {
		return 0, err
	}
	if err := a.byID[addr.ArenaID()].Zero(addr.Offset(), size); err != nil {
		return 0, err
	}
	return addr, nil
}

func (a *Allocator) allocate(size int) (*arena.Record, error) {
	if !a.Active() {
		return nil, ErrNotInitialized
	}
	if size <= 0 {
		return nil, fmt.Errorf("%w: %d", ErrInvalidSize, size)
	}
	if int64(size) > arena.MaxCapacity {
		return nil, fmt.Errorf("%w: %d bytes", ErrArenaTooLarge, size)
	}

	rec := a.ledger.Next()

	target := a.current
	if !target.Fits(size) {
		target = a.searchOutward(size)
		if target == nil {
			ar, err := a.createArena(max(a.opts.defaultArenaSize, size), size)
			if err != nil {
				a.ledger.Retire(rec)
				return nil, err
			}
			target = ar
		}
		a.current = target
	}

	target.Place(rec, size)
	a.counters.allocations++
	a.stale.revive(rec.Addr)
	return rec, nil
}

// searchOutward looks for the arena nearest to the current one that can
// take size more bytes, alternating between the predecessor and successor
// side: prev(1), next(1), prev(2), next(2), ...
func (a *Allocator) searchOutward(size int) *arena.Arena {
	back, fwd := a.current.Prev(), a.current.Next()
	for back != nil || fwd != nil {
		if back != nil {
			if back.Fits(size) {
				return back
			}
			back = back.Prev()
		}
		if fwd != nil {
			if fwd.Fits(size) {
				return fwd
			}
			fwd = fwd.Next()
		}
	}
	return nil
}

// createArena reserves a new arena and links it at the head of the chain.
func (a *Allocator) createArena(capacity, requested int) (*arena.Arena, error) {
	if int64(capacity) > arena.MaxCapacity {
		return nil, fmt.Errorf("%w: %d bytes", ErrArenaTooLarge, capacity)
	}
	if a.nextID > arena.MaxID {
		return nil, &OutOfMemoryError{Requested: requested, Capacity: capacity, cause: errArenaIDsExhausted}
	}

	ar, err := arena.New(a.nextID, capacity, a.opts.source, a.budget)
	if err != nil {
		return nil, &OutOfMemoryError{Requested: requested, Capacity: capacity, cause: err}
	}
	a.nextID++
	a.byID[ar.ID()] = ar

	if a.head != nil {
		a.head.Link(ar)
	}
	a.head = ar

	a.counters.arenasCreated++
	a.metrics.RecordArenaCreated(capacity)
	a.logger.LogArenaCreated(ar.ID(), capacity, requested)
	return ar, nil
}

// Deallocate frees the allocation whose current address is addr.
//
// With compaction enabled, every later allocation in the same arena moves
// down by the freed size; Handles follow, raw addresses do not.
//
// Deallocate panics with a *ContractViolation when addr is not the current
// address of a live allocation (a foreign pointer, a double free or a raw
// address invalidated by compaction).
func (a *Allocator) Deallocate(addr Addr) {
	if v := a.free(addr); v != nil {
		a.logger.LogViolation(v)
		panic(v)
	}
}

// TryDeallocate is Deallocate for addresses of uncertain origin: it returns
// the *ContractViolation instead of panicking.
func (a *Allocator) TryDeallocate(addr Addr) error {
	if v := a.free(addr); v != nil {
		return v
	}
	return nil
}

func (a *Allocator) free(addr Addr) *ContractViolation {
	if !a.Active() {
		return violation("deallocate", addr, ErrNotInitialized)
	}

	ar, i := a.lookup(addr)
	if ar == nil {
		return violation("deallocate", addr, a.unknown(addr))
	}

	start := time.Now()
	rec := ar.Records()[i]
	size := rec.Size

	rebased := 0
	var movedRecs []*arena.Record
	var oldAddrs []Addr
	moved := ar.Remove(i, a.opts.compaction, func(r *arena.Record, old Addr) {
		rebased++
		if a.stale != nil {
			movedRecs = append(movedRecs, r)
			oldAddrs = append(oldAddrs, old)
		}
	})
	a.ledger.Retire(rec)

	if a.stale != nil {
		a.stale.invalidate(addr)
		for _, old := range oldAddrs {
			a.stale.invalidate(old)
		}
		for _, r := range movedRecs {
			a.stale.revive(r.Addr)
		}
	}

	a.counters.deallocations++
	if a.opts.compaction {
		a.counters.compactions++
		a.counters.bytesMoved += int64(moved)
	}

	a.metrics.RecordDeallocate(size, moved, time.Since(start))
	a.logger.LogDeallocate(addr, size, moved, rebased)

	if a.observeFrag {
		pct := a.FragmentationPercent()
		a.metrics.RecordFragmentation(pct)
		a.logger.LogFragmentation(pct, a.opts.fragmentationWarn)
	}
	return nil
}

// lookup finds the live record whose current address is addr, scanning
// arenas from the head through Prev and each arena's records in allocation
// order. The first match wins. The null address never matches.
func (a *Allocator) lookup(addr Addr) (*arena.Arena, int) {
	if addr.IsNil() {
		return nil, -1
	}
	for ar := a.head; ar != nil; ar = ar.Prev() {
		if i := ar.Find(addr); i >= 0 {
			return ar, i
		}
	}
	return nil, -1
}

// unknown explains why addr has no owner.
func (a *Allocator) unknown(addr Addr) error {
	if a.stale.contains(addr) {
		return fmt.Errorf("%w: %w", ErrUnknownAddress, ErrStaleAddress)
	}
	return ErrUnknownAddress
}

// Close releases every arena and ledger chunk. Outstanding addresses and
// Handles become invalid. Close is idempotent.
func (a *Allocator) Close() error {
	if !a.Active() {
		return nil
	}

	arenas := len(a.byID)
	reserved := a.TotalReserved()
	for _, ar := range a.byID {
		a.metrics.RecordArenaReleased(ar.Capacity())
	}

	err := arena.ReleaseChain(a.head)
	a.ledger.Release()

	a.head, a.current = nil, nil
	a.byID = nil
	a.stale = nil
	a.active = false

	a.logger.LogShutdown(arenas, reserved, err)
	return err
}

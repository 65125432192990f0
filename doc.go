// Package compacta provides a compacting arena allocator for Go programs that
// manage raw byte buffers outside the garbage collector.
//
// Memory is carved out of large arenas with a bump pointer. With compaction
// enabled (the default), freeing an allocation slides every later allocation
// of the same arena down over the hole, so arenas stay packed. Raw addresses
// therefore move; reference-counted Handles follow them. WithCompaction(false)
// leaves freed ranges as zero-filled holes instead.
//
// # Quick Start
//
//	a, err := compacta.New(compacta.WithDefaultArenaSize(10 << 20))
//	if err != nil { ... }
//	defer a.Close()
//
//	addr, _ := a.Allocate(2 << 20)
//	h, _ := compacta.NewHandle[[2 << 20]byte](a, addr)
//	defer h.Release()
//
//	copy(h.Bytes(), data) // always the current location
//
// # Addresses and Handles
//
// Allocate returns an Addr, a raw address made of an arena id and a byte
// offset. A raw address is only valid until the next compacting free in the
// same arena. A Handle resolves the address through the allocation's record
// on every access, so it stays valid for as long as any Handle of the same
// family is alive:
//
//	h2 := h.Clone()   // count 2
//	h.Release()       // count 1
//	v := h2.Value()   // *T at the current address
//	h2.Release()      // count 0: payload and counter are freed
//
// Pointers returned by Value, Bytes and At are raw views; re-fetch them after
// any deallocation.
//
// # Compaction
//
// Compaction is enabled by default. Disable it with WithCompaction(false) to
// keep addresses stable; freed ranges are then zero-filled and never reused,
// which shows up in FragmentationPercent.
//
// # Contract Violations
//
// Freeing an address that is not the current address of a live allocation
// (a foreign address, a double free, or a raw address invalidated by
// compaction) is a programming error. Deallocate panics with a
// *ContractViolation; TryDeallocate returns it instead. Enable
// WithStaleTracking while debugging so Check and the violation can tell a
// stale address from a foreign one.
//
// # Default Allocator
//
// A process-wide allocator is available through Initialize, Allocate,
// Deallocate, MakeHandle and Shutdown:
//
//	_ = compacta.Initialize(10_000_000, true)
//	defer compacta.Shutdown()
//
// # Observability
//
// WithLogger configures structured logging via log/slog. WithMetricsCollector
// receives per-operation measurements; see BasicMetricsCollector and the
// promcollector package. Stats and Layout snapshot the allocator; the report
// package writes layouts to disk.
//
// # Thread Safety
//
// An Allocator is not safe for concurrent use. Serialize access externally.
package compacta

package compacta

import (
	"fmt"
)

// Stats is a point-in-time summary of an allocator.
type Stats struct {
	Arenas        int   `json:"arenas"`
	TotalReserved int64 `json:"total_reserved"`
	UsedBytes     int64 `json:"used_bytes"`
	LiveBytes     int64 `json:"live_bytes"`
	LiveRecords   int   `json:"live_records"`

	LedgerChunks int `json:"ledger_chunks"`
	LedgerSlots  int `json:"ledger_slots"`
	RetiredSlots int `json:"retired_slots"`

	Allocations   int64 `json:"allocations"`
	Deallocations int64 `json:"deallocations"`
	Compactions   int64 `json:"compactions"`
	BytesMoved    int64 `json:"bytes_moved"`
	ArenasCreated int64 `json:"arenas_created"`

	MemoryLimit  int64 `json:"memory_limit,omitempty"`
	PeakReserved int64 `json:"peak_reserved"`
	Rejected     int64 `json:"rejected_reservations"`

	FragmentationPercent float64 `json:"fragmentation_percent"`
	StaleAddresses       uint64  `json:"stale_addresses,omitempty"`
}

// RecordLayout describes one live allocation.
type RecordLayout struct {
	Slot   int  `json:"slot"`
	Addr   Addr `json:"addr"`
	Offset int  `json:"offset"`
	Size   int  `json:"size"`
}

// ArenaLayout describes one arena and its live allocations in allocation
// order.
type ArenaLayout struct {
	ID        uint32         `json:"id"`
	Capacity  int            `json:"capacity"`
	Used      int            `json:"used"`
	LiveBytes int            `json:"live_bytes"`
	Current   bool           `json:"current,omitempty"`
	Records   []RecordLayout `json:"records"`
}

// Layout is a snapshot of every arena, oldest first.
type Layout struct {
	Compaction       bool          `json:"compaction"`
	DefaultArenaSize int           `json:"default_arena_size"`
	Arenas           []ArenaLayout `json:"arenas"`
}

// TotalReserved returns the sum of all arena capacities.
// It never decreases while the allocator is active.
func (a *Allocator) TotalReserved() int64 {
	if !a.Active() {
		return 0
	}
	// Every arena is charged to the budget before it is mapped.
	return a.budget.MemoryUsage()
}

// FragmentationPercent returns the share of reserved memory that is wasted
// inside the used prefix of the arenas, in [0, 100].
//
// For each arena the live fraction is live bytes over used bytes (1 for an
// empty arena); the fractions are weighted by capacity. With compaction
// enabled every arena stays fully packed and the result is 0.
func (a *Allocator) FragmentationPercent() float64 {
	total := a.TotalReserved()
	if total == 0 {
		return 0
	}

	// Summing frac*capacity and dividing once keeps the all-live case exact.
	var weighted float64
	for ar := a.head; ar != nil; ar = ar.Prev() {
		frac := 1.0
		if used := ar.Used(); used > 0 {
			frac = float64(ar.LiveBytes()) / float64(used)
		}
		weighted += frac * float64(ar.Capacity())
	}

	pct := (1 - weighted/float64(total)) * 100
	return min(max(pct, 0), 100)
}

// Stats returns a summary of the allocator.
func (a *Allocator) Stats() Stats {
	if !a.Active() {
		return Stats{}
	}

	s := Stats{
		Allocations:          a.counters.allocations,
		Deallocations:        a.counters.deallocations,
		Compactions:          a.counters.compactions,
		BytesMoved:           a.counters.bytesMoved,
		ArenasCreated:        a.counters.arenasCreated,
		MemoryLimit:          a.budget.MemoryLimit(),
		PeakReserved:         a.budget.MemoryPeak(),
		Rejected:             a.budget.Rejected(),
		FragmentationPercent: a.FragmentationPercent(),
		StaleAddresses:       a.stale.count(),
	}
	for ar := a.head; ar != nil; ar = ar.Prev() {
		s.Arenas++
		s.TotalReserved += int64(ar.Capacity())
		s.UsedBytes += int64(ar.Used())
		s.LiveBytes += int64(ar.LiveBytes())
		s.LiveRecords += len(ar.Records())
	}

	ls := a.ledger.Stats()
	s.LedgerChunks = ls.Chunks
	s.LedgerSlots = ls.Issued
	s.RetiredSlots = ls.Retired
	return s
}

// Layout returns a snapshot of every arena and its live allocations.
func (a *Allocator) Layout() Layout {
	if !a.Active() {
		return Layout{}
	}

	l := Layout{
		Compaction:       a.opts.compaction,
		DefaultArenaSize: a.opts.defaultArenaSize,
	}
	for ar := a.head; ar != nil; ar = ar.Prev() {
		al := ArenaLayout{
			ID:        ar.ID(),
			Capacity:  ar.Capacity(),
			Used:      ar.Used(),
			LiveBytes: ar.LiveBytes(),
			Current:   ar == a.current,
			Records:   make([]RecordLayout, 0, len(ar.Records())),
		}
		for _, r := range ar.Records() {
			al.Records = append(al.Records, RecordLayout{
				Slot:   r.Slot(),
				Addr:   r.Addr,
				Offset: r.Offset,
				Size:   r.Size,
			})
		}
		l.Arenas = append(l.Arenas, al)
	}

	// Oldest first.
	for i, j := 0, len(l.Arenas)-1; i < j; i, j = i+1, j-1 {
		l.Arenas[i], l.Arenas[j] = l.Arenas[j], l.Arenas[i]
	}
	return l
}

// Bytes returns n bytes starting at addr. The range must lie inside the
// arena addr points into; it need not match an allocation boundary.
func (a *Allocator) Bytes(addr Addr, n int) ([]byte, error) {
	if !a.Active() {
		return nil, ErrNotInitialized
	}
	ar, ok := a.byID[addr.ArenaID()]
	if !ok || addr.IsNil() {
		return nil, fmt.Errorf("%w: %s", ErrUnknownAddress, addr)
	}
	b, err := ar.Bytes(addr.Offset(), n)
	if err != nil {
		return nil, fmt.Errorf("compacta: %s+%d: %w", addr, n, err)
	}
	return b, nil
}

// Check reports whether addr is the current address of a live allocation.
// It returns nil if so, an error matching ErrStaleAddress if addr was
// invalidated by a free or a compaction (only with stale tracking), and
// ErrUnknownAddress otherwise.
func (a *Allocator) Check(addr Addr) error {
	if !a.Active() {
		return ErrNotInitialized
	}
	if ar, _ := a.lookup(addr); ar != nil {
		return nil
	}
	if a.stale.contains(addr) {
		return fmt.Errorf("%w: %s", ErrStaleAddress, addr)
	}
	return fmt.Errorf("%w: %s", ErrUnknownAddress, addr)
}

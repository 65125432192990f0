package arena

import (
	"github.com/bits-and-blooms/bitset"
)

// ChunkCapacity is the number of records held by one ledger chunk.
const ChunkCapacity = 100

// Chunk is a fixed block of record storage.
// Only the newest chunk of a ledger accepts new records.
type Chunk struct {
	records [ChunkCapacity]Record
	count   int
	live    *bitset.BitSet
	index   int
	prev    *Chunk
}

// Full reports whether every slot of the chunk has been handed out.
func (c *Chunk) Full() bool {
	return c.count >= ChunkCapacity
}

// LedgerStats summarizes ledger usage.
type LedgerStats struct {
	Chunks  int // chunks ever created
	Issued  int // slots handed out
	Live    int // slots whose record is still live
	Retired int // slots permanently retired
}

// Ledger is the append-only chain of record chunks.
type Ledger struct {
	current *Chunk
	chunks  int
	issued  int
	retired int
}

// NewLedger returns a ledger with its first chunk in place.
func NewLedger() *Ledger {
	l := &Ledger{}
	l.grow()
	return l
}

func (l *Ledger) grow() {
	l.current = &Chunk{
		live:  bitset.New(ChunkCapacity),
		index: l.chunks,
		prev:  l.current,
	}
	l.chunks++
}

// Next hands out a fresh record slot, starting a new chunk when the current
// one is full.
func (l *Ledger) Next() *Record {
	if l.current.Full() {
		l.grow()
	}

	c := l.current
	r := &c.records[c.count]
	*r = Record{chunk: c, slot: c.count}
	c.live.Set(uint(c.count))
	c.count++
	l.issued++
	return r
}

// Retire marks a record dead. Its slot is never reused.
func (l *Ledger) Retire(r *Record) {
	if r == nil || r.chunk == nil || !r.chunk.live.Test(uint(r.slot)) {
		return
	}
	r.Addr = 0
	r.Arena = nil
	r.chunk.live.Clear(uint(r.slot))
	l.retired++
}

// Stats returns a snapshot of the ledger counters.
func (l *Ledger) Stats() LedgerStats {
	live := 0
	for c := l.current; c != nil; c = c.prev {
		live += int(c.live.Count())
	}
	return LedgerStats{
		Chunks:  l.chunks,
		Issued:  l.issued,
		Live:    live,
		Retired: l.retired,
	}
}

// Release drops every chunk, newest first.
func (l *Ledger) Release() {
	for c := l.current; c != nil; {
		prev := c.prev
		c.prev = nil
		c = prev
	}
	l.current = nil
}

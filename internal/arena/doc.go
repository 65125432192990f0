// Package arena provides the arena chain and record ledger behind the
// compacting allocator.
//
// # Arenas
//
// An Arena is one contiguous reservation with a bump offset. It owns the
// records placed in it, in allocation order, and is linked to the arenas
// created before (Prev) and after (Next) it. Removing a record either slides
// every later byte down to close the gap (compaction) or zero-fills the hole.
//
// # Ledger
//
// Records live in a Ledger of fixed-size chunks that is only ever appended
// to. A retired slot is never handed out again; the metadata growth is the
// price of keeping every *Record stable for the lifetime of the allocator.
//
// # Addresses
//
// An Addr packs the owning arena id into the high 24 bits and the byte
// offset into the low 40 bits. Id 0 is never issued, so the zero Addr is the
// null address.
package arena

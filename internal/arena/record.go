package arena

// Record is the metadata of one allocation.
//
// Addr and Offset move when the owning arena compacts; Size never changes.
// A retired record keeps its slot in the ledger with Addr set to zero.
type Record struct {
	Addr   Addr
	Offset int
	Size   int
	Arena  *Arena

	chunk *Chunk
	slot  int
}

// Live reports whether the record still owns bytes.
func (r *Record) Live() bool {
	return r.Addr != 0
}

// Slot returns the ledger-wide slot number of the record.
func (r *Record) Slot() int {
	return r.chunk.index*ChunkCapacity + r.slot
}

// End returns the offset one past the record's last byte.
func (r *Record) End() int {
	return r.Offset + r.Size
}

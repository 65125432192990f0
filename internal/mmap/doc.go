// Package mmap acquires and releases the raw memory reservations that back
// allocator arenas.
//
// # Overview
//
// Each arena owns one contiguous buffer. Buffers are obtained either as
// anonymous read-write mappings (off-heap, invisible to the garbage
// collector) or, where mapping is unavailable or undesired, as ordinary Go
// heap slices. Both kinds are returned as a *Mapping so callers release them
// the same way.
//
// # Usage
//
//	m, err := mmap.MapAnon(1 << 20)
//	if err != nil { ... }
//	defer m.Close()
//
//	buf := m.Bytes()
//	m.Zero(128, 64) // clear buf[128:192]
//
// # Platform Support
//
//   - Unix (Linux, macOS, BSD): mmap(2) with MAP_ANON|MAP_PRIVATE
//   - Windows: VirtualAlloc with MEM_RESERVE|MEM_COMMIT
//   - Other platforms: MapAnon falls back to the Go heap
//
// # Thread Safety
//
// Close is idempotent. Callers must not touch Bytes() after Close returns.
package mmap

// Package mem provides aligned heap allocation for arena buffers.
//
// Anonymous mappings are page aligned by the operating system. Heap-backed
// arenas use AllocAligned so that offset 0 of every arena starts on a cache
// line, keeping typed views of arena memory naturally aligned.
package mem

package compacta

import (
	"github.com/RoaringBitmap/roaring/v2/roaring64"
)

// staleTracker remembers addresses that were handed out and later
// invalidated by a free or a compaction. A nil tracker tracks nothing.
type staleTracker struct {
	bm *roaring64.Bitmap
}

func newStaleTracker() *staleTracker {
	return &staleTracker{bm: roaring64.New()}
}

// invalidate marks addr stale.
func (s *staleTracker) invalidate(addr Addr) {
	if s == nil || addr.IsNil() {
		return
	}
	s.bm.Add(uint64(addr))
}

// revive clears addr after it was handed out again.
func (s *staleTracker) revive(addr Addr) {
	if s == nil {
		return
	}
	s.bm.Remove(uint64(addr))
}

func (s *staleTracker) contains(addr Addr) bool {
	return s != nil && s.bm.Contains(uint64(addr))
}

func (s *staleTracker) count() uint64 {
	if s == nil {
		return 0
	}
	return s.bm.GetCardinality()
}

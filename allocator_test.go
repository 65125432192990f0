package compacta_test

import (
	"bytes"
	"errors"
	"math"
	"math/rand/v2"
	"testing"

	"github.com/hupe1980/compacta"
	"github.com/hupe1980/compacta/internal/arena"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newAllocator(t *testing.T, opts ...compacta.Option) *compacta.Allocator {
	t.Helper()
	a, err := compacta.New(append([]compacta.Option{compacta.WithHeapMemory()}, opts...)...)
	require.NoError(t, err)
	t.Cleanup(func() { _ = a.Close() })
	return a
}

// requireViolation runs fn and returns the *ContractViolation it panics with.
func requireViolation(t *testing.T, fn func()) (v *compacta.ContractViolation) {
	t.Helper()
	defer func() {
		r := recover()
		require.NotNil(t, r, "expected a contract violation panic")
		var ok bool
		v, ok = r.(*compacta.ContractViolation)
		require.True(t, ok, "panic value is %T, want *ContractViolation", r)
	}()
	fn()
	return nil
}

func fill(b []byte, v byte) {
	for i := range b {
		b[i] = v
	}
}

func TestNew_Defaults(t *testing.T) {
	a := newAllocator(t)

	assert.True(t, a.Active())
	assert.True(t, a.Compaction())
	assert.Equal(t, compacta.DefaultArenaSize, a.DefaultArenaSize())
	assert.Equal(t, int64(compacta.DefaultArenaSize), a.TotalReserved())

	stats := a.Stats()
	assert.Equal(t, 1, stats.Arenas)
	assert.Equal(t, 1, stats.LedgerChunks)
	assert.Zero(t, stats.LiveRecords)
}

func TestNew_AnonymousMemory(t *testing.T) {
	a, err := compacta.New(compacta.WithDefaultArenaSize(4096))
	require.NoError(t, err)
	defer a.Close()

	addr, err := a.Allocate(64)
	require.NoError(t, err)

	b, err := a.Bytes(addr, 64)
	require.NoError(t, err)
	fill(b, 0xAB)
	assert.Equal(t, bytes.Repeat([]byte{0xAB}, 64), b)
}

func TestNew_MemoryLimitTooSmall(t *testing.T) {
	_, err := compacta.New(
		compacta.WithHeapMemory(),
		compacta.WithDefaultArenaSize(1024),
		compacta.WithMemoryLimit(512),
	)
	require.Error(t, err)
	assert.ErrorIs(t, err, compacta.ErrOutOfMemory)

	var oom *compacta.OutOfMemoryError
	require.ErrorAs(t, err, &oom)
	assert.Equal(t, 1024, oom.Capacity)
}

func TestAllocate_InvalidSize(t *testing.T) {
	a := newAllocator(t)

	for _, size := range []int{0, -1} {
		addr, err := a.Allocate(size)
		assert.ErrorIs(t, err, compacta.ErrInvalidSize)
		assert.True(t, addr.IsNil())
	}
	assert.Zero(t, a.Stats().LedgerSlots)
}

func TestAllocate_LargerThanAddressableArena(t *testing.T) {
	if math.MaxInt <= arena.MaxCapacity {
		t.Skip("int cannot exceed the arena offset range")
	}
	a := newAllocator(t)

	tooLarge := arena.MaxCapacity + 1
	_, err := a.Allocate(int(tooLarge))
	assert.ErrorIs(t, err, compacta.ErrArenaTooLarge)
	assert.Zero(t, a.Stats().LedgerSlots)
}

func TestAllocate_AfterClose(t *testing.T) {
	a := newAllocator(t)
	require.NoError(t, a.Close())
	require.NoError(t, a.Close())

	_, err := a.Allocate(8)
	assert.ErrorIs(t, err, compacta.ErrNotInitialized)
	assert.Zero(t, a.TotalReserved())
	assert.Zero(t, a.FragmentationPercent())
}

func TestAllocate_BumpsWithinArena(t *testing.T) {
	a := newAllocator(t, compacta.WithDefaultArenaSize(1024))

	first, err := a.Allocate(100)
	require.NoError(t, err)
	second, err := a.Allocate(28)
	require.NoError(t, err)

	assert.Equal(t, first.ArenaID(), second.ArenaID())
	assert.Equal(t, 0, first.Offset())
	assert.Equal(t, 100, second.Offset())
	assert.Equal(t, int64(1024), a.TotalReserved())
}

func TestAllocate_OversizedGetsDedicatedArena(t *testing.T) {
	a := newAllocator(t, compacta.WithDefaultArenaSize(1024))

	addr, err := a.Allocate(4096)
	require.NoError(t, err)

	layout := a.Layout()
	require.Len(t, layout.Arenas, 2)
	assert.Equal(t, 4096, layout.Arenas[1].Capacity)
	assert.Equal(t, layout.Arenas[1].ID, addr.ArenaID())
	assert.True(t, layout.Arenas[1].Current)
	assert.Equal(t, int64(1024+4096), a.TotalReserved())

	var capacities int64
	for _, ar := range layout.Arenas {
		capacities += int64(ar.Capacity)
	}
	assert.Equal(t, capacities, a.TotalReserved())
	assert.Equal(t, capacities, a.Stats().TotalReserved)
}

func TestAllocate_OutOfMemoryIsRecoverable(t *testing.T) {
	a := newAllocator(t,
		compacta.WithDefaultArenaSize(1024),
		compacta.WithMemoryLimit(2048),
	)

	_, err := a.Allocate(1024)
	require.NoError(t, err)
	_, err = a.Allocate(1024)
	require.NoError(t, err)

	_, err = a.Allocate(16)
	require.Error(t, err)
	assert.ErrorIs(t, err, compacta.ErrOutOfMemory)

	stats := a.Stats()
	assert.Equal(t, 2, stats.Arenas)
	assert.Equal(t, int64(1), stats.Rejected)
	// The slot taken for the failed allocation is retired.
	assert.Equal(t, 1, stats.RetiredSlots)

	// Freeing with compaction makes room again.
	a.Deallocate(a.Layout().Arenas[0].Records[0].Addr)
	_, err = a.Allocate(16)
	assert.NoError(t, err)
}

// The search for free space must look at both neighbours of the current
// arena, nearest first, before creating a new arena.
func TestAllocate_SearchesBothDirections(t *testing.T) {
	a := newAllocator(t, compacta.WithDefaultArenaSize(100))

	_, err := a.Allocate(100) // A1 full
	require.NoError(t, err)
	a2, err := a.Allocate(100) // A2 full
	require.NoError(t, err)
	_, err = a.Allocate(100) // A3 full
	require.NoError(t, err)
	_, err = a.Allocate(50) // A4 half full, current
	require.NoError(t, err)

	// Open A2 and refill it so A2 becomes current with A1 and A3 full.
	a.Deallocate(a2)
	refill, err := a.Allocate(100)
	require.NoError(t, err)
	require.Equal(t, uint32(2), refill.ArenaID())

	// Only A4, two steps forward from A2, has room.
	addr, err := a.Allocate(50)
	require.NoError(t, err)
	assert.Equal(t, uint32(4), addr.ArenaID())
	assert.Equal(t, 50, addr.Offset())

	layout := a.Layout()
	assert.Len(t, layout.Arenas, 4)
	assert.True(t, layout.Arenas[3].Current)
}

func TestAllocate_PrefersPredecessorAtEqualDistance(t *testing.T) {
	a := newAllocator(t, compacta.WithDefaultArenaSize(100))

	a1, err := a.Allocate(100)
	require.NoError(t, err)
	a2, err := a.Allocate(100)
	require.NoError(t, err)
	_, err = a.Allocate(100)
	require.NoError(t, err)

	// Make A2 current again, then open both of its neighbours.
	a.Deallocate(a2)
	_, err = a.Allocate(100)
	require.NoError(t, err)
	a.Deallocate(a1)
	a3 := a.Layout().Arenas[2].Records[0].Addr
	a.Deallocate(a3)

	addr, err := a.Allocate(10)
	require.NoError(t, err)
	assert.Equal(t, uint32(1), addr.ArenaID())
}

func TestAllocateZeroed(t *testing.T) {
	a := newAllocator(t, compacta.WithDefaultArenaSize(256), compacta.WithCompaction(false))

	addr, err := a.Allocate(32)
	require.NoError(t, err)
	b, err := a.Bytes(addr, 32)
	require.NoError(t, err)
	fill(b, 0xFF)

	// Dirty the bytes above the bump pointer.
	spill, err := a.Bytes(addr+32, 32)
	require.NoError(t, err)
	fill(spill, 0xEE)

	zeroed, err := a.AllocateZeroed(32)
	require.NoError(t, err)
	zb, err := a.Bytes(zeroed, 32)
	require.NoError(t, err)
	assert.Equal(t, make([]byte, 32), zb)
}

func TestDeallocate_CompactsLaterRecords(t *testing.T) {
	a := newAllocator(t, compacta.WithDefaultArenaSize(1024))

	first, err := a.Allocate(16)
	require.NoError(t, err)
	second, err := a.Allocate(8)
	require.NoError(t, err)

	b, err := a.Bytes(second, 8)
	require.NoError(t, err)
	copy(b, "payload!")

	a.Deallocate(first)

	layout := a.Layout()
	require.Len(t, layout.Arenas[0].Records, 1)
	moved := layout.Arenas[0].Records[0]
	assert.Equal(t, 0, moved.Offset)
	assert.Equal(t, second-16, moved.Addr)
	assert.Equal(t, 8, layout.Arenas[0].Used)

	got, err := a.Bytes(moved.Addr, 8)
	require.NoError(t, err)
	assert.Equal(t, "payload!", string(got))

	stats := a.Stats()
	assert.Equal(t, int64(1), stats.Compactions)
	assert.Equal(t, int64(8), stats.BytesMoved)
}

func TestDeallocate_WithoutCompactionZeroFills(t *testing.T) {
	a := newAllocator(t, compacta.WithDefaultArenaSize(1024), compacta.WithCompaction(false))

	first, err := a.Allocate(16)
	require.NoError(t, err)
	second, err := a.Allocate(8)
	require.NoError(t, err)

	b, err := a.Bytes(first, 16)
	require.NoError(t, err)
	fill(b, 0x7F)

	a.Deallocate(first)

	freed, err := a.Bytes(first, 16)
	require.NoError(t, err)
	assert.Equal(t, make([]byte, 16), freed)

	layout := a.Layout()
	require.Len(t, layout.Arenas[0].Records, 1)
	assert.Equal(t, second, layout.Arenas[0].Records[0].Addr)
	assert.Equal(t, 24, layout.Arenas[0].Used)
	assert.Zero(t, a.Stats().Compactions)
}

func TestDeallocate_ForeignAddressPanics(t *testing.T) {
	a := newAllocator(t)

	addr, err := a.Allocate(8)
	require.NoError(t, err)

	v := requireViolation(t, func() { a.Deallocate(addr + 1) })
	assert.Equal(t, "deallocate", v.Op)
	assert.Equal(t, addr+1, v.Addr)
	assert.ErrorIs(t, v, compacta.ErrUnknownAddress)

	requireViolation(t, func() { a.Deallocate(0) })
}

func TestDeallocate_DoubleFreePanics(t *testing.T) {
	a := newAllocator(t, compacta.WithStaleTracking(true))

	addr, err := a.Allocate(64)
	require.NoError(t, err)

	a.Deallocate(addr)
	v := requireViolation(t, func() { a.Deallocate(addr) })
	assert.ErrorIs(t, v, compacta.ErrUnknownAddress)
	assert.ErrorIs(t, v, compacta.ErrStaleAddress)
}

func TestTryDeallocate(t *testing.T) {
	a := newAllocator(t)

	addr, err := a.Allocate(8)
	require.NoError(t, err)

	require.NoError(t, a.TryDeallocate(addr))

	err = a.TryDeallocate(addr)
	require.Error(t, err)
	var v *compacta.ContractViolation
	require.True(t, errors.As(err, &v))
	assert.ErrorIs(t, err, compacta.ErrUnknownAddress)

	require.NoError(t, a.Close())
	assert.ErrorIs(t, a.TryDeallocate(addr), compacta.ErrNotInitialized)
}

func TestLedger_GrowsInChunks(t *testing.T) {
	a := newAllocator(t, compacta.WithDefaultArenaSize(1<<16))

	addrs := make([]compacta.Addr, 0, 250)
	for range 250 {
		addr, err := a.Allocate(4)
		require.NoError(t, err)
		addrs = append(addrs, addr)
	}

	stats := a.Stats()
	assert.Equal(t, 3, stats.LedgerChunks)
	assert.Equal(t, 250, stats.LedgerSlots)

	// Retired slots are never handed out again.
	a.Deallocate(addrs[0])
	_, err := a.Allocate(4)
	require.NoError(t, err)

	stats = a.Stats()
	assert.Equal(t, 251, stats.LedgerSlots)
	assert.Equal(t, 1, stats.RetiredSlots)
	assert.Equal(t, 250, stats.LiveRecords)
}

// Without compaction the bump offset is the sum of every size ever
// placed in the arena.
func TestProperty_BumpInvariant(t *testing.T) {
	rng := rand.New(rand.NewPCG(1, 2))
	a := newAllocator(t, compacta.WithDefaultArenaSize(4096), compacta.WithCompaction(false))

	placed := map[uint32]int{}
	var live []compacta.Addr
	for range 500 {
		if len(live) > 0 && rng.IntN(3) == 0 {
			i := rng.IntN(len(live))
			a.Deallocate(live[i])
			live = append(live[:i], live[i+1:]...)
		} else {
			size := 1 + rng.IntN(300)
			addr, err := a.Allocate(size)
			require.NoError(t, err)
			placed[addr.ArenaID()] += size
			live = append(live, addr)
		}

		for _, ar := range a.Layout().Arenas {
			require.Equal(t, placed[ar.ID], ar.Used, "arena %d", ar.ID)
		}
	}
}

// After each compacting free every survivor sits at its original offset
// minus the sizes freed below it, and its address matches that offset.
func TestProperty_CompactionCorrectness(t *testing.T) {
	rng := rand.New(rand.NewPCG(3, 4))
	a := newAllocator(t, compacta.WithDefaultArenaSize(1<<16))

	type original struct {
		offset, size int
	}
	bySlot := map[int]original{}
	for range 200 {
		_, err := a.Allocate(1 + rng.IntN(64))
		require.NoError(t, err)
	}
	arenaLayout := a.Layout().Arenas[0]
	for _, r := range arenaLayout.Records {
		bySlot[r.Slot] = original{offset: r.Offset, size: r.Size}
	}

	var freed []original
	for range 150 {
		records := a.Layout().Arenas[0].Records
		victim := records[rng.IntN(len(records))]
		a.Deallocate(victim.Addr)
		freed = append(freed, bySlot[victim.Slot])

		after := a.Layout().Arenas[0]
		sum := 0
		for _, r := range after.Records {
			orig := bySlot[r.Slot]
			want := orig.offset
			for _, f := range freed {
				if f.offset < orig.offset {
					want -= f.size
				}
			}
			require.Equal(t, want, r.Offset, "slot %d", r.Slot)
			require.Equal(t, after.ID, r.Addr.ArenaID())
			require.Equal(t, r.Offset, r.Addr.Offset())
			sum += r.Size
		}
		require.Equal(t, sum, after.Used)
		require.Equal(t, sum, after.LiveBytes)
	}
}

// A handle follows its payload across compaction.
func TestProperty_HandleStability(t *testing.T) {
	a := newAllocator(t)

	first, err := a.Allocate(8)
	require.NoError(t, err)
	second, err := a.Allocate(8)
	require.NoError(t, err)

	b, err := a.Bytes(second, 8)
	require.NoError(t, err)
	copy(b, "BBBBBBBB")

	h, err := compacta.NewHandle[[8]byte](a, second)
	require.NoError(t, err)
	defer h.Release()

	a.Deallocate(first)

	assert.NotEqual(t, second, h.Addr())
	assert.Equal(t, [8]byte{'B', 'B', 'B', 'B', 'B', 'B', 'B', 'B'}, *h.Value())
	assert.Equal(t, "BBBBBBBB", string(h.Bytes()))
}

// The raw address of a moved allocation is detectably stale.
func TestProperty_DanglingRawAddress(t *testing.T) {
	a := newAllocator(t, compacta.WithStaleTracking(true))

	first, err := a.Allocate(8)
	require.NoError(t, err)
	second, err := a.Allocate(8)
	require.NoError(t, err)

	require.NoError(t, a.Check(second))
	a.Deallocate(first)

	assert.ErrorIs(t, a.Check(second), compacta.ErrStaleAddress)
	// second's bytes now live at first's old address.
	assert.NoError(t, a.Check(first))
	assert.Equal(t, uint64(1), a.Stats().StaleAddresses)

	v := requireViolation(t, func() { a.Deallocate(second) })
	assert.ErrorIs(t, v, compacta.ErrStaleAddress)
}

// Without compaction fragmentation never drops while frees accumulate;
// with compaction it stays at zero.
func TestProperty_FragmentationMonotonicity(t *testing.T) {
	t.Run("without compaction", func(t *testing.T) {
		rng := rand.New(rand.NewPCG(5, 6))
		a := newAllocator(t, compacta.WithDefaultArenaSize(2048), compacta.WithCompaction(false))

		var live []compacta.Addr
		for range 100 {
			addr, err := a.Allocate(1 + rng.IntN(200))
			require.NoError(t, err)
			live = append(live, addr)
		}
		require.Zero(t, a.FragmentationPercent())

		prev := 0.0
		rng.Shuffle(len(live), func(i, j int) { live[i], live[j] = live[j], live[i] })
		for _, addr := range live {
			a.Deallocate(addr)
			pct := a.FragmentationPercent()
			require.GreaterOrEqual(t, pct, prev)
			require.LessOrEqual(t, pct, 100.0)
			prev = pct
		}
		assert.Greater(t, prev, 0.0)
	})

	t.Run("with compaction", func(t *testing.T) {
		rng := rand.New(rand.NewPCG(7, 8))
		a := newAllocator(t, compacta.WithDefaultArenaSize(2048))

		for range 100 {
			_, err := a.Allocate(1 + rng.IntN(200))
			require.NoError(t, err)
		}
		for range 60 {
			layout := a.Layout()
			ar := layout.Arenas[rng.IntN(len(layout.Arenas))]
			if len(ar.Records) == 0 {
				continue
			}
			a.Deallocate(ar.Records[rng.IntN(len(ar.Records))].Addr)
			require.Zero(t, a.FragmentationPercent())
		}
	})
}

func TestScenario_OversizedAllocationAndReservation(t *testing.T) {
	a, err := compacta.New(compacta.WithDefaultArenaSize(10_000_000), compacta.WithCompaction(true))
	require.NoError(t, err)
	defer a.Close()

	first, err := a.Allocate(2_000_000)
	require.NoError(t, err)
	second, err := a.Allocate(20_000_000)
	require.NoError(t, err)
	assert.NotEqual(t, first.ArenaID(), second.ArenaID())

	layout := a.Layout()
	require.Len(t, layout.Arenas, 2)
	assert.GreaterOrEqual(t, layout.Arenas[1].Capacity, 20_000_000)

	a.Deallocate(first)
	assert.Equal(t, int64(30_000_000), a.TotalReserved())
}

func TestScenario_DoubleFreeIsFatal(t *testing.T) {
	a := newAllocator(t)

	addr, err := a.Allocate(128)
	require.NoError(t, err)

	assert.NotPanics(t, func() { a.Deallocate(addr) })
	requireViolation(t, func() { a.Deallocate(addr) })
}

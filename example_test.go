package compacta_test

import (
	"fmt"
	"log"

	"github.com/hupe1980/compacta"
)

// Example demonstrates that a Handle follows its allocation through
// compaction while the raw address does not.
func Example() {
	a, err := compacta.New(compacta.WithDefaultArenaSize(1 << 16))
	if err != nil {
		log.Fatal(err)
	}
	defer a.Close()

	first, _ := a.Allocate(8)
	second, _ := a.Allocate(8)

	h, err := compacta.NewHandle[[8]byte](a, second)
	if err != nil {
		log.Fatal(err)
	}
	defer h.Release()
	copy(h.Bytes(), "compacta")

	a.Deallocate(first)

	fmt.Println(second.Offset(), h.Addr().Offset(), string(h.Bytes()))
	// Output: 8 0 compacta
}

// Example_defaultAllocator demonstrates the process-wide allocator.
func Example_defaultAllocator() {
	if err := compacta.Initialize(10_000_000, true); err != nil {
		log.Fatal(err)
	}
	defer compacta.Shutdown()

	a, _ := compacta.Allocate(2_000_000)
	_, _ = compacta.Allocate(20_000_000)
	compacta.Deallocate(a)

	fmt.Println(compacta.TotalReserved())
	// Output: 30000000
}

// Example_withoutCompaction demonstrates fragmentation when freed ranges are
// left in place.
func Example_withoutCompaction() {
	a, err := compacta.New(
		compacta.WithDefaultArenaSize(1000),
		compacta.WithCompaction(false),
		compacta.WithHeapMemory(),
	)
	if err != nil {
		log.Fatal(err)
	}
	defer a.Close()

	first, _ := a.Allocate(250)
	_, _ = a.Allocate(750)
	a.Deallocate(first)

	fmt.Printf("%.0f%%\n", a.FragmentationPercent())
	// Output: 25%
}

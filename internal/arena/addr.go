package arena

import "fmt"

const (
	// OffsetBits is the number of low Addr bits holding the in-arena offset.
	OffsetBits = 40
	// MaxCapacity is the largest arena an Addr can describe. It is typed
	// so that comparisons stay in 64 bits on 32-bit platforms.
	MaxCapacity int64 = 1<<OffsetBits - 1
	// MaxID is the largest arena id an Addr can describe.
	MaxID = 1<<(64-OffsetBits) - 1

	offsetMask = 1<<OffsetBits - 1
)

// Addr is a synthesized raw address: arena id and byte offset.
type Addr uint64

// MakeAddr builds the address of offset within arena id.
func MakeAddr(id uint32, offset int) Addr {
	return Addr(uint64(id)<<OffsetBits | uint64(offset)&offsetMask)
}

// ArenaID returns the id of the arena the address points into.
func (a Addr) ArenaID() uint32 {
	return uint32(a >> OffsetBits)
}

// Offset returns the byte offset within the arena.
func (a Addr) Offset() int {
	return int(a & offsetMask)
}

// IsNil reports whether a is the null address.
func (a Addr) IsNil() bool {
	return a == 0
}

func (a Addr) String() string {
	return fmt.Sprintf("%d:0x%x", a.ArenaID(), a.Offset())
}

// MarshalText encodes the address in its String form.
func (a Addr) MarshalText() ([]byte, error) {
	return []byte(a.String()), nil
}

// UnmarshalText parses the String form of an address.
func (a *Addr) UnmarshalText(text []byte) error {
	var (
		id     uint32
		offset int
	)
	if _, err := fmt.Sscanf(string(text), "%d:0x%x", &id, &offset); err != nil {
		return fmt.Errorf("arena: parse address %q: %w", text, err)
	}
	if offset < 0 || int64(offset) > MaxCapacity {
		return fmt.Errorf("arena: parse address %q: offset out of range", text)
	}
	*a = MakeAddr(id, offset)
	return nil
}

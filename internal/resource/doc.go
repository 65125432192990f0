// Package resource enforces the reserved-memory budget of an allocator.
//
// Every arena buffer is charged against the budget before it is acquired
// from the operating system and credited back when the arena is released.
// The budget is fail-fast: AcquireMemory never blocks and returns
// ErrMemoryLimitExceeded when the reservation would cross the limit.
//
//	rc := resource.NewController(resource.Config{
//	    MemoryLimitBytes: 64 << 20, // 64MB of arenas
//	})
//
//	if err := rc.AcquireMemory(10 << 20); err != nil {
//	    // ErrMemoryLimitExceeded - caller decides what to do
//	}
//	defer rc.ReleaseMemory(10 << 20)
//
// # Nil Safety
//
// All methods handle a nil Controller gracefully - they become no-ops.
// This allows optional limits without nil checks everywhere.
package resource

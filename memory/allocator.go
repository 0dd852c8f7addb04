package memory

import (
	"sync/atomic"
	"unsafe"

	"github.com/joshuapare/nativemem/internal/sizes"
	"github.com/joshuapare/nativemem/memory/goheap"
)

// MinAlignment is the alignment every Allocator guarantees for AllocZeroed.
const MinAlignment = sizes.WordSize

// Allocator is the backend the façade forwards to.
//
// Implementations:
//   - goheap.Allocator: Go runtime heap (the default)
//   - mmap.Allocator: one anonymous page mapping per block
//   - buddy.Allocator: binary-buddy pool over a single region
//   - debug.Allocator: red zones and poisoning around another backend
//   - tracking.Allocator: counters around another backend
//   - tracing.Allocator: slog output around another backend
//
// All methods must be safe for concurrent use.
type Allocator interface {
	// AllocZeroed returns size zeroed bytes aligned to at least MinAlignment.
	// A zero size still yields a distinct, freeable address.
	// Exhaustion is reported as a nil pointer, a non-nil error, or both.
	AllocZeroed(size uintptr) (unsafe.Pointer, error)

	// AllocZeroedAligned is AllocZeroed with the address a multiple of alignment.
	// alignment is always a power of two when called through the façade.
	AllocZeroedAligned(alignment, size uintptr) (unsafe.Pointer, error)

	// Free returns a block obtained from this allocator. It must accept nil.
	Free(p unsafe.Pointer)
}

// Destroyer is implemented by values that need cleanup before their storage
// is released by Destruct, Delete or DeleteArray.
type Destroyer interface {
	Destroy()
}

// slot wraps the installed allocator so it can live in an atomic.Pointer.
type slot struct {
	a Allocator
}

var current atomic.Pointer[slot]

func init() {
	current.Store(&slot{a: goheap.New()})
}

// SetAllocator installs a as the allocator behind the façade and returns a
// function that reinstalls the previous one. A nil a installs the default
// Go heap allocator.
//
// Blocks must be freed through the allocator that produced them, so swap
// allocators at startup or in tests, not while blocks are live.
func SetAllocator(a Allocator) (restore func()) {
	if a == nil {
		a = goheap.New()
	}
	prev := current.Swap(&slot{a: a})
	return func() { current.Store(prev) }
}

// CurrentAllocator returns the allocator behind the façade.
func CurrentAllocator() Allocator {
	return current.Load().a
}

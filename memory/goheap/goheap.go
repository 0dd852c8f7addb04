// Package goheap is the default nativemem backend. It serves every request
// from the Go runtime heap.
package goheap

import (
	"errors"
	"fmt"
	"math"
	"unsafe"

	"github.com/joshuapare/nativemem/internal/sizes"
)

var (
	// ErrTooLarge indicates a request the runtime heap cannot represent.
	ErrTooLarge = errors.New("goheap: request too large")

	// ErrBadAlignment indicates an alignment that is not a power of two.
	ErrBadAlignment = errors.New("goheap: alignment must be a power of two")
)

// Allocator hands out zeroed []byte backing arrays from the Go heap.
//
// Free is a no-op: a block is reclaimed by the garbage collector once no
// pointer into it remains. Blocks are marked as pointer-free memory, so values
// stored in them must not hold Go pointers.
//
// Allocator is stateless and safe for concurrent use.
type Allocator struct{}

// New returns a Go heap allocator.
func New() *Allocator { return &Allocator{} }

// AllocZeroed returns size zeroed bytes aligned to at least the word size.
func (*Allocator) AllocZeroed(size uintptr) (unsafe.Pointer, error) {
	return alloc(size, sizes.WordSize)
}

// AllocZeroedAligned returns size zeroed bytes whose address is a multiple of alignment.
func (*Allocator) AllocZeroedAligned(alignment, size uintptr) (unsafe.Pointer, error) {
	if !sizes.IsPowerOfTwo(alignment) {
		return nil, fmt.Errorf("%w: %d", ErrBadAlignment, alignment)
	}
	return alloc(size, max(alignment, sizes.WordSize))
}

// Free does nothing; see the type documentation.
func (*Allocator) Free(unsafe.Pointer) {}

func alloc(size, alignment uintptr) (unsafe.Pointer, error) {
	// Round up to whole words so the runtime's tiny allocator never packs the
	// block at a sub-word offset.
	n, ok := sizes.AlignUp(max(size, 1), sizes.WordSize)
	if !ok {
		return nil, fmt.Errorf("%w: %d bytes", ErrTooLarge, size)
	}
	pad := uintptr(0)
	if alignment > sizes.WordSize {
		pad = alignment - 1
	}
	total, ok := sizes.AddOverflowSafe(n, pad)
	if !ok || total > math.MaxInt {
		return nil, fmt.Errorf("%w: %d bytes", ErrTooLarge, size)
	}
	buf, err := makeZeroed(int(total))
	if err != nil {
		return nil, err
	}
	base := uintptr(unsafe.Pointer(&buf[0]))
	shift := uintptr(0)
	if next, _ := sizes.AlignUp(base, alignment); next != base {
		shift = next - base
	}
	return unsafe.Pointer(&buf[shift]), nil
}

// makeZeroed converts the runtime's length panic into an error.
func makeZeroed(n int) (buf []byte, err error) {
	defer func() {
		if r := recover(); r != nil {
			buf, err = nil, fmt.Errorf("%w: %d bytes: %v", ErrTooLarge, n, r)
		}
	}()
	return make([]byte, n), nil
}

package memory

import (
	"fmt"
	"unsafe"

	"github.com/joshuapare/nativemem/internal/sizes"
)

// Calloc returns count*size zeroed bytes from the installed allocator.
//
// The product is checked for overflow before the allocator is consulted.
// A failed request comes back as an error wrapping ErrExhausted with the
// allocator's own error, if any, further down the chain. Nothing is retried.
func Calloc(count, size uintptr) (unsafe.Pointer, error) {
	total, ok := sizes.MulOverflowSafe(count, size)
	if !ok {
		return nil, fmt.Errorf("%w: %d * %d", ErrSizeOverflow, count, size)
	}
	p, err := CurrentAllocator().AllocZeroed(total)
	return checkResult(p, err, total)
}

// CallocAligned is Calloc with the returned address a multiple of alignment.
// An alignment that is not a power of two fails with ErrInvalidAlignment
// before the allocator is consulted.
func CallocAligned(count, size, alignment uintptr) (unsafe.Pointer, error) {
	if !sizes.IsPowerOfTwo(alignment) {
		return nil, fmt.Errorf("%w: %d", ErrInvalidAlignment, alignment)
	}
	total, ok := sizes.MulOverflowSafe(count, size)
	if !ok {
		return nil, fmt.Errorf("%w: %d * %d", ErrSizeOverflow, count, size)
	}
	p, err := CurrentAllocator().AllocZeroedAligned(alignment, total)
	return checkResult(p, err, total)
}

// Alloc returns size zeroed bytes.
func Alloc(size uintptr) (unsafe.Pointer, error) {
	return Calloc(1, size)
}

// AllocAligned returns size zeroed bytes at a multiple of alignment.
func AllocAligned(size, alignment uintptr) (unsafe.Pointer, error) {
	return CallocAligned(1, size, alignment)
}

// Free hands p back to the installed allocator. Free(nil) is a no-op.
// Freeing the same non-nil address twice is undefined.
func Free(p unsafe.Pointer) {
	if p == nil {
		return
	}
	CurrentAllocator().Free(p)
}

// allocFor picks the plain or aligned primitive for a type's alignment.
func allocFor(size, alignment uintptr) (unsafe.Pointer, error) {
	if alignment <= MinAlignment {
		return Calloc(1, size)
	}
	return CallocAligned(1, size, alignment)
}

func checkResult(p unsafe.Pointer, err error, total uintptr) (unsafe.Pointer, error) {
	if err != nil {
		return nil, fmt.Errorf("%w: %d bytes: %w", ErrExhausted, total, err)
	}
	if p == nil {
		return nil, fmt.Errorf("%w: %d bytes", ErrExhausted, total)
	}
	return p, nil
}

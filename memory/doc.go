// Package memory is the single allocation choke point for runtime-side objects.
//
// # Overview
//
// Every raw buffer, fixed-size array and constructed object is obtained
// through a small façade that forwards to one pluggable Allocator. Swapping
// the Allocator (a poisoning debug allocator, a buddy pool, a counting
// wrapper) changes where every allocation comes from without touching call
// sites. The package makes no policy decisions of its own.
//
// # Layers
//
// Primitive façade:
//
//   - Calloc(count, size), CallocAligned(count, size, alignment)
//   - Alloc(size), AllocAligned(size, alignment)
//   - Free(p): nil is a no-op
//
// Typed helpers:
//
//   - AllocArray[T](n) / FreeArray(s): zeroed elements, nothing constructed
//   - Construct[T](init) / Destruct(p): allocate, initialise, destroy, free
//   - ConstructSized[T](size, init) / Trailing[E](p, size): variable-length objects
//   - ConstructOwned / Own: scope guard with a Leak escape hatch
//
// Opt-in capability:
//
//   - Embed Managed, then use New / Delete / NewArray / DeleteArray / Place
//
// # Usage Example
//
//	restore := memory.SetAllocator(tracking.New(goheap.New()))
//	defer restore()
//
//	counts, err := memory.AllocArray[int32](10) // 40 zero bytes
//	if err != nil {
//	    return err
//	}
//	defer memory.FreeArray(counts)
//
//	hdr, err := memory.ConstructSized[header](unsafe.Sizeof(header{})+n, func(h *header) error {
//	    h.n = uint32(n)
//	    return nil
//	})
//	if err != nil {
//	    return err
//	}
//	tail, _ := memory.Trailing[byte](hdr, unsafe.Sizeof(header{})+n)
//	copy(tail, payload)
//	...
//	memory.Destruct(hdr)
//
// # Errors
//
// Exhaustion surfaces as ErrExhausted and is never retried. Overflowing
// count*size yields ErrSizeOverflow, a bad alignment ErrInvalidAlignment, both
// before the allocator is called. ConstructSized rejects a size smaller than
// the type with ErrSizeTooSmall.
//
// # Pointer-Free Types
//
// Allocator memory is not scanned by the garbage collector. The typed helpers
// therefore refuse element and object types containing pointers, strings,
// slices, maps, channels, funcs or interfaces (ErrHasPointers).
//
// # Thread Safety
//
// The façade holds no state besides the installed allocator, which is read
// atomically. Concurrency guarantees are those of the installed allocator;
// every allocator in this module is safe for concurrent use.
package memory

package memory

import "errors"

var (
	// ErrExhausted indicates the installed allocator could not satisfy a request.
	ErrExhausted = errors.New("memory: allocation exhausted")

	// ErrInvalidAlignment indicates an alignment that is zero or not a power of two.
	ErrInvalidAlignment = errors.New("memory: alignment must be a power of two")

	// ErrSizeOverflow indicates that count * size does not fit in a uintptr.
	ErrSizeOverflow = errors.New("memory: allocation size overflows")

	// ErrNegativeCount indicates a negative element count.
	ErrNegativeCount = errors.New("memory: negative element count")

	// ErrSizeTooSmall indicates a sized construction smaller than the type it holds.
	ErrSizeTooSmall = errors.New("memory: size smaller than type")

	// ErrHasPointers indicates a type that holds Go pointers and therefore cannot
	// live in memory the garbage collector does not scan.
	ErrHasPointers = errors.New("memory: type contains Go pointers")

	// ErrBareManaged indicates an attempt to allocate or destroy the Managed
	// marker itself rather than a type embedding it.
	ErrBareManaged = errors.New("memory: Managed cannot be used on its own")
)

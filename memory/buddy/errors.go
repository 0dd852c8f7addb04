package buddy

import "errors"

var (
	// ErrSizeMustBePowerOfTwo indicates a region size that is not a power of two.
	ErrSizeMustBePowerOfTwo = errors.New("buddy: region size must be a power of two")

	// ErrBadMinBlock indicates a minimum block size that is not a power of two
	// or exceeds the region.
	ErrBadMinBlock = errors.New("buddy: minimum block must be a power of two no larger than the region")

	// ErrNoSpace indicates no free block large enough remains.
	ErrNoSpace = errors.New("buddy: no free block large enough")

	// ErrBadAlignment indicates an alignment that is not a power of two.
	ErrBadAlignment = errors.New("buddy: alignment must be a power of two")

	// ErrInvalidPointer indicates a Free of an address that is not a live block.
	ErrInvalidPointer = errors.New("buddy: invalid pointer")

	// ErrClosed indicates use of an allocator after Close.
	ErrClosed = errors.New("buddy: allocator closed")
)

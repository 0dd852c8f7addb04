package memory

import (
	"fmt"
	"reflect"
	"unsafe"

	"github.com/joshuapare/nativemem/internal/sizes"
)

// AllocArray returns length zeroed elements of T. No element is constructed;
// the caller decides whether the zero value is a valid T.
//
// A length of zero returns nil without consulting the allocator. A zero-size
// T yields length elements that share one address and own no block.
// The slice must be released with FreeArray, unresliced or resliced only
// from the front (s[:n]), since the first element's address identifies the block.
func AllocArray[T any](length int) ([]T, error) {
	if length < 0 {
		return nil, fmt.Errorf("%w: %d", ErrNegativeCount, length)
	}
	if err := checkPointerFree[T](); err != nil {
		return nil, err
	}
	size, align := layoutOf[T]()
	total, ok := sizes.MulOverflowSafe(uintptr(length), size)
	if !ok {
		return nil, fmt.Errorf("%w: %d * %d", ErrSizeOverflow, length, size)
	}
	if length == 0 {
		return nil, nil
	}
	if total == 0 {
		return unsafe.Slice((*T)(unsafe.Pointer(&zeroBase)), length), nil
	}
	p, err := allocFor(total, align)
	if err != nil {
		return nil, err
	}
	return unsafe.Slice((*T)(p), length), nil
}

// FreeArray releases a slice returned by AllocArray. Elements are not destroyed.
func FreeArray[T any](s []T) {
	if size, _ := layoutOf[T](); cap(s) == 0 || size == 0 {
		return
	}
	Free(unsafe.Pointer(unsafe.SliceData(s)))
}

// Construct allocates zeroed storage for one T and runs init on it.
//
// If allocation fails, init is never called. If init fails, the storage is
// released without calling Destroy and the error is returned. A panicking
// init also releases the storage. A nil init leaves the zero value.
func Construct[T any](init func(*T) error) (*T, error) {
	size, _ := layoutOf[T]()
	return construct(size, init)
}

// ConstructSized is Construct with an allocation of size bytes, for types
// that are the fixed header of a variable-length object. size must be at
// least the size of T; use Trailing to reach the bytes after it.
func ConstructSized[T any](size uintptr, init func(*T) error) (*T, error) {
	if head, _ := layoutOf[T](); size < head {
		return nil, fmt.Errorf("%w: %d < %d (%s)", ErrSizeTooSmall, size, head, reflect.TypeFor[T]())
	}
	return construct(size, init)
}

func construct[T any](size uintptr, init func(*T) error) (*T, error) {
	if err := checkPointerFree[T](); err != nil {
		return nil, err
	}
	_, align := layoutOf[T]()
	p, err := allocFor(size, align)
	if err != nil {
		return nil, err
	}
	obj := (*T)(p)
	if init == nil {
		return obj, nil
	}
	built := false
	defer func() {
		if !built {
			Free(p)
		}
	}()
	if err := init(obj); err != nil {
		return nil, fmt.Errorf("memory: construct %s: %w", reflect.TypeFor[T](), err)
	}
	built = true
	return obj, nil
}

// Trailing returns the elements of E that follow the T header in a block of
// size bytes built by ConstructSized. The tail starts at the size of T rounded
// up to the alignment of E and never runs past the end of the block.
func Trailing[E any, T any](p *T, size uintptr) ([]E, error) {
	if err := checkPointerFree[E](); err != nil {
		return nil, err
	}
	head, _ := layoutOf[T]()
	elem, align := layoutOf[E]()
	off, ok := sizes.AlignUp(head, align)
	if p == nil || elem == 0 || !ok || size <= off {
		return nil, nil
	}
	n := (size - off) / elem
	if n == 0 {
		return nil, nil
	}
	return unsafe.Slice((*E)(unsafe.Add(unsafe.Pointer(p), off)), n), nil
}

// Destruct runs p's Destroy method, if it has one, then releases its storage.
// Destruct(nil) is a no-op. p must come from Construct or ConstructSized and
// must not have been destructed already.
func Destruct[T any](p *T) {
	if p == nil {
		return
	}
	if d, ok := any(p).(Destroyer); ok {
		d.Destroy()
	}
	Free(unsafe.Pointer(p))
}

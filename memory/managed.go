package memory

import (
	"fmt"
	"reflect"
	"unsafe"
)

// noCopy makes go vet's copylocks check report copies of the embedding struct.
type noCopy struct{}

func (*noCopy) Lock()   {}
func (*noCopy) Unlock() {}

// Managed routes a type's heap allocation through the façade. Embed it and
// create instances with New, destroy them with Delete:
//
//	type frame struct {
//	    memory.Managed
//	    pc uint32
//	}
//
//	f, err := memory.New[frame](func(f *frame) error {
//	    f.pc = entry
//	    return nil
//	})
//	...
//	memory.Delete(f)
//
// Managed does not stop a value from being declared on the stack or as a
// field of another struct; it only governs New and Delete. Managed itself is
// never allocated or destroyed on its own: New[Managed] fails with
// ErrBareManaged, and deleting through a *Managed panics. Destroy an object
// through its concrete type only.
type Managed struct {
	_ noCopy
}

func (*Managed) facadeManaged() {}

// Aware is satisfied only by pointers to types embedding Managed.
type Aware interface {
	facadeManaged()
}

var managedType = reflect.TypeFor[Managed]()

// New allocates zeroed storage for one T through the façade, exactly one
// allocator call, and runs init on it. Allocation failure is returned before
// init runs. If init fails or panics, the storage is freed.
func New[T any, PT interface {
	*T
	Aware
}](init func(PT) error) (PT, error) {
	if reflect.TypeFor[T]() == managedType {
		return nil, fmt.Errorf("%w: new", ErrBareManaged)
	}
	if err := checkPointerFree[T](); err != nil {
		return nil, err
	}
	size, align := layoutOf[T]()
	p, err := allocFor(size, align)
	if err != nil {
		return nil, err
	}
	obj := PT((*T)(p))
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
		return nil, fmt.Errorf("memory: new %s: %w", reflect.TypeFor[T](), err)
	}
	built = true
	return obj, nil
}

// Delete runs p's Destroy method, if any, and frees it through the façade.
// Delete(nil) is a no-op. p must come from New.
func Delete[T any, PT interface {
	*T
	Aware
}](p PT) {
	if p == nil {
		return
	}
	if reflect.TypeFor[T]() == managedType {
		panic(fmt.Errorf("%w: delete through *Managed", ErrBareManaged))
	}
	if d, ok := any(p).(Destroyer); ok {
		d.Destroy()
	}
	Free(unsafe.Pointer((*T)(p)))
}

// NewArray allocates n zeroed elements of T in one façade call and runs init
// on each, in order. If init fails on element i, elements i-1 down to 0 are
// destroyed, the storage is freed, and the error returned. A panic in init
// unwinds the same way. n == 0 yields nil.
func NewArray[T any, PT interface {
	*T
	Aware
}](n int, init func(i int, p PT) error) ([]T, error) {
	if reflect.TypeFor[T]() == managedType {
		return nil, fmt.Errorf("%w: new array", ErrBareManaged)
	}
	s, err := AllocArray[T](n)
	if err != nil || init == nil {
		return s, err
	}
	done := 0
	defer func() {
		if done < len(s) {
			destroyReverse[T, PT](s[:done])
			FreeArray(s)
		}
	}()
	for i := range s {
		if err := init(i, PT(&s[i])); err != nil {
			return nil, fmt.Errorf("memory: new %s[%d]: %w", reflect.TypeFor[T](), i, err)
		}
		done++
	}
	return s, nil
}

// DeleteArray destroys the elements of s from last to first, then frees the
// storage once. s must come from NewArray.
func DeleteArray[T any, PT interface {
	*T
	Aware
}](s []T) {
	if cap(s) == 0 {
		return
	}
	destroyReverse[T, PT](s)
	FreeArray(s)
}

func destroyReverse[T any, PT interface {
	*T
	Aware
}](s []T) {
	for i := len(s) - 1; i >= 0; i-- {
		if d, ok := any(PT(&s[i])).(Destroyer); ok {
			d.Destroy()
		}
	}
}

// Place returns addr as a PT without allocating, for building a Managed
// type in storage the caller already owns.
func Place[T any, PT interface {
	*T
	Aware
}](addr unsafe.Pointer) PT {
	return PT((*T)(addr))
}

package memory

import (
	"fmt"
	"reflect"
	"sync"
	"unsafe"
)

// pointerFree caches hasPointers results per type.
var pointerFree sync.Map // reflect.Type -> bool

// checkPointerFree rejects types whose values hold Go pointers. Backend memory
// is never scanned by the garbage collector, so such a pointer would dangle.
// zeroBase is the shared address of elements of zero-size arrays.
var zeroBase struct{}

func checkPointerFree[T any]() error {
	t := reflect.TypeFor[T]()
	if v, ok := pointerFree.Load(t); ok {
		if v.(bool) {
			return nil
		}
		return fmt.Errorf("%w: %s", ErrHasPointers, t)
	}
	free := !hasPointers(t)
	pointerFree.Store(t, free)
	if !free {
		return fmt.Errorf("%w: %s", ErrHasPointers, t)
	}
	return nil
}

func hasPointers(t reflect.Type) bool {
	switch t.Kind() {
	case reflect.Bool,
		reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64,
		reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64, reflect.Uintptr,
		reflect.Float32, reflect.Float64, reflect.Complex64, reflect.Complex128:
		return false
	case reflect.Array:
		return t.Len() > 0 && hasPointers(t.Elem())
	case reflect.Struct:
		for i := range t.NumField() {
			if hasPointers(t.Field(i).Type) {
				return true
			}
		}
		return false
	default:
		return true
	}
}

func layoutOf[T any]() (size, align uintptr) {
	var zero T
	return unsafe.Sizeof(zero), unsafe.Alignof(zero)
}

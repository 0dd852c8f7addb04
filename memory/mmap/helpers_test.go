package mmap

import (
	"fmt"
	"unsafe"
)

func fmtPtr(p unsafe.Pointer) string {
	return fmt.Sprintf("%p", p)
}

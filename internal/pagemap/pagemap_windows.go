//go:build windows

package pagemap

import (
	"fmt"
	"unsafe"

	"golang.org/x/sys/windows"
)

// PageSize returns the system page size.
func PageSize() int {
	return windows.Getpagesize()
}

// Map returns a committed, read-write, zero-filled region of at least size bytes.
func Map(size int) ([]byte, error) {
	n, err := roundToPages(size)
	if err != nil {
		return nil, err
	}
	addr, err := windows.VirtualAlloc(0, uintptr(n), windows.MEM_COMMIT|windows.MEM_RESERVE, windows.PAGE_READWRITE)
	if err != nil {
		return nil, fmt.Errorf("pagemap: VirtualAlloc %d bytes: %w", n, err)
	}
	return unsafe.Slice((*byte)(unsafe.Pointer(addr)), n), nil
}

// Unmap releases a region returned by Map.
func Unmap(data []byte) error {
	if len(data) == 0 {
		return nil
	}
	return windows.VirtualFree(uintptr(unsafe.Pointer(&data[0])), 0, windows.MEM_RELEASE)
}

// Protect revokes all access to the pages of data. Any later access faults.
func Protect(data []byte) error {
	if len(data) == 0 {
		return nil
	}
	var old uint32
	return windows.VirtualProtect(uintptr(unsafe.Pointer(&data[0])), uintptr(len(data)), windows.PAGE_NOACCESS, &old)
}

//go:build linux || darwin || freebsd || netbsd || openbsd || dragonfly

// Package pagemap provides platform-specific helpers for anonymous page mappings.
package pagemap

import (
	"errors"
	"fmt"
	"syscall"

	"golang.org/x/sys/unix"
)

// PageSize returns the system page size.
func PageSize() int {
	return unix.Getpagesize()
}

// Map returns a private, read-write, zero-filled mapping of at least size bytes.
// The length is rounded up to a whole number of pages.
func Map(size int) ([]byte, error) {
	n, err := roundToPages(size)
	if err != nil {
		return nil, err
	}
	data, err := unix.Mmap(-1, 0, n, unix.PROT_READ|unix.PROT_WRITE, unix.MAP_ANON|unix.MAP_PRIVATE)
	if err != nil {
		return nil, fmt.Errorf("pagemap: mmap %d bytes: %w", n, err)
	}
	return data, nil
}

// Unmap releases a mapping returned by Map.
func Unmap(data []byte) error {
	if len(data) == 0 {
		return nil
	}
	err := unix.Munmap(data)
	if errors.Is(err, syscall.EINVAL) {
		// Treat double-unmap as no-op for callers.
		return nil
	}
	return err
}

// Protect revokes all access to the pages of data. Any later access faults.
func Protect(data []byte) error {
	if len(data) == 0 {
		return nil
	}
	return unix.Mprotect(data, unix.PROT_NONE)
}

//go:build !(linux || darwin || freebsd || netbsd || openbsd || dragonfly) && !windows

package pagemap

// PageSize returns the page granularity used by Map.
func PageSize() int {
	return 4096
}

// Map allocates from the Go heap when anonymous mappings are not available.
// The caller must keep the returned slice reachable until Unmap.
func Map(size int) ([]byte, error) {
	n, err := roundToPages(size)
	if err != nil {
		return nil, err
	}
	return make([]byte, n), nil
}

// Unmap is a no-op; the garbage collector reclaims the memory.
func Unmap([]byte) error {
	return nil
}

// Protect is a no-op without page protection support.
func Protect([]byte) error {
	return nil
}

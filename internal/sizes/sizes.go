// Package sizes contains overflow-checked arithmetic for allocation sizes.
package sizes

import "math/bits"

// WordSize is the size in bytes of a machine pointer.
const WordSize = bits.UintSize / 8

// AddOverflowSafe adds a and b, returning ok = false when the result would overflow uintptr.
func AddOverflowSafe(a, b uintptr) (uintptr, bool) {
	sum, carry := bits.Add(uint(a), uint(b), 0)
	return uintptr(sum), carry == 0
}

// MulOverflowSafe multiplies a and b, returning ok = false when the result would overflow uintptr.
// This is what every count * elementSize calculation goes through.
func MulOverflowSafe(a, b uintptr) (uintptr, bool) {
	if a == 0 || b == 0 {
		return 0, true
	}
	hi, lo := bits.Mul(uint(a), uint(b))
	return uintptr(lo), hi == 0
}

// IsPowerOfTwo reports whether x is a non-zero power of two.
func IsPowerOfTwo(x uintptr) bool {
	return x != 0 && x&(x-1) == 0
}

// AlignUp rounds n up to the next multiple of align, which must be a power of two.
// Returns ok = false when rounding would overflow.
func AlignUp(n, align uintptr) (uintptr, bool) {
	if align <= 1 {
		return n, true
	}
	sum, ok := AddOverflowSafe(n, align-1)
	if !ok {
		return 0, false
	}
	return sum &^ (align - 1), true
}

// IsAligned reports whether addr is a multiple of align (a power of two).
func IsAligned(addr, align uintptr) bool {
	return align == 0 || addr&(align-1) == 0
}

// CeilLog2 returns the smallest k such that 1<<k >= n. CeilLog2(0) and CeilLog2(1) are 0.
func CeilLog2(n uintptr) int {
	if n <= 1 {
		return 0
	}
	return bits.Len(uint(n - 1))
}

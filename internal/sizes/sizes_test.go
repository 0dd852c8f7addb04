package sizes

import (
	"math"
	"testing"
)

func TestAddOverflowSafe(t *testing.T) {
	if sum, ok := AddOverflowSafe(10, 5); !ok || sum != 15 {
		t.Fatalf("AddOverflowSafe(10,5)=%d,%v want 15,true", sum, ok)
	}
	if _, ok := AddOverflowSafe(math.MaxUint, 1); ok {
		t.Fatalf("expected overflow when adding to max uintptr")
	}
}

func TestMulOverflowSafe(t *testing.T) {
	if p, ok := MulOverflowSafe(10, 4); !ok || p != 40 {
		t.Fatalf("MulOverflowSafe(10,4)=%d,%v want 40,true", p, ok)
	}
	if p, ok := MulOverflowSafe(0, math.MaxUint); !ok || p != 0 {
		t.Fatalf("MulOverflowSafe(0,max)=%d,%v want 0,true", p, ok)
	}
	if _, ok := MulOverflowSafe(math.MaxUint/2+1, 2); ok {
		t.Fatalf("expected overflow for (max/2+1)*2")
	}
	if _, ok := MulOverflowSafe(1<<(WordSize*4), 1<<(WordSize*4)); ok {
		t.Fatalf("expected overflow for 2^(w/2) squared")
	}
}

func TestIsPowerOfTwo(t *testing.T) {
	for _, x := range []uintptr{1, 2, 4, 8, 4096, 1 << 20} {
		if !IsPowerOfTwo(x) {
			t.Errorf("IsPowerOfTwo(%d) = false", x)
		}
	}
	for _, x := range []uintptr{0, 3, 6, 12, 4095} {
		if IsPowerOfTwo(x) {
			t.Errorf("IsPowerOfTwo(%d) = true", x)
		}
	}
}

func TestAlignUp(t *testing.T) {
	cases := []struct{ n, align, want uintptr }{
		{0, 8, 0},
		{1, 8, 8},
		{8, 8, 8},
		{9, 8, 16},
		{100, 64, 128},
		{5, 1, 5},
	}
	for _, c := range cases {
		got, ok := AlignUp(c.n, c.align)
		if !ok || got != c.want {
			t.Errorf("AlignUp(%d,%d)=%d,%v want %d", c.n, c.align, got, ok, c.want)
		}
	}
	if _, ok := AlignUp(math.MaxUint, 8); ok {
		t.Fatalf("expected overflow aligning max uintptr")
	}
}

func TestCeilLog2(t *testing.T) {
	cases := map[uintptr]int{0: 0, 1: 0, 2: 1, 3: 2, 4: 2, 5: 3, 16: 4, 17: 5, 4096: 12}
	for n, want := range cases {
		if got := CeilLog2(n); got != want {
			t.Errorf("CeilLog2(%d)=%d want %d", n, got, want)
		}
	}
}

package pagemap

import (
	"testing"
	"unsafe"

	"github.com/stretchr/testify/require"
)

func TestMapZeroFilledAndPageAligned(t *testing.T) {
	data, err := Map(100)
	require.NoError(t, err)
	defer func() {
		require.NoError(t, Unmap(data))
	}()

	page := PageSize()
	require.Len(t, data, page, "length should round up to one page")
	require.Zero(t, uintptr(unsafe.Pointer(&data[0]))%uintptr(page), "mapping should be page-aligned")
	for i, b := range data {
		if b != 0 {
			t.Fatalf("byte %d = 0x%x, want 0", i, b)
		}
	}

	data[0] = 0xAB
	data[len(data)-1] = 0xCD
	require.Equal(t, byte(0xAB), data[0])
}

func TestMapZeroLength(t *testing.T) {
	data, err := Map(0)
	require.NoError(t, err)
	require.Len(t, data, PageSize())
	require.NoError(t, Unmap(data))
}

func TestMapNegative(t *testing.T) {
	_, err := Map(-1)
	require.ErrorIs(t, err, ErrBadSize)
}

func TestUnmapEmpty(t *testing.T) {
	require.NoError(t, Unmap(nil))
	require.NoError(t, Protect(nil))
}

func TestMapMultiplePages(t *testing.T) {
	page := PageSize()
	data, err := Map(3*page + 1)
	require.NoError(t, err)
	require.Len(t, data, 4*page)
	require.NoError(t, Unmap(data))
}

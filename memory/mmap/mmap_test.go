package mmap

import (
	"bytes"
	"log/slog"
	"testing"
	"unsafe"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/joshuapare/nativemem/internal/pagemap"
)

func TestAllocZeroed_PageAlignedZeroFilled(t *testing.T) {
	a := New(nil)
	page := uintptr(pagemap.PageSize())

	p, err := a.AllocZeroed(100)
	require.NoError(t, err)
	assert.Zero(t, uintptr(p)%page)
	for i, b := range unsafe.Slice((*byte)(p), 100) {
		require.Zero(t, b, "byte %d", i)
	}

	s := a.Stats()
	assert.Equal(t, 1, s.LiveBlocks)
	assert.Equal(t, int(page), s.LiveBytes)

	a.Free(p)
	assert.Equal(t, Stats{}, a.Stats())
}

func TestAllocZeroed_ZeroSize(t *testing.T) {
	a := New(nil)
	p, err := a.AllocZeroed(0)
	require.NoError(t, err)
	require.NotNil(t, p)
	a.Free(p)
}

func TestAllocZeroedAligned_AbovePageSize(t *testing.T) {
	a := New(nil)
	page := uintptr(pagemap.PageSize())

	for _, align := range []uintptr{8, page, 4 * page, 16 * page} {
		p, err := a.AllocZeroedAligned(align, 3*page)
		require.NoError(t, err)
		assert.Zero(t, uintptr(p)%align, "alignment %d", align)

		buf := unsafe.Slice((*byte)(p), 3*page)
		buf[0], buf[len(buf)-1] = 1, 2
		a.Free(p)
	}
	assert.Zero(t, a.Stats().LiveBlocks)
}

func TestAllocZeroedAligned_BadAlignment(t *testing.T) {
	_, err := New(nil).AllocZeroedAligned(3, 8)
	require.ErrorIs(t, err, ErrBadAlignment)
}

func TestFree_UnknownPointerPanics(t *testing.T) {
	a := New(nil)
	var x uint64
	assert.PanicsWithError(t, "mmap: unknown pointer: "+fmtPtr(unsafe.Pointer(&x)), func() {
		a.Free(unsafe.Pointer(&x))
	})
	a.Free(nil)
}

func TestQuarantine(t *testing.T) {
	var logs bytes.Buffer
	a := New(&Options{Quarantine: true, Logger: slog.New(slog.NewTextHandler(&logs, nil))})

	p, err := a.AllocZeroed(64)
	require.NoError(t, err)
	a.Free(p)

	s := a.Stats()
	assert.Zero(t, s.LiveBlocks)
	assert.Equal(t, 1, s.QuarantinedBlocks)
	assert.Positive(t, s.QuarantinedBytes)
	assert.Empty(t, logs.String(), "no protect failures expected")

	require.NoError(t, a.Release())
	assert.Zero(t, a.Stats().QuarantinedBlocks)
}

func TestConcurrentAllocFree(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping mapping stress in short mode")
	}
	a := New(nil)
	done := make(chan struct{})
	for range 4 {
		go func() {
			defer func() { done <- struct{}{} }()
			for i := range 64 {
				p, err := a.AllocZeroed(uintptr(i * 100))
				if err != nil {
					t.Error(err)
					return
				}
				a.Free(p)
			}
		}()
	}
	for range 4 {
		<-done
	}
	assert.Zero(t, a.Stats().LiveBlocks)
}

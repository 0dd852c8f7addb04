package tracking_test

import (
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/text/language"
	"golang.org/x/text/message"

	"github.com/joshuapare/nativemem/memory"
	"github.com/joshuapare/nativemem/memory/goheap"
	"github.com/joshuapare/nativemem/memory/memorytest"
	"github.com/joshuapare/nativemem/memory/tracking"
)

func TestCounters(t *testing.T) {
	a := tracking.New(goheap.New())

	p1, err := a.AllocZeroed(100)
	require.NoError(t, err)
	p2, err := a.AllocZeroedAligned(64, 28)
	require.NoError(t, err)

	s := a.Stats()
	assert.Equal(t, uint64(2), s.Allocs)
	assert.Equal(t, int64(2), s.LiveBlocks)
	assert.Equal(t, int64(128), s.LiveBytes)
	assert.Equal(t, int64(128), s.PeakBytes)

	a.Free(p1)
	a.Free(p2)
	a.Free(nil)

	s = a.Stats()
	assert.Equal(t, uint64(2), s.Frees)
	assert.Zero(t, s.LiveBlocks)
	assert.Zero(t, s.LiveBytes)
	assert.Equal(t, int64(128), s.PeakBytes)
	assert.Equal(t, uint64(128), s.TotalBytes)
}

func TestFailuresCounted(t *testing.T) {
	rec := memorytest.NewRecorder()
	rec.FailAfter(0)
	a := tracking.New(rec)

	_, err := a.AllocZeroed(8)
	require.ErrorIs(t, err, memorytest.ErrInjected)

	s := a.Stats()
	assert.Equal(t, uint64(1), s.Failures)
	assert.Zero(t, s.Allocs)
}

func TestReset(t *testing.T) {
	a := tracking.New(goheap.New())
	p, err := a.AllocZeroed(32)
	require.NoError(t, err)
	q, err := a.AllocZeroed(16)
	require.NoError(t, err)
	a.Free(q)

	a.Reset()
	s := a.Stats()
	assert.Zero(t, s.Allocs)
	assert.Zero(t, s.Frees)
	assert.Equal(t, int64(32), s.LiveBytes)
	assert.Equal(t, int64(32), s.PeakBytes)

	a.Free(p)
	assert.Zero(t, a.Stats().LiveBlocks)
}

func TestThroughFacade(t *testing.T) {
	a := tracking.New(goheap.New())
	memorytest.Install(t, a)

	s, err := memory.AllocArray[int32](10)
	require.NoError(t, err)
	assert.Equal(t, int64(40), a.Stats().LiveBytes)

	memory.FreeArray(s)
	assert.Zero(t, a.Stats().LiveBytes)
}

func TestConcurrent(t *testing.T) {
	a := tracking.New(goheap.New())
	var wg sync.WaitGroup
	for range 8 {
		wg.Go(func() {
			for range 200 {
				p, err := a.AllocZeroed(24)
				if err != nil {
					t.Error(err)
					return
				}
				a.Free(p)
			}
		})
	}
	wg.Wait()

	s := a.Stats()
	assert.Equal(t, uint64(1600), s.Allocs)
	assert.Equal(t, uint64(1600), s.Frees)
	assert.Zero(t, s.LiveBytes)
	assert.LessOrEqual(t, s.PeakBytes, int64(8*24))
}

func TestFormat(t *testing.T) {
	s := tracking.Stats{Allocs: 1234567, TotalBytes: 1 << 20}
	out := s.Format(message.NewPrinter(language.English))

	assert.Contains(t, out, "1,234,567")
	assert.Contains(t, out, "1,048,576")
	assert.Len(t, strings.Split(strings.TrimSpace(out), "\n"), 7)
}

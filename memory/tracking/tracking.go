// Package tracking wraps a nativemem allocator with allocation counters.
package tracking

import (
	"fmt"
	"strings"
	"sync"
	"sync/atomic"
	"unsafe"

	"golang.org/x/text/message"

	"github.com/joshuapare/nativemem/memory"
)

// Stats is a snapshot of the counters.
type Stats struct {
	Allocs     uint64 `json:"allocs"`
	Frees      uint64 `json:"frees"`
	Failures   uint64 `json:"failures"`
	LiveBlocks int64  `json:"live_blocks"`
	LiveBytes  int64  `json:"live_bytes"`
	PeakBytes  int64  `json:"peak_bytes"`
	TotalBytes uint64 `json:"total_bytes"`
}

// Format renders the stats, one counter per line, with p's digit grouping.
func (s Stats) Format(p *message.Printer) string {
	var b strings.Builder
	row := func(name string, v any) {
		b.WriteString(p.Sprintf("%-12s %d\n", name, v))
	}
	row("allocs", s.Allocs)
	row("frees", s.Frees)
	row("failures", s.Failures)
	row("live blocks", s.LiveBlocks)
	row("live bytes", s.LiveBytes)
	row("peak bytes", s.PeakBytes)
	row("total bytes", s.TotalBytes)
	return b.String()
}

// Allocator counts calls to an inner allocator. It is safe for concurrent use
// if the inner allocator is.
type Allocator struct {
	inner memory.Allocator

	allocs     atomic.Uint64
	frees      atomic.Uint64
	failures   atomic.Uint64
	liveBlocks atomic.Int64
	liveBytes  atomic.Int64
	peakBytes  atomic.Int64
	totalBytes atomic.Uint64

	mu    sync.Mutex
	sizes map[unsafe.Pointer]uintptr
}

// New wraps inner.
func New(inner memory.Allocator) *Allocator {
	return &Allocator{inner: inner, sizes: make(map[unsafe.Pointer]uintptr)}
}

// AllocZeroed implements memory.Allocator.
func (a *Allocator) AllocZeroed(size uintptr) (unsafe.Pointer, error) {
	p, err := a.inner.AllocZeroed(size)
	return a.record(p, err, size)
}

// AllocZeroedAligned implements memory.Allocator.
func (a *Allocator) AllocZeroedAligned(alignment, size uintptr) (unsafe.Pointer, error) {
	p, err := a.inner.AllocZeroedAligned(alignment, size)
	return a.record(p, err, size)
}

func (a *Allocator) record(p unsafe.Pointer, err error, size uintptr) (unsafe.Pointer, error) {
	if err != nil || p == nil {
		a.failures.Add(1)
		return p, err
	}
	a.mu.Lock()
	a.sizes[p] = size
	a.mu.Unlock()

	a.allocs.Add(1)
	a.totalBytes.Add(uint64(size))
	a.liveBlocks.Add(1)
	live := a.liveBytes.Add(int64(size))
	for {
		peak := a.peakBytes.Load()
		if live <= peak || a.peakBytes.CompareAndSwap(peak, live) {
			break
		}
	}
	return p, nil
}

// Free implements memory.Allocator. Pointers this wrapper did not hand out
// are passed through without touching the counters.
func (a *Allocator) Free(p unsafe.Pointer) {
	if p == nil {
		return
	}
	a.mu.Lock()
	size, ok := a.sizes[p]
	delete(a.sizes, p)
	a.mu.Unlock()

	a.inner.Free(p)
	if !ok {
		return
	}
	a.frees.Add(1)
	a.liveBlocks.Add(-1)
	a.liveBytes.Add(-int64(size))
}

// Stats returns the current counters.
func (a *Allocator) Stats() Stats {
	return Stats{
		Allocs:     a.allocs.Load(),
		Frees:      a.frees.Load(),
		Failures:   a.failures.Load(),
		LiveBlocks: a.liveBlocks.Load(),
		LiveBytes:  a.liveBytes.Load(),
		PeakBytes:  a.peakBytes.Load(),
		TotalBytes: a.totalBytes.Load(),
	}
}

// Reset zeroes the cumulative counters. Live blocks stay tracked, and the
// peak restarts from the current live bytes.
func (a *Allocator) Reset() {
	a.allocs.Store(0)
	a.frees.Store(0)
	a.failures.Store(0)
	a.totalBytes.Store(0)
	a.peakBytes.Store(a.liveBytes.Load())
}

// String implements fmt.Stringer.
func (s Stats) String() string {
	return fmt.Sprintf("allocs=%d frees=%d failures=%d live=%d/%dB peak=%dB",
		s.Allocs, s.Frees, s.Failures, s.LiveBlocks, s.LiveBytes, s.PeakBytes)
}

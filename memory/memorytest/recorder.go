// Package memorytest provides allocator doubles for tests of code built on
// the memory façade.
package memorytest

import (
	"errors"
	"sync"
	"testing"
	"unsafe"

	"github.com/joshuapare/nativemem/memory"
	"github.com/joshuapare/nativemem/memory/goheap"
)

// ErrInjected is returned by a Recorder once its failure budget is spent.
var ErrInjected = errors.New("memorytest: injected exhaustion")

// Op names a recorded allocator call.
type Op uint8

const (
	OpAlloc Op = iota + 1
	OpAllocAligned
	OpFree
)

func (o Op) String() string {
	switch o {
	case OpAlloc:
		return "alloc"
	case OpAllocAligned:
		return "alloc-aligned"
	case OpFree:
		return "free"
	default:
		return "unknown"
	}
}

// Call is one recorded allocator call.
type Call struct {
	Op        Op
	Size      uintptr
	Alignment uintptr
	Addr      unsafe.Pointer
	Failed    bool
}

// Recorder is an Allocator that records every call and can be told to
// report exhaustion. Successful requests are served by the Go heap.
type Recorder struct {
	mu        sync.Mutex
	inner     *goheap.Allocator
	calls     []Call
	failAfter int // -1: never fail
}

// NewRecorder returns a Recorder that never fails.
func NewRecorder() *Recorder {
	return &Recorder{inner: goheap.New(), failAfter: -1}
}

// FailAfter makes every allocation after the next n fail with ErrInjected.
// FailAfter(0) fails the very next allocation; a negative n disables failure.
func (r *Recorder) FailAfter(n int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.failAfter = n
}

// AllocZeroed implements memory.Allocator.
func (r *Recorder) AllocZeroed(size uintptr) (unsafe.Pointer, error) {
	return r.alloc(OpAlloc, 0, size)
}

// AllocZeroedAligned implements memory.Allocator.
func (r *Recorder) AllocZeroedAligned(alignment, size uintptr) (unsafe.Pointer, error) {
	return r.alloc(OpAllocAligned, alignment, size)
}

func (r *Recorder) alloc(op Op, alignment, size uintptr) (unsafe.Pointer, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	call := Call{Op: op, Size: size, Alignment: alignment}
	if r.failAfter == 0 {
		call.Failed = true
		r.calls = append(r.calls, call)
		return nil, ErrInjected
	}
	if r.failAfter > 0 {
		r.failAfter--
	}

	var (
		p   unsafe.Pointer
		err error
	)
	if op == OpAllocAligned {
		p, err = r.inner.AllocZeroedAligned(alignment, size)
	} else {
		p, err = r.inner.AllocZeroed(size)
	}
	call.Addr = p
	call.Failed = err != nil
	r.calls = append(r.calls, call)
	return p, err
}

// Free implements memory.Allocator.
func (r *Recorder) Free(p unsafe.Pointer) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.calls = append(r.calls, Call{Op: OpFree, Addr: p})
	r.inner.Free(p)
}

// Calls returns a copy of the recorded calls in order.
func (r *Recorder) Calls() []Call {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Call(nil), r.calls...)
}

// Count returns how many calls of op were recorded, failed ones included.
func (r *Recorder) Count(op Op) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := 0
	for _, c := range r.calls {
		if c.Op == op {
			n++
		}
	}
	return n
}

// Allocs returns the number of allocation calls of either kind.
func (r *Recorder) Allocs() int {
	return r.Count(OpAlloc) + r.Count(OpAllocAligned)
}

// Frees returns the number of Free calls.
func (r *Recorder) Frees() int {
	return r.Count(OpFree)
}

// Reset forgets all recorded calls.
func (r *Recorder) Reset() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.calls = nil
}

// Install puts a behind the memory façade for the rest of the test.
func Install(tb testing.TB, a memory.Allocator) {
	tb.Helper()
	restore := memory.SetAllocator(a)
	tb.Cleanup(restore)
}

// InstallRecorder installs and returns a fresh Recorder.
func InstallRecorder(tb testing.TB) *Recorder {
	tb.Helper()
	r := NewRecorder()
	Install(tb, r)
	return r
}

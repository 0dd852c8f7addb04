// Package mmap is a nativemem backend that gives every block its own
// anonymous page mapping.
//
// Blocks are zero-filled by the kernel and page-aligned. Freed blocks are
// unmapped, or with Options.Quarantine set, made inaccessible and kept mapped
// so that any use after free faults immediately.
package mmap

import (
	"errors"
	"fmt"
	"log/slog"
	"math"
	"sync"
	"unsafe"

	"github.com/joshuapare/nativemem/internal/logger"
	"github.com/joshuapare/nativemem/internal/pagemap"
	"github.com/joshuapare/nativemem/internal/sizes"
)

var (
	// ErrBadAlignment indicates an alignment that is not a power of two.
	ErrBadAlignment = errors.New("mmap: alignment must be a power of two")

	// ErrTooLarge indicates a request whose mapping length overflows.
	ErrTooLarge = errors.New("mmap: request too large")

	// ErrUnknownPointer indicates a Free of an address this allocator did not return.
	ErrUnknownPointer = errors.New("mmap: unknown pointer")
)

// Options configures an Allocator.
type Options struct {
	// Quarantine keeps freed blocks mapped with all access revoked instead of
	// unmapping them. Release unmaps them.
	// Default: false
	Quarantine bool

	// Logger receives unmap and protect failures.
	// Default: logger.L
	Logger *slog.Logger
}

// DefaultOptions returns the options used when New is given nil.
func DefaultOptions() *Options {
	return &Options{}
}

// Stats is a snapshot of an Allocator's mappings.
type Stats struct {
	LiveBlocks        int
	LiveBytes         int // mapped bytes backing live blocks
	QuarantinedBlocks int
	QuarantinedBytes  int
}

// Allocator maps one region per block. It is safe for concurrent use.
type Allocator struct {
	mu          sync.Mutex
	opts        Options
	live        map[uintptr][]byte // returned address -> whole mapping
	quarantined [][]byte
	log         *slog.Logger
}

// New returns a page-mapping allocator. A nil opts means DefaultOptions.
func New(opts *Options) *Allocator {
	if opts == nil {
		opts = DefaultOptions()
	}
	return &Allocator{
		opts: *opts,
		live: make(map[uintptr][]byte),
		log:  logger.OrDefault(opts.Logger),
	}
}

// AllocZeroed maps at least size bytes. A zero size maps one page.
func (a *Allocator) AllocZeroed(size uintptr) (unsafe.Pointer, error) {
	return a.alloc(size, 1)
}

// AllocZeroedAligned maps at least size bytes at a multiple of alignment.
// Alignments above the page size are met by over-mapping.
func (a *Allocator) AllocZeroedAligned(alignment, size uintptr) (unsafe.Pointer, error) {
	if !sizes.IsPowerOfTwo(alignment) {
		return nil, fmt.Errorf("%w: %d", ErrBadAlignment, alignment)
	}
	return a.alloc(size, alignment)
}

func (a *Allocator) alloc(size, alignment uintptr) (unsafe.Pointer, error) {
	extra := uintptr(0)
	if page := uintptr(pagemap.PageSize()); alignment > page {
		extra = alignment - page
	}
	total, ok := sizes.AddOverflowSafe(max(size, 1), extra)
	if !ok || total > math.MaxInt {
		return nil, fmt.Errorf("%w: %d bytes", ErrTooLarge, size)
	}
	mem, err := pagemap.Map(int(total))
	if err != nil {
		return nil, err
	}
	base := uintptr(unsafe.Pointer(&mem[0]))
	start, _ := sizes.AlignUp(base, alignment)
	p := unsafe.Pointer(&mem[start-base])

	a.mu.Lock()
	a.live[uintptr(p)] = mem
	a.mu.Unlock()
	return p, nil
}

// Free unmaps the block at p, or quarantines it. Free(nil) is a no-op.
// An address this allocator did not return panics with ErrUnknownPointer.
func (a *Allocator) Free(p unsafe.Pointer) {
	if p == nil {
		return
	}
	a.mu.Lock()
	defer a.mu.Unlock()

	mem, ok := a.live[uintptr(p)]
	if !ok {
		panic(fmt.Errorf("%w: %p", ErrUnknownPointer, p))
	}
	delete(a.live, uintptr(p))

	if a.opts.Quarantine {
		if err := pagemap.Protect(mem); err != nil {
			a.log.Error("mmap: protect failed", "addr", fmt.Sprintf("%p", p), "err", err)
		}
		a.quarantined = append(a.quarantined, mem)
		return
	}
	if err := pagemap.Unmap(mem); err != nil {
		a.log.Error("mmap: unmap failed", "addr", fmt.Sprintf("%p", p), "err", err)
	}
}

// Release unmaps every quarantined block. Live blocks are untouched.
func (a *Allocator) Release() error {
	a.mu.Lock()
	defer a.mu.Unlock()

	var errs []error
	for _, mem := range a.quarantined {
		if err := pagemap.Unmap(mem); err != nil {
			errs = append(errs, err)
		}
	}
	a.quarantined = nil
	return errors.Join(errs...)
}

// Stats returns a snapshot of the allocator's mappings.
func (a *Allocator) Stats() Stats {
	a.mu.Lock()
	defer a.mu.Unlock()

	var s Stats
	s.LiveBlocks = len(a.live)
	for _, mem := range a.live {
		s.LiveBytes += len(mem)
	}
	s.QuarantinedBlocks = len(a.quarantined)
	for _, mem := range a.quarantined {
		s.QuarantinedBytes += len(mem)
	}
	return s
}

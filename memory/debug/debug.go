// Package debug wraps a nativemem allocator with red zones and poisoning to
// catch out-of-bounds writes, double frees and use after free.
//
// Every block gets RedZone extra bytes after it, filled with RedZoneByte.
// When a block is freed the red zone is checked and the block is overwritten
// with PoisonByte. With KeepFreed set, poisoned blocks are held back from the
// inner allocator so Verify can later detect writes through stale pointers.
package debug

import (
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"unsafe"

	"github.com/joshuapare/nativemem/internal/logger"
	"github.com/joshuapare/nativemem/internal/sizes"
	"github.com/joshuapare/nativemem/memory"
)

const (
	// RedZoneByte fills the guard bytes after every live block.
	RedZoneByte = 0xFB

	// PoisonByte fills freed blocks.
	PoisonByte = 0xDD
)

var (
	// ErrRedZoneCorrupted indicates a write past the end of a block.
	ErrRedZoneCorrupted = errors.New("debug: red zone corrupted")

	// ErrPoisonCorrupted indicates a write to a block after it was freed.
	ErrPoisonCorrupted = errors.New("debug: freed block written")

	// ErrDoubleFree indicates a Free of a block that is already freed.
	ErrDoubleFree = errors.New("debug: double free")

	// ErrUnknownPointer indicates a Free of an address this allocator did not return.
	ErrUnknownPointer = errors.New("debug: unknown pointer")

	// ErrTooLarge indicates a request that overflows once the red zone is added.
	ErrTooLarge = errors.New("debug: request too large")
)

// Options configures an Allocator.
type Options struct {
	// RedZone is the number of guard bytes after each block.
	// Default: 16
	RedZone uintptr

	// KeepFreed holds poisoned blocks instead of returning them to the inner
	// allocator, until Release. Required for Verify to detect use after free
	// and for Free to report ErrDoubleFree.
	// Default: false
	KeepFreed bool

	// Logger receives misuse reports before the panic.
	// Default: logger.L
	Logger *slog.Logger
}

// DefaultOptions returns the options used when New is given nil.
func DefaultOptions() *Options {
	return &Options{RedZone: 16}
}

// Block describes a live allocation.
type Block struct {
	Addr uintptr
	Size uintptr
}

// Allocator is a checking wrapper around another Allocator. It is safe for
// concurrent use if the inner allocator is.
type Allocator struct {
	inner   memory.Allocator
	redZone uintptr
	keep    bool
	log     *slog.Logger

	mu    sync.Mutex
	live  map[unsafe.Pointer]uintptr // address -> requested size
	freed map[unsafe.Pointer]uintptr // quarantined, only with KeepFreed
}

// New wraps inner. A nil opts means DefaultOptions.
func New(inner memory.Allocator, opts *Options) *Allocator {
	if opts == nil {
		opts = DefaultOptions()
	}
	return &Allocator{
		inner:   inner,
		redZone: opts.RedZone,
		keep:    opts.KeepFreed,
		log:     logger.OrDefault(opts.Logger),
		live:    make(map[unsafe.Pointer]uintptr),
		freed:   make(map[unsafe.Pointer]uintptr),
	}
}

// AllocZeroed implements memory.Allocator.
func (a *Allocator) AllocZeroed(size uintptr) (unsafe.Pointer, error) {
	total, ok := sizes.AddOverflowSafe(size, a.redZone)
	if !ok {
		return nil, fmt.Errorf("%w: %d bytes", ErrTooLarge, size)
	}
	p, err := a.inner.AllocZeroed(total)
	return a.track(p, err, size)
}

// AllocZeroedAligned implements memory.Allocator.
func (a *Allocator) AllocZeroedAligned(alignment, size uintptr) (unsafe.Pointer, error) {
	total, ok := sizes.AddOverflowSafe(size, a.redZone)
	if !ok {
		return nil, fmt.Errorf("%w: %d bytes", ErrTooLarge, size)
	}
	p, err := a.inner.AllocZeroedAligned(alignment, total)
	return a.track(p, err, size)
}

func (a *Allocator) track(p unsafe.Pointer, err error, size uintptr) (unsafe.Pointer, error) {
	if err != nil || p == nil {
		return p, err
	}
	fill(unsafe.Add(p, size), a.redZone, RedZoneByte)

	a.mu.Lock()
	a.live[p] = size
	a.mu.Unlock()
	return p, nil
}

// Free checks the red zone, poisons the block and releases it, or holds it
// when KeepFreed is set. Misuse panics with an error wrapping
// ErrRedZoneCorrupted, ErrDoubleFree or ErrUnknownPointer.
func (a *Allocator) Free(p unsafe.Pointer) {
	if p == nil {
		return
	}
	a.mu.Lock()
	size, ok := a.live[p]
	if !ok {
		_, wasFreed := a.freed[p]
		a.mu.Unlock()
		if wasFreed {
			panic(a.misuse(fmt.Errorf("%w: %p", ErrDoubleFree, p)))
		}
		panic(a.misuse(fmt.Errorf("%w: %p", ErrUnknownPointer, p)))
	}
	delete(a.live, p)
	if a.keep {
		a.freed[p] = size
	}
	a.mu.Unlock()

	if off, bad := firstMismatch(unsafe.Add(p, size), a.redZone, RedZoneByte); bad {
		panic(a.misuse(fmt.Errorf("%w: block %p size %d, byte %d past the end", ErrRedZoneCorrupted, p, size, off)))
	}
	fill(p, size+a.redZone, PoisonByte)
	if !a.keep {
		a.inner.Free(p)
	}
}

// misuse logs err and returns it for the caller to panic with.
func (a *Allocator) misuse(err error) error {
	a.log.Error("debug allocator misuse", "err", err)
	return err
}

// Live returns the live blocks ordered by address.
func (a *Allocator) Live() []Block {
	a.mu.Lock()
	defer a.mu.Unlock()
	out := make([]Block, 0, len(a.live))
	for p, size := range a.live {
		out = append(out, Block{Addr: uintptr(p), Size: size})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Addr < out[j].Addr })
	return out
}

// Verify checks the red zone of every live block and the poison of every
// held freed block. All failures are joined into the returned error.
func (a *Allocator) Verify() error {
	a.mu.Lock()
	defer a.mu.Unlock()

	var errs []error
	for p, size := range a.live {
		if off, bad := firstMismatch(unsafe.Add(p, size), a.redZone, RedZoneByte); bad {
			errs = append(errs, fmt.Errorf("%w: block %p size %d, byte %d past the end", ErrRedZoneCorrupted, p, size, off))
		}
	}
	for p, size := range a.freed {
		if off, bad := firstMismatch(p, size+a.redZone, PoisonByte); bad {
			errs = append(errs, fmt.Errorf("%w: block %p size %d, byte %d", ErrPoisonCorrupted, p, size, off))
		}
	}
	return errors.Join(errs...)
}

// Release hands every held freed block back to the inner allocator.
func (a *Allocator) Release() {
	a.mu.Lock()
	held := a.freed
	a.freed = make(map[unsafe.Pointer]uintptr)
	a.mu.Unlock()

	for p := range held {
		a.inner.Free(p)
	}
}

func fill(p unsafe.Pointer, n uintptr, b byte) {
	if n == 0 {
		return
	}
	buf := unsafe.Slice((*byte)(p), n)
	for i := range buf {
		buf[i] = b
	}
}

func firstMismatch(p unsafe.Pointer, n uintptr, want byte) (uintptr, bool) {
	if n == 0 {
		return 0, false
	}
	for i, b := range unsafe.Slice((*byte)(p), n) {
		if b != want {
			return uintptr(i), true
		}
	}
	return 0, false
}

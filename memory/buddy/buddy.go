// Package buddy is a nativemem backend that serves blocks from a single
// pre-mapped region using binary buddy allocation.
//
// The region is a power of two in size and aligned to its own size, so every
// block is aligned to its block size. Requests are rounded up to the next
// power of two no smaller than MinBlock. Blocks are zeroed when handed out,
// so reused memory still satisfies the zero-fill contract.
package buddy

import (
	"fmt"
	"log/slog"
	"sync"
	"unsafe"

	"github.com/joshuapare/nativemem/internal/logger"
	"github.com/joshuapare/nativemem/internal/pagemap"
	"github.com/joshuapare/nativemem/internal/sizes"
)

// Options configures an Allocator.
type Options struct {
	// RegionSize is the pool size in bytes. Must be a power of two.
	// Default: 64 MiB
	RegionSize uintptr

	// MinBlock is the smallest block handed out. Must be a power of two
	// no smaller than the word size.
	// Default: 16
	MinBlock uintptr

	// Logger receives region unmap failures.
	// Default: logger.L
	Logger *slog.Logger
}

// DefaultOptions returns the options used when New is given nil.
func DefaultOptions() *Options {
	return &Options{
		RegionSize: 64 << 20,
		MinBlock:   16,
	}
}

// Stats is a snapshot of the pool.
type Stats struct {
	TotalSize     int // region size
	AllocatedSize int // bytes held by live blocks, rounded to block sizes
	RequestedSize int // bytes requested by live blocks
	LiveBlocks    int
	FreeBlocks    int // entries across all free lists
}

type block struct {
	order     uint8
	requested uintptr
}

// Allocator is a binary buddy pool. It is safe for concurrent use.
type Allocator struct {
	mu       sync.Mutex
	mapping  []byte // whole mapping, including alignment slack
	region   []byte // RegionSize bytes aligned to RegionSize
	base     uintptr
	minOrder int
	maxOrder int
	free     []freeList // indexed by order
	live     map[uintptr]block
	stats    Stats
	log      *slog.Logger
	closed   bool
}

// New maps the region and returns a pool over it. A nil opts means DefaultOptions.
func New(opts *Options) (*Allocator, error) {
	if opts == nil {
		opts = DefaultOptions()
	}
	def := DefaultOptions()
	regionSize := opts.RegionSize
	if regionSize == 0 {
		regionSize = def.RegionSize
	}
	minBlock := opts.MinBlock
	if minBlock == 0 {
		minBlock = def.MinBlock
	}
	if !sizes.IsPowerOfTwo(regionSize) {
		return nil, fmt.Errorf("%w: %d", ErrSizeMustBePowerOfTwo, regionSize)
	}
	minBlock = max(minBlock, sizes.WordSize)
	if !sizes.IsPowerOfTwo(minBlock) || minBlock > regionSize {
		return nil, fmt.Errorf("%w: %d", ErrBadMinBlock, minBlock)
	}

	// Map twice the region so a RegionSize-aligned window always fits.
	mapLen, ok := sizes.MulOverflowSafe(regionSize, 2)
	if !ok || mapLen > uintptr(int(^uint(0)>>1)) {
		return nil, fmt.Errorf("%w: %d", ErrSizeMustBePowerOfTwo, regionSize)
	}
	mapping, err := pagemap.Map(int(mapLen))
	if err != nil {
		return nil, fmt.Errorf("buddy: map region: %w", err)
	}
	start := uintptr(unsafe.Pointer(&mapping[0]))
	aligned, _ := sizes.AlignUp(start, regionSize)
	off := aligned - start
	region := mapping[off : off+regionSize : off+regionSize]

	a := &Allocator{
		mapping:  mapping,
		region:   region,
		base:     aligned,
		minOrder: sizes.CeilLog2(minBlock),
		maxOrder: sizes.CeilLog2(regionSize),
		live:     make(map[uintptr]block),
		log:      logger.OrDefault(opts.Logger),
	}
	a.free = make([]freeList, a.maxOrder+1)
	for i := range a.free {
		a.free[i] = newFreeList()
	}
	a.free[a.maxOrder].push(0)
	a.stats.TotalSize = int(regionSize)
	return a, nil
}

// AllocZeroed returns a zeroed block of at least size bytes.
func (a *Allocator) AllocZeroed(size uintptr) (unsafe.Pointer, error) {
	return a.alloc(size, size)
}

// AllocZeroedAligned returns a zeroed block of at least size bytes aligned
// to alignment, by taking a block of at least alignment bytes.
func (a *Allocator) AllocZeroedAligned(alignment, size uintptr) (unsafe.Pointer, error) {
	if !sizes.IsPowerOfTwo(alignment) {
		return nil, fmt.Errorf("%w: %d", ErrBadAlignment, alignment)
	}
	return a.alloc(max(size, alignment), size)
}

func (a *Allocator) alloc(need, requested uintptr) (unsafe.Pointer, error) {
	order := max(sizes.CeilLog2(need), a.minOrder)

	a.mu.Lock()
	defer a.mu.Unlock()

	if a.closed {
		return nil, ErrClosed
	}
	if order > a.maxOrder {
		return nil, fmt.Errorf("%w: %d bytes exceeds region", ErrNoSpace, need)
	}

	found := -1
	for o := order; o <= a.maxOrder; o++ {
		if a.free[o].len() > 0 {
			found = o
			break
		}
	}
	if found < 0 {
		return nil, fmt.Errorf("%w: %d bytes", ErrNoSpace, need)
	}

	off, _ := a.free[found].pop()
	for o := found; o > order; o-- {
		// Split: keep the lower half, free the upper half at order o-1.
		a.free[o-1].push(off + uintptr(1)<<(o-1))
	}

	length := uintptr(1) << order
	clear(a.region[off : off+length])
	a.live[off] = block{order: uint8(order), requested: requested}
	a.stats.AllocatedSize += int(length)
	a.stats.RequestedSize += int(requested)
	a.stats.LiveBlocks++
	return unsafe.Pointer(&a.region[off]), nil
}

// Free returns the block at p to the pool, merging it with free buddies.
// Free(nil) is a no-op. A pointer that is not a live block of this pool
// panics with ErrInvalidPointer.
func (a *Allocator) Free(p unsafe.Pointer) {
	if p == nil {
		return
	}
	a.mu.Lock()
	defer a.mu.Unlock()

	addr := uintptr(p)
	if a.closed || addr < a.base || addr >= a.base+uintptr(len(a.region)) {
		panic(fmt.Errorf("%w: %p outside region", ErrInvalidPointer, p))
	}
	off := addr - a.base
	b, ok := a.live[off]
	if !ok {
		panic(fmt.Errorf("%w: %p is not a live block", ErrInvalidPointer, p))
	}
	delete(a.live, off)
	a.stats.AllocatedSize -= 1 << b.order
	a.stats.RequestedSize -= int(b.requested)
	a.stats.LiveBlocks--

	order := int(b.order)
	for order < a.maxOrder {
		buddy := off ^ (uintptr(1) << order)
		if !a.free[order].remove(buddy) {
			break
		}
		off = min(off, buddy)
		order++
	}
	a.free[order].push(off)
}

// Stats returns a snapshot of the pool.
func (a *Allocator) Stats() Stats {
	a.mu.Lock()
	defer a.mu.Unlock()
	s := a.stats
	for i := range a.free {
		s.FreeBlocks += a.free[i].len()
	}
	return s
}

// Close unmaps the region. Blocks still live become invalid.
func (a *Allocator) Close() error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.closed {
		return nil
	}
	a.closed = true
	if n := len(a.live); n > 0 {
		a.log.Warn("buddy: closing with live blocks", "live", n)
	}
	err := pagemap.Unmap(a.mapping)
	a.mapping, a.region = nil, nil
	return err
}

// Package tracing logs every call to a nativemem allocator through slog.
package tracing

import (
	"context"
	"fmt"
	"log/slog"
	"unsafe"

	"github.com/joshuapare/nativemem/internal/logger"
	"github.com/joshuapare/nativemem/memory"
)

// Allocator logs calls to an inner allocator. Successful calls go out at
// Debug, failed allocations at Warn.
type Allocator struct {
	inner memory.Allocator
	log   *slog.Logger
}

// New wraps inner. A nil log means logger.L.
func New(inner memory.Allocator, log *slog.Logger) *Allocator {
	return &Allocator{inner: inner, log: logger.OrDefault(log)}
}

// AllocZeroed implements memory.Allocator.
func (a *Allocator) AllocZeroed(size uintptr) (unsafe.Pointer, error) {
	p, err := a.inner.AllocZeroed(size)
	a.alloc("alloc", size, 0, p, err)
	return p, err
}

// AllocZeroedAligned implements memory.Allocator.
func (a *Allocator) AllocZeroedAligned(alignment, size uintptr) (unsafe.Pointer, error) {
	p, err := a.inner.AllocZeroedAligned(alignment, size)
	a.alloc("alloc_aligned", size, alignment, p, err)
	return p, err
}

func (a *Allocator) alloc(op string, size, alignment uintptr, p unsafe.Pointer, err error) {
	level := slog.LevelDebug
	if err != nil || p == nil {
		level = slog.LevelWarn
	}
	if !a.log.Enabled(context.Background(), level) {
		return
	}
	attrs := []slog.Attr{
		slog.String("op", op),
		slog.Uint64("size", uint64(size)),
		slog.Uint64("alignment", uint64(alignment)),
		slog.String("addr", addr(p)),
	}
	if err != nil {
		attrs = append(attrs, slog.Any("err", err))
	}
	a.log.LogAttrs(context.Background(), level, "allocator call", attrs...)
}

// Free implements memory.Allocator.
func (a *Allocator) Free(p unsafe.Pointer) {
	a.inner.Free(p)
	a.log.LogAttrs(context.Background(), slog.LevelDebug, "allocator call",
		slog.String("op", "free"),
		slog.String("addr", addr(p)),
	)
}

func addr(p unsafe.Pointer) string {
	return fmt.Sprintf("%#x", uintptr(p))
}

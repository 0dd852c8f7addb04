package main

import (
	"errors"
	"fmt"
	"sync/atomic"
	"unsafe"

	"github.com/joshuapare/nativemem/memory"
)

// ring is the number of arrays kept live across iterations.
const ring = 8

type workload struct {
	count int
	size  uintptr
	align uintptr

	// progress, if set, is called every progressEvery iterations and once at the end.
	progress func(done, total int)
}

const progressEvery = 1000

// header is the fixed part of a sized tail object.
type header struct {
	Len uint32
	Seq uint32
}

// record is a managed object. Destroy counts destructions so the workload
// can check every constructed record was destroyed exactly once.
type record struct {
	memory.Managed
	ID  uint64
	Sum uint64
}

var destroyedRecords atomic.Int64

func (r *record) Destroy() {
	destroyedRecords.Add(1)
}

var errCorrupt = errors.New("workload: data mismatch")

func runWorkload(w workload) (err error) {
	var held [ring][]uint32
	defer func() {
		for _, s := range held {
			memory.FreeArray(s)
		}
	}()

	startDestroyed := destroyedRecords.Load()
	var created int64
	for i := range w.count {
		slot := i % ring
		memory.FreeArray(held[slot])
		held[slot] = nil
		if held[slot], err = arrays(i, w.size); err != nil {
			return err
		}
		if err := constructed(i); err != nil {
			return err
		}
		if err := sized(i, w.size); err != nil {
			return err
		}
		n, err := managed(i)
		created += n
		if err != nil {
			return err
		}
		if err := aligned(w.size, w.align); err != nil {
			return err
		}
		if w.progress != nil && (i+1)%progressEvery == 0 {
			w.progress(i+1, w.count)
		}
	}
	if w.progress != nil && w.count%progressEvery != 0 {
		w.progress(w.count, w.count)
	}
	if got := destroyedRecords.Load() - startDestroyed; got != created {
		return fmt.Errorf("%w: %d records created, %d destroyed", errCorrupt, created, got)
	}
	return nil
}

func arrays(i int, size uintptr) ([]uint32, error) {
	n := max(int(size/4), 1)
	s, err := memory.AllocArray[uint32](n)
	if err != nil {
		return nil, fmt.Errorf("array %d: %w", i, err)
	}
	for j := range s {
		if s[j] != 0 {
			memory.FreeArray(s)
			return nil, fmt.Errorf("%w: array %d not zeroed at %d", errCorrupt, i, j)
		}
		s[j] = uint32(i + j)
	}
	return s, nil
}

func constructed(i int) error {
	h, err := memory.Construct(func(h *header) error {
		h.Seq = uint32(i)
		return nil
	})
	if err != nil {
		return fmt.Errorf("construct %d: %w", i, err)
	}
	defer memory.Destruct(h)
	if h.Seq != uint32(i) || h.Len != 0 {
		return fmt.Errorf("%w: header %d", errCorrupt, i)
	}
	return nil
}

func sized(i int, payload uintptr) error {
	size := unsafe.Sizeof(header{}) + payload
	h, err := memory.ConstructSized(size, func(h *header) error {
		h.Seq = uint32(i)
		return nil
	})
	if err != nil {
		return fmt.Errorf("sized %d: %w", i, err)
	}
	defer memory.Destruct(h)

	tail, err := memory.Trailing[byte](h, size)
	if err != nil {
		return fmt.Errorf("sized %d: %w", i, err)
	}
	for j := range tail {
		tail[j] = byte(i + j)
	}
	h.Len = uint32(len(tail))
	return nil
}

func managed(i int) (created int64, err error) {
	r, err := memory.New(func(r *record) error {
		r.ID = uint64(i)
		return nil
	})
	if err != nil {
		return 0, fmt.Errorf("new record %d: %w", i, err)
	}
	created++
	memory.Delete(r)

	if i%16 != 0 {
		return created, nil
	}
	rs, err := memory.NewArray(4, func(j int, r *record) error {
		r.ID = uint64(i + j)
		return nil
	})
	if err != nil {
		return created, fmt.Errorf("new record array %d: %w", i, err)
	}
	created += int64(len(rs))
	memory.DeleteArray(rs)
	return created, nil
}

func aligned(size, align uintptr) error {
	p, err := memory.AllocAligned(size, align)
	if err != nil {
		return fmt.Errorf("aligned: %w", err)
	}
	defer memory.Free(p)
	if uintptr(p)%align != 0 {
		return fmt.Errorf("%w: %p not aligned to %d", errCorrupt, p, align)
	}
	return nil
}

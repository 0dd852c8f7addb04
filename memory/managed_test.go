package memory_test

import (
	"errors"
	"testing"
	"unsafe"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/joshuapare/nativemem/memory"
	"github.com/joshuapare/nativemem/memory/memorytest"
)

var destroyLog []uint64

type node struct {
	memory.Managed
	ID     uint64
	Weight int32
}

func (n *node) Destroy() {
	destroyLog = append(destroyLog, n.ID)
}

// plainManaged has no Destroy method.
type plainManaged struct {
	memory.Managed
	Bits uint32
}

// marker has no fields besides the capability, so its size is zero.
type marker struct {
	memory.Managed
}

var markerDestroys int

func (*marker) Destroy() {
	markerDestroys++
}

type managedWithString struct {
	memory.Managed
	Label string
}

// recoverError runs fn and returns the error it panicked with, if any.
func recoverError(fn func()) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err, _ = r.(error)
		}
	}()
	fn()
	return nil
}

func TestNew_RoutesThroughFacadeOnce(t *testing.T) {
	rec := memorytest.InstallRecorder(t)
	destroyLog = nil

	n, err := memory.New[node](func(n *node) error {
		n.ID = 7
		n.Weight = 42
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, int32(42), n.Weight)
	require.Equal(t, 1, rec.Allocs(), "exactly one allocator call per New")
	assert.Equal(t, unsafe.Pointer(n), rec.Calls()[0].Addr, "object lives in the façade block")
	assert.Equal(t, unsafe.Sizeof(node{}), rec.Calls()[0].Size)

	memory.Delete(n)
	assert.Equal(t, 1, rec.Frees(), "exactly one release per Delete")
	assert.Equal(t, unsafe.Pointer(n), rec.Calls()[1].Addr)
	assert.Equal(t, []uint64{7}, destroyLog)
}

func TestNew_WithoutDestroy(t *testing.T) {
	rec := memorytest.InstallRecorder(t)

	p, err := memory.New[plainManaged](nil)
	require.NoError(t, err)
	assert.Zero(t, p.Bits)
	memory.Delete(p)
	assert.Equal(t, 1, rec.Frees())
}

func TestNew_BareManagedRejected(t *testing.T) {
	rec := memorytest.InstallRecorder(t)

	m, err := memory.New[memory.Managed](nil)
	require.ErrorIs(t, err, memory.ErrBareManaged)
	assert.Nil(t, m)

	_, err = memory.NewArray[memory.Managed](3, nil)
	require.ErrorIs(t, err, memory.ErrBareManaged)

	assert.Zero(t, rec.Allocs())
}

func TestDelete_ThroughManagedPanics(t *testing.T) {
	rec := memorytest.InstallRecorder(t)

	n, err := memory.New[node](nil)
	require.NoError(t, err)

	err = recoverError(func() {
		memory.Delete(&n.Managed)
	})
	require.ErrorIs(t, err, memory.ErrBareManaged)
	assert.Zero(t, rec.Frees(), "nothing may be freed through *Managed")

	memory.Delete(n)
	assert.Equal(t, 1, rec.Frees())
}

func TestDelete_Nil(t *testing.T) {
	rec := memorytest.InstallRecorder(t)
	memory.Delete[node](nil)
	memory.DeleteArray[node](nil)
	assert.Zero(t, rec.Frees())
}

func TestNew_ExhaustionSkipsInit(t *testing.T) {
	rec := memorytest.InstallRecorder(t)
	rec.FailAfter(0)

	called := false
	n, err := memory.New[node](func(*node) error {
		called = true
		return nil
	})
	require.ErrorIs(t, err, memory.ErrExhausted)
	assert.Nil(t, n)
	assert.False(t, called)
}

func TestNew_InitFailureFrees(t *testing.T) {
	rec := memorytest.InstallRecorder(t)
	destroyLog = nil

	boom := errors.New("boom")
	_, err := memory.New[node](func(*node) error { return boom })
	require.ErrorIs(t, err, boom)
	assert.Equal(t, 1, rec.Frees())
	assert.Empty(t, destroyLog)
}

func TestNew_RejectsPointerFields(t *testing.T) {
	rec := memorytest.InstallRecorder(t)

	_, err := memory.New[managedWithString](nil)
	require.ErrorIs(t, err, memory.ErrHasPointers)
	assert.Zero(t, rec.Allocs())
}

func TestNewArray_SingleBlockReverseDestroy(t *testing.T) {
	rec := memorytest.InstallRecorder(t)
	destroyLog = nil

	nodes, err := memory.NewArray[node](4, func(i int, n *node) error {
		n.ID = uint64(i)
		return nil
	})
	require.NoError(t, err)
	require.Len(t, nodes, 4)
	assert.Equal(t, 1, rec.Allocs())
	assert.Equal(t, 4*unsafe.Sizeof(node{}), rec.Calls()[0].Size)
	for i := range nodes {
		assert.Equal(t, uint64(i), nodes[i].ID)
	}

	memory.DeleteArray[node](nodes)
	assert.Equal(t, []uint64{3, 2, 1, 0}, destroyLog)
	assert.Equal(t, 1, rec.Frees())
}

func TestNewArray_InitFailureUnwinds(t *testing.T) {
	rec := memorytest.InstallRecorder(t)
	destroyLog = nil

	boom := errors.New("boom")
	nodes, err := memory.NewArray[node](5, func(i int, n *node) error {
		if i == 2 {
			return boom
		}
		n.ID = uint64(i)
		return nil
	})
	require.ErrorIs(t, err, boom)
	assert.Nil(t, nodes)
	assert.Equal(t, []uint64{1, 0}, destroyLog, "only constructed elements are destroyed, last first")
	assert.Equal(t, 1, rec.Frees())
}

func TestNewArray_Zero(t *testing.T) {
	rec := memorytest.InstallRecorder(t)

	nodes, err := memory.NewArray[node](0, nil)
	require.NoError(t, err)
	assert.Nil(t, nodes)
	assert.Zero(t, rec.Allocs())
}

func TestNewArray_ZeroSizeElements(t *testing.T) {
	rec := memorytest.InstallRecorder(t)
	markerDestroys = 0

	inits := 0
	ms, err := memory.NewArray(5, func(i int, m *marker) error {
		inits++
		return nil
	})
	require.NoError(t, err)
	require.Len(t, ms, 5)
	assert.Equal(t, 5, inits)
	_ = &ms[3]

	memory.DeleteArray(ms)
	assert.Equal(t, 5, markerDestroys)
	assert.Zero(t, rec.Allocs(), "zero-size arrays own no block")
	assert.Zero(t, rec.Frees())
}

func TestNew_InitPanicFrees(t *testing.T) {
	rec := memorytest.InstallRecorder(t)

	assert.Panics(t, func() {
		_, _ = memory.New(func(n *node) error {
			panic("half built")
		})
	})
	assert.Equal(t, 1, rec.Allocs())
	assert.Equal(t, 1, rec.Frees())
}

func TestNewArray_InitPanicUnwinds(t *testing.T) {
	rec := memorytest.InstallRecorder(t)
	destroyLog = nil

	assert.Panics(t, func() {
		_, _ = memory.NewArray(4, func(i int, n *node) error {
			if i == 2 {
				panic("half built")
			}
			n.ID = uint64(i)
			return nil
		})
	})
	assert.Equal(t, []uint64{1, 0}, destroyLog)
	assert.Equal(t, 1, rec.Frees())
}

func TestPlace_PassThrough(t *testing.T) {
	rec := memorytest.InstallRecorder(t)
	destroyLog = nil

	storage, err := memory.Alloc(unsafe.Sizeof(node{}))
	require.NoError(t, err)

	n := memory.Place[node](storage)
	assert.Equal(t, storage, unsafe.Pointer(n), "placement returns the given address")
	assert.Equal(t, 1, rec.Allocs(), "placement does not allocate")

	n.ID = 11
	memory.Delete(n)
	assert.Equal(t, []uint64{11}, destroyLog)
	assert.Equal(t, 1, rec.Frees())
}

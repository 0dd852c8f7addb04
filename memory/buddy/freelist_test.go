package buddy

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFreeList(t *testing.T) {
	f := newFreeList()
	f.push(0)
	f.push(64)
	f.push(128)
	require.Equal(t, 3, f.len())

	assert.True(t, f.remove(0), "removing from the front swaps the last entry in")
	assert.False(t, f.remove(0))
	assert.Equal(t, 2, f.len())

	off, ok := f.pop()
	require.True(t, ok)
	assert.Equal(t, uintptr(64), off)

	assert.True(t, f.remove(128))
	_, ok = f.pop()
	assert.False(t, ok)
}

package buddy

// freeList is the set of free block offsets of one order. Offsets are kept in
// a slice for O(1) pop and indexed by a map for O(1) removal of a buddy.
type freeList struct {
	offs []uintptr
	idx  map[uintptr]int
}

func newFreeList() freeList {
	return freeList{idx: make(map[uintptr]int)}
}

func (f *freeList) push(off uintptr) {
	f.idx[off] = len(f.offs)
	f.offs = append(f.offs, off)
}

// pop removes and returns the most recently pushed offset.
func (f *freeList) pop() (uintptr, bool) {
	n := len(f.offs)
	if n == 0 {
		return 0, false
	}
	off := f.offs[n-1]
	f.offs = f.offs[:n-1]
	delete(f.idx, off)
	return off, true
}

// remove deletes off if present and reports whether it was.
func (f *freeList) remove(off uintptr) bool {
	i, ok := f.idx[off]
	if !ok {
		return false
	}
	last := len(f.offs) - 1
	if i != last {
		moved := f.offs[last]
		f.offs[i] = moved
		f.idx[moved] = i
	}
	f.offs = f.offs[:last]
	delete(f.idx, off)
	return true
}

func (f *freeList) len() int {
	return len(f.offs)
}

package bufferpool

// freeList is a LIFO stack of unbound slot indices.
type freeList struct {
	stack []int
}

func newFreeList(capacity int) *freeList {
	return &freeList{stack: make([]int, 0, capacity)}
}

func (f *freeList) push(idx int) {
	f.stack = append(f.stack, idx)
}

func (f *freeList) pop() (int, bool) {
	n := len(f.stack)
	if n == 0 {
		return -1, false
	}
	idx := f.stack[n-1]
	f.stack = f.stack[:n-1]
	return idx, true
}

func (f *freeList) len() int { return len(f.stack) }

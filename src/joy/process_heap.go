// This file was automatically generated by genny.
// Any changes will be lost if this file is regenerated.
// see https://github.com/cheekybits/genny

package joy

// ProcessHeapArity is the number of children of each node.  Four keeps the
// tree shallow and the children of a node on one cache line.
const ProcessHeapArity = 4

type ProcessHeapNode struct {
	key   uint64
	value *Process
}

// Key returns the node's priority.
func (g *ProcessHeapNode) Key() uint64 {
	return g.key
}

// Value returns the node's element.
func (g *ProcessHeapNode) Value() *Process {
	return g.value
}

// ProcessMinHeap is a bounded d-ary min heap of *Process ordered by a
// uint64 key.  It is not concurrent safe.  Elements with equal keys come out
// in no particular order.
type ProcessMinHeap struct {
	nodes []ProcessHeapNode
	len   int
}

// NewProcessMinHeap returns an empty heap that holds at most capacity
// elements.  All storage is allocated here, Push never allocates.
// Note: It returns a value, not a pointer but the methods have
// pointer receivers.
func NewProcessMinHeap(capacity int) ProcessMinHeap {
	return ProcessMinHeap{nodes: make([]ProcessHeapNode, capacity)}
}

func (g *ProcessMinHeap) Len() int {
	return g.len
}

func (g *ProcessMinHeap) Cap() int {
	return len(g.nodes)
}

func (g *ProcessMinHeap) Empty() bool {
	return g.len == 0
}

func (g *ProcessMinHeap) Full() bool {
	return g.len == len(g.nodes)
}

// Push inserts value with the given key.  It returns false, and changes
// nothing, when the heap is full.
func (g *ProcessMinHeap) Push(key uint64, value *Process) bool {
	if g.Full() {
		return false
	}
	i := g.len
	g.len++
	g.nodes[i] = ProcessHeapNode{key: key, value: value}
	g.siftUp(i)
	return true
}

// Peek returns the minimum without removing it.  The last result is false
// when the heap is empty.
func (g *ProcessMinHeap) Peek() (uint64, *Process, bool) {
	if g.Empty() {
		return 0, nil, false
	}
	return g.nodes[0].key, g.nodes[0].value, true
}

// Pop removes and returns the minimum.  The last result is false when the
// heap is empty.
func (g *ProcessMinHeap) Pop() (uint64, *Process, bool) {
	if g.Empty() {
		return 0, nil, false
	}
	min := g.nodes[0]
	g.len--
	g.nodes[0] = g.nodes[g.len]
	g.nodes[g.len] = ProcessHeapNode{}
	if g.len > 0 {
		g.siftDown(0)
	}
	return min.key, min.value, true
}

// TraverseProcess calls fn on every element in storage order (not key
// order).  It stops at the first error and returns it.
func (g *ProcessMinHeap) TraverseProcess(fn func(key uint64, value *Process) error) error {
	for i := 0; i < g.len; i++ {
		if err := fn(g.nodes[i].key, g.nodes[i].value); err != nil {
			return err
		}
	}
	return nil
}

func (g *ProcessMinHeap) siftUp(i int) {
	for i > 0 {
		p := (i - 1) / ProcessHeapArity
		if g.nodes[p].key <= g.nodes[i].key {
			break
		}
		g.nodes[p], g.nodes[i] = g.nodes[i], g.nodes[p]
		i = p
	}
}

func (g *ProcessMinHeap) siftDown(i int) {
	for {
		best := i
		first := ProcessHeapArity*i + 1
		if first >= g.len {
			return
		}
		last := first + ProcessHeapArity
		if last > g.len {
			last = g.len
		}
		for c := first; c < last; c++ {
			if g.nodes[c].key < g.nodes[best].key {
				best = c
			}
		}
		if best == i {
			return
		}
		g.nodes[i], g.nodes[best] = g.nodes[best], g.nodes[i]
		i = best
	}
}

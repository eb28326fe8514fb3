package gen

import (
	"github.com/cheekybits/genny/generic"
)

type Generic generic.Type

// GenericHeapArity is the number of children of each node.  Four keeps the
// tree shallow and the children of a node on one cache line.
const GenericHeapArity = 4

type GenericHeapNode struct {
	key   uint64
	value *Generic
}

// Key returns the node's priority.
func (g *GenericHeapNode) Key() uint64 {
	return g.key
}

// Value returns the node's element.
func (g *GenericHeapNode) Value() *Generic {
	return g.value
}

// GenericMinHeap is a bounded d-ary min heap of *Generic ordered by a
// uint64 key.  It is not concurrent safe.  Elements with equal keys come out
// in no particular order.
type GenericMinHeap struct {
	nodes []GenericHeapNode
	len   int
}

// NewGenericMinHeap returns an empty heap that holds at most capacity
// elements.  All storage is allocated here, Push never allocates.
// Note: It returns a value, not a pointer but the methods have
// pointer receivers.
func NewGenericMinHeap(capacity int) GenericMinHeap {
	return GenericMinHeap{nodes: make([]GenericHeapNode, capacity)}
}

func (g *GenericMinHeap) Len() int {
	return g.len
}

func (g *GenericMinHeap) Cap() int {
	return len(g.nodes)
}

func (g *GenericMinHeap) Empty() bool {
	return g.len == 0
}

func (g *GenericMinHeap) Full() bool {
	return g.len == len(g.nodes)
}

// Push inserts value with the given key.  It returns false, and changes
// nothing, when the heap is full.
func (g *GenericMinHeap) Push(key uint64, value *Generic) bool {
	if g.Full() {
		return false
	}
	i := g.len
	g.len++
	g.nodes[i] = GenericHeapNode{key: key, value: value}
	g.siftUp(i)
	return true
}

// Peek returns the minimum without removing it.  The last result is false
// when the heap is empty.
func (g *GenericMinHeap) Peek() (uint64, *Generic, bool) {
	if g.Empty() {
		return 0, nil, false
	}
	return g.nodes[0].key, g.nodes[0].value, true
}

// Pop removes and returns the minimum.  The last result is false when the
// heap is empty.
func (g *GenericMinHeap) Pop() (uint64, *Generic, bool) {
	if g.Empty() {
		return 0, nil, false
	}
	min := g.nodes[0]
	g.len--
	g.nodes[0] = g.nodes[g.len]
	g.nodes[g.len] = GenericHeapNode{}
	if g.len > 0 {
		g.siftDown(0)
	}
	return min.key, min.value, true
}

// TraverseGeneric calls fn on every element in storage order (not key
// order).  It stops at the first error and returns it.
func (g *GenericMinHeap) TraverseGeneric(fn func(key uint64, value *Generic) error) error {
	for i := 0; i < g.len; i++ {
		if err := fn(g.nodes[i].key, g.nodes[i].value); err != nil {
			return err
		}
	}
	return nil
}

func (g *GenericMinHeap) siftUp(i int) {
	for i > 0 {
		p := (i - 1) / GenericHeapArity
		if g.nodes[p].key <= g.nodes[i].key {
			break
		}
		g.nodes[p], g.nodes[i] = g.nodes[i], g.nodes[p]
		i = p
	}
}

func (g *GenericMinHeap) siftDown(i int) {
	for {
		best := i
		first := GenericHeapArity*i + 1
		if first >= g.len {
			return
		}
		last := first + GenericHeapArity
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

// This file was automatically generated by genny.
// Any changes will be lost if this file is regenerated.
// see https://github.com/cheekybits/genny

package joy

// ProcessFreeList is a fixed capacity stack of *Process.  It hands out the
// unused elements of a preallocated table, most recently returned first.
type ProcessFreeList struct {
	items []*Process
	top   int
}

// NewProcessFreeList returns an empty free list for up to capacity elements.
func NewProcessFreeList(capacity int) ProcessFreeList {
	return ProcessFreeList{items: make([]*Process, capacity)}
}

func (g *ProcessFreeList) Len() int {
	return g.top
}

func (g *ProcessFreeList) Cap() int {
	return len(g.items)
}

func (g *ProcessFreeList) Empty() bool {
	return g.top == 0
}

// Push returns an element to the list.  It returns false when the list is
// already full, which means something was returned twice.
func (g *ProcessFreeList) Push(v *Process) bool {
	if g.top == len(g.items) {
		return false
	}
	g.items[g.top] = v
	g.top++
	return true
}

// Pop takes an element off the list, nil when it is empty.
func (g *ProcessFreeList) Pop() *Process {
	if g.top == 0 {
		return nil
	}
	g.top--
	v := g.items[g.top]
	g.items[g.top] = nil
	return v
}

package gen

// GenericFreeList is a fixed capacity stack of *Generic.  It hands out the
// unused elements of a preallocated table, most recently returned first.
type GenericFreeList struct {
	items []*Generic
	top   int
}

// NewGenericFreeList returns an empty free list for up to capacity elements.
func NewGenericFreeList(capacity int) GenericFreeList {
	return GenericFreeList{items: make([]*Generic, capacity)}
}

func (g *GenericFreeList) Len() int {
	return g.top
}

func (g *GenericFreeList) Cap() int {
	return len(g.items)
}

func (g *GenericFreeList) Empty() bool {
	return g.top == 0
}

// Push returns an element to the list.  It returns false when the list is
// already full, which means something was returned twice.
func (g *GenericFreeList) Push(v *Generic) bool {
	if g.top == len(g.items) {
		return false
	}
	g.items[g.top] = v
	g.top++
	return true
}

// Pop takes an element off the list, nil when it is empty.
func (g *GenericFreeList) Pop() *Generic {
	if g.top == 0 {
		return nil
	}
	g.top--
	v := g.items[g.top]
	g.items[g.top] = nil
	return v
}

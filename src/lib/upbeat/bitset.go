package upbeat

// BitSet is a fixed size set of bits.  Sizes are multiples of 64.
type BitSet struct {
	size uint32
	data []uint64
}

type BitIndex uint32

//bitsets have to be multiples of 64.  returns nil for other sizes.
func NewBitSet(size uint32) *BitSet {
	mask := ^(uint32(0x3f))
	if size&mask != size || size == 0 {
		return nil
	}
	return &BitSet{
		data: make([]uint64, size>>6),
		size: size,
	}
}

func (b *BitSet) Size() uint32 {
	return b.size
}

func (b *BitSet) On(bit BitIndex) bool {
	if uint32(bit) >= b.size {
		return false
	}
	mask := uint64(1) << (bit % 64) //which bit in the right word
	return b.data[bit>>6]&mask != 0
}

func (b *BitSet) Set(bit BitIndex) {
	KAssert(uint32(bit) < b.size, "bit < size")
	b.data[bit>>6] |= uint64(1) << (bit % 64)
}

func (b *BitSet) Clear(bit BitIndex) {
	KAssert(uint32(bit) < b.size, "bit < size")
	b.data[bit>>6] &^= uint64(1) << (bit % 64)
}

func (b *BitSet) ClearAll() {
	for i := range b.data {
		b.data[i] = 0
	}
}

// Count is the number of bits that are on.
func (b *BitSet) Count() int {
	n := 0
	for _, w := range b.data {
		for ; w != 0; w &= w - 1 {
			n++
		}
	}
	return n
}

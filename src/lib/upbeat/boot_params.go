package upbeat

// BootParams is the block the host driver fills in before it starts the
// core.  Addresses are physical.  The heap, code and ring regions sit back to
// back in the shared window in that order.
type BootParams struct {
	EntryPoint  uint64
	KernelStart uint64
	KernelLast  uint64
	CounterFreq uint64
	HeapStart   uint64
	HeapEnd     uint64
	CodeStart   uint64
	CodeEnd     uint64
	RingStart   uint64
	RingSlots   uint64
}

// Validate reports the first thing wrong with the layout, or "" when it is
// usable.
func (b *BootParams) Validate() string {
	switch {
	case b.KernelLast <= b.KernelStart:
		return "kernel image is empty"
	case b.HeapEnd <= b.HeapStart:
		return "heap is empty"
	case b.CodeStart < b.HeapEnd:
		return "code region overlaps heap"
	case b.CodeEnd < b.CodeStart:
		return "code region is inverted"
	case b.RingStart < b.CodeEnd:
		return "ring overlaps code region"
	case b.RingSlots == 0 || b.RingSlots&(b.RingSlots-1) != 0:
		return "ring slot count is not a power of two"
	case b.CounterFreq == 0:
		return "counter frequency is zero"
	}
	return ""
}

package upbeat

import (
	"encoding/binary"
	"fmt"

	"rtcore/src/lib/trust"
)

// Every block starts with a header of 32 bit fields.  prev is the distance
// back to the previous block (0 for the first), next is the distance to the
// next block and so is the size of the block including its header.  Free
// blocks also carry the distance forward to the next free block (or to the
// end of the arena when there is none) and back to the previous free block
// (0 when there is none).  Distances keep the metadata valid no matter where
// the arena is mapped.
//
// +------+------+------+-----------+-----------+
// | prev | next | used | next_free | prev_free |
// +------+------+------+-----------+-----------+
//  0      4      8      12          16          20
const (
	hdrPrev     = 0
	hdrNext     = 4
	hdrUsed     = 8
	hdrNextFree = 12
	hdrPrevFree = 16
)

const UsedHeaderSize = 12
const FreeHeaderSize = 20

// MinSplitThreshold is the smallest remainder worth turning into its own
// free block.
const MinSplitThreshold = 2 * FreeHeaderSize

const blockAlign = 4
const maxArena = 0xffff_fffc

// Allocator is a best fit allocator over a single arena.  Addresses handed
// out are physical: the arena's base address plus an offset.  A zero address
// is the null result.
type Allocator struct {
	base  uint64
	arena []byte
	end   uint32
	free  uint32 //first free block, end when there is none
	used  uint64
	nused int
}

// NewAllocator returns an allocator managing arena, whose first byte lives
// at physical address base.
func NewAllocator(base uint64, arena []byte) *Allocator {
	a := &Allocator{}
	a.Init(base, arena)
	return a
}

// Init makes the whole arena a single free block.
func (a *Allocator) Init(base uint64, arena []byte) {
	KAssert(base%blockAlign == 0, "base%blockAlign == 0")
	size := uint64(len(arena)) &^ (blockAlign - 1)
	if size > maxArena {
		size = maxArena
	}
	KAssert(size >= FreeHeaderSize, "size >= FreeHeaderSize")
	a.base = base
	a.arena = arena[:size]
	a.end = uint32(size)
	a.free = 0
	a.used = 0
	a.nused = 0
	a.put(0, hdrPrev, 0)
	a.put(0, hdrNext, a.end)
	a.put(0, hdrUsed, 0)
	a.setNextFree(0, a.end)
	a.clearPrevFree(0)
}

func (a *Allocator) get(b uint32, field uint32) uint32 {
	return binary.LittleEndian.Uint32(a.arena[b+field:])
}

func (a *Allocator) put(b uint32, field uint32, v uint32) {
	binary.LittleEndian.PutUint32(a.arena[b+field:], v)
}

func (a *Allocator) size(b uint32) uint32 {
	return a.get(b, hdrNext)
}

func (a *Allocator) isUsed(b uint32) bool {
	return a.get(b, hdrUsed) != 0
}

func (a *Allocator) nextFree(b uint32) uint32 {
	return b + a.get(b, hdrNextFree)
}

func (a *Allocator) setNextFree(b uint32, nf uint32) {
	a.put(b, hdrNextFree, nf-b)
}

func (a *Allocator) prevFree(b uint32) (uint32, bool) {
	d := a.get(b, hdrPrevFree)
	if d == 0 {
		return 0, false
	}
	return b - d, true
}

func (a *Allocator) setPrevFree(b uint32, pf uint32) {
	a.put(b, hdrPrevFree, b-pf)
}

func (a *Allocator) clearPrevFree(b uint32) {
	a.put(b, hdrPrevFree, 0)
}

func (a *Allocator) addr(b uint32) uint64 {
	return a.base + uint64(b) + UsedHeaderSize
}

func blockSizeFor(n uint64) uint32 {
	s := (n + UsedHeaderSize + blockAlign - 1) &^ (blockAlign - 1)
	if s < FreeHeaderSize {
		s = FreeHeaderSize
	}
	return uint32(s)
}

// Alloc returns the address of at least n usable bytes, or 0 when no free
// block is large enough.  The smallest free block that fits is used, the
// lowest address wins a tie.
func (a *Allocator) Alloc(n uint64) uint64 {
	if n > uint64(a.end) {
		return 0
	}
	need := blockSizeFor(n)
	best, bestSize := a.end, uint32(0)
	for b := a.free; b != a.end; b = a.nextFree(b) {
		s := a.size(b)
		if s >= need && (best == a.end || s < bestSize) {
			best, bestSize = b, s
		}
	}
	if best == a.end {
		return 0
	}
	if bestSize-need >= MinSplitThreshold {
		a.split(best, need)
	}
	a.take(best)
	return a.addr(best)
}

// AlignedAlloc is Alloc with the returned address a multiple of align, which
// must be a power of two.  An unaligned head is split off and left free.
func (a *Allocator) AlignedAlloc(n uint64, align uint64) uint64 {
	if align == 0 || align&(align-1) != 0 {
		return 0
	}
	if align <= blockAlign {
		return a.Alloc(n)
	}
	if n > uint64(a.end) {
		return 0
	}
	need := blockSizeFor(n)
	best, bestSize, bestGap := a.end, uint32(0), uint32(0)
	for b := a.free; b != a.end; b = a.nextFree(b) {
		s := a.size(b)
		gap := a.alignGap(b, align)
		if uint64(s) >= uint64(gap)+uint64(need) && (best == a.end || s < bestSize) {
			best, bestSize, bestGap = b, s, gap
		}
	}
	if best == a.end {
		return 0
	}
	b := best
	if bestGap > 0 {
		a.split(b, bestGap)
		b += bestGap
	}
	if a.size(b)-need >= MinSplitThreshold {
		a.split(b, need)
	}
	a.take(b)
	return a.addr(b)
}

// alignGap is how far block b's header has to move so its payload lands on
// align.  A non zero gap is always big enough to be a free block itself.
func (a *Allocator) alignGap(b uint32, align uint64) uint32 {
	p := a.addr(b)
	gap := (align - p%align) % align
	for gap != 0 && gap < FreeHeaderSize {
		gap += align
	}
	if gap > uint64(a.end) {
		return a.end
	}
	return uint32(gap)
}

// split cuts free block b after size bytes.  Both halves stay free and in
// address order on the free list.
func (a *Allocator) split(b uint32, size uint32) {
	rest := a.size(b) - size
	nf := a.nextFree(b)
	s := b + size
	a.put(s, hdrPrev, size)
	a.put(s, hdrNext, rest)
	a.put(s, hdrUsed, 0)
	a.setNextFree(s, nf)
	a.setPrevFree(s, b)
	if nf != a.end {
		a.setPrevFree(nf, s)
	}
	a.setNextFree(b, s)
	a.put(b, hdrNext, size)
	if n := s + rest; n != a.end {
		a.put(n, hdrPrev, rest)
	}
}

// take unlinks free block b from the free list and marks it used.
func (a *Allocator) take(b uint32) {
	nf := a.nextFree(b)
	pf, hasPrev := a.prevFree(b)
	if hasPrev {
		a.setNextFree(pf, nf)
	} else {
		a.free = nf
	}
	if nf != a.end {
		if hasPrev {
			a.setPrevFree(nf, pf)
		} else {
			a.clearPrevFree(nf)
		}
	}
	a.put(b, hdrUsed, 1)
	a.used += uint64(a.size(b))
	a.nused++
}

// merge folds the free block that directly follows x into x.  Both must be
// free and neighbors on the free list.
func (a *Allocator) merge(x uint32) {
	y := x + a.size(x)
	ny := a.nextFree(y)
	size := a.size(x) + a.size(y)
	a.put(x, hdrNext, size)
	a.setNextFree(x, ny)
	if ny != a.end {
		a.setPrevFree(ny, x)
	}
	if z := x + size; z != a.end {
		a.put(z, hdrPrev, size)
	}
}

// blockOf validates an address returned by this allocator and gives back the
// offset of its header.  Anything that does not look like a live block is a
// fatal assertion.
func (a *Allocator) blockOf(p uint64) uint32 {
	KAssert(p >= a.base+UsedHeaderSize && p < a.base+uint64(a.end), "address inside arena")
	b := uint32(p - a.base - UsedHeaderSize)
	KAssert(b%blockAlign == 0, "block is aligned")
	KAssert(a.isUsed(b), "block is in use")
	s := a.size(b)
	KAssert(s >= FreeHeaderSize && s%blockAlign == 0 && uint64(b)+uint64(s) <= uint64(a.end),
		"block size is sane")
	if pd := a.get(b, hdrPrev); pd != 0 {
		KAssert(pd <= b && a.size(b-pd) == pd, "previous block links back")
	}
	return b
}

// Free returns a block to the free list and coalesces it with free
// neighbors on both sides.  Free(0) does nothing.
func (a *Allocator) Free(p uint64) {
	if p == 0 {
		return
	}
	b := a.blockOf(p)
	s := a.size(b)

	n := b + s
	for n != a.end && a.isUsed(n) {
		n += a.size(n)
	}
	var pf uint32
	hasPrev := false
	if n != a.end {
		pf, hasPrev = a.prevFree(n)
	} else {
		q := b
		for {
			d := a.get(q, hdrPrev)
			if d == 0 {
				break
			}
			q -= d
			if !a.isUsed(q) {
				pf, hasPrev = q, true
				break
			}
		}
	}

	a.put(b, hdrUsed, 0)
	if hasPrev {
		a.setNextFree(pf, b)
		a.setPrevFree(b, pf)
	} else {
		a.free = b
		a.clearPrevFree(b)
	}
	a.setNextFree(b, n)
	if n != a.end {
		a.setPrevFree(n, b)
	}
	a.used -= uint64(s)
	a.nused--

	if n != a.end && b+s == n {
		a.merge(b)
	}
	if hasPrev && pf+a.size(pf) == b {
		a.merge(pf)
	}
}

// Realloc resizes the block at p to hold n bytes.  It grows in place when the
// following block is free and big enough, otherwise it moves the data to a
// new block.  On failure it returns 0 and p is untouched.
func (a *Allocator) Realloc(p uint64, n uint64) uint64 {
	if p == 0 {
		return a.Alloc(n)
	}
	b := a.blockOf(p)
	s := a.size(b)
	have := uint64(s - UsedHeaderSize)
	if n <= have {
		return p
	}
	if n > uint64(a.end) {
		return 0
	}
	need := blockSizeFor(n)
	nb := b + s
	if nb != a.end && !a.isUsed(nb) && uint64(s)+uint64(a.size(nb)) >= uint64(need) {
		extra := need - s
		if extra < FreeHeaderSize {
			extra = FreeHeaderSize
		}
		if a.size(nb)-extra >= MinSplitThreshold {
			a.split(nb, extra)
		}
		a.take(nb)
		a.nused--
		size := s + a.size(nb)
		a.put(b, hdrNext, size)
		if z := b + size; z != a.end {
			a.put(z, hdrPrev, size)
		}
		return p
	}
	q := a.Alloc(n)
	if q == 0 {
		return 0
	}
	copy(a.Bytes(q, have), a.Bytes(p, have))
	a.Free(p)
	return q
}

// Bytes is a view of n bytes of the arena starting at physical address p.
func (a *Allocator) Bytes(p uint64, n uint64) []byte {
	KAssert(a.Contains(p, n), "range inside arena")
	off := p - a.base
	return a.arena[off : off+n : off+n]
}

// Contains reports whether [p, p+n) lies inside the arena.
func (a *Allocator) Contains(p uint64, n uint64) bool {
	return p >= a.base && n <= uint64(a.end) && p-a.base <= uint64(a.end)-n
}

// Base is the physical address of the arena.
func (a *Allocator) Base() uint64 {
	return a.base
}

// Size is the number of bytes managed, headers included.
func (a *Allocator) Size() uint64 {
	return uint64(a.end)
}

// InUse is the number of bytes held by live blocks, headers included.
func (a *Allocator) InUse() uint64 {
	return a.used
}

// Allocations is the number of live blocks.
func (a *Allocator) Allocations() int {
	return a.nused
}

// LargestFree is the largest request Alloc could currently satisfy.
func (a *Allocator) LargestFree() uint64 {
	largest := uint32(0)
	for b := a.free; b != a.end; b = a.nextFree(b) {
		if s := a.size(b); s > largest {
			largest = s
		}
	}
	if largest < UsedHeaderSize {
		return 0
	}
	return uint64(largest - UsedHeaderSize)
}

// Check walks every block and the free list and reports the first broken
// invariant.
func (a *Allocator) Check() error {
	var total uint64
	prevSize := uint32(0)
	prevFree := false
	freeBlocks := 0
	usedBlocks := 0
	for b := uint32(0); b != a.end; b += a.size(b) {
		s := a.size(b)
		if s < FreeHeaderSize || uint64(b)+uint64(s) > uint64(a.end) {
			return fmt.Errorf("block at %#x has bad size %#x", b, s)
		}
		if a.get(b, hdrPrev) != prevSize {
			return fmt.Errorf("block at %#x has prev %#x but previous block is %#x long",
				b, a.get(b, hdrPrev), prevSize)
		}
		free := !a.isUsed(b)
		if free && prevFree {
			return fmt.Errorf("block at %#x and its predecessor are both free", b)
		}
		if free {
			freeBlocks++
		} else {
			usedBlocks++
		}
		prevFree = free
		prevSize = s
		total += uint64(s)
	}
	if total != uint64(a.end) {
		return fmt.Errorf("blocks cover %#x bytes of %#x", total, a.end)
	}
	if usedBlocks != a.nused {
		return fmt.Errorf("%d used blocks but %d allocations recorded", usedBlocks, a.nused)
	}
	listed := 0
	last, hasLast := uint32(0), false
	for b := a.free; b != a.end; b = a.nextFree(b) {
		if b > a.end || a.isUsed(b) {
			return fmt.Errorf("free list reaches non free block at %#x", b)
		}
		pf, ok := a.prevFree(b)
		if ok != hasLast || (ok && pf != last) {
			return fmt.Errorf("free block at %#x has wrong back link", b)
		}
		if hasLast && b <= last {
			return fmt.Errorf("free list is not in address order at %#x", b)
		}
		last, hasLast = b, true
		listed++
		if listed > freeBlocks {
			break
		}
	}
	if listed != freeBlocks {
		return fmt.Errorf("free list has %d blocks but %d blocks are free", listed, freeBlocks)
	}
	return nil
}

// Dump writes every block to the logger.
func (a *Allocator) Dump(l *trust.Logger) {
	l.Infof("allocator base=%#x size=%#x used=%#x (%d blocks)", a.base, a.end, a.used, a.nused)
	for b := uint32(0); b != a.end; b += a.size(b) {
		state := "free"
		if a.isUsed(b) {
			state = "used"
		}
		l.Infof("  [%#08x, %#08x) %s", a.base+uint64(b), a.base+uint64(b+a.size(b)), state)
	}
}

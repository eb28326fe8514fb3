package anticipation

import (
	"errors"
	"runtime"
	"sync/atomic"
	"unsafe"
)

// The ring lives in memory shared with the host:
//
//	0    head  u32   next ticket, producers only
//	4    tail  u32   next slot to consume, consumer only
//	8    slots u32
//	12   magic u32
//	64   flags [slots]u32, padded to a cache line
//	...  payload [slots][SlotStride]byte
//
// Slot flags are the only synchronization between the two sides.  Each flag
// is a whole u32 word, not a byte, and besides empty and full it has a busy
// state taken by CAS while a producer writes the payload.  A producer built
// for a one byte empty/full flag array does not interoperate with this
// layout.
const CacheLine = 64
const HeaderSize = CacheLine
const SlotStride = 32

const ringMagic = 0x7274_6372

const (
	slotEmpty uint32 = 0
	slotFull  uint32 = 1
	slotBusy  uint32 = 2 //claimed by a producer that is writing the payload
)

var ErrRingFull = errors.New("submission ring slot is still full")
var ErrBadCapacity = errors.New("ring capacity must be a power of two")
var ErrShortMemory = errors.New("memory too small for ring")
var ErrMisaligned = errors.New("ring memory is not 8 byte aligned")
var ErrNotFormatted = errors.New("memory does not hold a formatted ring")

// Ring is a multi producer, single consumer queue of job descriptors.  Any
// number of producers may call Push and TryPush concurrently, only one
// goroutine may call Pop.
type Ring struct {
	mask    uint32
	head    *uint32
	tail    *uint32
	flags   []uint32
	payload []byte
}

func flagBytes(slots uint32) uint64 {
	return (uint64(slots)*4 + CacheLine - 1) &^ (CacheLine - 1)
}

// RingBytes is how much memory a ring of the given capacity needs.
func RingBytes(slots uint32) uint64 {
	return HeaderSize + flagBytes(slots) + uint64(slots)*SlotStride
}

func word(mem []byte, off int) *uint32 {
	return (*uint32)(unsafe.Pointer(&mem[off]))
}

func view(mem []byte, slots uint32) (*Ring, error) {
	if slots == 0 || slots&(slots-1) != 0 {
		return nil, ErrBadCapacity
	}
	if uint64(len(mem)) < RingBytes(slots) {
		return nil, ErrShortMemory
	}
	if uintptr(unsafe.Pointer(&mem[0]))%8 != 0 {
		return nil, ErrMisaligned
	}
	payloadStart := HeaderSize + flagBytes(slots)
	return &Ring{
		mask:    slots - 1,
		head:    word(mem, 0),
		tail:    word(mem, 4),
		flags:   unsafe.Slice(word(mem, HeaderSize), slots),
		payload: mem[payloadStart : payloadStart+uint64(slots)*SlotStride],
	}, nil
}

// Format lays out an empty ring of the given capacity at the start of mem.
// The consumer does this once, before any producer attaches.
func Format(mem []byte, slots uint32) (*Ring, error) {
	r, err := view(mem, slots)
	if err != nil {
		return nil, err
	}
	for i := range r.flags {
		atomic.StoreUint32(&r.flags[i], slotEmpty)
	}
	atomic.StoreUint32(r.head, 0)
	atomic.StoreUint32(r.tail, 0)
	atomic.StoreUint32(word(mem, 8), slots)
	atomic.StoreUint32(word(mem, 12), ringMagic)
	return r, nil
}

// Attach opens a ring that was formatted in mem, possibly by another
// process.
func Attach(mem []byte) (*Ring, error) {
	if len(mem) < HeaderSize {
		return nil, ErrShortMemory
	}
	if uintptr(unsafe.Pointer(&mem[0]))%8 != 0 {
		return nil, ErrMisaligned
	}
	if atomic.LoadUint32(word(mem, 12)) != ringMagic {
		return nil, ErrNotFormatted
	}
	return view(mem, atomic.LoadUint32(word(mem, 8)))
}

func (r *Ring) Capacity() uint32 {
	return r.mask + 1
}

func (r *Ring) slot(i uint32) []byte {
	off := i * SlotStride
	return r.payload[off : off+DescriptorSize]
}

func (r *Ring) publish(i uint32, d JobDescriptor) {
	d.Encode(r.slot(i))
	atomic.StoreUint32(&r.flags[i], slotFull)
}

// Push claims the next ticket and waits until its slot is free, then
// publishes d.
func (r *Ring) Push(d JobDescriptor) {
	ticket := atomic.AddUint32(r.head, 1) - 1
	i := ticket & r.mask
	for !atomic.CompareAndSwapUint32(&r.flags[i], slotEmpty, slotBusy) {
		runtime.Gosched()
	}
	r.publish(i, d)
}

// TryPush claims the next ticket and publishes d if its slot is free.  When
// the slot is still occupied it returns ErrRingFull.  The ticket is used up
// either way, so the consumer may find that slot empty until a later ticket
// wraps around onto it.
func (r *Ring) TryPush(d JobDescriptor) error {
	ticket := atomic.AddUint32(r.head, 1) - 1
	i := ticket & r.mask
	if !atomic.CompareAndSwapUint32(&r.flags[i], slotEmpty, slotBusy) {
		return ErrRingFull
	}
	r.publish(i, d)
	return nil
}

// Pop takes the descriptor at the consumer cursor.  It returns false when
// that slot has not been published yet.
func (r *Ring) Pop() (JobDescriptor, bool) {
	t := atomic.LoadUint32(r.tail)
	i := t & r.mask
	if atomic.LoadUint32(&r.flags[i]) != slotFull {
		return JobDescriptor{}, false
	}
	d := DecodeJobDescriptor(r.slot(i))
	atomic.StoreUint32(&r.flags[i], slotEmpty)
	atomic.StoreUint32(r.tail, t+1)
	return d, true
}

// Tickets is the number of tickets producers have claimed.
func (r *Ring) Tickets() uint32 {
	return atomic.LoadUint32(r.head)
}

// Consumed is the number of descriptors popped.
func (r *Ring) Consumed() uint32 {
	return atomic.LoadUint32(r.tail)
}

package joy

import (
	"errors"
	"fmt"

	"rtcore/src/anticipation"
	arm "rtcore/src/hardware/arm-cortex-a53"
	"rtcore/src/lib/upbeat"
)

// Layout is the physical memory map of the core.  The kernel image sits on
// its own; the window shared with the host holds the heap, the code region
// for job images and the submission ring, in that order.  Every address
// space identity maps the kernel image, the window and the devices.  The low
// window [0, LowWindow) is where each job sees its own image.
type Layout struct {
	KernelBase uint64
	KernelSize uint64

	HeapBase  uint64
	HeapSize  uint64
	CodeBase  uint64
	CodeSize  uint64
	RingBase  uint64
	RingSlots uint32

	UARTBase    uint64
	UARTSize    uint64
	GICDBase    uint64
	GICDSize    uint64
	GICRBase    uint64
	GICRStride  uint64
	GICRCount   int
	LowWindow   uint64
	VABits      uint
	PABits      uint
	CounterFreq uint64
}

// DefaultLayout is the map used on the QEMU virt board.
func DefaultLayout() Layout {
	return Layout{
		KernelBase: 0x4000_0000,
		KernelSize: 0x0020_0000,

		HeapBase:  0x4100_0000,
		HeapSize:  0x0100_0000,
		CodeBase:  0x4200_0000,
		CodeSize:  0x0100_0000,
		RingBase:  0x4300_0000,
		RingSlots: 1 << 12,

		UARTBase:    0x0900_0000,
		UARTSize:    0x1000,
		GICDBase:    0x0800_0000,
		GICDSize:    0x1_0000,
		GICRBase:    0x080A_0000,
		GICRStride:  0x2_0000,
		GICRCount:   4,
		LowWindow:   0x0100_0000,
		VABits:      48,
		PABits:      36,
		CounterFreq: 62_500_000,
	}
}

// LayoutFromBootParams takes the regions from the boot parameter block and
// everything else (devices, low window) from DefaultLayout.
func LayoutFromBootParams(p *upbeat.BootParams) (Layout, error) {
	if msg := p.Validate(); msg != "" {
		return Layout{}, errors.New("boot parameters: " + msg)
	}
	l := DefaultLayout()
	l.KernelBase = p.KernelStart
	l.KernelSize = p.KernelLast - p.KernelStart
	l.HeapBase = p.HeapStart
	l.HeapSize = p.HeapEnd - p.HeapStart
	l.CodeBase = p.CodeStart
	l.CodeSize = p.CodeEnd - p.CodeStart
	l.RingBase = p.RingStart
	l.RingSlots = uint32(p.RingSlots)
	l.CounterFreq = p.CounterFreq
	return l, l.Validate()
}

func (l Layout) KernelEnd() uint64 {
	return l.KernelBase + l.KernelSize
}

func (l Layout) WindowBase() uint64 {
	return l.HeapBase
}

func (l Layout) WindowEnd() uint64 {
	return l.RingBase + anticipation.RingBytes(l.RingSlots)
}

func (l Layout) WindowSize() uint64 {
	return l.WindowEnd() - l.WindowBase()
}

func pageAligned(v uint64) bool {
	return v&arm.PageMask == 0
}

// Validate checks the regions are page aligned, ordered and leave room for
// the low window underneath everything that is identity mapped.
func (l Layout) Validate() error {
	for _, r := range []struct {
		name string
		v    uint64
	}{
		{"kernel base", l.KernelBase}, {"heap base", l.HeapBase}, {"code base", l.CodeBase},
		{"ring base", l.RingBase}, {"uart base", l.UARTBase}, {"gicd base", l.GICDBase},
		{"gicr base", l.GICRBase}, {"low window", l.LowWindow},
	} {
		if !pageAligned(r.v) {
			return fmt.Errorf("layout: %s %#x is not page aligned", r.name, r.v)
		}
	}
	switch {
	case l.KernelSize == 0:
		return errors.New("layout: kernel image is empty")
	case l.HeapSize < upbeat.FreeHeaderSize || l.HeapSize > 0xffff_fffc:
		return fmt.Errorf("layout: heap size %#x out of range", l.HeapSize)
	case l.HeapBase+l.HeapSize > l.CodeBase:
		return errors.New("layout: heap overlaps code region")
	case l.CodeBase+l.CodeSize > l.RingBase:
		return errors.New("layout: code region overlaps ring")
	case l.RingSlots == 0 || l.RingSlots&(l.RingSlots-1) != 0:
		return errors.New("layout: ring slots must be a power of two")
	case l.KernelEnd() > l.WindowBase() && l.KernelBase < l.WindowEnd():
		return errors.New("layout: kernel image overlaps shared window")
	case l.LowWindow == 0:
		return errors.New("layout: low window is empty")
	case l.CounterFreq == 0:
		return errors.New("layout: counter frequency is zero")
	}
	for _, floor := range []uint64{l.KernelBase, l.WindowBase(), l.UARTBase, l.GICDBase, l.GICRBase} {
		if l.LowWindow > floor {
			return fmt.Errorf("layout: low window %#x reaches identity mapped %#x", l.LowWindow, floor)
		}
	}
	return nil
}

// window gives the bytes of [pa, pa+n) inside the shared window.
func (l Layout) window(mem []byte, pa uint64, n uint64) []byte {
	off := pa - l.WindowBase()
	return mem[off : off+n : off+n]
}

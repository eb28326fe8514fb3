package joy

import (
	"encoding/binary"

	arm "rtcore/src/hardware/arm-cortex-a53"
	"rtcore/src/lib/trust"
	"rtcore/src/lib/upbeat"
)

const asidCount = 1 << 16

// AddressSpace is a root translation table and the ASID that tags its TLB
// entries.  The kernel space has ASID 0 and only global mappings.
type AddressSpace struct {
	Root uint64
	ASID uint16
}

// MMU builds and tears down 4 level, 4K granule translation tables.  Table
// pages come out of the kernel heap so they are freed with the process.
type MMU struct {
	log        *trust.Logger
	mem        *upbeat.Allocator
	cpu        CPU
	layout     Layout
	kernel     AddressSpace
	tablePages int
	asids      *upbeat.BitSet
	nextASID   uint16
}

func newMMU(mem *upbeat.Allocator, cpu CPU, layout Layout, log *trust.Logger) *MMU {
	m := &MMU{
		log:      log,
		mem:      mem,
		cpu:      cpu,
		layout:   layout,
		asids:    upbeat.NewBitSet(asidCount),
		nextASID: 1,
	}
	m.asids.Set(0)
	return m
}

// TablePages is the number of table pages currently allocated.
func (m *MMU) TablePages() int {
	return m.tablePages
}

// Kernel is the address space built by BuildKernelSpace.
func (m *MMU) Kernel() AddressSpace {
	return m.kernel
}

func (m *MMU) table(pa uint64) []byte {
	return m.mem.Bytes(pa, arm.PageSize)
}

func (m *MMU) entry(table uint64, index uint64) uint64 {
	return binary.LittleEndian.Uint64(m.table(table)[index*8:])
}

func (m *MMU) setEntry(table uint64, index uint64, v uint64) {
	binary.LittleEndian.PutUint64(m.table(table)[index*8:], v)
}

func (m *MMU) allocTable() (uint64, JoyError) {
	pa := m.mem.AlignedAlloc(arm.PageSize, arm.PageSize)
	if pa == 0 {
		return 0, MakeError(ErrorMMUNoTablePage, 0)
	}
	t := m.table(pa)
	for i := range t {
		t[i] = 0
	}
	m.tablePages++
	return pa, JoyNoError
}

// NewRoot returns an empty level 0 table.
func (m *MMU) NewRoot() (uint64, JoyError) {
	return m.allocTable()
}

// MapPage maps the page holding va to the page holding pa, creating the
// intermediate tables it needs.  An existing leaf is overwritten.
func (m *MMU) MapPage(root, va, pa, attrs uint64) JoyError {
	if va>>m.layout.VABits != 0 {
		return MakeError(ErrorMMUBadRange, 0)
	}
	t := root
	for level := 0; level < 3; level++ {
		i := arm.TableIndex(va, level)
		e := m.entry(t, i)
		if e&arm.DescriptorValid == 0 {
			next, err := m.allocTable()
			if err != JoyNoError {
				return err
			}
			m.setEntry(t, i, arm.MakeTableDescriptor(next))
			t = next
			continue
		}
		upbeat.KAssert(e&arm.DescriptorTypeTable == arm.DescriptorTypeTable, "table descriptor above level 3")
		t = e & arm.DescriptorAddressMask
	}
	m.setEntry(t, arm.TableIndex(va, 3), arm.MakePageDescriptor(pa, attrs))
	return JoyNoError
}

// MapRange maps [va, va+size) to [pa, pa+size) a page at a time.  Both ends
// are widened to page boundaries.
func (m *MMU) MapRange(root, va, pa, size, attrs uint64) JoyError {
	if size == 0 {
		return JoyNoError
	}
	if va+size < va || pa+size < pa || va&arm.PageMask != pa&arm.PageMask {
		return MakeError(ErrorMMUBadRange, 0)
	}
	end := (va + size + arm.PageMask) &^ arm.PageMask
	pa &^= arm.PageMask
	for v := va &^ arm.PageMask; v < end; v += arm.PageSize {
		if err := m.MapPage(root, v, pa, attrs); err != JoyNoError {
			return err
		}
		pa += arm.PageSize
	}
	return JoyNoError
}

// mapShared adds the mappings every address space has: the kernel image
// and shared window as normal memory, the UART and interrupt controller as
// device memory.
func (m *MMU) mapShared(root uint64) JoyError {
	l := m.layout
	ranges := []struct {
		base, size, attrs uint64
	}{
		{l.KernelBase, l.KernelSize, arm.DescriptorKernelRWX},
		{l.WindowBase(), l.WindowSize(), arm.DescriptorKernelRWX},
		{l.UARTBase, l.UARTSize, arm.DescriptorDeviceRW},
		{l.GICDBase, l.GICDSize, arm.DescriptorDeviceRW},
	}
	for i := 0; i < l.GICRCount; i++ {
		ranges = append(ranges, struct{ base, size, attrs uint64 }{
			l.GICRBase + uint64(i)*l.GICRStride, l.GICRStride, arm.DescriptorDeviceRW})
	}
	for _, r := range ranges {
		if err := m.MapRange(root, r.base, r.base, r.size, r.attrs); err != JoyNoError {
			return err
		}
	}
	return JoyNoError
}

// BuildKernelSpace builds the tables the kernel runs on before any job
// exists.  It only has identity mappings.
func (m *MMU) BuildKernelSpace() (AddressSpace, JoyError) {
	root, err := m.NewRoot()
	if err != JoyNoError {
		return AddressSpace{}, err
	}
	if err := m.mapShared(root); err != JoyNoError {
		m.freeTable(root, 0)
		return AddressSpace{}, err
	}
	m.kernel = AddressSpace{Root: root}
	return m.kernel, JoyNoError
}

// BuildProcessSpace builds a fresh address space for a job whose image is
// codeLen bytes at codePhys.  The image appears at virtual address 0 (up to
// the low window) and the shared mappings are the same as the kernel's.
func (m *MMU) BuildProcessSpace(codePhys, codeLen uint64) (AddressSpace, JoyError) {
	root, err := m.NewRoot()
	if err != JoyNoError {
		return AddressSpace{}, err
	}
	n := codeLen
	if n > m.layout.LowWindow {
		n = m.layout.LowWindow
	}
	if err = m.MapRange(root, 0, codePhys&^arm.PageMask, n+codePhys&arm.PageMask, arm.DescriptorProcessRWX); err == JoyNoError {
		err = m.mapShared(root)
	}
	if err != JoyNoError {
		m.freeTable(root, 0)
		return AddressSpace{}, err
	}
	return AddressSpace{Root: root, ASID: m.allocASID()}, JoyNoError
}

// allocASID hands out the lowest free ASID above the last one given.  When
// the search wraps the whole TLB is flushed, so entries left by ASIDs that
// were freed since the last wrap cannot be hit by their next owner.
func (m *MMU) allocASID() uint16 {
	for tries := 0; tries < asidCount; tries++ {
		a := m.nextASID
		m.nextASID++
		if m.nextASID == 0 {
			m.nextASID = 1
			m.cpu.InvalidateTLB()
			m.log.Debugf("asid space wrapped, tlb flushed")
		}
		if !m.asids.On(upbeat.BitIndex(a)) {
			m.asids.Set(upbeat.BitIndex(a))
			return a
		}
	}
	upbeat.KAssert(false, "free asid available")
	return 0
}

// Switch makes as the current translation.
func (m *MMU) Switch(as AddressSpace) {
	m.cpu.WriteTTBR0(arm.MakeTTBR0(as.Root, as.ASID))
}

// Enable turns on translation with the kernel space.
func (m *MMU) Enable() {
	l := m.layout
	m.cpu.EnableMMU(arm.MakeMAIR(), arm.MakeTCR(l.VABits, l.PABits, false),
		arm.MakeTTBR0(m.kernel.Root, m.kernel.ASID))
}

// Destroy frees the table pages of as (never the pages they map) and
// retires its ASID.
func (m *MMU) Destroy(as AddressSpace) {
	if as.Root == 0 {
		return
	}
	m.freeTable(as.Root, 0)
	if as.ASID != 0 {
		m.cpu.InvalidateASID(as.ASID)
		m.asids.Clear(upbeat.BitIndex(as.ASID))
	}
}

func (m *MMU) freeTable(pa uint64, level int) {
	if level < 3 {
		for i := uint64(0); i < arm.EntriesPerTable; i++ {
			e := m.entry(pa, i)
			if e&arm.DescriptorTypeTable == arm.DescriptorTypeTable {
				m.freeTable(e&arm.DescriptorAddressMask, level+1)
			}
		}
	}
	m.mem.Free(pa)
	m.tablePages--
}

// Translate walks root for va.  It returns the physical address and the
// leaf descriptor's attribute bits.
func (m *MMU) Translate(root, va uint64) (uint64, uint64, bool) {
	t := root
	for level := 0; level < 3; level++ {
		e := m.entry(t, arm.TableIndex(va, level))
		if e&arm.DescriptorTypeTable != arm.DescriptorTypeTable {
			return 0, 0, false
		}
		t = e & arm.DescriptorAddressMask
	}
	e := m.entry(t, arm.TableIndex(va, 3))
	if e&arm.DescriptorValid == 0 {
		return 0, 0, false
	}
	return e&arm.DescriptorAddressMask | va&arm.PageMask, e &^ arm.DescriptorAddressMask, true
}

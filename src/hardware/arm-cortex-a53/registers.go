package arm_cortex_a53

// ***************************************
// SCTLR_EL1, System Control Register (EL1), Page 2654 of AArch64-Reference-Manual.
// ***************************************

const SystemControlRegisterEL1Reserved = (3 << 28) | (3 << 22) | (1 << 20) | (1 << 11)
const SystemControlRegisterEELittleEndian = (0 << 25)
const SystemControlRegisterEOELittleEndian = (0 << 24)
const SystemControlRegisterICacheEnabled = (1 << 12)
const SystemControlRegisterDCacheEnabled = (1 << 2)
const SystemControlRegisterMMUDisabled = (0 << 0)
const SystemControlRegisterMMUEnabled = (1 << 0)

const SystemControlRegisterValueMMUEnabled = (SystemControlRegisterEL1Reserved | // 0x30D00800
	SystemControlRegisterEELittleEndian | //0x0
	SystemControlRegisterICacheEnabled | //0x1000
	SystemControlRegisterDCacheEnabled | //0x4
	SystemControlRegisterMMUEnabled) //0x1

// ***************************************
// SPSR_EL1, Saved Program Status Register, PSTATE bits as seen on exception return.
// ***************************************

const PStateModeEL0t = (0 << 0)
const PStateModeEL1t = (4 << 0)
const PStateModeEL1h = (5 << 0) //EL1 has own stack
const PStateModeMask = 0xf
const PStateMaskF = (1 << 6)
const PStateMaskI = (1 << 7)
const PStateMaskA = (1 << 8)
const PStateMaskD = (1 << 9)

// PStateJobEntry is the state a job starts in: EL1 on its own stack, IRQs
// on and FIQs masked.
const PStateJobEntry = PStateModeEL1h | PStateMaskF //0x45

// ***************************************
// Translation table descriptors, 4 KiB granule, 4 levels (48 bit VA).
// ***************************************

const PageShift = 12
const PageSize = 1 << PageShift
const PageMask = PageSize - 1
const EntriesPerTable = 512

const DescriptorValid = (1 << 0)
const DescriptorTable = (1 << 1) //levels 0-2, next level table
const DescriptorPage = (1 << 1)  //level 3, 4K page
const DescriptorTypeTable = DescriptorValid | DescriptorTable

const DescriptorAttrIndexShift = 2
const DescriptorAPReadWriteEL1 = (0 << 6)
const DescriptorAPReadWriteAll = (1 << 6)
const DescriptorAPReadOnly = (2 << 6)
const DescriptorShareNone = (0 << 8)
const DescriptorShareOuter = (2 << 8)
const DescriptorShareInner = (3 << 8)
const DescriptorAccessFlag = (1 << 10)
const DescriptorNotGlobal = (1 << 11)
const DescriptorPXN = (1 << 53)
const DescriptorUXN = (1 << 54)

// DescriptorAddressMask picks the output address out of a descriptor.
const DescriptorAddressMask = 0x0000_ffff_ffff_f000

const MAIRIndexNormal = 0
const MAIRIndexDevice = 1

func DescriptorAttrIndex(i uint64) uint64 {
	return i << DescriptorAttrIndexShift
}

// Kernel text and data: global, inner shareable normal memory.
const DescriptorKernelRWX = DescriptorValid | DescriptorPage | DescriptorAccessFlag |
	DescriptorShareInner | DescriptorAPReadWriteEL1 |
	(MAIRIndexNormal << DescriptorAttrIndexShift) | DescriptorUXN

// Process low window: same as the kernel but tagged with the ASID.
const DescriptorProcessRWX = DescriptorKernelRWX | DescriptorNotGlobal

// Device windows (UART, GIC): global device memory, never executable.
const DescriptorDeviceRW = DescriptorValid | DescriptorPage | DescriptorAccessFlag |
	DescriptorShareOuter | DescriptorAPReadWriteEL1 |
	(MAIRIndexDevice << DescriptorAttrIndexShift) | DescriptorUXN | DescriptorPXN

// TableIndex returns the index into the table at level (0-3) for va.
func TableIndex(va uint64, level int) uint64 {
	shift := uint(39 - 9*level)
	return (va >> shift) & 0x1ff
}

func MakeTableDescriptor(pa uint64) uint64 {
	return (pa &^ PageMask) | DescriptorTypeTable
}

func MakePageDescriptor(pa uint64, attrs uint64) uint64 {
	return (pa &^ PageMask) | attrs
}

// ***************************************
// MAIR_EL1, Memory Attribute Indirection Register.
// ***************************************

const MAIRNormalWriteBack = 0xff //inner+outer WB, RA, WA
const MAIRDeviceNGnRE = 0x04

func MakeMAIR() uint64 {
	var mair uint64
	mair |= MAIRNormalWriteBack << (8 * MAIRIndexNormal)
	mair |= MAIRDeviceNGnRE << (8 * MAIRIndexDevice)
	return mair
}

// ***************************************
// TCR_EL1, Translation Control Register.
// ***************************************

const TCRIRGN0WriteBack = (1 << 8)
const TCRORGN0WriteBack = (1 << 10)
const TCRSH0Inner = (3 << 12)
const TCRTG0Granule4K = (0 << 14)
const TCRT1SZShift = 16
const TCRA1 = (1 << 22) //ASID comes from TTBR1 when set
const TCREPD1 = (1 << 23)
const TCRIRGN1WriteBack = (1 << 24)
const TCRORGN1WriteBack = (1 << 26)
const TCRSH1Inner = (3 << 28)
const TCRTG1Granule4K = (2 << 30)
const TCRIPSShift = 32

// IPSEncoding returns the TCR.IPS field for a physical address width, unknown
// widths are treated as 36 bits.
func IPSEncoding(paBits uint) uint64 {
	switch paBits {
	case 32:
		return 0
	case 36:
		return 1
	case 40:
		return 2
	case 42:
		return 3
	case 44:
		return 4
	case 48:
		return 5
	case 52:
		return 6
	}
	return 1
}

// MakeTCR builds TCR_EL1 for 4K granules with vaBits of virtual address on
// both halves.  TTBR1 walks are disabled unless enableTTBR1 is set.
func MakeTCR(vaBits uint, paBits uint, enableTTBR1 bool) uint64 {
	tsz := uint64(64 - vaBits)
	tcr := tsz |
		TCRIRGN0WriteBack | TCRORGN0WriteBack | TCRSH0Inner | TCRTG0Granule4K
	tcr |= tsz << TCRT1SZShift
	if !enableTTBR1 {
		tcr |= TCREPD1
	}
	tcr |= TCRIRGN1WriteBack | TCRORGN1WriteBack | TCRSH1Inner | TCRTG1Granule4K
	tcr |= IPSEncoding(paBits) << TCRIPSShift
	return tcr
}

// ***************************************
// TTBR0_EL1, Translation Table Base Register 0.
// ***************************************

const TTBRASIDShift = 48

func MakeTTBR0(rootPA uint64, asid uint16) uint64 {
	return (rootPA & DescriptorAddressMask) | uint64(asid)<<TTBRASIDShift
}

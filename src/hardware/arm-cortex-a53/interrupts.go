package arm_cortex_a53

//////////////////////////////////////////////////////////////////
// ESR_EL1, Exception Syndrome Register
//////////////////////////////////////////////////////////////////

const ESRClassShift = 26
const ESRClassMask = 0x3f
const ESRISSMask = 0x1ff_ffff
const ESRILBit = (1 << 25)

const (
	ECUnknown        = 0b000000
	ECWFx            = 0b000001
	ECIllegalState   = 0b001110
	ECSVC32          = 0b010001
	ECSVC64          = 0b010101
	ECMSRTrap        = 0b011000
	ECInstAbortLower = 0b100000
	ECInstAbortSame  = 0b100001
	ECPCAlignment    = 0b100010
	ECDataAbortLower = 0b100100
	ECDataAbortSame  = 0b100101
	ECSPAlignment    = 0b100110
	ECFPTrap64       = 0b101100
	ECSError         = 0b101111
	ECBreakLower     = 0b110000
	ECBreakSame      = 0b110001
	ECStepLower      = 0b110010
	ECStepSame       = 0b110011
	ECWatchLower     = 0b110100
	ECWatchSame      = 0b110101
	ECBRK64          = 0b111100
)

func ExtractEC(esr uint64) uint64 {
	return (esr >> ESRClassShift) & ESRClassMask
}

func ExtractISS(esr uint64) uint64 {
	return esr & ESRISSMask
}

// ExtractSVCImmediate is the #imm16 of an SVC, which is how a syscall
// number reaches the kernel.
func ExtractSVCImmediate(esr uint64) uint16 {
	return uint16(esr & 0xffff)
}

// Fault status code (DFSC/IFSC) for data and instruction aborts.
const FaultStatusMask = 0x3f

const (
	FaultAddressSize   = 0b000000
	FaultTranslation   = 0b000100
	FaultAccessFlag    = 0b001000
	FaultPermission    = 0b001100
	FaultSyncExternal  = 0b010000
	FaultAlignment     = 0b100001
	FaultTLBConflict   = 0b110000
	faultLevelBitsMask = 0b000011
)

// DecodeFaultStatus names the fault status code of an abort ISS and returns
// the table level it happened at, when the code has one.
func DecodeFaultStatus(iss uint64) (string, int) {
	fsc := iss & FaultStatusMask
	level := int(fsc & faultLevelBitsMask)
	switch fsc &^ faultLevelBitsMask {
	case FaultAddressSize:
		return "address size fault", level
	case FaultTranslation:
		return "translation fault", level
	case FaultAccessFlag:
		return "access flag fault", level
	case FaultPermission:
		return "permission fault", level
	}
	switch fsc {
	case FaultSyncExternal:
		return "synchronous external abort", -1
	case FaultAlignment:
		return "alignment fault", -1
	case FaultTLBConflict:
		return "TLB conflict abort", -1
	}
	return "unknown fault status", -1
}

//////////////////////////////////////////////////////////////////
// Saved context
//////////////////////////////////////////////////////////////////

// RegisterSavedState is the saved registers from the last time a process
// was executing.  The exception entry code fills one in on every trap and
// restores from it on exception return.
type RegisterSavedState struct {
	X      [31]uint64 //X30 is the link register
	SP     uint64
	PC     uint64
	PState uint64
	V      [32][2]uint64
	FPSR   uint32
	FPCR   uint32
}

//////////////////////////////////////////////////////////////////
// Interrupt ids (GICv3)
//////////////////////////////////////////////////////////////////

const IRQIdPPIBase = 16
const IRQIdSPIBase = 32
const IRQIdMax = 1019
const IRQIdCount = 1020

const IRQIdVirtualTimer = 27
const IRQIdHypTimer = 26
const IRQIdSecurePhysicalTimer = 29
const IRQIdPhysicalTimer = 30
const IRQIdSpurious = 1023

var EntryErrorMessages = []string{
	"SYNC_INVALID_EL1t",
	"IRQ_INVALID_EL1t",
	"FIQ_INVALID_EL1t",
	"ERROR_INVALID_EL1T",

	"SYNC_EL1h",
	"IRQ_EL1h",
	"FIQ_INVALID_EL1h",
	"ERROR_INVALID_EL1h",

	"SYNC_EL0_64",
	"IRQ_EL0_64",
	"FIQ_INVALID_EL0_64",
	"ERROR_INVALID_EL0_64",

	"SYNC_INVALID_EL0_32",
	"IRQ_INVALID_EL0_32",
	"FIQ_INVALID_EL0_32",
	"ERROR_INVALID_EL0_32",
}

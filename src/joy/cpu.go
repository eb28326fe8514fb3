package joy

import (
	arm "rtcore/src/hardware/arm-cortex-a53"
)

// CPU is the part of the core the kernel drives through system registers.
// On the board the methods are a few instructions of assembly each; the sim
// package records them instead.
type CPU interface {
	WriteTTBR0(v uint64)
	InvalidateTLB()
	InvalidateASID(asid uint16)
	EnableMMU(mair, tcr, ttbr0 uint64)
	// SaveContext and LoadContext move the live register file, used when
	// the switch happens outside of an exception.
	SaveContext(ctx *arm.RegisterSavedState)
	LoadContext(ctx *arm.RegisterSavedState)
	MaskIRQ()
	UnmaskIRQ()
	// Halt stops the core.  It does not return.
	Halt(reason uint64)
}

// Timer is one of the generic timers.  All timers of a core share the
// counter, so Now is the same value for each of them.
type Timer interface {
	Now() uint64
	Frequency() uint64
	SetCompare(cval uint64)
	SetControl(ctl uint32)
}

// Hardware is everything Boot needs that is not memory.  WakeTimer raises
// the physical timer PPI and PollTimer the virtual timer PPI.
type Hardware struct {
	CPU       CPU
	WakeTimer Timer
	PollTimer Timer
}

func (h Hardware) valid() bool {
	return h.CPU != nil && h.WakeTimer != nil && h.PollTimer != nil
}

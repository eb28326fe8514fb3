// Package sim stands in for the core's registers so the kernel can run on a
// host.  Nothing here is concurrent safe except the window memory itself,
// which the ring synchronizes.
package sim

import (
	"bytes"
	"fmt"
	"unsafe"

	arm "rtcore/src/hardware/arm-cortex-a53"
)

// AlignedBytes returns n zeroed bytes whose first byte is 8 byte aligned,
// as the shared window is on hardware.
func AlignedBytes(n uint64) []byte {
	if n == 0 {
		return nil
	}
	words := make([]uint64, (n+7)/8)
	return unsafe.Slice((*byte)(unsafe.Pointer(&words[0])), n)
}

// Halted is the panic value CPU.Halt uses, since on a host the core cannot
// simply stop.
type Halted struct {
	Reason uint64
}

func (h *Halted) Error() string {
	return fmt.Sprintf("core halted (reason %#x)", h.Reason)
}

// CPU records every system register write the kernel makes and holds the
// live register file.
type CPU struct {
	TTBR0       uint64
	TTBRWrites  []uint64
	TLBFlushes  int
	ASIDFlushes []uint16
	MMUEnabled  bool
	MAIR        uint64
	TCR         uint64
	IRQMasked   bool
	Live        arm.RegisterSavedState
	Halted      bool
	HaltReason  uint64
}

func (c *CPU) WriteTTBR0(v uint64) {
	c.TTBR0 = v
	c.TTBRWrites = append(c.TTBRWrites, v)
}

func (c *CPU) InvalidateTLB() {
	c.TLBFlushes++
}

func (c *CPU) InvalidateASID(asid uint16) {
	c.ASIDFlushes = append(c.ASIDFlushes, asid)
}

func (c *CPU) EnableMMU(mair, tcr, ttbr0 uint64) {
	c.MAIR = mair
	c.TCR = tcr
	c.WriteTTBR0(ttbr0)
	c.MMUEnabled = true
}

func (c *CPU) SaveContext(ctx *arm.RegisterSavedState) {
	*ctx = c.Live
}

func (c *CPU) LoadContext(ctx *arm.RegisterSavedState) {
	c.Live = *ctx
}

func (c *CPU) MaskIRQ() {
	c.IRQMasked = true
}

func (c *CPU) UnmaskIRQ() {
	c.IRQMasked = false
}

// Halt never returns, it panics with *Halted.
func (c *CPU) Halt(reason uint64) {
	c.Halted = true
	c.HaltReason = reason
	c.IRQMasked = true
	panic(&Halted{Reason: reason})
}

// Clock is the system counter, shared by every timer of a core.
type Clock struct {
	Ticks uint64
	Freq  uint64
}

func (c *Clock) Advance(n uint64) {
	c.Ticks += n
}

// Timer models one generic timer (compare value and control register).
type Timer struct {
	Clock   *Clock
	CVal    uint64
	Ctl     uint32
	Armings int
}

func NewTimer(c *Clock) *Timer {
	return &Timer{Clock: c}
}

func (t *Timer) Now() uint64 {
	return t.Clock.Ticks
}

func (t *Timer) Frequency() uint64 {
	return t.Clock.Freq
}

func (t *Timer) SetCompare(cval uint64) {
	t.CVal = cval
}

func (t *Timer) SetControl(ctl uint32) {
	if ctl&arm.TimerControlEnable != 0 {
		t.Armings++
	}
	t.Ctl = ctl
}

// Enabled reports whether the timer is on and unmasked.
func (t *Timer) Enabled() bool {
	return t.Ctl&arm.TimerControlEnable != 0 && t.Ctl&arm.TimerControlIMask == 0
}

// Pending reports whether the timer's interrupt line is asserted.
func (t *Timer) Pending() bool {
	return t.Enabled() && t.Clock.Ticks >= t.CVal
}

// UART collects everything the kernel writes to its console.
type UART struct {
	bytes.Buffer
}

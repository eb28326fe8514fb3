package joy

import (
	arm "rtcore/src/hardware/arm-cortex-a53"
	"rtcore/src/lib/upbeat"
)

// IRQHandler runs with interrupts masked.  frame is the interrupted
// process's state; a handler that reschedules swaps it.
type IRQHandler func(k *Kernel, frame *arm.RegisterSavedState)

type irqTable struct {
	k         *Kernel
	handlers  [arm.IRQIdCount]IRQHandler
	enabled   *upbeat.BitSet
	spurious  uint64
	unhandled uint64
}

func newIRQTable(k *Kernel) *irqTable {
	return &irqTable{k: k, enabled: upbeat.NewBitSet(1024)}
}

// Register installs h for id and enables it.
func (t *irqTable) Register(id int, h IRQHandler) {
	upbeat.KAssert(id >= 0 && id < arm.IRQIdCount, "irq id in range")
	t.handlers[id] = h
	t.enabled.Set(upbeat.BitIndex(id))
}

func (t *irqTable) Enable(id int) {
	upbeat.KAssert(id >= 0 && id < arm.IRQIdCount, "irq id in range")
	t.enabled.Set(upbeat.BitIndex(id))
}

func (t *irqTable) Disable(id int) {
	upbeat.KAssert(id >= 0 && id < arm.IRQIdCount, "irq id in range")
	t.enabled.Clear(upbeat.BitIndex(id))
}

func (t *irqTable) dispatch(id uint32, frame *arm.RegisterSavedState) {
	if id == arm.IRQIdSpurious {
		t.spurious++
		return
	}
	if id >= arm.IRQIdCount || !t.enabled.On(upbeat.BitIndex(id)) || t.handlers[id] == nil {
		t.unhandled++
		t.k.Log.Warnf("unhandled interrupt %d (pid %d)", id, t.k.CurrentPid())
		return
	}
	t.handlers[id](t.k, frame)
}

// RegisterIRQ installs a handler for an interrupt id (0..1019).
func (k *Kernel) RegisterIRQ(id int, h IRQHandler) {
	k.irq.Register(id, h)
}

func (k *Kernel) DisableIRQ(id int) {
	k.irq.Disable(id)
}

func (k *Kernel) EnableIRQ(id int) {
	k.irq.Enable(id)
}

// HandleIRQ is the IRQ vector's entry point with the acknowledged id.
func (k *Kernel) HandleIRQ(id uint32, frame *arm.RegisterSavedState) {
	k.irq.dispatch(id, frame)
}

// UnhandledIRQs counts interrupts with no enabled handler, spurious ones
// not included.
func (k *Kernel) UnhandledIRQs() uint64 {
	return k.irq.unhandled
}

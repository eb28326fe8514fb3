package joy

import (
	"fmt"

	arm "rtcore/src/hardware/arm-cortex-a53"
	"rtcore/src/lib/upbeat"
)

//go:generate genny -in=../gen/minheap.go -out=process_heap.go -pkg=joy gen "Generic=Process"
//go:generate genny -in=../gen/freelist.go -out=process_freelist.go -pkg=joy gen "Generic=Process"

// ProcState is where a process is in its lifecycle.
type ProcState int

const (
	ProcUnused ProcState = iota
	ProcReady
	ProcRunning
	ProcWaiting
)

func (s ProcState) String() string {
	switch s {
	case ProcUnused:
		return "unused"
	case ProcReady:
		return "ready"
	case ProcRunning:
		return "running"
	case ProcWaiting:
		return "waiting"
	}
	return fmt.Sprintf("ProcState(%d)", int(s))
}

// KernelPid is the pid of process 0, which owns the kernel address space and
// runs the idle loop.  It is never in the process table.
const KernelPid = 0

// Process is one job.  Everything it owns (memory, address space, table
// slot) is given back when it exits or is abandoned.  The code image is
// not owned, spawned children share their parent's.
type Process struct {
	Pid   uint32
	State ProcState
	Ctx   arm.RegisterSavedState
	Space AddressSpace

	Mem      uint64
	MemSize  uint64
	CodePhys uint64
	CodeSize uint64

	// Deadline is what was asked for.  EffDeadline orders the ready queue,
	// it is the same as Deadline until something adjusts it.
	Deadline    uint64
	EffDeadline uint64
	WakeAt      uint64

	slot int
}

func (p *Process) String() string {
	return fmt.Sprintf("pid %d (%s) deadline=%d pc=%#x sp=%#x", p.Pid, p.State, p.EffDeadline, p.Ctx.PC, p.Ctx.SP)
}

// ProcessTable is the fixed array of process slots.  Slots are handed out
// from a free list.  A pid names one slot for the life of the table: the
// process in slot i is pid i+1.
type ProcessTable struct {
	slots []Process
	free  ProcessFreeList
	live  int
}

func NewProcessTable(size int) *ProcessTable {
	t := &ProcessTable{
		slots: make([]Process, size),
		free:  NewProcessFreeList(size),
	}
	for i := size - 1; i >= 0; i-- {
		t.slots[i].slot = i
		t.slots[i].Pid = pidOf(i)
		t.free.Push(&t.slots[i])
	}
	return t
}

func (t *ProcessTable) Cap() int {
	return len(t.slots)
}

// Live is the number of slots in use.
func (t *ProcessTable) Live() int {
	return t.live
}

// Alloc takes a slot.  It returns nil when the table is full.  The slot
// comes back zeroed except for its pid.
func (t *ProcessTable) Alloc() *Process {
	p := t.free.Pop()
	if p == nil {
		return nil
	}
	upbeat.KAssert(p.State == ProcUnused, "free slot is unused")
	slot := p.slot
	*p = Process{Pid: pidOf(slot), slot: slot}
	t.live++
	return p
}

// Release returns p's slot.  Whatever p owned must already be freed.
func (t *ProcessTable) Release(p *Process) {
	upbeat.KAssert(p.slot >= 0 && p.slot < len(t.slots) && &t.slots[p.slot] == p, "process belongs to table")
	upbeat.KAssert(p.State != ProcUnused, "process released twice")
	slot := p.slot
	*p = Process{Pid: pidOf(slot), slot: slot}
	t.free.Push(p)
	t.live--
}

func pidOf(slot int) uint32 {
	return uint32(slot) + KernelPid + 1
}

// Slot returns the process in slot i, whatever its state.
func (t *ProcessTable) Slot(i int) (*Process, JoyError) {
	if i < 0 || i >= len(t.slots) {
		return nil, MakeError(ErrorProcessBadPid, uint32(i))
	}
	return &t.slots[i], JoyNoError
}

// Lookup finds a live process by pid.
func (t *ProcessTable) Lookup(pid uint32) *Process {
	if pid == KernelPid || int64(pid) > int64(len(t.slots)) {
		return nil
	}
	p := &t.slots[pid-KernelPid-1]
	if p.State == ProcUnused {
		return nil
	}
	return p
}

// Each calls fn on every live process in slot order.
func (t *ProcessTable) Each(fn func(p *Process)) {
	for i := range t.slots {
		if t.slots[i].State != ProcUnused {
			fn(&t.slots[i])
		}
	}
}

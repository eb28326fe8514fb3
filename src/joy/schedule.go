package joy

import (
	"rtcore/src/anticipation"
	arm "rtcore/src/hardware/arm-cortex-a53"
	"rtcore/src/lib/upbeat"
)

// SwitchKind says where the registers of the running process are when a
// switch happens.
type SwitchKind int

const (
	// SwitchSync switches the live register file, from the idle loop.
	SwitchSync SwitchKind = iota
	// SwitchIRQ swaps the exception frame the trap or interrupt entry saved;
	// the exception return then resumes the new process.
	SwitchIRQ
)

func (s SwitchKind) String() string {
	if s == SwitchSync {
		return "sync"
	}
	return "irq"
}

// switchTo makes next the running process.  The outgoing registers go to
// save.  frame is the exception frame for SwitchIRQ and unused otherwise.
func (k *Kernel) switchTo(kind SwitchKind, save *arm.RegisterSavedState, next *Process, frame *arm.RegisterSavedState) {
	next.State = ProcRunning
	k.curr = next
	k.mmu.Switch(next.Space)
	switch kind {
	case SwitchSync:
		k.hw.CPU.SaveContext(save)
		k.hw.CPU.LoadContext(&next.Ctx)
	case SwitchIRQ:
		upbeat.KAssert(frame != nil, "irq switch has a frame")
		*save = *frame
		*frame = next.Ctx
	}
	k.stats.Switches++
}

func (k *Kernel) pushReady(p *Process) {
	p.State = ProcReady
	if !k.ready.Push(p.EffDeadline, p) {
		k.Panic(MakeError(ErrorReadyQueueFull, p.Pid))
	}
}

// Schedule gives the core to the head of the ready queue if it is more
// urgent than the running process.  Process 0 loses to anything; otherwise
// only a strictly earlier deadline preempts.  It reports whether it
// switched.
func (k *Kernel) Schedule(kind SwitchKind, frame *arm.RegisterSavedState) bool {
	key, next, ok := k.ready.Peek()
	if !ok {
		return false
	}
	prev := k.curr
	if prev != &k.p0 && key >= prev.EffDeadline {
		return false
	}
	k.ready.Pop()
	if prev == &k.p0 {
		prev.State = ProcReady
	} else {
		k.pushReady(prev)
	}
	k.Log.Debugf("schedule(%s): pid %d -> pid %d (deadline %d)", kind, prev.Pid, next.Pid, key)
	k.switchTo(kind, &prev.Ctx, next, frame)
	return true
}

// dispatchNext runs the most urgent ready process, or process 0 when there
// is none, after the current one has stopped being runnable.
func (k *Kernel) dispatchNext(frame *arm.RegisterSavedState, save *arm.RegisterSavedState) {
	next := &k.p0
	if _, p, ok := k.ready.Pop(); ok {
		next = p
	}
	k.Log.Debugf("dispatch: pid %d -> pid %d", k.curr.Pid, next.Pid)
	k.switchTo(SwitchIRQ, save, next, frame)
}

// DrainRing admits at most budget descriptors from the ring and returns how
// many it took.
func (k *Kernel) DrainRing(budget int) int {
	n := 0
	for ; n < budget; n++ {
		d, ok := k.ring.Pop()
		if !ok {
			break
		}
		k.admit(d)
	}
	if n > k.stats.MaxDrain {
		k.stats.MaxDrain = n
	}
	if n > 0 {
		k.Log.Statsf("ring", "drained %d, %d ready, %d waiting", n, k.ready.Len(), k.waiting.Len())
	}
	return n
}

// admit turns a descriptor into a ready process.  Descriptors carry no
// deadline, a job gets AdmitDeadline ticks from when it is admitted.
func (k *Kernel) admit(d anticipation.JobDescriptor) *Process {
	p := k.newProcess(d.EntryPoint, d.ImageSize, d.MemoryRequest, k.Now()+k.cfg.AdmitDeadline)
	p.Ctx.X[0] = p.Mem
	p.Ctx.X[1] = p.MemSize
	k.pushReady(p)
	k.stats.Admitted++
	k.Log.Debugf("admitted %v (image %#x+%#x, mem %#x+%#x)", p, p.CodePhys, p.CodeSize, p.Mem, p.MemSize)
	return p
}

// newProcess takes a slot, memory and an address space for a job and sets
// up its entry context.  Running out of any of them is fatal.  The caller
// fills in the argument registers and queues it.
func (k *Kernel) newProcess(codePhys, codeSize, memSize, deadline uint64) *Process {
	p := k.procs.Alloc()
	if p == nil {
		k.Panic(MakeError(ErrorProcessTableFull, k.CurrentPid()))
	}
	mem := k.mem.Alloc(memSize)
	if mem == 0 {
		k.Panic(MakeError(ErrorMemoryExhausted, p.Pid))
	}
	space, err := k.mmu.BuildProcessSpace(codePhys, codeSize)
	if err != JoyNoError {
		k.Panic(MakeError(err.Raw(), p.Pid))
	}
	p.Space = space
	p.Mem = mem
	p.MemSize = memSize
	p.CodePhys = codePhys
	p.CodeSize = codeSize
	p.Deadline = deadline
	p.EffDeadline = deadline
	p.Ctx.SP = (mem + memSize) &^ 15
	p.Ctx.PC = 0
	p.Ctx.PState = arm.PStateJobEntry
	p.Ctx.X[30] = k.cfg.ExitTrampoline
	p.State = ProcReady
	return p
}

// reclaim gives back everything p owns.  p must not be running or queued.
func (k *Kernel) reclaim(p *Process) {
	upbeat.KAssert(p != &k.p0, "process 0 is never reclaimed")
	upbeat.KAssert(p != k.curr, "running process is not reclaimed")
	k.mem.Free(p.Mem)
	k.mmu.Destroy(p.Space)
	k.procs.Release(p)
}

package joy

import (
	arm "rtcore/src/hardware/arm-cortex-a53"
)

// Syscall numbers are the #imm16 of the SVC instruction.  Arguments are in
// x0..x3 of the trap frame and a result, when there is one, goes back in x0.
const (
	SyscallExit      = 0
	SyscallYield     = 1
	SyscallWaitUntil = 2
	SyscallSpawn     = 3
)

// Syscall handles an SVC from the running job.  frame is the job's saved
// state and is what the exception return restores, so every path leaves
// the registers of whichever process should run next in it.
func (k *Kernel) Syscall(num uint16, frame *arm.RegisterSavedState) {
	if k.curr == &k.p0 {
		k.Panic(MakeError(ErrorSyscallFromKernel, KernelPid))
	}
	k.stats.Syscalls++
	switch num {
	case SyscallExit:
		k.exit(frame)
	case SyscallYield:
		k.yield(frame)
	case SyscallWaitUntil:
		k.waitUntil(frame.X[0], frame)
	case SyscallSpawn:
		k.spawn(frame.X[0], frame.X[1], frame.X[2], frame.X[3], frame)
	default:
		k.Log.Errorf("pid %d: unknown syscall %d", k.curr.Pid, num)
		k.fault(uint64(arm.ECSVC64)<<arm.ESRClassShift|uint64(num), 0, frame)
	}
}

// exit never returns to the caller.  The next process is loaded before the
// caller's tables are freed since TTBR0 still points at them.
func (k *Kernel) exit(frame *arm.RegisterSavedState) {
	p := k.curr
	k.Log.Debugf("pid %d exits", p.Pid)
	k.dispatchNext(frame, &k.discard)
	k.reclaim(p)
	k.stats.Exited++
}

// yield puts the caller back in the ready queue at its deadline, so it runs
// again unless something more urgent is waiting.
func (k *Kernel) yield(frame *arm.RegisterSavedState) {
	p := k.curr
	k.stats.Yields++
	p.Ctx = *frame
	k.pushReady(p)
	k.dispatchNext(frame, &p.Ctx)
}

// waitUntil blocks the caller until the counter reaches wake (absolute
// ticks).  The wake timer is rearmed only when the caller is the new
// earliest waiter.
func (k *Kernel) waitUntil(wake uint64, frame *arm.RegisterSavedState) {
	p := k.curr
	p.WakeAt = wake
	p.State = ProcWaiting
	if !k.waiting.Push(wake, p) {
		k.Panic(MakeError(ErrorReadyQueueFull, p.Pid))
	}
	if _, first, _ := k.waiting.Peek(); first == p {
		k.armWake(wake)
	}
	k.Log.Debugf("pid %d waits until %d", p.Pid, wake)
	k.dispatchNext(frame, &p.Ctx)
}

// spawn starts a child running the caller's image at entry with its own
// memory and address space.  The child's pid goes back to the caller in x0
// and the scheduler runs at once, so an urgent child preempts its parent.
func (k *Kernel) spawn(deadline, entry, arg, memSize uint64, frame *arm.RegisterSavedState) {
	parent := k.curr
	child := k.newProcess(parent.CodePhys, parent.CodeSize, memSize, deadline)
	child.Ctx.PC = entry
	child.Ctx.X[0] = arg
	child.Ctx.X[1] = child.Mem
	child.Ctx.X[2] = child.MemSize
	k.pushReady(child)
	k.stats.Spawned++
	k.Log.Debugf("pid %d spawned %v", parent.Pid, child)
	frame.X[0] = uint64(child.Pid)
	k.Schedule(SwitchIRQ, frame)
}

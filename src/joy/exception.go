package joy

import (
	arm "rtcore/src/hardware/arm-cortex-a53"
	"rtcore/src/lib/upbeat"
)

// PanicReason says whose code took a synchronous exception.
type PanicReason int

const (
	PanicNone PanicReason = iota
	PanicKernel
	PanicUser
)

func (r PanicReason) String() string {
	switch r {
	case PanicKernel:
		return "kernel"
	case PanicUser:
		return "user"
	}
	return "none"
}

// Fault describes a synchronous exception that was not a syscall.
type Fault struct {
	ESR    uint64
	FAR    uint64
	Reason PanicReason
	Pid    uint32
	Frame  *arm.RegisterSavedState
}

// RecoverFunc decides what happens after a fault is reported.  It must
// either halt or leave frame holding a process that can run.
type RecoverFunc func(k *Kernel, f *Fault)

// DefaultRecover halts on faults in the kernel and abandons the job
// otherwise.
func DefaultRecover(k *Kernel, f *Fault) {
	if f.Reason == PanicKernel {
		k.Panic(MakeError(ErrorFaultInKernel, f.Pid))
	}
	k.Abandon(f.Frame)
}

// HandleSync is the synchronous exception vector's entry point.
func (k *Kernel) HandleSync(esr, far uint64, frame *arm.RegisterSavedState) {
	if arm.ExtractEC(esr) == arm.ECSVC64 {
		k.Syscall(arm.ExtractSVCImmediate(esr), frame)
		return
	}
	k.fault(esr, far, frame)
}

func (k *Kernel) fault(esr, far uint64, frame *arm.RegisterSavedState) {
	f := &Fault{ESR: esr, FAR: far, Pid: k.CurrentPid(), Frame: frame, Reason: PanicUser}
	if k.curr == &k.p0 {
		f.Reason = PanicKernel
	}
	k.stats.Faults++
	k.Log.Errorf("%s fault in pid %d, esr=%#x far=%#x", f.Reason, f.Pid, esr, far)
	upbeat.PrintoutException(esr, k.Log)
	switch arm.ExtractEC(esr) {
	case arm.ECDataAbortLower, arm.ECDataAbortSame, arm.ECInstAbortLower, arm.ECInstAbortSame:
		status, level := arm.DecodeFaultStatus(arm.ExtractISS(esr))
		if level >= 0 {
			k.Log.Errorf("%s at level %d", status, level)
		} else {
			k.Log.Errorf("%s", status)
		}
	}
	k.DumpContext(frame)
	k.recover(k, f)
}

// Abandon throws away the running job as if it had exited and resumes the
// most urgent ready process in frame.
func (k *Kernel) Abandon(frame *arm.RegisterSavedState) {
	p := k.curr
	upbeat.KAssert(p != &k.p0, "process 0 is never abandoned")
	k.Log.Warnf("abandoning pid %d", p.Pid)
	k.dispatchNext(frame, &k.discard)
	k.reclaim(p)
	k.stats.Abandoned++
}

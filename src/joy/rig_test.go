package joy

import (
	"bytes"
	"testing"

	"rtcore/src/anticipation"
	arm "rtcore/src/hardware/arm-cortex-a53"
	"rtcore/src/hardware/sim"
	"rtcore/src/lib/trust"
	"rtcore/src/lib/upbeat"
)

func testLayout() Layout {
	l := DefaultLayout()
	l.KernelSize = 0x1_0000
	l.HeapBase = 0x4100_0000
	l.HeapSize = 0x40_0000
	l.CodeBase = 0x4140_0000
	l.CodeSize = 0x1_0000
	l.RingBase = 0x4141_0000
	l.RingSlots = 16
	return l
}

// rig is a kernel booted on simulated hardware.  The running process's
// registers are cpu.Live; traps and interrupts copy them into a frame and
// copy the frame back on return, as the vectors do.
type rig struct {
	k      *Kernel
	cpu    *sim.CPU
	clock  *sim.Clock
	wake   *sim.Timer
	poll   *sim.Timer
	window []byte
	out    *bytes.Buffer
	host   *anticipation.Ring
}

func newRig(t *testing.T, tweaks ...func(*Config)) *rig {
	t.Helper()
	cfg := DefaultConfig()
	cfg.Layout = testLayout()
	cfg.Procs = 16
	cfg.QueueCap = 16
	cfg.DrainBudget = 4
	cfg.PollPeriod = 1000
	cfg.AdmitDeadline = 10_000
	cfg.LogLevel = trust.DebugMask | trust.StatsMask
	for _, fn := range tweaks {
		fn(&cfg)
	}
	r := &rig{
		cpu:   &sim.CPU{},
		clock: &sim.Clock{Freq: cfg.Layout.CounterFreq},
		out:   &bytes.Buffer{},
	}
	r.wake = sim.NewTimer(r.clock)
	r.poll = sim.NewTimer(r.clock)
	r.window = sim.AlignedBytes(cfg.Layout.WindowSize())
	log := trust.NewLogger(r.out, cfg.LogLevel, func(int) {})
	k, err := Boot(cfg, Hardware{CPU: r.cpu, WakeTimer: r.wake, PollTimer: r.poll}, r.window, log)
	if err != nil {
		t.Fatalf("boot failed: %v", err)
	}
	t.Cleanup(func() { upbeat.SetAssertHook(nil) })
	r.k = k
	l := cfg.Layout
	r.host, err = anticipation.Attach(l.window(r.window, l.RingBase, anticipation.RingBytes(l.RingSlots)))
	if err != nil {
		t.Fatalf("host could not attach to ring: %v", err)
	}
	return r
}

func svc(num uint16) uint64 {
	return uint64(arm.ECSVC64)<<arm.ESRClassShift | uint64(num)
}

// trap delivers a synchronous exception to the running process.
func (r *rig) trap(esr uint64, far uint64) {
	frame := r.cpu.Live
	r.k.HandleSync(esr, far, &frame)
	r.cpu.Live = frame
}

// syscall sets x0..x3 of the running process and traps with num.
func (r *rig) syscall(num uint16, args ...uint64) {
	for i, a := range args {
		r.cpu.Live.X[i] = a
	}
	r.trap(svc(num), 0)
}

func (r *rig) irq(id uint32) {
	frame := r.cpu.Live
	r.k.HandleIRQ(id, &frame)
	r.cpu.Live = frame
}

// job makes a ready process directly, skipping the ring.
func (r *rig) job(deadline uint64) *Process {
	l := r.k.layout
	p := r.k.newProcess(l.CodeBase, arm.PageSize, 0x100, deadline)
	r.k.pushReady(p)
	return p
}

// run makes p the running process through the idle loop.
func (r *rig) run(t *testing.T, deadline uint64) *Process {
	t.Helper()
	if r.k.Current() != &r.k.p0 {
		t.Fatalf("run needs process 0 to be current, have pid %d", r.k.CurrentPid())
	}
	p := r.job(deadline)
	if !r.k.Idle() || r.k.Current() != p {
		t.Fatalf("idle loop did not switch to pid %d", p.Pid)
	}
	return p
}

// expectHalt runs fn and returns the reason the core halted with.
func expectHalt(t *testing.T, fn func()) (err JoyError) {
	t.Helper()
	defer func() {
		v := recover()
		h, ok := v.(*sim.Halted)
		if !ok {
			t.Fatalf("expected the core to halt, got %v", v)
		}
		err = JoyError(h.Reason)
	}()
	fn()
	return JoyNoError
}

package joy

import (
	"errors"
	"fmt"
	"math"

	"rtcore/src/anticipation"
	arm "rtcore/src/hardware/arm-cortex-a53"
	"rtcore/src/lib/trust"
	"rtcore/src/lib/upbeat"
)

// Config holds the kernel tunables.  Times are in counter ticks.
type Config struct {
	Layout         Layout
	Procs          int
	QueueCap       int
	DrainBudget    int
	PollPeriod     uint64
	AdmitDeadline  uint64
	ExitTrampoline uint64
	LogLevel       trust.MaskLevel
}

// DefaultConfig polls the ring every millisecond and gives each admitted job
// ten milliseconds, at the default counter frequency.
func DefaultConfig() Config {
	l := DefaultLayout()
	tb := arm.Timebase{Freq: l.CounterFreq}
	return Config{
		Layout:         l,
		Procs:          0x1000,
		QueueCap:       0xFF,
		DrainBudget:    16,
		PollPeriod:     tb.TicksFromMicros(1000),
		AdmitDeadline:  tb.TicksFromMicros(10_000),
		ExitTrampoline: l.KernelBase + 0x1000,
		LogLevel:       trust.InfoMask | trust.StatsMask,
	}
}

// Stats are counters kept for the stats log lines.
type Stats struct {
	Admitted  uint64
	Spawned   uint64
	Exited    uint64
	Abandoned uint64
	Switches  uint64
	Wakeups   uint64
	Yields    uint64
	Syscalls  uint64
	Faults    uint64
	Polls     uint64
	MaxDrain  int
}

// Kernel is all the state of the core.  Every entry point (IRQ, trap, idle
// loop) goes through it; nothing in the package is global except the
// assertion hook.
type Kernel struct {
	Log *trust.Logger

	cfg    Config
	layout Layout
	hw     Hardware
	tb     arm.Timebase

	mem  *upbeat.Allocator
	mmu  *MMU
	ring *anticipation.Ring

	procs   *ProcessTable
	p0      Process
	curr    *Process
	ready   ProcessMinHeap
	waiting ProcessMinHeap

	irq     *irqTable
	poll    periodic
	recover RecoverFunc

	errno      JoyError
	assertInfo *upbeat.AssertInfo
	stats      Stats
	// exiting processes save their context here, nobody reads it
	discard arm.RegisterSavedState
}

// Boot brings the kernel up on the given hardware.  window is the shared
// window (heap, code region and ring) starting at cfg.Layout.WindowBase().
// A ring already formatted in the window is kept so descriptors pushed
// before boot are not lost.
func Boot(cfg Config, hw Hardware, window []byte, log *trust.Logger) (*Kernel, error) {
	if !hw.valid() {
		return nil, errors.New("boot: missing cpu or timers")
	}
	l := cfg.Layout
	if err := l.Validate(); err != nil {
		return nil, err
	}
	if uint64(len(window)) < l.WindowSize() {
		return nil, fmt.Errorf("boot: window is %#x bytes, layout needs %#x", len(window), l.WindowSize())
	}
	if cfg.Procs <= 0 || cfg.QueueCap <= 0 || cfg.DrainBudget <= 0 || cfg.PollPeriod == 0 {
		return nil, errors.New("boot: process, queue, drain and poll settings must be positive")
	}
	if log == nil {
		log = trust.Default()
	}
	log.SetLevel(cfg.LogLevel)

	k := &Kernel{
		Log:     log,
		cfg:     cfg,
		layout:  l,
		hw:      hw,
		tb:      arm.Timebase{Freq: hw.WakeTimer.Frequency()},
		procs:   NewProcessTable(cfg.Procs),
		ready:   NewProcessMinHeap(cfg.QueueCap),
		waiting: NewProcessMinHeap(cfg.QueueCap),
		recover: DefaultRecover,
	}
	hw.CPU.MaskIRQ()
	upbeat.SetAssertHook(k.assertionFailed)

	k.mem = upbeat.NewAllocator(l.HeapBase, l.window(window, l.HeapBase, l.HeapSize))
	ringMem := l.window(window, l.RingBase, anticipation.RingBytes(l.RingSlots))
	ring, err := anticipation.Attach(ringMem)
	if err == anticipation.ErrNotFormatted || (err == nil && ring.Capacity() != l.RingSlots) {
		ring, err = anticipation.Format(ringMem, l.RingSlots)
	}
	if err != nil {
		return nil, fmt.Errorf("boot: ring: %w", err)
	}
	k.ring = ring

	k.mmu = newMMU(k.mem, hw.CPU, l, log)
	kspace, jerr := k.mmu.BuildKernelSpace()
	if jerr != JoyNoError {
		return nil, jerr
	}
	k.mmu.Enable()

	k.p0 = Process{Pid: KernelPid, State: ProcRunning, Space: kspace,
		Deadline: math.MaxUint64, EffDeadline: math.MaxUint64}
	k.curr = &k.p0

	k.irq = newIRQTable(k)
	k.irq.Register(arm.IRQIdPhysicalTimer, (*Kernel).wakeTick)
	k.irq.Register(arm.IRQIdVirtualTimer, (*Kernel).pollTick)
	k.cancelWake()
	k.poll = periodic{timer: hw.PollTimer, period: cfg.PollPeriod}
	k.poll.start()
	hw.CPU.UnmaskIRQ()

	log.Infof("joy: heap %#x+%#x, ring %d slots at %#x, %d table pages for the kernel",
		l.HeapBase, l.HeapSize, l.RingSlots, l.RingBase, k.mmu.TablePages())
	return k, nil
}

// Panic is the only way the kernel stops.  It records err, logs it and
// halts the core.  It does not return.
func (k *Kernel) Panic(err JoyError) {
	k.errno = err
	k.Log.Errorf("kernel panic: %v", err)
	if k.assertInfo != nil {
		k.Log.Errorf("%s", k.assertInfo.String())
	}
	switch err.Subsystem() {
	case MemorySubsystem, MMUSubsystem:
		k.mem.Dump(k.Log)
	}
	k.hw.CPU.MaskIRQ()
	k.hw.CPU.Halt(uint64(err))
	panic("joy: cpu halt returned")
}

func (k *Kernel) assertionFailed(info upbeat.AssertInfo) {
	k.assertInfo = &info
	k.Panic(MakeError(ErrorAssertion, k.CurrentPid()))
}

// SetRecover replaces the fault recovery callback.  nil restores
// DefaultRecover.
func (k *Kernel) SetRecover(fn RecoverFunc) {
	if fn == nil {
		fn = DefaultRecover
	}
	k.recover = fn
}

// Errno is the error the kernel panicked with, JoyNoError while running.
func (k *Kernel) Errno() JoyError {
	return k.errno
}

// AssertInfo is the failed assertion that caused the panic, if any.
func (k *Kernel) AssertInfo() *upbeat.AssertInfo {
	return k.assertInfo
}

func (k *Kernel) Current() *Process {
	return k.curr
}

func (k *Kernel) CurrentPid() uint32 {
	if k.curr == nil {
		return KernelPid
	}
	return k.curr.Pid
}

func (k *Kernel) Now() uint64 {
	return k.hw.WakeTimer.Now()
}

func (k *Kernel) Config() Config {
	return k.cfg
}

func (k *Kernel) Stats() Stats {
	return k.stats
}

func (k *Kernel) Allocator() *upbeat.Allocator {
	return k.mem
}

func (k *Kernel) MMU() *MMU {
	return k.mmu
}

func (k *Kernel) Ring() *anticipation.Ring {
	return k.ring
}

func (k *Kernel) Processes() *ProcessTable {
	return k.procs
}

// ReadyLen and WaitingLen are the queue depths.
func (k *Kernel) ReadyLen() int {
	return k.ready.Len()
}

func (k *Kernel) WaitingLen() int {
	return k.waiting.Len()
}

// Idle is the body of process 0's loop: poll the ring and give the core to
// the most urgent job.  It reports whether it switched away.
func (k *Kernel) Idle() bool {
	k.hw.CPU.MaskIRQ()
	defer k.hw.CPU.UnmaskIRQ()
	k.DrainRing(k.cfg.DrainBudget)
	if k.curr != &k.p0 {
		return false
	}
	return k.Schedule(SwitchSync, nil)
}

// DumpContext writes a saved register file to the log.
func (k *Kernel) DumpContext(ctx *arm.RegisterSavedState) {
	k.Log.Errorf("pc=%#016x sp=%#016x pstate=%#x", ctx.PC, ctx.SP, ctx.PState)
	for i := 0; i < len(ctx.X); i += 4 {
		line := ""
		for j := i; j < i+4 && j < len(ctx.X); j++ {
			line += fmt.Sprintf(" x%-2d=%#016x", j, ctx.X[j])
		}
		k.Log.Errorf("%s", line)
	}
}

// LogStats writes the counters as stats lines.
func (k *Kernel) LogStats() {
	s := k.stats
	k.Log.Statsf("jobs", "admitted=%d spawned=%d exited=%d abandoned=%d",
		s.Admitted, s.Spawned, s.Exited, s.Abandoned)
	k.Log.Statsf("sched", "switches=%d wakeups=%d yields=%d syscalls=%d faults=%d",
		s.Switches, s.Wakeups, s.Yields, s.Syscalls, s.Faults)
	k.Log.Statsf("ring", "polls=%d max drain=%d consumed=%d", s.Polls, s.MaxDrain, k.ring.Consumed())
	k.Log.Statsf("mem", "in use=%#x blocks=%d table pages=%d largest free=%#x",
		k.mem.InUse(), k.mem.Allocations(), k.mmu.TablePages(), k.mem.LargestFree())
}

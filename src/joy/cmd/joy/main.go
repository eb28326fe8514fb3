package main

import (
	"bufio"
	"flag"
	"math/rand"
	"os"
	"sync"
	"sync/atomic"
	"time"

	"rtcore/src/anticipation"
	arm "rtcore/src/hardware/arm-cortex-a53"
	"rtcore/src/hardware/sim"
	"rtcore/src/joy"
	"rtcore/src/lib/trust"
	"rtcore/src/lib/upbeat"
)

var help = flag.Bool("h", false, "show this help message")
var verbose = flag.Bool("v", false, "log every switch, admission and wakeup")
var producers = flag.Int("producers", 4, "number of concurrent host producers")
var jobsEach = flag.Int("jobs", 25, "jobs pushed by each producer")
var slots = flag.Uint("slots", 64, "ring capacity (power of two)")
var heapMiB = flag.Uint("heap", 16, "kernel heap size in MiB")
var pollMicros = flag.Uint64("poll", 200, "ring poll period in microseconds")
var seed = flag.Int64("seed", 1, "random seed for job behavior")
var maxSteps = flag.Int("steps", 5_000_000, "give up after this many simulation steps")

const tickStep = 50

// bootParams lays out a small shared window the way the host driver would.
func bootParams() *upbeat.BootParams {
	heap := uint64(*heapMiB) << 20
	p := &upbeat.BootParams{
		EntryPoint:  0x4000_0000,
		KernelStart: 0x4000_0000,
		KernelLast:  0x4020_0000,
		CounterFreq: 62_500_000,
		HeapStart:   0x4100_0000,
		RingSlots:   uint64(*slots),
	}
	p.HeapEnd = p.HeapStart + heap
	p.CodeStart = p.HeapEnd
	p.CodeEnd = p.CodeStart + 0x10_0000
	p.RingStart = p.CodeEnd
	return p
}

// machine is the simulated core plus what each job does when it gets the
// cpu.  The kernel only sees registers and traps.
type machine struct {
	k     *joy.Kernel
	cpu   *sim.CPU
	clock *sim.Clock
	wake  *sim.Timer
	poll  *sim.Timer
	rnd   *rand.Rand
	steps map[uint32]int
}

func (m *machine) trap(num uint16, args ...uint64) {
	for i, a := range args {
		m.cpu.Live.X[i] = a
	}
	frame := m.cpu.Live
	m.k.HandleSync(uint64(arm.ECSVC64)<<arm.ESRClassShift|uint64(num), 0, &frame)
	m.cpu.Live = frame
}

func (m *machine) irq(id uint32) {
	frame := m.cpu.Live
	m.k.HandleIRQ(id, &frame)
	m.cpu.Live = frame
}

const childEntry = 0x100

// step runs the current job for one of its turns.  A job admitted from the
// ring spawns a child or waits on its first turn, waits on its second and
// exits on its third.  Children yield once and exit.  Nothing moves the pc, so it still tells which kind of
// job is running.
func (m *machine) step() {
	p := m.k.Current()
	turn := m.steps[p.Pid]
	m.steps[p.Pid] = turn + 1
	child := m.cpu.Live.PC == childEntry
	switch {
	case turn == 0 && !child && m.rnd.Intn(4) == 0:
		deadline := m.k.Now() + uint64(m.rnd.Intn(20_000))
		m.trap(joy.SyscallSpawn, deadline, childEntry, uint64(p.Pid), 0x400)
	case turn <= 1 && !child:
		m.trap(joy.SyscallWaitUntil, m.k.Now()+uint64(m.rnd.Intn(5000)))
	case turn == 0:
		m.trap(joy.SyscallYield)
	default:
		delete(m.steps, p.Pid)
		m.trap(joy.SyscallExit)
	}
}

func main() {
	flag.Parse()
	if *help {
		flag.Usage()
		os.Exit(0)
	}
	console := bufio.NewWriter(os.Stdout)
	defer console.Flush()
	level := trust.InfoMask | trust.StatsMask
	if *verbose {
		level |= trust.DebugMask
	}
	log := trust.NewLogger(upbeat.NewUARTWriter(console), level, func(code int) {
		console.Flush()
		os.Exit(code)
	})

	layout, err := joy.LayoutFromBootParams(bootParams())
	if err != nil {
		log.Fatalf(1, "%v", err)
	}
	cfg := joy.DefaultConfig()
	cfg.Layout = layout
	cfg.LogLevel = level
	tb := arm.Timebase{Freq: layout.CounterFreq}
	cfg.PollPeriod = tb.TicksFromMicros(*pollMicros)
	cfg.AdmitDeadline = tb.TicksFromMicros(1000)

	clock := &sim.Clock{Freq: layout.CounterFreq}
	m := &machine{
		cpu:   &sim.CPU{},
		clock: clock,
		wake:  sim.NewTimer(clock),
		poll:  sim.NewTimer(clock),
		rnd:   rand.New(rand.NewSource(*seed)),
		steps: make(map[uint32]int),
	}
	window := sim.AlignedBytes(layout.WindowSize())
	m.k, err = joy.Boot(cfg, joy.Hardware{CPU: m.cpu, WakeTimer: m.wake, PollTimer: m.poll}, window, log)
	if err != nil {
		log.Fatalf(1, "boot: %v", err)
	}
	defer func() {
		if h, ok := recover().(*sim.Halted); ok {
			log.Fatalf(2, "core halted: %v", joy.JoyError(h.Reason))
		}
	}()

	ringMem := window[layout.RingBase-layout.WindowBase():]
	host, err := anticipation.Attach(ringMem)
	if err != nil {
		log.Fatalf(1, "host attach: %v", err)
	}
	var pushed int64
	var wg sync.WaitGroup
	for i := 0; i < *producers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			r := rand.New(rand.NewSource(*seed + int64(i) + 1))
			for j := 0; j < *jobsEach; j++ {
				host.Push(anticipation.JobDescriptor{
					EntryPoint:    layout.CodeBase + uint64(i)*arm.PageSize,
					ImageSize:     arm.PageSize,
					MemoryRequest: uint64(0x100 + r.Intn(0x4000)),
				})
				atomic.AddInt64(&pushed, 1)
				time.Sleep(time.Duration(r.Intn(200)) * time.Microsecond)
			}
		}(i)
	}
	producing := int32(1)
	go func() {
		wg.Wait()
		atomic.StoreInt32(&producing, 0)
	}()

	start := time.Now()
	total := uint32(*producers * *jobsEach)
	step := 0
	for ; step < *maxSteps; step++ {
		clock.Advance(tickStep)
		if m.poll.Pending() {
			m.irq(arm.IRQIdVirtualTimer)
		}
		if m.wake.Pending() {
			m.irq(arm.IRQIdPhysicalTimer)
		}
		if m.k.CurrentPid() != joy.KernelPid {
			m.step()
			continue
		}
		if !m.k.Idle() && atomic.LoadInt32(&producing) == 0 &&
			m.k.Ring().Consumed() == total && m.k.Processes().Live() == 0 {
			break
		}
	}
	if step == *maxSteps {
		log.Warnf("gave up after %d steps with %d jobs live", step, m.k.Processes().Live())
	}
	m.k.LogStats()
	log.Infof("pushed %d jobs, simulated %d us in %v", atomic.LoadInt64(&pushed),
		tb.MicrosFromTicks(clock.Ticks), time.Since(start).Round(time.Millisecond))
	if err := m.k.Allocator().Check(); err != nil {
		log.Errorf("allocator: %v", err)
	}
}

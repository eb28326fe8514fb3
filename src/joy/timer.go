package joy

import (
	arm "rtcore/src/hardware/arm-cortex-a53"
)

// armWake programs the wake timer for t.  A time that has already passed is
// pushed to the next tick so the interrupt still fires.
func (k *Kernel) armWake(t uint64) {
	if now := k.Now(); t <= now {
		t = now + 1
	}
	k.hw.WakeTimer.SetCompare(t)
	k.hw.WakeTimer.SetControl(arm.TimerControlEnable)
}

func (k *Kernel) cancelWake() {
	k.hw.WakeTimer.SetControl(0)
}

// wakeTick moves every waiter whose time has come to the ready queue, then
// rearms for the earliest remaining waiter or turns the timer off.
func (k *Kernel) wakeTick(frame *arm.RegisterSavedState) {
	now := k.Now()
	woke := 0
	for {
		t, p, ok := k.waiting.Peek()
		if !ok || t > now {
			break
		}
		k.waiting.Pop()
		k.pushReady(p)
		woke++
	}
	if t, _, ok := k.waiting.Peek(); ok {
		k.armWake(t)
	} else {
		k.cancelWake()
	}
	if woke == 0 {
		return
	}
	k.stats.Wakeups += uint64(woke)
	k.Log.Debugf("woke %d at %d", woke, now)
	k.Schedule(SwitchIRQ, frame)
}

// periodic keeps a timer firing every period ticks.  Late interrupts skip
// the periods they missed rather than firing back to back.
type periodic struct {
	timer  Timer
	period uint64
	next   uint64
}

func (p *periodic) start() {
	p.next = p.timer.Now() + p.period
	p.arm()
}

func (p *periodic) arm() {
	p.timer.SetCompare(p.next)
	p.timer.SetControl(arm.TimerControlEnable)
}

// advance rearms for the first period boundary after now and returns how
// many boundaries were skipped.
func (p *periodic) advance() int {
	now := p.timer.Now()
	skipped := -1
	for p.next <= now {
		p.next += p.period
		skipped++
	}
	p.arm()
	if skipped < 0 {
		return 0
	}
	return skipped
}

// pollTick drains the ring on the periodic timer, then lets a newly admitted
// job preempt the running one.
func (k *Kernel) pollTick(frame *arm.RegisterSavedState) {
	k.stats.Polls++
	if skipped := k.poll.advance(); skipped > 0 {
		k.Log.Debugf("poll timer late, skipped %d periods", skipped)
	}
	k.DrainRing(k.cfg.DrainBudget)
	k.Schedule(SwitchIRQ, frame)
}

package arm_cortex_a53

// CNTP_CTL_EL0 / CNTV_CTL_EL0, generic timer control.
const TimerControlEnable = (1 << 0)
const TimerControlIMask = (1 << 1)
const TimerControlIStatus = (1 << 2) //read only

const nsPerSecond = 1_000_000_000
const usPerSecond = 1_000_000

// Timebase converts between counter ticks (CNTPCT at CNTFRQ) and wall time.
// Conversions into ticks round to nearest, conversions out of ticks
// truncate.
type Timebase struct {
	Freq uint64
}

func (t Timebase) TicksFromNanos(ns uint64) uint64 {
	return toTicks(ns, nsPerSecond, t.Freq)
}

func (t Timebase) TicksFromMicros(us uint64) uint64 {
	return toTicks(us, usPerSecond, t.Freq)
}

func (t Timebase) NanosFromTicks(ticks uint64) uint64 {
	return fromTicks(ticks, nsPerSecond, t.Freq)
}

func (t Timebase) MicrosFromTicks(ticks uint64) uint64 {
	return fromTicks(ticks, usPerSecond, t.Freq)
}

func toTicks(v uint64, unit uint64, freq uint64) uint64 {
	sec := v / unit
	rem := v % unit
	return sec*freq + (rem*freq+unit/2)/unit
}

func fromTicks(ticks uint64, unit uint64, freq uint64) uint64 {
	sec := ticks / freq
	rem := ticks % freq
	return sec*unit + (rem*unit)/freq
}

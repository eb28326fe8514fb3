package arm_cortex_a53

import "testing"

func TestPresets(t *testing.T) {
	if DescriptorKernelRWX&DescriptorNotGlobal != 0 {
		t.Errorf("kernel mappings must be global")
	}
	if DescriptorProcessRWX&DescriptorNotGlobal == 0 {
		t.Errorf("process low window must be non-global")
	}
	if DescriptorDeviceRW&(DescriptorPXN|DescriptorUXN) != DescriptorPXN|DescriptorUXN {
		t.Errorf("device memory must never be executable")
	}
	if (DescriptorDeviceRW>>DescriptorAttrIndexShift)&7 != MAIRIndexDevice {
		t.Errorf("device mapping uses wrong MAIR index")
	}
}

func TestTableIndex(t *testing.T) {
	want := []uint64{1, 1, 1, 0x100 + 3}
	va := uint64(1)<<39 | 1<<30 | 1<<21 | (0x100+3)<<12
	for level := 0; level < 4; level++ {
		if got := TableIndex(va, level); got != want[level] {
			t.Errorf("level %d: expected %#x but got %#x", level, want[level], got)
		}
	}
}

func TestMAIRAndTCR(t *testing.T) {
	if MakeMAIR() != 0x04ff {
		t.Errorf("unexpected MAIR %#x", MakeMAIR())
	}
	tcr := MakeTCR(48, 36, false)
	if tcr&0x3f != 16 {
		t.Errorf("T0SZ should be 16 for 48 bit VA, got %d", tcr&0x3f)
	}
	if tcr&TCREPD1 == 0 {
		t.Errorf("TTBR1 walks should be disabled")
	}
	if (tcr>>TCRIPSShift)&7 != 1 {
		t.Errorf("36 bit PA should encode IPS=1")
	}
	if MakeTCR(48, 36, true)&TCREPD1 != 0 {
		t.Errorf("TTBR1 walks should be enabled")
	}
}

func TestTTBR(t *testing.T) {
	got := MakeTTBR0(0x8000_3000, 0x42)
	if got != 0x0042_0000_8000_3000 {
		t.Errorf("unexpected TTBR0 %#x", got)
	}
}

func TestESR(t *testing.T) {
	esr := uint64(ECSVC64)<<ESRClassShift | ESRILBit | 2
	if ExtractEC(esr) != ECSVC64 {
		t.Errorf("wrong class %#x", ExtractEC(esr))
	}
	if ExtractSVCImmediate(esr) != 2 {
		t.Errorf("wrong immediate %d", ExtractSVCImmediate(esr))
	}
	name, level := DecodeFaultStatus(0b000111)
	if name != "translation fault" || level != 3 {
		t.Errorf("unexpected decode %s/%d", name, level)
	}
}

func TestTimebase(t *testing.T) {
	tb := Timebase{Freq: 62_500_000}
	if tb.TicksFromMicros(1) != 63 { //62.5 rounds up
		t.Errorf("expected rounding to 63, got %d", tb.TicksFromMicros(1))
	}
	if tb.TicksFromNanos(2_000_000_000) != 125_000_000 {
		t.Errorf("whole seconds convert exactly")
	}
	if tb.MicrosFromTicks(125) != 2 {
		t.Errorf("expected 2us, got %d", tb.MicrosFromTicks(125))
	}
	if tb.NanosFromTicks(tb.TicksFromNanos(1_000)) != 1_008 {
		t.Errorf("round trip through ticks gives %d", tb.NanosFromTicks(tb.TicksFromNanos(1_000)))
	}
}

package joy

import (
	"strings"
	"testing"

	"rtcore/src/lib/upbeat"
)

func TestDefaultLayoutIsValid(t *testing.T) {
	if err := DefaultLayout().Validate(); err != nil {
		t.Errorf("default layout: %v", err)
	}
	if err := testLayout().Validate(); err != nil {
		t.Errorf("test layout: %v", err)
	}
}

func TestLayoutValidate(t *testing.T) {
	cases := []struct {
		name  string
		tweak func(*Layout)
		want  string
	}{
		{"unaligned heap", func(l *Layout) { l.HeapBase += 8 }, "not page aligned"},
		{"heap into code", func(l *Layout) { l.HeapSize = l.CodeBase - l.HeapBase + 0x1000 }, "heap overlaps"},
		{"code into ring", func(l *Layout) { l.CodeSize += 0x1000 }, "overlaps ring"},
		{"odd ring", func(l *Layout) { l.RingSlots = 12 }, "power of two"},
		{"kernel in window", func(l *Layout) { l.KernelBase = l.HeapBase }, "kernel image overlaps"},
		{"window too big", func(l *Layout) { l.LowWindow = 0x0900_0000 }, "low window"},
		{"no clock", func(l *Layout) { l.CounterFreq = 0 }, "counter frequency"},
	}
	for _, c := range cases {
		l := testLayout()
		c.tweak(&l)
		err := l.Validate()
		if err == nil || !strings.Contains(err.Error(), c.want) {
			t.Errorf("%s: expected %q, got %v", c.name, c.want, err)
		}
	}
}

func TestLayoutFromBootParams(t *testing.T) {
	p := &upbeat.BootParams{
		KernelStart: 0x4000_0000, KernelLast: 0x4008_0000, CounterFreq: 19_200_000,
		HeapStart: 0x4800_0000, HeapEnd: 0x4880_0000,
		CodeStart: 0x4880_0000, CodeEnd: 0x4900_0000,
		RingStart: 0x4900_0000, RingSlots: 256,
	}
	l, err := LayoutFromBootParams(p)
	if err != nil {
		t.Fatalf("valid parameters refused: %v", err)
	}
	if l.HeapSize != 0x80_0000 || l.RingSlots != 256 || l.CounterFreq != 19_200_000 {
		t.Errorf("regions not copied: %+v", l)
	}
	if l.UARTBase != DefaultLayout().UARTBase {
		t.Errorf("devices should come from the default layout")
	}
	if l.WindowBase() != 0x4800_0000 || l.WindowEnd() <= 0x4900_0000 {
		t.Errorf("window is [%#x, %#x)", l.WindowBase(), l.WindowEnd())
	}

	p.HeapEnd = p.HeapStart
	if _, err := LayoutFromBootParams(p); err == nil || !strings.Contains(err.Error(), "heap is empty") {
		t.Errorf("empty heap should be refused, got %v", err)
	}
}

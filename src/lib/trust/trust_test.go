package trust

import (
	"bytes"
	"strings"
	"testing"
)

func TestPrefixesAndNewline(t *testing.T) {
	var buf bytes.Buffer
	l := NewLogger(&buf, AllMask, nil)

	l.Errorf("bad %d", 1)
	l.Warnf("careful")
	l.Infof("hello\n")
	l.Debugf("x=%x", 0x10)
	l.Statsf("ring", "drained %d", 3)

	want := []string{
		"ERROR:bad 1",
		" WARN:careful",
		" INFO:hello",
		"DEBUG:x=10",
		"STATS[ring]:drained 3",
	}
	got := strings.Split(strings.TrimSuffix(buf.String(), "\n"), "\n")
	if len(got) != len(want) {
		t.Fatalf("expected %d lines but got %d: %q", len(want), len(got), buf.String())
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("line %d: expected %q but got %q", i, want[i], got[i])
		}
	}
}

func TestMasking(t *testing.T) {
	var buf bytes.Buffer
	l := NewLogger(&buf, WarnMask, nil)

	l.Errorf("shown")
	l.Debugf("not shown")
	l.Statsf("ring", "not shown")
	if !strings.Contains(buf.String(), "ERROR:shown") {
		t.Errorf("levels above warn should be on, got %q", buf.String())
	}
	if strings.Contains(buf.String(), "not shown") {
		t.Errorf("debug and stats should be masked, got %q", buf.String())
	}

	prev := l.SetLevel(InfoMask | StatsMask)
	if prev&WarnMask == 0 {
		t.Errorf("SetLevel should return the previous mask, got %x", prev)
	}
	if l.LevelToString() != "error warn info stats" {
		t.Errorf("unexpected level string %q", l.LevelToString())
	}
}

func TestFatalCallsExit(t *testing.T) {
	var buf bytes.Buffer
	code := -1
	l := NewLogger(&buf, Nothing, func(c int) { code = c })

	l.Fatalf(3, "halting")
	if code != 3 {
		t.Errorf("exit hook not called with code, got %d", code)
	}
	if !strings.Contains(buf.String(), "halting") {
		t.Errorf("fatal messages cannot be masked, got %q", buf.String())
	}
}

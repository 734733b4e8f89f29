package logger

import (
	"bytes"
	"strings"
	"testing"
)

func TestLevelsArePrefixed(t *testing.T) {
	var buf bytes.Buffer
	l := NewWithWriter(&buf)

	l.Info("balloon ready")
	l.Warnf("height %.1f too high", 12.5)
	l.Error("boom")

	out := buf.String()
	for _, want := range []string{"[DESCENT-INFO]", "balloon ready", "[DESCENT-WARN]", "height 12.5 too high", "[DESCENT-ERROR]", "boom"} {
		if !strings.Contains(out, want) {
			t.Errorf("expected output to contain %q, got:\n%s", want, out)
		}
	}
}

func TestDebugIsGated(t *testing.T) {
	var buf bytes.Buffer
	l := NewWithWriter(&buf)

	l.Debugf("tick %d", 1)
	if buf.Len() != 0 {
		t.Fatalf("debug output written while disabled: %q", buf.String())
	}

	l.SetDebug(true)
	l.Debugf("tick %d", 2)
	if !strings.Contains(buf.String(), "[DESCENT-DEBUG] ") || !strings.Contains(buf.String(), "tick 2") {
		t.Errorf("expected debug line, got %q", buf.String())
	}
}

func TestEventFormat(t *testing.T) {
	var buf bytes.Buffer
	l := NewWithWriter(&buf)

	l.Event("LANDING", "SIM", "v=3.20")
	if !strings.Contains(buf.String(), "[EVENT:LANDING] Actor:SIM | v=3.20") {
		t.Errorf("unexpected event line: %q", buf.String())
	}
}

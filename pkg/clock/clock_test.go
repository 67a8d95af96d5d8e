package clock

import (
	"testing"
	"time"
)

func TestManualAdvance(t *testing.T) {
	c := NewManual(1000)
	if got := c.Now(); got != 1000 {
		t.Fatalf("Now = %d, want 1000", got)
	}
	if got := c.Advance(2 * time.Second); got != 3000 {
		t.Fatalf("Advance = %d, want 3000", got)
	}
	c.Set(42)
	if got := c.Now(); got != 42 {
		t.Fatalf("Now after Set = %d, want 42", got)
	}
}

func TestSystemIsMilliseconds(t *testing.T) {
	before := time.Now().UnixMilli()
	got := System{}.Now()
	after := time.Now().UnixMilli()
	if got < before || got > after {
		t.Fatalf("System.Now = %d, want within [%d, %d]", got, before, after)
	}
}

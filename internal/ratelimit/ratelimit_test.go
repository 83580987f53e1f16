package ratelimit

import (
	"testing"
	"time"
)

// fixed pins the limiter's clock so tests control elapsed time.
func fixed(l *Limiter, at time.Time) func(time.Time) {
	l.now = func() time.Time { return at }
	l.lastChecked = at
	return func(t time.Time) {
		at = t
		l.now = func() time.Time { return at }
	}
}

func TestUpdate_ZeroElapsed(t *testing.T) {
	l := New(6, 5)
	fixed(l, time.Unix(1000, 0))

	before := l.allowance
	l.Update()
	if l.allowance != before {
		t.Errorf("Update() with zero elapsed time changed allowance: %f -> %f", before, l.allowance)
	}
}

func TestUpdate_Refill(t *testing.T) {
	l := New(6, 5)
	advance := fixed(l, time.Unix(1000, 0))

	for i := 0; i < 6; i++ {
		l.Decrease()
	}
	if l.allowance != 0 {
		t.Fatalf("allowance after draining = %f, want 0", l.allowance)
	}

	// 5 seconds refills the full limit.
	advance(time.Unix(1005, 0))
	l.Update()
	if l.allowance != 6 {
		t.Errorf("allowance after full interval = %f, want 6", l.allowance)
	}
}

func TestUpdate_Clamp(t *testing.T) {
	l := New(6, 5)
	advance := fixed(l, time.Unix(1000, 0))

	advance(time.Unix(2000, 0))
	l.Update()
	if l.allowance != 6 {
		t.Errorf("allowance after long idle = %f, want clamp at 6", l.allowance)
	}
}

func TestSpamWarning_Boundary(t *testing.T) {
	l := New(6, 5)
	fixed(l, time.Unix(1000, 0))

	for i := 0; i < 5; i++ {
		l.Decrease()
	}
	if l.SpamWarning() {
		t.Error("SpamWarning() with allowance 1.0 = true, want false")
	}

	l.Decrease()
	if !l.SpamWarning() {
		t.Error("SpamWarning() with allowance 0 = false, want true")
	}
}

func TestSpamDetected_AfterWarnLimit(t *testing.T) {
	l := New(6, 5)
	fixed(l, time.Unix(1000, 0))

	for i := 0; i < 6; i++ {
		l.Decrease()
	}

	// Three warnings are tolerated; the fourth trips detection.
	for i := 1; i <= 3; i++ {
		if !l.SpamWarning() {
			t.Fatalf("SpamWarning() call %d = false, want true", i)
		}
		if l.SpamDetected() {
			t.Fatalf("SpamDetected() after %d warnings = true, want false", i)
		}
	}
	if !l.SpamWarning() {
		t.Fatal("SpamWarning() call 4 = false, want true")
	}
	if !l.SpamDetected() {
		t.Error("SpamDetected() after 4 warnings = false, want true")
	}
}

func TestSpamWarning_CountsEveryCheck(t *testing.T) {
	// Every sub-threshold evaluation increments the counter, not just the
	// transition. Observed behavior, preserved deliberately.
	l := New(6, 5)
	fixed(l, time.Unix(1000, 0))

	for i := 0; i < 6; i++ {
		l.Decrease()
	}
	l.SpamWarning()
	l.SpamWarning()
	if l.warnCount != 2 {
		t.Errorf("warnCount after two checks = %d, want 2", l.warnCount)
	}
}

func TestSpamDetected_ResetByRefill(t *testing.T) {
	l := New(6, 5)
	advance := fixed(l, time.Unix(1000, 0))

	for i := 0; i < 6; i++ {
		l.Decrease()
	}
	for i := 0; i < 4; i++ {
		l.SpamWarning()
	}
	if !l.SpamDetected() {
		t.Fatal("SpamDetected() = false, want true")
	}

	advance(time.Unix(1005, 0))
	l.Update()
	if l.SpamDetected() {
		t.Error("SpamDetected() after refill = true, want false")
	}
}

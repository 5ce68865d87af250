package ratelimit

import (
	"testing"
	"time"
)

func TestWindowRejectsOverLimit(t *testing.T) {
	w := NewWindow(3, time.Minute)
	base := time.Now()
	w.SetNowFunc(func() time.Time { return base })

	for i := 0; i < 3; i++ {
		if !w.Allow() {
			t.Fatalf("Allow() = false on call %d, want true", i+1)
		}
		w.Record()
	}
	if w.Allow() {
		t.Error("Allow() = true on call 4, want false")
	}
}

func TestWindowSlidesPastSpan(t *testing.T) {
	w := NewWindow(2, time.Minute)
	base := time.Now()
	now := base
	w.SetNowFunc(func() time.Time { return now })

	w.Record()
	w.Record()
	if w.Allow() {
		t.Fatal("Allow() = true with full window")
	}

	// past 60s from the first entries the window resets
	now = base.Add(time.Minute + time.Second)
	if !w.Allow() {
		t.Error("Allow() = false after window slid, want true")
	}
	if got := w.Count(); got != 0 {
		t.Errorf("Count() = %d, want 0", got)
	}
}

package metrics

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// TestNewTimer tests timer creation
func TestNewTimer(t *testing.T) {
	timer := NewTimer()
	if timer == nil {
		t.Fatal("NewTimer() returned nil")
	}
	if timer.start.IsZero() {
		t.Error("NewTimer() start time is zero")
	}
}

// TestTimerElapsed tests duration measurement
func TestTimerElapsed(t *testing.T) {
	timer := NewTimer()

	sleepDuration := 50 * time.Millisecond
	time.Sleep(sleepDuration)

	elapsed := timer.Elapsed()
	if elapsed < sleepDuration {
		t.Errorf("Timer.Elapsed() = %v, want >= %v", elapsed, sleepDuration)
	}
}

// TestTimerObserveDuration tests histogram observation
func TestTimerObserveDuration(t *testing.T) {
	histogram := prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "test_duration_seconds",
		Help:    "Test duration histogram",
		Buckets: prometheus.DefBuckets,
	})

	timer := NewTimer()
	time.Sleep(10 * time.Millisecond)

	// This should not panic
	timer.ObserveDuration(histogram)

	if timer.Elapsed() == 0 {
		t.Error("Timer.ObserveDuration() recorded zero duration")
	}
}

// TestMultipleTimers tests that timers measure independently
func TestMultipleTimers(t *testing.T) {
	timer1 := NewTimer()
	time.Sleep(50 * time.Millisecond)

	timer2 := NewTimer()
	time.Sleep(50 * time.Millisecond)

	if timer1.Elapsed() <= timer2.Elapsed() {
		t.Errorf("timer1 should be running longer: timer1=%v, timer2=%v", timer1.Elapsed(), timer2.Elapsed())
	}
}

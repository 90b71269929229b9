package exam

import (
	"errors"
	"sync"
	"testing"
	"time"
)

// driveTimer starts a timer with a tick interval far beyond the test
// lifetime, so every countdown step comes from explicit tick() calls and
// the test stays deterministic.
func driveTimer(t *testing.T, total int, onTick func(int), onThreshold func(string), onExpire func()) *Timer {
	t.Helper()
	tm := NewTimer()
	tm.interval = time.Hour
	if err := tm.Start(total, onTick, onThreshold, onExpire); err != nil {
		t.Fatalf("Start: %v", err)
	}
	t.Cleanup(tm.Stop)
	return tm
}

func TestTimerCountsDownMonotonically(t *testing.T) {
	var ticks []int
	tm := driveTimer(t, 5, func(remaining int) { ticks = append(ticks, remaining) }, nil, nil)

	for i := 0; i < 5; i++ {
		tm.tick()
	}

	want := []int{4, 3, 2, 1, 0}
	if len(ticks) != len(want) {
		t.Fatalf("ticks = %v, want %v", ticks, want)
	}
	for i := range want {
		if ticks[i] != want[i] {
			t.Fatalf("ticks = %v, want %v", ticks, want)
		}
	}
}

func TestTimerThresholdsFireOnceEach(t *testing.T) {
	var labels []string
	tm := driveTimer(t, 25*60, nil, func(label string) { labels = append(labels, label) }, nil)

	for i := 0; i < 25*60; i++ {
		tm.tick()
	}

	want := []string{"20 minutes", "10 minutes", "5 minutes"}
	if len(labels) != len(want) {
		t.Fatalf("thresholds fired %v, want %v", labels, want)
	}
	for i := range want {
		if labels[i] != want[i] {
			t.Fatalf("thresholds fired %v, want %v", labels, want)
		}
	}
}

func TestTimerSkipsUnreachableThresholds(t *testing.T) {
	var labels []string
	tm := driveTimer(t, 8*60, nil, func(label string) { labels = append(labels, label) }, nil)

	for i := 0; i < 8*60; i++ {
		tm.tick()
	}

	// An 8-minute attempt starts below the 20- and 10-minute marks; only
	// the 5-minute warning is meaningful.
	if len(labels) != 1 || labels[0] != "5 minutes" {
		t.Fatalf("thresholds fired %v, want only the 5 minute warning", labels)
	}
}

func TestTimerExpiresExactlyOnce(t *testing.T) {
	expirations := 0
	tm := driveTimer(t, 3, nil, nil, func() { expirations++ })

	for i := 0; i < 10; i++ {
		tm.tick()
	}

	if expirations != 1 {
		t.Fatalf("expired %d times, want 1", expirations)
	}
	if tm.Remaining() != 0 {
		t.Fatalf("Remaining after expiry = %d, want 0", tm.Remaining())
	}
}

func TestTimerCannotRestart(t *testing.T) {
	tm := driveTimer(t, 2, nil, nil, nil)

	if err := tm.Start(60, nil, nil, nil); !errors.Is(err, ErrTimerState) {
		t.Fatalf("Start while running = %v, want ErrTimerState", err)
	}

	tm.tick()
	tm.tick() // expires

	if err := tm.Start(60, nil, nil, nil); !errors.Is(err, ErrTimerState) {
		t.Fatalf("Start after expiry = %v, want ErrTimerState", err)
	}
}

func TestTimerStopIdempotent(t *testing.T) {
	tm := NewTimer()
	tm.interval = time.Hour
	if err := tm.Start(10, nil, nil, nil); err != nil {
		t.Fatalf("Start: %v", err)
	}

	tm.Stop()
	tm.Stop()

	if tm.tick() != true {
		t.Error("tick after Stop should report expired/inert")
	}
	if err := tm.Start(10, nil, nil, nil); !errors.Is(err, ErrTimerState) {
		t.Fatalf("Start after Stop = %v, want ErrTimerState", err)
	}
}

func TestTimerStopNeverStarted(t *testing.T) {
	tm := NewTimer()
	tm.Stop() // must not panic on a nil stop channel
}

func TestTimerRealTicks(t *testing.T) {
	tm := NewTimer()
	tm.interval = 5 * time.Millisecond

	var mu sync.Mutex
	expired := false
	done := make(chan struct{})
	err := tm.Start(3, func(int) {}, nil, func() {
		mu.Lock()
		expired = true
		mu.Unlock()
		close(done)
	})
	if err != nil {
		t.Fatalf("Start: %v", err)
	}

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("timer did not expire")
	}

	mu.Lock()
	defer mu.Unlock()
	if !expired {
		t.Fatal("expiry callback not recorded")
	}
}

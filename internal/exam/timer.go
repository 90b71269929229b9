package exam

import (
	"sync"
	"time"
)

// countdown thresholds, in seconds remaining. Each fires at most once per
// attempt, and only when the total allowed time is large enough to ever
// reach it.
var thresholds = []struct {
	seconds int
	label   string
}{
	{1200, "20 minutes"},
	{600, "10 minutes"},
	{300, "5 minutes"},
}

// Timer is the attempt countdown: one decrement per second, clamped at
// zero, with one-shot threshold warnings and a single expiry callback.
// After expiry or Stop it is inert; restarting is an integration bug and
// fails with ErrTimerState.
type Timer struct {
	mu sync.Mutex

	interval  time.Duration
	total     int
	remaining int
	running   bool
	done      bool
	fired     map[int]bool
	stopCh    chan struct{}

	onTick      func(remainingSeconds int)
	onThreshold func(label string)
	onExpire    func()
}

// NewTimer creates a timer ticking once per second.
func NewTimer() *Timer {
	return &Timer{interval: time.Second, fired: make(map[int]bool)}
}

// Start begins the countdown from totalSeconds. Callbacks are invoked from
// the timer's own goroutine, outside any timer lock, so they may call back
// into Stop or the store freely.
func (t *Timer) Start(totalSeconds int, onTick func(int), onThreshold func(string), onExpire func()) error {
	t.mu.Lock()
	if t.running || t.done {
		t.mu.Unlock()
		return ErrTimerState
	}
	t.total = totalSeconds
	t.remaining = totalSeconds
	t.running = true
	t.stopCh = make(chan struct{})
	t.onTick = onTick
	t.onThreshold = onThreshold
	t.onExpire = onExpire
	stopCh := t.stopCh
	t.mu.Unlock()

	go t.run(stopCh)
	return nil
}

// Stop halts the countdown. Idempotent: safe whether or not the timer is
// running, and always called before finalizing a submission so no tick can
// fire against a torn-down attempt.
func (t *Timer) Stop() {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.running {
		close(t.stopCh)
	}
	t.running = false
	t.done = true
}

// Remaining reports the current countdown value.
func (t *Timer) Remaining() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.remaining
}

func (t *Timer) run(stopCh chan struct{}) {
	ticker := time.NewTicker(t.interval)
	defer ticker.Stop()

	for {
		select {
		case <-stopCh:
			return
		case <-ticker.C:
			if expired := t.tick(); expired {
				return
			}
		}
	}
}

// tick performs one countdown step. State is updated under the lock;
// callbacks are collected first and invoked after releasing it.
func (t *Timer) tick() bool {
	t.mu.Lock()

	if !t.running {
		t.mu.Unlock()
		return true
	}

	t.remaining--
	if t.remaining < 0 {
		t.remaining = 0
	}
	remaining := t.remaining

	var thresholdLabel string
	for _, th := range thresholds {
		if remaining == th.seconds && t.total > th.seconds && !t.fired[th.seconds] {
			t.fired[th.seconds] = true
			thresholdLabel = th.label
			break
		}
	}

	expired := remaining == 0
	if expired {
		t.running = false
		t.done = true
	}

	onTick := t.onTick
	onThreshold := t.onThreshold
	onExpire := t.onExpire
	t.mu.Unlock()

	if onTick != nil {
		onTick(remaining)
	}
	if thresholdLabel != "" && onThreshold != nil {
		onThreshold(thresholdLabel)
	}
	if expired && onExpire != nil {
		onExpire()
	}
	return expired
}

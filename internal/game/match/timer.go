package match

import (
	"sync"
	"time"
)

// Timer drives the recurring countdown tick of a session. The callback runs
// on a dedicated goroutine, once per interval, until it reports done or Stop
// is called. It is safe for concurrent use.
type Timer struct {
	mu      sync.Mutex
	stop    chan struct{}
	stopped bool
}

// NewTimer creates and starts a timer that calls onTick every interval.
// onTick returning true stops the timer; this is the single cancellation
// path shared with Stop.
//
// Precondition: interval > 0; onTick must not be nil.
// Postcondition: Returns a running Timer.
func NewTimer(interval time.Duration, onTick func() bool) *Timer {
	t := &Timer{stop: make(chan struct{})}
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-t.stop:
				return
			case <-ticker.C:
				if onTick() {
					t.Stop()
					return
				}
			}
		}
	}()
	return t
}

// Stop halts the tick loop. Safe to call multiple times and concurrently
// with the callback.
//
// Postcondition: onTick will not be invoked after Stop returns.
func (t *Timer) Stop() {
	t.mu.Lock()
	defer t.mu.Unlock()
	if !t.stopped {
		t.stopped = true
		close(t.stop)
	}
}

package app

import (
	"sync"
	"time"
)

// sessionTimers owns the auto-end deadline and the progress ticker of one
// active session. Cancel is safe to call any number of times.
type sessionTimers struct {
	mu        sync.Mutex
	autoEnd   *time.Timer
	ticking   bool
	stop      chan struct{}
	cancelled bool
	once      sync.Once
}

func newSessionTimers() *sessionTimers {
	return &sessionTimers{stop: make(chan struct{})}
}

// armAutoEnd schedules fn after d, replacing any pending deadline.
func (t *sessionTimers) armAutoEnd(d time.Duration, fn func()) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.cancelled {
		return false
	}
	if t.autoEnd != nil {
		t.autoEnd.Stop()
	}
	t.autoEnd = time.AfterFunc(max(0, d), fn)
	return true
}

// startProgress runs tick every interval until tick returns false or the
// timers are cancelled. Starting twice is a no-op.
func (t *sessionTimers) startProgress(interval time.Duration, tick func() bool) bool {
	t.mu.Lock()
	if t.cancelled || t.ticking || interval <= 0 {
		t.mu.Unlock()
		return false
	}
	t.ticking = true
	t.mu.Unlock()

	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		defer func() {
			t.mu.Lock()
			t.ticking = false
			t.mu.Unlock()
		}()
		for {
			select {
			case <-t.stop:
				return
			case <-ticker.C:
				if !tick() {
					return
				}
			}
		}
	}()
	return true
}

func (t *sessionTimers) armed() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.autoEnd != nil && !t.cancelled
}

func (t *sessionTimers) cancel() {
	t.once.Do(func() {
		t.mu.Lock()
		t.cancelled = true
		if t.autoEnd != nil {
			t.autoEnd.Stop()
		}
		t.mu.Unlock()
		close(t.stop)
	})
}

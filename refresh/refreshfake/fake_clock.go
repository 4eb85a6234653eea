package refreshfake

import (
	"sort"
	"sync"
	"time"

	"github.com/jrsteele09/go-auth-client/refresh"
)

var _ refresh.Clock = (*FakeClock)(nil)

// FakeClock is a manually advanced clock. Timers fire synchronously inside
// Advance, in deadline order.
type FakeClock struct {
	now    time.Time
	timers []*fakeTimer
	lock   sync.Mutex
}

type fakeTimer struct {
	clock    *FakeClock
	deadline time.Time
	delay    time.Duration
	f        func()
	stopped  bool
	fired    bool
}

func NewFakeClock(now time.Time) *FakeClock {
	return &FakeClock{now: now}
}

func (fc *FakeClock) Now() time.Time {
	fc.lock.Lock()
	defer fc.lock.Unlock()
	return fc.now
}

func (fc *FakeClock) AfterFunc(d time.Duration, f func()) refresh.Timer {
	fc.lock.Lock()
	defer fc.lock.Unlock()
	t := &fakeTimer{clock: fc, deadline: fc.now.Add(d), delay: d, f: f}
	fc.timers = append(fc.timers, t)
	return t
}

// Advance moves the clock forward and runs every timer that becomes due.
func (fc *FakeClock) Advance(d time.Duration) {
	fc.lock.Lock()
	fc.now = fc.now.Add(d)
	var due []*fakeTimer
	for _, t := range fc.timers {
		if !t.stopped && !t.fired && !t.deadline.After(fc.now) {
			t.fired = true
			due = append(due, t)
		}
	}
	fc.lock.Unlock()

	sort.SliceStable(due, func(i, j int) bool { return due[i].deadline.Before(due[j].deadline) })
	for _, t := range due {
		t.f()
	}
}

// Pending returns the delays of timers that have neither fired nor been
// stopped, in creation order.
func (fc *FakeClock) Pending() []time.Duration {
	fc.lock.Lock()
	defer fc.lock.Unlock()
	var out []time.Duration
	for _, t := range fc.timers {
		if !t.stopped && !t.fired {
			out = append(out, t.delay)
		}
	}
	return out
}

func (t *fakeTimer) Stop() bool {
	t.clock.lock.Lock()
	defer t.clock.lock.Unlock()
	if t.stopped || t.fired {
		return false
	}
	t.stopped = true
	return true
}

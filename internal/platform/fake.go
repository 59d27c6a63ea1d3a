// ABOUTME: Deterministic Clock and Scheduler fakes for protocol tests
// ABOUTME: Advance moves the fake clock and fires any timers that come due

package platform

import (
	"sort"
	"sync"
	"time"
)

// FakeClock is a manually-advanced Clock for tests.
type FakeClock struct {
	mu  sync.Mutex
	now time.Time
}

// NewFakeClock creates a fake clock starting at the given time.
func NewFakeClock(start time.Time) *FakeClock {
	return &FakeClock{now: start}
}

// Now returns the fake current time.
func (c *FakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

// Advance moves the clock forward by d.
func (c *FakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

type fakeTimer struct {
	deadline time.Time
	f        func()
	stopped  bool
	fired    bool
	sched    *FakeScheduler
}

// Stop cancels the fake timer.
func (t *fakeTimer) Stop() bool {
	t.sched.mu.Lock()
	defer t.sched.mu.Unlock()
	if t.fired || t.stopped {
		return false
	}
	t.stopped = true
	return true
}

// FakeScheduler collects scheduled callbacks and fires them when the paired
// FakeClock is advanced past their deadline via Fire.
type FakeScheduler struct {
	mu     sync.Mutex
	clock  *FakeClock
	timers []*fakeTimer
}

// NewFakeScheduler creates a scheduler whose deadlines are measured against
// the given fake clock.
func NewFakeScheduler(clock *FakeClock) *FakeScheduler {
	return &FakeScheduler{clock: clock}
}

// AfterFunc registers f to fire once the clock reaches now+d.
func (s *FakeScheduler) AfterFunc(d time.Duration, f func()) Timer {
	s.mu.Lock()
	defer s.mu.Unlock()
	t := &fakeTimer{deadline: s.clock.Now().Add(d), f: f, sched: s}
	s.timers = append(s.timers, t)
	return t
}

// Pending reports how many timers are scheduled and neither fired nor stopped.
func (s *FakeScheduler) Pending() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for _, t := range s.timers {
		if !t.fired && !t.stopped {
			n++
		}
	}
	return n
}

// Fire runs every due, unfired, unstopped timer in deadline order. Callbacks
// run without the scheduler lock held so they may schedule or stop timers.
func (s *FakeScheduler) Fire() {
	now := s.clock.Now()

	s.mu.Lock()
	var due []*fakeTimer
	for _, t := range s.timers {
		if !t.fired && !t.stopped && !t.deadline.After(now) {
			t.fired = true
			due = append(due, t)
		}
	}
	sort.Slice(due, func(i, j int) bool { return due[i].deadline.Before(due[j].deadline) })
	s.mu.Unlock()

	for _, t := range due {
		t.f()
	}
}

// Tick advances the clock by d and fires due timers.
func (s *FakeScheduler) Tick(d time.Duration) {
	s.clock.Advance(d)
	s.Fire()
}

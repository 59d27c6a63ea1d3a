// ABOUTME: Host capability interfaces for clock, timers, and cookie state
// ABOUTME: Lets protocol packages run against the real host or test fakes

package platform

import (
	"sync"
	"time"
)

// Clock provides the current time. Protocol code never calls time.Now
// directly so tests can control expiry decisions.
type Clock interface {
	Now() time.Time
}

// SystemClock is the real wall clock.
type SystemClock struct{}

// Now returns the current wall-clock time.
func (SystemClock) Now() time.Time { return time.Now() }

// Timer is a handle to a scheduled callback.
type Timer interface {
	// Stop cancels the timer. Returns false if it already fired or was
	// already stopped.
	Stop() bool
}

// Scheduler schedules one-shot callbacks. Mirrors time.AfterFunc behind an
// interface so tests can fire timers deterministically.
type Scheduler interface {
	AfterFunc(d time.Duration, f func()) Timer
}

// SystemScheduler schedules callbacks on real timers.
type SystemScheduler struct{}

// AfterFunc schedules f to run after d on a real time.Timer.
func (SystemScheduler) AfterFunc(d time.Duration, f func()) Timer {
	return time.AfterFunc(d, f)
}

// CookieStore holds the client-readable cookies of the browsing session.
// The opaque session cookie never appears here; it travels at the transport
// level only. Implementations must be safe for concurrent use.
type CookieStore interface {
	// Get returns the value of the named cookie and whether it is present.
	Get(name string) (string, bool)
	// Set stores or replaces the named cookie.
	Set(name, value string)
	// Clear removes the named cookie.
	Clear(name string)
}

// MemoryCookies is an in-memory CookieStore. The dispatcher mirrors
// non-HttpOnly response cookies into it, which models what script-readable
// cookie state a browser would expose.
type MemoryCookies struct {
	mu      sync.RWMutex
	cookies map[string]string
}

// NewMemoryCookies creates an empty in-memory cookie store.
func NewMemoryCookies() *MemoryCookies {
	return &MemoryCookies{cookies: make(map[string]string)}
}

// Get returns the value of the named cookie.
func (m *MemoryCookies) Get(name string) (string, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	v, ok := m.cookies[name]
	return v, ok
}

// Set stores or replaces the named cookie.
func (m *MemoryCookies) Set(name, value string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.cookies[name] = value
}

// Clear removes the named cookie.
func (m *MemoryCookies) Clear(name string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.cookies, name)
}

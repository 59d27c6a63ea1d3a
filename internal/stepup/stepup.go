// ABOUTME: Step-up grant manager for elevated-privilege admin actions
// ABOUTME: Derives validity per read and keeps exactly one expiry timer outstanding

package stepup

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/driftline/driftline-console/internal/api"
	"github.com/driftline/driftline-console/internal/dispatch"
	"github.com/driftline/driftline-console/internal/platform"
)

// Step-up errors.
var (
	// ErrStepUpRequired blocks a high-risk call client-side when no valid
	// grant is held. The server re-validates independently; this check is a
	// UX short-circuit, not the security boundary.
	ErrStepUpRequired = errors.New("step-up grant absent or expired")

	// ErrNotAuthenticated is returned when elevation is requested without an
	// active identity.
	ErrNotAuthenticated = errors.New("step-up requires an authenticated session")
)

// Dispatcher is the slice of the mutation dispatcher the manager needs.
type Dispatcher interface {
	Do(ctx context.Context, req dispatch.Request) (*api.Envelope, error)
}

// IdentitySource reports whether an identity is currently established. The
// session store satisfies this.
type IdentitySource interface {
	Authenticated() bool
}

// Manager issues, validates, and expires the elevated-privilege grant. The
// grant is a process-wide singleton scoped to the browsing session; only the
// Manager mutates it.
type Manager struct {
	mu         sync.Mutex
	dispatcher Dispatcher
	identity   IdentitySource
	clock      platform.Clock
	sched      platform.Scheduler
	logger     *slog.Logger

	token      string
	expiresRaw string
	timer      platform.Timer
}

// New creates a Manager. identity may be set later via SetIdentitySource to
// break the construction cycle with the session store.
func New(dispatcher Dispatcher, clock platform.Clock, sched platform.Scheduler, logger *slog.Logger) *Manager {
	if logger == nil {
		logger = slog.Default().With("component", "stepup")
	}
	return &Manager{
		dispatcher: dispatcher,
		clock:      clock,
		sched:      sched,
		logger:     logger,
	}
}

// SetIdentitySource wires the identity check used by Issue.
func (m *Manager) SetIdentitySource(src IdentitySource) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.identity = src
}

// Issue requests privilege elevation with the operator's password and an
// optional second-factor code. On success the grant is stored and its expiry
// timer scheduled.
func (m *Manager) Issue(ctx context.Context, password, code string) error {
	m.mu.Lock()
	ident := m.identity
	m.mu.Unlock()
	if ident == nil || !ident.Authenticated() {
		return ErrNotAuthenticated
	}

	env, err := m.dispatcher.Do(ctx, dispatch.Request{
		Method:   http.MethodPost,
		Path:     api.PathStepUp,
		Body:     api.StepUpRequest{Password: password, Code: code},
		WithCSRF: true,
	})
	if err != nil {
		return err
	}

	var resp api.StepUpResponse
	if err := dispatch.DecodeData(env, &resp); err != nil {
		return err
	}
	m.setGrant(resp.Token, resp.ExpiresAt)
	return nil
}

// setGrant stores the grant and schedules its single expiry timer. An
// unparseable expiry clears the grant immediately instead of scheduling.
func (m *Manager) setGrant(token, expiresAt string) {
	expiry, ok := parseExpiry(token, expiresAt)
	if token == "" || !ok {
		m.logger.Warn("elevation response missing token or parseable expiry, discarding grant")
		m.Clear()
		return
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	m.cancelTimerLocked()
	m.token = token
	m.expiresRaw = expiresAt

	d := expiry.Sub(m.clock.Now())
	if d <= 0 {
		m.token = ""
		m.expiresRaw = ""
		return
	}
	m.timer = m.sched.AfterFunc(d, m.expire)
	m.logger.Info("step-up grant issued", "expiresIn", d.Round(time.Second))
}

// expire is the timer callback.
func (m *Manager) expire() {
	m.logger.Info("step-up grant expired")
	m.Clear()
}

// Clear drops the grant and cancels any pending expiry timer. Safe to call
// at any time, including when no grant is held.
func (m *Manager) Clear() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.cancelTimerLocked()
	m.token = ""
	m.expiresRaw = ""
}

// cancelTimerLocked stops the outstanding timer, if any. Must hold mu.
func (m *Manager) cancelTimerLocked() {
	if m.timer != nil {
		m.timer.Stop()
		m.timer = nil
	}
}

// Valid reports whether a usable grant is held. It is recomputed on every
// read: token present, expiry parses, and the expiry is strictly in the
// future on the current clock.
func (m *Manager) Valid() bool {
	m.mu.Lock()
	token, raw := m.token, m.expiresRaw
	m.mu.Unlock()

	if token == "" {
		return false
	}
	expiry, ok := parseExpiry(token, raw)
	if !ok {
		return false
	}
	return m.clock.Now().Before(expiry)
}

// Token returns the grant token if and only if the grant is currently valid.
func (m *Manager) Token() (string, bool) {
	if !m.Valid() {
		return "", false
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.token, m.token != ""
}

// parseExpiry resolves the grant's expiry instant. The expiresAt field is
// authoritative; when it is absent or unparseable and the token is a JWT,
// the unverified exp claim is used instead. The server remains the validator
// of the token itself.
func parseExpiry(token, expiresAt string) (time.Time, bool) {
	if expiresAt != "" {
		if t, err := time.Parse(time.RFC3339, expiresAt); err == nil {
			return t, true
		}
	}
	if token == "" {
		return time.Time{}, false
	}
	parsed, _, err := jwt.NewParser().ParseUnverified(token, jwt.MapClaims{})
	if err != nil {
		return time.Time{}, false
	}
	exp, err := parsed.Claims.GetExpirationTime()
	if err != nil || exp == nil {
		return time.Time{}, false
	}
	return exp.Time, true
}

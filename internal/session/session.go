// ABOUTME: Session store holding identity and permission snapshot
// ABOUTME: Bootstrap joins both fetches; any failure resets to anonymous atomically

package session

import (
	"context"
	"log/slog"
	"net/http"
	"sync"

	"github.com/driftline/driftline-console/internal/api"
	"github.com/driftline/driftline-console/internal/dispatch"
)

// Dispatcher is the slice of the mutation dispatcher the store needs.
type Dispatcher interface {
	Do(ctx context.Context, req dispatch.Request) (*api.Envelope, error)
	Get(ctx context.Context, path string, out any) error
}

// GrantClearer invalidates the step-up grant. A grant is meaningless without
// the identity it was issued for, so every transition to anonymous state
// clears it.
type GrantClearer interface {
	Clear()
}

// Store is the sole writer of identity and permission state; every other
// component reads it through the accessor methods.
type Store struct {
	mu         sync.RWMutex
	dispatcher Dispatcher
	grants     GrantClearer
	logger     *slog.Logger

	identity *api.Identity
	perms    *api.PermissionSnapshot
	loading  bool
}

// New creates a Store.
func New(dispatcher Dispatcher, grants GrantClearer, logger *slog.Logger) *Store {
	if logger == nil {
		logger = slog.Default().With("component", "session")
	}
	return &Store{
		dispatcher: dispatcher,
		grants:     grants,
		logger:     logger,
	}
}

// Bootstrap fetches identity and permission snapshot concurrently and
// commits them together. On any failure, including a partial one, both are
// reset to anonymous and the step-up grant is cleared; the UI never observes
// one populated without the other.
func (s *Store) Bootstrap(ctx context.Context) error {
	s.setLoading(true)
	defer s.setLoading(false)

	var (
		wg       sync.WaitGroup
		identity api.Identity
		perms    api.PermissionSnapshot
		idErr    error
		permErr  error
	)

	wg.Add(2)
	go func() {
		defer wg.Done()
		idErr = s.dispatcher.Get(ctx, api.PathMe, &identity)
	}()
	go func() {
		defer wg.Done()
		permErr = s.dispatcher.Get(ctx, api.PathPermissions, &perms)
	}()
	wg.Wait()

	if idErr != nil || permErr != nil {
		s.setAnonymous()
		if idErr != nil {
			s.logger.Warn("identity fetch failed during bootstrap", "error", idErr)
			return idErr
		}
		s.logger.Warn("permission fetch failed during bootstrap", "error", permErr)
		return permErr
	}

	s.mu.Lock()
	s.identity = &identity
	s.perms = &perms
	s.mu.Unlock()

	s.logger.Info("session bootstrapped", "username", identity.Username, "role", perms.ActiveRole)
	return nil
}

// Login authenticates and then re-bootstraps rather than patching local
// state, so the permission snapshot is never derived from stale assumptions.
func (s *Store) Login(ctx context.Context, username, password string) error {
	_, err := s.dispatcher.Do(ctx, dispatch.Request{
		Method:   http.MethodPost,
		Path:     api.PathLogin,
		Body:     api.LoginRequest{Username: username, Password: password},
		WithCSRF: true,
	})
	if err != nil {
		return err
	}
	return s.Bootstrap(ctx)
}

// Logout revokes the remote session and clears local state. Local state is
// cleared even when the remote call fails: clearing client state cannot undo
// a server-side revocation, but keeping it leaves a stale authenticated-
// looking console.
func (s *Store) Logout(ctx context.Context) error {
	_, err := s.dispatcher.Do(ctx, dispatch.Request{
		Method:   http.MethodPost,
		Path:     api.PathLogout,
		WithCSRF: true,
	})
	s.setAnonymous()
	if err != nil {
		s.logger.Warn("remote logout failed, local state cleared anyway", "error", err)
	}
	return err
}

// setAnonymous resets identity and permissions together and clears the
// step-up grant.
func (s *Store) setAnonymous() {
	s.mu.Lock()
	s.identity = nil
	s.perms = nil
	s.mu.Unlock()
	if s.grants != nil {
		s.grants.Clear()
	}
}

func (s *Store) setLoading(v bool) {
	s.mu.Lock()
	s.loading = v
	s.mu.Unlock()
}

// Loading reports whether a bootstrap is in flight.
func (s *Store) Loading() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.loading
}

// Authenticated reports whether an identity is established.
func (s *Store) Authenticated() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.identity != nil
}

// Identity returns the current identity, or nil when anonymous.
func (s *Store) Identity() *api.Identity {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.identity
}

// Permissions returns the current permission snapshot, or nil when
// anonymous. The snapshot is immutable; refreshes replace it wholesale.
func (s *Store) Permissions() *api.PermissionSnapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.perms
}

// Can reports whether the active role holds the named permission.
func (s *Store) Can(permission string) bool {
	return s.Permissions().Allows(permission)
}

// HighRisk reports whether the named action requires a step-up grant.
func (s *Store) HighRisk(action string) bool {
	return s.Permissions().HighRisk(action)
}

// TabVisible reports whether the named console tab is visible to the active
// role.
func (s *Store) TabVisible(tab string) bool {
	p := s.Permissions()
	if p == nil {
		return false
	}
	required, ok := p.TabPermissions[tab]
	if !ok {
		return true
	}
	return p.Allows(required)
}

// Shutdown tears down session-scoped resources: the step-up grant and its
// pending timer. In-flight requests are cancelled by the caller's context.
func (s *Store) Shutdown() {
	s.setAnonymous()
}

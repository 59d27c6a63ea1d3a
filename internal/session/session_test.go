// ABOUTME: Tests for the session store's bootstrap, login, and logout flows
// ABOUTME: Identity and permission snapshot must commit and reset together

package session

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/driftline/driftline-console/internal/api"
	"github.com/driftline/driftline-console/internal/dispatch"
	"github.com/driftline/driftline-console/internal/platform"
)

// trackingClearer counts grant invalidations.
type trackingClearer struct {
	mu     sync.Mutex
	clears int
}

func (c *trackingClearer) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.clears++
}

func (c *trackingClearer) count() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.clears
}

func writeData(t *testing.T, w http.ResponseWriter, data any) {
	t.Helper()
	raw, err := json.Marshal(data)
	require.NoError(t, err)
	_ = json.NewEncoder(w).Encode(map[string]json.RawMessage{"data": raw})
}

// consoleServer is a fake data API covering the auth endpoints.
type consoleServer struct {
	mu         sync.Mutex
	identity   *api.Identity
	perms      *api.PermissionSnapshot
	permsFail  bool
	logins     int
	logouts    int
	logoutFail bool
}

func (s *consoleServer) handler(t *testing.T) http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET "+api.PathMe, func(w http.ResponseWriter, r *http.Request) {
		s.mu.Lock()
		defer s.mu.Unlock()
		if s.identity == nil {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		writeData(t, w, s.identity)
	})
	mux.HandleFunc("GET "+api.PathPermissions, func(w http.ResponseWriter, r *http.Request) {
		s.mu.Lock()
		defer s.mu.Unlock()
		if s.permsFail || s.perms == nil {
			w.WriteHeader(http.StatusInternalServerError)
			return
		}
		writeData(t, w, s.perms)
	})
	mux.HandleFunc("POST "+api.PathLogin, func(w http.ResponseWriter, r *http.Request) {
		s.mu.Lock()
		defer s.mu.Unlock()
		s.logins++
		s.identity = &api.Identity{ID: "admin-1", Username: "ops", Role: "editor"}
		s.perms = &api.PermissionSnapshot{
			ActiveRole:      "editor",
			RolePermissions: map[string][]string{"editor": {"announcements.write"}},
		}
	})
	mux.HandleFunc("POST "+api.PathLogout, func(w http.ResponseWriter, r *http.Request) {
		s.mu.Lock()
		defer s.mu.Unlock()
		s.logouts++
		if s.logoutFail {
			w.WriteHeader(http.StatusBadGateway)
			return
		}
		s.identity = nil
		s.perms = nil
	})
	return mux
}

func newStore(t *testing.T, srv *httptest.Server) (*Store, *trackingClearer) {
	t.Helper()
	d, err := dispatch.New(dispatch.Options{
		Origins: []string{srv.URL},
		Cookies: platform.NewMemoryCookies(),
	})
	require.NoError(t, err)
	clearer := &trackingClearer{}
	return New(d, clearer, nil), clearer
}

func TestBootstrap_CommitsBothTogether(t *testing.T) {
	backend := &consoleServer{
		identity: &api.Identity{ID: "admin-1", Username: "ops"},
		perms: &api.PermissionSnapshot{
			ActiveRole:      "editor",
			RolePermissions: map[string][]string{"editor": {"announcements.write"}},
			TabPermissions:  map[string]string{"approvals": "approvals.review"},
			HighRiskActions: []string{"bulk.execute"},
		},
	}
	srv := httptest.NewServer(backend.handler(t))
	defer srv.Close()

	store, _ := newStore(t, srv)
	require.NoError(t, store.Bootstrap(context.Background()))

	assert.True(t, store.Authenticated())
	require.NotNil(t, store.Identity())
	require.NotNil(t, store.Permissions())
	assert.Equal(t, "ops", store.Identity().Username)
	assert.True(t, store.Can("announcements.write"))
	assert.False(t, store.Can("settings.write"))
	assert.True(t, store.HighRisk("bulk.execute"))
	assert.False(t, store.Loading())
}

func TestBootstrap_PartialFailureResetsBoth(t *testing.T) {
	// Identity fetch succeeds, permission fetch fails: the resulting state
	// must be fully anonymous, never identity-without-permissions.
	backend := &consoleServer{
		identity:  &api.Identity{ID: "admin-1", Username: "ops"},
		permsFail: true,
	}
	srv := httptest.NewServer(backend.handler(t))
	defer srv.Close()

	store, clearer := newStore(t, srv)
	err := store.Bootstrap(context.Background())
	require.Error(t, err)

	assert.Nil(t, store.Identity())
	assert.Nil(t, store.Permissions())
	assert.False(t, store.Authenticated())
	assert.Positive(t, clearer.count(), "anonymous transition clears the step-up grant")
}

func TestBootstrap_TotalFailureResetsBoth(t *testing.T) {
	backend := &consoleServer{}
	srv := httptest.NewServer(backend.handler(t))
	defer srv.Close()

	store, _ := newStore(t, srv)
	require.Error(t, store.Bootstrap(context.Background()))
	assert.Nil(t, store.Identity())
	assert.Nil(t, store.Permissions())
}

func TestLogin_ReBootstrapsInsteadOfPatching(t *testing.T) {
	backend := &consoleServer{}
	srv := httptest.NewServer(backend.handler(t))
	defer srv.Close()

	store, _ := newStore(t, srv)
	require.NoError(t, store.Login(context.Background(), "ops", "pw"))

	backend.mu.Lock()
	logins := backend.logins
	backend.mu.Unlock()
	assert.Equal(t, 1, logins)

	// State came from the post-login bootstrap, not from local patching.
	require.NotNil(t, store.Permissions())
	assert.Equal(t, "editor", store.Permissions().ActiveRole)
}

func TestLogout_ClearsLocalStateOnRemoteFailure(t *testing.T) {
	backend := &consoleServer{
		identity:   &api.Identity{ID: "admin-1", Username: "ops"},
		perms:      &api.PermissionSnapshot{ActiveRole: "editor"},
		logoutFail: true,
	}
	srv := httptest.NewServer(backend.handler(t))
	defer srv.Close()

	store, clearer := newStore(t, srv)
	require.NoError(t, store.Bootstrap(context.Background()))
	require.True(t, store.Authenticated())

	err := store.Logout(context.Background())
	require.Error(t, err, "remote failure is still reported")

	// But local state cleared regardless: a stale authenticated-looking
	// console is worse than a failed revocation call.
	assert.False(t, store.Authenticated())
	assert.Nil(t, store.Permissions())
	assert.Positive(t, clearer.count())
}

func TestTabVisible(t *testing.T) {
	store := New(nil, nil, nil)
	store.perms = &api.PermissionSnapshot{
		ActiveRole:      "editor",
		RolePermissions: map[string][]string{"editor": {"announcements.write"}},
		TabPermissions: map[string]string{
			"announcements": "announcements.write",
			"approvals":     "approvals.review",
		},
	}

	assert.True(t, store.TabVisible("announcements"))
	assert.False(t, store.TabVisible("approvals"))
	assert.True(t, store.TabVisible("dashboard"), "tabs without a required permission are visible")
}

func TestShutdown_ClearsEverything(t *testing.T) {
	backend := &consoleServer{
		identity: &api.Identity{ID: "admin-1"},
		perms:    &api.PermissionSnapshot{ActiveRole: "editor"},
	}
	srv := httptest.NewServer(backend.handler(t))
	defer srv.Close()

	store, clearer := newStore(t, srv)
	require.NoError(t, store.Bootstrap(context.Background()))

	store.Shutdown()
	assert.False(t, store.Authenticated())
	assert.Positive(t, clearer.count())
}

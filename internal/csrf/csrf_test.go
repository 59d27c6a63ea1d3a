// ABOUTME: Tests for CSRF token resolution
// ABOUTME: Cookie-first caching, forced refresh, body and cookie extraction paths

package csrf

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/driftline/driftline-console/internal/api"
	"github.com/driftline/driftline-console/internal/platform"
)

func TestEnsureToken_CookieWinsWithoutForce(t *testing.T) {
	var hits int
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits++
	}))
	defer srv.Close()

	cookies := platform.NewMemoryCookies()
	cookies.Set(api.CSRFCookieName, "cached-token")

	m := New(cookies, api.CSRFCookieName, srv.Client(), srv.URL, nil)
	token, err := m.EnsureToken(context.Background(), false)
	require.NoError(t, err)
	assert.Equal(t, "cached-token", token)
	assert.Zero(t, hits, "a readable cookie short-circuits the refresh endpoint")
}

func TestEnsureToken_RefreshExtractsFromBody(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, api.PathCSRF, r.URL.Path)
		assert.Equal(t, "no-store", r.Header.Get("Cache-Control"))
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"data": {"token": "body-token"}}`))
	}))
	defer srv.Close()

	cookies := platform.NewMemoryCookies()
	m := New(cookies, api.CSRFCookieName, srv.Client(), srv.URL, nil)

	token, err := m.EnsureToken(context.Background(), false)
	require.NoError(t, err)
	assert.Equal(t, "body-token", token)

	// The resolved token is cached for the next call.
	cached, ok := cookies.Get(api.CSRFCookieName)
	assert.True(t, ok)
	assert.Equal(t, "body-token", cached)
}

func TestEnsureToken_RefreshFallsBackToCookie(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.SetCookie(w, &http.Cookie{Name: api.CSRFCookieName, Value: "cookie-token"})
		// Empty body: the endpoint only set the cookie.
	}))
	defer srv.Close()

	m := New(platform.NewMemoryCookies(), api.CSRFCookieName, srv.Client(), srv.URL, nil)
	token, err := m.EnsureToken(context.Background(), false)
	require.NoError(t, err)
	assert.Equal(t, "cookie-token", token)
}

func TestEnsureToken_ForceBypassesCookie(t *testing.T) {
	var hits int
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits++
		_, _ = w.Write([]byte(`{"data": {"token": "fresh-token"}}`))
	}))
	defer srv.Close()

	cookies := platform.NewMemoryCookies()
	cookies.Set(api.CSRFCookieName, "stale-token")

	m := New(cookies, api.CSRFCookieName, srv.Client(), srv.URL, nil)
	token, err := m.EnsureToken(context.Background(), true)
	require.NoError(t, err)
	assert.Equal(t, "fresh-token", token)
	assert.Equal(t, 1, hits)
}

func TestEnsureToken_Unavailable(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		// No body, no cookie.
	}))
	defer srv.Close()

	m := New(platform.NewMemoryCookies(), api.CSRFCookieName, srv.Client(), srv.URL, nil)
	_, err := m.EnsureToken(context.Background(), false)
	assert.ErrorIs(t, err, ErrTokenUnavailable)
}

func TestEnsureToken_EndpointError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	m := New(platform.NewMemoryCookies(), api.CSRFCookieName, srv.Client(), srv.URL, nil)
	_, err := m.EnsureToken(context.Background(), false)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "503")
}

func TestEnsureToken_MalformedBodyFallsBackToCookie(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.SetCookie(w, &http.Cookie{Name: api.CSRFCookieName, Value: "from-cookie"})
		_, _ = w.Write([]byte("not json"))
	}))
	defer srv.Close()

	m := New(platform.NewMemoryCookies(), api.CSRFCookieName, srv.Client(), srv.URL, nil)
	token, err := m.EnsureToken(context.Background(), false)
	require.NoError(t, err)
	assert.Equal(t, "from-cookie", token)
}

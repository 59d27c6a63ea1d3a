// ABOUTME: CSRF token manager for the double-submit anti-forgery pattern
// ABOUTME: Resolves tokens cookie-first, refreshing via the token endpoint when absent

package csrf

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"

	"github.com/driftline/driftline-console/internal/api"
	"github.com/driftline/driftline-console/internal/platform"
)

// ErrTokenUnavailable is returned when the refresh endpoint neither returned
// a token in its body nor set the CSRF cookie.
var ErrTokenUnavailable = errors.New("csrf token unavailable")

// Manager acquires and caches the anti-forgery token. The cookie store is
// the cache: a token readable there is returned as-is unless the caller
// forces a refresh.
type Manager struct {
	cookies    platform.CookieStore
	cookieName string
	client     *http.Client
	origin     string
	logger     *slog.Logger
}

// New creates a Manager. origin is the primary API origin; CSRF refresh does
// not participate in origin fallback — if the refresh fails, the protected
// mutation proceeds without the header and the server rejects it.
func New(cookies platform.CookieStore, cookieName string, client *http.Client, origin string, logger *slog.Logger) *Manager {
	if client == nil {
		client = http.DefaultClient
	}
	if logger == nil {
		logger = slog.Default().With("component", "csrf")
	}
	return &Manager{
		cookies:    cookies,
		cookieName: cookieName,
		client:     client,
		origin:     origin,
		logger:     logger,
	}
}

// EnsureToken returns the current CSRF token. Unless forceRefresh is set, a
// token already present in the cookie store wins. Otherwise the dedicated
// token endpoint is called with a cache-bypass directive; the token is taken
// from the structured body when present, else from whatever the cookie holds
// after the call.
func (m *Manager) EnsureToken(ctx context.Context, forceRefresh bool) (string, error) {
	if !forceRefresh {
		if v, ok := m.cookies.Get(m.cookieName); ok && v != "" {
			return v, nil
		}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, m.origin+api.PathCSRF, nil)
	if err != nil {
		return "", fmt.Errorf("creating csrf request: %w", err)
	}
	req.Header.Set("Cache-Control", "no-store")
	req.Header.Set("Pragma", "no-cache")

	resp, err := m.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("refreshing csrf token: %w", err)
	}
	defer resp.Body.Close()

	for _, c := range resp.Cookies() {
		if c.Name == m.cookieName && !c.HttpOnly {
			m.cookies.Set(c.Name, c.Value)
		}
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return "", fmt.Errorf("csrf endpoint returned status %d", resp.StatusCode)
	}

	if token := tokenFromBody(resp.Body); token != "" {
		m.cookies.Set(m.cookieName, token)
		return token, nil
	}

	// Fall back to the cookie the endpoint just set.
	if v, ok := m.cookies.Get(m.cookieName); ok && v != "" {
		return v, nil
	}
	return "", ErrTokenUnavailable
}

// tokenFromBody extracts the token from the envelope's data payload.
// Malformed bodies are treated as absent.
func tokenFromBody(r io.Reader) string {
	raw, err := io.ReadAll(r)
	if err != nil || len(raw) == 0 {
		return ""
	}
	var env api.Envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return ""
	}
	if len(env.Data) == 0 {
		return ""
	}
	var payload api.CSRFResponse
	if err := json.Unmarshal(env.Data, &payload); err != nil {
		return ""
	}
	return payload.Token
}

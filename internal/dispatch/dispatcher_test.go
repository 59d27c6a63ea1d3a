// ABOUTME: Tests for the mutation dispatcher
// ABOUTME: Covers header assembly, origin fallback, normalization, and journaling

package dispatch

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
	"github.com/driftline/driftline-console/internal/platform"
)

// staticCSRF is a CSRFSource returning a fixed token.
type staticCSRF struct {
	token string
	err   error
	calls int
}

func (s *staticCSRF) EnsureToken(_ context.Context, _ bool) (string, error) {
	s.calls++
	return s.token, s.err
}

// captureRecorder collects journal records.
type captureRecorder struct {
	mu      sync.Mutex
	records []Record
}

func (c *captureRecorder) RecordDispatch(_ context.Context, rec Record) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.records = append(c.records, rec)
}

// envelopeHandler responds with a JSON envelope wrapping data.
func envelopeHandler(t *testing.T, status int, data any) http.HandlerFunc {
	t.Helper()
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		raw, err := json.Marshal(data)
		require.NoError(t, err)
		_ = json.NewEncoder(w).Encode(map[string]json.RawMessage{"data": raw})
	}
}

func newDispatcher(t *testing.T, opts Options) *Dispatcher {
	t.Helper()
	if opts.Cookies == nil {
		opts.Cookies = platform.NewMemoryCookies()
	}
	d, err := New(opts)
	require.NoError(t, err)
	return d
}

func TestNew_RequiresOrigins(t *testing.T) {
	_, err := New(Options{})
	assert.ErrorIs(t, err, ErrNoOrigins)
}

func TestDo_CSRFHeaderOnMutationsOnly(t *testing.T) {
	var headers []http.Header
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		headers = append(headers, r.Header.Clone())
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	csrf := &staticCSRF{token: "tok-123"}
	d := newDispatcher(t, Options{Origins: []string{srv.URL}, CSRF: csrf})

	// Read call: no CSRF header even when requested.
	_, err := d.Do(context.Background(), Request{Method: http.MethodGet, Path: "/x", WithCSRF: true})
	require.NoError(t, err)
	assert.Empty(t, headers[0].Get(api.HeaderCSRFToken))
	assert.Empty(t, headers[0].Get(api.HeaderIdempotencyKey))

	// Mutation with CSRF requested: header present.
	_, err = d.Do(context.Background(), Request{Method: http.MethodPost, Path: "/x", WithCSRF: true})
	require.NoError(t, err)
	assert.Equal(t, "tok-123", headers[1].Get(api.HeaderCSRFToken))
	assert.Equal(t, "application/json", headers[1].Get("Content-Type"))
	assert.NotEmpty(t, headers[1].Get(api.HeaderIdempotencyKey))

	// Mutation without CSRF requested: header absent.
	_, err = d.Do(context.Background(), Request{Method: http.MethodPost, Path: "/x"})
	require.NoError(t, err)
	assert.Empty(t, headers[2].Get(api.HeaderCSRFToken))
}

func TestDo_StepUpHeader(t *testing.T) {
	var got string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		got = r.Header.Get(api.HeaderStepUpToken)
	}))
	defer srv.Close()

	d := newDispatcher(t, Options{Origins: []string{srv.URL}})
	_, err := d.Do(context.Background(), Request{Method: http.MethodPost, Path: "/x", StepUpToken: "grant-1"})
	require.NoError(t, err)
	assert.Equal(t, "grant-1", got)
}

func TestDo_CSRFResolutionFailureProceedsWithoutHeader(t *testing.T) {
	var header string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		header = r.Header.Get(api.HeaderCSRFToken)
		w.WriteHeader(http.StatusForbidden)
		_ = json.NewEncoder(w).Encode(map[string]string{"error": "csrf required"})
	}))
	defer srv.Close()

	csrf := &staticCSRF{err: assert.AnError}
	d := newDispatcher(t, Options{Origins: []string{srv.URL}, CSRF: csrf})

	_, err := d.Do(context.Background(), Request{Method: http.MethodPost, Path: "/x", WithCSRF: true})

	// The mutation went out bare and the server's rejection came back as-is.
	assert.Empty(t, header)
	var httpErr *HTTPError
	require.ErrorAs(t, err, &httpErr)
	assert.Equal(t, http.StatusForbidden, httpErr.Status)
	assert.Equal(t, "csrf required", httpErr.Message)
}

func TestDo_OriginFallbackOnTransportFailure(t *testing.T) {
	// Two dead origins, then a live one.
	dead1 := httptest.NewServer(http.NotFoundHandler())
	dead1.Close()
	dead2 := httptest.NewServer(http.NotFoundHandler())
	dead2.Close()

	var hits int
	live := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits++
		w.WriteHeader(http.StatusOK)
	}))
	defer live.Close()

	rec := &captureRecorder{}
	d := newDispatcher(t, Options{
		Origins:  []string{dead1.URL, dead2.URL, live.URL},
		Recorder: rec,
	})

	_, err := d.Do(context.Background(), Request{Method: http.MethodPost, Path: "/x"})
	require.NoError(t, err)
	assert.Equal(t, 1, hits)

	require.Len(t, rec.records, 1)
	assert.Equal(t, 3, rec.records[0].Attempts)
	assert.Equal(t, live.URL, rec.records[0].Origin)
	assert.True(t, rec.records[0].OK)
}

func TestDo_IdempotencyKeySharedAcrossFallback(t *testing.T) {
	dead := httptest.NewServer(http.NotFoundHandler())
	dead.Close()

	var keys []string
	live := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		keys = append(keys, r.Header.Get(api.HeaderIdempotencyKey))
	}))
	defer live.Close()

	d := newDispatcher(t, Options{Origins: []string{dead.URL, live.URL}})

	// Two independent submissions.
	_, err := d.Do(context.Background(), Request{Method: http.MethodPost, Path: "/x"})
	require.NoError(t, err)
	_, err = d.Do(context.Background(), Request{Method: http.MethodPost, Path: "/x"})
	require.NoError(t, err)

	require.Len(t, keys, 2)
	assert.NotEmpty(t, keys[0])
	assert.NotEqual(t, keys[0], keys[1], "independent resubmissions mint new keys")
}

func TestDo_NoFallbackOnHTTPError(t *testing.T) {
	var firstHits, secondHits int
	first := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		firstHits++
		w.WriteHeader(http.StatusConflict)
		_ = json.NewEncoder(w).Encode(map[string]string{"message": "already published"})
	}))
	defer first.Close()
	second := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		secondHits++
	}))
	defer second.Close()

	d := newDispatcher(t, Options{Origins: []string{first.URL, second.URL}})

	_, err := d.Do(context.Background(), Request{Method: http.MethodPost, Path: "/x"})

	var httpErr *HTTPError
	require.ErrorAs(t, err, &httpErr)
	assert.Equal(t, http.StatusConflict, httpErr.Status)
	assert.Equal(t, "already published", httpErr.Error())
	assert.Equal(t, 1, firstHits)
	assert.Zero(t, secondHits, "HTTP errors are final, never retried on another origin")
}

func TestDo_ExhaustedOriginsReturnsLastTransportError(t *testing.T) {
	dead1 := httptest.NewServer(http.NotFoundHandler())
	dead1.Close()
	dead2 := httptest.NewServer(http.NotFoundHandler())
	dead2.Close()

	d := newDispatcher(t, Options{Origins: []string{dead1.URL, dead2.URL}})

	_, err := d.Do(context.Background(), Request{Method: http.MethodPost, Path: "/x"})

	var netErr *NetworkError
	require.ErrorAs(t, err, &netErr)
	assert.Equal(t, dead2.URL, netErr.Origin)
	assert.True(t, IsNetworkError(err))
}

func TestDo_NormalizesEnvelope(t *testing.T) {
	tests := []struct {
		name     string
		body     string
		wantNil  bool
		wantData string
	}{
		{name: "well-formed", body: `{"data": {"id": "a1"}, "message": "ok"}`, wantData: `{"id": "a1"}`},
		{name: "empty body", body: "", wantNil: true},
		{name: "malformed json", body: "<html>oops</html>", wantNil: true},
		{name: "whitespace only", body: "   \n", wantNil: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				_, _ = w.Write([]byte(tt.body))
			}))
			defer srv.Close()

			d := newDispatcher(t, Options{Origins: []string{srv.URL}})
			env, err := d.Do(context.Background(), Request{Method: http.MethodGet, Path: "/x"})
			require.NoError(t, err)
			if tt.wantNil {
				assert.Nil(t, env)
			} else {
				require.NotNil(t, env)
				assert.JSONEq(t, tt.wantData, string(env.Data))
			}
		})
	}
}

func TestDo_HTTPErrorWithoutBodyUsesGenericMessage(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	d := newDispatcher(t, Options{Origins: []string{srv.URL}})
	_, err := d.Do(context.Background(), Request{Method: http.MethodGet, Path: "/x"})

	var httpErr *HTTPError
	require.ErrorAs(t, err, &httpErr)
	assert.Equal(t, "request failed with status 502", httpErr.Error())
}

func TestDo_MirrorsReadableCookies(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.SetCookie(w, &http.Cookie{Name: api.CSRFCookieName, Value: "csrf-val"})
		http.SetCookie(w, &http.Cookie{Name: "driftline_session", Value: "opaque", HttpOnly: true})
	}))
	defer srv.Close()

	cookies := platform.NewMemoryCookies()
	d := newDispatcher(t, Options{Origins: []string{srv.URL}, Cookies: cookies})

	_, err := d.Do(context.Background(), Request{Method: http.MethodGet, Path: "/x"})
	require.NoError(t, err)

	v, ok := cookies.Get(api.CSRFCookieName)
	assert.True(t, ok)
	assert.Equal(t, "csrf-val", v)

	_, ok = cookies.Get("driftline_session")
	assert.False(t, ok, "HttpOnly cookies never enter the readable store")
}

func TestGetAndPost_DecodeData(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /item", envelopeHandler(t, http.StatusOK, map[string]string{"id": "a1"}))
	mux.HandleFunc("POST /item", envelopeHandler(t, http.StatusOK, map[string]string{"id": "a2"}))
	srv := httptest.NewServer(mux)
	defer srv.Close()

	d := newDispatcher(t, Options{Origins: []string{srv.URL}})

	var got map[string]string
	require.NoError(t, d.Get(context.Background(), "/item", &got))
	assert.Equal(t, "a1", got["id"])

	require.NoError(t, d.Post(context.Background(), "/item", map[string]string{"title": "x"}, &got))
	assert.Equal(t, "a2", got["id"])
}

func TestDo_JournalsFailures(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusForbidden)
	}))
	defer srv.Close()

	rec := &captureRecorder{}
	d := newDispatcher(t, Options{Origins: []string{srv.URL}, Recorder: rec})

	_, err := d.Do(context.Background(), Request{Method: http.MethodPost, Path: "/x"})
	require.Error(t, err)

	require.Len(t, rec.records, 1)
	assert.False(t, rec.records[0].OK)
	assert.Equal(t, http.StatusForbidden, rec.records[0].Status)
	assert.NotEmpty(t, rec.records[0].ErrText)
	assert.NotEmpty(t, rec.records[0].IdempotencyKey)
}

// ABOUTME: Mutation dispatcher attaching CSRF, step-up, and idempotency headers
// ABOUTME: Tries candidate origins in order, falling back on transport failures only

package dispatch

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/google/uuid"

	"github.com/driftline/driftline-console/internal/api"
	"github.com/driftline/driftline-console/internal/platform"
)

// CSRFSource resolves the anti-forgery token ahead of protected mutations.
type CSRFSource interface {
	EnsureToken(ctx context.Context, forceRefresh bool) (string, error)
}

// Record describes one completed dispatch for the mutation journal.
type Record struct {
	Method         string
	Path           string
	IdempotencyKey string
	Origin         string
	Attempts       int
	Status         int
	OK             bool
	ErrText        string
	At             time.Time
}

// Recorder receives a Record after each mutation settles. Recording is
// best-effort; failures must not affect the dispatched call.
type Recorder interface {
	RecordDispatch(ctx context.Context, rec Record)
}

// Request describes one call to the data API.
type Request struct {
	Method string
	Path   string
	// Body is JSON-marshaled when non-nil.
	Body any
	// WithCSRF requests the anti-forgery header on non-read methods.
	WithCSRF bool
	// StepUpToken, when set, is attached as the step-up header. Callers are
	// responsible for validating the grant before dispatch.
	StepUpToken string
}

// Dispatcher sends requests to the data API. See the package documentation
// for the protocol it implements.
type Dispatcher struct {
	origins  []string
	client   *http.Client
	cookies  platform.CookieStore
	csrf     CSRFSource
	recorder Recorder
	logger   *slog.Logger
	clock    platform.Clock
}

// Options configures a Dispatcher.
type Options struct {
	// Origins are the candidate API origins in fallback order. The first
	// entry is the configured primary; later entries are tried only after a
	// transport-level failure. At least one is required.
	Origins []string
	// Client is the HTTP client, typically carrying the session cookie jar.
	// Defaults to http.DefaultClient.
	Client *http.Client
	// Cookies is the readable cookie mirror shared with the CSRF manager.
	Cookies platform.CookieStore
	// CSRF resolves anti-forgery tokens. Optional; without it, WithCSRF
	// requests go out bare and rely on the server to reject them.
	CSRF CSRFSource
	// Recorder receives the mutation journal entries. Optional.
	Recorder Recorder
	Logger   *slog.Logger
	Clock    platform.Clock
}

// New creates a Dispatcher.
func New(opts Options) (*Dispatcher, error) {
	if len(opts.Origins) == 0 {
		return nil, ErrNoOrigins
	}
	client := opts.Client
	if client == nil {
		client = http.DefaultClient
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default().With("component", "dispatch")
	}
	clock := opts.Clock
	if clock == nil {
		clock = platform.SystemClock{}
	}
	return &Dispatcher{
		origins:  opts.Origins,
		client:   client,
		cookies:  opts.Cookies,
		csrf:     opts.CSRF,
		recorder: opts.Recorder,
		logger:   logger,
		clock:    clock,
	}, nil
}

// isRead reports whether the method never changes server state.
func isRead(method string) bool {
	return method == http.MethodGet || method == http.MethodHead
}

// Do dispatches the request, trying origins in order. It returns the
// normalized response envelope on success. A non-2xx response returns an
// *HTTPError; exhausting every origin returns the last *NetworkError.
func (d *Dispatcher) Do(ctx context.Context, req Request) (*api.Envelope, error) {
	var body []byte
	if req.Body != nil {
		b, err := json.Marshal(req.Body)
		if err != nil {
			return nil, fmt.Errorf("encoding request body: %w", err)
		}
		body = b
	}

	mutation := !isRead(req.Method)

	var csrfToken string
	if req.WithCSRF && mutation && d.csrf != nil {
		token, err := d.csrf.EnsureToken(ctx, false)
		if err != nil {
			// The mutation still goes out; the server rejects it if the
			// token genuinely was required.
			d.logger.Warn("csrf token resolution failed, dispatching without header",
				"path", req.Path, "error", err)
		} else {
			csrfToken = token
		}
	}

	// One key per constructed call: origin-fallback attempts share it.
	var idemKey string
	if mutation {
		idemKey = uuid.NewString()
	}

	var lastNetErr *NetworkError
	attempts := 0
	for _, origin := range d.origins {
		attempts++
		env, status, err := d.attempt(ctx, origin, req, body, csrfToken, idemKey)
		if err != nil {
			var ne *NetworkError
			if errors.As(err, &ne) && ctx.Err() == nil {
				d.logger.Warn("origin unreachable, trying next",
					"origin", origin, "path", req.Path, "error", ne.Err)
				lastNetErr = ne
				continue
			}
			d.record(ctx, req, idemKey, origin, attempts, status, err)
			return env, err
		}
		d.record(ctx, req, idemKey, origin, attempts, status, nil)
		return env, nil
	}

	d.record(ctx, req, idemKey, "", attempts, 0, lastNetErr)
	return nil, lastNetErr
}

// attempt performs one request against a single origin.
func (d *Dispatcher) attempt(ctx context.Context, origin string, req Request, body []byte, csrfToken, idemKey string) (*api.Envelope, int, error) {
	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	}

	httpReq, err := http.NewRequestWithContext(ctx, req.Method, origin+req.Path, reader)
	if err != nil {
		return nil, 0, fmt.Errorf("creating request: %w", err)
	}

	if body != nil || !isRead(req.Method) {
		httpReq.Header.Set("Content-Type", "application/json")
	}
	if csrfToken != "" {
		httpReq.Header.Set(api.HeaderCSRFToken, csrfToken)
	}
	if req.StepUpToken != "" {
		httpReq.Header.Set(api.HeaderStepUpToken, req.StepUpToken)
	}
	if idemKey != "" {
		httpReq.Header.Set(api.HeaderIdempotencyKey, idemKey)
	}

	resp, err := d.client.Do(httpReq)
	if err != nil {
		if ctx.Err() != nil {
			return nil, 0, fmt.Errorf("request cancelled: %w", ctx.Err())
		}
		return nil, 0, &NetworkError{Origin: origin, Err: err}
	}
	defer resp.Body.Close()

	d.mirrorCookies(resp)

	env := normalize(resp.Body)

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return env, resp.StatusCode, &HTTPError{
			Status:  resp.StatusCode,
			Message: env.FailureMessage(),
		}
	}
	return env, resp.StatusCode, nil
}

// mirrorCookies copies non-HttpOnly response cookies into the readable
// store, keeping the CSRF cookie visible to the CSRF manager. The HTTP
// client's jar handles the opaque session cookie separately.
func (d *Dispatcher) mirrorCookies(resp *http.Response) {
	if d.cookies == nil {
		return
	}
	for _, c := range resp.Cookies() {
		if c.HttpOnly {
			continue
		}
		if c.MaxAge < 0 {
			d.cookies.Clear(c.Name)
			continue
		}
		d.cookies.Set(c.Name, c.Value)
	}
}

// normalize parses the body as a response envelope. Empty or malformed
// bodies yield nil; the payload is simply absent.
func normalize(r io.Reader) *api.Envelope {
	raw, err := io.ReadAll(r)
	if err != nil || len(bytes.TrimSpace(raw)) == 0 {
		return nil
	}
	var env api.Envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return nil
	}
	return &env
}

// record feeds the mutation journal. Read calls are not journaled.
func (d *Dispatcher) record(ctx context.Context, req Request, idemKey, origin string, attempts, status int, err error) {
	if d.recorder == nil || idemKey == "" {
		return
	}
	rec := Record{
		Method:         req.Method,
		Path:           req.Path,
		IdempotencyKey: idemKey,
		Origin:         origin,
		Attempts:       attempts,
		Status:         status,
		OK:             err == nil,
		At:             d.clock.Now(),
	}
	if err != nil {
		rec.ErrText = err.Error()
	}
	d.recorder.RecordDispatch(ctx, rec)
}

// DecodeData unmarshals the envelope's data payload into out. A nil envelope
// or absent data leaves out untouched and returns nil.
func DecodeData(env *api.Envelope, out any) error {
	if env == nil || len(env.Data) == 0 {
		return nil
	}
	if err := json.Unmarshal(env.Data, out); err != nil {
		return fmt.Errorf("decoding response data: %w", err)
	}
	return nil
}

// Get is a convenience wrapper for read calls, decoding data into out when
// out is non-nil.
func (d *Dispatcher) Get(ctx context.Context, path string, out any) error {
	env, err := d.Do(ctx, Request{Method: http.MethodGet, Path: path})
	if err != nil {
		return err
	}
	if out == nil {
		return nil
	}
	return DecodeData(env, out)
}

// Post is a convenience wrapper for CSRF-protected mutations, decoding data
// into out when out is non-nil.
func (d *Dispatcher) Post(ctx context.Context, path string, body, out any) error {
	env, err := d.Do(ctx, Request{Method: http.MethodPost, Path: path, Body: body, WithCSRF: true})
	if err != nil {
		return err
	}
	if out == nil {
		return nil
	}
	return DecodeData(env, out)
}

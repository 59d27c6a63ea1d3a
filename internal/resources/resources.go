// ABOUTME: Typed consumers for the console's CRUD and review surfaces
// ABOUTME: Thin wrappers over the dispatcher; high-risk calls gate on step-up client-side

package resources

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"time"

	"github.com/driftline/driftline-console/internal/api"
	"github.com/driftline/driftline-console/internal/dispatch"
	"github.com/driftline/driftline-console/internal/platform"
	"github.com/driftline/driftline-console/internal/readcache"
	"github.com/driftline/driftline-console/internal/stepup"
)

// Collection base paths.
const (
	announcementsPath = "/api/admin/announcements"
	approvalsPath     = "/api/admin/approvals"
	linksPath         = "/api/admin/links"
	templatesPath     = "/api/admin/templates"
	mediaPath         = "/api/admin/media"
	alertsPath        = "/api/admin/alerts"
)

// listCacheTTL bounds how long an uninvalidated list read may be reused.
const listCacheTTL = 30 * time.Second

// Dispatcher is the slice of the mutation dispatcher resource clients need.
type Dispatcher interface {
	Do(ctx context.Context, req dispatch.Request) (*api.Envelope, error)
	Get(ctx context.Context, path string, out any) error
	Post(ctx context.Context, path string, body, out any) error
}

// GrantSource gates high-risk calls on a valid step-up grant.
type GrantSource interface {
	Valid() bool
	Token() (string, bool)
}

// Client bundles the typed resource consumers sharing one dispatcher, grant
// source, and read cache.
type Client struct {
	Announcements *Announcements
	Approvals     *Approvals
	Links         *Links
	Templates     *Templates
	Media         *Media
	Alerts        *Alerts
	Sessions      *Sessions
}

// NewClient wires the resource consumers.
func NewClient(d Dispatcher, grants GrantSource, clock platform.Clock, logger *slog.Logger) *Client {
	if logger == nil {
		logger = slog.Default().With("component", "resources")
	}
	cache := readcache.New(listCacheTTL, clock)
	return &Client{
		Announcements: &Announcements{d: d, grants: grants, cache: cache, logger: logger},
		Approvals:     &Approvals{d: d, grants: grants, cache: cache},
		Links:         &Links{d: d, grants: grants, cache: cache},
		Templates:     &Templates{d: d, cache: cache},
		Media:         &Media{d: d, cache: cache},
		Alerts:        &Alerts{d: d, cache: cache},
		Sessions:      &Sessions{d: d, grants: grants},
	}
}

// ListOptions are the common list filters.
type ListOptions struct {
	Status string
	Search string
	Page   int
}

// queryPath appends the list filters to a collection path.
func queryPath(base string, opts ListOptions) string {
	q := url.Values{}
	if opts.Status != "" {
		q.Set("status", opts.Status)
	}
	if opts.Search != "" {
		q.Set("q", opts.Search)
	}
	if opts.Page > 0 {
		q.Set("page", fmt.Sprint(opts.Page))
	}
	if len(q) == 0 {
		return base
	}
	return base + "?" + q.Encode()
}

// requireStepUp blocks a high-risk call client-side when no valid grant is
// held, returning the token otherwise. The server re-validates regardless.
func requireStepUp(grants GrantSource) (string, error) {
	token, ok := grants.Token()
	if !ok {
		return "", stepup.ErrStepUpRequired
	}
	return token, nil
}

// listThrough fetches path into a fresh []T, serving from cache when the
// collection has not been invalidated.
func listThrough[T any](ctx context.Context, d Dispatcher, cache *readcache.Cache, path string) ([]T, error) {
	if cached, ok := cache.Get(path); ok {
		if items, ok := cached.([]T); ok {
			return items, nil
		}
	}
	var items []T
	if err := d.Get(ctx, path, &items); err != nil {
		return nil, err
	}
	cache.Put(path, items)
	return items, nil
}

// postHighRisk dispatches a step-up-gated mutation.
func postHighRisk(ctx context.Context, d Dispatcher, grants GrantSource, path string, body, out any) error {
	token, err := requireStepUp(grants)
	if err != nil {
		return err
	}
	env, err := d.Do(ctx, dispatch.Request{
		Method:      http.MethodPost,
		Path:        path,
		Body:        body,
		WithCSRF:    true,
		StepUpToken: token,
	})
	if err != nil {
		return err
	}
	if out == nil {
		return nil
	}
	return dispatch.DecodeData(env, out)
}

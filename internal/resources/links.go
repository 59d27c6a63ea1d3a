// ABOUTME: Outbound link management and global link replacement
// ABOUTME: Replacement is high-risk and runs through the preview/execute coordinator

package resources

import (
	"context"
	"log/slog"

	"github.com/driftline/driftline-console/internal/api"
	"github.com/driftline/driftline-console/internal/preview"
	"github.com/driftline/driftline-console/internal/readcache"
)

// Links is the outbound link surface.
type Links struct {
	d      Dispatcher
	grants GrantSource
	cache  *readcache.Cache
}

// List returns tracked links matching the filters.
func (l *Links) List(ctx context.Context, opts ListOptions) ([]api.Link, error) {
	return listThrough[api.Link](ctx, l.d, l.cache, queryPath(linksPath, opts))
}

// Broken returns only links whose last check failed.
func (l *Links) Broken(ctx context.Context) ([]api.Link, error) {
	return listThrough[api.Link](ctx, l.d, l.cache, queryPath(linksPath, ListOptions{Status: "broken"}))
}

// ReplaceCoordinator returns a preview/execute coordinator for a global link
// replacement. Candidates are the link IDs currently pointing at the from
// URL; the preview reports which items would be rewritten.
func (l *Links) ReplaceCoordinator(params api.LinkReplaceParams) *preview.Coordinator {
	c := preview.NewCoordinator(preview.Options{
		Dispatcher:  l.d,
		Grants:      l.grants,
		PreviewPath: linksPath + "/replace/preview",
		ExecutePath: linksPath + "/replace/execute",
		Invalidate:  func() { l.cache.Invalidate(linksPath) },
		Logger:      slog.Default().With("component", "links"),
	})
	c.SetAction("replace", map[string]any{
		"fromUrl": params.FromURL,
		"toUrl":   params.ToURL,
	})
	return c
}

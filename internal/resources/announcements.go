// ABOUTME: Announcement CRUD, Markdown preview, and bulk publish/archive
// ABOUTME: Bulk actions run through the preview/execute coordinator

package resources

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/extension"

	"github.com/driftline/driftline-console/internal/api"
	"github.com/driftline/driftline-console/internal/dispatch"
	"github.com/driftline/driftline-console/internal/preview"
	"github.com/driftline/driftline-console/internal/readcache"
)

// markdown renders announcement bodies the way the public site does
// (GFM tables and autolinks).
var markdown = goldmark.New(goldmark.WithExtensions(extension.GFM))

// Announcements is the announcement management surface.
type Announcements struct {
	d      Dispatcher
	grants GrantSource
	cache  *readcache.Cache
	logger *slog.Logger
}

// List returns announcements matching the filters.
func (a *Announcements) List(ctx context.Context, opts ListOptions) ([]api.Announcement, error) {
	return listThrough[api.Announcement](ctx, a.d, a.cache, queryPath(announcementsPath, opts))
}

// Get fetches one announcement by ID.
func (a *Announcements) Get(ctx context.Context, id string) (*api.Announcement, error) {
	var out api.Announcement
	if err := a.d.Get(ctx, announcementsPath+"/"+id, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// Create creates a draft announcement.
func (a *Announcements) Create(ctx context.Context, item api.Announcement) (*api.Announcement, error) {
	var out api.Announcement
	if err := a.d.Post(ctx, announcementsPath, item, &out); err != nil {
		return nil, err
	}
	a.cache.Invalidate(announcementsPath)
	return &out, nil
}

// Update replaces an announcement's editable fields.
func (a *Announcements) Update(ctx context.Context, item api.Announcement) (*api.Announcement, error) {
	var out api.Announcement
	env, err := a.d.Do(ctx, dispatch.Request{
		Method:   http.MethodPut,
		Path:     announcementsPath + "/" + item.ID,
		Body:     item,
		WithCSRF: true,
	})
	if err != nil {
		return nil, err
	}
	if err := dispatch.DecodeData(env, &out); err != nil {
		return nil, err
	}
	a.cache.Invalidate(announcementsPath)
	return &out, nil
}

// Delete removes an announcement.
func (a *Announcements) Delete(ctx context.Context, id string) error {
	_, err := a.d.Do(ctx, dispatch.Request{
		Method:   http.MethodDelete,
		Path:     announcementsPath + "/" + id,
		WithCSRF: true,
	})
	if err != nil {
		return err
	}
	a.cache.Invalidate(announcementsPath)
	return nil
}

// RenderBody renders an announcement's Markdown body to HTML for the edit
// screen's preview pane.
func (a *Announcements) RenderBody(item *api.Announcement) (string, error) {
	var buf bytes.Buffer
	if err := markdown.Convert([]byte(item.Body), &buf); err != nil {
		return "", fmt.Errorf("rendering announcement body: %w", err)
	}
	return buf.String(), nil
}

// BulkCoordinator returns a preview/execute coordinator for the named bulk
// action (publish, archive). A settled execution invalidates announcement
// list reads.
func (a *Announcements) BulkCoordinator(action string) *preview.Coordinator {
	c := preview.NewCoordinator(preview.Options{
		Dispatcher:  a.d,
		Grants:      a.grants,
		PreviewPath: announcementsPath + "/bulk/preview",
		ExecutePath: announcementsPath + "/bulk/execute",
		Invalidate:  func() { a.cache.Invalidate(announcementsPath) },
		Logger:      a.logger,
	})
	c.SetAction(action, nil)
	return c
}

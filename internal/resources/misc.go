// ABOUTME: Template, media, and alert surfaces
// ABOUTME: Plain CRUD plumbing over the dispatcher

package resources

import (
	"context"
	"net/http"

	"github.com/driftline/driftline-console/internal/api"
	"github.com/driftline/driftline-console/internal/dispatch"
	"github.com/driftline/driftline-console/internal/readcache"
)

// Templates is the announcement template surface.
type Templates struct {
	d     Dispatcher
	cache *readcache.Cache
}

// List returns all templates.
func (t *Templates) List(ctx context.Context) ([]api.Template, error) {
	return listThrough[api.Template](ctx, t.d, t.cache, templatesPath)
}

// Save creates or updates a template.
func (t *Templates) Save(ctx context.Context, tpl api.Template) (*api.Template, error) {
	var out api.Template
	var err error
	if tpl.ID == "" {
		err = t.d.Post(ctx, templatesPath, tpl, &out)
	} else {
		var env *api.Envelope
		env, err = t.d.Do(ctx, dispatch.Request{
			Method:   http.MethodPut,
			Path:     templatesPath + "/" + tpl.ID,
			Body:     tpl,
			WithCSRF: true,
		})
		if err == nil {
			err = dispatch.DecodeData(env, &out)
		}
	}
	if err != nil {
		return nil, err
	}
	t.cache.Invalidate(templatesPath)
	return &out, nil
}

// Media is the uploaded asset surface.
type Media struct {
	d     Dispatcher
	cache *readcache.Cache
}

// List returns uploaded assets matching the filters.
func (m *Media) List(ctx context.Context, opts ListOptions) ([]api.MediaAsset, error) {
	return listThrough[api.MediaAsset](ctx, m.d, m.cache, queryPath(mediaPath, opts))
}

// Delete removes an asset.
func (m *Media) Delete(ctx context.Context, id string) error {
	_, err := m.d.Do(ctx, dispatch.Request{
		Method:   http.MethodDelete,
		Path:     mediaPath + "/" + id,
		WithCSRF: true,
	})
	if err != nil {
		return err
	}
	m.cache.Invalidate(mediaPath)
	return nil
}

// Alerts is the site banner surface.
type Alerts struct {
	d     Dispatcher
	cache *readcache.Cache
}

// List returns all alerts.
func (a *Alerts) List(ctx context.Context) ([]api.Alert, error) {
	return listThrough[api.Alert](ctx, a.d, a.cache, alertsPath)
}

// Save creates or updates an alert.
func (a *Alerts) Save(ctx context.Context, alert api.Alert) (*api.Alert, error) {
	var out api.Alert
	var err error
	if alert.ID == "" {
		err = a.d.Post(ctx, alertsPath, alert, &out)
	} else {
		var env *api.Envelope
		env, err = a.d.Do(ctx, dispatch.Request{
			Method:   http.MethodPut,
			Path:     alertsPath + "/" + alert.ID,
			Body:     alert,
			WithCSRF: true,
		})
		if err == nil {
			err = dispatch.DecodeData(env, &out)
		}
	}
	if err != nil {
		return nil, err
	}
	a.cache.Invalidate(alertsPath)
	return &out, nil
}

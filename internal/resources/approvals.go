// ABOUTME: Moderation approval queue: list, approve, reject
// ABOUTME: Approve and reject are high-risk and require a valid step-up grant

package resources

import (
	"context"

	"github.com/driftline/driftline-console/internal/api"
	"github.com/driftline/driftline-console/internal/readcache"
)

// Approvals is the moderation queue surface.
type Approvals struct {
	d      Dispatcher
	grants GrantSource
	cache  *readcache.Cache
}

// List returns pending approvals matching the filters.
func (a *Approvals) List(ctx context.Context, opts ListOptions) ([]api.Approval, error) {
	return listThrough[api.Approval](ctx, a.d, a.cache, queryPath(approvalsPath, opts))
}

// Approve accepts a submitted item.
func (a *Approvals) Approve(ctx context.Context, id string) error {
	if err := postHighRisk(ctx, a.d, a.grants, approvalsPath+"/"+id+"/approve", nil, nil); err != nil {
		return err
	}
	a.cache.Invalidate(approvalsPath)
	return nil
}

// Reject declines a submitted item with a reason shown to the submitter.
func (a *Approvals) Reject(ctx context.Context, id, reason string) error {
	body := map[string]string{"reason": reason}
	if err := postHighRisk(ctx, a.d, a.grants, approvalsPath+"/"+id+"/reject", body, nil); err != nil {
		return err
	}
	a.cache.Invalidate(approvalsPath)
	return nil
}

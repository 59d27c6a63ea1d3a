// ABOUTME: Admin session management: list and terminate active sessions
// ABOUTME: Termination is high-risk and requires a valid step-up grant

package resources

import (
	"context"

	"github.com/driftline/driftline-console/internal/api"
)

// Sessions is the active-session management surface.
type Sessions struct {
	d      Dispatcher
	grants GrantSource
}

// List returns the account's active sessions, current one flagged.
func (s *Sessions) List(ctx context.Context) ([]api.AdminSession, error) {
	var out []api.AdminSession
	if err := s.d.Get(ctx, api.PathAdminSessions, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// Terminate revokes a single session by ID.
func (s *Sessions) Terminate(ctx context.Context, id string) error {
	return postHighRisk(ctx, s.d, s.grants, api.PathAdminSessions+"/"+id+"/terminate", nil, nil)
}

// TerminateOthers revokes every session except the current one.
func (s *Sessions) TerminateOthers(ctx context.Context) error {
	return postHighRisk(ctx, s.d, s.grants, api.PathTerminateOthers, nil, nil)
}

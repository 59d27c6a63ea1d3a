// ABOUTME: Wire types shared with the Driftline data API
// ABOUTME: Response envelope, identity, permission snapshot, header and path names

package api

import (
	"encoding/json"
	"time"
)

// Header names attached by the dispatcher.
const (
	HeaderCSRFToken      = "X-CSRF-Token"
	HeaderStepUpToken    = "X-Admin-Step-Up-Token"
	HeaderIdempotencyKey = "Idempotency-Key"
)

// CSRFCookieName is the client-readable half of the double-submit pair. The
// session cookie is opaque and never read by client code.
const CSRFCookieName = "driftline_csrf"

// Auth endpoint paths.
const (
	PathLogin            = "/api/auth/login"
	PathLogout           = "/api/auth/logout"
	PathStepUp           = "/api/auth/step-up"
	PathMe               = "/api/auth/me"
	PathPermissions      = "/api/auth/permissions"
	PathCSRF             = "/api/auth/csrf"
	PathTerminateOthers  = "/api/admin/sessions/terminate-others"
	PathAdminSessions    = "/api/admin/sessions"
)

// Envelope is the structured response body every endpoint returns. Any field
// may be absent; a non-2xx status is a failure regardless of body shape.
type Envelope struct {
	Data    json.RawMessage `json:"data,omitempty"`
	Message string          `json:"message,omitempty"`
	Error   string          `json:"error,omitempty"`
}

// FailureMessage returns the error text carried in the envelope, preferring
// Message over Error. Empty when the body carried neither.
func (e *Envelope) FailureMessage() string {
	if e == nil {
		return ""
	}
	if e.Message != "" {
		return e.Message
	}
	return e.Error
}

// Identity is the authenticated admin as reported by the "who am I" endpoint.
type Identity struct {
	ID          string    `json:"id"`
	Username    string    `json:"username"`
	DisplayName string    `json:"displayName"`
	Role        string    `json:"role"`
	CreatedAt   time.Time `json:"createdAt"`
}

// PermissionSnapshot is a point-in-time view of what the active role may do.
// It is immutable once fetched; refreshes replace it wholesale.
type PermissionSnapshot struct {
	ActiveRole      string              `json:"activeRole"`
	RolePermissions map[string][]string `json:"rolePermissions"`
	TabPermissions  map[string]string   `json:"tabPermissions"`
	HighRiskActions []string            `json:"highRiskActions"`
}

// Allows reports whether the active role carries the named permission.
func (p *PermissionSnapshot) Allows(permission string) bool {
	if p == nil {
		return false
	}
	for _, granted := range p.RolePermissions[p.ActiveRole] {
		if granted == permission {
			return true
		}
	}
	return false
}

// HighRisk reports whether the named action requires a step-up grant.
func (p *PermissionSnapshot) HighRisk(action string) bool {
	if p == nil {
		return false
	}
	for _, a := range p.HighRiskActions {
		if a == action {
			return true
		}
	}
	return false
}

// LoginRequest is the credential payload for the login endpoint.
type LoginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

// StepUpRequest is the payload for the privilege elevation endpoint.
type StepUpRequest struct {
	Password string `json:"password"`
	Code     string `json:"code,omitempty"`
}

// StepUpResponse is the elevation endpoint's success payload.
type StepUpResponse struct {
	Token     string `json:"token"`
	ExpiresAt string `json:"expiresAt"`
}

// CSRFResponse is the token-issuing endpoint's payload. Token may be empty
// when the server only sets the cookie.
type CSRFResponse struct {
	Token string `json:"token,omitempty"`
}

// AdminSession is an active authenticated session listed by the session
// management endpoints.
type AdminSession struct {
	ID        string    `json:"id"`
	UserAgent string    `json:"userAgent"`
	IP        string    `json:"ip"`
	Current   bool      `json:"current"`
	CreatedAt time.Time `json:"createdAt"`
	LastSeen  time.Time `json:"lastSeen"`
}

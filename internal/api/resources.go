// ABOUTME: Resource DTOs for the admin console's CRUD surfaces
// ABOUTME: Announcements, approvals, links, templates, media, alerts

package api

import "time"

// Announcement lifecycle states.
const (
	AnnouncementDraft     = "draft"
	AnnouncementPending   = "pending"
	AnnouncementPublished = "published"
	AnnouncementArchived  = "archived"
)

// Announcement is an aggregated content item managed through the console.
// Body is Markdown.
type Announcement struct {
	ID        string     `json:"id"`
	Title     string     `json:"title"`
	Body      string     `json:"body"`
	Status    string     `json:"status"`
	SourceURL string     `json:"sourceUrl,omitempty"`
	Tags      []string   `json:"tags,omitempty"`
	CreatedAt time.Time  `json:"createdAt"`
	UpdatedAt time.Time  `json:"updatedAt"`
	PublishAt *time.Time `json:"publishAt,omitempty"`
}

// Approval is a pending moderation decision on a submitted item.
type Approval struct {
	ID          string    `json:"id"`
	ItemID      string    `json:"itemId"`
	ItemTitle   string    `json:"itemTitle"`
	SubmittedBy string    `json:"submittedBy"`
	SubmittedAt time.Time `json:"submittedAt"`
	Status      string    `json:"status"` // pending, approved, rejected
	Reason      string    `json:"reason,omitempty"`
}

// Link is an outbound link tracked across aggregated content.
type Link struct {
	ID        string    `json:"id"`
	URL       string    `json:"url"`
	ItemCount int       `json:"itemCount"`
	Broken    bool      `json:"broken"`
	CheckedAt time.Time `json:"checkedAt"`
}

// LinkReplaceParams describes a global link replacement.
type LinkReplaceParams struct {
	FromURL string `json:"fromUrl"`
	ToURL   string `json:"toUrl"`
}

// Template is a reusable announcement layout.
type Template struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	Body      string    `json:"body"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// MediaAsset is an uploaded image or attachment referenced by content.
type MediaAsset struct {
	ID          string    `json:"id"`
	Filename    string    `json:"filename"`
	ContentType string    `json:"contentType"`
	SizeBytes   int64     `json:"sizeBytes"`
	UploadedAt  time.Time `json:"uploadedAt"`
}

// Alert is an operator-facing site banner.
type Alert struct {
	ID        string     `json:"id"`
	Level     string     `json:"level"` // info, warning, critical
	Text      string     `json:"text"`
	Active    bool       `json:"active"`
	StartsAt  *time.Time `json:"startsAt,omitempty"`
	ExpiresAt *time.Time `json:"expiresAt,omitempty"`
}

// BulkPreview is the read-only simulation result for a bulk action: which
// candidates would go through, which are blocked and why, plus warnings.
type BulkPreview struct {
	EligibleIDs []string      `json:"eligibleIds"`
	Blocked     []BlockedItem `json:"blocked"`
	Warnings    []string      `json:"warnings,omitempty"`
}

// BlockedItem names a candidate the bulk action would skip and the reason.
type BlockedItem struct {
	ID     string `json:"id"`
	Reason string `json:"reason"`
}

// BulkRequest is the shared payload shape for bulk preview and execute
// endpoints.
type BulkRequest struct {
	IDs    []string       `json:"ids"`
	Action string         `json:"action"`
	Params map[string]any `json:"params,omitempty"`
}

// BulkResult is the execute endpoint's success payload.
type BulkResult struct {
	Applied int      `json:"applied"`
	Skipped []string `json:"skipped,omitempty"`
}

package core

import (
	"time"

	"github.com/publora/publora/pkg/recurrence"
)

// PostStatus represents the lifecycle state of a scheduled post.
type PostStatus string

const (
	PostStatusDraft      PostStatus = "draft"
	PostStatusScheduled  PostStatus = "scheduled"
	PostStatusProcessing PostStatus = "processing"
	PostStatusPublished  PostStatus = "published"
	PostStatusFailed     PostStatus = "failed"
	PostStatusCancelled  PostStatus = "cancelled"
)

// IsTerminal reports whether the status is final.
func (s PostStatus) IsTerminal() bool {
	switch s {
	case PostStatusPublished, PostStatusFailed, PostStatusCancelled:
		return true
	default:
		return false
	}
}

// ScheduledPost is a user's content targeted at one or more platforms for a
// specific future UTC instant. Status is mutated only by the engine;
// cancellation is the single user-triggered mutation after scheduling.
type ScheduledPost struct {
	ID           string                    `gorm:"primaryKey;size:36" json:"id"`
	Owner        string                    `gorm:"index;size:255;not null" json:"owner"`
	Content      map[Platform]string       `gorm:"serializer:json" json:"content"`
	Platforms    []Platform                `gorm:"serializer:json" json:"platforms"`
	ImageURLs    []string                  `gorm:"serializer:json" json:"image_urls,omitempty"`
	Credentials  map[Platform]string       `gorm:"serializer:json" json:"credentials,omitempty"`
	ScheduledFor time.Time                 `gorm:"index;not null" json:"scheduled_for"`
	Recurrence   *recurrence.Rule          `gorm:"serializer:json" json:"recurrence,omitempty"`
	Status       PostStatus                `gorm:"index;size:20;default:'draft'" json:"status"`
	Results      map[Platform]PublishResult `gorm:"serializer:json" json:"results,omitempty"`
	CreatedAt    time.Time                 `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt    time.Time                 `gorm:"autoUpdateTime" json:"updated_at"`
}

// ContentFor returns the content for a platform, falling back to the
// catch-all entry under the empty key when no platform-specific variant
// exists.
func (p *ScheduledPost) ContentFor(platform Platform) string {
	if c, ok := p.Content[platform]; ok {
		return c
	}
	return p.Content[""]
}

// CredentialFor returns the opaque per-platform credential reference
// (author URN, business account ID, webhook URL) attached to the post.
func (p *ScheduledPost) CredentialFor(platform Platform) string {
	if p.Credentials == nil {
		return ""
	}
	return p.Credentials[platform]
}

// IsOverdue reports whether the post should already have been dispatched.
func (p *ScheduledPost) IsOverdue(now time.Time) bool {
	return p.Status == PostStatusScheduled && p.ScheduledFor.Before(now)
}

package core

import (
	"context"
	"time"
)

// CredentialStore resolves a valid access token for a user/platform pair.
// Token refresh is handled upstream; implementations return an error with
// KindAuthError when no usable token exists.
type CredentialStore interface {
	GetValidAccessToken(ctx context.Context, owner string, platform Platform) (string, error)
}

// PostStore is the persistence boundary for scheduled posts. The engine
// mutates status and accumulates per-platform results through it.
type PostStore interface {
	Create(ctx context.Context, post *ScheduledPost) error
	Get(ctx context.Context, id string) (*ScheduledPost, error)

	// LoadDuePosts returns scheduled posts whose scheduled_for is at or
	// before now, oldest first.
	LoadDuePosts(ctx context.Context, now time.Time, limit int) ([]*ScheduledPost, error)

	// MarkProcessing flips a post from scheduled to processing. It returns
	// false when the post was not in scheduled state, which lets concurrent
	// dispatchers race safely.
	MarkProcessing(ctx context.Context, id string) (bool, error)

	// UpdateStatus sets the post status and, when results is non-nil,
	// replaces the per-platform result map.
	UpdateStatus(ctx context.Context, id string, status PostStatus, results map[Platform]PublishResult) error

	// SaveResult merges one platform result into the post's result map
	// without touching the status.
	SaveResult(ctx context.Context, id string, result PublishResult) error

	// CountOverdue counts scheduled posts whose scheduled_for is already past.
	CountOverdue(ctx context.Context, now time.Time) (int64, error)
}

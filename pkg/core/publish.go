package core

import (
	"fmt"
	"time"
)

// PublishRequest is the per-platform dispatch unit. One request is built per
// (post, platform) pair each time a dispatch is attempted; it is ephemeral
// and never persisted.
type PublishRequest struct {
	PostID    string   `json:"post_id"`
	Platform  Platform `json:"platform"`
	Content   string   `json:"content"`
	ImageURLs []string `json:"image_urls,omitempty"`

	// Owner identifies the user whose access token the adapter resolves
	// through the CredentialStore.
	Owner string `json:"owner"`

	// Credential is an opaque per-platform reference: a LinkedIn author URN,
	// an Instagram business account ID, or a Discord webhook URL.
	Credential string `json:"credential,omitempty"`

	// Thread holds the ordered tweet segments for a Twitter thread.
	// Empty means a single post of Content.
	Thread []string `json:"thread,omitempty"`
}

// NewPublishRequest builds the dispatch unit for one target platform of a post.
func NewPublishRequest(post *ScheduledPost, platform Platform) *PublishRequest {
	return &PublishRequest{
		PostID:     post.ID,
		Platform:   platform,
		Content:    post.ContentFor(platform),
		ImageURLs:  post.ImageURLs,
		Owner:      post.Owner,
		Credential: post.CredentialFor(platform),
	}
}

// IdempotencyKey identifies a dispatch regardless of how many attempts it
// takes: one key per (post, platform) pair.
func (r *PublishRequest) IdempotencyKey() string {
	return fmt.Sprintf("%s:%s", r.PostID, r.Platform)
}

// PublishResult is the normalized outcome of one platform publish. Immutable
// once produced; results are accumulated into a per-post map keyed by
// platform.
type PublishResult struct {
	Platform       Platform  `json:"platform"`
	Success        bool      `json:"success"`
	ExternalPostID string    `json:"external_post_id,omitempty"`
	URL            string    `json:"url,omitempty"`
	Error          string    `json:"error,omitempty"`
	ErrorKind      ErrorKind `json:"error_kind,omitempty"`
	Timestamp      time.Time `json:"timestamp"`
}

// Succeeded builds a successful result.
func Succeeded(platform Platform, externalID, url string) *PublishResult {
	return &PublishResult{
		Platform:       platform,
		Success:        true,
		ExternalPostID: externalID,
		URL:            url,
		Timestamp:      time.Now().UTC(),
	}
}

// Failed builds a failure result from a PublishError.
func Failed(platform Platform, err *PublishError) *PublishResult {
	return &PublishResult{
		Platform:  platform,
		Success:   false,
		Error:     err.Error(),
		ErrorKind: err.Kind,
		Timestamp: time.Now().UTC(),
	}
}

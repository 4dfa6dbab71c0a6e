// Package platform holds the per-network publish adapters. Each adapter
// speaks one platform's wire protocol and normalizes every outcome, success
// or failure, into a core.PublishResult; no raw transport error ever escapes
// an adapter.
package platform

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/publora/publora/pkg/core"
)

// Default per-platform character limits. Configurable via WithCharLimit; the
// values themselves are platform contracts, not tuning knobs.
const (
	LinkedInCharLimit  = 3000
	InstagramCharLimit = 2200
	TwitterCharLimit   = 280
	DiscordCharLimit   = 4000
)

const defaultHTTPTimeout = 30 * time.Second

// Adapter publishes one request to one platform. Publish never returns a Go
// error for expected failure modes; failures come back as a result tagged
// with an ErrorKind.
type Adapter interface {
	Platform() core.Platform
	Publish(ctx context.Context, req *core.PublishRequest) *core.PublishResult
}

// settings are the shared adapter knobs. Zero values fall back to each
// adapter's production defaults.
type settings struct {
	client       *http.Client
	baseURL      string
	uploadURL    string
	charLimit    int
	pollInterval time.Duration
	pollAttempts int
	username     string
	avatarURL    string
	logger       *slog.Logger
}

func newSettings(baseURL, uploadURL string, charLimit int) settings {
	return settings{
		client:       &http.Client{Timeout: defaultHTTPTimeout},
		baseURL:      baseURL,
		uploadURL:    uploadURL,
		charLimit:    charLimit,
		pollInterval: time.Second,
		pollAttempts: 5,
		logger:       slog.Default(),
	}
}

// Option configures an adapter.
type Option func(*settings)

// WithHTTPClient replaces the adapter's HTTP client.
func WithHTTPClient(client *http.Client) Option {
	return func(s *settings) {
		if client != nil {
			s.client = client
		}
	}
}

// WithBaseURL points the adapter at a different API host, used by tests.
func WithBaseURL(url string) Option {
	return func(s *settings) { s.baseURL = url }
}

// WithUploadBaseURL points media uploads at a different host. Only Twitter
// uses a separate upload host in production.
func WithUploadBaseURL(url string) Option {
	return func(s *settings) { s.uploadURL = url }
}

// WithCharLimit overrides the platform character limit.
func WithCharLimit(n int) Option {
	return func(s *settings) {
		if n > 0 {
			s.charLimit = n
		}
	}
}

// WithPollInterval sets the Instagram container poll spacing.
func WithPollInterval(d time.Duration) Option {
	return func(s *settings) {
		if d > 0 {
			s.pollInterval = d
		}
	}
}

// WithPollAttempts bounds the Instagram container poll count.
func WithPollAttempts(n int) Option {
	return func(s *settings) {
		if n > 0 {
			s.pollAttempts = n
		}
	}
}

// WithWebhookIdentity sets the username and avatar carried in Discord
// webhook payloads.
func WithWebhookIdentity(username, avatarURL string) Option {
	return func(s *settings) {
		s.username = username
		s.avatarURL = avatarURL
	}
}

// WithLogger sets the adapter's logger.
func WithLogger(logger *slog.Logger) Option {
	return func(s *settings) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// checkLength validates content against the platform limit before any
// network call is made.
func checkLength(text string, limit int) *core.PublishError {
	if n := len([]rune(text)); n > limit {
		return core.NewPublishError(core.KindContentTooLong,
			fmt.Sprintf("content is %d characters, limit is %d", n, limit))
	}
	return nil
}

package ratelimit

import (
	"fmt"
	"sync"
	"time"

	"github.com/publora/publora/pkg/core"
)

// Config is a per-platform request budget.
type Config struct {
	Max    int
	Window time.Duration
}

// DefaultConfigs returns the stock per-platform budgets. LinkedIn caps API
// writes at 500 calls per day; Discord webhooks allow 5 requests per 2s and
// have no daily quota; Instagram content publishing allows 25 posts per day;
// Twitter caps tweet creation at 300 per 3 hours.
func DefaultConfigs() map[core.Platform]Config {
	return map[core.Platform]Config{
		core.PlatformLinkedIn:  {Max: 500, Window: 24 * time.Hour},
		core.PlatformInstagram: {Max: 25, Window: 24 * time.Hour},
		core.PlatformTwitter:   {Max: 300, Window: 3 * time.Hour},
		core.PlatformDiscord:   {Max: 5, Window: 2 * time.Second},
	}
}

// Registry hands out one Limiter per (platform, credential) pair. Limiters
// are created lazily and shared by every caller using the same pair, so a
// platform budget is enforced across concurrent workers.
type Registry struct {
	mu       sync.Mutex
	limiters map[string]*Limiter
	configs  map[core.Platform]Config
	opts     []Option
}

// RegistryOption customizes a Registry.
type RegistryOption func(*Registry)

// WithPlatformLimit overrides the budget for one platform.
func WithPlatformLimit(platform core.Platform, max int, window time.Duration) RegistryOption {
	return func(r *Registry) {
		r.configs[platform] = Config{Max: max, Window: window}
	}
}

// WithLimiterOptions applies extra options to every limiter the registry
// creates (poll interval, test clock).
func WithLimiterOptions(opts ...Option) RegistryOption {
	return func(r *Registry) {
		r.opts = append(r.opts, opts...)
	}
}

// NewRegistry creates a registry with the default per-platform budgets.
func NewRegistry(opts ...RegistryOption) *Registry {
	r := &Registry{
		limiters: make(map[string]*Limiter),
		configs:  DefaultConfigs(),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// For returns the limiter for a (platform, credential) pair, creating it on
// first use.
func (r *Registry) For(platform core.Platform, credential string) *Limiter {
	key := fmt.Sprintf("%s|%s", platform, credential)

	r.mu.Lock()
	defer r.mu.Unlock()
	if l, ok := r.limiters[key]; ok {
		return l
	}

	cfg, ok := r.configs[platform]
	if !ok {
		// Unknown platforms get a conservative budget rather than none.
		cfg = Config{Max: 60, Window: time.Hour}
	}
	l := New(cfg.Max, cfg.Window, r.opts...)
	r.limiters[key] = l
	return l
}

package cache

import (
	"time"

	"github.com/rs/zerolog"

	"github.com/pcoutinho/bolide/internal/feed"
	"github.com/pcoutinho/bolide/internal/storage"
	"github.com/pcoutinho/bolide/internal/telemetry"
	"github.com/pcoutinho/bolide/internal/watch"
)

// Option is a functional option for configuring Cache
type Option func(*Cache)

// WithFeedClient sets the feed client
func WithFeedClient(client feed.Client) Option {
	return func(c *Cache) {
		c.feedClient = client
	}
}

// WithStorage sets the storage implementation
func WithStorage(s storage.Storage) Option {
	return func(c *Cache) {
		c.storage = s
	}
}

// WithSnapshots sets the snapshot store used for startup fallback
func WithSnapshots(s Snapshotter) Option {
	return func(c *Cache) {
		c.snapshots = s
	}
}

// WithWatcher sets the watch rule engine
func WithWatcher(w *watch.Engine) Option {
	return func(c *Cache) {
		c.watcher = w
	}
}

// WithTelemetry sets the telemetry provider
func WithTelemetry(p telemetry.Provider) Option {
	return func(c *Cache) {
		if p != nil {
			c.telemetry = p
		}
	}
}

// WithLogger sets the logger
func WithLogger(logger zerolog.Logger) Option {
	return func(c *Cache) {
		c.logger = logger
	}
}

// WithConfig sets the configuration
func WithConfig(config Config) Option {
	return func(c *Cache) {
		c.config = config
	}
}

// WithQuery sets the upstream feed query
func WithQuery(query feed.FeedQuery) Option {
	return func(c *Cache) {
		c.query = query
	}
}

// WithRefreshInterval sets the refresh interval
func WithRefreshInterval(interval time.Duration) Option {
	return func(c *Cache) {
		c.config.RefreshInterval = interval
	}
}

// WithInitialTimeout sets the initial load timeout
func WithInitialTimeout(timeout time.Duration) Option {
	return func(c *Cache) {
		c.config.InitialTimeout = timeout
	}
}

// WithMaxRetries sets the per-cycle retry budget and backoff base
func WithMaxRetries(retries int, backoff time.Duration) Option {
	return func(c *Cache) {
		c.config.MaxRetries = retries
		c.config.RetryBackoff = backoff
	}
}

// WithCircuitBreaker configures circuit breaker
func WithCircuitBreaker(threshold int, timeout time.Duration) Option {
	return func(c *Cache) {
		c.config.CircuitBreakerThreshold = threshold
		c.config.CircuitBreakerTimeout = timeout
	}
}

// WithSnapshotMaxAge caps snapshot staleness for startup fallback
func WithSnapshotMaxAge(maxAge time.Duration) Option {
	return func(c *Cache) {
		c.config.SnapshotMaxAge = maxAge
	}
}

// WithOnAlert registers a callback fired for every watch rule match
func WithOnAlert(fn func(watch.Match)) Option {
	return func(c *Cache) {
		c.onAlert = fn
	}
}

// Filtering options

// WithOnlyHazardous caches only objects flagged as potentially hazardous
func WithOnlyHazardous(only bool) Option {
	return func(c *Cache) {
		c.config.Filter.OnlyHazardous = only
	}
}

// WithMinDiameter drops objects below the diameter threshold
func WithMinDiameter(km float64) Option {
	return func(c *Cache) {
		c.config.Filter.MinDiameterKm = km
	}
}

// WithOrbitingBodies keeps only objects approaching the named bodies
func WithOrbitingBodies(bodies []string) Option {
	return func(c *Cache) {
		c.config.Filter.OrbitingBodies = bodies
	}
}

// WithApproachWindow keeps only objects approaching within the window
func WithApproachWindow(window time.Duration) Option {
	return func(c *Cache) {
		c.config.Filter.MaxApproachWindow = window
	}
}

// WithFilterConfig sets the complete filter configuration
func WithFilterConfig(filter FilterConfig) Option {
	return func(c *Cache) {
		c.config.Filter = filter
	}
}

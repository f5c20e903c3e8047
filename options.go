package bolide

import (
	"net/http"
	"time"

	"github.com/rs/zerolog"

	"github.com/pcoutinho/bolide/internal/cache"
)

// Option configures a bolide client.
type Option func(*clientConfig) error

// clientConfig accumulates configuration from options before New builds
// the real components from it.
type clientConfig struct {
	config     Config
	classifier EnvClassifier
	httpClient *http.Client

	logger    zerolog.Logger
	loggerSet bool

	telemetryEnabled bool

	watchRules []watchRule
	alertFn    func(Alert)

	adminEnabled   bool
	webhookEnabled bool
}

// watchRule is a named rule registered before the cache exists.
type watchRule struct {
	name       string
	expression string
}

// toCacheOptions maps the facade configuration onto cache options. New
// wires the feed client, storage, and callbacks on top of these.
func (c *clientConfig) toCacheOptions() []cache.Option {
	opts := []cache.Option{
		// Zero disables the refresh loop, so this one always passes through.
		cache.WithRefreshInterval(c.config.Cache.RefreshInterval),
		cache.WithFilterConfig(cache.FilterConfig{
			OnlyHazardous:     c.config.Cache.Filter.OnlyHazardous,
			MinDiameterKm:     c.config.Cache.Filter.MinDiameterKm,
			OrbitingBodies:    c.config.Cache.Filter.OrbitingBodies,
			MaxApproachWindow: c.config.Cache.Filter.MaxApproachWindow,
		}),
	}

	if c.config.Cache.InitialTimeout > 0 {
		opts = append(opts, cache.WithInitialTimeout(c.config.Cache.InitialTimeout))
	}

	if c.config.Feed.MaxRetries > 0 {
		opts = append(opts, cache.WithMaxRetries(c.config.Feed.MaxRetries, c.config.Feed.RetryBackoff))
	}

	if c.config.CircuitBreaker.Threshold > 0 {
		opts = append(opts, cache.WithCircuitBreaker(c.config.CircuitBreaker.Threshold, c.config.CircuitBreaker.Timeout))
	}

	if c.config.Snapshot.MaxAge > 0 {
		opts = append(opts, cache.WithSnapshotMaxAge(c.config.Snapshot.MaxAge))
	}

	return opts
}

// WithEndpoint sets the explicit base address of the feed service. When
// set it is used verbatim; no scheme checks, no trailing-slash trimming.
//
// Example: bolide.WithEndpoint("https://api.nasa.gov/neo/rest/v1")
func WithEndpoint(endpoint string) Option {
	return func(c *clientConfig) error {
		if endpoint == "" {
			return &ConfigError{Field: "feed.endpoint", Message: "cannot be empty"}
		}
		c.config.Feed.Endpoint = endpoint
		return nil
	}
}

// WithOrigin sets the address the client naturally talks to, used when no
// endpoint override is set.
func WithOrigin(origin string) Option {
	return func(c *clientConfig) error {
		c.config.Feed.Origin = origin
		return nil
	}
}

// WithDevFallback sets the address substituted for origins the installed
// classifier marks as development. It does nothing without a classifier.
func WithDevFallback(url string) Option {
	return func(c *clientConfig) error {
		c.config.Feed.DevFallback = url
		return nil
	}
}

// WithEnvClassifier installs the policy that decides whether an origin is
// a development one. Nothing is classified by default; LoopbackClassifier
// is the usual choice.
//
// Example: bolide.WithEnvClassifier(bolide.LoopbackClassifier)
func WithEnvClassifier(fn EnvClassifier) Option {
	return func(c *clientConfig) error {
		if fn == nil {
			return &ConfigError{Field: "feed.classifier", Message: "cannot be nil"}
		}
		c.classifier = fn
		return nil
	}
}

// WithAPIKey sets the API key sent as a bearer token.
func WithAPIKey(apiKey string) Option {
	return func(c *clientConfig) error {
		c.config.Feed.APIKey = apiKey
		return nil
	}
}

// WithFetchTimeout bounds a single fetch against the feed service.
// Default: 30 seconds
func WithFetchTimeout(timeout time.Duration) Option {
	return func(c *clientConfig) error {
		c.config.Feed.FetchTimeout = timeout
		return nil
	}
}

// WithHTTPClient replaces the transport used for feed requests. The fetch
// timeout still applies per request through the context.
func WithHTTPClient(client *http.Client) Option {
	return func(c *clientConfig) error {
		if client == nil {
			return &ConfigError{Field: "feed.http_client", Message: "cannot be nil"}
		}
		c.httpClient = client
		return nil
	}
}

// WithMaxRetries sets the refresh-layer retry budget and the base backoff
// between attempts. A single fetch never retries on its own.
// Default: 3 retries, 500ms backoff
func WithMaxRetries(retries int, backoff time.Duration) Option {
	return func(c *clientConfig) error {
		if retries < 1 {
			return &ConfigError{Field: "feed.max_retries", Message: "must be at least 1"}
		}
		c.config.Feed.MaxRetries = retries
		c.config.Feed.RetryBackoff = backoff
		return nil
	}
}

// WithRefreshInterval sets how often to refresh objects from the feed.
// Zero disables the background loop; Sync still refreshes on demand.
// Default: 5 minutes
//
// Example: bolide.WithRefreshInterval(10 * time.Minute)
func WithRefreshInterval(interval time.Duration) Option {
	return func(c *clientConfig) error {
		c.config.Cache.RefreshInterval = interval
		return nil
	}
}

// WithInitialTimeout bounds the initial load during Start.
// Default: 10 seconds
func WithInitialTimeout(timeout time.Duration) Option {
	return func(c *clientConfig) error {
		c.config.Cache.InitialTimeout = timeout
		return nil
	}
}

// WithHazardousOnly caches only objects flagged potentially hazardous.
// Everything else is still reachable through Object, served straight from
// the feed.
//
// Example: bolide.WithHazardousOnly(true)
func WithHazardousOnly(only bool) Option {
	return func(c *clientConfig) error {
		c.config.Cache.Filter.OnlyHazardous = only
		return nil
	}
}

// WithMinDiameter drops objects whose estimated minimum diameter is below
// the threshold, in kilometers.
//
// Example: bolide.WithMinDiameter(0.14)
func WithMinDiameter(km float64) Option {
	return func(c *clientConfig) error {
		if km < 0 {
			return &ConfigError{Field: "cache.filter.min_diameter_km", Message: "must not be negative"}
		}
		c.config.Cache.Filter.MinDiameterKm = km
		return nil
	}
}

// WithOrbitingBodies keeps only objects with a close approach to any of
// the named bodies. Matching ignores case.
//
// Example: bolide.WithOrbitingBodies("Earth", "Moon")
func WithOrbitingBodies(bodies ...string) Option {
	return func(c *clientConfig) error {
		if len(bodies) == 0 {
			return &ConfigError{Field: "cache.filter.orbiting_bodies", Message: "needs at least one body"}
		}
		c.config.Cache.Filter.OrbitingBodies = bodies
		return nil
	}
}

// WithApproachWindow keeps only objects with a close approach inside the
// window from now.
//
// Example: bolide.WithApproachWindow(30 * 24 * time.Hour)
func WithApproachWindow(window time.Duration) Option {
	return func(c *clientConfig) error {
		if window < 0 {
			return &ConfigError{Field: "cache.filter.max_approach_window", Message: "must not be negative"}
		}
		c.config.Cache.Filter.MaxApproachWindow = window
		return nil
	}
}

// WithWatchRule registers a named expression evaluated against every
// object on each refresh. Matches surface through Alerts and the OnAlert
// callback.
//
// Example: bolide.WithWatchRule("close-pass", `hazardous && miss_distance_lunar < 1.0`)
func WithWatchRule(name, expression string) Option {
	return func(c *clientConfig) error {
		if name == "" {
			return &ConfigError{Field: "watch.name", Message: "cannot be empty"}
		}
		if expression == "" {
			return &ConfigError{Field: "watch.expression", Message: "cannot be empty"}
		}
		c.watchRules = append(c.watchRules, watchRule{name: name, expression: expression})
		return nil
	}
}

// WithOnAlert registers a callback fired once per watch rule match on
// every refresh. The callback runs on the refresh goroutine and should
// return quickly.
func WithOnAlert(fn func(Alert)) Option {
	return func(c *clientConfig) error {
		if fn == nil {
			return &ConfigError{Field: "watch.on_alert", Message: "cannot be nil"}
		}
		c.alertFn = fn
		return nil
	}
}

// WithCircuitBreaker configures the breaker guarding the feed service.
//
// Example: bolide.WithCircuitBreaker(3, 30*time.Second)
func WithCircuitBreaker(threshold int, timeout time.Duration) Option {
	return func(c *clientConfig) error {
		if threshold < 1 {
			return &ConfigError{Field: "circuit_breaker.threshold", Message: "must be at least 1"}
		}
		c.config.CircuitBreaker.Threshold = threshold
		c.config.CircuitBreaker.Timeout = timeout
		return nil
	}
}

// WithSnapshotDir enables disk snapshots in the given directory. On a
// failed initial load the freshest snapshot serves as fallback.
//
// Example: bolide.WithSnapshotDir("/var/lib/bolide")
func WithSnapshotDir(dir string) Option {
	return func(c *clientConfig) error {
		if dir == "" {
			return &ConfigError{Field: "snapshot.dir", Message: "cannot be empty"}
		}
		c.config.Snapshot.Dir = dir
		return nil
	}
}

// WithSnapshotMaxAge caps how stale a snapshot may be and still serve as
// startup fallback.
// Default: 24 hours
func WithSnapshotMaxAge(maxAge time.Duration) Option {
	return func(c *clientConfig) error {
		if maxAge < 0 {
			return &ConfigError{Field: "snapshot.max_age", Message: "must not be negative"}
		}
		c.config.Snapshot.MaxAge = maxAge
		return nil
	}
}

// WithLogger sets the logger for all components. Structured JSON goes
// wherever the logger writes.
//
// Example: bolide.WithLogger(zerolog.New(os.Stderr))
func WithLogger(logger zerolog.Logger) Option {
	return func(c *clientConfig) error {
		c.logger = logger
		c.loggerSet = true
		return nil
	}
}

// WithTelemetry enables OpenTelemetry traces and metrics through the
// globally registered providers.
func WithTelemetry(enabled bool) Option {
	return func(c *clientConfig) error {
		c.telemetryEnabled = enabled
		return nil
	}
}

// WithConfig applies a full Config in one step, replacing the defaults.
// Combine it with LoadConfigFile, and put it before any individual
// options that should win over file values.
func WithConfig(cfg Config) Option {
	return func(c *clientConfig) error {
		c.config = cfg
		c.adminEnabled = cfg.Admin.Port != 0 || cfg.Admin.Token != ""
		c.webhookEnabled = cfg.Webhook.Port != 0 || cfg.Webhook.Secret != ""
		return nil
	}
}

// WithAdminServer enables the embedded admin server.
//
// Routes:
//   - GET  /health                 - liveness, always open
//   - GET  /admin/stats            - cache metrics
//   - POST /admin/invalidate?id=   - drop one object
//   - POST /admin/invalidate-all   - clear the cache
//   - POST /admin/refresh          - force a resync
//
// The /admin routes require the bearer token when one is set. Port 0
// picks a free port; read it from AdminAddr after Start.
//
// Example:
//
//	client, err := bolide.New(
//	    bolide.WithEndpoint("https://api.nasa.gov/neo/rest/v1"),
//	    bolide.WithAdminServer(bolide.AdminConfig{
//	        Port:  19000,
//	        Token: "shared-admin-token",
//	    }),
//	)
func WithAdminServer(config AdminConfig) Option {
	return func(c *clientConfig) error {
		if config.Port < 0 || config.Port > 65535 {
			return &ConfigError{Field: "admin.port", Message: "must be a valid port"}
		}

		c.adminEnabled = true
		c.config.Admin = config
		return nil
	}
}

// WithWebhookServer enables the embedded webhook server so the feed
// service can push invalidations instead of waiting for the next refresh.
//
// The server answers POST /webhook with payloads like:
//
//	{
//	  "event": "object.updated",
//	  "object_ids": ["3542519"],
//	  "timestamp": "2026-03-01T10:30:00Z"
//	}
//
// A feed.updated event triggers a full resync; object.updated drops the
// named objects. When Secret is set, requests must carry a hex HMAC-SHA256
// of the body in X-Bolide-Signature.
func WithWebhookServer(config WebhookConfig) Option {
	return func(c *clientConfig) error {
		if config.Port < 0 || config.Port > 65535 {
			return &ConfigError{Field: "webhook.port", Message: "must be a valid port"}
		}

		c.webhookEnabled = true
		c.config.Webhook = config
		return nil
	}
}

package bolide

import (
	"time"
)

// Config holds all configuration for a bolide client.
type Config struct {
	// Feed configures the connection to the feed service
	Feed FeedConfig `mapstructure:"feed"`

	// Cache configures refresh and filtering behavior
	Cache CacheConfig `mapstructure:"cache"`

	// CircuitBreaker configures upstream failure handling
	CircuitBreaker CircuitBreakerConfig `mapstructure:"circuit_breaker"`

	// Snapshot configures the disk fallback
	Snapshot SnapshotConfig `mapstructure:"snapshot"`

	// Admin configures the embedded admin server
	Admin AdminConfig `mapstructure:"admin"`

	// Webhook configures the embedded webhook server
	Webhook WebhookConfig `mapstructure:"webhook"`
}

// FeedConfig configures the connection to the feed service.
type FeedConfig struct {
	// Endpoint is the explicit base address override. When non-empty it is
	// used verbatim and wins over Origin and DevFallback.
	Endpoint string `mapstructure:"endpoint"`

	// Origin is the address the client would naturally talk to, used when
	// Endpoint is empty.
	Origin string `mapstructure:"origin"`

	// DevFallback replaces Origin when an installed classifier marks it as
	// a development origin. Ignored without a classifier.
	DevFallback string `mapstructure:"dev_fallback"`

	// APIKey is an optional bearer token
	APIKey string `mapstructure:"api_key"`

	// FetchTimeout bounds a single fetch; 30s when zero
	FetchTimeout time.Duration `mapstructure:"fetch_timeout"`

	// MaxRetries and RetryBackoff shape the refresh-layer retry policy.
	// A single fetch never retries on its own.
	MaxRetries   int           `mapstructure:"max_retries"`
	RetryBackoff time.Duration `mapstructure:"retry_backoff"`
}

// CacheConfig configures cache behavior.
type CacheConfig struct {
	// RefreshInterval determines how often to refresh from the feed.
	// Zero disables the background loop; Sync still works.
	RefreshInterval time.Duration `mapstructure:"refresh_interval"`

	// InitialTimeout bounds the initial load during Start
	InitialTimeout time.Duration `mapstructure:"initial_timeout"`

	// Filter selects which objects are worth caching
	Filter FilterConfig `mapstructure:"filter"`
}

// FilterConfig selects which objects are worth caching. Objects that fail
// a rule are served straight from the feed instead.
type FilterConfig struct {
	// OnlyHazardous keeps only objects flagged potentially hazardous
	OnlyHazardous bool `mapstructure:"only_hazardous"`

	// MinDiameterKm drops objects smaller than this estimated minimum
	MinDiameterKm float64 `mapstructure:"min_diameter_km"`

	// OrbitingBodies keeps objects approaching any of these bodies
	OrbitingBodies []string `mapstructure:"orbiting_bodies"`

	// MaxApproachWindow keeps objects with an approach inside the window
	MaxApproachWindow time.Duration `mapstructure:"max_approach_window"`
}

// CircuitBreakerConfig configures the circuit breaker.
type CircuitBreakerConfig struct {
	// Threshold is the number of consecutive failures before opening
	Threshold int `mapstructure:"threshold"`

	// Timeout is how long to wait before attempting recovery
	Timeout time.Duration `mapstructure:"timeout"`
}

// SnapshotConfig configures the disk snapshot fallback.
type SnapshotConfig struct {
	// Dir is where snapshots live; empty disables them
	Dir string `mapstructure:"dir"`

	// MaxAge rejects snapshots older than this at load; zero accepts any
	MaxAge time.Duration `mapstructure:"max_age"`
}

// AdminConfig configures the embedded admin server.
type AdminConfig struct {
	// Port is where the admin server listens; 0 picks a free port
	Port int `mapstructure:"port"`

	// Token guards the /admin routes as a bearer token; empty disables auth
	Token string `mapstructure:"token"`
}

// WebhookConfig configures the embedded webhook server.
type WebhookConfig struct {
	// Port is where the webhook server listens; 0 picks a free port
	Port int `mapstructure:"port"`

	// Secret is the shared HMAC-SHA256 key; empty disables verification
	Secret string `mapstructure:"secret"`
}

// DefaultConfig returns the recommended defaults.
func DefaultConfig() Config {
	return Config{
		Feed: FeedConfig{
			FetchTimeout: 30 * time.Second,
			MaxRetries:   3,
			RetryBackoff: 500 * time.Millisecond,
		},
		Cache: CacheConfig{
			RefreshInterval: 5 * time.Minute,
			InitialTimeout:  10 * time.Second,
		},
		CircuitBreaker: CircuitBreakerConfig{
			Threshold: 3,
			Timeout:   30 * time.Second,
		},
		Snapshot: SnapshotConfig{
			MaxAge: 24 * time.Hour,
		},
	}
}

// Validate reports the first configuration problem it finds. The deeper
// layers validate their own slices again; this catches facade-level
// mistakes before any of them are built.
func (c Config) Validate() error {
	if c.Feed.Endpoint == "" && c.Feed.Origin == "" {
		return &ConfigError{Field: "feed.endpoint", Message: "an endpoint or origin is required"}
	}

	if c.Feed.FetchTimeout < 0 {
		return &ConfigError{Field: "feed.fetch_timeout", Message: "must not be negative"}
	}

	if c.Feed.MaxRetries < 1 {
		return &ConfigError{Field: "feed.max_retries", Message: "must be at least 1"}
	}

	if c.Cache.RefreshInterval < 0 {
		return &ConfigError{Field: "cache.refresh_interval", Message: "must not be negative"}
	}

	if c.CircuitBreaker.Threshold < 1 {
		return &ConfigError{Field: "circuit_breaker.threshold", Message: "must be at least 1"}
	}

	if c.Admin.Port < 0 || c.Admin.Port > 65535 {
		return &ConfigError{Field: "admin.port", Message: "must be a valid port"}
	}

	if c.Webhook.Port < 0 || c.Webhook.Port > 65535 {
		return &ConfigError{Field: "webhook.port", Message: "must be a valid port"}
	}

	return nil
}

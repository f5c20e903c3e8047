// Package bolide provides a caching client for near-Earth-object feed
// services, with bounded fetches, a closed failure taxonomy, and local
// filtering of what gets cached.
package bolide

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/pcoutinho/bolide/internal/cache"
	"github.com/pcoutinho/bolide/internal/feed"
	"github.com/pcoutinho/bolide/internal/logging"
	"github.com/pcoutinho/bolide/internal/server"
	"github.com/pcoutinho/bolide/internal/storage"
	"github.com/pcoutinho/bolide/internal/telemetry"
	"github.com/pcoutinho/bolide/internal/watch"
)

// shutdownTimeout bounds Close as a whole.
const shutdownTimeout = 5 * time.Second

// Client is the main entry point for bolide.
// It serves near-Earth objects from a local cache kept fresh by a
// background refresh loop, with the feed service as fallback.
type Client struct {
	cache  *cache.Cache
	logger zerolog.Logger

	telemetry telemetry.Provider

	admin   *server.AdminServer
	webhook *server.WebhookServer
}

// New creates a new bolide client with the given options.
//
// Example:
//
//	client, err := bolide.New(
//	    bolide.WithEndpoint("https://api.nasa.gov/neo/rest/v1"),
//	    bolide.WithRefreshInterval(5 * time.Minute),
//	    bolide.WithHazardousOnly(true),
//	)
func New(opts ...Option) (*Client, error) {
	cfg := &clientConfig{config: DefaultConfig()}

	// Apply options
	for _, opt := range opts {
		if err := opt(cfg); err != nil {
			return nil, err
		}
	}

	if err := cfg.config.Validate(); err != nil {
		return nil, err
	}

	logger := cfg.logger
	if !cfg.loggerSet {
		logger = logging.Default()
	}

	// An explicit endpoint wins; otherwise the origin resolves, possibly
	// through the classifier. Validate already guaranteed one of the two.
	resolver := Resolver{
		Override:    cfg.config.Feed.Endpoint,
		DevFallback: cfg.config.Feed.DevFallback,
		Classifier:  cfg.classifier,
	}
	baseURL := resolver.BaseURL(cfg.config.Feed.Origin)

	feedClient := feed.NewHTTPClient(feed.Config{
		BaseURL:      baseURL,
		APIKey:       cfg.config.Feed.APIKey,
		FetchTimeout: cfg.config.Feed.FetchTimeout,
		HTTPClient:   cfg.httpClient,
		Logger:       logger,
	})

	memStorage, err := storage.NewMemoryStorage(storage.DefaultConfig())
	if err != nil {
		return nil, fmt.Errorf("failed to build storage: %w", err)
	}

	cacheOpts := append(cfg.toCacheOptions(),
		cache.WithFeedClient(feedClient),
		cache.WithStorage(memStorage),
		cache.WithLogger(logger),
	)

	if cfg.config.Snapshot.Dir != "" {
		disk, err := storage.NewDiskStorage(cfg.config.Snapshot.Dir)
		if err != nil {
			return nil, fmt.Errorf("failed to open snapshot dir: %w", err)
		}
		cacheOpts = append(cacheOpts, cache.WithSnapshots(disk))
	}

	var provider telemetry.Provider
	if cfg.telemetryEnabled {
		otelProvider, err := telemetry.NewOTel()
		if err != nil {
			return nil, fmt.Errorf("failed to initialize telemetry: %w", err)
		}
		provider = otelProvider
		cacheOpts = append(cacheOpts, cache.WithTelemetry(provider))
	}

	if cfg.alertFn != nil {
		fn := cfg.alertFn
		cacheOpts = append(cacheOpts, cache.WithOnAlert(func(m watch.Match) {
			fn(Alert{Rule: m.Rule, Object: toPublicObject(m.Object)})
		}))
	}

	cacheClient, err := cache.New(cacheOpts...)
	if err != nil {
		return nil, err
	}

	for _, rule := range cfg.watchRules {
		if err := cacheClient.AddWatchRule(rule.name, rule.expression); err != nil {
			return nil, fmt.Errorf("invalid watch rule %q: %w", rule.name, err)
		}
	}

	client := &Client{
		cache:     cacheClient,
		logger:    logger,
		telemetry: provider,
	}

	if cfg.adminEnabled {
		client.admin = server.NewAdminServer(cacheClient, cfg.config.Admin.Port, cfg.config.Admin.Token, logger)
	}

	if cfg.webhookEnabled {
		client.webhook = server.NewWebhookServer(cacheClient, cfg.config.Webhook.Port, cfg.config.Webhook.Secret, logger)
	}

	return client, nil
}

// Start loads the initial object set and begins background processes.
// It blocks until the initial load completes.
//
// The initial load has a timeout (default 10 seconds) configured via
// WithInitialTimeout. If it fails and no usable snapshot exists, Start
// returns an error.
//
// After the initial load, background refresh runs at the configured
// interval, and any enabled admin or webhook server starts listening.
func (c *Client) Start(ctx context.Context) error {
	if err := c.cache.Start(ctx); err != nil {
		return wrapError(err)
	}

	if c.admin != nil {
		if err := c.admin.Start(); err != nil {
			_ = c.cache.Stop()
			return fmt.Errorf("failed to start admin server: %w", err)
		}
	}

	if c.webhook != nil {
		if err := c.webhook.Start(); err != nil {
			if c.admin != nil {
				_ = c.admin.Stop(context.Background())
			}
			_ = c.cache.Stop()
			return fmt.Errorf("failed to start webhook server: %w", err)
		}
	}

	return nil
}

// Sync forces an immediate refresh from the feed service, outside the
// regular refresh schedule.
func (c *Client) Sync(ctx context.Context) error {
	return wrapError(c.cache.Sync(ctx))
}

// Close gracefully shuts down the client: embedded servers first, then
// the refresh loop, storage, and telemetry. A final snapshot is written
// when snapshots are enabled. The first error wins but shutdown always
// runs to completion.
func (c *Client) Close() error {
	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	var firstErr error

	if c.webhook != nil {
		if err := c.webhook.Stop(ctx); err != nil {
			c.logger.Warn().Err(err).Msg("webhook server shutdown failed")
			firstErr = fmt.Errorf("webhook server shutdown: %w", err)
		}
	}

	if c.admin != nil {
		if err := c.admin.Stop(ctx); err != nil {
			c.logger.Warn().Err(err).Msg("admin server shutdown failed")
			if firstErr == nil {
				firstErr = fmt.Errorf("admin server shutdown: %w", err)
			}
		}
	}

	if err := c.cache.Stop(); err != nil && firstErr == nil {
		firstErr = err
	}

	if c.telemetry != nil {
		if err := c.telemetry.Shutdown(ctx); err != nil && firstErr == nil {
			firstErr = fmt.Errorf("telemetry shutdown: %w", err)
		}
	}

	return firstErr
}

// Objects returns all cached objects sorted by ID.
func (c *Client) Objects(ctx context.Context) ([]Object, error) {
	objects, err := c.cache.Objects(ctx)
	if err != nil {
		return nil, wrapError(err)
	}
	return toPublicObjects(objects), nil
}

// Object returns a single object by its ID. Cache misses fall through to
// the feed service, so objects excluded by filters are still reachable.
//
// Example:
//
//	obj, err := client.Object(ctx, "3542519")
//	if bolide.IsNotFound(err) {
//	    // unknown ID
//	}
func (c *Client) Object(ctx context.Context, id string) (*Object, error) {
	obj, err := c.cache.Object(ctx, id)
	if err != nil {
		return nil, wrapError(err)
	}

	public := toPublicObject(*obj)
	return &public, nil
}

// Hazardous returns the cached objects flagged potentially hazardous,
// sorted by ID.
func (c *Client) Hazardous(ctx context.Context) ([]Object, error) {
	objects, err := c.cache.Hazardous(ctx)
	if err != nil {
		return nil, wrapError(err)
	}
	return toPublicObjects(objects), nil
}

// Alerts returns the watch rule matches from the most recent refresh.
func (c *Client) Alerts() []Alert {
	matches := c.cache.Alerts()

	alerts := make([]Alert, 0, len(matches))
	for _, m := range matches {
		alerts = append(alerts, Alert{Rule: m.Rule, Object: toPublicObject(m.Object)})
	}
	return alerts
}

// AddWatchRule registers a named expression evaluated against every
// object on each refresh. Names are unique; registering a taken name
// fails.
func (c *Client) AddWatchRule(name, expression string) error {
	if err := c.cache.AddWatchRule(name, expression); err != nil {
		return fmt.Errorf("invalid watch rule %q: %w", name, err)
	}
	return nil
}

// RemoveWatchRule drops a watch rule. It reports whether the rule
// existed.
func (c *Client) RemoveWatchRule(name string) bool {
	return c.cache.RemoveWatchRule(name)
}

// InvalidateObject removes one object from the cache. It will be
// re-fetched on the next lookup or refresh.
func (c *Client) InvalidateObject(ctx context.Context, id string) error {
	return wrapError(c.cache.InvalidateObject(ctx, id))
}

// InvalidateAll clears the cache. Objects are re-fetched on the next
// lookup or refresh.
func (c *Client) InvalidateAll(ctx context.Context) error {
	return wrapError(c.cache.InvalidateAll(ctx))
}

// Health checks that the feed service is reachable.
func (c *Client) Health(ctx context.Context) error {
	return wrapError(c.cache.HealthCheck(ctx))
}

// Metrics returns current cache and refresh metrics.
func (c *Client) Metrics() Metrics {
	return toPublicMetrics(c.cache.Stats())
}

// AdminAddr returns the admin server listen address after Start, or ""
// when the admin server is disabled. Useful with port 0.
func (c *Client) AdminAddr() string {
	if c.admin == nil {
		return ""
	}
	return c.admin.Addr()
}

// WebhookAddr returns the webhook server listen address after Start, or
// "" when the webhook server is disabled.
func (c *Client) WebhookAddr() string {
	if c.webhook == nil {
		return ""
	}
	return c.webhook.Addr()
}

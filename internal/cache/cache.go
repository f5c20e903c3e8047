package cache

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/pcoutinho/bolide/internal/feed"
	"github.com/pcoutinho/bolide/internal/logging"
	"github.com/pcoutinho/bolide/internal/neo"
	"github.com/pcoutinho/bolide/internal/storage"
	"github.com/pcoutinho/bolide/internal/telemetry"
	"github.com/pcoutinho/bolide/internal/watch"
	"github.com/pcoutinho/bolide/pkg/circuit"
)

// refreshTimeout bounds one background refresh cycle, retries included
const refreshTimeout = 30 * time.Second

// Snapshotter persists the object set across restarts
type Snapshotter interface {
	SaveSnapshot(ctx context.Context, objects map[string]neo.Object) error
	LoadSnapshot(ctx context.Context, maxAge time.Duration) (map[string]neo.Object, error)
}

// Cache is the main orchestrator that coordinates all components
type Cache struct {
	// Dependencies (injected)
	feedClient feed.Client
	storage    storage.Storage
	snapshots  Snapshotter
	watcher    *watch.Engine
	breaker    *circuit.Breaker
	telemetry  telemetry.Provider
	logger     zerolog.Logger

	// Configuration
	config Config
	query  feed.FeedQuery

	// Alert delivery
	onAlert func(watch.Match)

	// State management
	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	// Refresh state
	mu          sync.RWMutex
	lastRefresh time.Time
	lastTotal   int
	lastCached  int
	alerts      []watch.Match
}

// New creates a new cache with the given options
func New(opts ...Option) (*Cache, error) {
	c := &Cache{
		config:    DefaultConfig(),
		telemetry: telemetry.NewNoOp(),
		logger:    logging.Nop,
	}

	// Apply options
	for _, opt := range opts {
		opt(c)
	}

	// Validate required dependencies
	if c.feedClient == nil {
		return nil, fmt.Errorf("feed client is required")
	}
	if c.storage == nil {
		return nil, fmt.Errorf("storage is required")
	}

	// Validate config
	if err := c.config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	if c.watcher == nil {
		c.watcher = watch.New(c.logger)
	}

	c.breaker = circuit.New(circuit.Config{
		MaxFailures: c.config.CircuitBreakerThreshold,
		Timeout:     c.config.CircuitBreakerTimeout,
		OnStateChange: func(from, to circuit.State) {
			c.telemetry.RecordCircuitState(context.Background(), to.String())
			c.logger.Warn().
				Str("from", from.String()).
				Str("to", to.String()).
				Msg("circuit breaker state changed")
		},
	})

	return c, nil
}

// Start loads the initial object set and starts background processes
func (c *Cache) Start(ctx context.Context) error {
	c.ctx, c.cancel = context.WithCancel(ctx)

	loadCtx, cancel := context.WithTimeout(c.ctx, c.config.InitialTimeout)
	defer cancel()

	if err := c.refresh(loadCtx); err != nil {
		if restoreErr := c.restoreSnapshot(loadCtx); restoreErr != nil {
			if c.snapshots == nil {
				return fmt.Errorf("initial feed load failed: %w", err)
			}
			return fmt.Errorf("initial feed load failed and snapshot fallback unavailable (%v): %w", restoreErr, err)
		}

		c.logger.Warn().
			Err(err).
			Msg("initial feed load failed, serving from snapshot")
	}

	if c.config.RefreshInterval > 0 {
		c.wg.Add(1)
		go c.refreshLoop()
	}

	return nil
}

// Sync forces one refresh cycle
func (c *Cache) Sync(ctx context.Context) error {
	select {
	case <-ctx.Done():
		return ctx.Err()
	default:
	}

	return c.refresh(ctx)
}

// Stop gracefully stops the cache
func (c *Cache) Stop() error {
	if c.cancel != nil {
		c.cancel()
	}
	c.wg.Wait()

	// Persist what we have for the next start
	if c.snapshots != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()

		objects, err := c.collectObjects(ctx)
		if err == nil && len(objects) > 0 {
			if err := c.snapshots.SaveSnapshot(ctx, objects); err != nil {
				c.logger.Warn().Err(err).Msg("failed to save shutdown snapshot")
			}
		}
	}

	return c.storage.Close()
}

// Objects returns all cached objects sorted by id
func (c *Cache) Objects(ctx context.Context) ([]neo.Object, error) {
	ids, err := c.storage.List(ctx)
	if err != nil {
		return nil, err
	}

	objects := make([]neo.Object, 0, len(ids))
	for _, id := range ids {
		object, err := c.storage.Get(ctx, id)
		if err != nil {
			// Expired between List and Get
			continue
		}
		objects = append(objects, *object)
	}

	sort.Slice(objects, func(i, j int) bool {
		return objects[i].ID < objects[j].ID
	})

	return objects, nil
}

// Hazardous returns cached objects flagged as potentially hazardous
func (c *Cache) Hazardous(ctx context.Context) ([]neo.Object, error) {
	objects, err := c.Objects(ctx)
	if err != nil {
		return nil, err
	}

	hazardous := make([]neo.Object, 0, len(objects))
	for _, object := range objects {
		if object.Hazardous {
			hazardous = append(hazardous, object)
		}
	}

	return hazardous, nil
}

// Object returns a single object. A cache miss falls through to the feed
// unless the circuit is open.
func (c *Cache) Object(ctx context.Context, id string) (*neo.Object, error) {
	object, err := c.storage.Get(ctx, id)
	if err == nil {
		c.telemetry.RecordCacheHit(ctx, id)
		return object, nil
	}

	if !errors.Is(err, storage.ErrNotFound) {
		return nil, err
	}

	c.telemetry.RecordCacheMiss(ctx, id)

	if c.breaker.GetState() == circuit.StateOpen {
		return nil, neo.NewNotFoundError("object", id)
	}

	fetched, err := c.feedClient.Object(ctx, id)
	if err != nil {
		return nil, err
	}

	// Cache it when it passes the filter; return it either way
	if c.config.Filter.ShouldCache(*fetched, time.Now()) {
		if err := c.storage.Set(ctx, fetched.ID, *fetched, c.objectTTL()); err != nil {
			c.logger.Warn().Err(err).Str("object_id", id).Msg("failed to cache fetched object")
		}
	}

	return fetched, nil
}

// Alerts returns the matches from the most recent watch evaluation
func (c *Cache) Alerts() []watch.Match {
	c.mu.RLock()
	defer c.mu.RUnlock()

	alerts := make([]watch.Match, len(c.alerts))
	copy(alerts, c.alerts)
	return alerts
}

// AddWatchRule registers a watch rule evaluated after every refresh
func (c *Cache) AddWatchRule(name, expression string) error {
	return c.watcher.AddRule(name, expression)
}

// RemoveWatchRule unregisters a watch rule
func (c *Cache) RemoveWatchRule(name string) bool {
	return c.watcher.RemoveRule(name)
}

// InvalidateObject removes an object from cache
func (c *Cache) InvalidateObject(ctx context.Context, id string) error {
	return c.storage.Delete(ctx, id)
}

// InvalidateAll clears the entire cache
func (c *Cache) InvalidateAll(ctx context.Context) error {
	return c.storage.Clear(ctx)
}

// HealthCheck verifies the upstream feed is reachable
func (c *Cache) HealthCheck(ctx context.Context) error {
	return c.feedClient.HealthCheck(ctx)
}

// refreshLoop runs the periodic refresh in background
func (c *Cache) refreshLoop() {
	defer c.wg.Done()

	ticker := time.NewTicker(c.config.RefreshInterval)
	defer ticker.Stop()

	for {
		select {
		case <-c.ctx.Done():
			return

		case <-ticker.C:
			ctx, cancel := context.WithTimeout(c.ctx, refreshTimeout)

			if err := c.refresh(ctx); err != nil {
				c.logger.Warn().Err(err).Msg("background refresh failed")
			}

			cancel()
		}
	}
}

// refresh runs one cycle through the circuit breaker
func (c *Cache) refresh(ctx context.Context) error {
	start := time.Now()

	err := c.breaker.Call(ctx, c.refreshObjects)

	elapsed := time.Since(start)

	if err != nil {
		c.telemetry.RecordRefresh(ctx, false, elapsed, 0)
		return err
	}

	c.mu.RLock()
	cached := c.lastCached
	c.mu.RUnlock()

	c.telemetry.RecordRefresh(ctx, true, elapsed, cached)
	c.telemetry.RecordObjectCount(ctx, c.storage.Metrics().Size)

	return nil
}

// refreshObjects fetches the feed, filters it and stores the survivors
func (c *Cache) refreshObjects(ctx context.Context) error {
	objects, err := c.fetchWithRetry(ctx)
	if err != nil {
		return err
	}

	now := time.Now()
	ttl := c.objectTTL()
	kept := make([]neo.Object, 0, len(objects))

	for _, object := range objects {
		if !c.config.Filter.ShouldCache(object, now) {
			continue
		}

		if err := c.storage.Set(ctx, object.ID, object, ttl); err != nil {
			return fmt.Errorf("failed to cache object %s: %w", object.ID, err)
		}

		kept = append(kept, object)
	}

	// Ristretto buffers admissions; flush so readers see this refresh
	if w, ok := c.storage.(interface{ Wait() }); ok {
		w.Wait()
	}

	c.mu.Lock()
	c.lastRefresh = time.Now()
	c.lastTotal = len(objects)
	c.lastCached = len(kept)
	c.mu.Unlock()

	savings := c.config.Filter.EstimateMemorySavings(len(objects), len(kept))
	c.logger.Info().
		Int("total", len(objects)).
		Int("cached", len(kept)).
		Str("savings", savings.String()).
		Msg("feed refreshed")

	c.evaluateWatchRules(ctx, kept, now)

	if c.snapshots != nil {
		c.saveSnapshot(ctx, kept)
	}

	return nil
}

// fetchWithRetry performs up to MaxRetries feed fetches with linear backoff.
// Each attempt is a single bounded call; retrying is owned here.
func (c *Cache) fetchWithRetry(ctx context.Context) ([]neo.Object, error) {
	var lastErr error

	for attempt := 1; attempt <= c.config.MaxRetries; attempt++ {
		start := time.Now()
		objects, err := c.feedClient.Feed(ctx, c.query)
		elapsed := time.Since(start)

		if err == nil {
			c.telemetry.RecordFetch(ctx, "success", elapsed)
			return objects, nil
		}

		lastErr = err

		outcome := "unknown_error"
		if fe, ok := neo.AsFetchError(err); ok {
			outcome = fe.Kind.String()
		}
		c.telemetry.RecordFetch(ctx, outcome, elapsed)

		c.logger.Warn().
			Err(err).
			Int("attempt", attempt).
			Int("max_retries", c.config.MaxRetries).
			Msg("feed fetch failed")

		// A dead context or a config problem will not heal on retry
		if ctx.Err() != nil || neo.IsValidationError(err) {
			break
		}

		if attempt < c.config.MaxRetries {
			select {
			case <-ctx.Done():
				return nil, fmt.Errorf("feed fetch aborted: %w", ctx.Err())
			case <-time.After(c.config.RetryBackoff * time.Duration(attempt)):
			}
		}
	}

	return nil, fmt.Errorf("feed fetch failed after %d attempts: %w", c.config.MaxRetries, lastErr)
}

// evaluateWatchRules runs the rule engine over the refreshed set
func (c *Cache) evaluateWatchRules(ctx context.Context, objects []neo.Object, now time.Time) {
	if c.watcher.Len() == 0 {
		return
	}

	matches := c.watcher.Evaluate(objects, now)

	c.mu.Lock()
	c.alerts = matches
	c.mu.Unlock()

	for _, match := range matches {
		c.telemetry.RecordWatchMatch(ctx, match.Rule)

		c.logger.Info().
			Str("rule", match.Rule).
			Str("object_id", match.Object.ID).
			Str("object_name", match.Object.Name).
			Msg("watch rule matched")

		if c.onAlert != nil {
			c.onAlert(match)
		}
	}
}

// saveSnapshot persists the refreshed set for startup fallback
func (c *Cache) saveSnapshot(ctx context.Context, objects []neo.Object) {
	snapshot := make(map[string]neo.Object, len(objects))
	for _, object := range objects {
		snapshot[object.ID] = object
	}

	if err := c.snapshots.SaveSnapshot(ctx, snapshot); err != nil {
		c.logger.Warn().Err(err).Msg("failed to save snapshot")
	}
}

// restoreSnapshot seeds storage from the last snapshot
func (c *Cache) restoreSnapshot(ctx context.Context) error {
	if c.snapshots == nil {
		return fmt.Errorf("no snapshot store configured")
	}

	snapshot, err := c.snapshots.LoadSnapshot(ctx, c.config.SnapshotMaxAge)
	if err != nil {
		return err
	}
	if len(snapshot) == 0 {
		return fmt.Errorf("snapshot is empty")
	}

	// Snapshot data has no TTL: stale data beats no data until the feed
	// comes back
	for id, object := range snapshot {
		if err := c.storage.Set(ctx, id, object, 0); err != nil {
			return fmt.Errorf("failed to restore object %s: %w", id, err)
		}
	}

	if w, ok := c.storage.(interface{ Wait() }); ok {
		w.Wait()
	}

	c.mu.Lock()
	c.lastCached = len(snapshot)
	c.lastTotal = len(snapshot)
	c.mu.Unlock()

	return nil
}

// collectObjects drains storage into a snapshot map
func (c *Cache) collectObjects(ctx context.Context) (map[string]neo.Object, error) {
	ids, err := c.storage.List(ctx)
	if err != nil {
		return nil, err
	}

	objects := make(map[string]neo.Object, len(ids))
	for _, id := range ids {
		object, err := c.storage.Get(ctx, id)
		if err != nil {
			continue
		}
		objects[id] = *object
	}

	return objects, nil
}

// objectTTL returns the storage TTL for refreshed objects. Twice the
// interval keeps data alive across one missed cycle.
func (c *Cache) objectTTL() time.Duration {
	if c.config.RefreshInterval <= 0 {
		return 0
	}
	return 2 * c.config.RefreshInterval
}

// Stats reports cache state for the admin surface
func (c *Cache) Stats() Stats {
	c.mu.RLock()
	lastRefresh := c.lastRefresh
	lastTotal := c.lastTotal
	lastCached := c.lastCached
	alertCount := len(c.alerts)
	c.mu.RUnlock()

	breakerStats := c.breaker.GetStats()

	return Stats{
		Storage:          c.storage.Metrics(),
		LastRefresh:      lastRefresh,
		LastFeedTotal:    lastTotal,
		LastFeedCached:   lastCached,
		ConsecutiveFails: breakerStats.Failures,
		CircuitState:     breakerStats.State.String(),
		CircuitOpen:      breakerStats.State == circuit.StateOpen,
		WatchRules:       c.watcher.Rules(),
		ActiveAlerts:     alertCount,
		Savings:          c.config.Filter.EstimateMemorySavings(lastTotal, lastCached),
	}
}

// Stats represents cache state
type Stats struct {
	Storage          storage.Metrics
	LastRefresh      time.Time
	LastFeedTotal    int
	LastFeedCached   int
	ConsecutiveFails int
	CircuitState     string
	CircuitOpen      bool
	WatchRules       []string
	ActiveAlerts     int
	Savings          MemorySavings
}

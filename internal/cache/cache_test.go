package cache

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pcoutinho/bolide/internal/feed"
	"github.com/pcoutinho/bolide/internal/neo"
	"github.com/pcoutinho/bolide/internal/storage"
	"github.com/pcoutinho/bolide/internal/watch"
	"github.com/pcoutinho/bolide/pkg/circuit"
)

// fakeSnapshots is an in-memory Snapshotter for lifecycle tests
type fakeSnapshots struct {
	mu        sync.Mutex
	saved     map[string]neo.Object
	saveCalls int
	saveErr   error
	data      map[string]neo.Object
	loadErr   error
	maxAge    time.Duration
}

func (f *fakeSnapshots) SaveSnapshot(ctx context.Context, objects map[string]neo.Object) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.saveCalls++
	if f.saveErr != nil {
		return f.saveErr
	}
	f.saved = objects
	return nil
}

func (f *fakeSnapshots) LoadSnapshot(ctx context.Context, maxAge time.Duration) (map[string]neo.Object, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.maxAge = maxAge
	if f.loadErr != nil {
		return nil, f.loadErr
	}
	return f.data, nil
}

func (f *fakeSnapshots) savedCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.saveCalls
}

func feedDown() error {
	return neo.NewFetchError(neo.FailureNetwork, "https://api.nasa.gov/neo/rest/v1/feed", 0,
		errors.New("connection refused"))
}

// -----------------------------------------------------------------------------
// Construction
// -----------------------------------------------------------------------------

func TestNew_Defaults(t *testing.T) {
	c, err := New(
		WithFeedClient(feed.NewMockClient()),
		WithStorage(storage.NewMockStorage()),
	)
	require.NoError(t, err)
	require.NotNil(t, c)

	stats := c.Stats()
	assert.Equal(t, "closed", stats.CircuitState)
	assert.False(t, stats.CircuitOpen)
	assert.Empty(t, stats.WatchRules)
	assert.True(t, stats.LastRefresh.IsZero())
}

func TestNew_RequiresFeedClient(t *testing.T) {
	_, err := New(WithStorage(storage.NewMockStorage()))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "feed client is required")
}

func TestNew_RequiresStorage(t *testing.T) {
	_, err := New(WithFeedClient(feed.NewMockClient()))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "storage is required")
}

func TestNew_RejectsInvalidConfig(t *testing.T) {
	_, err := New(
		WithFeedClient(feed.NewMockClient()),
		WithStorage(storage.NewMockStorage()),
		WithInitialTimeout(0),
	)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid config")
}

// -----------------------------------------------------------------------------
// Lifecycle
// -----------------------------------------------------------------------------

func TestCache_StartAndStop(t *testing.T) {
	client := feed.NewMockClient()
	client.AddObject(filterObject("3542519", true, 0.37, approachAt("Earth", 5)))
	client.AddObject(filterObject("2099942", false, 0.31, approachAt("Earth", 44)))

	store := storage.NewMockStorage()
	snapshots := &fakeSnapshots{}

	c, err := New(
		WithFeedClient(client),
		WithStorage(store),
		WithSnapshots(snapshots),
		WithRefreshInterval(0),
		WithMaxRetries(1, 0),
	)
	require.NoError(t, err)

	require.NoError(t, c.Start(context.Background()))
	assert.Equal(t, 2, store.Len())

	// One snapshot from the initial refresh, one from shutdown
	require.NoError(t, c.Stop())
	assert.Equal(t, 2, snapshots.savedCount())
	assert.Len(t, snapshots.saved, 2)
}

func TestCache_Start_InitialLoadFails_NoSnapshots(t *testing.T) {
	client := feed.NewMockClient()
	client.FeedFunc = func(ctx context.Context, query feed.FeedQuery) ([]neo.Object, error) {
		return nil, feedDown()
	}

	c, err := New(
		WithFeedClient(client),
		WithStorage(storage.NewMockStorage()),
		WithMaxRetries(1, 0),
	)
	require.NoError(t, err)

	err = c.Start(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "initial feed load failed")

	require.NoError(t, c.Stop())
}

func TestCache_Start_SnapshotFallback(t *testing.T) {
	client := feed.NewMockClient()
	client.FeedFunc = func(ctx context.Context, query feed.FeedQuery) ([]neo.Object, error) {
		return nil, feedDown()
	}

	store := storage.NewMockStorage()
	snapshots := &fakeSnapshots{
		data: map[string]neo.Object{
			"3542519": filterObject("3542519", true, 0.37, approachAt("Earth", 5)),
			"2099942": filterObject("2099942", false, 0.31),
		},
	}

	c, err := New(
		WithFeedClient(client),
		WithStorage(store),
		WithSnapshots(snapshots),
		WithSnapshotMaxAge(12*time.Hour),
		WithMaxRetries(1, 0),
	)
	require.NoError(t, err)

	require.NoError(t, c.Start(context.Background()))
	defer c.Stop()

	assert.Equal(t, 2, store.Len())
	assert.Equal(t, 12*time.Hour, snapshots.maxAge)

	stats := c.Stats()
	assert.Equal(t, 2, stats.LastFeedCached)
}

func TestCache_Start_SnapshotFallbackUnavailable(t *testing.T) {
	client := feed.NewMockClient()
	client.FeedFunc = func(ctx context.Context, query feed.FeedQuery) ([]neo.Object, error) {
		return nil, feedDown()
	}

	tests := []struct {
		name      string
		snapshots *fakeSnapshots
		wantErr   string
	}{
		{
			name:      "stale snapshot",
			snapshots: &fakeSnapshots{loadErr: storage.ErrStaleSnapshot},
			wantErr:   "snapshot fallback unavailable",
		},
		{
			name:      "empty snapshot",
			snapshots: &fakeSnapshots{},
			wantErr:   "snapshot is empty",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c, err := New(
				WithFeedClient(client),
				WithStorage(storage.NewMockStorage()),
				WithSnapshots(tt.snapshots),
				WithMaxRetries(1, 0),
			)
			require.NoError(t, err)

			err = c.Start(context.Background())
			require.Error(t, err)
			assert.Contains(t, err.Error(), "initial feed load failed")
			assert.Contains(t, err.Error(), tt.wantErr)

			require.NoError(t, c.Stop())
		})
	}
}

func TestCache_Sync(t *testing.T) {
	client := feed.NewMockClient()
	client.AddObject(filterObject("3542519", true, 0.37))

	store := storage.NewMockStorage()

	c, err := New(
		WithFeedClient(client),
		WithStorage(store),
		WithMaxRetries(1, 0),
	)
	require.NoError(t, err)

	require.NoError(t, c.Sync(context.Background()))
	assert.Equal(t, 1, store.Len())

	client.AddObject(filterObject("2099942", false, 0.31))
	require.NoError(t, c.Sync(context.Background()))
	assert.Equal(t, 2, store.Len())

	stats := c.Stats()
	assert.Equal(t, 2, stats.LastFeedTotal)
	assert.False(t, stats.LastRefresh.IsZero())
}

func TestCache_Sync_CanceledContext(t *testing.T) {
	client := feed.NewMockClient()

	c, err := New(
		WithFeedClient(client),
		WithStorage(storage.NewMockStorage()),
	)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err = c.Sync(ctx)
	assert.ErrorIs(t, err, context.Canceled)
	client.AssertCalled(t, "Feed", 0)
}

func TestCache_RefreshLoop(t *testing.T) {
	client := feed.NewMockClient()
	client.AddObject(filterObject("3542519", true, 0.37))

	c, err := New(
		WithFeedClient(client),
		WithStorage(storage.NewMockStorage()),
		WithRefreshInterval(25*time.Millisecond),
		WithMaxRetries(1, 0),
	)
	require.NoError(t, err)

	require.NoError(t, c.Start(context.Background()))
	time.Sleep(150 * time.Millisecond)
	require.NoError(t, c.Stop())

	// Initial load plus at least one background tick
	assert.GreaterOrEqual(t, client.FeedCalls, 2)
}

// -----------------------------------------------------------------------------
// Reads
// -----------------------------------------------------------------------------

func TestCache_Objects_SortedByID(t *testing.T) {
	client := feed.NewMockClient()
	client.AddObject(filterObject("54016476", false, 0.01))
	client.AddObject(filterObject("2099942", true, 0.31))
	client.AddObject(filterObject("3542519", true, 0.37))

	c, err := New(
		WithFeedClient(client),
		WithStorage(storage.NewMockStorage()),
		WithMaxRetries(1, 0),
	)
	require.NoError(t, err)
	require.NoError(t, c.Sync(context.Background()))

	objects, err := c.Objects(context.Background())
	require.NoError(t, err)
	require.Len(t, objects, 3)
	assert.Equal(t, "2099942", objects[0].ID)
	assert.Equal(t, "3542519", objects[1].ID)
	assert.Equal(t, "54016476", objects[2].ID)
}

func TestCache_Hazardous(t *testing.T) {
	client := feed.NewMockClient()
	client.AddObject(filterObject("3542519", true, 0.37))
	client.AddObject(filterObject("2099942", false, 0.31))

	c, err := New(
		WithFeedClient(client),
		WithStorage(storage.NewMockStorage()),
		WithMaxRetries(1, 0),
	)
	require.NoError(t, err)
	require.NoError(t, c.Sync(context.Background()))

	hazardous, err := c.Hazardous(context.Background())
	require.NoError(t, err)
	require.Len(t, hazardous, 1)
	assert.Equal(t, "3542519", hazardous[0].ID)
}

func TestCache_Object_CacheHit(t *testing.T) {
	client := feed.NewMockClient()
	client.AddObject(filterObject("3542519", true, 0.37))

	c, err := New(
		WithFeedClient(client),
		WithStorage(storage.NewMockStorage()),
		WithMaxRetries(1, 0),
	)
	require.NoError(t, err)
	require.NoError(t, c.Sync(context.Background()))

	object, err := c.Object(context.Background(), "3542519")
	require.NoError(t, err)
	assert.Equal(t, "3542519", object.ID)

	// Served from storage, never from the feed
	client.AssertCalled(t, "Object", 0)
}

func TestCache_Object_MissFetchesFeed(t *testing.T) {
	client := feed.NewMockClient()
	client.AddObject(filterObject("3542519", true, 0.37))

	store := storage.NewMockStorage()

	c, err := New(
		WithFeedClient(client),
		WithStorage(store),
	)
	require.NoError(t, err)

	object, err := c.Object(context.Background(), "3542519")
	require.NoError(t, err)
	assert.Equal(t, "3542519", object.ID)
	client.AssertCalled(t, "Object", 1)

	// Now cached, so the second read skips the feed
	_, err = c.Object(context.Background(), "3542519")
	require.NoError(t, err)
	client.AssertCalled(t, "Object", 1)
}

func TestCache_Object_MissFilteredNotStored(t *testing.T) {
	client := feed.NewMockClient()
	client.AddObject(filterObject("2099942", false, 0.31))

	store := storage.NewMockStorage()

	c, err := New(
		WithFeedClient(client),
		WithStorage(store),
		WithOnlyHazardous(true),
	)
	require.NoError(t, err)

	// A filtered object is still returned, just not cached
	object, err := c.Object(context.Background(), "2099942")
	require.NoError(t, err)
	assert.Equal(t, "2099942", object.ID)
	assert.Equal(t, 0, store.Len())
}

func TestCache_Object_NotFound(t *testing.T) {
	c, err := New(
		WithFeedClient(feed.NewMockClient()),
		WithStorage(storage.NewMockStorage()),
	)
	require.NoError(t, err)

	_, err = c.Object(context.Background(), "99999999")
	assert.True(t, neo.IsNotFound(err))
}

func TestCache_Object_CircuitOpenSkipsFeed(t *testing.T) {
	client := feed.NewMockClient()
	client.FeedFunc = func(ctx context.Context, query feed.FeedQuery) ([]neo.Object, error) {
		return nil, feedDown()
	}

	c, err := New(
		WithFeedClient(client),
		WithStorage(storage.NewMockStorage()),
		WithCircuitBreaker(1, time.Minute),
		WithMaxRetries(1, 0),
	)
	require.NoError(t, err)

	// One failed refresh trips the breaker
	require.Error(t, c.Sync(context.Background()))
	require.True(t, c.Stats().CircuitOpen)

	_, err = c.Object(context.Background(), "3542519")
	assert.True(t, neo.IsNotFound(err))
	client.AssertCalled(t, "Object", 0)
}

// -----------------------------------------------------------------------------
// Retries and circuit breaker
// -----------------------------------------------------------------------------

func TestCache_FetchRetrySucceeds(t *testing.T) {
	client := feed.NewMockClient()

	attempts := 0
	client.FeedFunc = func(ctx context.Context, query feed.FeedQuery) ([]neo.Object, error) {
		attempts++
		if attempts < 3 {
			return nil, feedDown()
		}
		return []neo.Object{filterObject("3542519", true, 0.37)}, nil
	}

	store := storage.NewMockStorage()

	c, err := New(
		WithFeedClient(client),
		WithStorage(store),
		WithMaxRetries(3, time.Millisecond),
	)
	require.NoError(t, err)

	require.NoError(t, c.Sync(context.Background()))
	assert.Equal(t, 3, attempts)
	assert.Equal(t, 1, store.Len())
}

func TestCache_FetchRetryExhausted(t *testing.T) {
	client := feed.NewMockClient()
	client.FeedFunc = func(ctx context.Context, query feed.FeedQuery) ([]neo.Object, error) {
		return nil, feedDown()
	}

	c, err := New(
		WithFeedClient(client),
		WithStorage(storage.NewMockStorage()),
		WithMaxRetries(2, time.Millisecond),
	)
	require.NoError(t, err)

	err = c.Sync(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "after 2 attempts")
	client.AssertCalled(t, "Feed", 2)
}

func TestCache_FetchRetry_ValidationErrorNotRetried(t *testing.T) {
	client := feed.NewMockClient()
	client.FeedFunc = func(ctx context.Context, query feed.FeedQuery) ([]neo.Object, error) {
		return nil, neo.NewValidationError("api key is required")
	}

	c, err := New(
		WithFeedClient(client),
		WithStorage(storage.NewMockStorage()),
		WithMaxRetries(3, time.Millisecond),
	)
	require.NoError(t, err)

	err = c.Sync(context.Background())
	require.Error(t, err)
	client.AssertCalled(t, "Feed", 1)
}

func TestCache_CircuitBreakerOpensAfterFailures(t *testing.T) {
	client := feed.NewMockClient()
	client.FeedFunc = func(ctx context.Context, query feed.FeedQuery) ([]neo.Object, error) {
		return nil, feedDown()
	}

	c, err := New(
		WithFeedClient(client),
		WithStorage(storage.NewMockStorage()),
		WithCircuitBreaker(2, time.Minute),
		WithMaxRetries(1, 0),
	)
	require.NoError(t, err)

	require.Error(t, c.Sync(context.Background()))
	assert.False(t, c.Stats().CircuitOpen)

	require.Error(t, c.Sync(context.Background()))
	assert.True(t, c.Stats().CircuitOpen)

	// The open breaker rejects the next refresh without touching the feed
	err = c.Sync(context.Background())
	require.Error(t, err)
	assert.True(t, circuit.IsCircuitOpen(err))
	client.AssertCalled(t, "Feed", 2)
}

// -----------------------------------------------------------------------------
// Watch rules
// -----------------------------------------------------------------------------

func TestCache_WatchRules(t *testing.T) {
	client := feed.NewMockClient()
	client.AddObject(filterObject("3542519", true, 0.37, approachAt("Earth", 5)))
	client.AddObject(filterObject("2099942", false, 0.31))

	alerts := make(chan watch.Match, 8)

	c, err := New(
		WithFeedClient(client),
		WithStorage(storage.NewMockStorage()),
		WithMaxRetries(1, 0),
		WithOnAlert(func(m watch.Match) { alerts <- m }),
	)
	require.NoError(t, err)

	require.NoError(t, c.AddWatchRule("hazard-watch", "hazardous"))

	require.NoError(t, c.Sync(context.Background()))

	matches := c.Alerts()
	require.Len(t, matches, 1)
	assert.Equal(t, "hazard-watch", matches[0].Rule)
	assert.Equal(t, "3542519", matches[0].Object.ID)

	select {
	case match := <-alerts:
		assert.Equal(t, "3542519", match.Object.ID)
	default:
		t.Fatal("expected an alert on the callback channel")
	}

	stats := c.Stats()
	assert.Equal(t, []string{"hazard-watch"}, stats.WatchRules)
	assert.Equal(t, 1, stats.ActiveAlerts)
}

func TestCache_AddWatchRule_Invalid(t *testing.T) {
	c, err := New(
		WithFeedClient(feed.NewMockClient()),
		WithStorage(storage.NewMockStorage()),
	)
	require.NoError(t, err)

	err = c.AddWatchRule("broken", "hazardous &&")
	assert.Error(t, err)
}

func TestCache_RemoveWatchRule(t *testing.T) {
	c, err := New(
		WithFeedClient(feed.NewMockClient()),
		WithStorage(storage.NewMockStorage()),
	)
	require.NoError(t, err)

	require.NoError(t, c.AddWatchRule("hazard-watch", "hazardous"))
	assert.True(t, c.RemoveWatchRule("hazard-watch"))
	assert.False(t, c.RemoveWatchRule("hazard-watch"))
}

// -----------------------------------------------------------------------------
// Invalidation and health
// -----------------------------------------------------------------------------

func TestCache_InvalidateObject(t *testing.T) {
	client := feed.NewMockClient()
	client.AddObject(filterObject("3542519", true, 0.37))

	store := storage.NewMockStorage()

	c, err := New(
		WithFeedClient(client),
		WithStorage(store),
		WithMaxRetries(1, 0),
	)
	require.NoError(t, err)
	require.NoError(t, c.Sync(context.Background()))

	require.NoError(t, c.InvalidateObject(context.Background(), "3542519"))
	assert.Equal(t, 0, store.Len())
}

func TestCache_InvalidateAll(t *testing.T) {
	client := feed.NewMockClient()
	client.AddObject(filterObject("3542519", true, 0.37))
	client.AddObject(filterObject("2099942", false, 0.31))

	store := storage.NewMockStorage()

	c, err := New(
		WithFeedClient(client),
		WithStorage(store),
		WithMaxRetries(1, 0),
	)
	require.NoError(t, err)
	require.NoError(t, c.Sync(context.Background()))

	require.NoError(t, c.InvalidateAll(context.Background()))
	assert.Equal(t, 0, store.Len())
	assert.Equal(t, 1, store.ClearCalls)
}

func TestCache_HealthCheck(t *testing.T) {
	client := feed.NewMockClient()

	c, err := New(
		WithFeedClient(client),
		WithStorage(storage.NewMockStorage()),
	)
	require.NoError(t, err)

	require.NoError(t, c.HealthCheck(context.Background()))
	client.AssertCalled(t, "HealthCheck", 1)
}

// -----------------------------------------------------------------------------
// TTL
// -----------------------------------------------------------------------------

func TestCache_Refresh_AppliesTTL(t *testing.T) {
	client := feed.NewMockClient()
	client.AddObject(filterObject("3542519", true, 0.37))

	var gotTTL time.Duration
	store := storage.NewMockStorage()
	store.SetFunc = func(ctx context.Context, id string, object neo.Object, ttl time.Duration) error {
		gotTTL = ttl
		return nil
	}

	c, err := New(
		WithFeedClient(client),
		WithStorage(store),
		WithRefreshInterval(5*time.Minute),
		WithMaxRetries(1, 0),
	)
	require.NoError(t, err)

	require.NoError(t, c.Sync(context.Background()))

	// Objects outlive one missed refresh cycle
	assert.Equal(t, 10*time.Minute, gotTTL)
}

func TestCache_Refresh_ManualModeHasNoTTL(t *testing.T) {
	client := feed.NewMockClient()
	client.AddObject(filterObject("3542519", true, 0.37))

	var gotTTL time.Duration
	store := storage.NewMockStorage()
	store.SetFunc = func(ctx context.Context, id string, object neo.Object, ttl time.Duration) error {
		gotTTL = ttl
		return nil
	}

	c, err := New(
		WithFeedClient(client),
		WithStorage(store),
		WithRefreshInterval(0),
		WithMaxRetries(1, 0),
	)
	require.NoError(t, err)

	require.NoError(t, c.Sync(context.Background()))
	assert.Equal(t, time.Duration(0), gotTTL)
}

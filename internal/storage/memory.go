package storage

import (
	"context"
	"sync"
	"time"

	"github.com/dgraph-io/ristretto"

	"github.com/pcoutinho/bolide/internal/neo"
)

// MemoryStorage wraps Ristretto for in-memory object storage.
// Ristretto cannot enumerate its keys, so an index is kept beside it.
type MemoryStorage struct {
	cache      *ristretto.Cache
	defaultTTL time.Duration

	mu      sync.RWMutex
	index   map[string]struct{}
	deleted uint64
}

// NewMemoryStorage creates a new ristretto-backed store
func NewMemoryStorage(config Config) (*MemoryStorage, error) {
	cache, err := ristretto.NewCache(&ristretto.Config{
		NumCounters: config.NumCounters,
		MaxCost:     config.MaxCost,
		BufferItems: config.BufferItems,
		Metrics:     config.MetricsEnabled,
	})
	if err != nil {
		return nil, err
	}

	return &MemoryStorage{
		cache:      cache,
		defaultTTL: config.DefaultTTL,
		index:      make(map[string]struct{}),
	}, nil
}

// Get retrieves an object by its feed id
func (m *MemoryStorage) Get(ctx context.Context, id string) (*neo.Object, error) {
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	default:
	}

	value, found := m.cache.Get(id)
	if !found {
		// Evicted behind our back; drop the stale index entry
		m.mu.Lock()
		delete(m.index, id)
		m.mu.Unlock()
		return nil, ErrNotFound
	}

	object, ok := value.(neo.Object)
	if !ok {
		return nil, ErrNotFound
	}

	return &object, nil
}

// Set stores an object. Admission is ristretto's call: a rejected set is
// accounted for in the metrics, not surfaced as an error.
func (m *MemoryStorage) Set(ctx context.Context, id string, object neo.Object, ttl time.Duration) error {
	select {
	case <-ctx.Done():
		return ctx.Err()
	default:
	}

	if ttl <= 0 {
		ttl = m.defaultTTL
	}

	cost := objectCost(object)
	if ttl > 0 {
		m.cache.SetWithTTL(id, object, cost, ttl)
	} else {
		// Still zero: no expiry
		m.cache.Set(id, object, cost)
	}

	m.mu.Lock()
	m.index[id] = struct{}{}
	m.mu.Unlock()

	return nil
}

// Delete removes an object
func (m *MemoryStorage) Delete(ctx context.Context, id string) error {
	m.cache.Del(id)

	m.mu.Lock()
	if _, ok := m.index[id]; ok {
		delete(m.index, id)
		m.deleted++
	}
	m.mu.Unlock()

	return nil
}

// Clear removes all objects
func (m *MemoryStorage) Clear(ctx context.Context) error {
	m.cache.Clear()

	m.mu.Lock()
	m.index = make(map[string]struct{})
	m.mu.Unlock()

	return nil
}

// List returns all stored object ids
func (m *MemoryStorage) List(ctx context.Context) ([]string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	ids := make([]string, 0, len(m.index))
	for id := range m.index {
		ids = append(ids, id)
	}

	return ids, nil
}

// Wait blocks until pending writes are visible
func (m *MemoryStorage) Wait() {
	m.cache.Wait()
}

// Metrics returns storage metrics
func (m *MemoryStorage) Metrics() Metrics {
	m.mu.RLock()
	size := int64(len(m.index))
	deleted := m.deleted
	m.mu.RUnlock()

	metrics := Metrics{
		KeysDeleted: deleted,
		Size:        size,
	}

	rm := m.cache.Metrics
	if rm == nil {
		return metrics
	}

	metrics.Hits = rm.Hits()
	metrics.Misses = rm.Misses()
	metrics.KeysAdded = rm.KeysAdded()
	metrics.KeysUpdated = rm.KeysUpdated()
	metrics.KeysEvicted = rm.KeysEvicted()
	metrics.CostAdded = rm.CostAdded()
	metrics.CostEvicted = rm.CostEvicted()
	metrics.SetsDropped = rm.SetsDropped()
	metrics.SetsRejected = rm.SetsRejected()
	metrics.HitRatio = rm.Ratio()

	return metrics
}

// Close closes the store
func (m *MemoryStorage) Close() error {
	m.cache.Close()
	return nil
}

// objectCost approximates the in-memory footprint of an object in bytes
func objectCost(o neo.Object) int64 {
	cost := int64(len(o.ID) + len(o.Name) + len(o.Designation))
	cost += 96 // fixed-size fields

	for _, a := range o.Approaches {
		cost += 72 + int64(len(a.OrbitingBody))
	}

	if cost <= 0 {
		cost = 1
	}
	return cost
}

// internal/storage/storage.go
package storage

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/dustin/go-humanize"

	"github.com/pcoutinho/bolide/internal/neo"
)

var (
	// ErrNotFound means the key has no entry in this store
	ErrNotFound = errors.New("object not found")

	// ErrStaleSnapshot means the snapshot on disk is older than the caller allows
	ErrStaleSnapshot = errors.New("snapshot is stale")
)

// Storage defines the interface for object storage
type Storage interface {
	// Get retrieves an object by its feed id
	Get(ctx context.Context, id string) (*neo.Object, error)

	// Set stores an object with optional TTL
	Set(ctx context.Context, id string, object neo.Object, ttl time.Duration) error

	// Delete removes an object
	Delete(ctx context.Context, id string) error

	// Clear removes all objects
	Clear(ctx context.Context) error

	// List returns all stored object ids
	List(ctx context.Context) ([]string, error)

	// Metrics returns storage metrics
	Metrics() Metrics

	// Close closes the storage
	Close() error
}

// Metrics represents storage metrics
type Metrics struct {
	// Cache statistics
	Hits        uint64
	Misses      uint64
	KeysAdded   uint64
	KeysUpdated uint64
	KeysEvicted uint64
	KeysDeleted uint64

	// Memory statistics
	CostAdded   uint64
	CostEvicted uint64

	// Operation statistics
	SetsDropped  uint64
	SetsRejected uint64

	// Performance metrics
	HitRatio float64

	// Objects currently indexed
	Size int64
}

// String renders the metrics in a human-readable one-liner
func (m Metrics) String() string {
	return fmt.Sprintf("%s objects, %s in cache, hit ratio %.1f%% (%s hits / %s misses)",
		humanize.Comma(m.Size),
		humanize.Bytes(m.CostAdded-m.CostEvicted),
		m.HitRatio*100,
		humanize.Comma(int64(m.Hits)),
		humanize.Comma(int64(m.Misses)),
	)
}

// Config holds storage configuration
type Config struct {
	// Memory limits
	MaxCost     int64 // Maximum cache size in bytes
	NumCounters int64 // Number of counters for admission policy
	BufferItems int64 // Number of keys per buffer

	// TTL; zero means entries live until the next refresh replaces them
	DefaultTTL time.Duration

	// Metrics
	MetricsEnabled bool
}

// DefaultConfig returns default storage configuration
func DefaultConfig() Config {
	return Config{
		MaxCost:        1 << 28, // 256MB
		NumCounters:    1e6,
		BufferItems:    64,
		DefaultTTL:     0,
		MetricsEnabled: true,
	}
}

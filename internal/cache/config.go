package cache

import (
	"fmt"
	"strings"
	"time"

	"github.com/pcoutinho/bolide/internal/neo"
)

// Config holds cache configuration
type Config struct {
	// Refresh behavior. A zero RefreshInterval disables the background
	// loop; Sync is then the only way to pull fresh data.
	RefreshInterval time.Duration
	InitialTimeout  time.Duration

	// Retry behavior for one refresh cycle. The fetch itself is a single
	// bounded attempt, so this is the only retry layer.
	MaxRetries   int
	RetryBackoff time.Duration

	// Circuit breaker
	CircuitBreakerThreshold int
	CircuitBreakerTimeout   time.Duration

	// SnapshotMaxAge caps how old a disk snapshot may be before it is
	// rejected during startup fallback. Zero accepts any age.
	SnapshotMaxAge time.Duration

	// Object filtering (resource optimization)
	Filter FilterConfig
}

// FilterConfig defines which objects are worth caching
type FilterConfig struct {
	// OnlyHazardous drops everything NASA does not flag as potentially
	// hazardous. This cuts the working set dramatically: most feed
	// entries are harmless rocks.
	OnlyHazardous bool

	// MinDiameterKm drops objects whose estimated minimum diameter is
	// below the threshold. Zero keeps everything.
	MinDiameterKm float64

	// OrbitingBodies keeps only objects with at least one approach
	// around one of the named bodies. Empty keeps everything.
	OrbitingBodies []string

	// MaxApproachWindow keeps only objects with an approach inside the
	// window from now. Zero keeps everything.
	MaxApproachWindow time.Duration
}

// DefaultConfig returns default configuration
func DefaultConfig() Config {
	return Config{
		RefreshInterval:         5 * time.Minute,
		InitialTimeout:          10 * time.Second,
		MaxRetries:              3,
		RetryBackoff:            500 * time.Millisecond,
		CircuitBreakerThreshold: 3,
		CircuitBreakerTimeout:   30 * time.Second,
		SnapshotMaxAge:          24 * time.Hour,
		Filter:                  FilterConfig{},
	}
}

// Validate validates the configuration
func (c Config) Validate() error {
	if c.RefreshInterval < 0 {
		return fmt.Errorf("refresh interval must not be negative")
	}

	if c.InitialTimeout <= 0 {
		return fmt.Errorf("initial timeout must be positive")
	}

	if c.MaxRetries < 1 {
		return fmt.Errorf("max retries must be at least 1")
	}

	if c.RetryBackoff < 0 {
		return fmt.Errorf("retry backoff must not be negative")
	}

	if c.CircuitBreakerThreshold < 1 {
		return fmt.Errorf("circuit breaker threshold must be at least 1")
	}

	if c.SnapshotMaxAge < 0 {
		return fmt.Errorf("snapshot max age must not be negative")
	}

	// Validate filter config
	if err := c.Filter.Validate(); err != nil {
		return fmt.Errorf("invalid filter config: %w", err)
	}

	return nil
}

// Validate validates the filter configuration
func (f FilterConfig) Validate() error {
	if f.MinDiameterKm < 0 {
		return fmt.Errorf("min diameter must not be negative")
	}

	if f.MaxApproachWindow < 0 {
		return fmt.Errorf("max approach window must not be negative")
	}

	for _, body := range f.OrbitingBodies {
		if body == "" {
			return fmt.Errorf("orbiting body must not be empty")
		}
	}

	return nil
}

// ShouldCache determines if an object passes the filter rules
func (f FilterConfig) ShouldCache(object neo.Object, now time.Time) bool {
	// Rule 1: hazard flag
	if f.OnlyHazardous && !object.Hazardous {
		return false
	}

	// Rule 2: size threshold
	if f.MinDiameterKm > 0 && object.Diameter.MinKm < f.MinDiameterKm {
		return false
	}

	// Rule 3: orbiting body
	if len(f.OrbitingBodies) > 0 && !f.approachesBody(object) {
		return false
	}

	// Rule 4: approach window
	if f.MaxApproachWindow > 0 && !object.ApproachWithin(now, f.MaxApproachWindow) {
		return false
	}

	return true
}

// approachesBody checks if any approach orbits one of the configured bodies
func (f FilterConfig) approachesBody(object neo.Object) bool {
	for _, approach := range object.Approaches {
		for _, body := range f.OrbitingBodies {
			if strings.EqualFold(approach.OrbitingBody, body) {
				return true
			}
		}
	}
	return false
}

// String returns a human-readable description of the filter config
func (f FilterConfig) String() string {
	if !f.OnlyHazardous && f.MinDiameterKm == 0 &&
		len(f.OrbitingBodies) == 0 && f.MaxApproachWindow == 0 {
		return "no filtering (all objects cached)"
	}

	filters := []string{}

	if f.OnlyHazardous {
		filters = append(filters, "hazardous=true")
	}

	if f.MinDiameterKm > 0 {
		filters = append(filters, fmt.Sprintf("min_diameter=%.3fkm", f.MinDiameterKm))
	}

	if len(f.OrbitingBodies) > 0 {
		filters = append(filters, fmt.Sprintf("bodies=%v", f.OrbitingBodies))
	}

	if f.MaxApproachWindow > 0 {
		filters = append(filters, fmt.Sprintf("window=%s", f.MaxApproachWindow))
	}

	return fmt.Sprintf("filtering: %v", filters)
}

// EstimateMemorySavings estimates memory savings from filtering
func (f FilterConfig) EstimateMemorySavings(totalObjects, cachedObjects int) MemorySavings {
	savedObjects := totalObjects - cachedObjects
	percentSaved := 0.0
	if totalObjects > 0 {
		percentSaved = float64(savedObjects) / float64(totalObjects) * 100
	}

	// Rough estimate: 2KB per object with its approach list
	const bytesPerObject = 2048
	savedBytes := int64(savedObjects * bytesPerObject)

	return MemorySavings{
		TotalObjects:    totalObjects,
		CachedObjects:   cachedObjects,
		FilteredObjects: savedObjects,
		PercentFiltered: percentSaved,
		BytesSaved:      savedBytes,
	}
}

// MemorySavings represents the memory saved by filtering
type MemorySavings struct {
	TotalObjects    int
	CachedObjects   int
	FilteredObjects int
	PercentFiltered float64
	BytesSaved      int64
}

// String returns a human-readable description of memory savings
func (m MemorySavings) String() string {
	mb := float64(m.BytesSaved) / 1024 / 1024
	return fmt.Sprintf("Cached %d/%d objects (%.1f%% filtered, ~%.2f MB saved)",
		m.CachedObjects, m.TotalObjects, m.PercentFiltered, mb)
}

package telemetry

import (
	"context"
	"time"
)

// NoOpProvider is a telemetry provider that does nothing
// Useful for testing or when telemetry is disabled
type NoOpProvider struct{}

// NewNoOp creates a new no-op telemetry provider
func NewNoOp() *NoOpProvider {
	return &NoOpProvider{}
}

// StartSpan creates a no-op span
func (n *NoOpProvider) StartSpan(ctx context.Context, name string, opts ...SpanOption) (context.Context, Span) {
	return ctx, &NoOpSpan{}
}

// RecordFetch does nothing
func (n *NoOpProvider) RecordFetch(ctx context.Context, outcome string, duration time.Duration) {}

// RecordCacheHit does nothing
func (n *NoOpProvider) RecordCacheHit(ctx context.Context, objectID string) {}

// RecordCacheMiss does nothing
func (n *NoOpProvider) RecordCacheMiss(ctx context.Context, objectID string) {}

// RecordRefresh does nothing
func (n *NoOpProvider) RecordRefresh(ctx context.Context, success bool, duration time.Duration, objectCount int) {
}

// RecordWatchMatch does nothing
func (n *NoOpProvider) RecordWatchMatch(ctx context.Context, rule string) {}

// RecordCircuitState does nothing
func (n *NoOpProvider) RecordCircuitState(ctx context.Context, state string) {}

// RecordObjectCount does nothing
func (n *NoOpProvider) RecordObjectCount(ctx context.Context, count int64) {}

// Shutdown does nothing
func (n *NoOpProvider) Shutdown(ctx context.Context) error {
	return nil
}

// NoOpSpan is a span that does nothing
type NoOpSpan struct{}

// End does nothing
func (n *NoOpSpan) End() {}

// SetAttributes does nothing
func (n *NoOpSpan) SetAttributes(attrs ...Attribute) {}

// RecordError does nothing
func (n *NoOpSpan) RecordError(err error) {}

// AddEvent does nothing
func (n *NoOpSpan) AddEvent(name string, attrs ...Attribute) {}

package telemetry

import (
	"context"
	"sync/atomic"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
)

const (
	meterName  = "bolide"
	tracerName = "bolide"
)

// OTelProvider implements Provider using OpenTelemetry
type OTelProvider struct {
	tracer trace.Tracer
	meter  metric.Meter

	// Metrics
	fetchCount      metric.Int64Counter
	fetchDuration   metric.Float64Histogram
	cacheHits       metric.Int64Counter
	cacheMisses     metric.Int64Counter
	refreshDuration metric.Float64Histogram
	refreshSuccess  metric.Int64Counter
	refreshFailure  metric.Int64Counter
	watchMatches    metric.Int64Counter
	objectCount     metric.Int64ObservableGauge
	circuitState    metric.Int64ObservableGauge

	// Gauge callbacks read these from the collector goroutine
	currentObjectCount  atomic.Int64
	currentCircuitState atomic.Int64
}

// NewOTel creates a new OpenTelemetry provider
func NewOTel() (*OTelProvider, error) {
	tracer := otel.Tracer(tracerName)
	meter := otel.Meter(meterName)

	provider := &OTelProvider{
		tracer: tracer,
		meter:  meter,
	}

	if err := provider.initMetrics(); err != nil {
		return nil, err
	}

	return provider, nil
}

// initMetrics initializes all metrics
func (o *OTelProvider) initMetrics() error {
	var err error

	// Fetch guard metrics
	o.fetchCount, err = o.meter.Int64Counter(
		"bolide.fetch.count",
		metric.WithDescription("Number of feed fetches by outcome"),
	)
	if err != nil {
		return err
	}

	o.fetchDuration, err = o.meter.Float64Histogram(
		"bolide.fetch.duration",
		metric.WithDescription("Duration of feed fetches"),
		metric.WithUnit("ms"),
	)
	if err != nil {
		return err
	}

	// Cache metrics
	o.cacheHits, err = o.meter.Int64Counter(
		"bolide.cache.hits",
		metric.WithDescription("Number of cache hits"),
	)
	if err != nil {
		return err
	}

	o.cacheMisses, err = o.meter.Int64Counter(
		"bolide.cache.misses",
		metric.WithDescription("Number of cache misses"),
	)
	if err != nil {
		return err
	}

	// Refresh metrics
	o.refreshDuration, err = o.meter.Float64Histogram(
		"bolide.refresh.duration",
		metric.WithDescription("Duration of cache refresh operations"),
		metric.WithUnit("ms"),
	)
	if err != nil {
		return err
	}

	o.refreshSuccess, err = o.meter.Int64Counter(
		"bolide.refresh.success",
		metric.WithDescription("Number of successful refreshes"),
	)
	if err != nil {
		return err
	}

	o.refreshFailure, err = o.meter.Int64Counter(
		"bolide.refresh.failure",
		metric.WithDescription("Number of failed refreshes"),
	)
	if err != nil {
		return err
	}

	// Watch rule metrics
	o.watchMatches, err = o.meter.Int64Counter(
		"bolide.watch.matches",
		metric.WithDescription("Number of watch rule matches"),
	)
	if err != nil {
		return err
	}

	// Cached object gauge
	o.objectCount, err = o.meter.Int64ObservableGauge(
		"bolide.objects.cached",
		metric.WithDescription("Number of objects currently cached"),
		metric.WithInt64Callback(func(ctx context.Context, observer metric.Int64Observer) error {
			observer.Observe(o.currentObjectCount.Load())
			return nil
		}),
	)
	if err != nil {
		return err
	}

	// Circuit breaker gauge
	o.circuitState, err = o.meter.Int64ObservableGauge(
		"bolide.circuit.state",
		metric.WithDescription("Circuit breaker state (0=closed, 1=open, 2=half-open)"),
		metric.WithInt64Callback(func(ctx context.Context, observer metric.Int64Observer) error {
			observer.Observe(o.currentCircuitState.Load())
			return nil
		}),
	)
	if err != nil {
		return err
	}

	return nil
}

// circuitStateValue converts circuit state string to numeric value
func circuitStateValue(state string) int64 {
	switch state {
	case "closed":
		return 0
	case "open":
		return 1
	case "half-open":
		return 2
	default:
		return 0
	}
}

// StartSpan creates a new trace span
func (o *OTelProvider) StartSpan(ctx context.Context, name string, opts ...SpanOption) (context.Context, Span) {
	config := &SpanConfig{}
	for _, opt := range opts {
		opt(config)
	}

	// Convert our attributes to OTel attributes
	otelAttrs := make([]attribute.KeyValue, len(config.Attributes))
	for i, attr := range config.Attributes {
		otelAttrs[i] = convertAttribute(attr)
	}

	ctx, otelSpan := o.tracer.Start(ctx, name,
		trace.WithAttributes(otelAttrs...))

	return ctx, &OTelSpan{span: otelSpan}
}

// convertAttribute converts our Attribute to OTel attribute
func convertAttribute(attr Attribute) attribute.KeyValue {
	switch v := attr.Value.(type) {
	case string:
		return attribute.String(attr.Key, v)
	case int:
		return attribute.Int(attr.Key, v)
	case int64:
		return attribute.Int64(attr.Key, v)
	case bool:
		return attribute.Bool(attr.Key, v)
	case float64:
		return attribute.Float64(attr.Key, v)
	default:
		return attribute.String(attr.Key, "")
	}
}

// RecordFetch records a single fetch attempt and its outcome
func (o *OTelProvider) RecordFetch(ctx context.Context, outcome string, duration time.Duration) {
	o.fetchCount.Add(ctx, 1, metric.WithAttributes(
		attribute.String("outcome", outcome),
	))
	o.fetchDuration.Record(ctx, float64(duration.Milliseconds()),
		metric.WithAttributes(
			attribute.String("outcome", outcome),
		))
}

// RecordCacheHit records a cache hit
func (o *OTelProvider) RecordCacheHit(ctx context.Context, objectID string) {
	o.cacheHits.Add(ctx, 1, metric.WithAttributes(
		attribute.String("object.id", objectID),
	))
}

// RecordCacheMiss records a cache miss
func (o *OTelProvider) RecordCacheMiss(ctx context.Context, objectID string) {
	o.cacheMisses.Add(ctx, 1, metric.WithAttributes(
		attribute.String("object.id", objectID),
	))
}

// RecordRefresh records a cache refresh operation
func (o *OTelProvider) RecordRefresh(ctx context.Context, success bool, duration time.Duration, objectCount int) {
	// Record duration
	o.refreshDuration.Record(ctx, float64(duration.Milliseconds()),
		metric.WithAttributes(
			attribute.Bool("success", success),
		))

	// Record success/failure
	if success {
		o.refreshSuccess.Add(ctx, 1, metric.WithAttributes(
			attribute.Int("object.count", objectCount),
		))
	} else {
		o.refreshFailure.Add(ctx, 1)
	}
}

// RecordWatchMatch records a watch rule match
func (o *OTelProvider) RecordWatchMatch(ctx context.Context, rule string) {
	o.watchMatches.Add(ctx, 1, metric.WithAttributes(
		attribute.String("rule", rule),
	))
}

// RecordCircuitState records the circuit breaker state
func (o *OTelProvider) RecordCircuitState(ctx context.Context, state string) {
	o.currentCircuitState.Store(circuitStateValue(state))
}

// RecordObjectCount records how many objects the cache holds
func (o *OTelProvider) RecordObjectCount(ctx context.Context, count int64) {
	o.currentObjectCount.Store(count)
}

// Shutdown shuts down the provider
func (o *OTelProvider) Shutdown(ctx context.Context) error {
	// OTel SDK shutdown is handled globally
	return nil
}

// OTelSpan wraps an OpenTelemetry span
type OTelSpan struct {
	span trace.Span
}

// End completes the span
func (s *OTelSpan) End() {
	s.span.End()
}

// SetAttributes sets attributes on the span
func (s *OTelSpan) SetAttributes(attrs ...Attribute) {
	otelAttrs := make([]attribute.KeyValue, len(attrs))
	for i, attr := range attrs {
		otelAttrs[i] = convertAttribute(attr)
	}
	s.span.SetAttributes(otelAttrs...)
}

// RecordError records an error on the span
func (s *OTelSpan) RecordError(err error) {
	s.span.RecordError(err)
}

// AddEvent adds an event to the span
func (s *OTelSpan) AddEvent(name string, attrs ...Attribute) {
	otelAttrs := make([]attribute.KeyValue, len(attrs))
	for i, attr := range attrs {
		otelAttrs[i] = convertAttribute(attr)
	}
	s.span.AddEvent(name, trace.WithAttributes(otelAttrs...))
}

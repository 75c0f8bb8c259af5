// Package observe provides application-wide observability primitives for
// Arithmos: OpenTelemetry metrics, distributed tracing, structured logging,
// and HTTP middleware that ties them together.
//
// Metrics are recorded through the OpenTelemetry Metrics API. A Prometheus
// exporter bridge is available via [InitProvider] so that metrics can still be
// scraped via the standard /metrics endpoint. A package-level default
// [Metrics] instance ([DefaultMetrics]) is provided for convenience; tests
// should use [NewMetrics] with a custom [metric.MeterProvider] to avoid
// cross-test pollution.
package observe

import (
	"context"
	"sync"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// meterName is the instrumentation scope name used for all Arithmos metrics.
const meterName = "github.com/MrWong99/arithmos"

// Metrics holds all OpenTelemetry metric instruments for the application.
// All fields are safe for concurrent use — the underlying OTel types handle
// their own synchronisation.
type Metrics struct {
	// --- Latency histograms per pipeline stage ---

	// PolicyDuration tracks the latency of a single policy decision.
	PolicyDuration metric.Float64Histogram

	// ToolExecutionDuration tracks remote tool invocation latency, from
	// request encoding to result decoding.
	ToolExecutionDuration metric.Float64Histogram

	// DiscoveryDuration tracks tool discovery latency per namespace.
	DiscoveryDuration metric.Float64Histogram

	// RunDuration tracks end-to-end orchestration run latency.
	RunDuration metric.Float64Histogram

	// --- Counters ---

	// PolicyRequests counts policy decisions. Use with attributes:
	//   attribute.String("policy", ...), attribute.String("status", ...)
	PolicyRequests metric.Int64Counter

	// ToolCalls counts tool invocations. Use with attributes:
	//   attribute.String("tool", ...), attribute.String("status", ...)
	ToolCalls metric.Int64Counter

	// --- Error counters ---

	// PolicyErrors counts policy backend errors. Use with attribute:
	//   attribute.String("policy", ...)
	PolicyErrors metric.Int64Counter

	// --- Gauges ---

	// ActiveRuns tracks the number of orchestration loops currently in
	// flight.
	ActiveRuns metric.Int64UpDownCounter

	// --- HTTP middleware ---

	// HTTPRequestDuration tracks HTTP request processing time. Use with attributes:
	//   attribute.String("method", ...), attribute.String("route", ...)
	HTTPRequestDuration metric.Float64Histogram
}

// latencyBuckets defines histogram bucket boundaries (in seconds). Tool
// calls land in the low milliseconds while policy decisions can take whole
// seconds, so the range is wide.
var latencyBuckets = []float64{
	0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30,
}

// NewMetrics creates a fully initialised [Metrics] struct using the given
// [metric.MeterProvider]. Returns an error if any instrument creation fails.
func NewMetrics(mp metric.MeterProvider) (*Metrics, error) {
	m := mp.Meter(meterName)
	var err error
	met := &Metrics{}

	// Histograms.
	if met.PolicyDuration, err = m.Float64Histogram("arithmos.policy.duration",
		metric.WithDescription("Latency of a single policy decision."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(latencyBuckets...),
	); err != nil {
		return nil, err
	}
	if met.ToolExecutionDuration, err = m.Float64Histogram("arithmos.tool_execution.duration",
		metric.WithDescription("Latency of remote tool invocation."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(latencyBuckets...),
	); err != nil {
		return nil, err
	}
	if met.DiscoveryDuration, err = m.Float64Histogram("arithmos.discovery.duration",
		metric.WithDescription("Latency of tool discovery per namespace."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(latencyBuckets...),
	); err != nil {
		return nil, err
	}
	if met.RunDuration, err = m.Float64Histogram("arithmos.run.duration",
		metric.WithDescription("End-to-end orchestration run latency."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(latencyBuckets...),
	); err != nil {
		return nil, err
	}

	// Counters.
	if met.PolicyRequests, err = m.Int64Counter("arithmos.policy.requests",
		metric.WithDescription("Total policy decisions by policy name and status."),
	); err != nil {
		return nil, err
	}
	if met.ToolCalls, err = m.Int64Counter("arithmos.tool.calls",
		metric.WithDescription("Total tool invocations by tool name and status."),
	); err != nil {
		return nil, err
	}

	// Error counters.
	if met.PolicyErrors, err = m.Int64Counter("arithmos.policy.errors",
		metric.WithDescription("Total policy backend errors by policy name."),
	); err != nil {
		return nil, err
	}

	// Gauges (UpDownCounters).
	if met.ActiveRuns, err = m.Int64UpDownCounter("arithmos.active_runs",
		metric.WithDescription("Number of orchestration loops currently in flight."),
	); err != nil {
		return nil, err
	}

	// HTTP middleware histogram.
	if met.HTTPRequestDuration, err = m.Float64Histogram("arithmos.http.request.duration",
		metric.WithDescription("HTTP request latency by method and path."),
		metric.WithUnit("s"),
	); err != nil {
		return nil, err
	}

	return met, nil
}

// defaultMetrics is the lazily-initialised package-level Metrics instance.
var (
	defaultMetrics     *Metrics
	defaultMetricsOnce sync.Once
)

// DefaultMetrics returns the package-level [Metrics] instance, creating it on
// first call using [otel.GetMeterProvider]. Subsequent calls return the same
// pointer. Panics if instrument creation fails (should not happen with the
// global provider).
func DefaultMetrics() *Metrics {
	defaultMetricsOnce.Do(func() {
		var err error
		defaultMetrics, err = NewMetrics(otel.GetMeterProvider())
		if err != nil {
			panic("observe: failed to create default metrics: " + err.Error())
		}
	})
	return defaultMetrics
}

// Attr is a convenience alias for [attribute.String] to reduce verbosity at
// call sites.
func Attr(key, value string) attribute.KeyValue {
	return attribute.String(key, value)
}

// RecordPolicyRequest records a policy decision counter increment with the
// standard attribute set.
func (m *Metrics) RecordPolicyRequest(ctx context.Context, policy, status string) {
	m.PolicyRequests.Add(ctx, 1,
		metric.WithAttributes(
			attribute.String("policy", policy),
			attribute.String("status", status),
		),
	)
}

// RecordToolCall records a tool call counter increment with the standard
// attribute set.
func (m *Metrics) RecordToolCall(ctx context.Context, tool, status string) {
	m.ToolCalls.Add(ctx, 1,
		metric.WithAttributes(
			attribute.String("tool", tool),
			attribute.String("status", status),
		),
	)
}

// RecordPolicyError records a policy backend error counter increment.
func (m *Metrics) RecordPolicyError(ctx context.Context, policy string) {
	m.PolicyErrors.Add(ctx, 1,
		metric.WithAttributes(attribute.String("policy", policy)),
	)
}

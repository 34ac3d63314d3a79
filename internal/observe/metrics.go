// Package observe provides application-wide observability primitives:
// OpenTelemetry metrics, distributed tracing, structured logging, and HTTP
// middleware that ties them together.
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

// meterName is the instrumentation scope name used for all metrics.
const meterName = "github.com/Mai-with-u/amaidesu"

// Metrics holds all OpenTelemetry metric instruments for the application.
// All fields are safe for concurrent use — the underlying OTel types handle
// their own synchronisation.
type Metrics struct {
	// --- Latency histograms per pipeline stage ---

	// STTDuration tracks speech-to-text transcription latency for the
	// voice input provider.
	STTDuration metric.Float64Histogram

	// DecisionDuration tracks how long the active decision provider takes
	// from receiving a message to publishing its intent.
	DecisionDuration metric.Float64Histogram

	// RenderDuration tracks one output provider's Execute latency.
	RenderDuration metric.Float64Histogram

	// TTSDuration tracks text-to-speech synthesis latency.
	TTSDuration metric.Float64Histogram

	// ToolExecutionDuration tracks MCP tool execution latency.
	ToolExecutionDuration metric.Float64Histogram

	// --- Counters ---

	// MessagesIngested counts normalized messages published on
	// data.message. Use with attributes:
	//   attribute.String("source", ...), attribute.String("data_type", ...)
	MessagesIngested metric.Int64Counter

	// PipelineDrops counts messages dropped by an input pipeline. Use with
	// attribute: attribute.String("pipeline", ...)
	PipelineDrops metric.Int64Counter

	// IntentsPublished counts decision.intent events. Use with attribute:
	//   attribute.String("provider", ...)
	IntentsPublished metric.Int64Counter

	// ToolCalls counts tool invocations. Use with attributes:
	//   attribute.String("tool", ...), attribute.String("status", ...)
	ToolCalls metric.Int64Counter

	// EmotionMismatches counts decision.intent Emotion values that the
	// emotion-judge extension's heuristic disagreed with. Use with
	// attribute: attribute.String("declared", ...), attribute.String("heuristic", ...)
	EmotionMismatches metric.Int64Counter

	// AudioChunksDropped counts audio stream chunks dropped by a
	// subscriber's backpressure policy. Use with attribute:
	//   attribute.String("subscriber", ...)
	AudioChunksDropped metric.Int64Counter

	// --- Error counters ---

	// ProviderErrors counts provider errors. Use with attributes:
	//   attribute.String("provider", ...), attribute.String("layer", ...)
	ProviderErrors metric.Int64Counter

	// --- Gauges ---

	// ActiveInputProviders tracks the number of running input provider
	// goroutines.
	ActiveInputProviders metric.Int64UpDownCounter

	// ActiveAudioSubscribers tracks the number of live Audio Stream
	// Channel subscriptions.
	ActiveAudioSubscribers metric.Int64UpDownCounter

	// --- HTTP middleware ---

	// HTTPRequestDuration tracks HTTP request processing time. Use with attributes:
	//   attribute.String("method", ...), attribute.String("path", ...)
	HTTPRequestDuration metric.Float64Histogram
}

// latencyBuckets defines histogram bucket boundaries (in seconds) optimised
// for the chat-to-speech pipeline's latencies.
var latencyBuckets = []float64{
	0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10,
}

// NewMetrics creates a fully initialised [Metrics] struct using the given
// [metric.MeterProvider]. Returns an error if any instrument creation fails.
func NewMetrics(mp metric.MeterProvider) (*Metrics, error) {
	m := mp.Meter(meterName)
	var err error
	met := &Metrics{}

	// Histograms.
	if met.STTDuration, err = m.Float64Histogram("amaidesu.stt.duration",
		metric.WithDescription("Latency of speech-to-text transcription."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(latencyBuckets...),
	); err != nil {
		return nil, err
	}
	if met.DecisionDuration, err = m.Float64Histogram("amaidesu.decision.duration",
		metric.WithDescription("Latency from normalized message to published intent."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(latencyBuckets...),
	); err != nil {
		return nil, err
	}
	if met.RenderDuration, err = m.Float64Histogram("amaidesu.render.duration",
		metric.WithDescription("Latency of one output provider's render."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(latencyBuckets...),
	); err != nil {
		return nil, err
	}
	if met.TTSDuration, err = m.Float64Histogram("amaidesu.tts.duration",
		metric.WithDescription("Latency of text-to-speech synthesis."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(latencyBuckets...),
	); err != nil {
		return nil, err
	}
	if met.ToolExecutionDuration, err = m.Float64Histogram("amaidesu.tool_execution.duration",
		metric.WithDescription("Latency of MCP tool execution."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(latencyBuckets...),
	); err != nil {
		return nil, err
	}

	// Counters.
	if met.MessagesIngested, err = m.Int64Counter("amaidesu.messages.ingested",
		metric.WithDescription("Total normalized messages by source and data type."),
	); err != nil {
		return nil, err
	}
	if met.PipelineDrops, err = m.Int64Counter("amaidesu.pipeline.drops",
		metric.WithDescription("Total messages dropped by an input pipeline."),
	); err != nil {
		return nil, err
	}
	if met.IntentsPublished, err = m.Int64Counter("amaidesu.intents.published",
		metric.WithDescription("Total decision.intent events by decision provider."),
	); err != nil {
		return nil, err
	}
	if met.ToolCalls, err = m.Int64Counter("amaidesu.tool.calls",
		metric.WithDescription("Total tool invocations by tool name and status."),
	); err != nil {
		return nil, err
	}
	if met.EmotionMismatches, err = m.Int64Counter("amaidesu.emotion.mismatches",
		metric.WithDescription("Total decision.intent Emotion values disagreeing with the emotion-judge heuristic."),
	); err != nil {
		return nil, err
	}
	if met.AudioChunksDropped, err = m.Int64Counter("amaidesu.audio.chunks_dropped",
		metric.WithDescription("Total audio chunks dropped by subscriber backpressure."),
	); err != nil {
		return nil, err
	}

	// Error counters.
	if met.ProviderErrors, err = m.Int64Counter("amaidesu.provider.errors",
		metric.WithDescription("Total provider errors by provider and layer."),
	); err != nil {
		return nil, err
	}

	// Gauges (UpDownCounters).
	if met.ActiveInputProviders, err = m.Int64UpDownCounter("amaidesu.active_input_providers",
		metric.WithDescription("Number of running input provider goroutines."),
	); err != nil {
		return nil, err
	}
	if met.ActiveAudioSubscribers, err = m.Int64UpDownCounter("amaidesu.active_audio_subscribers",
		metric.WithDescription("Number of live audio stream subscriptions."),
	); err != nil {
		return nil, err
	}

	// HTTP middleware histogram.
	if met.HTTPRequestDuration, err = m.Float64Histogram("amaidesu.http.request.duration",
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

// RecordMessageIngested records one normalized message reaching the bus.
func (m *Metrics) RecordMessageIngested(ctx context.Context, source, dataType string) {
	m.MessagesIngested.Add(ctx, 1,
		metric.WithAttributes(
			attribute.String("source", source),
			attribute.String("data_type", dataType),
		),
	)
}

// RecordPipelineDrop records one message dropped by the named pipeline.
func (m *Metrics) RecordPipelineDrop(ctx context.Context, pipeline string) {
	m.PipelineDrops.Add(ctx, 1,
		metric.WithAttributes(attribute.String("pipeline", pipeline)),
	)
}

// RecordIntentPublished records one decision.intent emission.
func (m *Metrics) RecordIntentPublished(ctx context.Context, provider string) {
	m.IntentsPublished.Add(ctx, 1,
		metric.WithAttributes(attribute.String("provider", provider)),
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

// RecordEmotionMismatch records a counter increment when a heuristic
// sentiment check disagrees with an Intent's declared Emotion.
func (m *Metrics) RecordEmotionMismatch(ctx context.Context, declared, heuristic string) {
	m.EmotionMismatches.Add(ctx, 1,
		metric.WithAttributes(
			attribute.String("declared", declared),
			attribute.String("heuristic", heuristic),
		),
	)
}

// RecordProviderError records a provider error counter increment.
func (m *Metrics) RecordProviderError(ctx context.Context, provider, layer string) {
	m.ProviderErrors.Add(ctx, 1,
		metric.WithAttributes(
			attribute.String("provider", provider),
			attribute.String("layer", layer),
		),
	)
}

// Copyright 2025 Tom Barlow
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package tracing wires OpenTelemetry spans and Prometheus metrics around
// the hub's tool calls and composed-tool executions. It is ambient
// instrumentation: spans and counters are recorded around existing
// decision points and never change control flow.
package tracing

import (
	"context"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracegrpc"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracehttp"
	"go.opentelemetry.io/otel/exporters/prometheus"
	"go.opentelemetry.io/otel/exporters/stdout/stdouttrace"
	"go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.26.0"
	"go.opentelemetry.io/otel/trace"

	"github.com/tombee/switchboard/pkg/observability"
)

// Exporter selects where spans go.
type Exporter string

const (
	// ExporterNone records spans in-process only.
	ExporterNone Exporter = ""
	// ExporterConsole pretty-prints spans to stdout.
	ExporterConsole Exporter = "console"
	// ExporterOTLPGRPC ships spans to an OTLP collector over gRPC.
	ExporterOTLPGRPC Exporter = "otlp-grpc"
	// ExporterOTLPHTTP ships spans to an OTLP collector over HTTP.
	ExporterOTLPHTTP Exporter = "otlp-http"
)

// Config tunes the provider.
type Config struct {
	ServiceName    string
	ServiceVersion string

	// Exporter selects the span exporter; metrics always go to the
	// Prometheus registry.
	Exporter Exporter

	// Endpoint is the OTLP collector address for the otlp exporters.
	Endpoint string
}

// SpanSink receives completed spans for persistence. The history store
// satisfies it, giving the hub the same span-to-SQLite pipeline the spans
// would otherwise only have through an OTLP collector.
type SpanSink interface {
	AppendSpan(ctx context.Context, span observability.Span) error
}

// OTelProvider wraps the OpenTelemetry SDK to implement the
// observability.TracerProvider interface.
type OTelProvider struct {
	tp               *sdktrace.TracerProvider
	mp               *metric.MeterProvider
	promExporter     *prometheus.Exporter
	metricsCollector *MetricsCollector

	sinkMu sync.RWMutex
	sink   SpanSink
}

// SetSpanSink installs the sink completed spans are delivered to. May be
// called after construction; a nil sink disables delivery.
func (p *OTelProvider) SetSpanSink(sink SpanSink) {
	p.sinkMu.Lock()
	defer p.sinkMu.Unlock()
	p.sink = sink
}

func (p *OTelProvider) spanSink() SpanSink {
	p.sinkMu.RLock()
	defer p.sinkMu.RUnlock()
	return p.sink
}

// NewOTelProvider creates an OpenTelemetry-backed tracer and meter
// provider for the hub.
func NewOTelProvider(ctx context.Context, cfg Config) (*OTelProvider, error) {
	if cfg.ServiceName == "" {
		cfg.ServiceName = "switchboard"
	}

	// Note: empty schema URL avoids conflicts when merging with the
	// default resource.
	res, err := resource.Merge(
		resource.Default(),
		resource.NewWithAttributes(
			"",
			semconv.ServiceName(cfg.ServiceName),
			semconv.ServiceVersion(cfg.ServiceVersion),
		),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create resource: %w", err)
	}

	opts := []sdktrace.TracerProviderOption{sdktrace.WithResource(res)}

	exporter, err := newSpanExporter(ctx, cfg)
	if err != nil {
		return nil, err
	}
	if exporter != nil {
		opts = append(opts, sdktrace.WithBatcher(exporter))
	}

	tp := sdktrace.NewTracerProvider(opts...)

	// Set as global tracer provider (for libraries that use otel.Tracer)
	otel.SetTracerProvider(tp)

	promExporter, err := prometheus.New()
	if err != nil {
		return nil, fmt.Errorf("failed to create prometheus exporter: %w", err)
	}

	mp := metric.NewMeterProvider(
		metric.WithResource(res),
		metric.WithReader(promExporter),
	)

	metricsCollector, err := NewMetricsCollector(mp)
	if err != nil {
		return nil, fmt.Errorf("failed to create metrics collector: %w", err)
	}

	return &OTelProvider{
		tp:               tp,
		mp:               mp,
		promExporter:     promExporter,
		metricsCollector: metricsCollector,
	}, nil
}

func newSpanExporter(ctx context.Context, cfg Config) (sdktrace.SpanExporter, error) {
	switch cfg.Exporter {
	case ExporterNone:
		return nil, nil
	case ExporterConsole:
		return stdouttrace.New(stdouttrace.WithPrettyPrint())
	case ExporterOTLPGRPC:
		return otlptracegrpc.New(ctx,
			otlptracegrpc.WithEndpoint(cfg.Endpoint),
			otlptracegrpc.WithInsecure())
	case ExporterOTLPHTTP:
		return otlptracehttp.New(ctx,
			otlptracehttp.WithEndpoint(cfg.Endpoint),
			otlptracehttp.WithInsecure())
	default:
		return nil, fmt.Errorf("unknown span exporter %q", cfg.Exporter)
	}
}

// Tracer returns a tracer for the given instrumentation scope.
func (p *OTelProvider) Tracer(name string) observability.Tracer {
	return &otelTracer{tracer: p.tp.Tracer(name), provider: p}
}

// Shutdown flushes any pending spans and releases resources.
func (p *OTelProvider) Shutdown(ctx context.Context) error {
	if err := p.tp.Shutdown(ctx); err != nil {
		return err
	}
	if p.mp != nil {
		return p.mp.Shutdown(ctx)
	}
	return nil
}

// ForceFlush exports all pending spans synchronously.
func (p *OTelProvider) ForceFlush(ctx context.Context) error {
	if err := p.tp.ForceFlush(ctx); err != nil {
		return err
	}
	if p.mp != nil {
		return p.mp.ForceFlush(ctx)
	}
	return nil
}

// MetricsCollector returns the collector for recording hub metrics.
func (p *OTelProvider) MetricsCollector() *MetricsCollector {
	return p.metricsCollector
}

// MetricsHandler returns an HTTP handler for the Prometheus metrics
// endpoint. The OpenTelemetry prometheus exporter registers with the
// default registry, so promhttp.Handler() exposes everything.
func (p *OTelProvider) MetricsHandler() http.Handler {
	return promhttp.Handler()
}

// otelTracer wraps an OpenTelemetry tracer.
type otelTracer struct {
	tracer   trace.Tracer
	provider *OTelProvider
}

// Start begins a new span.
func (t *otelTracer) Start(ctx context.Context, name string, opts ...observability.SpanOption) (context.Context, observability.SpanHandle) {
	cfg := &observability.SpanConfig{}
	for _, opt := range opts {
		opt.ApplySpanOption(cfg)
	}

	var otelOpts []trace.SpanStartOption

	switch cfg.SpanKind {
	case observability.SpanKindClient:
		otelOpts = append(otelOpts, trace.WithSpanKind(trace.SpanKindClient))
	case observability.SpanKindServer:
		otelOpts = append(otelOpts, trace.WithSpanKind(trace.SpanKindServer))
	case observability.SpanKindProducer:
		otelOpts = append(otelOpts, trace.WithSpanKind(trace.SpanKindProducer))
	case observability.SpanKindConsumer:
		otelOpts = append(otelOpts, trace.WithSpanKind(trace.SpanKindConsumer))
	default:
		otelOpts = append(otelOpts, trace.WithSpanKind(trace.SpanKindInternal))
	}

	if len(cfg.Attributes) > 0 {
		attrs := make([]attribute.KeyValue, 0, len(cfg.Attributes))
		for k, v := range cfg.Attributes {
			attrs = append(attrs, toAttribute(k, v))
		}
		otelOpts = append(otelOpts, trace.WithAttributes(attrs...))
	}

	// Shadow-record the span so a completed observability.Span can be
	// delivered to the provider's sink, independent of the OTLP exporters.
	rec := observability.Span{
		Name:      name,
		Kind:      cfg.SpanKind,
		StartTime: time.Now(),
	}
	if rec.Kind == "" {
		rec.Kind = observability.SpanKindInternal
	}
	if len(cfg.Attributes) > 0 {
		rec.Attributes = make(map[string]any, len(cfg.Attributes))
		for k, v := range cfg.Attributes {
			rec.Attributes[k] = v
		}
	}
	if parent := trace.SpanContextFromContext(ctx); parent.IsValid() {
		rec.ParentID = parent.SpanID().String()
	}

	ctx, span := t.tracer.Start(ctx, name, otelOpts...)
	return ctx, &otelSpan{span: span, provider: t.provider, rec: rec}
}

// otelSpan wraps an OpenTelemetry span.
type otelSpan struct {
	span     trace.Span
	provider *OTelProvider

	mu    sync.Mutex
	rec   observability.Span
	ended bool
}

// End marks the span as complete and delivers the recorded span to the
// provider's sink, if one is installed. Calling End again is a no-op.
func (s *otelSpan) End(opts ...observability.SpanEndOption) {
	cfg := &observability.SpanEndConfig{}
	for _, opt := range opts {
		opt.ApplySpanEndOption(cfg)
	}
	s.span.End()

	s.mu.Lock()
	if s.ended {
		s.mu.Unlock()
		return
	}
	s.ended = true
	s.rec.EndTime = time.Now()
	sc := s.span.SpanContext()
	s.rec.TraceID = sc.TraceID().String()
	s.rec.SpanID = sc.SpanID().String()
	rec := s.rec
	s.mu.Unlock()

	if s.provider == nil {
		return
	}
	if sink := s.provider.spanSink(); sink != nil {
		// Best effort; span persistence never fails the traced work.
		_ = sink.AppendSpan(context.Background(), rec)
	}
}

// SetStatus sets the span's final status.
func (s *otelSpan) SetStatus(code observability.StatusCode, message string) {
	s.mu.Lock()
	s.rec.Status = observability.SpanStatus{Code: code, Message: message}
	s.mu.Unlock()

	var otelCode codes.Code
	switch code {
	case observability.StatusCodeOK:
		otelCode = codes.Ok
	case observability.StatusCodeError:
		otelCode = codes.Error
	default:
		otelCode = codes.Unset
	}
	s.span.SetStatus(otelCode, message)
}

// SetAttributes adds key-value metadata to the span.
func (s *otelSpan) SetAttributes(attrs map[string]any) {
	s.mu.Lock()
	if s.rec.Attributes == nil {
		s.rec.Attributes = make(map[string]any, len(attrs))
	}
	for k, v := range attrs {
		s.rec.Attributes[k] = v
	}
	s.mu.Unlock()

	otelAttrs := make([]attribute.KeyValue, 0, len(attrs))
	for k, v := range attrs {
		otelAttrs = append(otelAttrs, toAttribute(k, v))
	}
	s.span.SetAttributes(otelAttrs...)
}

// AddEvent records a timestamped event within the span.
func (s *otelSpan) AddEvent(name string, attrs map[string]any) {
	s.mu.Lock()
	s.rec.Events = append(s.rec.Events, observability.Event{
		Name:       name,
		Timestamp:  time.Now(),
		Attributes: attrs,
	})
	s.mu.Unlock()

	otelAttrs := make([]attribute.KeyValue, 0, len(attrs))
	for k, v := range attrs {
		otelAttrs = append(otelAttrs, toAttribute(k, v))
	}
	s.span.AddEvent(name, trace.WithAttributes(otelAttrs...))
}

// SpanContext returns the span's trace context.
func (s *otelSpan) SpanContext() observability.TraceContext {
	sc := s.span.SpanContext()
	return observability.TraceContext{
		TraceID:    sc.TraceID().String(),
		SpanID:     sc.SpanID().String(),
		TraceFlags: byte(sc.TraceFlags()),
		TraceState: sc.TraceState().String(),
	}
}

// RecordError records an error that occurred during span execution.
func (s *otelSpan) RecordError(err error) {
	s.mu.Lock()
	s.rec.Status = observability.SpanStatus{Code: observability.StatusCodeError, Message: err.Error()}
	s.mu.Unlock()

	s.span.RecordError(err)
	s.span.SetStatus(codes.Error, err.Error())
}

// toAttribute converts an arbitrary value to an OpenTelemetry attribute.
func toAttribute(key string, value any) attribute.KeyValue {
	switch v := value.(type) {
	case string:
		return attribute.String(key, v)
	case bool:
		return attribute.Bool(key, v)
	case int:
		return attribute.Int(key, v)
	case int64:
		return attribute.Int64(key, v)
	case float64:
		return attribute.Float64(key, v)
	default:
		return attribute.String(key, fmt.Sprintf("%v", v))
	}
}

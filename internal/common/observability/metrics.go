package observability

import (
	"context"
	"log"
	"time"

	promclient "github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/otlptranslator"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/exporters/prometheus"
	otelmetric "go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/trace"
	"go.opentelemetry.io/otel/trace/noop"
)

type Observability struct {
	meterProvider  *metric.MeterProvider
	tracerProvider *sdktrace.TracerProvider
	tracer         trace.Tracer
	runCounter     otelmetric.Int64Counter
	stageLatency   otelmetric.Float64Histogram
}

type settings struct {
	registerer     promclient.Registerer
	spanProcessors []sdktrace.SpanProcessor
	global         bool
}

// Option customises New.
type Option func(*settings)

// WithRegisterer registers the Prometheus exporter on reg instead of the
// default registry.
func WithRegisterer(reg promclient.Registerer) Option {
	return func(s *settings) { s.registerer = reg }
}

// WithSpanProcessor attaches a span processor (exporter or test recorder).
func WithSpanProcessor(sp sdktrace.SpanProcessor) Option {
	return func(s *settings) { s.spanProcessors = append(s.spanProcessors, sp) }
}

// WithoutGlobal keeps the providers out of the otel globals.
func WithoutGlobal() Option {
	return func(s *settings) { s.global = false }
}

func New(serviceName string, opts ...Option) *Observability {
	s := &settings{global: true}
	for _, opt := range opts {
		opt(s)
	}

	res := resource.NewSchemaless(attribute.String("service.name", serviceName))

	tpOpts := []sdktrace.TracerProviderOption{sdktrace.WithResource(res)}
	for _, sp := range s.spanProcessors {
		tpOpts = append(tpOpts, sdktrace.WithSpanProcessor(sp))
	}
	tracerProvider := sdktrace.NewTracerProvider(tpOpts...)
	if s.global {
		otel.SetTracerProvider(tracerProvider)
	}

	o := &Observability{
		tracerProvider: tracerProvider,
		tracer:         tracerProvider.Tracer(serviceName),
	}

	exporterOpts := []prometheus.Option{
		prometheus.WithTranslationStrategy(otlptranslator.UnderscoreEscapingWithSuffixes),
	}
	if s.registerer != nil {
		exporterOpts = append(exporterOpts, prometheus.WithRegisterer(s.registerer))
	}
	exporter, err := prometheus.New(exporterOpts...)
	if err != nil {
		log.Printf("Failed to create Prometheus exporter: %v", err)
		return o
	}

	provider := metric.NewMeterProvider(metric.WithReader(exporter), metric.WithResource(res))
	if s.global {
		otel.SetMeterProvider(provider)
	}

	meter := provider.Meter(serviceName)

	runCounter, _ := meter.Int64Counter(
		"agri.pipeline.runs",
		otelmetric.WithDescription("Number of pipeline runs"),
	)

	stageLatency, _ := meter.Float64Histogram(
		"agri.pipeline.stage.latency",
		otelmetric.WithDescription("Pipeline stage latency"),
		otelmetric.WithUnit("ms"),
	)

	o.meterProvider = provider
	o.runCounter = runCounter
	o.stageLatency = stageLatency
	return o
}

// StartSpan opens a span named name. A nil receiver yields a no-op span.
func (o *Observability) StartSpan(ctx context.Context, name string, attrs ...attribute.KeyValue) (context.Context, trace.Span) {
	if o == nil || o.tracer == nil {
		return noop.NewTracerProvider().Tracer("").Start(ctx, name)
	}
	return o.tracer.Start(ctx, name, trace.WithAttributes(attrs...))
}

// EndSpan records err on span, if any, and ends it.
func EndSpan(span trace.Span, err error) {
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	} else {
		span.SetStatus(codes.Ok, "")
	}
	span.End()
}

func (o *Observability) RecordRun(ctx context.Context, taskType, outcome string) {
	if o == nil || o.runCounter == nil {
		return
	}
	o.runCounter.Add(ctx, 1, otelmetric.WithAttributes(
		attribute.String("task_type", taskType),
		attribute.String("outcome", outcome),
	))
}

func (o *Observability) RecordStageDuration(ctx context.Context, taskType, stage string, duration time.Duration) {
	if o == nil || o.stageLatency == nil {
		return
	}
	o.stageLatency.Record(ctx, float64(duration.Milliseconds()), otelmetric.WithAttributes(
		attribute.String("task_type", taskType),
		attribute.String("stage", stage),
	))
}

func (o *Observability) Shutdown() {
	if o == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if o.meterProvider != nil {
		_ = o.meterProvider.Shutdown(ctx)
	}
	if o.tracerProvider != nil {
		_ = o.tracerProvider.Shutdown(ctx)
	}
}

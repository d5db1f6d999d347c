// Package telemetry wires OpenTelemetry tracing and metrics for the gateway.
// When disabled every helper is a no-op.
package telemetry

import (
	"context"
	"fmt"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/otlp/otlpmetric/otlpmetricgrpc"
	"go.opentelemetry.io/otel/exporters/otlp/otlpmetric/otlpmetrichttp"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracegrpc"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracehttp"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/metric/noop"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/trace"
	tracenoop "go.opentelemetry.io/otel/trace/noop"
	"go.uber.org/zap"

	"github.com/straja-ai/tonegate/internal/redact"
)

const instrumentationName = "tonegate"

// Config controls telemetry setup.
type Config struct {
	Enabled  bool
	Endpoint string
	Protocol string // grpc | http
	Service  string
	Version  string
}

// Provider wires tracer/meter providers and exposes helpers.
type Provider struct {
	Enabled bool
	tracer  trace.Tracer
	meter   metric.Meter

	requestsCounter       metric.Int64Counter
	requestDuration       metric.Float64Histogram
	entitlementDuration   metric.Float64Histogram
	inferenceDuration     metric.Float64Histogram
	wastedInference       metric.Int64Counter
	shutdownTraceProvider func(context.Context) error
	shutdownMeterProvider func(context.Context) error
}

// NewProvider configures OTLP exporters and providers. When disabled it
// returns no-op providers.
func NewProvider(ctx context.Context, cfg Config, logger *zap.Logger) (*Provider, error) {
	if ctx == nil {
		ctx = context.Background()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	if !cfg.Enabled {
		return newProvider(tracenoop.NewTracerProvider().Tracer(""), noop.NewMeterProvider().Meter("")), nil
	}

	logger.Info("telemetry enabled; periodic upload warnings are expected when no collector is listening",
		zap.String("protocol", strings.ToLower(cfg.Protocol)),
		redact.URL("endpoint", cfg.Endpoint),
	)

	res, err := resource.New(ctx,
		resource.WithFromEnv(),
		resource.WithTelemetrySDK(),
		resource.WithAttributes(
			attribute.String("service.name", cfg.Service),
			attribute.String("service.version", cfg.Version),
		),
	)
	if err != nil {
		return nil, err
	}

	var (
		traceExp  sdktrace.SpanExporter
		metricExp sdkmetric.Exporter
	)
	switch strings.ToLower(cfg.Protocol) {
	case "", "grpc":
		if traceExp, err = otlptracegrpc.New(ctx, otlptracegrpc.WithEndpoint(cfg.Endpoint), otlptracegrpc.WithInsecure()); err != nil {
			return nil, err
		}
		if metricExp, err = otlpmetricgrpc.New(ctx, otlpmetricgrpc.WithEndpoint(cfg.Endpoint), otlpmetricgrpc.WithInsecure()); err != nil {
			return nil, err
		}
	case "http":
		if traceExp, err = otlptracehttp.New(ctx, otlptracehttp.WithEndpoint(cfg.Endpoint), otlptracehttp.WithInsecure()); err != nil {
			return nil, err
		}
		if metricExp, err = otlpmetrichttp.New(ctx, otlpmetrichttp.WithEndpoint(cfg.Endpoint), otlpmetrichttp.WithInsecure()); err != nil {
			return nil, err
		}
	default:
		return nil, fmt.Errorf("telemetry: unknown protocol %q", cfg.Protocol)
	}

	tp := sdktrace.NewTracerProvider(
		sdktrace.WithSampler(sdktrace.AlwaysSample()),
		sdktrace.WithBatcher(traceExp),
		sdktrace.WithResource(res),
	)
	otel.SetTracerProvider(tp)

	mp := sdkmetric.NewMeterProvider(sdkmetric.WithResource(res), sdkmetric.WithReader(sdkmetric.NewPeriodicReader(metricExp)))
	otel.SetMeterProvider(mp)

	p := newProvider(tp.Tracer(instrumentationName), mp.Meter(instrumentationName))
	p.Enabled = true
	p.shutdownTraceProvider = tp.Shutdown
	p.shutdownMeterProvider = mp.Shutdown
	return p, nil
}

func newProvider(tracer trace.Tracer, meter metric.Meter) *Provider {
	p := &Provider{tracer: tracer, meter: meter}
	// Instrument errors are ignored to keep telemetry best-effort.
	p.requestsCounter, _ = meter.Int64Counter("tonegate_requests_total")
	p.requestDuration, _ = meter.Float64Histogram("tonegate_request_duration_ms")
	p.entitlementDuration, _ = meter.Float64Histogram("tonegate_entitlement_duration_ms")
	p.inferenceDuration, _ = meter.Float64Histogram("tonegate_inference_duration_ms")
	p.wastedInference, _ = meter.Int64Counter("tonegate_inference_discarded_total")
	return p
}

// Tracer returns the tracer.
func (p *Provider) Tracer() trace.Tracer {
	if p == nil {
		return tracenoop.NewTracerProvider().Tracer("")
	}
	return p.tracer
}

// Meter returns the meter.
func (p *Provider) Meter() metric.Meter {
	if p == nil {
		return noop.NewMeterProvider().Meter("")
	}
	return p.meter
}

// Shutdown flushes providers.
func (p *Provider) Shutdown(ctx context.Context) {
	if p == nil {
		return
	}
	if p.shutdownTraceProvider != nil {
		_ = p.shutdownTraceProvider(ctx)
	}
	if p.shutdownMeterProvider != nil {
		_ = p.shutdownMeterProvider(ctx)
	}
}

// RequestMetrics describes one finished gateway request.
type RequestMetrics struct {
	Decision        string
	Strategy        string
	Persona         string
	Status          int
	Total           time.Duration
	Entitlement     time.Duration
	Inference       time.Duration
	InferenceCalled bool
}

// RecordRequest emits counters and histograms with safe labels.
func (p *Provider) RecordRequest(ctx context.Context, m RequestMetrics) {
	if p == nil {
		return
	}
	labels := metric.WithAttributes(
		attribute.String("tonegate.decision", m.Decision),
		attribute.String("tonegate.strategy", m.Strategy),
		attribute.String("tonegate.persona", m.Persona),
		attribute.Int("http.status_code", m.Status),
	)
	p.requestsCounter.Add(ctx, 1, labels)
	p.requestDuration.Record(ctx, millis(m.Total), labels)
	if m.Entitlement > 0 {
		p.entitlementDuration.Record(ctx, millis(m.Entitlement), labels)
	}
	if m.Inference > 0 {
		p.inferenceDuration.Record(ctx, millis(m.Inference), labels)
	}
	// Inference that ran but whose result was not returned.
	if m.InferenceCalled && m.Status != 200 {
		p.wastedInference.Add(ctx, 1, labels)
	}
}

func millis(d time.Duration) float64 {
	return float64(d) / float64(time.Millisecond)
}

package telemetry

import (
	"context"
	"testing"
	"time"

	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"
	tracenoop "go.opentelemetry.io/otel/trace/noop"
)

func TestDisabledProviderIsNoop(t *testing.T) {
	p, err := NewProvider(context.Background(), Config{}, nil)
	if err != nil {
		t.Fatalf("new provider: %v", err)
	}
	if p.Enabled {
		t.Fatal("expected disabled provider")
	}
	p.RecordRequest(context.Background(), RequestMetrics{Decision: "allow", Status: 200, Total: time.Millisecond})
	p.Shutdown(context.Background())

	var nilProvider *Provider
	nilProvider.RecordRequest(context.Background(), RequestMetrics{})
	_ = nilProvider.Tracer()
}

func TestRecordRequestCountsDecisions(t *testing.T) {
	reader := sdkmetric.NewManualReader()
	mp := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))
	defer func() { _ = mp.Shutdown(context.Background()) }()

	p := newProvider(tracenoop.NewTracerProvider().Tracer(""), mp.Meter(instrumentationName))
	ctx := context.Background()
	p.RecordRequest(ctx, RequestMetrics{Decision: "allow", Strategy: "concurrent", Persona: "polite", Status: 200, Total: 12 * time.Millisecond, Inference: 10 * time.Millisecond, InferenceCalled: true})
	p.RecordRequest(ctx, RequestMetrics{Decision: "denied", Strategy: "concurrent", Persona: "polite", Status: 403, Total: 8 * time.Millisecond, InferenceCalled: true})

	var rm metricdata.ResourceMetrics
	if err := reader.Collect(ctx, &rm); err != nil {
		t.Fatalf("collect: %v", err)
	}

	totals := map[string]int64{}
	for _, sm := range rm.ScopeMetrics {
		for _, m := range sm.Metrics {
			sum, ok := m.Data.(metricdata.Sum[int64])
			if !ok {
				continue
			}
			for _, dp := range sum.DataPoints {
				totals[m.Name] += dp.Value
			}
		}
	}
	if totals["tonegate_requests_total"] != 2 {
		t.Fatalf("requests_total = %d, want 2", totals["tonegate_requests_total"])
	}
	if totals["tonegate_inference_discarded_total"] != 1 {
		t.Fatalf("inference_discarded_total = %d, want 1", totals["tonegate_inference_discarded_total"])
	}
}

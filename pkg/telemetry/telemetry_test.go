package telemetry

import (
	"bytes"
	"context"
	"errors"
	"testing"

	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
)

func newTestInstrumentation() (*Instrumentation, *tracetest.SpanRecorder, *sdkmetric.ManualReader) {
	sr := tracetest.NewSpanRecorder()
	reader := sdkmetric.NewManualReader()
	inst := NewInstrumentation(InstrumentationParams{
		TracerProvider: sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(sr)),
		MeterProvider:  sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader)),
		ServiceName:    "ExampleService",
	})
	return inst, sr, reader
}

func TestInstrumentation_NamesTransaction(t *testing.T) {
	inst, sr, reader := newTestInstrumentation()

	ctx, end := inst.StartRequest(context.Background(), "http", "POST /pingPong")
	if err := inst.BeforeDispatch(ctx, "pingPong"); err != nil {
		t.Fatalf("telemetry:telemetry_test - unexpected error: %v", err)
	}
	end(nil)

	spans := sr.Ended()
	if len(spans) != 1 {
		t.Fatalf("telemetry:telemetry_test - ended spans = %d, want 1", len(spans))
	}
	if spans[0].Name() != "ExampleService/pingPong" {
		t.Errorf("telemetry:telemetry_test - span name = %q", spans[0].Name())
	}

	var rm metricdata.ResourceMetrics
	if err := reader.Collect(context.Background(), &rm); err != nil {
		t.Fatalf("telemetry:telemetry_test - collect: %v", err)
	}
	found := map[string]bool{}
	for _, sm := range rm.ScopeMetrics {
		for _, m := range sm.Metrics {
			found[m.Name] = true
		}
	}
	for _, name := range []string{"rpc.server.requests", "bridge.dispatch.calls", "rpc.server.duration"} {
		if !found[name] {
			t.Errorf("telemetry:telemetry_test - metric %s not recorded", name)
		}
	}
}

func TestInstrumentation_ErrorStatus(t *testing.T) {
	inst, sr, _ := newTestInstrumentation()
	_, end := inst.StartRequest(context.Background(), "thrift", "complex")
	end(errors.New("ExampleException"))

	spans := sr.Ended()
	if len(spans) != 1 || spans[0].Status().Description != "ExampleException" {
		t.Errorf("telemetry:telemetry_test - expected error status, got %+v", spans)
	}
}

func TestInstrumentation_NoActiveSpan(t *testing.T) {
	inst, _, _ := newTestInstrumentation()
	if err := inst.BeforeDispatch(context.Background(), "pingPong"); !errors.Is(err, ErrNoActiveSpan) {
		t.Errorf("telemetry:telemetry_test - expected ErrNoActiveSpan, got %v", err)
	}
}

func TestInstrumentation_Nil(t *testing.T) {
	var inst *Instrumentation
	ctx, end := inst.StartRequest(context.Background(), "http", "x")
	end(nil)
	if err := inst.BeforeDispatch(ctx, "x"); err != nil {
		t.Errorf("telemetry:telemetry_test - nil instrumentation should be a no-op, got %v", err)
	}
}

func TestSetup(t *testing.T) {
	var buf bytes.Buffer
	p, err := Setup(SetupParams{Exporter: ExporterStdout, Writer: &buf})
	if err != nil {
		t.Fatalf("telemetry:telemetry_test - unexpected error: %v", err)
	}
	if err := p.Shutdown(context.Background()); err != nil {
		t.Errorf("telemetry:telemetry_test - shutdown: %v", err)
	}
	if _, err := Setup(SetupParams{Exporter: "zipkin"}); err == nil {
		t.Error("telemetry:telemetry_test - expected error for unknown exporter")
	}
}

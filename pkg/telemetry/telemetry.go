// Package telemetry provides OpenTelemetry spans and metrics for bridged calls.
//
// Each transport opens a server span per request with StartRequest. Once the function
// name is resolved, the Instrumentation, installed as the registry's pre-dispatch hook,
// renames that span after the function and counts the call.
package telemetry

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
)

const instrumentationName = "idl_bridge"

// ErrNoActiveSpan is returned by the hook when the request has no recording span.
var ErrNoActiveSpan = errors.New("no active transaction to name")

// InstrumentationParams configures an Instrumentation. Nil providers fall back to the
// global ones.
type InstrumentationParams struct {
	TracerProvider trace.TracerProvider
	MeterProvider  metric.MeterProvider
	ServiceName    string
}

// Instrumentation opens request spans and names them after the dispatched function.
// A nil *Instrumentation is valid and does nothing.
type Instrumentation struct {
	tracer   trace.Tracer
	service  string
	requests metric.Int64Counter
	calls    metric.Int64Counter
	duration metric.Float64Histogram
}

// NewInstrumentation creates an Instrumentation.
func NewInstrumentation(p InstrumentationParams) *Instrumentation {
	if p.TracerProvider == nil {
		p.TracerProvider = otel.GetTracerProvider()
	}
	if p.MeterProvider == nil {
		p.MeterProvider = otel.GetMeterProvider()
	}
	if p.ServiceName == "" {
		p.ServiceName = "IdlBridge"
	}

	meter := p.MeterProvider.Meter(instrumentationName)
	i := &Instrumentation{
		tracer:  p.TracerProvider.Tracer(instrumentationName),
		service: p.ServiceName,
	}
	i.requests, _ = meter.Int64Counter("rpc.server.requests",
		metric.WithUnit("{request}"),
		metric.WithDescription("Number of transport requests"),
	)
	i.calls, _ = meter.Int64Counter("bridge.dispatch.calls",
		metric.WithUnit("{call}"),
		metric.WithDescription("Number of resolved function calls"),
	)
	i.duration, _ = meter.Float64Histogram("rpc.server.duration",
		metric.WithUnit("s"),
		metric.WithDescription("Duration of transport requests"),
	)
	return i
}

// StartRequest opens a server span for one transport request. The returned function
// ends it; a non-nil error marks the span failed.
func (i *Instrumentation) StartRequest(ctx context.Context, transport, route string) (context.Context, func(err error)) {
	if i == nil {
		return ctx, func(error) {}
	}
	start := time.Now()
	ctx, span := i.tracer.Start(ctx, fmt.Sprintf("%s %s", transport, route),
		trace.WithSpanKind(trace.SpanKindServer),
		trace.WithAttributes(
			attribute.String("rpc.system", transport),
			attribute.String("rpc.service", i.service),
		),
	)

	return ctx, func(err error) {
		status := "ok"
		if err != nil {
			status = "error"
			span.SetStatus(codes.Error, err.Error())
			span.RecordError(err)
		} else {
			span.SetStatus(codes.Ok, "")
		}
		attrs := metric.WithAttributes(
			attribute.String("rpc.system", transport),
			attribute.String("rpc.service", i.service),
			attribute.String("status", status),
		)
		if i.requests != nil {
			i.requests.Add(ctx, 1, attrs)
		}
		if i.duration != nil {
			i.duration.Record(ctx, time.Since(start).Seconds(), attrs)
		}
		span.End()
	}
}

// BeforeDispatch names the active transaction after the resolved function.
func (i *Instrumentation) BeforeDispatch(ctx context.Context, name string) error {
	if i == nil {
		return nil
	}
	span := trace.SpanFromContext(ctx)
	if !span.IsRecording() {
		return ErrNoActiveSpan
	}
	span.SetName(fmt.Sprintf("%s/%s", i.service, name))
	span.SetAttributes(attribute.String("rpc.method", name))
	if i.calls != nil {
		i.calls.Add(ctx, 1, metric.WithAttributes(
			attribute.String("rpc.service", i.service),
			attribute.String("rpc.method", name),
		))
	}
	return nil
}

package telemetry

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/exporters/stdout/stdoutmetric"
	"go.opentelemetry.io/otel/exporters/stdout/stdouttrace"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
)

const logPrefix = "telemetry:provider"

// Exporter names accepted by Setup.
const (
	ExporterStdout = "stdout"
	ExporterNone   = "none"
)

// SetupParams configures the SDK providers.
type SetupParams struct {
	Exporter string
	// Writer receives stdout exporter output. Defaults to os.Stdout.
	Writer io.Writer
}

// Providers holds the installed SDK providers.
type Providers struct {
	Tracer *sdktrace.TracerProvider
	Meter  *sdkmetric.MeterProvider
}

// Setup installs global tracer and meter providers.
func Setup(p SetupParams) (*Providers, error) {
	w := p.Writer
	if w == nil {
		w = os.Stdout
	}

	var tpOpts []sdktrace.TracerProviderOption
	var mpOpts []sdkmetric.Option
	switch p.Exporter {
	case ExporterStdout:
		traceExp, err := stdouttrace.New(stdouttrace.WithWriter(w))
		if err != nil {
			return nil, fmt.Errorf("%s - failed to create trace exporter: %w", logPrefix, err)
		}
		metricExp, err := stdoutmetric.New(stdoutmetric.WithWriter(w))
		if err != nil {
			return nil, fmt.Errorf("%s - failed to create metric exporter: %w", logPrefix, err)
		}
		tpOpts = append(tpOpts, sdktrace.WithBatcher(traceExp))
		mpOpts = append(mpOpts, sdkmetric.WithReader(sdkmetric.NewPeriodicReader(metricExp)))
	case ExporterNone, "":
	default:
		return nil, fmt.Errorf("%s - unknown exporter %q", logPrefix, p.Exporter)
	}

	providers := &Providers{
		Tracer: sdktrace.NewTracerProvider(tpOpts...),
		Meter:  sdkmetric.NewMeterProvider(mpOpts...),
	}
	otel.SetTracerProvider(providers.Tracer)
	otel.SetMeterProvider(providers.Meter)
	slog.Info(fmt.Sprintf("%s - Telemetry enabled (exporter=%s)", logPrefix, p.Exporter))
	return providers, nil
}

// Shutdown flushes and stops both providers.
func (p *Providers) Shutdown(ctx context.Context) error {
	if p == nil {
		return nil
	}
	return errors.Join(p.Tracer.Shutdown(ctx), p.Meter.Shutdown(ctx))
}

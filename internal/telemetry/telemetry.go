// Package telemetry wires the global OTel tracer and meter providers used
// by internal/engine and internal/search. By default the process runs with
// the SDK's no-op providers (spans and counters are free); Bootstrap swaps
// in real providers backed by the stdout exporters so a local run can watch
// its own write and search activity without standing up a collector.
package telemetry

import (
	"context"
	"fmt"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/exporters/stdout/stdoutmetric"
	"go.opentelemetry.io/otel/exporters/stdout/stdouttrace"
	"go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/trace"
)

// Shutdown flushes and stops whatever providers Bootstrap installed. It is a
// no-op when telemetry was never bootstrapped.
type Shutdown func(context.Context) error

// Bootstrap installs a stdout-exporting TracerProvider and MeterProvider as
// the process-wide OTel globals. Callers should invoke the returned Shutdown
// once during orderly teardown to flush buffered spans and metrics.
func Bootstrap() (Shutdown, error) {
	traceExporter, err := stdouttrace.New(stdouttrace.WithPrettyPrint())
	if err != nil {
		return nil, fmt.Errorf("telemetry: new trace exporter: %w", err)
	}
	tp := trace.NewTracerProvider(trace.WithBatcher(traceExporter))
	otel.SetTracerProvider(tp)

	metricExporter, err := stdoutmetric.New()
	if err != nil {
		return nil, fmt.Errorf("telemetry: new metric exporter: %w", err)
	}
	mp := metric.NewMeterProvider(metric.WithReader(metric.NewPeriodicReader(metricExporter)))
	otel.SetMeterProvider(mp)

	return func(ctx context.Context) error {
		if err := tp.Shutdown(ctx); err != nil {
			return err
		}
		return mp.Shutdown(ctx)
	}, nil
}

// Package telemetry records task lifecycle metrics with OpenTelemetry.
package telemetry

import (
	"context"
	"fmt"
	"io"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/stdout/stdoutmetric"
	"go.opentelemetry.io/otel/metric"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"

	"github.com/omnitool/omnitool/internal/service"
)

const instrumentationName = "github.com/omnitool/omnitool/internal/telemetry"

// Metrics holds the task instruments.
type Metrics struct {
	started  metric.Int64Counter
	finished metric.Int64Counter
	live     metric.Int64UpDownCounter
	duration metric.Float64Histogram
}

func New(mp metric.MeterProvider) (*Metrics, error) {
	meter := mp.Meter(instrumentationName)

	started, err := meter.Int64Counter("omnitool.tasks.started",
		metric.WithDescription("Number of worker processes started"),
		metric.WithUnit("{task}"))
	if err != nil {
		return nil, fmt.Errorf("creating started counter: %w", err)
	}
	finished, err := meter.Int64Counter("omnitool.tasks.finished",
		metric.WithDescription("Number of tasks reaching a terminal state"),
		metric.WithUnit("{task}"))
	if err != nil {
		return nil, fmt.Errorf("creating finished counter: %w", err)
	}
	live, err := meter.Int64UpDownCounter("omnitool.tasks.live",
		metric.WithDescription("Number of running worker processes"),
		metric.WithUnit("{task}"))
	if err != nil {
		return nil, fmt.Errorf("creating live counter: %w", err)
	}
	duration, err := meter.Float64Histogram("omnitool.tasks.duration",
		metric.WithDescription("Wall time of a worker process"),
		metric.WithUnit("s"))
	if err != nil {
		return nil, fmt.Errorf("creating duration histogram: %w", err)
	}

	return &Metrics{
		started:  started,
		finished: finished,
		live:     live,
		duration: duration,
	}, nil
}

// Options returns the supervisor options feeding the instruments.
func (m *Metrics) Options() []service.Option {
	return []service.Option{
		service.WithStartFunc(m.TaskStarted),
		service.WithExitFunc(m.TaskFinished),
	}
}

func (m *Metrics) TaskStarted(ctx context.Context, h *service.Handle) {
	kind := metric.WithAttributes(attribute.String("kind", h.Kind().String()))
	m.started.Add(ctx, 1, kind)
	m.live.Add(ctx, 1, kind)
}

func (m *Metrics) TaskFinished(ctx context.Context, exit service.Exit) {
	kind := attribute.String("kind", exit.Kind.String())
	m.finished.Add(ctx, 1, metric.WithAttributes(kind, attribute.String("state", exit.State.String())))
	if exit.PID == 0 {
		// never started
		return
	}
	m.live.Add(ctx, -1, metric.WithAttributes(kind))
	m.duration.Record(ctx, exit.Stopped.Sub(exit.Started).Seconds(), metric.WithAttributes(kind))
}

// NewStdoutProvider returns a provider exporting to w every interval and
// on shutdown.
func NewStdoutProvider(w io.Writer, interval time.Duration) (*sdkmetric.MeterProvider, error) {
	exp, err := stdoutmetric.New(
		stdoutmetric.WithWriter(w),
		stdoutmetric.WithoutTimestamps(),
	)
	if err != nil {
		return nil, fmt.Errorf("creating stdout exporter: %w", err)
	}
	reader := sdkmetric.NewPeriodicReader(exp, sdkmetric.WithInterval(interval))
	return sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader)), nil
}

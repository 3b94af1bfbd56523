package bridge

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"

	"github.com/ashita-ai/mado/internal/telemetry"
)

type metrics struct {
	meter    metric.Meter
	submits  metric.Int64Counter
	runTime  metric.Float64Histogram
	waitTime metric.Float64Histogram
	depth    metric.Int64ObservableGauge

	// Set while the bridge is registered with a host; guarded by regMu.
	depthReg metric.Registration
}

// newMetrics creates bridge instruments. The otel API returns a usable
// instrument alongside any error, so errors are only logged.
func newMetrics(logger *slog.Logger) *metrics {
	meter := telemetry.Meter("mado/bridge")
	m := &metrics{meter: meter}
	var err, errs error
	m.submits, err = meter.Int64Counter("mado.bridge.submits",
		metric.WithDescription("Submissions by outcome"),
	)
	errs = errors.Join(errs, err)
	m.runTime, err = meter.Float64Histogram("mado.bridge.run.duration",
		metric.WithDescription("Time spent executing a work item on the host thread (ms)"),
		metric.WithUnit("ms"),
	)
	errs = errors.Join(errs, err)
	m.waitTime, err = meter.Float64Histogram("mado.bridge.queue.wait",
		metric.WithDescription("Time from enqueue to completion (ms)"),
		metric.WithUnit("ms"),
	)
	errs = errors.Join(errs, err)
	m.depth, err = meter.Int64ObservableGauge("mado.bridge.queue.depth",
		metric.WithDescription("Work items waiting for the host thread"),
	)
	errs = errors.Join(errs, err)
	if errs != nil {
		logger.Warn("bridge: metric instruments", "error", errs)
	}
	return m
}

// observeDepth starts reporting b's queue depth until stopDepth. Only a
// registered bridge reports, so a replaced bridge drops out of the gauge.
func (m *metrics) observeDepth(b *Bridge) {
	if m.depthReg != nil {
		return
	}
	reg, err := m.meter.RegisterCallback(func(_ context.Context, o metric.Observer) error {
		o.ObserveInt64(m.depth, int64(b.Pending()))
		return nil
	}, m.depth)
	if err != nil {
		b.logger.Warn("bridge: queue depth gauge", "error", err)
		return
	}
	m.depthReg = reg
}

func (m *metrics) stopDepth() {
	if m.depthReg == nil {
		return
	}
	_ = m.depthReg.Unregister()
	m.depthReg = nil
}

func (m *metrics) submitted(ctx context.Context, status string) {
	m.submits.Add(ctx, 1, metric.WithAttributes(attribute.String("status", status)))
}

func (m *metrics) ran(run, wait time.Duration, err error) {
	attrs := metric.WithAttributes(attribute.Bool("error", err != nil))
	ctx := context.Background()
	m.runTime.Record(ctx, float64(run.Microseconds())/1000, attrs)
	m.waitTime.Record(ctx, float64(wait.Microseconds())/1000, attrs)
}

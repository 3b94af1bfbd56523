package bridge

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"
)

func TestMetrics_RecordedThroughGlobalProvider(t *testing.T) {
	reader := sdkmetric.NewManualReader()
	prev := otel.GetMeterProvider()
	otel.SetMeterProvider(sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader)))
	t.Cleanup(func() { otel.SetMeterProvider(prev) })

	b, _ := readyBridge(t, time.Second)
	t.Cleanup(b.Stop)
	errc := submitAsync(t, b, func() (any, error) { return "ok", nil })
	b.Pump()
	require.NoError(t, <-errc)

	var rm metricdata.ResourceMetrics
	require.NoError(t, reader.Collect(context.Background(), &rm))

	var names []string
	for _, sm := range rm.ScopeMetrics {
		for _, m := range sm.Metrics {
			names = append(names, m.Name)
		}
	}
	assert.Contains(t, names, "mado.bridge.submits")
	assert.Contains(t, names, "mado.bridge.run.duration")
	assert.Contains(t, names, "mado.bridge.queue.wait")
	assert.Contains(t, names, "mado.bridge.queue.depth")
}

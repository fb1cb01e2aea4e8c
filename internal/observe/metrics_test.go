package observe

import (
	"context"
	"testing"

	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"
)

// newTestMeter returns a Metrics instance backed by a manual reader so tests
// can collect and inspect recorded data.
func newTestMeter(t *testing.T) (*Metrics, *sdkmetric.ManualReader) {
	t.Helper()
	reader := sdkmetric.NewManualReader()
	mp := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))
	t.Cleanup(func() { _ = mp.Shutdown(context.Background()) })

	m, err := NewMetrics(mp)
	if err != nil {
		t.Fatalf("NewMetrics: %v", err)
	}
	return m, reader
}

func collect(t *testing.T, reader *sdkmetric.ManualReader) metricdata.ResourceMetrics {
	t.Helper()
	var rm metricdata.ResourceMetrics
	if err := reader.Collect(context.Background(), &rm); err != nil {
		t.Fatalf("Collect: %v", err)
	}
	return rm
}

func findMetric(rm metricdata.ResourceMetrics, name string) (metricdata.Metrics, bool) {
	for _, scope := range rm.ScopeMetrics {
		for _, m := range scope.Metrics {
			if m.Name == name {
				return m, true
			}
		}
	}
	return metricdata.Metrics{}, false
}

func TestNewMetricsCreatesAllInstruments(t *testing.T) {
	t.Parallel()

	m, _ := newTestMeter(t)

	if m.TurnsStarted == nil || m.TurnsCompleted == nil || m.TurnsErrored == nil || m.TurnsInterrupted == nil {
		t.Error("turn counters not initialised")
	}
	if m.TurnDuration == nil || m.FirstMediaLatency == nil || m.DriftMs == nil {
		t.Error("histograms not initialised")
	}
	if m.OutboundEvents == nil || m.ActiveSessions == nil || m.HTTPRequestDuration == nil {
		t.Error("remaining instruments not initialised")
	}
}

func TestTurnCounters(t *testing.T) {
	t.Parallel()

	m, reader := newTestMeter(t)
	ctx := context.Background()

	m.TurnsStarted.Add(ctx, 1)
	m.TurnsStarted.Add(ctx, 1)
	m.TurnsCompleted.Add(ctx, 1)

	rm := collect(t, reader)
	started, ok := findMetric(rm, "visema.turns.started")
	if !ok {
		t.Fatal("visema.turns.started not collected")
	}
	sum, ok := started.Data.(metricdata.Sum[int64])
	if !ok || len(sum.DataPoints) != 1 {
		t.Fatalf("unexpected data shape %T", started.Data)
	}
	if got := sum.DataPoints[0].Value; got != 2 {
		t.Errorf("turns started = %d, want 2", got)
	}
}

func TestRecordOutboundEventByType(t *testing.T) {
	t.Parallel()

	m, reader := newTestMeter(t)
	ctx := context.Background()

	m.RecordOutboundEvent(ctx, "text_delta")
	m.RecordOutboundEvent(ctx, "text_delta")
	m.RecordOutboundEvent(ctx, "audio_chunk")

	rm := collect(t, reader)
	events, ok := findMetric(rm, "visema.outbound.events")
	if !ok {
		t.Fatal("visema.outbound.events not collected")
	}
	sum := events.Data.(metricdata.Sum[int64])
	if len(sum.DataPoints) != 2 {
		t.Fatalf("data points = %d, want one per event type", len(sum.DataPoints))
	}
}

func TestRecordDriftUsesMagnitude(t *testing.T) {
	t.Parallel()

	m, reader := newTestMeter(t)
	ctx := context.Background()

	m.RecordDrift(ctx, -120)
	m.RecordDrift(ctx, 40)

	rm := collect(t, reader)
	drift, ok := findMetric(rm, "visema.alignment.drift")
	if !ok {
		t.Fatal("visema.alignment.drift not collected")
	}
	hist := drift.Data.(metricdata.Histogram[float64])
	if len(hist.DataPoints) != 1 {
		t.Fatalf("data points = %d, want 1", len(hist.DataPoints))
	}
	dp := hist.DataPoints[0]
	if dp.Count != 2 {
		t.Errorf("sample count = %d, want 2", dp.Count)
	}
	if dp.Sum != 160 {
		t.Errorf("sum = %v, want 160 (magnitudes)", dp.Sum)
	}
}

func TestDefaultMetricsIsSingleton(t *testing.T) {
	t.Parallel()

	a := DefaultMetrics()
	b := DefaultMetrics()
	if a != b {
		t.Error("DefaultMetrics returned different instances")
	}
}

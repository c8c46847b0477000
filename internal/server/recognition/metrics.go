package recognition

import (
	"context"
	"time"

	"github.com/dmitrijs2005/voicenotes/internal/server/models"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
)

const instrumentationName = "github.com/dmitrijs2005/voicenotes/recognition"

type workerMetrics struct {
	results  metric.Int64Counter
	requeued metric.Int64Counter
	duration metric.Float64Histogram
	queued   metric.Int64Gauge
}

// newWorkerMetrics registers the worker instruments on mp, or on the global
// provider when mp is nil. Instrument creation errors fall back to no-ops.
func newWorkerMetrics(mp metric.MeterProvider) *workerMetrics {
	if mp == nil {
		mp = otel.GetMeterProvider()
	}
	meter := mp.Meter(instrumentationName)

	m := &workerMetrics{}
	m.results, _ = meter.Int64Counter("voicenotes.recognition.results",
		metric.WithDescription("Notes that reached a terminal recognition status."))
	m.requeued, _ = meter.Int64Counter("voicenotes.recognition.requeued",
		metric.WithDescription("Notes put back to Queued after an interrupted recognition."))
	m.duration, _ = meter.Float64Histogram("voicenotes.recognition.duration",
		metric.WithUnit("s"),
		metric.WithDescription("Time from claim to terminal status."))
	m.queued, _ = meter.Int64Gauge("voicenotes.recognition.queued",
		metric.WithDescription("Queued notes seen by the last poll."))
	return m
}

func (m *workerMetrics) observeResult(ctx context.Context, st models.RecognitionStatus, d time.Duration) {
	attrs := metric.WithAttributes(attribute.String("status", string(st)))
	if m.results != nil {
		m.results.Add(ctx, 1, attrs)
	}
	if m.duration != nil {
		m.duration.Record(ctx, d.Seconds(), attrs)
	}
}

func (m *workerMetrics) observeRequeue(ctx context.Context) {
	if m.requeued != nil {
		m.requeued.Add(ctx, 1)
	}
}

func (m *workerMetrics) observeQueue(ctx context.Context, n int) {
	if m.queued != nil {
		m.queued.Record(ctx, int64(n))
	}
}

func defaultTracer() trace.Tracer {
	return otel.Tracer(instrumentationName)
}

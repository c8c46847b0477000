package recognition

import (
	"time"

	"github.com/dmitrijs2005/voicenotes/internal/logging"
	"github.com/dmitrijs2005/voicenotes/internal/server/events"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
)

type Option func(*Worker)

func WithPollInterval(d time.Duration) Option {
	return func(w *Worker) {
		if d > 0 {
			w.pollInterval = d
		}
	}
}

// WithTranscriptionTimeout bounds a single transcription call. Zero means no
// limit beyond the transcriber's own.
func WithTranscriptionTimeout(d time.Duration) Option {
	return func(w *Worker) { w.timeout = d }
}

// WithLanguage sets the language hint passed to the transcriber.
func WithLanguage(lang string) Option {
	return func(w *Worker) { w.language = lang }
}

func WithNotifier(n events.Notifier) Option {
	return func(w *Worker) {
		if n != nil {
			w.notifier = n
		}
	}
}

func WithLogger(l logging.Logger) Option {
	return func(w *Worker) {
		if l != nil {
			w.log = l
		}
	}
}

// WithRecoverStranded controls whether Run requeues notes left in
// Recognizing before the first poll.
func WithRecoverStranded(enabled bool) Option {
	return func(w *Worker) { w.recoverStranded = enabled }
}

func WithClock(now func() time.Time) Option {
	return func(w *Worker) { w.now = now }
}

func WithMeterProvider(mp metric.MeterProvider) Option {
	return func(w *Worker) { w.metrics = newWorkerMetrics(mp) }
}

func WithTracerProvider(tp trace.TracerProvider) Option {
	return func(w *Worker) {
		if tp != nil {
			w.tracer = tp.Tracer(instrumentationName)
		}
	}
}

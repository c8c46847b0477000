// Package recognition runs the background worker that moves queued notes
// through transcription.
package recognition

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/dmitrijs2005/voicenotes/internal/common"
	"github.com/dmitrijs2005/voicenotes/internal/logging"
	"github.com/dmitrijs2005/voicenotes/internal/server/events"
	"github.com/dmitrijs2005/voicenotes/internal/server/media"
	"github.com/dmitrijs2005/voicenotes/internal/server/models"
	"github.com/dmitrijs2005/voicenotes/internal/server/transcription"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

const (
	DefaultPollInterval = 3 * time.Second

	// MsgAudioNotFound is stored on notes whose audio is missing.
	MsgAudioNotFound = "audio file not found"

	finalWriteTimeout = 5 * time.Second
)

// NoteStore is the part of notes.Store the worker needs.
type NoteStore interface {
	ListByStatus(ctx context.Context, status models.RecognitionStatus) ([]*models.NoteRecord, error)
	TransitionStatus(ctx context.Context, id string, from, to models.RecognitionStatus) (bool, error)
	UpdateStatus(ctx context.Context, id string, status models.RecognitionStatus,
		recognizedText, categoryLabel, errorMessage string) error
}

// Worker polls for Queued notes and transcribes them one at a time.
type Worker struct {
	store       NoteStore
	media       media.Storage
	transcriber transcription.Client
	notifier    events.Notifier
	log         logging.Logger

	pollInterval    time.Duration
	timeout         time.Duration
	language        string
	recoverStranded bool
	now             func() time.Time

	metrics *workerMetrics
	tracer  trace.Tracer
}

func New(store NoteStore, storage media.Storage, transcriber transcription.Client, opts ...Option) *Worker {
	w := &Worker{
		store:           store,
		media:           storage,
		transcriber:     transcriber,
		notifier:        events.Multi{},
		log:             logging.Nop{},
		pollInterval:    DefaultPollInterval,
		recoverStranded: true,
		now:             time.Now,
	}
	for _, opt := range opts {
		opt(w)
	}
	w.log = w.log.With("module", "recognition")
	if w.metrics == nil {
		w.metrics = newWorkerMetrics(nil)
	}
	if w.tracer == nil {
		w.tracer = defaultTracer()
	}
	return w
}

// Run processes queued notes until ctx is cancelled. Failures inside an
// iteration are logged and never stop the loop.
func (w *Worker) Run(ctx context.Context) error {
	w.log.Info(ctx, "recognition worker started", "poll_interval", w.pollInterval.String())
	defer w.log.Info(context.WithoutCancel(ctx), "recognition worker stopped")

	if w.recoverStranded {
		if n, err := w.RecoverStranded(ctx); err != nil {
			w.log.Error(ctx, "failed to requeue stranded notes", "error", err)
		} else if n > 0 {
			w.log.Warn(ctx, "requeued notes left in Recognizing", "count", n)
		}
	}

	// the first poll comes one interval after start, like every later one
	timer := time.NewTimer(w.pollInterval)
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-timer.C:
		}

		w.safeRunOnce(ctx)
		timer.Reset(w.pollInterval)
	}
}

func (w *Worker) safeRunOnce(ctx context.Context) {
	defer func() {
		if r := recover(); r != nil {
			w.log.Error(ctx, "recognition iteration panicked", "panic", fmt.Sprint(r))
		}
	}()

	if _, err := w.RunOnce(ctx); err != nil && ctx.Err() == nil {
		w.log.Error(ctx, "recognition iteration failed", "error", err)
	}
}

// RunOnce handles every note that is Queued right now and returns how many
// of them this worker claimed.
func (w *Worker) RunOnce(ctx context.Context) (int, error) {
	queued, err := w.store.ListByStatus(ctx, models.StatusQueued)
	if err != nil {
		return 0, fmt.Errorf("list queued notes: %w", err)
	}
	w.metrics.observeQueue(ctx, len(queued))

	claimed := 0
	for _, rec := range queued {
		if ctx.Err() != nil {
			break
		}
		if w.process(ctx, rec) {
			claimed++
		}
	}
	return claimed, nil
}

// RecoverStranded puts notes left in Recognizing by a previous run back to
// Queued.
func (w *Worker) RecoverStranded(ctx context.Context) (int, error) {
	stranded, err := w.store.ListByStatus(ctx, models.StatusRecognizing)
	if err != nil {
		return 0, fmt.Errorf("list recognizing notes: %w", err)
	}

	n := 0
	for _, rec := range stranded {
		ok, err := w.store.TransitionStatus(ctx, rec.ID, models.StatusRecognizing, models.StatusQueued)
		if err != nil {
			return n, fmt.Errorf("requeue note %s: %w", rec.ID, err)
		}
		if ok {
			n++
			w.notify(ctx, rec.ID, models.StatusQueued, "")
		}
	}
	return n, nil
}

func (w *Worker) process(ctx context.Context, rec *models.NoteRecord) (claimed bool) {
	log := w.log.With("note_id", rec.ID)

	ok, err := w.store.TransitionStatus(ctx, rec.ID, models.StatusQueued, models.StatusRecognizing)
	if err != nil {
		log.Error(ctx, "failed to claim note", "error", err)
		return false
	}
	if !ok {
		log.Debug(ctx, "note claimed elsewhere, skipping")
		return false
	}
	claimed = true
	w.notify(ctx, rec.ID, models.StatusRecognizing, "")

	ctx, span := w.tracer.Start(ctx, "recognition.note", trace.WithAttributes(attribute.String("note.id", rec.ID)))
	defer span.End()

	started := w.now()

	defer func() {
		if r := recover(); r != nil {
			log.Error(ctx, "recognition panicked", "panic", fmt.Sprint(r))
			span.SetStatus(codes.Error, "panic")
			w.fail(ctx, log, rec.ID, fmt.Sprintf("recognition failed: %v", r), started)
		}
	}()

	text, err := w.recognize(ctx, rec)
	switch {
	case err == nil:
		w.complete(ctx, log, rec.ID, text, started)
	case ctx.Err() != nil:
		w.requeue(ctx, log, rec.ID)
		span.SetStatus(codes.Error, "cancelled")
	case errors.Is(err, common.ErrFileNotFound):
		span.RecordError(err)
		span.SetStatus(codes.Error, MsgAudioNotFound)
		w.fail(ctx, log, rec.ID, MsgAudioNotFound, started)
	default:
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		w.fail(ctx, log, rec.ID, "recognition failed: "+err.Error(), started)
	}
	return true
}

func (w *Worker) recognize(ctx context.Context, rec *models.NoteRecord) (string, error) {
	if rec.AudioPath == "" {
		return "", common.ErrFileNotFound
	}

	exists, err := w.media.Exists(ctx, rec.AudioPath)
	if err != nil {
		return "", err
	}
	if !exists {
		return "", fmt.Errorf("%w: %s", common.ErrFileNotFound, rec.AudioPath)
	}

	path, release, err := w.media.Fetch(ctx, rec.AudioPath)
	if err != nil {
		return "", err
	}
	defer release()

	if w.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, w.timeout)
		defer cancel()
	}

	res, err := w.transcriber.Transcribe(ctx, path, w.language)
	if err != nil {
		return "", err
	}
	return res.Text, nil
}

// writeContext outlives cancellation of ctx so that a final status write is
// not lost when the worker is stopped mid-note.
func writeContext(ctx context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.WithoutCancel(ctx), finalWriteTimeout)
}

func (w *Worker) complete(ctx context.Context, log logging.Logger, id, text string, started time.Time) {
	wctx, cancel := writeContext(ctx)
	defer cancel()

	if err := w.store.UpdateStatus(wctx, id, models.StatusCompleted, text, "", ""); err != nil {
		log.Error(ctx, "failed to store recognition result", "error", err)
		return
	}
	w.metrics.observeResult(ctx, models.StatusCompleted, w.now().Sub(started))
	w.notify(ctx, id, models.StatusCompleted, "")
	log.Info(ctx, "note recognized", "chars", len(text))
}

func (w *Worker) fail(ctx context.Context, log logging.Logger, id, msg string, started time.Time) {
	wctx, cancel := writeContext(ctx)
	defer cancel()

	if err := w.store.UpdateStatus(wctx, id, models.StatusFailed, "", "", msg); err != nil {
		log.Error(ctx, "failed to store recognition failure", "error", err)
		return
	}
	w.metrics.observeResult(ctx, models.StatusFailed, w.now().Sub(started))
	w.notify(ctx, id, models.StatusFailed, msg)
	log.Warn(ctx, "note recognition failed", "reason", msg)
}

func (w *Worker) requeue(ctx context.Context, log logging.Logger, id string) {
	wctx, cancel := writeContext(ctx)
	defer cancel()

	ok, err := w.store.TransitionStatus(wctx, id, models.StatusRecognizing, models.StatusQueued)
	if err != nil {
		log.Error(ctx, "failed to requeue interrupted note", "error", err)
		return
	}
	if ok {
		w.metrics.observeRequeue(wctx)
		w.notify(wctx, id, models.StatusQueued, "")
		log.Info(ctx, "interrupted note requeued")
	}
}

func (w *Worker) notify(ctx context.Context, id string, st models.RecognitionStatus, msg string) {
	w.notifier.Notify(ctx, events.StatusChange{NoteID: id, Status: st, ErrorMessage: msg, At: w.now().UTC()})
}

// Package httpapi exposes the notes API over HTTP: multipart note upload,
// recognition requests, note lookup, synchronous transcription and a
// WebSocket stream of status changes.
package httpapi

import (
	"context"
	"net/http"

	"github.com/dmitrijs2005/voicenotes/internal/logging"
	"github.com/dmitrijs2005/voicenotes/internal/server/events"
	"github.com/dmitrijs2005/voicenotes/internal/server/models"
	"github.com/dmitrijs2005/voicenotes/internal/server/services"
	"github.com/dmitrijs2005/voicenotes/internal/server/transcription"
	"github.com/gorilla/mux"
	"go.opentelemetry.io/otel/metric"
)

// NoteService is implemented by services.NoteService.
type NoteService interface {
	CreateNote(ctx context.Context, in services.CreateNoteInput) (*models.NoteResponse, error)
	GetNote(ctx context.Context, id string) (*models.NoteResponse, error)
	StartRecognition(ctx context.Context, id string) (*models.NoteResponse, error)
	Transcribe(ctx context.Context, audio services.Upload, language string) (*transcription.Result, error)
}

// maxUploadMemory is how much of a multipart body is kept in memory; the
// rest spills to temporary files.
const maxUploadMemory = 32 << 20

type API struct {
	svc       NoteService
	hub       *events.Hub
	secret    []byte
	metrics   http.Handler
	ready     func() bool
	log       logging.Logger
	meter     metric.MeterProvider
	maxUpload int64
}

type Option func(*API)

// WithAuthSecret turns on bearer-token authentication for the note, API and
// event routes.
func WithAuthSecret(secret string) Option {
	return func(a *API) { a.secret = []byte(secret) }
}

// WithEvents serves GET /events from hub.
func WithEvents(hub *events.Hub) Option {
	return func(a *API) { a.hub = hub }
}

// WithMetricsHandler serves h on GET /metrics.
func WithMetricsHandler(h http.Handler) Option {
	return func(a *API) { a.metrics = h }
}

// WithReadiness makes /healthz report 503 while ready returns false.
func WithReadiness(ready func() bool) Option {
	return func(a *API) { a.ready = ready }
}

func WithLogger(l logging.Logger) Option {
	return func(a *API) {
		if l != nil {
			a.log = l
		}
	}
}

func WithMeterProvider(mp metric.MeterProvider) Option {
	return func(a *API) { a.meter = mp }
}

// WithMaxUploadSize caps request bodies of the upload endpoints.
func WithMaxUploadSize(n int64) Option {
	return func(a *API) {
		if n > 0 {
			a.maxUpload = n
		}
	}
}

func New(svc NoteService, opts ...Option) *API {
	a := &API{
		svc:       svc,
		log:       logging.Nop{},
		maxUpload: 256 << 20,
	}
	for _, opt := range opts {
		opt(a)
	}
	a.log = a.log.With("module", "httpapi")
	return a
}

// Handler builds the router.
func (a *API) Handler() http.Handler {
	router := mux.NewRouter()
	router.Use(newRequestMetrics(a.meter).middleware)

	router.HandleFunc("/healthz", a.handleHealth).Methods(http.MethodGet)
	if a.metrics != nil {
		router.Handle("/metrics", a.metrics).Methods(http.MethodGet)
	}

	notes := router.PathPrefix("/notes").Subrouter()
	notes.Use(a.authenticate)
	notes.HandleFunc("", a.handleCreateNote).Methods(http.MethodPost)
	notes.HandleFunc("/", a.handleCreateNote).Methods(http.MethodPost)
	notes.HandleFunc("/{id}/recognize", a.handleStartRecognition).Methods(http.MethodPost)
	notes.HandleFunc("/{id}", a.handleGetNote).Methods(http.MethodGet)

	api := router.PathPrefix("/api").Subrouter()
	api.Use(a.authenticate)
	api.HandleFunc("/whisper/transcribe", a.handleTranscribe).Methods(http.MethodPost)

	if a.hub != nil {
		ev := router.PathPrefix("/events").Subrouter()
		ev.Use(a.authenticate)
		ev.HandleFunc("", a.handleEvents).Methods(http.MethodGet)
	}

	return router
}

func (a *API) handleHealth(w http.ResponseWriter, r *http.Request) {
	if a.ready != nil && !a.ready() {
		respondJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "unavailable"})
		return
	}
	respondJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

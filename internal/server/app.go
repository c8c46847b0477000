// Package server wires the notes API, the recognition worker and the health
// service together and runs them until the process is signalled.
package server

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"sync"
	"syscall"
	"time"

	"github.com/dmitrijs2005/voicenotes/internal/logging"
	"github.com/dmitrijs2005/voicenotes/internal/server/config"
	"github.com/dmitrijs2005/voicenotes/internal/server/events"
	"github.com/dmitrijs2005/voicenotes/internal/server/httpapi"
	"github.com/dmitrijs2005/voicenotes/internal/server/media"
	"github.com/dmitrijs2005/voicenotes/internal/server/notes"
	"github.com/dmitrijs2005/voicenotes/internal/server/recognition"
	"github.com/dmitrijs2005/voicenotes/internal/server/services"
	"github.com/dmitrijs2005/voicenotes/internal/server/transcription"
	"github.com/dmitrijs2005/voicenotes/internal/telemetry"

	gs "github.com/dmitrijs2005/voicenotes/internal/server/grpc"
)

type App struct {
	config    *config.Config
	logger    logging.Logger
	telemetry *telemetry.Telemetry
	store     *notes.Store
	hub       *events.Hub
	nats      *events.NATSPublisher
	worker    *recognition.Worker
	http      *httpapi.Server
	health    *gs.HealthServer
}

func NewApp(ctx context.Context, c *config.Config) (*App, error) {
	logger := logging.New(os.Stdout, "json", c.LogLevel)

	if err := c.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	tel, err := telemetry.Setup(ctx, telemetry.Config{
		ServiceName:  "voicenotes-server",
		Environment:  c.Environment,
		OTLPEndpoint: c.OTLPEndpoint,
		OTLPInsecure: c.OTLPInsecure,
		StdoutTraces: c.StdoutTraces,
	}, logger)
	if err != nil {
		return nil, fmt.Errorf("telemetry init error: %w", err)
	}

	app := &App{config: c, logger: logger, telemetry: tel, hub: events.NewHub()}
	if err := app.build(ctx); err != nil {
		app.close(context.WithoutCancel(ctx))
		return nil, err
	}
	return app, nil
}

func (app *App) build(ctx context.Context) error {
	c := app.config

	store, err := notes.Open(c.DatabaseDriver, c.DatabaseDSN, notes.WithDefaultCategory(c.DefaultCategory))
	if err != nil {
		return fmt.Errorf("db init error: %w", err)
	}
	app.store = store

	storage, err := newMediaStorage(ctx, c)
	if err != nil {
		return fmt.Errorf("media init error: %w", err)
	}

	scratch, err := media.NewLocalStorage(filepath.Join(os.TempDir(), "voicenotes-scratch"))
	if err != nil {
		return fmt.Errorf("scratch init error: %w", err)
	}

	stt, err := newTranscriber(c)
	if err != nil {
		return fmt.Errorf("transcriber init error: %w", err)
	}

	notifier := events.Multi{app.hub}
	if c.NATSURL != "" {
		pub, err := events.ConnectNATS(c.NATSURL, c.NATSSubject, 5*time.Second, app.logger)
		if err != nil {
			return err
		}
		app.nats = pub
		notifier = append(notifier, pub)
	}

	svc := services.NewNoteService(store, storage,
		services.WithTranscriber(stt, scratch, c.WhisperLanguage),
		services.WithNotifier(notifier),
		services.WithLogger(app.logger))

	app.worker = recognition.New(store, storage, stt,
		recognition.WithPollInterval(c.PollInterval),
		recognition.WithTranscriptionTimeout(c.TranscriptionTimeout),
		recognition.WithLanguage(c.WhisperLanguage),
		recognition.WithRecoverStranded(c.RecoverStranded),
		recognition.WithNotifier(notifier),
		recognition.WithLogger(app.logger),
		recognition.WithMeterProvider(app.telemetry.MeterProvider),
		recognition.WithTracerProvider(app.telemetry.TracerProvider))

	app.health = gs.NewHealthServer(c.GRPCAddr, app.logger)

	opts := []httpapi.Option{
		httpapi.WithEvents(app.hub),
		httpapi.WithMetricsHandler(app.telemetry.MetricsHandler),
		httpapi.WithLogger(app.logger),
		httpapi.WithMeterProvider(app.telemetry.MeterProvider),
	}
	if c.SecretKey != "" {
		opts = append(opts, httpapi.WithAuthSecret(c.SecretKey))
	}
	if app.nats != nil {
		opts = append(opts, httpapi.WithReadiness(app.nats.Healthy))
	}
	api := httpapi.New(svc, opts...)
	app.http = httpapi.NewServer(c.HTTPAddr, api.Handler(), app.logger)

	return nil
}

func newMediaStorage(ctx context.Context, c *config.Config) (media.Storage, error) {
	if c.MediaBackend == config.MediaS3 {
		return media.NewS3Storage(ctx, media.S3Config{
			User:     c.S3RootUser,
			Password: c.S3RootPassword,
			Bucket:   c.S3Bucket,
			Region:   c.S3Region,
			Endpoint: c.S3BaseEndpoint,
		})
	}
	return media.NewLocalStorage(c.MediaDir)
}

func newTranscriber(c *config.Config) (transcription.Client, error) {
	if c.TranscriberMode == config.TranscriberExec {
		return transcription.NewExecClient(c.TranscriberCommand, c.WhisperModel)
	}
	return transcription.NewWhisperClient(c.WhisperBaseURL,
		transcription.WithModel(c.WhisperModel),
		transcription.WithTimeout(c.TranscriptionTimeout)), nil
}

func (app *App) initSignalHandler(cancelFunc context.CancelFunc) {
	// Channel to catch OS signals.
	sigs := make(chan os.Signal, 1)
	signal.Notify(sigs, syscall.SIGINT, syscall.SIGTERM, syscall.SIGQUIT)

	go func() {
		<-sigs
		cancelFunc()
	}()
}

// runComponent runs fn and cancels the whole app when it fails.
func (app *App) runComponent(ctx context.Context, cancelFunc context.CancelFunc, name string, fn func(context.Context) error) {
	if err := fn(ctx); err != nil && !errors.Is(err, context.Canceled) {
		app.logger.Error(ctx, name+" stopped with error", "error", err)
		cancelFunc()
	}
}

// Run blocks until ctx is cancelled, a signal arrives or a component fails.
func (app *App) Run(ctx context.Context) error {

	ctx, cancelFunc := context.WithCancel(ctx)
	defer cancelFunc()

	app.logger.Info(ctx, "Starting app...")

	if err := app.store.Init(ctx); err != nil {
		app.close(context.WithoutCancel(ctx))
		return fmt.Errorf("db init error: %w", err)
	}

	app.initSignalHandler(cancelFunc)

	var wg sync.WaitGroup

	for name, fn := range map[string]func(context.Context) error{
		"grpc server":        app.health.Run,
		"http server":        app.http.Run,
		"recognition worker": app.worker.Run,
	} {
		wg.Add(1)
		go func() {
			defer wg.Done()
			app.runComponent(ctx, cancelFunc, name, fn)
		}()
	}

	<-ctx.Done()
	app.health.SetServing(false)
	wg.Wait()

	app.close(context.WithoutCancel(ctx))
	app.logger.Info(context.WithoutCancel(ctx), "App stopped")
	return nil
}

func (app *App) close(ctx context.Context) {
	app.hub.Close()
	if app.nats != nil {
		app.nats.Close()
	}
	if app.store != nil {
		if err := app.store.Close(); err != nil {
			app.logger.Warn(ctx, "failed to close store", "error", err)
		}
	}

	shutdownCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := app.telemetry.Shutdown(shutdownCtx); err != nil {
		app.logger.Warn(ctx, "failed to shut down telemetry", "error", err)
	}
}

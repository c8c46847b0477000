package cli

import (
	"context"
	"fmt"
	"io"
	"os"
	"sync"
	"time"

	"github.com/dmitrijs2005/voicenotes/internal/client/api"
	"github.com/dmitrijs2005/voicenotes/internal/client/audio"
	"github.com/dmitrijs2005/voicenotes/internal/client/config"
	"github.com/dmitrijs2005/voicenotes/internal/client/connectivity"
	"github.com/dmitrijs2005/voicenotes/internal/client/models"
	"github.com/dmitrijs2005/voicenotes/internal/client/repositories"
	"github.com/dmitrijs2005/voicenotes/internal/client/repositories/metadata"
	"github.com/dmitrijs2005/voicenotes/internal/client/repositories/notes"
	"github.com/dmitrijs2005/voicenotes/internal/client/syncer"
	"github.com/dmitrijs2005/voicenotes/internal/logging"
	"github.com/google/uuid"
	"golang.org/x/term"
)

// scheduler is the part of the sync coordinator the commands use.
type scheduler interface {
	Track(note *models.VoiceNote)
	Retry(ctx context.Context, localID int64) (*models.VoiceNote, error)
	Pending() int
	Tracked() []string
}

type App struct {
	config *config.Config
	log    logging.Logger

	repos   *repositories.Repositories
	notes   notes.Repository
	monitor *connectivity.Monitor
	health  *connectivity.HealthChecker
	coord   *syncer.Coordinator
	sync    scheduler

	deviceID string

	in       io.Reader
	out      io.Writer
	termFd   int
	duration func(path string) (time.Duration, error)

	mu       sync.Mutex
	lastSeen map[int64]models.RecognitionStatus
}

// NewApp opens the local database and wires the sync machinery. Nothing
// runs in the background until Run.
func NewApp(ctx context.Context, c *config.Config) (*App, error) {
	if err := c.Validate(); err != nil {
		return nil, err
	}

	log := logging.New(os.Stderr, "text", c.LogLevel)

	repos, err := repositories.InitDatabase(ctx, c.DBPath, notes.WithDefaultCategory(c.DefaultCategory))
	if err != nil {
		return nil, fmt.Errorf("error initializing database: %w", err)
	}

	deviceID := c.DeviceID
	if deviceID == "" {
		deviceID, err = metadata.EnsureString(ctx, repos.Metadata, metadata.KeyDeviceID, uuid.NewString)
		if err != nil {
			_ = repos.Close()
			return nil, fmt.Errorf("load device id: %w", err)
		}
	}

	apiOpts := []api.Option{api.WithTimeout(c.RequestTimeout), api.WithLogger(log)}
	if c.SecretKey != "" {
		apiOpts = append(apiOpts, api.WithAuth(deviceID, []byte(c.SecretKey)))
	}
	remote, err := api.New(c.ServerBaseURL, apiOpts...)
	if err != nil {
		_ = repos.Close()
		return nil, err
	}

	health, err := connectivity.NewHealthChecker(c.GRPCAddr)
	if err != nil {
		_ = repos.Close()
		return nil, err
	}

	monitor := connectivity.NewMonitor(health,
		connectivity.WithInterval(c.OnlineCheckInterval),
		connectivity.WithLogger(log),
	)

	a := &App{
		config:   c,
		log:      log,
		repos:    repos,
		notes:    repos.Notes,
		monitor:  monitor,
		health:   health,
		deviceID: deviceID,
		in:       os.Stdin,
		out:      os.Stdout,
		termFd:   int(os.Stdout.Fd()),
		duration: audio.Duration,
		lastSeen: make(map[int64]models.RecognitionStatus),
	}

	a.coord = syncer.New(repos.Notes, remote, monitor,
		syncer.WithUploadWorkers(c.UploadWorkers),
		syncer.WithPollInterval(c.PollInterval),
		syncer.WithRetryDelay(c.RetryDelay),
		syncer.WithLogger(log),
		syncer.WithOnChange(a.noteChanged),
	)
	a.sync = a.coord

	return a, nil
}

// DeviceID is the identity the client authenticates with.
func (a *App) DeviceID() string {
	return a.deviceID
}

// Run starts the connectivity monitor and the coordinator, then serves the
// REPL until the user exits or ctx is cancelled. Background work is stopped
// and the database closed before Run returns.
func (a *App) Run(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		a.monitor.Run(ctx)
	}()
	a.coord.Start(ctx)

	printlnFn("Voice notes CLI (type 'help' for commands)")
	runREPL(ctx, a, a.prompt, scanLines(ctx, a.in))

	cancel()
	a.coord.Wait()
	wg.Wait()

	return a.Close()
}

func (a *App) Close() error {
	var err error
	if a.health != nil {
		err = a.health.Close()
	}
	if a.repos != nil {
		if cerr := a.repos.Close(); cerr != nil && err == nil {
			err = cerr
		}
	}
	return err
}

// prompt is only shown on an interactive terminal so that piped input
// produces clean output.
func (a *App) prompt() string {
	if !term.IsTerminal(a.termFd) {
		return ""
	}
	return fmt.Sprintf("vn (%s)>", a.monitor.Mode())
}

// noteChanged reports finished recognitions once per note.
func (a *App) noteChanged(n models.VoiceNote) {
	a.mu.Lock()
	prev, seen := a.lastSeen[n.LocalID]
	a.lastSeen[n.LocalID] = n.RecognitionStatus
	a.mu.Unlock()

	if !n.RecognitionStatus.IsTerminal() || (seen && prev == n.RecognitionStatus) {
		return
	}
	fmt.Fprintf(a.out, "Note #%d %q: %s\n", n.LocalID, n.Title, n.RecognitionStatus)
}

// Package syncer uploads locally captured voice notes to the server and
// mirrors the server's recognition progress back into the local database.
//
// Uploads are at-least-once: a note whose upload response was lost is sent
// again, and the server keeps both copies.
package syncer

import (
	"context"
	"errors"
	"sort"
	"sync"
	"time"

	"github.com/dmitrijs2005/voicenotes/internal/client/api"
	"github.com/dmitrijs2005/voicenotes/internal/client/models"
	"github.com/dmitrijs2005/voicenotes/internal/common"
	"github.com/dmitrijs2005/voicenotes/internal/logging"
)

const (
	DefaultPollInterval = 5 * time.Second
	DefaultRetryDelay   = 5 * time.Second

	// MsgRemoteMissing is stored as the note text when the server no longer
	// knows a note the client uploaded.
	MsgRemoteMissing = "note no longer exists on the server"

	msgSyncFailed = "sync failed"
	writeTimeout  = 5 * time.Second
)

type NoteRepository interface {
	List(ctx context.Context) ([]*models.VoiceNote, error)
	Get(ctx context.Context, localID int64) (*models.VoiceNote, error)
	UpdateSync(ctx context.Context, localID int64, serverID string,
		syncStatus models.SyncStatus, recognitionStatus models.RecognitionStatus,
		recognizedText, categoryLabel string) error
}

type RemoteAPI interface {
	Upload(ctx context.Context, req api.UploadRequest) (*api.NoteResponse, error)
	Get(ctx context.Context, id string) (*api.NoteResponse, error)
	StartRecognition(ctx context.Context, id string) (*api.NoteResponse, error)
}

type Connectivity interface {
	Online() bool
	Regained() <-chan struct{}
}

// Coordinator owns the upload queue and the set of notes awaiting
// recognition. All methods are safe for concurrent use.
type Coordinator struct {
	repo   NoteRepository
	remote RemoteAPI
	conn   Connectivity
	log    logging.Logger

	workers      int
	pollInterval time.Duration
	retryDelay   time.Duration
	onChange     func(models.VoiceNote)

	queue *workQueue

	mu      sync.Mutex
	tracked map[string]int64

	resyncMu sync.Mutex
	wg       sync.WaitGroup
}

func New(repo NoteRepository, remote RemoteAPI, conn Connectivity, opts ...Option) *Coordinator {
	c := &Coordinator{
		repo:         repo,
		remote:       remote,
		conn:         conn,
		log:          logging.Nop{},
		workers:      1,
		pollInterval: DefaultPollInterval,
		retryDelay:   DefaultRetryDelay,
		queue:        newWorkQueue(),
		tracked:      make(map[string]int64),
	}
	for _, opt := range opts {
		opt(c)
	}
	c.log = c.log.With("module", "syncer")
	return c
}

// Start recovers notes stranded in Uploading by a previous run, seeds the
// queue and launches the upload workers, the poll loop and the
// connectivity listener. They all stop when ctx is done; see Wait.
func (c *Coordinator) Start(ctx context.Context) {
	if err := c.recoverStranded(ctx); err != nil {
		c.log.Error(ctx, "failed to recover stranded uploads", "error", err)
	}
	if err := c.Resync(ctx); err != nil {
		c.log.Error(ctx, "failed to load pending notes", "error", err)
	}

	for i := 0; i < c.workers; i++ {
		c.wg.Add(1)
		go func(worker int) {
			defer c.wg.Done()
			c.uploadLoop(ctx, worker)
		}(i)
	}

	c.wg.Add(2)
	go func() {
		defer c.wg.Done()
		c.pollLoop(ctx)
	}()
	go func() {
		defer c.wg.Done()
		c.connectivityLoop(ctx)
	}()
}

// Wait blocks until every goroutine launched by Start has returned.
func (c *Coordinator) Wait() {
	c.wg.Wait()
}

// Track schedules a note: notes without a server id are queued for upload,
// the others are polled until recognition finishes.
func (c *Coordinator) Track(note *models.VoiceNote) {
	if note == nil {
		return
	}
	if note.ServerID == "" {
		c.queue.Push(note.LocalID)
		return
	}
	c.trackRecognition(note)
}

// Resync rescans the local database and schedules whatever still needs
// work. Calling it repeatedly is harmless.
func (c *Coordinator) Resync(ctx context.Context) error {
	c.resyncMu.Lock()
	defer c.resyncMu.Unlock()

	notes, err := c.repo.List(ctx)
	if err != nil {
		return err
	}

	for _, n := range notes {
		switch {
		case n.NeedsUpload():
			c.queue.Push(n.LocalID)
		case n.AwaitsRecognition():
			c.trackRecognition(n)
		}
	}
	return nil
}

// PollOnce resyncs and, when online, refreshes every tracked note once.
func (c *Coordinator) PollOnce(ctx context.Context) {
	if err := c.Resync(ctx); err != nil {
		c.log.Error(ctx, "failed to load pending notes", "error", err)
	}
	if !c.conn.Online() {
		return
	}

	for remoteID, localID := range c.trackedSnapshot() {
		if ctx.Err() != nil {
			return
		}
		if err := c.refresh(ctx, remoteID, localID); err != nil {
			if ctx.Err() != nil {
				return
			}
			c.log.Warn(ctx, "failed to refresh note", "remote_id", remoteID, "error", err)
		}
	}
}

// Retry puts a failed note back on its way: notes the server never got (or
// lost) are uploaded again, notes whose recognition failed are requeued on
// the server.
func (c *Coordinator) Retry(ctx context.Context, localID int64) (*models.VoiceNote, error) {
	note, err := c.repo.Get(ctx, localID)
	if err != nil {
		return nil, err
	}

	if note.ServerID == "" || note.SyncStatus == models.SyncFailed {
		note.ServerID = ""
		note.SyncStatus = models.SyncLocalOnly
		note.RecognitionStatus = models.RecognitionInQueue
		note.RecognizedText = ""
		if err := c.updateSync(ctx, note); err != nil {
			return nil, err
		}
		c.queue.Push(note.LocalID)
		return note, nil
	}

	if !c.conn.Online() {
		return nil, common.ErrUnavailable
	}

	resp, err := c.remote.StartRecognition(ctx, note.ServerID)
	if err != nil {
		return nil, err
	}
	c.apply(note, resp)
	if err := c.updateSync(ctx, note); err != nil {
		return nil, err
	}
	c.trackRecognition(note)
	return note, nil
}

// Tracked returns the remote ids currently polled, sorted.
func (c *Coordinator) Tracked() []string {
	snap := c.trackedSnapshot()
	ids := make([]string, 0, len(snap))
	for id := range snap {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// Pending counts notes queued or being uploaded.
func (c *Coordinator) Pending() int {
	return c.queue.Pending()
}

func (c *Coordinator) uploadLoop(ctx context.Context, worker int) {
	log := c.log.With("worker", worker)

	for {
		id, err := c.queue.Pop(ctx)
		if err != nil {
			return
		}

		if !c.conn.Online() {
			if !c.sleep(ctx, c.retryDelay) {
				c.queue.Done(id)
				return
			}
			c.queue.Requeue(id)
			continue
		}

		err = c.upload(ctx, id)
		switch {
		case err == nil:
			c.queue.Done(id)

		case ctx.Err() != nil:
			c.revertToLocal(context.WithoutCancel(ctx), id)
			c.queue.Done(id)
			return

		case errors.Is(err, common.ErrUnavailable):
			log.Warn(ctx, "server unavailable, will retry upload", "local_id", id, "error", err)
			c.revertToLocal(ctx, id)
			if !c.sleep(ctx, c.retryDelay) {
				c.queue.Done(id)
				return
			}
			c.queue.Requeue(id)

		default:
			log.Error(ctx, "failed to upload note", "local_id", id, "error", err)
			c.markFailed(ctx, id, err.Error())
			c.queue.Done(id)
		}
	}
}

func (c *Coordinator) upload(ctx context.Context, localID int64) error {
	note, err := c.repo.Get(ctx, localID)
	if errors.Is(err, common.ErrNotFound) {
		return nil
	}
	if err != nil {
		return err
	}

	if note.ServerID != "" {
		c.trackRecognition(note)
		return nil
	}

	note.SyncStatus = models.SyncUploading
	note.RecognitionStatus = models.RecognitionInQueue
	if err := c.updateSync(ctx, note); err != nil {
		return err
	}
	// photos attached before the Uploading mark go out with the note
	note, err = c.repo.Get(ctx, localID)
	if errors.Is(err, common.ErrNotFound) {
		return nil
	}
	if err != nil {
		return err
	}

	resp, err := c.remote.Upload(ctx, api.UploadRequest{
		Title:         note.Title,
		CategoryLabel: note.CategoryLabel,
		OriginalText:  note.OriginalText,
		AudioPath:     note.AudioFilePath,
		PhotoPaths:    note.PhotoPaths(),
	})
	if err != nil {
		return err
	}

	note.ServerID = resp.ID
	c.apply(note, resp)
	if err := c.updateSync(ctx, note); err != nil {
		return err
	}
	c.log.Info(ctx, "note uploaded", "local_id", note.LocalID, "remote_id", note.ServerID)

	if _, err := c.remote.StartRecognition(ctx, note.ServerID); err != nil {
		c.log.Warn(ctx, "failed to request recognition", "remote_id", note.ServerID, "error", err)
	}
	c.trackRecognition(note)
	return nil
}

func (c *Coordinator) refresh(ctx context.Context, remoteID string, localID int64) error {
	note, err := c.repo.Get(ctx, localID)
	if errors.Is(err, common.ErrNotFound) {
		c.untrack(remoteID)
		return nil
	}
	if err != nil {
		return err
	}

	resp, err := c.remote.Get(ctx, remoteID)
	if errors.Is(err, common.ErrNotFound) {
		c.log.Warn(ctx, "note missing on server", "remote_id", remoteID, "local_id", localID)
		note.SyncStatus = models.SyncFailed
		note.RecognitionStatus = models.RecognitionError
		note.RecognizedText = MsgRemoteMissing
		c.untrack(remoteID)
		return c.updateSync(ctx, note)
	}
	if err != nil {
		return err
	}

	if resp.RecognitionStatus == models.RemoteUploaded {
		if _, err := c.remote.StartRecognition(ctx, remoteID); err != nil {
			c.log.Warn(ctx, "failed to request recognition", "remote_id", remoteID, "error", err)
		}
	}

	c.apply(note, resp)
	if err := c.updateSync(ctx, note); err != nil {
		return err
	}

	if note.RecognitionStatus.IsTerminal() {
		c.untrack(remoteID)
	}
	return nil
}

// apply mirrors the server's view onto the local note.
func (c *Coordinator) apply(note *models.VoiceNote, resp *api.NoteResponse) {
	note.SyncStatus = models.SyncSynced
	note.RecognitionStatus = models.MapRemoteStatus(resp.RecognitionStatus)
	note.RecognizedText = resp.ResolvedText()
	if resp.CategoryLabel != "" {
		note.CategoryLabel = resp.CategoryLabel
	}
}

func (c *Coordinator) markFailed(ctx context.Context, localID int64, msg string) {
	if msg == "" {
		msg = msgSyncFailed
	}
	note, err := c.repo.Get(ctx, localID)
	if err != nil {
		c.log.Error(ctx, "failed to load note", "local_id", localID, "error", err)
		return
	}
	note.SyncStatus = models.SyncFailed
	note.RecognitionStatus = models.RecognitionError
	note.RecognizedText = msg
	if err := c.updateSync(ctx, note); err != nil {
		c.log.Error(ctx, "failed to mark note failed", "local_id", localID, "error", err)
	}
}

// revertToLocal undoes the Uploading mark of an interrupted upload.
func (c *Coordinator) revertToLocal(ctx context.Context, localID int64) {
	ctx, cancel := context.WithTimeout(ctx, writeTimeout)
	defer cancel()

	note, err := c.repo.Get(ctx, localID)
	if err != nil {
		c.log.Error(ctx, "failed to load note", "local_id", localID, "error", err)
		return
	}
	if note.ServerID != "" || note.SyncStatus != models.SyncUploading {
		return
	}
	note.SyncStatus = models.SyncLocalOnly
	if err := c.updateSync(ctx, note); err != nil {
		c.log.Error(ctx, "failed to revert note", "local_id", localID, "error", err)
	}
}

func (c *Coordinator) recoverStranded(ctx context.Context) error {
	notes, err := c.repo.List(ctx)
	if err != nil {
		return err
	}
	for _, n := range notes {
		if n.ServerID == "" && n.SyncStatus == models.SyncUploading {
			n.SyncStatus = models.SyncLocalOnly
			if err := c.updateSync(ctx, n); err != nil {
				return err
			}
		}
	}
	return nil
}

// updateSync persists the sync state of note. Photos and tags in note are
// ignored; the CLI may have changed them since note was loaded.
func (c *Coordinator) updateSync(ctx context.Context, note *models.VoiceNote) error {
	err := c.repo.UpdateSync(ctx, note.LocalID, note.ServerID, note.SyncStatus,
		note.RecognitionStatus, note.RecognizedText, note.CategoryLabel)
	if err != nil {
		return err
	}
	if c.onChange != nil {
		c.onChange(*note)
	}
	return nil
}

func (c *Coordinator) pollLoop(ctx context.Context) {
	ticker := time.NewTicker(c.pollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			c.PollOnce(ctx)
		case <-ctx.Done():
			return
		}
	}
}

func (c *Coordinator) connectivityLoop(ctx context.Context) {
	for {
		select {
		case <-c.conn.Regained():
			c.log.Info(ctx, "connection regained, resyncing")
			if err := c.Resync(ctx); err != nil {
				c.log.Error(ctx, "failed to load pending notes", "error", err)
			}
		case <-ctx.Done():
			return
		}
	}
}

func (c *Coordinator) trackRecognition(note *models.VoiceNote) {
	if note.ServerID == "" {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if note.RecognitionStatus.IsTerminal() {
		delete(c.tracked, note.ServerID)
		return
	}
	c.tracked[note.ServerID] = note.LocalID
}

func (c *Coordinator) untrack(remoteID string) {
	c.mu.Lock()
	delete(c.tracked, remoteID)
	c.mu.Unlock()
}

func (c *Coordinator) trackedSnapshot() map[string]int64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make(map[string]int64, len(c.tracked))
	for k, v := range c.tracked {
		out[k] = v
	}
	return out
}

// sleep waits for d and reports false when ctx ended first.
func (c *Coordinator) sleep(ctx context.Context, d time.Duration) bool {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return true
	case <-ctx.Done():
		return false
	}
}

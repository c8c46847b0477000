package services

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/dmitrijs2005/voicenotes/internal/common"
	"github.com/dmitrijs2005/voicenotes/internal/server/events"
	"github.com/dmitrijs2005/voicenotes/internal/server/media"
	"github.com/dmitrijs2005/voicenotes/internal/server/models"
	"github.com/dmitrijs2005/voicenotes/internal/server/notes"
	"github.com/dmitrijs2005/voicenotes/internal/server/transcription"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type notifications struct {
	mu  sync.Mutex
	got []events.StatusChange
}

func (n *notifications) Notify(_ context.Context, ev events.StatusChange) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.got = append(n.got, ev)
}

type sttFunc func(ctx context.Context, path, lang string) (*transcription.Result, error)

func (f sttFunc) Transcribe(ctx context.Context, path, lang string) (*transcription.Result, error) {
	return f(ctx, path, lang)
}

type env struct {
	store   *notes.Store
	media   *media.LocalStorage
	scratch *media.LocalStorage
	events  *notifications
}

func newEnv(t *testing.T) *env {
	t.Helper()
	dir := t.TempDir()

	store, err := notes.Open("sqlite", filepath.Join(dir, "notes.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })

	ms, err := media.NewLocalStorage(filepath.Join(dir, "media"))
	require.NoError(t, err)
	scratch, err := media.NewLocalStorage(filepath.Join(dir, "scratch"))
	require.NoError(t, err)

	return &env{store: store, media: ms, scratch: scratch, events: &notifications{}}
}

func (e *env) service(opts ...NoteServiceOption) *NoteService {
	return NewNoteService(e.store, e.media, append([]NoteServiceOption{WithNotifier(e.events)}, opts...)...)
}

func TestNoteService_CreateNote(t *testing.T) {
	e := newEnv(t)
	svc := e.service()
	ctx := context.Background()

	resp, err := svc.CreateNote(ctx, CreateNoteInput{
		Title:        "  Groceries ",
		OriginalText: "typed draft",
		Audio:        &Upload{Filename: "memo.wav", Content: strings.NewReader("RIFF")},
		Photos: []Upload{
			{Filename: "a.jpg", Content: strings.NewReader("jpeg-a")},
			{Filename: "b.jpg", Content: strings.NewReader("jpeg-b")},
		},
	})
	require.NoError(t, err)

	assert.Equal(t, "Groceries", resp.Title)
	assert.Equal(t, common.DefaultCategoryLabel, resp.CategoryLabel)
	assert.Equal(t, models.StatusUploaded, resp.RecognitionStatus)

	rec, err := e.store.Get(ctx, resp.ID)
	require.NoError(t, err)
	assert.Equal(t, "typed draft", rec.OriginalText)
	assert.True(t, strings.HasPrefix(rec.AudioPath, e.media.Dir()))
	assert.Len(t, rec.PhotoPaths, 2)
	for _, p := range append([]string{rec.AudioPath}, rec.PhotoPaths...) {
		_, err := os.Stat(p)
		assert.NoError(t, err)
	}

	require.Len(t, e.events.got, 1)
	assert.Equal(t, models.StatusUploaded, e.events.got[0].Status)
}

func TestNoteService_CreateNote_Validation(t *testing.T) {
	svc := newEnv(t).service()

	_, err := svc.CreateNote(context.Background(), CreateNoteInput{Title: " \t"})
	require.ErrorIs(t, err, common.ErrValidation)
}

func TestNoteService_CreateThenGet(t *testing.T) {
	svc := newEnv(t).service()
	ctx := context.Background()

	created, err := svc.CreateNote(ctx, CreateNoteInput{Title: "Call mom", CategoryLabel: "Family"})
	require.NoError(t, err)

	got, err := svc.GetNote(ctx, created.ID)
	require.NoError(t, err)
	assert.Equal(t, created, got)

	_, err = svc.GetNote(ctx, "00000000-0000-0000-0000-000000000000")
	require.ErrorIs(t, err, common.ErrNotFound)
}

func TestNoteService_StartRecognition(t *testing.T) {
	e := newEnv(t)
	svc := e.service()
	ctx := context.Background()

	created, err := svc.CreateNote(ctx, CreateNoteInput{Title: "memo"})
	require.NoError(t, err)

	resp, err := svc.StartRecognition(ctx, created.ID)
	require.NoError(t, err)
	assert.Equal(t, models.StatusQueued, resp.RecognitionStatus)

	again, err := svc.StartRecognition(ctx, created.ID)
	require.NoError(t, err)
	assert.Equal(t, resp, again)

	_, err = svc.StartRecognition(ctx, "missing")
	require.ErrorIs(t, err, common.ErrNotFound)
}

func TestNoteService_StartRecognition_CompletedIsNoop(t *testing.T) {
	e := newEnv(t)
	svc := e.service()
	ctx := context.Background()

	created, err := svc.CreateNote(ctx, CreateNoteInput{Title: "memo"})
	require.NoError(t, err)
	require.NoError(t, e.store.UpdateStatus(ctx, created.ID, models.StatusCompleted, "done", "", ""))

	first, err := svc.StartRecognition(ctx, created.ID)
	require.NoError(t, err)
	second, err := svc.StartRecognition(ctx, created.ID)
	require.NoError(t, err)

	assert.Equal(t, first, second)
	assert.Equal(t, models.StatusCompleted, second.RecognitionStatus)
	assert.Equal(t, "done", second.RecognizedText)
}

func TestNoteService_StartRecognition_RetriesFailedNote(t *testing.T) {
	e := newEnv(t)
	svc := e.service()
	ctx := context.Background()

	created, err := svc.CreateNote(ctx, CreateNoteInput{Title: "memo"})
	require.NoError(t, err)
	require.NoError(t, e.store.UpdateStatus(ctx, created.ID, models.StatusFailed, "partial", "", "audio file not found"))

	resp, err := svc.StartRecognition(ctx, created.ID)
	require.NoError(t, err)
	assert.Equal(t, models.StatusQueued, resp.RecognitionStatus)
	assert.Empty(t, resp.ErrorMessage)
	assert.Empty(t, resp.RecognizedText)
}

func TestNoteService_StartRecognition_LosesRaceWithWorkerClaim(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()

	created, err := NewNoteService(e.store, e.media).CreateNote(ctx, CreateNoteInput{Title: "memo"})
	require.NoError(t, err)
	require.NoError(t, e.store.UpdateStatus(ctx, created.ID, models.StatusFailed, "", "", "boom"))

	// the note is requeued and claimed by a worker after Get but before the
	// service writes
	store := &claimingStore{NoteStore: e.store, claim: func() {
		_, err := e.store.Requeue(ctx, created.ID, models.StatusFailed)
		require.NoError(t, err)
		_, err = e.store.TransitionStatus(ctx, created.ID, models.StatusQueued, models.StatusRecognizing)
		require.NoError(t, err)
	}}
	svc := NewNoteService(store, e.media, WithNotifier(e.events))

	resp, err := svc.StartRecognition(ctx, created.ID)
	require.NoError(t, err)
	assert.Equal(t, models.StatusRecognizing, resp.RecognitionStatus)

	got, err := e.store.Get(ctx, created.ID)
	require.NoError(t, err)
	assert.Equal(t, models.StatusRecognizing, got.RecognitionStatus)
}

// claimingStore runs claim once, right after the first Get.
type claimingStore struct {
	NoteStore
	claim func()
	once  sync.Once
}

func (s *claimingStore) Get(ctx context.Context, id string) (*models.NoteRecord, error) {
	rec, err := s.NoteStore.Get(ctx, id)
	s.once.Do(s.claim)
	return rec, err
}

func TestNoteService_Transcribe(t *testing.T) {
	e := newEnv(t)

	var seen string
	stt := sttFunc(func(_ context.Context, path, lang string) (*transcription.Result, error) {
		seen = path
		_, err := os.Stat(path)
		require.NoError(t, err)
		assert.Equal(t, "en", lang)
		return &transcription.Result{Text: "hello", Language: "en"}, nil
	})
	svc := e.service(WithTranscriber(stt, e.scratch, "en"))

	res, err := svc.Transcribe(context.Background(), Upload{Filename: "x.wav", Content: strings.NewReader("RIFF")}, "")
	require.NoError(t, err)
	assert.Equal(t, "hello", res.Text)

	_, err = os.Stat(seen)
	assert.True(t, errors.Is(err, os.ErrNotExist), "temporary audio must be removed")
}

func TestNoteService_Transcribe_ErrorsAndDisabled(t *testing.T) {
	e := newEnv(t)

	_, err := e.service().Transcribe(context.Background(), Upload{Filename: "x.wav", Content: strings.NewReader("a")}, "")
	require.ErrorIs(t, err, ErrTranscriptionDisabled)

	stt := sttFunc(func(context.Context, string, string) (*transcription.Result, error) {
		return nil, common.ErrUpstream
	})
	_, err = e.service(WithTranscriber(stt, e.scratch, "")).
		Transcribe(context.Background(), Upload{Filename: "x.wav", Content: strings.NewReader("a")}, "de")
	require.ErrorIs(t, err, common.ErrUpstream)

	entries, err := os.ReadDir(e.scratch.Dir())
	require.NoError(t, err)
	assert.Empty(t, entries)
}

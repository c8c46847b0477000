package services

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/dmitrijs2005/voicenotes/internal/common"
	"github.com/dmitrijs2005/voicenotes/internal/logging"
	"github.com/dmitrijs2005/voicenotes/internal/server/events"
	"github.com/dmitrijs2005/voicenotes/internal/server/media"
	"github.com/dmitrijs2005/voicenotes/internal/server/models"
	"github.com/dmitrijs2005/voicenotes/internal/server/transcription"
)

// NoteStore is the part of notes.Store used by the API.
type NoteStore interface {
	Create(ctx context.Context, rec *models.NoteRecord) (*models.NoteRecord, error)
	Get(ctx context.Context, id string) (*models.NoteRecord, error)
	Requeue(ctx context.Context, id string, from models.RecognitionStatus) (bool, error)
}

// Upload is one file part of a multipart request.
type Upload struct {
	Filename string
	Content  io.Reader
}

type CreateNoteInput struct {
	Title         string
	CategoryLabel string
	OriginalText  string
	Audio         *Upload
	Photos        []Upload
}

type NoteService struct {
	store    NoteStore
	media    media.Storage
	scratch  media.Storage
	stt      transcription.Client
	language string
	notifier events.Notifier
	log      logging.Logger
	now      func() time.Time
}

type NoteServiceOption func(*NoteService)

// WithTranscriber enables synchronous transcription. scratch holds uploaded
// audio only for the duration of a request and must not share its directory
// with note media.
func WithTranscriber(stt transcription.Client, scratch media.Storage, language string) NoteServiceOption {
	return func(s *NoteService) {
		s.stt = stt
		s.scratch = scratch
		s.language = language
	}
}

func WithNotifier(n events.Notifier) NoteServiceOption {
	return func(s *NoteService) {
		if n != nil {
			s.notifier = n
		}
	}
}

func WithLogger(l logging.Logger) NoteServiceOption {
	return func(s *NoteService) {
		if l != nil {
			s.log = l
		}
	}
}

func NewNoteService(store NoteStore, storage media.Storage, opts ...NoteServiceOption) *NoteService {
	s := &NoteService{
		store:    store,
		media:    storage,
		notifier: events.Multi{},
		log:      logging.Nop{},
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	s.log = s.log.With("module", "services.notes")
	return s
}

// CreateNote stores the uploaded media and persists a new note in status
// Uploaded.
func (s *NoteService) CreateNote(ctx context.Context, in CreateNoteInput) (*models.NoteResponse, error) {
	title := strings.TrimSpace(in.Title)
	if title == "" {
		return nil, fmt.Errorf("%w: title is required", common.ErrValidation)
	}

	rec := &models.NoteRecord{
		Title:         title,
		CategoryLabel: strings.TrimSpace(in.CategoryLabel),
		OriginalText:  in.OriginalText,
		PhotoPaths:    []string{},
	}

	if in.Audio != nil {
		ref, err := s.media.Save(ctx, in.Audio.Filename, in.Audio.Content)
		if err != nil {
			return nil, fmt.Errorf("save audio: %w", err)
		}
		rec.AudioPath = ref
	}

	for _, p := range in.Photos {
		ref, err := s.media.Save(ctx, p.Filename, p.Content)
		if err != nil {
			return nil, fmt.Errorf("save photo: %w", err)
		}
		rec.PhotoPaths = append(rec.PhotoPaths, ref)
	}

	saved, err := s.store.Create(ctx, rec)
	if err != nil {
		return nil, err
	}

	s.notify(ctx, saved)
	s.log.Info(ctx, "note uploaded", "note_id", saved.ID, "has_audio", saved.AudioPath != "", "photos", len(saved.PhotoPaths))

	resp := models.NewNoteResponse(saved)
	return &resp, nil
}

func (s *NoteService) GetNote(ctx context.Context, id string) (*models.NoteResponse, error) {
	rec, err := s.store.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	resp := models.NewNoteResponse(rec)
	return &resp, nil
}

// StartRecognition queues the note for the worker. Notes that are already
// queued, being recognized or completed are returned unchanged.
func (s *NoteService) StartRecognition(ctx context.Context, id string) (*models.NoteResponse, error) {
	rec, err := s.store.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if !rec.RecognitionStatus.CanQueue() {
		resp := models.NewNoteResponse(rec)
		return &resp, nil
	}

	ok, err := s.store.Requeue(ctx, id, rec.RecognitionStatus)
	if err != nil {
		return nil, err
	}

	if rec, err = s.store.Get(ctx, id); err != nil {
		return nil, err
	}
	if ok {
		s.notify(ctx, rec)
		s.log.Info(ctx, "note queued for recognition", "note_id", id)
	}

	resp := models.NewNoteResponse(rec)
	return &resp, nil
}

// ErrTranscriptionDisabled is returned by Transcribe when the service was
// built without a transcriber.
var ErrTranscriptionDisabled = errors.New("transcription is not configured")

// Transcribe runs a one-off synchronous transcription. The uploaded audio is
// removed before returning.
func (s *NoteService) Transcribe(ctx context.Context, audio Upload, language string) (*transcription.Result, error) {
	if s.stt == nil || s.scratch == nil {
		return nil, ErrTranscriptionDisabled
	}
	if language == "" {
		language = s.language
	}

	ref, err := s.scratch.Save(ctx, audio.Filename, audio.Content)
	if err != nil {
		return nil, fmt.Errorf("save audio: %w", err)
	}
	defer func() {
		if err := s.scratch.Remove(context.WithoutCancel(ctx), ref); err != nil {
			s.log.Warn(ctx, "failed to remove temporary audio", "ref", ref, "error", err)
		}
	}()

	path, release, err := s.scratch.Fetch(ctx, ref)
	if err != nil {
		return nil, err
	}
	defer release()

	return s.stt.Transcribe(ctx, path, language)
}

func (s *NoteService) notify(ctx context.Context, rec *models.NoteRecord) {
	s.notifier.Notify(ctx, events.StatusChange{
		NoteID:       rec.ID,
		Status:       rec.RecognitionStatus,
		ErrorMessage: rec.ErrorMessage,
		At:           s.now().UTC(),
	})
}

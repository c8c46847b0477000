// Package notes persists client voice notes, their photos and tags in the
// local SQLite database.
package notes

import (
	"context"

	"github.com/dmitrijs2005/voicenotes/internal/client/models"
)

// Repository describes the operations the client needs on local notes.
type Repository interface {
	// List returns all notes, newest first, with photos and tags.
	List(ctx context.Context) ([]*models.VoiceNote, error)

	// Get returns a note by local id or common.ErrNotFound.
	Get(ctx context.Context, localID int64) (*models.VoiceNote, error)

	// Save inserts the note when LocalID is zero and updates it otherwise.
	// Photos and tags are replaced as a whole. It returns the local id.
	Save(ctx context.Context, note *models.VoiceNote) (int64, error)

	// UpdateSync writes the server id, sync and recognition state of a note
	// without touching its photos and tags. An empty categoryLabel keeps the
	// stored label.
	UpdateSync(ctx context.Context, localID int64, serverID string,
		syncStatus models.SyncStatus, recognitionStatus models.RecognitionStatus,
		recognizedText, categoryLabel string) error

	// UpdateAttachments replaces photos and tags of an existing note and
	// leaves its sync state alone.
	UpdateAttachments(ctx context.Context, note *models.VoiceNote) error

	// Delete removes a note with its photos and tags.
	Delete(ctx context.Context, localID int64) error
}

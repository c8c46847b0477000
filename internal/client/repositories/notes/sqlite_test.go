package notes_test

import (
	"context"
	"errors"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/dmitrijs2005/voicenotes/internal/client/models"
	"github.com/dmitrijs2005/voicenotes/internal/client/repositories"
	"github.com/dmitrijs2005/voicenotes/internal/client/repositories/notes"
	"github.com/dmitrijs2005/voicenotes/internal/common"
	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeClock struct {
	mu sync.Mutex
	t  time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.t = c.t.Add(time.Second)
	return c.t
}

func setup(t *testing.T) (*notes.SQLiteRepository, *fakeClock) {
	t.Helper()
	repos, err := repositories.InitDatabase(context.Background(), filepath.Join(t.TempDir(), "client.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = repos.Close() })

	clock := &fakeClock{t: time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)}
	return notes.NewSQLiteRepository(repos.DB, notes.WithClock(clock.Now), notes.WithDefaultCategory("Inbox")), clock
}

func TestSave_InsertThenGet(t *testing.T) {
	r, _ := setup(t)
	ctx := context.Background()

	note := &models.VoiceNote{
		Title:             "Groceries",
		AudioFilePath:     "/tmp/a.wav",
		Duration:          12500 * time.Millisecond,
		OriginalText:      "milk",
		RecognitionStatus: models.RecognitionInQueue,
		SyncStatus:        models.SyncLocalOnly,
		Photos:            []models.Photo{{FilePath: "/tmp/p1.jpg"}, {FilePath: "/tmp/p2.jpg"}},
		Tags:              []models.Tag{{Value: "home"}},
	}

	id, err := r.Save(ctx, note)
	require.NoError(t, err)
	require.NotZero(t, id)
	assert.Equal(t, id, note.LocalID)
	assert.Equal(t, "Inbox", note.CategoryLabel)
	assert.NotZero(t, note.Photos[0].ID)

	got, err := r.Get(ctx, id)
	require.NoError(t, err)
	assert.Empty(t, cmp.Diff(note, got))
}

func TestSave_UpdateReplacesChildren(t *testing.T) {
	r, _ := setup(t)
	ctx := context.Background()

	note := &models.VoiceNote{
		Title:  "t",
		Photos: []models.Photo{{FilePath: "/a.jpg"}},
		Tags:   []models.Tag{{Value: "x"}, {Value: "y"}},
	}
	id, err := r.Save(ctx, note)
	require.NoError(t, err)
	created := note.CreatedAt

	note.ServerID = "srv-1"
	note.SyncStatus = models.SyncSynced
	note.RecognitionStatus = models.RecognitionReady
	note.RecognizedText = "hello"
	note.Photos = []models.Photo{{FilePath: "/b.jpg"}}
	note.Tags = nil

	_, err = r.Save(ctx, note)
	require.NoError(t, err)

	got, err := r.Get(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, "srv-1", got.ServerID)
	assert.Equal(t, models.SyncSynced, got.SyncStatus)
	assert.Equal(t, models.RecognitionReady, got.RecognitionStatus)
	assert.Equal(t, "hello", got.RecognizedText)
	require.Len(t, got.Photos, 1)
	assert.Equal(t, "/b.jpg", got.Photos[0].FilePath)
	assert.Empty(t, got.Tags)
	assert.Equal(t, created, got.CreatedAt)
	assert.True(t, got.UpdatedAt.After(created))
}

func TestSave_UnknownLocalID(t *testing.T) {
	r, _ := setup(t)

	_, err := r.Save(context.Background(), &models.VoiceNote{LocalID: 999, Title: "ghost"})
	require.ErrorIs(t, err, common.ErrNotFound)
}

func TestUpdateSync_LeavesPhotosAndTags(t *testing.T) {
	r, _ := setup(t)
	ctx := context.Background()

	id, err := r.Save(ctx, &models.VoiceNote{
		Title:         "memo",
		CategoryLabel: "Work",
		SyncStatus:    models.SyncUploading,
		Photos:        []models.Photo{{FilePath: "/tmp/p1.jpg"}},
		Tags:          []models.Tag{{Value: "home"}},
	})
	require.NoError(t, err)
	before, err := r.Get(ctx, id)
	require.NoError(t, err)

	require.NoError(t, r.UpdateSync(ctx, id, "srv-1", models.SyncSynced, models.RecognitionReady, "buy milk", ""))

	got, err := r.Get(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, "srv-1", got.ServerID)
	assert.Equal(t, models.SyncSynced, got.SyncStatus)
	assert.Equal(t, models.RecognitionReady, got.RecognitionStatus)
	assert.Equal(t, "buy milk", got.RecognizedText)
	assert.Equal(t, "Work", got.CategoryLabel, "empty label keeps the stored one")
	assert.True(t, got.UpdatedAt.After(before.UpdatedAt))
	assert.Empty(t, cmp.Diff(before.Photos, got.Photos))
	assert.Empty(t, cmp.Diff(before.Tags, got.Tags))

	require.NoError(t, r.UpdateSync(ctx, id, "srv-1", models.SyncSynced, models.RecognitionReady, "buy milk", "Shopping"))
	got, err = r.Get(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, "Shopping", got.CategoryLabel)

	err = r.UpdateSync(ctx, 999, "", models.SyncFailed, models.RecognitionError, "x", "")
	assert.ErrorIs(t, err, common.ErrNotFound)
}

func TestUpdateAttachments_LeavesSyncState(t *testing.T) {
	r, _ := setup(t)
	ctx := context.Background()

	id, err := r.Save(ctx, &models.VoiceNote{Title: "memo", Tags: []models.Tag{{Value: "home"}}})
	require.NoError(t, err)
	stale, err := r.Get(ctx, id)
	require.NoError(t, err)

	require.NoError(t, r.UpdateSync(ctx, id, "srv-1", models.SyncSynced, models.RecognitionRecognizing, "", ""))

	stale.Tags = append(stale.Tags, models.Tag{Value: "urgent"})
	stale.Photos = append(stale.Photos, models.Photo{FilePath: "/tmp/p.jpg"})
	require.NoError(t, r.UpdateAttachments(ctx, stale))

	got, err := r.Get(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, "srv-1", got.ServerID)
	assert.Equal(t, models.SyncSynced, got.SyncStatus)
	assert.Equal(t, models.RecognitionRecognizing, got.RecognitionStatus)
	require.Len(t, got.Tags, 2)
	require.Len(t, got.Photos, 1)
	assert.True(t, stale.UpdatedAt.Equal(got.UpdatedAt))

	err = r.UpdateAttachments(ctx, &models.VoiceNote{LocalID: 999})
	assert.ErrorIs(t, err, common.ErrNotFound)
}

func TestGet_NotFound(t *testing.T) {
	r, _ := setup(t)

	_, err := r.Get(context.Background(), 42)
	require.ErrorIs(t, err, common.ErrNotFound)
}

func TestList_NewestFirstWithChildren(t *testing.T) {
	r, _ := setup(t)
	ctx := context.Background()

	for _, title := range []string{"one", "two", "three"} {
		_, err := r.Save(ctx, &models.VoiceNote{Title: title, Tags: []models.Tag{{Value: title}}})
		require.NoError(t, err)
	}

	list, err := r.List(ctx)
	require.NoError(t, err)
	require.Len(t, list, 3)
	assert.Equal(t, "three", list[0].Title)
	assert.Equal(t, "one", list[2].Title)
	for _, n := range list {
		require.Len(t, n.Tags, 1)
		assert.Equal(t, n.Title, n.Tags[0].Value)
		assert.NotNil(t, n.Photos)
	}
}

func TestList_Empty(t *testing.T) {
	r, _ := setup(t)

	list, err := r.List(context.Background())
	require.NoError(t, err)
	assert.NotNil(t, list)
	assert.Empty(t, list)
}

func TestDelete(t *testing.T) {
	r, _ := setup(t)
	ctx := context.Background()

	id, err := r.Save(ctx, &models.VoiceNote{Title: "bye", Photos: []models.Photo{{FilePath: "/p"}}})
	require.NoError(t, err)

	require.NoError(t, r.Delete(ctx, id))
	_, err = r.Get(ctx, id)
	require.ErrorIs(t, err, common.ErrNotFound)

	require.ErrorIs(t, r.Delete(ctx, id), common.ErrNotFound)
}

func TestSave_RollsBackOnChildFailure(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	mock.ExpectBegin()
	mock.ExpectExec("INSERT INTO voice_notes").WillReturnResult(sqlmock.NewResult(7, 1))
	mock.ExpectExec("DELETE FROM voice_note_photos").WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectExec("INSERT INTO voice_note_photos").WillReturnError(errors.New("disk full"))
	mock.ExpectRollback()

	r := notes.NewSQLiteRepository(db)
	_, err = r.Save(context.Background(), &models.VoiceNote{Title: "t", Photos: []models.Photo{{FilePath: "/p"}}})
	require.ErrorIs(t, err, common.ErrStorage)
	assert.Contains(t, err.Error(), "disk full")
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestList_QueryError(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	mock.ExpectBegin()
	mock.ExpectQuery("SELECT (.+) FROM voice_notes").WillReturnError(errors.New("boom"))
	mock.ExpectRollback()

	_, err = notes.NewSQLiteRepository(db).List(context.Background())
	require.ErrorIs(t, err, common.ErrStorage)
	require.NoError(t, mock.ExpectationsWereMet())
}

package notes

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/dmitrijs2005/voicenotes/internal/client/models"
	"github.com/dmitrijs2005/voicenotes/internal/common"
	"github.com/dmitrijs2005/voicenotes/internal/dbx"
)

// Fixed width so that ORDER BY created_at is chronological.
const timeLayout = "2006-01-02T15:04:05.000000000Z07:00"

const noteColumns = `id, server_id, title, audio_file_path, duration_ms, original_text, recognized_text,
	category_label, recognition_status, sync_status, created_at, updated_at`

// SQLiteRepository implements Repository. Every Save runs in its own
// transaction so a note is never visible without its photos and tags.
type SQLiteRepository struct {
	db              *sql.DB
	defaultCategory string
	now             func() time.Time
}

type Option func(*SQLiteRepository)

func WithDefaultCategory(label string) Option {
	return func(r *SQLiteRepository) {
		if label != "" {
			r.defaultCategory = label
		}
	}
}

func WithClock(now func() time.Time) Option {
	return func(r *SQLiteRepository) { r.now = now }
}

func NewSQLiteRepository(db *sql.DB, opts ...Option) *SQLiteRepository {
	r := &SQLiteRepository{
		db:              db,
		defaultCategory: common.DefaultCategoryLabel,
		now:             time.Now,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

func (r *SQLiteRepository) List(ctx context.Context) ([]*models.VoiceNote, error) {
	var result []*models.VoiceNote

	err := dbx.WithTx(ctx, r.db, nil, func(ctx context.Context, tx dbx.DBTX) error {
		rows, err := tx.QueryContext(ctx, `SELECT `+noteColumns+` FROM voice_notes ORDER BY created_at DESC, id DESC`)
		if err != nil {
			return fmt.Errorf("select notes: %w", err)
		}
		defer rows.Close()

		byID := map[int64]*models.VoiceNote{}
		for rows.Next() {
			n, err := scanNote(rows)
			if err != nil {
				return err
			}
			result = append(result, n)
			byID[n.LocalID] = n
		}
		if err := rows.Err(); err != nil {
			return err
		}
		rows.Close()

		if err := loadPhotos(ctx, tx, byID, `SELECT id, voice_note_id, file_path, created_at FROM voice_note_photos ORDER BY id`); err != nil {
			return err
		}
		return loadTags(ctx, tx, byID, `SELECT id, voice_note_id, value FROM voice_note_tags ORDER BY id`)
	})
	if err != nil {
		return nil, fmt.Errorf("%w: list notes: %w", common.ErrStorage, err)
	}

	if result == nil {
		result = []*models.VoiceNote{}
	}
	return result, nil
}

func (r *SQLiteRepository) Get(ctx context.Context, localID int64) (*models.VoiceNote, error) {
	var note *models.VoiceNote

	err := dbx.WithTx(ctx, r.db, nil, func(ctx context.Context, tx dbx.DBTX) error {
		row := tx.QueryRowContext(ctx, `SELECT `+noteColumns+` FROM voice_notes WHERE id = ?`, localID)
		n, err := scanNote(row)
		if err != nil {
			return err
		}
		note = n

		byID := map[int64]*models.VoiceNote{n.LocalID: n}
		if err := loadPhotos(ctx, tx, byID,
			`SELECT id, voice_note_id, file_path, created_at FROM voice_note_photos WHERE voice_note_id = ? ORDER BY id`,
			localID); err != nil {
			return err
		}
		return loadTags(ctx, tx, byID,
			`SELECT id, voice_note_id, value FROM voice_note_tags WHERE voice_note_id = ? ORDER BY id`, localID)
	})
	if errors.Is(err, sql.ErrNoRows) {
		return nil, common.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("%w: get note %d: %w", common.ErrStorage, localID, err)
	}
	return note, nil
}

// Save stamps UpdatedAt (and CreatedAt for new notes) on note itself, so the
// caller's copy matches what was stored.
func (r *SQLiteRepository) Save(ctx context.Context, note *models.VoiceNote) (int64, error) {
	now := r.now().UTC()
	note.UpdatedAt = now
	if note.CreatedAt.IsZero() {
		note.CreatedAt = now
	}
	if note.CategoryLabel == "" {
		note.CategoryLabel = r.defaultCategory
	}

	err := dbx.WithTx(ctx, r.db, nil, func(ctx context.Context, tx dbx.DBTX) error {
		args := []any{note.ServerID, note.Title, note.AudioFilePath, note.Duration.Milliseconds(),
			note.OriginalText, note.RecognizedText, note.CategoryLabel,
			int(note.RecognitionStatus), int(note.SyncStatus),
			note.CreatedAt.Format(timeLayout), note.UpdatedAt.Format(timeLayout)}

		if note.LocalID == 0 {
			res, err := tx.ExecContext(ctx, `INSERT INTO voice_notes (server_id, title, audio_file_path, duration_ms,
				original_text, recognized_text, category_label, recognition_status, sync_status, created_at, updated_at)
				VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`, args...)
			if err != nil {
				return fmt.Errorf("insert note: %w", err)
			}
			id, err := res.LastInsertId()
			if err != nil {
				return fmt.Errorf("last insert id: %w", err)
			}
			note.LocalID = id
		} else {
			res, err := tx.ExecContext(ctx, `UPDATE voice_notes SET server_id = ?, title = ?, audio_file_path = ?,
				duration_ms = ?, original_text = ?, recognized_text = ?, category_label = ?,
				recognition_status = ?, sync_status = ?, created_at = ?, updated_at = ?
				WHERE id = ?`, append(args, note.LocalID)...)
			if err != nil {
				return fmt.Errorf("update note: %w", err)
			}
			n, err := res.RowsAffected()
			if err != nil {
				return fmt.Errorf("rows affected: %w", err)
			}
			if n != 1 {
				return common.ErrNotFound
			}
		}

		return replaceChildren(ctx, tx, note, now)
	})
	if errors.Is(err, common.ErrNotFound) {
		return 0, err
	}
	if err != nil {
		return 0, fmt.Errorf("%w: save note: %w", common.ErrStorage, err)
	}
	return note.LocalID, nil
}

// UpdateSync records upload and recognition progress. Only voice_notes
// columns are written, so photos and tags saved meanwhile survive. An empty
// categoryLabel keeps the stored label.
func (r *SQLiteRepository) UpdateSync(ctx context.Context, localID int64, serverID string,
	syncStatus models.SyncStatus, recognitionStatus models.RecognitionStatus,
	recognizedText, categoryLabel string) error {
	res, err := r.db.ExecContext(ctx, `UPDATE voice_notes SET server_id = ?, sync_status = ?,
		recognition_status = ?, recognized_text = ?,
		category_label = CASE WHEN ? = '' THEN category_label ELSE ? END,
		updated_at = ?
		WHERE id = ?`,
		serverID, int(syncStatus), int(recognitionStatus), recognizedText,
		categoryLabel, categoryLabel, r.now().UTC().Format(timeLayout), localID)
	if err != nil {
		return fmt.Errorf("%w: update sync state of note %d: %w", common.ErrStorage, localID, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("%w: rows affected: %w", common.ErrStorage, err)
	}
	if n == 0 {
		return common.ErrNotFound
	}
	return nil
}

// UpdateAttachments replaces the photos and tags of an existing note and
// bumps its UpdatedAt. Sync columns are left to UpdateSync.
func (r *SQLiteRepository) UpdateAttachments(ctx context.Context, note *models.VoiceNote) error {
	now := r.now().UTC()

	err := dbx.WithTx(ctx, r.db, nil, func(ctx context.Context, tx dbx.DBTX) error {
		res, err := tx.ExecContext(ctx, `UPDATE voice_notes SET updated_at = ? WHERE id = ?`,
			now.Format(timeLayout), note.LocalID)
		if err != nil {
			return fmt.Errorf("touch note: %w", err)
		}
		n, err := res.RowsAffected()
		if err != nil {
			return fmt.Errorf("rows affected: %w", err)
		}
		if n != 1 {
			return common.ErrNotFound
		}
		return replaceChildren(ctx, tx, note, now)
	})
	if errors.Is(err, common.ErrNotFound) {
		return err
	}
	if err != nil {
		return fmt.Errorf("%w: update attachments of note %d: %w", common.ErrStorage, note.LocalID, err)
	}
	note.UpdatedAt = now
	return nil
}

func (r *SQLiteRepository) Delete(ctx context.Context, localID int64) error {
	err := dbx.WithTx(ctx, r.db, nil, func(ctx context.Context, tx dbx.DBTX) error {
		for _, q := range []string{
			`DELETE FROM voice_note_photos WHERE voice_note_id = ?`,
			`DELETE FROM voice_note_tags WHERE voice_note_id = ?`,
		} {
			if _, err := tx.ExecContext(ctx, q, localID); err != nil {
				return err
			}
		}
		res, err := tx.ExecContext(ctx, `DELETE FROM voice_notes WHERE id = ?`, localID)
		if err != nil {
			return err
		}
		n, err := res.RowsAffected()
		if err != nil {
			return err
		}
		if n == 0 {
			return common.ErrNotFound
		}
		return nil
	})
	if errors.Is(err, common.ErrNotFound) {
		return err
	}
	if err != nil {
		return fmt.Errorf("%w: delete note %d: %w", common.ErrStorage, localID, err)
	}
	return nil
}

func replaceChildren(ctx context.Context, tx dbx.DBTX, note *models.VoiceNote, now time.Time) error {
	if _, err := tx.ExecContext(ctx, `DELETE FROM voice_note_photos WHERE voice_note_id = ?`, note.LocalID); err != nil {
		return fmt.Errorf("clear photos: %w", err)
	}
	for i := range note.Photos {
		p := &note.Photos[i]
		if p.CreatedAt.IsZero() {
			p.CreatedAt = now
		}
		res, err := tx.ExecContext(ctx,
			`INSERT INTO voice_note_photos (voice_note_id, file_path, created_at) VALUES (?, ?, ?)`,
			note.LocalID, p.FilePath, p.CreatedAt.UTC().Format(timeLayout))
		if err != nil {
			return fmt.Errorf("insert photo: %w", err)
		}
		if p.ID, err = res.LastInsertId(); err != nil {
			return fmt.Errorf("photo id: %w", err)
		}
	}

	if _, err := tx.ExecContext(ctx, `DELETE FROM voice_note_tags WHERE voice_note_id = ?`, note.LocalID); err != nil {
		return fmt.Errorf("clear tags: %w", err)
	}
	for i := range note.Tags {
		tg := &note.Tags[i]
		res, err := tx.ExecContext(ctx,
			`INSERT INTO voice_note_tags (voice_note_id, value) VALUES (?, ?)`, note.LocalID, tg.Value)
		if err != nil {
			return fmt.Errorf("insert tag: %w", err)
		}
		if tg.ID, err = res.LastInsertId(); err != nil {
			return fmt.Errorf("tag id: %w", err)
		}
	}
	return nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanNote(row rowScanner) (*models.VoiceNote, error) {
	var (
		n                    models.VoiceNote
		durationMs           int64
		recognition, sync    int
		createdAt, updatedAt string
	)
	if err := row.Scan(&n.LocalID, &n.ServerID, &n.Title, &n.AudioFilePath, &durationMs, &n.OriginalText,
		&n.RecognizedText, &n.CategoryLabel, &recognition, &sync, &createdAt, &updatedAt); err != nil {
		return nil, err
	}

	n.Duration = time.Duration(durationMs) * time.Millisecond
	n.RecognitionStatus = models.RecognitionStatus(recognition)
	n.SyncStatus = models.SyncStatus(sync)
	n.Photos = []models.Photo{}
	n.Tags = []models.Tag{}

	var err error
	if n.CreatedAt, err = time.Parse(timeLayout, createdAt); err != nil {
		return nil, fmt.Errorf("parse created_at: %w", err)
	}
	if n.UpdatedAt, err = time.Parse(timeLayout, updatedAt); err != nil {
		return nil, fmt.Errorf("parse updated_at: %w", err)
	}
	return &n, nil
}

func loadPhotos(ctx context.Context, tx dbx.DBTX, byID map[int64]*models.VoiceNote, query string, args ...any) error {
	rows, err := tx.QueryContext(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("select photos: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var (
			p         models.Photo
			noteID    int64
			createdAt string
		)
		if err := rows.Scan(&p.ID, &noteID, &p.FilePath, &createdAt); err != nil {
			return err
		}
		if p.CreatedAt, err = time.Parse(timeLayout, createdAt); err != nil {
			return fmt.Errorf("parse photo created_at: %w", err)
		}
		if n, ok := byID[noteID]; ok {
			n.Photos = append(n.Photos, p)
		}
	}
	return rows.Err()
}

func loadTags(ctx context.Context, tx dbx.DBTX, byID map[int64]*models.VoiceNote, query string, args ...any) error {
	rows, err := tx.QueryContext(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("select tags: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var (
			tg     models.Tag
			noteID int64
		)
		if err := rows.Scan(&tg.ID, &noteID, &tg.Value); err != nil {
			return err
		}
		if n, ok := byID[noteID]; ok {
			n.Tags = append(n.Tags, tg)
		}
	}
	return rows.Err()
}

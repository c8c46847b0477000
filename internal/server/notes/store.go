// Package notes is the durable note store of the server. It persists
// NoteRecord rows over database/sql (SQLite or PostgreSQL) and owns the
// recognition-status transitions made by the API and the worker.
package notes

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/dmitrijs2005/voicenotes/internal/common"
	"github.com/dmitrijs2005/voicenotes/internal/dbx"
	"github.com/dmitrijs2005/voicenotes/internal/filex"
	"github.com/dmitrijs2005/voicenotes/internal/server/models"
	"github.com/google/uuid"

	_ "github.com/jackc/pgx/v5/stdlib"
	_ "modernc.org/sqlite"
)

// Timestamps are stored as fixed-width UTC text so that lexical order
// matches chronological order on every dialect.
const timeLayout = "2006-01-02T15:04:05.000000000Z07:00"

const noteColumns = `id, title, category_label, original_text, recognized_text, error_message,
	audio_path, photo_paths, recognition_status, created_at, updated_at`

// Store is safe for concurrent use. The schema is created lazily on first
// use, exactly once per Store.
type Store struct {
	db      *sql.DB
	dialect dbx.Dialect

	initMu      sync.Mutex
	initialized atomic.Bool
	migrate     func(ctx context.Context, dialect dbx.Dialect, db *sql.DB) error

	defaultCategory string
	now             func() time.Time
	newID           func() string
}

type Option func(*Store)

// WithDefaultCategory sets the label given to notes created without one.
func WithDefaultCategory(label string) Option {
	return func(s *Store) {
		if strings.TrimSpace(label) != "" {
			s.defaultCategory = label
		}
	}
}

func WithClock(now func() time.Time) Option {
	return func(s *Store) { s.now = now }
}

func WithIDGenerator(newID func() string) Option {
	return func(s *Store) { s.newID = newID }
}

func New(db *sql.DB, dialect dbx.Dialect, opts ...Option) *Store {
	s := &Store{
		db:              db,
		dialect:         dialect,
		migrate:         runMigrations,
		defaultCategory: common.DefaultCategoryLabel,
		now:             time.Now,
		newID:           uuid.NewString,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Open connects to the database named by driver and dsn. For SQLite a plain
// file path is expanded into a DSN with WAL and a busy timeout, and the
// parent directory is created.
func Open(driver, dsn string, opts ...Option) (*Store, error) {
	dialect, err := dbx.ParseDialect(driver)
	if err != nil {
		return nil, err
	}

	if dialect == dbx.SQLite {
		if !strings.HasPrefix(dsn, "file:") && dsn != ":memory:" {
			if err := filex.EnsureParentDir(dsn); err != nil {
				return nil, err
			}
		}
		dsn = SQLiteDSN(dsn)
	}

	db, err := sql.Open(string(dialect), dsn)
	if err != nil {
		return nil, fmt.Errorf("%w: open %s: %w", common.ErrStorage, dialect, err)
	}

	return New(db, dialect, opts...), nil
}

// SQLiteDSN turns a bare file path into a modernc.org/sqlite DSN. Values that
// already look like DSNs are returned unchanged.
func SQLiteDSN(path string) string {
	if strings.HasPrefix(path, "file:") || strings.Contains(path, "?") || path == ":memory:" {
		return path
	}
	return "file:" + path + "?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)"
}

// Init creates the schema now instead of on first use.
func (s *Store) Init(ctx context.Context) error {
	return s.ensureInitialized(ctx)
}

func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) ensureInitialized(ctx context.Context) error {
	if s.initialized.Load() {
		return nil
	}

	s.initMu.Lock()
	defer s.initMu.Unlock()

	if s.initialized.Load() {
		return nil
	}

	if err := s.migrate(ctx, s.dialect, s.db); err != nil {
		return fmt.Errorf("%w: initialize schema: %w", common.ErrStorage, err)
	}

	s.initialized.Store(true)
	return nil
}

func (s *Store) q(query string) string {
	return dbx.Rebind(s.dialect, query)
}

func (s *Store) timestamp() string {
	return s.now().UTC().Format(timeLayout)
}

// Create stores a new note and returns the stored copy with its generated
// id, timestamps, default category and initial status filled in.
func (s *Store) Create(ctx context.Context, rec *models.NoteRecord) (*models.NoteRecord, error) {
	if err := s.ensureInitialized(ctx); err != nil {
		return nil, err
	}

	out := *rec
	out.ID = s.newID()
	out.PhotoPaths = append([]string{}, rec.PhotoPaths...)
	if strings.TrimSpace(out.CategoryLabel) == "" {
		out.CategoryLabel = s.defaultCategory
	}
	if out.RecognitionStatus == "" {
		out.RecognitionStatus = models.StatusUploaded
	}
	if !out.RecognitionStatus.Valid() {
		return nil, fmt.Errorf("%w: unknown status %q", common.ErrValidation, out.RecognitionStatus)
	}

	ts := s.timestamp()
	created, err := time.Parse(timeLayout, ts)
	if err != nil {
		return nil, err
	}
	out.CreatedAt, out.UpdatedAt = created, created

	photos, err := json.Marshal(out.PhotoPaths)
	if err != nil {
		return nil, fmt.Errorf("encode photo paths: %w", err)
	}

	query := `INSERT INTO notes (` + noteColumns + `)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`
	_, err = s.db.ExecContext(ctx, s.q(query),
		out.ID, out.Title, out.CategoryLabel, out.OriginalText, out.RecognizedText, out.ErrorMessage,
		out.AudioPath, string(photos), string(out.RecognitionStatus), ts, ts)
	if err != nil {
		return nil, fmt.Errorf("%w: insert note: %w", common.ErrStorage, err)
	}

	return &out, nil
}

// Get returns the note with the given id or common.ErrNotFound.
func (s *Store) Get(ctx context.Context, id string) (*models.NoteRecord, error) {
	if err := s.ensureInitialized(ctx); err != nil {
		return nil, err
	}

	row := s.db.QueryRowContext(ctx, s.q(`SELECT `+noteColumns+` FROM notes WHERE id = ?`), id)
	rec, err := scanNote(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, common.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("%w: select note: %w", common.ErrStorage, err)
	}
	return rec, nil
}

// ListByStatus returns the notes currently in status, oldest first.
func (s *Store) ListByStatus(ctx context.Context, status models.RecognitionStatus) ([]*models.NoteRecord, error) {
	if err := s.ensureInitialized(ctx); err != nil {
		return nil, err
	}

	rows, err := s.db.QueryContext(ctx,
		s.q(`SELECT `+noteColumns+` FROM notes WHERE recognition_status = ? ORDER BY created_at, id`),
		string(status))
	if err != nil {
		return nil, fmt.Errorf("%w: select notes: %w", common.ErrStorage, err)
	}
	defer rows.Close()

	result := []*models.NoteRecord{}
	for rows.Next() {
		rec, err := scanNote(rows)
		if err != nil {
			return nil, fmt.Errorf("%w: scan note: %w", common.ErrStorage, err)
		}
		result = append(result, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("%w: iterate notes: %w", common.ErrStorage, err)
	}
	return result, nil
}

// UpdateStatus sets the recognition status of a note.
//
// recognizedText and errorMessage replace the stored values (empty clears
// them). An empty categoryLabel keeps the stored label. UpdatedAt never goes
// backwards. Returns common.ErrNotFound for an unknown id.
func (s *Store) UpdateStatus(ctx context.Context, id string, status models.RecognitionStatus,
	recognizedText, categoryLabel, errorMessage string) error {
	if err := s.ensureInitialized(ctx); err != nil {
		return err
	}
	if !status.Valid() {
		return fmt.Errorf("%w: unknown status %q", common.ErrValidation, status)
	}

	ts := s.timestamp()

	var (
		query string
		args  []any
	)
	if strings.TrimSpace(categoryLabel) == "" {
		query = `UPDATE notes SET recognition_status = ?, recognized_text = ?, error_message = ?,
			updated_at = CASE WHEN updated_at > ? THEN updated_at ELSE ? END
			WHERE id = ?`
		args = []any{string(status), recognizedText, errorMessage, ts, ts, id}
	} else {
		query = `UPDATE notes SET recognition_status = ?, recognized_text = ?, error_message = ?,
			category_label = ?,
			updated_at = CASE WHEN updated_at > ? THEN updated_at ELSE ? END
			WHERE id = ?`
		args = []any{string(status), recognizedText, errorMessage, categoryLabel, ts, ts, id}
	}

	res, err := s.db.ExecContext(ctx, s.q(query), args...)
	if err != nil {
		return fmt.Errorf("%w: update note status: %w", common.ErrStorage, err)
	}
	return expectOneRow(res)
}

// TransitionStatus moves a note from one status to another only if it is
// still in from. Text fields and category are untouched. It reports whether
// the transition happened; an unknown id is reported as false.
func (s *Store) TransitionStatus(ctx context.Context, id string, from, to models.RecognitionStatus) (bool, error) {
	if err := s.ensureInitialized(ctx); err != nil {
		return false, err
	}
	if !to.Valid() {
		return false, fmt.Errorf("%w: unknown status %q", common.ErrValidation, to)
	}

	ts := s.timestamp()
	res, err := s.db.ExecContext(ctx, s.q(`UPDATE notes SET recognition_status = ?,
		updated_at = CASE WHEN updated_at > ? THEN updated_at ELSE ? END
		WHERE id = ? AND recognition_status = ?`),
		string(to), ts, ts, id, string(from))
	if err != nil {
		return false, fmt.Errorf("%w: transition note status: %w", common.ErrStorage, err)
	}

	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("%w: rows affected: %w", common.ErrStorage, err)
	}
	return n == 1, nil
}

// Requeue moves a note from from to Queued and clears its recognized text
// and error message in the same statement. Like TransitionStatus it reports
// whether the note was still in from.
func (s *Store) Requeue(ctx context.Context, id string, from models.RecognitionStatus) (bool, error) {
	if err := s.ensureInitialized(ctx); err != nil {
		return false, err
	}

	ts := s.timestamp()
	res, err := s.db.ExecContext(ctx, s.q(`UPDATE notes SET recognition_status = ?,
		recognized_text = '', error_message = '',
		updated_at = CASE WHEN updated_at > ? THEN updated_at ELSE ? END
		WHERE id = ? AND recognition_status = ?`),
		string(models.StatusQueued), ts, ts, id, string(from))
	if err != nil {
		return false, fmt.Errorf("%w: requeue note: %w", common.ErrStorage, err)
	}

	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("%w: rows affected: %w", common.ErrStorage, err)
	}
	return n == 1, nil
}

func expectOneRow(res sql.Result) error {
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("%w: rows affected: %w", common.ErrStorage, err)
	}
	switch n {
	case 1:
		return nil
	case 0:
		return common.ErrNotFound
	default:
		return fmt.Errorf("%w: unexpected rows affected: %d", common.ErrStorage, n)
	}
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanNote(row rowScanner) (*models.NoteRecord, error) {
	var (
		rec                  models.NoteRecord
		photos, status       string
		createdAt, updatedAt string
	)
	if err := row.Scan(&rec.ID, &rec.Title, &rec.CategoryLabel, &rec.OriginalText, &rec.RecognizedText,
		&rec.ErrorMessage, &rec.AudioPath, &photos, &status, &createdAt, &updatedAt); err != nil {
		return nil, err
	}

	st, err := models.ParseRecognitionStatus(status)
	if err != nil {
		return nil, err
	}
	rec.RecognitionStatus = st

	rec.PhotoPaths = []string{}
	if photos != "" {
		if err := json.Unmarshal([]byte(photos), &rec.PhotoPaths); err != nil {
			return nil, fmt.Errorf("decode photo paths: %w", err)
		}
	}

	if rec.CreatedAt, err = time.Parse(timeLayout, createdAt); err != nil {
		return nil, fmt.Errorf("parse created_at: %w", err)
	}
	if rec.UpdatedAt, err = time.Parse(timeLayout, updatedAt); err != nil {
		return nil, fmt.Errorf("parse updated_at: %w", err)
	}

	return &rec, nil
}

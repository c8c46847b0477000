package media

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/dmitrijs2005/voicenotes/internal/common"
	"github.com/dmitrijs2005/voicenotes/internal/filex"
)

// LocalStorage keeps blobs as files in a single directory. Identical content
// uploaded under the same name maps to the same file.
type LocalStorage struct {
	dir string
}

func NewLocalStorage(dir string) (*LocalStorage, error) {
	abs, err := filex.EnsureDir(dir)
	if err != nil {
		return nil, fmt.Errorf("%w: media dir: %w", common.ErrStorage, err)
	}
	return &LocalStorage{dir: abs}, nil
}

func (s *LocalStorage) Dir() string {
	return s.dir
}

func (s *LocalStorage) Save(ctx context.Context, filename string, r io.Reader) (string, error) {
	tmp, err := os.CreateTemp(s.dir, ".upload-*")
	if err != nil {
		return "", fmt.Errorf("%w: create temp: %w", common.ErrStorage, err)
	}
	defer func() {
		_ = tmp.Close()
		_ = os.Remove(tmp.Name())
	}()

	h := newHasher()
	if _, err := io.Copy(io.MultiWriter(tmp, h), readerWithContext(ctx, r)); err != nil {
		return "", fmt.Errorf("%w: write blob: %w", common.ErrStorage, err)
	}
	if err := tmp.Close(); err != nil {
		return "", fmt.Errorf("%w: close blob: %w", common.ErrStorage, err)
	}

	dst := filepath.Join(s.dir, blobName(h.Sum(nil), filename))
	if ok, _ := filex.Exists(dst); ok {
		return dst, nil
	}
	if err := os.Rename(tmp.Name(), dst); err != nil {
		return "", fmt.Errorf("%w: store blob: %w", common.ErrStorage, err)
	}
	return dst, nil
}

func (s *LocalStorage) Exists(_ context.Context, ref string) (bool, error) {
	return filex.Exists(ref)
}

func (s *LocalStorage) Fetch(ctx context.Context, ref string) (string, func(), error) {
	ok, err := s.Exists(ctx, ref)
	if err != nil {
		return "", nil, fmt.Errorf("%w: stat %s: %w", common.ErrStorage, ref, err)
	}
	if !ok {
		return "", nil, fmt.Errorf("%w: %s", common.ErrFileNotFound, ref)
	}
	return ref, func() {}, nil
}

// Remove deletes a blob that lives inside the media directory. References
// outside it are left alone.
func (s *LocalStorage) Remove(_ context.Context, ref string) error {
	rel, err := filepath.Rel(s.dir, ref)
	if err != nil || strings.HasPrefix(rel, "..") {
		return nil
	}
	if err := os.Remove(ref); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("%w: remove %s: %w", common.ErrStorage, ref, err)
	}
	return nil
}

type ctxReader struct {
	ctx context.Context
	r   io.Reader
}

func (c ctxReader) Read(p []byte) (int, error) {
	if err := c.ctx.Err(); err != nil {
		return 0, err
	}
	return c.r.Read(p)
}

func readerWithContext(ctx context.Context, r io.Reader) io.Reader {
	return ctxReader{ctx: ctx, r: r}
}

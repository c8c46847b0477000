// Package media stores uploaded audio and photo blobs. References returned
// by Save are opaque strings persisted on the note record: absolute paths
// for the local backend, s3://bucket/key for the S3 backend.
package media

import (
	"context"
	"encoding/hex"
	"fmt"
	"hash"
	"io"
	"strings"

	"golang.org/x/crypto/blake2b"
)

// Storage is the blob store used by the API and the recognition worker.
type Storage interface {
	// Save stores the content of r under a name derived from its hash and
	// the base name of filename, and returns the reference.
	Save(ctx context.Context, filename string, r io.Reader) (string, error)
	// Exists reports whether ref points to a stored blob.
	Exists(ctx context.Context, ref string) (bool, error)
	// Fetch makes ref available as a local file. release must be called
	// when the caller is done with path.
	Fetch(ctx context.Context, ref string) (path string, release func(), err error)
	// Remove deletes the blob; removing a missing blob is not an error.
	Remove(ctx context.Context, ref string) error
}

func newHasher() hash.Hash {
	// blake2b.New only fails for oversized keys.
	h, _ := blake2b.New(16, nil)
	return h
}

// blobName builds "<hash>_<base name>" with path separators and other
// unsafe characters removed from the original name.
func blobName(sum []byte, filename string) string {
	base := filename
	if i := strings.LastIndexAny(base, `/\`); i >= 0 {
		base = base[i+1:]
	}
	base = sanitize(base)
	if base == "" || base == "." || base == ".." {
		base = "blob"
	}
	return fmt.Sprintf("%s_%s", hex.EncodeToString(sum), base)
}

func sanitize(name string) string {
	return strings.Map(func(r rune) rune {
		switch {
		case r == '/' || r == '\\' || r == 0:
			return -1
		case r < 0x20 || r == '*':
			return '_'
		default:
			return r
		}
	}, name)
}

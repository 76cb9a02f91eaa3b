// Package blob implements the content-addressed payload store shared by
// every publisher in a repository: a flat, two-level sharded directory of
// files named by the SHA-256 digest of their uncompressed content.
package blob

import (
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/google/uuid"
	"github.com/opencontainers/go-digest"

	"github.com/ips6/pkgrepo/internal/errcode"
)

// Store is a content-addressed blob store rooted at a single directory.
// All paths it produces are subpaths of Root; callers never construct
// shard paths themselves.
type Store struct {
	root string
}

// New returns a Store rooted at dir. The directory is created if it does
// not already exist.
func New(dir string) (*Store, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, errcode.ErrorCodeBlobWriteFailed.WithArgs(err.Error()).WithDetail(dir)
	}
	return &Store{root: dir}, nil
}

// shardPath returns "<root>/<hex[0:2]>/<hex[2:4]>/<hex>" for d.
func (s *Store) shardPath(d digest.Digest) string {
	hex := d.Encoded()
	return filepath.Join(s.root, hex[0:2], hex[2:4], hex)
}

// Exists reports whether a blob with digest d is already present.
func (s *Store) Exists(d digest.Digest) bool {
	_, err := os.Stat(s.shardPath(d))
	return err == nil
}

// Insert streams r into the store, computing its digest as it goes.
// If a blob with the resulting digest already exists, the freshly written
// copy is discarded (content-addressed storage is deduplicating by
// construction). Insert writes to a temporary file under <root>/tmp (on
// the same filesystem as the shards), fsyncs it, and renames it into
// place; any failure before the rename leaves no artifact behind.
func (s *Store) Insert(r io.Reader) (digest.Digest, error) {
	tmpDir := filepath.Join(s.root, "tmp")
	if err := os.MkdirAll(tmpDir, 0o755); err != nil {
		return "", errcode.ErrorCodeBlobWriteFailed.WithArgs(err.Error())
	}

	tmpPath := filepath.Join(tmpDir, uuid.NewString()+".tmp")
	f, err := os.OpenFile(tmpPath, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o644)
	if err != nil {
		return "", errcode.ErrorCodeBlobWriteFailed.WithArgs(err.Error())
	}

	digester := digest.SHA256.Digester()
	tee := io.TeeReader(r, digester.Hash())
	if _, err := io.Copy(f, tee); err != nil {
		f.Close()
		os.Remove(tmpPath)
		return "", errcode.ErrorCodeBlobWriteFailed.WithArgs(err.Error())
	}

	if err := f.Sync(); err != nil {
		f.Close()
		os.Remove(tmpPath)
		return "", errcode.ErrorCodeBlobWriteFailed.WithArgs(err.Error())
	}
	if err := f.Close(); err != nil {
		os.Remove(tmpPath)
		return "", errcode.ErrorCodeBlobWriteFailed.WithArgs(err.Error())
	}

	d := digester.Digest()
	finalPath := s.shardPath(d)

	if _, err := os.Stat(finalPath); err == nil {
		// Already present under this digest; discard the duplicate.
		os.Remove(tmpPath)
		return d, nil
	}

	if err := os.MkdirAll(filepath.Dir(finalPath), 0o755); err != nil {
		os.Remove(tmpPath)
		return "", errcode.ErrorCodeBlobWriteFailed.WithArgs(err.Error())
	}

	if err := os.Rename(tmpPath, finalPath); err != nil {
		os.Remove(tmpPath)
		return "", errcode.ErrorCodeBlobWriteFailed.WithArgs(err.Error())
	}

	return d, nil
}

// InsertFile is a convenience wrapper around Insert for a payload already
// resident on disk (the common case: a publish transaction stages payload
// files before committing them into the store).
func (s *Store) InsertFile(path string) (digest.Digest, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", errcode.ErrorCodeBlobWriteFailed.WithArgs(err.Error())
	}
	defer f.Close()
	return s.Insert(f)
}

// Open returns a read handle for the blob named by d. It returns
// ErrorCodeBlobMissing if no such blob exists.
func (s *Store) Open(d digest.Digest) (io.ReadCloser, error) {
	f, err := os.Open(s.shardPath(d))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, errcode.ErrorCodeBlobMissing.WithArgs(d.String())
		}
		return nil, errcode.ErrorCodeBlobWriteFailed.WithArgs(err.Error())
	}
	return f, nil
}

// Verify re-reads the blob at d and confirms its content still hashes to
// d, returning ErrorCodeBlobDigestMismatch if not.
func (s *Store) Verify(d digest.Digest) error {
	r, err := s.Open(d)
	if err != nil {
		return err
	}
	defer r.Close()

	verifier := d.Verifier()
	if _, err := io.Copy(verifier, r); err != nil {
		return errcode.ErrorCodeBlobWriteFailed.WithArgs(err.Error())
	}
	if !verifier.Verified() {
		return errcode.ErrorCodeBlobDigestMismatch.WithArgs(d.String())
	}
	return nil
}

// Enumerate walks every blob currently on disk, calling fn once per
// digest. It does not remove anything; callers that need mark-and-sweep
// semantics build the mark set themselves and diff it against this walk.
func (s *Store) Enumerate(fn func(digest.Digest) error) error {
	return filepath.Walk(s.root, func(p string, info os.FileInfo, err error) error {
		if err != nil {
			if os.IsNotExist(err) {
				return nil
			}
			return errcode.ErrorCodeBlobWriteFailed.WithArgs(err.Error())
		}
		if info.IsDir() {
			return nil
		}
		rel, err := filepath.Rel(s.root, p)
		if err != nil {
			return errcode.ErrorCodeBlobWriteFailed.WithArgs(err.Error())
		}
		rel = filepath.ToSlash(rel)
		if strings.HasPrefix(rel, "tmp/") {
			return nil
		}
		if strings.Count(rel, "/") != 2 {
			return nil
		}
		d, err := digest.Parse("sha256:" + filepath.Base(rel))
		if err != nil {
			return nil
		}
		return fn(d)
	})
}

package blobstore

import (
	"encoding/hex"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"

	"github.com/zeebo/blake3"

	"github.com/quorumvault/quorumvault/pkg/coreerr"
	"github.com/quorumvault/quorumvault/pkg/log"
	"github.com/quorumvault/quorumvault/pkg/types"
)

const tmpSuffix = ".tmp"

// Store is a content-addressed blob store rooted at a directory on local
// disk. The zero value is not usable; construct with Open.
type Store struct {
	root     string
	maxBytes int64
	used     atomic.Int64
}

// Open opens (creating if absent) a blob store rooted at <root>/objects.
// Any truncated ".tmp" file left over from a crashed write is removed, and
// the store's used-byte accounting is rebuilt by walking the tree.
func Open(root string, maxBytes int64) (*Store, error) {
	objRoot := filepath.Join(root, "objects")
	if err := os.MkdirAll(objRoot, 0o755); err != nil {
		return nil, coreerr.IOError.Wrap(err)
	}

	s := &Store{root: objRoot, maxBytes: maxBytes}

	var used int64
	err := filepath.WalkDir(objRoot, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			return nil
		}
		if strings.HasSuffix(path, tmpSuffix) {
			log.Warn("removing truncated tmp blob file: " + path)
			return os.Remove(path)
		}
		info, err := d.Info()
		if err != nil {
			return err
		}
		used += info.Size()
		return nil
	})
	if err != nil {
		return nil, coreerr.IOError.Wrap(err)
	}
	s.used.Store(used)
	return s, nil
}

func (s *Store) shardDir(digest types.Digest) string {
	d := string(digest)
	if len(d) < 2 {
		d = d + strings.Repeat("0", 2-len(d))
	}
	return filepath.Join(s.root, d[:2])
}

func (s *Store) path(digest types.Digest) string {
	return filepath.Join(s.shardDir(digest), string(digest))
}

// Digest computes the BLAKE3-256 digest of data, hex-encoded, the form
// used as a Store key everywhere in this repo.
func Digest(data []byte) types.Digest {
	sum := blake3.Sum256(data)
	return types.Digest(hex.EncodeToString(sum[:]))
}

// Exists reports whether a blob for digest is present on disk.
func (s *Store) Exists(digest types.Digest) bool {
	_, err := os.Stat(s.path(digest))
	return err == nil
}

// Write persists data under digest. It is idempotent: if a file already
// exists for digest, the call is a no-op (content addressing guarantees
// the bytes would be identical). Fails with Capacity if free capacity
// would be exceeded, Durability/Io on filesystem errors.
func (s *Store) Write(digest types.Digest, data []byte) error {
	if s.Exists(digest) {
		return nil
	}
	if s.maxBytes > 0 && s.used.Load()+int64(len(data)) > s.maxBytes {
		return coreerr.InsufficientSpace.With("need %d bytes, limit %d, used %d", len(data), s.maxBytes, s.used.Load())
	}

	dir := s.shardDir(digest)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return coreerr.IOError.Wrap(err)
	}

	tmp := s.path(digest) + tmpSuffix
	f, err := os.OpenFile(tmp, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o644)
	if err != nil {
		return coreerr.IOError.Wrap(err)
	}
	if _, err := f.Write(data); err != nil {
		f.Close()
		os.Remove(tmp)
		return coreerr.IOError.Wrap(err)
	}
	if err := f.Sync(); err != nil {
		f.Close()
		os.Remove(tmp)
		return coreerr.IOError.Wrap(err)
	}
	if err := f.Close(); err != nil {
		os.Remove(tmp)
		return coreerr.IOError.Wrap(err)
	}
	if err := os.Rename(tmp, s.path(digest)); err != nil {
		os.Remove(tmp)
		return coreerr.IOError.Wrap(err)
	}

	s.used.Add(int64(len(data)))
	return nil
}

// Read returns the bytes stored under digest, verifying the BLAKE3 digest
// of the bytes on disk matches digest before returning them. Fails with
// NoSuchKey if no blob is stored under digest, Io on any other filesystem
// error, or Corruption if the digest mismatches.
func (s *Store) Read(digest types.Digest) ([]byte, error) {
	data, err := os.ReadFile(s.path(digest))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, coreerr.NoSuchKey.With("blob %s not found", digest)
		}
		return nil, coreerr.IOError.Wrap(err)
	}
	if got := Digest(data); got != digest {
		return nil, coreerr.Corruption.With("blob %s: computed digest %s", digest, got)
	}
	return data, nil
}

// Delete removes the blob for digest. The caller (the metadata index, via
// reference counting) must ensure no live version still references it.
func (s *Store) Delete(digest types.Digest) error {
	info, err := os.Stat(s.path(digest))
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return coreerr.IOError.Wrap(err)
	}
	if err := os.Remove(s.path(digest)); err != nil {
		return coreerr.IOError.Wrap(err)
	}
	s.used.Add(-info.Size())
	return nil
}

// UsedBytes returns the total bytes currently occupied by blob files.
func (s *Store) UsedBytes() int64 {
	return s.used.Load()
}

// CopyFrom reads exactly size bytes from src into one in-memory buffer and
// stores them under digest via Write. The bytes are not checked against
// digest.
func (s *Store) CopyFrom(digest types.Digest, size int64, src io.Reader) error {
	data := make([]byte, size)
	if _, err := io.ReadFull(src, data); err != nil {
		return coreerr.IOError.Wrap(err)
	}
	return s.Write(digest, data)
}

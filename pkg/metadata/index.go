package metadata

import (
	"encoding/binary"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	bolt "go.etcd.io/bbolt"

	"github.com/quorumvault/quorumvault/pkg/coreerr"
	"github.com/quorumvault/quorumvault/pkg/types"
)

var (
	bucketBuckets      = []byte("buckets")
	bucketLatest       = []byte("latest")
	bucketVersions     = []byte("versions")
	bucketVersionIndex = []byte("version_index")
	bucketRefcount     = []byte("refcount")
)

const sep = "\x00"

// Index is the bbolt-backed metadata index.
type Index struct {
	db   *bolt.DB
	root string
}

// Open opens (creating if absent) the metadata index at <root>/meta/index.db.
func Open(root string) (*Index, error) {
	path := filepath.Join(root, "meta", "index.db")
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, coreerr.IOError.Wrap(err)
	}
	db, err := bolt.Open(path, 0o600, &bolt.Options{Timeout: 5 * time.Second})
	if err != nil {
		return nil, coreerr.IOError.Wrap(err)
	}

	err = db.Update(func(tx *bolt.Tx) error {
		for _, b := range [][]byte{bucketBuckets, bucketLatest, bucketVersions, bucketVersionIndex, bucketRefcount} {
			if _, err := tx.CreateBucketIfNotExists(b); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		db.Close()
		return nil, coreerr.IOError.Wrap(err)
	}

	return &Index{db: db, root: root}, nil
}

// Root returns the storage root this index was opened under, so sibling
// on-disk state (e.g. replog's checkpoint file) can be located relative
// to it without duplicating configuration.
func (idx *Index) Root() string {
	return idx.root
}

// Close closes the underlying database.
func (idx *Index) Close() error {
	return idx.db.Close()
}

func latestKey(bucket, key string) []byte {
	return []byte(bucket + sep + key)
}

func versionKey(bucket, key string, createdAtMS int64, versionID string) []byte {
	return []byte(fmt.Sprintf("%s%s%s%s%020d%s%s", bucket, sep, key, sep, createdAtMS, sep, versionID))
}

func versionIndexKey(bucket, key, versionID string) []byte {
	return []byte(bucket + sep + key + sep + versionID)
}

func keyPrefix(bucket, key string) []byte {
	return []byte(bucket + sep + key + sep)
}

// CreateBucket registers a new bucket. Fails AlreadyExists on a duplicate
// name.
func (idx *Index) CreateBucket(name, region string) error {
	return idx.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketBuckets)
		if b.Get([]byte(name)) != nil {
			return coreerr.AlreadyExists.With("bucket %q", name)
		}
		data, err := json.Marshal(types.Bucket{Name: name, Region: region, CreatedAt: time.Now()})
		if err != nil {
			return coreerr.InvalidRequest.Wrap(err)
		}
		return b.Put([]byte(name), data)
	})
}

// BucketExists reports whether name is registered.
func (idx *Index) BucketExists(name string) (bool, error) {
	var exists bool
	err := idx.db.View(func(tx *bolt.Tx) error {
		exists = tx.Bucket(bucketBuckets).Get([]byte(name)) != nil
		return nil
	})
	return exists, err
}

// DeleteBucket removes an empty bucket. Fails NotEmpty if any
// non-tombstoned version exists under it.
func (idx *Index) DeleteBucket(name string) error {
	return idx.db.Update(func(tx *bolt.Tx) error {
		bb := tx.Bucket(bucketBuckets)
		if bb.Get([]byte(name)) == nil {
			return coreerr.NoSuchBucket.With("bucket %q", name)
		}

		c := tx.Bucket(bucketLatest).Cursor()
		prefix := []byte(name + sep)
		for k, v := c.Seek(prefix); k != nil && strings.HasPrefix(string(k), string(prefix)); k, v = c.Next() {
			var vm types.VersionMeta
			if err := json.Unmarshal(v, &vm); err != nil {
				return coreerr.IOError.Wrap(err)
			}
			if !vm.IsDeleteMarker {
				return coreerr.NotEmpty.With("bucket %q", name)
			}
		}
		return bb.Delete([]byte(name))
	})
}

func (idx *Index) bumpRefcount(tx *bolt.Tx, digest types.Digest, delta int64) error {
	if digest == "" {
		return nil
	}
	b := tx.Bucket(bucketRefcount)
	key := []byte(digest)
	var count int64
	if raw := b.Get(key); raw != nil {
		count = int64(binary.BigEndian.Uint64(raw))
	}
	count += delta
	if count < 0 {
		count = 0
	}
	buf := make([]byte, 8)
	binary.BigEndian.PutUint64(buf, uint64(count))
	return b.Put(key, buf)
}

// RefCount returns the current reference count for a blob digest.
func (idx *Index) RefCount(digest types.Digest) (uint64, error) {
	var count uint64
	err := idx.db.View(func(tx *bolt.Tx) error {
		if raw := tx.Bucket(bucketRefcount).Get([]byte(digest)); raw != nil {
			count = binary.BigEndian.Uint64(raw)
		}
		return nil
	})
	return count, err
}

func (idx *Index) updateLatestIfNewer(tx *bolt.Tx, vm types.VersionMeta) error {
	lb := tx.Bucket(bucketLatest)
	lk := latestKey(vm.Bucket, vm.Key)
	var current types.VersionMeta
	if raw := lb.Get(lk); raw != nil {
		if err := json.Unmarshal(raw, &current); err != nil {
			return coreerr.IOError.Wrap(err)
		}
		if !current.Before(vm) {
			return nil
		}
	}
	data, err := json.Marshal(vm)
	if err != nil {
		return coreerr.IOError.Wrap(err)
	}
	return lb.Put(lk, data)
}

// putVersion appends vm to the versions list for (vm.Bucket, vm.Key),
// idempotent on version_id because the on-disk key is fully determined by
// (bucket, key, created_at_ms, version_id).
func (idx *Index) putVersion(vm types.VersionMeta, isNewRef bool) error {
	return idx.db.Update(func(tx *bolt.Tx) error {
		vk := versionKey(vm.Bucket, vm.Key, vm.CreatedAtMS, vm.VersionID)
		vb := tx.Bucket(bucketVersions)

		alreadyPresent := vb.Get(vk) != nil
		data, err := json.Marshal(vm)
		if err != nil {
			return coreerr.IOError.Wrap(err)
		}
		if err := vb.Put(vk, data); err != nil {
			return err
		}
		if err := tx.Bucket(bucketVersionIndex).Put(versionIndexKey(vm.Bucket, vm.Key, vm.VersionID), vk); err != nil {
			return err
		}
		if isNewRef && !alreadyPresent && vm.Digest != "" {
			if err := idx.bumpRefcount(tx, vm.Digest, 1); err != nil {
				return err
			}
		}
		return idx.updateLatestIfNewer(tx, vm)
	})
}

// PutVersion appends a new non-tombstone version.
func (idx *Index) PutVersion(vm types.VersionMeta) error {
	vm.IsDeleteMarker = false
	return idx.putVersion(vm, true)
}

// PutDeleteMarker appends a delete-marker version with the given
// version id.
func (idx *Index) PutDeleteMarker(bucket, key, versionID string, createdAtMS int64) error {
	vm := types.VersionMeta{
		Bucket:         bucket,
		Key:            key,
		VersionID:      versionID,
		IsDeleteMarker: true,
		CreatedAtMS:    createdAtMS,
	}
	return idx.putVersion(vm, false)
}

// RemoveVersion physically removes one version, returning whether it
// existed. If it was the latest pointer, the latest pointer is
// recomputed from the remaining versions. If the removed version was the
// last reference to its blob, the blob becomes eligible for compaction
// (RefCount drops to 0; the blob file itself is not deleted here).
func (idx *Index) RemoveVersion(bucket, key, versionID string) (bool, error) {
	var existed bool
	err := idx.db.Update(func(tx *bolt.Tx) error {
		vib := tx.Bucket(bucketVersionIndex)
		vik := versionIndexKey(bucket, key, versionID)
		vk := vib.Get(vik)
		if vk == nil {
			return nil
		}
		existed = true

		vb := tx.Bucket(bucketVersions)
		raw := vb.Get(vk)
		var vm types.VersionMeta
		if raw != nil {
			if err := json.Unmarshal(raw, &vm); err != nil {
				return coreerr.IOError.Wrap(err)
			}
		}

		if err := vb.Delete(vk); err != nil {
			return err
		}
		if err := vib.Delete(vik); err != nil {
			return err
		}
		if !vm.IsDeleteMarker && vm.Digest != "" {
			if err := idx.bumpRefcount(tx, vm.Digest, -1); err != nil {
				return err
			}
		}

		return idx.recomputeLatest(tx, bucket, key)
	})
	return existed, err
}

func (idx *Index) recomputeLatest(tx *bolt.Tx, bucket, key string) error {
	c := tx.Bucket(bucketVersions).Cursor()
	prefix := keyPrefix(bucket, key)
	var newest *types.VersionMeta
	for k, v := c.Seek(prefix); k != nil && strings.HasPrefix(string(k), string(prefix)); k, v = c.Next() {
		var vm types.VersionMeta
		if err := json.Unmarshal(v, &vm); err != nil {
			return coreerr.IOError.Wrap(err)
		}
		if newest == nil || newest.Before(vm) {
			cp := vm
			newest = &cp
		}
	}

	lb := tx.Bucket(bucketLatest)
	lk := latestKey(bucket, key)
	if newest == nil {
		return lb.Delete(lk)
	}
	data, err := json.Marshal(*newest)
	if err != nil {
		return coreerr.IOError.Wrap(err)
	}
	return lb.Put(lk, data)
}

// GetVersion returns a specific version if versionID is non-empty, or the
// latest-any version (which may be a delete marker) if versionID is
// empty. Returns nil, nil if not found.
func (idx *Index) GetVersion(bucket, key, versionID string) (*types.VersionMeta, error) {
	var out *types.VersionMeta
	err := idx.db.View(func(tx *bolt.Tx) error {
		if versionID == "" {
			raw := tx.Bucket(bucketLatest).Get(latestKey(bucket, key))
			if raw == nil {
				return nil
			}
			var vm types.VersionMeta
			if err := json.Unmarshal(raw, &vm); err != nil {
				return coreerr.IOError.Wrap(err)
			}
			out = &vm
			return nil
		}

		vk := tx.Bucket(bucketVersionIndex).Get(versionIndexKey(bucket, key, versionID))
		if vk == nil {
			return nil
		}
		raw := tx.Bucket(bucketVersions).Get(vk)
		if raw == nil {
			return nil
		}
		var vm types.VersionMeta
		if err := json.Unmarshal(raw, &vm); err != nil {
			return coreerr.IOError.Wrap(err)
		}
		out = &vm
		return nil
	})
	return out, err
}

// GetLatestLive returns the latest version only if it is not a delete
// marker; returns nil, nil for a tombstoned or absent key.
func (idx *Index) GetLatestLive(bucket, key string) (*types.VersionMeta, error) {
	vm, err := idx.GetVersion(bucket, key, "")
	if err != nil || vm == nil || vm.IsDeleteMarker {
		return nil, err
	}
	return vm, nil
}

// ListVersions returns every version of (bucket, key) in ascending
// (created_at_ms, version_id) order.
func (idx *Index) ListVersions(bucket, key string) ([]types.VersionMeta, error) {
	var out []types.VersionMeta
	err := idx.db.View(func(tx *bolt.Tx) error {
		c := tx.Bucket(bucketVersions).Cursor()
		prefix := keyPrefix(bucket, key)
		for k, v := c.Seek(prefix); k != nil && strings.HasPrefix(string(k), string(prefix)); k, v = c.Next() {
			var vm types.VersionMeta
			if err := json.Unmarshal(v, &vm); err != nil {
				return coreerr.IOError.Wrap(err)
			}
			out = append(out, vm)
		}
		return nil
	})
	return out, err
}

// ListKeys returns up to maxKeys live keys (latest version not a delete
// marker) in bucket that start with prefix, in lexicographic order, resuming after
// continuation (the opaque last-returned key from a prior call).
// maxKeys is capped at 1000 regardless of the caller's request.
func (idx *Index) ListKeys(bucket, prefix string, maxKeys int, continuation string) ([]string, string, error) {
	if maxKeys <= 0 || maxKeys > 1000 {
		maxKeys = 1000
	}

	var keys []string
	var truncated bool
	err := idx.db.View(func(tx *bolt.Tx) error {
		c := tx.Bucket(bucketLatest).Cursor()
		scanPrefix := []byte(bucket + sep + prefix)
		start := []byte(bucket + sep + prefix)
		if continuation != "" {
			start = []byte(bucket + sep + continuation + "\x01")
		}

		for k, v := c.Seek(start); k != nil; k, v = c.Next() {
			ks := string(k)
			if !strings.HasPrefix(ks, bucket+sep) {
				break
			}
			userKey := strings.TrimPrefix(ks, bucket+sep)
			if !strings.HasPrefix(ks, string(scanPrefix)) {
				break
			}

			var vm types.VersionMeta
			if err := json.Unmarshal(v, &vm); err != nil {
				return coreerr.IOError.Wrap(err)
			}
			if vm.IsDeleteMarker {
				continue
			}
			if len(keys) == maxKeys {
				truncated = true
				break
			}
			keys = append(keys, userKey)
		}
		return nil
	})
	if err != nil {
		return nil, "", err
	}

	next := ""
	if truncated && len(keys) > 0 {
		next = keys[len(keys)-1]
	}
	return keys, next, nil
}

// Stats returns the number of live keys and the sum of their sizes across
// all buckets.
func (idx *Index) Stats() (objectCount int64, totalBytes int64, err error) {
	err = idx.db.View(func(tx *bolt.Tx) error {
		return tx.Bucket(bucketLatest).ForEach(func(k, v []byte) error {
			var vm types.VersionMeta
			if err := json.Unmarshal(v, &vm); err != nil {
				return err
			}
			if !vm.IsDeleteMarker {
				objectCount++
				totalBytes += vm.Size
			}
			return nil
		})
	})
	return
}

// AllBuckets returns every registered bucket, used when building a raft
// snapshot of the index.
func (idx *Index) AllBuckets() ([]types.Bucket, error) {
	var out []types.Bucket
	err := idx.db.View(func(tx *bolt.Tx) error {
		return tx.Bucket(bucketBuckets).ForEach(func(k, v []byte) error {
			var b types.Bucket
			if err := json.Unmarshal(v, &b); err != nil {
				return err
			}
			out = append(out, b)
			return nil
		})
	})
	return out, err
}

// AllVersions returns every version (including delete markers) across every
// bucket and key, used when building a raft snapshot of the index.
func (idx *Index) AllVersions() ([]types.VersionMeta, error) {
	var out []types.VersionMeta
	err := idx.db.View(func(tx *bolt.Tx) error {
		return tx.Bucket(bucketVersions).ForEach(func(k, v []byte) error {
			var vm types.VersionMeta
			if err := json.Unmarshal(v, &vm); err != nil {
				return err
			}
			out = append(out, vm)
			return nil
		})
	})
	return out, err
}

// UnreferencedDigests returns every blob digest whose reference count has
// dropped to zero — candidates for a compaction pass. Not on the hot
// path; intended for an offline/administrative sweep.
func (idx *Index) UnreferencedDigests() ([]types.Digest, error) {
	var out []types.Digest
	err := idx.db.View(func(tx *bolt.Tx) error {
		return tx.Bucket(bucketRefcount).ForEach(func(k, v []byte) error {
			if binary.BigEndian.Uint64(v) == 0 {
				out = append(out, types.Digest(k))
			}
			return nil
		})
	})
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out, err
}

/*
Package metadata implements C2, the metadata index: the authoritative,
queryable per-node catalog of buckets, keys, versions and delete markers
described by the specification.

The index is backed by go.etcd.io/bbolt, generalizing the teacher's
bucket-per-entity, JSON-value BoltDB layout (pkg/storage/boltdb.go in the
teacher) from Warren's node/service/task entities onto buckets, keys and
versions:

  - "buckets"       name -> Bucket (JSON)
  - "latest"        bucket\x00key -> VersionMeta (JSON), the latest-any
    version for that key (may be a delete marker)
  - "versions"      bucket\x00key\x00<20-digit zero-padded timestamp>\x00
    version_id -> VersionMeta (JSON); bbolt's cursor walks keys in byte
    order, which is also chronological order because the timestamp is
    fixed-width and zero-padded, so ascending iteration is ascending
    version order for free — ties are broken by the version id suffix,
    matching the specification's tie-break rule.
  - "version_index" bucket\x00key\x00version_id -> the composite
    "versions" key, giving O(log N) point lookup by version id without a
    full key-prefix scan.
  - "refcount"      digest -> big-endian uint64 reference count, used to
    decide when a blob becomes eligible for compaction.

All writes go through a single bbolt.Update transaction per call, which
is what gives put_version/put_delete_marker/remove_version their atomic
append/removal guarantee. Because every version's on-disk key is fully
determined by (bucket, key, created_at_ms, version_id) — all of which are
fixed at the time the owning log entry was proposed — re-applying a
committed PutObject/DeleteObject payload writes to the same key with the
same value, which is what makes C2 safe to replay from the log (P8).
*/
package metadata

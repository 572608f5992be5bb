package replog

import (
	"encoding/json"
	"errors"

	"github.com/hashicorp/raft"

	"github.com/quorumvault/quorumvault/pkg/coreerr"
	"github.com/quorumvault/quorumvault/pkg/metadata"
	"github.com/quorumvault/quorumvault/pkg/types"
)

func isAlreadyExists(err error) bool {
	return errors.Is(err, coreerr.AlreadyExists)
}

// indexSnapshot is the point-in-time export of the metadata index used for
// raft log compaction, mirroring the teacher's WarrenSnapshot in shape
// (flat slices of every entity, JSON-encoded).
type indexSnapshot struct {
	Buckets  []types.Bucket      `json:"buckets"`
	Versions []types.VersionMeta `json:"versions"`
}

func buildSnapshot(idx *metadata.Index) (*fsmSnapshot, error) {
	buckets, err := idx.AllBuckets()
	if err != nil {
		return nil, err
	}
	versions, err := idx.AllVersions()
	if err != nil {
		return nil, err
	}
	return &fsmSnapshot{data: indexSnapshot{Buckets: buckets, Versions: versions}}, nil
}

func restoreSnapshot(idx *metadata.Index, snap indexSnapshot) error {
	for _, b := range snap.Buckets {
		if err := idx.CreateBucket(b.Name, b.Region); err != nil {
			if !isAlreadyExists(err) {
				return err
			}
		}
	}
	for _, v := range snap.Versions {
		if v.IsDeleteMarker {
			if err := idx.PutDeleteMarker(v.Bucket, v.Key, v.VersionID, v.CreatedAtMS); err != nil {
				return err
			}
			continue
		}
		if err := idx.PutVersion(v); err != nil {
			return err
		}
	}
	return nil
}

// fsmSnapshot implements raft.FSMSnapshot.
type fsmSnapshot struct {
	data indexSnapshot
}

func (s *fsmSnapshot) Persist(sink raft.SnapshotSink) error {
	err := func() error {
		if err := json.NewEncoder(sink).Encode(s.data); err != nil {
			return err
		}
		return sink.Close()
	}()
	if err != nil {
		sink.Cancel()
	}
	return err
}

func (s *fsmSnapshot) Release() {}

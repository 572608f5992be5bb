package replog

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"sync"

	"github.com/hashicorp/raft"

	"github.com/quorumvault/quorumvault/pkg/coreerr"
	"github.com/quorumvault/quorumvault/pkg/log"
	"github.com/quorumvault/quorumvault/pkg/metadata"
	"github.com/quorumvault/quorumvault/pkg/metrics"
	"github.com/quorumvault/quorumvault/pkg/types"
)

// ApplyResult is the value returned from raft's Apply future's Response()
// for every committed Command.
type ApplyResult struct {
	Err error
}

// FSM is the raft.FSM applying committed Commands to the metadata index.
// It does not touch the blob store: blob bytes are written locally by the
// coordinator before a PutObject is proposed, and fetched from a peer over
// pkg/transport by a node whose GetObject finds the digest missing locally.
type FSM struct {
	mu  sync.RWMutex
	idx *metadata.Index
}

// NewFSM constructs an FSM backed by idx.
func NewFSM(idx *metadata.Index) *FSM {
	return &FSM{idx: idx}
}

// Apply applies one committed raft.Log entry. Called by raft on a single
// goroutine, in commit order.
func (f *FSM) Apply(l *raft.Log) interface{} {
	timer := metrics.NewTimer()
	defer timer.ObserveDuration(metrics.RaftApplyDuration)
	defer func() {
		if err := writeCheckpoint(f.idx, l.Index); err != nil {
			log.Error("replog: failed to write checkpoint: " + err.Error())
		}
	}()

	cmd, err := Decode(l.Data)
	if err != nil {
		return &ApplyResult{Err: coreerr.LogCorrupt.Wrap(err)}
	}

	f.mu.Lock()
	defer f.mu.Unlock()

	switch cmd.Type {
	case types.CommandNoOp:
		return &ApplyResult{}

	case types.CommandCreateBucket:
		var p types.CreateBucketPayload
		if err := json.Unmarshal(cmd.Data, &p); err != nil {
			return &ApplyResult{Err: coreerr.LogCorrupt.Wrap(err)}
		}
		err := f.idx.CreateBucket(p.Name, p.Region)
		if err != nil && !errors.Is(err, coreerr.AlreadyExists) {
			return &ApplyResult{Err: err}
		}
		return &ApplyResult{}

	case types.CommandPutObject:
		var p types.PutObjectPayload
		if err := json.Unmarshal(cmd.Data, &p); err != nil {
			return &ApplyResult{Err: coreerr.LogCorrupt.Wrap(err)}
		}
		err := f.idx.PutVersion(types.VersionMeta{
			Bucket:       p.Bucket,
			Key:          p.Key,
			VersionID:    p.VersionID,
			Digest:       p.Digest,
			SHA256:       p.SHA256,
			Size:         p.Size,
			ETag:         p.ETag,
			ContentType:  p.ContentType,
			UserMetadata: p.UserMetadata,
			CreatedAtMS:  p.CreatedAtMS,
		})
		if err != nil {
			return &ApplyResult{Err: err}
		}
		return &ApplyResult{}

	case types.CommandDeleteObject:
		var p types.DeleteObjectPayload
		if err := json.Unmarshal(cmd.Data, &p); err != nil {
			return &ApplyResult{Err: coreerr.LogCorrupt.Wrap(err)}
		}
		if p.VersionID != "" {
			existed, err := f.idx.RemoveVersion(p.Bucket, p.Key, p.VersionID)
			if err != nil {
				return &ApplyResult{Err: err}
			}
			if !existed {
				return &ApplyResult{Err: coreerr.NoSuchKey.With(
					"%s/%s version %s", p.Bucket, p.Key, p.VersionID)}
			}
			return &ApplyResult{}
		}
		err := f.idx.PutDeleteMarker(p.Bucket, p.Key, p.MarkerID, p.CreatedAtMS)
		return &ApplyResult{Err: err}

	case types.CommandMembershipChange:
		// Membership itself is tracked by raft's own configuration log
		// entries; this command exists only so the committed history
		// records when and to what the cluster view changed.
		return &ApplyResult{}

	default:
		return &ApplyResult{Err: fmt.Errorf("replog: unknown command type %q", cmd.Type)}
	}
}

// Snapshot captures the metadata index's full bucket/key/version state so
// raft can compact its log. The blob store is not part of the snapshot:
// blob files are content-addressed and already durable on local disk
// independent of the raft log.
func (f *FSM) Snapshot() (raft.FSMSnapshot, error) {
	f.mu.RLock()
	defer f.mu.RUnlock()

	snap, err := buildSnapshot(f.idx)
	if err != nil {
		return nil, err
	}
	return snap, nil
}

// Restore replaces the metadata index's contents with a previously
// captured snapshot, used when a node falls far enough behind that the
// leader compacted past its last log entry, or on cold start from a
// persisted snapshot.
func (f *FSM) Restore(rc io.ReadCloser) error {
	defer rc.Close()

	var snap indexSnapshot
	if err := json.NewDecoder(rc).Decode(&snap); err != nil {
		return coreerr.LogCorrupt.Wrap(err)
	}

	f.mu.Lock()
	defer f.mu.Unlock()

	return restoreSnapshot(f.idx, snap)
}

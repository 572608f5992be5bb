package replog

import (
	"encoding/json"
	"os"
	"path/filepath"
	"time"

	"github.com/quorumvault/quorumvault/pkg/coreerr"
	"github.com/quorumvault/quorumvault/pkg/metadata"
)

// checkpoint records the raft log index most recently applied to the
// metadata index, written after every FSM.Apply so a restarting node can
// tell whether its own bookkeeping has fallen out of sync with raft's.
type checkpoint struct {
	LastAppliedIndex uint64    `json:"last_applied_index"`
	Timestamp        time.Time `json:"timestamp"`
}

func checkpointPath(idx *metadata.Index) string {
	return filepath.Join(idx.Root(), "meta", "checkpoint.json")
}

// writeCheckpoint persists index as the most recently applied raft log
// index, via the same tmp-file-then-rename discipline blobstore.Store.Write
// uses for blob writes, so a crash mid-write never leaves a torn file.
func writeCheckpoint(idx *metadata.Index, index uint64) error {
	data, err := json.Marshal(checkpoint{LastAppliedIndex: index, Timestamp: time.Now()})
	if err != nil {
		return coreerr.IOError.Wrap(err)
	}

	path := checkpointPath(idx)
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return coreerr.IOError.Wrap(err)
	}

	tmp := path + ".tmp"
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
	if err := os.Rename(tmp, path); err != nil {
		os.Remove(tmp)
		return coreerr.IOError.Wrap(err)
	}
	return nil
}

// ReadCheckpoint returns the last applied raft log index recorded on disk,
// or (0, zero-time, nil) if no checkpoint has ever been written (a brand
// new node).
func ReadCheckpoint(idx *metadata.Index) (uint64, time.Time, error) {
	data, err := os.ReadFile(checkpointPath(idx))
	if err != nil {
		if os.IsNotExist(err) {
			return 0, time.Time{}, nil
		}
		return 0, time.Time{}, coreerr.IOError.Wrap(err)
	}

	var cp checkpoint
	if err := json.Unmarshal(data, &cp); err != nil {
		return 0, time.Time{}, coreerr.Corruption.Wrap(err)
	}
	return cp.LastAppliedIndex, cp.Timestamp, nil
}

package coordinator

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/quorumvault/quorumvault/pkg/blobstore"
	"github.com/quorumvault/quorumvault/pkg/consensus"
	"github.com/quorumvault/quorumvault/pkg/coreerr"
	"github.com/quorumvault/quorumvault/pkg/metadata"
	"github.com/quorumvault/quorumvault/pkg/replog"
	"github.com/quorumvault/quorumvault/pkg/types"
)

func newTestCoordinator(t *testing.T) *Coordinator {
	t.Helper()
	dir := t.TempDir()

	store, err := blobstore.Open(dir, 0)
	require.NoError(t, err)

	idx, err := metadata.Open(dir)
	require.NoError(t, err)
	t.Cleanup(func() { idx.Close() })

	cfg := types.NodeConfig{
		NodeID:              "node-1",
		NodeIP:              "127.0.0.1",
		Port:                25000 + (int(time.Now().UnixNano()) % 3000),
		StoragePath:         dir,
		ReplicationFactor:   1,
		ConsensusTimeoutMS:  5000,
		HeartbeatIntervalMS: 1000,
	}

	node := consensus.NewNode(cfg, replog.NewFSM(idx))
	require.NoError(t, node.Bootstrap())
	t.Cleanup(func() { node.Shutdown() })
	require.Eventually(t, node.IsLeader, 5*time.Second, 20*time.Millisecond)

	return New(store, idx, node, cfg)
}

func TestPutGetRoundTrip(t *testing.T) {
	c := newTestCoordinator(t)
	require.NoError(t, c.CreateBucket("photos", ""))

	res, err := c.PutObject("photos", "a.jpg", []byte("hello"), "image/jpeg", nil)
	require.NoError(t, err)
	assert.NotEmpty(t, res.VersionID)
	assert.Equal(t, int64(5), res.Size)

	obj, err := c.GetObject("photos", "a.jpg", "")
	require.NoError(t, err)
	assert.Equal(t, []byte("hello"), obj.Body)
	assert.Equal(t, res.VersionID, obj.Meta.VersionID)
}

func TestPutObjectRejectsMissingBucket(t *testing.T) {
	c := newTestCoordinator(t)
	_, err := c.PutObject("nope", "a", []byte("x"), "", nil)
	require.Error(t, err)
	assert.ErrorIs(t, err, coreerr.NoSuchBucket)
}

func TestGetObjectMissingKeyReturnsNoSuchKey(t *testing.T) {
	c := newTestCoordinator(t)
	require.NoError(t, c.CreateBucket("b", ""))

	_, err := c.GetObject("b", "missing", "")
	require.Error(t, err)
	assert.ErrorIs(t, err, coreerr.NoSuchKey)
}

func TestDeleteThenGetReturnsNoSuchKeyButHistoryRemains(t *testing.T) {
	c := newTestCoordinator(t)
	require.NoError(t, c.CreateBucket("b", ""))

	_, err := c.PutObject("b", "k", []byte("v1"), "", nil)
	require.NoError(t, err)

	markerID, err := c.DeleteObject("b", "k", "")
	require.NoError(t, err)
	assert.NotEmpty(t, markerID)

	_, err = c.GetObject("b", "k", "")
	require.Error(t, err)
	assert.ErrorIs(t, err, coreerr.NoSuchKey)

	versions, err := c.idx.ListVersions("b", "k")
	require.NoError(t, err)
	assert.Len(t, versions, 2)
}

func TestListObjectsV2(t *testing.T) {
	c := newTestCoordinator(t)
	require.NoError(t, c.CreateBucket("b", ""))
	for _, k := range []string{"a", "b", "c"} {
		_, err := c.PutObject("b", k, []byte(k), "", nil)
		require.NoError(t, err)
	}

	res, err := c.ListObjectsV2("b", "", "", 10)
	require.NoError(t, err)
	assert.Equal(t, []string{"a", "b", "c"}, res.Keys)
	assert.False(t, res.IsTruncated)
}

func TestReplicationGateRejectsWhenUnderReplicated(t *testing.T) {
	dir := t.TempDir()
	store, err := blobstore.Open(dir, 0)
	require.NoError(t, err)
	idx, err := metadata.Open(dir)
	require.NoError(t, err)
	t.Cleanup(func() { idx.Close() })

	cfg := types.NodeConfig{
		NodeID: "node-1", NodeIP: "127.0.0.1", Port: 28000 + (int(time.Now().UnixNano()) % 900),
		StoragePath: dir, ReplicationFactor: 3, ConsensusTimeoutMS: 5000, HeartbeatIntervalMS: 1000,
	}
	node := consensus.NewNode(cfg, replog.NewFSM(idx))
	require.NoError(t, node.Bootstrap())
	t.Cleanup(func() { node.Shutdown() })
	require.Eventually(t, node.IsLeader, 5*time.Second, 20*time.Millisecond)

	c := New(store, idx, node, cfg)
	err = c.CreateBucket("b", "")
	require.Error(t, err)
	assert.ErrorIs(t, err, coreerr.InsufficientReplicas)
}

// TestCrossNodeGetObjectFetchesBlobFromPeer bootstraps a 2-node cluster and
// verifies the follower can serve a GetObject for a key it only ever
// learned about via raft-replicated metadata: the follower's FSM applies
// the PutObject's VersionMeta but never receives the blob bytes directly,
// so GetObject must lazily fetch them from the leader over pkg/transport.
func TestCrossNodeGetObjectFetchesBlobFromPeer(t *testing.T) {
	dir1, dir2 := t.TempDir(), t.TempDir()

	store1, err := blobstore.Open(dir1, 0)
	require.NoError(t, err)
	idx1, err := metadata.Open(dir1)
	require.NoError(t, err)
	t.Cleanup(func() { idx1.Close() })

	store2, err := blobstore.Open(dir2, 0)
	require.NoError(t, err)
	idx2, err := metadata.Open(dir2)
	require.NoError(t, err)
	t.Cleanup(func() { idx2.Close() })

	basePort := 29000 + (int(time.Now().UnixNano()) % 500)
	cfg1 := types.NodeConfig{
		NodeID: "node-1", NodeIP: "127.0.0.1", Port: basePort,
		StoragePath: dir1, ReplicationFactor: 2,
		ConsensusTimeoutMS: 5000, HeartbeatIntervalMS: 200,
	}
	cfg2 := types.NodeConfig{
		NodeID: "node-2", NodeIP: "127.0.0.1", Port: basePort + 10,
		StoragePath: dir2, ReplicationFactor: 2,
		ConsensusTimeoutMS: 5000, HeartbeatIntervalMS: 200,
	}
	// cfg.Peers lists raft bind addresses; Node converts each to its
	// peer-transport address (+PeerPortOffset) for heartbeat gossip.
	cfg1.Peers = []string{cfg2.BindAddr()}
	cfg2.Peers = []string{cfg1.BindAddr()}

	node1 := consensus.NewNode(cfg1, replog.NewFSM(idx1))
	require.NoError(t, node1.Bootstrap())
	t.Cleanup(func() { node1.Shutdown() })
	require.Eventually(t, node1.IsLeader, 5*time.Second, 20*time.Millisecond)

	// Coordinator.New must run before Serve so the blob-fetch handler is
	// registered before the peer-transport listener accepts connections.
	c1 := New(store1, idx1, node1, cfg1)
	require.NoError(t, node1.Serve())

	node2 := consensus.NewNode(cfg2, replog.NewFSM(idx2))
	t.Cleanup(func() { node2.Shutdown() })
	require.NoError(t, node2.Join(cfg1.BindPeerAddr()))

	c2 := New(store2, idx2, node2, cfg2)
	require.NoError(t, node2.Serve())

	require.Eventually(t, func() bool { return node1.ActiveCount() >= 2 }, 5*time.Second, 50*time.Millisecond,
		"node1 should observe node2 via heartbeat")
	require.Eventually(t, func() bool { return node2.ActiveCount() >= 2 }, 5*time.Second, 50*time.Millisecond,
		"node2 should observe node1 via heartbeat")

	require.NoError(t, c1.CreateBucket("photos", ""))
	res, err := c1.PutObject("photos", "a.jpg", []byte("cross-node bytes"), "image/jpeg", nil)
	require.NoError(t, err)

	require.Eventually(t, func() bool {
		v, err := idx2.GetLatestLive("photos", "a.jpg")
		return err == nil && v != nil
	}, 5*time.Second, 50*time.Millisecond, "node2 should observe the replicated version")

	obj, err := c2.GetObject("photos", "a.jpg", "")
	require.NoError(t, err)
	assert.Equal(t, []byte("cross-node bytes"), obj.Body)
	assert.Equal(t, res.VersionID, obj.Meta.VersionID)
}

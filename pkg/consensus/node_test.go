package consensus

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/quorumvault/quorumvault/pkg/metadata"
	"github.com/quorumvault/quorumvault/pkg/replog"
	"github.com/quorumvault/quorumvault/pkg/types"
)

func freePort(t *testing.T) int {
	t.Helper()
	// Ports in this high range are unlikely to collide between the
	// several single-node clusters a test run bootstraps.
	return 21000 + (int(time.Now().UnixNano()) % 4000)
}

func newSingleNodeCluster(t *testing.T) *Node {
	t.Helper()
	dir := t.TempDir()
	idx, err := metadata.Open(dir)
	require.NoError(t, err)
	t.Cleanup(func() { idx.Close() })

	cfg := types.NodeConfig{
		NodeID:              "node-1",
		NodeIP:              "127.0.0.1",
		Port:                freePort(t),
		StoragePath:         dir,
		ReplicationFactor:   1,
		ConsensusTimeoutMS:  5000,
		HeartbeatIntervalMS: 1000,
	}

	n := NewNode(cfg, replog.NewFSM(idx))
	require.NoError(t, n.Bootstrap())
	t.Cleanup(func() { n.Shutdown() })

	require.Eventually(t, n.IsLeader, 5*time.Second, 20*time.Millisecond, "single-node cluster should elect itself leader")
	return n
}

func TestBootstrapElectsSelfLeader(t *testing.T) {
	n := newSingleNodeCluster(t)
	assert.True(t, n.IsLeader())
	assert.Equal(t, n.cfg.BindAddr(), n.LeaderAddr())
}

func TestApplyCommitsOnSingleNodeCluster(t *testing.T) {
	n := newSingleNodeCluster(t)

	cmd, err := replog.NewCreateBucketCommand(types.CreateBucketPayload{Name: "photos"})
	require.NoError(t, err)

	res, err := n.Apply(cmd)
	require.NoError(t, err)
	require.NotNil(t, res)
	assert.NoError(t, res.Err)
}

func TestApplyFailsWhenNotLeader(t *testing.T) {
	dir := t.TempDir()
	idx, err := metadata.Open(dir)
	require.NoError(t, err)
	t.Cleanup(func() { idx.Close() })

	cfg := types.NodeConfig{NodeID: "node-2", NodeIP: "127.0.0.1", Port: freePort(t), StoragePath: dir, ConsensusTimeoutMS: 1000}
	n := NewNode(cfg, replog.NewFSM(idx))
	// raft not started at all: Apply must fail, not panic.
	_, err = n.Apply(replog.Command{})
	assert.Error(t, err)
}

package consensus

import (
	"net"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/hashicorp/raft"
	raftboltdb "github.com/hashicorp/raft-boltdb"

	"github.com/quorumvault/quorumvault/pkg/coreerr"
	"github.com/quorumvault/quorumvault/pkg/log"
	"github.com/quorumvault/quorumvault/pkg/metrics"
	"github.com/quorumvault/quorumvault/pkg/replog"
	"github.com/quorumvault/quorumvault/pkg/transport"
	"github.com/quorumvault/quorumvault/pkg/types"
)

// Node wraps a raft.Raft instance together with the liveness gossip that
// backs the replication-factor gate.
type Node struct {
	cfg    types.NodeConfig
	fsm    *replog.FSM
	raft   *raft.Raft
	dataDir string

	transportSrv     *transport.Server
	client           *transport.Client
	blobFetchHandler func(transport.BlobFetchRequest) transport.BlobFetchResponse

	liveness *liveness
	stopCh   chan struct{}
}

// NewNode constructs a Node. Call Bootstrap or Join to actually start
// raft, and Serve to start the peer heartbeat/join listener.
func NewNode(cfg types.NodeConfig, fsm *replog.FSM) *Node {
	return &Node{
		cfg:      cfg,
		fsm:      fsm,
		dataDir:  filepath.Join(cfg.StoragePath, "raft"),
		client:   transport.NewClient(time.Duration(cfg.ConsensusTimeoutMS) * time.Millisecond),
		liveness: newLiveness(cfg.NodeID, peerTransportAddrs(cfg.Peers)),
		stopCh:   make(chan struct{}),
	}
}

// peerTransportAddrs maps each configured raft peer address to the
// pkg/transport listener address on the same host (one port above raft's
// own), so the heartbeat loop gossips to the right port.
func peerTransportAddrs(raftAddrs []string) []string {
	out := make([]string, 0, len(raftAddrs))
	for _, addr := range raftAddrs {
		host, portStr, err := net.SplitHostPort(addr)
		if err != nil {
			continue
		}
		port, err := strconv.Atoi(portStr)
		if err != nil {
			continue
		}
		out = append(out, net.JoinHostPort(host, strconv.Itoa(port+types.PeerPortOffset)))
	}
	return out
}

func (n *Node) raftConfig() *raft.Config {
	config := raft.DefaultConfig()
	config.LocalID = raft.ServerID(n.cfg.NodeID)

	heartbeat := time.Duration(n.cfg.HeartbeatIntervalMS) * time.Millisecond
	if heartbeat <= 0 {
		heartbeat = 500 * time.Millisecond
	}
	config.HeartbeatTimeout = heartbeat
	config.ElectionTimeout = heartbeat
	config.LeaderLeaseTimeout = heartbeat / 2
	return config
}

func (n *Node) newRaft() (*raft.Raft, error) {
	if err := os.MkdirAll(n.dataDir, 0o755); err != nil {
		return nil, coreerr.IOError.Wrap(err)
	}

	bindAddr := n.cfg.BindAddr()
	addr, err := net.ResolveTCPAddr("tcp", bindAddr)
	if err != nil {
		return nil, coreerr.InvalidRequest.Wrap(err)
	}

	raftTransport, err := raft.NewTCPTransport(bindAddr, addr, 3, 10*time.Second, os.Stderr)
	if err != nil {
		return nil, coreerr.ConnectionFailed.Wrap(err)
	}

	snapshotStore, err := raft.NewFileSnapshotStore(n.dataDir, 2, os.Stderr)
	if err != nil {
		return nil, coreerr.IOError.Wrap(err)
	}

	logStore, err := raftboltdb.NewBoltStore(filepath.Join(n.dataDir, "raft-log.db"))
	if err != nil {
		return nil, coreerr.IOError.Wrap(err)
	}

	stableStore, err := raftboltdb.NewBoltStore(filepath.Join(n.dataDir, "raft-stable.db"))
	if err != nil {
		return nil, coreerr.IOError.Wrap(err)
	}

	r, err := raft.NewRaft(n.raftConfig(), n.fsm, logStore, stableStore, snapshotStore, raftTransport)
	if err != nil {
		return nil, coreerr.Fatal.Wrap(err)
	}
	return r, nil
}

// Bootstrap starts a brand-new single-node cluster with this node as its
// only member.
func (n *Node) Bootstrap() error {
	r, err := n.newRaft()
	if err != nil {
		return err
	}
	n.raft = r

	config := raft.Configuration{
		Servers: []raft.Server{{
			ID:      raft.ServerID(n.cfg.NodeID),
			Address: raft.ServerAddress(n.cfg.BindAddr()),
		}},
	}
	if err := n.raft.BootstrapCluster(config).Error(); err != nil {
		return coreerr.Fatal.Wrap(err)
	}
	return nil
}

// Join starts raft and asks leaderAddr's peer-transport to admit this
// node to the cluster as a voter.
func (n *Node) Join(leaderAddr string) error {
	r, err := n.newRaft()
	if err != nil {
		return err
	}
	n.raft = r

	resp, err := n.client.Join(leaderAddr, transport.JoinRequest{
		NodeID:  n.cfg.NodeID,
		Address: n.cfg.BindAddr(),
	})
	if err != nil {
		return coreerr.ConnectionFailed.Wrap(err)
	}
	if !resp.Accepted {
		return coreerr.InvalidRequest.With("join rejected by leader: %s", resp.Reason)
	}
	return nil
}

// AddVoter admits nodeID at address as a voting member. Must be called on
// the leader.
func (n *Node) AddVoter(nodeID, address string) error {
	if n.raft == nil {
		return coreerr.Fatal.With("raft not started")
	}
	if !n.IsLeader() {
		return coreerr.NotLeader.WithHint(n.LeaderAddr())
	}
	timeout := time.Duration(n.cfg.ConsensusTimeoutMS) * time.Millisecond
	if err := n.raft.AddVoter(raft.ServerID(nodeID), raft.ServerAddress(address), 0, timeout).Error(); err != nil {
		return coreerr.Fatal.Wrap(err)
	}
	return nil
}

// RemoveServer removes nodeID from the voter set. Must be called on the
// leader.
func (n *Node) RemoveServer(nodeID string) error {
	if n.raft == nil {
		return coreerr.Fatal.With("raft not started")
	}
	if !n.IsLeader() {
		return coreerr.NotLeader.WithHint(n.LeaderAddr())
	}
	timeout := time.Duration(n.cfg.ConsensusTimeoutMS) * time.Millisecond
	if err := n.raft.RemoveServer(raft.ServerID(nodeID), 0, timeout).Error(); err != nil {
		return coreerr.Fatal.Wrap(err)
	}
	return nil
}

// IsLeader reports whether this node currently holds raft leadership.
func (n *Node) IsLeader() bool {
	return n.raft != nil && n.raft.State() == raft.Leader
}

// LastIndex returns raft's last log index, or 0 if raft has not started.
// Used at startup to assert the on-disk checkpoint hasn't outrun the log
// it claims to have applied from.
func (n *Node) LastIndex() uint64 {
	if n.raft == nil {
		return 0
	}
	return n.raft.LastIndex()
}

// LeaderAddr returns the current leader's bind address, or "" if unknown.
func (n *Node) LeaderAddr() string {
	if n.raft == nil {
		return ""
	}
	addr, _ := n.raft.LeaderWithID()
	return string(addr)
}

// Apply proposes cmd to the raft log and blocks until it commits or the
// node's consensus_timeout_ms elapses.
func (n *Node) Apply(cmd replog.Command) (*replog.ApplyResult, error) {
	if n.raft == nil {
		return nil, coreerr.Fatal.With("raft not started")
	}
	if !n.IsLeader() {
		return nil, coreerr.NotLeader.WithHint(n.LeaderAddr())
	}

	timer := metrics.NewTimer()

	data, err := cmd.Encode()
	if err != nil {
		return nil, coreerr.InvalidRequest.Wrap(err)
	}

	timeout := time.Duration(n.cfg.ConsensusTimeoutMS) * time.Millisecond
	var deadline <-chan time.Time
	if timeout > 0 {
		deadline = time.After(timeout)
	}
	// raft's own timeout only bounds enqueueing; the commit wait is bounded here.
	future := n.raft.Apply(data, timeout)
	errCh := make(chan error, 1)
	go func() { errCh <- future.Error() }()
	var applyErr error
	select {
	case applyErr = <-errCh:
	case <-deadline:
		return nil, coreerr.Timeout.With("entry not committed within %s", timeout)
	}
	if err := applyErr; err != nil {
		if err == raft.ErrLeadershipLost || err == raft.ErrNotLeader {
			return nil, coreerr.NotLeader.WithHint(n.LeaderAddr())
		}
		return nil, coreerr.Timeout.Wrap(err)
	}

	metrics.RaftApplyDuration.Observe(timer.Duration().Seconds())

	resp, _ := future.Response().(*replog.ApplyResult)
	if resp == nil {
		resp = &replog.ApplyResult{}
	}
	return resp, nil
}

// SetBlobFetchHandler registers the handler invoked for an inbound
// BlobFetch request. Must be called before Serve.
func (n *Node) SetBlobFetchHandler(h func(transport.BlobFetchRequest) transport.BlobFetchResponse) {
	n.blobFetchHandler = h
}

// Serve starts the heartbeat/join peer-transport listener and the
// background heartbeat sender; it returns once the listener is bound.
func (n *Node) Serve() error {
	srv, err := transport.NewServer(n.cfg.BindPeerAddr(), transport.Handlers{
		OnHeartbeat: n.liveness.observe,
		OnJoin:      n.handleJoin,
		OnBlobFetch: n.dispatchBlobFetch,
	})
	if err != nil {
		return err
	}
	n.transportSrv = srv
	go func() {
		if err := srv.Serve(); err != nil {
			log.Debug("consensus: peer transport stopped: " + err.Error())
		}
	}()

	go n.liveness.runHeartbeatLoop(n, n.stopCh)
	go n.liveness.runFailureDetector(n, n.stopCh)
	return nil
}

// dispatchBlobFetch reads n.blobFetchHandler at call time rather than
// capturing it at Serve-construction time. A request that arrives while no
// handler is registered is answered with Found=false.
func (n *Node) dispatchBlobFetch(req transport.BlobFetchRequest) transport.BlobFetchResponse {
	if n.blobFetchHandler == nil {
		return transport.BlobFetchResponse{Found: false, Digest: req.Digest}
	}
	return n.blobFetchHandler(req)
}

func (n *Node) handleJoin(req transport.JoinRequest) transport.JoinResponse {
	if !n.IsLeader() {
		return transport.JoinResponse{Accepted: false, Reason: "not leader", LeaderID: n.LeaderAddr()}
	}
	if err := n.AddVoter(req.NodeID, req.Address); err != nil {
		return transport.JoinResponse{Accepted: false, Reason: err.Error()}
	}
	return transport.JoinResponse{Accepted: true}
}

// currentTerm returns raft's current term, or 0 if raft has not started.
func (n *Node) currentTerm() uint64 {
	if n.raft == nil {
		return 0
	}
	raw, ok := n.raft.Stats()["term"]
	if !ok {
		return 0
	}
	term, _ := strconv.ParseUint(raw, 10, 64)
	return term
}

// ClusterView returns this node's current picture of term, leader and
// peer liveness.
func (n *Node) ClusterView() types.ClusterView {
	return types.ClusterView{
		Term:     n.currentTerm(),
		LeaderID: n.LeaderAddr(),
		Peers:    n.liveness.snapshot(),
	}
}

// FetchBlobFromPeer asks a single peer's transport listener for digest.
func (n *Node) FetchBlobFromPeer(addr string, req transport.BlobFetchRequest) (transport.BlobFetchResponse, error) {
	return n.client.FetchBlobDigest(addr, req)
}

// PeerTransportAddrs returns the pkg/transport listener address of every
// statically configured peer, for use by the coordinator when it needs to
// fetch a blob it doesn't have locally.
func (n *Node) PeerTransportAddrs() []string {
	return n.liveness.gossipAddrs
}

// ActiveCount returns the number of peers (including self) currently
// classified Active, the quantity the replication-factor gate compares
// against replication_factor.
func (n *Node) ActiveCount() int {
	return n.liveness.activeCount()
}

// Stats mirrors the teacher's GetRaftStats, surfaced for admin tooling.
func (n *Node) Stats() map[string]any {
	if n.raft == nil {
		return nil
	}
	stats := map[string]any{
		"state":          n.raft.State().String(),
		"last_log_index": n.raft.LastIndex(),
		"applied_index":  n.raft.AppliedIndex(),
		"leader":         n.LeaderAddr(),
	}
	if cfg := n.raft.GetConfiguration(); cfg.Error() == nil {
		stats["peers"] = len(cfg.Configuration().Servers)
	}
	return stats
}

// Shutdown stops the heartbeat loop, the peer listener, and raft itself.
func (n *Node) Shutdown() error {
	close(n.stopCh)
	if n.transportSrv != nil {
		_ = n.transportSrv.Close()
	}
	if n.raft != nil {
		if err := n.raft.Shutdown().Error(); err != nil {
			return coreerr.Fatal.Wrap(err)
		}
	}
	return nil
}

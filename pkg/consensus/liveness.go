package consensus

import (
	"sync"
	"time"

	"github.com/quorumvault/quorumvault/pkg/metrics"
	"github.com/quorumvault/quorumvault/pkg/transport"
	"github.com/quorumvault/quorumvault/pkg/types"
)

// failureMultiple is how many missed heartbeat intervals elapse before a
// peer is reclassified Failed.
const failureMultiple = 3

// liveness tracks the Active/Failed state of every peer this node has
// heard a Heartbeat from, independent of raft's own (private) peer
// bookkeeping. It is what the replication-factor gate reads.
type liveness struct {
	selfID      string
	gossipAddrs []string // statically configured peer addresses to send Heartbeats to

	mu    sync.RWMutex
	peers map[string]types.Peer // keyed by NodeID, populated from observed Heartbeats
}

func newLiveness(selfID string, gossipAddrs []string) *liveness {
	return &liveness{
		selfID:      selfID,
		gossipAddrs: gossipAddrs,
		peers:       map[string]types.Peer{selfID: {NodeID: selfID, State: types.PeerActive, LastHeartbeat: time.Now()}},
	}
}

// observe records a Heartbeat received from a peer, marking it Active.
func (l *liveness) observe(hb transport.Heartbeat) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.peers[hb.NodeID] = types.Peer{
		NodeID:        hb.NodeID,
		State:         types.PeerActive,
		LastHeartbeat: time.Now(),
	}
}

func (l *liveness) snapshot() []types.Peer {
	l.mu.RLock()
	defer l.mu.RUnlock()
	out := make([]types.Peer, 0, len(l.peers))
	for _, p := range l.peers {
		out = append(out, p)
	}
	return out
}

func (l *liveness) activeCount() int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	n := 0
	for _, p := range l.peers {
		if p.State == types.PeerActive {
			n++
		}
	}
	return n
}

// runHeartbeatLoop sends this node's Heartbeat to every statically
// configured peer address at the configured interval, until stop is
// closed.
func (l *liveness) runHeartbeatLoop(n *Node, stop <-chan struct{}) {
	interval := time.Duration(n.cfg.HeartbeatIntervalMS) * time.Millisecond
	if interval <= 0 {
		interval = time.Second
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
			l.beat(n)
		}
	}
}

func (l *liveness) beat(n *Node) {
	hb := transport.Heartbeat{
		NodeID:    l.selfID,
		Term:      n.currentTerm(),
		IsLeader:  n.IsLeader(),
		Timestamp: time.Now().UnixMilli(),
	}
	for _, addr := range l.gossipAddrs {
		_ = n.client.SendHeartbeat(addr, hb)
	}
	metrics.ActivePeers.Set(float64(l.activeCount()))
}

// runFailureDetector reclassifies any peer not heard from in
// failureMultiple × n.cfg.HeartbeatIntervalMS as Failed, until stop is
// closed. It polls at the same cadence as the heartbeat interval so the
// threshold stays correct for any configured value, not just the default.
func (l *liveness) runFailureDetector(n *Node, stop <-chan struct{}) {
	interval := time.Duration(n.cfg.HeartbeatIntervalMS) * time.Millisecond
	if interval <= 0 {
		interval = time.Second
	}
	maxAge := interval * failureMultiple

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
			l.sweep(maxAge)
		}
	}
}

func (l *liveness) sweep(maxAge time.Duration) {
	l.mu.Lock()
	defer l.mu.Unlock()
	now := time.Now()
	for id, p := range l.peers {
		if id == l.selfID || p.State != types.PeerActive {
			continue
		}
		if now.Sub(p.LastHeartbeat) > maxAge {
			p.State = types.PeerFailed
			l.peers[id] = p
		}
	}
}

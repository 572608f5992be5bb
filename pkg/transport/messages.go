package transport

import "github.com/quorumvault/quorumvault/pkg/types"

// Heartbeat is periodic liveness gossip, sent by every node to every peer
// it knows about at the configured heartbeat interval.
type Heartbeat struct {
	NodeID    string `json:"node_id"`
	Term      uint64 `json:"term"`
	IsLeader  bool   `json:"is_leader"`
	Timestamp int64  `json:"timestamp_ms"`
}

// BlobFetchRequest asks a peer for a blob this node does not yet have
// locally, identified by content digest.
type BlobFetchRequest struct {
	Digest types.Digest `json:"digest"`
}

// BlobFetchResponse carries the requested blob, or Found=false if the
// responding peer doesn't have it either.
type BlobFetchResponse struct {
	Found  bool         `json:"found"`
	Digest types.Digest `json:"digest"`
	Size   int64        `json:"size"`
	Data   []byte       `json:"data,omitempty"`
}

// JoinRequest is sent by a prospective member to the current leader to
// request admission to the cluster.
type JoinRequest struct {
	NodeID  string `json:"node_id"`
	Address string `json:"address"`
}

// JoinResponse is the leader's reply to a JoinRequest.
type JoinResponse struct {
	Accepted bool   `json:"accepted"`
	Reason   string `json:"reason,omitempty"`
	LeaderID string `json:"leader_id,omitempty"`
}

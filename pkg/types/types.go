package types

import (
	"net"
	"strconv"
	"time"
)

// Digest is a BLAKE3-256 content digest, hex-encoded end to end so it can
// be used directly as a map key, a file name component, and a JSON field.
type Digest string

// Bucket is a named container for keys. Unique by Name.
type Bucket struct {
	Name      string    `json:"name"`
	Region    string    `json:"region,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}

// VersionMeta is one immutable revision of a (bucket, key).
//
// A version with IsDeleteMarker set has no blob: Digest, Size, ETag and
// ContentType are zero values and must be ignored by callers.
type VersionMeta struct {
	Bucket         string            `json:"bucket"`
	Key            string            `json:"key"`
	VersionID      string            `json:"version_id"`
	Digest         Digest            `json:"digest,omitempty"`
	SHA256         string            `json:"sha256,omitempty"`
	Size           int64             `json:"size"`
	ETag           string            `json:"etag,omitempty"`
	ContentType    string            `json:"content_type,omitempty"`
	UserMetadata   map[string]string `json:"user_metadata,omitempty"`
	IsDeleteMarker bool              `json:"is_delete_marker"`
	CreatedAtMS    int64             `json:"created_at_ms"`
}

// Before reports whether v sorts strictly before other in a key's version
// list: ascending by CreatedAtMS, ties broken by VersionID bytes.
func (v VersionMeta) Before(other VersionMeta) bool {
	if v.CreatedAtMS != other.CreatedAtMS {
		return v.CreatedAtMS < other.CreatedAtMS
	}
	return v.VersionID < other.VersionID
}

// PutObjectResult is returned to the caller of Coordinator.PutObject.
type PutObjectResult struct {
	VersionID string
	ETag      string
	Size      int64
}

// ObjectData bundles a version's metadata with its blob bytes, as returned
// by Coordinator.GetObject.
type ObjectData struct {
	Meta VersionMeta
	Body []byte
}

// ListObjectsResult is the paginated response of Coordinator.ListObjectsV2.
type ListObjectsResult struct {
	Keys              []string
	NextContinuation  string
	IsTruncated       bool
}

// PeerState is the liveness classification of a cluster member, tracked by
// the consensus module's heartbeat gossip independently of raft's own
// (private) peer bookkeeping.
type PeerState string

const (
	PeerActive  PeerState = "active"
	PeerJoining PeerState = "joining"
	PeerFailed  PeerState = "failed"
	PeerLeaving PeerState = "leaving"
)

// Peer is one member of the cluster view.
type Peer struct {
	NodeID        string    `json:"node_id"`
	Address       string    `json:"address"`
	State         PeerState `json:"state"`
	LastHeartbeat time.Time `json:"last_heartbeat"`
}

// ClusterView is a node's current picture of cluster membership and term.
type ClusterView struct {
	Term     uint64 `json:"term"`
	LeaderID string `json:"leader_id"`
	Peers    []Peer `json:"peers"`
}

// ActiveCount returns the number of peers (including a self entry, if
// present in Peers) currently classified Active — the quantity the
// replication-factor gate compares against R.
func (c ClusterView) ActiveCount() int {
	n := 0
	for _, p := range c.Peers {
		if p.State == PeerActive {
			n++
		}
	}
	return n
}

// CommandType tags the payload carried by a replicated log entry.
type CommandType string

const (
	CommandNoOp             CommandType = "noop"
	CommandPutObject        CommandType = "put_object"
	CommandDeleteObject     CommandType = "delete_object"
	CommandCreateBucket     CommandType = "create_bucket"
	CommandMembershipChange CommandType = "membership_change"
)

// PutObjectPayload is the log payload for a committed PutObject.
type PutObjectPayload struct {
	Bucket       string            `json:"bucket"`
	Key          string            `json:"key"`
	VersionID    string            `json:"version_id"`
	Digest       Digest            `json:"digest"`
	SHA256       string            `json:"sha256"`
	Size         int64             `json:"size"`
	ETag         string            `json:"etag"`
	ContentType  string            `json:"content_type"`
	UserMetadata map[string]string `json:"user_metadata,omitempty"`
	CreatedAtMS  int64             `json:"created_at_ms"`
}

// DeleteObjectPayload is the log payload for a committed DeleteObject.
// VersionID empty means "append a delete marker"; non-empty means "remove
// exactly this version".
type DeleteObjectPayload struct {
	Bucket      string `json:"bucket"`
	Key         string `json:"key"`
	VersionID   string `json:"version_id,omitempty"`
	MarkerID    string `json:"marker_id,omitempty"`
	CreatedAtMS int64  `json:"created_at_ms"`
}

// CreateBucketPayload is the log payload for a committed CreateBucket.
type CreateBucketPayload struct {
	Name        string `json:"name"`
	Region      string `json:"region,omitempty"`
	CreatedAtMS int64  `json:"created_at_ms"`
}

// MembershipChangePayload is the log payload recording a cluster
// membership change (join, leave, or voter-set update).
type MembershipChangePayload struct {
	Nodes []Peer `json:"nodes"`
}

// NodeConfig is the full set of per-node configuration values named by the
// specification's Configuration table, loaded from YAML. No CLI flag
// overrides these fields.
type NodeConfig struct {
	NodeID              string   `yaml:"node_id"`
	NodeIP              string   `yaml:"node_ip"`
	Port                int      `yaml:"port"`
	Peers               []string `yaml:"peers"`
	StoragePath         string   `yaml:"storage_path"`
	MaxStorageBytes     int64    `yaml:"max_storage_bytes"`
	ReplicationFactor   int      `yaml:"replication_factor"`
	ConsensusTimeoutMS  int      `yaml:"consensus_timeout_ms"`
	HeartbeatIntervalMS int      `yaml:"heartbeat_interval_ms"`
	LogLevel            string   `yaml:"log_level"`
	LogJSON             bool     `yaml:"log_json"`
	MetricsAddr         string   `yaml:"metrics_addr"`
}

// BindAddr is the host:port raft's own transport listens on.
func (c NodeConfig) BindAddr() string {
	return net.JoinHostPort(c.NodeIP, strconv.Itoa(c.Port))
}

// PeerPortOffset separates the pkg/transport heartbeat/join/blob-fetch
// listener from raft's own TCP transport, which owns Port itself.
const PeerPortOffset = 1

// BindPeerAddr is the host:port pkg/transport's Heartbeat/Join/BlobFetch
// listener binds to, one port above the raft transport's Port.
func (c NodeConfig) BindPeerAddr() string {
	return net.JoinHostPort(c.NodeIP, strconv.Itoa(c.Port+PeerPortOffset))
}

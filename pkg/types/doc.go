/*
Package types defines the core data structures shared across quorumvault's
storage and replication components.

This package contains the domain model described by the storage+replication
core: content-addressed blobs, versioned object keys, buckets, the tagged
log-entry payloads replicated through raft, and the cluster membership view
used by the replication-factor gate. Nothing in this package talks to disk
or the network — it is pure data, shared by pkg/blobstore, pkg/metadata,
pkg/replog, pkg/consensus, and pkg/coordinator.
*/
package types

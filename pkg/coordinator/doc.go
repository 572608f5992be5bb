/*
Package coordinator implements C5, composing the blob store (C1),
metadata index (C2), replication log (C3) and consensus module (C4)
into the object-store operations external callers invoke: PutObject,
GetObject, HeadObject, DeleteObject, ListObjectsV2 and CreateBucket.

Every mutation is gated on the replication-factor check before it is
proposed (fewer than replication_factor Active peers refuses the call
with InsufficientReplicas rather than accepting writes that can't
survive a quorum failure), then written to the blob store locally (for
Put) and proposed to the raft log via pkg/consensus, blocking for
commit up to consensus_timeout_ms. Reads are served from the local
metadata index and blob store directly; a digest missing from the
local blob store is fetched from a peer over pkg/transport's BlobFetch
message before being returned, the same coordination-free replication
described for C1.
*/
package coordinator

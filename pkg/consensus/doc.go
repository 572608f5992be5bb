/*
Package consensus implements C4, leadership and cluster membership, on
top of hashicorp/raft — the same library, wired the same way (TCP
transport, BoltDB log/stable stores, file snapshot store) as the
teacher's pkg/manager.Manager.Bootstrap/Join.

raft's own RPCs carry leader election and log replication; they do not
expose a public view of which peers are currently reachable, which the
specification's replication-factor gate needs (put/delete must be
refused once fewer than replication_factor nodes are Active). This
package adds that view as an auxiliary heartbeat gossip layer, built on
pkg/transport, run independently of raft's internal (private)
heartbeats: every node periodically sends a Heartbeat to every peer it
knows about, and a peer not heard from within a few heartbeat intervals
is reclassified Failed.
*/
package consensus

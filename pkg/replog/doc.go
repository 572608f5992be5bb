/*
Package replog implements C3, the replication log, as a
hashicorp/raft finite state machine.

hashicorp/raft already provides the low-level mechanics the
specification's replication log describes — term numbers, leader
election, AppendEntries, commit index tracking, a CRC-checked on-disk
log — so this package does not reimplement them. It supplies the
thin layer raft asks every user to provide: a Command envelope
(grounded on the teacher's manager.Command tagged union in
pkg/manager/fsm.go) and an FSM that applies a committed Command to
the metadata index. The FSM does not write blobs: a node that lacks a
committed version's blob fetches it from a peer on the first GetObject
that needs it.

Apply is called by raft on a single goroutine in commit order, which
is the specification's "apply loop": no separate goroutine or queue
is introduced here. Every Command's effect on the metadata index is
keyed by values fixed at propose time (bucket, key, version id,
created_at_ms), so re-applying an already-applied entry during
crash recovery or snapshot restore is a no-op rather than a
duplicate (P8).
*/
package replog

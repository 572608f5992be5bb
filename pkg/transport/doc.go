/*
Package transport implements the peer-to-peer messages the
specification's external interface table lists that hashicorp/raft's
own transport does not carry: Heartbeat (liveness gossip), BlobFetch
(pulling a blob a node doesn't yet have onto local disk), and Join
(a prospective member's initial handshake with the leader).

The teacher wires google.golang.org/grpc and a generated proto
client/server for its peer RPCs, but this repo ships no .proto
source to generate from, so this package uses a small versioned,
tagged, length-prefixed JSON framing over plain net.Conn instead —
the same "plain net + JSON" style the teacher itself uses for its
raft transport (raft.NewTCPTransport) and throughout its storage and
FSM layers. Every frame is:

	4 bytes   payload length, big-endian uint32
	1 byte    protocol version (currently 1)
	1 byte    message type
	N bytes   JSON-encoded payload

A version mismatch or unknown message type is rejected rather than
guessed at, so the wire format can change without silently
misinterpreting old frames.
*/
package transport

package transport

import (
	"encoding/binary"
	"encoding/json"
	"io"

	"github.com/quorumvault/quorumvault/pkg/coreerr"
)

// ProtocolVersion is the current wire version written by WriteFrame and
// checked by ReadFrame.
const ProtocolVersion byte = 1

// MaxFrameBytes bounds a single frame's payload, guarding against a
// corrupt or hostile length prefix driving an unbounded allocation.
const MaxFrameBytes = 64 << 20

// MessageType tags a Frame's payload.
type MessageType byte

const (
	MessageHeartbeat MessageType = iota + 1
	MessageBlobFetchRequest
	MessageBlobFetchResponse
	MessageJoinRequest
	MessageJoinResponse
)

func (t MessageType) String() string {
	switch t {
	case MessageHeartbeat:
		return "Heartbeat"
	case MessageBlobFetchRequest:
		return "BlobFetchRequest"
	case MessageBlobFetchResponse:
		return "BlobFetchResponse"
	case MessageJoinRequest:
		return "JoinRequest"
	case MessageJoinResponse:
		return "JoinResponse"
	default:
		return "Unknown"
	}
}

// Frame is one message on the wire: a tagged, length-prefixed JSON
// payload.
type Frame struct {
	Type    MessageType
	Payload []byte
}

// WriteFrame encodes and writes frame to w.
func WriteFrame(w io.Writer, frame Frame) error {
	if len(frame.Payload) > MaxFrameBytes {
		return coreerr.InvalidRequest.With("frame payload too large: %d bytes", len(frame.Payload))
	}

	header := make([]byte, 6)
	binary.BigEndian.PutUint32(header[0:4], uint32(len(frame.Payload)))
	header[4] = ProtocolVersion
	header[5] = byte(frame.Type)

	if _, err := w.Write(header); err != nil {
		return coreerr.ConnectionFailed.Wrap(err)
	}
	if _, err := w.Write(frame.Payload); err != nil {
		return coreerr.ConnectionFailed.Wrap(err)
	}
	return nil
}

// ReadFrame reads and decodes one Frame from r.
func ReadFrame(r io.Reader) (Frame, error) {
	header := make([]byte, 6)
	if _, err := io.ReadFull(r, header); err != nil {
		return Frame{}, coreerr.ConnectionFailed.Wrap(err)
	}

	length := binary.BigEndian.Uint32(header[0:4])
	if length > MaxFrameBytes {
		return Frame{}, coreerr.InvalidRequest.With("frame payload too large: %d bytes", length)
	}
	version := header[4]
	if version != ProtocolVersion {
		return Frame{}, coreerr.InvalidRequest.With("unsupported protocol version %d", version)
	}

	payload := make([]byte, length)
	if _, err := io.ReadFull(r, payload); err != nil {
		return Frame{}, coreerr.ConnectionFailed.Wrap(err)
	}

	return Frame{Type: MessageType(header[5]), Payload: payload}, nil
}

func encodeFrame(t MessageType, v any) (Frame, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return Frame{}, coreerr.InvalidRequest.Wrap(err)
	}
	return Frame{Type: t, Payload: data}, nil
}

func decodePayload(payload []byte, v any) error {
	if err := json.Unmarshal(payload, v); err != nil {
		return coreerr.InvalidRequest.Wrap(err)
	}
	return nil
}

package transport

import (
	"net"
	"time"

	"github.com/quorumvault/quorumvault/pkg/coreerr"
)

// Client dials peers to send one-off messages. It holds no persistent
// connection; every call dials, writes, optionally reads a reply, and
// closes, matching Server's one-message-per-connection handling.
type Client struct {
	dialTimeout time.Duration
}

// NewClient returns a Client that dials with the given timeout.
func NewClient(dialTimeout time.Duration) *Client {
	if dialTimeout <= 0 {
		dialTimeout = 5 * time.Second
	}
	return &Client{dialTimeout: dialTimeout}
}

func (c *Client) dial(addr string) (net.Conn, error) {
	conn, err := net.DialTimeout("tcp", addr, c.dialTimeout)
	if err != nil {
		return nil, coreerr.ConnectionFailed.Wrap(err)
	}
	return conn, nil
}

// SendHeartbeat delivers a Heartbeat to addr. Heartbeat is fire-and-forget:
// no reply is read.
func (c *Client) SendHeartbeat(addr string, hb Heartbeat) error {
	conn, err := c.dial(addr)
	if err != nil {
		return err
	}
	defer conn.Close()

	frame, err := encodeFrame(MessageHeartbeat, hb)
	if err != nil {
		return err
	}
	return WriteFrame(conn, frame)
}

// FetchBlobDigest requests a blob by digest from addr.
func (c *Client) FetchBlobDigest(addr string, req BlobFetchRequest) (BlobFetchResponse, error) {
	conn, err := c.dial(addr)
	if err != nil {
		return BlobFetchResponse{}, err
	}
	defer conn.Close()

	frame, err := encodeFrame(MessageBlobFetchRequest, req)
	if err != nil {
		return BlobFetchResponse{}, err
	}
	if err := WriteFrame(conn, frame); err != nil {
		return BlobFetchResponse{}, err
	}

	reply, err := ReadFrame(conn)
	if err != nil {
		return BlobFetchResponse{}, err
	}
	var resp BlobFetchResponse
	if err := decodePayload(reply.Payload, &resp); err != nil {
		return BlobFetchResponse{}, err
	}
	return resp, nil
}

// Join sends a JoinRequest to the leader at addr.
func (c *Client) Join(addr string, req JoinRequest) (JoinResponse, error) {
	conn, err := c.dial(addr)
	if err != nil {
		return JoinResponse{}, err
	}
	defer conn.Close()

	frame, err := encodeFrame(MessageJoinRequest, req)
	if err != nil {
		return JoinResponse{}, err
	}
	if err := WriteFrame(conn, frame); err != nil {
		return JoinResponse{}, err
	}

	reply, err := ReadFrame(conn)
	if err != nil {
		return JoinResponse{}, err
	}
	var resp JoinResponse
	if err := decodePayload(reply.Payload, &resp); err != nil {
		return JoinResponse{}, err
	}
	return resp, nil
}

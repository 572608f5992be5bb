package transport

import (
	"bytes"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFrameRoundTrip(t *testing.T) {
	frame, err := encodeFrame(MessageHeartbeat, Heartbeat{NodeID: "n1", Term: 3})
	require.NoError(t, err)

	var buf bytes.Buffer
	require.NoError(t, WriteFrame(&buf, frame))

	got, err := ReadFrame(&buf)
	require.NoError(t, err)
	assert.Equal(t, MessageHeartbeat, got.Type)

	var hb Heartbeat
	require.NoError(t, decodePayload(got.Payload, &hb))
	assert.Equal(t, "n1", hb.NodeID)
	assert.Equal(t, uint64(3), hb.Term)
}

func TestReadFrameRejectsBadVersion(t *testing.T) {
	frame, err := encodeFrame(MessageHeartbeat, Heartbeat{NodeID: "n1"})
	require.NoError(t, err)

	var buf bytes.Buffer
	require.NoError(t, WriteFrame(&buf, frame))
	raw := buf.Bytes()
	raw[4] = 99 // corrupt the version byte

	_, err = ReadFrame(bytes.NewReader(raw))
	require.Error(t, err)
}

func TestServerHandlesBlobFetch(t *testing.T) {
	srv, err := NewServer("127.0.0.1:0", Handlers{
		OnBlobFetch: func(req BlobFetchRequest) BlobFetchResponse {
			return BlobFetchResponse{Found: true, Digest: req.Digest, Size: 3, Data: []byte("hi!")}
		},
	})
	require.NoError(t, err)
	defer srv.Close()
	go srv.Serve()

	client := NewClient(2 * time.Second)
	resp, err := client.FetchBlobDigest(srv.Addr(), BlobFetchRequest{Digest: "abc"})
	require.NoError(t, err)
	assert.True(t, resp.Found)
	assert.Equal(t, []byte("hi!"), resp.Data)
}

func TestServerHandlesJoin(t *testing.T) {
	srv, err := NewServer("127.0.0.1:0", Handlers{
		OnJoin: func(req JoinRequest) JoinResponse {
			return JoinResponse{Accepted: req.NodeID == "ok"}
		},
	})
	require.NoError(t, err)
	defer srv.Close()
	go srv.Serve()

	client := NewClient(2 * time.Second)
	resp, err := client.Join(srv.Addr(), JoinRequest{NodeID: "ok", Address: "127.0.0.1:1"})
	require.NoError(t, err)
	assert.True(t, resp.Accepted)

	resp, err = client.Join(srv.Addr(), JoinRequest{NodeID: "nope"})
	require.NoError(t, err)
	assert.False(t, resp.Accepted)
}

func TestServerHandlesHeartbeatFireAndForget(t *testing.T) {
	received := make(chan Heartbeat, 1)
	srv, err := NewServer("127.0.0.1:0", Handlers{
		OnHeartbeat: func(hb Heartbeat) { received <- hb },
	})
	require.NoError(t, err)
	defer srv.Close()
	go srv.Serve()

	client := NewClient(2 * time.Second)
	require.NoError(t, client.SendHeartbeat(srv.Addr(), Heartbeat{NodeID: "n1", Term: 5, IsLeader: true}))

	select {
	case hb := <-received:
		assert.Equal(t, "n1", hb.NodeID)
		assert.True(t, hb.IsLeader)
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for heartbeat")
	}
}

package transport

import (
	"net"

	"github.com/quorumvault/quorumvault/pkg/coreerr"
	"github.com/quorumvault/quorumvault/pkg/log"
)

// Handlers are the callbacks invoked for each inbound message type. A nil
// handler is treated as "not supported" and answered with a rejection
// where the message expects a reply, or silently dropped for Heartbeat.
type Handlers struct {
	OnHeartbeat func(Heartbeat)
	OnBlobFetch func(BlobFetchRequest) BlobFetchResponse
	OnJoin      func(JoinRequest) JoinResponse
}

// Server accepts one short-lived TCP connection per inbound message: the
// peer dials, writes one Frame, reads a reply if the message type expects
// one, and closes.
type Server struct {
	ln       net.Listener
	handlers Handlers
}

// NewServer binds addr and returns a Server ready to Serve.
func NewServer(addr string, handlers Handlers) (*Server, error) {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, coreerr.ConnectionFailed.Wrap(err)
	}
	return &Server{ln: ln, handlers: handlers}, nil
}

// Addr returns the address the server is listening on.
func (s *Server) Addr() string {
	return s.ln.Addr().String()
}

// Serve blocks, accepting and handling connections until Close is called.
func (s *Server) Serve() error {
	for {
		conn, err := s.ln.Accept()
		if err != nil {
			return coreerr.ConnectionFailed.Wrap(err)
		}
		go s.handleConn(conn)
	}
}

// Close stops accepting new connections.
func (s *Server) Close() error {
	return s.ln.Close()
}

func (s *Server) handleConn(conn net.Conn) {
	defer conn.Close()

	frame, err := ReadFrame(conn)
	if err != nil {
		log.Debug("transport: failed to read frame: " + err.Error())
		return
	}

	switch frame.Type {
	case MessageHeartbeat:
		var hb Heartbeat
		if err := decodePayload(frame.Payload, &hb); err != nil {
			return
		}
		if s.handlers.OnHeartbeat != nil {
			s.handlers.OnHeartbeat(hb)
		}

	case MessageBlobFetchRequest:
		var req BlobFetchRequest
		if err := decodePayload(frame.Payload, &req); err != nil {
			return
		}
		resp := BlobFetchResponse{Found: false, Digest: req.Digest}
		if s.handlers.OnBlobFetch != nil {
			resp = s.handlers.OnBlobFetch(req)
		}
		reply, err := encodeFrame(MessageBlobFetchResponse, resp)
		if err != nil {
			return
		}
		_ = WriteFrame(conn, reply)

	case MessageJoinRequest:
		var req JoinRequest
		if err := decodePayload(frame.Payload, &req); err != nil {
			return
		}
		resp := JoinResponse{Accepted: false, Reason: "join handler not configured"}
		if s.handlers.OnJoin != nil {
			resp = s.handlers.OnJoin(req)
		}
		reply, err := encodeFrame(MessageJoinResponse, resp)
		if err != nil {
			return
		}
		_ = WriteFrame(conn, reply)

	default:
		log.Debug("transport: unknown message type")
	}
}

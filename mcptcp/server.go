package mcptcp

import (
	"bufio"
	"context"
	"errors"
	"io"
	"log/slog"
	"net"
	"sync"
	"time"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/hazyhaar/chasse/kit"
)

// Authorizer decides whether a handshaked session id may open a tool
// session. The supervisor passes its live-session check here.
type Authorizer func(sessionID string) error

// Server accepts worker connections and runs each as an MCP session against
// a shared mcp.Server. One Listen per supervisor; one connection per worker.
type Server struct {
	mcpServer *mcp.Server
	authorize Authorizer
	logger    *slog.Logger

	mu sync.Mutex
	ln net.Listener
	wg sync.WaitGroup
}

// NewServer wires an MCP server behind the handshake. authorize may be nil,
// in which case every well-formed handshake is accepted.
func NewServer(mcpSrv *mcp.Server, authorize Authorizer, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	if authorize == nil {
		authorize = func(string) error { return nil }
	}
	return &Server{
		mcpServer: mcpSrv,
		authorize: authorize,
		logger:    logger,
	}
}

// Listen binds addr (typically "127.0.0.1:0") and returns the bound address
// to hand to workers. Call Serve afterwards.
func (s *Server) Listen(addr string) (string, error) {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return "", err
	}
	s.mu.Lock()
	s.ln = ln
	s.mu.Unlock()
	s.logger.Info("tool listener ready", "addr", ln.Addr().String())
	return ln.Addr().String(), nil
}

// Serve accepts connections until the listener closes or ctx is cancelled.
func (s *Server) Serve(ctx context.Context) error {
	s.mu.Lock()
	ln := s.ln
	s.mu.Unlock()
	if ln == nil {
		return net.ErrClosed
	}
	for {
		conn, err := ln.Accept()
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			var ne net.Error
			if errors.As(err, &ne) && ne.Timeout() {
				continue
			}
			return err
		}
		s.wg.Add(1)
		go func() {
			defer s.wg.Done()
			s.serveConn(ctx, conn)
		}()
	}
}

// Close stops the listener and waits for in-flight sessions.
func (s *Server) Close() error {
	s.mu.Lock()
	ln := s.ln
	s.ln = nil
	s.mu.Unlock()
	var err error
	if ln != nil {
		err = ln.Close()
	}
	s.wg.Wait()
	return err
}

func (s *Server) serveConn(ctx context.Context, conn net.Conn) {
	remote := conn.RemoteAddr().String()

	conn.SetReadDeadline(time.Now().Add(HandshakeTimeout))
	br := bufio.NewReader(conn)
	sessionID, err := ReadHandshake(br)
	if err != nil {
		s.logger.Warn("handshake rejected", "remote", remote, "error", err)
		conn.Close()
		return
	}
	conn.SetReadDeadline(time.Time{})

	if err := s.authorize(sessionID); err != nil {
		s.logger.Warn("session refused", "session", sessionID, "remote", remote, "error", err)
		conn.Close()
		return
	}

	s.logger.Info("tool session starting", "session", sessionID, "remote", remote)

	// Enrich context with session identity so tool handlers can scope
	// their work without a session argument on every call.
	cctx := kit.WithTransport(ctx, "mcp_tcp")
	cctx = kit.WithSessionID(cctx, sessionID)
	cctx = kit.WithRemoteAddr(cctx, remote)

	transport := &tcpServerTransport{
		reader:    br,
		conn:      conn,
		sessionID: sessionID,
	}
	ss, err := s.mcpServer.Connect(cctx, transport, nil)
	if err != nil {
		s.logger.Error("mcp connect failed", "session", sessionID, "error", err)
		conn.Close()
		return
	}

	if err := ss.Wait(); err != nil {
		s.logger.Debug("tool session ended with error", "session", sessionID, "error", err)
	}
	conn.Close()
	s.logger.Info("tool session ended", "session", sessionID, "remote", remote)
}

// tcpServerTransport implements mcp.Transport over an accepted connection.
// The bufio reader carries over any bytes read past the handshake line.
type tcpServerTransport struct {
	reader    *bufio.Reader
	conn      net.Conn
	sessionID string
}

func (t *tcpServerTransport) Connect(ctx context.Context) (mcp.Connection, error) {
	iot := &mcp.IOTransport{
		Reader: io.NopCloser(t.reader),
		Writer: t.conn,
	}
	conn, err := iot.Connect(ctx)
	if err != nil {
		return nil, err
	}
	return &sessionConn{Connection: conn, id: t.sessionID}, nil
}

// sessionConn overrides the transport-assigned session id with the
// handshaked one.
type sessionConn struct {
	mcp.Connection
	id string
}

func (c *sessionConn) SessionID() string { return c.id }

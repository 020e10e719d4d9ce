// Package mcptcp runs MCP sessions over loopback TCP connections.
//
// The supervisor listens on 127.0.0.1 and hands the address to each worker
// process it spawns. Before any JSON-RPC framing, the worker sends a single
// handshake line identifying the analysis session it belongs to:
//
//	CHASSE/1 <session-id>\n
//
// The server authorizes the session id against the set of live sessions and
// only then connects the MCP machinery. Everything after the handshake is
// plain MCP over the socket via mcp.IOTransport.
package mcptcp

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"
)

const (
	// HandshakePrefix opens every worker connection.
	HandshakePrefix = "CHASSE/1 "

	// MaxHandshakeLen bounds the handshake line. Anything longer is some
	// other protocol talking to our port.
	MaxHandshakeLen = 256

	// HandshakeTimeout is how long the server waits for the opening line.
	HandshakeTimeout = 5 * time.Second

	// ConnectTimeout bounds the client-side MCP initialize exchange.
	ConnectTimeout = 10 * time.Second
)

var (
	ErrBadHandshake = errors.New("mcptcp: bad handshake")
	ErrUnauthorized = errors.New("mcptcp: session not authorized")
	ErrNotConnected = errors.New("mcptcp: client not connected")
)

// SendHandshake writes the opening line for sessionID.
func SendHandshake(w io.Writer, sessionID string) error {
	if sessionID == "" || strings.ContainsAny(sessionID, " \r\n") {
		return fmt.Errorf("%w: invalid session id %q", ErrBadHandshake, sessionID)
	}
	_, err := io.WriteString(w, HandshakePrefix+sessionID+"\n")
	return err
}

// ReadHandshake consumes the opening line and returns the session id.
func ReadHandshake(r *bufio.Reader) (string, error) {
	line, err := r.ReadString('\n')
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrBadHandshake, err)
	}
	if len(line) > MaxHandshakeLen {
		return "", fmt.Errorf("%w: line too long", ErrBadHandshake)
	}
	line = strings.TrimRight(line, "\r\n")
	if !strings.HasPrefix(line, HandshakePrefix) {
		return "", fmt.Errorf("%w: unexpected prefix", ErrBadHandshake)
	}
	id := line[len(HandshakePrefix):]
	if id == "" || strings.Contains(id, " ") {
		return "", fmt.Errorf("%w: malformed session id", ErrBadHandshake)
	}
	return id, nil
}

package mcptcp

import (
	"context"
	"fmt"
	"net"

	"github.com/modelcontextprotocol/go-sdk/mcp"
)

// Client is the worker side of the tool link: one TCP connection, one
// handshake line, then an MCP client session for the life of the worker.
type Client struct {
	addr      string
	sessionID string
	conn      net.Conn
	session   *mcp.ClientSession
}

// NewClient prepares a client for addr scoped to sessionID. Call Connect
// before any tool calls.
func NewClient(addr, sessionID string) *Client {
	return &Client{addr: addr, sessionID: sessionID}
}

// Connect dials the supervisor, sends the handshake and completes the MCP
// initialize exchange.
func (c *Client) Connect(ctx context.Context) error {
	var d net.Dialer
	conn, err := d.DialContext(ctx, "tcp", c.addr)
	if err != nil {
		return fmt.Errorf("dial %s: %w", c.addr, err)
	}

	if err := SendHandshake(conn, c.sessionID); err != nil {
		conn.Close()
		return err
	}
	c.conn = conn

	transport := &mcp.IOTransport{
		Reader: conn,
		Writer: conn,
	}

	mcpClient := mcp.NewClient(&mcp.Implementation{
		Name:    "chasse-agent",
		Version: "1.0.0",
	}, nil)

	connectCtx, cancel := context.WithTimeout(ctx, ConnectTimeout)
	defer cancel()

	session, err := mcpClient.Connect(connectCtx, transport, nil)
	if err != nil {
		conn.Close()
		return fmt.Errorf("mcp connect: %w", err)
	}
	c.session = session
	return nil
}

// ListTools lists the tools the supervisor exposes.
func (c *Client) ListTools(ctx context.Context) (*mcp.ListToolsResult, error) {
	if c.session == nil {
		return nil, ErrNotConnected
	}
	return c.session.ListTools(ctx, nil)
}

// CallTool invokes a named tool with args.
func (c *Client) CallTool(ctx context.Context, name string, args map[string]any) (*mcp.CallToolResult, error) {
	if c.session == nil {
		return nil, ErrNotConnected
	}
	return c.session.CallTool(ctx, &mcp.CallToolParams{
		Name:      name,
		Arguments: args,
	})
}

// Ping checks session liveness.
func (c *Client) Ping(ctx context.Context) error {
	if c.session == nil {
		return ErrNotConnected
	}
	return c.session.Ping(ctx, nil)
}

// Close tears down the session and the connection.
func (c *Client) Close() error {
	if c.session != nil {
		c.session.Close()
	}
	if c.conn != nil {
		return c.conn.Close()
	}
	return nil
}

package chassis

import (
	"context"
	"crypto/tls"
	"fmt"
	"io"
	"time"

	"github.com/mark3labs/mcp-go/client"
	"github.com/mark3labs/mcp-go/client/transport"
	"github.com/mark3labs/mcp-go/mcp"
	"github.com/quic-go/quic-go"
)

// MCPClient calls geolookup tools over QUIC.
type MCPClient struct {
	addr   string
	tlsCfg *tls.Config
	conn   *quic.Conn
	stream *quic.Stream
	mcp    *client.Client
}

// NewMCPClient prepares a client for addr. A nil tlsCfg skips certificate
// verification.
func NewMCPClient(addr string, tlsCfg *tls.Config) *MCPClient {
	if tlsCfg == nil {
		tlsCfg = ClientTLSConfig(true)
	}
	return &MCPClient{addr: addr, tlsCfg: tlsCfg}
}

// Connect dials, sends the preamble and runs the MCP initialize handshake.
func (c *MCPClient) Connect(ctx context.Context, name, version string) error {
	conn, err := quic.DialAddr(ctx, c.addr, c.tlsCfg, quicConfig())
	if err != nil {
		return fmt.Errorf("quic dial %s: %w", c.addr, err)
	}
	if alpn := conn.ConnectionState().TLS.NegotiatedProtocol; alpn != ALPNMCP {
		conn.CloseWithError(connUnsupportedALPN, "bad ALPN")
		return fmt.Errorf("%w: got %q", ErrUnsupportedALPN, alpn)
	}
	stream, err := conn.OpenStreamSync(ctx)
	if err != nil {
		conn.CloseWithError(connProtocolViolation, "stream open failed")
		return fmt.Errorf("open stream: %w", err)
	}
	if err := writePreamble(stream); err != nil {
		stream.Close()
		conn.CloseWithError(connProtocolViolation, "preamble failed")
		return err
	}
	c.conn, c.stream = conn, stream

	mc := client.NewClient(transport.NewIO(stream, stream, io.NopCloser(eofReader{})))
	if err := mc.Start(ctx); err != nil {
		c.closeTransport()
		return fmt.Errorf("mcp start: %w", err)
	}

	req := mcp.InitializeRequest{}
	req.Params.ProtocolVersion = mcp.LATEST_PROTOCOL_VERSION
	req.Params.ClientInfo = mcp.Implementation{Name: name, Version: version}

	initCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	if _, err := mc.Initialize(initCtx, req); err != nil {
		c.closeTransport()
		return fmt.Errorf("mcp initialize: %w", err)
	}
	c.mcp = mc
	return nil
}

func (c *MCPClient) ListTools(ctx context.Context) (*mcp.ListToolsResult, error) {
	if c.mcp == nil {
		return nil, fmt.Errorf("client not connected")
	}
	return c.mcp.ListTools(ctx, mcp.ListToolsRequest{})
}

func (c *MCPClient) CallTool(ctx context.Context, name string, args map[string]any) (*mcp.CallToolResult, error) {
	if c.mcp == nil {
		return nil, fmt.Errorf("client not connected")
	}
	req := mcp.CallToolRequest{}
	req.Params.Name = name
	req.Params.Arguments = args
	return c.mcp.CallTool(ctx, req)
}

func (c *MCPClient) Close() error {
	if c.mcp != nil {
		c.mcp.Close()
	}
	return c.closeTransport()
}

func (c *MCPClient) closeTransport() error {
	if c.stream != nil {
		c.stream.Close()
	}
	if c.conn != nil {
		return c.conn.CloseWithError(connNoError, "client closing")
	}
	return nil
}

// eofReader is the (empty) stderr stream of the IO transport.
type eofReader struct{}

func (eofReader) Read([]byte) (int, error) { return 0, io.EOF }

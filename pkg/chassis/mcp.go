package chassis

import (
	"bufio"
	"bytes"
	"context"
	"crypto/tls"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"sync"
	"sync/atomic"
	"time"

	"github.com/hazyhaar/geolookup/pkg/kit"
	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"
	"github.com/quic-go/quic-go"
)

// Every MCP stream starts with this preamble, sent by the client.
const magic = "GLK1"

const (
	idleTimeout = 5 * time.Minute
	keepAlive   = 30 * time.Second
)

const (
	connNoError           quic.ApplicationErrorCode = 0x00
	connUnsupportedALPN   quic.ApplicationErrorCode = 0x01
	connProtocolViolation quic.ApplicationErrorCode = 0x03
	connMCPDisabled       quic.ApplicationErrorCode = 0x10

	streamProtocolConfusion quic.StreamErrorCode = 0x02
)

var (
	ErrBadPreamble     = errors.New("invalid MCP stream preamble")
	ErrUnsupportedALPN = errors.New("ALPN negotiation failed: " + ALPNMCP + " not selected")
)

func quicConfig() *quic.Config {
	return &quic.Config{
		MaxStreamReceiveWindow:     10 * 1024 * 1024,
		MaxConnectionReceiveWindow: 50 * 1024 * 1024,
		MaxIdleTimeout:             idleTimeout,
		KeepAlivePeriod:            keepAlive,
	}
}

func readPreamble(r io.Reader) error {
	buf := make([]byte, len(magic))
	if _, err := io.ReadFull(r, buf); err != nil {
		return fmt.Errorf("read preamble: %w", err)
	}
	if !bytes.Equal(buf, []byte(magic)) {
		return fmt.Errorf("%w: got %q", ErrBadPreamble, buf)
	}
	return nil
}

func writePreamble(w io.Writer) error {
	if _, err := io.WriteString(w, magic); err != nil {
		return fmt.Errorf("write preamble: %w", err)
	}
	return nil
}

// MCPHandler runs MCP sessions over QUIC connections it does not own.
type MCPHandler struct {
	srv    *server.MCPServer
	logger *slog.Logger
	seq    atomic.Uint64
}

// NewMCPHandler creates a handler dispatching to srv.
func NewMCPHandler(srv *server.MCPServer, logger *slog.Logger) *MCPHandler {
	if logger == nil {
		logger = slog.Default()
	}
	return &MCPHandler{srv: srv, logger: logger}
}

// ServeConn serves one connection: a single bidirectional stream carrying
// newline-delimited JSON-RPC.
func (h *MCPHandler) ServeConn(ctx context.Context, conn *quic.Conn) {
	remote := conn.RemoteAddr().String()

	stream, err := conn.AcceptStream(ctx)
	if err != nil {
		h.logger.Warn("mcp: accept stream failed", "remote", remote, "error", err)
		conn.CloseWithError(connProtocolViolation, "stream accept failed")
		return
	}
	if err := readPreamble(stream); err != nil {
		h.logger.Warn("mcp: bad preamble", "remote", remote, "error", err)
		stream.CancelWrite(streamProtocolConfusion)
		stream.CancelRead(streamProtocolConfusion)
		conn.CloseWithError(connProtocolViolation, "invalid preamble")
		return
	}

	id := fmt.Sprintf("quic_%d_%s", h.seq.Add(1), kit.NewRequestID()[:8])
	sess := newSession(id, stream)
	if err := h.srv.RegisterSession(ctx, sess); err != nil {
		h.logger.Error("mcp: register session", "session", id, "error", err)
		stream.Close()
		return
	}
	defer h.srv.UnregisterSession(ctx, id)
	h.logger.Info("mcp session started", "session", id, "remote", remote)

	ctx, cancel := context.WithCancel(kit.WithTransport(ctx, "mcp_quic"))
	defer cancel()
	ctx = h.srv.WithContext(ctx, sess)
	go sess.forwardNotifications(ctx)

	reader := bufio.NewReader(stream)
	for {
		line, err := reader.ReadBytes('\n')
		if err != nil {
			if err != io.EOF && ctx.Err() == nil {
				h.logger.Warn("mcp: read", "session", id, "error", err)
			}
			break
		}
		line = bytes.TrimSpace(line)
		if len(line) == 0 {
			continue
		}

		resp := h.srv.HandleMessage(ctx, json.RawMessage(line))
		if resp == nil {
			continue
		}
		if err := sess.send(resp); err != nil {
			h.logger.Warn("mcp: write", "session", id, "error", err)
			break
		}
	}
	h.logger.Info("mcp session ended", "session", id, "remote", remote)
}

// MCPListener accepts MCP-over-QUIC connections on its own UDP socket.
type MCPListener struct {
	ln      *quic.Listener
	handler *MCPHandler
	logger  *slog.Logger
}

// ListenMCP listens on addr. tlsCfg must offer ALPNMCP.
func ListenMCP(addr string, tlsCfg *tls.Config, srv *server.MCPServer, logger *slog.Logger) (*MCPListener, error) {
	if logger == nil {
		logger = slog.Default()
	}
	ln, err := quic.ListenAddr(addr, tlsCfg, quicConfig())
	if err != nil {
		return nil, fmt.Errorf("quic listen: %w", err)
	}
	return &MCPListener{ln: ln, handler: NewMCPHandler(srv, logger), logger: logger}, nil
}

// Addr returns the bound UDP address.
func (l *MCPListener) Addr() net.Addr { return l.ln.Addr() }

// Serve accepts connections until ctx is cancelled.
func (l *MCPListener) Serve(ctx context.Context) error {
	for {
		conn, err := l.ln.Accept(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			return fmt.Errorf("quic accept: %w", err)
		}
		if alpn := conn.ConnectionState().TLS.NegotiatedProtocol; alpn != ALPNMCP {
			conn.CloseWithError(connUnsupportedALPN, "unsupported ALPN: "+alpn)
			continue
		}
		go l.handler.ServeConn(ctx, conn)
	}
}

func (l *MCPListener) Close() error { return l.ln.Close() }

// session implements server.ClientSession. Responses and notifications
// share the stream, so writes are serialised.
type session struct {
	id            string
	notifications chan mcp.JSONRPCNotification
	initialized   atomic.Bool

	mu sync.Mutex
	w  io.Writer
}

func newSession(id string, w io.Writer) *session {
	return &session{id: id, notifications: make(chan mcp.JSONRPCNotification, 100), w: w}
}

func (s *session) SessionID() string                                   { return s.id }
func (s *session) NotificationChannel() chan<- mcp.JSONRPCNotification { return s.notifications }
func (s *session) Initialize()                                         { s.initialized.Store(true) }
func (s *session) Initialized() bool                                   { return s.initialized.Load() }

func (s *session) send(v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	_, err = s.w.Write(append(data, '\n'))
	return err
}

func (s *session) forwardNotifications(ctx context.Context) {
	for {
		select {
		case n := <-s.notifications:
			_ = s.send(n)
		case <-ctx.Done():
			return
		}
	}
}

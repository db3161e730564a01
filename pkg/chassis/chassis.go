// Package chassis serves the geolookup API over TLS on one port:
//
//   - TCP: HTTP/1.1 and HTTP/2
//   - UDP: QUIC, demultiplexed by ALPN into HTTP/3 ("h3") and MCP
//     ("geolookup-mcp-v1", newline-delimited JSON-RPC on one stream)
//
// HTTP responses advertise HTTP/3 through Alt-Svc. Without certificate
// files a self-signed development certificate is generated.
package chassis

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"sync"

	"github.com/mark3labs/mcp-go/server"
	"github.com/quic-go/quic-go"
	"github.com/quic-go/quic-go/http3"
)

// Config configures a Server.
type Config struct {
	// Addr is used for both the TCP and the UDP listener.
	Addr     string
	CertFile string
	KeyFile  string
	Handler  http.Handler
	// MCPServer enables MCP over QUIC when set.
	MCPServer *server.MCPServer
	Logger    *slog.Logger
}

// Server is the dual-transport server.
type Server struct {
	addr    string
	logger  *slog.Logger
	tlsCfg  *tls.Config
	handler http.Handler
	mcp     *MCPHandler

	mu     sync.Mutex
	tcp    *http.Server
	h3     *http3.Server
	quicLn *quic.Listener
}

// New prepares a Server; nothing listens until Start.
func New(cfg Config) (*Server, error) {
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	tlsCfg, err := ServerTLSConfig(cfg.CertFile, cfg.KeyFile, ALPNHTTP3, ALPNMCP)
	if err != nil {
		return nil, fmt.Errorf("tls: %w", err)
	}
	if cfg.CertFile == "" {
		cfg.Logger.Info("tls: self-signed development certificate")
	}

	s := &Server{
		addr:    cfg.Addr,
		logger:  cfg.Logger,
		tlsCfg:  tlsCfg,
		handler: securityHeaders(altSvc(cfg.Addr, cfg.Handler)),
	}
	if cfg.MCPServer != nil {
		s.mcp = NewMCPHandler(cfg.MCPServer, cfg.Logger)
	}
	return s, nil
}

func securityHeaders(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("X-Content-Type-Options", "nosniff")
		w.Header().Set("X-Frame-Options", "DENY")
		w.Header().Set("Referrer-Policy", "no-referrer")
		next.ServeHTTP(w, r)
	})
}

// altSvc advertises HTTP/3 on the same port.
func altSvc(addr string, next http.Handler) http.Handler {
	_, port, _ := net.SplitHostPort(addr)
	if port == "" {
		port = "443"
	}
	value := fmt.Sprintf(`h3=":%s"; ma=86400`, port)
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Alt-Svc", value)
		next.ServeHTTP(w, r)
	})
}

// Start listens on TCP and UDP and blocks until ctx is done or a listener
// fails.
func (s *Server) Start(ctx context.Context) error {
	tcpTLS := s.tlsCfg.Clone()
	tcpTLS.NextProtos = []string{"h2", "http/1.1"}

	ln, err := quic.ListenAddr(s.addr, s.tlsCfg, quicConfig())
	if err != nil {
		return fmt.Errorf("quic listen: %w", err)
	}

	s.mu.Lock()
	s.quicLn = ln
	s.tcp = &http.Server{Addr: s.addr, Handler: s.handler, TLSConfig: tcpTLS}
	s.h3 = &http3.Server{Handler: s.handler}
	s.mu.Unlock()

	s.logger.Info("geolookup listening (tls)", "addr", s.addr, "tcp", "HTTP/1.1+HTTP/2", "udp", "HTTP/3+MCP")

	errCh := make(chan error, 2)
	go func() {
		tcpLn, err := tls.Listen("tcp", s.addr, tcpTLS)
		if err != nil {
			errCh <- fmt.Errorf("tcp listen: %w", err)
			return
		}
		if err := s.tcp.Serve(tcpLn); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- fmt.Errorf("tcp: %w", err)
		}
	}()
	go func() {
		errCh <- s.acceptQUIC(ctx, ln)
	}()

	select {
	case <-ctx.Done():
		return nil
	case err := <-errCh:
		return err
	}
}

func (s *Server) acceptQUIC(ctx context.Context, ln *quic.Listener) error {
	for {
		conn, err := ln.Accept(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return fmt.Errorf("quic accept: %w", err)
		}

		switch alpn := conn.ConnectionState().TLS.NegotiatedProtocol; alpn {
		case ALPNHTTP3:
			go func() {
				if err := s.h3.ServeQUICConn(conn); err != nil {
					s.logger.Debug("http3 conn done", "remote", conn.RemoteAddr(), "error", err)
				}
			}()
		case ALPNMCP:
			if s.mcp == nil {
				conn.CloseWithError(connMCPDisabled, "MCP not enabled")
				continue
			}
			go s.mcp.ServeConn(ctx, conn)
		default:
			s.logger.Warn("unknown ALPN, closing", "alpn", alpn, "remote", conn.RemoteAddr())
			conn.CloseWithError(connUnsupportedALPN, "unsupported ALPN: "+alpn)
		}
	}
}

// Stop shuts every listener down.
func (s *Server) Stop(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	var errs []error
	if s.tcp != nil {
		errs = append(errs, s.tcp.Shutdown(ctx))
	}
	if s.quicLn != nil {
		errs = append(errs, s.quicLn.Close())
	}
	if s.h3 != nil {
		errs = append(errs, s.h3.Close())
	}
	return errors.Join(errs...)
}

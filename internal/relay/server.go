package relay

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/netip"
	"time"
	"unicode/utf8"

	"golang.org/x/sync/errgroup"
)

// DefaultBufferSize is the receive buffer used when none is configured.
const DefaultBufferSize = 1024

// MaxReplySize is the largest UDP payload over IPv4. Longer replies are cut
// to fit so the sender always gets a datagram back.
const MaxReplySize = 65507

// ServerOptions tunes the datagram loop.
type ServerOptions struct {
	// BufferSize is the receive buffer size; longer datagrams are truncated.
	BufferSize int
	// Workers bounds concurrently processed requests. 1 processes
	// datagrams strictly one at a time.
	Workers int
}

// Server reads datagrams from a PacketConn, hands each to a Handler and
// writes the reply back to the sender.
type Server struct {
	conn    net.PacketConn
	handler *Handler
	opts    ServerOptions
	logger  *slog.Logger
}

// Listen binds a UDP socket on addr.
func Listen(addr string) (net.PacketConn, error) {
	conn, err := net.ListenPacket("udp", addr)
	if err != nil {
		return nil, fmt.Errorf("listen udp %s: %w", addr, err)
	}
	return conn, nil
}

// NewServer creates a Server. The caller owns conn and closes it after
// Serve returns.
func NewServer(conn net.PacketConn, handler *Handler, opts ServerOptions, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	if opts.BufferSize <= 0 {
		opts.BufferSize = DefaultBufferSize
	}
	if opts.Workers <= 0 {
		opts.Workers = 1
	}
	return &Server{conn: conn, handler: handler, opts: opts, logger: logger}
}

// Addr returns the bound local address.
func (s *Server) Addr() net.Addr {
	return s.conn.LocalAddr()
}

// Serve runs the receive loop until ctx is cancelled or the connection is
// closed, then waits for in-flight requests to finish writing their replies.
// Per-request failures never end the loop.
func (s *Server) Serve(ctx context.Context) error {
	var g errgroup.Group
	g.SetLimit(s.opts.Workers)

	// Unblock ReadFrom on shutdown without closing the socket, so in-flight
	// requests can still reply.
	stop := context.AfterFunc(ctx, func() {
		_ = s.conn.SetReadDeadline(time.Now())
	})
	defer stop()

	s.logger.Info("Relay listening", "addr", s.conn.LocalAddr().String(),
		"buffer_size", s.opts.BufferSize, "workers", s.opts.Workers)

	buf := make([]byte, s.opts.BufferSize)
	for {
		n, addr, err := s.conn.ReadFrom(buf)
		if err != nil {
			if ctx.Err() != nil || errors.Is(err, net.ErrClosed) {
				_ = g.Wait()
				s.logger.Info("Relay stopped", "reason", context.Cause(ctx))
				return nil
			}
			s.logger.Warn("Failed to read datagram", "error", err)
			continue
		}

		from, ok := addrPort(addr)
		if !ok {
			s.logger.Warn("Dropping datagram from unsupported address", "addr", addr.String())
			continue
		}

		payload := bytes.Clone(buf[:n])
		g.Go(func() error {
			s.serveOne(ctx, payload, addr, from)
			return nil
		})
	}
}

func (s *Server) serveOne(ctx context.Context, payload []byte, addr net.Addr, from netip.AddrPort) {
	reply := s.handler.Handle(ctx, payload, from)
	if len(reply) > MaxReplySize {
		s.logger.Warn("Reply exceeds datagram size, truncating",
			"remote", from.String(), "bytes", len(reply), "max", MaxReplySize)
		reply = truncateUTF8(reply, MaxReplySize)
	}
	if _, err := s.conn.WriteTo([]byte(reply), addr); err != nil {
		s.logger.Error("Failed to send reply", "remote", from.String(), "bytes", len(reply), "error", err)
	}
}

// truncateUTF8 cuts s to at most n bytes without splitting a rune.
func truncateUTF8(s string, n int) string {
	if len(s) <= n {
		return s
	}
	for n > 0 && !utf8.RuneStart(s[n]) {
		n--
	}
	return s[:n]
}

func addrPort(addr net.Addr) (netip.AddrPort, bool) {
	if udp, ok := addr.(*net.UDPAddr); ok {
		ap := udp.AddrPort()
		return ap, ap.IsValid()
	}
	ap, err := netip.ParseAddrPort(addr.String())
	if err != nil {
		return netip.AddrPort{}, false
	}
	return ap, true
}

// Package client sends messages to a relay over UDP and waits for the reply.
package client

import (
	"context"
	"encoding/json"
	"fmt"
	"net"
	"time"

	"github.com/ashureev/llama-relay/internal/domain"
)

// DefaultTimeout bounds a request when the context has no deadline.
const DefaultTimeout = 3 * time.Minute

// maxDatagram is the largest UDP payload over IPv4.
const maxDatagram = 65507

// Conn is a UDP association with one relay. The relay keys conversations
// by the client's address and port, so reusing a Conn (or binding the same
// local port) continues the same conversations.
type Conn struct {
	conn *net.UDPConn
}

// Dial connects to the relay at addr. A non-zero localPort binds that port
// so conversations survive across processes.
func Dial(ctx context.Context, addr string, localPort int) (*Conn, error) {
	dialer := net.Dialer{}
	if localPort > 0 {
		dialer.LocalAddr = &net.UDPAddr{Port: localPort}
	}
	c, err := dialer.DialContext(ctx, "udp", addr)
	if err != nil {
		return nil, fmt.Errorf("dial relay %s: %w", addr, err)
	}
	return &Conn{conn: c.(*net.UDPConn)}, nil
}

// LocalAddr returns the local address used as part of the session key.
func (c *Conn) LocalAddr() net.Addr {
	return c.conn.LocalAddr()
}

// Send delivers one message on topic and returns the relay's reply text.
func (c *Conn) Send(ctx context.Context, topic, content string) (string, error) {
	payload, err := json.Marshal(domain.InboundMessage{Topic: topic, Content: content})
	if err != nil {
		return "", fmt.Errorf("encode message: %w", err)
	}
	return c.SendRaw(ctx, payload)
}

// SendRaw writes payload unchanged and returns the reply.
func (c *Conn) SendRaw(ctx context.Context, payload []byte) (string, error) {
	deadline, ok := ctx.Deadline()
	if !ok {
		deadline = time.Now().Add(DefaultTimeout)
	}
	if err := c.conn.SetDeadline(deadline); err != nil {
		return "", fmt.Errorf("set deadline: %w", err)
	}

	stop := context.AfterFunc(ctx, func() {
		_ = c.conn.SetDeadline(time.Now())
	})
	defer stop()

	if _, err := c.conn.Write(payload); err != nil {
		return "", fmt.Errorf("send: %w", err)
	}

	buf := make([]byte, maxDatagram)
	n, err := c.conn.Read(buf)
	if err != nil {
		if ctx.Err() != nil {
			return "", fmt.Errorf("await reply: %w", ctx.Err())
		}
		return "", fmt.Errorf("await reply: %w", err)
	}
	return string(buf[:n]), nil
}

// Close releases the socket.
func (c *Conn) Close() error {
	return c.conn.Close()
}

package client

import (
	"context"
	"encoding/json"
	"errors"
	"net"
	"testing"
	"time"

	"github.com/ashureev/llama-relay/internal/domain"
)

func TestSendEncodesMessage(t *testing.T) {
	t.Parallel()

	srv, err := net.ListenPacket("udp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	defer func() { _ = srv.Close() }()

	received := make(chan domain.InboundMessage, 1)
	go func() {
		buf := make([]byte, 1024)
		n, addr, err := srv.ReadFrom(buf)
		if err != nil {
			return
		}
		var msg domain.InboundMessage
		_ = json.Unmarshal(buf[:n], &msg)
		received <- msg
		_, _ = srv.WriteTo([]byte("pong"), addr)
	}()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	conn, err := Dial(ctx, srv.LocalAddr().String(), 0)
	if err != nil {
		t.Fatalf("Dial failed: %v", err)
	}
	defer func() { _ = conn.Close() }()

	reply, err := conn.Send(ctx, "home lights", "ping")
	if err != nil {
		t.Fatalf("Send failed: %v", err)
	}
	if reply != "pong" {
		t.Fatalf("expected pong, got %q", reply)
	}
	msg := <-received
	if msg.Topic != "home lights" || msg.Content != "ping" {
		t.Fatalf("unexpected message on the wire: %+v", msg)
	}
}

func TestSendTimesOutWithoutReply(t *testing.T) {
	t.Parallel()

	srv, err := net.ListenPacket("udp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	defer func() { _ = srv.Close() }()

	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()
	conn, err := Dial(ctx, srv.LocalAddr().String(), 0)
	if err != nil {
		t.Fatalf("Dial failed: %v", err)
	}
	defer func() { _ = conn.Close() }()

	_, err = conn.Send(ctx, "t", "c")
	if err == nil {
		t.Fatal("expected timeout error")
	}
	var netErr net.Error
	if !errors.Is(err, context.DeadlineExceeded) && !(errors.As(err, &netErr) && netErr.Timeout()) {
		t.Fatalf("expected a timeout, got %v", err)
	}
}

package api

import (
	"context"
	"errors"
	"net/http"
	"net/netip"

	"github.com/coder/websocket"
)

// wsReadLimit caps one inbound frame, mirroring the largest datagram.
const wsReadLimit = 65507

// handleWebSocket runs the relay protocol over a WebSocket: each text frame
// is one inbound message and gets exactly one text frame back. The session
// key uses the peer's address and port, as for a datagram.
func (h *Handler) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	from, err := netip.ParseAddrPort(r.RemoteAddr)
	if err != nil {
		Error(w, http.StatusBadRequest, "unsupported remote address")
		return
	}

	if !h.trackSession() {
		Error(w, http.StatusServiceUnavailable, "shutting down")
		return
	}
	defer h.wsSessions.Done()

	ws, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		OriginPatterns: []string{"*"},
	})
	if err != nil {
		h.logger.Error("Failed to accept WebSocket", "error", err, "remote", r.RemoteAddr)
		return
	}
	defer func() {
		if closeErr := ws.Close(websocket.StatusNormalClosure, "session ended"); closeErr != nil {
			h.logger.Debug("Failed to close websocket", "error", closeErr, "remote", r.RemoteAddr)
		}
	}()
	ws.SetReadLimit(wsReadLimit)

	ctx := r.Context()
	// Reads stop on shutdown; a request already read still runs and replies.
	readCtx, cancelRead := context.WithCancel(ctx)
	defer cancelRead()
	stop := context.AfterFunc(h.wsCtx, cancelRead)
	defer stop()

	h.logger.Info("WebSocket client connected", "remote", from.String())

	for {
		_, data, err := ws.Read(readCtx)
		if err != nil {
			status := websocket.CloseStatus(err)
			if status != websocket.StatusNormalClosure && status != websocket.StatusGoingAway && !errors.Is(err, readCtx.Err()) {
				h.logger.Debug("WebSocket read ended", "error", err, "remote", from.String())
			}
			return
		}

		reply := h.relay.Handle(ctx, data, from)
		if err := ws.Write(ctx, websocket.MessageText, []byte(reply)); err != nil {
			h.logger.Debug("WebSocket write failed", "error", err, "remote", from.String())
			return
		}
	}
}

package channel

import (
	"context"
	"net/http"
	"sync"
	"time"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"

	"github.com/tradeberg/tradeberg/bus"
	"github.com/tradeberg/tradeberg/logger"
)

const (
	wsSendBuffer   = 64
	wsWriteTimeout = 5 * time.Second
)

type wsConn struct {
	conversationID string // empty means all conversations
	send           chan *bus.Event
	done           chan struct{}
}

// wsHub tracks live websocket connections so events can be fanned out
// and connections torn down on shutdown.
type wsHub struct {
	mu     sync.Mutex
	conns  map[*wsConn]struct{}
	closed bool
}

func newWSHub() *wsHub {
	return &wsHub{conns: make(map[*wsConn]struct{})}
}

func (h *wsHub) add(conn *wsConn) bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return false
	}
	h.conns[conn] = struct{}{}
	return true
}

func (h *wsHub) remove(conn *wsConn) {
	h.mu.Lock()
	delete(h.conns, conn)
	h.mu.Unlock()
}

// broadcast fans an event out to connections watching its
// conversation. A connection that cannot keep up loses events; the
// client recovers at reply.done, which carries the full content.
func (h *wsHub) broadcast(event *bus.Event) {
	h.mu.Lock()
	defer h.mu.Unlock()
	for conn := range h.conns {
		if conn.conversationID != "" && conn.conversationID != event.ConversationID {
			continue
		}
		select {
		case conn.send <- event:
		default:
		}
	}
}

func (h *wsHub) closeAll() {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.closed = true
	for conn := range h.conns {
		close(conn.done)
		delete(h.conns, conn)
	}
}

func (h *wsHub) count() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.conns)
}

// handleWS pushes bus events to the client as JSON frames. The
// conversation query parameter narrows the stream to one
// conversation; without it every event is delivered.
func (c *WebChannel) handleWS(w http.ResponseWriter, r *http.Request) {
	ws, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		OriginPatterns: c.cfg.AllowedOrigins,
	})
	if err != nil {
		logger.Debug("websocket accept failed", "error", err)
		return
	}
	defer ws.Close(websocket.StatusInternalError, "")

	conn := &wsConn{
		conversationID: r.URL.Query().Get("conversation"),
		send:           make(chan *bus.Event, wsSendBuffer),
		done:           make(chan struct{}),
	}
	if !c.hub.add(conn) {
		ws.Close(websocket.StatusGoingAway, "shutting down")
		return
	}
	defer c.hub.remove(conn)

	// The client never sends application frames; CloseRead pumps
	// control frames and ends the context when the peer goes away.
	ctx := ws.CloseRead(r.Context())
	for {
		select {
		case <-ctx.Done():
			ws.Close(websocket.StatusNormalClosure, "")
			return
		case <-conn.done:
			ws.Close(websocket.StatusGoingAway, "server shutting down")
			return
		case event := <-conn.send:
			writeCtx, cancel := context.WithTimeout(ctx, wsWriteTimeout)
			err := wsjson.Write(writeCtx, ws, event)
			cancel()
			if err != nil {
				return
			}
		}
	}
}

package httpapi

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"nhooyr.io/websocket"
)

const wsWriteTimeout = 10 * time.Second

// wsHub fans AlertAgent broadcast entries out to every connected UI
// client, following the log-entry envelope the original UI consumed:
// {"event": "log", "entry": {...}}.
type wsHub struct {
	log zerolog.Logger

	mu    sync.Mutex
	conns map[*websocket.Conn]struct{}
}

func newWSHub(log zerolog.Logger) *wsHub {
	return &wsHub{
		log:   log.With().Str("component", "wsHub").Logger(),
		conns: make(map[*websocket.Conn]struct{}),
	}
}

func (h *wsHub) register(c *websocket.Conn) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.conns[c] = struct{}{}
}

func (h *wsHub) unregister(c *websocket.Conn) {
	h.mu.Lock()
	defer h.mu.Unlock()
	delete(h.conns, c)
}

// broadcast matches the agents.Broadcaster signature so it can be handed
// straight to AppState.SetBroadcaster.
func (h *wsHub) broadcast(entry map[string]any) {
	payload, err := json.Marshal(map[string]any{
		"event": "log",
		"entry": entry,
	})
	if err != nil {
		h.log.Error().Err(err).Msg("failed to marshal broadcast entry")
		return
	}

	h.mu.Lock()
	conns := make([]*websocket.Conn, 0, len(h.conns))
	for c := range h.conns {
		conns = append(conns, c)
	}
	h.mu.Unlock()

	for _, c := range conns {
		ctx, cancel := context.WithTimeout(context.Background(), wsWriteTimeout)
		err := c.Write(ctx, websocket.MessageText, payload)
		cancel()
		if err != nil {
			h.log.Debug().Err(err).Msg("dropping unresponsive websocket client")
			h.unregister(c)
			go c.Close(websocket.StatusInternalError, "write failed")
		}
	}
}

func (h *wsHub) closeAll() {
	h.mu.Lock()
	conns := make([]*websocket.Conn, 0, len(h.conns))
	for c := range h.conns {
		conns = append(conns, c)
	}
	h.conns = make(map[*websocket.Conn]struct{})
	h.mu.Unlock()

	for _, c := range conns {
		c.Close(websocket.StatusServiceRestart, "server shutting down")
	}
}

// handleWebSocket upgrades the connection and registers it with the hub.
// It otherwise reads and discards frames only to detect client-initiated
// closure; the connection is write-only from the server's side.
func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	c, err := websocket.Accept(w, r, nil)
	if err != nil {
		s.log.Warn().Err(err).Msg("websocket upgrade failed")
		return
	}
	s.hub.register(c)
	defer s.hub.unregister(c)

	ctx := r.Context()
	for {
		if _, _, err := c.Read(ctx); err != nil {
			return
		}
	}
}

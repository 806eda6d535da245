package server

import (
	"net/http"

	"github.com/gorilla/websocket"
	"github.com/signadot/docsync/system/syncd/wire"
)

// WebSocketHandler upgrades HTTP requests and serves each websocket as a
// sync connection.
type WebSocketHandler struct {
	server   *Server
	upgrader websocket.Upgrader
	conns    *connSet
}

// WebSocketHandler returns a handler serving the WebSocket binding. It can
// be mounted on any mux; StartWebSocket uses it for its own listener.
func (s *Server) WebSocketHandler() *WebSocketHandler {
	return &WebSocketHandler{
		server: s,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  4096,
			WriteBufferSize: 4096,
			// clients are browsers on arbitrary origins; auth is in the
			// handshake value
			CheckOrigin: func(*http.Request) bool { return true },
		},
		conns: newConnSet(),
	}
}

func (h *WebSocketHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if !h.conns.acquire() {
		http.Error(w, "server shutting down", http.StatusServiceUnavailable)
		return
	}
	defer h.conns.release()

	ws, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		// Upgrade has already replied
		h.server.Spec.Log.Debug("websocket upgrade failed", "remote", r.RemoteAddr, "error", err)
		return
	}

	id := newConnID()
	log := h.server.Spec.Log
	log.Debug("new websocket connection", "conn", id, "remote", r.RemoteAddr)

	c := h.server.NewConnection(id, wire.NewWebSocketConn(ws))
	if err := h.conns.run(c); err != nil {
		log.Error("connection error", "conn", id, "error", err)
	}
	log.Debug("connection ended", "conn", id)
}

// Close closes every websocket connection and waits for them to end.
func (h *WebSocketHandler) Close() {
	h.conns.closeAll()
}

// ConnectionCount returns the number of live connections.
func (h *WebSocketHandler) ConnectionCount() int {
	return h.conns.len()
}

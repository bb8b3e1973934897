package websocket

import (
	"net/http"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"

	"photorelay/internal/hub"
	"photorelay/internal/relay"
)

// Options are the transport knobs for accepted connections.
type Options struct {
	ReadLimit    int64         // max inbound frame size
	PingInterval time.Duration // heartbeat period
	PongWait     time.Duration // grace before the peer is declared dead
	WriteTimeout time.Duration // per-frame write deadline
	SendBuffer   int           // outbound queue length
}

// Handler accepts WebSocket connections and runs each one's event loop.
type Handler struct {
	rooms    *hub.Hub
	protocol *relay.Handler
	opts     Options
	upgrader websocket.Upgrader
}

// NewHandler wires the transport to the multiplexer and the relay protocol.
func NewHandler(rooms *hub.Hub, protocol *relay.Handler, opts Options) *Handler {
	return &Handler{
		rooms:    rooms,
		protocol: protocol,
		opts:     opts,
		upgrader: websocket.Upgrader{
			// The QR flow hands the upload page origin-less deep links, so
			// all origins are accepted, same as the HTTP surface's CORS.
			CheckOrigin:      func(r *http.Request) bool { return true },
			HandshakeTimeout: 10 * time.Second,
		},
	}
}

// HandleWebSocket upgrades the request and services the connection until it
// disconnects.
func (h *Handler) HandleWebSocket(w http.ResponseWriter, r *http.Request) {
	ws, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Warn().Str("module", "ws").Err(err).Msg("upgrade failed")
		return
	}

	conn := NewConnection(ws, h.opts.SendBuffer, h.opts.WriteTimeout)
	if err := h.rooms.Add(conn); err != nil {
		log.Error().Str("module", "ws").Err(err).Msg("connection tracking failed")
		_ = conn.Close()
		return
	}

	log.Info().Str("module", "ws").Str("conn_id", conn.ID()).Str("remote", r.RemoteAddr).Msg("client connected")

	go h.serve(conn, ws)
}

// serve is the per-connection read loop. Events are dispatched
// synchronously, so a connection's events are handled in arrival order, and
// the deferred cleanup runs before any later event could reference the
// handle again.
func (h *Handler) serve(conn *Connection, ws *websocket.Conn) {
	defer func() {
		h.rooms.Remove(conn.ID())
		_ = conn.Close()
		log.Info().Str("module", "ws").Str("conn_id", conn.ID()).Msg("client disconnected")
	}()

	ws.SetReadLimit(h.opts.ReadLimit)
	if err := ws.SetReadDeadline(time.Now().Add(h.opts.PongWait)); err != nil {
		return
	}
	ws.SetPongHandler(func(string) error {
		return ws.SetReadDeadline(time.Now().Add(h.opts.PongWait))
	})

	go h.pingLoop(conn, ws)

	for {
		messageType, data, err := ws.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure, websocket.CloseAbnormalClosure) {
				log.Warn().Str("module", "ws").Str("conn_id", conn.ID()).Err(err).Msg("read failed")
			}
			return
		}

		if messageType == websocket.TextMessage {
			h.protocol.HandleMessage(conn, data)
		}
	}
}

func (h *Handler) pingLoop(conn *Connection, ws *websocket.Conn) {
	ticker := time.NewTicker(h.opts.PingInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			if err := ws.WriteControl(websocket.PingMessage, nil, time.Now().Add(h.opts.WriteTimeout)); err != nil {
				return
			}
		case <-conn.Done():
			return
		}
	}
}

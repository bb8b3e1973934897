package hub

import (
	"encoding/json"
	"sync"

	"github.com/rs/zerolog/log"

	"photorelay/internal/session"
	"photorelay/pkg/interfaces"
	"photorelay/pkg/types"
)

// Hub is the connection multiplexer: it tracks every live connection, its
// room memberships, and delivers events to rooms and single connections.
// Registry cleanup for desktop connections happens here so that a
// disconnect is observed as one atomic removal across both tables.
type Hub struct {
	mu         sync.RWMutex
	conns      map[string]interfaces.Connection            // connID -> connection
	rooms      map[string]map[string]interfaces.Connection // roomKey -> connID -> connection
	membership map[string]map[string]struct{}              // connID -> set of roomKeys

	sessions *session.Registry
}

// NewHub creates a multiplexer wired to the session registry it must clean
// up on desktop disconnects.
func NewHub(sessions *session.Registry) *Hub {
	return &Hub{
		conns:      make(map[string]interfaces.Connection),
		rooms:      make(map[string]map[string]interfaces.Connection),
		membership: make(map[string]map[string]struct{}),
		sessions:   sessions,
	}
}

// Add starts tracking a freshly accepted connection with no role and no
// room memberships.
func (h *Hub) Add(conn interfaces.Connection) error {
	if conn == nil {
		return ErrNilConnection
	}

	h.mu.Lock()
	h.conns[conn.ID()] = conn
	h.mu.Unlock()

	log.Debug().Str("module", "hub").Str("conn_id", conn.ID()).Msg("connection added")
	return nil
}

// Remove releases a connection: all room memberships go away and, when the
// connection had registered as a desktop, its session registry entries are
// cleared. Idempotent against duplicate disconnect signals.
func (h *Hub) Remove(connID string) {
	h.mu.Lock()
	conn, ok := h.conns[connID]
	if !ok {
		h.mu.Unlock()
		return
	}
	delete(h.conns, connID)

	for roomKey := range h.membership[connID] {
		if members, exists := h.rooms[roomKey]; exists {
			delete(members, connID)
			if len(members) == 0 {
				delete(h.rooms, roomKey)
			}
		}
	}
	delete(h.membership, connID)
	h.mu.Unlock()

	// Registry cleanup outside the hub lock; the registry has its own.
	if conn.Role() == types.RoleDesktop {
		h.sessions.UnregisterConn(conn)
	}

	log.Debug().Str("module", "hub").Str("conn_id", connID).Msg("connection removed")
}

// JoinRoom adds the connection to roomKey. A connection may belong to any
// number of rooms.
func (h *Hub) JoinRoom(conn interfaces.Connection, roomKey string) error {
	if conn == nil {
		return ErrNilConnection
	}

	h.mu.Lock()
	defer h.mu.Unlock()

	if _, ok := h.conns[conn.ID()]; !ok {
		return ErrConnectionNotTracked
	}

	if h.rooms[roomKey] == nil {
		h.rooms[roomKey] = make(map[string]interfaces.Connection)
	}
	h.rooms[roomKey][conn.ID()] = conn

	if h.membership[conn.ID()] == nil {
		h.membership[conn.ID()] = make(map[string]struct{})
	}
	h.membership[conn.ID()][roomKey] = struct{}{}

	return nil
}

// RoomMembers returns a snapshot of the connections currently in roomKey.
func (h *Hub) RoomMembers(roomKey string) []interfaces.Connection {
	h.mu.RLock()
	defer h.mu.RUnlock()

	members := make([]interfaces.Connection, 0, len(h.rooms[roomKey]))
	for _, conn := range h.rooms[roomKey] {
		members = append(members, conn)
	}
	return members
}

// EmitToRoom delivers the event to every connection currently in roomKey.
// Delivery is fire-and-forget: a member whose transport already failed is
// dropped silently. An empty room is not an error. ErrEmitFailed is
// returned only when the room had members and none of them could be
// written to.
func (h *Hub) EmitToRoom(roomKey, event string, payload interface{}) error {
	env, err := envelope(event, payload)
	if err != nil {
		return err
	}

	members := h.RoomMembers(roomKey)
	if len(members) == 0 {
		return nil
	}

	delivered := 0
	for _, conn := range members {
		if writeErr := conn.WriteJSON(env); writeErr != nil {
			log.Debug().Str("module", "hub").Str("room", roomKey).Str("conn_id", conn.ID()).Err(writeErr).Msg("dropped room delivery")
			continue
		}
		delivered++
	}

	if delivered == 0 {
		return ErrEmitFailed
	}
	return nil
}

// EmitToConn unicasts the event to one connection.
func (h *Hub) EmitToConn(conn interfaces.Connection, event string, payload interface{}) error {
	if conn == nil {
		return ErrNilConnection
	}

	env, err := envelope(event, payload)
	if err != nil {
		return err
	}
	return conn.WriteJSON(env)
}

// Stats returns counters for the health surface.
func (h *Hub) Stats() map[string]int {
	h.mu.RLock()
	defer h.mu.RUnlock()

	return map[string]int{
		"connections": len(h.conns),
		"rooms":       len(h.rooms),
	}
}

func envelope(event string, payload interface{}) (*types.Envelope, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return &types.Envelope{Event: event, Data: data}, nil
}

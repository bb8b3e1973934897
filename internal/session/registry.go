package session

import (
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"photorelay/pkg/interfaces"
)

// entry is one registered desktop. CreatedAt is informational; nothing
// expires entries, they live until the owning connection disconnects or a
// newer registration overwrites them.
type entry struct {
	conn      interfaces.Connection
	createdAt time.Time
}

// Registry maps session identifiers to the one desktop connection currently
// registered for each. All methods are safe for concurrent use from
// independent connection goroutines.
type Registry struct {
	mu       sync.RWMutex
	sessions map[string]entry
}

// NewRegistry creates an empty session registry.
func NewRegistry() *Registry {
	return &Registry{
		sessions: make(map[string]entry),
	}
}

// Register inserts or overwrites the desktop connection for sessionID.
// Last registration wins: a desktop app restart re-registering the same
// identifier silently replaces the stale entry.
func (r *Registry) Register(sessionID string, conn interfaces.Connection) error {
	if conn == nil {
		return ErrNilConnection
	}
	if sessionID == "" {
		return ErrEmptySessionID
	}

	r.mu.Lock()
	r.sessions[sessionID] = entry{conn: conn, createdAt: time.Now()}
	r.mu.Unlock()

	log.Info().Str("module", "session").Str("session_id", sessionID).Str("conn_id", conn.ID()).Msg("desktop registered")
	return nil
}

// Lookup returns the desktop connection registered for sessionID, if any.
func (r *Registry) Lookup(sessionID string) (interfaces.Connection, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	e, ok := r.sessions[sessionID]
	if !ok {
		return nil, false
	}
	return e.conn, true
}

// UnregisterConn removes every entry owned by exactly this connection
// instance. An entry already overwritten by a newer registration for the
// same identifier is left alone, so a stale connection's cleanup cannot
// evict its replacement. Idempotent.
func (r *Registry) UnregisterConn(conn interfaces.Connection) {
	if conn == nil {
		return
	}

	r.mu.Lock()
	var removed []string
	for sessionID, e := range r.sessions {
		if e.conn == conn {
			delete(r.sessions, sessionID)
			removed = append(removed, sessionID)
		}
	}
	r.mu.Unlock()

	for _, sessionID := range removed {
		log.Info().Str("module", "session").Str("session_id", sessionID).Str("conn_id", conn.ID()).Msg("session removed")
	}
}

// Count returns the number of live sessions.
func (r *Registry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.sessions)
}

package interfaces

// Connection is the transport-level handle shared by the session registry,
// the room multiplexer and the relay handler. The concrete implementation
// lives in internal/websocket; tests substitute fakes.
type Connection interface {
	// ID returns the server-assigned connection identifier.
	ID() string

	// Role returns types.RoleUnset until the connection registers, then
	// types.RoleDesktop or types.RoleMobile.
	Role() string

	// SessionID returns the session the connection registered for, empty
	// while unregistered.
	SessionID() string

	// SetRole records the one-shot registration of this connection.
	SetRole(role, sessionID string) error

	// WriteJSON enqueues v on the connection's outbound queue without
	// blocking on peer I/O.
	WriteJSON(v interface{}) error

	// Close tears down the transport. Idempotent.
	Close() error
}

package relay

import (
	"context"
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"photorelay/internal/audit"
	"photorelay/internal/hub"
	"photorelay/internal/session"
	"photorelay/pkg/interfaces"
	"photorelay/pkg/types"
)

// User-visible messages, kept word for word what the clients display.
const (
	MsgDesktopRegistered   = "Desktop registered successfully"
	MsgConnectedToDesktop  = "Connected to desktop"
	MsgDesktopNotFound     = "Desktop not found. Please check if the app is running."
	MsgNoSessionID         = "No session ID provided"
	MsgAlreadyRegistered   = "Connection already registered"
	MsgDesktopNotConnected = "Desktop not connected. Please ensure the desktop app is running."
	MsgNoPhotoData         = "No photo data received"
	MsgUploadSuccess       = "Photo sent successfully"
	MsgForwardFailed       = "Failed to send photo to desktop"
	MsgUploadRateLimited   = "Too many uploads, slow down"
)

const auditTimeout = 5 * time.Second

type handlerFunc func(conn interfaces.Connection, data json.RawMessage)

// Handler is the relay protocol state machine. Each connection moves from
// unregistered to exactly one of the desktop or mobile roles; uploads are
// validated and forwarded to the desktop room of the addressed session.
// Handlers run on the owning connection's read goroutine, so events from a
// single connection are processed in arrival order.
type Handler struct {
	sessions *session.Registry
	rooms    *hub.Hub
	uploads  *audit.Store // nil when the upload log is disabled
	limiter  *RateLimiter // nil when rate limiting is disabled
	handlers map[string]handlerFunc
}

// NewHandler builds the dispatch table. uploads and limiter may be nil.
func NewHandler(sessions *session.Registry, rooms *hub.Hub, uploads *audit.Store, limiter *RateLimiter) *Handler {
	h := &Handler{
		sessions: sessions,
		rooms:    rooms,
		uploads:  uploads,
		limiter:  limiter,
	}
	h.handlers = map[string]handlerFunc{
		types.EventRegisterDesktop: h.handleRegisterDesktop,
		types.EventRegisterMobile:  h.handleRegisterMobile,
		types.EventUploadPhoto:     h.handleUploadPhoto,
	}
	return h
}

// HandleMessage decodes one inbound frame and dispatches it. Unknown events
// are logged and ignored; a malformed frame never closes the connection.
func (h *Handler) HandleMessage(conn interfaces.Connection, raw []byte) {
	var env types.Envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		log.Warn().Str("module", "relay").Str("conn_id", conn.ID()).Err(err).Msg("malformed frame")
		return
	}

	handler, ok := h.handlers[env.Event]
	if !ok {
		log.Debug().Str("module", "relay").Str("conn_id", conn.ID()).Str("event", env.Event).Msg("unhandled event")
		return
	}
	handler(conn, env.Data)
}

func (h *Handler) handleRegisterDesktop(conn interfaces.Connection, data json.RawMessage) {
	var p types.RegisterPayload
	if len(data) > 0 {
		if err := json.Unmarshal(data, &p); err != nil {
			log.Warn().Str("module", "relay").Str("conn_id", conn.ID()).Err(err).Msg("bad register_desktop payload")
		}
	}

	if p.SessionID == "" {
		h.ack(conn, types.EventRegistrationError, MsgNoSessionID)
		return
	}
	if conn.Role() != types.RoleUnset {
		h.ack(conn, types.EventRegistrationError, MsgAlreadyRegistered)
		return
	}

	// Last registration wins: an identifier re-registered by a restarted
	// desktop overwrites the stale entry.
	if err := h.sessions.Register(p.SessionID, conn); err != nil {
		h.ack(conn, types.EventRegistrationError, MsgNoSessionID)
		return
	}
	if err := h.rooms.JoinRoom(conn, types.DesktopRoom(p.SessionID)); err != nil {
		log.Error().Str("module", "relay").Str("conn_id", conn.ID()).Err(err).Msg("desktop room join failed")
	}
	_ = conn.SetRole(types.RoleDesktop, p.SessionID)

	h.ack(conn, types.EventRegistrationSuccess, MsgDesktopRegistered)
}

func (h *Handler) handleRegisterMobile(conn interfaces.Connection, data json.RawMessage) {
	var p types.RegisterPayload
	if len(data) > 0 {
		if err := json.Unmarshal(data, &p); err != nil {
			log.Warn().Str("module", "relay").Str("conn_id", conn.ID()).Err(err).Msg("bad register_mobile payload")
		}
	}

	if p.SessionID == "" {
		h.ack(conn, types.EventRegistrationError, MsgNoSessionID)
		return
	}
	if conn.Role() != types.RoleUnset {
		h.ack(conn, types.EventRegistrationError, MsgAlreadyRegistered)
		return
	}

	if err := h.rooms.JoinRoom(conn, types.MobileRoom(p.SessionID)); err != nil {
		log.Error().Str("module", "relay").Str("conn_id", conn.ID()).Err(err).Msg("mobile room join failed")
	}
	// The mobile registers even when no desktop is present yet: uploads
	// re-check desktop presence, so registering early is fine.
	_ = conn.SetRole(types.RoleMobile, p.SessionID)

	if _, ok := h.sessions.Lookup(p.SessionID); ok {
		h.ack(conn, types.EventRegistrationSuccess, MsgConnectedToDesktop)
	} else {
		h.ack(conn, types.EventRegistrationError, MsgDesktopNotFound)
	}
}

// handleUploadPhoto accepts uploads from any connection that presents a
// session identifier, regardless of its registered role.
func (h *Handler) handleUploadPhoto(conn interfaces.Connection, data json.RawMessage) {
	var p types.UploadPayload
	if len(data) > 0 {
		if err := json.Unmarshal(data, &p); err != nil {
			log.Warn().Str("module", "relay").Str("conn_id", conn.ID()).Err(err).Msg("bad upload_photo payload")
		}
	}
	if p.MimeType == "" {
		p.MimeType = "image/jpeg"
	}

	log.Info().Str("module", "relay").Str("conn_id", conn.ID()).Str("session_id", p.SessionID).Int64("file_size", p.FileSize).Msg("upload request")

	if h.limiter != nil && !h.limiter.Allow(conn.ID()) {
		h.ack(conn, types.EventUploadError, MsgUploadRateLimited)
		h.record(p, audit.OutcomeRejected, "rate limited")
		return
	}

	if p.SessionID == "" {
		h.ack(conn, types.EventUploadError, MsgDesktopNotConnected)
		h.record(p, audit.OutcomeRejected, "no session id")
		return
	}
	if _, ok := h.sessions.Lookup(p.SessionID); !ok {
		h.ack(conn, types.EventUploadError, MsgDesktopNotConnected)
		h.record(p, audit.OutcomeRejected, "desktop not connected")
		return
	}

	if p.Photo == "" {
		h.ack(conn, types.EventUploadError, MsgNoPhotoData)
		h.record(p, audit.OutcomeRejected, "no photo data")
		return
	}

	if err := types.ValidatePhoto(p.MimeType, p.FileSize); err != nil {
		h.ack(conn, types.EventUploadError, err.Error())
		h.record(p, audit.OutcomeRejected, err.Error())
		return
	}

	// Fire-and-forget forward: the desktop's acknowledgment is never
	// awaited, and the success ack below is not transactional with the
	// delivery actually landing.
	forward := types.PhotoReceivedPayload{
		Photo:    p.Photo,
		MimeType: p.MimeType,
		FileSize: p.FileSize,
	}
	if err := h.rooms.EmitToRoom(types.DesktopRoom(p.SessionID), types.EventPhotoReceived, forward); err != nil {
		log.Error().Str("module", "relay").Str("session_id", p.SessionID).Err(err).Msg("photo forward failed")
		h.ack(conn, types.EventUploadError, MsgForwardFailed)
		h.record(p, audit.OutcomeFailed, MsgForwardFailed)
		return
	}

	log.Info().Str("module", "relay").Str("session_id", p.SessionID).Msg("photo relayed to desktop")
	h.ack(conn, types.EventUploadSuccess, MsgUploadSuccess)
	h.record(p, audit.OutcomeRelayed, "")
}

// ack reports an outcome back to the originating connection. Failures are
// logged and dropped; none of them are fatal to the connection.
func (h *Handler) ack(conn interfaces.Connection, event, message string) {
	if err := h.rooms.EmitToConn(conn, event, types.AckPayload{Message: message}); err != nil {
		log.Debug().Str("module", "relay").Str("conn_id", conn.ID()).Str("event", event).Err(err).Msg("ack dropped")
	}
}

// record appends the attempt to the upload log when one is configured.
// Only declared metadata is logged, never the payload.
func (h *Handler) record(p types.UploadPayload, outcome, reason string) {
	if h.uploads == nil {
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), auditTimeout)
	defer cancel()

	rec := audit.Record{
		ID:        uuid.New().String(),
		SessionID: p.SessionID,
		MimeType:  p.MimeType,
		FileSize:  p.FileSize,
		Outcome:   outcome,
		Reason:    reason,
	}
	if err := h.uploads.RecordUpload(ctx, rec); err != nil {
		log.Warn().Str("module", "relay").Err(err).Msg("upload log append failed")
	}
}

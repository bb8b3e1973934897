package types

import (
	"encoding/json"
)

// Event names carried in the wire envelope. Names match the protocol the
// desktop and mobile clients already speak.
const (
	EventRegisterDesktop     = "register_desktop"
	EventRegisterMobile      = "register_mobile"
	EventRegistrationSuccess = "registration_success"
	EventRegistrationError   = "registration_error"
	EventUploadPhoto         = "upload_photo"
	EventUploadSuccess       = "upload_success"
	EventUploadError         = "upload_error"
	EventPhotoReceived       = "photo_received"
)

// Connection roles. A connection starts with RoleUnset and acquires exactly
// one role on its first successful registration.
const (
	RoleUnset   = ""
	RoleDesktop = "desktop"
	RoleMobile  = "mobile"
)

// DesktopRoom returns the room key holding the single desktop registered to
// a session.
func DesktopRoom(sessionID string) string {
	return "desktop:" + sessionID
}

// MobileRoom returns the room key for mobile observers of a session.
func MobileRoom(sessionID string) string {
	return "mobile:" + sessionID
}

// Envelope frames every message on the event channel.
type Envelope struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data,omitempty"`
}

// RegisterPayload is the client payload for register_desktop and
// register_mobile.
type RegisterPayload struct {
	SessionID string `json:"session_id"`
}

// UploadPayload is the mobile payload for upload_photo. Photo is base64
// encoded; MimeType and FileSize are declared by the sender and not
// re-measured by the relay.
type UploadPayload struct {
	SessionID string `json:"session_id"`
	Photo     string `json:"photo"`
	MimeType  string `json:"mime_type"`
	FileSize  int64  `json:"file_size"`
}

// PhotoReceivedPayload is forwarded to the desktop room, field for field
// what the uploader declared.
type PhotoReceivedPayload struct {
	Photo    string `json:"photo"`
	MimeType string `json:"mime_type"`
	FileSize int64  `json:"file_size"`
}

// AckPayload carries the human-readable message of every server-to-client
// acknowledgment and error event.
type AckPayload struct {
	Message string `json:"message"`
}

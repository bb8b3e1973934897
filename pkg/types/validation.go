package types

import (
	"fmt"
)

// MaxPhotoBytes is the declared-size ceiling for a single upload.
const MaxPhotoBytes = 10 * 1024 * 1024

// MaxMessageBytes is the transport-level inbound frame ceiling, enforced at
// the WebSocket layer independently of the declared-size check above.
const MaxMessageBytes = 15 * 1024 * 1024

var allowedMIMETypes = map[string]struct{}{
	"image/jpeg": {},
	"image/jpg":  {},
	"image/png":  {},
	"image/webp": {},
}

// IsAllowedMIMEType reports whether mimeType is in the accepted image set.
func IsAllowedMIMEType(mimeType string) bool {
	_, ok := allowedMIMETypes[mimeType]
	return ok
}

// ValidatePhoto checks a declared MIME type and byte size against the relay
// limits. Pure: it never inspects payload bytes, the declared values are
// taken on the sender's word.
func ValidatePhoto(mimeType string, declaredSize int64) error {
	if !IsAllowedMIMEType(mimeType) {
		return fmt.Errorf("%w: %s", ErrInvalidFileType, mimeType)
	}
	if declaredSize > MaxPhotoBytes {
		return ErrFileTooLarge
	}
	return nil
}

package types

import "errors"

// Validation error values double as the user-visible rejection messages, so
// they keep the exact wording clients display.
var (
	ErrInvalidFileType = errors.New("Invalid file type")
	ErrFileTooLarge    = errors.New("File too large (max 10MB)")
)

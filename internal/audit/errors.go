package audit

import "errors"

var ErrStoreClosed = errors.New("upload log is closed")

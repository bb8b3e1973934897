package hub

import "errors"

var (
	ErrNilConnection        = errors.New("connection cannot be nil")
	ErrConnectionNotTracked = errors.New("connection is not tracked by the hub")
	ErrEmitFailed           = errors.New("delivery failed for every room member")
)

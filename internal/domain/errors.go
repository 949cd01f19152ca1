package domain

import "errors"

var (
	ErrNotFound       = errors.New("not found")
	ErrMalformedFrame = errors.New("malformed frame")
	ErrStreamClosed   = errors.New("stream closed")
	ErrInvalidSpeed   = errors.New("invalid replay speed")
	ErrClosed         = errors.New("closed")
)

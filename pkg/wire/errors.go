package wire

import "errors"

var (
	ErrMalformedFrame = errors.New("malformed frame")
	ErrFrameTooLarge  = errors.New("frame exceeds maximum size")
)

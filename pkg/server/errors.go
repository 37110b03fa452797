package server

import "errors"

var (
	errInvalidPort    = errors.New("invalid port")
	errSessionClosing = errors.New("session closing")
)

package registry

import "errors"

var (
	ErrDuplicateIdentifier = errors.New("duplicate identifier")
	ErrNotFound            = errors.New("service not found")
	ErrEmptyIdentifier     = errors.New("identifier must not be empty")
)

package probe

import "errors"

var (
	// ErrUnknownKind means no checker factory is registered for the kind.
	ErrUnknownKind = errors.New("no checker found for probe kind")

	// ErrUnsupportedTarget means the target cannot be probed by this kind;
	// entries with such targets go to ERROR, not DOWN.
	ErrUnsupportedTarget = errors.New("unsupported probe target")

	// ErrUnreachable means the probe ran and the target was not reachable.
	ErrUnreachable = errors.New("target unreachable")
)

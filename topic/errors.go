package topic

// Error is a constant error type for the topic package.
type Error string

func (e Error) Error() string {
	return string(e)
}

const (
	// ErrUnknownKind is returned for an addressing scheme that is not supported.
	ErrUnknownKind = Error("unknown namespace kind")
	// ErrEmptyRoot is returned when a namespace root is empty.
	ErrEmptyRoot = Error("namespace root cannot be empty")
	// ErrInvalidRoot is returned for roots with leading/trailing separators or wildcards.
	ErrInvalidRoot = Error("namespace root is invalid")
	// ErrInvalidStation is returned for station ids that are not positive integers.
	ErrInvalidStation = Error("station id must be a positive integer")
	// ErrInvalidSide is returned for anything other than left or right.
	ErrInvalidSide = Error("side must be left or right")
)

package config

// Error is a constant error type for the config package.
type Error string

func (e Error) Error() string {
	return string(e)
}

const (
	// ErrSettingsNotFound is returned by a Store that has nothing persisted yet.
	ErrSettingsNotFound = Error("no settings persisted")
	// ErrUnknownDriver is returned by OpenStore for an unsupported driver.
	ErrUnknownDriver = Error("unknown settings driver")
	// ErrUnknownFormat is returned for a settings file extension without a serializer.
	ErrUnknownFormat = Error("unknown settings file format")
	// ErrEmptyContents is returned when a settings file exists but is empty.
	ErrEmptyContents = Error("settings contents were empty on read")
)

package daemon

const (
	ErrDaemonStarted        Error = Error("daemon has already been started")
	ErrDuplicateServiceName Error = Error("duplicate service name found")
	ErrNoServices           Error = Error("no services to run")
	ErrNoServiceName        Error = Error("no service name provided")
	ErrNilService           Error = Error("nil service provided")
)

type Error string

func (e Error) Error() string {
	return string(e)
}

// ServiceError is a lifecycle method failure of a service.
type ServiceError struct {
	Name  string
	State State
	Err   error
}

func (se ServiceError) Error() string {
	return "service error during '" + se.State.String() + "': " + se.Name + ": " + se.Err.Error()
}

func (se ServiceError) Unwrap() error {
	return se.Err
}

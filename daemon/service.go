package daemon

import (
	"context"
	"time"
)

// ServiceRunner is the lifecycle of a service. Every method gets the daemon
// context, which is cancelled once the daemon shuts down. Stop gets a context
// that outlives the shutdown so it can release what Init acquired.
type ServiceRunner interface {
	Init(ctx context.Context) error
	Idle(ctx context.Context) error
	Run(ctx context.Context) error
	Stop(ctx context.Context) error
}

// Service is a named runner and the handler driving its lifecycle.
type Service struct {
	Name    string
	Runner  ServiceRunner
	Handler ServiceHandler
}

type ServiceOption func(*Service)

// WithHandler sets the handler driving the service, RunOnceHandler by default.
func WithHandler(h ServiceHandler) ServiceOption {
	return func(s *Service) {
		if h != nil {
			s.Handler = h
		}
	}
}

// WithRestart drives the service with a RunContinuousHandler.
func WithRestart(delay, maxDelay time.Duration) ServiceOption {
	return WithHandler(RunContinuousHandler{RestartDelay: delay, MaxRestartDelay: maxDelay})
}

func NewService(name string, runner ServiceRunner, opts ...ServiceOption) Service {
	service := Service{
		Name:    name,
		Runner:  runner,
		Handler: RunOnceHandler{},
	}

	for _, opt := range opts {
		opt(&service)
	}

	return service
}

// Package daemon runs a set of named services through their
// Init, Idle, Run and Stop lifecycle until the context is cancelled or an OS
// signal arrives, and publishes the state of every service as it changes.
package daemon

import (
	"context"
	"os"
	"os/signal"
	"sync"
	"sync/atomic"
	"syscall"

	"github.com/ambitiousfew/stationlink/intracom"
	"github.com/ambitiousfew/stationlink/log"
	"golang.org/x/sync/errgroup"
)

const statesTopic = "_daemon.states"

type Daemon struct {
	name     string
	signals  []os.Signal
	logger   log.Logger
	services []Service
	names    map[string]struct{}

	ic     *intracom.Intracom
	states intracom.Topic[States]

	mu      sync.Mutex
	current States

	started atomic.Bool
}

// NewDaemon creates a daemon without services.
func NewDaemon(name string, opts ...DaemonOption) *Daemon {
	d := &Daemon{
		name:    name,
		signals: []os.Signal{syscall.SIGINT, syscall.SIGTERM},
		logger:  log.Noop(),
		names:   make(map[string]struct{}),
		current: make(States),
	}

	for _, opt := range opts {
		opt(d)
	}

	d.ic = intracom.New(name+"-states", intracom.WithLogger(d.logger))
	// a fresh registry cannot refuse the topic.
	d.states, _ = intracom.CreateTopic[States](d.ic, intracom.TopicConfig{Name: statesTopic, Buffer: 16})
	return d
}

// AddService adds a service to the daemon.
func (d *Daemon) AddService(s Service) error {
	if d.started.Load() {
		return ErrDaemonStarted
	}
	return d.addService(s)
}

// AddServices adds a list of services to the daemon.
// if any service fails to be added, the error is logged and the next service is attempted.
func (d *Daemon) AddServices(services ...Service) error {
	if d.started.Load() {
		return ErrDaemonStarted
	}

	for _, s := range services {
		if err := d.addService(s); err != nil {
			d.logger.Log(log.LevelError, "error adding service", log.String("service", s.Name), log.Error("error", err))
		}
	}
	return nil
}

func (d *Daemon) addService(s Service) error {
	if s.Name == "" {
		return ErrNoServiceName
	}
	if s.Runner == nil {
		return ErrNilService
	}
	if _, exists := d.names[s.Name]; exists {
		return ErrDuplicateServiceName
	}
	if s.Handler == nil {
		s.Handler = RunOnceHandler{}
	}

	d.names[s.Name] = struct{}{}
	d.services = append(d.services, s)
	d.current[s.Name] = StateInit
	return nil
}

// States returns a copy of the current state of every service.
func (d *Daemon) States() States {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.current.copy()
}

// WatchStates returns a channel receiving the states of every service each
// time one of them changes, starting with the current states. Slow consumers
// only miss intermediate snapshots. The channel is closed by the returned
// func or once the daemon exited.
func (d *Daemon) WatchStates(consumer string) (<-chan States, func(), error) {
	ch, err := d.states.Subscribe(intracom.SubscriberConfig{
		ConsumerGroup: consumer,
		ErrIfExists:   true,
		BufferSize:    1,
		BufferPolicy:  intracom.DropOldest,
	})
	if err != nil {
		return nil, nil, err
	}

	d.mu.Lock()
	_ = d.states.Publish(context.Background(), d.current.copy())
	d.mu.Unlock()

	return ch, func() { _ = d.states.Unsubscribe(consumer) }, nil
}

// Start runs every service until all of them exited. Cancelling ctx or
// receiving one of the daemon's signals shuts every service down.
func (d *Daemon) Start(ctx context.Context) error {
	if len(d.services) == 0 {
		return ErrNoServices
	}
	if d.started.Swap(true) {
		return ErrDaemonStarted
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	updateC := make(chan StateUpdate, len(d.services)*2)
	errC := make(chan ServiceError, len(d.services))
	stopC := make(chan struct{})

	var group errgroup.Group
	group.Go(func() error {
		d.signalWatcher(ctx, cancel, stopC)
		return nil
	})
	group.Go(func() error {
		d.statesWatcher(updateC)
		return nil
	})
	group.Go(func() error {
		for se := range errC {
			d.logger.Log(log.LevelError, se.Err.Error(), log.String("service", se.Name), log.String("state", se.State.String()))
		}
		return nil
	})

	d.manager(ctx, updateC, errC)
	close(stopC)
	close(updateC)
	close(errC)
	_ = group.Wait()

	d.logger.Log(log.LevelDebug, "all services have exited, daemon is exiting")
	return intracom.Close(d.ic)
}

// manager starts each service in its own routine and waits for all of them.
func (d *Daemon) manager(ctx context.Context, updateC chan<- StateUpdate, errC chan<- ServiceError) {
	var wg sync.WaitGroup
	update := func(name string, state State) {
		updateC <- StateUpdate{Name: name, State: state}
	}

	for _, s := range d.services {
		wg.Add(1)
		go func(s Service) {
			defer wg.Done()
			s.Handler.Handle(ctx, s, update, errC)
		}(s)
	}

	d.logger.Log(log.LevelDebug, "manager started services", log.Int("total", len(d.services)))
	wg.Wait()
}

// statesWatcher records every state change and publishes the states of all services.
func (d *Daemon) statesWatcher(updateC <-chan StateUpdate) {
	for u := range updateC {
		d.mu.Lock()
		if d.current[u.Name] == u.State {
			d.mu.Unlock()
			continue
		}
		d.current[u.Name] = u.State
		_ = d.states.Publish(context.Background(), d.current.copy())
		d.mu.Unlock()

		d.logger.Log(log.LevelDebug, "service state changed", log.String("service", u.Name), log.String("state", u.State.String()))
	}
}

// signalWatcher cancels the services on an OS signal.
func (d *Daemon) signalWatcher(ctx context.Context, cancel context.CancelFunc, stopC <-chan struct{}) {
	osSignal := make(chan os.Signal, 1)
	signal.Notify(osSignal, d.signals...)
	defer signal.Stop(osSignal)

	select {
	case <-ctx.Done():
	case sig := <-osSignal:
		d.logger.Log(log.LevelNotice, "daemon received signal, stopping services", log.String("signal", sig.String()))
		cancel()
	case <-stopC:
	}
}

package main

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/ambitiousfew/stationlink"
	"github.com/ambitiousfew/stationlink/config"
	"github.com/ambitiousfew/stationlink/daemon"
	"github.com/ambitiousfew/stationlink/log"
)

var errConnectionLost = errors.New("broker connection lost")

// dispatcherService runs the dispatch loop for as long as the daemon runs.
type dispatcherService struct {
	d *stationlink.Dispatcher
}

func (s dispatcherService) Init(_ context.Context) error { return nil }
func (s dispatcherService) Idle(_ context.Context) error { return nil }

func (s dispatcherService) Run(ctx context.Context) error {
	return s.d.Run(ctx)
}

func (s dispatcherService) Stop(_ context.Context) error {
	s.d.Close()
	return nil
}

// brokerService owns the transport connection. Init dials, Run watches the
// connection and returns once it stayed down for lostAfter, Stop hangs up.
// Driven by a RunContinuousHandler it dials again with backoff until the
// daemon stops.
type brokerService struct {
	d         *stationlink.Dispatcher
	store     config.Store
	settings  config.TransportConfig
	logger    log.Logger
	poll      time.Duration
	lostAfter time.Duration

	recorded bool
}

func (s *brokerService) Init(ctx context.Context) error {
	err := s.d.Connect(ctx)
	var opErr stationlink.OpError
	switch {
	case errors.As(err, &opErr) && opErr.Action == stationlink.ActionConnect:
		return err
	case err != nil:
		s.logger.Log(log.LevelWarning, "connected with routes left unsubscribed", log.Error("error", err))
	}

	if !s.recorded {
		if err := config.RecordTransport(ctx, s.store, s.settings); err != nil {
			s.logger.Log(log.LevelWarning, "error recording transport settings", log.Error("error", err))
		}
		s.recorded = true
	}
	return nil
}

func (s *brokerService) Idle(_ context.Context) error { return nil }

func (s *brokerService) Run(ctx context.Context) error {
	ticker := time.NewTicker(s.poll)
	defer ticker.Stop()

	var downSince time.Time
	for {
		select {
		case <-ctx.Done():
			return nil
		case now := <-ticker.C:
			if s.d.Transport().IsConnected() {
				if !downSince.IsZero() {
					s.logger.Log(log.LevelNotice, "broker connection is back")
				}
				downSince = time.Time{}
				continue
			}
			if downSince.IsZero() {
				downSince = now
				s.logger.Log(log.LevelWarning, "broker connection is down, requests resolve with their fallback")
				continue
			}
			if now.Sub(downSince) >= s.lostAfter {
				return errConnectionLost
			}
		}
	}
}

func (s *brokerService) Stop(ctx context.Context) error {
	return s.d.Disconnect(ctx)
}

// settingsService switches the station whenever the settings file names
// another identifier.
type settingsService struct {
	path     string
	switcher *stationlink.Switcher
	logger   log.Logger
}

func (s settingsService) Init(_ context.Context) error { return nil }
func (s settingsService) Idle(_ context.Context) error { return nil }

func (s settingsService) Run(ctx context.Context) error {
	return config.Watch(ctx, s.path, func(settings config.Settings) {
		if settings.Identifier == "" || settings.Identifier == s.switcher.Current() {
			return
		}
		if err := s.switcher.SwitchTo(ctx, settings.Identifier); err != nil {
			s.logger.Log(log.LevelError, "error following settings", log.Error("error", err))
			return
		}
		s.logger.Log(log.LevelNotice, "switched from settings", log.String("identifier", settings.Identifier))
	}, config.WithWatchLogger(s.logger))
}

func (s settingsService) Stop(_ context.Context) error { return nil }

// operator carries out what the command line asked for once the broker is up.
// Stopping it shuts the daemon down, so a one shot command exits when done.
type operator struct {
	opts        options
	daemon      *daemon.Daemon
	client      *stationlink.Client
	listener    *stationlink.BroadcastListener
	switcher    *stationlink.Switcher
	logger      log.Logger
	connectWait time.Duration
	shutdown    context.CancelFunc

	err error
}

// Init waits for the broker service to reach run. Past connectWait the
// operator carries on and requests resolve with their fallback.
func (o *operator) Init(ctx context.Context) error {
	statesC, unwatch, err := o.daemon.WatchStates("operator")
	if err != nil {
		return err
	}
	defer unwatch()

	timer := time.NewTimer(o.connectWait)
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-timer.C:
			o.logger.Log(log.LevelWarning, "broker not connected yet, carrying on", log.Duration("waited", o.connectWait))
			return nil
		case states, ok := <-statesC:
			if !ok || states["broker"] == daemon.StateRun {
				return nil
			}
		}
	}
}

func (o *operator) Idle(_ context.Context) error { return nil }

func (o *operator) Run(ctx context.Context) error {
	err := o.operate(ctx)
	if ctx.Err() != nil && errors.Is(err, ctx.Err()) {
		// interrupted, not failed.
		err = nil
	}
	o.err = err
	return err
}

func (o *operator) operate(ctx context.Context) error {
	if o.opts.switchTo != "" {
		if err := o.switcher.SwitchTo(ctx, o.opts.switchTo); err != nil {
			return err
		}
		fmt.Printf("switched to %s\n", o.switcher.Current())
	}

	if o.opts.check != "" {
		result, err := check(ctx, o.client, o.opts.action, o.opts.check)
		if err != nil {
			return err
		}
		fmt.Printf("%s %s: success=%t value=%t (%s in %s)\n",
			o.opts.action, result.Key, result.Success, result.Value, result.Resolution, result.Elapsed)
	}

	if o.opts.watch {
		if err := o.listener.Subscribe(ctx); err != nil {
			o.logger.Log(log.LevelError, "error subscribing broadcast", log.Error("error", err))
		}
		o.listener.Observe(printBroadcast)
	}

	if o.opts.watch || o.opts.followSettings {
		<-ctx.Done()
	}
	return nil
}

func (o *operator) Stop(ctx context.Context) error {
	defer o.shutdown()

	o.client.Close()
	return o.listener.Close(ctx)
}

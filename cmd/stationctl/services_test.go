package main

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/ambitiousfew/stationlink"
	"github.com/ambitiousfew/stationlink/config"
	"github.com/ambitiousfew/stationlink/log"
	"github.com/ambitiousfew/stationlink/transport/transporttest"
)

// countingStore keeps settings in memory and counts saves.
type countingStore struct {
	mu       sync.Mutex
	settings config.Settings
	saved    bool
	saves    int
}

func (s *countingStore) Load(_ context.Context) (config.Settings, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.saved {
		return config.Settings{}, config.ErrSettingsNotFound
	}
	return s.settings, nil
}

func (s *countingStore) Save(_ context.Context, settings config.Settings) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.settings, s.saved = settings, true
	s.saves++
	return nil
}

func (s *countingStore) Close() error { return nil }

func (s *countingStore) count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.saves
}

func TestBrokerService_Init(t *testing.T) {
	ctx := context.Background()
	tr := transporttest.New()
	store := &countingStore{}
	s := &brokerService{
		d:        stationlink.NewDispatcher(tr),
		store:    store,
		settings: config.TransportConfig{Address: "broker.local", Port: 1883},
		logger:   log.Noop(),
	}

	tr.ConnectErr = errors.New("connection refused")
	err := s.Init(ctx)
	var opErr stationlink.OpError
	if !errors.As(err, &opErr) || opErr.Action != stationlink.ActionConnect {
		t.Fatalf("expected a connect OpError, got %v", err)
	}
	if store.count() != 0 {
		t.Fatalf("expected nothing recorded before a successful connect")
	}

	tr.ConnectErr = nil
	for i := 0; i < 2; i++ {
		if err := s.Stop(ctx); err != nil {
			t.Fatalf("error stopping: %v", err)
		}
		if err := s.Init(ctx); err != nil {
			t.Fatalf("error connecting: %v", err)
		}
	}
	if store.count() != 1 || store.settings.Transport.Address != "broker.local" {
		t.Fatalf("expected the transport to be recorded once, got %d saves of %+v", store.count(), store.settings)
	}
}

func TestBrokerService_Run(t *testing.T) {
	tr := transporttest.New()
	s := &brokerService{
		d:         stationlink.NewDispatcher(tr),
		logger:    log.Noop(),
		poll:      time.Millisecond,
		lostAfter: 5 * time.Millisecond,
	}
	tr.SetConnected(true)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- s.Run(ctx) }()

	select {
	case err := <-done:
		t.Fatalf("expected Run to keep going while connected, got %v", err)
	case <-time.After(20 * time.Millisecond):
	}

	tr.SetConnected(false)
	select {
	case err := <-done:
		if !errors.Is(err, errConnectionLost) {
			t.Fatalf("expected errConnectionLost, got %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatalf("timed out waiting for Run to give up on the connection")
	}

	go func() { done <- s.Run(ctx) }()
	cancel()
	if err := <-done; err != nil {
		t.Fatalf("expected Run to return nil on shutdown, got %v", err)
	}
}

func loopbackConfig(t *testing.T) config.Config {
	t.Helper()
	cfg, err := config.Load("")
	if err != nil {
		t.Fatalf("load defaults: %v", err)
	}
	cfg.Transport.Kind = config.TransportLoopback
	cfg.Settings.Driver = config.DriverNone
	cfg.Client.Timeout = 50 * time.Millisecond
	return cfg
}

func TestServe(t *testing.T) {
	tests := []struct {
		name string
		opts options
		want string
	}{
		{"check exits once resolved", options{check: "alice", action: "check_username"}, ""},
		{"switch exits once switched", options{switchTo: "4"}, ""},
		{"invalid switch fails", options{switchTo: "left"}, "switching"},
		{"follow settings needs a file", options{followSettings: true}, "--follow-settings"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := loopbackConfig(t)
			store, err := config.OpenStore(cfg.Settings.Driver, cfg.Settings.Path)
			if err != nil {
				t.Fatalf("open store: %v", err)
			}

			done := make(chan error, 1)
			go func() { done <- serve(context.Background(), cfg, store, tt.opts, log.Noop()) }()

			select {
			case err := <-done:
				switch {
				case tt.want == "" && err != nil:
					t.Fatalf("expected serve to succeed, got %v", err)
				case tt.want != "" && (err == nil || !strings.Contains(err.Error(), tt.want)):
					t.Fatalf("expected an error mentioning %q, got %v", tt.want, err)
				}
			case <-time.After(5 * time.Second):
				t.Fatalf("timed out waiting for serve to return")
			}
		})
	}
}

func TestServe_StopsOnCancel(t *testing.T) {
	cfg := loopbackConfig(t)
	store, _ := config.OpenStore(cfg.Settings.Driver, "")

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- serve(ctx, cfg, store, options{watch: true}, log.Noop()) }()

	select {
	case err := <-done:
		t.Fatalf("expected --watch to keep running, got %v", err)
	case <-time.After(50 * time.Millisecond):
	}

	cancel()
	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("expected a clean shutdown, got %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatalf("timed out waiting for serve to return")
	}
}

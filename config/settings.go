package config

import (
	"context"
	"errors"
	"fmt"
)

// Settings is what an operator changes at runtime and expects to survive a restart.
type Settings struct {
	Identifier string            `yaml:"identifier,omitempty" json:"identifier,omitempty"`
	Transport  TransportSettings `yaml:"transport,omitempty" json:"transport,omitempty"`
}

// TransportSettings is the last used broker connection.
type TransportSettings struct {
	Address  string `yaml:"address,omitempty" json:"address,omitempty"`
	Port     int    `yaml:"port,omitempty" json:"port,omitempty"`
	Username string `yaml:"username,omitempty" json:"username,omitempty"`
	Password string `yaml:"password,omitempty" json:"password,omitempty"`
}

// Store persists Settings.
type Store interface {
	// Load returns ErrSettingsNotFound when nothing was saved yet.
	Load(ctx context.Context) (Settings, error)
	Save(ctx context.Context, s Settings) error
	Close() error
}

// OpenStore opens the store for driver. DriverNone returns a store that keeps
// settings in memory only.
func OpenStore(driver, path string) (Store, error) {
	switch driver {
	case DriverFile:
		return NewFileStore(path)
	case DriverSQLite:
		return NewSQLiteStore(path)
	case DriverNone:
		return &memoryStore{}, nil
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownDriver, driver)
	}
}

// Update loads the settings, applies fn and saves the result. A store without
// settings starts from the zero value.
func Update(ctx context.Context, store Store, fn func(*Settings)) error {
	s, err := store.Load(ctx)
	if err != nil && !errors.Is(err, ErrSettingsNotFound) {
		return err
	}
	fn(&s)
	return store.Save(ctx, s)
}

// StationPersister stores a switched identifier in a Store.
type StationPersister struct {
	Store Store
}

func (p StationPersister) PersistIdentifier(ctx context.Context, id string) error {
	return Update(ctx, p.Store, func(s *Settings) {
		s.Identifier = id
	})
}

// RecordTransport stores the broker connection after it was used successfully.
func RecordTransport(ctx context.Context, store Store, t TransportConfig) error {
	return Update(ctx, store, func(s *Settings) {
		s.Transport = TransportSettings{
			Address:  t.Address,
			Port:     t.Port,
			Username: t.Username,
			Password: t.Password,
		}
	})
}

type memoryStore struct {
	settings *Settings
}

func (m *memoryStore) Load(_ context.Context) (Settings, error) {
	if m.settings == nil {
		return Settings{}, ErrSettingsNotFound
	}
	return *m.settings, nil
}

func (m *memoryStore) Save(_ context.Context, s Settings) error {
	m.settings = &s
	return nil
}

func (m *memoryStore) Close() error {
	return nil
}

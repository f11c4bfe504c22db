package config

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"strconv"

	_ "modernc.org/sqlite"
)

const settingsSchema = `
CREATE TABLE IF NOT EXISTS settings (
	key TEXT PRIMARY KEY,
	value TEXT NOT NULL
);
`

const (
	keyIdentifier = "identifier"
	keyAddress    = "transport.address"
	keyPort       = "transport.port"
	keyUsername   = "transport.username"
	keyPassword   = "transport.password"
)

// SQLiteStore keeps Settings as key/value rows in a sqlite database, for
// installs that already ship one for other local state.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLiteStore opens or creates the database at path.
func NewSQLiteStore(path string) (*SQLiteStore, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("mkdir settings dir: %w", err)
	}

	db, err := openSQLite(path)
	if err != nil {
		return nil, fmt.Errorf("open settings db: %w", err)
	}
	if _, err := db.Exec(settingsSchema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("init settings schema: %w", err)
	}
	return &SQLiteStore{db: db}, nil
}

func (s *SQLiteStore) Load(ctx context.Context) (Settings, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT key, value FROM settings`)
	if err != nil {
		return Settings{}, err
	}
	defer rows.Close()

	values := make(map[string]string)
	for rows.Next() {
		var k, v string
		if err := rows.Scan(&k, &v); err != nil {
			return Settings{}, err
		}
		values[k] = v
	}
	if err := rows.Err(); err != nil {
		return Settings{}, err
	}
	if len(values) == 0 {
		return Settings{}, ErrSettingsNotFound
	}

	out := Settings{
		Identifier: values[keyIdentifier],
		Transport: TransportSettings{
			Address:  values[keyAddress],
			Username: values[keyUsername],
			Password: values[keyPassword],
		},
	}
	if p := values[keyPort]; p != "" {
		port, err := strconv.Atoi(p)
		if err != nil {
			return Settings{}, fmt.Errorf("settings %s: %w", keyPort, err)
		}
		out.Transport.Port = port
	}
	return out, nil
}

func (s *SQLiteStore) Save(ctx context.Context, settings Settings) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	values := map[string]string{
		keyIdentifier: settings.Identifier,
		keyAddress:    settings.Transport.Address,
		keyPort:       strconv.Itoa(settings.Transport.Port),
		keyUsername:   settings.Transport.Username,
		keyPassword:   settings.Transport.Password,
	}
	for k, v := range values {
		if _, err := tx.ExecContext(ctx, `
INSERT INTO settings(key, value) VALUES(?, ?)
ON CONFLICT(key) DO UPDATE SET value=excluded.value`, k, v); err != nil {
			return fmt.Errorf("save setting %s: %w", k, err)
		}
	}
	return tx.Commit()
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

func openSQLite(path string) (*sql.DB, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}
	pragmas := []string{
		"PRAGMA journal_mode=WAL;",
		"PRAGMA synchronous=FULL;",
		"PRAGMA busy_timeout=5000;",
	}
	for _, p := range pragmas {
		if _, err := db.Exec(p); err != nil {
			_ = db.Close()
			return nil, err
		}
	}
	return db, nil
}

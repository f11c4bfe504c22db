package config

import (
	"context"
	"errors"
	"path/filepath"
	"time"

	"github.com/ambitiousfew/stationlink/log"
	"github.com/fsnotify/fsnotify"
)

// WatchOption configures Watch.
type WatchOption func(*watcher)

// WithWatchLogger sets the watcher logger.
func WithWatchLogger(logger log.Logger) WatchOption {
	return func(w *watcher) {
		if logger != nil {
			w.logger = logger
		}
	}
}

// WithDebounce sets how long the watcher waits for a burst of writes to settle.
func WithDebounce(d time.Duration) WatchOption {
	return func(w *watcher) {
		if d > 0 {
			w.debounce = d
		}
	}
}

type watcher struct {
	path       string
	serializer Serializer
	logger     log.Logger
	debounce   time.Duration
}

// Watch calls fn with the settings file at path every time an operator edits
// it, until ctx is done. The parent directory is watched so editors that
// replace the file on save are followed too. Unreadable contents are logged
// and skipped.
func Watch(ctx context.Context, path string, fn func(Settings), opts ...WatchOption) error {
	serializer, err := SerializerFor(path)
	if err != nil {
		return err
	}

	w := &watcher{
		path:       filepath.Clean(path),
		serializer: serializer,
		logger:     log.Noop(),
		debounce:   100 * time.Millisecond,
	}
	for _, opt := range opts {
		opt(w)
	}

	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	defer fsw.Close()

	if err := fsw.Add(filepath.Dir(w.path)); err != nil {
		return err
	}

	var (
		timer   *time.Timer
		changed = make(chan struct{}, 1)
	)
	defer func() {
		if timer != nil {
			timer.Stop()
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return nil
		case event, ok := <-fsw.Events:
			if !ok {
				return nil
			}
			if filepath.Clean(event.Name) != w.path || event.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename) == 0 {
				continue
			}
			if timer != nil {
				timer.Stop()
			}
			timer = time.AfterFunc(w.debounce, func() {
				select {
				case changed <- struct{}{}:
				default:
				}
			})
		case <-changed:
			s, err := readSettings(w.path, w.serializer)
			if err != nil {
				if !errors.Is(err, ErrSettingsNotFound) {
					w.logger.Log(log.LevelWarning, "error reading changed settings", log.String("path", w.path), log.Error("error", err))
				}
				continue
			}
			w.logger.Log(log.LevelDebug, "settings changed", log.String("path", w.path))
			fn(s)
		case err, ok := <-fsw.Errors:
			if !ok {
				return nil
			}
			w.logger.Log(log.LevelError, "settings watcher error", log.Error("error", err))
		}
	}
}

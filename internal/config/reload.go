package config

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/fsnotify/fsnotify"
)

const reloadDebounce = 500 * time.Millisecond

// Reloader watches a config file and delivers each successfully parsed
// revision through a callback. Used for API-key rotation without a
// process restart.
type Reloader struct {
	watcher  *fsnotify.Watcher
	path     string
	onChange func(Config)
	log      *slog.Logger
}

// NewReloader creates a file watcher for path.
func NewReloader(path string, log *slog.Logger, onChange func(Config)) (*Reloader, error) {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("create file watcher: %w", err)
	}
	if err := watcher.Add(path); err != nil {
		watcher.Close()
		return nil, fmt.Errorf("watch %q: %w", path, err)
	}
	if log == nil {
		log = slog.Default()
	}
	return &Reloader{
		watcher:  watcher,
		path:     path,
		onChange: onChange,
		log:      log,
	}, nil
}

// Run watches for changes and reloads. Blocks until ctx is cancelled.
// A revision that fails to parse is logged and skipped; the previous
// configuration stays in effect.
func (r *Reloader) Run(ctx context.Context) error {
	defer r.watcher.Close()

	// Debounce: editors produce bursts of writes per save.
	var debounce *time.Timer
	fire := make(chan struct{}, 1)

	for {
		select {
		case <-ctx.Done():
			if debounce != nil {
				debounce.Stop()
			}
			return ctx.Err()

		case ev, ok := <-r.watcher.Events:
			if !ok {
				return nil
			}
			if !ev.Has(fsnotify.Write) && !ev.Has(fsnotify.Create) {
				continue
			}
			if debounce != nil {
				debounce.Stop()
			}
			debounce = time.AfterFunc(reloadDebounce, func() {
				select {
				case fire <- struct{}{}:
				default:
				}
			})

		case <-fire:
			cfg, err := Load(r.path)
			if err != nil {
				r.log.Warn("config reload failed", "path", r.path, "error", err)
				continue
			}
			r.log.Info("config reloaded", "path", r.path)
			r.onChange(cfg)

		case err, ok := <-r.watcher.Errors:
			if !ok {
				return nil
			}
			r.log.Warn("config watcher error", "error", err)
		}
	}
}

package config

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/fsnotify/fsnotify"
	"github.com/rs/zerolog/log"
)

const reloadOps = fsnotify.Write | fsnotify.Create | fsnotify.Rename

// Watch reloads path whenever it changes and calls onChange with the new
// config. The parent directory is watched so saves that replace the file
// through a rename keep being observed. A reload that fails to parse or
// validate is logged and skipped, so the previous config stays active.
// Watch blocks until ctx is cancelled.
func Watch(ctx context.Context, path string, onChange func(*Config)) error {
	target := filepath.Clean(path)
	dir := filepath.Dir(target)

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("failed to create config watcher: %w", err)
	}
	defer watcher.Close()

	if err := watcher.Add(dir); err != nil {
		return fmt.Errorf("failed to watch %s: %w", dir, err)
	}

	log.Info().Str("path", target).Msg("Watching config for changes")

	for {
		select {
		case <-ctx.Done():
			return nil

		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if filepath.Clean(event.Name) != target || event.Op&reloadOps == 0 {
				continue
			}
			// moved away or deleted; wait for the replacement
			if _, err := os.Stat(target); err != nil {
				continue
			}

			cfg, err := Load(target)
			if err != nil {
				log.Error().Err(err).Str("path", target).Str("op", event.Op.String()).Msg("Config reload failed, keeping previous config")
				continue
			}

			log.Info().Str("path", target).Str("engine", cfg.Engine.Describe()).Msg("Config reloaded")
			onChange(cfg)

		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			log.Error().Err(err).Msg("Config watcher error")
		}
	}
}

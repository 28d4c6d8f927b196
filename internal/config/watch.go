package config

import (
	"context"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"
	log "github.com/sirupsen/logrus"
)

// Editors often replace the file rather than writing in place, firing
// several events in quick succession; reloads are debounced.
const reloadDebounce = 300 * time.Millisecond

// Watch reloads path whenever it changes and hands the fresh Config to
// onReload. It returns after installing the watcher; the loop stops
// when ctx is cancelled. A reload that fails to parse keeps the
// previous configuration.
func Watch(ctx context.Context, path string, onReload func(*Config)) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	if err := watcher.Add(filepath.Dir(path)); err != nil {
		_ = watcher.Close()
		return err
	}

	target := filepath.Clean(path)
	go func() {
		defer func() {
			if errClose := watcher.Close(); errClose != nil {
				log.Errorf("config watcher: close: %v", errClose)
			}
		}()

		var timer *time.Timer
		for {
			select {
			case <-ctx.Done():
				return
			case event, ok := <-watcher.Events:
				if !ok {
					return
				}
				if filepath.Clean(event.Name) != target {
					continue
				}
				if !event.Has(fsnotify.Write) && !event.Has(fsnotify.Create) {
					continue
				}
				if timer != nil {
					timer.Stop()
				}
				timer = time.AfterFunc(reloadDebounce, func() {
					cfg, err := Load(path)
					if err != nil {
						log.WithError(err).Warn("config watcher: reload failed, keeping previous config")
						return
					}
					log.Info("config watcher: configuration reloaded")
					onReload(cfg)
				})
			case err, ok := <-watcher.Errors:
				if !ok {
					return
				}
				log.WithError(err).Warn("config watcher: watch error")
			}
		}
	}()
	return nil
}

package main

import (
	"context"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"
	"go.uber.org/zap"

	"github.com/Faultbox/meshstream/internal/config"
	"github.com/Faultbox/meshstream/internal/logger"
)

// watch runs once, then again every time the input file changes, until ctx is done.
func watch(ctx context.Context, cfg *config.Config) error {
	return watchInput(ctx, cfg, func(m *Manifest, err error) {
		if err != nil {
			logger.Error("partitioning failed", zap.Error(err))
			return
		}
		logger.Info("document written",
			zap.String("document", m.Document),
			zap.Int("partitions", len(m.Partitions)),
			zap.String("elapsed", m.Elapsed))
	})
}

// watchInput watches the input's directory, since editors often replace files by renaming.
// Bursts of events within the debounce window trigger a single run.
func watchInput(ctx context.Context, cfg *config.Config, done func(*Manifest, error)) error {
	log := logger.Named("watch")

	w, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	defer w.Close()

	input, err := filepath.Abs(cfg.Input.Path)
	if err != nil {
		return err
	}
	if err := w.Add(filepath.Dir(input)); err != nil {
		return err
	}
	log.Info("watching input", zap.String("path", input))

	done(run(cfg))

	debounce := time.Duration(cfg.Input.WatchDebounceMS) * time.Millisecond
	timer := time.NewTimer(debounce)
	timer.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil

		case e, ok := <-w.Events:
			if !ok {
				return nil
			}
			if filepath.Clean(e.Name) != input || e.Op&(fsnotify.Create|fsnotify.Write|fsnotify.Rename) == 0 {
				continue
			}
			log.Debug("input changed", zap.String("path", e.Name), zap.Stringer("op", e.Op))
			timer.Reset(debounce)

		case err, ok := <-w.Errors:
			if !ok {
				return nil
			}
			log.Warn("watcher error", zap.Error(err))

		case <-timer.C:
			done(run(cfg))
		}
	}
}

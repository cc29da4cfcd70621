package config

import (
	"context"
	"path/filepath"
	"sync"

	"github.com/fsnotify/fsnotify"
	"github.com/pkg/errors"
	"go.viam.com/utils"

	"go.viam.com/dollygrip/logging"
)

// A Watcher re-reads a config file each time it changes on disk. Only the newest config is kept
// when the reader falls behind.
type Watcher struct {
	path    string
	logger  logging.Logger
	fs      *fsnotify.Watcher
	configs chan *Config

	cancelCtx               context.Context
	cancel                  context.CancelFunc
	activeBackgroundWorkers sync.WaitGroup
}

// NewWatcher starts watching path.
func NewWatcher(path string, logger logging.Logger) (*Watcher, error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return nil, err
	}
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, errors.Wrap(err, "creating config watcher")
	}
	// Editors commonly replace the file instead of writing it, so the directory is watched.
	if err := fsw.Add(filepath.Dir(abs)); err != nil {
		utils.UncheckedError(fsw.Close())
		return nil, errors.Wrapf(err, "watching %s", abs)
	}

	cancelCtx, cancel := context.WithCancel(context.Background())
	w := &Watcher{
		path:      abs,
		logger:    logger,
		fs:        fsw,
		configs:   make(chan *Config, 1),
		cancelCtx: cancelCtx,
		cancel:    cancel,
	}
	w.activeBackgroundWorkers.Add(1)
	utils.ManagedGo(w.watch, w.activeBackgroundWorkers.Done)
	return w, nil
}

// Config returns the channel new configs arrive on.
func (w *Watcher) Config() <-chan *Config {
	return w.configs
}

func (w *Watcher) watch() {
	for {
		select {
		case <-w.cancelCtx.Done():
			return
		case err, ok := <-w.fs.Errors:
			if !ok {
				return
			}
			w.logger.Warnw("config watcher error", "error", err)
		case event, ok := <-w.fs.Events:
			if !ok {
				return
			}
			if filepath.Clean(event.Name) != w.path || event.Op&(fsnotify.Write|fsnotify.Create) == 0 {
				continue
			}
			cfg, err := Read(w.path, w.logger)
			if err != nil {
				// Partial writes are common; the next event will have the full file.
				w.logger.Debugw("ignoring unreadable config", "path", w.path, "error", err)
				continue
			}
			select {
			case <-w.configs:
			default:
			}
			w.configs <- cfg
		}
	}
}

// Close stops watching.
func (w *Watcher) Close() error {
	w.cancel()
	err := w.fs.Close()
	w.activeBackgroundWorkers.Wait()
	return err
}

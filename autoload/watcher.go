package autoload

import (
	"fmt"
	"io"
	"log/slog"
	"path/filepath"
	"sync"

	"github.com/aegistudio/rely/core"
	"github.com/fsnotify/fsnotify"
)

// Watcher registers the files created in the directory of a
// pattern after the pattern has been loaded.
type Watcher struct {
	fsWatcher *fsnotify.Watcher
	registrar Registrar
	pattern   string
	logger    *slog.Logger

	// Events receives the names registered by the watcher.
	Events chan string

	// Errors receives watcher and registration errors.
	Errors chan error

	done      chan struct{}
	closeOnce sync.Once
	wg        sync.WaitGroup
}

// WatcherOption is the option for creating a watcher.
type WatcherOption func(*Watcher)

// WithWatcherLogger sets the logger of the watcher.
func WithWatcherLogger(logger *slog.Logger) WatcherOption {
	return func(w *Watcher) {
		w.logger = logger
	}
}

// NewWatcher watches the directory of pattern, relative to base
// unless absolute. Only the last path element of pattern may
// contain wildcards.
func NewWatcher(
	registrar Registrar, base, pattern string, opts ...WatcherOption,
) (*Watcher, error) {
	if !filepath.IsAbs(pattern) {
		pattern = filepath.Join(base, pattern)
	}
	if _, err := filepath.Match(pattern, ""); err != nil {
		return nil, fmt.Errorf("watch %q: %w", pattern, err)
	}
	fsWatcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("creating watcher: %w", err)
	}
	w := &Watcher{
		fsWatcher: fsWatcher,
		registrar: registrar,
		pattern:   pattern,
		logger:    slog.New(slog.NewTextHandler(io.Discard, nil)),
		Events:    make(chan string, 100),
		Errors:    make(chan error, 10),
		done:      make(chan struct{}),
	}
	for _, opt := range opts {
		opt(w)
	}
	if err := fsWatcher.Add(filepath.Dir(pattern)); err != nil {
		_ = fsWatcher.Close()
		return nil, fmt.Errorf("watching %s: %w", filepath.Dir(pattern), err)
	}
	w.wg.Add(1)
	go w.run()
	return w, nil
}

// Pattern returns the absolute pattern being watched.
func (w *Watcher) Pattern() string {
	return w.pattern
}

// Done is closed once the watcher is closed.
func (w *Watcher) Done() <-chan struct{} {
	return w.done
}

// Close stops the watcher and releases resources.
func (w *Watcher) Close() error {
	var err error
	w.closeOnce.Do(func() {
		close(w.done)
		err = w.fsWatcher.Close()
		w.wg.Wait()
	})
	return err
}

func (w *Watcher) run() {
	defer w.wg.Done()
	for {
		select {
		case <-w.done:
			return

		case event, ok := <-w.fsWatcher.Events:
			if !ok {
				return
			}
			// XXX: a file moved into the directory is reported as
			// a Create of the new name.
			if !event.Has(fsnotify.Create) {
				continue
			}
			w.handleEvent(event)

		case err, ok := <-w.fsWatcher.Errors:
			if !ok {
				return
			}
			w.report(err)
		}
	}
}

func (w *Watcher) handleEvent(event fsnotify.Event) {
	matched, err := filepath.Match(w.pattern, event.Name)
	if err != nil || !matched {
		return
	}
	name := NameOf(event.Name)
	if name == "" {
		return
	}
	if err := w.registrar.Set(name, core.FileEntry(event.Name)); err != nil {
		w.report(fmt.Errorf("register %s: %w", event.Name, err))
		return
	}
	w.logger.Debug("registered watched module", "name", name, "file", event.Name)
	select {
	case w.Events <- name:
	case <-w.done:
	}
}

// report forwards err unless the error channel is full.
func (w *Watcher) report(err error) {
	select {
	case w.Errors <- err:
	default:
		w.logger.Warn("dropped watcher error", "error", err)
	}
}

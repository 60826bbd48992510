// Package watch re-imports a diagram JSON file into an editing session
// whenever the file changes on disk.
package watch

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/rendis/flowdesk/internal/logging"
)

const defaultDebounce = 150 * time.Millisecond

// Importer applies raw diagram JSON; satisfied by editor.Editor.
type Importer interface {
	FlowID() string
	ImportJSON(ctx context.Context, raw string) error
}

// Options configures a FileWatcher.
type Options struct {
	Debounce time.Duration
	Logger   *slog.Logger
	// OnImport, if set, is called after every import attempt with its result.
	OnImport func(err error)
}

// FileWatcher watches one file. The parent directory is watched so that
// editors that save by rename are picked up too.
type FileWatcher struct {
	path     string
	importer Importer
	debounce time.Duration
	logger   *slog.Logger
	onImport func(error)

	mu    sync.Mutex
	timer *time.Timer
	last  string
}

// New returns a FileWatcher for path. The file does not need to exist yet.
func New(path string, importer Importer, opts Options) (*FileWatcher, error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return nil, err
	}
	if opts.Debounce <= 0 {
		opts.Debounce = defaultDebounce
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	return &FileWatcher{
		path:     abs,
		importer: importer,
		debounce: opts.Debounce,
		logger:   opts.Logger,
		onImport: opts.OnImport,
	}, nil
}

// Run imports the file once if it exists, then blocks re-importing it on
// every change until ctx is cancelled.
func (w *FileWatcher) Run(ctx context.Context) error {
	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	defer fw.Close()
	if err := fw.Add(filepath.Dir(w.path)); err != nil {
		return err
	}

	ctx = logging.WithFlowID(ctx, w.importer.FlowID())
	if _, err := os.Stat(w.path); err == nil {
		w.apply(ctx)
	}
	w.logger.InfoContext(ctx, "watching diagram file", slog.String("path", w.path))

	defer w.stopTimer()
	for {
		select {
		case <-ctx.Done():
			return nil
		case ev, ok := <-fw.Events:
			if !ok {
				return nil
			}
			if filepath.Clean(ev.Name) != w.path {
				continue
			}
			if ev.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename) == 0 {
				continue
			}
			w.schedule(ctx)
		case err, ok := <-fw.Errors:
			if !ok {
				return nil
			}
			w.logger.WarnContext(ctx, "watcher error", slog.String("error", err.Error()))
		}
	}
}

// schedule coalesces bursts of events into one import.
func (w *FileWatcher) schedule(ctx context.Context) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.timer != nil {
		w.timer.Reset(w.debounce)
		return
	}
	w.timer = time.AfterFunc(w.debounce, func() {
		w.mu.Lock()
		w.timer = nil
		w.mu.Unlock()
		if ctx.Err() == nil {
			w.apply(ctx)
		}
	})
}

func (w *FileWatcher) stopTimer() {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.timer != nil {
		w.timer.Stop()
		w.timer = nil
	}
}

// apply reads the file and hands it to the importer. Identical content is
// skipped so that touching the file does not produce an event.
func (w *FileWatcher) apply(ctx context.Context) {
	data, err := os.ReadFile(w.path)
	if errors.Is(err, os.ErrNotExist) {
		return
	}
	if err == nil {
		raw := string(data)
		w.mu.Lock()
		same := raw == w.last
		w.mu.Unlock()
		if same {
			return
		}
		err = w.importer.ImportJSON(ctx, raw)
		if err == nil {
			w.mu.Lock()
			w.last = raw
			w.mu.Unlock()
			w.logger.InfoContext(ctx, "diagram imported", slog.String("path", w.path))
		}
	}
	if err != nil {
		w.logger.WarnContext(ctx, "diagram import failed", slog.String("path", w.path), slog.String("error", err.Error()))
	}
	if w.onImport != nil {
		w.onImport(err)
	}
}

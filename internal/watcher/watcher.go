// Package watcher converts transfer listings dropped into a directory.
//
// Every *.txt file created or rewritten in the watched directory is handed to
// a callback once writes have settled. The CLI wires the callback to
// ops.ConvertFile so a sibling .tsv appears next to each listing.
package watcher

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/hpungsan/transferbot/pkg/logger"
)

// HandleFunc processes one settled .txt file.
type HandleFunc func(ctx context.Context, path string) error

// Watcher monitors a directory for .txt listings.
type Watcher struct {
	dir      string
	handle   HandleFunc
	log      *logger.Logger
	watcher  *fsnotify.Watcher
	ctx      context.Context
	cancel   context.CancelFunc
	mu       sync.Mutex
	running  bool
	debounce time.Duration
	pending  map[string]*time.Timer
	wg       sync.WaitGroup
}

// Option configures a Watcher.
type Option func(*Watcher)

// WithDebounce sets how long a file must be quiet before it is handled.
func WithDebounce(d time.Duration) Option {
	return func(w *Watcher) { w.debounce = d }
}

// WithLogger sets the logger.
func WithLogger(l *logger.Logger) Option {
	return func(w *Watcher) { w.log = l }
}

// New creates a Watcher for dir.
func New(dir string, handle HandleFunc, opts ...Option) (*Watcher, error) {
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}

	ctx, cancel := context.WithCancel(context.Background())
	w := &Watcher{
		dir:      filepath.Clean(dir),
		handle:   handle,
		log:      logger.NewNop(),
		watcher:  fsw,
		ctx:      ctx,
		cancel:   cancel,
		debounce: 100 * time.Millisecond,
		pending:  make(map[string]*time.Timer),
	}
	for _, opt := range opts {
		opt(w)
	}
	w.log = w.log.Named("watcher")
	return w, nil
}

// IsListing reports whether path names a file the watcher converts.
func IsListing(path string) bool {
	base := filepath.Base(path)
	if strings.HasPrefix(base, ".") {
		return false
	}
	return strings.EqualFold(filepath.Ext(base), ".txt")
}

// Start adds the watch, queues listings that have no up-to-date .tsv yet,
// and begins the event loop.
func (w *Watcher) Start() error {
	w.mu.Lock()
	if w.running {
		w.mu.Unlock()
		return nil
	}
	w.running = true
	w.mu.Unlock()

	if err := w.watcher.Add(w.dir); err != nil {
		w.mu.Lock()
		w.running = false
		w.mu.Unlock()
		return err
	}

	w.catchUp()

	go w.watchLoop()
	w.log.Info("Watching for listings", logger.String("dir", w.dir))
	return nil
}

// Stop stops the watcher and waits for in-flight conversions.
func (w *Watcher) Stop() error {
	w.mu.Lock()
	if !w.running {
		w.mu.Unlock()
		return nil
	}
	w.running = false
	w.cancel()
	for path, t := range w.pending {
		if t.Stop() {
			w.wg.Done()
		}
		delete(w.pending, path)
	}
	w.mu.Unlock()

	err := w.watcher.Close()
	w.wg.Wait()
	return err
}

// Run starts the watcher and blocks until ctx is done.
func (w *Watcher) Run(ctx context.Context) error {
	if err := w.Start(); err != nil {
		return err
	}
	<-ctx.Done()
	return w.Stop()
}

// catchUp queues listings whose .tsv is missing or older than the listing.
func (w *Watcher) catchUp() {
	entries, err := os.ReadDir(w.dir)
	if err != nil {
		w.log.Warn("Failed to scan directory", logger.String("dir", w.dir), logger.Error(err))
		return
	}
	for _, e := range entries {
		if e.IsDir() || !IsListing(e.Name()) {
			continue
		}
		path := filepath.Join(w.dir, e.Name())
		if upToDate(path) {
			continue
		}
		w.schedule(path)
	}
}

func upToDate(path string) bool {
	src, err := os.Stat(path)
	if err != nil {
		return false
	}
	dst, err := os.Stat(strings.TrimSuffix(path, filepath.Ext(path)) + ".tsv")
	if err != nil {
		return false
	}
	return !dst.ModTime().Before(src.ModTime())
}

// watchLoop is the main event loop.
func (w *Watcher) watchLoop() {
	for {
		select {
		case <-w.ctx.Done():
			return

		case event, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			if !IsListing(event.Name) {
				continue
			}
			if event.Op&(fsnotify.Create|fsnotify.Write) == 0 {
				continue
			}
			w.schedule(filepath.Clean(event.Name))

		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			w.log.Error("Watcher error", logger.Error(err))
		}
	}
}

// schedule (re)arms the debounce timer for path.
func (w *Watcher) schedule(path string) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if !w.running {
		return
	}

	if t, ok := w.pending[path]; ok {
		if t.Stop() {
			w.wg.Done()
		}
	}
	w.wg.Add(1)
	var timer *time.Timer
	timer = time.AfterFunc(w.debounce, func() {
		defer w.wg.Done()
		w.mu.Lock()
		if w.pending[path] == timer {
			delete(w.pending, path)
		}
		w.mu.Unlock()
		w.process(path)
	})
	w.pending[path] = timer
}

func (w *Watcher) process(path string) {
	if w.ctx.Err() != nil {
		return
	}
	start := time.Now()
	if err := w.handle(w.ctx, path); err != nil {
		w.log.Error("Failed to convert listing", logger.String("path", path), logger.Error(err))
		return
	}
	w.log.Info("Converted listing",
		logger.String("path", path),
		logger.Duration("took", time.Since(start)))
}

// Package watch turns filesystem events on persisted data files into change
// notifications, so a process reloads when another process rewrites the file.
package watch

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"go.uber.org/zap"

	"clientcore/pkg/domain"
)

const defaultDebounce = 150 * time.Millisecond

// Watcher watches one file by monitoring its parent directory. Atomic
// temp-file renames replace the inode, so watching the file itself would go
// stale after the first write.
type Watcher struct {
	mu        sync.Mutex
	watcher   *fsnotify.Watcher
	dir       string
	name      string
	onChange  func()
	debounce  time.Duration
	pending   bool
	lastEvent time.Time
	stopCh    chan struct{}
	doneCh    chan struct{}
	running   bool
	log       *zap.Logger
}

// Option configures a Watcher or FileNotifier.
type Option func(*options)

type options struct {
	debounce time.Duration
	log      *zap.Logger
}

// WithDebounce collapses bursts of events within d into one notification.
func WithDebounce(d time.Duration) Option {
	return func(o *options) {
		if d > 0 {
			o.debounce = d
		}
	}
}

// WithLogger sets the logger used for watcher diagnostics.
func WithLogger(l *zap.Logger) Option {
	return func(o *options) {
		if l != nil {
			o.log = l
		}
	}
}

func buildOptions(opts []Option) options {
	o := options{debounce: defaultDebounce, log: zap.NewNop()}
	for _, opt := range opts {
		opt(&o)
	}
	return o
}

// NewWatcher prepares a watcher for path. Call Start to begin delivering events.
func NewWatcher(path string, onChange func(), opts ...Option) (*Watcher, error) {
	if onChange == nil {
		return nil, fmt.Errorf("watch: nil callback")
	}
	o := buildOptions(opts)
	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	abs, err := filepath.Abs(path)
	if err != nil {
		_ = fw.Close()
		return nil, err
	}
	return &Watcher{
		watcher:  fw,
		dir:      filepath.Dir(abs),
		name:     filepath.Base(abs),
		onChange: onChange,
		debounce: o.debounce,
		stopCh:   make(chan struct{}),
		doneCh:   make(chan struct{}),
		log:      o.log.With(zap.String("file", abs)),
	}, nil
}

// Start begins watching. It does not block.
func (w *Watcher) Start(ctx context.Context) error {
	w.mu.Lock()
	if w.running {
		w.mu.Unlock()
		return nil
	}
	defer w.mu.Unlock()

	if err := os.MkdirAll(w.dir, 0o755); err != nil {
		return fmt.Errorf("watch: create dir %s: %w", w.dir, err)
	}
	if err := w.watcher.Add(w.dir); err != nil {
		return fmt.Errorf("watch: add %s: %w", w.dir, err)
	}
	// running is only set once run owns doneCh
	w.running = true
	w.log.Debug("watching directory", zap.String("dir", w.dir))
	go w.run(ctx)
	return nil
}

// Stop ends the event loop and releases the fsnotify handle. Safe to call twice.
func (w *Watcher) Stop() {
	w.mu.Lock()
	if !w.running {
		w.mu.Unlock()
		_ = w.watcher.Close()
		return
	}
	w.running = false
	w.mu.Unlock()

	close(w.stopCh)
	<-w.doneCh
	if err := w.watcher.Close(); err != nil {
		w.log.Warn("close watcher", zap.Error(err))
	}
}

func (w *Watcher) run(ctx context.Context) {
	defer close(w.doneCh)
	tick := w.debounce / 3
	if tick < 10*time.Millisecond {
		tick = 10 * time.Millisecond
	}
	ticker := time.NewTicker(tick)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-w.stopCh:
			return
		case event, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			w.handleEvent(event)
		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			w.log.Warn("watcher error", zap.Error(err))
		case <-ticker.C:
			w.flush()
		}
	}
}

func (w *Watcher) handleEvent(event fsnotify.Event) {
	if filepath.Base(event.Name) != w.name {
		return
	}
	if !event.Op.Has(fsnotify.Create) && !event.Op.Has(fsnotify.Write) && !event.Op.Has(fsnotify.Rename) {
		return
	}
	w.mu.Lock()
	w.pending = true
	w.lastEvent = time.Now()
	w.mu.Unlock()
}

func (w *Watcher) flush() {
	w.mu.Lock()
	if !w.pending || time.Since(w.lastEvent) < w.debounce {
		w.mu.Unlock()
		return
	}
	w.pending = false
	w.mu.Unlock()
	w.log.Debug("file changed")
	w.onChange()
}

// FileNotifier implements domain.ChangeNotifier for file-backed keys.
type FileNotifier struct {
	resolve func(key string) (string, error)
	opts    []Option
}

var _ domain.ChangeNotifier = (*FileNotifier)(nil)

// NewFileNotifier maps keys to file paths with resolve.
func NewFileNotifier(resolve func(key string) (string, error), opts ...Option) *FileNotifier {
	return &FileNotifier{resolve: resolve, opts: opts}
}

// Subscribe starts a watcher on the file backing key. The returned cancel
// stops it and is idempotent.
func (n *FileNotifier) Subscribe(key string, fn func()) (func(), error) {
	path, err := n.resolve(key)
	if err != nil {
		return nil, err
	}
	w, err := NewWatcher(path, fn, n.opts...)
	if err != nil {
		return nil, err
	}
	if err := w.Start(context.Background()); err != nil {
		w.Stop()
		return nil, err
	}
	var once sync.Once
	return func() { once.Do(w.Stop) }, nil
}

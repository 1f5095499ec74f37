package watcher

import (
	"context"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"sync"

	"github.com/fsnotify/fsnotify"

	nherrors "github.com/Aman-CERP/notehunt/internal/errors"
	"github.com/Aman-CERP/notehunt/internal/fingerprint"
	"github.com/Aman-CERP/notehunt/internal/model"
	"github.com/Aman-CERP/notehunt/internal/scanner"
)

// Watcher reports changes under a root directory.
// Create it with New and drive it with Run.
type Watcher struct {
	root     string
	opts     Options
	filter   scanner.ExtensionFilter
	fps      *fingerprint.Cache
	skipDirs []string

	fsWatcher *fsnotify.Watcher
	events    chan model.ChangeNotification
	ready     chan struct{}

	// dirs holds every directory with a registered watch. Only Run's
	// goroutine touches it.
	dirs map[string]struct{}

	mu      sync.Mutex
	running bool
}

// New creates a watcher for root. It fails if root is not a directory or
// the OS notification source cannot be opened.
func New(root string, opts Options) (*Watcher, error) {
	if err := opts.Validate(); err != nil {
		return nil, nherrors.ValidationError("invalid watcher options", err)
	}
	opts = opts.WithDefaults()

	absRoot, err := scanner.ValidateRoot(root)
	if err != nil {
		return nil, err
	}

	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, nherrors.New(nherrors.ErrCodeWatchFailed, "cannot open filesystem notifications", err)
	}

	skip := make([]string, 0, len(opts.SkipDirs))
	for _, dir := range opts.SkipDirs {
		if dir != "" {
			skip = append(skip, fingerprint.Canonical(dir))
		}
	}

	return &Watcher{
		root:      absRoot,
		opts:      opts,
		filter:    scanner.NewExtensionFilter(opts.Extensions),
		fps:       fingerprint.NewCache(opts.FingerprintCacheSize),
		skipDirs:  skip,
		fsWatcher: fsw,
		events:    make(chan model.ChangeNotification, opts.EventBufferSize),
		ready:     make(chan struct{}),
		dirs:      make(map[string]struct{}),
	}, nil
}

// Events returns the notification stream. It is closed when Run returns.
func (w *Watcher) Events() <-chan model.ChangeNotification {
	return w.events
}

// Ready is closed once the initial watches are registered.
func (w *Watcher) Ready() <-chan struct{} {
	return w.ready
}

// Root returns the absolute watched root.
func (w *Watcher) Root() string {
	return w.root
}

// Run registers the watches and forwards notifications until ctx is
// cancelled, in which case it returns ctx.Err(). A failure of the
// notification source is returned as a fatal ErrCodeWatchFailed error and
// is not retried. Run may be called once.
func (w *Watcher) Run(ctx context.Context) error {
	w.mu.Lock()
	if w.running {
		w.mu.Unlock()
		return fmt.Errorf("watcher already started")
	}
	w.running = true
	w.mu.Unlock()

	defer close(w.events)
	defer func() { _ = w.fsWatcher.Close() }()

	if err := w.addRecursive(w.root); err != nil {
		return nherrors.New(nherrors.ErrCodeWatchFailed,
			fmt.Sprintf("cannot watch %s", w.root), err)
	}
	close(w.ready)
	slog.Info("watch_started", slog.String("root", w.root))

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case event, ok := <-w.fsWatcher.Events:
			if !ok {
				return nherrors.New(nherrors.ErrCodeWatchFailed, "notification source closed", nil)
			}
			if err := w.handle(ctx, event); err != nil {
				return err
			}
		case err, ok := <-w.fsWatcher.Errors:
			if !ok {
				return nherrors.New(nherrors.ErrCodeWatchFailed, "notification source closed", nil)
			}
			return nherrors.New(nherrors.ErrCodeWatchFailed, "notification source failed", err)
		}
	}
}

// handle maps one raw notification. It returns an error only when ctx ends
// while a notification is waiting for buffer space.
func (w *Watcher) handle(ctx context.Context, event fsnotify.Event) error {
	path := event.Name
	if scanner.IsWithin(path, w.skipDirs) {
		return nil
	}

	switch {
	case event.Has(fsnotify.Create):
		info, err := os.Stat(path)
		if err == nil && info.IsDir() {
			return w.watchNewDir(ctx, path)
		}
		return w.emit(ctx, path, model.ChangeCreated)
	case event.Has(fsnotify.Write):
		return w.emit(ctx, path, model.ChangeModified)
	case event.Has(fsnotify.Remove), event.Has(fsnotify.Rename):
		if w.forgetDir(path) {
			return w.send(ctx, model.ChangeNotification{
				Fingerprint: w.fps.Of(path),
				Path:        fingerprint.Canonical(path),
				Kind:        model.ChangeDirDeleted,
			})
		}
		return w.emit(ctx, path, model.ChangeDeleted)
	default:
		// chmod
		return nil
	}
}

// watchNewDir adds watches under a freshly created directory and reports the
// files already inside it, which may have landed before the watch existed.
func (w *Watcher) watchNewDir(ctx context.Context, dir string) error {
	if err := w.addRecursive(dir); err != nil {
		slog.Warn("watch_add_failed",
			slog.String("path", dir),
			slog.String("error", err.Error()))
	}

	return filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return nil
		}
		if d.IsDir() {
			if scanner.IsWithin(path, w.skipDirs) {
				return fs.SkipDir
			}
			return nil
		}
		return w.emit(ctx, path, model.ChangeCreated)
	})
}

func (w *Watcher) emit(ctx context.Context, path string, kind model.ChangeKind) error {
	if !w.filter.Allows(path) {
		return nil
	}
	return w.send(ctx, model.ChangeNotification{
		Fingerprint: w.fps.Of(path),
		Path:        fingerprint.Canonical(path),
		Kind:        kind,
	})
}

func (w *Watcher) send(ctx context.Context, n model.ChangeNotification) error {
	slog.Debug("watch_event", slog.String("kind", n.Kind.String()), slog.String("path", n.Path))

	select {
	case w.events <- n:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// addRecursive adds every directory under root to the fsnotify watcher.
// Unreadable subdirectories are skipped; failing to watch root itself is an
// error.
func (w *Watcher) addRecursive(root string) error {
	return filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			if path == root {
				return err
			}
			return nil
		}
		if !d.IsDir() {
			return nil
		}
		if path != w.root && scanner.IsWithin(path, w.skipDirs) {
			return filepath.SkipDir
		}
		if addErr := w.fsWatcher.Add(path); addErr != nil {
			if path == root {
				return addErr
			}
			slog.Warn("watch_add_failed",
				slog.String("path", path),
				slog.String("error", addErr.Error()))
			return nil
		}
		w.dirs[fingerprint.Canonical(path)] = struct{}{}
		return nil
	})
}

// forgetDir drops the watches on dir and everything below it. It reports
// false when dir was never a watched directory.
func (w *Watcher) forgetDir(dir string) bool {
	dir = fingerprint.Canonical(dir)
	if _, ok := w.dirs[dir]; !ok || dir == w.root {
		return false
	}
	for watched := range w.dirs {
		if scanner.IsWithin(watched, []string{dir}) {
			delete(w.dirs, watched)
			// The kernel may already have dropped it.
			_ = w.fsWatcher.Remove(watched)
		}
	}
	return true
}

// Package engine assembles the reconciliation pipeline for one root.
//
// An Engine owns the data directory lock, the file state table, the search
// index and the dispatcher that serializes every table write. Commands drive
// it through Crawl, Index, Reindex, Purge, Status, Search and Watch.
package engine

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/Aman-CERP/notehunt/internal/bus"
	"github.com/Aman-CERP/notehunt/internal/config"
	nherrors "github.com/Aman-CERP/notehunt/internal/errors"
	"github.com/Aman-CERP/notehunt/internal/events"
	"github.com/Aman-CERP/notehunt/internal/filestate"
	"github.com/Aman-CERP/notehunt/internal/fingerprint"
	"github.com/Aman-CERP/notehunt/internal/indexer"
	"github.com/Aman-CERP/notehunt/internal/lock"
	"github.com/Aman-CERP/notehunt/internal/model"
	"github.com/Aman-CERP/notehunt/internal/scanner"
	"github.com/Aman-CERP/notehunt/internal/searchindex"
	"github.com/Aman-CERP/notehunt/internal/watcher"
)

// Mode selects how an Engine treats the data directory lock.
type Mode int

const (
	// ReadWrite requires exclusive ownership of the data directory.
	ReadWrite Mode = iota

	// ReadOnly works alongside a running owner. Reads of the state table
	// always succeed; an exclusive Bleve index is skipped while owned.
	ReadOnly
)

// DefaultSearchLimit is used when Search is given a non-positive limit.
const DefaultSearchLimit = 10

// Engine is one open notehunt pipeline.
type Engine struct {
	cfg  *config.Config
	mode Mode

	lock       *lock.DirLock
	table      *filestate.Table
	index      searchindex.Index
	dispatcher *bus.Dispatcher
	scanner    *scanner.Scanner
	indexer    *indexer.Indexer

	// shared is set when a read-only engine found another owner.
	shared bool

	closeOnce sync.Once
	closeErr  error
}

// CrawlResult describes one crawl and reconcile pass.
type CrawlResult struct {
	Root     string
	Observed int
	Merged   int64
	Deleted  int64
	Duration time.Duration

	// Unvisited lists directories that could not be read. Records under
	// them were left as they were.
	Unvisited []string
}

// Status is a snapshot of the state table and the index.
type Status struct {
	Root      string
	DataDir   string
	Backend   searchindex.Backend
	IndexPath string

	Counts  map[model.FileStatus]int64
	Tracked int64

	IndexedDocuments int
	IndexSize        int64

	// IndexUnavailable is set when another process owns a Bleve index.
	IndexUnavailable bool
}

// Open assembles an Engine from cfg and starts its dispatcher. The caller
// must Close it.
func Open(ctx context.Context, cfg *config.Config, mode Mode) (*Engine, error) {
	if err := os.MkdirAll(cfg.DataDir, 0o755); err != nil {
		return nil, nherrors.New(nherrors.ErrCodeStateUnavailable,
			fmt.Sprintf("cannot create data directory %s", cfg.DataDir), err)
	}

	e := &Engine{cfg: cfg, mode: mode, lock: lock.New(cfg.DataDir)}

	acquired, err := e.lock.TryLock()
	if err != nil {
		return nil, err
	}
	if !acquired {
		if mode == ReadWrite {
			return nil, e.lock.Acquire()
		}
		e.shared = true
	}

	if err := e.open(ctx); err != nil {
		_ = e.Close()
		return nil, err
	}
	return e, nil
}

func (e *Engine) open(ctx context.Context) error {
	table, err := filestate.Open(e.cfg.StatePath())
	if err != nil {
		return err
	}
	e.table = table

	backend := e.cfg.Backend()
	if e.shared && backend == searchindex.BackendBleve {
		slog.Debug("index_skipped", slog.String("reason", "owned by another process"))
	} else {
		index, err := searchindex.Open(e.cfg.IndexBasePath(), backend)
		if err != nil {
			return err
		}
		e.index = index
	}

	e.dispatcher = bus.New(bus.Options{QueueSize: e.cfg.Pipeline.QueueSize})
	filestate.Subscribe(e.dispatcher, e.table, scanner.Observe)
	e.dispatcher.Start(ctx)

	if e.index != nil && e.index.Fresh() && !e.shared {
		n, err := events.Requeue(ctx, e.dispatcher, nil, true, e.cfg.BridgeTimeout())
		if err != nil {
			return err
		}
		slog.Info("index_recreated_requeued",
			slog.String("path", e.indexLocation()),
			slog.Int64("requeued", n))
	}

	e.scanner = scanner.New(scanner.Options{
		Extensions: e.cfg.Extensions,
		SkipDirs:   e.skipDirs(),
	})

	if e.index != nil {
		ix, err := indexer.New(indexer.Config{
			BatchSize:     e.cfg.Index.BatchSize,
			BridgeTimeout: e.cfg.BridgeTimeout(),
		}, indexer.Dependencies{
			Publisher: e.dispatcher,
			Index:     e.index,
		})
		if err != nil {
			return nherrors.InternalError("cannot create indexer", err)
		}
		e.indexer = ix
	}

	slog.Debug("engine_opened",
		slog.String("root", e.cfg.Root),
		slog.String("data_dir", e.cfg.DataDir),
		slog.String("backend", string(backend)),
		slog.Bool("shared", e.shared))
	return nil
}

// skipDirs keeps notehunt's own files out of the crawl when they live under
// the root.
func (e *Engine) skipDirs() []string {
	return []string{e.cfg.DataDir, e.indexLocation()}
}

func (e *Engine) indexLocation() string {
	return searchindex.Location(e.cfg.IndexBasePath(), e.cfg.Backend())
}

// Close stops the dispatcher after draining it, then closes the table and
// the index and releases the lock. It is safe to call more than once.
func (e *Engine) Close() error {
	e.closeOnce.Do(func() {
		var errs []error
		if e.dispatcher != nil {
			e.dispatcher.Stop()
			stats := e.dispatcher.Stats()
			slog.Debug("dispatcher_stopped",
				slog.Uint64("published", stats.Published),
				slog.Uint64("delivered", stats.Delivered),
				slog.Uint64("failed", stats.Failed))
		}
		if e.table != nil {
			errs = append(errs, e.table.Close())
		}
		if e.index != nil {
			errs = append(errs, e.index.Close())
		}
		errs = append(errs, e.lock.Release())
		e.closeErr = errors.Join(errs...)
	})
	return e.closeErr
}

// Crawl walks the root and reconciles the table against it. When the root
// itself cannot be walked the table is left untouched and the error carries
// ErrCodeCrawlIncomplete.
func (e *Engine) Crawl(ctx context.Context) (CrawlResult, error) {
	if err := e.requireWrite("crawl"); err != nil {
		return CrawlResult{}, err
	}

	start := time.Now()
	res := CrawlResult{Root: e.cfg.Root}

	tree, err := e.scanner.Crawl(ctx, e.cfg.Root)
	if err != nil {
		return res, err
	}
	res.Observed = len(tree.Observations)
	res.Unvisited = tree.Unvisited
	for _, dir := range tree.Unvisited {
		slog.Warn("crawl_dir_unvisited", slog.String("path", dir))
	}

	reply, err := events.ReportCrawl(ctx, e.dispatcher, events.TreeCrawled{
		Root:         e.cfg.Root,
		Observations: tree.Observations,
		Unvisited:    tree.Unvisited,
	}, e.cfg.BridgeTimeout())
	if err != nil {
		return res, err
	}
	res.Merged = reply.Merged
	res.Deleted = reply.Deleted
	res.Duration = time.Since(start)
	return res, nil
}

// Index runs one indexing pass over the Pending records.
func (e *Engine) Index(ctx context.Context) (indexer.Result, error) {
	if err := e.requireWrite("index"); err != nil {
		return indexer.Result{}, err
	}
	return e.indexer.IndexFilesFromStore(ctx)
}

// Reindex moves records back to Pending: every Complete and Error record
// when all is set, otherwise the records for paths. It returns the number of
// records changed.
func (e *Engine) Reindex(ctx context.Context, paths []string, all bool) (int64, error) {
	if err := e.requireWrite("reindex"); err != nil {
		return 0, err
	}
	if !all && len(paths) == 0 {
		return 0, nherrors.ValidationError("no paths given", nil).
			WithSuggestion("Pass one or more paths, or --all")
	}
	fps := make([]fingerprint.Fingerprint, 0, len(paths))
	for _, p := range paths {
		fps = append(fps, fingerprint.Of(p))
	}
	return events.Requeue(ctx, e.dispatcher, fps, all, e.cfg.BridgeTimeout())
}

// Purge removes Deleted records and returns how many were removed.
func (e *Engine) Purge(ctx context.Context) (int64, error) {
	if err := e.requireWrite("purge"); err != nil {
		return 0, err
	}
	return events.Purge(ctx, e.dispatcher, e.cfg.BridgeTimeout())
}

// Status reads the table counts and the index size. It reads the table
// directly and never waits on the dispatcher.
func (e *Engine) Status(ctx context.Context) (Status, error) {
	st := Status{
		Root:      e.cfg.Root,
		DataDir:   e.cfg.DataDir,
		Backend:   e.cfg.Backend(),
		IndexPath: e.indexLocation(),
	}

	counts, err := e.table.Counts(ctx)
	if err != nil {
		return st, err
	}
	st.Counts = counts
	for _, n := range counts {
		st.Tracked += n
	}

	if e.index == nil {
		st.IndexUnavailable = true
		return st, nil
	}
	docs, err := e.index.Count()
	if err != nil {
		return st, nherrors.New(nherrors.ErrCodeIndexUnavailable, "cannot count indexed documents", err)
	}
	st.IndexedDocuments = docs
	st.IndexSize = diskSize(st.IndexPath)
	return st, nil
}

// Search queries the index. A blank query is rejected.
func (e *Engine) Search(ctx context.Context, query string, limit int) ([]searchindex.Hit, error) {
	if strings.TrimSpace(query) == "" {
		return nil, nherrors.New(nherrors.ErrCodeQueryEmpty, "search query is empty", nil).
			WithSuggestion("Pass one or more words to search for")
	}
	if e.index == nil {
		return nil, indexUnavailable()
	}
	if limit <= 0 {
		limit = DefaultSearchLimit
	}
	hits, err := e.index.Search(ctx, query, limit)
	if err != nil {
		return nil, nherrors.New(nherrors.ErrCodeSearchFailed, "search failed", err)
	}
	return hits, nil
}

// Watch keeps the table and the index in step with the root until ctx ends.
// Watches are registered first, then the root is crawled once, then the
// Pending records are indexed immediately and every index interval. Watch
// returns nil when ctx is cancelled and the first failure otherwise.
func (e *Engine) Watch(ctx context.Context) error {
	if err := e.requireWrite("watch"); err != nil {
		return err
	}

	w, err := watcher.New(e.cfg.Root, watcher.Options{
		Extensions:      e.cfg.Extensions,
		SkipDirs:        e.skipDirs(),
		EventBufferSize: e.cfg.Watch.EventsBuffer,
	})
	if err != nil {
		return err
	}

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		return w.Run(gctx)
	})

	g.Go(func() error {
		for n := range w.Events() {
			if err := e.dispatcher.Publish(gctx, events.FileChanged{Change: n}); err != nil {
				if gctx.Err() != nil {
					return nil
				}
				return err
			}
		}
		return nil
	})

	g.Go(func() error {
		select {
		case <-w.Ready():
		case <-gctx.Done():
			return nil
		}

		res, err := e.Crawl(gctx)
		switch {
		case err == nil:
			slog.Info("initial_crawl_finished",
				slog.Int("observed", res.Observed),
				slog.Int("unvisited", len(res.Unvisited)),
				slog.Int64("merged", res.Merged),
				slog.Int64("deleted", res.Deleted))
		case gctx.Err() != nil:
			return nil
		case nherrors.IsRetryable(err):
			slog.Warn("initial_crawl_incomplete", slog.String("error", err.Error()))
		default:
			return err
		}

		return e.indexLoop(gctx)
	})

	err = g.Wait()
	if ctx.Err() != nil && errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}

// indexLoop indexes now and then once per interval. A failed run is logged
// and retried on the next tick.
func (e *Engine) indexLoop(ctx context.Context) error {
	ticker := time.NewTicker(e.cfg.IndexInterval())
	defer ticker.Stop()

	for {
		if _, err := e.indexer.IndexFilesFromStore(ctx); err != nil {
			if ctx.Err() != nil {
				return nil
			}
			slog.Warn("index_run_failed", slog.String("error", err.Error()))
		}

		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
		}
	}
}

func (e *Engine) requireWrite(op string) error {
	if e.mode == ReadOnly || e.indexer == nil {
		return nherrors.InternalError(fmt.Sprintf("%s needs a read-write engine", op), nil)
	}
	return nil
}

func indexUnavailable() error {
	return nherrors.New(nherrors.ErrCodeIndexUnavailable,
		"the Bleve index is in use by another notehunt process", nil).
		WithSuggestion("Stop the running process, or set index.backend to sqlite to read while it runs")
}

// diskSize returns the size of a file, or the total size of a directory.
func diskSize(path string) int64 {
	var total int64
	_ = filepath.WalkDir(path, func(_ string, d fs.DirEntry, err error) error {
		if err != nil || d.IsDir() {
			return nil
		}
		if info, err := d.Info(); err == nil {
			total += info.Size()
		}
		return nil
	})
	return total
}

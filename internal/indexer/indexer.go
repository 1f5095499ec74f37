// Package indexer moves Pending files into the search index.
//
// A run asks the file state store for its Pending records over the
// dispatcher, reads each file, adds it to the index and reports the
// successful ones back in batches. A file that cannot be read or indexed is
// logged and left Pending for the next run.
package indexer

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/google/uuid"

	"github.com/Aman-CERP/notehunt/internal/events"
	"github.com/Aman-CERP/notehunt/internal/fingerprint"
	"github.com/Aman-CERP/notehunt/internal/model"
	"github.com/Aman-CERP/notehunt/internal/searchindex"
)

// DefaultBatchSize is the number of files reported per completion event.
const DefaultBatchSize = 50

// Config configures an Indexer.
type Config struct {
	// BatchSize is the number of records per completion event.
	// Default: 50
	BatchSize int

	// BridgeTimeout bounds the wait for the Pending list.
	// Default: events.DefaultTimeout
	BridgeTimeout time.Duration
}

// Dependencies are the collaborators an Indexer needs.
type Dependencies struct {
	// Publisher carries the Pending request and completion events (required).
	Publisher events.Publisher

	// Index receives document contents (required).
	Index searchindex.Index

	// ReadFile loads file contents. Defaults to os.ReadFile.
	ReadFile func(path string) ([]byte, error)
}

// Result describes one indexing run.
type Result struct {
	RunID    uuid.UUID     `json:"run_id"`
	Pending  int           `json:"pending"`
	Indexed  int           `json:"indexed"`
	Failed   int           `json:"failed"`
	Batches  int           `json:"batches"`
	Duration time.Duration `json:"duration"`
}

// Indexer runs indexing passes over the Pending records.
type Indexer struct {
	batchSize     int
	bridgeTimeout time.Duration
	publisher     events.Publisher
	index         searchindex.Index
	readFile      func(path string) ([]byte, error)
}

// New creates an Indexer.
func New(cfg Config, deps Dependencies) (*Indexer, error) {
	if deps.Publisher == nil {
		return nil, fmt.Errorf("publisher is required")
	}
	if deps.Index == nil {
		return nil, fmt.Errorf("search index is required")
	}
	if cfg.BatchSize < 0 {
		return nil, fmt.Errorf("batch size must be positive, got %d", cfg.BatchSize)
	}

	batchSize := cfg.BatchSize
	if batchSize == 0 {
		batchSize = DefaultBatchSize
	}
	timeout := cfg.BridgeTimeout
	if timeout <= 0 {
		timeout = events.DefaultTimeout
	}
	readFile := deps.ReadFile
	if readFile == nil {
		readFile = os.ReadFile
	}

	return &Indexer{
		batchSize:     batchSize,
		bridgeTimeout: timeout,
		publisher:     deps.Publisher,
		index:         deps.Index,
		readFile:      readFile,
	}, nil
}

// IndexFilesFromStore runs one pass. It fetches the Pending list once, then
// indexes it in batches, publishing one FilesCompleted per batch that had at
// least one success. Failing to fetch the list aborts the run.
//
// If ctx ends mid-run, the files already indexed in the current batch are
// still reported and ctx.Err() is returned with the partial result.
func (ix *Indexer) IndexFilesFromStore(ctx context.Context) (Result, error) {
	start := time.Now()
	res := Result{RunID: uuid.New()}
	logger := slog.With(slog.String("run_id", res.RunID.String()))

	pending, err := events.RequestPendingFiles(ctx, ix.publisher, ix.bridgeTimeout)
	if err != nil {
		return res, fmt.Errorf("fetch pending files: %w", err)
	}
	res.Pending = len(pending)
	logger.Info("index_run_started", slog.Int("pending", res.Pending), slog.Int("batch_size", ix.batchSize))

	for begin := 0; begin < len(pending); begin += ix.batchSize {
		end := min(begin+ix.batchSize, len(pending))
		completed, runErr := ix.indexBatch(ctx, logger, pending[begin:end], &res)

		if len(completed) > 0 {
			if err := ix.publishCompleted(ctx, completed); err != nil {
				res.Duration = time.Since(start)
				return res, fmt.Errorf("report completed files: %w", err)
			}
			res.Batches++
		}
		if runErr != nil {
			res.Duration = time.Since(start)
			return res, runErr
		}
	}

	res.Duration = time.Since(start)
	logger.Info("index_run_finished",
		slog.Int("indexed", res.Indexed),
		slog.Int("failed", res.Failed),
		slog.Int("batches", res.Batches),
		slog.Duration("duration", res.Duration))
	return res, nil
}

// indexBatch indexes records and returns the fingerprints that succeeded.
// The error is non-nil only when ctx ended.
func (ix *Indexer) indexBatch(ctx context.Context, logger *slog.Logger, records []model.FileStateRecord, res *Result) ([]fingerprint.Fingerprint, error) {
	completed := make([]fingerprint.Fingerprint, 0, len(records))
	for _, rec := range records {
		if err := ctx.Err(); err != nil {
			return completed, err
		}

		content, err := ix.readFile(rec.Path)
		if err != nil {
			res.Failed++
			logger.Warn("index_read_failed",
				slog.String("path", rec.Path),
				slog.String("error", err.Error()))
			continue
		}
		if err := ix.index.AddDocument(ctx, rec.Path, string(content)); err != nil {
			res.Failed++
			logger.Warn("index_add_failed",
				slog.String("path", rec.Path),
				slog.String("error", err.Error()))
			continue
		}

		res.Indexed++
		completed = append(completed, rec.Fingerprint)
	}
	return completed, nil
}

// publishCompleted reports a batch. It detaches from ctx cancellation so
// work already in the index is recorded, bounded by the bridge timeout.
func (ix *Indexer) publishCompleted(ctx context.Context, fps []fingerprint.Fingerprint) error {
	pubCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), ix.bridgeTimeout)
	defer cancel()
	return ix.publisher.Publish(pubCtx, events.FilesCompleted{Fingerprints: fps})
}

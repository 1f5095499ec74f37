package filestate

import (
	"context"
	"log/slog"

	"github.com/Aman-CERP/notehunt/internal/bus"
	"github.com/Aman-CERP/notehunt/internal/events"
)

// Subscribe registers the table's handlers on d. From then on every write to
// the table happens on the dispatcher goroutine.
func Subscribe(d *bus.Dispatcher, t *Table, observe Observer) {
	bus.Subscribe(d, "filestate.tree_crawled", func(ctx context.Context, ev events.TreeCrawled) error {
		res, err := t.Reconcile(ctx, ev.Observations, ev.Unvisited)
		if ev.Reply != nil {
			select {
			case ev.Reply <- events.CrawlReply{Merged: res.Merged, Deleted: res.Deleted, Err: err}:
			default:
			}
		}
		if err != nil {
			return err
		}
		slog.Info("crawl_reconciled",
			slog.String("root", ev.Root),
			slog.Int("observed", len(ev.Observations)),
			slog.Int("unvisited", len(ev.Unvisited)),
			slog.Int64("merged", res.Merged),
			slog.Int64("deleted", res.Deleted))
		return nil
	})

	bus.Subscribe(d, "filestate.file_changed", func(ctx context.Context, ev events.FileChanged) error {
		n, err := t.ApplyChange(ctx, ev.Change, observe)
		if err != nil {
			return err
		}
		slog.Debug("change_applied",
			slog.String("change", ev.Change.String()),
			slog.Int64("rows", n))
		return nil
	})

	bus.Subscribe(d, "filestate.files_completed", func(ctx context.Context, ev events.FilesCompleted) error {
		n, err := t.MarkComplete(ctx, ev.Fingerprints...)
		if err != nil {
			return err
		}
		if stale := int64(len(ev.Fingerprints)) - n; stale > 0 {
			slog.Debug("completion_ignored", slog.Int64("stale", stale))
		}
		return nil
	})

	bus.Subscribe(d, "filestate.pending_files", func(ctx context.Context, req events.PendingFilesRequest) error {
		records, err := t.ListPending(ctx)
		if req.Reply != nil {
			select {
			case req.Reply <- events.PendingFilesReply{Records: records, Err: err}:
			default:
			}
		}
		return err
	})

	bus.Subscribe(d, "filestate.files_requeued", func(ctx context.Context, req events.FilesRequeued) error {
		var n int64
		var err error
		if req.All {
			n, err = t.RequeueAll(ctx)
		} else {
			n, err = t.MarkPending(ctx, req.Fingerprints...)
		}
		reply(req.Reply, n, err)
		return err
	})

	bus.Subscribe(d, "filestate.purge", func(ctx context.Context, req events.PurgeRequest) error {
		n, err := t.PurgeDeleted(ctx)
		reply(req.Reply, n, err)
		return err
	})
}

// reply sends without blocking; a nil channel means nobody is waiting.
func reply(ch chan events.CountReply, n int64, err error) {
	if ch == nil {
		return
	}
	select {
	case ch <- events.CountReply{Count: n, Err: err}:
	default:
	}
}

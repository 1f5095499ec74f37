package events

import (
	"context"
	"time"

	nherrors "github.com/Aman-CERP/notehunt/internal/errors"
	"github.com/Aman-CERP/notehunt/internal/fingerprint"
	"github.com/Aman-CERP/notehunt/internal/model"
)

// DefaultTimeout bounds a request/reply round trip when no timeout is given.
const DefaultTimeout = 30 * time.Second

// ErrBridgeTimeout matches, via errors.Is, every error returned when a reply
// does not arrive in time.
var ErrBridgeTimeout = nherrors.New(nherrors.ErrCodeBridgeTimeout, "no reply from file state store", nil)

// Publisher is the part of the dispatcher the request helpers need.
type Publisher interface {
	Publish(ctx context.Context, event any) error
}

// RequestPendingFiles asks the store for its Pending records and waits for
// the answer. It returns ctx.Err() when ctx ends first and an
// ErrBridgeTimeout error when timeout elapses first. A store read failure is
// returned as is.
//
// It must not be called from a dispatcher handler: the reply is produced by
// the same goroutine that would be waiting for it.
func RequestPendingFiles(ctx context.Context, p Publisher, timeout time.Duration) ([]model.FileStateRecord, error) {
	req := NewPendingFilesRequest()
	reply, err := roundTrip[PendingFilesReply](ctx, p, req, req.Reply, timeout)
	if err != nil {
		return nil, err
	}
	if reply.Err != nil {
		return nil, reply.Err
	}
	return reply.Records, nil
}

// ReportCrawl hands a finished crawl to the store and waits until it has
// been reconciled. Any Reply set on ev is replaced. It returns the rows
// merged and the rows marked Deleted.
func ReportCrawl(ctx context.Context, p Publisher, ev TreeCrawled, timeout time.Duration) (CrawlReply, error) {
	ev.Reply = make(chan CrawlReply, 1)
	reply, err := roundTrip[CrawlReply](ctx, p, ev, ev.Reply, timeout)
	if err != nil {
		return CrawlReply{}, err
	}
	return reply, reply.Err
}

// Requeue moves the given records, or every Complete and Error record when
// all is set, back to Pending. It returns the number of rows changed.
func Requeue(ctx context.Context, p Publisher, fps []fingerprint.Fingerprint, all bool, timeout time.Duration) (int64, error) {
	req := FilesRequeued{Fingerprints: fps, All: all, Reply: newCountReply()}
	reply, err := roundTrip[CountReply](ctx, p, req, req.Reply, timeout)
	if err != nil {
		return 0, err
	}
	return reply.Count, reply.Err
}

// Purge removes Deleted records and returns how many were removed.
func Purge(ctx context.Context, p Publisher, timeout time.Duration) (int64, error) {
	req := PurgeRequest{Reply: newCountReply()}
	reply, err := roundTrip[CountReply](ctx, p, req, req.Reply, timeout)
	if err != nil {
		return 0, err
	}
	return reply.Count, reply.Err
}

func roundTrip[R any](ctx context.Context, p Publisher, req any, replies <-chan R, timeout time.Duration) (R, error) {
	var zero R
	if timeout <= 0 {
		timeout = DefaultTimeout
	}

	timer := time.NewTimer(timeout)
	defer timer.Stop()

	// Publish shares the deadline so a full queue cannot outlast it.
	pubCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	if err := p.Publish(pubCtx, req); err != nil {
		if ctx.Err() != nil {
			return zero, ctx.Err()
		}
		if pubCtx.Err() != nil {
			return zero, timeoutError(timeout, err)
		}
		return zero, err
	}

	select {
	case reply := <-replies:
		return reply, nil
	case <-ctx.Done():
		return zero, ctx.Err()
	case <-timer.C:
		return zero, timeoutError(timeout, nil)
	}
}

func timeoutError(timeout time.Duration, cause error) error {
	return nherrors.New(nherrors.ErrCodeBridgeTimeout, "no reply from file state store", cause).
		WithDetail("timeout", timeout.String()).
		WithSuggestion("Make sure no other notehunt process is stalling the state store")
}

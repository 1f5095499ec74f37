// Package events defines the messages carried by the dispatcher and the
// request/reply helpers built on them.
//
// Every state mutation travels as one of these events, so the file state
// table is only ever written from the dispatcher goroutine. Requests that
// need an answer carry a reply channel with capacity 1; the handler always
// sends exactly one reply and never blocks, even if the requester has gone.
package events

import (
	"github.com/Aman-CERP/notehunt/internal/fingerprint"
	"github.com/Aman-CERP/notehunt/internal/model"
)

// TreeCrawled carries the full result of one crawl of Root.
// The store merges every observation and then marks rows absent from the
// crawl as Deleted, except rows under an Unvisited directory. Reply, when
// non-nil, receives the outcome.
type TreeCrawled struct {
	Root         string
	Observations []model.Observation
	Unvisited    []string
	Reply        chan CrawlReply
}

// CrawlReply answers a TreeCrawled that asked for a reply.
type CrawlReply struct {
	Merged  int64
	Deleted int64
	Err     error
}

// FileChanged carries one watcher notification.
type FileChanged struct {
	Change model.ChangeNotification
}

// FilesCompleted reports fingerprints whose content reached the search index.
type FilesCompleted struct {
	Fingerprints []fingerprint.Fingerprint
}

// PendingFilesRequest asks the store for every Pending record.
type PendingFilesRequest struct {
	Reply chan PendingFilesReply
}

// PendingFilesReply answers a PendingFilesRequest.
type PendingFilesReply struct {
	Records []model.FileStateRecord
	Err     error
}

// NewPendingFilesRequest creates a request with a buffered reply channel.
func NewPendingFilesRequest() PendingFilesRequest {
	return PendingFilesRequest{Reply: make(chan PendingFilesReply, 1)}
}

// FilesRequeued moves records back to Pending so the next indexing run picks
// them up. With All set, every Complete and Error record is requeued and
// Fingerprints is ignored.
type FilesRequeued struct {
	Fingerprints []fingerprint.Fingerprint
	All          bool
	Reply        chan CountReply
}

// PurgeRequest removes Deleted records from the table.
type PurgeRequest struct {
	Reply chan CountReply
}

// CountReply answers requests that report a number of affected rows.
type CountReply struct {
	Count int64
	Err   error
}

func newCountReply() chan CountReply {
	return make(chan CountReply, 1)
}

// Package model defines the records that flow between the crawler, the
// watcher, the event pipeline and the file state table.
package model

import (
	"fmt"
	"time"

	"github.com/Aman-CERP/notehunt/internal/fingerprint"
)

// ObservationStatus is the outcome of visiting one file.
type ObservationStatus int

const (
	// ObservationSuccess means the file was stat'ed and is readable.
	ObservationSuccess ObservationStatus = iota
	// ObservationError means the file could not be stat'ed or read.
	ObservationError
)

// String returns a human-readable representation of the status.
func (s ObservationStatus) String() string {
	switch s {
	case ObservationSuccess:
		return "SUCCESS"
	case ObservationError:
		return "ERROR"
	default:
		return "UNKNOWN"
	}
}

// Observation is the result of visiting one file during a crawl or after a
// change notification.
//
// A successful observation has LastModified set and Err nil. A failed one has
// Err set and a zero LastModified. Use NewSuccess and NewFailure to keep the
// two shapes apart.
type Observation struct {
	Path         string
	Fingerprint  fingerprint.Fingerprint
	Status       ObservationStatus
	LastModified time.Time
	Err          error
}

// NewSuccess returns a successful observation of path.
func NewSuccess(path string, modTime time.Time) Observation {
	canonical := fingerprint.Canonical(path)
	return Observation{
		Path:         canonical,
		Fingerprint:  fingerprint.Of(canonical),
		Status:       ObservationSuccess,
		LastModified: modTime,
	}
}

// NewFailure returns a failed observation of path carrying err.
func NewFailure(path string, err error) Observation {
	if err == nil {
		err = fmt.Errorf("unknown failure observing %s", path)
	}
	canonical := fingerprint.Canonical(path)
	return Observation{
		Path:        canonical,
		Fingerprint: fingerprint.Of(canonical),
		Status:      ObservationError,
		Err:         err,
	}
}

// ErrorMessage returns the error text, or nil for a successful observation.
func (o Observation) ErrorMessage() *string {
	if o.Err == nil {
		return nil
	}
	msg := o.Err.Error()
	return &msg
}

// RecordStatus is the status a fresh merge of this observation writes.
func (o Observation) RecordStatus() FileStatus {
	if o.Status == ObservationError {
		return StatusError
	}
	return StatusPending
}

// ChangeKind is the kind of a live filesystem change.
type ChangeKind int

const (
	ChangeCreated ChangeKind = iota
	ChangeModified
	ChangeDeleted

	// ChangeDirDeleted reports that a watched directory was removed or moved
	// away. Every tracked file under Path is gone.
	ChangeDirDeleted
)

// String returns a human-readable representation of the change kind.
func (k ChangeKind) String() string {
	switch k {
	case ChangeCreated:
		return "CREATED"
	case ChangeModified:
		return "MODIFIED"
	case ChangeDeleted:
		return "DELETED"
	case ChangeDirDeleted:
		return "DIR_DELETED"
	default:
		return "UNKNOWN"
	}
}

// ChangeNotification is a live filesystem event for one path that passed the
// extension filter, or for a directory when Kind is ChangeDirDeleted.
type ChangeNotification struct {
	Fingerprint fingerprint.Fingerprint
	Path        string
	Kind        ChangeKind
}

// String implements fmt.Stringer.
func (n ChangeNotification) String() string {
	return fmt.Sprintf("%s %s", n.Kind, n.Path)
}

package model

import (
	"fmt"
	"time"

	"github.com/Aman-CERP/notehunt/internal/fingerprint"
)

// FileStatus is the persisted status of a file.
type FileStatus string

const (
	StatusPending    FileStatus = "Pending"
	StatusInProgress FileStatus = "InProgress"
	StatusComplete   FileStatus = "Complete"
	StatusError      FileStatus = "Error"
	StatusDeleted    FileStatus = "Deleted"
)

// AllStatuses lists every status in lifecycle order.
var AllStatuses = []FileStatus{
	StatusPending,
	StatusInProgress,
	StatusComplete,
	StatusError,
	StatusDeleted,
}

// ParseFileStatus converts s to a FileStatus.
func ParseFileStatus(s string) (FileStatus, error) {
	for _, st := range AllStatuses {
		if string(st) == s {
			return st, nil
		}
	}
	return "", fmt.Errorf("unknown file status %q", s)
}

// FileStateRecord is one row of the file state table.
// ErrorMessage is nil when no error is recorded. LastModified is zero only
// for a file whose first sighting failed.
type FileStateRecord struct {
	Path         string                  `json:"path"`
	Fingerprint  fingerprint.Fingerprint `json:"fingerprint"`
	Status       FileStatus              `json:"status"`
	LastModified time.Time               `json:"last_modified"`
	ErrorMessage *string                 `json:"error_message,omitempty"`
}

package watcher

import (
	"fmt"

	"github.com/Aman-CERP/notehunt/internal/fingerprint"
)

// Options configures the watcher behavior.
type Options struct {
	// Extensions is the allowlist of file extensions. Empty reports every file.
	Extensions []string

	// SkipDirs are absolute directories that are never watched.
	SkipDirs []string

	// EventBufferSize is the size of the notification channel buffer.
	// Default: 256
	EventBufferSize int

	// FingerprintCacheSize bounds the path→fingerprint memo.
	// Default: fingerprint.DefaultCacheSize
	FingerprintCacheSize int
}

// DefaultOptions returns the default watcher options.
func DefaultOptions() Options {
	return Options{
		EventBufferSize:      256,
		FingerprintCacheSize: fingerprint.DefaultCacheSize,
	}
}

// Validate validates the options and returns an error if invalid.
func (o Options) Validate() error {
	if o.EventBufferSize < 0 {
		return fmt.Errorf("event buffer size must be non-negative, got %d", o.EventBufferSize)
	}
	if o.FingerprintCacheSize < 0 {
		return fmt.Errorf("fingerprint cache size must be non-negative, got %d", o.FingerprintCacheSize)
	}
	return nil
}

// WithDefaults returns options with defaults applied for zero values.
func (o Options) WithDefaults() Options {
	defaults := DefaultOptions()
	if o.EventBufferSize == 0 {
		o.EventBufferSize = defaults.EventBufferSize
	}
	if o.FingerprintCacheSize == 0 {
		o.FingerprintCacheSize = defaults.FingerprintCacheSize
	}
	return o
}

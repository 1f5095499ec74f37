// Package errors provides structured error handling for notehunt.
//
// Error codes follow the pattern ERR_XXX_DESCRIPTION where:
//   - 1XX: Configuration errors
//   - 2XX: IO and storage errors (files, state table, search index)
//   - 3XX: Pipeline errors (dispatcher, bridge, watcher)
//   - 4XX: Validation errors
//   - 5XX: Internal errors
package errors

// Category defines error categories for classification.
type Category string

const (
	// CategoryConfig indicates configuration-related errors.
	CategoryConfig Category = "CONFIG"
	// CategoryIO indicates file, database and index I/O errors.
	CategoryIO Category = "IO"
	// CategoryPipeline indicates event pipeline errors.
	CategoryPipeline Category = "PIPELINE"
	// CategoryValidation indicates input validation errors.
	CategoryValidation Category = "VALIDATION"
	// CategoryInternal indicates unexpected internal errors.
	CategoryInternal Category = "INTERNAL"
)

// Severity defines error severity levels.
type Severity string

const (
	// SeverityFatal indicates unrecoverable error, must abort.
	SeverityFatal Severity = "FATAL"
	// SeverityError indicates operation failed but can continue.
	SeverityError Severity = "ERROR"
	// SeverityWarning indicates degraded operation, continuing.
	SeverityWarning Severity = "WARNING"
	// SeverityInfo indicates informational only.
	SeverityInfo Severity = "INFO"
)

// Error codes organized by category.
const (
	// Config errors (100-199)
	ErrCodeConfigNotFound = "ERR_101_CONFIG_NOT_FOUND"
	ErrCodeConfigInvalid  = "ERR_102_CONFIG_INVALID"

	// IO errors (200-299)
	ErrCodeFileUnreadable   = "ERR_201_FILE_UNREADABLE"
	ErrCodeRootInvalid      = "ERR_202_ROOT_INVALID"
	ErrCodeStateUnavailable = "ERR_203_STATE_UNAVAILABLE"
	ErrCodeIndexUnavailable = "ERR_204_INDEX_UNAVAILABLE"
	ErrCodeLockHeld         = "ERR_205_LOCK_HELD"
	ErrCodeStateWrite       = "ERR_206_STATE_WRITE"
	ErrCodeStateRead        = "ERR_207_STATE_READ"
	ErrCodeCrawlIncomplete  = "ERR_208_CRAWL_INCOMPLETE"

	// Pipeline errors (300-399)
	ErrCodeBridgeTimeout     = "ERR_301_BRIDGE_TIMEOUT"
	ErrCodeDispatcherStopped = "ERR_302_DISPATCHER_STOPPED"
	ErrCodeWatchFailed       = "ERR_303_WATCH_FAILED"

	// Validation errors (400-499)
	ErrCodeInvalidInput  = "ERR_401_INVALID_INPUT"
	ErrCodeInvalidStatus = "ERR_402_INVALID_STATUS"
	ErrCodeQueryEmpty    = "ERR_403_QUERY_EMPTY"

	// Internal errors (500-599)
	ErrCodeInternal     = "ERR_501_INTERNAL"
	ErrCodeIndexFailed  = "ERR_502_INDEX_FAILED"
	ErrCodeSearchFailed = "ERR_503_SEARCH_FAILED"
)

// categoryFromCode extracts category from error code.
func categoryFromCode(code string) Category {
	if len(code) < 7 {
		return CategoryInternal
	}

	// "ERR_203_..." -> '2'
	switch code[4] {
	case '1':
		return CategoryConfig
	case '2':
		return CategoryIO
	case '3':
		return CategoryPipeline
	case '4':
		return CategoryValidation
	default:
		return CategoryInternal
	}
}

// severityFromCode determines severity based on error code.
// Anything that prevents startup is fatal.
func severityFromCode(code string) Severity {
	switch code {
	case ErrCodeConfigInvalid, ErrCodeRootInvalid, ErrCodeStateUnavailable,
		ErrCodeIndexUnavailable, ErrCodeLockHeld, ErrCodeWatchFailed:
		return SeverityFatal
	}

	if isRetryableCode(code) {
		return SeverityWarning
	}

	return SeverityError
}

// isRetryableCode checks if an error code represents a retryable error.
// A timed-out bridge request, a per-file read failure or an interrupted
// crawl clears up on the next run without intervention.
func isRetryableCode(code string) bool {
	switch code {
	case ErrCodeBridgeTimeout, ErrCodeFileUnreadable, ErrCodeCrawlIncomplete:
		return true
	default:
		return false
	}
}

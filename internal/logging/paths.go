package logging

import (
	"os"
	"path/filepath"
)

// DefaultLogFile is the log file name inside a log directory.
const DefaultLogFile = "notehunt.log"

// DefaultLogDir returns the default log directory (~/.notehunt/logs/).
// Falls back to the temp directory if the home directory is unavailable.
func DefaultLogDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return filepath.Join(os.TempDir(), ".notehunt", "logs")
	}
	return filepath.Join(home, ".notehunt", "logs")
}

// DefaultLogPath returns the default log file path.
func DefaultLogPath() string {
	return filepath.Join(DefaultLogDir(), DefaultLogFile)
}

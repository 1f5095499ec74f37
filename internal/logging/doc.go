// Package logging configures structured slog output for notehunt.
//
// Logs are JSON lines written to a size-rotated file under ~/.notehunt/logs/,
// optionally mirrored to stderr. The --debug flag lowers the level to debug
// and turns the stderr mirror on.
package logging

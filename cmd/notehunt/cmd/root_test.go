package cmd

import (
	"bytes"
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	nherrors "github.com/Aman-CERP/notehunt/internal/errors"
	"github.com/Aman-CERP/notehunt/pkg/version"
)

// testEnv isolates a CLI run: an empty user config dir, a temp data dir and
// a notes root. It returns the root.
func testEnv(t *testing.T, backend string) string {
	t.Helper()
	t.Setenv("XDG_CONFIG_HOME", t.TempDir())
	t.Setenv("NOTEHUNT_DATA_DIR", t.TempDir())
	t.Setenv("NOTEHUNT_INDEX_BACKEND", backend)
	t.Setenv("NOTEHUNT_EXTENSIONS", ".txt")
	return t.TempDir()
}

// run executes the CLI with args and returns stdout.
func run(t *testing.T, args ...string) (string, error) {
	t.Helper()
	opts := &rootOptions{}
	t.Cleanup(opts.close)

	cmd := newRootCmd(opts)
	out := &bytes.Buffer{}
	cmd.SetOut(out)
	cmd.SetErr(&bytes.Buffer{})
	cmd.SetArgs(args)

	err := cmd.ExecuteContext(context.Background())
	opts.close()
	return out.String(), err
}

func writeNote(t *testing.T, root, name, content string) string {
	t.Helper()
	path := filepath.Join(root, name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestCLI_CrawlIndexSearch(t *testing.T) {
	for _, backend := range []string{"bleve", "sqlite"} {
		t.Run(backend, func(t *testing.T) {
			// Given: a notes root with two notes
			root := testEnv(t, backend)
			writeNote(t, root, "pasta.txt", "boil water then add pasta")
			writeNote(t, root, "bread.txt", "knead the dough")

			// When: crawling
			out, err := run(t, "crawl", "--root", root)

			// Then: both notes are merged
			require.NoError(t, err)
			assert.Contains(t, out, "2 observed, 2 merged, 0 deleted")

			// When: indexing
			out, err = run(t, "index", "--root", root)

			// Then: both are indexed
			require.NoError(t, err)
			assert.Contains(t, out, "Indexed 2 of 2 files")

			// When: searching
			out, err = run(t, "search", "--root", root, "dough")

			// Then: the matching note is listed relative to the root
			require.NoError(t, err)
			assert.Contains(t, out, "1. bread.txt")
			assert.NotContains(t, out, "pasta.txt")
		})
	}
}

func TestCLI_StatusJSON(t *testing.T) {
	// Given: a crawled root
	root := testEnv(t, "sqlite")
	writeNote(t, root, "a.txt", "alpha")
	_, err := run(t, "crawl", "--root", root)
	require.NoError(t, err)

	// When: asking for JSON status
	out, err := run(t, "status", "--root", root, "--json")

	// Then: the counts are reported per status
	require.NoError(t, err)
	var parsed struct {
		Root   string           `json:"root"`
		Counts map[string]int64 `json:"counts"`
	}
	require.NoError(t, json.Unmarshal([]byte(out), &parsed))
	assert.Equal(t, root, parsed.Root)
	assert.Equal(t, int64(1), parsed.Counts["Pending"])
	assert.Equal(t, int64(0), parsed.Counts["Complete"])
}

func TestCLI_IndexWithCrawlAndBatchSize(t *testing.T) {
	root := testEnv(t, "sqlite")
	for _, name := range []string{"a.txt", "b.txt", "c.txt"} {
		writeNote(t, root, name, "note "+name)
	}

	out, err := run(t, "index", "--root", root, "--crawl", "--batch-size", "2", "--json")

	require.NoError(t, err)
	var parsed map[string]any
	require.NoError(t, json.Unmarshal([]byte(out), &parsed))
	assert.Equal(t, float64(3), parsed["indexed"])
	assert.Equal(t, float64(2), parsed["batches"])
}

func TestCLI_ReindexAndPurge(t *testing.T) {
	// Given: an indexed note and a note that was removed
	root := testEnv(t, "sqlite")
	keep := writeNote(t, root, "keep.txt", "keep")
	gone := writeNote(t, root, "gone.txt", "gone")
	_, err := run(t, "index", "--root", root, "--crawl")
	require.NoError(t, err)
	require.NoError(t, os.Remove(gone))
	_, err = run(t, "crawl", "--root", root)
	require.NoError(t, err)

	// When: requeueing the kept note
	out, err := run(t, "reindex", "--root", root, keep)

	// Then: one note is requeued
	require.NoError(t, err)
	assert.Equal(t, "Requeued 1 file\n", out)

	// When: purging
	out, err = run(t, "purge", "--root", root)

	// Then: the removed note's record is dropped
	require.NoError(t, err)
	assert.Equal(t, "Purged 1 file\n", out)
}

func TestCLI_SearchEmptyQuery(t *testing.T) {
	root := testEnv(t, "sqlite")

	_, err := run(t, "search", "--root", root)

	assert.Equal(t, nherrors.ErrCodeQueryEmpty, nherrors.GetCode(err))
}

func TestCLI_InvalidRoot(t *testing.T) {
	testEnv(t, "sqlite")

	_, err := run(t, "crawl", "--root", filepath.Join(t.TempDir(), "missing"))

	assert.Equal(t, nherrors.ErrCodeRootInvalid, nherrors.GetCode(err))
}

func TestCLI_MissingConfigFile(t *testing.T) {
	root := testEnv(t, "sqlite")

	_, err := run(t, "status", "--root", root, "--config", filepath.Join(root, "nope.yaml"))

	assert.Equal(t, nherrors.ErrCodeConfigNotFound, nherrors.GetCode(err))
}

func TestExitCode(t *testing.T) {
	// Given: a fatal structured error
	buf := &bytes.Buffer{}
	err := nherrors.New(nherrors.ErrCodeLockHeld, "data directory is in use", nil).
		WithSuggestion("Stop the running notehunt process")

	// When: turning it into an exit code
	code := exitCode(buf, err, false)

	// Then: it exits 2 and prints the CLI form
	assert.Equal(t, 2, code)
	assert.Contains(t, buf.String(), "Error: data directory is in use")
	assert.Contains(t, buf.String(), "Hint: Stop the running notehunt process")
	assert.Contains(t, buf.String(), nherrors.ErrCodeLockHeld)

	assert.Equal(t, 0, exitCode(buf, nil, false))
}

func TestExitCode_NonFatalExitsOne(t *testing.T) {
	buf := &bytes.Buffer{}

	code := exitCode(buf, nherrors.New(nherrors.ErrCodeQueryEmpty, "search query is empty", nil), false)

	assert.Equal(t, 1, code)
	assert.Contains(t, buf.String(), "Error: search query is empty")
}

func TestExitCode_JSON(t *testing.T) {
	// Given: a crawl that stopped early
	buf := &bytes.Buffer{}
	err := nherrors.New(nherrors.ErrCodeCrawlIncomplete, "crawl of /n stopped early", nil).WithPath("/n")

	// When: the failing command asked for JSON
	code := exitCode(buf, err, true)

	// Then: stderr carries one JSON object
	assert.Equal(t, 1, code)
	var parsed map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &parsed))
	assert.Equal(t, nherrors.ErrCodeCrawlIncomplete, parsed["code"])
	assert.Equal(t, "/n", parsed["path"])
	assert.Equal(t, true, parsed["retryable"])
}

func TestWantsJSON(t *testing.T) {
	opts := &rootOptions{}
	root := newRootCmd(opts)

	status, _, err := root.Find([]string{"status"})
	require.NoError(t, err)
	assert.False(t, wantsJSON(status))

	require.NoError(t, status.Flags().Set("json", "true"))
	assert.True(t, wantsJSON(status))

	assert.False(t, wantsJSON(root), "root has no --json flag")
	assert.False(t, wantsJSON(nil))
}

func TestVersionCmd_SkipsConfig(t *testing.T) {
	// Given: a --config that does not exist
	// When: running version
	out, err := run(t, "version", "--config", "/does/not/exist.yaml")

	// Then: config is never loaded
	require.NoError(t, err)
	assert.Contains(t, out, "notehunt "+version.Version)
}

func TestVersionCmd_Short(t *testing.T) {
	out, err := run(t, "version", "--short")

	require.NoError(t, err)
	assert.Equal(t, version.Version, strings.TrimSpace(out))
}

func TestVersionCmd_JSON(t *testing.T) {
	out, err := run(t, "version", "--json")

	require.NoError(t, err)
	var info map[string]string
	require.NoError(t, json.Unmarshal([]byte(out), &info))
	assert.Equal(t, version.Version, info["version"])
	assert.Contains(t, info, "go_version")
}

func TestRootCmd_HasSubcommands(t *testing.T) {
	root := NewRootCmd()

	for _, name := range []string{"watch", "crawl", "index", "status", "search", "reindex", "purge", "version"} {
		sub, _, err := root.Find([]string{name})
		require.NoError(t, err, name)
		assert.Equal(t, name, sub.Name())
	}
}

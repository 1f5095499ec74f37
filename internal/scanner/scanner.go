package scanner

import (
	"context"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"

	nherrors "github.com/Aman-CERP/notehunt/internal/errors"
	"github.com/Aman-CERP/notehunt/internal/fingerprint"
	"github.com/Aman-CERP/notehunt/internal/model"
)

// Scanner discovers matching files under a root directory.
type Scanner struct {
	filter   ExtensionFilter
	skipDirs []string
	buffer   int
}

// New creates a new Scanner.
func New(opts Options) *Scanner {
	buffer := opts.Buffer
	if buffer <= 0 {
		buffer = DefaultBuffer
	}
	skip := make([]string, 0, len(opts.SkipDirs))
	for _, dir := range opts.SkipDirs {
		if dir != "" {
			skip = append(skip, fingerprint.Canonical(dir))
		}
	}
	return &Scanner{
		filter:   NewExtensionFilter(opts.Extensions),
		skipDirs: skip,
		buffer:   buffer,
	}
}

// Tree is the outcome of one finished crawl.
type Tree struct {
	Observations []model.Observation

	// Unvisited lists directories that could not be read. Nothing beneath them
	// was observed, so their absence from Observations says nothing.
	Unvisited []string
}

// walkResult is filled in by the walk goroutine before it closes the
// observation channel.
type walkResult struct {
	unvisited []string
	err       error
}

// Scan walks root in the background and streams one Observation per matching
// regular file. The channel is closed when the walk ends. A root that is
// missing or not a directory is reported before anything is streamed.
//
// Per-file failures become Error observations; the walk never stops for
// them. Cancelling ctx ends the walk early. Scan suits consumers that merge
// what they see; use Crawl to learn whether the walk covered the whole tree.
func (s *Scanner) Scan(ctx context.Context, root string) (<-chan model.Observation, error) {
	results, _, err := s.start(ctx, root)
	return results, err
}

// Crawl walks root and returns the whole Tree. A cancelled walk returns
// ctx.Err() and an empty Tree. A walk that cannot read root itself returns an
// ErrCodeCrawlIncomplete error, so callers never sweep against a partial set.
func (s *Scanner) Crawl(ctx context.Context, root string) (Tree, error) {
	results, res, err := s.start(ctx, root)
	if err != nil {
		return Tree{}, err
	}

	var observations []model.Observation
	for obs := range results {
		observations = append(observations, obs)
	}
	if err := ctx.Err(); err != nil {
		return Tree{}, err
	}
	if res.err != nil {
		return Tree{}, nherrors.New(nherrors.ErrCodeCrawlIncomplete,
			fmt.Sprintf("crawl of %s did not finish", root), res.err).
			WithPath(root).
			WithSuggestion("Check that the notes directory is readable, then crawl again")
	}
	return Tree{Observations: observations, Unvisited: res.unvisited}, nil
}

func (s *Scanner) start(ctx context.Context, root string) (<-chan model.Observation, *walkResult, error) {
	absRoot, err := ValidateRoot(root)
	if err != nil {
		return nil, nil, err
	}

	results := make(chan model.Observation, s.buffer)
	res := &walkResult{}
	go func() {
		defer close(results)
		res.unvisited, res.err = s.walk(ctx, absRoot, results)
	}()
	return results, res, nil
}

func (s *Scanner) walk(ctx context.Context, root string, results chan<- model.Observation) ([]string, error) {
	emit := func(obs model.Observation) error {
		select {
		case results <- obs:
			return nil
		case <-ctx.Done():
			return ctx.Err()
		}
	}

	var unvisited []string
	err := filepath.WalkDir(root, func(path string, d fs.DirEntry, walkErr error) error {
		if err := ctx.Err(); err != nil {
			return err
		}

		if walkErr != nil {
			if path == root {
				return walkErr
			}
			if d != nil && d.IsDir() {
				slog.Warn("crawl_dir_unreadable",
					slog.String("path", path),
					slog.String("error", walkErr.Error()))
				unvisited = append(unvisited, path)
				return fs.SkipDir
			}
			if !s.filter.Allows(path) {
				return nil
			}
			return emit(model.NewFailure(path, nherrors.FileError(path, walkErr)))
		}

		if d.IsDir() {
			if path != root && IsWithin(path, s.skipDirs) {
				return fs.SkipDir
			}
			return nil
		}
		if !s.filter.Allows(path) {
			return nil
		}

		obs, ok := observeEntry(path, d)
		if !ok {
			return nil
		}
		return emit(obs)
	})

	if err != nil && ctx.Err() == nil {
		slog.Warn("crawl_aborted",
			slog.String("root", root),
			slog.String("error", err.Error()))
	}
	return unvisited, err
}

// observeEntry observes a non-directory entry. It reports false for entries
// that are not files: sockets, devices and symlinks to directories.
func observeEntry(path string, d fs.DirEntry) (model.Observation, bool) {
	mode := d.Type()
	switch {
	case mode.IsRegular():
		return Observe(path), true
	case mode&fs.ModeSymlink != 0:
		info, err := os.Stat(path)
		if err != nil {
			return model.NewFailure(path, nherrors.FileError(path, err)), true
		}
		if !info.Mode().IsRegular() {
			return model.Observation{}, false
		}
		return Observe(path), true
	default:
		return model.Observation{}, false
	}
}

// Observe stats and opens path, returning a Success observation carrying its
// modification time or an Error observation carrying the failure.
func Observe(path string) model.Observation {
	info, err := os.Stat(path)
	if err != nil {
		return model.NewFailure(path, nherrors.FileError(path, err))
	}
	if !info.Mode().IsRegular() {
		return model.NewFailure(path, nherrors.FileError(path, fmt.Errorf("not a regular file")))
	}

	f, err := os.Open(path)
	if err != nil {
		return model.NewFailure(path, nherrors.FileError(path, err))
	}
	_ = f.Close()

	return model.NewSuccess(path, info.ModTime())
}

// Fingerprints returns the fingerprint of every observation, in order.
func Fingerprints(observations []model.Observation) []fingerprint.Fingerprint {
	fps := make([]fingerprint.Fingerprint, len(observations))
	for i, obs := range observations {
		fps[i] = obs.Fingerprint
	}
	return fps
}

// ValidateRoot resolves root to an absolute directory path.
func ValidateRoot(root string) (string, error) {
	if root == "" {
		root = "."
	}

	absRoot, err := filepath.Abs(root)
	if err != nil {
		return "", nherrors.New(nherrors.ErrCodeRootInvalid,
			fmt.Sprintf("cannot resolve root %s", root), err)
	}

	info, err := os.Stat(absRoot)
	if err != nil {
		return "", nherrors.New(nherrors.ErrCodeRootInvalid,
			fmt.Sprintf("root directory %s is not accessible", absRoot), err).
			WithSuggestion("Set 'root' in the config file, NOTEHUNT_ROOT, or pass --root")
	}
	if !info.IsDir() {
		return "", nherrors.New(nherrors.ErrCodeRootInvalid,
			fmt.Sprintf("root path %s is not a directory", absRoot), nil).WithPath(absRoot)
	}

	return absRoot, nil
}


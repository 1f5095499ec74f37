package indexer

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Aman-CERP/notehunt/internal/bus"
	"github.com/Aman-CERP/notehunt/internal/events"
	"github.com/Aman-CERP/notehunt/internal/filestate"
	"github.com/Aman-CERP/notehunt/internal/model"
	"github.com/Aman-CERP/notehunt/internal/scanner"
	"github.com/Aman-CERP/notehunt/internal/searchindex"
)

// fakeIndex records documents and fails for paths in failing.
type fakeIndex struct {
	mu      sync.Mutex
	docs    map[string]string
	failing map[string]bool
}

func newFakeIndex(failing ...string) *fakeIndex {
	f := &fakeIndex{docs: make(map[string]string), failing: make(map[string]bool)}
	for _, p := range failing {
		f.failing[p] = true
	}
	return f
}

func (f *fakeIndex) AddDocument(_ context.Context, path, content string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failing[path] {
		return errors.New("index rejected document")
	}
	f.docs[path] = content
	return nil
}

func (f *fakeIndex) Search(context.Context, string, int) ([]searchindex.Hit, error) {
	return nil, nil
}

func (f *fakeIndex) Count() (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.docs), nil
}

func (f *fakeIndex) Fresh() bool { return false }

func (f *fakeIndex) Close() error { return nil }

type pipeline struct {
	table   *filestate.Table
	bus     *bus.Dispatcher
	batches [][]string
	mu      sync.Mutex
}

// newPipeline wires a real table to a dispatcher and records the size of
// every completion event.
func newPipeline(t *testing.T) *pipeline {
	t.Helper()
	table, err := filestate.Open(filepath.Join(t.TempDir(), "state.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = table.Close() })

	p := &pipeline{table: table, bus: bus.New(bus.Options{})}
	filestate.Subscribe(p.bus, table, scanner.Observe)
	bus.Subscribe(p.bus, "test.batches", func(_ context.Context, ev events.FilesCompleted) error {
		p.mu.Lock()
		defer p.mu.Unlock()
		batch := make([]string, len(ev.Fingerprints))
		for i, fp := range ev.Fingerprints {
			batch[i] = fp.String()
		}
		p.batches = append(p.batches, batch)
		return nil
	})
	p.bus.Start(context.Background())
	t.Cleanup(p.bus.Stop)
	return p
}

func (p *pipeline) batchSizes() []int {
	p.mu.Lock()
	defer p.mu.Unlock()
	sizes := make([]int, len(p.batches))
	for i, b := range p.batches {
		sizes[i] = len(b)
	}
	return sizes
}

// seed writes n notes under a temp root and merges them as Pending.
func seed(t *testing.T, p *pipeline, n int) []string {
	t.Helper()
	root := t.TempDir()
	paths := make([]string, n)
	observations := make([]model.Observation, n)
	for i := 0; i < n; i++ {
		paths[i] = filepath.Join(root, fmt.Sprintf("note-%02d.txt", i))
		require.NoError(t, os.WriteFile(paths[i], []byte(fmt.Sprintf("note number %d", i)), 0o644))
		observations[i] = scanner.Observe(paths[i])
	}
	_, err := p.table.Merge(context.Background(), observations...)
	require.NoError(t, err)
	return paths
}

func TestIndexFilesFromStore_BatchesAndCompletes(t *testing.T) {
	// Given: 25 pending notes and a batch size of 10
	p := newPipeline(t)
	seed(t, p, 25)
	idx := newFakeIndex()
	ix, err := New(Config{BatchSize: 10, BridgeTimeout: time.Second}, Dependencies{Publisher: p.bus, Index: idx})
	require.NoError(t, err)
	ctx := context.Background()

	// When: one indexing run completes
	res, err := ix.IndexFilesFromStore(ctx)
	require.NoError(t, err)
	require.NoError(t, p.bus.Flush(ctx))

	// Then: three completion events of 10, 10 and 5 were published
	assert.Equal(t, []int{10, 10, 5}, p.batchSizes())
	assert.Equal(t, 25, res.Pending)
	assert.Equal(t, 25, res.Indexed)
	assert.Equal(t, 0, res.Failed)
	assert.Equal(t, 3, res.Batches)
	assert.NotEmpty(t, res.RunID.String())

	// And: nothing is pending any more
	pending, err := p.table.ListPending(ctx)
	require.NoError(t, err)
	assert.Empty(t, pending)
	count, _ := idx.Count()
	assert.Equal(t, 25, count)
}

func TestIndexFilesFromStore_FailedFileStaysPending(t *testing.T) {
	// Given: three pending notes, one the index rejects and one deleted from disk
	p := newPipeline(t)
	paths := seed(t, p, 3)
	idx := newFakeIndex(paths[0])
	require.NoError(t, os.Remove(paths[1]))
	ix, err := New(Config{BatchSize: 10, BridgeTimeout: time.Second}, Dependencies{Publisher: p.bus, Index: idx})
	require.NoError(t, err)
	ctx := context.Background()

	// When: the run completes
	res, err := ix.IndexFilesFromStore(ctx)
	require.NoError(t, err)
	require.NoError(t, p.bus.Flush(ctx))

	// Then: both failures are skipped silently and stay Pending, not Error
	assert.Equal(t, 1, res.Indexed)
	assert.Equal(t, 2, res.Failed)
	pending, err := p.table.ListPending(ctx)
	require.NoError(t, err)
	require.Len(t, pending, 2)
	assert.ElementsMatch(t, []string{paths[0], paths[1]}, []string{pending[0].Path, pending[1].Path})
	counts, err := p.table.Counts(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(0), counts[model.StatusError])
}

func TestIndexFilesFromStore_AllFailuresPublishNothing(t *testing.T) {
	// Given: one pending note the index rejects
	p := newPipeline(t)
	paths := seed(t, p, 1)
	ix, err := New(Config{BatchSize: 10}, Dependencies{Publisher: p.bus, Index: newFakeIndex(paths[0])})
	require.NoError(t, err)

	// When: the run completes
	res, err := ix.IndexFilesFromStore(context.Background())
	require.NoError(t, err)
	require.NoError(t, p.bus.Flush(context.Background()))

	// Then: no completion event was published
	assert.Empty(t, p.batchSizes())
	assert.Equal(t, 0, res.Batches)
}

func TestIndexFilesFromStore_NothingPending(t *testing.T) {
	p := newPipeline(t)
	ix, err := New(Config{}, Dependencies{Publisher: p.bus, Index: newFakeIndex()})
	require.NoError(t, err)

	res, err := ix.IndexFilesFromStore(context.Background())

	require.NoError(t, err)
	assert.Equal(t, Result{RunID: res.RunID, Duration: res.Duration}, res)
}

func TestIndexFilesFromStore_BridgeTimeout(t *testing.T) {
	// Given: a dispatcher with nobody answering pending requests
	d := bus.New(bus.Options{})
	d.Start(context.Background())
	t.Cleanup(d.Stop)
	ix, err := New(Config{BridgeTimeout: 50 * time.Millisecond}, Dependencies{Publisher: d, Index: newFakeIndex()})
	require.NoError(t, err)

	// When: a run starts
	_, err = ix.IndexFilesFromStore(context.Background())

	// Then: the run aborts with the bridge timeout
	assert.ErrorIs(t, err, events.ErrBridgeTimeout)
}

func TestIndexFilesFromStore_RealIndex(t *testing.T) {
	// Given: pending notes and an in-memory Bleve index
	p := newPipeline(t)
	paths := seed(t, p, 3)
	idx, err := searchindex.NewBleve("")
	require.NoError(t, err)
	defer idx.Close()
	ix, err := New(Config{}, Dependencies{Publisher: p.bus, Index: idx})
	require.NoError(t, err)

	// When: the run completes
	_, err = ix.IndexFilesFromStore(context.Background())
	require.NoError(t, err)

	// Then: the notes are searchable by path
	hits, err := idx.Search(context.Background(), "number", 10)
	require.NoError(t, err)
	got := make([]string, len(hits))
	for i, h := range hits {
		got[i] = h.Path
	}
	assert.ElementsMatch(t, paths, got)
}

func TestNew_Validation(t *testing.T) {
	p := newPipeline(t)

	_, err := New(Config{}, Dependencies{Index: newFakeIndex()})
	assert.Error(t, err)

	_, err = New(Config{}, Dependencies{Publisher: p.bus})
	assert.Error(t, err)

	_, err = New(Config{BatchSize: -1}, Dependencies{Publisher: p.bus, Index: newFakeIndex()})
	assert.Error(t, err)

	ix, err := New(Config{}, Dependencies{Publisher: p.bus, Index: newFakeIndex()})
	require.NoError(t, err)
	assert.Equal(t, DefaultBatchSize, ix.batchSize)
	assert.Equal(t, events.DefaultTimeout, ix.bridgeTimeout)
}

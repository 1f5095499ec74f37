// Package filestate persists the reconciliation status of every tracked file.
//
// The table is keyed by path fingerprint. Rows move through the lifecycle
//
//	Pending -> Complete          (indexed)
//	any     -> Error             (observation failed)
//	any     -> Deleted           (gone from disk)
//	Deleted -> Pending           (reappeared with a newer timestamp)
//
// Writes are expected to come from a single goroutine, the dispatcher; see
// Subscribe.
package filestate

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "github.com/mattn/go-sqlite3" // SQLite driver

	nherrors "github.com/Aman-CERP/notehunt/internal/errors"
	"github.com/Aman-CERP/notehunt/internal/fingerprint"
	"github.com/Aman-CERP/notehunt/internal/model"
	"github.com/Aman-CERP/notehunt/internal/scanner"
)

// MemoryPath opens a private in-memory table.
const MemoryPath = ":memory:"

// Observer turns a path into a fresh observation. scanner.Observe is the
// production implementation.
type Observer func(path string) model.Observation

// Table is the durable file state table.
type Table struct {
	db   *sql.DB
	path string
}

// ReconcileResult summarizes one crawl reconciliation.
type ReconcileResult struct {
	Merged  int64
	Deleted int64
}

// Open opens the table at path, creating the file and applying migrations as
// needed. Use MemoryPath for a throwaway table.
func Open(path string) (*Table, error) {
	dsn := path
	if path != MemoryPath {
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return nil, unavailable(path, err)
		}
		dsn = path + "?_journal_mode=WAL&_busy_timeout=5000"
	}

	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, unavailable(path, err)
	}
	// One connection: SQLite has a single writer, and an in-memory database
	// exists per connection.
	db.SetMaxOpenConns(1)

	if err := db.Ping(); err != nil {
		_ = db.Close()
		return nil, unavailable(path, err)
	}
	if err := migrateUp(db); err != nil {
		_ = db.Close()
		return nil, unavailable(path, err)
	}

	return &Table{db: db, path: path}, nil
}

// Close releases the database handle.
func (t *Table) Close() error {
	return t.db.Close()
}

// Path returns the location the table was opened from.
func (t *Table) Path() string {
	return t.path
}

// SchemaVersion returns the applied migration version.
func (t *Table) SchemaVersion() (uint, error) {
	version, dirty, err := schemaVersion(t.db)
	if err != nil {
		return 0, nherrors.New(nherrors.ErrCodeStateRead, "cannot read schema version", err)
	}
	if dirty {
		return version, nherrors.New(nherrors.ErrCodeStateUnavailable,
			fmt.Sprintf("schema is dirty at version %d", version), nil)
	}
	return version, nil
}

const mergeSQL = `
INSERT INTO file_states (path, path_hash, status, last_modified, error_message)
VALUES (?, ?, ?, ?, ?)
ON CONFLICT (path_hash) DO UPDATE SET
    status        = excluded.status,
    last_modified = COALESCE(excluded.last_modified, file_states.last_modified),
    error_message = excluded.error_message
WHERE file_states.last_modified IS NULL
   OR COALESCE(excluded.last_modified, file_states.last_modified) > file_states.last_modified
   OR (COALESCE(excluded.last_modified, file_states.last_modified) = file_states.last_modified
       AND excluded.status <> 'Pending')`

// Merge upserts observations. An existing row is replaced only when the
// observation is newer, or equally new and not a plain re-sighting. An
// observation without a timestamp, a failure, counts as equally new and keeps
// the stored timestamp. Merge returns the number of rows written.
func (t *Table) Merge(ctx context.Context, observations ...model.Observation) (int64, error) {
	var changed int64
	err := t.withTx(ctx, func(tx *sql.Tx) error {
		n, err := mergeTx(ctx, tx, observations)
		changed = n
		return err
	})
	return changed, err
}

// Sweep marks Deleted every row whose fingerprint is not in present, except
// rows whose path lies under one of the keep directories. Rows already
// Deleted are left alone. It returns the number of rows marked.
func (t *Table) Sweep(ctx context.Context, present []fingerprint.Fingerprint, keep ...string) (int64, error) {
	var swept int64
	err := t.withTx(ctx, func(tx *sql.Tx) error {
		n, err := sweepTx(ctx, tx, present, keep)
		swept = n
		return err
	})
	return swept, err
}

// Reconcile merges a full crawl and sweeps rows the crawl did not see, in one
// transaction. Rows under an unvisited directory were not looked for and are
// never swept.
func (t *Table) Reconcile(ctx context.Context, observations []model.Observation, unvisited []string) (ReconcileResult, error) {
	var res ReconcileResult
	err := t.withTx(ctx, func(tx *sql.Tx) error {
		merged, err := mergeTx(ctx, tx, observations)
		if err != nil {
			return err
		}
		deleted, err := sweepTx(ctx, tx, scanner.Fingerprints(observations), unvisited)
		if err != nil {
			return err
		}
		res = ReconcileResult{Merged: merged, Deleted: deleted}
		return nil
	})
	return res, err
}

// ApplyChange applies one live change. Created and Modified paths are
// re-observed and merged; Deleted marks the row Deleted regardless of its
// timestamp; DirDeleted marks every row under the directory Deleted.
func (t *Table) ApplyChange(ctx context.Context, change model.ChangeNotification, observe Observer) (int64, error) {
	switch change.Kind {
	case model.ChangeCreated, model.ChangeModified:
		return t.Merge(ctx, observe(change.Path))
	case model.ChangeDeleted:
		return t.MarkDeleted(ctx, change.Fingerprint)
	case model.ChangeDirDeleted:
		return t.MarkDeletedUnder(ctx, change.Path)
	default:
		return 0, nherrors.New(nherrors.ErrCodeInvalidInput,
			fmt.Sprintf("unknown change kind %d", change.Kind), nil)
	}
}

// MarkComplete moves Pending rows in fps to Complete. Rows in any other
// status are untouched, so a completion that raced a newer change is a no-op.
func (t *Table) MarkComplete(ctx context.Context, fps ...fingerprint.Fingerprint) (int64, error) {
	return t.execSet(ctx, `
UPDATE file_states SET status = 'Complete'
WHERE path_hash IN (SELECT value FROM json_each(?)) AND status = 'Pending'`, fps)
}

// MarkDeleted moves rows in fps to Deleted.
func (t *Table) MarkDeleted(ctx context.Context, fps ...fingerprint.Fingerprint) (int64, error) {
	return t.execSet(ctx, `
UPDATE file_states SET status = 'Deleted'
WHERE path_hash IN (SELECT value FROM json_each(?)) AND status <> 'Deleted'`, fps)
}

// MarkDeletedUnder moves every row whose path lies under dir to Deleted.
func (t *Table) MarkDeletedUnder(ctx context.Context, dir string) (int64, error) {
	prefixes, err := json.Marshal(dirPrefixes([]string{dir}))
	if err != nil {
		return 0, nherrors.InternalError("cannot encode directory set", err)
	}
	return t.exec(ctx, `
UPDATE file_states SET status = 'Deleted'
WHERE status <> 'Deleted' AND `+underAny, string(prefixes))
}

// MarkPending requeues rows in fps for indexing. Deleted rows stay Deleted.
func (t *Table) MarkPending(ctx context.Context, fps ...fingerprint.Fingerprint) (int64, error) {
	return t.execSet(ctx, `
UPDATE file_states SET status = 'Pending', error_message = NULL
WHERE path_hash IN (SELECT value FROM json_each(?)) AND status IN ('InProgress', 'Complete', 'Error')`, fps)
}

// RequeueAll moves every Complete and Error row back to Pending.
func (t *Table) RequeueAll(ctx context.Context) (int64, error) {
	return t.exec(ctx, `
UPDATE file_states SET status = 'Pending', error_message = NULL
WHERE status IN ('Complete', 'Error')`)
}

// Purge removes the rows in fps.
func (t *Table) Purge(ctx context.Context, fps ...fingerprint.Fingerprint) (int64, error) {
	return t.execSet(ctx, `
DELETE FROM file_states WHERE path_hash IN (SELECT value FROM json_each(?))`, fps)
}

// PurgeDeleted removes every Deleted row.
func (t *Table) PurgeDeleted(ctx context.Context) (int64, error) {
	return t.exec(ctx, `DELETE FROM file_states WHERE status = 'Deleted'`)
}

// ListPending returns every Pending row ordered by path.
func (t *Table) ListPending(ctx context.Context) ([]model.FileStateRecord, error) {
	return t.ListByStatus(ctx, model.StatusPending)
}

// ListByStatus returns the rows in status ordered by path.
func (t *Table) ListByStatus(ctx context.Context, status model.FileStatus) ([]model.FileStateRecord, error) {
	if _, err := model.ParseFileStatus(string(status)); err != nil {
		return nil, nherrors.New(nherrors.ErrCodeInvalidStatus, err.Error(), err)
	}

	rows, err := t.db.QueryContext(ctx, `
SELECT path, path_hash, status, last_modified, error_message
FROM file_states WHERE status = ? ORDER BY path`, string(status))
	if err != nil {
		return nil, readErr("list "+string(status), err)
	}
	defer func() { _ = rows.Close() }()

	records := []model.FileStateRecord{}
	for rows.Next() {
		rec, err := scanRecord(rows)
		if err != nil {
			return nil, readErr("scan row", err)
		}
		records = append(records, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, readErr("list "+string(status), err)
	}
	return records, nil
}

// Get returns the row for fp. The bool is false when no row exists.
func (t *Table) Get(ctx context.Context, fp fingerprint.Fingerprint) (model.FileStateRecord, bool, error) {
	row := t.db.QueryRowContext(ctx, `
SELECT path, path_hash, status, last_modified, error_message
FROM file_states WHERE path_hash = ?`, string(fp))

	rec, err := scanRecord(row)
	if errors.Is(err, sql.ErrNoRows) {
		return model.FileStateRecord{}, false, nil
	}
	if err != nil {
		return model.FileStateRecord{}, false, readErr("get "+fp.Short(), err)
	}
	return rec, true, nil
}

// Counts returns the number of rows per status. Every status is present in
// the result, zero when no row has it.
func (t *Table) Counts(ctx context.Context) (map[model.FileStatus]int64, error) {
	counts := make(map[model.FileStatus]int64, len(model.AllStatuses))
	for _, st := range model.AllStatuses {
		counts[st] = 0
	}

	rows, err := t.db.QueryContext(ctx, `SELECT status, COUNT(*) FROM file_states GROUP BY status`)
	if err != nil {
		return nil, readErr("count", err)
	}
	defer func() { _ = rows.Close() }()

	for rows.Next() {
		var status string
		var n int64
		if err := rows.Scan(&status, &n); err != nil {
			return nil, readErr("count", err)
		}
		counts[model.FileStatus(status)] = n
	}
	if err := rows.Err(); err != nil {
		return nil, readErr("count", err)
	}
	return counts, nil
}

func mergeTx(ctx context.Context, tx *sql.Tx, observations []model.Observation) (int64, error) {
	if len(observations) == 0 {
		return 0, nil
	}

	stmt, err := tx.PrepareContext(ctx, mergeSQL)
	if err != nil {
		return 0, err
	}
	defer func() { _ = stmt.Close() }()

	var changed int64
	for _, o := range observations {
		var lastModified sql.NullInt64
		if !o.LastModified.IsZero() {
			lastModified = sql.NullInt64{Int64: o.LastModified.UnixNano(), Valid: true}
		}
		var errMsg sql.NullString
		if msg := o.ErrorMessage(); msg != nil {
			errMsg = sql.NullString{String: *msg, Valid: true}
		}

		res, err := stmt.ExecContext(ctx, o.Path, string(o.Fingerprint),
			string(o.RecordStatus()), lastModified, errMsg)
		if err != nil {
			return 0, fmt.Errorf("merge %s: %w", o.Path, err)
		}
		n, err := res.RowsAffected()
		if err != nil {
			return 0, err
		}
		changed += n
	}
	return changed, nil
}

// underAny matches rows whose path starts with one of the prefixes in the
// bound JSON array. substr avoids LIKE, whose wildcards are legal in paths.
const underAny = `EXISTS (
    SELECT 1 FROM json_each(?) AS d
    WHERE substr(file_states.path, 1, length(d.value)) = d.value)`

func sweepTx(ctx context.Context, tx *sql.Tx, present []fingerprint.Fingerprint, keep []string) (int64, error) {
	set, err := fingerprintJSON(present)
	if err != nil {
		return 0, err
	}
	prefixes, err := json.Marshal(dirPrefixes(keep))
	if err != nil {
		return 0, err
	}
	res, err := tx.ExecContext(ctx, `
UPDATE file_states SET status = 'Deleted'
WHERE path_hash NOT IN (SELECT value FROM json_each(?)) AND status <> 'Deleted'
  AND NOT `+underAny, set, string(prefixes))
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

// dirPrefixes turns directories into path prefixes ending in a separator, so
// "/n/sub" covers "/n/sub/a.txt" but not "/n/subway.txt".
func dirPrefixes(dirs []string) []string {
	prefixes := make([]string, 0, len(dirs))
	for _, dir := range dirs {
		if dir == "" {
			continue
		}
		dir = fingerprint.Canonical(dir)
		if !strings.HasSuffix(dir, string(filepath.Separator)) {
			dir += string(filepath.Separator)
		}
		prefixes = append(prefixes, dir)
	}
	return prefixes
}

func (t *Table) execSet(ctx context.Context, query string, fps []fingerprint.Fingerprint) (int64, error) {
	if len(fps) == 0 {
		return 0, nil
	}
	set, err := fingerprintJSON(fps)
	if err != nil {
		return 0, nherrors.InternalError("cannot encode fingerprint set", err)
	}
	return t.exec(ctx, query, set)
}

func (t *Table) exec(ctx context.Context, query string, args ...any) (int64, error) {
	var affected int64
	err := t.withTx(ctx, func(tx *sql.Tx) error {
		res, err := tx.ExecContext(ctx, query, args...)
		if err != nil {
			return err
		}
		affected, err = res.RowsAffected()
		return err
	})
	return affected, err
}

// withTx runs fn in a transaction, rolling back when fn fails.
func (t *Table) withTx(ctx context.Context, fn func(tx *sql.Tx) error) error {
	tx, err := t.db.BeginTx(ctx, nil)
	if err != nil {
		return nherrors.New(nherrors.ErrCodeStateWrite, "cannot begin transaction", err)
	}
	if err := fn(tx); err != nil {
		_ = tx.Rollback()
		return nherrors.New(nherrors.ErrCodeStateWrite, "state update failed", err)
	}
	if err := tx.Commit(); err != nil {
		return nherrors.New(nherrors.ErrCodeStateWrite, "cannot commit state update", err)
	}
	return nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanRecord(row rowScanner) (model.FileStateRecord, error) {
	var (
		rec          model.FileStateRecord
		fp, status   string
		lastModified sql.NullInt64
		errMsg       sql.NullString
	)
	if err := row.Scan(&rec.Path, &fp, &status, &lastModified, &errMsg); err != nil {
		return model.FileStateRecord{}, err
	}
	rec.Fingerprint = fingerprint.Fingerprint(fp)
	rec.Status = model.FileStatus(status)
	if lastModified.Valid {
		rec.LastModified = time.Unix(0, lastModified.Int64)
	}
	if errMsg.Valid {
		msg := errMsg.String
		rec.ErrorMessage = &msg
	}
	return rec, nil
}

func fingerprintJSON(fps []fingerprint.Fingerprint) (string, error) {
	if fps == nil {
		fps = []fingerprint.Fingerprint{}
	}
	b, err := json.Marshal(fps)
	if err != nil {
		return "", err
	}
	return string(b), nil
}

func unavailable(path string, cause error) error {
	return nherrors.New(nherrors.ErrCodeStateUnavailable,
		fmt.Sprintf("cannot open file state table at %s", path), cause).
		WithSuggestion("Check that the data directory is writable and not used by another notehunt process")
}

func readErr(op string, cause error) error {
	return nherrors.New(nherrors.ErrCodeStateRead, "file state "+op+" failed", cause)
}

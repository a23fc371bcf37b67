package manifest

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"time"
)

// ErrNoManifest is returned by Load when nothing has been saved under a key.
var ErrNoManifest = errors.New("manifest: no manifest saved for key")

// Verifier checks a manifest against the current state of a template store.
// *provider.Provider satisfies it.
type Verifier interface {
	Verify(templates map[string]int64) bool
}

// BatchSource reports the current modification times of a set of templates.
// *provider.Provider satisfies it.
type BatchSource interface {
	GetLastModifiedBatch(names []string) (map[string]int64, error)
}

// SetupSchema creates the manifest tables. It is idempotent and safe to call
// on an already-initialized database.
func SetupSchema(db *sql.DB) error {
	const (
		schemaManifests = `
CREATE TABLE IF NOT EXISTS manifests (
    manifest_key TEXT PRIMARY KEY,
    saved_at INTEGER NOT NULL
);
`
		schemaEntries = `
CREATE TABLE IF NOT EXISTS manifest_entries (
    manifest_key TEXT NOT NULL,
    template_name TEXT NOT NULL,
    modified INTEGER NOT NULL,
    PRIMARY KEY (manifest_key, template_name)
);
`
	)

	tx, err := db.Begin()
	if err != nil {
		return fmt.Errorf("could not begin transaction: %w", err)
	}
	defer func(tx *sql.Tx) {
		_ = tx.Rollback()
	}(tx)

	if _, err = tx.Exec(schemaManifests); err != nil {
		return fmt.Errorf("could not create manifests schema: %w", err)
	}
	if _, err = tx.Exec(schemaEntries); err != nil {
		return fmt.Errorf("could not create manifest entries schema: %w", err)
	}

	if err = tx.Commit(); err != nil {
		return fmt.Errorf("could not commit transaction: %w", err)
	}
	return nil
}

// Store persists dependency manifests: for a key naming some compiled output,
// the templates it was built from and their modification times at build time.
// All methods are safe for concurrent use.
type Store struct {
	db              *sql.DB
	stmtGetManifest *sql.Stmt
	stmtGetEntries  *sql.Stmt
	stmtPutManifest *sql.Stmt
	stmtPutEntry    *sql.Stmt
	stmtDelManifest *sql.Stmt
	stmtDelEntries  *sql.Stmt
	stmtKeys        *sql.Stmt
	logger          *slog.Logger
}

// NewStore prepares the statements used by the Store. SetupSchema must have
// been called on db first. If any statement fails to prepare, the ones already
// prepared are closed.
func NewStore(db *sql.DB) (*Store, error) {
	s := &Store{
		db:     db,
		logger: slog.New(slog.NewTextHandler(io.Discard, nil)),
	}
	statements := []struct {
		stmt  **sql.Stmt
		query string
	}{
		{&s.stmtGetManifest, `SELECT saved_at FROM manifests WHERE manifest_key = ?;`},
		{&s.stmtGetEntries, `SELECT template_name, modified FROM manifest_entries WHERE manifest_key = ?;`},
		{&s.stmtPutManifest, `INSERT INTO manifests (manifest_key, saved_at) VALUES (?, ?) ON CONFLICT(manifest_key) DO UPDATE SET saved_at = excluded.saved_at;`},
		{&s.stmtPutEntry, `INSERT INTO manifest_entries (manifest_key, template_name, modified) VALUES (?, ?, ?);`},
		{&s.stmtDelManifest, `DELETE FROM manifests WHERE manifest_key = ?;`},
		{&s.stmtDelEntries, `DELETE FROM manifest_entries WHERE manifest_key = ?;`},
		{&s.stmtKeys, `SELECT manifest_key FROM manifests ORDER BY manifest_key;`},
	}
	for _, st := range statements {
		stmt, err := db.Prepare(st.query)
		if err != nil {
			s.Close()
			return nil, fmt.Errorf("could not prepare statement %q: %w", st.query, err)
		}
		*st.stmt = stmt
	}
	return s, nil
}

// Close releases the prepared statements. The database itself is left open.
func (s *Store) Close() {
	for _, stmt := range s.statements() {
		if stmt != nil {
			_ = stmt.Close()
		}
	}
}

func (s *Store) statements() []*sql.Stmt {
	return []*sql.Stmt{
		s.stmtGetManifest,
		s.stmtGetEntries,
		s.stmtPutManifest,
		s.stmtPutEntry,
		s.stmtDelManifest,
		s.stmtDelEntries,
		s.stmtKeys,
	}
}

// SetLogger sets the logger for the Store. By default, all logs are discarded.
func (s *Store) SetLogger(logger *slog.Logger) {
	if logger != nil {
		s.logger = logger
	}
}

// Save replaces the manifest stored under key with deps.
func (s *Store) Save(ctx context.Context, key string, deps map[string]int64) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("could not begin transaction: %w", err)
	}
	defer func(tx *sql.Tx) {
		_ = tx.Rollback()
	}(tx)

	if _, err = tx.StmtContext(ctx, s.stmtDelEntries).ExecContext(ctx, key); err != nil {
		return fmt.Errorf("could not clear manifest %s: %w", key, err)
	}
	if _, err = tx.StmtContext(ctx, s.stmtPutManifest).ExecContext(ctx, key, time.Now().Unix()); err != nil {
		return fmt.Errorf("could not save manifest %s: %w", key, err)
	}
	putEntry := tx.StmtContext(ctx, s.stmtPutEntry)
	for name, modified := range deps {
		if _, err = putEntry.ExecContext(ctx, key, name, modified); err != nil {
			return fmt.Errorf("could not save manifest entry %s/%s: %w", key, name, err)
		}
	}

	if err = tx.Commit(); err != nil {
		return fmt.Errorf("could not commit transaction: %w", err)
	}
	s.logger.Debug("Saved manifest", "key", key, "entries", len(deps))
	return nil
}

// Load returns the manifest stored under key, or ErrNoManifest.
func (s *Store) Load(ctx context.Context, key string) (map[string]int64, error) {
	var savedAt int64
	err := s.stmtGetManifest.QueryRowContext(ctx, key).Scan(&savedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s", ErrNoManifest, key)
	}
	if err != nil {
		return nil, err
	}

	rows, err := s.stmtGetEntries.QueryContext(ctx, key)
	if err != nil {
		return nil, err
	}
	defer func(rows *sql.Rows) {
		_ = rows.Close()
	}(rows)

	deps := make(map[string]int64)
	for rows.Next() {
		var name string
		var modified int64
		if err = rows.Scan(&name, &modified); err != nil {
			return nil, err
		}
		deps[name] = modified
	}
	if err = rows.Err(); err != nil {
		return nil, err
	}
	return deps, nil
}

// Delete removes the manifest stored under key. Deleting a missing key is not
// an error.
func (s *Store) Delete(ctx context.Context, key string) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("could not begin transaction: %w", err)
	}
	defer func(tx *sql.Tx) {
		_ = tx.Rollback()
	}(tx)

	if _, err = tx.StmtContext(ctx, s.stmtDelEntries).ExecContext(ctx, key); err != nil {
		return fmt.Errorf("could not delete manifest entries %s: %w", key, err)
	}
	if _, err = tx.StmtContext(ctx, s.stmtDelManifest).ExecContext(ctx, key); err != nil {
		return fmt.Errorf("could not delete manifest %s: %w", key, err)
	}
	return tx.Commit()
}

// Keys returns every stored manifest key in ascending order.
func (s *Store) Keys(ctx context.Context) ([]string, error) {
	rows, err := s.stmtKeys.QueryContext(ctx)
	if err != nil {
		return nil, err
	}
	defer func(rows *sql.Rows) {
		_ = rows.Close()
	}(rows)

	keys := []string{}
	for rows.Next() {
		var key string
		if err = rows.Scan(&key); err != nil {
			return nil, err
		}
		keys = append(keys, key)
	}
	if err = rows.Err(); err != nil {
		return nil, err
	}
	return keys, nil
}

// Record reads the current modification times of names from src and saves
// them under key. The recorded manifest is returned.
func (s *Store) Record(ctx context.Context, src BatchSource, key string, names []string) (map[string]int64, error) {
	deps, err := src.GetLastModifiedBatch(names)
	if err != nil {
		return nil, err
	}
	if err = s.Save(ctx, key, deps); err != nil {
		return nil, err
	}
	return deps, nil
}

// Fresh reports whether the manifest stored under key still matches v. A key
// with no manifest is never fresh.
func (s *Store) Fresh(ctx context.Context, v Verifier, key string) (bool, error) {
	deps, err := s.Load(ctx, key)
	if errors.Is(err, ErrNoManifest) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	fresh := v.Verify(deps)
	s.logger.Debug("Checked manifest", "key", key, "fresh", fresh)
	return fresh, nil
}

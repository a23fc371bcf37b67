package manifest

import (
	"context"
	"database/sql"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/CTAG07/tplsource/pkg/provider"
	"github.com/google/go-cmp/cmp"
	_ "github.com/mattn/go-sqlite3"
)

// setupTestStore opens a SQLite database in a temp dir and returns a Store on it.
func setupTestStore(t *testing.T) *Store {
	t.Helper()
	dbFile := filepath.Join(t.TempDir(), "manifest.db")
	db, err := sql.Open("sqlite3", dbFile+"?_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		t.Fatalf("failed to open database: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })

	if err = SetupSchema(db); err != nil {
		t.Fatalf("failed to set up schema: %v", err)
	}
	// A second call must be harmless.
	if err = SetupSchema(db); err != nil {
		t.Fatalf("SetupSchema is not idempotent: %v", err)
	}

	s, err := NewStore(db)
	if err != nil {
		t.Fatalf("NewStore() error = %v", err)
	}
	t.Cleanup(s.Close)
	return s
}

func TestNewStore_PrepareFailure(t *testing.T) {
	db, err := sql.Open("sqlite3", filepath.Join(t.TempDir(), "partial.db"))
	if err != nil {
		t.Fatalf("failed to open database: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })

	// Only the first table exists, so the second statement fails to prepare.
	if _, err = db.Exec(`CREATE TABLE manifests (manifest_key TEXT PRIMARY KEY, saved_at INTEGER NOT NULL);`); err != nil {
		t.Fatal(err)
	}
	s, err := NewStore(db)
	if err == nil {
		s.Close()
		t.Fatal("expected NewStore to fail without the manifest_entries table")
	}
	if s != nil {
		t.Errorf("expected a nil Store on failure, got %v", s)
	}
	if !strings.Contains(err.Error(), "manifest_entries") {
		t.Errorf("expected the error to name the failing statement, got %v", err)
	}

	// Close on a partially prepared Store closes what exists and skips the rest.
	stmt, err := db.Prepare(`SELECT manifest_key FROM manifests;`)
	if err != nil {
		t.Fatal(err)
	}
	(&Store{stmtGetManifest: stmt}).Close()
	if _, err = stmt.Query(); err == nil {
		t.Error("expected the statement to be closed")
	}
}

type staticVerifier bool

func (v staticVerifier) Verify(map[string]int64) bool { return bool(v) }

func TestStore_SaveLoad(t *testing.T) {
	s := setupTestStore(t)
	ctx := context.Background()

	first := map[string]int64{"index.tpl": 100, "layout.tpl": 200}
	if err := s.Save(ctx, "index.tpl", first); err != nil {
		t.Fatalf("Save failed: %v", err)
	}
	got, err := s.Load(ctx, "index.tpl")
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if diff := cmp.Diff(first, got); diff != "" {
		t.Errorf("Load mismatch (-want +got):\n%s", diff)
	}

	// Saving again replaces rather than merges.
	second := map[string]int64{"index.tpl": 300}
	if err = s.Save(ctx, "index.tpl", second); err != nil {
		t.Fatalf("second Save failed: %v", err)
	}
	got, err = s.Load(ctx, "index.tpl")
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if diff := cmp.Diff(second, got); diff != "" {
		t.Errorf("Load after replace mismatch (-want +got):\n%s", diff)
	}

	// An empty manifest is still a manifest.
	if err = s.Save(ctx, "static.tpl", nil); err != nil {
		t.Fatalf("Save of empty manifest failed: %v", err)
	}
	got, err = s.Load(ctx, "static.tpl")
	if err != nil || len(got) != 0 {
		t.Errorf("expected empty manifest, got %v, %v", got, err)
	}

	if _, err = s.Load(ctx, "missing.tpl"); !errors.Is(err, ErrNoManifest) {
		t.Errorf("expected ErrNoManifest, got %v", err)
	}
}

func TestStore_KeysDelete(t *testing.T) {
	s := setupTestStore(t)
	ctx := context.Background()

	for _, key := range []string{"b.tpl", "a.tpl", "c.tpl"} {
		if err := s.Save(ctx, key, map[string]int64{key: 1}); err != nil {
			t.Fatalf("Save(%s) failed: %v", key, err)
		}
	}
	keys, err := s.Keys(ctx)
	if err != nil {
		t.Fatalf("Keys failed: %v", err)
	}
	if diff := cmp.Diff([]string{"a.tpl", "b.tpl", "c.tpl"}, keys); diff != "" {
		t.Errorf("Keys mismatch (-want +got):\n%s", diff)
	}

	if err = s.Delete(ctx, "b.tpl"); err != nil {
		t.Fatalf("Delete failed: %v", err)
	}
	if err = s.Delete(ctx, "b.tpl"); err != nil {
		t.Errorf("deleting a missing key should not fail, got %v", err)
	}
	if _, err = s.Load(ctx, "b.tpl"); !errors.Is(err, ErrNoManifest) {
		t.Errorf("expected ErrNoManifest after Delete, got %v", err)
	}
	keys, _ = s.Keys(ctx)
	if diff := cmp.Diff([]string{"a.tpl", "c.tpl"}, keys); diff != "" {
		t.Errorf("Keys after Delete mismatch (-want +got):\n%s", diff)
	}
}

func TestStore_Fresh(t *testing.T) {
	s := setupTestStore(t)
	ctx := context.Background()

	fresh, err := s.Fresh(ctx, staticVerifier(true), "never-saved")
	if err != nil || fresh {
		t.Errorf("a missing manifest should be stale without error, got %v, %v", fresh, err)
	}

	if err = s.Save(ctx, "page", map[string]int64{"page.tpl": 1}); err != nil {
		t.Fatal(err)
	}
	if fresh, _ = s.Fresh(ctx, staticVerifier(true), "page"); !fresh {
		t.Error("expected fresh when the verifier accepts")
	}
	if fresh, _ = s.Fresh(ctx, staticVerifier(false), "page"); fresh {
		t.Error("expected stale when the verifier rejects")
	}
}

func TestStore_RecordWithProvider(t *testing.T) {
	s := setupTestStore(t)
	ctx := context.Background()

	root := t.TempDir()
	path := filepath.Join(root, "page.tpl")
	if err := os.WriteFile(path, []byte("page"), 0644); err != nil {
		t.Fatal(err)
	}
	mtime := time.Unix(1_700_000_000, 0)
	if err := os.Chtimes(path, mtime, mtime); err != nil {
		t.Fatal(err)
	}
	p, err := provider.New(root)
	if err != nil {
		t.Fatalf("provider.New failed: %v", err)
	}

	deps, err := s.Record(ctx, p, "page", []string{"page.tpl"})
	if err != nil {
		t.Fatalf("Record failed: %v", err)
	}
	if deps["page.tpl"] != mtime.Unix() {
		t.Errorf("expected recorded mtime %d, got %d", mtime.Unix(), deps["page.tpl"])
	}
	if fresh, err := s.Fresh(ctx, p, "page"); err != nil || !fresh {
		t.Fatalf("expected fresh manifest, got %v, %v", fresh, err)
	}

	later := mtime.Add(time.Minute)
	if err = os.Chtimes(path, later, later); err != nil {
		t.Fatal(err)
	}
	if fresh, _ := s.Fresh(ctx, p, "page"); fresh {
		t.Error("expected stale manifest after the template was touched")
	}

	if _, err = s.Record(ctx, p, "broken", []string{"missing.tpl"}); !errors.Is(err, provider.ErrNotFound) {
		t.Errorf("expected provider.ErrNotFound, got %v", err)
	}
	if _, err = s.Load(ctx, "broken"); !errors.Is(err, ErrNoManifest) {
		t.Errorf("a failed Record must not save anything, got %v", err)
	}
}

package store

import (
	"context"
	"database/sql"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"
)

func migrationsDir() string {
	return filepath.Join("..", "..", "db", "migrations")
}

func openTestDB(t *testing.T) (*sql.DB, context.Context) {
	t.Helper()
	dsn := strings.TrimSpace(os.Getenv("OUTLINE_TEST_DATABASE_URL"))
	if dsn == "" {
		t.Skip("OUTLINE_TEST_DATABASE_URL is not set")
	}

	db, err := sql.Open("pgx", dsn)
	if err != nil {
		t.Fatalf("open postgres: %v", err)
	}
	t.Cleanup(func() { db.Close() })

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	t.Cleanup(cancel)

	if err := db.PingContext(ctx); err != nil {
		t.Fatalf("ping postgres: %v", err)
	}
	if _, err := db.ExecContext(ctx, `DROP SCHEMA IF EXISTS public CASCADE; CREATE SCHEMA public;`); err != nil {
		t.Fatalf("reset schema: %v", err)
	}
	return db, ctx
}

func TestMigrationsRoundTripPostgres(t *testing.T) {
	db, ctx := openTestDB(t)
	dir := migrationsDir()

	applied, err := ApplyMigrations(ctx, db, dir)
	if err != nil {
		t.Fatalf("apply up migrations (pass 1): %v", err)
	}
	if len(applied) == 0 {
		t.Fatal("no migrations applied")
	}
	again, err := ApplyMigrations(ctx, db, dir)
	if err != nil || len(again) != 0 {
		t.Fatalf("second apply = %v, %v", again, err)
	}

	reverted, err := RevertMigrations(ctx, db, dir)
	if err != nil {
		t.Fatalf("revert migrations: %v", err)
	}
	if len(reverted) != len(applied) {
		t.Fatalf("reverted %d of %d migrations", len(reverted), len(applied))
	}

	if _, err := ApplyMigrations(ctx, db, dir); err != nil {
		t.Fatalf("apply up migrations (pass 2): %v", err)
	}
}

func TestOutlineStorePostgres(t *testing.T) {
	db, ctx := openTestDB(t)
	if _, err := ApplyMigrations(ctx, db, migrationsDir()); err != nil {
		t.Fatalf("apply migrations: %v", err)
	}
	s := NewPostgresStore(db)

	if err := s.InsertDocument(ctx, Document{ID: "doc_1", Title: "Plan", Content: []byte(`{"type":"doc"}`), UpdatedBy: "ava"}); err != nil {
		t.Fatalf("InsertDocument() error = %v", err)
	}
	next := Document{Title: "Plan v2", Content: []byte(`{"type":"doc","content":[]}`), Revision: 1, UpdatedBy: "ava"}
	if err := s.SaveDocumentContent(ctx, "doc_1", 0, next); err != nil {
		t.Fatalf("SaveDocumentContent() error = %v", err)
	}
	if err := s.SaveDocumentContent(ctx, "doc_1", 0, next); !errors.Is(err, ErrRevisionConflict) {
		t.Fatalf("stale save error = %v, want ErrRevisionConflict", err)
	}
	if err := s.SaveDocumentContent(ctx, "missing", 0, next); !errors.Is(err, sql.ErrNoRows) {
		t.Fatalf("missing save error = %v, want sql.ErrNoRows", err)
	}
	got, err := s.GetDocument(ctx, "doc_1")
	if err != nil || got.Revision != 1 || got.Title != "Plan v2" {
		t.Fatalf("GetDocument() = %+v, %v", got, err)
	}

	first := []OutlineEntry{
		{ID: "doc_1_0-0", Address: "0.0", Number: "1", Level: 1, Title: "Scope"},
		{ID: "doc_1_0-1", Address: "0.1", Number: "1.1", Level: 2, Title: "Goals"},
	}
	if _, err := s.ReplaceOutlineEntries(ctx, "doc_1", first); err != nil {
		t.Fatalf("ReplaceOutlineEntries() error = %v", err)
	}
	removed, err := s.ReplaceOutlineEntries(ctx, "doc_1", first[:1])
	if err != nil {
		t.Fatalf("ReplaceOutlineEntries() error = %v", err)
	}
	if len(removed) != 1 || removed[0] != "doc_1_0-1" {
		t.Fatalf("removed = %v", removed)
	}

	if err := s.InsertExport(ctx, ExportRecord{ID: "exp_1", DocumentID: "doc_1", Revision: 1, Format: "html", ObjectKey: "doc_1/exp_1.html", SizeBytes: 12}); err != nil {
		t.Fatalf("InsertExport() error = %v", err)
	}
	exports, err := s.ListExports(ctx, "doc_1", 0)
	if err != nil || len(exports) != 1 {
		t.Fatalf("ListExports() = %+v, %v", exports, err)
	}

	ids, err := s.DeleteDocument(ctx, "doc_1")
	if err != nil || len(ids) != 1 {
		t.Fatalf("DeleteDocument() = %v, %v", ids, err)
	}
	if _, err := s.GetDocument(ctx, "doc_1"); !errors.Is(err, sql.ErrNoRows) {
		t.Fatalf("GetDocument() after delete error = %v", err)
	}
}

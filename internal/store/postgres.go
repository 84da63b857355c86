package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
)

// ErrRevisionConflict is returned when a save is based on a stale revision.
var ErrRevisionConflict = errors.New("document revision conflict")

type PostgresStore struct {
	db *sql.DB
}

func NewPostgresStore(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

func (s *PostgresStore) DB() *sql.DB {
	return s.db
}

func (s *PostgresStore) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

func (s *PostgresStore) ListDocuments(ctx context.Context) ([]Document, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, title, revision, updated_by, created_at, updated_at
		FROM documents
		ORDER BY updated_at DESC, id
	`)
	if err != nil {
		return nil, fmt.Errorf("list documents: %w", err)
	}
	defer rows.Close()

	var items []Document
	for rows.Next() {
		var item Document
		if err := rows.Scan(&item.ID, &item.Title, &item.Revision, &item.UpdatedBy, &item.CreatedAt, &item.UpdatedAt); err != nil {
			return nil, err
		}
		items = append(items, item)
	}
	return items, rows.Err()
}

// GetDocument returns sql.ErrNoRows when the document does not exist.
func (s *PostgresStore) GetDocument(ctx context.Context, documentID string) (Document, error) {
	var item Document
	var content []byte
	err := s.db.QueryRowContext(ctx, `
		SELECT id, title, content, revision, updated_by, created_at, updated_at
		FROM documents WHERE id=$1
	`, documentID).Scan(&item.ID, &item.Title, &content, &item.Revision, &item.UpdatedBy, &item.CreatedAt, &item.UpdatedAt)
	if err != nil {
		return Document{}, err
	}
	item.Content = json.RawMessage(content)
	return item, nil
}

func (s *PostgresStore) InsertDocument(ctx context.Context, item Document) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO documents (id, title, content, revision, updated_by)
		VALUES ($1, $2, $3, $4, $5)
	`, item.ID, item.Title, []byte(item.Content), item.Revision, item.UpdatedBy)
	if err != nil {
		return fmt.Errorf("insert document: %w", err)
	}
	return nil
}

// SaveDocumentContent stores a new revision of the document body. The write
// only lands when the stored revision still equals expectedRevision.
func (s *PostgresStore) SaveDocumentContent(ctx context.Context, documentID string, expectedRevision int64, item Document) error {
	res, err := s.db.ExecContext(ctx, `
		UPDATE documents
		SET title=$3, content=$4, revision=$5, updated_by=$6, updated_at=NOW()
		WHERE id=$1 AND revision=$2
	`, documentID, expectedRevision, item.Title, []byte(item.Content), item.Revision, item.UpdatedBy)
	if err != nil {
		return fmt.Errorf("save document: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 1 {
		return nil
	}
	var exists bool
	if err := s.db.QueryRowContext(ctx, `SELECT EXISTS(SELECT 1 FROM documents WHERE id=$1)`, documentID).Scan(&exists); err != nil {
		return fmt.Errorf("check document: %w", err)
	}
	if !exists {
		return sql.ErrNoRows
	}
	return ErrRevisionConflict
}

// DeleteDocument removes the document and returns the ids of the outline
// entries that went with it.
func (s *PostgresStore) DeleteDocument(ctx context.Context, documentID string) ([]string, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback()

	ids, err := entryIDs(ctx, tx, documentID)
	if err != nil {
		return nil, err
	}
	res, err := tx.ExecContext(ctx, `DELETE FROM documents WHERE id=$1`, documentID)
	if err != nil {
		return nil, fmt.Errorf("delete document: %w", err)
	}
	if affected, _ := res.RowsAffected(); affected == 0 {
		return nil, sql.ErrNoRows
	}
	if err := tx.Commit(); err != nil {
		return nil, err
	}
	return ids, nil
}

// ReplaceOutlineEntries swaps the stored outline of a document for entries
// and returns the ids that are no longer present.
func (s *PostgresStore) ReplaceOutlineEntries(ctx context.Context, documentID string, entries []OutlineEntry) ([]string, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback()

	previous, err := entryIDs(ctx, tx, documentID)
	if err != nil {
		return nil, err
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM outline_entries WHERE document_id=$1`, documentID); err != nil {
		return nil, fmt.Errorf("clear outline entries: %w", err)
	}

	keep := make(map[string]struct{}, len(entries))
	for i, entry := range entries {
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO outline_entries (id, document_id, position, address, number, level, title, overridden)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		`, entry.ID, documentID, i, entry.Address, entry.Number, entry.Level, entry.Title, entry.Overridden); err != nil {
			return nil, fmt.Errorf("insert outline entry: %w", err)
		}
		keep[entry.ID] = struct{}{}
	}
	if err := tx.Commit(); err != nil {
		return nil, err
	}

	var removed []string
	for _, id := range previous {
		if _, ok := keep[id]; !ok {
			removed = append(removed, id)
		}
	}
	return removed, nil
}

func (s *PostgresStore) ListOutlineEntries(ctx context.Context, documentID string) ([]OutlineEntry, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, document_id, position, address, number, level, title, overridden
		FROM outline_entries
		WHERE document_id=$1
		ORDER BY position
	`, documentID)
	if err != nil {
		return nil, fmt.Errorf("list outline entries: %w", err)
	}
	defer rows.Close()

	var items []OutlineEntry
	for rows.Next() {
		var item OutlineEntry
		if err := rows.Scan(&item.ID, &item.DocumentID, &item.Position, &item.Address, &item.Number, &item.Level, &item.Title, &item.Overridden); err != nil {
			return nil, err
		}
		items = append(items, item)
	}
	return items, rows.Err()
}

func (s *PostgresStore) InsertExport(ctx context.Context, record ExportRecord) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO outline_exports (id, document_id, revision, format, object_key, size_bytes, created_by)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`, record.ID, record.DocumentID, record.Revision, record.Format, record.ObjectKey, record.SizeBytes, record.CreatedBy)
	if err != nil {
		return fmt.Errorf("insert export: %w", err)
	}
	return nil
}

func (s *PostgresStore) ListExports(ctx context.Context, documentID string, limit int) ([]ExportRecord, error) {
	if limit <= 0 || limit > 200 {
		limit = 50
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, document_id, revision, format, object_key, size_bytes, created_by, created_at
		FROM outline_exports
		WHERE document_id=$1
		ORDER BY created_at DESC
		LIMIT $2
	`, documentID, limit)
	if err != nil {
		return nil, fmt.Errorf("list exports: %w", err)
	}
	defer rows.Close()

	var items []ExportRecord
	for rows.Next() {
		var item ExportRecord
		if err := rows.Scan(&item.ID, &item.DocumentID, &item.Revision, &item.Format, &item.ObjectKey, &item.SizeBytes, &item.CreatedBy, &item.CreatedAt); err != nil {
			return nil, err
		}
		items = append(items, item)
	}
	return items, rows.Err()
}

func entryIDs(ctx context.Context, tx *sql.Tx, documentID string) ([]string, error) {
	rows, err := tx.QueryContext(ctx, `SELECT id FROM outline_entries WHERE document_id=$1 ORDER BY position`, documentID)
	if err != nil {
		return nil, fmt.Errorf("list entry ids: %w", err)
	}
	defer rows.Close()
	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

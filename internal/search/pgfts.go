package search

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
)

// PgFTS implements Searcher over the outline tables as a fallback when
// Meilisearch is not reachable.
type PgFTS struct {
	db *sql.DB
}

// NewPgFTS creates a PostgreSQL searcher.
func NewPgFTS(db *sql.DB) *PgFTS {
	return &PgFTS{db: db}
}

// Healthy always returns true: if Postgres is down, the whole app is down.
func (p *PgFTS) Healthy() bool {
	return true
}

// Search matches document titles and outline entry titles or numbers with
// a case-insensitive substring match.
func (p *PgFTS) Search(ctx context.Context, q Query) ([]Result, int, error) {
	if strings.TrimSpace(q.Text) == "" {
		return nil, 0, nil
	}

	limit := q.Limit
	if limit <= 0 {
		limit = 20
	}
	offset := q.Offset
	if offset < 0 {
		offset = 0
	}

	args := []any{"%" + escapeLike(strings.TrimSpace(q.Text)) + "%"}
	argN := 2

	var subQueries []string

	if q.FilterType == "" || q.FilterType == ResultDocument {
		docWhere := "d.title ILIKE $1"
		if q.FilterDocumentID != "" {
			docWhere += fmt.Sprintf(" AND d.id = $%d", argN)
			args = append(args, q.FilterDocumentID)
			argN++
		}
		subQueries = append(subQueries, fmt.Sprintf(`
			SELECT 'document'::text AS type, d.id, d.title, ''::text AS snippet,
				d.id AS document_id, ''::text AS number, ''::text AS address,
				0 AS type_rank, 0 AS position
			FROM documents d
			WHERE %s`, docWhere))
	}

	if q.FilterType == "" || q.FilterType == ResultEntry {
		entryWhere := "(e.title ILIKE $1 OR e.number ILIKE $1)"
		if q.FilterDocumentID != "" {
			entryWhere += fmt.Sprintf(" AND e.document_id = $%d", argN)
			args = append(args, q.FilterDocumentID)
			argN++
		}
		subQueries = append(subQueries, fmt.Sprintf(`
			SELECT 'entry'::text AS type, e.id, e.title, d.title AS snippet,
				e.document_id, e.number, e.address,
				1 AS type_rank, e.position
			FROM outline_entries e
			JOIN documents d ON d.id = e.document_id
			WHERE %s`, entryWhere))
	}

	if len(subQueries) == 0 {
		return nil, 0, nil
	}

	countSQL := fmt.Sprintf("SELECT count(*) FROM (%s) sub",
		strings.Join(subQueries, " UNION ALL "))

	dataSQL := fmt.Sprintf(`SELECT type, id, title, snippet, document_id, number, address
		FROM (%s) sub
		ORDER BY type_rank ASC, document_id ASC, position ASC
		LIMIT %d OFFSET %d`,
		strings.Join(subQueries, " UNION ALL "),
		limit, offset)

	var total int
	if err := p.db.QueryRowContext(ctx, countSQL, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("pgfts count: %w", err)
	}

	rows, err := p.db.QueryContext(ctx, dataSQL, args...)
	if err != nil {
		return nil, 0, fmt.Errorf("pgfts query: %w", err)
	}
	defer rows.Close()

	var results []Result
	for rows.Next() {
		var r Result
		var typ string
		if err := rows.Scan(&typ, &r.ID, &r.Title, &r.Snippet, &r.DocumentID, &r.Number, &r.Address); err != nil {
			return nil, 0, fmt.Errorf("pgfts scan: %w", err)
		}
		r.Type = ResultType(typ)
		results = append(results, r)
	}

	return results, total, rows.Err()
}

// LoadAllRecords returns all searchable records for full reindexing.
func (p *PgFTS) LoadAllRecords(ctx context.Context) ([]DocumentRecord, []EntryRecord, error) {
	docRows, err := p.db.QueryContext(ctx, `SELECT id, title, revision FROM documents`)
	if err != nil {
		return nil, nil, fmt.Errorf("load documents: %w", err)
	}
	defer docRows.Close()

	documents := make([]DocumentRecord, 0)
	for docRows.Next() {
		var d DocumentRecord
		if err := docRows.Scan(&d.ID, &d.Title, &d.Revision); err != nil {
			return nil, nil, fmt.Errorf("scan document: %w", err)
		}
		documents = append(documents, d)
	}
	if err := docRows.Err(); err != nil {
		return nil, nil, fmt.Errorf("iterate documents: %w", err)
	}

	entryRows, err := p.db.QueryContext(ctx, `
		SELECT e.id, e.document_id, d.title, e.address, e.number, e.level, e.title
		FROM outline_entries e
		JOIN documents d ON d.id = e.document_id
	`)
	if err != nil {
		return nil, nil, fmt.Errorf("load entries: %w", err)
	}
	defer entryRows.Close()

	entries := make([]EntryRecord, 0)
	for entryRows.Next() {
		var e EntryRecord
		if err := entryRows.Scan(&e.ID, &e.DocumentID, &e.DocumentTitle, &e.Address, &e.Number, &e.Level, &e.Title); err != nil {
			return nil, nil, fmt.Errorf("scan entry: %w", err)
		}
		entries = append(entries, e)
	}
	if err := entryRows.Err(); err != nil {
		return nil, nil, fmt.Errorf("iterate entries: %w", err)
	}

	return documents, entries, nil
}

func escapeLike(value string) string {
	replacer := strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)
	return replacer.Replace(value)
}

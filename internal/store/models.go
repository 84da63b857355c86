package store

import (
	"encoding/json"
	"time"
)

type Document struct {
	ID        string
	Title     string
	Content   json.RawMessage
	Revision  int64
	UpdatedBy string
	CreatedAt time.Time
	UpdatedAt time.Time
}

// OutlineEntry is one numbered heading, stored for search and listings.
type OutlineEntry struct {
	ID         string
	DocumentID string
	Position   int
	Address    string
	Number     string
	Level      int
	Title      string
	Overridden bool
}

// ExportRecord points at a rendered export kept in object storage.
type ExportRecord struct {
	ID         string
	DocumentID string
	Revision   int64
	Format     string
	ObjectKey  string
	SizeBytes  int64
	CreatedBy  string
	CreatedAt  time.Time
}

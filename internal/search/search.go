package search

import (
	"context"
	"strings"

	"chronicle/outline/internal/numbering"
)

// ResultType identifies the kind of entity in a search result.
type ResultType string

const (
	ResultDocument ResultType = "document"
	ResultEntry    ResultType = "entry"
)

// Result is a single search hit returned to the caller.
type Result struct {
	Type       ResultType `json:"type"`
	ID         string     `json:"id"`
	Title      string     `json:"title"`
	Snippet    string     `json:"snippet"`
	DocumentID string     `json:"documentId"`
	Number     string     `json:"number,omitempty"`
	Address    string     `json:"address,omitempty"`
}

// Query describes a search request.
type Query struct {
	Text             string
	FilterType       ResultType // empty = all types
	FilterDocumentID string
	Limit            int
	Offset           int
}

// Response is the envelope returned by the search endpoint.
type Response struct {
	Results []Result `json:"results"`
	Total   int      `json:"total"`
	Query   string   `json:"query"`
}

// Searcher can execute a full-text search.
type Searcher interface {
	Search(ctx context.Context, q Query) ([]Result, int, error)
	Healthy() bool
}

// Indexer can push outline data into a search index.
type Indexer interface {
	Searcher
	IndexDocument(doc DocumentRecord) error
	IndexEntries(entries []EntryRecord) error
	DeleteEntries(ids []string) error
	DeleteDocument(id string) error
}

// DocumentRecord is the data we index for a document.
type DocumentRecord struct {
	ID       string `json:"id"`
	Title    string `json:"title"`
	Revision int64  `json:"revision"`
}

// EntryRecord is one numbered heading of a document.
type EntryRecord struct {
	ID            string `json:"id"`
	DocumentID    string `json:"documentId"`
	DocumentTitle string `json:"documentTitle"`
	Address       string `json:"address"`
	Number        string `json:"number"`
	Level         int    `json:"level"`
	Title         string `json:"title"`
}

// EntryID derives a stable index key from a document and item address.
// Dots are not valid in index keys, so they become dashes.
func EntryID(documentID, address string) string {
	return documentID + "_" + strings.ReplaceAll(address, ".", "-")
}

// EntryRecords converts numbered headings into index records.
func EntryRecords(documentID, documentTitle string, entries []numbering.Entry) []EntryRecord {
	records := make([]EntryRecord, 0, len(entries))
	for _, entry := range entries {
		records = append(records, EntryRecord{
			ID:            EntryID(documentID, entry.Address),
			DocumentID:    documentID,
			DocumentTitle: documentTitle,
			Address:       entry.Address,
			Number:        entry.Number,
			Level:         entry.Level,
			Title:         entry.Title,
		})
	}
	return records
}

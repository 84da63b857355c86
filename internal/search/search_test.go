package search

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"

	meili "github.com/meilisearch/meilisearch-go"

	"chronicle/outline/internal/numbering"
)

type fakeIndex struct {
	mu        sync.Mutex
	healthy   bool
	searchErr error
	results   []Result
	documents []DocumentRecord
	entries   []EntryRecord
	deleted   []string
}

func (f *fakeIndex) Search(_ context.Context, q Query) ([]Result, int, error) {
	if f.searchErr != nil {
		return nil, 0, f.searchErr
	}
	return f.results, len(f.results), nil
}

func (f *fakeIndex) Healthy() bool { return f.healthy }

func (f *fakeIndex) IndexDocument(doc DocumentRecord) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.documents = append(f.documents, doc)
	return nil
}

func (f *fakeIndex) IndexEntries(entries []EntryRecord) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.entries = append(f.entries, entries...)
	return nil
}

func (f *fakeIndex) DeleteEntries(ids []string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.deleted = append(f.deleted, ids...)
	return nil
}

func (f *fakeIndex) DeleteDocument(id string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.deleted = append(f.deleted, id)
	return nil
}

type fakeSearcher struct {
	calls   int
	results []Result
	err     error
}

func (f *fakeSearcher) Search(_ context.Context, q Query) ([]Result, int, error) {
	f.calls++
	return f.results, len(f.results), f.err
}

func (f *fakeSearcher) Healthy() bool { return true }

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestServicePrefersHealthyIndex(t *testing.T) {
	index := &fakeIndex{healthy: true, results: []Result{{Type: ResultEntry, ID: "doc_1_0-0"}}}
	fallback := &fakeSearcher{}
	svc := NewService(index, fallback, quietLogger())

	resp := svc.Search(context.Background(), Query{Text: "scope"})
	if resp.Total != 1 || resp.Results[0].ID != "doc_1_0-0" {
		t.Fatalf("unexpected response: %+v", resp)
	}
	if fallback.calls != 0 {
		t.Errorf("fallback called %d times with a healthy index", fallback.calls)
	}
}

func TestServiceFallsBack(t *testing.T) {
	tests := []struct {
		name  string
		index Indexer
	}{
		{name: "no index", index: nil},
		{name: "unhealthy index", index: &fakeIndex{healthy: false}},
		{name: "index error", index: &fakeIndex{healthy: true, searchErr: errors.New("boom")}},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			fallback := &fakeSearcher{results: []Result{{Type: ResultDocument, ID: "doc_1"}}}
			svc := NewService(tc.index, fallback, quietLogger())
			resp := svc.Search(context.Background(), Query{Text: "plan"})
			if fallback.calls != 1 {
				t.Fatalf("expected one fallback call, got %d", fallback.calls)
			}
			if len(resp.Results) != 1 || resp.Query != "plan" {
				t.Fatalf("unexpected response: %+v", resp)
			}
		})
	}
}

func TestServiceFallbackErrorReturnsEmpty(t *testing.T) {
	svc := NewService(nil, &fakeSearcher{err: errors.New("db down")}, quietLogger())
	resp := svc.Search(context.Background(), Query{Text: "x"})
	if resp.Results == nil || len(resp.Results) != 0 || resp.Total != 0 {
		t.Fatalf("expected empty non-nil results, got %+v", resp)
	}
}

func TestIndexOutline(t *testing.T) {
	index := &fakeIndex{healthy: true}
	svc := NewService(index, nil, quietLogger())

	entries := EntryRecords("doc_1", "Plan", []numbering.Entry{
		{Address: "0.0", Number: "1", Level: 1, Title: "Scope"},
		{Address: "0.1", Number: "1.1", Level: 2, Title: "Goals"},
	})
	svc.IndexOutline(DocumentRecord{ID: "doc_1", Title: "Plan", Revision: 3}, entries, []string{"doc_1_0-4"})
	svc.Wait()

	if len(index.documents) != 1 || index.documents[0].Revision != 3 {
		t.Fatalf("documents = %+v", index.documents)
	}
	if len(index.entries) != 2 || index.entries[1].ID != "doc_1_0-1" || index.entries[1].DocumentTitle != "Plan" {
		t.Fatalf("entries = %+v", index.entries)
	}
	if len(index.deleted) != 1 || index.deleted[0] != "doc_1_0-4" {
		t.Fatalf("deleted = %v", index.deleted)
	}

	// An unhealthy index is skipped without blocking.
	index.healthy = false
	svc.IndexOutline(DocumentRecord{ID: "doc_2"}, nil, nil)
	svc.Wait()
	if len(index.documents) != 1 {
		t.Fatalf("unhealthy index received writes: %+v", index.documents)
	}
}

func TestHitToResult(t *testing.T) {
	hit := meili.Hit{
		"id":            json.RawMessage(`"doc_1_0-1"`),
		"documentId":    json.RawMessage(`"doc_1"`),
		"documentTitle": json.RawMessage(`"Plan"`),
		"number":        json.RawMessage(`"1.1"`),
		"address":       json.RawMessage(`"0.1"`),
		"level":         json.RawMessage(`2`),
		"title":         json.RawMessage(`"Goals"`),
		"_formatted":    json.RawMessage(`{"title":"<mark>Goals</mark>","level":"2"}`),
	}
	r := hitToResult(hit, ResultEntry)
	if r.DocumentID != "doc_1" || r.Number != "1.1" || r.Address != "0.1" {
		t.Fatalf("unexpected result: %+v", r)
	}
	if r.Title != "<mark>Goals</mark>" {
		t.Errorf("expected highlighted title, got %q", r.Title)
	}
	if r.Snippet != "Plan" {
		t.Errorf("expected document title snippet, got %q", r.Snippet)
	}

	doc := hitToResult(meili.Hit{"id": json.RawMessage(`"doc_1"`), "title": json.RawMessage(`"Plan"`)}, ResultDocument)
	if doc.DocumentID != "doc_1" || doc.Title != "Plan" {
		t.Fatalf("unexpected document result: %+v", doc)
	}
}

func TestEntryIDAndEscapeLike(t *testing.T) {
	if got := EntryID("doc_1", "2.0.3"); got != "doc_1_2-0-3" {
		t.Errorf("EntryID = %q", got)
	}
	if got := escapeLike(`50%_off\`); got != `50\%\_off\\` {
		t.Errorf("escapeLike = %q", got)
	}
}

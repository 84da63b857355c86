package search

import (
	"context"
	"log/slog"
	"sync"
)

// Service is the facade that tries Meilisearch first and falls back to
// Postgres.
type Service struct {
	index    Indexer
	fallback Searcher
	log      *slog.Logger
	wg       sync.WaitGroup
}

// NewService creates a search service. index may be nil when Meilisearch
// is not configured.
func NewService(index Indexer, fallback Searcher, log *slog.Logger) *Service {
	if log == nil {
		log = slog.Default()
	}
	return &Service{index: index, fallback: fallback, log: log}
}

func (s *Service) indexReady() bool {
	return s.index != nil && s.index.Healthy()
}

// Search tries the index if healthy, otherwise falls back to Postgres.
func (s *Service) Search(ctx context.Context, q Query) Response {
	if s.indexReady() {
		results, total, err := s.index.Search(ctx, q)
		if err == nil {
			return Response{Results: nonNil(results), Total: total, Query: q.Text}
		}
		s.log.Warn("search index error, falling back to postgres", "error", err)
	}

	if s.fallback == nil {
		return Response{Results: []Result{}, Total: 0, Query: q.Text}
	}
	results, total, err := s.fallback.Search(ctx, q)
	if err != nil {
		s.log.Error("fallback search failed", "error", err)
		return Response{Results: []Result{}, Total: 0, Query: q.Text}
	}
	return Response{Results: nonNil(results), Total: total, Query: q.Text}
}

// IndexOutline pushes a document and its numbered headings to the index and
// drops entries whose headings disappeared. It does not block the caller.
func (s *Service) IndexOutline(doc DocumentRecord, entries []EntryRecord, removed []string) {
	if !s.indexReady() {
		return
	}
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		if err := s.index.IndexDocument(doc); err != nil {
			s.log.Warn("index document", "document", doc.ID, "error", err)
			return
		}
		if err := s.index.IndexEntries(entries); err != nil {
			s.log.Warn("index outline entries", "document", doc.ID, "error", err)
		}
		if len(removed) > 0 {
			if err := s.index.DeleteEntries(removed); err != nil {
				s.log.Warn("delete outline entries", "document", doc.ID, "error", err)
			}
		}
	}()
}

// DeleteDocument removes a document and its entries from the index.
func (s *Service) DeleteDocument(id string, entryIDs []string) {
	if !s.indexReady() {
		return
	}
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		if err := s.index.DeleteDocument(id); err != nil {
			s.log.Warn("delete document", "document", id, "error", err)
		}
		if err := s.index.DeleteEntries(entryIDs); err != nil {
			s.log.Warn("delete outline entries", "document", id, "error", err)
		}
	}()
}

// ReindexAll pushes every record to the index in bulk.
func (s *Service) ReindexAll(documents []DocumentRecord, entries []EntryRecord) {
	if !s.indexReady() {
		return
	}
	for _, doc := range documents {
		if err := s.index.IndexDocument(doc); err != nil {
			s.log.Warn("reindex document", "document", doc.ID, "error", err)
		}
	}
	if err := s.index.IndexEntries(entries); err != nil {
		s.log.Warn("reindex outline entries", "error", err)
	}
}

// ReindexAllFromPG reindexes everything stored in Postgres.
func (s *Service) ReindexAllFromPG(ctx context.Context, pg *PgFTS) {
	if !s.indexReady() || pg == nil {
		return
	}
	documents, entries, err := pg.LoadAllRecords(ctx)
	if err != nil {
		s.log.Error("reindex load failed", "error", err)
		return
	}
	s.ReindexAll(documents, entries)
}

// Wait blocks until background index writes have finished.
func (s *Service) Wait() {
	s.wg.Wait()
}

func nonNil(r []Result) []Result {
	if r == nil {
		return []Result{}
	}
	return r
}

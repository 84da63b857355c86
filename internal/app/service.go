package app

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"slices"
	"strings"
	"sync"
	"time"

	"chronicle/outline/internal/auth"
	"chronicle/outline/internal/cache"
	"chronicle/outline/internal/config"
	"chronicle/outline/internal/doctree"
	"chronicle/outline/internal/export"
	"chronicle/outline/internal/gitrepo"
	"chronicle/outline/internal/importer"
	"chronicle/outline/internal/interaction"
	"chronicle/outline/internal/numbering"
	"chronicle/outline/internal/rbac"
	"chronicle/outline/internal/search"
	"chronicle/outline/internal/store"
	"chronicle/outline/internal/util"
)

type Session struct {
	Token     string
	UserID    string
	UserName  string
	Role      string
	JTI       string
	ExpiresAt time.Time
}

type dataStore interface {
	Ping(context.Context) error
	ListDocuments(context.Context) ([]store.Document, error)
	GetDocument(context.Context, string) (store.Document, error)
	InsertDocument(context.Context, store.Document) error
	SaveDocumentContent(context.Context, string, int64, store.Document) error
	DeleteDocument(context.Context, string) ([]string, error)
	ReplaceOutlineEntries(context.Context, string, []store.OutlineEntry) ([]string, error)
	ListOutlineEntries(context.Context, string) ([]store.OutlineEntry, error)
	InsertExport(context.Context, store.ExportRecord) error
	ListExports(context.Context, string, int) ([]store.ExportRecord, error)
}

type gitService interface {
	EnsureDocumentRepo(documentID string, initial gitrepo.Content, author string) error
	CommitContent(documentID string, content gitrepo.Content, author, message string) (gitrepo.CommitInfo, error)
	History(documentID string, limit int) ([]gitrepo.CommitInfo, error)
	GetContentByHash(documentID, hash string) (gitrepo.Content, error)
}

type markerCache interface {
	Get(ctx context.Context, documentID string, revision int64) (numbering.MarkerSet, error)
	Put(ctx context.Context, documentID string, set numbering.MarkerSet) error
	Invalidate(ctx context.Context, documentID string) error
}

type revocationList interface {
	Revoke(ctx context.Context, jti string, expiresAt time.Time) error
	IsRevoked(ctx context.Context, jti string) (bool, error)
}

type outlineIndex interface {
	Search(ctx context.Context, q search.Query) search.Response
	IndexOutline(doc search.DocumentRecord, entries []search.EntryRecord, removed []string)
	DeleteDocument(id string, entryIDs []string)
}

type exporter interface {
	Export(ctx context.Context, doc export.Document, format export.Format, exportID string) (*export.Result, error)
}

// Deps are the collaborators of a Service. Cache, Revocations, Search and
// Exports are optional.
type Deps struct {
	Store       dataStore
	Git         gitService
	Cache       markerCache
	Revocations revocationList
	Search      outlineIndex
	Exports     exporter
}

type Service struct {
	cfg         config.Config
	log         *slog.Logger
	store       dataStore
	git         gitService
	cache       markerCache
	revocations revocationList
	search      outlineIndex
	exports     exporter
	engine      *numbering.Engine
	adapter     *interaction.Adapter
	issuer      *auth.Issuer

	lockMu sync.Mutex
	locks  map[string]*sync.Mutex

	syncSessionTTL time.Duration
	syncMu         sync.Mutex
	syncSessions   map[string]syncSessionRecord
}

type syncSessionRecord struct {
	expiresAt time.Time
	payload   map[string]any
}

func NewService(cfg config.Config, deps Deps, log *slog.Logger) *Service {
	if log == nil {
		log = slog.Default()
	}
	engine := numbering.New(numbering.Options{MaxRippleItems: cfg.MaxRippleItems}, log.With("component", "numbering"))
	return &Service{
		cfg:            cfg,
		log:            log,
		store:          deps.Store,
		git:            deps.Git,
		cache:          deps.Cache,
		revocations:    deps.Revocations,
		search:         deps.Search,
		exports:        deps.Exports,
		engine:         engine,
		adapter:        interaction.NewAdapter(engine, nil, nil),
		issuer:         auth.NewIssuer(cfg.JWTSecret, cfg.AccessTTL),
		locks:          make(map[string]*sync.Mutex),
		syncSessionTTL: cfg.SyncSessionTTL,
		syncSessions:   make(map[string]syncSessionRecord),
	}
}

func (s *Service) Ping(ctx context.Context) error {
	return s.store.Ping(ctx)
}

func (s *Service) SyncToken() string {
	return s.cfg.SyncToken
}

// Login signs a user in by display name. Names listed in AdminUsers get the
// admin role; a caller may ask for viewer to drop write access.
func (s *Service) Login(_ context.Context, name, requestedRole string) (Session, error) {
	userName := strings.TrimSpace(name)
	if userName == "" {
		return Session{}, validationError("name is required")
	}
	role := rbac.RoleEditor
	if slices.ContainsFunc(s.cfg.AdminUsers, func(admin string) bool { return strings.EqualFold(admin, userName) }) {
		role = rbac.RoleAdmin
	}
	if rbac.Role(strings.TrimSpace(requestedRole)) == rbac.RoleViewer {
		role = rbac.RoleViewer
	}

	token, claims, err := s.issuer.Issue(util.StableID("usr", userName), userName, string(role))
	if err != nil {
		return Session{}, err
	}
	return Session{
		Token:     token,
		UserID:    claims.Sub,
		UserName:  claims.Name,
		Role:      claims.Role,
		JTI:       claims.JTI,
		ExpiresAt: time.Unix(claims.Exp, 0),
	}, nil
}

func (s *Service) SessionFromToken(ctx context.Context, token string) (Session, error) {
	claims, err := s.issuer.Verify(token)
	if err != nil {
		return Session{}, err
	}
	if s.revocations != nil {
		revoked, err := s.revocations.IsRevoked(ctx, claims.JTI)
		if err != nil {
			return Session{}, err
		}
		if revoked {
			return Session{}, auth.ErrInvalidToken
		}
	}
	return Session{
		Token:     token,
		UserID:    claims.Sub,
		UserName:  claims.Name,
		Role:      claims.Role,
		JTI:       claims.JTI,
		ExpiresAt: time.Unix(claims.Exp, 0),
	}, nil
}

func (s *Service) Logout(ctx context.Context, session Session) error {
	if s.revocations == nil || session.JTI == "" {
		return nil
	}
	return s.revocations.Revoke(ctx, session.JTI, session.ExpiresAt)
}

func (s *Service) Can(role string, action rbac.Action) bool {
	return rbac.Can(rbac.Normalize(role), action)
}

func (s *Service) ListDocuments(ctx context.Context) ([]map[string]any, error) {
	documents, err := s.store.ListDocuments(ctx)
	if err != nil {
		return nil, err
	}
	items := make([]map[string]any, 0, len(documents))
	for _, doc := range documents {
		items = append(items, map[string]any{
			"id":        doc.ID,
			"title":     doc.Title,
			"revision":  doc.Revision,
			"updatedBy": doc.UpdatedBy,
			"updatedAt": doc.UpdatedAt,
		})
	}
	return items, nil
}

// CreateDocumentInput carries either ProseMirror JSON or Markdown.
type CreateDocumentInput struct {
	Title    string          `json:"title"`
	Content  json.RawMessage `json:"content,omitempty"`
	Markdown string          `json:"markdown,omitempty"`
}

// CreateDocument numbers the new document before it is first stored, so
// stored content always carries current numbering attributes.
func (s *Service) CreateDocument(ctx context.Context, input CreateDocumentInput, actor string) (map[string]any, error) {
	var doc *doctree.Document
	switch {
	case len(input.Content) > 0 && strings.TrimSpace(input.Markdown) != "":
		return nil, validationError("provide content or markdown, not both")
	case len(input.Content) > 0:
		parsed, err := doctree.Parse(input.Content)
		if err != nil {
			return nil, err
		}
		doc = parsed
	case strings.TrimSpace(input.Markdown) != "":
		doc = importer.Markdown([]byte(input.Markdown))
	default:
		return nil, validationError("content or markdown is required")
	}

	if _, err := s.engine.Recompute(doc); err != nil {
		return nil, err
	}
	title := firstNonBlank(input.Title, importer.Title(doc), "Untitled outline")
	body, err := json.Marshal(doc)
	if err != nil {
		return nil, err
	}

	documentID := util.NewID("doc")
	record := store.Document{
		ID:        documentID,
		Title:     title,
		Content:   body,
		Revision:  doc.Revision(),
		UpdatedBy: actor,
	}
	if err := s.store.InsertDocument(ctx, record); err != nil {
		return nil, err
	}
	entries := numbering.Entries(doc)
	if _, err := s.store.ReplaceOutlineEntries(ctx, documentID, outlineRows(documentID, entries)); err != nil {
		return nil, err
	}
	if err := s.git.EnsureDocumentRepo(documentID, snapshot(title, doc, entries), actor); err != nil {
		return nil, err
	}
	s.reindex(documentID, title, doc.Revision(), entries, nil)

	set, err := numbering.Markers(doc)
	if err != nil {
		return nil, err
	}
	s.cacheMarkers(ctx, documentID, set)
	return map[string]any{
		"id":       documentID,
		"title":    title,
		"revision": doc.Revision(),
		"outline":  entries,
		"markers":  set,
	}, nil
}

func (s *Service) GetDocument(ctx context.Context, documentID string) (map[string]any, error) {
	record, err := s.store.GetDocument(ctx, documentID)
	if err != nil {
		return nil, err
	}
	return map[string]any{
		"id":        record.ID,
		"title":     record.Title,
		"revision":  record.Revision,
		"content":   record.Content,
		"updatedBy": record.UpdatedBy,
		"updatedAt": record.UpdatedAt,
	}, nil
}

func (s *Service) DeleteDocument(ctx context.Context, documentID string) error {
	lock := s.documentLock(documentID)
	lock.Lock()
	defer lock.Unlock()

	entryIDs, err := s.store.DeleteDocument(ctx, documentID)
	if err != nil {
		return err
	}
	if s.cache != nil {
		if err := s.cache.Invalidate(ctx, documentID); err != nil {
			s.log.Warn("marker cache invalidate failed", "document_id", documentID, "error", err)
		}
	}
	if s.search != nil {
		s.search.DeleteDocument(documentID, entryIDs)
	}
	return nil
}

// Outline returns the marker set of the stored revision, from the cache
// when it holds that revision.
func (s *Service) Outline(ctx context.Context, documentID string) (map[string]any, error) {
	record, err := s.store.GetDocument(ctx, documentID)
	if err != nil {
		return nil, err
	}
	if s.cache != nil {
		set, err := s.cache.Get(ctx, documentID, record.Revision)
		if err == nil {
			return outlinePayload(documentID, set, true), nil
		}
		if !errors.Is(err, cache.ErrMiss) {
			s.log.Warn("marker cache read failed", "document_id", documentID, "error", err)
		}
	}
	doc, err := loadDocument(record)
	if err != nil {
		return nil, err
	}
	set, err := numbering.Markers(doc)
	if err != nil {
		return nil, err
	}
	s.cacheMarkers(ctx, documentID, set)
	return outlinePayload(documentID, set, false), nil
}

func (s *Service) OutlineEntries(ctx context.Context, documentID string) ([]store.OutlineEntry, error) {
	if _, err := s.store.GetDocument(ctx, documentID); err != nil {
		return nil, err
	}
	return s.store.ListOutlineEntries(ctx, documentID)
}

// Recompute renumbers the stored document and persists any change.
func (s *Service) Recompute(ctx context.Context, documentID, actor string) (map[string]any, error) {
	lock := s.documentLock(documentID)
	lock.Lock()
	defer lock.Unlock()

	record, doc, err := s.load(ctx, documentID)
	if err != nil {
		return nil, err
	}
	result, err := s.engine.Recompute(doc)
	if err != nil {
		return nil, err
	}
	commit := ""
	if doc.Revision() != record.Revision {
		if commit, err = s.persist(ctx, record, doc, actor, "Recompute outline numbering"); err != nil {
			return nil, err
		}
	}
	set, err := numbering.Markers(doc)
	if err != nil {
		return nil, err
	}
	return map[string]any{
		"documentId":  documentID,
		"revision":    doc.Revision(),
		"updated":     len(result.Updates),
		"diagnostics": set.Diagnostics,
		"markers":     set.Markers,
		"fingerprint": set.Fingerprint,
		"commit":      nilIfEmpty(commit),
	}, nil
}

// ApplyOverride runs one override menu action against the stored document.
// A stale address leaves the document untouched and reports applied false.
func (s *Service) ApplyOverride(ctx context.Context, documentID string, req interaction.Request, actor string) (map[string]any, error) {
	if _, _, err := interaction.Validate(req); err != nil {
		return nil, err
	}

	lock := s.documentLock(documentID)
	lock.Lock()
	defer lock.Unlock()

	record, doc, err := s.load(ctx, documentID)
	if err != nil {
		return nil, err
	}
	report, err := s.adapter.Submit(doc, req)
	if err != nil {
		return nil, err
	}
	commit := ""
	if report.Applied && doc.Revision() != record.Revision {
		message := fmt.Sprintf("Outline override %s at %s", req.Action, report.Target)
		if commit, err = s.persist(ctx, record, doc, actor, message); err != nil {
			return nil, err
		}
	}
	set, err := numbering.Markers(doc)
	if err != nil {
		return nil, err
	}
	return map[string]any{
		"documentId":  documentID,
		"revision":    doc.Revision(),
		"report":      report,
		"markers":     set.Markers,
		"fingerprint": set.Fingerprint,
		"commit":      nilIfEmpty(commit),
	}, nil
}

// Menu describes the override menu for the heading item at address.
func (s *Service) Menu(ctx context.Context, documentID, address string) (interaction.Menu, error) {
	addr, err := doctree.ParseAddress(address)
	if err != nil || len(addr) == 0 {
		return interaction.Menu{}, &interaction.ValidationError{Field: "address", Message: fmt.Sprintf("invalid address %q", address)}
	}
	_, doc, err := s.load(ctx, documentID)
	if err != nil {
		return interaction.Menu{}, err
	}
	menu, ok := s.adapter.MenuFor(doc, addr)
	if !ok {
		return interaction.Menu{}, domainError(http.StatusNotFound, "NOT_FOUND", "No numbered heading at that address", nil)
	}
	return menu, nil
}

func (s *Service) History(ctx context.Context, documentID string, limit int) ([]gitrepo.CommitInfo, error) {
	if _, err := s.store.GetDocument(ctx, documentID); err != nil {
		return nil, err
	}
	return s.git.History(documentID, limit)
}

// OutlineChanges lists the numbers that differ between two commits.
func (s *Service) OutlineChanges(ctx context.Context, documentID, fromHash, toHash string) ([]gitrepo.NumberChange, error) {
	if _, err := s.store.GetDocument(ctx, documentID); err != nil {
		return nil, err
	}
	from, err := s.git.GetContentByHash(documentID, fromHash)
	if err != nil {
		return nil, domainError(http.StatusNotFound, "NOT_FOUND", "Unknown commit "+fromHash, nil)
	}
	to, err := s.git.GetContentByHash(documentID, toHash)
	if err != nil {
		return nil, domainError(http.StatusNotFound, "NOT_FOUND", "Unknown commit "+toHash, nil)
	}
	return gitrepo.DiffOutline(from, to), nil
}

func (s *Service) Export(ctx context.Context, documentID string, format export.Format, actor string) (*export.Result, error) {
	if s.exports == nil {
		return nil, domainError(http.StatusServiceUnavailable, "EXPORT_UNAVAILABLE", "Export is not configured", nil)
	}
	record, doc, err := s.load(ctx, documentID)
	if err != nil {
		return nil, err
	}
	exportID := util.NewID("exp")
	result, err := s.exports.Export(ctx, export.Document{
		ID:        record.ID,
		Title:     record.Title,
		Author:    record.UpdatedBy,
		UpdatedAt: record.UpdatedAt,
		Doc:       doc,
	}, format, exportID)
	if err != nil {
		return nil, err
	}
	if result.ObjectKey != "" {
		if err := s.store.InsertExport(ctx, store.ExportRecord{
			ID:         exportID,
			DocumentID: documentID,
			Revision:   result.Revision,
			Format:     string(result.Format),
			ObjectKey:  result.ObjectKey,
			SizeBytes:  int64(len(result.Data)),
			CreatedBy:  actor,
		}); err != nil {
			s.log.Warn("record export failed", "document_id", documentID, "export_id", exportID, "error", err)
		}
	}
	return result, nil
}

func (s *Service) ListExports(ctx context.Context, documentID string, limit int) ([]store.ExportRecord, error) {
	if _, err := s.store.GetDocument(ctx, documentID); err != nil {
		return nil, err
	}
	return s.store.ListExports(ctx, documentID, limit)
}

func (s *Service) Search(ctx context.Context, q search.Query) (search.Response, error) {
	if strings.TrimSpace(q.Text) == "" {
		return search.Response{}, validationError("q is required")
	}
	if q.Limit <= 0 || q.Limit > 100 {
		q.Limit = 20
	}
	if q.Offset < 0 {
		q.Offset = 0
	}
	if s.search == nil {
		return search.Response{Results: []search.Result{}, Query: q.Text}, nil
	}
	return s.search.Search(ctx, q), nil
}

// SyncSessionInput is the collaboration gateway's report of an ended editing
// session. Snapshot is the merged ProseMirror document.
type SyncSessionInput struct {
	SessionID   string          `json:"sessionId"`
	DocumentID  string          `json:"documentId"`
	Actor       string          `json:"actor"`
	UpdateCount int             `json:"updateCount"`
	Snapshot    json.RawMessage `json:"snapshot"`
}

// HandleSyncSessionEnded treats the snapshot as an external change: it is
// loaded one revision past the stored one, renumbered through the mutation
// hook, then persisted. Replays of a session id return the first payload.
func (s *Service) HandleSyncSessionEnded(ctx context.Context, input SyncSessionInput) (map[string]any, error) {
	sessionID := strings.TrimSpace(input.SessionID)
	if sessionID == "" {
		return nil, validationError("sessionId is required")
	}
	documentID := strings.TrimSpace(input.DocumentID)
	if documentID == "" {
		return nil, validationError("documentId is required")
	}
	if cached, ok := s.lookupSyncSession(sessionID); ok {
		return clonePayload(cached), nil
	}

	payload := map[string]any{
		"ok":          true,
		"sessionId":   sessionID,
		"documentId":  documentID,
		"flushCommit": nil,
		"updateCount": input.UpdateCount,
	}
	if len(input.Snapshot) == 0 || string(input.Snapshot) == "null" {
		s.storeSyncSession(sessionID, payload)
		return clonePayload(payload), nil
	}
	root, err := doctree.ParseNode(input.Snapshot)
	if err != nil {
		return nil, err
	}

	lock := s.documentLock(documentID)
	lock.Lock()
	defer lock.Unlock()
	// A replay of the same session may have flushed while we waited.
	if cached, ok := s.lookupSyncSession(sessionID); ok {
		return clonePayload(cached), nil
	}

	record, err := s.store.GetDocument(ctx, documentID)
	if err != nil {
		return nil, err
	}
	doc := doctree.Load(root, record.Revision+1)
	s.engine.OnDocumentChanged(doc)

	actor := firstNonBlank(input.Actor, "Sync Gateway")
	commit, err := s.persist(ctx, record, doc, actor, fmt.Sprintf("Sync session flush (%d updates)", max(input.UpdateCount, 1)))
	if err != nil {
		return nil, err
	}
	payload["revision"] = doc.Revision()
	payload["flushCommit"] = nilIfEmpty(commit)
	s.storeSyncSession(sessionID, payload)
	return clonePayload(payload), nil
}

// ReindexAll pushes every stored outline to the search index.
func (s *Service) ReindexAll(ctx context.Context) (int, error) {
	if s.search == nil {
		return 0, nil
	}
	documents, err := s.store.ListDocuments(ctx)
	if err != nil {
		return 0, err
	}
	for _, doc := range documents {
		rows, err := s.store.ListOutlineEntries(ctx, doc.ID)
		if err != nil {
			return 0, err
		}
		entries := make([]numbering.Entry, 0, len(rows))
		for _, row := range rows {
			entries = append(entries, numbering.Entry{Address: row.Address, Number: row.Number, Level: row.Level, Title: row.Title, Overridden: row.Overridden})
		}
		s.reindex(doc.ID, doc.Title, doc.Revision, entries, nil)
	}
	return len(documents), nil
}

func (s *Service) load(ctx context.Context, documentID string) (store.Document, *doctree.Document, error) {
	record, err := s.store.GetDocument(ctx, documentID)
	if err != nil {
		return store.Document{}, nil, err
	}
	doc, err := loadDocument(record)
	if err != nil {
		return store.Document{}, nil, err
	}
	return record, doc, nil
}

func loadDocument(record store.Document) (*doctree.Document, error) {
	root, err := doctree.ParseNode(record.Content)
	if err != nil {
		return nil, fmt.Errorf("load document %s: %w", record.ID, err)
	}
	return doctree.Load(root, record.Revision), nil
}

// persist stores doc as the next revision of record and fans the change out
// to the outline table, git history, the marker cache and the search index.
// Only the store write can fail the call; the rest is logged.
func (s *Service) persist(ctx context.Context, record store.Document, doc *doctree.Document, actor, message string) (string, error) {
	body, err := json.Marshal(doc)
	if err != nil {
		return "", err
	}
	title := record.Title
	next := store.Document{
		Title:     title,
		Content:   body,
		Revision:  doc.Revision(),
		UpdatedBy: actor,
	}
	if err := s.store.SaveDocumentContent(ctx, record.ID, record.Revision, next); err != nil {
		return "", err
	}

	entries := numbering.Entries(doc)
	removed, err := s.store.ReplaceOutlineEntries(ctx, record.ID, outlineRows(record.ID, entries))
	if err != nil {
		s.log.Error("outline entries update failed", "document_id", record.ID, "error", err)
	}

	commit := ""
	info, err := s.git.CommitContent(record.ID, snapshot(title, doc, entries), actor, message)
	switch {
	case err == nil:
		commit = info.Hash
	case errors.Is(err, gitrepo.ErrNoChanges):
	default:
		s.log.Error("history commit failed", "document_id", record.ID, "error", err)
	}

	if set, err := numbering.Markers(doc); err == nil {
		s.cacheMarkers(ctx, record.ID, set)
	}
	s.reindex(record.ID, title, doc.Revision(), entries, removed)
	s.log.Info("document persisted", "document_id", record.ID, "revision", doc.Revision(), "actor", actor, "commit", commit)
	return commit, nil
}

func (s *Service) cacheMarkers(ctx context.Context, documentID string, set numbering.MarkerSet) {
	if s.cache == nil {
		return
	}
	if err := s.cache.Put(ctx, documentID, set); err != nil {
		s.log.Warn("marker cache write failed", "document_id", documentID, "error", err)
	}
}

func (s *Service) reindex(documentID, title string, revision int64, entries []numbering.Entry, removed []string) {
	if s.search == nil {
		return
	}
	s.search.IndexOutline(
		search.DocumentRecord{ID: documentID, Title: title, Revision: revision},
		search.EntryRecords(documentID, title, entries),
		removed,
	)
}

func (s *Service) documentLock(documentID string) *sync.Mutex {
	s.lockMu.Lock()
	defer s.lockMu.Unlock()
	lock, ok := s.locks[documentID]
	if !ok {
		lock = &sync.Mutex{}
		s.locks[documentID] = lock
	}
	return lock
}

func (s *Service) lookupSyncSession(sessionID string) (map[string]any, bool) {
	now := time.Now()
	s.syncMu.Lock()
	defer s.syncMu.Unlock()
	for key, record := range s.syncSessions {
		if now.After(record.expiresAt) {
			delete(s.syncSessions, key)
		}
	}
	record, ok := s.syncSessions[sessionID]
	if !ok {
		return nil, false
	}
	return record.payload, true
}

func (s *Service) storeSyncSession(sessionID string, payload map[string]any) {
	s.syncMu.Lock()
	defer s.syncMu.Unlock()
	s.syncSessions[sessionID] = syncSessionRecord{
		expiresAt: time.Now().Add(s.syncSessionTTL),
		payload:   clonePayload(payload),
	}
}

func outlineRows(documentID string, entries []numbering.Entry) []store.OutlineEntry {
	rows := make([]store.OutlineEntry, 0, len(entries))
	for i, entry := range entries {
		rows = append(rows, store.OutlineEntry{
			ID:         search.EntryID(documentID, entry.Address),
			DocumentID: documentID,
			Position:   i,
			Address:    entry.Address,
			Number:     entry.Number,
			Level:      entry.Level,
			Title:      entry.Title,
			Overridden: entry.Overridden,
		})
	}
	return rows
}

func snapshot(title string, doc *doctree.Document, entries []numbering.Entry) gitrepo.Content {
	body, _ := json.Marshal(doc)
	return gitrepo.Content{
		Title:    title,
		Revision: doc.Revision(),
		Outline:  entries,
		Doc:      body,
	}
}

func outlinePayload(documentID string, set numbering.MarkerSet, cached bool) map[string]any {
	return map[string]any{
		"documentId":  documentID,
		"revision":    set.Revision,
		"fingerprint": set.Fingerprint,
		"markers":     set.Markers,
		"diagnostics": set.Diagnostics,
		"cached":      cached,
	}
}

func clonePayload(input map[string]any) map[string]any {
	cloned := make(map[string]any, len(input))
	for key, value := range input {
		cloned[key] = value
	}
	return cloned
}

func firstNonBlank(values ...string) string {
	for _, value := range values {
		if trimmed := strings.TrimSpace(value); trimmed != "" {
			return trimmed
		}
	}
	return ""
}

func nilIfEmpty(value string) any {
	if value == "" {
		return nil
	}
	return value
}

package app

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"

	"chronicle/outline/internal/cache"
	"chronicle/outline/internal/config"
	"chronicle/outline/internal/doctree"
	"chronicle/outline/internal/export"
	"chronicle/outline/internal/gitrepo"
	"chronicle/outline/internal/interaction"
	"chronicle/outline/internal/numbering"
	"chronicle/outline/internal/search"
	"chronicle/outline/internal/store"
)

type fakeStore struct {
	mu      sync.Mutex
	docs    map[string]store.Document
	entries map[string][]store.OutlineEntry
	exports []store.ExportRecord
	saves   int
	pingErr error
	saveErr error
}

func newFakeStore() *fakeStore {
	return &fakeStore{docs: map[string]store.Document{}, entries: map[string][]store.OutlineEntry{}}
}

func (f *fakeStore) Ping(context.Context) error { return f.pingErr }

func (f *fakeStore) ListDocuments(context.Context) ([]store.Document, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]store.Document, 0, len(f.docs))
	for _, doc := range f.docs {
		out = append(out, doc)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (f *fakeStore) GetDocument(_ context.Context, id string) (store.Document, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	doc, ok := f.docs[id]
	if !ok {
		return store.Document{}, sql.ErrNoRows
	}
	return doc, nil
}

func (f *fakeStore) InsertDocument(_ context.Context, doc store.Document) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	doc.CreatedAt = time.Now()
	doc.UpdatedAt = doc.CreatedAt
	f.docs[doc.ID] = doc
	return nil
}

func (f *fakeStore) SaveDocumentContent(_ context.Context, id string, expected int64, next store.Document) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.saveErr != nil {
		return f.saveErr
	}
	current, ok := f.docs[id]
	if !ok {
		return sql.ErrNoRows
	}
	if current.Revision != expected {
		return store.ErrRevisionConflict
	}
	current.Title = next.Title
	current.Content = next.Content
	current.Revision = next.Revision
	current.UpdatedBy = next.UpdatedBy
	current.UpdatedAt = time.Now()
	f.docs[id] = current
	f.saves++
	return nil
}

func (f *fakeStore) DeleteDocument(_ context.Context, id string) ([]string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.docs[id]; !ok {
		return nil, sql.ErrNoRows
	}
	var ids []string
	for _, entry := range f.entries[id] {
		ids = append(ids, entry.ID)
	}
	delete(f.docs, id)
	delete(f.entries, id)
	return ids, nil
}

func (f *fakeStore) ReplaceOutlineEntries(_ context.Context, id string, entries []store.OutlineEntry) ([]string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	keep := map[string]bool{}
	for _, entry := range entries {
		keep[entry.ID] = true
	}
	var removed []string
	for _, entry := range f.entries[id] {
		if !keep[entry.ID] {
			removed = append(removed, entry.ID)
		}
	}
	f.entries[id] = entries
	return removed, nil
}

func (f *fakeStore) ListOutlineEntries(_ context.Context, id string) ([]store.OutlineEntry, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.entries[id], nil
}

func (f *fakeStore) InsertExport(_ context.Context, record store.ExportRecord) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.exports = append(f.exports, record)
	return nil
}

func (f *fakeStore) ListExports(_ context.Context, id string, _ int) ([]store.ExportRecord, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []store.ExportRecord
	for _, record := range f.exports {
		if record.DocumentID == id {
			out = append(out, record)
		}
	}
	return out, nil
}

type fakeGit struct {
	mu       sync.Mutex
	repos    map[string][]gitrepo.Content
	messages []string
}

func (f *fakeGit) EnsureDocumentRepo(id string, initial gitrepo.Content, _ string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.repos == nil {
		f.repos = map[string][]gitrepo.Content{}
	}
	if _, ok := f.repos[id]; !ok {
		f.repos[id] = []gitrepo.Content{initial}
	}
	return nil
}

func (f *fakeGit) CommitContent(id string, content gitrepo.Content, author, message string) (gitrepo.CommitInfo, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	history := f.repos[id]
	if len(history) > 0 && !gitrepo.HasChanges(history[len(history)-1], content) {
		return gitrepo.CommitInfo{}, gitrepo.ErrNoChanges
	}
	f.repos[id] = append(history, content)
	f.messages = append(f.messages, message)
	return gitrepo.CommitInfo{Hash: hashFor(len(f.repos[id]) - 1), Message: message, Author: author, CreatedAt: time.Now()}, nil
}

func (f *fakeGit) History(id string, _ int) ([]gitrepo.CommitInfo, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []gitrepo.CommitInfo
	for i := len(f.repos[id]) - 1; i >= 0; i-- {
		out = append(out, gitrepo.CommitInfo{Hash: hashFor(i)})
	}
	return out, nil
}

func (f *fakeGit) GetContentByHash(id, hash string) (gitrepo.Content, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for i, content := range f.repos[id] {
		if hashFor(i) == hash {
			return content, nil
		}
	}
	return gitrepo.Content{}, errors.New("unknown commit")
}

func hashFor(i int) string {
	return "c" + string(rune('0'+i))
}

type fakeSearch struct {
	mu      sync.Mutex
	indexed map[string][]search.EntryRecord
	removed []string
	deleted []string
}

func (f *fakeSearch) Search(_ context.Context, q search.Query) search.Response {
	f.mu.Lock()
	defer f.mu.Unlock()
	var results []search.Result
	for _, records := range f.indexed {
		for _, record := range records {
			if record.Title == q.Text {
				results = append(results, search.Result{Type: search.ResultEntry, ID: record.ID, Title: record.Title, Number: record.Number})
			}
		}
	}
	return search.Response{Results: results, Total: len(results), Query: q.Text}
}

func (f *fakeSearch) IndexOutline(doc search.DocumentRecord, entries []search.EntryRecord, removed []string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.indexed == nil {
		f.indexed = map[string][]search.EntryRecord{}
	}
	f.indexed[doc.ID] = entries
	f.removed = append(f.removed, removed...)
}

func (f *fakeSearch) DeleteDocument(id string, entryIDs []string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.indexed, id)
	f.deleted = append(f.deleted, entryIDs...)
}

type harness struct {
	svc    *Service
	store  *fakeStore
	git    *fakeGit
	search *fakeSearch
	redis  *miniredis.Miniredis
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	mr := miniredis.RunT(t)
	markerCache, err := cache.NewRedisMarkerCache("redis://"+mr.Addr(), time.Minute)
	if err != nil {
		t.Fatalf("marker cache: %v", err)
	}
	t.Cleanup(func() { markerCache.Close() })

	log := slog.New(slog.NewTextHandler(io.Discard, nil))
	h := &harness{store: newFakeStore(), git: &fakeGit{}, search: &fakeSearch{}, redis: mr}
	h.svc = NewService(config.Config{
		JWTSecret:      "test-secret-0123456789",
		SyncToken:      "sync-token",
		AccessTTL:      time.Hour,
		SyncSessionTTL: time.Minute,
		AdminUsers:     []string{"root"},
	}, Deps{
		Store:       h.store,
		Git:         h.git,
		Cache:       markerCache,
		Revocations: cache.NewRedisRevocations(markerCache.Client()),
		Search:      h.search,
		Exports:     export.NewService(nil, log),
	}, log)
	return h
}

const planMarkdown = `# Plan

1. # Scope
2. ## Goals
3. # Delivery
4. ## Milestones
`

func (h *harness) createPlan(t *testing.T) string {
	t.Helper()
	payload, err := h.svc.CreateDocument(context.Background(), CreateDocumentInput{Markdown: planMarkdown}, "ava")
	if err != nil {
		t.Fatalf("CreateDocument() error = %v", err)
	}
	return payload["id"].(string)
}

func entryNumbers(t *testing.T, h *harness, id string) []string {
	t.Helper()
	record, err := h.store.GetDocument(context.Background(), id)
	if err != nil {
		t.Fatalf("GetDocument() error = %v", err)
	}
	doc, err := loadDocument(record)
	if err != nil {
		t.Fatalf("loadDocument() error = %v", err)
	}
	var out []string
	for _, entry := range numbering.Entries(doc) {
		out = append(out, entry.Number)
	}
	return out
}

func assertNumbers(t *testing.T, got []string, want ...string) {
	t.Helper()
	if len(got) != len(want) {
		t.Fatalf("numbers = %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("numbers = %v, want %v", got, want)
		}
	}
}

func TestCreateDocumentNumbersAndFansOut(t *testing.T) {
	h := newHarness(t)
	id := h.createPlan(t)

	record, _ := h.store.GetDocument(context.Background(), id)
	if record.Title != "Plan" || record.Revision != 1 || record.UpdatedBy != "ava" {
		t.Fatalf("stored record = %+v", record)
	}
	if !json.Valid(record.Content) {
		t.Fatal("stored content is not JSON")
	}
	assertNumbers(t, entryNumbers(t, h, id), "1", "1.1", "2", "2.1")

	rows, _ := h.store.ListOutlineEntries(context.Background(), id)
	if len(rows) != 4 || rows[1].ID != search.EntryID(id, rows[1].Address) || rows[3].Number != "2.1" {
		t.Fatalf("outline rows = %+v", rows)
	}
	if len(h.git.repos[id]) != 1 {
		t.Fatalf("expected baseline commit, got %d", len(h.git.repos[id]))
	}
	if len(h.search.indexed[id]) != 4 {
		t.Fatalf("indexed entries = %d", len(h.search.indexed[id]))
	}
}

func TestCreateDocumentValidation(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	if _, err := h.svc.CreateDocument(ctx, CreateDocumentInput{}, "ava"); err == nil {
		t.Fatal("empty input accepted")
	}
	both := CreateDocumentInput{Content: json.RawMessage(`{"type":"doc"}`), Markdown: "# x"}
	if _, err := h.svc.CreateDocument(ctx, both, "ava"); err == nil {
		t.Fatal("content and markdown accepted together")
	}
	_, err := h.svc.CreateDocument(ctx, CreateDocumentInput{Content: json.RawMessage(`{"type":"paragraph"}`)}, "ava")
	if !errors.Is(err, doctree.ErrNotDocument) {
		t.Fatalf("non-doc root error = %v", err)
	}
}

func TestOutlineUsesCacheForSameRevision(t *testing.T) {
	h := newHarness(t)
	id := h.createPlan(t)
	ctx := context.Background()

	first, err := h.svc.Outline(ctx, id)
	if err != nil {
		t.Fatalf("Outline() error = %v", err)
	}
	if first["cached"] != true {
		t.Fatal("create should have warmed the marker cache")
	}

	if err := h.redis.Set("outline:markers:"+id, "{broken"); err != nil {
		t.Fatalf("corrupt cache: %v", err)
	}
	second, err := h.svc.Outline(ctx, id)
	if err != nil {
		t.Fatalf("Outline() error = %v", err)
	}
	if second["cached"] != false || second["fingerprint"] != first["fingerprint"] {
		t.Fatalf("rebuild after corrupt cache = %+v", second)
	}
	markers := second["markers"].([]numbering.Marker)
	if len(markers) != 4 || markers[1].Text != "1.1" {
		t.Fatalf("markers = %+v", markers)
	}
}

func TestApplyOverrideCascadesAndPersists(t *testing.T) {
	h := newHarness(t)
	id := h.createPlan(t)
	ctx := context.Background()

	payload, err := h.svc.ApplyOverride(ctx, id, interaction.Request{Address: "1.0", Action: interaction.ActionSetValue, Value: "4"}, "lee")
	if err != nil {
		t.Fatalf("ApplyOverride() error = %v", err)
	}
	report := payload["report"].(numbering.CascadeReport)
	if !report.Applied || report.New != "4" {
		t.Fatalf("report = %+v", report)
	}
	if payload["commit"] == nil {
		t.Fatal("override did not commit history")
	}
	assertNumbers(t, entryNumbers(t, h, id), "4", "4.1", "5", "5.1")

	record, _ := h.store.GetDocument(ctx, id)
	if record.Revision != payload["revision"].(int64) || record.UpdatedBy != "lee" {
		t.Fatalf("stored record = %+v", record)
	}
	rows, _ := h.store.ListOutlineEntries(ctx, id)
	if !rows[0].Overridden || rows[2].Number != "5" {
		t.Fatalf("outline rows = %+v", rows)
	}
	outline, _ := h.svc.Outline(ctx, id)
	if outline["cached"] != true || outline["revision"].(int64) != record.Revision {
		t.Fatalf("cache not refreshed: %+v", outline)
	}

	if _, err := h.svc.ApplyOverride(ctx, id, interaction.Request{Address: "1.0", Action: interaction.ActionClear}, "lee"); err != nil {
		t.Fatalf("clear error = %v", err)
	}
	assertNumbers(t, entryNumbers(t, h, id), "1", "1.1", "2", "2.1")
}

func TestApplyOverrideStaleAndInvalid(t *testing.T) {
	h := newHarness(t)
	id := h.createPlan(t)
	ctx := context.Background()
	saves := h.store.saves

	payload, err := h.svc.ApplyOverride(ctx, id, interaction.Request{Address: "7.3", Action: interaction.ActionRestartFromOne}, "lee")
	if err != nil {
		t.Fatalf("stale override error = %v", err)
	}
	if payload["report"].(numbering.CascadeReport).Applied {
		t.Fatal("stale override applied")
	}
	if h.store.saves != saves {
		t.Fatal("stale override saved the document")
	}

	_, err = h.svc.ApplyOverride(ctx, id, interaction.Request{Address: "1.0", Action: interaction.ActionSetValue, Value: "x"}, "lee")
	var invalid *interaction.ValidationError
	if !errors.As(err, &invalid) || invalid.Field != "value" {
		t.Fatalf("invalid value error = %v", err)
	}
}

func TestApplyOverrideRevisionConflict(t *testing.T) {
	h := newHarness(t)
	id := h.createPlan(t)
	h.store.saveErr = store.ErrRevisionConflict

	_, err := h.svc.ApplyOverride(context.Background(), id, interaction.Request{Address: "1.0", Action: interaction.ActionSetValue, Value: "2"}, "lee")
	if !errors.Is(err, store.ErrRevisionConflict) {
		t.Fatalf("error = %v, want ErrRevisionConflict", err)
	}
}

func TestRecomputeIsNoOpWhenCurrent(t *testing.T) {
	h := newHarness(t)
	id := h.createPlan(t)
	saves := h.store.saves

	payload, err := h.svc.Recompute(context.Background(), id, "lee")
	if err != nil {
		t.Fatalf("Recompute() error = %v", err)
	}
	if payload["updated"] != 0 || h.store.saves != saves {
		t.Fatalf("recompute of a current document wrote changes: %+v", payload)
	}
}

func TestSyncSessionRenumbersSnapshot(t *testing.T) {
	h := newHarness(t)
	id := h.createPlan(t)
	ctx := context.Background()

	record, _ := h.store.GetDocument(ctx, id)
	root, _ := doctree.ParseNode(record.Content)
	list := root.Content[1]
	list.Content = append([]*doctree.Node{
		doctree.NewNode(doctree.TypeListItem, nil, doctree.NewNode(doctree.TypeHeading, map[string]any{"level": 1}, doctree.NewText("Context"))),
	}, list.Content...)
	snapshotJSON, _ := json.Marshal(root)

	input := SyncSessionInput{SessionID: "sess-1", DocumentID: id, Actor: "gateway", UpdateCount: 3, Snapshot: snapshotJSON}
	payload, err := h.svc.HandleSyncSessionEnded(ctx, input)
	if err != nil {
		t.Fatalf("HandleSyncSessionEnded() error = %v", err)
	}
	if payload["flushCommit"] == nil {
		t.Fatal("sync flush did not commit")
	}
	assertNumbers(t, entryNumbers(t, h, id), "1", "2", "2.1", "3", "3.1")
	if payload["revision"].(int64) <= record.Revision {
		t.Fatalf("revision did not advance: %v", payload["revision"])
	}

	saves := h.store.saves
	replay, err := h.svc.HandleSyncSessionEnded(ctx, input)
	if err != nil {
		t.Fatalf("replay error = %v", err)
	}
	if replay["flushCommit"] != payload["flushCommit"] || h.store.saves != saves {
		t.Fatal("replayed session was applied twice")
	}
	if !h.git.lastMessageContains("3 updates") {
		t.Fatalf("commit messages = %v", h.git.messages)
	}
}

func (f *fakeGit) lastMessageContains(part string) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.messages) == 0 {
		return false
	}
	last := f.messages[len(f.messages)-1]
	for i := 0; i+len(part) <= len(last); i++ {
		if last[i:i+len(part)] == part {
			return true
		}
	}
	return false
}

func TestConcurrentSyncReplayFlushesOnce(t *testing.T) {
	h := newHarness(t)
	id := h.createPlan(t)
	ctx := context.Background()

	record, _ := h.store.GetDocument(ctx, id)
	input := SyncSessionInput{SessionID: "sess-race", DocumentID: id, UpdateCount: 1, Snapshot: record.Content}
	saves := h.store.saves

	// Both deliveries queue on the document lock before either flushes.
	lock := h.svc.documentLock(id)
	lock.Lock()
	var wg sync.WaitGroup
	payloads := make([]map[string]any, 2)
	errs := make([]error, 2)
	for i := range payloads {
		wg.Add(1)
		go func() {
			defer wg.Done()
			payloads[i], errs[i] = h.svc.HandleSyncSessionEnded(ctx, input)
		}()
	}
	time.Sleep(50 * time.Millisecond)
	lock.Unlock()
	wg.Wait()

	for i, err := range errs {
		if err != nil {
			t.Fatalf("delivery %d error = %v", i, err)
		}
	}
	if h.store.saves != saves+1 {
		t.Fatalf("saves = %d, want exactly one flush", h.store.saves-saves)
	}
	if payloads[0]["flushCommit"] != payloads[1]["flushCommit"] || payloads[0]["revision"] != payloads[1]["revision"] {
		t.Fatalf("replay payload differs: %v vs %v", payloads[0], payloads[1])
	}
}

func TestSyncSessionValidation(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	if _, err := h.svc.HandleSyncSessionEnded(ctx, SyncSessionInput{DocumentID: "doc"}); err == nil {
		t.Fatal("missing sessionId accepted")
	}
	payload, err := h.svc.HandleSyncSessionEnded(ctx, SyncSessionInput{SessionID: "s", DocumentID: "doc"})
	if err != nil || payload["flushCommit"] != nil {
		t.Fatalf("empty snapshot = %+v, %v", payload, err)
	}
	_, err = h.svc.HandleSyncSessionEnded(ctx, SyncSessionInput{SessionID: "s2", DocumentID: "missing", Snapshot: json.RawMessage(`{"type":"doc"}`)})
	if !errors.Is(err, sql.ErrNoRows) {
		t.Fatalf("unknown document error = %v", err)
	}
}

func TestLoginRolesAndLogout(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	admin, err := h.svc.Login(ctx, " Root ", "")
	if err != nil || admin.Role != "admin" {
		t.Fatalf("admin login = %+v, %v", admin, err)
	}
	viewer, _ := h.svc.Login(ctx, "ava", "viewer")
	if viewer.Role != "viewer" {
		t.Fatalf("viewer login role = %q", viewer.Role)
	}
	editor, _ := h.svc.Login(ctx, "ava", "admin")
	if editor.Role != "editor" || editor.UserID != viewer.UserID {
		t.Fatalf("editor login = %+v", editor)
	}
	if _, err := h.svc.Login(ctx, "  ", ""); err == nil {
		t.Fatal("blank name accepted")
	}

	session, err := h.svc.SessionFromToken(ctx, editor.Token)
	if err != nil || session.UserName != "ava" {
		t.Fatalf("SessionFromToken() = %+v, %v", session, err)
	}
	if err := h.svc.Logout(ctx, session); err != nil {
		t.Fatalf("Logout() error = %v", err)
	}
	if _, err := h.svc.SessionFromToken(ctx, editor.Token); err == nil {
		t.Fatal("revoked token still accepted")
	}
}

func TestDeleteDocumentDropsIndexAndCache(t *testing.T) {
	h := newHarness(t)
	id := h.createPlan(t)
	ctx := context.Background()

	if err := h.svc.DeleteDocument(ctx, id); err != nil {
		t.Fatalf("DeleteDocument() error = %v", err)
	}
	if h.redis.Exists("outline:markers:" + id) {
		t.Fatal("marker cache kept a deleted document")
	}
	if len(h.search.deleted) != 4 {
		t.Fatalf("deleted entries = %v", h.search.deleted)
	}
	if _, err := h.svc.Outline(ctx, id); !errors.Is(err, sql.ErrNoRows) {
		t.Fatalf("Outline() after delete error = %v", err)
	}
}

func TestOutlineChangesBetweenCommits(t *testing.T) {
	h := newHarness(t)
	id := h.createPlan(t)
	ctx := context.Background()

	if _, err := h.svc.ApplyOverride(ctx, id, interaction.Request{Address: "1.2", Action: interaction.ActionSetValue, Value: "9"}, "lee"); err != nil {
		t.Fatalf("ApplyOverride() error = %v", err)
	}
	changes, err := h.svc.OutlineChanges(ctx, id, hashFor(0), hashFor(1))
	if err != nil {
		t.Fatalf("OutlineChanges() error = %v", err)
	}
	if len(changes) != 2 || changes[0].Before != "2" || changes[0].After != "9" || changes[1].After != "9.1" {
		t.Fatalf("changes = %+v", changes)
	}
	if _, err := h.svc.OutlineChanges(ctx, id, "nope", hashFor(1)); err == nil {
		t.Fatal("unknown commit accepted")
	}
}

package app

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"chronicle/outline/internal/auth"
	"chronicle/outline/internal/export"
	"chronicle/outline/internal/interaction"
	"chronicle/outline/internal/rbac"
	"chronicle/outline/internal/search"
)

type HTTPServer struct {
	service    *Service
	corsOrigin string
	maxBody    int64
	log        *slog.Logger
	router     chi.Router
}

func NewHTTPServer(service *Service, corsOrigin string, log *slog.Logger) *HTTPServer {
	if log == nil {
		log = slog.Default()
	}
	maxBody := service.cfg.MaxBodyBytes
	if maxBody <= 0 {
		maxBody = 5 << 20
	}
	s := &HTTPServer{service: service, corsOrigin: corsOrigin, maxBody: maxBody, log: log}
	s.setupRoutes()
	return s
}

func (s *HTTPServer) Handler() http.Handler {
	return s.router
}

func (s *HTTPServer) setupRoutes() {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Use(middleware.RequestID)
	r.Use(s.withCORS)
	r.Use(RequestLogger(s.log))

	r.Options("/*", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	})
	r.Get("/api/health", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, map[string]any{"ok": true})
	})
	r.Get("/api/ready", s.handleReady)

	r.Get("/api/session", s.handleSession)
	r.Post("/api/session/login", s.handleLogin)
	r.Post("/api/session/logout", s.handleLogout)
	r.Post("/api/internal/sync/session-ended", s.handleSyncSessionEnded)

	r.Group(func(r chi.Router) {
		r.Use(s.requireSession)

		r.With(s.require(rbac.ActionRead)).Get("/api/search", s.handleSearch)
		r.With(s.require(rbac.ActionRead)).Get("/api/documents", s.handleListDocuments)
		r.With(s.require(rbac.ActionWrite)).Post("/api/documents", s.handleCreateDocument)
		r.With(s.require(rbac.ActionAdmin)).Post("/api/admin/reindex", s.handleReindex)

		r.Route("/api/documents/{documentID}", func(r chi.Router) {
			r.With(s.require(rbac.ActionRead)).Get("/", s.handleGetDocument)
			r.With(s.require(rbac.ActionAdmin)).Delete("/", s.handleDeleteDocument)
			r.With(s.require(rbac.ActionRead)).Get("/outline", s.handleOutline)
			r.With(s.require(rbac.ActionRead)).Get("/outline/entries", s.handleOutlineEntries)
			r.With(s.require(rbac.ActionRead)).Get("/outline/menu", s.handleMenu)
			r.With(s.require(rbac.ActionWrite)).Post("/outline/recompute", s.handleRecompute)
			r.With(s.require(rbac.ActionWrite)).Post("/outline/overrides", s.handleOverride)
			r.With(s.require(rbac.ActionRead)).Get("/history", s.handleHistory)
			r.With(s.require(rbac.ActionRead)).Get("/history/compare", s.handleCompare)
			r.With(s.require(rbac.ActionRead)).Get("/export", s.handleExport)
			r.With(s.require(rbac.ActionRead)).Get("/exports", s.handleListExports)
		})
	})

	s.router = r
}

type sessionKey struct{}

func sessionFrom(ctx context.Context) Session {
	session, _ := ctx.Value(sessionKey{}).(Session)
	return session
}

func (s *HTTPServer) requireSession(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		token := bearerToken(r)
		if token == "" {
			writeError(w, http.StatusUnauthorized, "UNAUTHORIZED", "Unauthorized", nil)
			return
		}
		session, err := s.service.SessionFromToken(r.Context(), token)
		if err != nil {
			if errors.Is(err, auth.ErrExpiredToken) || errors.Is(err, auth.ErrInvalidToken) {
				writeError(w, http.StatusUnauthorized, "UNAUTHORIZED", "Unauthorized", nil)
				return
			}
			s.log.Error("session lookup failed", "error", err)
			writeError(w, http.StatusInternalServerError, "SERVER_ERROR", "Session lookup failed", nil)
			return
		}
		next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), sessionKey{}, session)))
	})
}

func (s *HTTPServer) require(action rbac.Action) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			session := sessionFrom(r.Context())
			if !s.service.Can(session.Role, action) {
				s.log.Info("request forbidden", "user", session.UserName, "role", session.Role, "action", string(action), "path", r.URL.Path)
				writeError(w, http.StatusForbidden, "FORBIDDEN", "Forbidden", nil)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

func (s *HTTPServer) handleReady(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	status := "ready"
	statusCode := http.StatusOK
	checks := map[string]any{
		"database": map[string]any{"status": "ok"},
	}
	if err := s.service.Ping(ctx); err != nil {
		status = "not_ready"
		statusCode = http.StatusServiceUnavailable
		checks["database"] = map[string]any{
			"status": "error",
			"error":  err.Error(),
		}
	}
	writeJSON(w, statusCode, map[string]any{
		"ok":     status == "ready",
		"status": status,
		"checks": checks,
	})
}

func (s *HTTPServer) handleSession(w http.ResponseWriter, r *http.Request) {
	token := bearerToken(r)
	if token == "" {
		writeJSON(w, http.StatusOK, map[string]any{"authenticated": false, "userName": nil})
		return
	}
	session, err := s.service.SessionFromToken(r.Context(), token)
	if err != nil {
		writeJSON(w, http.StatusOK, map[string]any{"authenticated": false, "userName": nil})
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"authenticated": true,
		"userName":      session.UserName,
		"userId":        session.UserID,
		"role":          session.Role,
		"actions":       rbac.Allowed(rbac.Normalize(session.Role)),
	})
}

func (s *HTTPServer) handleLogin(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Name string `json:"name"`
		Role string `json:"role"`
	}
	if !s.decode(w, r, &body) {
		return
	}
	session, err := s.service.Login(r.Context(), body.Name, body.Role)
	if err != nil {
		s.fail(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"token":     session.Token,
		"userName":  session.UserName,
		"userId":    session.UserID,
		"role":      session.Role,
		"expiresAt": session.ExpiresAt,
	})
}

func (s *HTTPServer) handleLogout(w http.ResponseWriter, r *http.Request) {
	if token := bearerToken(r); token != "" {
		if session, err := s.service.SessionFromToken(r.Context(), token); err == nil {
			if err := s.service.Logout(r.Context(), session); err != nil {
				s.log.Warn("logout revoke failed", "error", err)
			}
		}
	}
	writeJSON(w, http.StatusOK, map[string]any{"ok": true})
}

func (s *HTTPServer) handleSyncSessionEnded(w http.ResponseWriter, r *http.Request) {
	syncToken := strings.TrimSpace(r.Header.Get("x-outline-sync-token"))
	if syncToken == "" || syncToken != s.service.SyncToken() {
		writeError(w, http.StatusUnauthorized, "UNAUTHORIZED", "Unauthorized", nil)
		return
	}
	var body SyncSessionInput
	if !s.decode(w, r, &body) {
		return
	}
	payload, err := s.service.HandleSyncSessionEnded(r.Context(), body)
	if err != nil {
		s.fail(w, err)
		return
	}
	writeJSON(w, http.StatusOK, payload)
}

func (s *HTTPServer) handleSearch(w http.ResponseWriter, r *http.Request) {
	limit, ok := queryInt(w, r, "limit", 20)
	if !ok {
		return
	}
	offset, ok := queryInt(w, r, "offset", 0)
	if !ok {
		return
	}
	q := search.Query{
		Text:             strings.TrimSpace(r.URL.Query().Get("q")),
		FilterType:       search.ResultType(strings.TrimSpace(r.URL.Query().Get("type"))),
		FilterDocumentID: strings.TrimSpace(r.URL.Query().Get("documentId")),
		Limit:            limit,
		Offset:           offset,
	}
	payload, err := s.service.Search(r.Context(), q)
	if err != nil {
		s.fail(w, err)
		return
	}
	writeJSON(w, http.StatusOK, payload)
}

func (s *HTTPServer) handleListDocuments(w http.ResponseWriter, r *http.Request) {
	items, err := s.service.ListDocuments(r.Context())
	if err != nil {
		s.log.Error("list documents failed", "error", err)
		writeError(w, http.StatusInternalServerError, "SERVER_ERROR", "Could not list documents", nil)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"documents": items})
}

// handleCreateDocument accepts a JSON body, or raw Markdown when the
// request is sent as text/markdown.
func (s *HTTPServer) handleCreateDocument(w http.ResponseWriter, r *http.Request) {
	var input CreateDocumentInput
	if strings.HasPrefix(r.Header.Get("Content-Type"), "text/markdown") {
		raw, err := io.ReadAll(http.MaxBytesReader(w, r.Body, s.maxBody))
		if err != nil {
			writeError(w, http.StatusBadRequest, "INVALID_BODY", "Could not read body", nil)
			return
		}
		input.Markdown = string(raw)
		input.Title = r.URL.Query().Get("title")
	} else if !s.decode(w, r, &input) {
		return
	}
	payload, err := s.service.CreateDocument(r.Context(), input, sessionFrom(r.Context()).UserName)
	if err != nil {
		s.fail(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, payload)
}

func (s *HTTPServer) handleReindex(w http.ResponseWriter, r *http.Request) {
	count, err := s.service.ReindexAll(r.Context())
	if err != nil {
		s.fail(w, err)
		return
	}
	writeJSON(w, http.StatusAccepted, map[string]any{"ok": true, "documents": count})
}

func (s *HTTPServer) handleGetDocument(w http.ResponseWriter, r *http.Request) {
	payload, err := s.service.GetDocument(r.Context(), chi.URLParam(r, "documentID"))
	if err != nil {
		s.fail(w, err)
		return
	}
	writeJSON(w, http.StatusOK, payload)
}

func (s *HTTPServer) handleDeleteDocument(w http.ResponseWriter, r *http.Request) {
	if err := s.service.DeleteDocument(r.Context(), chi.URLParam(r, "documentID")); err != nil {
		s.fail(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"ok": true})
}

func (s *HTTPServer) handleOutline(w http.ResponseWriter, r *http.Request) {
	payload, err := s.service.Outline(r.Context(), chi.URLParam(r, "documentID"))
	if err != nil {
		s.fail(w, err)
		return
	}
	writeJSON(w, http.StatusOK, payload)
}

func (s *HTTPServer) handleOutlineEntries(w http.ResponseWriter, r *http.Request) {
	entries, err := s.service.OutlineEntries(r.Context(), chi.URLParam(r, "documentID"))
	if err != nil {
		s.fail(w, err)
		return
	}
	items := make([]map[string]any, 0, len(entries))
	for _, entry := range entries {
		items = append(items, map[string]any{
			"address":    entry.Address,
			"number":     entry.Number,
			"level":      entry.Level,
			"title":      entry.Title,
			"overridden": entry.Overridden,
		})
	}
	writeJSON(w, http.StatusOK, map[string]any{"entries": items})
}

func (s *HTTPServer) handleMenu(w http.ResponseWriter, r *http.Request) {
	menu, err := s.service.Menu(r.Context(), chi.URLParam(r, "documentID"), r.URL.Query().Get("address"))
	if err != nil {
		s.fail(w, err)
		return
	}
	writeJSON(w, http.StatusOK, menu)
}

func (s *HTTPServer) handleRecompute(w http.ResponseWriter, r *http.Request) {
	payload, err := s.service.Recompute(r.Context(), chi.URLParam(r, "documentID"), sessionFrom(r.Context()).UserName)
	if err != nil {
		s.fail(w, err)
		return
	}
	writeJSON(w, http.StatusOK, payload)
}

func (s *HTTPServer) handleOverride(w http.ResponseWriter, r *http.Request) {
	var body interaction.Request
	if !s.decode(w, r, &body) {
		return
	}
	payload, err := s.service.ApplyOverride(r.Context(), chi.URLParam(r, "documentID"), body, sessionFrom(r.Context()).UserName)
	if err != nil {
		s.fail(w, err)
		return
	}
	writeJSON(w, http.StatusOK, payload)
}

func (s *HTTPServer) handleHistory(w http.ResponseWriter, r *http.Request) {
	limit, ok := queryInt(w, r, "limit", 50)
	if !ok {
		return
	}
	commits, err := s.service.History(r.Context(), chi.URLParam(r, "documentID"), limit)
	if err != nil {
		s.fail(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"commits": commits})
}

func (s *HTTPServer) handleCompare(w http.ResponseWriter, r *http.Request) {
	from := strings.TrimSpace(r.URL.Query().Get("from"))
	to := strings.TrimSpace(r.URL.Query().Get("to"))
	if from == "" || to == "" {
		writeError(w, http.StatusUnprocessableEntity, "VALIDATION_ERROR", "from and to are required", nil)
		return
	}
	changes, err := s.service.OutlineChanges(r.Context(), chi.URLParam(r, "documentID"), from, to)
	if err != nil {
		s.fail(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"from": from, "to": to, "changes": changes})
}

func (s *HTTPServer) handleExport(w http.ResponseWriter, r *http.Request) {
	format, err := export.ParseFormat(r.URL.Query().Get("format"))
	if err != nil {
		s.fail(w, err)
		return
	}
	result, err := s.service.Export(r.Context(), chi.URLParam(r, "documentID"), format, sessionFrom(r.Context()).UserName)
	if err != nil {
		s.fail(w, err)
		return
	}
	w.Header().Set("Content-Type", result.MimeType)
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", result.Filename))
	w.Header().Set("X-Outline-Revision", strconv.FormatInt(result.Revision, 10))
	if result.ObjectKey != "" {
		w.Header().Set("X-Outline-Export-Key", result.ObjectKey)
	}
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(result.Data)
}

func (s *HTTPServer) handleListExports(w http.ResponseWriter, r *http.Request) {
	limit, ok := queryInt(w, r, "limit", 50)
	if !ok {
		return
	}
	records, err := s.service.ListExports(r.Context(), chi.URLParam(r, "documentID"), limit)
	if err != nil {
		s.fail(w, err)
		return
	}
	items := make([]map[string]any, 0, len(records))
	for _, record := range records {
		items = append(items, map[string]any{
			"id":        record.ID,
			"revision":  record.Revision,
			"format":    record.Format,
			"objectKey": record.ObjectKey,
			"sizeBytes": record.SizeBytes,
			"createdBy": record.CreatedBy,
			"createdAt": record.CreatedAt,
		})
	}
	writeJSON(w, http.StatusOK, map[string]any{"exports": items})
}

func (s *HTTPServer) fail(w http.ResponseWriter, err error) {
	status, code, message, details := mapError(err)
	if status >= http.StatusInternalServerError {
		s.log.Error("request failed", "code", code, "error", err)
	}
	writeError(w, status, code, message, details)
}

func (s *HTTPServer) decode(w http.ResponseWriter, r *http.Request, target any) bool {
	r.Body = http.MaxBytesReader(w, r.Body, s.maxBody)
	if err := decodeBody(r, target); err != nil {
		writeError(w, http.StatusBadRequest, "INVALID_BODY", err.Error(), nil)
		return false
	}
	return true
}

func (s *HTTPServer) withCORS(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		header := w.Header()
		header.Set("Access-Control-Allow-Origin", s.corsOrigin)
		header.Set("Access-Control-Allow-Headers", "Content-Type, Authorization, X-Request-ID")
		header.Set("Access-Control-Allow-Methods", "GET,POST,DELETE,OPTIONS")
		header.Set("Cache-Control", "no-store")
		if id := middleware.GetReqID(r.Context()); id != "" {
			header.Set("X-Request-ID", id)
		}
		next.ServeHTTP(w, r)
	})
}

func queryInt(w http.ResponseWriter, r *http.Request, key string, fallback int) (int, bool) {
	raw := strings.TrimSpace(r.URL.Query().Get(key))
	if raw == "" {
		return fallback, true
	}
	parsed, err := strconv.Atoi(raw)
	if err != nil {
		writeError(w, http.StatusUnprocessableEntity, "VALIDATION_ERROR", key+" must be an integer", nil)
		return 0, false
	}
	return parsed, true
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeError(w http.ResponseWriter, status int, code, message string, details any) {
	response := map[string]any{
		"code":  code,
		"error": message,
	}
	if details != nil {
		response["details"] = details
	}
	writeJSON(w, status, response)
}

func decodeBody(r *http.Request, target any) error {
	if r.Body == nil {
		return nil
	}
	defer r.Body.Close()
	decoder := json.NewDecoder(r.Body)
	if err := decoder.Decode(target); err != nil {
		if errors.Is(err, io.EOF) {
			return nil
		}
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			return fmt.Errorf("body exceeds %d bytes", tooLarge.Limit)
		}
		return fmt.Errorf("invalid JSON body")
	}
	return nil
}

func bearerToken(r *http.Request) string {
	header := strings.TrimSpace(r.Header.Get("Authorization"))
	if !strings.HasPrefix(header, "Bearer ") {
		return ""
	}
	return strings.TrimSpace(strings.TrimPrefix(header, "Bearer "))
}

package app

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"
	"unicode"
	"unicode/utf8"

	"go.uber.org/zap"

	"folio/internal/comments"
	"folio/internal/content"
	"folio/internal/export"
	"folio/internal/gitrepo"
	"folio/internal/media"
	"folio/internal/search"
)

const syncTokenHeader = "X-Folio-Sync-Token"

type HTTPServer struct {
	service    *Service
	corsOrigin string
	logger     *zap.Logger
}

func NewHTTPServer(service *Service, corsOrigin string, logger *zap.Logger) *HTTPServer {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &HTTPServer{service: service, corsOrigin: corsOrigin, logger: logger}
}

func (s *HTTPServer) Handler() http.Handler {
	return s.withMiddleware(http.HandlerFunc(s.handle))
}

func (s *HTTPServer) handle(w http.ResponseWriter, r *http.Request) {
	if r.Method == http.MethodOptions {
		writeJSON(w, http.StatusNoContent, map[string]any{})
		return
	}

	if (r.Method == http.MethodGet || r.Method == http.MethodHead) && r.URL.Path == "/api/health" {
		writeJSON(w, http.StatusOK, map[string]any{"ok": true})
		return
	}

	if (r.Method == http.MethodGet || r.Method == http.MethodHead) && r.URL.Path == "/api/ready" {
		ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
		defer cancel()

		ready, checks := s.service.Ready(ctx)
		status := "ready"
		statusCode := http.StatusOK
		if !ready {
			status = "not_ready"
			statusCode = http.StatusServiceUnavailable
		}
		writeJSON(w, statusCode, map[string]any{
			"ok":     ready,
			"status": status,
			"checks": checks,
		})
		return
	}

	if r.URL.Path == "/api/comments" {
		switch r.Method {
		case http.MethodGet:
			items, err := s.service.ListComments(r.Context(), r.URL.Query().Get("page"))
			if err != nil {
				s.writeMappedError(w, r, err)
				return
			}
			writeJSON(w, http.StatusOK, items)
		case http.MethodPost:
			if err := s.service.CheckCommentStore(); err != nil {
				s.writeMappedError(w, r, err)
				return
			}
			var body struct {
				Page    string `json:"page"`
				Author  string `json:"author"`
				Content string `json:"content"`
			}
			if err := decodeBody(r, &body); err != nil {
				writeError(w, http.StatusBadRequest, "INVALID_BODY", err.Error(), nil)
				return
			}
			created, err := s.service.CreateComment(r.Context(), body.Page, body.Author, body.Content)
			if err != nil {
				s.writeMappedError(w, r, err)
				return
			}
			writeJSON(w, http.StatusCreated, created)
		default:
			writeError(w, http.StatusMethodNotAllowed, "METHOD_NOT_ALLOWED", "Method not allowed", nil)
		}
		return
	}

	if r.Method == http.MethodGet && r.URL.Path == "/api/comments/hint" {
		page := strings.TrimSpace(r.URL.Query().Get("page"))
		if page == "" {
			writeError(w, http.StatusBadRequest, "VALIDATION_ERROR", "Page parameter is required", nil)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{
			"page":    page,
			"command": s.service.CommentHint(requestOrigin(r), page),
		})
		return
	}

	if r.Method == http.MethodGet && r.URL.Path == "/api/search" {
		q := strings.TrimSpace(r.URL.Query().Get("q"))
		filterType := strings.TrimSpace(r.URL.Query().Get("type"))
		if filterType != "" && filterType != string(search.ResultArticle) && filterType != string(search.ResultHeading) {
			writeError(w, http.StatusUnprocessableEntity, "VALIDATION_ERROR", "type must be 'article' or 'heading'", nil)
			return
		}
		limit, ok := queryInt(w, r, "limit", 20)
		if !ok {
			return
		}
		offset, ok := queryInt(w, r, "offset", 0)
		if !ok {
			return
		}
		if limit < 1 || limit > 100 {
			limit = 20
		}
		if offset < 0 {
			offset = 0
		}
		writeJSON(w, http.StatusOK, s.service.Search(search.Query{
			Text:       q,
			FilterType: search.ResultType(filterType),
			FilterTag:  strings.TrimSpace(r.URL.Query().Get("tag")),
			Limit:      limit,
			Offset:     offset,
		}))
		return
	}

	if r.Method == http.MethodPost && r.URL.Path == "/api/internal/content/sync" {
		if !s.service.VerifySyncToken(strings.TrimSpace(r.Header.Get(syncTokenHeader))) {
			writeError(w, http.StatusUnauthorized, "UNAUTHORIZED", "Unauthorized", nil)
			return
		}
		result, err := s.service.SyncContent(r.Context())
		if err != nil {
			s.writeMappedError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, result)
		return
	}

	if r.Method == http.MethodGet && strings.HasPrefix(r.URL.Path, "/media/") {
		u, err := s.service.MediaURL(r.Context(), strings.TrimPrefix(r.URL.Path, "/media/"))
		if err != nil {
			s.writeMappedError(w, r, err)
			return
		}
		http.Redirect(w, r, u.String(), http.StatusFound)
		return
	}

	parts := splitPath(r.URL.Path)
	if len(parts) >= 2 && parts[0] == "api" && parts[1] == "articles" {
		if r.Method != http.MethodGet && r.Method != http.MethodHead {
			writeError(w, http.StatusMethodNotAllowed, "METHOD_NOT_ALLOWED", "Method not allowed", nil)
			return
		}
		s.handleArticles(w, r, parts[2:])
		return
	}

	writeError(w, http.StatusNotFound, "NOT_FOUND", "Route not found", nil)
}

func (s *HTTPServer) handleArticles(w http.ResponseWriter, r *http.Request, parts []string) {
	if len(parts) == 0 {
		writeJSON(w, http.StatusOK, s.service.Articles())
		return
	}

	slug := parts[0]
	if len(parts) == 1 {
		detail, err := s.service.Article(slug)
		if err != nil {
			s.writeMappedError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, detail)
		return
	}
	if len(parts) != 2 {
		writeError(w, http.StatusNotFound, "NOT_FOUND", "Route not found", nil)
		return
	}

	switch parts[1] {
	case "headings":
		detail, err := s.service.Article(slug)
		if err != nil {
			s.writeMappedError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, detail.Headings)

	case "history":
		limit, ok := queryInt(w, r, "limit", 20)
		if !ok {
			return
		}
		items, err := s.service.ArticleHistory(slug, limit)
		if err != nil {
			s.writeMappedError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"slug": slug, "commits": items})

	case "export":
		format, err := export.ParseFormat(r.URL.Query().Get("format"))
		if err != nil {
			s.writeMappedError(w, r, err)
			return
		}
		includeComments, _ := strconv.ParseBool(r.URL.Query().Get("comments"))
		result, err := s.service.Export(r.Context(), export.Request{
			Slug:            slug,
			Format:          format,
			IncludeComments: includeComments,
		})
		if err != nil {
			s.writeMappedError(w, r, err)
			return
		}
		w.Header().Set("Content-Disposition", "attachment; filename=\""+result.Filename+"\"")
		w.Header().Set("Content-Type", result.MimeType)
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write(result.Data)

	default:
		writeError(w, http.StatusNotFound, "NOT_FOUND", "Route not found", nil)
	}
}

func (s *HTTPServer) writeMappedError(w http.ResponseWriter, r *http.Request, err error) {
	status, code, message, details := mapError(err)
	if status >= http.StatusInternalServerError {
		s.logger.Error("request failed",
			zap.String("request_id", requestID(r.Context())),
			zap.String("path", r.URL.Path),
			zap.Error(err),
		)
	}
	writeError(w, status, code, message, details)
}

func (s *HTTPServer) withMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requestID := r.Header.Get("X-Request-ID")
		if requestID == "" {
			requestID = randomRequestID()
		}
		ctx := context.WithValue(r.Context(), requestIDKey{}, requestID)
		r = r.WithContext(ctx)

		started := time.Now()
		writer := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		setCORSHeaders(writer.Header(), s.corsOrigin)
		writer.Header().Set("X-Request-ID", requestID)

		next.ServeHTTP(writer, r)

		s.logger.Info("request",
			zap.String("request_id", requestID),
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Int("status", writer.status),
			zap.Int64("duration_ms", time.Since(started).Milliseconds()),
		)
	})
}

type requestIDKey struct{}

func requestID(ctx context.Context) string {
	id, _ := ctx.Value(requestIDKey{}).(string)
	return id
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(status int) {
	r.status = status
	r.ResponseWriter.WriteHeader(status)
}

func randomRequestID() string {
	buf := make([]byte, 8)
	_, _ = rand.Read(buf)
	return hex.EncodeToString(buf)
}

func setCORSHeaders(header http.Header, corsOrigin string) {
	header.Set("Access-Control-Allow-Origin", corsOrigin)
	header.Set("Access-Control-Allow-Headers", "Content-Type, Authorization, X-Request-ID, "+syncTokenHeader)
	header.Set("Access-Control-Allow-Methods", "GET,POST,OPTIONS")
	header.Set("Cache-Control", "no-store")
	header.Set("Content-Type", "application/json")
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
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
		if errors.Is(err, http.ErrBodyReadAfterClose) {
			return nil
		}
		return fmt.Errorf("invalid JSON body")
	}
	return nil
}

func queryInt(w http.ResponseWriter, r *http.Request, name string, fallback int) (int, bool) {
	raw := strings.TrimSpace(r.URL.Query().Get(name))
	if raw == "" {
		return fallback, true
	}
	parsed, err := strconv.Atoi(raw)
	if err != nil {
		writeError(w, http.StatusUnprocessableEntity, "VALIDATION_ERROR", name+" must be an integer", nil)
		return 0, false
	}
	return parsed, true
}

// requestOrigin rebuilds the scheme and host the client used.
func requestOrigin(r *http.Request) string {
	scheme := "http"
	if r.TLS != nil {
		scheme = "https"
	}
	if proto := strings.TrimSpace(r.Header.Get("X-Forwarded-Proto")); proto != "" {
		scheme = strings.ToLower(strings.Split(proto, ",")[0])
	}
	host := r.Host
	if fwd := strings.TrimSpace(r.Header.Get("X-Forwarded-Host")); fwd != "" {
		host = strings.TrimSpace(strings.Split(fwd, ",")[0])
	}
	return scheme + "://" + host
}

func splitPath(path string) []string {
	trimmed := strings.Trim(path, "/")
	if trimmed == "" {
		return nil
	}
	return strings.Split(trimmed, "/")
}

func mapError(err error) (status int, code, message string, details any) {
	var domainErr *DomainError
	if errors.As(err, &domainErr) {
		return domainErr.Status, domainErr.Code, domainErr.Message, domainErr.Details
	}

	var configErr *comments.ConfigurationError
	if errors.As(err, &configErr) {
		return http.StatusInternalServerError, "CONFIGURATION_ERROR", configErr.Message, nil
	}
	var validationErr *comments.ValidationError
	if errors.As(err, &validationErr) {
		var fieldDetails any
		if validationErr.Field != "" {
			fieldDetails = map[string]string{"field": validationErr.Field}
		}
		return http.StatusBadRequest, "VALIDATION_ERROR", capitalize(validationErr.Message), fieldDetails
	}
	var storeErr *comments.StoreError
	if errors.As(err, &storeErr) {
		switch storeErr.Op {
		case "list comments":
			return http.StatusInternalServerError, "STORE_ERROR", "Failed to fetch comments", nil
		case "create comment":
			return http.StatusInternalServerError, "STORE_ERROR", "Failed to create comment", nil
		}
		return http.StatusInternalServerError, "STORE_ERROR", "Comment store error", nil
	}

	switch {
	case errors.Is(err, content.ErrNotFound):
		return http.StatusNotFound, "NOT_FOUND", "Article not found", nil
	case errors.Is(err, export.ErrUnsupportedFormat):
		return http.StatusUnprocessableEntity, "VALIDATION_ERROR", "format must be 'pdf', 'docx' or 'md'", nil
	case errors.Is(err, export.ErrPDFDependencyMissing), errors.Is(err, export.ErrDOCXDependencyMissing):
		return http.StatusServiceUnavailable, "EXPORT_UNAVAILABLE", "Export dependency is not installed", nil
	case errors.Is(err, gitrepo.ErrNotConfigured):
		return http.StatusServiceUnavailable, "HISTORY_UNAVAILABLE", "Content repository is not configured", nil
	case errors.Is(err, media.ErrNotConfigured):
		return http.StatusServiceUnavailable, "MEDIA_UNAVAILABLE", "Media storage is not configured", nil
	case errors.Is(err, media.ErrInvalidKey):
		return http.StatusBadRequest, "INVALID_KEY", "Invalid media key", nil
	}
	return http.StatusInternalServerError, "SERVER_ERROR", "Server error", nil
}

func capitalize(s string) string {
	r, size := utf8.DecodeRuneInString(s)
	if r == utf8.RuneError {
		return s
	}
	return string(unicode.ToUpper(r)) + s[size:]
}

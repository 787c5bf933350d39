package app

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"golang.org/x/crypto/bcrypt"

	"folio/internal/comments"
	"folio/internal/config"
	"folio/internal/export"
)

func serve(t *testing.T, h http.Handler, method, target, body string, headers map[string]string) *httptest.ResponseRecorder {
	t.Helper()
	var req *http.Request
	if body == "" {
		req = httptest.NewRequest(method, target, nil)
	} else {
		req = httptest.NewRequest(method, target, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	}
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, req)
	return rr
}

func decodeMap(t *testing.T, rr *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var out map[string]any
	if err := json.Unmarshal(rr.Body.Bytes(), &out); err != nil {
		t.Fatalf("failed to parse response %q: %v", rr.Body.String(), err)
	}
	return out
}

func TestHealthEndpoint(t *testing.T) {
	f := newFixture(config.Config{})
	rr := serve(t, f.server.Handler(), http.MethodGet, "/api/health", "", nil)

	if rr.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d", rr.Code)
	}
	if got := decodeMap(t, rr)["ok"]; got != true {
		t.Errorf("expected ok=true, got %v", got)
	}
	if rr.Header().Get("X-Request-ID") == "" {
		t.Error("expected a generated request id")
	}
}

func TestReadyEndpoint(t *testing.T) {
	t.Run("store ok", func(t *testing.T) {
		f := newFixture(config.Config{})
		rr := serve(t, f.server.Handler(), http.MethodGet, "/api/ready", "", nil)
		if rr.Code != http.StatusOK {
			t.Fatalf("expected status 200, got %d", rr.Code)
		}
		checks := decodeMap(t, rr)["checks"].(map[string]any)
		if checks["store"].(map[string]any)["status"] != "ok" {
			t.Errorf("unexpected store check %v", checks["store"])
		}
	})

	t.Run("store down", func(t *testing.T) {
		f := newFixture(config.Config{})
		f.backend.pingErr = errBoom
		rr := serve(t, f.server.Handler(), http.MethodGet, "/api/ready", "", nil)
		if rr.Code != http.StatusServiceUnavailable {
			t.Fatalf("expected status 503, got %d", rr.Code)
		}
		if decodeMap(t, rr)["status"] != "not_ready" {
			t.Errorf("expected not_ready")
		}
	})

	t.Run("store not configured", func(t *testing.T) {
		server := NewHTTPServer(New(config.Config{}, Deps{}), "*", nil)
		rr := serve(t, server.Handler(), http.MethodGet, "/api/ready", "", nil)
		if rr.Code != http.StatusOK {
			t.Fatalf("expected status 200, got %d", rr.Code)
		}
		checks := decodeMap(t, rr)["checks"].(map[string]any)
		if checks["store"].(map[string]any)["status"] != "not_configured" {
			t.Errorf("unexpected store check %v", checks["store"])
		}
	})
}

func TestCommentsRoundTripNewestFirst(t *testing.T) {
	f := newFixture(config.Config{})
	h := f.server.Handler()

	for _, body := range []string{
		`{"page":"page-a","author":"Alice","content":"first"}`,
		`{"page":"page-a","author":"Bob","content":"second"}`,
	} {
		rr := serve(t, h, http.MethodPost, "/api/comments", body, nil)
		if rr.Code != http.StatusCreated {
			t.Fatalf("expected 201, got %d: %s", rr.Code, rr.Body.String())
		}
	}

	rr := serve(t, h, http.MethodGet, "/api/comments?page=page-a", "", nil)
	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rr.Code)
	}
	var items []map[string]any
	if err := json.Unmarshal(rr.Body.Bytes(), &items); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(items) != 2 {
		t.Fatalf("expected 2 comments, got %d", len(items))
	}
	if items[0]["author"] != "Bob" || items[1]["author"] != "Alice" {
		t.Errorf("expected newest first, got %v then %v", items[0]["author"], items[1]["author"])
	}
	for _, key := range []string{"id", "page", "author", "content", "timestamp"} {
		if _, ok := items[0][key]; !ok {
			t.Errorf("comment is missing %q", key)
		}
	}
}

func TestCreateCommentTrimsAndReturnsRecord(t *testing.T) {
	f := newFixture(config.Config{})
	rr := serve(t, f.server.Handler(), http.MethodPost, "/api/comments",
		`{"page":" page-a ","author":"  Alice ","content":" hi "}`, nil)
	if rr.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d", rr.Code)
	}
	body := decodeMap(t, rr)
	if body["page"] != "page-a" || body["author"] != "Alice" || body["content"] != "hi" {
		t.Errorf("fields were not trimmed: %v", body)
	}
}

func TestListCommentsRequiresPage(t *testing.T) {
	f := newFixture(config.Config{})
	for _, target := range []string{"/api/comments", "/api/comments?page=", "/api/comments?page=%20"} {
		rr := serve(t, f.server.Handler(), http.MethodGet, target, "", nil)
		if rr.Code != http.StatusBadRequest {
			t.Errorf("%s: expected 400, got %d", target, rr.Code)
			continue
		}
		if got := decodeMap(t, rr)["error"]; got != "Page parameter is required" {
			t.Errorf("%s: unexpected message %v", target, got)
		}
	}
}

func TestCreateCommentValidation(t *testing.T) {
	tests := []struct {
		name    string
		body    string
		message string
	}{
		{"missing author", `{"page":"p","content":"hi"}`, "Page, author, and content are required"},
		{"missing page", `{"author":"Alice","content":"hi"}`, "Page, author, and content are required"},
		{"blank author", `{"page":"p","author":"   ","content":"hi"}`, "Author and content cannot be empty"},
		{"blank content", `{"page":"p","author":"Alice","content":"\n"}`, "Author and content cannot be empty"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(config.Config{})
			rr := serve(t, f.server.Handler(), http.MethodPost, "/api/comments", tt.body, nil)
			if rr.Code != http.StatusBadRequest {
				t.Fatalf("expected 400, got %d", rr.Code)
			}
			body := decodeMap(t, rr)
			if body["error"] != tt.message {
				t.Errorf("expected %q, got %v", tt.message, body["error"])
			}
			if body["code"] != "VALIDATION_ERROR" {
				t.Errorf("expected VALIDATION_ERROR, got %v", body["code"])
			}
			if len(f.backend.items) != 0 {
				t.Error("invalid comment reached the store")
			}
		})
	}
}

func TestCreateCommentInvalidJSON(t *testing.T) {
	f := newFixture(config.Config{})
	rr := serve(t, f.server.Handler(), http.MethodPost, "/api/comments", `{"page":`, nil)
	if rr.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rr.Code)
	}
	if decodeMap(t, rr)["code"] != "INVALID_BODY" {
		t.Error("expected INVALID_BODY")
	}
}

func TestCommentsWithoutStoreConfiguration(t *testing.T) {
	server := NewHTTPServer(New(config.Config{}, Deps{}), "*", nil)
	h := server.Handler()

	for _, rr := range []*httptest.ResponseRecorder{
		serve(t, h, http.MethodGet, "/api/comments?page=page-a", "", nil),
		serve(t, h, http.MethodPost, "/api/comments", `{"page":"page-a","author":"Alice","content":"hi"}`, nil),
	} {
		if rr.Code != http.StatusInternalServerError {
			t.Fatalf("expected 500, got %d", rr.Code)
		}
		body := decodeMap(t, rr)
		if body["code"] != "CONFIGURATION_ERROR" {
			t.Errorf("expected CONFIGURATION_ERROR, got %v", body["code"])
		}
		if msg, _ := body["error"].(string); !strings.Contains(msg, "not configured") {
			t.Errorf("expected configuration message, got %q", msg)
		}
	}
}

func TestCommentPostChecksStoreBeforeBody(t *testing.T) {
	server := NewHTTPServer(New(config.Config{}, Deps{}), "*", nil)
	rr := serve(t, server.Handler(), http.MethodPost, "/api/comments", `{"page":`, nil)
	if rr.Code != http.StatusInternalServerError {
		t.Fatalf("expected 500, got %d", rr.Code)
	}
	if code := decodeMap(t, rr)["code"]; code != "CONFIGURATION_ERROR" {
		t.Errorf("expected CONFIGURATION_ERROR, got %v", code)
	}
}

func TestCommentStoreFailuresAreGeneric(t *testing.T) {
	f := newFixture(config.Config{})
	f.backend.listErr = errBoom
	f.backend.insErr = errBoom
	h := f.server.Handler()

	rr := serve(t, h, http.MethodGet, "/api/comments?page=page-a", "", nil)
	if rr.Code != http.StatusInternalServerError || decodeMap(t, rr)["error"] != "Failed to fetch comments" {
		t.Errorf("unexpected list failure %d %s", rr.Code, rr.Body.String())
	}

	rr = serve(t, h, http.MethodPost, "/api/comments", `{"page":"page-a","author":"Alice","content":"hi"}`, nil)
	if rr.Code != http.StatusInternalServerError || decodeMap(t, rr)["error"] != "Failed to create comment" {
		t.Errorf("unexpected create failure %d %s", rr.Code, rr.Body.String())
	}
	if strings.Contains(rr.Body.String(), "boom") {
		t.Error("store cause leaked into the response")
	}
}

func TestCommentHint(t *testing.T) {
	f := newFixture(config.Config{})
	rr := serve(t, f.server.Handler(), http.MethodGet, "/api/comments/hint?page=hello", "", map[string]string{
		"X-Forwarded-Proto": "https",
		"X-Forwarded-Host":  "blog.example.com",
	})
	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rr.Code)
	}
	want := `curl -X POST https://blog.example.com/api/comments -H "Content-Type: application/json" -d '{"page":"hello","author":"Your Name","content":"Your comment here"}'`
	if got := decodeMap(t, rr)["command"]; got != want {
		t.Errorf("unexpected command:\n got %v\nwant %v", got, want)
	}

	rr = serve(t, f.server.Handler(), http.MethodGet, "/api/comments/hint", "", nil)
	if rr.Code != http.StatusBadRequest {
		t.Errorf("expected 400 without page, got %d", rr.Code)
	}
}

func TestCommentHintQuotesPage(t *testing.T) {
	page := `it's a "quoted" page'; rm -rf /; echo '`
	cmd := New(config.Config{}, Deps{}).CommentHint("https://blog.example.com/", page)

	prefix := `curl -X POST https://blog.example.com/api/comments -H "Content-Type: application/json" -d `
	if !strings.HasPrefix(cmd, prefix) {
		t.Fatalf("unexpected command prefix: %s", cmd)
	}
	arg := strings.TrimPrefix(cmd, prefix)
	if !strings.HasPrefix(arg, "'") || !strings.HasSuffix(arg, "'") {
		t.Fatalf("body is not single-quoted: %s", arg)
	}
	// undo POSIX single quoting: '...' with embedded '\''
	unquoted := strings.ReplaceAll(arg[1:len(arg)-1], `'\''`, "'")
	if strings.Contains(strings.ReplaceAll(arg[1:len(arg)-1], `'\''`, ""), "'") {
		t.Fatalf("unescaped quote in body: %s", arg)
	}

	var body map[string]string
	if err := json.Unmarshal([]byte(unquoted), &body); err != nil {
		t.Fatalf("body is not JSON: %v (%s)", err, unquoted)
	}
	if body["page"] != page {
		t.Errorf("page round trip: got %q want %q", body["page"], page)
	}
	if body["author"] != "Your Name" || body["content"] != "Your comment here" {
		t.Errorf("unexpected placeholders: %v", body)
	}
}

func TestArticleEndpoints(t *testing.T) {
	f := newFixture(config.Config{})
	h := f.server.Handler()

	rr := serve(t, h, http.MethodGet, "/api/articles", "", nil)
	var list []map[string]any
	if err := json.Unmarshal(rr.Body.Bytes(), &list); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(list) != 2 || list[0]["slug"] != "hello" || list[1]["slug"] != "older" {
		t.Errorf("unexpected article list %v", list)
	}

	rr = serve(t, h, http.MethodGet, "/api/articles/hello", "", nil)
	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rr.Code)
	}
	detail := decodeMap(t, rr)
	if detail["title"] != "Hello" || !strings.Contains(detail["html"].(string), `id="usage"`) {
		t.Errorf("unexpected detail %v", detail)
	}

	rr = serve(t, h, http.MethodGet, "/api/articles/hello/headings", "", nil)
	var headings []map[string]any
	if err := json.Unmarshal(rr.Body.Bytes(), &headings); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(headings) != 2 || headings[1]["id"] != "usage" || headings[1]["level"] != float64(2) {
		t.Errorf("unexpected headings %v", headings)
	}

	for _, target := range []string{"/api/articles/secret", "/api/articles/missing/headings"} {
		rr = serve(t, h, http.MethodGet, target, "", nil)
		if rr.Code != http.StatusNotFound {
			t.Errorf("%s: expected 404, got %d", target, rr.Code)
		}
	}

	rr = serve(t, h, http.MethodGet, "/api/articles/older/headings", "", nil)
	if strings.TrimSpace(rr.Body.String()) != "[]" {
		t.Errorf("expected empty heading list, got %s", rr.Body.String())
	}
}

func TestArticleHistory(t *testing.T) {
	f := newFixture(config.Config{})
	rr := serve(t, f.server.Handler(), http.MethodGet, "/api/articles/hello/history?limit=5", "", nil)
	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rr.Code)
	}
	if f.git.historyFor != "hello.md" {
		t.Errorf("history asked for %q", f.git.historyFor)
	}

	f.git.configured = false
	rr = serve(t, f.server.Handler(), http.MethodGet, "/api/articles/hello/history", "", nil)
	if rr.Code != http.StatusServiceUnavailable {
		t.Errorf("expected 503 without repository, got %d", rr.Code)
	}
}

func TestSearchEndpoint(t *testing.T) {
	f := newFixture(config.Config{})
	h := f.server.Handler()

	rr := serve(t, h, http.MethodGet, "/api/search?q=hello&type=article&tag=Intro&limit=500", "", nil)
	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rr.Code)
	}
	if f.search.last.Text != "hello" || f.search.last.FilterTag != "Intro" || f.search.last.Limit != 20 {
		t.Errorf("unexpected query %+v", f.search.last)
	}

	rr = serve(t, h, http.MethodGet, "/api/search?q=hello&type=user", "", nil)
	if rr.Code != http.StatusUnprocessableEntity {
		t.Errorf("expected 422 for bad type, got %d", rr.Code)
	}

	rr = serve(t, h, http.MethodGet, "/api/search?q=hello&offset=x", "", nil)
	if rr.Code != http.StatusUnprocessableEntity {
		t.Errorf("expected 422 for bad offset, got %d", rr.Code)
	}

	rr = serve(t, h, http.MethodGet, "/api/search?q=", "", nil)
	if decodeMap(t, rr)["total"] != float64(0) {
		t.Error("blank query should return nothing")
	}
}

func TestExportEndpoint(t *testing.T) {
	f := newFixture(config.Config{})
	h := f.server.Handler()

	rr := serve(t, h, http.MethodGet, "/api/articles/hello/export?format=md&comments=true", "", nil)
	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rr.Code)
	}
	if rr.Header().Get("Content-Type") != "text/markdown; charset=utf-8" {
		t.Errorf("unexpected content type %q", rr.Header().Get("Content-Type"))
	}
	if !strings.Contains(rr.Header().Get("Content-Disposition"), `filename="hello.md"`) {
		t.Errorf("unexpected disposition %q", rr.Header().Get("Content-Disposition"))
	}
	if !f.exporter.last.IncludeComments || f.exporter.last.Format != export.FormatMarkdown {
		t.Errorf("unexpected request %+v", f.exporter.last)
	}

	rr = serve(t, h, http.MethodGet, "/api/articles/hello/export?format=odt", "", nil)
	if rr.Code != http.StatusUnprocessableEntity {
		t.Errorf("expected 422, got %d", rr.Code)
	}

	f.exporter.err = export.ErrPDFDependencyMissing
	rr = serve(t, h, http.MethodGet, "/api/articles/hello/export?format=pdf", "", nil)
	if rr.Code != http.StatusServiceUnavailable {
		t.Errorf("expected 503, got %d", rr.Code)
	}
}

func TestContentSync(t *testing.T) {
	hash, err := bcrypt.GenerateFromPassword([]byte("s3cret"), bcrypt.MinCost)
	if err != nil {
		t.Fatalf("hash: %v", err)
	}
	f := newFixture(config.Config{SyncTokenHash: string(hash)})
	h := f.server.Handler()

	rr := serve(t, h, http.MethodPost, "/api/internal/content/sync", "", map[string]string{syncTokenHeader: "wrong"})
	if rr.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", rr.Code)
	}
	if f.git.syncs != 0 || f.catalog.loads != 0 {
		t.Fatal("unauthorized sync touched content")
	}

	rr = serve(t, h, http.MethodPost, "/api/internal/content/sync", "", map[string]string{syncTokenHeader: "s3cret"})
	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rr.Code, rr.Body.String())
	}
	body := decodeMap(t, rr)
	if body["articles"] != float64(2) {
		t.Errorf("expected 2 articles, got %v", body["articles"])
	}
	if f.git.syncs != 1 || f.catalog.loads != 1 {
		t.Errorf("expected one sync and one reload, got %d and %d", f.git.syncs, f.catalog.loads)
	}

	f.git.syncErr = errBoom
	rr = serve(t, h, http.MethodPost, "/api/internal/content/sync", "", map[string]string{syncTokenHeader: "s3cret"})
	if rr.Code != http.StatusBadGateway {
		t.Errorf("expected 502, got %d", rr.Code)
	}
}

func TestContentSyncDisabledWithoutHash(t *testing.T) {
	f := newFixture(config.Config{})
	rr := serve(t, f.server.Handler(), http.MethodPost, "/api/internal/content/sync", "", map[string]string{syncTokenHeader: ""})
	if rr.Code != http.StatusUnauthorized {
		t.Errorf("expected 401, got %d", rr.Code)
	}
}

func TestMediaRedirect(t *testing.T) {
	f := newFixture(config.Config{})
	h := f.server.Handler()

	rr := serve(t, h, http.MethodGet, "/media/images/cover.png", "", nil)
	if rr.Code != http.StatusFound {
		t.Fatalf("expected 302, got %d", rr.Code)
	}
	if loc := rr.Header().Get("Location"); !strings.HasPrefix(loc, "https://media.example.com/folio/images/cover.png") {
		t.Errorf("unexpected location %q", loc)
	}

	rr = serve(t, h, http.MethodGet, "/media/images//cover.png", "", nil)
	if rr.Code != http.StatusBadRequest {
		t.Errorf("expected 400 for bad key, got %d", rr.Code)
	}

	server := NewHTTPServer(New(config.Config{}, Deps{}), "*", nil)
	rr = serve(t, server.Handler(), http.MethodGet, "/media/a.png", "", nil)
	if rr.Code != http.StatusServiceUnavailable {
		t.Errorf("expected 503 without media store, got %d", rr.Code)
	}
}

func TestUnknownRouteAndOptions(t *testing.T) {
	f := newFixture(config.Config{})
	h := f.server.Handler()

	if rr := serve(t, h, http.MethodGet, "/api/nope", "", nil); rr.Code != http.StatusNotFound {
		t.Errorf("expected 404, got %d", rr.Code)
	}
	rr := serve(t, h, http.MethodOptions, "/api/comments", "", nil)
	if rr.Code != http.StatusNoContent {
		t.Errorf("expected 204, got %d", rr.Code)
	}
	if rr.Header().Get("Access-Control-Allow-Origin") != "*" {
		t.Error("missing CORS header")
	}
	if rr := serve(t, h, http.MethodDelete, "/api/comments", "", nil); rr.Code != http.StatusMethodNotAllowed {
		t.Errorf("expected 405, got %d", rr.Code)
	}
}

func TestMapError(t *testing.T) {
	tests := []struct {
		err    error
		status int
		code   string
	}{
		{&comments.ConfigurationError{Message: "x"}, http.StatusInternalServerError, "CONFIGURATION_ERROR"},
		{&comments.ValidationError{Message: "bad"}, http.StatusBadRequest, "VALIDATION_ERROR"},
		{&comments.StoreError{Op: "ping", Err: errBoom}, http.StatusInternalServerError, "STORE_ERROR"},
		{domainError(http.StatusTeapot, "TEAPOT", "short and stout", nil), http.StatusTeapot, "TEAPOT"},
		{context.Canceled, http.StatusInternalServerError, "SERVER_ERROR"},
	}
	for _, tt := range tests {
		status, code, _, _ := mapError(tt.err)
		if status != tt.status || code != tt.code {
			t.Errorf("%v: got %d %s, want %d %s", tt.err, status, code, tt.status, tt.code)
		}
	}
}

package app

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"sort"
	"strings"
	"sync"
	"time"

	"folio/internal/comments"
	"folio/internal/config"
	"folio/internal/content"
	"folio/internal/export"
	"folio/internal/gitrepo"
	"folio/internal/media"
	"folio/internal/search"
	"folio/internal/toc"
)

type fakeBackend struct {
	mu      sync.Mutex
	items   []comments.Comment
	clock   time.Time
	listErr error
	insErr  error
	pingErr error
}

func (f *fakeBackend) ListComments(_ context.Context, page string) ([]comments.Comment, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.listErr != nil {
		return nil, f.listErr
	}
	var out []comments.Comment
	for _, c := range f.items {
		if c.Page == page {
			out = append(out, c)
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out, nil
}

func (f *fakeBackend) InsertComment(_ context.Context, c comments.NewComment) (comments.Comment, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.insErr != nil {
		return comments.Comment{}, f.insErr
	}
	if f.clock.IsZero() {
		f.clock = time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	}
	f.clock = f.clock.Add(time.Minute)
	stored := comments.Comment{
		ID:        fmt.Sprintf("c%d", len(f.items)+1),
		Page:      c.Page,
		Author:    c.Author,
		Content:   c.Content,
		CreatedAt: f.clock,
	}
	f.items = append(f.items, stored)
	return stored, nil
}

func (f *fakeBackend) Ping(context.Context) error { return f.pingErr }

type fakeCatalog struct {
	articles map[string]content.Article
	loads    int
	loadErr  error
}

func (f *fakeCatalog) Get(slug string) (content.Article, error) {
	a, ok := f.articles[slug]
	if !ok || a.Draft {
		return content.Article{}, content.ErrNotFound
	}
	return a, nil
}

func (f *fakeCatalog) List() []content.Meta {
	out := []content.Meta{}
	for _, a := range f.articles {
		if !a.Draft {
			out = append(out, a.Meta)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Date.After(out[j].Date) })
	return out
}

func (f *fakeCatalog) Load() error {
	f.loads++
	return f.loadErr
}

func (f *fakeCatalog) Dir() string { return "/content" }

func newFakeCatalog() *fakeCatalog {
	return &fakeCatalog{articles: map[string]content.Article{
		"hello": {
			Meta: content.Meta{Slug: "hello", Title: "Hello", Date: time.Date(2024, 1, 2, 0, 0, 0, 0, time.UTC), Tags: []string{"intro"}},
			Path: "/content/hello.md",
			HTML: `<h1 id="hello">Hello</h1><h2 id="usage">Usage</h2>`,
			Headings: []toc.Heading{
				{ID: "hello", Text: "Hello", Level: 1},
				{ID: "usage", Text: "Usage", Level: 2},
			},
		},
		"older": {
			Meta: content.Meta{Slug: "older", Title: "Older", Date: time.Date(2023, 1, 2, 0, 0, 0, 0, time.UTC)},
			Path: "/content/older.md",
		},
		"secret": {
			Meta: content.Meta{Slug: "secret", Title: "Secret", Draft: true},
		},
	}}
}

type fakeSearch struct {
	last search.Query
}

func (f *fakeSearch) Search(q search.Query) search.Response {
	f.last = q
	return search.Response{
		Results: []search.Result{{Type: search.ResultArticle, Slug: "hello", Title: "Hello"}},
		Total:   1,
		Query:   q.Text,
	}
}

type fakeExporter struct {
	last export.Request
	err  error
}

func (f *fakeExporter) Export(_ context.Context, req export.Request) (*export.Result, error) {
	f.last = req
	if f.err != nil {
		return nil, f.err
	}
	if req.Slug != "hello" {
		return nil, content.ErrNotFound
	}
	return &export.Result{Data: []byte("# Hello\n"), Filename: "hello.md", MimeType: "text/markdown; charset=utf-8"}, nil
}

type fakeGit struct {
	configured bool
	syncErr    error
	syncs      int
	historyFor string
}

func (f *fakeGit) Configured() bool { return f.configured }

func (f *fakeGit) Sync(context.Context) (gitrepo.SyncResult, error) {
	f.syncs++
	if f.syncErr != nil {
		return gitrepo.SyncResult{}, f.syncErr
	}
	return gitrepo.SyncResult{
		Before:  gitrepo.CommitInfo{Hash: "aaaaaaa"},
		After:   gitrepo.CommitInfo{Hash: "bbbbbbb"},
		Updated: true,
	}, nil
}

func (f *fakeGit) History(path string, limit int) ([]gitrepo.CommitInfo, error) {
	f.historyFor = path
	return []gitrepo.CommitInfo{{Hash: "bbbbbbb", Message: "edit hello", Author: "Ada"}}, nil
}

func (f *fakeGit) RelPath(path string) (string, error) {
	return strings.TrimPrefix(path, "/content/"), nil
}

type fakeMedia struct{}

func (fakeMedia) URL(_ context.Context, key string) (*url.URL, error) {
	key, err := media.CleanKey(key)
	if err != nil {
		return nil, err
	}
	return url.Parse("https://media.example.com/folio/" + key + "?X-Amz-Signature=abc")
}

type fixture struct {
	backend  *fakeBackend
	catalog  *fakeCatalog
	search   *fakeSearch
	exporter *fakeExporter
	git      *fakeGit
	server   *HTTPServer
}

func newFixture(cfg config.Config) *fixture {
	f := &fixture{
		backend:  &fakeBackend{},
		catalog:  newFakeCatalog(),
		search:   &fakeSearch{},
		exporter: &fakeExporter{},
		git:      &fakeGit{configured: true},
	}
	svc := New(cfg, Deps{
		Comments: comments.NewService(f.backend),
		Catalog:  f.catalog,
		Search:   f.search,
		Export:   f.exporter,
		Git:      f.git,
		Media:    fakeMedia{},
	})
	f.server = NewHTTPServer(svc, "*", nil)
	return f
}

var errBoom = errors.New("boom")

package app

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"

	"folio/internal/comments"
	"folio/internal/config"
	"folio/internal/content"
	"folio/internal/export"
	"folio/internal/gitrepo"
	"folio/internal/media"
	"folio/internal/search"
	"folio/internal/toc"
)

type ArticleCatalog interface {
	Get(slug string) (content.Article, error)
	List() []content.Meta
	Load() error
	Dir() string
}

type Searcher interface {
	Search(q search.Query) search.Response
}

type Exporter interface {
	Export(ctx context.Context, req export.Request) (*export.Result, error)
}

type ContentSyncer interface {
	Configured() bool
	Sync(ctx context.Context) (gitrepo.SyncResult, error)
	History(path string, limit int) ([]gitrepo.CommitInfo, error)
	RelPath(path string) (string, error)
}

type MediaLinker interface {
	URL(ctx context.Context, key string) (*url.URL, error)
}

// Deps are the collaborators of a Service. Everything but Comments and
// Catalog is optional.
type Deps struct {
	Comments *comments.Service
	Catalog  ArticleCatalog
	Search   Searcher
	Export   Exporter
	Git      ContentSyncer
	Media    MediaLinker
	Logger   *zap.Logger
}

type Service struct {
	cfg      config.Config
	comments *comments.Service
	catalog  ArticleCatalog
	search   Searcher
	export   Exporter
	git      ContentSyncer
	media    MediaLinker
	logger   *zap.Logger
}

type ArticleDetail struct {
	content.Meta
	HTML     string        `json:"html"`
	Headings []toc.Heading `json:"headings"`
}

type ContentSyncResult struct {
	Git      *gitrepo.SyncResult `json:"git,omitempty"`
	Articles int                 `json:"articles"`
}

type ReadyCheck struct {
	Status string `json:"status"`
	Error  string `json:"error,omitempty"`
}

func New(cfg config.Config, deps Deps) *Service {
	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	svc := deps.Comments
	if svc == nil {
		svc = comments.NewService(nil, comments.WithLogger(logger))
	}
	return &Service{
		cfg:      cfg,
		comments: svc,
		catalog:  deps.Catalog,
		search:   deps.Search,
		export:   deps.Export,
		git:      deps.Git,
		media:    deps.Media,
		logger:   logger,
	}
}

// Ready pings the comment store. A missing store is reported, not failed.
func (s *Service) Ready(ctx context.Context) (bool, map[string]ReadyCheck) {
	checks := map[string]ReadyCheck{}
	ready := true

	if !s.comments.Configured() {
		checks["store"] = ReadyCheck{Status: "not_configured"}
	} else if err := s.comments.Ping(ctx); err != nil {
		ready = false
		checks["store"] = ReadyCheck{Status: "error", Error: err.Error()}
	} else {
		checks["store"] = ReadyCheck{Status: "ok"}
	}

	if s.catalog != nil {
		checks["content"] = ReadyCheck{Status: "ok"}
	}
	return ready, checks
}

func (s *Service) ListComments(ctx context.Context, page string) ([]comments.Comment, error) {
	return s.comments.List(ctx, page)
}

// CheckCommentStore fails when comments cannot be stored at all.
func (s *Service) CheckCommentStore() error {
	return s.comments.CheckConfigured()
}

func (s *Service) CreateComment(ctx context.Context, page, author, content string) (comments.Comment, error) {
	return s.comments.Create(ctx, page, author, content)
}

// CommentHint is the curl command that posts a comment on page. The body
// is JSON encoded and single-quoted for a POSIX shell.
func (s *Service) CommentHint(origin, page string) string {
	body, _ := json.Marshal(struct {
		Page    string `json:"page"`
		Author  string `json:"author"`
		Content string `json:"content"`
	}{page, "Your Name", "Your comment here"})
	return fmt.Sprintf(
		`curl -X POST %s/api/comments -H "Content-Type: application/json" -d %s`,
		strings.TrimRight(origin, "/"), shellQuote(string(body)),
	)
}

func shellQuote(s string) string {
	return "'" + strings.ReplaceAll(s, "'", `'\''`) + "'"
}

func (s *Service) Articles() []content.Meta {
	if s.catalog == nil {
		return []content.Meta{}
	}
	return s.catalog.List()
}

func (s *Service) Article(slug string) (ArticleDetail, error) {
	if s.catalog == nil {
		return ArticleDetail{}, content.ErrNotFound
	}
	a, err := s.catalog.Get(slug)
	if err != nil {
		return ArticleDetail{}, err
	}
	headings := a.Headings
	if headings == nil {
		headings = []toc.Heading{}
	}
	return ArticleDetail{Meta: a.Meta, HTML: a.HTML, Headings: headings}, nil
}

func (s *Service) ArticleHistory(slug string, limit int) ([]gitrepo.CommitInfo, error) {
	if s.git == nil || !s.git.Configured() {
		return nil, gitrepo.ErrNotConfigured
	}
	if s.catalog == nil {
		return nil, content.ErrNotFound
	}
	a, err := s.catalog.Get(slug)
	if err != nil {
		return nil, err
	}
	rel, err := s.git.RelPath(a.Path)
	if err != nil {
		return nil, fmt.Errorf("resolve article path: %w", err)
	}
	return s.git.History(rel, limit)
}

func (s *Service) Search(q search.Query) search.Response {
	if s.search == nil || strings.TrimSpace(q.Text) == "" {
		return search.Response{Results: []search.Result{}, Query: q.Text}
	}
	return s.search.Search(q)
}

func (s *Service) Export(ctx context.Context, req export.Request) (*export.Result, error) {
	if s.export == nil {
		return nil, domainError(http.StatusServiceUnavailable, "EXPORT_UNAVAILABLE", "Export is not available", nil)
	}
	return s.export.Export(ctx, req)
}

// VerifySyncToken compares token with the configured bcrypt hash. Without a
// hash every token is rejected.
func (s *Service) VerifySyncToken(token string) bool {
	if s.cfg.SyncTokenHash == "" || token == "" {
		return false
	}
	return bcrypt.CompareHashAndPassword([]byte(s.cfg.SyncTokenHash), []byte(token)) == nil
}

// SyncContent pulls the content repository, when one is configured, and
// reloads the catalog.
func (s *Service) SyncContent(ctx context.Context) (ContentSyncResult, error) {
	var out ContentSyncResult
	if s.catalog == nil {
		return out, domainError(http.StatusServiceUnavailable, "CONTENT_UNAVAILABLE", "Content catalog is not available", nil)
	}

	if s.git != nil && s.git.Configured() {
		started := time.Now()
		res, err := s.git.Sync(ctx)
		if err != nil {
			s.logger.Error("content sync failed", zap.Error(err))
			return out, domainError(http.StatusBadGateway, "SYNC_FAILED", "Failed to sync content repository", nil)
		}
		s.logger.Info("content synced",
			zap.String("before", res.Before.Hash),
			zap.String("after", res.After.Hash),
			zap.Bool("updated", res.Updated),
			zap.Duration("took", time.Since(started)),
		)
		out.Git = &res
	}

	if err := s.catalog.Load(); err != nil {
		return out, fmt.Errorf("reload content: %w", err)
	}
	out.Articles = len(s.catalog.List())
	return out, nil
}

func (s *Service) MediaURL(ctx context.Context, key string) (*url.URL, error) {
	if s.media == nil {
		return nil, media.ErrNotConfigured
	}
	return s.media.URL(ctx, key)
}

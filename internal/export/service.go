package export

import (
	"context"
	"fmt"
	"html/template"
	"strings"

	"go.uber.org/zap"

	"folio/internal/comments"
	"folio/internal/content"
)

// ArticleSource looks up published articles.
type ArticleSource interface {
	Get(slug string) (content.Article, error)
}

// CommentSource lists the comments of a page.
type CommentSource interface {
	List(ctx context.Context, page string) ([]comments.Comment, error)
}

// Converter turns a rendered article page into a download.
type Converter func(ctx context.Context, html, title string) (*Result, error)

// Service provides article export functionality
type Service struct {
	articles ArticleSource
	comments CommentSource
	logger   *zap.Logger
	pdf      Converter
	docx     Converter
}

type Option func(*Service)

// WithComments appends the article's comments to PDF and DOCX exports.
func WithComments(c CommentSource) Option { return func(s *Service) { s.comments = c } }

func WithLogger(l *zap.Logger) Option { return func(s *Service) { s.logger = l } }

func WithPDFConverter(c Converter) Option { return func(s *Service) { s.pdf = c } }

func WithDOCXConverter(c Converter) Option { return func(s *Service) { s.docx = c } }

// NewService creates a new export service
func NewService(articles ArticleSource, opts ...Option) *Service {
	s := &Service{
		articles: articles,
		logger:   zap.NewNop(),
		pdf:      exportPDF,
		docx:     exportDOCX,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Export generates an export in the requested format
func (s *Service) Export(ctx context.Context, req Request) (*Result, error) {
	article, err := s.articles.Get(req.Slug)
	if err != nil {
		return nil, err
	}

	if req.Format == FormatMarkdown {
		return &Result{
			Data:     []byte(markdownSource(article)),
			Filename: sanitizeFilename(article.Slug) + ".md",
			MimeType: "text/markdown; charset=utf-8",
		}, nil
	}

	data := TemplateData{
		Title:       article.Title,
		Summary:     article.Summary,
		Date:        article.Date,
		Tags:        article.Tags,
		Headings:    article.Headings,
		ContentHTML: template.HTML(article.HTML),
	}

	if req.IncludeComments && s.comments != nil {
		list, err := s.comments.List(ctx, article.Slug)
		if err != nil {
			// comments are an optional appendix
			s.logger.Warn("export without comments", zap.String("slug", article.Slug), zap.Error(err))
		} else {
			data.Comments = list
		}
	}

	html, err := RenderArticleHTML(data)
	if err != nil {
		return nil, fmt.Errorf("render template: %w", err)
	}

	switch req.Format {
	case FormatPDF:
		return s.pdf(ctx, html, article.Title)
	case FormatDOCX:
		return s.docx(ctx, html, article.Title)
	default:
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedFormat, req.Format)
	}
}

// markdownSource restores a title heading when the body has none.
func markdownSource(a content.Article) string {
	for _, h := range a.Headings {
		if h.Level == 1 {
			return a.Source
		}
	}
	return "# " + a.Title + "\n\n" + strings.TrimLeft(a.Source, "\n")
}

// Package comments lists and appends page comments through a pluggable
// store backend.
package comments

import (
	"context"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"
)

// Comment is an immutable, store-sequenced comment on a page.
type Comment struct {
	ID        string    `json:"id"`
	Page      string    `json:"page"`
	Author    string    `json:"author"`
	Content   string    `json:"content"`
	CreatedAt time.Time `json:"timestamp"`
}

// NewComment is a validated, trimmed comment waiting for its id and
// timestamp.
type NewComment struct {
	Page    string
	Author  string
	Content string
}

// Backend persists comments. ListComments returns newest first.
type Backend interface {
	ListComments(ctx context.Context, page string) ([]Comment, error)
	InsertComment(ctx context.Context, c NewComment) (Comment, error)
	Ping(ctx context.Context) error
}

// Cache holds per-page comment lists in store order.
type Cache interface {
	Get(ctx context.Context, page string) ([]Comment, bool, error)
	Set(ctx context.Context, page string, comments []Comment) error
	Invalidate(ctx context.Context, page string) error
}

// Notifier is told about every stored comment.
type Notifier interface {
	CommentCreated(c Comment) error
}

const (
	MaxPageLength    = 512
	MaxAuthorLength  = 100
	MaxContentLength = 5000
)

const missingStoreMessage = "comment store is not configured: set FOLIO_STORE_URL and FOLIO_STORE_KEY"

type Service struct {
	backend  Backend
	cache    Cache
	notifier Notifier
	logger   *zap.Logger
	// misconfigured is reported by every operation when set.
	misconfigured string

	// gens counts writes per page. A list read only fills the cache when no
	// write to its page landed while it was reading the backend.
	genMu sync.Mutex
	gens  map[string]uint64
}

type Option func(*Service)

func WithCache(c Cache) Option { return func(s *Service) { s.cache = c } }

func WithNotifier(n Notifier) Option { return func(s *Service) { s.notifier = n } }

func WithLogger(l *zap.Logger) Option { return func(s *Service) { s.logger = l } }

// WithConfigurationError marks the store settings as unusable. Every
// operation then fails with a ConfigurationError carrying message.
func WithConfigurationError(message string) Option {
	return func(s *Service) { s.misconfigured = message }
}

// NewService builds the gateway. A nil backend means the store credentials
// are missing; every operation then fails with a ConfigurationError.
func NewService(backend Backend, opts ...Option) *Service {
	s := &Service{backend: backend, logger: zap.NewNop(), gens: map[string]uint64{}}
	for _, opt := range opts {
		opt(s)
	}
	if s.backend == nil && s.misconfigured == "" {
		s.misconfigured = missingStoreMessage
	}
	return s
}

// Configured reports whether a usable backend is available.
func (s *Service) Configured() bool {
	return s.misconfigured == ""
}

// CheckConfigured returns the ConfigurationError every operation would
// fail with, or nil.
func (s *Service) CheckConfigured() error {
	if s.misconfigured != "" {
		return &ConfigurationError{Message: s.misconfigured}
	}
	return nil
}

// Ping checks the backend.
func (s *Service) Ping(ctx context.Context) error {
	if err := s.CheckConfigured(); err != nil {
		return err
	}
	return s.backend.Ping(ctx)
}

// List returns the comments of page, newest first.
func (s *Service) List(ctx context.Context, page string) ([]Comment, error) {
	if err := s.CheckConfigured(); err != nil {
		return nil, err
	}
	page = strings.TrimSpace(page)
	if page == "" {
		return nil, &ValidationError{Field: "page", Message: "page parameter is required"}
	}

	if s.cache != nil {
		cached, ok, err := s.cache.Get(ctx, page)
		if err != nil {
			s.logger.Warn("comment cache read failed", zap.String("page", page), zap.Error(err))
		} else if ok {
			return cached, nil
		}
	}

	gen := s.generation(page)
	items, err := s.backend.ListComments(ctx, page)
	if err != nil {
		s.logger.Error("list comments failed", zap.String("page", page), zap.Error(err))
		return nil, &StoreError{Op: "list comments", Err: err}
	}
	if items == nil {
		items = []Comment{}
	}

	if s.cache != nil {
		s.fill(ctx, page, gen, items)
	}
	return items, nil
}

func (s *Service) generation(page string) uint64 {
	s.genMu.Lock()
	defer s.genMu.Unlock()
	return s.gens[page]
}

// fill caches items unless a write to page happened since gen was read.
func (s *Service) fill(ctx context.Context, page string, gen uint64, items []Comment) {
	s.genMu.Lock()
	defer s.genMu.Unlock()
	if s.gens[page] != gen {
		s.logger.Debug("skip stale comment cache fill", zap.String("page", page))
		return
	}
	if err := s.cache.Set(ctx, page, items); err != nil {
		s.logger.Warn("comment cache write failed", zap.String("page", page), zap.Error(err))
	}
}

// Create validates and stores a comment. The store assigns id and
// timestamp.
func (s *Service) Create(ctx context.Context, page, author, content string) (Comment, error) {
	if err := s.CheckConfigured(); err != nil {
		return Comment{}, err
	}
	input, err := Validate(page, author, content)
	if err != nil {
		return Comment{}, err
	}

	created, err := s.backend.InsertComment(ctx, input)
	if err != nil {
		s.logger.Error("create comment failed", zap.String("page", input.Page), zap.Error(err))
		return Comment{}, &StoreError{Op: "create comment", Err: err}
	}
	s.logger.Info("comment created", zap.String("page", created.Page), zap.String("id", created.ID))

	s.genMu.Lock()
	s.gens[created.Page]++
	s.genMu.Unlock()
	if s.cache != nil {
		if err := s.cache.Invalidate(ctx, created.Page); err != nil {
			s.logger.Warn("comment cache invalidation failed", zap.String("page", created.Page), zap.Error(err))
		}
	}
	if s.notifier != nil {
		go func(c Comment) {
			if err := s.notifier.CommentCreated(c); err != nil {
				s.logger.Warn("comment notification failed", zap.String("id", c.ID), zap.Error(err))
			}
		}(created)
	}
	return created, nil
}

// Validate trims the fields of a new comment and checks them.
func Validate(page, author, content string) (NewComment, error) {
	if page == "" || author == "" || content == "" {
		return NewComment{}, &ValidationError{Message: "page, author, and content are required"}
	}
	input := NewComment{
		Page:    strings.TrimSpace(page),
		Author:  strings.TrimSpace(author),
		Content: strings.TrimSpace(content),
	}
	if input.Page == "" {
		return NewComment{}, &ValidationError{Field: "page", Message: "page cannot be empty"}
	}
	if input.Author == "" || input.Content == "" {
		return NewComment{}, &ValidationError{Message: "author and content cannot be empty"}
	}
	if len(input.Page) > MaxPageLength {
		return NewComment{}, &ValidationError{Field: "page", Message: "page is too long"}
	}
	if len([]rune(input.Author)) > MaxAuthorLength {
		return NewComment{}, &ValidationError{Field: "author", Message: "author is too long"}
	}
	if len([]rune(input.Content)) > MaxContentLength {
		return NewComment{}, &ValidationError{Field: "content", Message: "content is too long"}
	}
	return input, nil
}

package store

import (
	"context"
	"errors"
	"sync"

	"go.uber.org/zap"

	"folio/internal/comments"
)

var ErrClosed = errors.New("store closed")

// Lazy opens the comment store on first use. A failed open is retried by
// the next call, so a store that is down at startup is picked up once it
// is reachable.
type Lazy struct {
	url    string
	key    string
	open   func(ctx context.Context, storeURL, key string) (Backend, error)
	logger *zap.Logger

	mu      sync.Mutex
	backend Backend
	closed  bool
}

func NewLazy(storeURL, key string, logger *zap.Logger) *Lazy {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Lazy{url: storeURL, key: key, open: Open, logger: logger}
}

// Connect opens the store now if it is not open yet.
func (l *Lazy) Connect(ctx context.Context) error {
	_, err := l.get(ctx)
	return err
}

func (l *Lazy) get(ctx context.Context) (Backend, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.closed {
		return nil, ErrClosed
	}
	if l.backend != nil {
		return l.backend, nil
	}
	b, err := l.open(ctx, l.url, l.key)
	if err != nil {
		return nil, err
	}
	l.logger.Info("comment store connected")
	l.backend = b
	return b, nil
}

func (l *Lazy) ListComments(ctx context.Context, page string) ([]comments.Comment, error) {
	b, err := l.get(ctx)
	if err != nil {
		return nil, err
	}
	return b.ListComments(ctx, page)
}

func (l *Lazy) InsertComment(ctx context.Context, c comments.NewComment) (comments.Comment, error) {
	b, err := l.get(ctx)
	if err != nil {
		return comments.Comment{}, err
	}
	return b.InsertComment(ctx, c)
}

func (l *Lazy) Ping(ctx context.Context) error {
	b, err := l.get(ctx)
	if err != nil {
		return err
	}
	return b.Ping(ctx)
}

func (l *Lazy) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.closed = true
	if l.backend == nil {
		return nil
	}
	err := l.backend.Close()
	l.backend = nil
	return err
}

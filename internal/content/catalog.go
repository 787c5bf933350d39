package content

import (
	"errors"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"go.uber.org/zap"
)

var articleExts = map[string]bool{".md": true, ".mdx": true, ".markdown": true}

// IsArticleFile reports whether path has an article extension.
func IsArticleFile(path string) bool {
	return articleExts[strings.ToLower(filepath.Ext(path))]
}

// Catalog is the in-memory set of published articles under a directory.
type Catalog struct {
	dir      string
	renderer *Renderer
	logger   *zap.Logger

	loadMu sync.Mutex

	mu        sync.RWMutex
	bySlug    map[string]Article
	published []Article
	listeners []func([]Article)
}

func NewCatalog(dir string, logger *zap.Logger) *Catalog {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Catalog{
		dir:      dir,
		renderer: NewRenderer(),
		logger:   logger,
		bySlug:   map[string]Article{},
	}
}

func (c *Catalog) Dir() string { return c.dir }

// OnReload registers fn to receive the published articles after every
// successful Load.
func (c *Catalog) OnReload(fn func([]Article)) {
	c.mu.Lock()
	c.listeners = append(c.listeners, fn)
	c.mu.Unlock()
}

// Load rereads every article under the directory and swaps the catalog in
// one step. Files that fail to parse are logged and skipped. A missing
// directory is an empty catalog.
func (c *Catalog) Load() error {
	c.loadMu.Lock()
	defer c.loadMu.Unlock()

	bySlug := map[string]Article{}
	err := filepath.WalkDir(c.dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			if path != c.dir && strings.HasPrefix(d.Name(), ".") {
				return filepath.SkipDir
			}
			return nil
		}
		if !IsArticleFile(path) {
			return nil
		}

		src, err := os.ReadFile(path)
		if err != nil {
			c.logger.Warn("read article failed", zap.String("path", path), zap.Error(err))
			return nil
		}
		article, err := Parse(path, src, c.renderer)
		if err != nil {
			c.logger.Warn("skip article", zap.String("path", path), zap.Error(err))
			return nil
		}
		if prev, ok := bySlug[article.Slug]; ok {
			c.logger.Warn("duplicate article slug", zap.String("slug", article.Slug),
				zap.String("kept", prev.Path), zap.String("skipped", path))
			return nil
		}
		bySlug[article.Slug] = article
		return nil
	})
	if err != nil && !errors.Is(err, fs.ErrNotExist) {
		return err
	}
	if errors.Is(err, fs.ErrNotExist) {
		c.logger.Warn("content directory missing", zap.String("dir", c.dir))
	}

	published := make([]Article, 0, len(bySlug))
	for _, a := range bySlug {
		if !a.Draft {
			published = append(published, a)
		}
	}
	sort.Slice(published, func(i, j int) bool {
		if !published[i].Date.Equal(published[j].Date) {
			return published[i].Date.After(published[j].Date)
		}
		return published[i].Slug < published[j].Slug
	})

	c.mu.Lock()
	c.bySlug = bySlug
	c.published = published
	listeners := append([]func([]Article){}, c.listeners...)
	c.mu.Unlock()

	c.logger.Info("content loaded", zap.String("dir", c.dir), zap.Int("articles", len(published)))
	for _, fn := range listeners {
		fn(append([]Article(nil), published...))
	}
	return nil
}

// Get returns a published article.
func (c *Catalog) Get(slug string) (Article, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	a, ok := c.bySlug[strings.ToLower(strings.TrimSpace(slug))]
	if !ok || a.Draft {
		return Article{}, ErrNotFound
	}
	return a, nil
}

// List returns the metadata of published articles, newest first.
func (c *Catalog) List() []Meta {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make([]Meta, 0, len(c.published))
	for _, a := range c.published {
		out = append(out, a.Meta)
	}
	return out
}

// Articles returns the published articles, newest first.
func (c *Catalog) Articles() []Article {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return append([]Article(nil), c.published...)
}

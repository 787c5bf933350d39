package search

import (
	"sync"

	"go.uber.org/zap"

	"folio/internal/content"
)

// Service is the facade that tries Meilisearch first and falls back to the
// in-memory index.
type Service struct {
	meili  *Meili
	memory *Memory
	logger *zap.Logger

	mu          sync.Mutex
	articleIDs  map[string]bool
	headingIDs  map[string]bool
	lastArticle []ArticleRecord
	lastHeading []HeadingRecord
}

// NewService creates a search service. meili may be nil if Meilisearch is
// not configured.
func NewService(meili *Meili, logger *zap.Logger) *Service {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{
		meili:      meili,
		memory:     NewMemory(),
		logger:     logger,
		articleIDs: map[string]bool{},
		headingIDs: map[string]bool{},
	}
}

// Search tries Meilisearch if healthy, otherwise falls back to memory.
func (s *Service) Search(q Query) Response {
	if s.meili != nil && s.meili.Healthy() {
		results, total, err := s.meili.Search(q)
		if err == nil {
			return Response{Results: nonNil(results), Total: total, Query: q.Text}
		}
		s.logger.Warn("meilisearch error, falling back to memory index", zap.Error(err))
	}

	results, total, err := s.memory.Search(q)
	if err != nil {
		s.logger.Error("memory search failed", zap.Error(err))
		return Response{Results: []Result{}, Total: 0, Query: q.Text}
	}
	return Response{Results: nonNil(results), Total: total, Query: q.Text}
}

// Sync replaces the indexed articles. Records that disappeared since the
// previous Sync are deleted from Meilisearch.
func (s *Service) Sync(articles []content.Article) {
	arts, heads := Records(articles)
	s.memory.Replace(arts, heads)

	s.mu.Lock()
	staleArticles := staleIDs(s.articleIDs, articleIDs(arts))
	staleHeadings := staleIDs(s.headingIDs, headingIDs(heads))
	s.articleIDs = articleIDs(arts)
	s.headingIDs = headingIDs(heads)
	s.lastArticle, s.lastHeading = arts, heads
	s.mu.Unlock()

	if s.meili == nil || !s.meili.Healthy() {
		return
	}
	s.push(arts, heads, staleArticles, staleHeadings)
}

// ReindexAll pushes the last synced records to Meilisearch again, for use
// after it recovers.
func (s *Service) ReindexAll() {
	if s.meili == nil || !s.meili.Healthy() {
		return
	}
	s.mu.Lock()
	arts, heads := s.lastArticle, s.lastHeading
	s.mu.Unlock()
	s.push(arts, heads, nil, nil)
}

func (s *Service) push(arts []ArticleRecord, heads []HeadingRecord, staleArticles, staleHeadings []string) {
	if err := s.meili.IndexArticles(arts); err != nil {
		s.logger.Warn("index articles", zap.Error(err))
	}
	if err := s.meili.IndexHeadings(heads); err != nil {
		s.logger.Warn("index headings", zap.Error(err))
	}
	for _, id := range staleArticles {
		if err := s.meili.DeleteArticle(id); err != nil {
			s.logger.Warn("delete article", zap.String("id", id), zap.Error(err))
		}
	}
	for _, id := range staleHeadings {
		if err := s.meili.DeleteHeading(id); err != nil {
			s.logger.Warn("delete heading", zap.String("id", id), zap.Error(err))
		}
	}
}

func articleIDs(records []ArticleRecord) map[string]bool {
	ids := make(map[string]bool, len(records))
	for _, r := range records {
		ids[r.ID] = true
	}
	return ids
}

func headingIDs(records []HeadingRecord) map[string]bool {
	ids := make(map[string]bool, len(records))
	for _, r := range records {
		ids[r.ID] = true
	}
	return ids
}

func staleIDs(prev, next map[string]bool) []string {
	var out []string
	for id := range prev {
		if !next[id] {
			out = append(out, id)
		}
	}
	return out
}

func nonNil(r []Result) []Result {
	if r == nil {
		return []Result{}
	}
	return r
}

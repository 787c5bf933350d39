package search

import (
	"html"
	"sort"
	"strings"
	"sync"
	"unicode"
)

// Memory is an in-process index over the same records pushed to
// Meilisearch. Every term of the query must match a word prefix.
type Memory struct {
	mu       sync.RWMutex
	articles []ArticleRecord
	headings []HeadingRecord
}

func NewMemory() *Memory {
	return &Memory{}
}

// Replace swaps the indexed records.
func (m *Memory) Replace(articles []ArticleRecord, headings []HeadingRecord) {
	m.mu.Lock()
	m.articles = append([]ArticleRecord(nil), articles...)
	m.headings = append([]HeadingRecord(nil), headings...)
	m.mu.Unlock()
}

func (m *Memory) Healthy() bool {
	return true
}

type scored struct {
	result Result
	score  int
	date   int64
}

func (m *Memory) Search(q Query) ([]Result, int, error) {
	terms := tokenize(q.Text)
	if len(terms) == 0 {
		return nil, 0, nil
	}
	limit := q.Limit
	if limit <= 0 {
		limit = 20
	}
	offset := q.Offset
	if offset < 0 {
		offset = 0
	}
	tag := strings.ToLower(strings.TrimSpace(q.FilterTag))

	m.mu.RLock()
	defer m.mu.RUnlock()

	var hits []scored
	if q.FilterType == "" || q.FilterType == ResultArticle {
		for _, a := range m.articles {
			if tag != "" && !hasTag(a.Tags, tag) {
				continue
			}
			fields := []weighted{
				{a.Title, 8},
				{strings.Join(a.Tags, " "), 4},
				{strings.Join(a.Headings, " "), 2},
				{a.Summary, 1},
			}
			if score := matchAll(terms, fields); score > 0 {
				hits = append(hits, scored{
					result: Result{Type: ResultArticle, Slug: a.Slug, Title: a.Title, Snippet: highlight(a.Summary, terms)},
					score:  score,
					date:   a.Date,
				})
			}
		}
	}
	if q.FilterType == "" || q.FilterType == ResultHeading {
		for _, h := range m.headings {
			if tag != "" && !hasTag(h.Tags, tag) {
				continue
			}
			if score := matchAll(terms, []weighted{{h.Text, 4}, {h.ArticleTitle, 1}}); score > 0 {
				hits = append(hits, scored{
					result: Result{Type: ResultHeading, Slug: h.Slug, HeadingID: h.HeadingID, Title: h.ArticleTitle, Snippet: highlight(h.Text, terms)},
					score:  score,
				})
			}
		}
	}

	sort.SliceStable(hits, func(i, j int) bool {
		if hits[i].score != hits[j].score {
			return hits[i].score > hits[j].score
		}
		return hits[i].date > hits[j].date
	})

	total := len(hits)
	if offset >= total {
		return []Result{}, total, nil
	}
	end := offset + limit
	if end > total {
		end = total
	}
	out := make([]Result, 0, end-offset)
	for _, h := range hits[offset:end] {
		out = append(out, h.result)
	}
	return out, total, nil
}

type weighted struct {
	text   string
	weight int
}

// matchAll scores fields against terms. Zero means some term matched
// nowhere.
func matchAll(terms []string, fields []weighted) int {
	tokenized := make([][]string, len(fields))
	for i, f := range fields {
		tokenized[i] = tokenize(f.text)
	}
	total := 0
	for _, term := range terms {
		best := 0
		for i, words := range tokenized {
			for _, w := range words {
				if strings.HasPrefix(w, term) && fields[i].weight > best {
					best = fields[i].weight
				}
			}
		}
		if best == 0 {
			return 0
		}
		total += best
	}
	return total
}

func tokenize(s string) []string {
	return strings.FieldsFunc(strings.ToLower(s), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsNumber(r)
	})
}

func hasTag(tags []string, tag string) bool {
	for _, t := range tags {
		if t == tag {
			return true
		}
	}
	return false
}

// highlight escapes s and wraps words starting with any term in <mark>, the
// same markup Meilisearch produces.
func highlight(s string, terms []string) string {
	var b strings.Builder
	word := func(w string) {
		lw := strings.ToLower(w)
		for _, t := range terms {
			if strings.HasPrefix(lw, t) {
				b.WriteString("<mark>" + html.EscapeString(w) + "</mark>")
				return
			}
		}
		b.WriteString(html.EscapeString(w))
	}

	start := -1
	for i, r := range s {
		inWord := unicode.IsLetter(r) || unicode.IsNumber(r)
		switch {
		case inWord && start < 0:
			start = i
		case !inWord && start >= 0:
			word(s[start:i])
			start = -1
			b.WriteString(html.EscapeString(string(r)))
		case !inWord:
			b.WriteString(html.EscapeString(string(r)))
		}
	}
	if start >= 0 {
		word(s[start:])
	}
	return b.String()
}

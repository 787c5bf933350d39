package search

import (
	"strings"

	"folio/internal/content"
)

// Records flattens published articles into index records.
func Records(articles []content.Article) ([]ArticleRecord, []HeadingRecord) {
	arts := make([]ArticleRecord, 0, len(articles))
	var heads []HeadingRecord
	for _, a := range articles {
		texts := make([]string, 0, len(a.Headings))
		for _, h := range a.Headings {
			texts = append(texts, h.Text)
			heads = append(heads, HeadingRecord{
				ID:           recordID(a.Slug + "__" + h.ID),
				Slug:         a.Slug,
				HeadingID:    h.ID,
				Text:         h.Text,
				Level:        h.Level,
				ArticleTitle: a.Title,
				Tags:         a.Tags,
			})
		}
		arts = append(arts, ArticleRecord{
			ID:       recordID(a.Slug),
			Slug:     a.Slug,
			Title:    a.Title,
			Summary:  a.Summary,
			Tags:     a.Tags,
			Headings: texts,
			Date:     a.Date.Unix(),
		})
	}
	return arts, heads
}

// recordID maps s onto the characters Meilisearch accepts in primary keys.
func recordID(s string) string {
	return strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '-', r == '_':
			return r
		default:
			return '_'
		}
	}, s)
}

// Package content loads the article catalog from markdown files with YAML
// front matter.
package content

import (
	"bytes"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"folio/internal/toc"
)

var ErrNotFound = errors.New("article not found")

// Meta is the listable part of an article.
type Meta struct {
	Slug    string    `json:"slug" yaml:"-"`
	Title   string    `json:"title" yaml:"title"`
	Summary string    `json:"summary,omitempty" yaml:"summary"`
	Date    time.Time `json:"date" yaml:"date"`
	Tags    []string  `json:"tags" yaml:"tags"`
	Draft   bool      `json:"draft,omitempty" yaml:"draft"`
}

type Article struct {
	Meta
	Path     string        `json:"-"`
	Source   string        `json:"-"`
	HTML     string        `json:"html"`
	Headings []toc.Heading `json:"headings"`
}

var frontMatterFence = []byte("---")

// splitFrontMatter separates a leading "---" YAML block from the body. A
// file without one is all body.
func splitFrontMatter(src []byte) (meta, body []byte, err error) {
	src = bytes.TrimPrefix(src, []byte("\ufeff"))
	if !bytes.HasPrefix(src, frontMatterFence) {
		return nil, src, nil
	}
	rest := src[len(frontMatterFence):]
	nl := bytes.IndexByte(rest, '\n')
	if nl < 0 || len(bytes.TrimSpace(rest[:nl])) != 0 {
		return nil, src, nil
	}
	rest = rest[nl+1:]

	for offset := 0; offset < len(rest); {
		end := bytes.IndexByte(rest[offset:], '\n')
		line := rest[offset:]
		next := len(rest)
		if end >= 0 {
			line = rest[offset : offset+end]
			next = offset + end + 1
		}
		if bytes.Equal(bytes.TrimRight(line, " \t\r"), frontMatterFence) {
			return rest[:offset], rest[next:], nil
		}
		offset = next
	}
	return nil, nil, fmt.Errorf("unterminated front matter")
}

// SlugFromPath names an article after its file. "page" and "index" files
// take the name of their directory.
func SlugFromPath(path string) string {
	base := filepath.Base(path)
	stem := strings.TrimSuffix(base, filepath.Ext(base))
	if stem == "page" || stem == "index" {
		stem = filepath.Base(filepath.Dir(path))
	}
	return strings.ToLower(stem)
}

// Parse builds an article from a file's bytes.
func Parse(path string, src []byte, r *Renderer) (Article, error) {
	rawMeta, body, err := splitFrontMatter(src)
	if err != nil {
		return Article{}, fmt.Errorf("parse %s: %w", path, err)
	}

	var meta Meta
	if len(bytes.TrimSpace(rawMeta)) > 0 {
		if err := yaml.Unmarshal(rawMeta, &meta); err != nil {
			return Article{}, fmt.Errorf("parse front matter %s: %w", path, err)
		}
	}
	meta.Slug = SlugFromPath(path)
	meta.normalize()

	html, headings, err := r.Render(body)
	if err != nil {
		return Article{}, fmt.Errorf("render %s: %w", path, err)
	}
	if meta.Title == "" {
		meta.Title = firstTitle(headings, meta.Slug)
	}

	return Article{
		Meta:     meta,
		Path:     path,
		Source:   string(body),
		HTML:     html,
		Headings: headings,
	}, nil
}

func (m *Meta) normalize() {
	m.Title = strings.TrimSpace(m.Title)
	m.Summary = strings.TrimSpace(m.Summary)

	seen := make(map[string]struct{}, len(m.Tags))
	tags := make([]string, 0, len(m.Tags))
	for _, tag := range m.Tags {
		tag = strings.ToLower(strings.TrimSpace(tag))
		if tag == "" {
			continue
		}
		if _, ok := seen[tag]; ok {
			continue
		}
		seen[tag] = struct{}{}
		tags = append(tags, tag)
	}
	m.Tags = tags
}

func firstTitle(headings []toc.Heading, fallback string) string {
	for _, h := range headings {
		if h.Level == 1 {
			return h.Text
		}
	}
	return fallback
}

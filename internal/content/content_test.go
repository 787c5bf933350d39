package content

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"folio/internal/toc"
)

func writeFile(t *testing.T, path, body string) {
	t.Helper()
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
}

const helloArticle = `---
title: Hello World
summary: "  A first post  "
date: 2024-05-01
tags: [Go, go, " Notes "]
---
# Hello World

Intro paragraph.

## Setup

<h2 id="custom-anchor">Raw HTML</h2>

### Setup
`

func TestParseArticle(t *testing.T) {
	a, err := Parse("posts/hello.md", []byte(helloArticle), NewRenderer())
	require.NoError(t, err)

	assert.Equal(t, "hello", a.Slug)
	assert.Equal(t, "Hello World", a.Title)
	assert.Equal(t, "A first post", a.Summary)
	assert.Equal(t, []string{"go", "notes"}, a.Tags)
	assert.Equal(t, time.Date(2024, 5, 1, 0, 0, 0, 0, time.UTC), a.Date.UTC())
	assert.Equal(t, []toc.Heading{
		{ID: "hello-world", Text: "Hello World", Level: 1},
		{ID: "setup", Text: "Setup", Level: 2},
		{ID: "custom-anchor", Text: "Raw HTML", Level: 2},
		{ID: "setup-1", Text: "Setup", Level: 3},
	}, a.Headings)
	assert.Contains(t, a.HTML, `<h2 id="setup">Setup</h2>`)
	assert.Contains(t, a.HTML, `<h3 id="setup-1">Setup</h3>`)
	assert.NotContains(t, a.Source, "title:")
}

func TestParseWithoutFrontMatterTakesTitleFromHeading(t *testing.T) {
	a, err := Parse("blog/deep-dive/page.mdx", []byte("# Deep Dive\n\nbody\n"), NewRenderer())
	require.NoError(t, err)
	assert.Equal(t, "deep-dive", a.Slug)
	assert.Equal(t, "Deep Dive", a.Title)
}

func TestParseRejectsBrokenFrontMatter(t *testing.T) {
	_, err := Parse("x.md", []byte("---\ntitle: x\nno end"), NewRenderer())
	assert.Error(t, err)

	_, err = Parse("x.md", []byte("---\ntitle: [unclosed\n---\nbody"), NewRenderer())
	assert.Error(t, err)
}

func TestSplitFrontMatterIgnoresThematicBreakLater(t *testing.T) {
	meta, body, err := splitFrontMatter([]byte("intro\n---\nmore"))
	require.NoError(t, err)
	assert.Nil(t, meta)
	assert.Equal(t, "intro\n---\nmore", string(body))
}

func TestCatalogLoad(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, filepath.Join(dir, "hello.md"), helloArticle)
	writeFile(t, filepath.Join(dir, "later.md"), "---\ntitle: Later\ndate: 2025-01-01\n---\n## Only\n")
	writeFile(t, filepath.Join(dir, "draft.md"), "---\ntitle: Draft\ndraft: true\n---\nwip\n")
	writeFile(t, filepath.Join(dir, "broken.md"), "---\ntitle: [\n---\n")
	writeFile(t, filepath.Join(dir, "notes.txt"), "ignored")
	writeFile(t, filepath.Join(dir, ".git", "x.md"), "# hidden")

	c := NewCatalog(dir, nil)
	var reloaded []Article
	c.OnReload(func(a []Article) { reloaded = a })
	require.NoError(t, c.Load())

	list := c.List()
	require.Len(t, list, 2)
	assert.Equal(t, "later", list[0].Slug)
	assert.Equal(t, "hello", list[1].Slug)
	assert.Len(t, reloaded, 2)

	_, err := c.Get("draft")
	assert.ErrorIs(t, err, ErrNotFound)
	_, err = c.Get("broken")
	assert.ErrorIs(t, err, ErrNotFound)

	got, err := c.Get(" HELLO ")
	require.NoError(t, err)
	assert.Equal(t, "Hello World", got.Title)
}

func TestCatalogMissingDirIsEmpty(t *testing.T) {
	c := NewCatalog(filepath.Join(t.TempDir(), "nope"), nil)
	require.NoError(t, c.Load())
	assert.Empty(t, c.List())
}

func TestWatcherReloadsOnChange(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, filepath.Join(dir, "one.md"), "# One\n")

	c := NewCatalog(dir, nil)
	require.NoError(t, c.Load())

	w, err := NewWatcher(c, 20*time.Millisecond, nil)
	require.NoError(t, err)
	require.NoError(t, w.Start(context.Background()))
	t.Cleanup(w.Stop)

	writeFile(t, filepath.Join(dir, "two.md"), "# Two\n")
	require.Eventually(t, func() bool { return len(c.List()) == 2 }, 5*time.Second, 10*time.Millisecond)

	require.NoError(t, os.Remove(filepath.Join(dir, "one.md")))
	require.Eventually(t, func() bool { return len(c.List()) == 1 }, 5*time.Second, 10*time.Millisecond)
	assert.GreaterOrEqual(t, w.Reloads(), 2)
}

func TestWatcherStopIsIdempotent(t *testing.T) {
	c := NewCatalog(t.TempDir(), nil)
	w, err := NewWatcher(c, 0, nil)
	require.NoError(t, err)
	require.NoError(t, w.Start(context.Background()))
	w.Stop()
	w.Stop()
}

// Package toc builds the ordered section index of a rendered page.
package toc

import (
	"regexp"
	"strconv"
	"strings"
)

// Heading is one navigable section of a page.
type Heading struct {
	ID    string `json:"id"`
	Text  string `json:"text"`
	Level int    `json:"level"`
}

// Element is a heading-capable node of a content tree.
type Element interface {
	Level() int
	Text() string
	ID() string
	SetID(id string)
}

// Root exposes the heading elements of a content tree in document order.
type Root interface {
	Headings() []Element
}

const (
	MinLevel = 1
	MaxLevel = 3
)

var (
	slugStrip    = regexp.MustCompile(`[^\w\s\p{Z}-]`)
	slugSpaces   = regexp.MustCompile(`[\s\p{Z}]+`)
	slugHyphens  = regexp.MustCompile(`-+`)
	textSpaceRun = regexp.MustCompile(`\s+`)
)

// Slugify derives a fragment-safe id from heading text. It returns "" when
// nothing navigable is left.
func Slugify(text string) string {
	slug := strings.ToLower(strings.TrimSpace(text))
	slug = slugStrip.ReplaceAllString(slug, "")
	slug = slugSpaces.ReplaceAllString(slug, "-")
	slug = slugHyphens.ReplaceAllString(slug, "-")
	return strings.Trim(slug, "-")
}

// Index walks root and returns its headings in document order. Elements
// without an id get a derived one written back, so repeated passes over the
// same tree return the same list.
func Index(root Root) []Heading {
	if root == nil {
		return []Heading{}
	}
	elements := root.Headings()

	// Explicit ids win over derived ones, so reserve them before deriving.
	reserved := make(map[string]struct{}, len(elements))
	for _, el := range elements {
		if id := strings.TrimSpace(el.ID()); id != "" {
			reserved[id] = struct{}{}
		}
	}

	headings := make([]Heading, 0, len(elements))
	seen := make(map[string]struct{}, len(elements))
	for _, el := range elements {
		level := el.Level()
		if level < MinLevel || level > MaxLevel {
			continue
		}
		text := normalizeText(el.Text())
		if text == "" {
			continue
		}

		id := strings.TrimSpace(el.ID())
		if id == "" {
			base := Slugify(text)
			if base == "" {
				continue
			}
			id = uniqueID(base, reserved, seen)
			el.SetID(id)
			reserved[id] = struct{}{}
		}
		if _, dup := seen[id]; dup {
			continue
		}
		seen[id] = struct{}{}
		headings = append(headings, Heading{ID: id, Text: text, Level: level})
	}
	return headings
}

func uniqueID(base string, reserved, seen map[string]struct{}) string {
	taken := func(id string) bool {
		if _, ok := reserved[id]; ok {
			return true
		}
		_, ok := seen[id]
		return ok
	}
	if !taken(base) {
		return base
	}
	for n := 1; ; n++ {
		candidate := base + "-" + strconv.Itoa(n)
		if !taken(candidate) {
			return candidate
		}
	}
}

func normalizeText(text string) string {
	return strings.TrimSpace(textSpaceRun.ReplaceAllString(text, " "))
}

// Equal reports whether two heading lists are identical.
func Equal(a, b []Heading) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

package toc

import (
	"bytes"
	"fmt"
	"io"
	"strings"

	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"
)

// Document is an HTML content tree. Its headings are looked up under <main>
// when the page has one, otherwise under <body>.
type Document struct {
	root *html.Node
}

// ParseHTML parses a full HTML page.
func ParseHTML(r io.Reader) (*Document, error) {
	doc, err := html.Parse(r)
	if err != nil {
		return nil, fmt.Errorf("parse html: %w", err)
	}
	return &Document{root: doc}, nil
}

// Headings implements Root.
func (d *Document) Headings() []Element {
	scope := findFirst(d.root, atom.Main)
	if scope == nil {
		scope = findFirst(d.root, atom.Body)
	}
	if scope == nil {
		scope = d.root
	}
	return collectHeadings(scope)
}

// Render writes the (possibly id-annotated) document back out.
func (d *Document) Render(w io.Writer) error {
	return html.Render(w, d.root)
}

// IndexFragment indexes an HTML body fragment, such as rendered article
// markup, and returns the fragment with every derived id written in.
func IndexFragment(src string) (string, []Heading, error) {
	body := &html.Node{Type: html.ElementNode, Data: "body", DataAtom: atom.Body}
	nodes, err := html.ParseFragment(strings.NewReader(src), body)
	if err != nil {
		return "", nil, fmt.Errorf("parse html fragment: %w", err)
	}
	for _, n := range nodes {
		body.AppendChild(n)
	}

	headings := Index(fragmentRoot{body})

	var buf bytes.Buffer
	for c := body.FirstChild; c != nil; c = c.NextSibling {
		if err := html.Render(&buf, c); err != nil {
			return "", nil, fmt.Errorf("render html fragment: %w", err)
		}
	}
	return buf.String(), headings, nil
}

type fragmentRoot struct{ body *html.Node }

func (f fragmentRoot) Headings() []Element { return collectHeadings(f.body) }

type htmlHeading struct {
	node  *html.Node
	level int
}

func (h *htmlHeading) Level() int { return h.level }

func (h *htmlHeading) Text() string {
	var b strings.Builder
	appendText(&b, h.node)
	return b.String()
}

func (h *htmlHeading) ID() string {
	for _, attr := range h.node.Attr {
		if attr.Key == "id" {
			return attr.Val
		}
	}
	return ""
}

func (h *htmlHeading) SetID(id string) {
	for i, attr := range h.node.Attr {
		if attr.Key == "id" {
			h.node.Attr[i].Val = id
			return
		}
	}
	h.node.Attr = append(h.node.Attr, html.Attribute{Key: "id", Val: id})
}

func headingLevel(n *html.Node) int {
	switch n.DataAtom {
	case atom.H1:
		return 1
	case atom.H2:
		return 2
	case atom.H3:
		return 3
	}
	return 0
}

func collectHeadings(scope *html.Node) []Element {
	var out []Element
	var walk func(*html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.ElementNode {
			if level := headingLevel(n); level > 0 {
				out = append(out, &htmlHeading{node: n, level: level})
				return
			}
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(scope)
	return out
}

func findFirst(n *html.Node, a atom.Atom) *html.Node {
	if n.Type == html.ElementNode && n.DataAtom == a {
		return n
	}
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		if found := findFirst(c, a); found != nil {
			return found
		}
	}
	return nil
}

func appendText(b *strings.Builder, n *html.Node) {
	if n.Type == html.TextNode {
		b.WriteString(n.Data)
		return
	}
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		appendText(b, c)
	}
}

package content

import (
	"bytes"

	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/extension"
	gmhtml "github.com/yuin/goldmark/renderer/html"

	"folio/internal/toc"
)

// Renderer turns markdown into HTML whose h1-h3 elements carry stable ids.
// Raw HTML and JSX-like blocks pass through untouched.
type Renderer struct {
	md goldmark.Markdown
}

func NewRenderer() *Renderer {
	return &Renderer{
		md: goldmark.New(
			goldmark.WithExtensions(extension.GFM),
			goldmark.WithRendererOptions(gmhtml.WithUnsafe()),
		),
	}
}

func (r *Renderer) Render(src []byte) (string, []toc.Heading, error) {
	var buf bytes.Buffer
	if err := r.md.Convert(src, &buf); err != nil {
		return "", nil, err
	}
	return toc.IndexFragment(buf.String())
}

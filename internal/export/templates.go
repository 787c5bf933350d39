package export

import (
	"bytes"
	"embed"
	"html/template"
	"strings"
	"time"

	"folio/internal/comments"
	"folio/internal/toc"
)

// SafeHTML is a template function that marks a string as safe HTML
func SafeHTML(s interface{}) template.HTML {
	switch v := s.(type) {
	case string:
		return template.HTML(v)
	case template.HTML:
		return v
	default:
		return template.HTML("")
	}
}

//go:embed templates/*.html
var templateFS embed.FS

var articleTemplate = template.Must(template.New("article.html").Funcs(template.FuncMap{
	"lower": strings.ToLower,
	"formatDate": func(t time.Time, layout string) string {
		return t.Format(layout)
	},
	"safeHTML": SafeHTML,
}).ParseFS(templateFS, "templates/article.html"))

// TemplateData holds data for article template rendering
type TemplateData struct {
	Title       string
	Summary     string
	Date        time.Time
	Tags        []string
	Headings    []toc.Heading
	ContentHTML template.HTML
	Comments    []comments.Comment
}

// RenderArticleHTML renders the standalone article page fed to the
// converters.
func RenderArticleHTML(data TemplateData) (string, error) {
	var buf bytes.Buffer
	if err := articleTemplate.Execute(&buf, data); err != nil {
		return "", err
	}
	return buf.String(), nil
}

package search

// ResultType identifies the kind of entity in a search result.
type ResultType string

const (
	ResultArticle ResultType = "article"
	ResultHeading ResultType = "heading"
)

// Result is a single search hit returned to the caller.
type Result struct {
	Type      ResultType `json:"type"`
	Slug      string     `json:"slug"`
	HeadingID string     `json:"headingId,omitempty"`
	Title     string     `json:"title"`
	Snippet   string     `json:"snippet"`
}

// Query describes a search request.
type Query struct {
	Text       string
	FilterType ResultType // empty = all types
	FilterTag  string
	Limit      int
	Offset     int
}

// Response is the envelope returned by the search endpoint.
type Response struct {
	Results []Result `json:"results"`
	Total   int      `json:"total"`
	Query   string   `json:"query"`
}

// Searcher can execute a full-text search.
type Searcher interface {
	Search(q Query) ([]Result, int, error)
	Healthy() bool
}

// ArticleRecord is the data we index for an article.
type ArticleRecord struct {
	ID       string   `json:"id"`
	Slug     string   `json:"slug"`
	Title    string   `json:"title"`
	Summary  string   `json:"summary"`
	Tags     []string `json:"tags"`
	Headings []string `json:"headings"`
	Date     int64    `json:"date"`
}

// HeadingRecord is the data we index for one section of an article.
type HeadingRecord struct {
	ID           string   `json:"id"`
	Slug         string   `json:"slug"`
	HeadingID    string   `json:"headingId"`
	Text         string   `json:"text"`
	Level        int      `json:"level"`
	ArticleTitle string   `json:"articleTitle"`
	Tags         []string `json:"tags"`
}

package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"

	"folio/internal/comments"
)

// sqliteTimeLayout is fixed width so stored timestamps sort as text.
const sqliteTimeLayout = "2006-01-02T15:04:05.000000000Z07:00"

// SQLStore keeps comments in a SQL database.
type SQLStore struct {
	db      *sql.DB
	dialect Dialect
	now     func() time.Time
}

func NewSQLStore(db *sql.DB, d Dialect) *SQLStore {
	return &SQLStore{db: db, dialect: d, now: time.Now}
}

func (s *SQLStore) DB() *sql.DB {
	return s.db
}

func (s *SQLStore) ListComments(ctx context.Context, page string) ([]comments.Comment, error) {
	rows, err := s.db.QueryContext(ctx, s.dialect.Rebind(`
		SELECT id, page, author, content, created_at
		FROM comments
		WHERE page = $1
		ORDER BY created_at DESC, seq DESC
	`), page)
	if err != nil {
		return nil, fmt.Errorf("query comments: %w", err)
	}
	defer rows.Close()

	items := make([]comments.Comment, 0)
	for rows.Next() {
		var (
			c       comments.Comment
			created any
		)
		if err := rows.Scan(&c.ID, &c.Page, &c.Author, &c.Content, &created); err != nil {
			return nil, fmt.Errorf("scan comment: %w", err)
		}
		if c.CreatedAt, err = scanTime(created); err != nil {
			return nil, fmt.Errorf("scan comment %s: %w", c.ID, err)
		}
		items = append(items, c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate comments: %w", err)
	}
	return items, nil
}

func (s *SQLStore) InsertComment(ctx context.Context, input comments.NewComment) (comments.Comment, error) {
	c := comments.Comment{
		ID:        uuid.NewString(),
		Page:      input.Page,
		Author:    input.Author,
		Content:   input.Content,
		// timestamptz keeps microseconds; match what a later list returns
		CreatedAt: s.now().UTC().Truncate(time.Microsecond),
	}

	var created any = c.CreatedAt
	if s.dialect.Name == SQLite.Name {
		created = c.CreatedAt.Format(sqliteTimeLayout)
	}

	_, err := s.db.ExecContext(ctx, s.dialect.Rebind(`
		INSERT INTO comments (id, page, author, content, created_at)
		VALUES ($1, $2, $3, $4, $5)
	`), c.ID, c.Page, c.Author, c.Content, created)
	if err != nil {
		return comments.Comment{}, fmt.Errorf("insert comment: %w", err)
	}
	return c, nil
}

func (s *SQLStore) Ping(ctx context.Context) error {
	if err := s.db.PingContext(ctx); err != nil {
		return fmt.Errorf("ping db: %w", err)
	}
	return nil
}

func (s *SQLStore) Close() error {
	return s.db.Close()
}

var timeLayouts = []string{
	sqliteTimeLayout,
	time.RFC3339Nano,
	"2006-01-02 15:04:05.999999999-07:00",
	"2006-01-02 15:04:05.999999999",
	"2006-01-02 15:04:05",
}

func scanTime(v any) (time.Time, error) {
	switch t := v.(type) {
	case time.Time:
		return t.UTC(), nil
	case string:
		return parseTime(t)
	case []byte:
		return parseTime(string(t))
	case int64:
		return time.Unix(t, 0).UTC(), nil
	case nil:
		return time.Time{}, fmt.Errorf("created_at is null")
	default:
		return time.Time{}, fmt.Errorf("unsupported created_at type %T", v)
	}
}

func parseTime(s string) (time.Time, error) {
	for _, layout := range timeLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t.UTC(), nil
		}
	}
	return time.Time{}, fmt.Errorf("unparseable created_at %q", s)
}

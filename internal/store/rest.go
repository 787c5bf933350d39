package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/supabase-community/postgrest-go"

	"folio/internal/comments"
)

const commentsTable = "comments"

// RESTStore talks to a hosted PostgREST endpoint serving the comments table
// under /rest/v1.
type RESTStore struct {
	client *postgrest.Client
}

func NewRESTStore(baseURL, key string) (*RESTStore, error) {
	base, err := url.Parse(strings.TrimRight(strings.TrimSpace(baseURL), "/"))
	if err != nil {
		return nil, fmt.Errorf("parse store url: %w", err)
	}
	if base.Host == "" {
		return nil, fmt.Errorf("store url %q has no host", baseURL)
	}
	client := postgrest.NewClient(base.String()+"/rest/v1", "", map[string]string{"apikey": key})
	if client.ClientError != nil {
		return nil, fmt.Errorf("store client: %w", client.ClientError)
	}
	return &RESTStore{client: client.SetAuthToken(key)}, nil
}

type restComment struct {
	ID        json.RawMessage `json:"id"`
	Page      string          `json:"page"`
	Author    string          `json:"author"`
	Content   string          `json:"content"`
	CreatedAt time.Time       `json:"created_at"`
}

func (r restComment) comment() (comments.Comment, error) {
	id, err := decodeID(r.ID)
	if err != nil {
		return comments.Comment{}, err
	}
	return comments.Comment{
		ID:        id,
		Page:      r.Page,
		Author:    r.Author,
		Content:   r.Content,
		CreatedAt: r.CreatedAt.UTC(),
	}, nil
}

// decodeID accepts both text and numeric primary keys.
func decodeID(raw json.RawMessage) (string, error) {
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return s, nil
	}
	var n json.Number
	if err := json.Unmarshal(raw, &n); err != nil {
		return "", fmt.Errorf("decode comment id %s: %w", string(raw), err)
	}
	return n.String(), nil
}

func (s *RESTStore) ListComments(ctx context.Context, page string) ([]comments.Comment, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	raw, _, err := s.client.From(commentsTable).
		Select("*", "", false).
		Eq("page", page).
		Order("created_at", &postgrest.OrderOpts{Ascending: false}).
		Execute()
	if err != nil {
		return nil, fmt.Errorf("list comments: %w", err)
	}
	rows, err := decodeRows(raw)
	if err != nil {
		return nil, err
	}

	items := make([]comments.Comment, 0, len(rows))
	for _, row := range rows {
		c, err := row.comment()
		if err != nil {
			return nil, err
		}
		items = append(items, c)
	}
	return items, nil
}

type restInsert struct {
	Page    string `json:"page"`
	Author  string `json:"author"`
	Content string `json:"content"`
}

func (s *RESTStore) InsertComment(ctx context.Context, input comments.NewComment) (comments.Comment, error) {
	if err := ctx.Err(); err != nil {
		return comments.Comment{}, err
	}
	rowsIn := []restInsert{{Page: input.Page, Author: input.Author, Content: input.Content}}
	raw, _, err := s.client.From(commentsTable).
		Insert(rowsIn, false, "", "representation", "").
		Execute()
	if err != nil {
		return comments.Comment{}, fmt.Errorf("insert comment: %w", err)
	}
	rows, err := decodeRows(raw)
	if err != nil {
		return comments.Comment{}, err
	}
	if len(rows) == 0 {
		return comments.Comment{}, errors.New("insert comment: empty representation")
	}
	return rows[0].comment()
}

func (s *RESTStore) Ping(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	_, _, err := s.client.From(commentsTable).
		Select("id", "", false).
		Limit(1, "").
		Execute()
	if err != nil {
		return fmt.Errorf("ping comment store: %w", err)
	}
	return nil
}

func (s *RESTStore) Close() error { return nil }

func decodeRows(raw []byte) ([]restComment, error) {
	var rows []restComment
	if err := json.Unmarshal(raw, &rows); err != nil {
		return nil, fmt.Errorf("decode comments response: %w", err)
	}
	return rows, nil
}

package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/stdlib"
	_ "modernc.org/sqlite"

	"folio/internal/comments"
)

// Backend is a comment store that owns resources.
type Backend interface {
	comments.Backend
	Close() error
}

var (
	ErrMissingCredentials = errors.New("store url and key are required")
	ErrUnsupportedScheme  = errors.New("unsupported store scheme")
)

// Check validates the store settings without connecting. Its errors are
// configuration mistakes that retrying cannot fix.
func Check(storeURL, key string) error {
	_, err := parseStoreURL(storeURL, key)
	return err
}

func parseStoreURL(storeURL, key string) (*url.URL, error) {
	if strings.TrimSpace(storeURL) == "" || strings.TrimSpace(key) == "" {
		return nil, ErrMissingCredentials
	}
	u, err := url.Parse(strings.TrimSpace(storeURL))
	if err != nil {
		return nil, fmt.Errorf("parse store url: %w", err)
	}
	switch strings.ToLower(u.Scheme) {
	case "http", "https", "postgres", "postgresql", "sqlite":
		return u, nil
	default:
		return nil, fmt.Errorf("%w %q", ErrUnsupportedScheme, u.Scheme)
	}
}

// Open picks the backend for storeURL by scheme:
//
//	http(s)://   hosted REST endpoint, key sent as API key
//	postgres://  direct connection, key used as password
//	sqlite://    local file, key only required to be present
func Open(ctx context.Context, storeURL, key string) (Backend, error) {
	u, err := parseStoreURL(storeURL, key)
	if err != nil {
		return nil, err
	}
	storeURL = strings.TrimSpace(storeURL)
	key = strings.TrimSpace(key)

	switch strings.ToLower(u.Scheme) {
	case "http", "https":
		rest, err := NewRESTStore(storeURL, key)
		if err != nil {
			return nil, err
		}
		return rest, nil
	case "postgres", "postgresql":
		db, err := openPostgres(ctx, storeURL, key)
		if err != nil {
			return nil, err
		}
		return prepareSQL(ctx, db, Postgres)
	case "sqlite":
		db, err := OpenSQLite(ctx, sqlitePath(u))
		if err != nil {
			return nil, err
		}
		return prepareSQL(ctx, db, SQLite)
	default:
		return nil, fmt.Errorf("%w %q", ErrUnsupportedScheme, u.Scheme)
	}
}

func prepareSQL(ctx context.Context, db *sql.DB, d Dialect) (Backend, error) {
	if err := ApplyMigrations(ctx, db, d); err != nil {
		_ = db.Close()
		return nil, err
	}
	return NewSQLStore(db, d), nil
}

func openPostgres(ctx context.Context, databaseURL, password string) (*sql.DB, error) {
	cfg, err := pgx.ParseConfig(databaseURL)
	if err != nil {
		return nil, fmt.Errorf("open db: %w", err)
	}
	if cfg.Password == "" {
		cfg.Password = password
	}
	db := stdlib.OpenDB(*cfg)
	db.SetConnMaxIdleTime(5 * time.Minute)
	db.SetConnMaxLifetime(30 * time.Minute)
	db.SetMaxIdleConns(10)
	db.SetMaxOpenConns(20)

	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping db: %w", err)
	}
	return db, nil
}

// OpenSQLite opens a single-connection sqlite database. ":memory:" is
// accepted.
func OpenSQLite(ctx context.Context, path string) (*sql.DB, error) {
	db, err := sql.Open(SQLite.DriverName, path)
	if err != nil {
		return nil, fmt.Errorf("open db: %w", err)
	}
	db.SetMaxOpenConns(1)

	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping db: %w", err)
	}
	return db, nil
}

func sqlitePath(u *url.URL) string {
	if u.Opaque != "" {
		return u.Opaque
	}
	return u.Host + u.Path
}

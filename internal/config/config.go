package config

import (
	"os"
	"strconv"
	"strings"
	"time"
)

type Config struct {
	Addr       string
	CORSOrigin string
	LogLevel   string
	SiteName   string
	SiteURL    string
	// Comment store
	StoreURL string
	StoreKey string
	// Content
	ContentDir    string
	ContentRepo   string
	ContentBranch string
	SyncTokenHash string
	// Search
	MeiliURL       string
	MeiliMasterKey string
	// Redis comment cache
	RedisURL        string
	CommentCacheTTL time.Duration
	// SMTP Configuration
	SMTPHost     string
	SMTPPort     string
	SMTPUsername string
	SMTPPassword string
	SMTPFrom     string
	SMTPFromName string
	NotifyTo     string
	// Media
	MediaEndpoint  string
	MediaAccessKey string
	MediaSecretKey string
	MediaBucket    string
	MediaRegion    string
	MediaUseSSL    bool
	MediaLinkTTL   time.Duration
}

func Load() Config {
	return Config{
		Addr:       getenv("FOLIO_ADDR", ":8787"),
		CORSOrigin: getenv("FOLIO_CORS_ORIGIN", "*"),
		LogLevel:   getenv("LOG_LEVEL", "info"),
		SiteName:   getenv("FOLIO_SITE_NAME", "Folio"),
		SiteURL:    getenv("FOLIO_SITE_URL", ""),
		// Store - missing credentials fail comment requests, not startup
		StoreURL: strings.TrimSpace(os.Getenv("FOLIO_STORE_URL")),
		StoreKey: strings.TrimSpace(os.Getenv("FOLIO_STORE_KEY")),

		ContentDir:    getenv("FOLIO_CONTENT_DIR", "./content"),
		ContentRepo:   getenv("FOLIO_CONTENT_REPO", ""),
		ContentBranch: getenv("FOLIO_CONTENT_BRANCH", "main"),
		SyncTokenHash: getenv("FOLIO_SYNC_TOKEN_HASH", ""),

		MeiliURL:       getenv("MEILI_URL", ""),
		MeiliMasterKey: getenv("MEILI_MASTER_KEY", ""),

		RedisURL:        getenv("REDIS_URL", ""),
		CommentCacheTTL: getenvDuration("FOLIO_COMMENT_CACHE_TTL", 60*time.Second),
		// SMTP - empty by default, notifications disabled if not configured
		SMTPHost:     getenv("SMTP_HOST", ""),
		SMTPPort:     getenv("SMTP_PORT", "587"),
		SMTPUsername: getenv("SMTP_USERNAME", ""),
		SMTPPassword: getenv("SMTP_PASSWORD", ""),
		SMTPFrom:     getenv("SMTP_FROM", ""),
		SMTPFromName: getenv("SMTP_FROM_NAME", "Folio"),
		NotifyTo:     getenv("FOLIO_NOTIFY_TO", ""),

		MediaEndpoint:  getenv("MEDIA_ENDPOINT", ""),
		MediaAccessKey: getenv("MEDIA_ACCESS_KEY", ""),
		MediaSecretKey: getenv("MEDIA_SECRET_KEY", ""),
		MediaBucket:    getenv("MEDIA_BUCKET", ""),
		MediaRegion:    getenv("MEDIA_REGION", "us-east-1"),
		MediaUseSSL:    getenvBool("MEDIA_USE_SSL", true),
		MediaLinkTTL:   time.Duration(getenvInt("MEDIA_LINK_TTL_SECONDS", 900)) * time.Second,
	}
}

// StoreConfigured reports whether both comment store credentials are set.
func (c Config) StoreConfigured() bool {
	return c.StoreURL != "" && c.StoreKey != ""
}

func (c Config) NotifyConfigured() bool {
	return c.SMTPHost != "" && c.SMTPFrom != "" && c.NotifyTo != ""
}

func (c Config) MediaConfigured() bool {
	return c.MediaEndpoint != "" && c.MediaBucket != ""
}

func getenv(key, fallback string) string {
	value := os.Getenv(key)
	if value == "" {
		return fallback
	}
	return value
}

func getenvInt(key string, fallback int) int {
	value := os.Getenv(key)
	if value == "" {
		return fallback
	}
	parsed, err := strconv.Atoi(value)
	if err != nil {
		return fallback
	}
	return parsed
}

func getenvBool(key string, fallback bool) bool {
	value := os.Getenv(key)
	if value == "" {
		return fallback
	}
	parsed, err := strconv.ParseBool(value)
	if err != nil {
		return fallback
	}
	return parsed
}

// getenvDuration accepts Go durations ("90s") or plain seconds ("90").
func getenvDuration(key string, fallback time.Duration) time.Duration {
	value := os.Getenv(key)
	if value == "" {
		return fallback
	}
	if d, err := time.ParseDuration(value); err == nil {
		return d
	}
	if secs, err := strconv.Atoi(value); err == nil {
		return time.Duration(secs) * time.Second
	}
	return fallback
}

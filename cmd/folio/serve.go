package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"folio/internal/app"
	"folio/internal/cache"
	"folio/internal/comments"
	"folio/internal/config"
	"folio/internal/content"
	"folio/internal/email"
	"folio/internal/export"
	"folio/internal/gitrepo"
	"folio/internal/media"
	"folio/internal/search"
	"folio/internal/store"
)

var serveAddr string

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the HTTP API",
	Args:  cobra.NoArgs,
	RunE:  runServe,
}

func init() {
	serveCmd.Flags().StringVar(&serveAddr, "addr", "", "Listen address (overrides FOLIO_ADDR)")
}

// backends are the optional services opened in parallel at startup.
type backends struct {
	store *store.Lazy
	// storeErr is set when the store settings can never work.
	storeErr error
	cache    *cache.RedisCache
	meili    *search.Meili
	media    *media.Store
}

func openBackends(ctx context.Context, cfg config.Config) (*backends, error) {
	b := &backends{}
	g, gctx := errgroup.WithContext(ctx)

	if cfg.StoreConfigured() {
		if err := store.Check(cfg.StoreURL, cfg.StoreKey); err != nil {
			logger.Error("comment store misconfigured; comment requests will fail", zap.Error(err))
			b.storeErr = err
		} else {
			lazy := store.NewLazy(cfg.StoreURL, cfg.StoreKey, logger.Named("store"))
			b.store = lazy
			g.Go(func() error {
				if err := lazy.Connect(gctx); err != nil {
					logger.Warn("comment store unreachable; retrying on demand", zap.Error(err))
				}
				return nil
			})
		}
	} else {
		logger.Warn("comment store not configured; comment requests will fail until FOLIO_STORE_URL and FOLIO_STORE_KEY are set")
	}

	if cfg.RedisURL != "" {
		g.Go(func() error {
			c, err := cache.NewRedisCache(cfg.RedisURL, cfg.CommentCacheTTL)
			if err != nil {
				logger.Warn("comment cache disabled", zap.Error(err))
				return nil
			}
			b.cache = c
			return nil
		})
	}

	if cfg.MeiliURL != "" {
		g.Go(func() error {
			b.meili = search.NewMeili(cfg.MeiliURL, cfg.MeiliMasterKey, logger.Named("search"))
			return nil
		})
	}

	if cfg.MediaConfigured() {
		g.Go(func() error {
			m, err := media.New(media.Config{
				Endpoint:  cfg.MediaEndpoint,
				AccessKey: cfg.MediaAccessKey,
				SecretKey: cfg.MediaSecretKey,
				Bucket:    cfg.MediaBucket,
				Region:    cfg.MediaRegion,
				UseSSL:    cfg.MediaUseSSL,
				LinkTTL:   cfg.MediaLinkTTL,
			})
			if err != nil {
				return fmt.Errorf("media storage: %w", err)
			}
			b.media = m
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		b.close()
		return nil, err
	}
	return b, nil
}

// commentService builds the comment gateway over whatever store opened.
func (b *backends) commentService(opts ...comments.Option) *comments.Service {
	if b.storeErr != nil {
		msg := fmt.Sprintf("invalid comment store settings: %v", b.storeErr)
		return comments.NewService(nil, append(opts, comments.WithConfigurationError(msg))...)
	}
	if b.store == nil {
		return comments.NewService(nil, opts...)
	}
	return comments.NewService(b.store, opts...)
}

func (b *backends) close() {
	if b.store != nil {
		_ = b.store.Close()
	}
	if b.cache != nil {
		_ = b.cache.Close()
	}
	if b.meili != nil {
		b.meili.Close()
	}
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg := config.Load()
	if serveAddr != "" {
		cfg.Addr = serveAddr
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	b, err := openBackends(ctx, cfg)
	if err != nil {
		return err
	}
	defer b.close()

	syncer := gitrepo.NewSyncer(cfg.ContentDir, cfg.ContentRepo, cfg.ContentBranch, logger.Named("git"))
	if syncer.Configured() {
		if res, err := syncer.Sync(ctx); err != nil {
			logger.Warn("initial content sync failed", zap.Error(err))
		} else {
			logger.Info("content repository ready", zap.String("head", res.After.Hash), zap.Bool("cloned", res.Cloned))
		}
	}

	searchSvc := search.NewService(b.meili, logger.Named("search"))
	catalog := content.NewCatalog(cfg.ContentDir, logger.Named("content"))
	catalog.OnReload(searchSvc.Sync)
	if err := catalog.Load(); err != nil {
		return fmt.Errorf("load content: %w", err)
	}

	watcher, err := content.NewWatcher(catalog, 0, logger.Named("watcher"))
	if err != nil {
		return fmt.Errorf("content watcher: %w", err)
	}
	if err := watcher.Start(ctx); err != nil {
		logger.Warn("live content reload disabled", zap.Error(err))
	}
	defer watcher.Stop()

	commentOpts := []comments.Option{comments.WithLogger(logger.Named("comments"))}
	if b.cache != nil {
		commentOpts = append(commentOpts, comments.WithCache(b.cache))
	}
	if cfg.NotifyConfigured() {
		mailer := email.NewService(email.Config{
			Host:     cfg.SMTPHost,
			Port:     cfg.SMTPPort,
			Username: cfg.SMTPUsername,
			Password: cfg.SMTPPassword,
			From:     cfg.SMTPFrom,
			FromName: cfg.SMTPFromName,
		})
		commentOpts = append(commentOpts, comments.WithNotifier(
			email.NewCommentNotifier(mailer, cfg.NotifyTo, cfg.SiteName, cfg.SiteURL),
		))
	}
	commentSvc := b.commentService(commentOpts...)

	deps := app.Deps{
		Comments: commentSvc,
		Catalog:  catalog,
		Search:   searchSvc,
		Export:   export.NewService(catalog, export.WithComments(commentSvc), export.WithLogger(logger.Named("export"))),
		Git:      syncer,
		Logger:   logger,
	}
	if b.media != nil {
		deps.Media = b.media
	}
	service := app.New(cfg, deps)

	httpServer := app.NewHTTPServer(service, cfg.CORSOrigin, logger.Named("http"))
	server := &http.Server{
		Addr:              cfg.Addr,
		Handler:           httpServer.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      60 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("folio listening", zap.String("addr", cfg.Addr))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("server failed: %w", err)
		}
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Warn("shutdown error", zap.Error(err))
	}
	return nil
}

package server

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/Shivansh-Atwal/trackstack/cache"
	"github.com/Shivansh-Atwal/trackstack/config"
	"github.com/Shivansh-Atwal/trackstack/core/auth"
	"github.com/Shivansh-Atwal/trackstack/core/feed"
	"github.com/Shivansh-Atwal/trackstack/core/song"
	"github.com/Shivansh-Atwal/trackstack/db"
	"github.com/Shivansh-Atwal/trackstack/logger"
	"github.com/Shivansh-Atwal/trackstack/repository"
	"github.com/Shivansh-Atwal/trackstack/storage"
)

const shutdownTimeout = 5 * time.Second

// Start connects every backing service, serves HTTP until SIGINT or SIGTERM
// and then shuts down gracefully.
func Start(cfg *config.Config) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	return Run(ctx, cfg)
}

// Run is Start with an explicit lifetime: the server stops when ctx is done.
func Run(ctx context.Context, cfg *config.Config) error {
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}

	gdb, err := db.ConnectGormDB(cfg)
	if err != nil {
		return err
	}
	defer db.CloseGormDB(gdb)

	if err := db.AutoMigrateModels(gdb); err != nil {
		return err
	}

	minioClient, err := storage.NewMinioClient(cfg)
	if err != nil {
		return err
	}
	if err := storage.EnsureBucket(ctx, minioClient, cfg.MinioBucket, cfg.MinioRegion); err != nil {
		return err
	}
	relay := storage.NewMinioRelay(minioClient, cfg.MinioBucket, cfg.MediaPublicBaseURL, cfg.MaxBodyBytes)

	var feedCache song.FeedCache
	if cfg.RedisEnabled {
		redisClient, err := cache.NewRedisClient(cfg)
		if err != nil {
			return err
		}
		defer redisClient.Close()
		feedCache = cache.NewFeedCache(redisClient, cfg.FeedCacheTTL)
		logger.Info("Successfully connected to Redis", logger.String("addr", cfg.RedisAddr()))
	} else {
		logger.Warn("Redis disabled, public feed is read from MySQL on every request")
	}

	hub := feed.NewHub()
	go hub.Run()
	defer hub.Stop()

	tokens := auth.NewTokenManager(cfg.JWTSecret, cfg.TokenTTL)
	authenticator := auth.NewAuthenticator(repository.NewGormUserRepository(gdb), tokens)
	songs := song.NewService(
		repository.NewGormSongRepository(gdb),
		relay,
		feedCache,
		hub,
		song.Options{
			EnforceOwnership: cfg.EnforceOwnership,
			AnonymousListAll: cfg.AnonymousListAll,
		},
	)

	handler := NewAPIHandler(authenticator, songs, relay, hub, cfg)
	return serve(ctx, cfg.Addr(), NewRouter(handler))
}

func serve(ctx context.Context, addr string, handler http.Handler) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       60 * time.Second,
		WriteTimeout:      60 * time.Second,
		IdleTimeout:       120 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("HTTP server listening", logger.String("addr", addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("failed to start server: %w", err)
		}
		return nil
	case <-ctx.Done():
	}

	logger.Info("Shutting down server...")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server forced to shutdown: %w", err)
	}
	logger.Info("Server stopped")
	return nil
}

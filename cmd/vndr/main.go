// Package main запускает HTTP-сервер сервиса VNDR Music.
package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/vndr/vndr-music/internal/access"
	"github.com/vndr/vndr-music/internal/ai"
	"github.com/vndr/vndr-music/internal/cache"
	"github.com/vndr/vndr-music/internal/config"
	"github.com/vndr/vndr-music/internal/handler"
	"github.com/vndr/vndr-music/internal/middleware"
	"github.com/vndr/vndr-music/internal/nowplaying"
	"github.com/vndr/vndr-music/internal/repository"
	"github.com/vndr/vndr-music/internal/service"
)

func main() {
	logger, _ := zap.NewProduction()
	defer logger.Sync()

	sugar := logger.Sugar()

	cfg, err := config.Parse()
	if err != nil {
		sugar.Fatalw("configuration error", "error", err.Error())
	}

	repo, err := repository.NewPostgresRepository(cfg.DatabaseURI)
	if err != nil {
		sugar.Fatalw("database initialization error", "error", err.Error())
	}
	defer repo.Close()

	// Необязательные зависимости: без конфигурации функция отключается, процесс не падает.
	var feedClient *nowplaying.Client
	if cfg.NowPlayingURL != "" {
		feedClient = nowplaying.NewClient(cfg.NowPlayingURL, cfg.NowPlayingAPIKey)
	} else {
		sugar.Errorw("now-playing feed disabled", "reason", "NOWPLAYING_URL is not set")
	}

	var aiClient *ai.Client
	if cfg.AIServiceURL != "" {
		aiClient = ai.NewClient(cfg.AIServiceURL, cfg.AIServiceAPIKey)
	} else {
		sugar.Errorw("AI flows disabled", "reason", "AI_SERVICE_URL is not set")
	}

	balances := cache.NewBalanceCache(cfg.RedisAddress)

	svc := service.NewService(repo, access.NewGuard(), balances, aiClient, feedClient, logger)
	defer svc.Close()

	authMiddleware := middleware.NewAuthMiddleware(cfg.JWTSecret)
	h := handler.NewHandler(svc, logger, authMiddleware, cfg.BridgeAPIKey)

	r := h.SetupRouter()

	server := &http.Server{
		Addr:    cfg.RunAddress,
		Handler: r,
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	g, ctx := errgroup.WithContext(ctx)

	// Запуск фонового опроса now-playing фида
	g.Go(func() error {
		svc.StartNowPlayingUpdates(ctx)
		return nil
	})

	// Запуск HTTP-сервера
	g.Go(func() error {
		sugar.Infow("starting VNDR Music server", "addr", cfg.RunAddress)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			return fmt.Errorf("server error: %w", err)
		}
		return nil
	})

	// Graceful shutdown при отмене контекста (сигнал или ошибка в другой горутине)
	g.Go(func() error {
		<-ctx.Done()
		sugar.Info("shutting down server...")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()

		if err := server.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("server shutdown error: %w", err)
		}
		sugar.Info("server stopped gracefully")
		return nil
	})

	if err := g.Wait(); err != nil {
		sugar.Fatalw("application terminated with error", "error", err)
	}
}

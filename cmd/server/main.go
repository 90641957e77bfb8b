// Command server starts the conversational backend HTTP server.
package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/aurorael/chat-backend/internal/adapter/ai"
	"github.com/aurorael/chat-backend/internal/adapter/httpserver"
	"github.com/aurorael/chat-backend/internal/adapter/observability"
	"github.com/aurorael/chat-backend/internal/adapter/session/memory"
	"github.com/aurorael/chat-backend/internal/adapter/session/redisstore"
	"github.com/aurorael/chat-backend/internal/adapter/weather"
	"github.com/aurorael/chat-backend/internal/app"
	"github.com/aurorael/chat-backend/internal/config"
	"github.com/aurorael/chat-backend/internal/domain"
	"github.com/aurorael/chat-backend/internal/usecase"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		panic(err)
	}

	logger := observability.SetupLogger(cfg)
	slog.SetDefault(logger)

	observability.InitMetrics()

	shutdownTracer, err := observability.SetupTracing(cfg)
	if err != nil {
		slog.Error("failed to setup tracing", slog.Any("error", err))
	}
	defer func() {
		if shutdownTracer != nil {
			_ = shutdownTracer(context.Background())
		}
	}()

	// Session backend: Redis when an address is configured, otherwise a
	// per-process in-memory store.
	var (
		sessions      domain.SessionStore
		sessionsCheck func(ctx context.Context) error
	)
	if cfg.RedisAddr != "" {
		rdb := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr})
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		if err := rdb.Ping(ctx).Err(); err != nil {
			cancel()
			slog.Error("redis connect failed", slog.Any("error", err), slog.String("addr", cfg.RedisAddr))
			os.Exit(1)
		}
		cancel()
		store := redisstore.New(rdb, cfg.SessionTTL)
		sessions = store
		sessionsCheck = store.Ping
		slog.Info("using redis session store", slog.String("addr", cfg.RedisAddr))
	} else {
		sessions = memory.New(cfg.SessionTTL)
		slog.Info("using in-memory session store")
	}

	chatSvc := usecase.NewChatService(cfg, sessions, weather.New(cfg), ai.New(cfg))

	srv := httpserver.NewServer(cfg, chatSvc, sessionsCheck)
	handler := app.BuildRouter(cfg, srv)

	srvHTTP := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Port),
		Handler:           handler,
		ReadTimeout:       cfg.HTTPReadTimeout,
		WriteTimeout:      cfg.HTTPWriteTimeout,
		IdleTimeout:       cfg.HTTPIdleTimeout,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		slog.Info("http server starting", slog.Int("port", cfg.Port))
		errCh <- srvHTTP.ListenAndServe()
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-sigCh:
		slog.Info("shutdown signal received", slog.String("signal", sig.String()))
	case err := <-errCh:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("server error", slog.Any("error", err))
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ServerShutdownTimeout)
	defer cancel()
	_ = srvHTTP.Shutdown(shutdownCtx)
}

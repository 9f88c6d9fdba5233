// Package main runs the tutor HTTP API with the MCP endpoint mounted at /mcp.
package main

import (
	"context"
	"errors"
	"flag"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/bull/robotics-tutor/internal/auth"
	"github.com/bull/robotics-tutor/internal/chat"
	"github.com/bull/robotics-tutor/internal/config"
	"github.com/bull/robotics-tutor/internal/database"
	"github.com/bull/robotics-tutor/internal/embedding"
	"github.com/bull/robotics-tutor/internal/generation"
	"github.com/bull/robotics-tutor/internal/httpapi"
	"github.com/bull/robotics-tutor/internal/logging"
	mcpserver "github.com/bull/robotics-tutor/internal/mcp"
	"github.com/bull/robotics-tutor/internal/metrics"
	"github.com/bull/robotics-tutor/internal/storage"
)

var version = "dev"

const shutdownTimeout = 15 * time.Second

func main() {
	configPath := flag.String("config", "", "optional config file (yaml, toml or json)")
	flag.Parse()

	if err := run(*configPath); err != nil {
		slog.Error("server exited", "error", err)
		os.Exit(1)
	}
}

func run(configPath string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}
	logger := logging.New(cfg.Log, os.Stdout)
	slog.SetDefault(logger)

	// Create context that cancels on SIGTERM/SIGINT
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGTERM, syscall.SIGINT)
	defer cancel()

	m := metrics.New()

	if cfg.Server.AutoMigrate {
		logger.Info("Applying database migrations")
		if err := database.Migrate(cfg.Database.URL, "up", 0); err != nil {
			return err
		}
	}
	pool, err := database.Connect(ctx, cfg.Database)
	if err != nil {
		return err
	}
	defer pool.Close()

	store, err := storage.NewQdrantStorage(ctx, cfg.Qdrant, logger, m)
	if err != nil {
		return err
	}
	defer store.Close()
	if err := store.EnsureCollection(ctx); err != nil {
		return err
	}

	openaiClient, err := embedding.NewClient(cfg.OpenAI)
	if err != nil {
		return err
	}
	embedder := embedding.NewEmbedder(openaiClient, embedding.Options{
		Model:   cfg.OpenAI.EmbeddingModel,
		Logger:  logger,
		Observe: func(start time.Time) { m.ObserveUpstream("openai", "embeddings", start) },
	})
	generator := generation.NewGenerator(openaiClient.Client(), generation.Options{
		Model:   cfg.OpenAI.ChatModel,
		Logger:  logger,
		Observe: func(start time.Time) { m.ObserveUpstream("openai", "chat_completions", start) },
	})

	checks := []httpapi.HealthCheck{
		{Name: "qdrant", Checker: store},
		{Name: "postgres", Checker: httpapi.CheckFunc(pool.Ping)},
	}

	var queryEmbedder chat.Embedder = embedder
	if cfg.Redis.Addr != "" {
		rdb := redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		defer rdb.Close()
		cache := embedding.NewRedisCache(rdb, cfg.Redis.TTL)
		queryEmbedder = embedding.NewCachedEmbedder(embedder, cache, logger)
		checks = append(checks, httpapi.HealthCheck{Name: "redis", Checker: httpapi.CheckFunc(cache.Ping)})
		logger.Info("Query embedding cache enabled", "addr", cfg.Redis.Addr)
	}

	chapters := database.NewChapterRepository(pool)

	chatService := chat.NewService(chat.ConfigFrom(cfg.Chat), chat.Deps{
		Embedder:  queryEmbedder,
		Searcher:  store,
		Generator: generator,
		Chapters:  chapters,
		Messages:  database.NewMessageRepository(pool),
		Logger:    logger,
		Metrics:   m,
	})

	tokens := auth.NewTokenIssuer(cfg.Auth.JWTSecret, cfg.Auth.TokenTTL)
	authService := auth.NewService(database.NewUserRepository(pool), tokens, logger)

	mcpSrv := mcpserver.NewServer(&mcpserver.Config{
		Version:  version,
		Embedder: queryEmbedder,
		Searcher: store,
		Catalog:  chapters,
		Logger:   logger,
	})

	e := httpapi.New(httpapi.Deps{
		AppName:     cfg.AppName,
		Version:     version,
		Environment: cfg.Environment,
		CORSOrigins: cfg.Server.CORSOrigins,
		Logger:      logger,
		Metrics:     m,
		Tokens:      tokens,
		Auth:        authService,
		Chat:        chatService,
		Catalog:     chapters,
		Progress:    database.NewProgressRepository(pool),
		Checks:      checks,
		MCP:         mcpserver.NewHTTPHandler(mcpSrv, &mcpserver.HTTPHandlerOptions{Stateless: true}),
	})
	e.Server.ReadTimeout = cfg.Server.ReadTimeout
	e.Server.WriteTimeout = cfg.Server.WriteTimeout

	errCh := make(chan error, 1)
	go func() {
		logger.Info("Starting HTTP server", "addr", cfg.Server.Addr, "version", version, "environment", cfg.Environment)
		errCh <- e.Start(cfg.Server.Addr)
	}()

	select {
	case err := <-errCh:
		if !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	case <-ctx.Done():
	}

	logger.Info("Shutting down")
	shutdownCtx, stop := context.WithTimeout(context.Background(), shutdownTimeout)
	defer stop()
	return e.Shutdown(shutdownCtx)
}

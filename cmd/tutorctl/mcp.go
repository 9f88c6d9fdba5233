package main

import (
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/bull/robotics-tutor/internal/database"
	"github.com/bull/robotics-tutor/internal/embedding"
	mcpserver "github.com/bull/robotics-tutor/internal/mcp"
	"github.com/bull/robotics-tutor/internal/storage"
)

var mcpCmd = &cobra.Command{
	Use:   "mcp",
	Short: "Serve the course MCP tools over stdio",
	Long:  "Runs the search_course and list_modules tools over stdin/stdout for local MCP clients.",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()

		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		logger := slog.Default()

		store, err := storage.NewQdrantStorage(ctx, cfg.Qdrant, logger, nil)
		if err != nil {
			return err
		}
		defer store.Close()

		pool, err := database.Connect(ctx, cfg.Database)
		if err != nil {
			return err
		}
		defer pool.Close()

		openaiClient, err := embedding.NewClient(cfg.OpenAI)
		if err != nil {
			return err
		}

		server := mcpserver.NewServer(&mcpserver.Config{
			Version:  version,
			Embedder: embedding.NewEmbedder(openaiClient, embedding.Options{Model: cfg.OpenAI.EmbeddingModel, Logger: logger}),
			Searcher: store,
			Catalog:  database.NewChapterRepository(pool),
			Logger:   logger,
		})

		logger.Info("Starting robotics tutor MCP server (stdio mode)")
		return server.Run(ctx)
	},
}

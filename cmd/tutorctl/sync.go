package main

import (
	"fmt"
	"log/slog"
	"time"

	"github.com/spf13/cobra"

	"github.com/bull/robotics-tutor/internal/database"
	"github.com/bull/robotics-tutor/internal/embedding"
	ghclient "github.com/bull/robotics-tutor/internal/github"
	"github.com/bull/robotics-tutor/internal/indexer"
	"github.com/bull/robotics-tutor/internal/markdown"
	"github.com/bull/robotics-tutor/internal/metadata"
	"github.com/bull/robotics-tutor/internal/storage"
)

var (
	syncForce     bool
	syncSummarize bool
)

var syncCmd = &cobra.Command{
	Use:   "sync",
	Short: "Index course chapters from GitHub",
	Long: `Fetches every chapter from the course repository and indexes it.

This command:
1. Connects to Qdrant and Postgres and verifies health
2. With --force, clears the existing vector collection
3. Fetches all .md/.mdx chapters under the configured docs path
4. Stores modules and chapters, chunks each chapter and embeds the chunks
5. Replaces the chapter's points in Qdrant and its embedding rows

With --summarize, chapters without a description or learning objectives
get them from the chat model.

Environment variables:
  QDRANT_HOST        Qdrant hostname (default: localhost)
  QDRANT_PORT        Qdrant gRPC port (default: 6334)
  DATABASE_URL       Postgres connection string
  OPENAI_API_KEY     OpenAI API key for embeddings (required)
  GITHUB_OWNER       Course repository owner
  GITHUB_REPO        Course repository name
  GITHUB_BASE_PATH   Docs directory (default: web/docs)
  GITHUB_TOKEN       GitHub token for higher rate limits (optional)`,
	RunE: runSync,
}

func init() {
	syncCmd.Flags().BoolVar(&syncForce, "force", false, "clear the vector collection before indexing")
	syncCmd.Flags().BoolVar(&syncSummarize, "summarize", false, "generate missing chapter descriptions with the chat model")
}

func runSync(cmd *cobra.Command, _ []string) error {
	ctx := cmd.Context()
	start := time.Now()
	out := cmd.OutOrStdout()

	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	if cfg.GitHub.Owner == "" || cfg.GitHub.Repo == "" {
		return fmt.Errorf("GITHUB_OWNER and GITHUB_REPO must be set")
	}

	fmt.Fprintln(out, "Starting sync...")
	fmt.Fprintln(out)

	// 1. Connect to Qdrant
	fmt.Fprintf(out, "Connecting to Qdrant at %s:%d...\n", cfg.Qdrant.Host, cfg.Qdrant.Port)
	store, err := storage.NewQdrantStorage(ctx, cfg.Qdrant, slog.Default(), nil)
	if err != nil {
		return fmt.Errorf("connect to Qdrant: %w", err)
	}
	defer store.Close()
	fmt.Fprintf(out, "Qdrant healthy (collection %s)\n", store.Collection())

	// 2. Connect to Postgres
	pool, err := database.Connect(ctx, cfg.Database)
	if err != nil {
		return err
	}
	defer pool.Close()
	fmt.Fprintln(out, "Postgres healthy")

	// 3. Initialize embedding and GitHub clients
	openaiClient, err := embedding.NewClient(cfg.OpenAI)
	if err != nil {
		return fmt.Errorf("create embedding client: %w", err)
	}
	embedder := embedding.NewEmbedder(openaiClient, embedding.Options{
		Model:  cfg.OpenAI.EmbeddingModel,
		Logger: slog.Default(),
	})

	ghClient, err := ghclient.NewClient(cfg.GitHub)
	if err != nil {
		return fmt.Errorf("create GitHub client: %w", err)
	}

	deps := indexer.Deps{
		Source:   ghclient.NewFetcher(ghClient, cfg.GitHub),
		Chunker:  markdown.NewChunker(markdown.DefaultMaxChunkChars),
		Embedder: embedder,
		Vectors:  store,
		Catalog:  database.NewChapterRepository(pool),
		Records:  database.NewEmbeddingRepository(pool),
		Logger:   slog.Default(),
	}
	if syncSummarize {
		// Use the same OpenAI client from embeddings for metadata generation
		deps.Summarizer = metadata.NewGenerator(openaiClient.Client(), metadata.Options{Logger: slog.Default()})
	}
	pipeline := indexer.NewPipeline(deps)

	// 4. Run indexing
	fmt.Fprintln(out)
	fmt.Fprintf(out, "Indexing %s/%s (%s)...\n", cfg.GitHub.Owner, cfg.GitHub.Repo, cfg.GitHub.BasePath)
	result, err := pipeline.IndexAll(ctx, indexer.Options{Force: syncForce})
	if err != nil {
		return fmt.Errorf("indexing failed: %w", err)
	}

	// 5. Print results
	fmt.Fprintln(out)
	fmt.Fprintln(out, "Sync complete!")
	fmt.Fprintf(out, "  Documents: %d/%d (%d skipped)\n", result.SuccessfulDocs, result.TotalDocs, result.SkippedDocs)
	fmt.Fprintf(out, "  Chunks: %d\n", result.TotalChunks)
	fmt.Fprintf(out, "  Duration: %s\n", result.Duration.Round(time.Second))
	fmt.Fprintf(out, "  Commit: %s\n", result.CommitSHA)

	if len(result.FailedDocs) > 0 {
		fmt.Fprintln(out)
		fmt.Fprintln(out, "Failed documents:")
		for _, failed := range result.FailedDocs {
			fmt.Fprintf(out, "  - %s: %s\n", failed.Path, failed.Reason)
		}
	}
	if len(result.FailedPoints) > 0 {
		fmt.Fprintln(out)
		fmt.Fprintln(out, "Failed chunks:")
		for _, failed := range result.FailedPoints {
			fmt.Fprintf(out, "  - %s#%d: %s\n", failed.Path, failed.ChunkIndex, failed.Reason)
		}
	}

	fmt.Fprintln(out)
	fmt.Fprintf(out, "Total time: %s\n", time.Since(start).Round(time.Second))

	return nil
}

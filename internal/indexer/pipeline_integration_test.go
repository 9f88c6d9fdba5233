//go:build integration

package indexer

import (
	"context"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bull/robotics-tutor/internal/config"
	"github.com/bull/robotics-tutor/internal/database"
	"github.com/bull/robotics-tutor/internal/embedding"
	"github.com/bull/robotics-tutor/internal/github"
	"github.com/bull/robotics-tutor/internal/storage"
)

// Requires OPENAI_API_KEY, a local Qdrant and TUTOR_TEST_REPO=owner/repo
// pointing at a course repository with a web/docs directory.
func TestPipeline_IndexAll_Integration(t *testing.T) {
	if os.Getenv("OPENAI_API_KEY") == "" {
		t.Skip("OPENAI_API_KEY not set, skipping integration test")
	}
	owner, repo, ok := cutRepo(os.Getenv("TUTOR_TEST_REPO"))
	if !ok {
		t.Skip("TUTOR_TEST_REPO not set, skipping integration test")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Minute)
	defer cancel()

	vectors, err := storage.NewQdrantStorage(ctx, config.QdrantConfig{
		Host:            "localhost",
		Port:            6334,
		Collection:      "test_index_" + uuid.NewString()[:8],
		VectorDimension: storage.DefaultVectorDimension,
	}, nil, nil)
	if err != nil {
		t.Skipf("Qdrant not available: %v", err)
	}
	t.Cleanup(func() {
		_ = vectors.ClearCollection(context.Background())
		vectors.Close()
	})

	ghCfg := config.GitHubConfig{
		Token:    os.Getenv("GITHUB_TOKEN"),
		Owner:    owner,
		Repo:     repo,
		BasePath: "web/docs",
	}
	ghClient, err := github.NewClient(ghCfg)
	require.NoError(t, err)

	openaiClient, err := embedding.NewClient(config.OpenAIConfig{APIKey: os.Getenv("OPENAI_API_KEY")})
	require.NoError(t, err)

	catalog := newFakeCatalog()
	records := &fakeRecords{rows: map[string][]*database.Embedding{}}
	pipeline := NewPipeline(Deps{
		Source:   github.NewFetcher(ghClient, ghCfg),
		Embedder: embedding.NewEmbedder(openaiClient, embedding.Options{}),
		Vectors:  vectors,
		Catalog:  catalog,
		Records:  records,
	})

	result, err := pipeline.IndexAll(ctx, Options{})
	require.NoError(t, err)

	assert.Greater(t, result.TotalDocs, 0, "Should find documents")
	assert.Greater(t, result.SuccessfulDocs, 0, "Should successfully index documents")
	assert.NotEmpty(t, result.CommitSHA, "Should capture commit SHA")
	assert.Greater(t, result.TotalChunks, 0, "Should create chunks")
	assert.NotEmpty(t, catalog.modules)

	if len(result.FailedDocs) > 0 {
		t.Logf("Failed to index %d documents:", len(result.FailedDocs))
		for _, fail := range result.FailedDocs {
			t.Logf("  - %s: %s", fail.Path, fail.Reason)
		}
	}

	var chapter *database.Chapter
	for _, c := range catalog.chapters {
		if len(records.rows[c.ID]) > 0 {
			chapter = c
			break
		}
	}
	require.NotNil(t, chapter)

	probe := records.rows[chapter.ID][0]
	embedder := embedding.NewEmbedder(openaiClient, embedding.Options{})
	vec, err := embedder.Embed(ctx, probe.Content)
	require.NoError(t, err)

	hits := vectors.Search(ctx, storage.SearchQuery{Vector: vec, Limit: 3, MinScore: 0.5})
	require.NotEmpty(t, hits, "Indexed chunk should be searchable")
	assert.NotEmpty(t, hits[0].ChapterID)
	assert.NotEmpty(t, hits[0].ModuleSlug)
}

func cutRepo(s string) (owner, repo string, ok bool) {
	owner, repo, ok = strings.Cut(s, "/")
	return owner, repo, ok && owner != "" && repo != ""
}

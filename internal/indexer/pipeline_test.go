package indexer

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bull/robotics-tutor/internal/database"
	"github.com/bull/robotics-tutor/internal/github"
	"github.com/bull/robotics-tutor/internal/metadata"
	"github.com/bull/robotics-tutor/internal/storage"
)

type fakeSource struct {
	sha     string
	shaErr  error
	docs    map[string]string
	listErr error
}

func (f *fakeSource) GetLatestCommitSHA(context.Context) (string, error) {
	return f.sha, f.shaErr
}

func (f *fakeSource) ListDocs(context.Context) ([]string, error) {
	if f.listErr != nil {
		return nil, f.listErr
	}
	out := make([]string, 0, len(f.docs))
	for p := range f.docs {
		out = append(out, p)
	}
	sort.Strings(out)
	return out, nil
}

func (f *fakeSource) FetchDoc(_ context.Context, p string) (*github.FetchedDoc, error) {
	content, ok := f.docs[p]
	if !ok {
		return nil, fmt.Errorf("get contents %s: not found", p)
	}
	return &github.FetchedDoc{Path: p, ModuleSlug: github.ModuleSlug(p), Content: content}, nil
}

type fakeCatalog struct {
	modules  map[string]*database.Module
	chapters map[string]*database.Chapter // keyed by module slug + "/" + slug
	upserts  int
}

func newFakeCatalog() *fakeCatalog {
	return &fakeCatalog{modules: map[string]*database.Module{}, chapters: map[string]*database.Chapter{}}
}

func (f *fakeCatalog) UpsertModule(_ context.Context, m *database.Module) error {
	f.upserts++
	if existing, ok := f.modules[m.Slug]; ok {
		m.ID = existing.ID
	} else {
		m.ID = "mod-" + m.Slug
	}
	cp := *m
	f.modules[m.Slug] = &cp
	return nil
}

func (f *fakeCatalog) UpsertChapter(_ context.Context, c *database.Chapter) error {
	key := c.ModuleSlug + "/" + c.Slug
	if existing, ok := f.chapters[key]; ok {
		c.ID = existing.ID
	} else {
		c.ID = "ch-" + c.Slug
	}
	cp := *c
	f.chapters[key] = &cp
	return nil
}

type fakeEmbedder struct {
	err   error
	calls int
}

func (f *fakeEmbedder) EmbedMany(_ context.Context, texts []string) ([][]float32, error) {
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	out := make([][]float32, len(texts))
	for i := range texts {
		out[i] = []float32{float32(i), 1}
	}
	return out, nil
}

func (f *fakeEmbedder) Model() string { return "text-embedding-3-small" }

type fakeVectors struct {
	cleared  bool
	ensured  int
	points   map[string]storage.EmbeddingPoint
	failIdx  map[int]bool // chunk indexes to reject
	deletes  []string
	clearErr error
}

func newFakeVectors() *fakeVectors {
	return &fakeVectors{points: map[string]storage.EmbeddingPoint{}, failIdx: map[int]bool{}}
}

func (f *fakeVectors) EnsureCollection(context.Context) error { f.ensured++; return nil }

func (f *fakeVectors) ClearCollection(context.Context) error {
	if f.clearErr != nil {
		return f.clearErr
	}
	f.cleared = true
	f.points = map[string]storage.EmbeddingPoint{}
	return nil
}

func (f *fakeVectors) DeleteByChapter(_ context.Context, chapterID string) error {
	f.deletes = append(f.deletes, chapterID)
	for id, p := range f.points {
		if p.ChapterID == chapterID {
			delete(f.points, id)
		}
	}
	return nil
}

func (f *fakeVectors) UpsertBatch(_ context.Context, points []storage.EmbeddingPoint) storage.BatchResult {
	res := storage.BatchResult{Total: len(points)}
	for _, p := range points {
		if f.failIdx[p.Metadata["chunk_index"].(int)] {
			res.Failures = append(res.Failures, storage.BatchFailure{ID: p.ID, Reason: "invalid vector"})
			continue
		}
		f.points[p.ID] = p
		res.Succeeded++
	}
	return res
}

func (f *fakeVectors) byChapter(chapterID string) []storage.EmbeddingPoint {
	var out []storage.EmbeddingPoint
	for _, p := range f.points {
		if p.ChapterID == chapterID {
			out = append(out, p)
		}
	}
	return out
}

type fakeRecords struct {
	rows map[string][]*database.Embedding
}

func (f *fakeRecords) DeleteByChapter(_ context.Context, chapterID string) error {
	delete(f.rows, chapterID)
	return nil
}

func (f *fakeRecords) InsertMany(_ context.Context, rows []*database.Embedding) error {
	for _, r := range rows {
		f.rows[r.ChapterID] = append(f.rows[r.ChapterID], r)
	}
	return nil
}

type harness struct {
	source   *fakeSource
	catalog  *fakeCatalog
	embedder *fakeEmbedder
	vectors  *fakeVectors
	records  *fakeRecords
	pipeline *Pipeline
}

func newHarness(docs map[string]string) *harness {
	h := &harness{
		source:   &fakeSource{sha: "abc123", docs: docs},
		catalog:  newFakeCatalog(),
		embedder: &fakeEmbedder{},
		vectors:  newFakeVectors(),
		records:  &fakeRecords{rows: map[string][]*database.Embedding{}},
	}
	h.pipeline = NewPipeline(Deps{
		Source:   h.source,
		Embedder: h.embedder,
		Vectors:  h.vectors,
		Catalog:  h.catalog,
		Records:  h.records,
	})
	n := 0
	h.pipeline.newID = func() string {
		n++
		return fmt.Sprintf("emb-%d", n)
	}
	return h
}

const ros2Chapter = `---
title: ROS 2 Nodes
description: Processes that talk over topics
sidebar_position: 2
difficulty: Intermediate
estimated_duration: 45
learning_objectives:
  - Write a publisher
  - Write a subscriber
---

# ROS 2 Nodes

A node is a process that performs computation.

## Publishers

Publishers send messages on a topic.

## Subscribers

Subscribers receive messages from a topic.
`

func TestIndexAll_IndexesChapters(t *testing.T) {
	h := newHarness(map[string]string{
		"module-1-ros2/nodes.md": ros2Chapter,
	})

	result, err := h.pipeline.IndexAll(context.Background(), Options{})
	require.NoError(t, err)

	assert.Equal(t, "abc123", result.CommitSHA)
	assert.Equal(t, 1, result.TotalDocs)
	assert.Equal(t, 1, result.SuccessfulDocs)
	assert.Equal(t, 3, result.TotalChunks)
	assert.Empty(t, result.FailedDocs)
	assert.Empty(t, result.FailedPoints)
	assert.Equal(t, 1, h.vectors.ensured)
	assert.False(t, h.vectors.cleared)

	module := h.catalog.modules["module-1-ros2"]
	require.NotNil(t, module)
	assert.Equal(t, "Module 1 Ros2", module.Title)
	assert.Equal(t, 1, module.SortOrder)
	assert.True(t, module.IsPublished)

	chapter := h.catalog.chapters["module-1-ros2/nodes"]
	require.NotNil(t, chapter)
	assert.Equal(t, "ROS 2 Nodes", chapter.Title)
	assert.Equal(t, "Processes that talk over topics", chapter.Description)
	assert.Equal(t, 2, chapter.SortOrder)
	assert.Equal(t, "intermediate", chapter.DifficultyLevel)
	assert.Equal(t, 45, chapter.EstimatedDurationMinutes)
	assert.Equal(t, "Write a publisher\nWrite a subscriber", chapter.LearningObjectives)
	assert.Equal(t, "mod-module-1-ros2", chapter.ModuleID)
	assert.Contains(t, chapter.ContentHTML, "<h2")
	assert.NotContains(t, chapter.ContentHTML, "sidebar_position")

	points := h.vectors.byChapter(chapter.ID)
	require.Len(t, points, 3)
	for _, p := range points {
		assert.Equal(t, "module-1-ros2", p.ModuleSlug)
		assert.Equal(t, "ROS 2 Nodes", p.Metadata["chapter_title"])
		assert.Equal(t, "abc123", p.Metadata["commit_sha"])
		assert.NotContains(t, p.Content, "# ROS 2 Nodes >", "payload stores raw content")
	}

	rows := h.records.rows[chapter.ID]
	require.Len(t, rows, 3)
	for _, r := range rows {
		assert.Equal(t, "text-embedding-3-small", r.EmbeddingModel)
		assert.Equal(t, int64(storage.PointID(r.ID)), r.QdrantPointID)
	}
}

func TestIndexAll_ReindexReplacesChunks(t *testing.T) {
	h := newHarness(map[string]string{"module-1-ros2/nodes.md": ros2Chapter})

	_, err := h.pipeline.IndexAll(context.Background(), Options{})
	require.NoError(t, err)

	h.source.docs["module-1-ros2/nodes.md"] = "# ROS 2 Nodes\n\nShorter now.\n"
	result, err := h.pipeline.IndexAll(context.Background(), Options{})
	require.NoError(t, err)
	assert.Equal(t, 1, result.TotalChunks)

	chapter := h.catalog.chapters["module-1-ros2/nodes"]
	assert.Len(t, h.vectors.byChapter(chapter.ID), 1)
	assert.Len(t, h.records.rows[chapter.ID], 1)
	assert.Len(t, h.catalog.chapters, 1, "chapter row is updated in place")
}

func TestIndexAll_PartialPointFailure(t *testing.T) {
	h := newHarness(map[string]string{"module-1-ros2/nodes.md": ros2Chapter})
	h.vectors.failIdx[1] = true

	result, err := h.pipeline.IndexAll(context.Background(), Options{})
	require.NoError(t, err)

	assert.Equal(t, 1, result.SuccessfulDocs)
	assert.Equal(t, 2, result.TotalChunks)
	require.Len(t, result.FailedPoints, 1)
	assert.Equal(t, FailedPoint{Path: "module-1-ros2/nodes.md", ChunkIndex: 1, Reason: "invalid vector"}, result.FailedPoints[0])

	chapter := h.catalog.chapters["module-1-ros2/nodes"]
	rows := h.records.rows[chapter.ID]
	require.Len(t, rows, 2, "only stored points get embedding rows")
	for _, r := range rows {
		assert.NotEqual(t, 1, r.ChunkIndex)
	}
}

func TestIndexAll_DocumentFailuresAreCollected(t *testing.T) {
	h := newHarness(map[string]string{
		"module-1-ros2/nodes.md": ros2Chapter,
		"module-2-sim/gazebo.md": "# Gazebo\n\nSimulation.\n",
	})
	h.embedder.err = errors.New("embedding service rate limited")

	result, err := h.pipeline.IndexAll(context.Background(), Options{})
	require.NoError(t, err)

	assert.Equal(t, 0, result.SuccessfulDocs)
	require.Len(t, result.FailedDocs, 2)
	assert.Contains(t, result.FailedDocs[0].Reason, "embeddings")
	assert.Empty(t, h.vectors.points)
}

func TestIndexAll_RootAndDraftChapters(t *testing.T) {
	h := newHarness(map[string]string{
		"intro.md":               "# Welcome\n\nStart here.\n",
		"module-1-ros2/draft.md": "---\ntitle: WIP\ndraft: true\n---\n# WIP\n",
		"module-1-ros2/empty.md": "---\ntitle: Placeholder\n---\n",
	})

	result, err := h.pipeline.IndexAll(context.Background(), Options{})
	require.NoError(t, err)

	assert.Equal(t, 3, result.TotalDocs)
	assert.Equal(t, 2, result.SuccessfulDocs)
	assert.Equal(t, 1, result.SkippedDocs)
	assert.Equal(t, 1, result.TotalChunks)

	intro := h.catalog.chapters[RootModuleSlug+"/intro"]
	require.NotNil(t, intro)
	assert.Equal(t, "Welcome", intro.Title, "title falls back to the first H1")
	assert.Equal(t, "beginner", intro.DifficultyLevel)

	empty := h.catalog.chapters["module-1-ros2/empty"]
	require.NotNil(t, empty)
	assert.Empty(t, h.vectors.byChapter(empty.ID))
	assert.Nil(t, h.catalog.chapters["module-1-ros2/draft"])
	assert.Equal(t, 2, h.catalog.upserts, "each module is stored once per run")
}

func TestIndexAll_Force(t *testing.T) {
	h := newHarness(map[string]string{"module-1-ros2/nodes.md": ros2Chapter})
	h.vectors.points["stale"] = storage.EmbeddingPoint{ID: "stale", ChapterID: "gone"}

	_, err := h.pipeline.IndexAll(context.Background(), Options{Force: true})
	require.NoError(t, err)

	assert.True(t, h.vectors.cleared)
	_, ok := h.vectors.points["stale"]
	assert.False(t, ok)
}

func TestIndexAll_FatalErrors(t *testing.T) {
	t.Run("clear", func(t *testing.T) {
		h := newHarness(nil)
		h.vectors.clearErr = errors.New("qdrant down")
		_, err := h.pipeline.IndexAll(context.Background(), Options{Force: true})
		assert.ErrorContains(t, err, "clear collection")
	})
	t.Run("commit", func(t *testing.T) {
		h := newHarness(nil)
		h.source.shaErr = errors.New("rate limited")
		_, err := h.pipeline.IndexAll(context.Background(), Options{})
		assert.ErrorContains(t, err, "get commit SHA")
	})
	t.Run("list", func(t *testing.T) {
		h := newHarness(nil)
		h.source.listErr = errors.New("404")
		_, err := h.pipeline.IndexAll(context.Background(), Options{})
		assert.ErrorContains(t, err, "list docs")
	})
	t.Run("canceled", func(t *testing.T) {
		h := newHarness(map[string]string{"a/b.md": "# B\n"})
		ctx, cancel := context.WithCancel(context.Background())
		cancel()
		_, err := h.pipeline.IndexAll(ctx, Options{})
		assert.ErrorIs(t, err, context.Canceled)
	})
}

type fakeSummarizer struct {
	calls int
	err   error
}

func (f *fakeSummarizer) Generate(_ context.Context, title, _ string) (*metadata.ChapterMetadata, error) {
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	return &metadata.ChapterMetadata{Summary: "About " + title, Concepts: []string{"URDF", "Joints"}}, nil
}

func TestIndexAll_Summarizer(t *testing.T) {
	h := newHarness(map[string]string{
		"module-1-ros2/nodes.md": ros2Chapter,
		"module-1-ros2/urdf.md":  "# Describing Robots\n\nLinks and joints.\n",
	})
	summarizer := &fakeSummarizer{}
	h.pipeline.summary = summarizer

	_, err := h.pipeline.IndexAll(context.Background(), Options{})
	require.NoError(t, err)

	assert.Equal(t, 1, summarizer.calls, "chapters with full front matter are not summarized")
	urdf := h.catalog.chapters["module-1-ros2/urdf"]
	require.NotNil(t, urdf)
	assert.Equal(t, "About Describing Robots", urdf.Description)
	assert.Equal(t, "URDF\nJoints", urdf.LearningObjectives)

	nodes := h.catalog.chapters["module-1-ros2/nodes"]
	assert.Equal(t, "Processes that talk over topics", nodes.Description)
}

func TestIndexAll_SummarizerFailureIsIgnored(t *testing.T) {
	h := newHarness(map[string]string{"module-1-ros2/urdf.md": "# Describing Robots\n\nLinks.\n"})
	h.pipeline.summary = &fakeSummarizer{err: errors.New("model overloaded")}

	result, err := h.pipeline.IndexAll(context.Background(), Options{})
	require.NoError(t, err)
	assert.Equal(t, 1, result.SuccessfulDocs)
	assert.Empty(t, h.catalog.chapters["module-1-ros2/urdf"].Description)
}

func TestSlugHelpers(t *testing.T) {
	assert.Equal(t, "Module 3 Isaac Sim", titleFromSlug("module-3-isaac_sim"))
	assert.Equal(t, 3, leadingNumber("module-3-isaac"))
	assert.Equal(t, 0, leadingNumber("intro"))
}

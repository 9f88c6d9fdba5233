package indexer

import (
	"context"
	"fmt"
	"log/slog"
	"path"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/bull/robotics-tutor/internal/database"
	"github.com/bull/robotics-tutor/internal/github"
	"github.com/bull/robotics-tutor/internal/markdown"
	"github.com/bull/robotics-tutor/internal/metadata"
	"github.com/bull/robotics-tutor/internal/metrics"
	"github.com/bull/robotics-tutor/internal/storage"
)

// RootModuleSlug holds chapters that live at the top of the docs directory.
const RootModuleSlug = "introduction"

// Source lists and fetches chapter files.
type Source interface {
	GetLatestCommitSHA(ctx context.Context) (string, error)
	ListDocs(ctx context.Context) ([]string, error)
	FetchDoc(ctx context.Context, path string) (*github.FetchedDoc, error)
}

// Catalog stores module and chapter rows.
type Catalog interface {
	UpsertModule(ctx context.Context, m *database.Module) error
	UpsertChapter(ctx context.Context, c *database.Chapter) error
}

// Embedder turns chunk text into vectors.
type Embedder interface {
	EmbedMany(ctx context.Context, texts []string) ([][]float32, error)
	Model() string
}

// VectorStore is the chunk index.
type VectorStore interface {
	EnsureCollection(ctx context.Context) error
	ClearCollection(ctx context.Context) error
	DeleteByChapter(ctx context.Context, chapterID string) error
	UpsertBatch(ctx context.Context, points []storage.EmbeddingPoint) storage.BatchResult
}

// EmbeddingRecords mirrors indexed chunks in the relational store.
type EmbeddingRecords interface {
	DeleteByChapter(ctx context.Context, chapterID string) error
	InsertMany(ctx context.Context, rows []*database.Embedding) error
}

// Summarizer fills in chapter descriptions the front matter leaves out.
type Summarizer interface {
	Generate(ctx context.Context, title, content string) (*metadata.ChapterMetadata, error)
}

// Options controls a single IndexAll run.
type Options struct {
	// Force drops every point in the collection before indexing.
	Force bool
}

// IndexResult contains statistics about an indexing operation.
type IndexResult struct {
	TotalDocs      int
	TotalChunks    int
	SuccessfulDocs int
	SkippedDocs    int
	FailedDocs     []FailedDoc
	FailedPoints   []FailedPoint
	CommitSHA      string
	Duration       time.Duration
}

// FailedDoc represents a document that failed to index.
type FailedDoc struct {
	Path   string
	Reason string
}

// FailedPoint is a chunk whose vector could not be stored.
type FailedPoint struct {
	Path       string
	ChunkIndex int
	Reason     string
}

// Pipeline orchestrates the full indexing process from fetching to storage.
type Pipeline struct {
	source   Source
	chunker  *markdown.Chunker
	embedder Embedder
	vectors  VectorStore
	catalog  Catalog
	records  EmbeddingRecords
	summary  Summarizer
	metrics  *metrics.Metrics
	logger   *slog.Logger
	newID    func() string
}

// Deps bundles the collaborators of a Pipeline.
// Summarizer and Metrics are optional.
type Deps struct {
	Source     Source
	Chunker    *markdown.Chunker
	Embedder   Embedder
	Vectors    VectorStore
	Catalog    Catalog
	Records    EmbeddingRecords
	Summarizer Summarizer
	Metrics    *metrics.Metrics
	Logger     *slog.Logger
}

// NewPipeline creates a new indexing pipeline with the given components.
func NewPipeline(d Deps) *Pipeline {
	logger := d.Logger
	if logger == nil {
		logger = slog.Default()
	}
	chunker := d.Chunker
	if chunker == nil {
		chunker = markdown.NewChunker(0)
	}
	return &Pipeline{
		source:   d.Source,
		chunker:  chunker,
		embedder: d.Embedder,
		vectors:  d.Vectors,
		catalog:  d.Catalog,
		records:  d.Records,
		summary:  d.Summarizer,
		metrics:  d.Metrics,
		logger:   logger,
		newID:    uuid.NewString,
	}
}

// IndexAll fetches every chapter from the course repository and indexes it.
// Per-document failures are collected in the result; only failures that
// stop the whole run are returned as errors.
func (p *Pipeline) IndexAll(ctx context.Context, opts Options) (*IndexResult, error) {
	start := time.Now()
	result := &IndexResult{}

	if opts.Force {
		p.logger.Warn("Clearing vector collection before indexing")
		if err := p.vectors.ClearCollection(ctx); err != nil {
			return nil, fmt.Errorf("clear collection: %w", err)
		}
	}
	if err := p.vectors.EnsureCollection(ctx); err != nil {
		return nil, fmt.Errorf("ensure collection: %w", err)
	}

	commitSHA, err := p.source.GetLatestCommitSHA(ctx)
	if err != nil {
		return nil, fmt.Errorf("get commit SHA: %w", err)
	}
	result.CommitSHA = commitSHA
	p.logger.Info("Starting indexing", "commit", commitSHA)

	paths, err := p.source.ListDocs(ctx)
	if err != nil {
		return nil, fmt.Errorf("list docs: %w", err)
	}
	result.TotalDocs = len(paths)
	p.logger.Info("Found documents", "count", len(paths))

	modules := make(map[string]*database.Module)
	for _, docPath := range paths {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		out, err := p.processDocument(ctx, docPath, commitSHA, modules)
		if err != nil {
			p.logger.Warn("Failed to process document", "path", docPath, "error", err)
			result.FailedDocs = append(result.FailedDocs, FailedDoc{
				Path:   docPath,
				Reason: err.Error(),
			})
			continue // Skip unparseable docs, continue with others
		}
		if out.skipped {
			result.SkippedDocs++
			continue
		}
		result.SuccessfulDocs++
		result.TotalChunks += out.stored
		result.FailedPoints = append(result.FailedPoints, out.failed...)
	}

	result.Duration = time.Since(start)
	p.logger.Info("Indexing complete",
		"successful", result.SuccessfulDocs,
		"skipped", result.SkippedDocs,
		"failed", len(result.FailedDocs),
		"failed_points", len(result.FailedPoints),
		"chunks", result.TotalChunks,
		"duration", result.Duration,
	)

	return result, nil
}

type docOutcome struct {
	stored  int
	failed  []FailedPoint
	skipped bool
}

// processDocument handles the full pipeline for a single document.
func (p *Pipeline) processDocument(ctx context.Context, docPath, commitSHA string, modules map[string]*database.Module) (docOutcome, error) {
	fetched, err := p.source.FetchDoc(ctx, docPath)
	if err != nil {
		return docOutcome{}, fmt.Errorf("fetch: %w", err)
	}
	p.logger.Debug("Fetched document", "path", docPath, "size", len(fetched.Content))

	fm, body, err := markdown.SplitFrontMatter([]byte(fetched.Content))
	if err != nil {
		return docOutcome{}, fmt.Errorf("front matter: %w", err)
	}
	if fm.Draft {
		p.logger.Info("Skipping draft chapter", "path", docPath)
		return docOutcome{skipped: true}, nil
	}

	module, err := p.module(ctx, fetched.ModuleSlug, modules)
	if err != nil {
		return docOutcome{}, err
	}

	html, err := p.chunker.RenderHTML(body)
	if err != nil {
		return docOutcome{}, err
	}
	chapter := p.chapterFrom(docPath, fm, body, html, module)
	p.summarize(ctx, docPath, chapter, body)
	if err := p.catalog.UpsertChapter(ctx, chapter); err != nil {
		return docOutcome{}, fmt.Errorf("store chapter: %w", err)
	}

	chunks, err := p.chunker.ChunkDocument(body)
	if err != nil {
		return docOutcome{}, fmt.Errorf("chunk: %w", err)
	}
	p.logger.Debug("Chunked document", "path", docPath, "chunks", len(chunks))

	var vectors [][]float32
	if len(chunks) > 0 {
		texts := make([]string, len(chunks))
		for i, chunk := range chunks {
			texts[i] = chunk.Content // Content already has header path prepended
		}
		vectors, err = p.embedder.EmbedMany(ctx, texts)
		if err != nil {
			return docOutcome{}, fmt.Errorf("embeddings: %w", err)
		}
		if len(vectors) != len(chunks) {
			return docOutcome{}, fmt.Errorf("embeddings: got %d vectors for %d chunks", len(vectors), len(chunks))
		}
	}

	// Replace, never append: stale chunks of an edited chapter must go.
	if err := p.vectors.DeleteByChapter(ctx, chapter.ID); err != nil {
		return docOutcome{}, fmt.Errorf("delete old points: %w", err)
	}
	if err := p.records.DeleteByChapter(ctx, chapter.ID); err != nil {
		return docOutcome{}, fmt.Errorf("delete old embeddings: %w", err)
	}
	if len(chunks) == 0 {
		p.logger.Info("Indexed document", "path", docPath, "chunks", 0)
		return docOutcome{}, nil
	}

	points := make([]storage.EmbeddingPoint, len(chunks))
	for i, chunk := range chunks {
		points[i] = storage.EmbeddingPoint{
			ID:         p.newID(),
			Vector:     vectors[i],
			Content:    chunk.RawContent, // Store without header prefix in payload
			ChapterID:  chapter.ID,
			ModuleSlug: module.Slug,
			Metadata: map[string]any{
				"chunk_index":   chunk.Index,
				"header_path":   chunk.HeaderPath,
				"chapter_title": chapter.Title,
				"path":          docPath,
				"commit_sha":    commitSHA,
			},
		}
	}

	batch := p.vectors.UpsertBatch(ctx, points)

	var out docOutcome
	rows := make([]*database.Embedding, 0, len(points))
	for i, pt := range points {
		if batch.Failed(pt.ID) {
			continue
		}
		rows = append(rows, &database.Embedding{
			ID:             pt.ID,
			ChapterID:      chapter.ID,
			Content:        chunks[i].RawContent,
			ChunkIndex:     chunks[i].Index,
			EmbeddingModel: p.embedder.Model(),
			QdrantPointID:  int64(storage.PointID(pt.ID)),
		})
	}
	for _, f := range batch.Failures {
		out.failed = append(out.failed, FailedPoint{
			Path:       docPath,
			ChunkIndex: chunkIndexOf(points, f.ID),
			Reason:     f.Reason,
		})
	}

	if len(rows) > 0 {
		if err := p.records.InsertMany(ctx, rows); err != nil {
			return docOutcome{}, fmt.Errorf("store embeddings: %w", err)
		}
	}
	out.stored = len(rows)

	p.metrics.IngestedChunks(metrics.IngestStored, out.stored)
	p.metrics.IngestedChunks(metrics.IngestFailed, len(out.failed))

	p.logger.Info("Indexed document", "path", docPath, "chunks", out.stored, "failed_points", len(out.failed))
	return out, nil
}

// module upserts the module for slug once per run.
func (p *Pipeline) module(ctx context.Context, slug string, seen map[string]*database.Module) (*database.Module, error) {
	if slug == "" {
		slug = RootModuleSlug
	}
	if m, ok := seen[slug]; ok {
		return m, nil
	}
	m := &database.Module{
		Slug:        slug,
		Title:       titleFromSlug(slug),
		SortOrder:   leadingNumber(slug),
		IsPublished: true,
	}
	if err := p.catalog.UpsertModule(ctx, m); err != nil {
		return nil, fmt.Errorf("store module: %w", err)
	}
	seen[slug] = m
	return m, nil
}

func (p *Pipeline) chapterFrom(docPath string, fm markdown.FrontMatter, body []byte, html string, module *database.Module) *database.Chapter {
	base := strings.TrimSuffix(path.Base(docPath), path.Ext(docPath))

	slug := strings.Trim(fm.Slug, "/")
	if slug == "" {
		slug = base
	}
	// Docusaurus slugs may be absolute paths; keep the last segment.
	slug = path.Base(slug)

	title := fm.Title
	if title == "" {
		title = p.chunker.Title(body)
	}
	if title == "" {
		title = titleFromSlug(base)
	}

	difficulty := strings.ToLower(strings.TrimSpace(fm.Difficulty))
	if difficulty == "" {
		difficulty = "beginner"
	}

	order := fm.SidebarPosition
	if order == 0 {
		order = leadingNumber(base)
	}

	return &database.Chapter{
		ModuleID:                 module.ID,
		ModuleSlug:               module.Slug,
		Slug:                     slug,
		Title:                    title,
		Description:              fm.Description,
		SortOrder:                order,
		DifficultyLevel:          difficulty,
		EstimatedDurationMinutes: fm.EstimatedMinutes,
		ContentHTML:              html,
		LearningObjectives:       strings.Join(fm.LearningObjectives, "\n"),
		IsPublished:              true,
	}
}

// summarize fills an empty description or objective list from the model.
// Failures leave the fields empty.
func (p *Pipeline) summarize(ctx context.Context, docPath string, chapter *database.Chapter, body []byte) {
	if p.summary == nil || (chapter.Description != "" && chapter.LearningObjectives != "") {
		return
	}
	meta, err := p.summary.Generate(ctx, chapter.Title, string(body))
	if err != nil {
		p.logger.Warn("Metadata generation failed, using empty", "path", docPath, "error", err)
		return
	}
	if chapter.Description == "" {
		chapter.Description = meta.Summary
	}
	if chapter.LearningObjectives == "" {
		chapter.LearningObjectives = strings.Join(meta.Concepts, "\n")
	}
}

func chunkIndexOf(points []storage.EmbeddingPoint, id string) int {
	for _, pt := range points {
		if pt.ID == id {
			if idx, ok := pt.Metadata["chunk_index"].(int); ok {
				return idx
			}
		}
	}
	return -1
}

var numberRE = regexp.MustCompile(`\d+`)

// leadingNumber returns the first integer in s, or 0.
func leadingNumber(s string) int {
	m := numberRE.FindString(s)
	if m == "" {
		return 0
	}
	n, err := strconv.Atoi(m)
	if err != nil {
		return 0
	}
	return n
}

// titleFromSlug turns "module-1-ros2" into "Module 1 Ros2".
func titleFromSlug(slug string) string {
	words := strings.FieldsFunc(slug, func(r rune) bool { return r == '-' || r == '_' })
	for i, w := range words {
		words[i] = strings.ToUpper(w[:1]) + w[1:]
	}
	return strings.Join(words, " ")
}

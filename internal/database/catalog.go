package database

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
)

// ChapterRepository handles modules and chapters.
type ChapterRepository struct {
	db DBTX
}

// NewChapterRepository creates a new chapter repository.
func NewChapterRepository(db DBTX) *ChapterRepository {
	return &ChapterRepository{db: db}
}

const chapterColumns = `c.id, c.module_id, m.slug, c.slug, c.title, c.description, c.sort_order,
	c.difficulty_level, c.estimated_duration_minutes, c.content_html, c.learning_objectives,
	c.is_published, c.published_at, c.created_at, c.updated_at`

func scanChapter(row interface{ Scan(...any) error }) (*Chapter, error) {
	c := &Chapter{}
	err := row.Scan(
		&c.ID, &c.ModuleID, &c.ModuleSlug, &c.Slug, &c.Title, &c.Description, &c.SortOrder,
		&c.DifficultyLevel, &c.EstimatedDurationMinutes, &c.ContentHTML, &c.LearningObjectives,
		&c.IsPublished, &c.PublishedAt, &c.CreatedAt, &c.UpdatedAt,
	)
	if err != nil {
		return nil, notFound(err)
	}
	return c, nil
}

// GetChapter retrieves a chapter by ID.
func (r *ChapterRepository) GetChapter(ctx context.Context, id string) (*Chapter, error) {
	return scanChapter(r.db.QueryRow(ctx, `
		SELECT `+chapterColumns+`
		FROM chapters c JOIN modules m ON m.id = c.module_id
		WHERE c.id = $1`, id))
}

// ListModules returns published modules in course order.
func (r *ChapterRepository) ListModules(ctx context.Context) ([]*Module, error) {
	rows, err := r.db.Query(ctx, `
		SELECT id, slug, title, description, sort_order, is_published, published_at, created_at, updated_at
		FROM modules
		WHERE is_published
		ORDER BY sort_order, slug`)
	if err != nil {
		return nil, fmt.Errorf("list modules: %w", err)
	}
	defer rows.Close()

	var modules []*Module
	for rows.Next() {
		m := &Module{}
		if err := rows.Scan(&m.ID, &m.Slug, &m.Title, &m.Description, &m.SortOrder,
			&m.IsPublished, &m.PublishedAt, &m.CreatedAt, &m.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scan module: %w", err)
		}
		modules = append(modules, m)
	}
	return modules, rows.Err()
}

// GetModuleBySlug retrieves a module by slug.
func (r *ChapterRepository) GetModuleBySlug(ctx context.Context, slug string) (*Module, error) {
	m := &Module{}
	err := r.db.QueryRow(ctx, `
		SELECT id, slug, title, description, sort_order, is_published, published_at, created_at, updated_at
		FROM modules WHERE slug = $1`, slug).Scan(
		&m.ID, &m.Slug, &m.Title, &m.Description, &m.SortOrder,
		&m.IsPublished, &m.PublishedAt, &m.CreatedAt, &m.UpdatedAt)
	if err != nil {
		return nil, notFound(err)
	}
	return m, nil
}

// ListChapters returns the published chapters of a module in order.
// The HTML body is left out.
func (r *ChapterRepository) ListChapters(ctx context.Context, moduleSlug string) ([]*Chapter, error) {
	rows, err := r.db.Query(ctx, `
		SELECT `+chapterColumns+`
		FROM chapters c JOIN modules m ON m.id = c.module_id
		WHERE m.slug = $1 AND c.is_published
		ORDER BY c.sort_order, c.slug`, moduleSlug)
	if err != nil {
		return nil, fmt.Errorf("list chapters: %w", err)
	}
	defer rows.Close()

	var chapters []*Chapter
	for rows.Next() {
		c, err := scanChapter(rows)
		if err != nil {
			return nil, fmt.Errorf("scan chapter: %w", err)
		}
		c.ContentHTML = ""
		chapters = append(chapters, c)
	}
	return chapters, rows.Err()
}

// UpsertModule inserts or updates a module keyed by slug and returns it with its ID.
func (r *ChapterRepository) UpsertModule(ctx context.Context, m *Module) error {
	if m.ID == "" {
		m.ID = uuid.NewString()
	}
	err := r.db.QueryRow(ctx, `
		INSERT INTO modules (id, slug, title, description, sort_order, is_published, published_at)
		VALUES ($1, $2, $3, $4, $5, $6, CASE WHEN $6 THEN NOW() END)
		ON CONFLICT (slug) DO UPDATE SET
			title = EXCLUDED.title,
			description = EXCLUDED.description,
			sort_order = EXCLUDED.sort_order,
			is_published = EXCLUDED.is_published,
			updated_at = NOW()
		RETURNING id, created_at, updated_at`,
		m.ID, m.Slug, m.Title, m.Description, m.SortOrder, m.IsPublished,
	).Scan(&m.ID, &m.CreatedAt, &m.UpdatedAt)
	if err != nil {
		return fmt.Errorf("upsert module %s: %w", m.Slug, err)
	}
	return nil
}

// UpsertChapter inserts or updates a chapter keyed by (module_id, slug).
func (r *ChapterRepository) UpsertChapter(ctx context.Context, c *Chapter) error {
	if c.ID == "" {
		c.ID = uuid.NewString()
	}
	err := r.db.QueryRow(ctx, `
		INSERT INTO chapters (id, module_id, slug, title, description, sort_order, difficulty_level,
			estimated_duration_minutes, content_html, learning_objectives, is_published, published_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, CASE WHEN $11 THEN NOW() END)
		ON CONFLICT (module_id, slug) DO UPDATE SET
			title = EXCLUDED.title,
			description = EXCLUDED.description,
			sort_order = EXCLUDED.sort_order,
			difficulty_level = EXCLUDED.difficulty_level,
			estimated_duration_minutes = EXCLUDED.estimated_duration_minutes,
			content_html = EXCLUDED.content_html,
			learning_objectives = EXCLUDED.learning_objectives,
			is_published = EXCLUDED.is_published,
			updated_at = NOW()
		RETURNING id, created_at, updated_at`,
		c.ID, c.ModuleID, c.Slug, c.Title, c.Description, c.SortOrder, c.DifficultyLevel,
		c.EstimatedDurationMinutes, c.ContentHTML, c.LearningObjectives, c.IsPublished,
	).Scan(&c.ID, &c.CreatedAt, &c.UpdatedAt)
	if err != nil {
		return fmt.Errorf("upsert chapter %s: %w", c.Slug, err)
	}
	return nil
}

// EmbeddingRepository records which chunks of a chapter are indexed.
type EmbeddingRepository struct {
	db DBTX
}

// NewEmbeddingRepository creates a new embedding repository.
func NewEmbeddingRepository(db DBTX) *EmbeddingRepository {
	return &EmbeddingRepository{db: db}
}

// DeleteByChapter removes every embedding row of a chapter.
func (r *EmbeddingRepository) DeleteByChapter(ctx context.Context, chapterID string) error {
	if _, err := r.db.Exec(ctx, `DELETE FROM embeddings WHERE chapter_id = $1`, chapterID); err != nil {
		return fmt.Errorf("delete embeddings for chapter %s: %w", chapterID, err)
	}
	return nil
}

// InsertMany inserts the rows in a single batch round trip.
func (r *EmbeddingRepository) InsertMany(ctx context.Context, rows []*Embedding) error {
	if len(rows) == 0 {
		return nil
	}
	batch := &pgx.Batch{}
	for _, e := range rows {
		batch.Queue(`
			INSERT INTO embeddings (id, chapter_id, content, chunk_index, embedding_model, qdrant_point_id)
			VALUES ($1, $2, $3, $4, $5, $6)
			ON CONFLICT (id) DO UPDATE SET
				content = EXCLUDED.content,
				chunk_index = EXCLUDED.chunk_index,
				embedding_model = EXCLUDED.embedding_model,
				qdrant_point_id = EXCLUDED.qdrant_point_id,
				updated_at = NOW()`,
			e.ID, e.ChapterID, e.Content, e.ChunkIndex, e.EmbeddingModel, e.QdrantPointID)
	}

	br := r.db.SendBatch(ctx, batch)
	defer br.Close()
	for i := range rows {
		if _, err := br.Exec(); err != nil {
			return fmt.Errorf("insert embedding %d: %w", i, err)
		}
	}
	return nil
}

// CountByChapter returns how many chunks of a chapter are indexed.
func (r *EmbeddingRepository) CountByChapter(ctx context.Context, chapterID string) (int, error) {
	var n int
	if err := r.db.QueryRow(ctx, `SELECT COUNT(*) FROM embeddings WHERE chapter_id = $1`, chapterID).Scan(&n); err != nil {
		return 0, fmt.Errorf("count embeddings: %w", err)
	}
	return n, nil
}

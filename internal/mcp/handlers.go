package mcp

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/bull/robotics-tutor/internal/storage"
)

const (
	defaultMaxResults = 5
	maxMaxResults     = 20
	defaultMinScore   = 0.6
)

// makeSearchHandler creates the search_course tool handler.
// Chunks whose chapter no longer exists are dropped.
func makeSearchHandler(embedder Embedder, searcher Searcher, catalog Catalog, logger *slog.Logger) func(
	context.Context, *mcp.CallToolRequest, SearchCourseInput,
) (*mcp.CallToolResult, SearchCourseOutput, error) {
	return func(ctx context.Context, req *mcp.CallToolRequest, input SearchCourseInput) (
		*mcp.CallToolResult, SearchCourseOutput, error,
	) {
		if strings.TrimSpace(input.Query) == "" {
			return nil, SearchCourseOutput{}, errors.New("query is required")
		}
		maxResults := input.MaxResults
		if maxResults <= 0 {
			maxResults = defaultMaxResults
		}
		if maxResults > maxMaxResults {
			maxResults = maxMaxResults
		}
		minScore := input.MinScore
		if minScore <= 0 {
			minScore = defaultMinScore
		}

		vector, err := embedder.Embed(ctx, input.Query)
		if err != nil {
			return nil, SearchCourseOutput{}, fmt.Errorf("failed to embed query: %w", err)
		}

		hits := searcher.Search(ctx, storage.SearchQuery{
			Vector:     vector,
			Limit:      maxResults,
			MinScore:   minScore,
			ModuleSlug: input.ModuleSlug,
		})

		titles := make(map[string]string)
		results := make([]Passage, 0, len(hits))
		for _, hit := range hits {
			title, ok := titles[hit.ChapterID]
			if !ok {
				ch, err := catalog.GetChapter(ctx, hit.ChapterID)
				if err != nil {
					logger.Debug("skipping passage with unknown chapter", "chapter_id", hit.ChapterID, "error", err)
					continue
				}
				title = ch.Title
				titles[hit.ChapterID] = title
			}
			results = append(results, Passage{
				ChapterID:    hit.ChapterID,
				ChapterTitle: title,
				ModuleSlug:   hit.ModuleSlug,
				Score:        hit.Score,
				Content:      hit.Content,
			})
		}

		if len(results) == 0 {
			return nil, SearchCourseOutput{
				Results: []Passage{},
				Message: "No matching course material found. Try broader search terms.",
			}, nil
		}
		return nil, SearchCourseOutput{Results: results}, nil
	}
}

// makeListHandler creates the list_modules tool handler.
func makeListHandler(catalog Catalog) func(
	context.Context, *mcp.CallToolRequest, ListModulesInput,
) (*mcp.CallToolResult, ListModulesOutput, error) {
	return func(ctx context.Context, req *mcp.CallToolRequest, input ListModulesInput) (
		*mcp.CallToolResult, ListModulesOutput, error,
	) {
		modules, err := catalog.ListModules(ctx)
		if err != nil {
			return nil, ListModulesOutput{}, fmt.Errorf("failed to list modules: %w", err)
		}

		out := ListModulesOutput{Modules: make([]ModuleOutline, 0, len(modules))}
		for _, m := range modules {
			chapters, err := catalog.ListChapters(ctx, m.Slug)
			if err != nil {
				return nil, ListModulesOutput{}, fmt.Errorf("failed to list chapters of %s: %w", m.Slug, err)
			}
			outline := ModuleOutline{Slug: m.Slug, Title: m.Title, Chapters: make([]ChapterOutline, 0, len(chapters))}
			for _, c := range chapters {
				outline.Chapters = append(outline.Chapters, ChapterOutline{ID: c.ID, Slug: c.Slug, Title: c.Title})
			}
			out.Modules = append(out.Modules, outline)
		}
		out.Count = len(out.Modules)
		return nil, out, nil
	}
}

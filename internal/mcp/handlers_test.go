package mcp

import (
	"context"
	"errors"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bull/robotics-tutor/internal/database"
	"github.com/bull/robotics-tutor/internal/storage"
)

type stubEmbedder struct{ err error }

func (s stubEmbedder) Embed(context.Context, string) ([]float32, error) {
	if s.err != nil {
		return nil, s.err
	}
	return []float32{1, 0, 0, 0}, nil
}

type stubSearcher struct {
	hits []storage.SearchHit
	last storage.SearchQuery
}

func (s *stubSearcher) Search(_ context.Context, q storage.SearchQuery) []storage.SearchHit {
	s.last = q
	return s.hits
}

type stubCatalog struct {
	chapters    map[string]*database.Chapter
	modules     []*database.Module
	byModule    map[string][]*database.Chapter
	chapterErr  error
	lookupCount int
}

func (s *stubCatalog) GetChapter(_ context.Context, id string) (*database.Chapter, error) {
	s.lookupCount++
	if c, ok := s.chapters[id]; ok {
		return c, nil
	}
	return nil, database.ErrNotFound
}

func (s *stubCatalog) ListModules(context.Context) ([]*database.Module, error) {
	return s.modules, nil
}

func (s *stubCatalog) ListChapters(_ context.Context, slug string) ([]*database.Chapter, error) {
	if s.chapterErr != nil {
		return nil, s.chapterErr
	}
	return s.byModule[slug], nil
}

func TestSearchCourse(t *testing.T) {
	searcher := &stubSearcher{hits: []storage.SearchHit{
		{Score: 0.9, Content: "Topics carry messages.", ChapterID: "ch-1", ModuleSlug: "module-1-ros2"},
		{Score: 0.8, Content: "Publishers write to topics.", ChapterID: "ch-1", ModuleSlug: "module-1-ros2"},
		{Score: 0.7, Content: "stale", ChapterID: "gone", ModuleSlug: "module-1-ros2"},
	}}
	catalog := &stubCatalog{chapters: map[string]*database.Chapter{
		"ch-1": {ID: "ch-1", Title: "ROS 2 Communication"},
	}}
	handler := makeSearchHandler(stubEmbedder{}, searcher, catalog, slog.Default())

	_, out, err := handler(context.Background(), nil, SearchCourseInput{Query: "topics", ModuleSlug: "module-1-ros2"})
	require.NoError(t, err)

	require.Len(t, out.Results, 2)
	assert.Equal(t, "ROS 2 Communication", out.Results[0].ChapterTitle)
	assert.Equal(t, 0.9, out.Results[0].Score)
	assert.Empty(t, out.Message)
	assert.Equal(t, 2, catalog.lookupCount, "chapter titles are looked up once per chapter")

	assert.Equal(t, defaultMaxResults, searcher.last.Limit)
	assert.InDelta(t, defaultMinScore, searcher.last.MinScore, 1e-9)
	assert.Equal(t, "module-1-ros2", searcher.last.ModuleSlug)
}

func TestSearchCourse_Limits(t *testing.T) {
	searcher := &stubSearcher{}
	handler := makeSearchHandler(stubEmbedder{}, searcher, &stubCatalog{}, slog.Default())

	_, out, err := handler(context.Background(), nil, SearchCourseInput{Query: "q", MaxResults: 100, MinScore: 0.3})
	require.NoError(t, err)
	assert.Equal(t, maxMaxResults, searcher.last.Limit)
	assert.InDelta(t, 0.3, searcher.last.MinScore, 1e-9)
	assert.Empty(t, out.Results)
	assert.NotNil(t, out.Results)
	assert.NotEmpty(t, out.Message)
}

func TestSearchCourse_Errors(t *testing.T) {
	handler := makeSearchHandler(stubEmbedder{err: errors.New("rate limited")}, &stubSearcher{}, &stubCatalog{}, slog.Default())

	_, _, err := handler(context.Background(), nil, SearchCourseInput{Query: "  "})
	assert.Error(t, err)

	_, _, err = handler(context.Background(), nil, SearchCourseInput{Query: "topics"})
	assert.ErrorContains(t, err, "failed to embed query")
}

func TestListModules(t *testing.T) {
	catalog := &stubCatalog{
		modules: []*database.Module{
			{Slug: "module-1-ros2", Title: "ROS 2"},
			{Slug: "module-2-simulation", Title: "Simulation"},
		},
		byModule: map[string][]*database.Chapter{
			"module-1-ros2": {{ID: "c1", Slug: "intro", Title: "Intro"}, {ID: "c2", Slug: "topics", Title: "Topics"}},
		},
	}
	_, out, err := makeListHandler(catalog)(context.Background(), nil, ListModulesInput{})
	require.NoError(t, err)

	assert.Equal(t, 2, out.Count)
	assert.Len(t, out.Modules[0].Chapters, 2)
	assert.Equal(t, "Topics", out.Modules[0].Chapters[1].Title)
	assert.NotNil(t, out.Modules[1].Chapters)
	assert.Empty(t, out.Modules[1].Chapters)

	catalog.chapterErr = errors.New("boom")
	_, _, err = makeListHandler(catalog)(context.Background(), nil, ListModulesInput{})
	assert.Error(t, err)
}

func TestNewServer(t *testing.T) {
	s := NewServer(&Config{Version: "test", Embedder: stubEmbedder{}, Searcher: &stubSearcher{}, Catalog: &stubCatalog{}})
	require.NotNil(t, s.MCPServer())
	assert.NotNil(t, NewHTTPHandler(s, &HTTPHandlerOptions{Stateless: true}))
}

// Package mcp exposes course search to MCP clients over streamable HTTP.
package mcp

// SearchCourseInput defines the input parameters for the search_course tool.
type SearchCourseInput struct {
	// Query is the semantic search query.
	Query string `json:"query" jsonschema:"required,description=The question or topic to search the course for"`
	// ModuleSlug restricts the search to one module.
	ModuleSlug string `json:"module_slug,omitempty" jsonschema:"description=Restrict results to one module (e.g. module-1-ros2)"`
	// MaxResults is the maximum number of chunks to return.
	MaxResults int `json:"max_results,omitempty" jsonschema:"minimum=1,maximum=20,default=5,description=Maximum number of passages to return"`
	// MinScore is the minimum relevance threshold (0-1).
	MinScore float64 `json:"min_score,omitempty" jsonschema:"minimum=0,maximum=1,default=0.6,description=Minimum relevance score threshold (0-1)"`
}

// SearchCourseOutput contains the search results.
type SearchCourseOutput struct {
	Results []Passage `json:"results"`
	// Message provides informational context (e.g., "No matching course material found").
	Message string `json:"message,omitempty"`
}

// Passage is a matching course chunk with its chapter.
type Passage struct {
	ChapterID    string  `json:"chapter_id"`
	ChapterTitle string  `json:"chapter_title"`
	ModuleSlug   string  `json:"module_slug"`
	Score        float64 `json:"score"`
	Content      string  `json:"content"`
}

// ListModulesInput takes no parameters.
type ListModulesInput struct{}

// ListModulesOutput lists the published course outline.
type ListModulesOutput struct {
	Modules []ModuleOutline `json:"modules"`
	Count   int             `json:"count"`
}

// ModuleOutline is a module and its chapter titles.
type ModuleOutline struct {
	Slug     string           `json:"slug"`
	Title    string           `json:"title"`
	Chapters []ChapterOutline `json:"chapters"`
}

// ChapterOutline identifies one chapter.
type ChapterOutline struct {
	ID    string `json:"id"`
	Slug  string `json:"slug"`
	Title string `json:"title"`
}

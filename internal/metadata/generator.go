// Package metadata asks the chat model for a short description and the key
// concepts of a chapter. Ingestion uses it for chapters whose front matter
// leaves those fields empty.
package metadata

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"unicode/utf8"

	"github.com/openai/openai-go"
)

// DefaultMaxTokens is the maximum content length before truncation (in tokens).
const DefaultMaxTokens = 16000

const maxConcepts = 8

// ErrMalformedResponse is returned when the model reply is not the expected JSON.
var ErrMalformedResponse = errors.New("malformed metadata response")

// ChapterMetadata contains LLM-generated metadata for a chapter.
type ChapterMetadata struct {
	Summary  string   `json:"summary"`
	Concepts []string `json:"concepts"`
}

// Options tunes a Generator.
type Options struct {
	Model     string
	MaxTokens int
	Logger    *slog.Logger
}

// Generator produces chapter metadata with a JSON-mode chat completion.
type Generator struct {
	client    *openai.Client
	model     string
	maxTokens int
	logger    *slog.Logger
}

// NewGenerator creates a metadata generator with the given OpenAI client.
func NewGenerator(client *openai.Client, opts Options) *Generator {
	g := &Generator{
		client:    client,
		model:     opts.Model,
		maxTokens: opts.MaxTokens,
		logger:    opts.Logger,
	}
	if g.model == "" {
		g.model = openai.ChatModelGPT4oMini
	}
	if g.maxTokens <= 0 {
		g.maxTokens = DefaultMaxTokens
	}
	if g.logger == nil {
		g.logger = slog.Default()
	}
	return g
}

// Generate summarizes a chapter and lists the robotics concepts it teaches.
func (g *Generator) Generate(ctx context.Context, title, content string) (*ChapterMetadata, error) {
	truncated := g.truncateContent(title, content)

	prompt := fmt.Sprintf(`Analyze this chapter of a Physical AI and humanoid robotics course and provide:
1. A concise summary (1-2 sentences) a student can read before opening the chapter
2. The key concepts, tools or APIs the chapter teaches (at most %d)

Chapter title: %s

Chapter content:
%s

Respond in JSON format:
{"summary": "What this chapter covers", "concepts": ["Concept1", "Concept2"]}`, maxConcepts, title, truncated)

	resp, err := g.client.Chat.Completions.New(ctx, openai.ChatCompletionNewParams{
		Messages: []openai.ChatCompletionMessageParamUnion{
			openai.UserMessage(prompt),
		},
		Model: openai.ChatModel(g.model),
		ResponseFormat: openai.ChatCompletionNewParamsResponseFormatUnion{
			OfJSONObject: &openai.ResponseFormatJSONObjectParam{
				Type: "json_object",
			},
		},
	})
	if err != nil {
		return nil, fmt.Errorf("chat completion failed: %w", err)
	}
	if len(resp.Choices) == 0 {
		return nil, fmt.Errorf("%w: no choices", ErrMalformedResponse)
	}

	return parseResponse(resp.Choices[0].Message.Content)
}

func parseResponse(raw string) (*ChapterMetadata, error) {
	var md ChapterMetadata
	if err := json.Unmarshal([]byte(raw), &md); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedResponse, err)
	}
	md.Summary = strings.TrimSpace(md.Summary)

	concepts := md.Concepts[:0]
	for _, c := range md.Concepts {
		if c = strings.TrimSpace(c); c != "" {
			concepts = append(concepts, c)
		}
	}
	if len(concepts) > maxConcepts {
		concepts = concepts[:maxConcepts]
	}
	md.Concepts = concepts
	return &md, nil
}

// truncateContent cuts content to fit within the token limit.
// Uses rough estimate of 4 characters per token.
func (g *Generator) truncateContent(title, content string) string {
	maxChars := g.maxTokens * 4
	if utf8.RuneCountInString(content) <= maxChars {
		return content
	}

	g.logger.Warn("Truncating chapter for metadata generation",
		"title", title, "max_chars", maxChars, "estimated_tokens", g.maxTokens)
	return string([]rune(content)[:maxChars])
}

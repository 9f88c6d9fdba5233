// Package generation produces tutor answers with OpenAI chat completions.
package generation

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/openai/openai-go"
)

const (
	// DefaultModel is the chat model used when none is configured.
	DefaultModel = "gpt-4o"

	// DefaultMaxContextTokens bounds the rendered course context.
	DefaultMaxContextTokens = 16000
)

var (
	ErrRateLimited     = errors.New("generation rate limited")
	ErrUpstream        = errors.New("generation upstream failure")
	ErrEmptyCompletion = errors.New("generation returned no text")
)

// Request is a single completion request.
type Request struct {
	SystemPrompt    string
	UserMessage     string
	Temperature     float64
	MaxOutputTokens int
}

// Options tunes a Generator.
type Options struct {
	Model            string
	MaxContextTokens int
	Logger           *slog.Logger
	Observe          func(start time.Time)
}

// Generator wraps the chat completions API.
type Generator struct {
	client           *openai.Client
	model            string
	maxContextTokens int
	logger           *slog.Logger
	observe          func(time.Time)
}

// NewGenerator creates a Generator with the given OpenAI client.
func NewGenerator(client *openai.Client, opts Options) *Generator {
	g := &Generator{
		client:           client,
		model:            opts.Model,
		maxContextTokens: opts.MaxContextTokens,
		logger:           opts.Logger,
		observe:          opts.Observe,
	}
	if g.model == "" {
		g.model = DefaultModel
	}
	if g.maxContextTokens <= 0 {
		g.maxContextTokens = DefaultMaxContextTokens
	}
	if g.logger == nil {
		g.logger = slog.Default()
	}
	return g
}

// Generate sends the system prompt and user message and returns the reply text.
func (g *Generator) Generate(ctx context.Context, req Request) (string, error) {
	params := openai.ChatCompletionNewParams{
		Messages: []openai.ChatCompletionMessageParamUnion{
			openai.SystemMessage(req.SystemPrompt),
			openai.UserMessage(req.UserMessage),
		},
		Model:       openai.ChatModel(g.model),
		Temperature: openai.Float(req.Temperature),
	}
	if req.MaxOutputTokens > 0 {
		params.MaxTokens = openai.Int(int64(req.MaxOutputTokens))
	}

	start := time.Now()
	resp, err := g.client.Chat.Completions.New(ctx, params)
	if g.observe != nil {
		g.observe(start)
	}
	if err != nil {
		var apiErr *openai.Error
		if errors.As(err, &apiErr) && apiErr.StatusCode == http.StatusTooManyRequests {
			return "", fmt.Errorf("%w: %w", ErrRateLimited, err)
		}
		return "", fmt.Errorf("%w: chat completion failed: %w", ErrUpstream, err)
	}

	if len(resp.Choices) == 0 {
		return "", ErrEmptyCompletion
	}
	text := resp.Choices[0].Message.Content
	if strings.TrimSpace(text) == "" {
		return "", ErrEmptyCompletion
	}
	return text, nil
}

// GenerateWithContext appends the passages to the system prompt and generates.
func (g *Generator) GenerateWithContext(ctx context.Context, req Request, passages []string) (string, error) {
	req.SystemPrompt = RenderContext(req.SystemPrompt, g.truncatePassages(passages))
	return g.Generate(ctx, req)
}

// RenderContext appends numbered context blocks to a system prompt.
func RenderContext(systemPrompt string, passages []string) string {
	if len(passages) == 0 {
		return systemPrompt
	}

	blocks := make([]string, len(passages))
	for i, p := range passages {
		blocks[i] = fmt.Sprintf("Context %d:\n%s", i+1, p)
	}

	var b strings.Builder
	b.WriteString(systemPrompt)
	b.WriteString("\n\nHere is relevant context from course materials:\n\n")
	b.WriteString(strings.Join(blocks, "\n\n"))
	b.WriteString("\n\nPlease use the above context to answer the user's question.")
	return b.String()
}

// truncatePassages drops trailing passages, and cuts the last kept one,
// so the rendered context stays within the token budget.
// Uses rough estimate of 4 characters per token.
func (g *Generator) truncatePassages(passages []string) []string {
	budget := g.maxContextTokens * 4
	out := make([]string, 0, len(passages))
	for _, p := range passages {
		if budget <= 0 {
			break
		}
		r := []rune(p)
		if len(r) > budget {
			g.logger.Warn("truncating course context",
				"kept_passages", len(out)+1,
				"total_passages", len(passages),
				"max_tokens", g.maxContextTokens)
			out = append(out, string(r[:budget]))
			break
		}
		out = append(out, p)
		budget -= len(r)
	}
	return out
}

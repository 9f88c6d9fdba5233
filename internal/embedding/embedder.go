package embedding

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/cenkalti/backoff/v4"
	"github.com/openai/openai-go"
)

const (
	// DefaultModel is the OpenAI model used for generating embeddings.
	DefaultModel = "text-embedding-3-small"

	// Dimension is the vector dimension for text-embedding-3-small.
	Dimension = 1536

	// DefaultBatchSize balances requests-per-minute vs tokens-per-minute rate limits.
	DefaultBatchSize = 500

	// DefaultMaxInputChars keeps a single input under the model's token limit.
	DefaultMaxInputChars = 8000

	defaultMaxElapsed = 30 * time.Second
)

var (
	// ErrEmptyInput is returned for blank text.
	ErrEmptyInput = errors.New("embedding input is empty")

	// ErrRateLimited is returned when the API keeps answering 429 after retries.
	ErrRateLimited = errors.New("embedding rate limited")

	// ErrUpstream is returned for any other API failure or malformed response.
	ErrUpstream = errors.New("embedding upstream failure")
)

// Options tunes an Embedder. Zero values select the defaults.
type Options struct {
	Model         string
	BatchSize     int
	MaxInputChars int
	MaxElapsed    time.Duration
	Logger        *slog.Logger
	// Observe is called after every upstream request, if set.
	Observe func(start time.Time)
}

// Embedder turns text into vectors. Batches are sent to OpenAI with
// exponential backoff on rate limit errors.
type Embedder struct {
	client        *Client
	model         string
	batchSize     int
	maxInputChars int
	maxElapsed    time.Duration
	logger        *slog.Logger
	observe       func(time.Time)
}

// NewEmbedder creates an Embedder with the given client.
func NewEmbedder(client *Client, opts Options) *Embedder {
	e := &Embedder{
		client:        client,
		model:         opts.Model,
		batchSize:     opts.BatchSize,
		maxInputChars: opts.MaxInputChars,
		maxElapsed:    opts.MaxElapsed,
		logger:        opts.Logger,
		observe:       opts.Observe,
	}
	if e.model == "" {
		e.model = DefaultModel
	}
	if e.batchSize <= 0 {
		e.batchSize = DefaultBatchSize
	}
	if e.maxInputChars <= 0 {
		e.maxInputChars = DefaultMaxInputChars
	}
	if e.maxElapsed <= 0 {
		e.maxElapsed = defaultMaxElapsed
	}
	if e.logger == nil {
		e.logger = slog.Default()
	}
	return e
}

// Model returns the embedding model name.
func (e *Embedder) Model() string { return e.model }

// Embed returns the vector for a single text.
func (e *Embedder) Embed(ctx context.Context, text string) ([]float32, error) {
	vecs, err := e.EmbedMany(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	return vecs[0], nil
}

// EmbedMany returns one vector per text, in input order.
func (e *Embedder) EmbedMany(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, ErrEmptyInput
	}

	inputs := make([]string, len(texts))
	for i, t := range texts {
		if strings.TrimSpace(t) == "" {
			return nil, fmt.Errorf("text %d: %w", i, ErrEmptyInput)
		}
		inputs[i] = e.truncate(t, i)
	}

	out := make([][]float32, 0, len(inputs))
	for i := 0; i < len(inputs); i += e.batchSize {
		end := min(i+e.batchSize, len(inputs))

		vecs, err := e.embedBatchWithRetry(ctx, inputs[i:end])
		if err != nil {
			return nil, fmt.Errorf("batch %d-%d: %w", i, end, err)
		}
		out = append(out, vecs...)
	}
	return out, nil
}

func (e *Embedder) truncate(text string, idx int) string {
	if utf8.RuneCountInString(text) <= e.maxInputChars {
		return text
	}
	e.logger.Warn("truncating embedding input",
		"index", idx,
		"max_chars", e.maxInputChars,
		"chars", utf8.RuneCountInString(text))
	return string([]rune(text)[:e.maxInputChars])
}

// embedBatchWithRetry embeds a single batch. Rate limit errors (HTTP 429)
// are retried with exponential backoff, everything else fails immediately.
func (e *Embedder) embedBatchWithRetry(ctx context.Context, texts []string) ([][]float32, error) {
	var embeddings [][]float32

	operation := func() error {
		start := time.Now()
		resp, err := e.client.client.Embeddings.New(ctx, openai.EmbeddingNewParams{
			Input: openai.EmbeddingNewParamsInputUnion{
				OfArrayOfStrings: texts,
			},
			Model: openai.EmbeddingModel(e.model),
		})
		if e.observe != nil {
			e.observe(start)
		}
		if err != nil {
			if isRateLimitError(err) {
				return err
			}
			return backoff.Permanent(fmt.Errorf("%w: %w", ErrUpstream, err))
		}

		vecs, err := orderByIndex(resp.Data, len(texts))
		if err != nil {
			return backoff.Permanent(err)
		}
		embeddings = vecs
		return nil
	}

	b := backoff.NewExponentialBackOff()
	b.InitialInterval = 500 * time.Millisecond
	b.MaxInterval = 10 * time.Second
	b.MaxElapsedTime = e.maxElapsed

	if err := backoff.Retry(operation, backoff.WithContext(b, ctx)); err != nil {
		if isRateLimitError(err) {
			return nil, fmt.Errorf("%w: %w", ErrRateLimited, err)
		}
		if ctxErr := ctx.Err(); ctxErr != nil && !errors.Is(err, ErrUpstream) {
			return nil, fmt.Errorf("%w: %w", ErrUpstream, ctxErr)
		}
		return nil, err
	}
	return embeddings, nil
}

// orderByIndex places every returned vector at the position given by its
// index field. Upstream may answer out of order.
func orderByIndex(data []openai.Embedding, n int) ([][]float32, error) {
	if len(data) != n {
		return nil, fmt.Errorf("%w: got %d embeddings for %d inputs", ErrUpstream, len(data), n)
	}
	out := make([][]float32, n)
	for _, d := range data {
		idx := int(d.Index)
		if idx < 0 || idx >= n {
			return nil, fmt.Errorf("%w: embedding index %d out of range", ErrUpstream, d.Index)
		}
		if out[idx] != nil {
			return nil, fmt.Errorf("%w: duplicate embedding index %d", ErrUpstream, d.Index)
		}
		if len(d.Embedding) == 0 {
			return nil, fmt.Errorf("%w: empty embedding at index %d", ErrUpstream, d.Index)
		}
		out[idx] = toFloat32(d.Embedding)
	}
	return out, nil
}

func isRateLimitError(err error) bool {
	var apiErr *openai.Error
	if errors.As(err, &apiErr) {
		return apiErr.StatusCode == http.StatusTooManyRequests
	}
	return false
}

// toFloat32 converts []float64 to []float32.
// OpenAI API returns float64, but storage uses float32.
func toFloat32(f64 []float64) []float32 {
	f32 := make([]float32, len(f64))
	for i, v := range f64 {
		f32[i] = float32(v)
	}
	return f32
}

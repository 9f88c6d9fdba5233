// Package chat answers learner questions from course material: it embeds
// the question, searches the vector index, generates a grounded answer,
// attaches citations and records the exchange.
package chat

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/bull/robotics-tutor/internal/apperr"
	"github.com/bull/robotics-tutor/internal/config"
	"github.com/bull/robotics-tutor/internal/database"
	"github.com/bull/robotics-tutor/internal/embedding"
	"github.com/bull/robotics-tutor/internal/generation"
	"github.com/bull/robotics-tutor/internal/metrics"
	"github.com/bull/robotics-tutor/internal/storage"
)

// Embedder turns a query into a vector.
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
}

// Searcher finds course chunks similar to a vector. It never fails.
type Searcher interface {
	Search(ctx context.Context, q storage.SearchQuery) []storage.SearchHit
}

// Generator writes an answer from a prompt and context passages.
type Generator interface {
	GenerateWithContext(ctx context.Context, req generation.Request, passages []string) (string, error)
}

// ChapterStore resolves chapter metadata.
type ChapterStore interface {
	GetChapter(ctx context.Context, id string) (*database.Chapter, error)
}

// MessageStore persists chat history.
type MessageStore interface {
	Create(ctx context.Context, m *database.ChatMessage) error
	Get(ctx context.Context, userID, id string) (*database.ChatMessage, error)
	ListBySession(ctx context.Context, userID, sessionID string) ([]*database.ChatMessage, error)
	Rate(ctx context.Context, userID, id string, rating int, helpful *bool) (*database.ChatMessage, error)
}

// Config holds the pipeline constants.
type Config struct {
	CourseName      string
	MaxQueryLength  int
	SearchLimit     int
	MinScore        float64
	Temperature     float64
	MaxOutputTokens int
	MaxSources      int
	ExcerptLength   int
	Timeout         time.Duration
}

// DefaultConfig returns the standard pipeline settings.
func DefaultConfig() Config {
	return Config{
		CourseName:      "Physical AI & Humanoid Robotics Course",
		MaxQueryLength:  5000,
		SearchLimit:     5,
		MinScore:        0.6,
		Temperature:     0.7,
		MaxOutputTokens: 1000,
		MaxSources:      5,
		ExcerptLength:   200,
		Timeout:         60 * time.Second,
	}
}

// ConfigFrom converts the loaded chat settings. Zero counts, durations and
// names keep their defaults; MinScore and Temperature are taken as given
// since zero is a valid value for both.
func ConfigFrom(c config.ChatConfig) Config {
	cfg := DefaultConfig()
	if c.CourseName != "" {
		cfg.CourseName = c.CourseName
	}
	if c.MaxQueryLength > 0 {
		cfg.MaxQueryLength = c.MaxQueryLength
	}
	if c.SearchLimit > 0 {
		cfg.SearchLimit = c.SearchLimit
	}
	cfg.MinScore = c.MinScore
	cfg.Temperature = c.Temperature
	if c.MaxOutputTokens > 0 {
		cfg.MaxOutputTokens = c.MaxOutputTokens
	}
	if c.MaxSources > 0 {
		cfg.MaxSources = c.MaxSources
	}
	if c.ExcerptLength > 0 {
		cfg.ExcerptLength = c.ExcerptLength
	}
	if c.PipelineTimeout > 0 {
		cfg.Timeout = c.PipelineTimeout
	}
	return cfg
}

// Deps are the collaborators of a Service. Logger, Metrics, Now and NewID
// are optional.
type Deps struct {
	Embedder  Embedder
	Searcher  Searcher
	Generator Generator
	Chapters  ChapterStore
	Messages  MessageStore
	Logger    *slog.Logger
	Metrics   *metrics.Metrics
	Now       func() time.Time
	NewID     func() string
}

// Service is the query orchestrator.
type Service struct {
	cfg       Config
	embedder  Embedder
	searcher  Searcher
	generator Generator
	chapters  ChapterStore
	messages  MessageStore
	logger    *slog.Logger
	metrics   *metrics.Metrics
	now       func() time.Time
	newID     func() string
}

// NewService wires a Service.
func NewService(cfg Config, deps Deps) *Service {
	s := &Service{
		cfg:       cfg,
		embedder:  deps.Embedder,
		searcher:  deps.Searcher,
		generator: deps.Generator,
		chapters:  deps.Chapters,
		messages:  deps.Messages,
		logger:    deps.Logger,
		metrics:   deps.Metrics,
		now:       deps.Now,
		newID:     deps.NewID,
	}
	if s.logger == nil {
		s.logger = slog.Default()
	}
	if s.now == nil {
		s.now = func() time.Time { return time.Now().UTC() }
	}
	if s.newID == nil {
		s.newID = uuid.NewString
	}
	return s
}

const chatServiceName = "Chat Service"

// Answer runs the full question-answering pipeline. Failures are either
// Validation or ServiceUnavailable apperr errors.
func (s *Service) Answer(ctx context.Context, req Request) (res *Result, err error) {
	defer func() {
		if r := recover(); r != nil {
			s.logger.Error("chat pipeline panic", "panic", r)
			res, err = nil, apperr.ServiceUnavailable(chatServiceName, "unexpected error", fmt.Errorf("panic: %v", r))
		}
		s.recordOutcome(res, err)
	}()

	if err := s.validate(req); err != nil {
		return nil, err
	}

	ctx, cancel := context.WithTimeout(ctx, s.cfg.Timeout)
	defer cancel()

	res, err = s.answer(ctx, req)
	if err == nil {
		return res, nil
	}
	if _, ok := apperr.As(err); ok {
		return nil, err
	}
	s.logger.Error("chat service error", "user_id", req.UserID, "error", err)
	return nil, apperr.ServiceUnavailable(chatServiceName, "unexpected error", err)
}

func (s *Service) recordOutcome(res *Result, err error) {
	switch {
	case err == nil && res != nil && res.Response == FallbackResponse:
		s.metrics.ChatAnswer(metrics.OutcomeFallback)
	case err == nil:
		s.metrics.ChatAnswer(metrics.OutcomeAnswered)
	case apperr.Is(err, apperr.KindValidation):
		s.metrics.ChatAnswer(metrics.OutcomeInvalid)
	default:
		s.metrics.ChatAnswer(metrics.OutcomeUnavailable)
	}
}

func (s *Service) validate(req Request) error {
	if strings.TrimSpace(req.Query) == "" {
		return apperr.Validation("Query cannot be empty", map[string]any{"field": "query"})
	}
	if utf8.RuneCountInString(req.Query) > s.cfg.MaxQueryLength {
		return apperr.Validation(
			fmt.Sprintf("Query is too long (max %d characters)", s.cfg.MaxQueryLength),
			map[string]any{"field": "query", "max_length": s.cfg.MaxQueryLength})
	}
	if strings.TrimSpace(req.UserID) == "" {
		return apperr.Validation("User is required", map[string]any{"field": "user_id"})
	}
	return nil
}

func (s *Service) answer(ctx context.Context, req Request) (*Result, error) {
	mode := ParseMode(req.Mode)
	difficulty := ParseDifficulty(req.Difficulty)
	intent := ParseIntent(req.Intent)

	s.logger.Info("processing chat query",
		"user_id", req.UserID,
		"mode", mode,
		"intent", intent,
		"query", truncateRunes(req.Query, 100))

	vector, err := s.embedder.Embed(ctx, req.Query)
	if err != nil {
		return nil, s.upstreamError(ctx, "OpenAI", "Failed to generate embedding", err)
	}

	moduleSlug := req.ModuleSlug
	if mode == ModeChapter && moduleSlug == "" && req.ChapterID != "" {
		moduleSlug = s.moduleOfChapter(ctx, req.ChapterID)
	}

	query := storage.SearchQuery{
		Vector:   vector,
		Limit:    s.cfg.SearchLimit,
		MinScore: s.cfg.MinScore,
	}
	if mode.Filtered() {
		query.ModuleSlug = moduleSlug
	}
	hits := s.searcher.Search(ctx, query)

	var response string
	if len(hits) == 0 {
		s.logger.Warn("no relevant course material for query",
			"user_id", req.UserID,
			"module_slug", query.ModuleSlug,
			"query", truncateRunes(req.Query, 100))
		response = FallbackResponse
	} else {
		passages := make([]string, len(hits))
		for i, h := range hits {
			passages[i] = h.Content
		}
		response, err = s.generator.GenerateWithContext(ctx, generation.Request{
			SystemPrompt:    BuildSystemPrompt(s.cfg.CourseName, difficulty, moduleSlug),
			UserMessage:     req.Query,
			Temperature:     s.cfg.Temperature,
			MaxOutputTokens: s.cfg.MaxOutputTokens,
		}, passages)
		if err != nil {
			return nil, s.upstreamError(ctx, "OpenAI", "Failed to generate response", err)
		}
	}

	sources := s.citations(ctx, hits)
	followUps := FollowUps(intent, difficulty)

	msg, err := s.persist(ctx, req, response, sources, intent, difficulty, moduleSlug)
	if err != nil {
		return nil, err
	}

	topics := make([]string, len(sources))
	for i, c := range sources {
		topics[i] = c.ChapterTitle
	}

	s.logger.Info("chat query answered",
		"message_id", msg.ID,
		"sources", len(sources),
		"fallback", len(hits) == 0)

	return &Result{
		MessageID: msg.ID,
		Response:  response,
		Sources:   sources,
		ConversationContext: ConversationContext{
			SessionID:       optional(req.ConversationSessionID),
			Topics:          topics,
			NextSuggestions: followUps,
		},
		FollowUpOptions: followUps,
		CreatedAt:       msg.CreatedAt,
	}, nil
}

// upstreamError reports a failed OpenAI call as ServiceUnavailable.
func (s *Service) upstreamError(ctx context.Context, service, msg string, err error) error {
	switch {
	case errors.Is(err, embedding.ErrRateLimited), errors.Is(err, generation.ErrRateLimited):
		msg = "Rate limit exceeded"
	case errors.Is(ctx.Err(), context.DeadlineExceeded):
		return apperr.ServiceUnavailable(chatServiceName, "request timed out", err)
	}
	s.logger.Error("upstream call failed", "service", service, "error", err)
	return apperr.ServiceUnavailable(service, msg, err)
}

func (s *Service) moduleOfChapter(ctx context.Context, chapterID string) string {
	ch, err := s.chapters.GetChapter(ctx, chapterID)
	if err != nil {
		s.logger.Debug("chapter context not resolved", "chapter_id", chapterID, "error", err)
		return ""
	}
	return ch.ModuleSlug
}

// citations resolves chapter titles for the top hits concurrently. Hits
// whose chapter cannot be loaded are dropped; order follows the hits.
func (s *Service) citations(ctx context.Context, hits []storage.SearchHit) []Citation {
	if len(hits) > s.cfg.MaxSources {
		hits = hits[:s.cfg.MaxSources]
	}

	resolved := make([]*Citation, len(hits))
	var g errgroup.Group
	for i, hit := range hits {
		if hit.ChapterID == "" {
			continue
		}
		g.Go(func() error {
			defer func() {
				if r := recover(); r != nil {
					s.logger.Error("citation lookup panic", "chapter_id", hit.ChapterID, "panic", r)
				}
			}()
			ch, err := s.chapters.GetChapter(ctx, hit.ChapterID)
			if err != nil {
				if !errors.Is(err, database.ErrNotFound) {
					s.logger.Warn("citation lookup failed", "chapter_id", hit.ChapterID, "error", err)
				}
				return nil
			}
			if ch == nil {
				return nil
			}
			module := hit.ModuleSlug
			if module == "" {
				module = "unknown"
			}
			resolved[i] = &Citation{
				ChapterID:      hit.ChapterID,
				ChapterTitle:   ch.Title,
				ModuleSlug:     module,
				Excerpt:        truncateRunes(hit.Content, s.cfg.ExcerptLength),
				RelevanceScore: hit.Score,
			}
			return nil
		})
	}
	_ = g.Wait()

	out := make([]Citation, 0, len(resolved))
	for _, c := range resolved {
		if c != nil {
			out = append(out, *c)
		}
	}
	return out
}

func (s *Service) persist(ctx context.Context, req Request, response string, sources []Citation,
	intent Intent, difficulty Difficulty, moduleSlug string) (*database.ChatMessage, error) {

	depth := 0
	if req.ParentMessageID != "" {
		parent, err := s.messages.Get(ctx, req.UserID, req.ParentMessageID)
		switch {
		case err == nil:
			depth = parent.ClarificationDepth + 1
		case errors.Is(err, database.ErrNotFound):
			depth = 1
		default:
			return nil, fmt.Errorf("load parent message: %w", err)
		}
	}

	raw, err := json.Marshal(sources)
	if err != nil {
		return nil, fmt.Errorf("encode sources: %w", err)
	}

	msg := &database.ChatMessage{
		ID:                    s.newID(),
		UserID:                req.UserID,
		Query:                 req.Query,
		Response:              response,
		ConversationSessionID: optional(req.ConversationSessionID),
		ParentMessageID:       optional(req.ParentMessageID),
		Intent:                string(intent),
		ContextChapterID:      optional(req.ChapterID),
		ContextModuleSlug:     optional(moduleSlug),
		UserDifficultyLevel:   string(difficulty),
		ClarificationDepth:    depth,
		WasFollowUp:           req.ParentMessageID != "",
		Sources:               string(raw),
		CreatedAt:             s.now(),
	}
	if err := s.messages.Create(ctx, msg); err != nil {
		return nil, fmt.Errorf("store chat message: %w", err)
	}
	return msg, nil
}

func optional(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

func truncateRunes(s string, n int) string {
	if n <= 0 || utf8.RuneCountInString(s) <= n {
		return s
	}
	return string([]rune(s)[:n])
}

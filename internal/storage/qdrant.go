package storage

import (
	"context"
	"errors"
	"fmt"
	"hash/fnv"
	"log/slog"
	"sort"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/qdrant/go-client/qdrant"

	"github.com/bull/robotics-tutor/internal/config"
	"github.com/bull/robotics-tutor/internal/metrics"
)

// PointsAPI is the subset of *qdrant.Client used by QdrantStorage.
type PointsAPI interface {
	HealthCheck(ctx context.Context) (*qdrant.HealthCheckReply, error)
	ListCollections(ctx context.Context) ([]string, error)
	CreateCollection(ctx context.Context, req *qdrant.CreateCollection) error
	CreateFieldIndex(ctx context.Context, req *qdrant.CreateFieldIndexCollection) (*qdrant.UpdateResult, error)
	DeleteCollection(ctx context.Context, name string) error
	Upsert(ctx context.Context, req *qdrant.UpsertPoints) (*qdrant.UpdateResult, error)
	Delete(ctx context.Context, req *qdrant.DeletePoints) (*qdrant.UpdateResult, error)
	Query(ctx context.Context, req *qdrant.QueryPoints) ([]*qdrant.ScoredPoint, error)
	Close() error
}

// Options configures a QdrantStorage built around an existing client.
type Options struct {
	Collection      string
	Dimension       int
	RetryMaxElapsed time.Duration
	Logger          *slog.Logger
	Metrics         *metrics.Metrics
}

// QdrantStorage stores chunk vectors in a single Qdrant collection and
// answers similarity searches over them.
type QdrantStorage struct {
	client     PointsAPI
	collection string
	dimension  int
	maxElapsed time.Duration
	logger     *slog.Logger
	metrics    *metrics.Metrics
}

// NewQdrantStorage connects to Qdrant over gRPC and waits for it to become
// healthy, retrying with exponential backoff. It fails fast with
// ErrQdrantUnreachable once the retry budget is spent.
func NewQdrantStorage(ctx context.Context, cfg config.QdrantConfig, logger *slog.Logger, m *metrics.Metrics) (*QdrantStorage, error) {
	client, err := qdrant.NewClient(&qdrant.Config{
		Host:   cfg.Host,
		Port:   cfg.Port,
		APIKey: cfg.APIKey,
		UseTLS: cfg.UseTLS,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create qdrant client: %w", err)
	}

	s := NewWithClient(client, Options{
		Collection: cfg.Collection,
		Dimension:  cfg.VectorDimension,
		Logger:     logger,
		Metrics:    m,
	})

	if err := s.healthCheckWithRetry(ctx); err != nil {
		client.Close()
		return nil, fmt.Errorf("%w: %v", ErrQdrantUnreachable, err)
	}
	return s, nil
}

// NewWithClient wraps an already connected client.
func NewWithClient(client PointsAPI, opts Options) *QdrantStorage {
	s := &QdrantStorage{
		client:     client,
		collection: opts.Collection,
		dimension:  opts.Dimension,
		maxElapsed: opts.RetryMaxElapsed,
		logger:     opts.Logger,
		metrics:    opts.Metrics,
	}
	if s.collection == "" {
		s.collection = DefaultCollection
	}
	if s.dimension <= 0 {
		s.dimension = DefaultVectorDimension
	}
	if s.maxElapsed <= 0 {
		s.maxElapsed = 30 * time.Second
	}
	if s.logger == nil {
		s.logger = slog.Default()
	}
	return s
}

// Collection returns the collection name.
func (s *QdrantStorage) Collection() string { return s.collection }

func (s *QdrantStorage) newBackoff(ctx context.Context) backoff.BackOff {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = 500 * time.Millisecond
	b.MaxInterval = 10 * time.Second
	b.MaxElapsedTime = s.maxElapsed
	return backoff.WithContext(b, ctx)
}

func (s *QdrantStorage) healthCheckWithRetry(ctx context.Context) error {
	return backoff.Retry(func() error { return s.Health(ctx) }, s.newBackoff(ctx))
}

// Health performs a single health check against Qdrant.
func (s *QdrantStorage) Health(ctx context.Context) error {
	result, err := s.client.HealthCheck(ctx)
	if err != nil {
		return fmt.Errorf("health check failed: %w", err)
	}
	if result == nil || result.Title == "" {
		return errors.New("health check returned invalid response")
	}
	return nil
}

// EnsureCollection creates the collection with a cosine "content" vector of
// the configured dimension and keyword indexes on module_slug and
// chapter_id. Idempotent.
func (s *QdrantStorage) EnsureCollection(ctx context.Context) error {
	collections, err := s.client.ListCollections(ctx)
	if err != nil {
		return fmt.Errorf("failed to list collections: %w", err)
	}
	for _, name := range collections {
		if name == s.collection {
			return nil
		}
	}

	err = s.client.CreateCollection(ctx, &qdrant.CreateCollection{
		CollectionName: s.collection,
		VectorsConfig: qdrant.NewVectorsConfigMap(map[string]*qdrant.VectorParams{
			VectorName: {
				Size:     uint64(s.dimension),
				Distance: qdrant.Distance_Cosine,
			},
		}),
	})
	if err != nil {
		return fmt.Errorf("failed to create collection: %w", err)
	}

	for _, field := range []string{payloadModuleSlug, payloadChapterID} {
		_, err := s.client.CreateFieldIndex(ctx, &qdrant.CreateFieldIndexCollection{
			CollectionName: s.collection,
			FieldName:      field,
			FieldType:      qdrant.FieldType_FieldTypeKeyword.Enum(),
		})
		if err != nil {
			return fmt.Errorf("failed to create index for field %s: %w", field, err)
		}
	}
	return nil
}

// ClearCollection drops and recreates the collection.
func (s *QdrantStorage) ClearCollection(ctx context.Context) error {
	if err := s.client.DeleteCollection(ctx, s.collection); err != nil {
		return fmt.Errorf("failed to delete collection: %w", err)
	}
	return s.EnsureCollection(ctx)
}

// Close closes the Qdrant client connection.
func (s *QdrantStorage) Close() error {
	if s.client != nil {
		return s.client.Close()
	}
	return nil
}

// PointID reduces an embedding id to a Qdrant point id: FNV-1a 64 masked
// to 63 bits. Distinct ids may collide; the full id is kept in the payload.
func PointID(id string) uint64 {
	h := fnv.New64a()
	_, _ = h.Write([]byte(id))
	return h.Sum64() & (1<<63 - 1)
}

func (s *QdrantStorage) upsertWithRetry(ctx context.Context, points []*qdrant.PointStruct) error {
	start := time.Now()
	defer s.metrics.ObserveUpstream("qdrant", "upsert", start)

	operation := func() error {
		_, err := s.client.Upsert(ctx, &qdrant.UpsertPoints{
			CollectionName: s.collection,
			Points:         points,
		})
		return err
	}
	return backoff.Retry(operation, s.newBackoff(ctx))
}

func (s *QdrantStorage) toPoint(p EmbeddingPoint) (*qdrant.PointStruct, error) {
	if strings.TrimSpace(p.ID) == "" {
		return nil, fmt.Errorf("%w: empty id", ErrInvalidPoint)
	}
	if len(p.Vector) != s.dimension {
		return nil, fmt.Errorf("%w: point has %d dimensions, expected %d",
			ErrDimensionMismatch, len(p.Vector), s.dimension)
	}

	raw := make(map[string]any, len(p.Metadata)+4)
	for k, v := range p.Metadata {
		raw[k] = v
	}
	raw[payloadContent] = p.Content
	raw[payloadChapterID] = p.ChapterID
	raw[payloadModuleSlug] = p.ModuleSlug
	raw[payloadEmbeddingID] = p.ID

	payload, err := qdrant.TryValueMap(raw)
	if err != nil {
		return nil, fmt.Errorf("%w: payload: %v", ErrInvalidPoint, err)
	}

	return &qdrant.PointStruct{
		Id: qdrant.NewIDNum(PointID(p.ID)),
		Vectors: qdrant.NewVectorsMap(map[string]*qdrant.Vector{
			VectorName: qdrant.NewVector(p.Vector...),
		}),
		Payload: payload,
	}, nil
}

// Upsert stores a single point.
func (s *QdrantStorage) Upsert(ctx context.Context, p EmbeddingPoint) error {
	point, err := s.toPoint(p)
	if err != nil {
		return err
	}
	if err := s.upsertWithRetry(ctx, []*qdrant.PointStruct{point}); err != nil {
		return fmt.Errorf("failed to upsert point %s: %w", p.ID, err)
	}
	return nil
}

// UpsertBatch stores points in sub-batches of 100. Invalid points and
// failed sub-batches are reported in the result and do not stop the rest.
func (s *QdrantStorage) UpsertBatch(ctx context.Context, points []EmbeddingPoint) BatchResult {
	result := BatchResult{Total: len(points)}

	type pending struct {
		id    string
		point *qdrant.PointStruct
	}
	valid := make([]pending, 0, len(points))
	for _, p := range points {
		point, err := s.toPoint(p)
		if err != nil {
			result.Failures = append(result.Failures, BatchFailure{ID: p.ID, Reason: err.Error()})
			continue
		}
		valid = append(valid, pending{id: p.ID, point: point})
	}

	for i := 0; i < len(valid); i += upsertBatchSize {
		end := min(i+upsertBatchSize, len(valid))
		batch := valid[i:end]

		structs := make([]*qdrant.PointStruct, len(batch))
		for j, p := range batch {
			structs[j] = p.point
		}

		if err := s.upsertWithRetry(ctx, structs); err != nil {
			s.logger.Error("upsert batch failed",
				"collection", s.collection,
				"from", i,
				"to", end,
				"error", err)
			for _, p := range batch {
				result.Failures = append(result.Failures, BatchFailure{ID: p.id, Reason: err.Error()})
			}
			continue
		}
		result.Succeeded += len(batch)
	}
	return result
}

// DeleteByChapter removes every point whose chapter_id matches.
func (s *QdrantStorage) DeleteByChapter(ctx context.Context, chapterID string) error {
	_, err := s.client.Delete(ctx, &qdrant.DeletePoints{
		CollectionName: s.collection,
		Points: qdrant.NewPointsSelectorFilter(&qdrant.Filter{
			Must: []*qdrant.Condition{qdrant.NewMatch(payloadChapterID, chapterID)},
		}),
	})
	if err != nil {
		return fmt.Errorf("failed to delete points for chapter %s: %w", chapterID, err)
	}
	return nil
}

// Search returns hits scoring at least q.MinScore, most similar first.
// Search never fails: index errors are logged as a degraded search and
// answered with no hits.
func (s *QdrantStorage) Search(ctx context.Context, q SearchQuery) []SearchHit {
	hits, err := s.search(ctx, q)
	if err != nil {
		s.metrics.DegradedSearch()
		s.logger.Error("vector search degraded, returning no results",
			"collection", s.collection,
			"module_slug", q.ModuleSlug,
			"error", err)
		return []SearchHit{}
	}
	return hits
}

func (s *QdrantStorage) search(ctx context.Context, q SearchQuery) ([]SearchHit, error) {
	if len(q.Vector) != s.dimension {
		return nil, fmt.Errorf("%w: query has %d dimensions, expected %d",
			ErrDimensionMismatch, len(q.Vector), s.dimension)
	}
	limit := q.Limit
	if limit <= 0 {
		limit = 5
	}

	req := &qdrant.QueryPoints{
		CollectionName: s.collection,
		Query:          qdrant.NewQuery(q.Vector...),
		Using:          qdrant.PtrOf(VectorName),
		Limit:          qdrant.PtrOf(uint64(limit)),
		ScoreThreshold: qdrant.PtrOf(float32(q.MinScore)),
		WithPayload:    qdrant.NewWithPayload(true),
	}
	if q.ModuleSlug != "" {
		req.Filter = &qdrant.Filter{
			Must: []*qdrant.Condition{qdrant.NewMatch(payloadModuleSlug, q.ModuleSlug)},
		}
	}

	start := time.Now()
	results, err := s.client.Query(ctx, req)
	s.metrics.ObserveUpstream("qdrant", "search", start)
	if err != nil {
		return nil, fmt.Errorf("failed to search: %w", err)
	}

	hits := make([]SearchHit, 0, len(results))
	for _, r := range results {
		score := float64(r.GetScore())
		if score < q.MinScore {
			continue
		}
		hits = append(hits, hitFromPayload(score, r.GetPayload()))
	}
	sort.SliceStable(hits, func(i, j int) bool { return hits[i].Score > hits[j].Score })
	return hits, nil
}

func hitFromPayload(score float64, payload map[string]*qdrant.Value) SearchHit {
	hit := SearchHit{
		Score:      score,
		Content:    payload[payloadContent].GetStringValue(),
		ChapterID:  payload[payloadChapterID].GetStringValue(),
		ModuleSlug: payload[payloadModuleSlug].GetStringValue(),
		Metadata:   make(map[string]any),
	}
	for k, v := range payload {
		switch k {
		case payloadContent, payloadChapterID, payloadModuleSlug:
			continue
		}
		hit.Metadata[k] = valueToAny(v)
	}
	return hit
}

// valueToAny converts a payload value into plain Go values.
func valueToAny(v *qdrant.Value) any {
	switch k := v.GetKind().(type) {
	case *qdrant.Value_StringValue:
		return k.StringValue
	case *qdrant.Value_IntegerValue:
		return k.IntegerValue
	case *qdrant.Value_DoubleValue:
		return k.DoubleValue
	case *qdrant.Value_BoolValue:
		return k.BoolValue
	case *qdrant.Value_StructValue:
		out := make(map[string]any, len(k.StructValue.GetFields()))
		for name, field := range k.StructValue.GetFields() {
			out[name] = valueToAny(field)
		}
		return out
	case *qdrant.Value_ListValue:
		out := make([]any, 0, len(k.ListValue.GetValues()))
		for _, item := range k.ListValue.GetValues() {
			out = append(out, valueToAny(item))
		}
		return out
	default:
		return nil
	}
}

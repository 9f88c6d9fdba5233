package storage

// EmbeddingPoint is one chunk vector to be written to the index.
type EmbeddingPoint struct {
	ID         string // embedding record id, reduced to a point id with PointID
	Vector     []float32
	Content    string
	ChapterID  string
	ModuleSlug string
	Metadata   map[string]any // extra payload, reserved keys take precedence
}

// SearchQuery describes a similarity search.
type SearchQuery struct {
	Vector     []float32
	Limit      int
	MinScore   float64
	ModuleSlug string // empty means all modules
}

// SearchHit is a matched chunk with its similarity score.
type SearchHit struct {
	Score      float64
	Content    string
	ChapterID  string
	ModuleSlug string
	Metadata   map[string]any
}

// BatchFailure records a point that could not be stored.
type BatchFailure struct {
	ID     string
	Reason string
}

// BatchResult summarizes an UpsertBatch call.
type BatchResult struct {
	Total     int
	Succeeded int
	Failures  []BatchFailure
}

// Failed reports whether the point with id is in Failures.
func (r BatchResult) Failed(id string) bool {
	for _, f := range r.Failures {
		if f.ID == id {
			return true
		}
	}
	return false
}

// Payload keys written for every point.
const (
	payloadContent     = "content"
	payloadChapterID   = "chapter_id"
	payloadModuleSlug  = "module_slug"
	payloadEmbeddingID = "embedding_id"
)

// VectorName is the named vector holding chunk embeddings.
const VectorName = "content"

// DefaultCollection is used when no collection name is configured.
const DefaultCollection = "robotics_embeddings"

// DefaultVectorDimension is the embedding size for text-embedding-3-small.
const DefaultVectorDimension = 1536

const upsertBatchSize = 100

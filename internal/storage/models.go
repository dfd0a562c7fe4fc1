package storage

import (
	"context"
	"strconv"

	"github.com/bull/docqa-server/internal/chunker"
)

// Payload keys written for every stored vector.
const (
	SessionKey    = "session_id"
	SourceKey     = "source"
	TitleKey      = "title"
	UnitKey       = "unit"
	ChunkIndexKey = "chunk_index"
	PageKey       = "page"
	StartKey      = "start"
	EndKey        = "end"
)

// Metric is the score convention a backend reports.
type Metric int

const (
	CosineSimilarity Metric = iota
	CosineDistance
	EuclideanDistance
	DotProduct
)

// Normalize maps a raw backend score onto a higher-is-better scale that
// matches cosine similarity for cosine backends.
func (m Metric) Normalize(score float64) float64 {
	switch m {
	case CosineDistance:
		return 1 - score
	case EuclideanDistance:
		return 1 / (1 + score)
	default:
		return score
	}
}

func (m Metric) String() string {
	switch m {
	case CosineSimilarity:
		return "cosine_similarity"
	case CosineDistance:
		return "cosine_distance"
	case EuclideanDistance:
		return "euclidean_distance"
	case DotProduct:
		return "dot_product"
	}
	return "unknown"
}

// Capabilities describes what a backend can do natively.
type Capabilities struct {
	NativeSessionFilter bool
	Metric              Metric
}

// StoredVector is one chunk as persisted in a backend.
type StoredVector struct {
	ID        string // UUID, generated at store time
	Embedding []float32
	Text      string
	Metadata  map[string]string
}

// Hit is a raw search match in the backend's own score convention.
type Hit struct {
	ID       string
	Text     string
	Metadata map[string]string
	Score    float64
}

// Result is a retrieved chunk with a normalized score (higher is better).
type Result struct {
	Text     string            `json:"text"`
	Metadata map[string]string `json:"metadata"`
	Score    float64           `json:"score"`
}

// Index is a vector backend. Implementations own their connection lifecycle.
//
// Search restricts matches to sessionID when the backend reports
// NativeSessionFilter; other backends ignore it and the caller filters.
type Index interface {
	Upsert(ctx context.Context, vectors []StoredVector) error
	Search(ctx context.Context, vector []float32, sessionID string, limit int) ([]Hit, error)
	DeleteSession(ctx context.Context, sessionID string) error
	Count(ctx context.Context, sessionID string) (int, error)
	Capabilities() Capabilities
	Dimension() int
	Close() error
}

// flatten converts chunk metadata into the string payload stored with a vector.
func flatten(c chunker.Chunk, source string) map[string]string {
	md := make(map[string]string, len(c.Metadata.Extra)+8)
	for k, v := range c.Metadata.Extra {
		md[k] = v
	}

	if c.Metadata.Source != "" {
		source = c.Metadata.Source
	}
	md[SourceKey] = source
	md[SessionKey] = c.Metadata.SessionID
	if c.Metadata.Title != "" {
		md[TitleKey] = c.Metadata.Title
	}

	pos := c.Metadata.Position
	md[UnitKey] = string(pos.Unit)
	md[ChunkIndexKey] = strconv.Itoa(pos.Index)
	if pos.Start > 0 {
		md[StartKey] = strconv.Itoa(pos.Start)
		md[EndKey] = strconv.Itoa(pos.End)
	}
	// Pages are cited by the last page a chunk covers
	if pos.Unit == chunker.UnitPage && pos.End > 0 {
		md[PageKey] = strconv.Itoa(pos.End)
	}
	return md
}

package storage

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/qdrant/go-client/qdrant"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/bull/docqa-server/internal/config"
)

const (
	// vectorName is the named vector holding chunk embeddings.
	vectorName = "content"

	// textKey is the payload field holding the chunk text.
	textKey = "text"

	upsertBatchSize = 100
)

// QdrantIndex stores vectors in a Qdrant collection and filters by session on
// the server.
type QdrantIndex struct {
	client     *qdrant.Client
	collection string
	dimension  int
	logger     *slog.Logger
}

// NewQdrantIndex creates a Qdrant client with health validation.
// It performs health check with retry on startup and fails fast if Qdrant is unreachable.
func NewQdrantIndex(ctx context.Context, cfg config.QdrantConfig, dimension int, logger *slog.Logger) (*QdrantIndex, error) {
	if logger == nil {
		logger = slog.Default()
	}

	// Create Qdrant client using gRPC
	client, err := qdrant.NewClient(&qdrant.Config{
		Host:   cfg.Host,
		Port:   cfg.Port,
		APIKey: cfg.APIKey,
		UseTLS: cfg.UseTLS,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create qdrant client: %w", err)
	}

	idx := &QdrantIndex{
		client:     client,
		collection: cfg.Collection,
		dimension:  dimension,
		logger:     logger,
	}

	if err := idx.healthCheckWithRetry(ctx); err != nil {
		client.Close()
		return nil, fmt.Errorf("%w: %v", ErrQdrantUnreachable, err)
	}

	return idx, nil
}

// healthCheckWithRetry performs health check with exponential backoff.
// Initial interval 500ms, max interval 10s, max elapsed 30s.
func (s *QdrantIndex) healthCheckWithRetry(ctx context.Context) error {
	exponentialBackoff := backoff.NewExponentialBackOff()
	exponentialBackoff.InitialInterval = 500 * time.Millisecond
	exponentialBackoff.MaxInterval = 10 * time.Second
	exponentialBackoff.MaxElapsedTime = 30 * time.Second

	operation := func() error {
		err := s.Health(ctx)
		if err != nil {
			s.logger.Debug("Qdrant not ready", "error", err)
		}
		return err
	}

	return backoff.Retry(operation, backoff.WithContext(exponentialBackoff, ctx))
}

// Health performs a single health check against Qdrant.
func (s *QdrantIndex) Health(ctx context.Context) error {
	result, err := s.client.HealthCheck(ctx)
	if err != nil {
		return fmt.Errorf("health check failed: %w", err)
	}

	if result == nil || result.Title == "" {
		return fmt.Errorf("health check returned invalid response")
	}

	return nil
}

// collectionName returns the configured collection. A missing name is a
// configuration error reported when the index is first used.
func (s *QdrantIndex) collectionName() (string, error) {
	if err := config.Require("VECTOR_INDEX_NAME", s.collection); err != nil {
		return "", err
	}
	return s.collection, nil
}

// EnsureCollection creates the collection with a cosine "content" vector and
// keyword indexes on the session and source fields.
// Idempotent - safe to call multiple times.
func (s *QdrantIndex) EnsureCollection(ctx context.Context) error {
	name, err := s.collectionName()
	if err != nil {
		return err
	}

	collections, err := s.client.ListCollections(ctx)
	if err != nil {
		return fmt.Errorf("failed to list collections: %w", err)
	}
	for _, existing := range collections {
		if existing == name {
			return nil
		}
	}

	err = s.client.CreateCollection(ctx, &qdrant.CreateCollection{
		CollectionName: name,
		VectorsConfig: qdrant.NewVectorsConfigMap(map[string]*qdrant.VectorParams{
			vectorName: {
				Size:     uint64(s.dimension),
				Distance: qdrant.Distance_Cosine,
			},
		}),
	})
	if err != nil {
		return fmt.Errorf("failed to create collection: %w", err)
	}

	if err := s.createPayloadIndexes(ctx, name); err != nil {
		return fmt.Errorf("failed to create payload indexes: %w", err)
	}

	s.logger.Info("Created collection", "collection", name, "dimension", s.dimension)
	return nil
}

// createPayloadIndexes indexes the fields every query and delete filters on.
func (s *QdrantIndex) createPayloadIndexes(ctx context.Context, name string) error {
	for _, field := range []string{SessionKey, SourceKey} {
		_, err := s.client.CreateFieldIndex(ctx, &qdrant.CreateFieldIndexCollection{
			CollectionName: name,
			FieldName:      field,
			FieldType:      qdrant.FieldType_FieldTypeKeyword.Enum(),
		})
		if err != nil {
			return fmt.Errorf("failed to create index for field %s: %w", field, err)
		}
	}
	return nil
}

// Upsert stores vectors in batches of 100.
func (s *QdrantIndex) Upsert(ctx context.Context, vectors []StoredVector) error {
	name, err := s.collectionName()
	if err != nil {
		return err
	}
	for i, v := range vectors {
		if len(v.Embedding) != s.dimension {
			return fmt.Errorf("%w: vector %d has %d dimensions, expected %d",
				ErrDimensionMismatch, i, len(v.Embedding), s.dimension)
		}
	}

	for i := 0; i < len(vectors); i += upsertBatchSize {
		end := min(i+upsertBatchSize, len(vectors))

		points := make([]*qdrant.PointStruct, 0, end-i)
		for _, v := range vectors[i:end] {
			payload := make(map[string]any, len(v.Metadata)+1)
			for k, val := range v.Metadata {
				payload[k] = val
			}
			payload[textKey] = v.Text

			points = append(points, &qdrant.PointStruct{
				Id: qdrant.NewIDUUID(v.ID),
				Vectors: qdrant.NewVectorsMap(map[string]*qdrant.Vector{
					vectorName: qdrant.NewVector(v.Embedding...),
				}),
				Payload: qdrant.NewValueMap(payload),
			})
		}

		_, err := s.client.Upsert(ctx, &qdrant.UpsertPoints{
			CollectionName: name,
			Points:         points,
			Wait:           qdrant.PtrOf(true),
		})
		if err != nil {
			return fmt.Errorf("failed to upsert batch %d-%d: %w", i, end, collectionError(err))
		}
	}
	return nil
}

// Search runs a filtered similarity query against the "content" vector.
func (s *QdrantIndex) Search(ctx context.Context, vector []float32, sessionID string, limit int) ([]Hit, error) {
	name, err := s.collectionName()
	if err != nil {
		return nil, err
	}
	if len(vector) != s.dimension {
		return nil, fmt.Errorf("%w: query has %d dimensions, expected %d",
			ErrDimensionMismatch, len(vector), s.dimension)
	}

	using := vectorName
	results, err := s.client.Query(ctx, &qdrant.QueryPoints{
		CollectionName: name,
		Query:          qdrant.NewQuery(vector...),
		Using:          &using,
		Filter:         sessionFilter(sessionID),
		Limit:          qdrant.PtrOf(uint64(limit)),
		WithPayload:    qdrant.NewWithPayload(true),
		WithVectors:    qdrant.NewWithVectors(false),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to search vectors: %w", collectionError(err))
	}

	hits := make([]Hit, 0, len(results))
	for _, result := range results {
		md := make(map[string]string, len(result.Payload))
		for k, v := range result.Payload {
			if k == textKey {
				continue
			}
			md[k] = v.GetStringValue()
		}
		hits = append(hits, Hit{
			ID:       result.Id.GetUuid(),
			Text:     result.Payload[textKey].GetStringValue(),
			Metadata: md,
			Score:    float64(result.Score),
		})
	}
	return hits, nil
}

// DeleteSession deletes every point whose session_id matches.
func (s *QdrantIndex) DeleteSession(ctx context.Context, sessionID string) error {
	if sessionID == "" {
		return ErrEmptySession
	}
	name, err := s.collectionName()
	if err != nil {
		return err
	}

	_, err = s.client.Delete(ctx, &qdrant.DeletePoints{
		CollectionName: name,
		Points:         qdrant.NewPointsSelectorFilter(sessionFilter(sessionID)),
		Wait:           qdrant.PtrOf(true),
	})
	if err != nil {
		return fmt.Errorf("failed to delete session %s: %w", sessionID, err)
	}
	return nil
}

// Count returns the exact number of points stored for sessionID.
func (s *QdrantIndex) Count(ctx context.Context, sessionID string) (int, error) {
	name, err := s.collectionName()
	if err != nil {
		return 0, err
	}

	n, err := s.client.Count(ctx, &qdrant.CountPoints{
		CollectionName: name,
		Filter:         sessionFilter(sessionID),
		Exact:          qdrant.PtrOf(true),
	})
	if err != nil {
		return 0, fmt.Errorf("failed to count session %s: %w", sessionID, collectionError(err))
	}
	return int(n), nil
}

// Capabilities reports server-side filtering and cosine similarity scores.
func (s *QdrantIndex) Capabilities() Capabilities {
	return Capabilities{NativeSessionFilter: true, Metric: CosineSimilarity}
}

func (s *QdrantIndex) Dimension() int { return s.dimension }

// Close closes the Qdrant client connection.
func (s *QdrantIndex) Close() error {
	if s.client != nil {
		return s.client.Close()
	}
	return nil
}

// collectionError marks a NotFound status with ErrCollectionNotFound while
// keeping the status for retry classification.
func collectionError(err error) error {
	if status.Code(err) == codes.NotFound {
		return fmt.Errorf("%w: %w", ErrCollectionNotFound, err)
	}
	return err
}

func sessionFilter(sessionID string) *qdrant.Filter {
	if sessionID == "" {
		return nil
	}
	return &qdrant.Filter{
		Must: []*qdrant.Condition{
			qdrant.NewMatch(SessionKey, sessionID),
		},
	}
}

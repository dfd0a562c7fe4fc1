package storage

import (
	"context"
	"fmt"
	"log/slog"
	"sort"

	"github.com/google/uuid"

	"github.com/bull/docqa-server/internal/chunker"
	"github.com/bull/docqa-server/internal/config"
	"github.com/bull/docqa-server/internal/embedding"
	"github.com/bull/docqa-server/internal/retry"
)

const (
	// DefaultTopK is used when a query asks for zero or fewer results.
	DefaultTopK = 5

	// MaxTopK bounds a single query.
	MaxTopK = config.MaxTopK

	// Post-filtering backends are over-fetched by overFetchFactor and the
	// limit doubled until it reaches maxOverFetchFactor times topK.
	overFetchFactor    = 4
	maxOverFetchFactor = 64
)

// Store is the session-scoped vector store. It embeds chunks, stamps them with
// their session and source, and hides backend differences in filtering and
// scoring from callers.
type Store struct {
	embedder embedding.Embedder
	index    Index
	policy   retry.Policy
	logger   *slog.Logger
}

// NewStore creates a Store. The embedder and index must agree on dimension.
func NewStore(embedder embedding.Embedder, index Index, policy retry.Policy, logger *slog.Logger) (*Store, error) {
	if logger == nil {
		logger = slog.Default()
	}
	if embedder.Dimension() != index.Dimension() {
		return nil, fmt.Errorf("%w: embedder produces %d dimensions, index expects %d",
			ErrDimensionMismatch, embedder.Dimension(), index.Dimension())
	}
	return &Store{
		embedder: embedder,
		index:    index,
		policy:   policy,
		logger:   logger,
	}, nil
}

// Add embeds and stores chunks under sessionID. source is used for chunks that
// do not name their own. Any embedding or upsert failure aborts the whole call.
// It returns the number of vectors stored.
func (s *Store) Add(ctx context.Context, chunks []chunker.Chunk, sessionID, source string) (int, error) {
	if sessionID == "" {
		return 0, ErrEmptySession
	}
	if len(chunks) == 0 {
		return 0, nil
	}

	texts := make([]string, len(chunks))
	for i, c := range chunks {
		texts[i] = c.Text
	}

	embeddings, err := s.embedder.Embed(ctx, texts)
	if err != nil {
		return 0, fmt.Errorf("embed chunks: %w", err)
	}
	if len(embeddings) != len(chunks) {
		return 0, fmt.Errorf("embedder returned %d vectors for %d chunks", len(embeddings), len(chunks))
	}

	vectors := make([]StoredVector, len(chunks))
	for i, c := range chunks {
		if err := s.checkDimension(embeddings[i]); err != nil {
			return 0, fmt.Errorf("chunk %d: %w", i, err)
		}
		vectors[i] = StoredVector{
			ID:        uuid.New().String(),
			Embedding: embeddings[i],
			Text:      c.Text,
			Metadata:  flatten(c.WithSession(sessionID), source),
		}
	}

	err = s.policy.Do(ctx, func() error {
		return s.index.Upsert(ctx, vectors)
	}, IsRetryable)
	if err != nil {
		return 0, fmt.Errorf("upsert vectors: %w", err)
	}

	s.logger.Debug("Stored chunks", "session", sessionID, "source", source, "chunks", len(vectors))
	return len(vectors), nil
}

// Query returns up to topK chunks of sessionID most similar to queryText,
// best first. Results never belong to another session.
func (s *Store) Query(ctx context.Context, queryText, sessionID string, topK int) ([]Result, error) {
	if sessionID == "" {
		return nil, ErrEmptySession
	}
	if topK <= 0 {
		topK = DefaultTopK
	}
	if topK > MaxTopK {
		return nil, fmt.Errorf("%w: %d exceeds %d", ErrInvalidTopK, topK, MaxTopK)
	}

	embeddings, err := s.embedder.Embed(ctx, []string{queryText})
	if err != nil {
		return nil, fmt.Errorf("embed query: %w", err)
	}
	if len(embeddings) != 1 {
		return nil, fmt.Errorf("embedder returned %d vectors for 1 query", len(embeddings))
	}
	vector := embeddings[0]
	if err := s.checkDimension(vector); err != nil {
		return nil, err
	}

	caps := s.index.Capabilities()
	var hits []Hit
	if caps.NativeSessionFilter {
		hits, err = s.search(ctx, vector, sessionID, topK)
	} else {
		hits, err = s.searchPostFiltered(ctx, vector, sessionID, topK)
	}
	if err != nil {
		return nil, err
	}

	results := make([]Result, 0, len(hits))
	for _, h := range hits {
		if h.Metadata[SessionKey] != sessionID {
			continue
		}
		results = append(results, Result{
			Text:     h.Text,
			Metadata: h.Metadata,
			Score:    caps.Metric.Normalize(h.Score),
		})
	}
	sort.SliceStable(results, func(i, j int) bool {
		return results[i].Score > results[j].Score
	})
	if len(results) > topK {
		results = results[:topK]
	}
	return results, nil
}

// DeleteSession removes every vector stored under sessionID.
func (s *Store) DeleteSession(ctx context.Context, sessionID string) error {
	if sessionID == "" {
		return ErrEmptySession
	}
	err := s.policy.Do(ctx, func() error {
		return s.index.DeleteSession(ctx, sessionID)
	}, IsRetryable)
	if err != nil {
		return fmt.Errorf("delete session vectors: %w", err)
	}
	return nil
}

// Count returns the number of vectors stored under sessionID.
func (s *Store) Count(ctx context.Context, sessionID string) (int, error) {
	if sessionID == "" {
		return 0, ErrEmptySession
	}
	return s.index.Count(ctx, sessionID)
}

// Close releases the backend.
func (s *Store) Close() error {
	return s.index.Close()
}

// Health reports whether the backing index is reachable. Indexes without a
// health probe are always healthy.
func (s *Store) Health(ctx context.Context) error {
	if h, ok := s.index.(interface{ Health(context.Context) error }); ok {
		return h.Health(ctx)
	}
	return nil
}

// Backend names the backing index for diagnostics.
func (s *Store) Backend() string {
	if _, ok := s.index.(*QdrantIndex); ok {
		return "qdrant"
	}
	return "memory"
}

func (s *Store) search(ctx context.Context, vector []float32, sessionID string, limit int) ([]Hit, error) {
	var hits []Hit
	err := s.policy.Do(ctx, func() error {
		var err error
		hits, err = s.index.Search(ctx, vector, sessionID, limit)
		return err
	}, IsRetryable)
	if err != nil {
		return nil, fmt.Errorf("search vectors: %w", err)
	}
	return hits, nil
}

// searchPostFiltered over-fetches from a backend that cannot filter by session,
// widening the window until enough session matches are found, the backend
// runs out of vectors, or the cap is hit.
//
// MemoryIndex and QdrantIndex both filter natively and never reach this path;
// it serves Index implementations whose Capabilities report
// NativeSessionFilter false.
func (s *Store) searchPostFiltered(ctx context.Context, vector []float32, sessionID string, topK int) ([]Hit, error) {
	limit := topK * overFetchFactor
	maxLimit := topK * maxOverFetchFactor

	for {
		raw, err := s.search(ctx, vector, sessionID, limit)
		if err != nil {
			return nil, err
		}

		matched := make([]Hit, 0, topK)
		for _, h := range raw {
			if h.Metadata[SessionKey] == sessionID {
				matched = append(matched, h)
			}
		}

		exhausted := len(raw) < limit
		if len(matched) >= topK || exhausted {
			return matched, nil
		}
		if limit >= maxLimit {
			s.logger.Warn("post-filter under-returned",
				"session", sessionID,
				"requested", topK,
				"returned", len(matched),
				"fetched", len(raw))
			return matched, nil
		}
		limit = min(limit*2, maxLimit)
	}
}

func (s *Store) checkDimension(vector []float32) error {
	if want := s.index.Dimension(); len(vector) != want {
		return fmt.Errorf("%w: got %d dimensions, expected %d", ErrDimensionMismatch, len(vector), want)
	}
	return nil
}

package storage

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bull/docqa-server/internal/chunker"
	"github.com/bull/docqa-server/internal/retry"
)

const testDim = 4

func newTestStore(t *testing.T, index Index) *Store {
	t.Helper()
	store, err := NewStore(&hashEmbedder{dim: testDim}, index, retry.None(), nil)
	require.NoError(t, err)
	return store
}

func textChunks(source string, texts ...string) []chunker.Chunk {
	chunks := make([]chunker.Chunk, len(texts))
	for i, text := range texts {
		chunks[i] = chunker.Chunk{
			Text: text,
			Metadata: chunker.Metadata{
				Source:   source,
				Position: chunker.Position{Unit: chunker.UnitWindow, Index: i},
			},
		}
	}
	return chunks
}

func TestStore_AddQueryRoundTrip(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t, NewMemoryIndex(testDim))

	n, err := store.Add(ctx, textChunks("pets.txt", "the cat sat", "a dog ran", "weather report"), "s1", "pets.txt")
	require.NoError(t, err)
	assert.Equal(t, 3, n)

	results, err := store.Query(ctx, "where is the cat", "s1", 2)
	require.NoError(t, err)
	require.Len(t, results, 2)

	assert.Equal(t, "the cat sat", results[0].Text)
	assert.InDelta(t, 1.0, results[0].Score, 1e-9)
	assert.Equal(t, "s1", results[0].Metadata[SessionKey])
	assert.Equal(t, "pets.txt", results[0].Metadata[SourceKey])
	assert.GreaterOrEqual(t, results[0].Score, results[1].Score)
}

func TestStore_SessionIsolation(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t, NewMemoryIndex(testDim))

	_, err := store.Add(ctx, textChunks("a.txt", "cat facts from A"), "A", "a.txt")
	require.NoError(t, err)
	_, err = store.Add(ctx, textChunks("b.txt", "cat facts from B", "dog facts from B"), "B", "b.txt")
	require.NoError(t, err)

	results, err := store.Query(ctx, "cat", "A", 10)
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, "cat facts from A", results[0].Text)

	results, err = store.Query(ctx, "cat", "C", 10)
	require.NoError(t, err)
	assert.Empty(t, results)
}

func TestStore_ChunkSourceWins(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t, NewMemoryIndex(testDim))

	chunks := textChunks("https://example.com/page", "cat page")
	chunks = append(chunks, chunker.Chunk{Text: "cat without source"})
	_, err := store.Add(ctx, chunks, "s1", "https://example.com")
	require.NoError(t, err)

	results, err := store.Query(ctx, "cat", "s1", 5)
	require.NoError(t, err)
	require.Len(t, results, 2)

	sources := []string{results[0].Metadata[SourceKey], results[1].Metadata[SourceKey]}
	assert.ElementsMatch(t, []string{"https://example.com/page", "https://example.com"}, sources)
}

func TestStore_PageMetadata(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t, NewMemoryIndex(testDim))

	chunks := []chunker.Chunk{{
		Text: "cat chapter",
		Metadata: chunker.Metadata{
			Source:   "book.pdf",
			Position: chunker.Position{Unit: chunker.UnitPage, Start: 3, End: 5},
		},
	}}
	_, err := store.Add(ctx, chunks, "s1", "book.pdf")
	require.NoError(t, err)

	results, err := store.Query(ctx, "cat", "s1", 1)
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, "5", results[0].Metadata[PageKey])
	assert.Equal(t, "3", results[0].Metadata[StartKey])
	assert.Equal(t, "page", results[0].Metadata[UnitKey])
}

func TestStore_PostFilterWithoutNativeSupport(t *testing.T) {
	ctx := context.Background()
	index := &unfilteredIndex{MemoryIndex: NewMemoryIndex(testDim), metric: CosineSimilarity}
	store := newTestStore(t, index)

	// Fill the index with better-matching vectors from another session.
	var noise []string
	for i := 0; i < 40; i++ {
		noise = append(noise, fmt.Sprintf("cat noise %d", i))
	}
	_, err := store.Add(ctx, textChunks("noise", noise...), "other", "noise")
	require.NoError(t, err)
	_, err = store.Add(ctx, textChunks("mine", "dog mine", "weather mine"), "mine", "mine")
	require.NoError(t, err)

	results, err := store.Query(ctx, "cat", "mine", 2)
	require.NoError(t, err)
	require.Len(t, results, 2)
	for _, r := range results {
		assert.Equal(t, "mine", r.Metadata[SessionKey])
	}

	// 8 then 16 then 32 then exhausted at 64 > 42 stored vectors.
	assert.Equal(t, []int{8, 16, 32, 64}, index.searches)
}

func TestStore_PostFilterUnderReturnsAtCap(t *testing.T) {
	ctx := context.Background()
	index := &unfilteredIndex{MemoryIndex: NewMemoryIndex(testDim), metric: CosineSimilarity}
	store := newTestStore(t, index)

	var noise []string
	for i := 0; i < 100; i++ {
		noise = append(noise, fmt.Sprintf("cat noise %d", i))
	}
	_, err := store.Add(ctx, textChunks("noise", noise...), "other", "noise")
	require.NoError(t, err)
	_, err = store.Add(ctx, textChunks("mine", "weather mine"), "mine", "mine")
	require.NoError(t, err)

	results, err := store.Query(ctx, "cat", "mine", 1)
	require.NoError(t, err)
	assert.Empty(t, results)
	assert.Equal(t, []int{4, 8, 16, 32, 64}, index.searches)
}

func TestStore_NormalizesDistanceScores(t *testing.T) {
	ctx := context.Background()
	index := &unfilteredIndex{MemoryIndex: NewMemoryIndex(testDim), metric: CosineDistance}
	store := newTestStore(t, index)

	_, err := store.Add(ctx, textChunks("x", "cat one", "dog two"), "s1", "x")
	require.NoError(t, err)

	results, err := store.Query(ctx, "cat", "s1", 2)
	require.NoError(t, err)
	require.Len(t, results, 2)
	assert.Equal(t, "cat one", results[0].Text)
	assert.InDelta(t, 1.0, results[0].Score, 1e-9)
	assert.InDelta(t, 0.0, results[1].Score, 1e-9)
}

func TestMetric_Normalize(t *testing.T) {
	assert.InDelta(t, 0.8, CosineSimilarity.Normalize(0.8), 1e-9)
	assert.InDelta(t, 0.75, CosineDistance.Normalize(0.25), 1e-9)
	assert.InDelta(t, 0.5, EuclideanDistance.Normalize(1), 1e-9)
	assert.InDelta(t, 3.0, DotProduct.Normalize(3), 1e-9)
}

func TestStore_DefaultAndInvalidTopK(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t, NewMemoryIndex(testDim))

	var texts []string
	for i := 0; i < 8; i++ {
		texts = append(texts, fmt.Sprintf("cat %d", i))
	}
	_, err := store.Add(ctx, textChunks("x", texts...), "s1", "x")
	require.NoError(t, err)

	results, err := store.Query(ctx, "cat", "s1", 0)
	require.NoError(t, err)
	assert.Len(t, results, DefaultTopK)

	_, err = store.Query(ctx, "cat", "s1", MaxTopK+1)
	assert.ErrorIs(t, err, ErrInvalidTopK)
}

func TestNewStore_DimensionMismatch(t *testing.T) {
	_, err := NewStore(&hashEmbedder{dim: 3}, NewMemoryIndex(4), retry.None(), nil)
	assert.ErrorIs(t, err, ErrDimensionMismatch)
}

func TestStore_EmbedFailureAbortsBatch(t *testing.T) {
	ctx := context.Background()
	index := NewMemoryIndex(testDim)
	embedErr := errors.New("rate limited")
	store, err := NewStore(&hashEmbedder{dim: testDim, err: embedErr}, index, retry.None(), nil)
	require.NoError(t, err)

	n, err := store.Add(ctx, textChunks("x", "cat", "dog"), "s1", "x")
	assert.ErrorIs(t, err, embedErr)
	assert.Zero(t, n)

	count, err := index.Count(ctx, "s1")
	require.NoError(t, err)
	assert.Zero(t, count)
}

func TestStore_UpsertFailureSurfaces(t *testing.T) {
	store := newTestStore(t, &failingIndex{MemoryIndex: NewMemoryIndex(testDim)})

	_, err := store.Add(context.Background(), textChunks("x", "cat"), "s1", "x")
	assert.ErrorIs(t, err, errUpsert)
}

func TestStore_DeleteSession(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t, NewMemoryIndex(testDim))

	_, err := store.Add(ctx, textChunks("x", "cat", "dog"), "s1", "x")
	require.NoError(t, err)
	_, err = store.Add(ctx, textChunks("y", "cat"), "s2", "y")
	require.NoError(t, err)

	require.NoError(t, store.DeleteSession(ctx, "s1"))

	n, err := store.Count(ctx, "s1")
	require.NoError(t, err)
	assert.Zero(t, n)
	n, err = store.Count(ctx, "s2")
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	assert.ErrorIs(t, store.DeleteSession(ctx, ""), ErrEmptySession)
}

func TestStore_EmptyAdd(t *testing.T) {
	embedder := &hashEmbedder{dim: testDim}
	store, err := NewStore(embedder, NewMemoryIndex(testDim), retry.None(), nil)
	require.NoError(t, err)

	n, err := store.Add(context.Background(), nil, "s1", "x")
	require.NoError(t, err)
	assert.Zero(t, n)
	assert.Zero(t, embedder.calls)
}

func TestStore_HealthWithoutProbe(t *testing.T) {
	store := newTestStore(t, NewMemoryIndex(testDim))
	assert.NoError(t, store.Health(context.Background()))
	assert.Equal(t, "memory", store.Backend())
}

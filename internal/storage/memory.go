package storage

import (
	"context"
	"fmt"
	"math"
	"sort"
	"sync"
)

// MemoryIndex is an in-process brute-force cosine index. It is safe for
// concurrent use and loses its contents when the process exits.
type MemoryIndex struct {
	mu        sync.RWMutex
	dimension int
	vectors   []StoredVector
}

// NewMemoryIndex creates an empty index for vectors of the given dimension.
func NewMemoryIndex(dimension int) *MemoryIndex {
	return &MemoryIndex{dimension: dimension}
}

func (m *MemoryIndex) Upsert(ctx context.Context, vectors []StoredVector) error {
	for i, v := range vectors {
		if len(v.Embedding) != m.dimension {
			return fmt.Errorf("%w: vector %d has %d dimensions, expected %d",
				ErrDimensionMismatch, i, len(v.Embedding), m.dimension)
		}
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	pos := make(map[string]int, len(m.vectors))
	for i, v := range m.vectors {
		pos[v.ID] = i
	}
	for _, v := range vectors {
		if i, ok := pos[v.ID]; ok {
			m.vectors[i] = v
			continue
		}
		pos[v.ID] = len(m.vectors)
		m.vectors = append(m.vectors, v)
	}
	return nil
}

// Search scores every vector of the session, or of the whole index when
// sessionID is empty, and returns the best limit hits.
func (m *MemoryIndex) Search(ctx context.Context, vector []float32, sessionID string, limit int) ([]Hit, error) {
	if len(vector) != m.dimension {
		return nil, fmt.Errorf("%w: query has %d dimensions, expected %d",
			ErrDimensionMismatch, len(vector), m.dimension)
	}
	if limit <= 0 {
		return nil, nil
	}

	m.mu.RLock()
	defer m.mu.RUnlock()

	hits := make([]Hit, 0, len(m.vectors))
	for _, v := range m.vectors {
		if sessionID != "" && v.Metadata[SessionKey] != sessionID {
			continue
		}
		hits = append(hits, Hit{
			ID:       v.ID,
			Text:     v.Text,
			Metadata: v.Metadata,
			Score:    cosine(vector, v.Embedding),
		})
	}

	sort.SliceStable(hits, func(i, j int) bool {
		return hits[i].Score > hits[j].Score
	})
	if len(hits) > limit {
		hits = hits[:limit]
	}
	return hits, nil
}

func (m *MemoryIndex) DeleteSession(ctx context.Context, sessionID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	kept := m.vectors[:0]
	for _, v := range m.vectors {
		if v.Metadata[SessionKey] != sessionID {
			kept = append(kept, v)
		}
	}
	clear(m.vectors[len(kept):])
	m.vectors = kept
	return nil
}

func (m *MemoryIndex) Count(ctx context.Context, sessionID string) (int, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	n := 0
	for _, v := range m.vectors {
		if v.Metadata[SessionKey] == sessionID {
			n++
		}
	}
	return n, nil
}

func (m *MemoryIndex) Capabilities() Capabilities {
	return Capabilities{NativeSessionFilter: true, Metric: CosineSimilarity}
}

func (m *MemoryIndex) Dimension() int { return m.dimension }

func (m *MemoryIndex) Close() error { return nil }

func cosine(a, b []float32) float64 {
	var dot, na, nb float64
	for i := range a {
		x, y := float64(a[i]), float64(b[i])
		dot += x * y
		na += x * x
		nb += y * y
	}
	if na == 0 || nb == 0 {
		return 0
	}
	return dot / (math.Sqrt(na) * math.Sqrt(nb))
}

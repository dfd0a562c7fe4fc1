package storage

import (
	"context"
	"errors"
	"strings"
)

// hashEmbedder maps each text onto a fixed vector chosen by keyword so tests
// can steer similarity.
type hashEmbedder struct {
	dim   int
	calls int
	err   error
}

func (e *hashEmbedder) Dimension() int { return e.dim }

func (e *hashEmbedder) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	e.calls++
	if e.err != nil {
		return nil, e.err
	}
	out := make([][]float32, len(texts))
	for i, t := range texts {
		v := make([]float32, e.dim)
		switch {
		case strings.Contains(t, "cat"):
			v[0] = 1
		case strings.Contains(t, "dog"):
			v[1] = 1
		default:
			v[e.dim-1] = 1
		}
		out[i] = v
	}
	return out, nil
}

// unfilteredIndex wraps a MemoryIndex but reports no native session filter
// and ignores the session on search, like a shared flat index.
type unfilteredIndex struct {
	*MemoryIndex
	metric   Metric
	searches []int
}

func (u *unfilteredIndex) Capabilities() Capabilities {
	return Capabilities{NativeSessionFilter: false, Metric: u.metric}
}

func (u *unfilteredIndex) Search(ctx context.Context, vector []float32, sessionID string, limit int) ([]Hit, error) {
	u.searches = append(u.searches, limit)
	hits, err := u.MemoryIndex.Search(ctx, vector, "", limit)
	if err != nil {
		return nil, err
	}
	if u.metric == CosineDistance {
		for i := range hits {
			hits[i].Score = 1 - hits[i].Score
		}
	}
	return hits, nil
}

// failingIndex fails every upsert.
type failingIndex struct {
	*MemoryIndex
}

var errUpsert = errors.New("upsert failed")

func (f *failingIndex) Upsert(ctx context.Context, vectors []StoredVector) error {
	return errUpsert
}

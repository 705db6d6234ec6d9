package dedup

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"

	"shardgate/internal/store"
)

// MockEmbeddingEngine implements embedding.EmbeddingEngine for testing.
type MockEmbeddingEngine struct {
	EmbedFunc func(ctx context.Context, text string) ([]float32, error)
	calls     int32
}

func (m *MockEmbeddingEngine) Embed(ctx context.Context, text string) ([]float32, error) {
	atomic.AddInt32(&m.calls, 1)
	if m.EmbedFunc != nil {
		return m.EmbedFunc(ctx, text)
	}
	return []float32{1, 0}, nil
}

func (m *MockEmbeddingEngine) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	for i, text := range texts {
		vec, err := m.Embed(ctx, text)
		if err != nil {
			return nil, err
		}
		out[i] = vec
	}
	return out, nil
}

func (m *MockEmbeddingEngine) Dimensions() int { return 2 }
func (m *MockEmbeddingEngine) Name() string    { return "mock-embedding-engine" }

func (m *MockEmbeddingEngine) Calls() int { return int(atomic.LoadInt32(&m.calls)) }

var errUnreachable = errors.New("dial tcp 10.0.0.5:6333: connect: connection refused")

// flakyStore wraps a store and fails every call for the listed collections
// with err (errUnreachable when nil). It hides the payload index so exact
// lookups go through Scroll.
type flakyStore struct {
	store.VectorStore
	down map[string]bool
	err  error
}

func (f *flakyStore) failure() error {
	if f.err != nil {
		return f.err
	}
	return errUnreachable
}

func (f *flakyStore) Scroll(ctx context.Context, collection, offset string, limit int) ([]store.Point, string, error) {
	if f.down[collection] {
		return nil, "", f.failure()
	}
	return f.VectorStore.Scroll(ctx, collection, offset, limit)
}

func (f *flakyStore) Query(ctx context.Context, collection string, vector []float32, topK int, filter *store.Filter) ([]store.ScoredPoint, error) {
	if f.down[collection] {
		return nil, f.failure()
	}
	return f.VectorStore.Query(ctx, collection, vector, topK, filter)
}

// scoredStore returns fixed neighbours per collection and no scan results.
type scoredStore struct {
	neighbours map[string][]store.ScoredPoint

	mu      sync.Mutex
	filters []*store.Filter
}

func (s *scoredStore) Scroll(context.Context, string, string, int) ([]store.Point, string, error) {
	return nil, "", nil
}

func (s *scoredStore) Query(_ context.Context, collection string, _ []float32, topK int, filter *store.Filter) ([]store.ScoredPoint, error) {
	s.mu.Lock()
	s.filters = append(s.filters, filter)
	s.mu.Unlock()
	n, ok := s.neighbours[collection]
	if !ok {
		return nil, store.ErrCollectionNotFound
	}
	if len(n) > topK {
		n = n[:topK]
	}
	return n, nil
}

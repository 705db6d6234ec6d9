package store

import (
	"context"
	"fmt"
	"sort"
	"strconv"
	"sync"

	"shardgate/internal/embedding"
)

// MemoryStore is an in-process VectorStore. It is safe for concurrent use and
// serves as the default collaborator in tests and offline runs.
type MemoryStore struct {
	mu          sync.RWMutex
	collections map[string]*memCollection
}

type memCollection struct {
	points []Point
	index  map[string]int
}

// NewMemoryStore creates an empty store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{collections: make(map[string]*memCollection)}
}

// EnsureCollection creates collection if it does not exist.
func (m *MemoryStore) EnsureCollection(_ context.Context, collection string, _ int) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.collections[collection]; !ok {
		m.collections[collection] = &memCollection{index: make(map[string]int)}
	}
	return nil
}

// Upsert inserts or replaces points by id. The collection must exist.
func (m *MemoryStore) Upsert(_ context.Context, collection string, points []Point) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	c, ok := m.collections[collection]
	if !ok {
		return fmt.Errorf("upsert into %s: %w", collection, ErrCollectionNotFound)
	}
	for _, p := range points {
		if p.ID == "" {
			return fmt.Errorf("upsert into %s: point id required", collection)
		}
		p = clonePoint(p)
		if i, exists := c.index[p.ID]; exists {
			c.points[i] = p
			continue
		}
		c.index[p.ID] = len(c.points)
		c.points = append(c.points, p)
	}
	return nil
}

// Scroll pages through a collection in insertion order. Offsets are decimal
// positions.
func (m *MemoryStore) Scroll(ctx context.Context, collection, offset string, limit int) ([]Point, string, error) {
	if err := ctx.Err(); err != nil {
		return nil, "", err
	}
	m.mu.RLock()
	defer m.mu.RUnlock()

	c, ok := m.collections[collection]
	if !ok {
		return nil, "", fmt.Errorf("scroll %s: %w", collection, ErrCollectionNotFound)
	}

	start := 0
	if offset != "" {
		n, err := strconv.Atoi(offset)
		if err != nil || n < 0 {
			return nil, "", fmt.Errorf("scroll %s: invalid offset %q", collection, offset)
		}
		start = n
	}
	if limit <= 0 {
		limit = 500
	}
	if start >= len(c.points) {
		return nil, "", nil
	}

	end := start + limit
	if end > len(c.points) {
		end = len(c.points)
	}
	page := make([]Point, 0, end-start)
	for _, p := range c.points[start:end] {
		page = append(page, clonePayloadOnly(p))
	}

	next := ""
	if end < len(c.points) {
		next = strconv.Itoa(end)
	}
	return page, next, nil
}

// FindByPayload returns points whose payload key equals value.
func (m *MemoryStore) FindByPayload(ctx context.Context, collection, key, value string, limit int) ([]Point, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	m.mu.RLock()
	defer m.mu.RUnlock()

	c, ok := m.collections[collection]
	if !ok {
		return nil, fmt.Errorf("find in %s: %w", collection, ErrCollectionNotFound)
	}

	var out []Point
	for _, p := range c.points {
		if p.PayloadString(key) == value {
			out = append(out, clonePayloadOnly(p))
			if limit > 0 && len(out) >= limit {
				break
			}
		}
	}
	return out, nil
}

// Query ranks points by cosine similarity. Points without vectors or with a
// different dimension are skipped. Ties keep insertion order.
func (m *MemoryStore) Query(ctx context.Context, collection string, vector []float32, topK int, filter *Filter) ([]ScoredPoint, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	m.mu.RLock()
	defer m.mu.RUnlock()

	c, ok := m.collections[collection]
	if !ok {
		return nil, fmt.Errorf("query %s: %w", collection, ErrCollectionNotFound)
	}
	if topK <= 0 {
		topK = 5
	}

	var scored []ScoredPoint
	for _, p := range c.points {
		if len(p.Vector) == 0 || !filter.Matches(p.Payload) {
			continue
		}
		score, err := embedding.CosineSimilarity(vector, p.Vector)
		if err != nil {
			continue
		}
		scored = append(scored, ScoredPoint{Point: clonePayloadOnly(p), Score: score})
	}

	sort.SliceStable(scored, func(i, j int) bool { return scored[i].Score > scored[j].Score })
	if len(scored) > topK {
		scored = scored[:topK]
	}
	return scored, nil
}

// HealthCheck always succeeds.
func (m *MemoryStore) HealthCheck(context.Context) error { return nil }

// Count returns the number of points in collection.
func (m *MemoryStore) Count(collection string) int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if c, ok := m.collections[collection]; ok {
		return len(c.points)
	}
	return 0
}

func clonePayload(p map[string]interface{}) map[string]interface{} {
	if p == nil {
		return nil
	}
	out := make(map[string]interface{}, len(p))
	for k, v := range p {
		out[k] = v
	}
	return out
}

func clonePoint(p Point) Point {
	return Point{
		ID:      p.ID,
		Payload: clonePayload(p.Payload),
		Vector:  append([]float32(nil), p.Vector...),
	}
}

func clonePayloadOnly(p Point) Point {
	return Point{ID: p.ID, Payload: clonePayload(p.Payload)}
}

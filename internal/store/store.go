// Package store provides the vector-store collaborator used by the gatekeeper:
// paged scans, nearest-neighbour queries and an optional payload index, with
// in-memory, SQLite and Qdrant implementations.
package store

import (
	"context"
	"errors"
	"fmt"
)

// ErrCollectionNotFound is returned when a named collection does not exist.
// Callers treat it as "no match", never as a failure.
var ErrCollectionNotFound = errors.New("collection not found")

// IsNotFound reports whether err means the collection is missing. Only the
// sentinel counts; other failures mentioning "not found" are real failures.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrCollectionNotFound)
}

// Point is a stored record.
type Point struct {
	ID      string                 `json:"id"`
	Payload map[string]interface{} `json:"payload"`
	Vector  []float32              `json:"vector,omitempty"`
}

// ScoredPoint is a Point returned by a similarity query.
type ScoredPoint struct {
	Point
	Score float64 `json:"score"`
}

// PayloadString returns a payload value as a string, or "".
func (p Point) PayloadString(key string) string {
	if p.Payload == nil {
		return ""
	}
	switch v := p.Payload[key].(type) {
	case string:
		return v
	case nil:
		return ""
	default:
		return fmt.Sprint(v)
	}
}

// VectorStore is the read contract the gatekeeper depends on.
type VectorStore interface {
	// Scroll returns one page of points in a stable order. An empty next
	// offset means the scan is complete.
	Scroll(ctx context.Context, collection, offset string, limit int) (points []Point, next string, err error)

	// Query returns up to topK points ranked by cosine similarity to vector.
	Query(ctx context.Context, collection string, vector []float32, topK int, filter *Filter) ([]ScoredPoint, error)
}

// PayloadIndex is implemented by stores that can look up exact payload
// matches without a full scan.
type PayloadIndex interface {
	FindByPayload(ctx context.Context, collection, key, value string, limit int) ([]Point, error)
}

// HealthChecker is implemented by stores that can report reachability.
type HealthChecker interface {
	HealthCheck(ctx context.Context) error
}

// Writer is implemented by stores that accept writes. The gatekeeper never
// writes; seeding tools and tests do.
type Writer interface {
	EnsureCollection(ctx context.Context, collection string, dimensions int) error
	Upsert(ctx context.Context, collection string, points []Point) error
}

// FindExact returns the points in collection whose payload key equals value.
// It uses the store's PayloadIndex when available and otherwise pages through
// the whole collection.
func FindExact(ctx context.Context, s VectorStore, collection, key, value string, pageLimit int) ([]Point, error) {
	if pageLimit <= 0 {
		pageLimit = 500
	}
	if idx, ok := s.(PayloadIndex); ok {
		return idx.FindByPayload(ctx, collection, key, value, pageLimit)
	}

	var matches []Point
	offset := ""
	for {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		page, next, err := s.Scroll(ctx, collection, offset, pageLimit)
		if err != nil {
			return nil, err
		}
		for _, p := range page {
			if p.PayloadString(key) == value {
				matches = append(matches, p)
			}
		}
		if next == "" || next == offset || len(page) == 0 {
			return matches, nil
		}
		offset = next
	}
}

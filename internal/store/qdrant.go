package store

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"shardgate/internal/logging"
)

// =============================================================================
// QDRANT REST CLIENT
// =============================================================================

// QdrantStore talks to a Qdrant server over its REST API.
type QdrantStore struct {
	baseURL string
	apiKey  string
	client  *http.Client
}

// NewQdrantStore creates a client for the server at baseURL.
func NewQdrantStore(baseURL, apiKey string, timeout time.Duration) *QdrantStore {
	if baseURL == "" {
		baseURL = "http://localhost:6333"
	}
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &QdrantStore{
		baseURL: strings.TrimRight(baseURL, "/"),
		apiKey:  apiKey,
		client:  &http.Client{Timeout: timeout},
	}
}

type qdrantStatus struct {
	Error string `json:"error"`
}

type qdrantEnvelope struct {
	Result json.RawMessage `json:"result"`
	Status json.RawMessage `json:"status"`
}

type qdrantPoint struct {
	ID      json.RawMessage        `json:"id"`
	Payload map[string]interface{} `json:"payload"`
	Score   float64                `json:"score"`
}

type qdrantScrollResult struct {
	Points         []qdrantPoint   `json:"points"`
	NextPageOffset json.RawMessage `json:"next_page_offset"`
}

type qdrantFilter struct {
	Must []qdrantCondition `json:"must"`
}

// qdrantCondition is either a field match, an is_empty test or a nested
// should clause.
type qdrantCondition struct {
	Key     string            `json:"key,omitempty"`
	Match   interface{}       `json:"match,omitempty"`
	IsEmpty *qdrantIsEmpty    `json:"is_empty,omitempty"`
	Should  []qdrantCondition `json:"should,omitempty"`
}

type qdrantIsEmpty struct {
	Key string `json:"key"`
}

type qdrantMatch struct {
	Value string   `json:"value,omitempty"`
	Any   []string `json:"any,omitempty"`
}

func toQdrantFilter(f *Filter) *qdrantFilter {
	if f.Empty() {
		return nil
	}
	out := &qdrantFilter{}
	for _, c := range f.Must {
		match := qdrantCondition{Key: c.Key, Match: &qdrantMatch{Value: c.Value, Any: c.Any}}
		if !c.OrMissing {
			out.Must = append(out.Must, match)
			continue
		}
		out.Must = append(out.Must, qdrantCondition{Should: []qdrantCondition{
			match,
			{IsEmpty: &qdrantIsEmpty{Key: c.Key}},
			{Key: c.Key, Match: map[string]string{"value": ""}},
		}})
	}
	return out
}

// pointID renders a Qdrant id (number or UUID string) as a string.
func pointID(raw json.RawMessage) string {
	s := strings.TrimSpace(string(raw))
	if unquoted, err := strconv.Unquote(s); err == nil {
		return unquoted
	}
	return s
}

// wireID converts an id back into its JSON form: unsigned integers stay
// numeric, everything else is sent as a string.
func wireID(id string) interface{} {
	if n, err := strconv.ParseUint(id, 10, 64); err == nil {
		return n
	}
	return id
}

func (q *QdrantStore) do(ctx context.Context, method, path string, body interface{}, out interface{}) error {
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("failed to marshal request: %w", err)
		}
		reader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, q.baseURL+path, reader)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if q.apiKey != "" {
		req.Header.Set("api-key", q.apiKey)
	}

	resp, err := q.client.Do(req)
	if err != nil {
		return fmt.Errorf("qdrant request failed: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("failed to read qdrant response: %w", err)
	}

	if resp.StatusCode == http.StatusNotFound {
		return ErrCollectionNotFound
	}
	if resp.StatusCode != http.StatusOK {
		msg := strings.TrimSpace(string(respBody))
		var env qdrantEnvelope
		if json.Unmarshal(respBody, &env) == nil {
			var st qdrantStatus
			if json.Unmarshal(env.Status, &st) == nil && st.Error != "" {
				msg = st.Error
			}
		}
		if strings.Contains(msg, "doesn't exist") {
			return fmt.Errorf("%s: %w", msg, ErrCollectionNotFound)
		}
		return fmt.Errorf("qdrant returned status %d: %s", resp.StatusCode, msg)
	}

	if out == nil {
		return nil
	}
	var env qdrantEnvelope
	if err := json.Unmarshal(respBody, &env); err != nil {
		return fmt.Errorf("failed to decode qdrant response: %w", err)
	}
	if err := json.Unmarshal(env.Result, out); err != nil {
		return fmt.Errorf("failed to decode qdrant result: %w", err)
	}
	return nil
}

func collectionPath(collection string, suffix string) string {
	return "/collections/" + url.PathEscape(collection) + suffix
}

func (q *QdrantStore) scroll(ctx context.Context, collection string, offset string, limit int, filter *Filter) ([]Point, string, error) {
	body := map[string]interface{}{
		"limit":        limit,
		"with_payload": true,
		"with_vector":  false,
	}
	if offset != "" {
		body["offset"] = json.RawMessage(offset)
	}
	if qf := toQdrantFilter(filter); qf != nil {
		body["filter"] = qf
	}

	var result qdrantScrollResult
	if err := q.do(ctx, http.MethodPost, collectionPath(collection, "/points/scroll"), body, &result); err != nil {
		return nil, "", fmt.Errorf("scroll %s: %w", collection, err)
	}

	points := make([]Point, 0, len(result.Points))
	for _, p := range result.Points {
		points = append(points, Point{ID: pointID(p.ID), Payload: p.Payload})
	}

	next := strings.TrimSpace(string(result.NextPageOffset))
	if next == "null" {
		next = ""
	}
	return points, next, nil
}

// Scroll pages through a collection. The offset is Qdrant's opaque
// next_page_offset, passed back verbatim.
func (q *QdrantStore) Scroll(ctx context.Context, collection, offset string, limit int) ([]Point, string, error) {
	if limit <= 0 {
		limit = 500
	}
	return q.scroll(ctx, collection, offset, limit, nil)
}

// FindByPayload uses a server-side filter so only matching points are
// returned.
func (q *QdrantStore) FindByPayload(ctx context.Context, collection, key, value string, limit int) ([]Point, error) {
	if limit <= 0 {
		limit = 500
	}
	filter := NewFilter().Match(key, value)

	var out []Point
	offset := ""
	for {
		page, next, err := q.scroll(ctx, collection, offset, limit, filter)
		if err != nil {
			return nil, err
		}
		out = append(out, page...)
		if next == "" || next == offset || len(out) >= limit {
			break
		}
		offset = next
	}
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

// Query runs a nearest-neighbour search.
func (q *QdrantStore) Query(ctx context.Context, collection string, vector []float32, topK int, filter *Filter) ([]ScoredPoint, error) {
	timer := logging.StartTimer(logging.CategoryStore, "QdrantStore.Query")
	defer timer.Stop()

	if topK <= 0 {
		topK = 5
	}
	body := map[string]interface{}{
		"vector":       vector,
		"limit":        topK,
		"with_payload": true,
	}
	if qf := toQdrantFilter(filter); qf != nil {
		body["filter"] = qf
	}

	var result []qdrantPoint
	if err := q.do(ctx, http.MethodPost, collectionPath(collection, "/points/search"), body, &result); err != nil {
		return nil, fmt.Errorf("query %s: %w", collection, err)
	}

	out := make([]ScoredPoint, 0, len(result))
	for _, p := range result {
		out = append(out, ScoredPoint{Point: Point{ID: pointID(p.ID), Payload: p.Payload}, Score: p.Score})
	}
	return out, nil
}

// HealthCheck probes the server's health endpoint.
func (q *QdrantStore) HealthCheck(ctx context.Context) error {
	if err := q.do(ctx, http.MethodGet, "/healthz", nil, nil); err != nil {
		return fmt.Errorf("qdrant unavailable: %w", err)
	}
	return nil
}

// EnsureCollection creates collection with cosine distance if missing.
func (q *QdrantStore) EnsureCollection(ctx context.Context, collection string, dimensions int) error {
	err := q.do(ctx, http.MethodGet, collectionPath(collection, ""), nil, nil)
	if err == nil {
		return nil
	}
	if !IsNotFound(err) {
		return fmt.Errorf("inspect collection %s: %w", collection, err)
	}
	body := map[string]interface{}{
		"vectors": map[string]interface{}{"size": dimensions, "distance": "Cosine"},
	}
	if err := q.do(ctx, http.MethodPut, collectionPath(collection, ""), body, nil); err != nil {
		return fmt.Errorf("create collection %s: %w", collection, err)
	}
	logging.Store("Created Qdrant collection %s (dims=%d)", collection, dimensions)
	return nil
}

// Upsert writes points and waits for them to be indexed.
func (q *QdrantStore) Upsert(ctx context.Context, collection string, points []Point) error {
	wire := make([]map[string]interface{}, 0, len(points))
	for _, p := range points {
		wire = append(wire, map[string]interface{}{
			"id":      wireID(p.ID),
			"vector":  p.Vector,
			"payload": p.Payload,
		})
	}
	body := map[string]interface{}{"points": wire}
	if err := q.do(ctx, http.MethodPut, collectionPath(collection, "/points?wait=true"), body, nil); err != nil {
		return fmt.Errorf("upsert into %s: %w", collection, err)
	}
	return nil
}

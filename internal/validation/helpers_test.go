package validation

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/require"

	"shardgate/internal/dedup"
	"shardgate/internal/store"
	"shardgate/internal/types"
)

const validContent = "JWT refresh fails when clock skew between the auth service and the API gateway exceeds thirty seconds. " +
	"Tokens issued near expiry are rejected as expired before the client can refresh them. " +
	"Fix: allow a 60 second leeway when validating exp in auth/token.go:42-57 and log the skew."

const practiceContent = "Prefer table-driven tests with t.Run subtests so each case reports independently and failures name the case. " +
	"Keep fixtures next to the test file and avoid global state between cases so tests can run in parallel safely."

func validMetadata() map[string]interface{} {
	return map[string]interface{}{
		"unique_id":  "error-jwt-clock-skew",
		"type":       "error_pattern",
		"component":  "auth",
		"importance": "high",
		"created_at": "2026-01-15T10:30:00Z",
		"agent":      "dev",
		"group_id":   "bmad-project",
		"story_id":   "2-17",
	}
}

type fakeEngine struct {
	vec []float32
	err error
}

func (f *fakeEngine) Embed(context.Context, string) ([]float32, error) { return f.vec, f.err }
func (f *fakeEngine) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	for i := range texts {
		out[i] = f.vec
	}
	return out, f.err
}
func (f *fakeEngine) Dimensions() int { return len(f.vec) }
func (f *fakeEngine) Name() string    { return "fake" }

// downStore is reachable for nothing.
type downStore struct {
	*store.MemoryStore
}

func (downStore) HealthCheck(context.Context) error {
	return errors.New("dial tcp 127.0.0.1:16350: connect: connection refused")
}

var collectionNames = types.DefaultCollectionNames()

// seededStore holds one knowledge point with validContent and one best
// practice with practiceContent.
func seededStore(t *testing.T) *store.MemoryStore {
	t.Helper()
	ctx := context.Background()
	s := store.NewMemoryStore()
	for _, c := range collectionNames.All() {
		require.NoError(t, s.EnsureCollection(ctx, c, 2))
	}
	require.NoError(t, s.Upsert(ctx, collectionNames.Knowledge, []store.Point{{
		ID: "existing-1",
		Payload: map[string]interface{}{
			types.FieldContent:  validContent,
			types.FieldHash:     types.ContentHash(validContent),
			types.FieldUniqueID: "error-jwt-skew-original",
			types.FieldGroupID:  "bmad-project",
			types.FieldType:     "error_pattern",
		},
		Vector: []float32{1, 0},
	}}))
	require.NoError(t, s.Upsert(ctx, collectionNames.BestPractices, []store.Point{{
		ID: "existing-2",
		Payload: map[string]interface{}{
			types.FieldContent:  practiceContent,
			types.FieldHash:     types.ContentHash(practiceContent),
			types.FieldUniqueID: "bp-table-driven-tests",
			types.FieldGroupID:  "bmad-project",
			types.FieldType:     "best_practice",
		},
		Vector: []float32{0, 1},
	}}))
	return s
}

func newDetector(s store.VectorStore, vec []float32) *dedup.Detector {
	cfg := dedup.DefaultConfig()
	cfg.Collections = collectionNames.All()
	return dedup.New(s, &fakeEngine{vec: vec}, cfg)
}

func fieldsOf(findings []types.Finding) []string {
	var out []string
	for _, f := range findings {
		out = append(out, f.Field)
	}
	return out
}

func kindsOf(findings []types.Finding) []types.ErrorKind {
	var out []types.ErrorKind
	for _, f := range findings {
		out = append(out, f.Kind)
	}
	return out
}

package retrieval

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"shardgate/internal/budget"
	"shardgate/internal/config"
	"shardgate/internal/store"
	"shardgate/internal/types"
)

type fakeEngine struct {
	vec []float32
	err error
}

func (f *fakeEngine) Embed(context.Context, string) ([]float32, error) { return f.vec, f.err }
func (f *fakeEngine) EmbedBatch(context.Context, []string) ([][]float32, error) {
	return nil, errors.New("not used")
}
func (f *fakeEngine) Dimensions() int { return len(f.vec) }
func (f *fakeEngine) Name() string    { return "fake" }

var names = types.DefaultCollectionNames()

func point(id, group, agent, memType string, content string, vec []float32) store.Point {
	return store.Point{
		ID: id,
		Payload: map[string]interface{}{
			types.FieldContent:    content,
			types.FieldGroupID:    group,
			types.FieldAgent:      agent,
			types.FieldType:       memType,
			types.FieldImportance: "high",
			types.FieldUniqueID:   id,
		},
		Vector: vec,
	}
}

func newSearcher(t *testing.T, engine *fakeEngine) *Searcher {
	t.Helper()
	return newSearcherWithBudget(t, engine, config.DefaultBudgetConfig())
}

func newSearcherWithBudget(t *testing.T, engine *fakeEngine, cfg config.BudgetConfig) *Searcher {
	t.Helper()
	ctx := context.Background()
	s := store.NewMemoryStore()
	require.NoError(t, s.EnsureCollection(ctx, names.Knowledge, 2))
	require.NoError(t, s.Upsert(ctx, names.Knowledge, []store.Point{
		point("story-1", "bmad-project", "dev", "story_outcome", strings.Repeat("alpha ", 100), []float32{1, 0}),
		point("error-1", "bmad-project", "dev", "error_pattern", strings.Repeat("bravo ", 100), []float32{0.9, 0.1}),
		point("arch-1", "bmad-project", "architect", "architecture_decision", strings.Repeat("delta ", 100), []float32{0.8, 0.2}),
		point("error-2", "other-project", "dev", "error_pattern", "other tenant", []float32{1, 0}),
	}))
	return NewSearcher(s, engine, names, "bmad-project", budget.New(cfg))
}

func ids(results []SearchResult) []string {
	var out []string
	for _, r := range results {
		out = append(out, r.Metadata[types.FieldUniqueID].(string))
	}
	return out
}

func TestSearch_Filters(t *testing.T) {
	s := newSearcher(t, &fakeEngine{vec: []float32{1, 0}})
	ctx := context.Background()

	tests := []struct {
		name  string
		query Query
		want  []string
	}{
		{"default group and limit", Query{Text: "jwt"}, []string{"story-1", "error-1", "arch-1"}},
		{"explicit group", Query{Text: "jwt", GroupID: "other-project"}, []string{"error-2"}},
		{"agent", Query{Text: "jwt", Agent: "architect"}, []string{"arch-1"}},
		{"types", Query{Text: "jwt", Types: []types.MemoryType{types.TypeErrorPattern, types.TypeArchitectureDecision}}, []string{"error-1", "arch-1"}},
		{"importance", Query{Text: "jwt", Importance: []types.Importance{types.ImportanceLow}}, nil},
		{"limit", Query{Text: "jwt", Limit: 1}, []string{"story-1"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			results, err := s.Search(ctx, tt.query)
			require.NoError(t, err)
			assert.Equal(t, tt.want, ids(results))
		})
	}
}

func TestSearch_ResultShape(t *testing.T) {
	s := newSearcher(t, &fakeEngine{vec: []float32{1, 0}})
	results, err := s.Search(context.Background(), Query{Text: "jwt", Limit: 1})
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.InDelta(t, 1.0, results[0].Score, 1e-9)
	assert.NotContains(t, results[0].Metadata, types.FieldContent)
	assert.True(t, strings.HasPrefix(results[0].Content, "alpha"))

	c := results[0].Candidate()
	assert.Equal(t, "story_outcome", c.Type)
	assert.Equal(t, "dev", c.Agent)
}

func TestSearch_Errors(t *testing.T) {
	ctx := context.Background()

	s := newSearcher(t, &fakeEngine{vec: []float32{1, 0}})
	results, err := s.Search(ctx, Query{Text: "jwt", Collection: types.CollectionBestPractices})
	require.NoError(t, err, "missing collection is an empty result")
	assert.Empty(t, results)

	_, err = s.Search(ctx, Query{})
	assert.Error(t, err)

	_, err = newSearcher(t, &fakeEngine{err: errors.New("model not loaded")}).Search(ctx, Query{Text: "jwt"})
	assert.ErrorContains(t, err, "model not loaded")

	noEngine := NewSearcher(store.NewMemoryStore(), nil, names, "bmad-project", nil)
	_, err = noEngine.Search(ctx, Query{Text: "jwt"})
	assert.ErrorIs(t, err, ErrNoEngine)
}

func TestLoadContext(t *testing.T) {
	s := newSearcher(t, &fakeEngine{vec: []float32{1, 0}})

	// Each shard is 150 tokens raw; sm has 800 tokens for at most 3 items.
	out, sel, err := s.LoadContext(context.Background(), "sm", Query{Text: "jwt"}, 0)
	require.NoError(t, err)
	assert.Len(t, sel.Items, 3)
	assert.LessOrEqual(t, sel.TotalTokens, 800)
	assert.Contains(t, out, "[story_outcome | dev | score: 1.00]")
	assert.Less(t, strings.Index(out, "story_outcome"), strings.Index(out, "error_pattern"))

	// A high cutoff drops every hit below it.
	_, sel, err = s.LoadContext(context.Background(), "dev", Query{Text: "jwt"}, 0.999)
	require.NoError(t, err)
	require.Len(t, sel.Items, 1)
	assert.Equal(t, "story_outcome", sel.Items[0].Type)

	_, _, err = NewSearcher(store.NewMemoryStore(), &fakeEngine{vec: []float32{1, 0}}, names, "p", nil).
		LoadContext(context.Background(), "dev", Query{Text: "jwt"}, 0)
	assert.Error(t, err)
}

func TestLoadContext_SelectionMatchesRenderedOutput(t *testing.T) {
	// Two 150-token shards fit a 300-token budget raw, but not once their
	// headers are rendered.
	cfg := config.DefaultBudgetConfig()
	cfg.Agents = map[string]int{"sm": 300}
	s := newSearcherWithBudget(t, &fakeEngine{vec: []float32{1, 0}}, cfg)

	out, sel, err := s.LoadContext(context.Background(), "sm", Query{Text: "jwt"}, 0)
	require.NoError(t, err)
	require.Len(t, sel.Items, 1)
	assert.Equal(t, 1, strings.Count(out, "score:"))
	assert.Equal(t, types.EstimateTokens(out), sel.TotalTokens)
	assert.LessOrEqual(t, sel.TotalTokens, 300)
}

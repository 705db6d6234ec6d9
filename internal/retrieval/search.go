// Package retrieval serves stored shards back to agents: filtered semantic
// search plus budgeted context assembly.
package retrieval

import (
	"context"
	"errors"
	"fmt"

	"shardgate/internal/budget"
	"shardgate/internal/embedding"
	"shardgate/internal/logging"
	"shardgate/internal/store"
	"shardgate/internal/types"
)

// ErrNoEngine is returned when search is attempted without an embedding engine.
var ErrNoEngine = errors.New("retrieval requires an embedding engine")

const defaultLimit = 3

// Query describes one search. GroupID falls back to the searcher's default and
// is always applied.
type Query struct {
	Text       string
	Collection types.Collection
	GroupID    string
	Agent      string
	Types      []types.MemoryType
	StoryID    string
	Component  string
	Importance []types.Importance
	Limit      int
}

// SearchResult is one ranked hit.
type SearchResult struct {
	Content  string                 `json:"content"`
	Score    float64                `json:"score"`
	Metadata map[string]interface{} `json:"metadata"`
}

// Candidate converts the hit for budgeted selection.
func (r SearchResult) Candidate() budget.Candidate {
	return budget.Candidate{
		Content: r.Content,
		Score:   r.Score,
		Type:    metaString(r.Metadata, types.FieldType),
		Agent:   metaString(r.Metadata, types.FieldAgent),
	}
}

// Searcher runs semantic searches against the vector store.
type Searcher struct {
	store        store.VectorStore
	engine       embedding.EmbeddingEngine
	names        types.CollectionNames
	defaultGroup string
	advisor      *budget.Advisor
}

// NewSearcher builds a searcher.
func NewSearcher(s store.VectorStore, engine embedding.EmbeddingEngine, names types.CollectionNames, defaultGroup string, advisor *budget.Advisor) *Searcher {
	return &Searcher{
		store:        s,
		engine:       engine,
		names:        names,
		defaultGroup: defaultGroup,
		advisor:      advisor,
	}
}

// Search embeds q.Text and returns the nearest shards matching every filter,
// best first. A missing collection yields no results.
func (s *Searcher) Search(ctx context.Context, q Query) ([]SearchResult, error) {
	timer := logging.StartTimer(logging.CategoryRetrieval, "Searcher.Search")
	defer timer.Stop()

	if s.engine == nil {
		return nil, ErrNoEngine
	}
	if q.Text == "" {
		return nil, fmt.Errorf("search query is empty")
	}
	if q.Collection == "" {
		q.Collection = types.CollectionKnowledge
	}
	if q.GroupID == "" {
		q.GroupID = s.defaultGroup
	}
	if q.Limit <= 0 {
		q.Limit = defaultLimit
	}

	vector, err := s.engine.Embed(ctx, q.Text)
	if err != nil {
		return nil, fmt.Errorf("failed to embed query: %w", err)
	}

	filter := store.NewFilter().
		Match(types.FieldGroupID, q.GroupID).
		Match(types.FieldAgent, q.Agent).
		MatchAny(types.FieldType, enumStrings(q.Types)).
		Match(types.FieldStoryID, q.StoryID).
		Match(types.FieldComponent, q.Component).
		MatchAny(types.FieldImportance, enumStrings(q.Importance))

	collection := s.names.Name(q.Collection)
	hits, err := s.store.Query(ctx, collection, vector, q.Limit, filter)
	if err != nil {
		if store.IsNotFound(err) {
			logging.RetrievalDebug("Collection %s not found; no results", collection)
			return nil, nil
		}
		return nil, fmt.Errorf("search %s: %w", collection, err)
	}

	results := make([]SearchResult, 0, len(hits))
	for _, h := range hits {
		meta := make(map[string]interface{}, len(h.Payload))
		for k, v := range h.Payload {
			if k != types.FieldContent {
				meta[k] = v
			}
		}
		results = append(results, SearchResult{
			Content:  h.PayloadString(types.FieldContent),
			Score:    h.Score,
			Metadata: meta,
		})
	}

	logging.Retrieval("Search %s: %d results (group=%s)", collection, len(results), q.GroupID)
	return results, nil
}

// LoadContext searches, selects within the agent's budget and renders the
// selection for prompt insertion. An empty string means nothing relevant.
func (s *Searcher) LoadContext(ctx context.Context, agent string, q Query, minScore float64) (string, budget.Selection, error) {
	advisor := s.advisor
	if advisor == nil {
		return "", budget.Selection{}, fmt.Errorf("retrieval context requires a budget advisor")
	}
	if q.Limit <= 0 {
		q.Limit = advisor.MaxMemories(agent)
	}

	results, err := s.Search(ctx, q)
	if err != nil {
		return "", budget.Selection{}, err
	}

	// Candidates are priced as rendered blocks so every selected item fits
	// when formatted.
	candidates := make([]budget.Candidate, len(results))
	for i, r := range results {
		c := r.Candidate()
		c.Tokens = types.EstimateTokens(budget.FormatBlock(c))
		candidates[i] = c
	}
	sel := advisor.Select(agent, candidates, minScore)
	return budget.FormatForContext(sel.Items, sel.Budget), sel, nil
}

func enumStrings[T ~string](values []T) []string {
	if len(values) == 0 {
		return nil
	}
	out := make([]string, len(values))
	for i, v := range values {
		out[i] = string(v)
	}
	return out
}

func metaString(m map[string]interface{}, key string) string {
	if s, ok := m[key].(string); ok {
		return s
	}
	return ""
}

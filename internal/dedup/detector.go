// Package dedup detects duplicate shards across every collection: exact
// content hash, global unique_id collisions and semantic similarity.
package dedup

import (
	"context"
	"fmt"

	"golang.org/x/sync/errgroup"

	"shardgate/internal/embedding"
	"shardgate/internal/logging"
	"shardgate/internal/store"
	"shardgate/internal/types"
)

// Config holds detector limits.
type Config struct {
	// Collections are the physical collection names to scan, in report order.
	Collections []string
	// ScrollLimit is the page size for full-scan lookups.
	ScrollLimit int
	// SimilarityThreshold flags neighbours scoring at or above it.
	SimilarityThreshold float64
	// TopK is the number of neighbours fetched per collection.
	TopK int
}

// DefaultConfig returns the stock limits over the default collections.
func DefaultConfig() Config {
	return Config{
		Collections:         types.DefaultCollectionNames().All(),
		ScrollLimit:         500,
		SimilarityThreshold: 0.85,
		TopK:                5,
	}
}

// Candidate is the shard being checked.
type Candidate struct {
	Content  string
	UniqueID string
	GroupID  string
}

// Options are per-call knobs.
type Options struct {
	// SkipSimilarity avoids the embedding call entirely.
	SkipSimilarity bool
}

// Detector runs duplicate checks against a vector store. It holds no state
// between calls and is safe for concurrent use.
type Detector struct {
	store  store.VectorStore
	engine embedding.EmbeddingEngine
	cfg    Config
}

// New builds a detector. engine may be nil, in which case the similarity
// check is reported as unavailable.
func New(s store.VectorStore, engine embedding.EmbeddingEngine, cfg Config) *Detector {
	def := DefaultConfig()
	if len(cfg.Collections) == 0 {
		cfg.Collections = def.Collections
	}
	if cfg.ScrollLimit <= 0 {
		cfg.ScrollLimit = def.ScrollLimit
	}
	if cfg.SimilarityThreshold <= 0 {
		cfg.SimilarityThreshold = def.SimilarityThreshold
	}
	if cfg.TopK <= 0 {
		cfg.TopK = def.TopK
	}
	return &Detector{store: s, engine: engine, cfg: cfg}
}

// Store returns the underlying vector store.
func (d *Detector) Store() store.VectorStore { return d.store }

// Collections returns the scanned collection names.
func (d *Detector) Collections() []string {
	return append([]string(nil), d.cfg.Collections...)
}

// Check runs hash, unique-id and similarity checks in that order. Each check
// fans out across collections and joins before the next starts. Similarity is
// skipped when an exact hash match exists or when opts asks for it. The only
// error returned is the context's.
func (d *Detector) Check(ctx context.Context, c Candidate, opts Options) (*Report, error) {
	timer := logging.StartTimer(logging.CategoryDedup, "Detector.Check")
	defer timer.Stop()

	report := &Report{ContentHash: types.ContentHash(c.Content)}

	report.HashMatches, report.Skipped = d.CheckHash(ctx, report.ContentHash, c.GroupID)
	report.ChecksPerformed = append(report.ChecksPerformed, CheckHash)
	if err := ctx.Err(); err != nil {
		return report, err
	}

	if c.UniqueID != "" {
		collisions, skipped := d.CheckUniqueID(ctx, c.UniqueID)
		report.IDCollisions = collisions
		report.Skipped = append(report.Skipped, skipped...)
		report.ChecksPerformed = append(report.ChecksPerformed, CheckUniqueID)
		if err := ctx.Err(); err != nil {
			return report, err
		}
	}

	switch {
	case len(report.HashMatches) > 0:
		logging.DedupDebug("Exact duplicate found; similarity check not needed")
	case opts.SkipSimilarity:
		logging.DedupDebug("Similarity check skipped by caller")
	default:
		similar, skipped := d.CheckSimilar(ctx, c.Content, c.GroupID)
		report.Similar = similar
		report.Skipped = append(report.Skipped, skipped...)
		report.ChecksPerformed = append(report.ChecksPerformed, CheckSimilar)
		if err := ctx.Err(); err != nil {
			return report, err
		}
	}

	logging.Dedup("Duplicate check: hash=%d id=%d similar=%d skipped=%d",
		len(report.HashMatches), len(report.IDCollisions), len(report.Similar), len(report.Skipped))
	return report, nil
}

// CheckHash finds stored points whose content_hash equals hash. When groupID
// is set, points from other groups are ignored.
func (d *Detector) CheckHash(ctx context.Context, hash, groupID string) ([]Match, []Skipped) {
	return d.fanOut(ctx, CheckHash, func(ctx context.Context, collection string) ([]Match, error) {
		points, err := store.FindExact(ctx, d.store, collection, types.FieldHash, hash, d.cfg.ScrollLimit)
		if err != nil {
			return nil, err
		}
		var matches []Match
		for _, p := range points {
			if !sameGroup(groupID, p) {
				continue
			}
			matches = append(matches, matchFrom(MatchExactHash, collection, p, 0))
		}
		return matches, nil
	})
}

// CheckUniqueID finds stored points with the same unique_id in any
// collection. Identifiers are global, so group scoping does not apply.
func (d *Detector) CheckUniqueID(ctx context.Context, uniqueID string) ([]Match, []Skipped) {
	return d.fanOut(ctx, CheckUniqueID, func(ctx context.Context, collection string) ([]Match, error) {
		points, err := store.FindExact(ctx, d.store, collection, types.FieldUniqueID, uniqueID, d.cfg.ScrollLimit)
		if err != nil {
			return nil, err
		}
		matches := make([]Match, 0, len(points))
		for _, p := range points {
			matches = append(matches, matchFrom(MatchUniqueID, collection, p, 0))
		}
		return matches, nil
	})
}

// CheckSimilar embeds content once and flags neighbours scoring at or above
// the threshold in every collection.
func (d *Detector) CheckSimilar(ctx context.Context, content, groupID string) ([]Match, []Skipped) {
	if d.engine == nil {
		logging.DedupWarn("No embedding engine configured; similarity check unavailable")
		return nil, []Skipped{{Check: CheckSimilar, Reason: "embedding engine not configured"}}
	}

	vector, err := d.engine.Embed(ctx, content)
	if err == nil && len(vector) == 0 {
		err = embedding.ErrEmptyEmbedding
	}
	if err != nil {
		logging.DedupWarn("Embedding failed; similarity check unavailable: %v", err)
		return nil, []Skipped{{Check: CheckSimilar, Reason: fmt.Sprintf("embedding failed: %v", err)}}
	}

	filter := groupFilter(groupID)

	return d.fanOut(ctx, CheckSimilar, func(ctx context.Context, collection string) ([]Match, error) {
		neighbours, err := d.store.Query(ctx, collection, vector, d.cfg.TopK, filter)
		if err != nil {
			return nil, err
		}
		var matches []Match
		for _, n := range neighbours {
			if n.Score >= d.cfg.SimilarityThreshold {
				matches = append(matches, matchFrom(MatchSimilar, collection, n.Point, n.Score))
			}
		}
		return matches, nil
	})
}

type lookupResult struct {
	matches []Match
	err     error
}

// fanOut runs lookup once per collection concurrently and joins. Results are
// assembled in collection order. A missing collection is a negative result;
// any other failure becomes a Skipped entry.
func (d *Detector) fanOut(ctx context.Context, check string, lookup func(context.Context, string) ([]Match, error)) ([]Match, []Skipped) {
	results := make([]lookupResult, len(d.cfg.Collections))

	g, gctx := errgroup.WithContext(ctx)
	for i, collection := range d.cfg.Collections {
		g.Go(func() error {
			matches, err := lookup(gctx, collection)
			results[i] = lookupResult{matches: matches, err: err}
			// Failures are recorded per collection, never propagated.
			return nil
		})
	}
	_ = g.Wait()

	var matches []Match
	var skipped []Skipped
	for i, r := range results {
		collection := d.cfg.Collections[i]
		switch {
		case r.err == nil:
			matches = append(matches, r.matches...)
		case store.IsNotFound(r.err):
			logging.DedupDebug("%s: collection %s not found, treating as no match", check, collection)
		default:
			logging.DedupWarn("%s: lookup in %s failed: %v", check, collection, r.err)
			skipped = append(skipped, Skipped{Check: check, Collection: collection, Reason: r.err.Error()})
		}
	}
	return matches, skipped
}

// groupFilter scopes lookups to groupID. Stored points without a group id
// stay in scope for both the hash and the similarity check.
func groupFilter(groupID string) *store.Filter {
	if groupID == "" {
		return nil
	}
	return store.NewFilter().MatchOrMissing(types.FieldGroupID, groupID)
}

func sameGroup(groupID string, p store.Point) bool {
	return groupFilter(groupID).Matches(p.Payload)
}

func matchFrom(mt MatchType, collection string, p store.Point, score float64) Match {
	return Match{
		MatchType:  mt,
		Collection: collection,
		PointID:    p.ID,
		UniqueID:   p.PayloadString(types.FieldUniqueID),
		Type:       p.PayloadString(types.FieldType),
		Score:      score,
	}
}

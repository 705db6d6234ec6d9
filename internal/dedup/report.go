package dedup

import (
	"fmt"

	"shardgate/internal/types"
)

// Check names, in the order they run.
const (
	CheckHash     = "duplicate_hash"
	CheckUniqueID = "duplicate_unique_id"
	CheckSimilar  = "similar_content"
)

// MatchType identifies which check produced a match.
type MatchType string

const (
	MatchExactHash MatchType = "exact_hash"
	MatchUniqueID  MatchType = "unique_id"
	MatchSimilar   MatchType = "similar"
)

// SimilarityPolicy decides whether similar matches block storage.
type SimilarityPolicy string

const (
	// PolicyAdvisory reports similar matches as warnings for review.
	PolicyAdvisory SimilarityPolicy = "advisory"
	// PolicyBlocking reports similar matches as DuplicateErrors.
	PolicyBlocking SimilarityPolicy = "blocking"
)

// ParsePolicy converts a configuration string. Empty means advisory.
func ParsePolicy(s string) (SimilarityPolicy, error) {
	switch SimilarityPolicy(s) {
	case "", PolicyAdvisory:
		return PolicyAdvisory, nil
	case PolicyBlocking:
		return PolicyBlocking, nil
	}
	return "", fmt.Errorf("unknown similarity policy %q (valid: advisory, blocking)", s)
}

// Match is an existing record that collides with the candidate.
type Match struct {
	MatchType  MatchType `json:"match_type"`
	Collection string    `json:"collection"`
	PointID    string    `json:"point_id"`
	UniqueID   string    `json:"unique_id,omitempty"`
	Type       string    `json:"type,omitempty"`
	Score      float64   `json:"score,omitempty"`
}

// Skipped records a lookup that could not be performed. It is never a
// negative result.
type Skipped struct {
	Check      string `json:"check"`
	Collection string `json:"collection,omitempty"`
	Reason     string `json:"reason"`
}

// Report is the outcome of one duplicate-detection pass.
type Report struct {
	ContentHash     string    `json:"content_hash"`
	HashMatches     []Match   `json:"hash_matches,omitempty"`
	IDCollisions    []Match   `json:"id_collisions,omitempty"`
	Similar         []Match   `json:"similar,omitempty"`
	Skipped         []Skipped `json:"skipped,omitempty"`
	ChecksPerformed []string  `json:"checks_performed"`
}

// HasHardDuplicate reports whether an exact-hash or unique-id match exists.
func (r *Report) HasHardDuplicate() bool {
	return len(r.HashMatches) > 0 || len(r.IDCollisions) > 0
}

// Findings converts the report into ordered errors and warnings under the
// given similarity policy.
func (r *Report) Findings(policy SimilarityPolicy) (errs, warnings []types.Finding) {
	for _, m := range r.HashMatches {
		errs = append(errs, types.NewFinding(types.DuplicateError, CheckHash, types.FieldContent,
			"identical content already stored in %s (unique_id=%s, id=%s)", m.Collection, m.UniqueID, m.PointID))
	}
	for _, m := range r.IDCollisions {
		errs = append(errs, types.NewFinding(types.DuplicateError, CheckUniqueID, types.FieldUniqueID,
			"unique_id %q already exists in %s (id=%s); identifiers are global across collections", m.UniqueID, m.Collection, m.PointID))
	}
	for _, m := range r.Similar {
		if policy == PolicyBlocking {
			errs = append(errs, types.NewFinding(types.DuplicateError, CheckSimilar, types.FieldContent,
				"similar content (score %.2f) already stored in %s (unique_id=%s, id=%s)", m.Score, m.Collection, m.UniqueID, m.PointID))
			continue
		}
		warnings = append(warnings, types.NewFinding(types.Advisory, CheckSimilar, types.FieldContent,
			"similar content (score %.2f) in %s (unique_id=%s, id=%s); review before storing", m.Score, m.Collection, m.UniqueID, m.PointID))
	}
	for _, s := range r.Skipped {
		where := s.Collection
		if where == "" {
			where = "all collections"
		}
		warnings = append(warnings, types.NewFinding(types.CollaboratorUnavailable, s.Check, "",
			"%s check skipped for %s: %s", s.Check, where, s.Reason))
	}
	return errs, warnings
}

package types

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"sort"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"
)

// =============================================================================
// SHARD MODEL
// =============================================================================

// CharsPerToken is the divisor used for every token estimate.
const CharsPerToken = 4

// Metadata keys as they appear in store payloads and caller mappings.
const (
	FieldUniqueID   = "unique_id"
	FieldType       = "type"
	FieldComponent  = "component"
	FieldImportance = "importance"
	FieldCreatedAt  = "created_at"
	FieldAgent      = "agent"
	FieldGroupID    = "group_id"
	FieldStoryID    = "story_id"
	FieldEpicID     = "epic_id"
	FieldTags       = "tags"
	FieldContent    = "content"
	FieldHash       = "content_hash"
)

// RequiredFields lists the metadata keys every shard must carry, in check order.
var RequiredFields = []string{
	FieldUniqueID,
	FieldType,
	FieldComponent,
	FieldImportance,
	FieldCreatedAt,
	FieldAgent,
	FieldGroupID,
}

// createdAtLayouts are tried in order when parsing created_at.
var createdAtLayouts = []string{
	time.RFC3339Nano,
	time.RFC3339,
	"2006-01-02T15:04:05.999999999",
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05",
	"2006-01-02",
}

// Shard is an immutable, validated knowledge fragment.
type Shard struct {
	ID          string
	Content     string
	ContentHash string
	TokenCount  int
	UniqueID    string
	GroupID     string
	Type        MemoryType
	Agent       Agent
	Component   string
	Importance  Importance
	CreatedAt   time.Time
	StoryID     string
	EpicID      string
	Tags        []string
}

// ShardInput holds the raw fields a producer supplies.
type ShardInput struct {
	Content    string
	UniqueID   string
	GroupID    string
	Type       string
	Agent      string
	Component  string
	Importance string
	CreatedAt  string
	StoryID    string
	EpicID     string
	Tags       []string
}

// EstimateTokens approximates the token count of s as runes / 4.
func EstimateTokens(s string) int {
	return utf8.RuneCountInString(s) / CharsPerToken
}

// NormalizeContent canonicalizes content before hashing.
func NormalizeContent(s string) string {
	s = strings.ReplaceAll(s, "\r\n", "\n")
	return strings.TrimSpace(s)
}

// ContentHash returns the hex SHA-256 digest of the normalized content.
func ContentHash(content string) string {
	sum := sha256.Sum256([]byte(NormalizeContent(content)))
	return hex.EncodeToString(sum[:])
}

// ParseCreatedAt parses a created_at value as a calendar date or timestamp.
func ParseCreatedAt(s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	for _, layout := range createdAtLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("created_at %q is not an ISO 8601 date", s)
}

// NewShard constructs a Shard. It performs no I/O. The returned error is
// always a *Finding.
func NewShard(in ShardInput) (*Shard, error) {
	memType, ok := ParseMemoryType(in.Type)
	if !ok {
		f := NewFinding(SchemaError, "shard", FieldType, "invalid type %q", in.Type)
		return nil, &f
	}

	tokens := EstimateTokens(in.Content)
	bounds := memType.TokenBounds()
	if !bounds.Contains(tokens) {
		f := NewFinding(RangeError, "shard", FieldContent,
			"content is ~%d tokens; %s requires %d-%d", tokens, memType, bounds.Min, bounds.Max)
		return nil, &f
	}

	createdAt, err := ParseCreatedAt(in.CreatedAt)
	if err != nil {
		f := NewFinding(FormatError, "shard", FieldCreatedAt, "%v", err)
		return nil, &f
	}

	agent, ok := ParseAgent(in.Agent)
	if !ok {
		f := NewFinding(SchemaError, "shard", FieldAgent, "invalid agent %q", in.Agent)
		return nil, &f
	}
	importance, ok := ParseImportance(in.Importance)
	if !ok {
		f := NewFinding(SchemaError, "shard", FieldImportance, "invalid importance %q", in.Importance)
		return nil, &f
	}

	var tags []string
	if len(in.Tags) > 0 {
		seen := make(map[string]bool, len(in.Tags))
		for _, tag := range in.Tags {
			if tag == "" || seen[tag] {
				continue
			}
			seen[tag] = true
			tags = append(tags, tag)
		}
		sort.Strings(tags)
	}

	return &Shard{
		ID:          uuid.NewString(),
		Content:     in.Content,
		ContentHash: ContentHash(in.Content),
		TokenCount:  tokens,
		UniqueID:    in.UniqueID,
		GroupID:     in.GroupID,
		Type:        memType,
		Agent:       agent,
		Component:   in.Component,
		Importance:  importance,
		CreatedAt:   createdAt,
		StoryID:     in.StoryID,
		EpicID:      in.EpicID,
		Tags:        tags,
	}, nil
}

// NewShardFromMetadata builds a Shard from content and a flat metadata map.
func NewShardFromMetadata(content string, metadata map[string]interface{}) (*Shard, error) {
	return NewShard(ShardInput{
		Content:    content,
		UniqueID:   StringField(metadata, FieldUniqueID),
		GroupID:    StringField(metadata, FieldGroupID),
		Type:       StringField(metadata, FieldType),
		Agent:      StringField(metadata, FieldAgent),
		Component:  StringField(metadata, FieldComponent),
		Importance: StringField(metadata, FieldImportance),
		CreatedAt:  StringField(metadata, FieldCreatedAt),
		StoryID:    StringField(metadata, FieldStoryID),
		EpicID:     StringField(metadata, FieldEpicID),
		Tags:       StringSliceField(metadata, FieldTags),
	})
}

// Collection returns the logical collection the shard belongs to.
func (s *Shard) Collection() Collection {
	return s.Type.Collection()
}

// Payload returns the store payload for the shard.
func (s *Shard) Payload() map[string]interface{} {
	p := map[string]interface{}{
		FieldContent:    s.Content,
		FieldHash:       s.ContentHash,
		FieldUniqueID:   s.UniqueID,
		FieldGroupID:    s.GroupID,
		FieldType:       string(s.Type),
		FieldAgent:      string(s.Agent),
		FieldComponent:  s.Component,
		FieldImportance: string(s.Importance),
		FieldCreatedAt:  s.CreatedAt.Format(time.RFC3339),
	}
	if s.StoryID != "" {
		p[FieldStoryID] = s.StoryID
	}
	if s.EpicID != "" {
		p[FieldEpicID] = s.EpicID
	}
	if len(s.Tags) > 0 {
		p[FieldTags] = append([]string(nil), s.Tags...)
	}
	return p
}

// StringField reads key from m as a string. Non-string scalars are formatted;
// missing keys yield "".
func StringField(m map[string]interface{}, key string) string {
	v, ok := m[key]
	if !ok || v == nil {
		return ""
	}
	switch val := v.(type) {
	case string:
		return val
	case fmt.Stringer:
		return val.String()
	default:
		return fmt.Sprint(val)
	}
}

// StringSliceField reads key from m as a list of strings.
func StringSliceField(m map[string]interface{}, key string) []string {
	switch val := m[key].(type) {
	case []string:
		return append([]string(nil), val...)
	case []interface{}:
		out := make([]string, 0, len(val))
		for _, item := range val {
			if s, ok := item.(string); ok {
				out = append(out, s)
			}
		}
		return out
	case string:
		if val == "" {
			return nil
		}
		return []string{val}
	}
	return nil
}

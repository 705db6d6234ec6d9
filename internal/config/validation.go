package config

import "fmt"

// ValidationConfig holds the gatekeeper limits. Every field can be
// overridden from the environment.
type ValidationConfig struct {
	SimilarityThreshold float64 `yaml:"similarity_threshold" json:"similarity_threshold"`
	SimilarityTopK      int     `yaml:"similarity_top_k" json:"similarity_top_k"`
	// SimilarityPolicy: "advisory" or "blocking"
	SimilarityPolicy string `yaml:"similarity_policy" json:"similarity_policy"`

	MinContentLength  int `yaml:"min_content_length" json:"min_content_length"`
	MaxContentLength  int `yaml:"max_content_length" json:"max_content_length"`
	MaxTokensPerShard int `yaml:"max_tokens_per_shard" json:"max_tokens_per_shard"`

	MaxMetadataBytes int `yaml:"max_metadata_bytes" json:"max_metadata_bytes"`
	MaxMetadataDepth int `yaml:"max_metadata_depth" json:"max_metadata_depth"`

	// Maximum code-block lines before an advisory is raised
	MaxCodeLines int `yaml:"max_code_lines" json:"max_code_lines"`
}

// DefaultValidationConfig returns the stock gatekeeper limits.
func DefaultValidationConfig() ValidationConfig {
	return ValidationConfig{
		SimilarityThreshold: 0.85,
		SimilarityTopK:      5,
		SimilarityPolicy:    "advisory",
		MinContentLength:    100,
		MaxContentLength:    50000,
		MaxTokensPerShard:   300,
		MaxMetadataBytes:    1_000_000,
		MaxMetadataDepth:    100,
		MaxCodeLines:        10,
	}
}

// Validate checks the limits for internal consistency.
func (v ValidationConfig) Validate() error {
	if v.SimilarityThreshold <= 0 || v.SimilarityThreshold > 1 {
		return fmt.Errorf("similarity_threshold must be in (0, 1], got %v", v.SimilarityThreshold)
	}
	if v.MinContentLength < 0 || v.MaxContentLength <= 0 || v.MinContentLength >= v.MaxContentLength {
		return fmt.Errorf("content length bounds invalid: min=%d max=%d", v.MinContentLength, v.MaxContentLength)
	}
	if v.MaxTokensPerShard <= 0 {
		return fmt.Errorf("max_tokens_per_shard must be positive, got %d", v.MaxTokensPerShard)
	}
	if v.MaxMetadataBytes <= 0 || v.MaxMetadataDepth <= 0 {
		return fmt.Errorf("metadata limits must be positive: bytes=%d depth=%d", v.MaxMetadataBytes, v.MaxMetadataDepth)
	}
	switch v.SimilarityPolicy {
	case "", "advisory", "blocking":
	default:
		return fmt.Errorf("invalid similarity_policy: %s (valid: advisory, blocking)", v.SimilarityPolicy)
	}
	return nil
}

// BudgetConfig configures per-agent retrieval budgets.
type BudgetConfig struct {
	DefaultTokens int            `yaml:"default_tokens" json:"default_tokens"`
	MaxMemories   int            `yaml:"max_memories" json:"max_memories"`
	Agents        map[string]int `yaml:"agents" json:"agents,omitempty"`
}

// DefaultBudgetConfig returns the stock budget table.
func DefaultBudgetConfig() BudgetConfig {
	return BudgetConfig{
		DefaultTokens: 1000,
		MaxMemories:   3,
		Agents: map[string]int{
			"architect":           1500,
			"analyst":             1200,
			"pm":                  1200,
			"dev":                 1000,
			"tea":                 1000,
			"tech-writer":         1000,
			"ux-designer":         1000,
			"quick-flow-solo-dev": 1000,
			"sm":                  800,
		},
	}
}

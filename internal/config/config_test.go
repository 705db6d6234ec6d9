package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

// =============================================================================
// UNIFIED CONFIG TESTS
// =============================================================================

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()
	if cfg.Validation.SimilarityThreshold != 0.85 {
		t.Errorf("expected SimilarityThreshold=0.85, got %v", cfg.Validation.SimilarityThreshold)
	}
	if cfg.Validation.MaxTokensPerShard != 300 {
		t.Errorf("expected MaxTokensPerShard=300, got %d", cfg.Validation.MaxTokensPerShard)
	}
	if cfg.Store.Collections.Knowledge != "bmad-knowledge" {
		t.Errorf("expected knowledge collection bmad-knowledge, got %s", cfg.Store.Collections.Knowledge)
	}
	if cfg.Budget.Agents["architect"] != 1500 || cfg.Budget.Agents["sm"] != 800 {
		t.Errorf("unexpected budget table: %v", cfg.Budget.Agents)
	}
	if err := cfg.Validate(); err != nil {
		t.Errorf("default config should validate: %v", err)
	}
}

func TestConfig_SaveLoad(t *testing.T) {
	// Ensure no env vars interfere
	t.Setenv("SIMILARITY_THRESHOLD", "")
	t.Setenv("SHARDGATE_STORE", "")
	t.Setenv("QDRANT_URL", "")

	tmpDir := t.TempDir()
	path := filepath.Join(tmpDir, "nested", "shardgate.yaml")

	cfg := DefaultConfig()
	cfg.Store.Backend = "qdrant"
	cfg.Store.QdrantURL = "http://qdrant:6333"
	cfg.Validation.SimilarityThreshold = 0.9

	if err := cfg.Save(path); err != nil {
		t.Fatalf("Save failed: %v", err)
	}

	loaded, err := Load(path)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	if loaded.Store.Backend != "qdrant" {
		t.Errorf("expected Backend=qdrant, got %s", loaded.Store.Backend)
	}
	if loaded.Store.QdrantURL != "http://qdrant:6333" {
		t.Errorf("expected QdrantURL to round-trip, got %s", loaded.Store.QdrantURL)
	}
	if loaded.Validation.SimilarityThreshold != 0.9 {
		t.Errorf("expected threshold 0.9, got %v", loaded.Validation.SimilarityThreshold)
	}
}

func TestLoad_MissingFileReturnsDefaults(t *testing.T) {
	t.Setenv("MAX_TOKENS_PER_SHARD", "")
	cfg, err := Load(filepath.Join(t.TempDir(), "absent.yaml"))
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if cfg.Validation.MaxTokensPerShard != 300 {
		t.Errorf("expected defaults, got %d", cfg.Validation.MaxTokensPerShard)
	}
}

func TestLoad_PartialFileKeepsDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "partial.yaml")
	data := "validation:\n  min_content_length: 50\n"
	if err := os.WriteFile(path, []byte(data), 0644); err != nil {
		t.Fatal(err)
	}
	t.Setenv("MIN_CONTENT_LENGTH", "")

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if cfg.Validation.MinContentLength != 50 {
		t.Errorf("expected MinContentLength=50, got %d", cfg.Validation.MinContentLength)
	}
	if cfg.Validation.MaxContentLength != 50000 {
		t.Errorf("expected MaxContentLength default to survive, got %d", cfg.Validation.MaxContentLength)
	}
}

func TestLoad_InvalidYAML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bad.yaml")
	if err := os.WriteFile(path, []byte("validation: [unclosed"), 0644); err != nil {
		t.Fatal(err)
	}
	if _, err := Load(path); err == nil {
		t.Fatal("expected parse error")
	}
}

func TestConfig_Validate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"threshold zero", func(c *Config) { c.Validation.SimilarityThreshold = 0 }},
		{"threshold above one", func(c *Config) { c.Validation.SimilarityThreshold = 1.2 }},
		{"min above max", func(c *Config) { c.Validation.MinContentLength = 60000 }},
		{"no token ceiling", func(c *Config) { c.Validation.MaxTokensPerShard = 0 }},
		{"unknown policy", func(c *Config) { c.Validation.SimilarityPolicy = "strict" }},
		{"unknown backend", func(c *Config) { c.Store.Backend = "redis" }},
		{"unknown provider", func(c *Config) { c.Embedding.Provider = "openai" }},
		{"empty collection", func(c *Config) { c.Store.Collections.AgentMemory = "" }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.mutate(cfg)
			if err := cfg.Validate(); err == nil {
				t.Errorf("expected validation error")
			}
		})
	}
}

func TestConfig_Durations(t *testing.T) {
	cfg := DefaultConfig()
	if got := cfg.GetStoreTimeout(); got != 10*time.Second {
		t.Errorf("expected 10s, got %v", got)
	}
	cfg.Store.Timeout = "garbage"
	if got := cfg.GetStoreTimeout(); got != 10*time.Second {
		t.Errorf("expected fallback 10s, got %v", got)
	}
	cfg.Embedding.CacheTTL = "5m"
	if got := cfg.GetEmbeddingCacheTTL(); got != 5*time.Minute {
		t.Errorf("expected 5m, got %v", got)
	}
}

func TestLoggingConfig_IsCategoryEnabled(t *testing.T) {
	lc := LoggingConfig{}
	if lc.IsCategoryEnabled("dedup") {
		t.Error("expected disabled outside debug mode")
	}
	lc.DebugMode = true
	if !lc.IsCategoryEnabled("dedup") {
		t.Error("expected enabled when no filter is set")
	}
	lc.Categories = map[string]bool{"dedup": false}
	if lc.IsCategoryEnabled("dedup") {
		t.Error("expected explicit false to disable category")
	}
	if !lc.IsCategoryEnabled("store") {
		t.Error("expected unlisted category to stay enabled")
	}
}

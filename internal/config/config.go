package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"shardgate/internal/types"
)

// Config holds all shardgate configuration.
type Config struct {
	// ProjectID is the default group id applied to searches and duplicate scoping.
	ProjectID string `yaml:"project_id"`

	// Vector store collaborator
	Store StoreConfig `yaml:"store"`

	// Embedding collaborator
	Embedding EmbeddingConfig `yaml:"embedding"`

	// Gatekeeper limits
	Validation ValidationConfig `yaml:"validation"`

	// Per-agent retrieval budgets
	Budget BudgetConfig `yaml:"budget"`

	// Logging
	Logging LoggingConfig `yaml:"logging"`
}

// DefaultConfig returns sensible defaults.
func DefaultConfig() *Config {
	return &Config{
		ProjectID: "bmad-project",

		Store: StoreConfig{
			Backend:      "sqlite",
			DatabasePath: filepath.Join(".shardgate", "shards.db"),
			QdrantURL:    "http://localhost:16350",
			Timeout:      "10s",
			Collections:  types.DefaultCollectionNames(),
			ScrollLimit:  500,
		},

		Embedding: EmbeddingConfig{
			Provider:       "ollama",
			OllamaEndpoint: "http://localhost:11434",
			OllamaModel:    "embeddinggemma",
			GenAIModel:     "gemini-embedding-001",
			TaskType:       "SEMANTIC_SIMILARITY",
			CacheTTL:       "30m",
		},

		Validation: DefaultValidationConfig(),

		Budget: DefaultBudgetConfig(),

		Logging: LoggingConfig{
			Level:      "info",
			Format:     "text",
			Dir:        filepath.Join(".shardgate", "logs"),
			DebugMode:  false,
			MaxSizeMB:  10,
			MaxBackups: 5,
		},
	}
}

// Load loads configuration from a YAML file. A missing file yields defaults.
// Environment overrides are applied in both cases.
func Load(path string) (*Config, error) {
	cfg := DefaultConfig()

	data, err := os.ReadFile(path)
	if err != nil && !os.IsNotExist(err) {
		return nil, fmt.Errorf("failed to read config: %w", err)
	}
	if err == nil {
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config: %w", err)
		}
	}

	cfg.applyEnvOverrides()

	return cfg, nil
}

// LoadDotEnv loads KEY=VALUE pairs from a .env file into the process
// environment. Variables already set are not overwritten. A missing file is
// not an error.
func LoadDotEnv(path string) error {
	if path == "" {
		path = ".env"
	}
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return nil
	}
	if err := godotenv.Load(path); err != nil {
		return fmt.Errorf("failed to load env file %s: %w", path, err)
	}
	return nil
}

// Save saves configuration to a YAML file.
func (c *Config) Save(path string) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("failed to write config: %w", err)
	}

	return nil
}

// applyEnvOverrides applies environment variable overrides.
// Unparseable numeric values are ignored.
func (c *Config) applyEnvOverrides() {
	// Gatekeeper limits
	envFloat("SIMILARITY_THRESHOLD", &c.Validation.SimilarityThreshold)
	envInt("MIN_CONTENT_LENGTH", &c.Validation.MinContentLength)
	envInt("MAX_CONTENT_LENGTH", &c.Validation.MaxContentLength)
	envInt("MAX_TOKENS_PER_SHARD", &c.Validation.MaxTokensPerShard)
	envInt("MAX_METADATA_BYTES", &c.Validation.MaxMetadataBytes)
	envInt("MAX_METADATA_DEPTH", &c.Validation.MaxMetadataDepth)
	envString("SIMILARITY_POLICY", &c.Validation.SimilarityPolicy)

	// Store
	envString("SHARDGATE_STORE", &c.Store.Backend)
	envString("SHARDGATE_DB", &c.Store.DatabasePath)
	envString("QDRANT_URL", &c.Store.QdrantURL)
	envString("QDRANT_API_KEY", &c.Store.QdrantAPIKey)
	envString("QDRANT_KNOWLEDGE_COLLECTION", &c.Store.Collections.Knowledge)
	envString("QDRANT_BEST_PRACTICES_COLLECTION", &c.Store.Collections.BestPractices)
	envString("QDRANT_AGENT_MEMORY_COLLECTION", &c.Store.Collections.AgentMemory)

	// Tenant
	envString("PROJECT_ID", &c.ProjectID)

	// Embedding
	envString("EMBEDDING_PROVIDER", &c.Embedding.Provider)
	envString("OLLAMA_ENDPOINT", &c.Embedding.OllamaEndpoint)
	envString("OLLAMA_MODEL", &c.Embedding.OllamaModel)
	if key := os.Getenv("GEMINI_API_KEY"); key != "" {
		c.Embedding.GenAIAPIKey = key
		if c.Embedding.Provider == "" {
			c.Embedding.Provider = "genai"
		}
	}
}

func envString(name string, dst *string) {
	if v := strings.TrimSpace(os.Getenv(name)); v != "" {
		*dst = v
	}
}

func envInt(name string, dst *int) {
	v := strings.TrimSpace(os.Getenv(name))
	if v == "" {
		return
	}
	if n, err := strconv.Atoi(v); err == nil {
		*dst = n
	}
}

func envFloat(name string, dst *float64) {
	v := strings.TrimSpace(os.Getenv(name))
	if v == "" {
		return
	}
	if f, err := strconv.ParseFloat(v, 64); err == nil {
		*dst = f
	}
}

// GetStoreTimeout returns the per-request timeout for the vector store.
func (c *Config) GetStoreTimeout() time.Duration {
	d, err := time.ParseDuration(c.Store.Timeout)
	if err != nil || d <= 0 {
		return 10 * time.Second
	}
	return d
}

// GetEmbeddingCacheTTL returns how long encoded vectors are memoized.
func (c *Config) GetEmbeddingCacheTTL() time.Duration {
	d, err := time.ParseDuration(c.Embedding.CacheTTL)
	if err != nil || d <= 0 {
		return 30 * time.Minute
	}
	return d
}

// Validate checks that the configuration is usable.
func (c *Config) Validate() error {
	switch c.Store.Backend {
	case "memory", "sqlite", "qdrant":
	default:
		return fmt.Errorf("invalid store backend: %s (valid: memory, sqlite, qdrant)", c.Store.Backend)
	}

	switch c.Embedding.Provider {
	case "ollama", "genai", "none", "":
	default:
		return fmt.Errorf("invalid embedding provider: %s (valid: ollama, genai, none)", c.Embedding.Provider)
	}

	for _, name := range c.Store.Collections.All() {
		if name == "" {
			return fmt.Errorf("collection names must not be empty")
		}
	}

	return c.Validation.Validate()
}

package config

import "shardgate/internal/types"

// StoreConfig configures the vector store collaborator.
type StoreConfig struct {
	// Backend: "memory", "sqlite" or "qdrant"
	Backend string `yaml:"backend" json:"backend"`

	// SQLite storage
	DatabasePath string `yaml:"database_path" json:"database_path"`

	// Qdrant REST endpoint
	QdrantURL    string `yaml:"qdrant_url" json:"qdrant_url"`
	QdrantAPIKey string `yaml:"qdrant_api_key" json:"qdrant_api_key,omitempty"`

	// Per-request timeout, e.g. "10s"
	Timeout string `yaml:"timeout" json:"timeout"`

	// Physical collection names
	Collections types.CollectionNames `yaml:"collections" json:"collections"`

	// Page size for full-scan duplicate checks
	ScrollLimit int `yaml:"scroll_limit" json:"scroll_limit"`
}

// EmbeddingConfig configures the vector embedding engine.
// Supports Ollama (local) and GenAI (cloud) backends.
type EmbeddingConfig struct {
	// Provider: "ollama", "genai" or "none"
	Provider string `yaml:"provider" json:"provider"`

	// Ollama Configuration (local embedding server)
	OllamaEndpoint string `yaml:"ollama_endpoint" json:"ollama_endpoint"` // Default: "http://localhost:11434"
	OllamaModel    string `yaml:"ollama_model" json:"ollama_model"`       // Default: "embeddinggemma"

	// GenAI Configuration (Google cloud embedding)
	GenAIAPIKey string `yaml:"genai_api_key" json:"genai_api_key"`
	GenAIModel  string `yaml:"genai_model" json:"genai_model"` // Default: "gemini-embedding-001"

	// TaskType for GenAI embeddings, e.g. SEMANTIC_SIMILARITY or RETRIEVAL_QUERY
	TaskType string `yaml:"task_type" json:"task_type"`

	// How long encoded vectors stay memoized, e.g. "30m"
	CacheTTL string `yaml:"cache_ttl" json:"cache_ttl"`
}

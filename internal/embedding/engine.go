// Package embedding encodes shard content into vectors for the similarity
// check and context search. Backends: a local Ollama server or Google GenAI.
package embedding

import (
	"context"
	"errors"
	"fmt"
	"math"

	"shardgate/internal/logging"
)

// EmbeddingEngine encodes text. The same model version must always return the
// same vector for the same text, otherwise similarity scores drift between
// submissions.
type EmbeddingEngine interface {
	Embed(ctx context.Context, text string) ([]float32, error)
	EmbedBatch(ctx context.Context, texts []string) ([][]float32, error)
	Dimensions() int
	Name() string
}

// HealthChecker is implemented by engines that can probe their backend.
type HealthChecker interface {
	HealthCheck(ctx context.Context) error
}

// ErrEmptyEmbedding is returned when a backend answers without a vector.
var ErrEmptyEmbedding = errors.New("embedding backend returned an empty vector")

// Provider names accepted by NewEngine.
const (
	ProviderNone   = "none"
	ProviderOllama = "ollama"
	ProviderGenAI  = "genai"
)

// Config selects and parameterizes a backend.
type Config struct {
	Provider string `json:"provider"`

	OllamaEndpoint string `json:"ollama_endpoint"`
	OllamaModel    string `json:"ollama_model"`

	GenAIAPIKey string `json:"genai_api_key"`
	GenAIModel  string `json:"genai_model"`
	// TaskType is the GenAI embedding task; similarity checks use SEMANTIC_SIMILARITY.
	TaskType string `json:"task_type"`
}

// DefaultConfig targets a local Ollama with embeddinggemma.
func DefaultConfig() Config {
	return Config{
		Provider:       ProviderOllama,
		OllamaEndpoint: defaultOllamaEndpoint,
		OllamaModel:    defaultOllamaModel,
		GenAIModel:     defaultGenAIModel,
		TaskType:       "SEMANTIC_SIMILARITY",
	}
}

// NewEngine builds the configured backend. Provider "none" (or empty) returns
// a nil engine and a nil error: the gatekeeper then reports the similarity
// check as unavailable instead of failing.
func NewEngine(cfg Config) (EmbeddingEngine, error) {
	timer := logging.StartTimer(logging.CategoryEmbedding, "NewEngine")
	defer timer.Stop()

	var (
		engine EmbeddingEngine
		err    error
	)
	switch cfg.Provider {
	case ProviderNone, "":
		logging.Embedding("Embeddings disabled; similarity checks will be skipped")
		return nil, nil
	case ProviderOllama:
		engine, err = NewOllamaEngine(cfg.OllamaEndpoint, cfg.OllamaModel)
	case ProviderGenAI:
		engine, err = NewGenAIEngine(cfg.GenAIAPIKey, cfg.GenAIModel, cfg.TaskType)
	default:
		err = fmt.Errorf("unsupported embedding provider %q (valid: %s, %s, %s)",
			cfg.Provider, ProviderOllama, ProviderGenAI, ProviderNone)
	}
	if err != nil {
		logging.Get(logging.CategoryEmbedding).Error("Embedding engine unavailable: %v", err)
		return nil, err
	}

	logging.Embedding("Using %s (dims=%d)", engine.Name(), engine.Dimensions())
	return engine, nil
}

// CosineSimilarity scores a against b in [-1, 1]. A zero vector scores 0;
// mismatched lengths are an error.
func CosineSimilarity(a, b []float32) (float64, error) {
	if len(a) != len(b) {
		return 0, fmt.Errorf("vector length mismatch: %d != %d", len(a), len(b))
	}

	var dot, normA, normB float64
	for i := range a {
		x, y := float64(a[i]), float64(b[i])
		dot += x * y
		normA += x * x
		normB += y * y
	}
	if normA == 0 || normB == 0 {
		return 0, nil
	}
	return dot / (math.Sqrt(normA) * math.Sqrt(normB)), nil
}

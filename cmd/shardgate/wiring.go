package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"go.uber.org/zap"
	"gopkg.in/yaml.v3"

	"shardgate/internal/budget"
	"shardgate/internal/dedup"
	"shardgate/internal/embedding"
	"shardgate/internal/retrieval"
	"shardgate/internal/store"
	"shardgate/internal/validation"
)

// openStore opens the configured vector store. The returned func releases it.
func openStore() (store.VectorStore, func(), error) {
	st, err := store.Open(cfg.Store, cfg.GetStoreTimeout())
	if err != nil {
		return nil, nil, fmt.Errorf("failed to open %s store: %w", cfg.Store.Backend, err)
	}
	closeFn := func() {
		if c, ok := st.(io.Closer); ok {
			if err := c.Close(); err != nil {
				logger.Warn("Failed to close store", zap.Error(err))
			}
		}
	}
	return st, closeFn, nil
}

// buildEngine returns the configured embedding engine wrapped in a cache, or
// nil when embeddings are disabled.
func buildEngine() (embedding.EmbeddingEngine, error) {
	engine, err := embedding.NewEngine(embedding.Config{
		Provider:       cfg.Embedding.Provider,
		OllamaEndpoint: cfg.Embedding.OllamaEndpoint,
		OllamaModel:    cfg.Embedding.OllamaModel,
		GenAIAPIKey:    cfg.Embedding.GenAIAPIKey,
		GenAIModel:     cfg.Embedding.GenAIModel,
		TaskType:       cfg.Embedding.TaskType,
	})
	if err != nil {
		return nil, err
	}
	if engine == nil {
		return nil, nil
	}
	return embedding.NewCachedEngine(engine, cfg.GetEmbeddingCacheTTL()), nil
}

func buildDetector(st store.VectorStore, engine embedding.EmbeddingEngine) *dedup.Detector {
	return dedup.New(st, engine, dedup.Config{
		Collections:         cfg.Store.Collections.All(),
		ScrollLimit:         cfg.Store.ScrollLimit,
		SimilarityThreshold: cfg.Validation.SimilarityThreshold,
		TopK:                cfg.Validation.SimilarityTopK,
	})
}

// gatekeeper wires the pipeline. With offline set, no store or engine is
// opened and duplicate checks are skipped.
func gatekeeper(offline bool) (*validation.Pipeline, store.VectorStore, embedding.EmbeddingEngine, func(), error) {
	if offline {
		return validation.New(cfg.Validation, nil), nil, nil, func() {}, nil
	}
	st, closeFn, err := openStore()
	if err != nil {
		return nil, nil, nil, nil, err
	}
	engine, err := buildEngine()
	if err != nil {
		// Similarity is reported unavailable; hash and id checks still run.
		logger.Warn("Embedding engine unavailable", zap.Error(err))
		engine = nil
	}
	return validation.New(cfg.Validation, buildDetector(st, engine)), st, engine, closeFn, nil
}

func buildSearcher(st store.VectorStore, engine embedding.EmbeddingEngine) *retrieval.Searcher {
	return retrieval.NewSearcher(st, engine, cfg.Store.Collections, cfg.ProjectID, budget.New(cfg.Budget))
}

// readContent returns inline content or the contents of file ("-" is stdin).
func readContent(inline, file string) (string, error) {
	switch {
	case inline != "" && file != "":
		return "", fmt.Errorf("use either --content or --content-file, not both")
	case inline != "":
		return inline, nil
	case file == "-":
		data, err := io.ReadAll(os.Stdin)
		if err != nil {
			return "", fmt.Errorf("failed to read stdin: %w", err)
		}
		return string(data), nil
	case file != "":
		data, err := os.ReadFile(file)
		if err != nil {
			return "", fmt.Errorf("failed to read content: %w", err)
		}
		return string(data), nil
	}
	return "", fmt.Errorf("content required (--content or --content-file)")
}

// readMetadata parses inline JSON or a JSON/YAML file into a flat mapping.
func readMetadata(inline, file string) (map[string]interface{}, error) {
	var (
		data   []byte
		isYAML bool
	)
	switch {
	case inline != "" && file != "":
		return nil, fmt.Errorf("use either --metadata or --metadata-file, not both")
	case inline != "":
		data = []byte(inline)
	case file != "":
		var err error
		data, err = os.ReadFile(file)
		if err != nil {
			return nil, fmt.Errorf("failed to read metadata: %w", err)
		}
		ext := strings.ToLower(filepath.Ext(file))
		isYAML = ext == ".yaml" || ext == ".yml"
	default:
		return nil, fmt.Errorf("metadata required (--metadata or --metadata-file)")
	}

	md := map[string]interface{}{}
	if isYAML {
		if err := yaml.Unmarshal(data, &md); err != nil {
			return nil, fmt.Errorf("failed to parse metadata YAML: %w", err)
		}
	} else if err := json.Unmarshal(data, &md); err != nil {
		return nil, fmt.Errorf("failed to parse metadata JSON: %w", err)
	}
	return normalizeMetadata(md), nil
}

// normalizeMetadata renders YAML timestamps back to RFC 3339 strings.
func normalizeMetadata(md map[string]interface{}) map[string]interface{} {
	for k, v := range md {
		md[k] = normalizeValue(v)
	}
	return md
}

func normalizeValue(v interface{}) interface{} {
	switch val := v.(type) {
	case time.Time:
		if val.Hour() == 0 && val.Minute() == 0 && val.Second() == 0 && val.Nanosecond() == 0 {
			return val.Format("2006-01-02")
		}
		return val.Format(time.RFC3339)
	case map[string]interface{}:
		return normalizeMetadata(val)
	case []interface{}:
		for i := range val {
			val[i] = normalizeValue(val[i])
		}
		return val
	}
	return v
}

package store

import (
	"fmt"
	"time"

	"shardgate/internal/config"
	"shardgate/internal/logging"
)

// Open builds the configured vector store. The result also implements
// Writer, and HealthChecker where the backend supports it.
func Open(cfg config.StoreConfig, timeout time.Duration) (VectorStore, error) {
	logging.Store("Opening vector store backend=%s", cfg.Backend)

	switch cfg.Backend {
	case "memory":
		return NewMemoryStore(), nil
	case "sqlite", "":
		s, err := NewSQLiteStore(cfg.DatabasePath)
		if err != nil {
			return nil, err
		}
		return s, nil
	case "qdrant":
		return NewQdrantStore(cfg.QdrantURL, cfg.QdrantAPIKey, timeout), nil
	default:
		return nil, fmt.Errorf("unsupported store backend: %s (use 'memory', 'sqlite' or 'qdrant')", cfg.Backend)
	}
}

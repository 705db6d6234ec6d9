package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"sync"

	_ "modernc.org/sqlite"

	"shardgate/internal/embedding"
	"shardgate/internal/logging"
)

// SQLiteStore persists collections in a single SQLite database. Exact-match
// lookups on unique_id, content_hash and group_id are served from indexed
// columns; similarity is computed in process over JSON-encoded vectors.
type SQLiteStore struct {
	db     *sql.DB
	mu     sync.RWMutex
	dbPath string
}

// indexedColumns maps payload keys to dedicated indexed columns.
var indexedColumns = map[string]string{
	"unique_id":    "unique_id",
	"content_hash": "content_hash",
	"group_id":     "group_id",
}

// NewSQLiteStore opens (or creates) the database at path. Use ":memory:" for
// an ephemeral store.
func NewSQLiteStore(path string) (*SQLiteStore, error) {
	timer := logging.StartTimer(logging.CategoryStore, "NewSQLiteStore")
	defer timer.Stop()

	logging.Store("Initializing SQLiteStore at path: %s", path)

	if path != ":memory:" {
		dir := filepath.Dir(path)
		if err := os.MkdirAll(dir, 0755); err != nil {
			logging.StoreError("Failed to create directory %s: %v", dir, err)
			return nil, fmt.Errorf("failed to create directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		logging.StoreError("Failed to open database at %s: %v", path, err)
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	if _, err := db.Exec("PRAGMA busy_timeout = 5000"); err != nil {
		logging.StoreDebug("Failed to set sqlite busy_timeout: %v", err)
	}
	if path != ":memory:" {
		if _, err := db.Exec("PRAGMA journal_mode = WAL"); err != nil {
			logging.StoreDebug("Failed to set sqlite journal_mode=WAL: %v", err)
		}
		if _, err := db.Exec("PRAGMA synchronous = NORMAL"); err != nil {
			logging.StoreDebug("Failed to set sqlite synchronous=NORMAL: %v", err)
		}
	}

	s := &SQLiteStore{db: db, dbPath: path}
	if err := s.initialize(); err != nil {
		logging.StoreError("Failed to initialize schema: %v", err)
		db.Close()
		return nil, err
	}
	logging.StoreDebug("Database schema initialized successfully")

	return s, nil
}

func (s *SQLiteStore) initialize() error {
	schema := []string{
		`CREATE TABLE IF NOT EXISTS collections (
			name TEXT PRIMARY KEY,
			dimensions INTEGER NOT NULL DEFAULT 0,
			created_at DATETIME DEFAULT CURRENT_TIMESTAMP
		)`,
		`CREATE TABLE IF NOT EXISTS points (
			seq INTEGER PRIMARY KEY AUTOINCREMENT,
			collection TEXT NOT NULL,
			id TEXT NOT NULL,
			unique_id TEXT,
			content_hash TEXT,
			group_id TEXT,
			payload TEXT NOT NULL,
			embedding TEXT,
			updated_at DATETIME DEFAULT CURRENT_TIMESTAMP,
			UNIQUE(collection, id)
		)`,
		`CREATE INDEX IF NOT EXISTS idx_points_unique_id ON points(collection, unique_id)`,
		`CREATE INDEX IF NOT EXISTS idx_points_content_hash ON points(collection, content_hash)`,
		`CREATE INDEX IF NOT EXISTS idx_points_group_id ON points(collection, group_id)`,
	}
	for _, stmt := range schema {
		if _, err := s.db.Exec(stmt); err != nil {
			return fmt.Errorf("failed to initialize schema: %w", err)
		}
	}
	return nil
}

// Close closes the database.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// HealthCheck pings the database.
func (s *SQLiteStore) HealthCheck(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

func (s *SQLiteStore) collectionExists(ctx context.Context, collection string) error {
	var name string
	err := s.db.QueryRowContext(ctx, "SELECT name FROM collections WHERE name = ?", collection).Scan(&name)
	if errors.Is(err, sql.ErrNoRows) {
		return fmt.Errorf("%s: %w", collection, ErrCollectionNotFound)
	}
	return err
}

// EnsureCollection creates collection if it does not exist.
func (s *SQLiteStore) EnsureCollection(ctx context.Context, collection string, dimensions int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, err := s.db.ExecContext(ctx,
		"INSERT INTO collections (name, dimensions) VALUES (?, ?) ON CONFLICT(name) DO NOTHING",
		collection, dimensions)
	if err != nil {
		return fmt.Errorf("failed to create collection %s: %w", collection, err)
	}
	logging.StoreDebug("Ensured collection %s (dims=%d)", collection, dimensions)
	return nil
}

// Upsert inserts or replaces points by id.
func (s *SQLiteStore) Upsert(ctx context.Context, collection string, points []Point) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.collectionExists(ctx, collection); err != nil {
		return fmt.Errorf("upsert: %w", err)
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO points (collection, id, unique_id, content_hash, group_id, payload, embedding)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(collection, id) DO UPDATE SET
			unique_id = excluded.unique_id,
			content_hash = excluded.content_hash,
			group_id = excluded.group_id,
			payload = excluded.payload,
			embedding = excluded.embedding,
			updated_at = CURRENT_TIMESTAMP`)
	if err != nil {
		return fmt.Errorf("failed to prepare upsert: %w", err)
	}
	defer stmt.Close()

	for _, p := range points {
		if p.ID == "" {
			return fmt.Errorf("upsert into %s: point id required", collection)
		}
		payloadJSON, err := json.Marshal(p.Payload)
		if err != nil {
			return fmt.Errorf("failed to marshal payload for %s: %w", p.ID, err)
		}
		var embeddingJSON interface{}
		if len(p.Vector) > 0 {
			data, err := json.Marshal(p.Vector)
			if err != nil {
				return fmt.Errorf("failed to marshal vector for %s: %w", p.ID, err)
			}
			embeddingJSON = string(data)
		}
		if _, err := stmt.ExecContext(ctx, collection, p.ID,
			nullable(p.PayloadString("unique_id")),
			nullable(p.PayloadString("content_hash")),
			nullable(p.PayloadString("group_id")),
			string(payloadJSON), embeddingJSON); err != nil {
			return fmt.Errorf("failed to upsert %s: %w", p.ID, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit upsert: %w", err)
	}
	logging.StoreDebug("Upserted %d points into %s", len(points), collection)
	return nil
}

func nullable(s string) interface{} {
	if s == "" {
		return nil
	}
	return s
}

// Scroll pages through a collection in insertion order. Offsets are the last
// row sequence number seen.
func (s *SQLiteStore) Scroll(ctx context.Context, collection, offset string, limit int) ([]Point, string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if err := s.collectionExists(ctx, collection); err != nil {
		return nil, "", fmt.Errorf("scroll: %w", err)
	}
	if limit <= 0 {
		limit = 500
	}
	var after int64
	if offset != "" {
		n, err := strconv.ParseInt(offset, 10, 64)
		if err != nil {
			return nil, "", fmt.Errorf("scroll %s: invalid offset %q", collection, offset)
		}
		after = n
	}

	rows, err := s.db.QueryContext(ctx,
		"SELECT seq, id, payload FROM points WHERE collection = ? AND seq > ? ORDER BY seq LIMIT ?",
		collection, after, limit)
	if err != nil {
		return nil, "", fmt.Errorf("scroll %s: %w", collection, err)
	}
	defer rows.Close()

	var page []Point
	var lastSeq int64
	scanned := 0
	for rows.Next() {
		var p Point
		var payloadJSON string
		scanned++
		if err := rows.Scan(&lastSeq, &p.ID, &payloadJSON); err != nil {
			return nil, "", fmt.Errorf("scroll %s: %w", collection, err)
		}
		if err := json.Unmarshal([]byte(payloadJSON), &p.Payload); err != nil {
			logging.StoreWarn("Skipping point %s with unreadable payload: %v", p.ID, err)
			continue
		}
		page = append(page, p)
	}
	if err := rows.Err(); err != nil {
		return nil, "", fmt.Errorf("scroll %s: %w", collection, err)
	}

	// Paging follows rows read, so skipped payloads never end the scan early.
	next := ""
	if scanned == limit {
		next = strconv.FormatInt(lastSeq, 10)
	}
	return page, next, nil
}

// FindByPayload looks up points by an exact payload value. Indexed keys use
// their columns; other keys fall back to json_extract.
func (s *SQLiteStore) FindByPayload(ctx context.Context, collection, key, value string, limit int) ([]Point, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if err := s.collectionExists(ctx, collection); err != nil {
		return nil, fmt.Errorf("find: %w", err)
	}
	if limit <= 0 {
		limit = 500
	}

	var rows *sql.Rows
	var err error
	if col, ok := indexedColumns[key]; ok {
		rows, err = s.db.QueryContext(ctx,
			"SELECT id, payload FROM points WHERE collection = ? AND "+col+" = ? ORDER BY seq LIMIT ?",
			collection, value, limit)
	} else {
		rows, err = s.db.QueryContext(ctx,
			"SELECT id, payload FROM points WHERE collection = ? AND json_extract(payload, ?) = ? ORDER BY seq LIMIT ?",
			collection, "$."+key, value, limit)
	}
	if err != nil {
		return nil, fmt.Errorf("find in %s: %w", collection, err)
	}
	defer rows.Close()

	var out []Point
	for rows.Next() {
		var p Point
		var payloadJSON string
		if err := rows.Scan(&p.ID, &payloadJSON); err != nil {
			return nil, fmt.Errorf("find in %s: %w", collection, err)
		}
		if err := json.Unmarshal([]byte(payloadJSON), &p.Payload); err != nil {
			continue
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

// Query ranks stored vectors by cosine similarity.
func (s *SQLiteStore) Query(ctx context.Context, collection string, vector []float32, topK int, filter *Filter) ([]ScoredPoint, error) {
	timer := logging.StartTimer(logging.CategoryStore, "SQLiteStore.Query")
	defer timer.Stop()

	s.mu.RLock()
	defer s.mu.RUnlock()

	if err := s.collectionExists(ctx, collection); err != nil {
		return nil, fmt.Errorf("query: %w", err)
	}
	if topK <= 0 {
		topK = 5
	}

	rows, err := s.db.QueryContext(ctx,
		"SELECT id, payload, embedding FROM points WHERE collection = ? AND embedding IS NOT NULL ORDER BY seq",
		collection)
	if err != nil {
		return nil, fmt.Errorf("query %s: %w", collection, err)
	}
	defer rows.Close()

	var scored []ScoredPoint
	var buf []float32
	for rows.Next() {
		var p Point
		var payloadJSON, embeddingJSON string
		if err := rows.Scan(&p.ID, &payloadJSON, &embeddingJSON); err != nil {
			continue
		}
		if err := json.Unmarshal([]byte(payloadJSON), &p.Payload); err != nil {
			continue
		}
		if !filter.Matches(p.Payload) {
			continue
		}
		buf, err = fastParseVectorJSON([]byte(embeddingJSON), buf)
		if err != nil {
			continue
		}
		score, err := embedding.CosineSimilarity(vector, buf)
		if err != nil {
			continue
		}
		scored = append(scored, ScoredPoint{Point: p, Score: score})
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("query %s: %w", collection, err)
	}

	sort.SliceStable(scored, func(i, j int) bool { return scored[i].Score > scored[j].Score })
	if len(scored) > topK {
		scored = scored[:topK]
	}
	return scored, nil
}

package embedding

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync/atomic"
	"time"
)

const (
	defaultOllamaEndpoint = "http://localhost:11434"
	defaultOllamaModel    = "embeddinggemma"
	// embeddinggemma's output size, reported until the first vector arrives.
	defaultOllamaDims = 768
)

// OllamaEngine talks to a local Ollama server over its JSON API.
type OllamaEngine struct {
	endpoint string
	model    string
	client   *http.Client

	// dims tracks the length of the last vector returned. Embed may run from
	// several detector goroutines at once.
	dims atomic.Int64
}

// NewOllamaEngine returns an engine for endpoint and model, filling in the
// local defaults for empty values.
func NewOllamaEngine(endpoint, model string) (*OllamaEngine, error) {
	if endpoint == "" {
		endpoint = defaultOllamaEndpoint
	}
	if model == "" {
		model = defaultOllamaModel
	}
	e := &OllamaEngine{
		endpoint: strings.TrimRight(endpoint, "/"),
		model:    model,
		client:   &http.Client{Timeout: 30 * time.Second},
	}
	e.dims.Store(defaultOllamaDims)
	return e, nil
}

func (e *OllamaEngine) post(ctx context.Context, path string, in, out interface{}) error {
	body, err := json.Marshal(in)
	if err != nil {
		return fmt.Errorf("ollama: encode request: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, e.endpoint+path, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("ollama: build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := e.client.Do(req)
	if err != nil {
		return fmt.Errorf("ollama request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return fmt.Errorf("ollama returned status %d: %s", resp.StatusCode, strings.TrimSpace(string(snippet)))
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("ollama: decode response: %w", err)
	}
	return nil
}

// Embed encodes one text.
func (e *OllamaEngine) Embed(ctx context.Context, text string) ([]float32, error) {
	var res ollamaEmbedResponse
	if err := e.post(ctx, "/api/embeddings", ollamaEmbedRequest{Model: e.model, Prompt: text}, &res); err != nil {
		return nil, err
	}
	if len(res.Embedding) == 0 {
		return nil, ErrEmptyEmbedding
	}
	e.dims.Store(int64(len(res.Embedding)))
	return res.Embedding, nil
}

// EmbedBatch encodes texts one request at a time; the embeddings endpoint
// takes a single prompt.
func (e *OllamaEngine) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, 0, len(texts))
	for i, text := range texts {
		vec, err := e.Embed(ctx, text)
		if err != nil {
			return nil, fmt.Errorf("text %d of %d: %w", i+1, len(texts), err)
		}
		out = append(out, vec)
	}
	return out, nil
}

// HealthCheck lists local models to confirm the server answers.
func (e *OllamaEngine) HealthCheck(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, e.endpoint+"/api/tags", nil)
	if err != nil {
		return fmt.Errorf("ollama: build request: %w", err)
	}
	resp, err := e.client.Do(req)
	if err != nil {
		return fmt.Errorf("ollama unreachable: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("ollama health check returned status %d", resp.StatusCode)
	}
	return nil
}

func (e *OllamaEngine) Dimensions() int { return int(e.dims.Load()) }

func (e *OllamaEngine) Name() string { return "ollama:" + e.model }

type ollamaEmbedRequest struct {
	Model  string `json:"model"`
	Prompt string `json:"prompt"`
}

type ollamaEmbedResponse struct {
	Embedding []float32 `json:"embedding"`
}

// Package embedding provides clients for external text embedding services.
//
// Clients are safe for concurrent use and never retry: a failed call is
// reported immediately as apperr.ErrEmbedding so the caller can decide
// between skipping the unit and aborting.
package embedding

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"golang.org/x/time/rate"

	"github.com/starford/reverie/internal/apperr"
)

// Providers.
const (
	ProviderOllama = "ollama"
	ProviderOpenAI = "openai"
)

// DefaultDimensions is the system-wide vector size.
const DefaultDimensions = 768

// Default configuration values.
const (
	DefaultOllamaURL   = "http://localhost:11434"
	DefaultOllamaModel = "nomic-embed-text"
	DefaultOpenAIURL   = "https://api.openai.com/v1"
	DefaultOpenAIModel = "text-embedding-3-small"
	DefaultTimeout     = 30 * time.Second
)

// Embedder turns text into a fixed-size vector.
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
	Dimensions() int
}

// Config holds configuration for an embedding client.
type Config struct {
	Provider   string
	BaseURL    string
	Model      string
	APIKey     string
	Dimensions int
	Timeout    time.Duration
	// RateLimit caps requests per second across all callers; 0 disables it.
	RateLimit float64
}

// New returns the client for cfg.Provider.
func New(cfg Config) (Embedder, error) {
	if cfg.Dimensions <= 0 {
		cfg.Dimensions = DefaultDimensions
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultTimeout
	}
	base := baseClient{
		http:       &http.Client{Timeout: cfg.Timeout},
		apiKey:     cfg.APIKey,
		model:      cfg.Model,
		dimensions: cfg.Dimensions,
	}
	if cfg.RateLimit > 0 {
		burst := int(cfg.RateLimit)
		if burst < 1 {
			burst = 1
		}
		base.limiter = rate.NewLimiter(rate.Limit(cfg.RateLimit), burst)
	}

	switch cfg.Provider {
	case ProviderOllama, "":
		base.baseURL = orDefault(cfg.BaseURL, DefaultOllamaURL)
		base.model = orDefault(cfg.Model, DefaultOllamaModel)
		return &Ollama{baseClient: base}, nil
	case ProviderOpenAI:
		if cfg.APIKey == "" {
			return nil, fmt.Errorf("embedding: openai: API key is required")
		}
		base.baseURL = orDefault(cfg.BaseURL, DefaultOpenAIURL)
		base.model = orDefault(cfg.Model, DefaultOpenAIModel)
		return &OpenAI{baseClient: base}, nil
	default:
		return nil, fmt.Errorf("embedding: unknown provider %q", cfg.Provider)
	}
}

type baseClient struct {
	http       *http.Client
	limiter    *rate.Limiter
	baseURL    string
	apiKey     string
	model      string
	dimensions int
}

// Dimensions returns the vector size every successful call yields.
func (c *baseClient) Dimensions() int { return c.dimensions }

// post sends body as JSON and decodes a 200 response into out.
func (c *baseClient) post(ctx context.Context, path string, body, out any) error {
	if c.limiter != nil {
		if err := c.limiter.Wait(ctx); err != nil {
			return fail("rate limit wait: %w", err)
		}
	}

	payload, err := json.Marshal(body)
	if err != nil {
		return fail("marshal request: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(payload))
	if err != nil {
		return fail("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return fail("send request: %w", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return fail("read response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return fail("status %d: %s", resp.StatusCode, truncate(string(raw), 200))
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return fail("decode response: %w", err)
	}
	return nil
}

// check converts a decoded vector and validates its size.
func (c *baseClient) check(values []float64) ([]float32, error) {
	if len(values) != c.dimensions {
		return nil, fail("got %d dimensions, want %d", len(values), c.dimensions)
	}
	out := make([]float32, len(values))
	for i, v := range values {
		out[i] = float32(v)
	}
	return out, nil
}

func fail(format string, args ...any) error {
	return fmt.Errorf("%w: %w", apperr.ErrEmbedding, fmt.Errorf(format, args...))
}

func orDefault(v, def string) string {
	if v == "" {
		return def
	}
	return v
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}

// Package embedding wraps the Cohere text-embedding API behind a small
// client that enforces dimensional compatibility with the vector store.
//
// The client tolerates two generations of the Cohere API: the v2 endpoint
// (embeddings keyed by type) is attempted first and the v1 endpoint (a bare
// embeddings array) is used as a fallback. This is a compatibility concern
// only; output semantics are identical.
package embedding

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"golang.org/x/time/rate"

	"github.com/Ahmed-Ali-Salman/CoachAI/internal/config"
	"github.com/Ahmed-Ali-Salman/CoachAI/internal/log"
)

var (
	// ErrProviderUnavailable indicates no API key is configured. Callers
	// must never silently receive an empty result instead of this error.
	ErrProviderUnavailable = errors.New("embedding provider unavailable: COHERE_API_KEY not set")

	// ErrDimensionMismatch indicates the provider returned vectors whose
	// width differs from the configured vector-store dimension. Vectors are
	// never truncated or padded; this error must surface to the operator.
	ErrDimensionMismatch = errors.New("embedding dimension mismatch")
)

const defaultBaseURL = "https://api.cohere.com"

// Client calls the Cohere embed API. Safe for concurrent use.
type Client struct {
	apiKey    string
	model     string
	baseURL   string
	dimension int
	client    *http.Client
	limiter   *rate.Limiter
	logger    log.Logger
}

// Option configures a Client.
type Option func(*Client)

// WithBaseURL overrides the API base URL. Used in tests.
func WithBaseURL(u string) Option {
	return func(c *Client) { c.baseURL = u }
}

// WithHTTPClient overrides the HTTP client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.client = hc }
}

// WithLimiter sets a proactive rate limiter applied before each API call.
func WithLimiter(l *rate.Limiter) Option {
	return func(c *Client) { c.limiter = l }
}

// NewClient creates a Cohere embedding client. Legacy size aliases in the
// model name ("small", "medium", "large") are replaced by a conservative
// default instead of being forwarded as an invalid selector.
//
// An empty apiKey is allowed at construction time; Embed fails with
// ErrProviderUnavailable when called.
func NewClient(apiKey, model string, dimension int, logger log.Logger, opts ...Option) *Client {
	if logger == nil {
		logger = log.NewNop()
	}

	c := &Client{
		apiKey:    apiKey,
		model:     config.ResolveEmbedModel(model),
		baseURL:   defaultBaseURL,
		dimension: dimension,
		client:    &http.Client{Timeout: 60 * time.Second},
		logger:    logger,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Available reports whether the client has a credential configured.
func (c *Client) Available() bool {
	return c.apiKey != ""
}

// Dimension returns the configured target vector width.
func (c *Client) Dimension() int {
	return c.dimension
}

// Model returns the resolved embedding model identifier.
func (c *Client) Model() string {
	return c.model
}

// Embed returns one vector per input string, order-preserving.
//
// It fails with ErrProviderUnavailable when no API key is configured and
// with ErrDimensionMismatch when the provider's vectors do not match the
// configured dimension. Both indicate misconfiguration and are meant to
// propagate, unlike transient retrieval failures.
func (c *Client) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	if !c.Available() {
		return nil, ErrProviderUnavailable
	}
	if len(texts) == 0 {
		return nil, nil
	}

	if c.limiter != nil {
		if err := c.limiter.Wait(ctx); err != nil {
			return nil, fmt.Errorf("embedding rate limit: %w", err)
		}
	}

	vectors, err := c.embedV2(ctx, texts)
	if err != nil {
		c.logger.Debug("v2 embed failed, falling back to v1", "error", err)
		vectors, err = c.embedV1(ctx, texts)
		if err != nil {
			return nil, fmt.Errorf("embedding request: %w", err)
		}
	}

	if len(vectors) != len(texts) {
		return nil, fmt.Errorf("embedding count mismatch: got %d vectors for %d texts", len(vectors), len(texts))
	}

	if len(vectors) > 0 && len(vectors[0]) != c.dimension {
		return nil, fmt.Errorf("%w: model %q returned %d dimensions, vector store expects %d",
			ErrDimensionMismatch, c.model, len(vectors[0]), c.dimension)
	}

	return vectors, nil
}

type embedV2Request struct {
	Model          string   `json:"model"`
	Texts          []string `json:"texts"`
	InputType      string   `json:"input_type"`
	EmbeddingTypes []string `json:"embedding_types"`
}

type embedV2Response struct {
	Embeddings struct {
		Float [][]float32 `json:"float"`
	} `json:"embeddings"`
	Message string `json:"message,omitempty"`
}

func (c *Client) embedV2(ctx context.Context, texts []string) ([][]float32, error) {
	body, err := c.post(ctx, "/v2/embed", embedV2Request{
		Model:          c.model,
		Texts:          texts,
		InputType:      "search_query",
		EmbeddingTypes: []string{"float"},
	})
	if err != nil {
		return nil, err
	}

	var resp embedV2Response
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, fmt.Errorf("parsing v2 response: %w", err)
	}
	if len(resp.Embeddings.Float) == 0 {
		return nil, errors.New("v2 response contained no float embeddings")
	}
	return resp.Embeddings.Float, nil
}

type embedV1Request struct {
	Model string   `json:"model"`
	Texts []string `json:"texts"`
}

type embedV1Response struct {
	Embeddings [][]float32 `json:"embeddings"`
	Message    string      `json:"message,omitempty"`
}

func (c *Client) embedV1(ctx context.Context, texts []string) ([][]float32, error) {
	body, err := c.post(ctx, "/v1/embed", embedV1Request{
		Model: c.model,
		Texts: texts,
	})
	if err != nil {
		return nil, err
	}

	var resp embedV1Response
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, fmt.Errorf("parsing v1 response: %w", err)
	}
	if len(resp.Embeddings) == 0 {
		return nil, errors.New("v1 response contained no embeddings")
	}
	return resp.Embeddings, nil
}

// post sends a JSON request and returns the response body. Non-2xx status
// codes are returned as errors with a bounded body preview.
func (c *Client) post(ctx context.Context, path string, payload any) ([]byte, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.apiKey)

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close() //nolint:errcheck

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		preview := string(body)
		if len(preview) > 200 {
			preview = preview[:200]
		}
		return nil, fmt.Errorf("API returned status %d: %s", resp.StatusCode, preview)
	}

	return body, nil
}

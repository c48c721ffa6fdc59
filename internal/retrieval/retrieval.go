// Package retrieval turns a query string into a ranked set of relevant
// lessons by embedding the query and delegating similarity search to the
// knowledge store.
package retrieval

import (
	"context"
	"errors"
	"fmt"

	"github.com/Ahmed-Ali-Salman/CoachAI/internal/embedding"
	"github.com/Ahmed-Ali-Salman/CoachAI/internal/log"
	"github.com/Ahmed-Ali-Salman/CoachAI/internal/session"
	"github.com/Ahmed-Ali-Salman/CoachAI/internal/store"
)

// ErrInvalidTopK indicates a top-K of zero or less was explicitly requested.
// The boundary is rejected rather than silently clamped.
var ErrInvalidTopK = errors.New("top-k must be >= 1")

// Embedder generates query vectors. Implemented by *embedding.Client.
type Embedder interface {
	Embed(ctx context.Context, texts []string) ([][]float32, error)
}

// Searcher performs scoped vector similarity search. Implemented by
// *store.Postgres.
type Searcher interface {
	SearchLessons(ctx context.Context, scope session.Scope, vec []float32, topK int) ([]store.Match, error)
}

// SearchOption configures a FindRelevant call.
type SearchOption func(*searchConfig)

type searchConfig struct {
	topK int
}

// WithTopK overrides the configured default top-K for one call.
func WithTopK(k int) SearchOption {
	return func(c *searchConfig) {
		c.topK = k
	}
}

// Orchestrator retrieves the lessons most relevant to a query.
// Safe for concurrent use.
type Orchestrator struct {
	embedder    Embedder
	searcher    Searcher
	defaultTopK int
	logger      log.Logger
}

// New creates an Orchestrator. defaultTopK applies when a call passes no
// WithTopK option and must be >= 1.
func New(embedder Embedder, searcher Searcher, defaultTopK int, logger log.Logger) (*Orchestrator, error) {
	if embedder == nil {
		return nil, errors.New("embedder is required")
	}
	if searcher == nil {
		return nil, errors.New("searcher is required")
	}
	if defaultTopK < 1 {
		return nil, fmt.Errorf("%w: default is %d", ErrInvalidTopK, defaultTopK)
	}
	if logger == nil {
		logger = log.NewNop()
	}
	return &Orchestrator{
		embedder:    embedder,
		searcher:    searcher,
		defaultTopK: defaultTopK,
		logger:      logger,
	}, nil
}

// FindRelevant returns at most topK lessons ordered by descending
// similarity to the query.
//
// Degradation contract: a transient embedding failure yields an empty
// result (retrieval degrades to "no grounding" instead of aborting the
// caller's flow). Misconfiguration, meaning a missing provider credential
// or a vector width that does not match the store, propagates, because
// swallowing it would hide silent data corruption risk.
func (o *Orchestrator) FindRelevant(ctx context.Context, scope session.Scope, query string, opts ...SearchOption) ([]store.Match, error) {
	cfg := searchConfig{topK: o.defaultTopK}
	for _, opt := range opts {
		opt(&cfg)
	}
	if cfg.topK < 1 {
		return nil, fmt.Errorf("%w: got %d", ErrInvalidTopK, cfg.topK)
	}

	vectors, err := o.embedder.Embed(ctx, []string{query})
	if err != nil {
		if errors.Is(err, embedding.ErrProviderUnavailable) || errors.Is(err, embedding.ErrDimensionMismatch) {
			return nil, err
		}
		o.logger.Warn("query embedding failed, returning no grounding", "error", err)
		return nil, nil
	}
	if len(vectors) == 0 {
		o.logger.Warn("embedder returned no vectors, returning no grounding")
		return nil, nil
	}

	matches, err := o.searcher.SearchLessons(ctx, scope, vectors[0], cfg.topK)
	if err != nil {
		return nil, fmt.Errorf("similarity search: %w", err)
	}
	return matches, nil
}

package cmd

import (
	"context"
	"fmt"

	"golang.org/x/time/rate"

	"github.com/Ahmed-Ali-Salman/CoachAI/internal/coach"
	"github.com/Ahmed-Ali-Salman/CoachAI/internal/embedding"
	"github.com/Ahmed-Ali-Salman/CoachAI/internal/model"
	"github.com/Ahmed-Ali-Salman/CoachAI/internal/prompt"
	"github.com/Ahmed-Ali-Salman/CoachAI/internal/record"
	"github.com/Ahmed-Ali-Salman/CoachAI/internal/retrieval"
	"github.com/Ahmed-Ali-Salman/CoachAI/internal/store"
)

// embedRPS bounds outbound embedding calls; the provider's free tier
// allows 100 requests per minute.
const embedRPS = rate.Limit(100.0 / 60.0)

// buildStore opens the connection pool and wraps it in the store layer.
// The returned cleanup closes the pool.
func buildStore(ctx context.Context) (*store.Postgres, func(), error) {
	pool, err := store.NewPool(ctx, cfg.PostgresConnectionString())
	if err != nil {
		return nil, nil, fmt.Errorf("connecting to database: %w", err)
	}
	return store.NewPostgres(pool, logger.With("component", "store")), pool.Close, nil
}

func buildEmbedder() *embedding.Client {
	return embedding.NewClient(cfg.CohereAPIKey, cfg.EmbedModel, cfg.EmbedDimension,
		logger.With("component", "embedding"),
		embedding.WithLimiter(rate.NewLimiter(embedRPS, 1)))
}

// buildService constructs the full orchestration stack from configuration.
// The returned cleanup closes the connection pool.
func buildService(ctx context.Context) (*coach.Service, func(), error) {
	pg, cleanup, err := buildStore(ctx)
	if err != nil {
		return nil, nil, err
	}

	embedder := buildEmbedder()

	retriever, err := retrieval.New(embedder, pg, cfg.TopK, logger.With("component", "retrieval"))
	if err != nil {
		cleanup()
		return nil, nil, err
	}

	generator, err := model.NewGemini(ctx, cfg.GeminiAPIKey, cfg.ModelName,
		cfg.Temperature, cfg.MaxTokens, logger.With("component", "model"))
	if err != nil {
		cleanup()
		return nil, nil, fmt.Errorf("initializing generator: %w", err)
	}

	recorder := record.New(pg, embedder, cfg.StorageBucket, logger.With("component", "record"))
	assembler := prompt.NewAssembler(cfg.MinPixels, cfg.MaxPixels)

	svc, err := coach.New(retriever, generator, recorder, assembler, cfg.ModelName,
		logger.With("component", "coach"))
	if err != nil {
		cleanup()
		return nil, nil, err
	}
	return svc, cleanup, nil
}

// Package model defines the generative model contract consumed by the
// orchestration service, plus the Gemini-backed implementation.
package model

import (
	"context"
	"errors"

	"github.com/Ahmed-Ali-Salman/CoachAI/internal/prompt"
)

// ErrProviderUnavailable indicates no generative model credential or client
// is configured.
var ErrProviderUnavailable = errors.New("generative model unavailable: GEMINI_API_KEY not set")

// Generator produces text from an ordered sequence of typed messages.
// Implementations must be safe for concurrent use.
type Generator interface {
	Generate(ctx context.Context, msgs []prompt.Message, opts ...GenerateOption) (string, error)
}

// GenerateOption overrides per-call generation parameters.
type GenerateOption func(*generateConfig)

type generateConfig struct {
	maxTokens   int
	temperature *float32
}

// WithMaxTokens caps the response length for one call.
func WithMaxTokens(n int) GenerateOption {
	return func(c *generateConfig) {
		c.maxTokens = n
	}
}

// WithTemperature overrides the sampling temperature for one call.
func WithTemperature(t float32) GenerateOption {
	return func(c *generateConfig) {
		c.temperature = &t
	}
}

func buildGenerateConfig(opts []GenerateOption) generateConfig {
	var cfg generateConfig
	for _, opt := range opts {
		opt(&cfg)
	}
	return cfg
}

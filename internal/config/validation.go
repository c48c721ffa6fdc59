package config

import (
	"fmt"
	"slices"
	"strings"
)

// Validate validates configuration values.
// Returns sentinel errors that can be checked with errors.Is().
//
// API keys are deliberately not required here: the embedding adapter and
// the generative adapter each fail with their own provider-unavailable
// error when called without a credential, so read-only paths keep working.
func (c *Config) Validate() error {
	if c == nil {
		return ErrConfigNil
	}

	// Generative model configuration
	if c.ModelName == "" {
		return fmt.Errorf("%w: model_name cannot be empty", ErrInvalidModelName)
	}

	// Temperature range: 0.0 (deterministic) to 2.0 (maximum creativity)
	if c.Temperature < 0.0 || c.Temperature > 2.0 {
		return fmt.Errorf("%w: must be between 0.0 and 2.0, got %.2f", ErrInvalidTemperature, c.Temperature)
	}

	if c.MaxTokens < 1 || c.MaxTokens > 2097152 {
		return fmt.Errorf("%w: must be between 1 and 2,097,152, got %d", ErrInvalidMaxTokens, c.MaxTokens)
	}

	// Embedding configuration
	if c.EmbedModel == "" {
		return fmt.Errorf("%w: embed_model cannot be empty", ErrInvalidEmbedModel)
	}
	if _, legacy := legacyEmbedAliases[strings.ToLower(strings.TrimSpace(c.EmbedModel))]; legacy {
		return fmt.Errorf("%w: legacy alias %q must be resolved before validation", ErrInvalidEmbedModel, c.EmbedModel)
	}

	if c.EmbedDimension < 1 || c.EmbedDimension > 4096 {
		return fmt.Errorf("%w: must be between 1 and 4096, got %d", ErrInvalidEmbedDimension, c.EmbedDimension)
	}

	// Retrieval configuration
	if c.TopK < 1 || c.TopK > 20 {
		return fmt.Errorf("%w: must be between 1 and 20, got %d", ErrInvalidTopK, c.TopK)
	}

	// Image pixel budget: both bounds positive, min strictly below max
	if c.MinPixels < 1 || c.MaxPixels < 1 || c.MinPixels >= c.MaxPixels {
		return fmt.Errorf("%w: require 0 < min_pixels < max_pixels, got min=%d max=%d",
			ErrInvalidPixelBudget, c.MinPixels, c.MaxPixels)
	}

	if c.StorageBucket == "" {
		return fmt.Errorf("%w: storage_bucket cannot be empty", ErrInvalidStorageBucket)
	}

	// PostgreSQL configuration
	if c.PostgresHost == "" {
		return fmt.Errorf("%w: host cannot be empty", ErrInvalidPostgresHost)
	}

	if c.PostgresPort < 1 || c.PostgresPort > 65535 {
		return fmt.Errorf("%w: must be between 1 and 65535, got %d", ErrInvalidPostgresPort, c.PostgresPort)
	}

	if c.PostgresDBName == "" {
		return fmt.Errorf("%w: database name cannot be empty", ErrInvalidPostgresDBName)
	}

	validSSLModes := []string{"disable", "allow", "prefer", "require", "verify-ca", "verify-full"}
	if !slices.Contains(validSSLModes, c.PostgresSSLMode) {
		return fmt.Errorf("%w: must be one of %v, got %q", ErrInvalidPostgresSSLMode, validSSLModes, c.PostgresSSLMode)
	}

	return nil
}

// Package config provides application configuration management with
// multi-source priority.
//
// Configuration sources (highest to lowest priority):
//  1. Environment variables (runtime override)
//  2. Config file (~/.coachai/config.yaml)
//  3. Default values
//
// Main configuration categories:
//   - AI: generative model selection, temperature, max tokens
//   - Embedding: Cohere model, vector dimension, request rate
//   - Retrieval: default top-K
//   - Storage: PostgreSQL connection (see storage.go), attachment bucket
//   - Auth: GoTrue endpoint for password sign-in/sign-up
//
// Security: sensitive values (API keys, passwords) are masked in
// MarshalJSON/String. Validation performs fail-fast range checks in
// validation.go with sentinel errors for errors.Is() checking.
package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/viper"
)

var (
	// ErrConfigNil indicates the configuration is nil.
	ErrConfigNil = errors.New("configuration is nil")

	// ErrInvalidModelName indicates the generative model name is invalid.
	ErrInvalidModelName = errors.New("invalid model name")

	// ErrInvalidTemperature indicates the temperature value is out of range.
	ErrInvalidTemperature = errors.New("invalid temperature")

	// ErrInvalidMaxTokens indicates the max tokens value is out of range.
	ErrInvalidMaxTokens = errors.New("invalid max tokens")

	// ErrInvalidEmbedModel indicates the embedding model is invalid.
	ErrInvalidEmbedModel = errors.New("invalid embedding model")

	// ErrInvalidEmbedDimension indicates the embedding dimension is out of range.
	ErrInvalidEmbedDimension = errors.New("invalid embedding dimension")

	// ErrInvalidTopK indicates the default top-K is out of range.
	ErrInvalidTopK = errors.New("invalid top-k")

	// ErrInvalidPixelBudget indicates the image pixel budget is inconsistent.
	ErrInvalidPixelBudget = errors.New("invalid pixel budget")

	// ErrInvalidStorageBucket indicates the attachment bucket name is invalid.
	ErrInvalidStorageBucket = errors.New("invalid storage bucket")

	// ErrInvalidPostgresHost indicates the PostgreSQL host is invalid.
	ErrInvalidPostgresHost = errors.New("invalid PostgreSQL host")

	// ErrInvalidPostgresPort indicates the PostgreSQL port is out of range.
	ErrInvalidPostgresPort = errors.New("invalid PostgreSQL port")

	// ErrInvalidPostgresDBName indicates the PostgreSQL database name is invalid.
	ErrInvalidPostgresDBName = errors.New("invalid PostgreSQL database name")

	// ErrInvalidPostgresSSLMode indicates the PostgreSQL SSL mode is invalid.
	ErrInvalidPostgresSSLMode = errors.New("invalid PostgreSQL SSL mode")
)

const (
	// DefaultEmbedModel is the default Cohere embedding model.
	// embed-english-light-v3.0 outputs 384 dimensions, matching the
	// vector(384) column in db/migrations.
	DefaultEmbedModel = "embed-english-light-v3.0"

	// DefaultEmbedDimension matches DefaultEmbedModel's output width.
	DefaultEmbedDimension = 384

	// DefaultTopK is the default number of lessons retrieved as grounding.
	DefaultTopK = 3

	// Image pixel budget defaults, passed as resizing hints to the model
	// layer (the service itself never decodes images).
	DefaultMinPixels = 256 * 28 * 28
	DefaultMaxPixels = 1280 * 28 * 28
)

// legacyEmbedAliases are historical Cohere model selectors that no longer
// resolve to a concrete model. They are replaced by DefaultEmbedModel
// instead of being forwarded to the API.
var legacyEmbedAliases = map[string]struct{}{
	"small":  {},
	"medium": {},
	"large":  {},
}

// Config stores application configuration.
// SECURITY: sensitive fields are explicitly masked in MarshalJSON().
// When adding new sensitive fields, update MarshalJSON.
type Config struct {
	// Generative model configuration
	ModelName    string  `mapstructure:"model_name" json:"model_name"`
	Temperature  float32 `mapstructure:"temperature" json:"temperature"`
	MaxTokens    int     `mapstructure:"max_tokens" json:"max_tokens"`
	GeminiAPIKey string  `mapstructure:"gemini_api_key" json:"gemini_api_key"` // SENSITIVE: masked in MarshalJSON

	// Embedding configuration
	CohereAPIKey   string `mapstructure:"cohere_api_key" json:"cohere_api_key"` // SENSITIVE: masked in MarshalJSON
	EmbedModel     string `mapstructure:"embed_model" json:"embed_model"`
	EmbedDimension int    `mapstructure:"embed_dimension" json:"embed_dimension"`

	// Retrieval configuration
	TopK int `mapstructure:"top_k" json:"top_k"`

	// Image resizing hints forwarded to the model layer
	MinPixels int `mapstructure:"min_pixels" json:"min_pixels"`
	MaxPixels int `mapstructure:"max_pixels" json:"max_pixels"`

	// Attachment storage
	StorageBucket string `mapstructure:"storage_bucket" json:"storage_bucket"`

	// Auth endpoint (GoTrue-compatible password auth)
	AuthURL    string `mapstructure:"auth_url" json:"auth_url"`
	AuthAPIKey string `mapstructure:"auth_api_key" json:"auth_api_key"` // SENSITIVE: masked in MarshalJSON

	// Storage configuration (see storage.go for documentation)
	PostgresHost     string `mapstructure:"postgres_host" json:"postgres_host"`
	PostgresPort     int    `mapstructure:"postgres_port" json:"postgres_port"`
	PostgresUser     string `mapstructure:"postgres_user" json:"postgres_user"`
	PostgresPassword string `mapstructure:"postgres_password" json:"postgres_password"` // SENSITIVE: masked in MarshalJSON
	PostgresDBName   string `mapstructure:"postgres_db_name" json:"postgres_db_name"`
	PostgresSSLMode  string `mapstructure:"postgres_ssl_mode" json:"postgres_ssl_mode"`
}

// Load loads configuration.
// Priority: environment variables > configuration file > default values.
func Load() (*Config, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return nil, fmt.Errorf("getting user home directory: %w", err)
	}

	configDir := filepath.Join(home, ".coachai")
	if err := os.MkdirAll(configDir, 0o750); err != nil {
		return nil, fmt.Errorf("creating config directory: %w", err)
	}

	viper.SetConfigName("config")
	viper.SetConfigType("yaml")
	viper.AddConfigPath(configDir)
	viper.AddConfigPath(".")

	setDefaults()
	bindEnvVariables()

	if err := viper.ReadInConfig(); err != nil {
		// A missing config file is not an error, defaults apply.
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("reading config file: %w", err)
		}
		slog.Debug("configuration file not found, using default values",
			"search_paths", []string{configDir, "."})
	}

	var cfg Config
	if err := viper.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("parsing configuration: %w", err)
	}

	// DATABASE_URL has the highest priority for PostgreSQL settings.
	if err := cfg.parseDatabaseURL(); err != nil {
		return nil, fmt.Errorf("parsing DATABASE_URL: %w", err)
	}

	cfg.EmbedModel = ResolveEmbedModel(cfg.EmbedModel)

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating configuration: %w", err)
	}

	return &cfg, nil
}

// ResolveEmbedModel maps legacy size aliases ("small", "medium", "large")
// and the empty string to DefaultEmbedModel. Concrete model identifiers are
// returned unchanged.
func ResolveEmbedModel(model string) string {
	trimmed := strings.ToLower(strings.TrimSpace(model))
	if trimmed == "" {
		return DefaultEmbedModel
	}
	if _, legacy := legacyEmbedAliases[trimmed]; legacy {
		return DefaultEmbedModel
	}
	return model
}

// setDefaults sets all default configuration values.
func setDefaults() {
	// Generative model defaults
	viper.SetDefault("model_name", "gemini-2.5-flash")
	viper.SetDefault("temperature", 0.7)
	viper.SetDefault("max_tokens", 2048)

	// Embedding defaults
	viper.SetDefault("embed_model", DefaultEmbedModel)
	viper.SetDefault("embed_dimension", DefaultEmbedDimension)

	// Retrieval defaults
	viper.SetDefault("top_k", DefaultTopK)

	// Image pixel budget defaults
	viper.SetDefault("min_pixels", DefaultMinPixels)
	viper.SetDefault("max_pixels", DefaultMaxPixels)

	// Attachment storage
	viper.SetDefault("storage_bucket", "coachai-attachments")

	// PostgreSQL defaults (matching docker-compose.yml)
	viper.SetDefault("postgres_host", "localhost")
	viper.SetDefault("postgres_port", 5432)
	viper.SetDefault("postgres_user", "coachai")
	viper.SetDefault("postgres_password", "coachai_dev_password")
	viper.SetDefault("postgres_db_name", "coachai")
	viper.SetDefault("postgres_ssl_mode", "disable")
}

// bindEnvVariables binds environment variables explicitly.
func bindEnvVariables() {
	// Hardcoded keys cannot fail to bind; a panic here is a bug, not a
	// runtime condition.
	mustBind := func(key, envVar string) {
		if err := viper.BindEnv(key, envVar); err != nil {
			panic(fmt.Sprintf("BUG: failed to bind %q to %q: %v", key, envVar, err))
		}
	}

	mustBind("gemini_api_key", "GEMINI_API_KEY")
	mustBind("cohere_api_key", "COHERE_API_KEY")
	mustBind("embed_model", "COACHAI_EMBED_MODEL")
	mustBind("model_name", "COACHAI_MODEL_NAME")
	mustBind("auth_url", "COACHAI_AUTH_URL")
	mustBind("auth_api_key", "COACHAI_AUTH_API_KEY")
	mustBind("storage_bucket", "COACHAI_STORAGE_BUCKET")
}

// maskedValue is the placeholder for masked sensitive data.
const maskedValue = "████████"

// maskSecret masks a secret string for safe logging. Secrets of 8 chars or
// fewer are fully masked to prevent substring matching; longer secrets keep
// the first and last 2 characters for debug utility.
func maskSecret(s string) string {
	if s == "" {
		return ""
	}
	if len(s) <= 8 {
		return maskedValue
	}
	return s[:2] + "<" + maskedValue + ">" + s[len(s)-2:]
}

// MarshalJSON implements json.Marshaler with explicit sensitive field masking.
func (c Config) MarshalJSON() ([]byte, error) {
	type alias Config
	a := alias(c)
	a.GeminiAPIKey = maskSecret(a.GeminiAPIKey)
	a.CohereAPIKey = maskSecret(a.CohereAPIKey)
	a.AuthAPIKey = maskSecret(a.AuthAPIKey)
	a.PostgresPassword = maskSecret(a.PostgresPassword)
	data, err := json.Marshal(a)
	if err != nil {
		return nil, fmt.Errorf("marshal config: %w", err)
	}
	return data, nil
}

// String implements Stringer to prevent accidental printing of secrets.
func (c Config) String() string {
	data, err := c.MarshalJSON()
	if err != nil {
		return fmt.Sprintf("Config{error: %v}", err)
	}
	return string(data)
}

package core

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strconv"

	"github.com/joho/godotenv"

	"github.com/engram-ai/engram-go/pkg/scoring"
)

// Defaults for lifecycle and retrieval tunables.
const (
	// DefaultImportance is assigned to memories stored without an
	// explicit importance.
	DefaultImportance = 0.5

	// ImportanceFloor is the minimum importance decay can reach;
	// a memory never decays to exactly zero.
	ImportanceFloor = 0.01

	// DefaultReinforceBoost is the importance increase per
	// reinforcement when the caller does not supply one.
	DefaultReinforceBoost = 0.1

	// DefaultDecayFactor is the multiplicative importance decay when
	// the caller does not supply one.
	DefaultDecayFactor = 0.9

	// DefaultSearchMinScore is the hybrid-score threshold for plain
	// search.
	DefaultSearchMinScore = 0.3

	// DefaultRecallMinScore is the hybrid-score threshold for recall.
	// Deliberately lower than plain search to admit more context.
	DefaultRecallMinScore = 0.25

	// DefaultSearchLimit bounds plain search results.
	DefaultSearchLimit = 10

	// DefaultRecallLimit bounds merged recall results.
	DefaultRecallLimit = 20

	// MaxRecallContexts is the number of auxiliary context strings a
	// recall accepts; additional items are discarded, not errored.
	MaxRecallContexts = 10

	// DefaultEmbeddingDims is the expected embedding dimension when
	// the configuration does not specify one. Matches the default
	// embedding model's output so all-defaults deployments create
	// vector columns the embedder can actually fill.
	DefaultEmbeddingDims = 1536

	// defaultLedgerBuffer is the access-ledger queue capacity.
	defaultLedgerBuffer = 256
)

// Config contains the complete configuration for an Engram client.
type Config struct {
	// Store contains durable store configuration.
	Store StoreConfig `json:"store"`

	// Embedder contains embedding provider configuration.
	Embedder EmbedderConfig `json:"embedder"`

	// Scoring contains the hybrid ranking weights. Zero values are
	// replaced with the defaults (0.8 / 0.2 / 30 days).
	Scoring scoring.Weights `json:"scoring"`

	// Lifecycle contains reinforcement and forgetting tunables.
	Lifecycle LifecycleConfig `json:"lifecycle"`

	// LedgerBuffer is the capacity of the asynchronous access-ledger
	// queue. Defaults to 256.
	LedgerBuffer int `json:"ledger_buffer,omitempty"`
}

// StoreConfig contains configuration for the durable store.
//
// Supported providers: sqlite, postgres, mysql.
type StoreConfig struct {
	// Provider is the store provider name (sqlite, postgres, mysql).
	Provider string `json:"provider"`

	// Config contains provider-specific configuration.
	// For SQLite: db_path
	// For PostgreSQL: host, port, user, password, db_name, ssl_mode
	// For MySQL: host, port, user, password, db_name
	Config map[string]interface{} `json:"config"`
}

// EmbedderConfig contains configuration for the embedding provider.
//
// Supported providers: openai.
type EmbedderConfig struct {
	// Provider is the embedding provider name.
	Provider string `json:"provider"`

	// APIKey is the API key for the embedding provider.
	APIKey string `json:"api_key"`

	// Model is the embedding model name.
	Model string `json:"model"`

	// BaseURL is the base URL for the API (optional).
	BaseURL string `json:"base_url,omitempty"`

	// Dimensions is the embedding vector dimension (e.g. 768, 1536).
	Dimensions int `json:"dimensions,omitempty"`
}

// LifecycleConfig contains reinforcement and forgetting tunables.
type LifecycleConfig struct {
	// DefaultImportance is assigned to new memories without an
	// explicit importance. Default 0.5.
	DefaultImportance float64 `json:"default_importance,omitempty"`

	// ImportanceFloor is the minimum importance decay can reach.
	// Default 0.01.
	ImportanceFloor float64 `json:"importance_floor,omitempty"`

	// ReinforceBoost is the default importance increase per
	// reinforcement. Default 0.1.
	ReinforceBoost float64 `json:"reinforce_boost,omitempty"`

	// DecayFactor is the default multiplicative importance decay.
	// Default 0.9.
	DecayFactor float64 `json:"decay_factor,omitempty"`
}

// withDefaults returns a copy of the configuration with zero values
// replaced by defaults.
func (c *Config) withDefaults() *Config {
	cfg := *c

	if cfg.Scoring.Semantic == 0 && cfg.Scoring.Recency == 0 {
		cfg.Scoring.Semantic = scoring.DefaultSemanticWeight
		cfg.Scoring.Recency = scoring.DefaultRecencyWeight
	}
	if cfg.Scoring.DecayDays == 0 {
		cfg.Scoring.DecayDays = scoring.DefaultDecayDays
	}

	if cfg.Lifecycle.DefaultImportance == 0 {
		cfg.Lifecycle.DefaultImportance = DefaultImportance
	}
	if cfg.Lifecycle.ImportanceFloor == 0 {
		cfg.Lifecycle.ImportanceFloor = ImportanceFloor
	}
	if cfg.Lifecycle.ReinforceBoost == 0 {
		cfg.Lifecycle.ReinforceBoost = DefaultReinforceBoost
	}
	if cfg.Lifecycle.DecayFactor == 0 {
		cfg.Lifecycle.DecayFactor = DefaultDecayFactor
	}

	if cfg.Embedder.Dimensions == 0 {
		cfg.Embedder.Dimensions = DefaultEmbeddingDims
	}
	if cfg.LedgerBuffer == 0 {
		cfg.LedgerBuffer = defaultLedgerBuffer
	}

	return &cfg
}

// Validate validates the configuration.
func (c *Config) Validate() error {
	if c.Store.Provider == "" {
		return NewMemoryError("Validate", fmt.Errorf("%w: store provider is required", ErrInvalidConfig))
	}
	if c.Embedder.Provider == "" {
		return NewMemoryError("Validate", fmt.Errorf("%w: embedder provider is required", ErrInvalidConfig))
	}
	if c.Lifecycle.DefaultImportance < 0 || c.Lifecycle.DefaultImportance > 1 {
		return NewMemoryError("Validate", fmt.Errorf("%w: default importance out of range", ErrInvalidConfig))
	}
	return nil
}

// LoadConfigFromEnv loads configuration from environment variables.
//
// The function searches for a .env file (current directory, then up to
// five levels up) before reading the environment.
//
// Supported environment variables:
//   - ENGRAM_STORE_PROVIDER (sqlite, postgres, mysql; default sqlite)
//   - SQLITE_PATH
//   - POSTGRES_HOST, POSTGRES_PORT, POSTGRES_USER, POSTGRES_PASSWORD,
//     POSTGRES_DATABASE, POSTGRES_SSLMODE
//   - MYSQL_HOST, MYSQL_PORT, MYSQL_USER, MYSQL_PASSWORD, MYSQL_DATABASE
//   - EMBEDDING_PROVIDER, EMBEDDING_API_KEY, EMBEDDING_MODEL,
//     EMBEDDING_BASE_URL, EMBEDDING_DIMS
//   - ENGRAM_SEMANTIC_WEIGHT, ENGRAM_RECENCY_WEIGHT, ENGRAM_DECAY_DAYS
func LoadConfigFromEnv() (*Config, error) {
	if envPath, found := FindEnvFile(); found {
		_ = godotenv.Load(envPath)
	} else {
		_ = godotenv.Load()
	}

	provider := getEnvOrDefault("ENGRAM_STORE_PROVIDER", "sqlite")

	storeConfig := make(map[string]interface{})
	switch provider {
	case "sqlite":
		storeConfig = map[string]interface{}{
			"db_path": getEnvOrDefault("SQLITE_PATH", "./engram.db"),
		}
	case "postgres":
		port, _ := strconv.Atoi(getEnvOrDefault("POSTGRES_PORT", "5432"))
		storeConfig = map[string]interface{}{
			"host":     getEnvOrDefault("POSTGRES_HOST", "localhost"),
			"port":     port,
			"user":     getEnvOrDefault("POSTGRES_USER", "postgres"),
			"password": os.Getenv("POSTGRES_PASSWORD"),
			"db_name":  getEnvOrDefault("POSTGRES_DATABASE", "engram"),
			"ssl_mode": getEnvOrDefault("POSTGRES_SSLMODE", "disable"),
		}
	case "mysql":
		port, _ := strconv.Atoi(getEnvOrDefault("MYSQL_PORT", "3306"))
		storeConfig = map[string]interface{}{
			"host":     getEnvOrDefault("MYSQL_HOST", "localhost"),
			"port":     port,
			"user":     getEnvOrDefault("MYSQL_USER", "root"),
			"password": os.Getenv("MYSQL_PASSWORD"),
			"db_name":  getEnvOrDefault("MYSQL_DATABASE", "engram"),
		}
	}

	dims, _ := strconv.Atoi(getEnvOrDefault("EMBEDDING_DIMS", "0"))

	config := &Config{
		Store: StoreConfig{
			Provider: provider,
			Config:   storeConfig,
		},
		Embedder: EmbedderConfig{
			Provider:   getEnvOrDefault("EMBEDDING_PROVIDER", "openai"),
			APIKey:     os.Getenv("EMBEDDING_API_KEY"),
			Model:      os.Getenv("EMBEDDING_MODEL"),
			BaseURL:    os.Getenv("EMBEDDING_BASE_URL"),
			Dimensions: dims,
		},
	}

	if v := os.Getenv("ENGRAM_SEMANTIC_WEIGHT"); v != "" {
		config.Scoring.Semantic, _ = strconv.ParseFloat(v, 64)
	}
	if v := os.Getenv("ENGRAM_RECENCY_WEIGHT"); v != "" {
		config.Scoring.Recency, _ = strconv.ParseFloat(v, 64)
	}
	if v := os.Getenv("ENGRAM_DECAY_DAYS"); v != "" {
		config.Scoring.DecayDays, _ = strconv.ParseFloat(v, 64)
	}

	return config, nil
}

// LoadConfigFromJSON loads configuration from a JSON file.
func LoadConfigFromJSON(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, NewMemoryError("LoadConfigFromJSON", err)
	}

	var config Config
	if err := json.Unmarshal(data, &config); err != nil {
		return nil, NewMemoryError("LoadConfigFromJSON", err)
	}

	return &config, nil
}

// getEnvOrDefault gets an environment variable or returns the default value.
func getEnvOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// FindEnvFile searches for a .env or .env.example file in the current
// directory and up to five directory levels above it.
func FindEnvFile() (string, bool) {
	if _, err := os.Stat(".env"); err == nil {
		return ".env", true
	}
	if _, err := os.Stat(".env.example"); err == nil {
		return ".env.example", true
	}

	dir, _ := os.Getwd()
	for i := 0; i < 5; i++ {
		envPath := filepath.Join(dir, ".env")
		envExamplePath := filepath.Join(dir, ".env.example")

		if _, err := os.Stat(envPath); err == nil {
			return envPath, true
		}
		if _, err := os.Stat(envExamplePath); err == nil {
			return envExamplePath, true
		}

		parent := filepath.Dir(dir)
		if parent == dir {
			break
		}
		dir = parent
	}

	return "", false
}

package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config holds all configuration for the vidqa service.
type Config struct {
	General   GeneralConfig   `mapstructure:"general"`
	Server    ServerConfig    `mapstructure:"server"`
	LLM       LLMConfig       `mapstructure:"llm"`
	Storage   StorageConfig   `mapstructure:"storage"`
	Retrieval RetrievalConfig `mapstructure:"retrieval"`
	Memory    MemoryConfig    `mapstructure:"memory"`
	External  ExternalConfig  `mapstructure:"external"`
	Telemetry TelemetryConfig `mapstructure:"telemetry"`
}

// GeneralConfig contains general application settings.
type GeneralConfig struct {
	Debug          bool          `mapstructure:"debug"`
	LogLevel       string        `mapstructure:"log_level"`
	DefaultTimeout time.Duration `mapstructure:"default_timeout"`
}

// ServerConfig contains HTTP server and auth settings.
type ServerConfig struct {
	Address   string `mapstructure:"address"`
	JWTSecret string `mapstructure:"jwt_secret"`
}

// LLMConfig contains language-model provider settings. Fast and Quality
// name the two chat models the selector routes between; Embedding is the
// embedding model used for semantic retrieval.
type LLMConfig struct {
	Type        string        `mapstructure:"type"` // openai-compatible
	APIKey      string        `mapstructure:"api_key"`
	BaseURL     string        `mapstructure:"base_url"`
	Fast        string        `mapstructure:"fast_model"`
	Quality     string        `mapstructure:"quality_model"`
	Embedding   string        `mapstructure:"embedding_model"`
	Temperature float64       `mapstructure:"temperature"`
	MaxTokens   int           `mapstructure:"max_tokens"`
	Timeout     time.Duration `mapstructure:"timeout"`
}

// StorageConfig contains Postgres and Redis settings.
type StorageConfig struct {
	Postgres PostgresConfig `mapstructure:"postgres"`
	Redis    RedisConfig    `mapstructure:"redis"`
}

// PostgresConfig contains relational store settings.
type PostgresConfig struct {
	URL      string `mapstructure:"url"`
	Host     string `mapstructure:"host"`
	Port     string `mapstructure:"port"`
	User     string `mapstructure:"user"`
	Password string `mapstructure:"password"`
	DBName   string `mapstructure:"dbname"`
	SSLMode  string `mapstructure:"sslmode"`
}

// DSN builds a Postgres connection string, preferring the explicit URL.
func (p PostgresConfig) DSN() (string, error) {
	if p.URL != "" {
		return p.URL, nil
	}
	if p.Host == "" || p.DBName == "" {
		return "", fmt.Errorf("postgres not configured (storage.postgres.host/dbname or url)")
	}
	port := p.Port
	if port == "" {
		port = "5432"
	}
	ssl := p.SSLMode
	if ssl == "" {
		ssl = "disable"
	}
	return fmt.Sprintf("postgres://%s:%s@%s:%s/%s?sslmode=%s", p.User, p.Password, p.Host, port, p.DBName, ssl), nil
}

// RedisConfig contains optional Redis session-buffer settings. When Addr
// is empty the in-memory buffer store is used.
type RedisConfig struct {
	Addr     string        `mapstructure:"addr"`
	Password string        `mapstructure:"password"`
	DB       int           `mapstructure:"db"`
	TTL      time.Duration `mapstructure:"ttl"`
}

// RetrievalConfig tunes the hybrid retriever.
type RetrievalConfig struct {
	// Lexical selects the lexical search backend: "bleve" (in-memory
	// BM25 index over full transcripts) or "postgres" (ts_rank).
	Lexical string `mapstructure:"lexical"`
	// TopK is the default number of semantic chunks reported per query.
	TopK int `mapstructure:"top_k"`
	// FetchK is the number of ranked chunks fetched before capping.
	FetchK int `mapstructure:"fetch_k"`
	// KeepThreshold is the minimum cosine similarity for a chunk to be
	// admitted into results.
	KeepThreshold float64 `mapstructure:"keep_threshold"`
	// SufficiencyThreshold is the mean chunk similarity above which
	// transcript coverage is considered good enough to skip the
	// external knowledge fallback.
	SufficiencyThreshold float64 `mapstructure:"sufficiency_threshold"`
	// EmbeddingDimensions is the expected embedding vector length;
	// candidates with a different length are skipped at the store
	// boundary.
	EmbeddingDimensions int `mapstructure:"embedding_dimensions"`
}

// MemoryConfig tunes per-session conversation memory.
type MemoryConfig struct {
	// TokenBudget bounds the raw buffer; older turns are summarised
	// once the estimate exceeds it.
	TokenBudget int `mapstructure:"token_budget"`
	// MaxTurns bounds how many raw turns are kept verbatim.
	MaxTurns int `mapstructure:"max_turns"`
}

// ExternalConfig contains the external knowledge API settings.
type ExternalConfig struct {
	APIKey  string        `mapstructure:"api_key"`
	BaseURL string        `mapstructure:"base_url"`
	Model   string        `mapstructure:"model"`
	Timeout time.Duration `mapstructure:"timeout"`
}

// TelemetryConfig contains metrics settings.
type TelemetryConfig struct {
	Enabled bool `mapstructure:"enabled"`
}

// LoadConfig reads configuration from file and VIDQA_* environment
// variables, applying defaults for everything tunable.
func LoadConfig(path string) *Config {
	viper.SetConfigName("config")
	viper.SetConfigType("yaml")

	viper.SetDefault("general.log_level", "info")
	viper.SetDefault("general.default_timeout", "60s")
	viper.SetDefault("server.address", ":10010")
	viper.SetDefault("llm.type", "openai")
	viper.SetDefault("llm.base_url", "https://api.openai.com/v1")
	viper.SetDefault("llm.fast_model", "gpt-4o-mini")
	viper.SetDefault("llm.quality_model", "gpt-4o")
	viper.SetDefault("llm.embedding_model", "text-embedding-3-small")
	viper.SetDefault("llm.temperature", 0.2)
	viper.SetDefault("llm.max_tokens", 1024)
	viper.SetDefault("llm.timeout", "90s")
	viper.SetDefault("storage.redis.ttl", "24h")
	viper.SetDefault("retrieval.lexical", "bleve")
	viper.SetDefault("retrieval.top_k", 5)
	viper.SetDefault("retrieval.fetch_k", 10)
	viper.SetDefault("retrieval.keep_threshold", 0.75)
	viper.SetDefault("retrieval.sufficiency_threshold", 0.5)
	viper.SetDefault("retrieval.embedding_dimensions", 1536)
	viper.SetDefault("memory.token_budget", 1500)
	viper.SetDefault("memory.max_turns", 10)
	viper.SetDefault("external.base_url", "https://api.perplexity.ai")
	viper.SetDefault("external.model", "sonar")
	viper.SetDefault("external.timeout", "5s")
	viper.SetDefault("telemetry.enabled", true)

	if path == "" {
		viper.AddConfigPath("./config")
		viper.AddConfigPath(".")
	} else {
		viper.SetConfigFile(path)
	}

	viper.SetEnvPrefix("VIDQA")
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	viper.AutomaticEnv()

	// A missing config file is fine: defaults plus env cover everything.
	_ = viper.ReadInConfig()

	var cfg Config
	if err := viper.Unmarshal(&cfg); err != nil {
		panic(fmt.Errorf("fatal error config file: %w", err))
	}
	return &cfg
}

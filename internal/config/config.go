// Package config provides configuration management for questionmatch.
//
// Matching parameters use the unprefixed names the rest of the system knows
// them by (VECTOR_DIMENSION, SIMILARITY_THRESHOLD, ...); process settings use
// the QM_ prefix. Values come from the environment, then from the optional
// YAML file named by QM_CONFIG_FILE, then from the defaults below.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/scrypster/questionmatch/internal/engine"
	"github.com/scrypster/questionmatch/internal/llm"
)

// Storage engines and cache backends.
const (
	StorageSQLite   = "sqlite"
	StoragePostgres = "postgres"

	CacheBackendStore = "store"
	CacheBackendRedis = "redis"
)

// Config holds all configuration settings for questionmatch.
type Config struct {
	Server    ServerConfig
	Storage   StorageConfig
	Cache     CacheConfig
	Embedding EmbeddingConfig
	Matching  MatchingConfig
	Security  SecurityConfig
}

// ServerConfig contains HTTP server configuration.
type ServerConfig struct {
	Port           int     // Server port (default: 6464)
	Host           string  // Server host (default: 127.0.0.1)
	RateLimitRPS   float64 // Requests per second per client (default: 10)
	RateLimitBurst int     // Burst size per client (default: 20)
	EnableEvents   bool    // Serve the /ws event feed (default: true)
}

// StorageConfig contains database configuration.
type StorageConfig struct {
	StorageEngine string        // sqlite or postgres (default: sqlite)
	DataPath      string        // Data directory for the SQLite file and event files (default: ./data)
	PostgresDSN   string        // Postgres connection string
	Timeout       time.Duration // Per-call storage timeout (default: 5s)
}

// CacheConfig contains retrieval cache configuration.
type CacheConfig struct {
	Backend       string        // store or redis (default: store)
	RedisAddr     string        // Redis address when Backend is redis
	RedisPrefix   string        // Key prefix in Redis (default: qm:)
	Expiry        time.Duration // Freshness window; CACHE_EXPIRY_MINUTES (default: 5m)
	KeyMode       string        // candidate or filtered (default: candidate)
	SweepInterval time.Duration // Expired-entry sweep interval (default: 10m)
}

// EmbeddingConfig contains embedding collaborator configuration.
type EmbeddingConfig struct {
	Provider      string        // ollama, openai or hash (default: ollama)
	OllamaURL     string        // Ollama API URL (default: http://localhost:11434)
	Model         string        // Embedding model; empty uses the provider default
	OpenAIAPIKey  string        // OpenAI API key
	OpenAIBaseURL string        // OpenAI-compatible base URL
	Dimension     int           // VECTOR_DIMENSION (default: 384)
	Timeout       time.Duration // Per-call embedding timeout (default: 10s)
}

// MatchingConfig contains the retrieval and profile update tunables.
type MatchingConfig struct {
	SimilarityThreshold    float64
	MaxQuestionsPerSession int
	HistoryLimit           int
	UpdateOldWeight        float64
	UpdateNewWeight        float64
	KnowledgeWeight        float64
	SpeechWeight           float64
	HighScoreThreshold     float64
	MaxPerformanceAnswers  int
	PerformanceSampleSize  int
	AdaptiveMaxQuestions   int
	DiversePerCategory     int
	CorpusRefreshInterval  time.Duration // 0 reloads only on explicit invalidation
}

// SecurityConfig contains security and authentication settings.
type SecurityConfig struct {
	SecurityMode string // development or production (default: development)
	APIToken     string // Bearer token required in production mode
}

// LoadConfig loads configuration from the environment, the optional YAML
// file named by QM_CONFIG_FILE, and defaults, then validates it.
func LoadConfig() (*Config, error) {
	src := source{}
	if path := os.Getenv("QM_CONFIG_FILE"); path != "" {
		file, err := readFile(path)
		if err != nil {
			return nil, err
		}
		src.file = file
	}
	cfg := src.build()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate rejects configurations the engines cannot run with.
func (c *Config) Validate() error {
	switch c.Storage.StorageEngine {
	case StorageSQLite:
	case StoragePostgres:
		if c.Storage.PostgresDSN == "" {
			return fmt.Errorf("config: QM_POSTGRES_DSN is required for the postgres storage engine")
		}
	default:
		return fmt.Errorf("config: unknown storage engine %q", c.Storage.StorageEngine)
	}
	switch c.Cache.Backend {
	case CacheBackendStore:
	case CacheBackendRedis:
		if c.Cache.RedisAddr == "" {
			return fmt.Errorf("config: QM_REDIS_ADDR is required for the redis cache backend")
		}
	default:
		return fmt.Errorf("config: unknown cache backend %q", c.Cache.Backend)
	}
	switch c.Embedding.Provider {
	case llm.ProviderOllama, llm.ProviderOpenAI, llm.ProviderHash:
	default:
		return fmt.Errorf("config: unknown embedding provider %q", c.Embedding.Provider)
	}
	if c.Security.SecurityMode == "production" && c.Security.APIToken == "" {
		return fmt.Errorf("config: QM_API_TOKEN is required in production mode")
	}
	if c.Server.RateLimitRPS < 0 || c.Server.RateLimitBurst < 0 {
		return fmt.Errorf("config: rate limits must be >= 0")
	}
	ec := c.EngineConfig()
	if err := ec.Validate(); err != nil {
		return fmt.Errorf("config: %w", err)
	}
	return nil
}

// EngineConfig projects the matching settings onto engine.Config.
func (c *Config) EngineConfig() engine.Config {
	return engine.Config{
		Dimension:               c.Embedding.Dimension,
		SimilarityThreshold:     c.Matching.SimilarityThreshold,
		MaxQuestionsPerSession:  c.Matching.MaxQuestionsPerSession,
		CacheTTL:                c.Cache.Expiry,
		CacheKeyMode:            c.Cache.KeyMode,
		HistoryLimit:            c.Matching.HistoryLimit,
		UpdateOldWeight:         c.Matching.UpdateOldWeight,
		UpdateNewWeight:         c.Matching.UpdateNewWeight,
		KnowledgeWeight:         c.Matching.KnowledgeWeight,
		SpeechWeight:            c.Matching.SpeechWeight,
		HighScoreThreshold:      c.Matching.HighScoreThreshold,
		MaxPerformanceQuestions: c.Matching.MaxPerformanceAnswers,
		PerformanceSampleSize:   c.Matching.PerformanceSampleSize,
		AdaptiveMaxQuestions:    c.Matching.AdaptiveMaxQuestions,
		DiversePerCategory:      c.Matching.DiversePerCategory,
		StorageTimeout:          c.Storage.Timeout,
	}
}

// ProviderConfig projects the embedding settings onto llm.ProviderConfig.
func (c *Config) ProviderConfig() llm.ProviderConfig {
	baseURL := c.Embedding.OllamaURL
	if c.Embedding.Provider == llm.ProviderOpenAI {
		baseURL = c.Embedding.OpenAIBaseURL
	}
	return llm.ProviderConfig{
		Provider:  c.Embedding.Provider,
		BaseURL:   baseURL,
		Model:     c.Embedding.Model,
		APIKey:    c.Embedding.OpenAIAPIKey,
		Dimension: c.Embedding.Dimension,
		Timeout:   c.Embedding.Timeout,
	}
}

// source resolves a key from the environment first, then the config file.
type source struct {
	file map[string]string
}

func (s source) build() *Config {
	return &Config{
		Server: ServerConfig{
			Port:           s.getInt("QM_PORT", 6464),
			Host:           s.get("QM_HOST", "127.0.0.1"),
			RateLimitRPS:   s.getFloat("QM_RATE_LIMIT_RPS", 10),
			RateLimitBurst: s.getInt("QM_RATE_LIMIT_BURST", 20),
			EnableEvents:   s.getBool("QM_ENABLE_EVENTS", true),
		},
		Storage: StorageConfig{
			StorageEngine: s.get("QM_STORAGE_ENGINE", StorageSQLite),
			DataPath:      s.get("QM_DATA_PATH", "./data"),
			PostgresDSN:   s.get("QM_POSTGRES_DSN", ""),
			Timeout:       s.getDuration("STORAGE_TIMEOUT", 5*time.Second),
		},
		Cache: CacheConfig{
			Backend:       s.get("QM_CACHE_BACKEND", CacheBackendStore),
			RedisAddr:     s.get("QM_REDIS_ADDR", ""),
			RedisPrefix:   s.get("QM_REDIS_PREFIX", "qm:"),
			Expiry:        time.Duration(s.getInt("CACHE_EXPIRY_MINUTES", 5)) * time.Minute,
			KeyMode:       s.get("CACHE_KEY_MODE", engine.CacheKeyCandidate),
			SweepInterval: s.getDuration("CACHE_SWEEP_INTERVAL", 10*time.Minute),
		},
		Embedding: EmbeddingConfig{
			Provider:      s.get("QM_EMBEDDING_PROVIDER", llm.ProviderOllama),
			OllamaURL:     s.get("QM_OLLAMA_URL", "http://localhost:11434"),
			Model:         s.get("QM_EMBEDDING_MODEL", ""),
			OpenAIAPIKey:  s.get("QM_OPENAI_API_KEY", ""),
			OpenAIBaseURL: s.get("QM_OPENAI_BASE_URL", ""),
			Dimension:     s.getInt("VECTOR_DIMENSION", 384),
			Timeout:       s.getDuration("EMBEDDING_TIMEOUT", 10*time.Second),
		},
		Matching: MatchingConfig{
			SimilarityThreshold:    s.getFloat("SIMILARITY_THRESHOLD", 0.2),
			MaxQuestionsPerSession: s.getInt("MAX_QUESTIONS_PER_SESSION", 10),
			HistoryLimit:           s.getInt("HISTORY_LIMIT", 50),
			UpdateOldWeight:        s.getFloat("UPDATE_OLD_WEIGHT", 0.8),
			UpdateNewWeight:        s.getFloat("UPDATE_NEW_WEIGHT", 0.2),
			KnowledgeWeight:        s.getFloat("KNOWLEDGE_WEIGHT", 0.6),
			SpeechWeight:           s.getFloat("SPEECH_WEIGHT", 0.4),
			HighScoreThreshold:     s.getFloat("HIGH_SCORE_THRESHOLD", 0.7),
			MaxPerformanceAnswers:  s.getInt("MAX_PERFORMANCE_ANSWERS", 10),
			PerformanceSampleSize:  s.getInt("PERFORMANCE_SAMPLE_SIZE", 10),
			AdaptiveMaxQuestions:   s.getInt("ADAPTIVE_MAX_QUESTIONS", 5),
			DiversePerCategory:     s.getInt("DIVERSE_PER_CATEGORY", 3),
			CorpusRefreshInterval:  s.getDuration("CORPUS_REFRESH_INTERVAL", 0),
		},
		Security: SecurityConfig{
			SecurityMode: s.get("QM_SECURITY_MODE", "development"),
			APIToken:     s.get("QM_API_TOKEN", ""),
		},
	}
}

// readFile loads a flat YAML mapping of the same keys the environment uses.
func readFile(path string) (map[string]string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config: failed to read %s: %w", path, err)
	}
	var raw map[string]interface{}
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("config: failed to parse %s: %w", path, err)
	}
	out := make(map[string]string, len(raw))
	for k, v := range raw {
		if v == nil {
			continue
		}
		out[strings.ToUpper(k)] = fmt.Sprint(v)
	}
	return out, nil
}

// get retrieves a string setting or returns a default value.
func (s source) get(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	if value, ok := s.file[key]; ok && value != "" {
		return value
	}
	return defaultValue
}

// getInt retrieves an integer setting. Unparseable values fall back to the default.
func (s source) getInt(key string, defaultValue int) int {
	if value := s.get(key, ""); value != "" {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}

// getFloat retrieves a float setting. Unparseable values fall back to the default.
func (s source) getFloat(key string, defaultValue float64) float64 {
	if value := s.get(key, ""); value != "" {
		if f, err := strconv.ParseFloat(value, 64); err == nil {
			return f
		}
	}
	return defaultValue
}

// getDuration accepts Go duration strings ("90s") or a bare number of seconds.
func (s source) getDuration(key string, defaultValue time.Duration) time.Duration {
	value := s.get(key, "")
	if value == "" {
		return defaultValue
	}
	if d, err := time.ParseDuration(value); err == nil {
		return d
	}
	if secs, err := strconv.Atoi(value); err == nil {
		return time.Duration(secs) * time.Second
	}
	return defaultValue
}

// getBool recognizes "true", "1", "yes" and "false", "0", "no" in any case.
func (s source) getBool(key string, defaultValue bool) bool {
	switch strings.ToLower(s.get(key, "")) {
	case "true", "1", "yes":
		return true
	case "false", "0", "no":
		return false
	}
	return defaultValue
}

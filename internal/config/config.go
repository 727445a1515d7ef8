package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Store backends.
const (
	BackendBigQuery = "bigquery"
	BackendMemory   = "memory"
	BackendRedis    = "redis"
)

// Analyzer backends.
const (
	AnalyzerHTTP   = "http"
	AnalyzerGemini = "gemini"
)

// Config holds process configuration read from the environment.
type Config struct {
	Port     string
	LogLevel string
	LogJSON  bool

	// Store selects where transactions and snapshots live.
	Store string
	// MetadataStore selects where per-user metadata (version marker, export URL) lives.
	MetadataStore string

	GCPProject string
	Dataset    string

	Bucket string
	// SignerEmail and SignerKeyFile enable V4 signed download URLs for exports.
	SignerEmail   string
	SignerKeyFile string

	Analyzer        string
	AnalysisURL     string
	AnalysisTimeout time.Duration
	GeminiModel     string
	StatementURL    string

	CacheTTL time.Duration

	RedisAddr     string
	RedisPassword string
	RedisDB       int

	JWTSecret string
	// RateLimit is requests per minute per user on /api routes; 0 disables it.
	RateLimit int

	NotionToken      string
	NotionDatabaseID string

	QueueBuffer  int
	QueueWorkers int
}

// Load reads a .env file when present and then the process environment.
func Load() (*Config, error) {
	_ = godotenv.Load()

	cfg := &Config{
		Port:             getEnv("PORT", "8080"),
		LogLevel:         getEnv("LOG_LEVEL", "info"),
		LogJSON:          getEnvBool("LOG_JSON", false),
		Store:            getEnv("STORE_BACKEND", BackendBigQuery),
		MetadataStore:    getEnv("METADATA_BACKEND", ""),
		GCPProject:       getEnv("GCP_PROJECT", ""),
		Dataset:          getEnv("BQ_DATASET", "finance"),
		Bucket:           getEnv("GCS_BUCKET", ""),
		SignerEmail:      getEnv("GCS_SIGNER_EMAIL", ""),
		SignerKeyFile:    getEnv("GCS_SIGNER_KEY_FILE", ""),
		Analyzer:         getEnv("ANALYZER_BACKEND", AnalyzerHTTP),
		AnalysisURL:      getEnv("ANALYSIS_URL", "http://localhost:5000"),
		AnalysisTimeout:  getEnvDuration("ANALYSIS_TIMEOUT", 60*time.Second),
		GeminiModel:      getEnv("GEMINI_MODEL", "gemini-2.5-flash"),
		StatementURL:     getEnv("STATEMENT_URL", "http://localhost:5000"),
		CacheTTL:         getEnvDuration("ANALYSIS_CACHE_TTL", 5*time.Minute),
		RedisAddr:        getEnv("REDIS_ADDR", ""),
		RedisPassword:    getEnv("REDIS_PASSWORD", ""),
		RedisDB:          getEnvInt("REDIS_DB", 0),
		JWTSecret:        getEnv("JWT_SECRET", ""),
		RateLimit:        getEnvInt("RATE_LIMIT_PER_MINUTE", 120),
		NotionToken:      getEnv("NOTION_TOKEN", ""),
		NotionDatabaseID: getEnv("NOTION_DB_ID", ""),
		QueueBuffer:      getEnvInt("QUEUE_BUFFER", 100),
		QueueWorkers:     getEnvInt("QUEUE_WORKERS", 5),
	}

	if cfg.MetadataStore == "" {
		cfg.MetadataStore = cfg.Store
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks backend names and the settings they require.
func (c *Config) Validate() error {
	switch c.Store {
	case BackendBigQuery:
		if c.GCPProject == "" {
			return fmt.Errorf("config: GCP_PROJECT is required for the bigquery store")
		}
	case BackendMemory:
	default:
		return fmt.Errorf("config: unknown STORE_BACKEND %q", c.Store)
	}

	switch c.MetadataStore {
	case BackendBigQuery:
		if c.GCPProject == "" {
			return fmt.Errorf("config: GCP_PROJECT is required for bigquery metadata")
		}
	case BackendRedis:
		if c.RedisAddr == "" {
			return fmt.Errorf("config: REDIS_ADDR is required for redis metadata")
		}
	case BackendMemory:
	default:
		return fmt.Errorf("config: unknown METADATA_BACKEND %q", c.MetadataStore)
	}

	switch c.Analyzer {
	case AnalyzerHTTP, AnalyzerGemini:
	default:
		return fmt.Errorf("config: unknown ANALYZER_BACKEND %q", c.Analyzer)
	}

	if c.CacheTTL <= 0 {
		return fmt.Errorf("config: ANALYSIS_CACHE_TTL must be positive")
	}
	return nil
}

func getEnv(key, fallback string) string {
	if value, ok := os.LookupEnv(key); ok && strings.TrimSpace(value) != "" {
		return strings.TrimSpace(value)
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	if v := getEnv(key, ""); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n >= 0 {
			return n
		}
	}
	return fallback
}

func getEnvBool(key string, fallback bool) bool {
	if v := getEnv(key, ""); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			return b
		}
	}
	return fallback
}

func getEnvDuration(key string, fallback time.Duration) time.Duration {
	if v := getEnv(key, ""); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return fallback
}

package config

import (
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/storywire/storywire/internal/models"
)

// Config represents runtime configuration derived from environment variables.
type Config struct {
	Server    ServerConfig
	Logging   LoggingConfig
	Database  DatabaseConfig
	Redis     RedisConfig
	Providers ProvidersConfig
	Pipeline  PipelineConfig
}

// ServerConfig holds the health/metrics listener parameters.
type ServerConfig struct {
	Port            string
	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
	ShutdownTimeout time.Duration
}

// LoggingConfig represents structured logging configuration.
type LoggingConfig struct {
	Level  slog.Level
	Format string
}

// DatabaseConfig holds PostgreSQL connection parameters.
type DatabaseConfig struct {
	URL                string
	MaxConnections     int
	MaxIdleConnections int
	ConnMaxLifetime    time.Duration
	ConnectTimeout     time.Duration
}

// RedisConfig holds the shared cache connection parameters.
type RedisConfig struct {
	Addr     string
	Password string
	DB       int
}

// ProvidersConfig holds credentials and endpoints for external providers.
// Key lists are comma separated in the environment; an empty list for a
// required provider is a startup error.
type ProvidersConfig struct {
	FeedBaseURL    string
	FeedKeys       []string
	OpenAIKeys     []string
	AnalysisModel  string
	EmbeddingModel string
	RSSFeeds       []string
	CallTimeout    time.Duration
}

// PipelineConfig holds ingestion pipeline tuning parameters.
type PipelineConfig struct {
	Interval        time.Duration
	AnalysisWorkers int
	FetchConfigs    []models.FetchConfig
}

const (
	defaultPort            = "8080"
	defaultReadTimeout     = 10 * time.Second
	defaultWriteTimeout    = 10 * time.Second
	defaultShutdownTimeout = 5 * time.Second

	defaultLogFormat = "json"

	defaultMaxConnections     = 25
	defaultMaxIdleConnections = 5
	defaultConnMaxLifetime    = 5 * time.Minute
	defaultConnectTimeout     = 10 * time.Second

	defaultRedisAddr = "localhost:6379"

	defaultFeedBaseURL    = "https://newsapi.org/v2/top-headlines"
	defaultAnalysisModel  = "gpt-4o-mini"
	defaultEmbeddingModel = "text-embedding-3-small"
	defaultCallTimeout    = 30 * time.Second

	defaultPipelineInterval = 10 * time.Minute
	defaultAnalysisWorkers  = 3
)

// defaultFetchConfigs is the fixed query rotation used when FETCH_CONFIGS is
// not set. Order matters: the cycle counter maps onto this list.
var defaultFetchConfigs = []models.FetchConfig{
	{Topic: "world", Country: "us", Category: "general"},
	{Topic: "politics", Country: "us", Category: "politics"},
	{Topic: "business", Country: "us", Category: "business"},
	{Topic: "technology", Country: "us", Category: "technology"},
	{Topic: "world", Country: "gb", Category: "general"},
	{Topic: "business", Country: "gb", Category: "business"},
	{Topic: "world", Country: "de", Category: "general"},
	{Topic: "world", Country: "fr", Category: "general"},
}

// Load reads configuration from environment variables, applying defaults when
// values are not provided. Malformed values and missing required credentials
// fail loudly here rather than at first provider call.
func Load() (Config, error) {
	cfg := Config{
		Server: ServerConfig{
			Port:            getEnv("PORT", getEnv("SERVER_PORT", defaultPort)),
			ReadTimeout:     defaultReadTimeout,
			WriteTimeout:    defaultWriteTimeout,
			ShutdownTimeout: defaultShutdownTimeout,
		},
		Logging: LoggingConfig{
			Level:  slog.LevelInfo,
			Format: defaultLogFormat,
		},
		Database: DatabaseConfig{
			URL:                os.Getenv("DATABASE_URL"),
			MaxConnections:     defaultMaxConnections,
			MaxIdleConnections: defaultMaxIdleConnections,
			ConnMaxLifetime:    defaultConnMaxLifetime,
			ConnectTimeout:     defaultConnectTimeout,
		},
		Redis: RedisConfig{
			Addr:     getEnv("REDIS_ADDR", defaultRedisAddr),
			Password: os.Getenv("REDIS_PASSWORD"),
		},
		Providers: ProvidersConfig{
			FeedBaseURL:    getEnv("FEED_BASE_URL", defaultFeedBaseURL),
			FeedKeys:       splitList(os.Getenv("FEED_API_KEYS")),
			OpenAIKeys:     splitList(os.Getenv("OPENAI_API_KEYS")),
			AnalysisModel:  getEnv("ANALYSIS_MODEL", defaultAnalysisModel),
			EmbeddingModel: getEnv("EMBEDDING_MODEL", defaultEmbeddingModel),
			RSSFeeds:       splitList(os.Getenv("RSS_FEEDS")),
			CallTimeout:    defaultCallTimeout,
		},
		Pipeline: PipelineConfig{
			Interval:        defaultPipelineInterval,
			AnalysisWorkers: defaultAnalysisWorkers,
			FetchConfigs:    defaultFetchConfigs,
		},
	}

	if cfg.Database.URL == "" {
		return Config{}, fmt.Errorf("DATABASE_URL is required")
	}

	if len(cfg.Providers.FeedKeys) == 0 {
		return Config{}, fmt.Errorf("FEED_API_KEYS is required: at least one feed provider credential")
	}

	if len(cfg.Providers.OpenAIKeys) == 0 {
		return Config{}, fmt.Errorf("OPENAI_API_KEYS is required: at least one analysis provider credential")
	}

	if v := os.Getenv("REDIS_DB"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			return Config{}, fmt.Errorf("invalid REDIS_DB: must be a non-negative integer")
		}
		cfg.Redis.DB = n
	}

	if v := os.Getenv("LOG_LEVEL"); v != "" {
		level, err := parseLogLevel(v)
		if err != nil {
			return Config{}, fmt.Errorf("invalid LOG_LEVEL: %w", err)
		}
		cfg.Logging.Level = level
	}

	if v := os.Getenv("LOG_FORMAT"); v != "" {
		switch v {
		case "json", "text":
			cfg.Logging.Format = v
		default:
			return Config{}, fmt.Errorf("invalid LOG_FORMAT: must be 'json' or 'text'")
		}
	}

	if v := os.Getenv("PIPELINE_INTERVAL_SECONDS"); v != "" {
		d, err := parseSeconds(v)
		if err != nil {
			return Config{}, fmt.Errorf("invalid PIPELINE_INTERVAL_SECONDS: %w", err)
		}
		cfg.Pipeline.Interval = d
	}

	if v := os.Getenv("ANALYSIS_WORKERS"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 1 || n > 16 {
			return Config{}, fmt.Errorf("invalid ANALYSIS_WORKERS: must be an integer between 1 and 16")
		}
		cfg.Pipeline.AnalysisWorkers = n
	}

	if v := os.Getenv("FETCH_CONFIGS"); v != "" {
		configs, err := parseFetchConfigs(v)
		if err != nil {
			return Config{}, fmt.Errorf("invalid FETCH_CONFIGS: %w", err)
		}
		cfg.Pipeline.FetchConfigs = configs
	}

	return cfg, nil
}

// parseFetchConfigs parses "topic:country:category,topic:country:category,...".
func parseFetchConfigs(raw string) ([]models.FetchConfig, error) {
	entries := splitList(raw)
	if len(entries) == 0 {
		return nil, fmt.Errorf("must contain at least one entry")
	}

	configs := make([]models.FetchConfig, 0, len(entries))
	for _, entry := range entries {
		parts := strings.Split(entry, ":")
		if len(parts) != 3 {
			return nil, fmt.Errorf("entry %q: expected topic:country:category", entry)
		}
		configs = append(configs, models.FetchConfig{
			Topic:    strings.TrimSpace(parts[0]),
			Country:  strings.TrimSpace(parts[1]),
			Category: strings.TrimSpace(parts[2]),
		})
	}

	return configs, nil
}

func splitList(raw string) []string {
	if strings.TrimSpace(raw) == "" {
		return nil
	}

	parts := strings.Split(raw, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if trimmed := strings.TrimSpace(p); trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return out
}

func parseSeconds(raw string) (time.Duration, error) {
	seconds, err := strconv.Atoi(raw)
	if err != nil || seconds <= 0 {
		return 0, fmt.Errorf("must be a positive integer")
	}
	return time.Duration(seconds) * time.Second, nil
}

func getEnv(key, fallback string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return fallback
}

func parseLogLevel(raw string) (slog.Level, error) {
	switch raw {
	case "debug":
		return slog.LevelDebug, nil
	case "info":
		return slog.LevelInfo, nil
	case "warn", "warning":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	default:
		return 0, fmt.Errorf("must be one of debug, info, warn, error")
	}
}

// Package config loads and validates application configuration from YAML files
// with environment-variable overrides. It provides typed structs for every
// subsystem (Server, Index, Search, Semantic, Embeddings, Postgres, Redis,
// Kafka, etc.).
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the top-level application configuration.
type Config struct {
	Server     ServerConfig     `yaml:"server"`
	Index      IndexConfig      `yaml:"index"`
	Search     SearchConfig     `yaml:"search"`
	Semantic   SemanticConfig   `yaml:"semantic"`
	Embeddings EmbeddingsConfig `yaml:"embeddings"`
	Evaluation EvaluationConfig `yaml:"evaluation"`
	Analytics  AnalyticsConfig  `yaml:"analytics"`
	Auth       AuthConfig       `yaml:"auth"`
	Postgres   PostgresConfig   `yaml:"postgres"`
	Kafka      KafkaConfig      `yaml:"kafka"`
	Redis      RedisConfig      `yaml:"redis"`
	Logging    LoggingConfig    `yaml:"logging"`
	Tracing    TracingConfig    `yaml:"tracing"`
	Metrics    MetricsConfig    `yaml:"metrics"`
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Port            int           `yaml:"port"`
	ReadTimeout     time.Duration `yaml:"readTimeout"`
	WriteTimeout    time.Duration `yaml:"writeTimeout"`
	ShutdownTimeout time.Duration `yaml:"shutdownTimeout"`
	// RateLimit is requests per minute per client address; 0 disables it.
	RateLimit   int      `yaml:"rateLimit"`
	CORSOrigins []string `yaml:"corsOrigins"`
}

// IndexConfig controls where the corpus comes from, how it is analysed and
// where the index snapshot lives.
type IndexConfig struct {
	SnapshotPath  string  `yaml:"snapshotPath"`
	Source        string  `yaml:"source"`
	CorpusPath    string  `yaml:"corpusPath"`
	StopwordsPath string  `yaml:"stopwordsPath"`
	Stemmer       string  `yaml:"stemmer"`
	K1            float64 `yaml:"k1"`
	B             float64 `yaml:"b"`
}

// SearchConfig controls query limits and fusion defaults.
type SearchConfig struct {
	DefaultLimit    int     `yaml:"defaultLimit"`
	MaxResults      int     `yaml:"maxResults"`
	OverFetchFactor int     `yaml:"overFetchFactor"`
	DefaultAlpha    float64 `yaml:"defaultAlpha"`
	DefaultRRFK     float64 `yaml:"defaultRRFK"`

	// CacheResults stores ranked lists in Redis, keyed by mode, query and
	// parameters, until the index is reloaded or ResultCacheTTL passes.
	CacheResults   bool          `yaml:"cacheResults"`
	ResultCacheTTL time.Duration `yaml:"resultCacheTTL"`
}

// SemanticConfig controls document chunking and the chunk-vector snapshot.
type SemanticConfig struct {
	Enabled      bool   `yaml:"enabled"`
	SnapshotPath string `yaml:"snapshotPath"`
	ChunkMode    string `yaml:"chunkMode"`
	ChunkSize    int    `yaml:"chunkSize"`
	ChunkOverlap int    `yaml:"chunkOverlap"`
	Concurrency  int    `yaml:"concurrency"`
}

// EmbeddingsConfig selects and configures the embedding provider.
type EmbeddingsConfig struct {
	Provider   string        `yaml:"provider"`
	Model      string        `yaml:"model"`
	BaseURL    string        `yaml:"baseUrl"`
	APIKey     string        `yaml:"apiKey"`
	Dimensions int           `yaml:"dimensions"`
	Timeout    time.Duration `yaml:"timeout"`
	MaxRetries int           `yaml:"maxRetries"`
	Cache      bool          `yaml:"cache"`
}

// EvaluationConfig points at the golden relevance set.
type EvaluationConfig struct {
	GoldenPath string `yaml:"goldenPath"`
	Limit      int    `yaml:"limit"`
}

// AnalyticsConfig sizes the search-event collector. PersistInterval is how
// often aggregated stats are written to Postgres; 0 disables persistence.
// Snapshots older than Retention are pruned; 0 keeps them forever.
type AnalyticsConfig struct {
	Enabled         bool          `yaml:"enabled"`
	BufferSize      int           `yaml:"bufferSize"`
	BatchSize       int           `yaml:"batchSize"`
	FlushInterval   time.Duration `yaml:"flushInterval"`
	PersistInterval time.Duration `yaml:"persistInterval"`
	Retention       time.Duration `yaml:"retention"`
}

// PostgresConfig holds PostgreSQL connection parameters.
type PostgresConfig struct {
	Host            string        `yaml:"host"`
	Port            int           `yaml:"port"`
	Database        string        `yaml:"database"`
	User            string        `yaml:"user"`
	Password        string        `yaml:"password"`
	SSLMode         string        `yaml:"sslMode"`
	MaxOpenConns    int           `yaml:"maxOpenConns"`
	MaxIdleConns    int           `yaml:"maxIdleConns"`
	ConnMaxLifetime time.Duration `yaml:"connMaxLifetime"`
	DocumentsTable  string        `yaml:"documentsTable"`
}

// DSN returns a lib/pq-compatible data source name.
func (p PostgresConfig) DSN() string {
	return fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		p.Host, p.Port, p.User, p.Password, p.Database, p.SSLMode,
	)
}

// KafkaConfig holds Kafka broker and topic settings.
type KafkaConfig struct {
	Enabled       bool        `yaml:"enabled"`
	Brokers       []string    `yaml:"brokers"`
	ConsumerGroup string      `yaml:"consumerGroup"`
	Topics        KafkaTopics `yaml:"topics"`
}

// KafkaTopics maps logical topic names to their Kafka topic strings.
type KafkaTopics struct {
	SearchEvents  string `yaml:"searchEvents"`
	SnapshotReady string `yaml:"snapshotReady"`
}

// RedisConfig holds Redis connection and caching parameters.
type RedisConfig struct {
	Addr     string        `yaml:"addr"`
	Password string        `yaml:"password"`
	DB       int           `yaml:"db"`
	PoolSize int           `yaml:"poolSize"`
	CacheTTL time.Duration `yaml:"cacheTTL"`
}

// AuthConfig guards the index administration endpoints (reload, rebuild).
// Store "static" accepts the raw Keys listed here; "postgres" validates
// against the api_keys table managed by `hybridsearch keys`.
type AuthConfig struct {
	Enabled bool     `yaml:"enabled"`
	Store   string   `yaml:"store"`
	Keys    []string `yaml:"keys"`
}

// LoggingConfig controls structured logging level and output format.
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// TracingConfig controls span logging for sampled requests.
type TracingConfig struct {
	Enabled    bool    `yaml:"enabled"`
	SampleRate float64 `yaml:"sampleRate"`
}

// MetricsConfig controls the Prometheus metrics server.
type MetricsConfig struct {
	Enabled bool `yaml:"enabled"`
	Port    int  `yaml:"port"`
}

// Load reads a YAML config file (if provided) and applies environment-variable
// overrides. It returns a Config populated with sensible defaults for any
// missing values. The result is validated.
func Load(path string) (*Config, error) {
	cfg := defaultConfig()
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("reading config file %s: %w", path, err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parsing config file %s: %w", path, err)
		}
	}
	applyEnvOverrides(cfg)
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return cfg, nil
}

// Default returns the built-in defaults with environment overrides applied.
func Default() *Config {
	cfg := defaultConfig()
	applyEnvOverrides(cfg)
	return cfg
}

// defaultConfig returns a Config with defaults for local development.
func defaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			Port:            8080,
			ReadTimeout:     30 * time.Second,
			WriteTimeout:    30 * time.Second,
			ShutdownTimeout: 15 * time.Second,
			CORSOrigins:     []string{"*"},
		},
		Index: IndexConfig{
			SnapshotPath:  "cache/index.snap",
			Source:        "json",
			CorpusPath:    "data/movies.json",
			StopwordsPath: "data/stopwords.txt",
			Stemmer:       "snowball",
			K1:            1.5,
			B:             0.75,
		},
		Search: SearchConfig{
			DefaultLimit:    5,
			MaxResults:      100,
			OverFetchFactor: 500,
			DefaultAlpha:    0.5,
			DefaultRRFK:     60,
			ResultCacheTTL:  5 * time.Minute,
		},
		Semantic: SemanticConfig{
			Enabled:      true,
			SnapshotPath: "cache/chunks.snap",
			ChunkMode:    "sentences",
			ChunkSize:    4,
			ChunkOverlap: 1,
			Concurrency:  4,
		},
		Embeddings: EmbeddingsConfig{
			Provider:   "static",
			Model:      "text-embedding-3-small",
			BaseURL:    "https://api.openai.com/v1",
			Dimensions: 384,
			Timeout:    30 * time.Second,
			MaxRetries: 3,
		},
		Evaluation: EvaluationConfig{
			GoldenPath: "data/golden_dataset.json",
			Limit:      5,
		},
		Analytics: AnalyticsConfig{
			Enabled:         true,
			BufferSize:      10000,
			BatchSize:       100,
			FlushInterval:   5 * time.Second,
			PersistInterval: time.Minute,
			Retention:       7 * 24 * time.Hour,
		},
		Auth: AuthConfig{
			Store: "static",
		},
		Postgres: PostgresConfig{
			Host:            "localhost",
			Port:            5432,
			Database:        "hybridsearch",
			User:            "hybridsearch",
			Password:        "localdev",
			SSLMode:         "disable",
			MaxOpenConns:    25,
			MaxIdleConns:    5,
			ConnMaxLifetime: 5 * time.Minute,
			DocumentsTable:  "documents",
		},
		Kafka: KafkaConfig{
			Brokers:       []string{"localhost:9092"},
			ConsumerGroup: "hybridsearch-group",
			Topics: KafkaTopics{
				SearchEvents:  "search-events",
				SnapshotReady: "snapshot-ready",
			},
		},
		Redis: RedisConfig{
			Addr:     "localhost:6379",
			Password: "",
			DB:       0,
			PoolSize: 10,
			CacheTTL: 24 * time.Hour,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
		},
		Tracing: TracingConfig{
			SampleRate: 0.1,
		},
		Metrics: MetricsConfig{
			Enabled: true,
			Port:    9090,
		},
	}
}

// Validate rejects settings the search core cannot run with.
func (c *Config) Validate() error {
	var errs []error
	if c.Index.SnapshotPath == "" {
		errs = append(errs, errors.New("index.snapshotPath is required"))
	}
	switch c.Index.Source {
	case "json", "postgres":
	default:
		errs = append(errs, fmt.Errorf("index.source must be json or postgres, got %q", c.Index.Source))
	}
	if c.Index.K1 < 0 {
		errs = append(errs, fmt.Errorf("index.k1 must be non-negative, got %g", c.Index.K1))
	}
	if c.Index.B < 0 || c.Index.B > 1 {
		errs = append(errs, fmt.Errorf("index.b must be within [0,1], got %g", c.Index.B))
	}
	if c.Search.DefaultLimit <= 0 {
		errs = append(errs, fmt.Errorf("search.defaultLimit must be positive, got %d", c.Search.DefaultLimit))
	}
	if c.Search.MaxResults < c.Search.DefaultLimit {
		errs = append(errs, fmt.Errorf("search.maxResults %d is below defaultLimit %d", c.Search.MaxResults, c.Search.DefaultLimit))
	}
	if c.Search.OverFetchFactor < 1 {
		errs = append(errs, fmt.Errorf("search.overFetchFactor must be at least 1, got %d", c.Search.OverFetchFactor))
	}
	if c.Search.DefaultAlpha < 0 || c.Search.DefaultAlpha > 1 {
		errs = append(errs, fmt.Errorf("search.defaultAlpha must be within [0,1], got %g", c.Search.DefaultAlpha))
	}
	switch c.Auth.Store {
	case "static":
		if c.Auth.Enabled && len(c.Auth.Keys) == 0 {
			errs = append(errs, errors.New("auth.keys must not be empty when auth.store is static"))
		}
	case "postgres":
	default:
		errs = append(errs, fmt.Errorf("auth.store must be static or postgres, got %q", c.Auth.Store))
	}
	if c.Search.CacheResults && c.Search.ResultCacheTTL <= 0 {
		errs = append(errs, fmt.Errorf("search.resultCacheTTL must be positive when cacheResults is set, got %s", c.Search.ResultCacheTTL))
	}
	if c.Search.DefaultRRFK < 0 {
		errs = append(errs, fmt.Errorf("search.defaultRRFK must be non-negative, got %g", c.Search.DefaultRRFK))
	}
	if c.Semantic.Enabled {
		if c.Semantic.ChunkSize <= 0 {
			errs = append(errs, fmt.Errorf("semantic.chunkSize must be positive, got %d", c.Semantic.ChunkSize))
		}
		if c.Semantic.ChunkOverlap < 0 || c.Semantic.ChunkOverlap >= c.Semantic.ChunkSize {
			errs = append(errs, fmt.Errorf("semantic.chunkOverlap must be within [0,chunkSize), got %d", c.Semantic.ChunkOverlap))
		}
		switch c.Semantic.ChunkMode {
		case "words", "sentences":
		default:
			errs = append(errs, fmt.Errorf("semantic.chunkMode must be words or sentences, got %q", c.Semantic.ChunkMode))
		}
	}
	if c.Analytics.BufferSize < 0 || c.Analytics.BatchSize < 0 {
		errs = append(errs, errors.New("analytics buffer and batch sizes must be non-negative"))
	}
	if c.Analytics.PersistInterval < 0 || c.Analytics.Retention < 0 {
		errs = append(errs, errors.New("analytics persistInterval and retention must be non-negative"))
	}
	if c.Tracing.SampleRate < 0 || c.Tracing.SampleRate > 1 {
		errs = append(errs, fmt.Errorf("tracing.sampleRate must be within [0,1], got %g", c.Tracing.SampleRate))
	}
	return errors.Join(errs...)
}

// applyEnvOverrides reads HS_* environment variables and overrides the
// corresponding config fields.
func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("HS_SERVER_PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			cfg.Server.Port = port
		}
	}
	if v := os.Getenv("HS_SERVER_RATE_LIMIT"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.Server.RateLimit = n
		}
	}
	if v := os.Getenv("HS_INDEX_SNAPSHOT_PATH"); v != "" {
		cfg.Index.SnapshotPath = v
	}
	if v := os.Getenv("HS_INDEX_SOURCE"); v != "" {
		cfg.Index.Source = v
	}
	if v := os.Getenv("HS_INDEX_CORPUS_PATH"); v != "" {
		cfg.Index.CorpusPath = v
	}
	if v := os.Getenv("HS_INDEX_STOPWORDS_PATH"); v != "" {
		cfg.Index.StopwordsPath = v
	}
	if v := os.Getenv("HS_INDEX_STEMMER"); v != "" {
		cfg.Index.Stemmer = v
	}
	if v := os.Getenv("HS_SEARCH_OVER_FETCH_FACTOR"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.Search.OverFetchFactor = n
		}
	}
	if v := os.Getenv("HS_SEARCH_CACHE_RESULTS"); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			cfg.Search.CacheResults = b
		}
	}
	if v := os.Getenv("HS_SEMANTIC_ENABLED"); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			cfg.Semantic.Enabled = b
		}
	}
	if v := os.Getenv("HS_SEMANTIC_SNAPSHOT_PATH"); v != "" {
		cfg.Semantic.SnapshotPath = v
	}
	if v := os.Getenv("HS_EMBEDDINGS_PROVIDER"); v != "" {
		cfg.Embeddings.Provider = v
	}
	if v := os.Getenv("HS_EMBEDDINGS_MODEL"); v != "" {
		cfg.Embeddings.Model = v
	}
	if v := os.Getenv("HS_EMBEDDINGS_BASE_URL"); v != "" {
		cfg.Embeddings.BaseURL = v
	}
	if v := os.Getenv("HS_EMBEDDINGS_API_KEY"); v != "" {
		cfg.Embeddings.APIKey = v
	}
	if v := os.Getenv("HS_EMBEDDINGS_CACHE"); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			cfg.Embeddings.Cache = b
		}
	}
	if v := os.Getenv("HS_ANALYTICS_ENABLED"); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			cfg.Analytics.Enabled = b
		}
	}
	if v := os.Getenv("HS_AUTH_ENABLED"); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			cfg.Auth.Enabled = b
		}
	}
	if v := os.Getenv("HS_AUTH_KEYS"); v != "" {
		cfg.Auth.Keys = strings.Split(v, ",")
	}
	if v := os.Getenv("HS_POSTGRES_HOST"); v != "" {
		cfg.Postgres.Host = v
	}
	if v := os.Getenv("HS_POSTGRES_PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			cfg.Postgres.Port = port
		}
	}
	if v := os.Getenv("HS_POSTGRES_DATABASE"); v != "" {
		cfg.Postgres.Database = v
	}
	if v := os.Getenv("HS_POSTGRES_USER"); v != "" {
		cfg.Postgres.User = v
	}
	if v := os.Getenv("HS_POSTGRES_PASSWORD"); v != "" {
		cfg.Postgres.Password = v
	}
	if v := os.Getenv("HS_POSTGRES_SSLMODE"); v != "" {
		cfg.Postgres.SSLMode = v
	}
	if v := os.Getenv("HS_KAFKA_ENABLED"); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			cfg.Kafka.Enabled = b
		}
	}
	if v := os.Getenv("HS_KAFKA_BROKERS"); v != "" {
		cfg.Kafka.Brokers = strings.Split(v, ",")
	}
	if v := os.Getenv("HS_REDIS_ADDR"); v != "" {
		cfg.Redis.Addr = v
	}
	if v := os.Getenv("HS_REDIS_PASSWORD"); v != "" {
		cfg.Redis.Password = v
	}
	if v := os.Getenv("HS_LOGGING_LEVEL"); v != "" {
		cfg.Logging.Level = v
	}
	if v := os.Getenv("HS_LOGGING_FORMAT"); v != "" {
		cfg.Logging.Format = v
	}
}

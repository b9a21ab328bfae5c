// Package config loads worker configuration from the environment, with an
// optional YAML overlay for local development.
package config

import (
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// LLM provider identifiers.
const (
	ProviderBedrock   = "bedrock"
	ProviderAnthropic = "anthropic"
	ProviderOpenAI    = "openai"
	ProviderOllama    = "ollama"
)

// Bad-row policy identifiers. CoerceNull substitutes a typed null for a
// field that fails coercion; Strict fails the row and counts it against the
// bad-row budget.
const (
	PolicyCoerceNull = "coerce-null"
	PolicyStrict     = "strict"
)

// Config holds all configuration values. It is passed by value into the
// pipeline and services, which never mutate it.
type Config struct {
	// AWS resources
	BucketName string
	TableName  string
	QueueURL   string

	// LLM
	LLMProvider     string
	LLMModel        string
	AnthropicAPIKey string
	OpenAIAPIKey    string
	OllamaHost      string

	// Conversion pipeline
	BadRowPolicy    string
	MaxBadRows      int
	ChunkBytes      int
	MaxRecordBytes  int
	MaxRowsPerBatch int
	MaxBatchBytes   int
	ChannelCap      int
	InternPoolSize  int

	// Query stage
	QueryTimeout    time.Duration
	MaxRowsOut      int
	RenderRowCap    int
	SQLRetries      int
	MaxParquetBytes int64
	EngineThreads   int
	EngineMemLimit  string
	EngineTempDir   string

	// Logging
	LogFile  string
	LogLevel slog.Level
}

// Load reads configuration from environment variables. When PARQ_CONFIG_FILE
// is set, the named YAML file is applied on top of the environment values.
func Load() (Config, error) {
	cfg := Config{
		BucketName: os.Getenv("S3_UPLOAD_BUCKET_NAME"),
		TableName:  os.Getenv("DYNAMODB_NAME"),
		QueueURL:   os.Getenv("PARQUET_QUEUE_URL"),

		LLMProvider:     getEnv("PARQ_LLM_PROVIDER", ProviderBedrock),
		LLMModel:        getEnv("PARQ_LLM_MODEL", "anthropic.claude-sonnet-4-20250514-v1:0"),
		AnthropicAPIKey: os.Getenv("ANTHROPIC_API_KEY"),
		OpenAIAPIKey:    os.Getenv("OPENAI_API_KEY"),
		OllamaHost:      getEnv("OLLAMA_HOST", "http://localhost:11434"),

		BadRowPolicy:    getEnv("PARQ_BAD_ROW_POLICY", PolicyCoerceNull),
		MaxBadRows:      getEnvInt("PARQ_MAX_BAD_ROWS", 1000),
		ChunkBytes:      getEnvInt("PARQ_CHUNK_BYTES", 512*1024*1024),
		MaxRecordBytes:  getEnvInt("PARQ_MAX_RECORD_BYTES", 16*1024*1024),
		MaxRowsPerBatch: getEnvInt("PARQ_MAX_ROWS_PER_BATCH", 3_500_000),
		MaxBatchBytes:   getEnvInt("PARQ_MAX_BATCH_BYTES", 1800*1024*1024),
		ChannelCap:      getEnvInt("PARQ_CHANNEL_CAP", 8),
		InternPoolSize:  getEnvInt("PARQ_INTERN_POOL_SIZE", 50_000),

		QueryTimeout:    getEnvDuration("PARQ_QUERY_TIMEOUT", 30*time.Second),
		MaxRowsOut:      getEnvInt("PARQ_MAX_ROWS_OUT", 10_000),
		RenderRowCap:    getEnvInt("PARQ_RENDER_ROW_CAP", 200),
		SQLRetries:      getEnvInt("PARQ_SQL_RETRIES", 2),
		MaxParquetBytes: int64(getEnvInt("PARQ_MAX_PARQUET_BYTES", 2*1024*1024*1024)),
		EngineThreads:   getEnvInt("PARQ_ENGINE_THREADS", 2),
		EngineMemLimit:  getEnv("PARQ_ENGINE_MEM_LIMIT", "1GB"),
		EngineTempDir:   getEnv("PARQ_ENGINE_TEMP_DIR", os.TempDir()),

		LogFile:  os.Getenv("PARQ_LOG_FILE"),
		LogLevel: parseLogLevel(getEnv("PARQ_LOG_LEVEL", "INFO")),
	}

	if path := os.Getenv("PARQ_CONFIG_FILE"); path != "" {
		if err := cfg.applyFile(path); err != nil {
			return Config{}, fmt.Errorf("apply config file: %w", err)
		}
	}

	switch cfg.BadRowPolicy {
	case PolicyCoerceNull, PolicyStrict:
	default:
		return Config{}, fmt.Errorf("unknown bad-row policy %q", cfg.BadRowPolicy)
	}

	return cfg, nil
}

// fileConfig is the YAML overlay. Only fields useful for local development
// are exposed; zero values leave the environment value in place.
type fileConfig struct {
	Bucket       string `yaml:"bucket"`
	Table        string `yaml:"table"`
	QueueURL     string `yaml:"queue_url"`
	LLMProvider  string `yaml:"llm_provider"`
	LLMModel     string `yaml:"llm_model"`
	OllamaHost   string `yaml:"ollama_host"`
	BadRowPolicy string `yaml:"bad_row_policy"`
	MaxBadRows   *int   `yaml:"max_bad_rows"`
	LogFile      string `yaml:"log_file"`
	LogLevel     string `yaml:"log_level"`
}

func (c *Config) applyFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	var fc fileConfig
	if err := yaml.Unmarshal(data, &fc); err != nil {
		return err
	}
	if fc.Bucket != "" {
		c.BucketName = fc.Bucket
	}
	if fc.Table != "" {
		c.TableName = fc.Table
	}
	if fc.QueueURL != "" {
		c.QueueURL = fc.QueueURL
	}
	if fc.LLMProvider != "" {
		c.LLMProvider = fc.LLMProvider
	}
	if fc.LLMModel != "" {
		c.LLMModel = fc.LLMModel
	}
	if fc.OllamaHost != "" {
		c.OllamaHost = fc.OllamaHost
	}
	if fc.BadRowPolicy != "" {
		c.BadRowPolicy = fc.BadRowPolicy
	}
	if fc.MaxBadRows != nil {
		c.MaxBadRows = *fc.MaxBadRows
	}
	if fc.LogFile != "" {
		c.LogFile = fc.LogFile
	}
	if fc.LogLevel != "" {
		c.LogLevel = parseLogLevel(fc.LogLevel)
	}
	return nil
}

func getEnv(key, defaultVal string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return defaultVal
}

func getEnvInt(key string, defaultVal int) int {
	if val := os.Getenv(key); val != "" {
		if n, err := strconv.Atoi(val); err == nil {
			return n
		}
	}
	return defaultVal
}

func getEnvDuration(key string, defaultVal time.Duration) time.Duration {
	if val := os.Getenv(key); val != "" {
		if d, err := time.ParseDuration(val); err == nil {
			return d
		}
	}
	return defaultVal
}

func parseLogLevel(s string) slog.Level {
	switch strings.ToUpper(s) {
	case "DEBUG":
		return slog.LevelDebug
	case "INFO":
		return slog.LevelInfo
	case "WARN", "WARNING":
		return slog.LevelWarn
	case "ERROR":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog"
	"gopkg.in/yaml.v3"
)

// ConfigPathEnv names the optional YAML configuration file.
const ConfigPathEnv = "NEWSBRIEF_CONFIG"

// Config holds all configuration for the application
type Config struct {
	// File paths
	SourcesCSVPath string `yaml:"sources_csv"`
	DBPath         string `yaml:"db_path"`

	// Server settings
	ServerHost string `yaml:"host"`
	ServerPort int    `yaml:"port"`
	APIKey     string `yaml:"api_key"`

	// Processing settings
	WorkerCount       int           `yaml:"workers"`
	FetchInterval     time.Duration `yaml:"fetch_interval"`
	FallbackInterval  time.Duration `yaml:"fallback_interval"`
	FallbackBatchSize int           `yaml:"fallback_batch_size"`
	UserAgent         string        `yaml:"user_agent"`

	Queue QueueConfig `yaml:"queue"`
	AI    AIConfig    `yaml:"ai"`

	// Log settings
	LogLevel zerolog.Level `yaml:"log_level"`
}

// QueueConfig configures the summarization job queue.
type QueueConfig struct {
	Concurrency int `yaml:"concurrency"`
	MaxAttempts int `yaml:"max_attempts"`
	BackoffMS   int `yaml:"backoff_ms"`
}

// AIConfig selects and configures the generative backend.
type AIConfig struct {
	Provider        string `yaml:"provider"`
	ProjectID       string `yaml:"project_id"`
	Location        string `yaml:"location"`
	Model           string `yaml:"model"`
	CredentialsFile string `yaml:"credentials_file"`
	OllamaHost      string `yaml:"ollama_host"`
	OllamaModel     string `yaml:"ollama_model"`
	Language        string `yaml:"language"`
}

// DefaultConfig returns an initial configuration with hardcoded defaults.
func DefaultConfig() *Config {
	logLevel, _ := zerolog.ParseLevel(DefaultLogLevel)

	return &Config{
		SourcesCSVPath:    DefaultSourcesCSVPath,
		DBPath:            DefaultDBPath,
		ServerHost:        DefaultServerHost,
		ServerPort:        DefaultServerPort,
		WorkerCount:       DefaultWorkerCount,
		FetchInterval:     time.Duration(DefaultFetchInterval) * time.Minute,
		FallbackInterval:  time.Duration(DefaultFallbackInterval) * time.Minute,
		FallbackBatchSize: DefaultFallbackBatchSize,
		UserAgent:         DefaultUserAgent,
		Queue: QueueConfig{
			Concurrency: DefaultQueueConcurrency,
			MaxAttempts: DefaultQueueMaxAttempts,
			BackoffMS:   DefaultQueueBackoffMS,
		},
		AI: AIConfig{
			Provider:    DefaultAIProvider,
			Location:    DefaultVertexLocation,
			Model:       DefaultVertexModel,
			OllamaHost:  DefaultOllamaHost,
			OllamaModel: DefaultOllamaModel,
			Language:    DefaultLanguage,
		},
		LogLevel: logLevel,
	}
}

// Load builds the configuration from defaults, the .env file, the YAML file named by
// path (or NEWSBRIEF_CONFIG when path is empty) and NEWSBRIEF_* environment variables,
// in that order of precedence.
func Load(path string) (*Config, error) {
	if err := godotenv.Load(DefaultEnvFile); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("failed to load %s: %w", DefaultEnvFile, err)
	}

	cfg := DefaultConfig()

	if path == "" {
		path = GetEnvString(ConfigPathEnv, "")
	}
	if path != "" {
		raw, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
		if err := yaml.Unmarshal(raw, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config file %s: %w", path, err)
		}
	}

	cfg.applyEnvOverrides()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) applyEnvOverrides() {
	c.SourcesCSVPath = GetEnvString("NEWSBRIEF_CSV_PATH", c.SourcesCSVPath)
	c.DBPath = GetEnvString("NEWSBRIEF_DB_PATH", c.DBPath)
	c.ServerHost = GetEnvString("NEWSBRIEF_HOST", c.ServerHost)
	c.ServerPort = GetEnvInt("NEWSBRIEF_PORT", c.ServerPort)
	c.APIKey = GetEnvString("NEWSBRIEF_API_KEY", c.APIKey)

	c.WorkerCount = GetEnvInt("NEWSBRIEF_WORKER_COUNT", c.WorkerCount)
	c.FetchInterval = GetEnvDuration("NEWSBRIEF_FETCH_INTERVAL", c.FetchInterval)
	c.FallbackInterval = GetEnvDuration("NEWSBRIEF_FALLBACK_INTERVAL", c.FallbackInterval)
	c.FallbackBatchSize = GetEnvInt("NEWSBRIEF_FALLBACK_BATCH_SIZE", c.FallbackBatchSize)
	c.UserAgent = GetEnvString("NEWSBRIEF_USER_AGENT", c.UserAgent)

	c.Queue.Concurrency = GetEnvInt("NEWSBRIEF_QUEUE_CONCURRENCY", c.Queue.Concurrency)
	c.Queue.MaxAttempts = GetEnvInt("NEWSBRIEF_QUEUE_MAX_ATTEMPTS", c.Queue.MaxAttempts)
	c.Queue.BackoffMS = GetEnvInt("NEWSBRIEF_QUEUE_BACKOFF_MS", c.Queue.BackoffMS)

	c.AI.Provider = strings.ToLower(GetEnvString("NEWSBRIEF_AI_PROVIDER", c.AI.Provider))
	c.AI.ProjectID = GetEnvString("GOOGLE_CLOUD_PROJECT_ID", c.AI.ProjectID)
	c.AI.Location = GetEnvString("GOOGLE_CLOUD_LOCATION", c.AI.Location)
	c.AI.Model = GetEnvString("NEWSBRIEF_AI_MODEL", c.AI.Model)
	c.AI.CredentialsFile = GetEnvString("GOOGLE_APPLICATION_CREDENTIALS", c.AI.CredentialsFile)
	c.AI.OllamaHost = GetEnvString("NEWSBRIEF_OLLAMA_HOST", c.AI.OllamaHost)
	c.AI.OllamaModel = GetEnvString("NEWSBRIEF_OLLAMA_MODEL", c.AI.OllamaModel)
	c.AI.Language = GetEnvString("NEWSBRIEF_LANGUAGE", c.AI.Language)

	c.LogLevel = GetEnvLogLevel("NEWSBRIEF_LOG_LEVEL", c.LogLevel)
}

// Validate reports settings that cannot work.
func (c *Config) Validate() error {
	switch c.AI.Provider {
	case ProviderNone, "":
	case ProviderOllama:
		if c.AI.OllamaHost == "" || c.AI.OllamaModel == "" {
			return fmt.Errorf("ollama provider requires a host and a model")
		}
	case ProviderVertex:
		if c.AI.ProjectID == "" {
			return fmt.Errorf("vertex provider requires GOOGLE_CLOUD_PROJECT_ID or ai.project_id")
		}
	default:
		return fmt.Errorf("unknown AI provider %q", c.AI.Provider)
	}
	if c.DBPath == "" {
		return fmt.Errorf("database path must not be empty")
	}
	if c.FetchInterval < 0 || c.FallbackInterval < 0 {
		return fmt.Errorf("intervals must not be negative")
	}
	return nil
}

// ListenAddr returns the formatted listen address for the HTTP server.
func (c *Config) ListenAddr() string {
	return fmt.Sprintf("%s:%d", c.ServerHost, c.ServerPort)
}

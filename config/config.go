package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

type Config struct {
	AppPort   int             `yaml:"app_port"`
	LogLevel  string          `yaml:"log_level"`
	IGDB      IGDBConfig      `yaml:"igdb"`
	Queue     QueueConfig     `yaml:"queue"`
	Consumer  ConsumerConfig  `yaml:"consumer"`
	Embedding EmbeddingConfig `yaml:"embedding"`
	Store     StoreConfig     `yaml:"store"`
}

type IGDBConfig struct {
	BaseURL      string        `yaml:"base_url"`
	ClientID     string        `yaml:"client_id"`
	AccessToken  string        `yaml:"access_token"`
	PageSize     int           `yaml:"page_size"`
	MaxOffset    int           `yaml:"max_offset"`
	SendDelay    time.Duration `yaml:"send_delay"`
	RequestDelay time.Duration `yaml:"request_delay"`
	ProxyURL     string        `yaml:"proxy_url"`
}

type QueueConfig struct {
	Path              string        `yaml:"path"`
	VisibilityTimeout time.Duration `yaml:"visibility_timeout"`
	MaxReceive        int           `yaml:"max_receive"`
}

type ConsumerConfig struct {
	PollInterval time.Duration `yaml:"poll_interval"`
	BatchSize    int           `yaml:"batch_size"`
	Concurrency  int           `yaml:"concurrency"`
	MaxSentences int           `yaml:"max_sentences"`
	RetryDelay   time.Duration `yaml:"retry_delay"`
}

type EmbeddingConfig struct {
	Provider  string  `yaml:"provider"`
	BaseURL   string  `yaml:"base_url"`
	Model     string  `yaml:"model"`
	APIKey    string  `yaml:"api_key"`
	AccountID string  `yaml:"account_id"`
	RateLimit float64 `yaml:"rate_limit"`
	Burst     int     `yaml:"burst"`
	Dimension int     `yaml:"dimension"`
}

type StoreConfig struct {
	Provider     string `yaml:"provider"`
	QdrantHost   string `yaml:"qdrant_host"`
	QdrantPort   int    `yaml:"qdrant_port"`
	QdrantAPIKey string `yaml:"qdrant_api_key"`
	Collection   string `yaml:"collection"`
	DatabaseURL  string `yaml:"database_url"`
}

// Default returns the configuration used when no file or environment
// overrides are present.
func Default() *Config {
	return &Config{
		AppPort:  8787,
		LogLevel: "info",
		IGDB: IGDBConfig{
			BaseURL:      "https://api.igdb.com/v4",
			PageSize:     100,
			MaxOffset:    300000,
			SendDelay:    time.Second,
			RequestDelay: 250 * time.Millisecond,
		},
		Queue: QueueConfig{
			Path:              "data/queue.db",
			VisibilityTimeout: 5 * time.Minute,
			MaxReceive:        5,
		},
		Consumer: ConsumerConfig{
			PollInterval: time.Second,
			BatchSize:    10,
			Concurrency:  2,
			MaxSentences: 3,
			RetryDelay:   10 * time.Second,
		},
		Embedding: EmbeddingConfig{
			Provider:  "workersai",
			Model:     "@cf/baai/bge-large-en-v1.5",
			Burst:     1,
			Dimension: 1024,
		},
		Store: StoreConfig{
			Provider:   "qdrant",
			QdrantHost: "localhost",
			QdrantPort: 6334,
			Collection: "game_vectors",
		},
	}
}

// Load reads defaults, then the YAML file at path if path is not empty,
// then environment overrides.
func Load(path string) (*Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read config file: %w", err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse config file: %w", err)
		}
	}

	if err := cfg.applyEnv(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) applyEnv() error {
	var errs []error
	setInt := func(key string, dst *int) {
		if v, ok := os.LookupEnv(key); ok && v != "" {
			n, err := strconv.Atoi(v)
			if err != nil {
				errs = append(errs, fmt.Errorf("%s: %w", key, err))
				return
			}
			*dst = n
		}
	}
	setString := func(key string, dst *string) {
		if v, ok := os.LookupEnv(key); ok && v != "" {
			*dst = v
		}
	}

	setInt("APP_PORT", &c.AppPort)
	setString("LOG_LEVEL", &c.LogLevel)
	setString("TWITCH_CLIENT_ID", &c.IGDB.ClientID)
	setString("TWITCH_APP_ACCESS_TOKEN", &c.IGDB.AccessToken)
	setString("IGDB_BASE_URL", &c.IGDB.BaseURL)
	setString("PROXY_URL", &c.IGDB.ProxyURL)
	setString("QUEUE_PATH", &c.Queue.Path)
	setString("EMBEDDING_PROVIDER", &c.Embedding.Provider)
	setString("EMBEDDING_BASE_URL", &c.Embedding.BaseURL)
	setString("EMBEDDING_MODEL", &c.Embedding.Model)
	setString("EMBEDDING_API_KEY", &c.Embedding.APIKey)
	setString("CF_ACCOUNT_ID", &c.Embedding.AccountID)
	setString("STORE_PROVIDER", &c.Store.Provider)
	setString("QDRANT_HOST", &c.Store.QdrantHost)
	setInt("QDRANT_PORT", &c.Store.QdrantPort)
	setString("QDRANT_API_KEY", &c.Store.QdrantAPIKey)
	setString("DATABASE_URL", &c.Store.DatabaseURL)

	return errors.Join(errs...)
}

// Validate reports every invalid setting at once.
func (c *Config) Validate() error {
	var errs []error
	if c.AppPort <= 0 || c.AppPort > 65535 {
		errs = append(errs, fmt.Errorf("app_port %d out of range", c.AppPort))
	}
	if c.IGDB.PageSize < 1 || c.IGDB.PageSize > 500 {
		errs = append(errs, fmt.Errorf("igdb.page_size %d must be between 1 and 500", c.IGDB.PageSize))
	}
	if c.IGDB.MaxOffset < 0 {
		errs = append(errs, fmt.Errorf("igdb.max_offset %d is negative", c.IGDB.MaxOffset))
	}
	if c.Queue.Path == "" {
		errs = append(errs, errors.New("queue.path is required"))
	}
	if c.Consumer.BatchSize < 1 {
		errs = append(errs, fmt.Errorf("consumer.batch_size %d must be positive", c.Consumer.BatchSize))
	}
	if c.Embedding.Dimension < 1 {
		errs = append(errs, fmt.Errorf("embedding.dimension %d must be positive", c.Embedding.Dimension))
	}

	switch c.Embedding.Provider {
	case "workersai":
		if c.Embedding.AccountID == "" || c.Embedding.APIKey == "" {
			errs = append(errs, errors.New("workersai requires CF_ACCOUNT_ID and EMBEDDING_API_KEY"))
		}
	case "tei":
		if c.Embedding.BaseURL == "" {
			errs = append(errs, errors.New("tei requires embedding.base_url"))
		}
	case "openai":
	default:
		errs = append(errs, fmt.Errorf("unknown embedding.provider %q", c.Embedding.Provider))
	}

	switch c.Store.Provider {
	case "qdrant":
		if c.Store.QdrantHost == "" {
			errs = append(errs, errors.New("qdrant requires store.qdrant_host"))
		}
	case "postgres":
		if c.Store.DatabaseURL == "" {
			errs = append(errs, errors.New("postgres requires DATABASE_URL"))
		}
	case "memory":
	default:
		errs = append(errs, fmt.Errorf("unknown store.provider %q", c.Store.Provider))
	}

	return errors.Join(errs...)
}

// ValidateCrawl checks the settings needed to page the catalog.
func (c *Config) ValidateCrawl() error {
	var errs []error
	if c.IGDB.ClientID == "" {
		errs = append(errs, errors.New("TWITCH_CLIENT_ID is required"))
	}
	if c.IGDB.AccessToken == "" {
		errs = append(errs, errors.New("TWITCH_APP_ACCESS_TOKEN is required"))
	}
	return errors.Join(errs...)
}

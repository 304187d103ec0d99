// Package config loads and validates configuration from YAML files with
// environment-variable overrides. It provides typed structs for the index
// endpoint, the Kafka feeder, the outcome ledger, retries and the stub index.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the top-level application configuration.
type Config struct {
	Index    IndexConfig    `yaml:"index"`
	Kafka    KafkaConfig    `yaml:"kafka"`
	Postgres PostgresConfig `yaml:"postgres"`
	Feeder   FeederConfig   `yaml:"feeder"`
	Retry    RetryConfig    `yaml:"retry"`
	Breaker  BreakerConfig  `yaml:"breaker"`
	Logging  LoggingConfig  `yaml:"logging"`
	Metrics  MetricsConfig  `yaml:"metrics"`
	Stub     StubConfig     `yaml:"stub"`
}

// IndexConfig addresses the target index and bounds its batches.
type IndexConfig struct {
	Endpoint     string        `yaml:"endpoint"`
	Name         string        `yaml:"name"`
	KeyField     string        `yaml:"keyField"`
	APIKey       string        `yaml:"apiKey"`
	APIVersion   string        `yaml:"apiVersion"`
	Timeout      time.Duration `yaml:"timeout"`
	MaxBatchSize int           `yaml:"maxBatchSize"`
}

// KafkaConfig holds Kafka broker and topic settings.
type KafkaConfig struct {
	Brokers       []string    `yaml:"brokers"`
	ConsumerGroup string      `yaml:"consumerGroup"`
	Topics        KafkaTopics `yaml:"topics"`
}

// KafkaTopics maps logical topic names to their Kafka topic strings.
type KafkaTopics struct {
	Actions    string `yaml:"actions"`
	Retry      string `yaml:"retry"`
	DeadLetter string `yaml:"deadLetter"`
}

// PostgresConfig holds PostgreSQL connection parameters. An empty Host
// disables the outcome ledger.
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
}

// DSN returns a lib/pq-compatible data source name.
func (p PostgresConfig) DSN() string {
	return fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		p.Host, p.Port, p.User, p.Password, p.Database, p.SSLMode,
	)
}

// Enabled reports whether a database is configured.
func (p PostgresConfig) Enabled() bool { return p.Host != "" }

// FeederConfig controls how the feeder groups messages into batches.
type FeederConfig struct {
	BatchSize     int           `yaml:"batchSize"`
	FlushInterval time.Duration `yaml:"flushInterval"`
	MaxAttempts   int           `yaml:"maxAttempts"`
	SubmitTimeout time.Duration `yaml:"submitTimeout"`
	HealthPort    int           `yaml:"healthPort"`
}

// RetryConfig controls caller-side resubmission of failed actions.
type RetryConfig struct {
	MaxAttempts    int           `yaml:"maxAttempts"`
	InitialDelay   time.Duration `yaml:"initialDelay"`
	MaxDelay       time.Duration `yaml:"maxDelay"`
	Multiplier     float64       `yaml:"multiplier"`
	JitterFraction float64       `yaml:"jitterFraction"`
}

// BreakerConfig controls the transport circuit breaker.
type BreakerConfig struct {
	Enabled             bool          `yaml:"enabled"`
	FailureThreshold    int           `yaml:"failureThreshold"`
	ResetTimeout        time.Duration `yaml:"resetTimeout"`
	HalfOpenMaxRequests int           `yaml:"halfOpenMaxRequests"`
}

// LoggingConfig controls structured logging level and output format.
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// MetricsConfig controls the Prometheus metrics server.
type MetricsConfig struct {
	Enabled bool `yaml:"enabled"`
	Port    int  `yaml:"port"`
}

// StubConfig configures the in-memory stub index server.
type StubConfig struct {
	Port           int           `yaml:"port"`
	APIKey         string        `yaml:"apiKey"`
	DeleteMissing  string        `yaml:"deleteMissing"`
	RequestTimeout time.Duration `yaml:"requestTimeout"`
}

// Load reads a YAML config file (if provided) and applies environment-variable
// overrides. Missing values take the defaults below.
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
	if err := applyEnvOverrides(cfg); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func defaultConfig() *Config {
	return &Config{
		Index: IndexConfig{
			Endpoint:     "http://localhost:8090",
			Name:         "hotels",
			KeyField:     "hotelId",
			APIVersion:   "2024-07-01",
			Timeout:      30 * time.Second,
			MaxBatchSize: 1000,
		},
		Kafka: KafkaConfig{
			Brokers:       []string{"localhost:9092"},
			ConsumerGroup: "searchbatch-feeder",
			Topics: KafkaTopics{
				Actions:    "index-actions",
				Retry:      "index-actions-retry",
				DeadLetter: "index-actions-dlq",
			},
		},
		Postgres: PostgresConfig{
			Port:            5432,
			Database:        "searchbatch",
			User:            "searchbatch",
			SSLMode:         "disable",
			MaxOpenConns:    10,
			MaxIdleConns:    2,
			ConnMaxLifetime: 5 * time.Minute,
		},
		Feeder: FeederConfig{
			BatchSize:     500,
			FlushInterval: 2 * time.Second,
			MaxAttempts:   5,
			SubmitTimeout: 60 * time.Second,
			HealthPort:    8091,
		},
		Retry: RetryConfig{
			MaxAttempts:    4,
			InitialDelay:   500 * time.Millisecond,
			MaxDelay:       30 * time.Second,
			Multiplier:     2.0,
			JitterFraction: 0.1,
		},
		Breaker: BreakerConfig{
			Enabled:             true,
			FailureThreshold:    5,
			ResetTimeout:        30 * time.Second,
			HalfOpenMaxRequests: 1,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
		},
		Metrics: MetricsConfig{
			Enabled: true,
			Port:    9090,
		},
		Stub: StubConfig{
			Port:           8090,
			DeleteMissing:  "succeed",
			RequestTimeout: 30 * time.Second,
		},
	}
}

// Validate rejects configurations the client cannot run with.
func (c *Config) Validate() error {
	if c.Index.KeyField == "" {
		return fmt.Errorf("config: index.keyField is required")
	}
	if c.Index.Name == "" {
		return fmt.Errorf("config: index.name is required")
	}
	if c.Index.MaxBatchSize <= 0 || c.Index.MaxBatchSize > 1000 {
		return fmt.Errorf("config: index.maxBatchSize must be in 1..1000, got %d", c.Index.MaxBatchSize)
	}
	if c.Feeder.BatchSize <= 0 || c.Feeder.BatchSize > c.Index.MaxBatchSize {
		return fmt.Errorf("config: feeder.batchSize must be in 1..%d, got %d", c.Index.MaxBatchSize, c.Feeder.BatchSize)
	}
	if c.Feeder.MaxAttempts <= 0 {
		return fmt.Errorf("config: feeder.maxAttempts must be positive, got %d", c.Feeder.MaxAttempts)
	}
	switch c.Stub.DeleteMissing {
	case "succeed", "fail":
	default:
		return fmt.Errorf("config: stub.deleteMissing must be \"succeed\" or \"fail\", got %q", c.Stub.DeleteMissing)
	}
	return nil
}

// applyEnvOverrides reads SB_* environment variables and overrides the
// corresponding config fields.
func applyEnvOverrides(cfg *Config) error {
	str := map[string]*string{
		"SB_INDEX_ENDPOINT":      &cfg.Index.Endpoint,
		"SB_INDEX_NAME":          &cfg.Index.Name,
		"SB_INDEX_KEY_FIELD":     &cfg.Index.KeyField,
		"SB_INDEX_API_KEY":       &cfg.Index.APIKey,
		"SB_INDEX_API_VERSION":   &cfg.Index.APIVersion,
		"SB_KAFKA_GROUP":         &cfg.Kafka.ConsumerGroup,
		"SB_KAFKA_TOPIC_ACTIONS": &cfg.Kafka.Topics.Actions,
		"SB_KAFKA_TOPIC_RETRY":   &cfg.Kafka.Topics.Retry,
		"SB_KAFKA_TOPIC_DLQ":     &cfg.Kafka.Topics.DeadLetter,
		"SB_POSTGRES_HOST":       &cfg.Postgres.Host,
		"SB_POSTGRES_DATABASE":   &cfg.Postgres.Database,
		"SB_POSTGRES_USER":       &cfg.Postgres.User,
		"SB_POSTGRES_PASSWORD":   &cfg.Postgres.Password,
		"SB_POSTGRES_SSLMODE":    &cfg.Postgres.SSLMode,
		"SB_LOGGING_LEVEL":       &cfg.Logging.Level,
		"SB_LOGGING_FORMAT":      &cfg.Logging.Format,
		"SB_STUB_API_KEY":        &cfg.Stub.APIKey,
		"SB_STUB_DELETE_MISSING": &cfg.Stub.DeleteMissing,
	}
	for name, dst := range str {
		if v := os.Getenv(name); v != "" {
			*dst = v
		}
	}

	ints := map[string]*int{
		"SB_INDEX_MAX_BATCH_SIZE": &cfg.Index.MaxBatchSize,
		"SB_POSTGRES_PORT":        &cfg.Postgres.Port,
		"SB_FEEDER_BATCH_SIZE":    &cfg.Feeder.BatchSize,
		"SB_FEEDER_MAX_ATTEMPTS":  &cfg.Feeder.MaxAttempts,
		"SB_METRICS_PORT":         &cfg.Metrics.Port,
		"SB_STUB_PORT":            &cfg.Stub.Port,
	}
	for name, dst := range ints {
		if v := os.Getenv(name); v != "" {
			n, err := strconv.Atoi(v)
			if err != nil {
				return fmt.Errorf("config: %s: %w", name, err)
			}
			*dst = n
		}
	}

	durations := map[string]*time.Duration{
		"SB_INDEX_TIMEOUT":         &cfg.Index.Timeout,
		"SB_FEEDER_FLUSH_INTERVAL": &cfg.Feeder.FlushInterval,
		"SB_RETRY_INITIAL_DELAY":   &cfg.Retry.InitialDelay,
		"SB_BREAKER_RESET_TIMEOUT": &cfg.Breaker.ResetTimeout,
		"SB_STUB_REQUEST_TIMEOUT":  &cfg.Stub.RequestTimeout,
	}
	for name, dst := range durations {
		if v := os.Getenv(name); v != "" {
			d, err := time.ParseDuration(v)
			if err != nil {
				return fmt.Errorf("config: %s: %w", name, err)
			}
			*dst = d
		}
	}

	if v := os.Getenv("SB_KAFKA_BROKERS"); v != "" {
		cfg.Kafka.Brokers = strings.Split(v, ",")
	}
	if v := os.Getenv("SB_BREAKER_ENABLED"); v != "" {
		enabled, err := strconv.ParseBool(v)
		if err != nil {
			return fmt.Errorf("config: SB_BREAKER_ENABLED: %w", err)
		}
		cfg.Breaker.Enabled = enabled
	}
	return nil
}

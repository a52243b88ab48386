package config

import (
	"fmt"
	"os"
	"regexp"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

type Config struct {
	Optionflow OptionflowConfig `yaml:"optionflow"`
	Source     SourceConfig     `yaml:"source"`
	Fetcher    FetcherConfig    `yaml:"fetcher"`
	Output     OutputConfig     `yaml:"output"`
	Storage    StorageConfig    `yaml:"storage"`
	Logging    LoggingConfig    `yaml:"logging"`
	Metrics    MetricsConfig    `yaml:"metrics"`
}

type OptionflowConfig struct {
	Name    string `yaml:"name"`
	Version string `yaml:"version"`
}

type SourceConfig struct {
	Deribit DeribitSourceConfig `yaml:"deribit"`
}

type DeribitSourceConfig struct {
	BaseURL        string               `yaml:"base_url"`
	WebsocketURL   string               `yaml:"websocket_url"`
	Asset          string               `yaml:"asset"`
	ConnectionPool ConnectionPoolConfig `yaml:"connection_pool"`
}

type ConnectionPoolConfig struct {
	MaxIdleConns    int      `yaml:"max_idle_conns"`
	MaxConnsPerHost int      `yaml:"max_conns_per_host"`
	IdleConnTimeout Duration `yaml:"idle_conn_timeout"`
}

type FetcherConfig struct {
	Transport  string          `yaml:"transport"`
	MaxWorkers int             `yaml:"max_workers"`
	Timeout    Duration        `yaml:"timeout"`
	Retry      RetryConfig     `yaml:"retry"`
	RateLimit  RateLimitConfig `yaml:"rate_limit"`
}

type RetryConfig struct {
	MaxAttempts       int      `yaml:"max_attempts"`
	BaseDelay         Duration `yaml:"base_delay"`
	MaxDelay          Duration `yaml:"max_delay"`
	BackoffMultiplier int      `yaml:"backoff_multiplier"`
}

type RateLimitConfig struct {
	RequestsPerSecond int `yaml:"requests_per_second"`
	BurstSize         int `yaml:"burst_size"`
}

type OutputConfig struct {
	TopLevels int           `yaml:"top_levels"`
	Directory string        `yaml:"directory"`
	Parquet   ParquetConfig `yaml:"parquet"`
}

type ParquetConfig struct {
	Enabled     bool   `yaml:"enabled"`
	Compression string `yaml:"compression"`
}

type StorageConfig struct {
	S3 S3Config `yaml:"s3"`
}

type S3Config struct {
	Enabled         bool   `yaml:"enabled"`
	Bucket          string `yaml:"bucket"`
	Prefix          string `yaml:"prefix"`
	Region          string `yaml:"region"`
	AccessKeyID     string `yaml:"access_key_id"`
	SecretAccessKey string `yaml:"secret_access_key"`
}

type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
	Output string `yaml:"output"`
	MaxAge int    `yaml:"max_age"`
}

type MetricsConfig struct {
	Cloudwatch CloudwatchConfig `yaml:"cloudwatch"`
}

type CloudwatchConfig struct {
	Enabled   bool   `yaml:"enabled"`
	Namespace string `yaml:"namespace"`
	Region    string `yaml:"region"`
}

// Duration parses yaml duration strings such as "5s" or "250ms".
type Duration time.Duration

func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	var s string
	if err := value.Decode(&s); err != nil {
		return fmt.Errorf("duration must be a string like '5s': %w", err)
	}
	parsed, err := time.ParseDuration(s)
	if err != nil {
		return fmt.Errorf("invalid duration '%s': %w", s, err)
	}
	*d = Duration(parsed)
	return nil
}

func (d Duration) Std() time.Duration {
	return time.Duration(d)
}

// LoadConfig reads and validates the yaml configuration at path,
// applying defaults matching the Deribit public API limits and
// overriding AWS settings from the environment when present.
func LoadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	config := defaultConfig()
	if err := yaml.Unmarshal(data, &config); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	if v := os.Getenv("DERIBIT_ASSET"); v != "" {
		config.Source.Deribit.Asset = strings.TrimSpace(v)
	}

	if config.Storage.S3.Enabled {
		if v := os.Getenv("AWS_ACCESS_KEY_ID"); v != "" {
			config.Storage.S3.AccessKeyID = strings.TrimSpace(v)
		}
		if v := os.Getenv("AWS_SECRET_ACCESS_KEY"); v != "" {
			config.Storage.S3.SecretAccessKey = strings.TrimSpace(v)
		}
		if v := os.Getenv("AWS_REGION"); v != "" {
			config.Storage.S3.Region = strings.TrimSpace(v)
		}
		if v := os.Getenv("S3_BUCKET"); v != "" {
			config.Storage.S3.Bucket = strings.TrimSpace(v)
		}
	}
	config.Storage.S3.Bucket = strings.TrimSpace(config.Storage.S3.Bucket)
	config.Source.Deribit.Asset = strings.ToUpper(strings.TrimSpace(config.Source.Deribit.Asset))

	if err := validateConfig(&config); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	return &config, nil
}

// Defaults mirror the fetch profile the Deribit analyzer has always
// used: 16 workers, 5 attempts, 5s per request.
func defaultConfig() Config {
	return Config{
		Source: SourceConfig{
			Deribit: DeribitSourceConfig{
				BaseURL:      "https://www.deribit.com/api/v2/public/",
				WebsocketURL: "wss://www.deribit.com/ws/api/v2",
				Asset:        "BTC",
				ConnectionPool: ConnectionPoolConfig{
					MaxIdleConns:    32,
					MaxConnsPerHost: 16,
					IdleConnTimeout: Duration(90 * time.Second),
				},
			},
		},
		Fetcher: FetcherConfig{
			Transport:  "rest",
			MaxWorkers: 16,
			Timeout:    Duration(5 * time.Second),
			Retry: RetryConfig{
				MaxAttempts:       5,
				BaseDelay:         Duration(100 * time.Millisecond),
				MaxDelay:          Duration(2 * time.Second),
				BackoffMultiplier: 2,
			},
			RateLimit: RateLimitConfig{
				RequestsPerSecond: 20,
				BurstSize:         40,
			},
		},
		Output: OutputConfig{
			Directory: ".",
			Parquet:   ParquetConfig{Enabled: true, Compression: "snappy"},
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
			Output: "stdout",
		},
	}
}

func validateConfig(cfg *Config) error {
	switch cfg.Source.Deribit.Asset {
	case "BTC", "ETH":
	default:
		return fmt.Errorf("unsupported asset '%s', expected BTC or ETH", cfg.Source.Deribit.Asset)
	}

	if cfg.Source.Deribit.BaseURL == "" {
		return fmt.Errorf("source.deribit.base_url is required")
	}

	switch cfg.Fetcher.Transport {
	case "rest", "websocket":
	default:
		return fmt.Errorf("unsupported fetcher transport '%s', expected rest or websocket", cfg.Fetcher.Transport)
	}
	if cfg.Fetcher.Transport == "websocket" && cfg.Source.Deribit.WebsocketURL == "" {
		return fmt.Errorf("source.deribit.websocket_url is required for the websocket transport")
	}

	if cfg.Fetcher.MaxWorkers < 1 {
		return fmt.Errorf("fetcher.max_workers must be at least 1")
	}
	if cfg.Fetcher.Timeout.Std() <= 0 {
		return fmt.Errorf("fetcher.timeout must be positive")
	}
	if cfg.Fetcher.Retry.MaxAttempts < 1 {
		return fmt.Errorf("fetcher.retry.max_attempts must be at least 1")
	}
	if cfg.Fetcher.RateLimit.RequestsPerSecond < 1 {
		return fmt.Errorf("fetcher.rate_limit.requests_per_second must be at least 1")
	}

	if cfg.Output.TopLevels < 0 {
		return fmt.Errorf("output.top_levels must not be negative")
	}

	if cfg.Storage.S3.Enabled {
		if !isValidS3Bucket(cfg.Storage.S3.Bucket) {
			return fmt.Errorf("invalid s3 bucket name '%s'", cfg.Storage.S3.Bucket)
		}
		if cfg.Storage.S3.Region == "" {
			return fmt.Errorf("storage.s3.region is required when s3 is enabled")
		}
	}

	return nil
}

var s3BucketPattern = regexp.MustCompile(`^[a-z0-9][a-z0-9.-]{1,61}[a-z0-9]$`)

func isValidS3Bucket(name string) bool {
	if !s3BucketPattern.MatchString(name) {
		return false
	}
	return !strings.Contains(name, "..")
}

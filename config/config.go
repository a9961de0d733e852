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
	Arbiflow  ArbiflowConfig  `yaml:"arbiflow"`
	Channels  ChannelsConfig  `yaml:"channels"`
	Reader    ReaderConfig    `yaml:"reader"`
	Source    SourceConfig    `yaml:"source"`
	Processor ProcessorConfig `yaml:"processor"`
	Detection DetectionConfig `yaml:"detection"`
	Writer    WriterConfig    `yaml:"writer"`
	Storage   StorageConfig   `yaml:"storage"`
	Logging   LoggingConfig   `yaml:"logging"`
}

type ArbiflowConfig struct {
	Name    string `yaml:"name"`
	Version string `yaml:"version"`
}

type ChannelsConfig struct {
	RawBuffer   int `yaml:"raw_buffer"`
	CleanBuffer int `yaml:"clean_buffer"`
}

type ReaderConfig struct {
	MaxWorkers int           `yaml:"max_workers"`
	Timeout    time.Duration `yaml:"timeout"`
	Tardis     TardisConfig  `yaml:"tardis"`
	Backfill   BackfillConfig `yaml:"backfill"`
}

type TardisConfig struct {
	BaseURL           string        `yaml:"base_url"`
	APIKey            string        `yaml:"api_key"`
	RequestsPerSecond int           `yaml:"requests_per_second"`
	BurstSize         int           `yaml:"burst_size"`
	Machine           MachineConfig `yaml:"machine"`
}

// MachineConfig enables replay through a locally running tardis-machine
// instance over WebSocket instead of the HTTP data feed API.
type MachineConfig struct {
	Enabled bool   `yaml:"enabled"`
	WSURL   string `yaml:"ws_url"`
}

// BackfillConfig controls the Binance REST aggregated-trades backfill used to
// fill gaps in replay coverage.
type BackfillConfig struct {
	Enabled   bool `yaml:"enabled"`
	PageLimit int  `yaml:"page_limit"`
}

type SourceConfig struct {
	Binance  ExchangeSourceConfig `yaml:"binance"`
	Coinbase ExchangeSourceConfig `yaml:"coinbase"`
	Kraken   ExchangeSourceConfig `yaml:"kraken"`
}

type ExchangeSourceConfig struct {
	Enabled bool     `yaml:"enabled"`
	Symbols []string `yaml:"symbols"`
}

type ProcessorConfig struct {
	MaxWorkers    int           `yaml:"max_workers"`
	BatchSize     int           `yaml:"batch_size"`
	BatchTimeout  time.Duration `yaml:"batch_timeout"`
	GridInterval  time.Duration `yaml:"grid_interval"`
	OutlierSigmas float64       `yaml:"outlier_sigmas"`
	MaxPrice      float64       `yaml:"max_price"`
}

type DetectionConfig struct {
	LatencyRiskFactor  float64     `yaml:"latency_risk_factor"`
	BaseLatencyPenalty float64     `yaml:"base_latency_penalty"`
	MinProfitThreshold float64     `yaml:"min_profit_threshold"`
	TopK               int         `yaml:"top_k"`
	MaxParallel        int         `yaml:"max_parallel"`
	Dedup              DedupConfig `yaml:"dedup"`
	Fees               FeesConfig  `yaml:"fees"`
	Triangular         bool        `yaml:"triangular"`
}

type DedupConfig struct {
	Policy string        `yaml:"policy"` // "all" or "episodes"
	MaxGap time.Duration `yaml:"max_gap"`
}

type FeesConfig struct {
	Binance  FeeConfig `yaml:"binance"`
	Coinbase FeeConfig `yaml:"coinbase"`
	Kraken   FeeConfig `yaml:"kraken"`
}

type FeeConfig struct {
	Maker float64 `yaml:"maker"`
	Taker float64 `yaml:"taker"`
}

type WriterConfig struct {
	ResultsDir string        `yaml:"results_dir"`
	CSV        CSVConfig     `yaml:"csv"`
	Parquet    ParquetConfig `yaml:"parquet"`
}

type CSVConfig struct {
	Enabled bool `yaml:"enabled"`
}

type ParquetConfig struct {
	Enabled     bool   `yaml:"enabled"`
	Compression string `yaml:"compression"`
}

type StorageConfig struct {
	S3    S3Config    `yaml:"s3"`
	Kafka KafkaConfig `yaml:"kafka"`
}

type S3Config struct {
	Enabled         bool   `yaml:"enabled"`
	Bucket          string `yaml:"bucket"`
	Region          string `yaml:"region"`
	Endpoint        string `yaml:"endpoint"`
	PathStyle       bool   `yaml:"path_style"`
	AccessKeyID     string `yaml:"access_key_id"`
	SecretAccessKey string `yaml:"secret_access_key"`
}

type KafkaConfig struct {
	Enabled bool     `yaml:"enabled"`
	Brokers []string `yaml:"brokers"`
	Topic   string   `yaml:"topic"`
}

type LoggingConfig struct {
	Level         string `yaml:"level"`
	Format        string `yaml:"format"`
	Output        string `yaml:"output"`
	MaxAge        int    `yaml:"max_age"`
	DashboardName string `yaml:"dashboard_name"`
}

// LoadConfig reads, env-overrides and validates the configuration file.
func LoadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	config := Config{
		Reader: ReaderConfig{
			Tardis: TardisConfig{
				BaseURL:           "https://api.tardis.dev",
				RequestsPerSecond: 10,
				BurstSize:         5,
			},
		},
		Processor: ProcessorConfig{
			GridInterval:  time.Second,
			OutlierSigmas: 3,
			MaxPrice:      1000000,
		},
		Detection: DetectionConfig{
			LatencyRiskFactor:  0.3,
			BaseLatencyPenalty: 0.01,
			MinProfitThreshold: 0.01,
			Dedup:              DedupConfig{Policy: "episodes", MaxGap: time.Second},
		},
	}
	if err := yaml.Unmarshal(data, &config); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	if v := os.Getenv("TARDIS_API_KEY"); v != "" {
		config.Reader.Tardis.APIKey = strings.TrimSpace(v)
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

	if err := validateConfig(&config); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	return &config, nil
}

func validateConfig(cfg *Config) error {
	if cfg.Arbiflow.Name == "" {
		return fmt.Errorf("arbiflow.name is required")
	}
	if cfg.Arbiflow.Version == "" {
		return fmt.Errorf("arbiflow.version is required")
	}

	if cfg.Channels.RawBuffer <= 0 {
		return fmt.Errorf("channels.raw_buffer must be greater than 0")
	}
	if cfg.Channels.CleanBuffer <= 0 {
		return fmt.Errorf("channels.clean_buffer must be greater than 0")
	}

	if cfg.Reader.MaxWorkers <= 0 {
		return fmt.Errorf("reader.max_workers must be greater than 0")
	}

	if cfg.Processor.MaxWorkers <= 0 {
		return fmt.Errorf("processor.max_workers must be greater than 0")
	}
	if cfg.Processor.BatchSize <= 0 {
		return fmt.Errorf("processor.batch_size must be greater than 0")
	}
	if cfg.Processor.BatchTimeout <= 0 {
		return fmt.Errorf("processor.batch_timeout must be greater than 0")
	}
	if cfg.Processor.GridInterval <= 0 {
		return fmt.Errorf("processor.grid_interval must be greater than 0")
	}

	if cfg.Detection.LatencyRiskFactor < 0 || cfg.Detection.LatencyRiskFactor > 1 {
		return fmt.Errorf("detection.latency_risk_factor must be within [0, 1]")
	}
	if cfg.Detection.MinProfitThreshold < 0 {
		return fmt.Errorf("detection.min_profit_threshold must not be negative")
	}
	if cfg.Detection.BaseLatencyPenalty < 0 {
		return fmt.Errorf("detection.base_latency_penalty must not be negative")
	}
	switch cfg.Detection.Dedup.Policy {
	case "all", "episodes":
	default:
		return fmt.Errorf("detection.dedup.policy must be 'all' or 'episodes'")
	}
	for name, fee := range map[string]FeeConfig{
		"binance":  cfg.Detection.Fees.Binance,
		"coinbase": cfg.Detection.Fees.Coinbase,
		"kraken":   cfg.Detection.Fees.Kraken,
	} {
		if fee.Maker < 0 || fee.Maker >= 1 || fee.Taker < 0 || fee.Taker >= 1 {
			return fmt.Errorf("detection.fees.%s rates must be fractions within [0, 1)", name)
		}
	}

	if cfg.Storage.S3.Enabled {
		if cfg.Storage.S3.Bucket == "" {
			return fmt.Errorf("storage.s3.bucket is required when S3 is enabled")
		}
		if cfg.Storage.S3.Region == "" {
			return fmt.Errorf("storage.s3.region is required when S3 is enabled")
		}
		if cfg.Storage.S3.AccessKeyID == "" || cfg.Storage.S3.SecretAccessKey == "" {
			return fmt.Errorf("storage.s3.access_key_id and storage.s3.secret_access_key are required when S3 is enabled")
		}
		if !isValidS3Bucket(cfg.Storage.S3.Bucket) {
			return fmt.Errorf("storage.s3.bucket '%s' is invalid", cfg.Storage.S3.Bucket)
		}
	}

	if cfg.Storage.Kafka.Enabled {
		if len(cfg.Storage.Kafka.Brokers) == 0 {
			return fmt.Errorf("storage.kafka.brokers is required when Kafka is enabled")
		}
		if cfg.Storage.Kafka.Topic == "" {
			return fmt.Errorf("storage.kafka.topic is required when Kafka is enabled")
		}
	}

	return nil
}

var s3BucketRegexp = regexp.MustCompile(`^[a-z0-9][a-z0-9.-]{1,61}[a-z0-9]$`)

func isValidS3Bucket(name string) bool {
	if len(name) < 3 || len(name) > 63 {
		return false
	}
	if strings.Contains(name, "..") || strings.HasPrefix(name, ".") || strings.HasSuffix(name, ".") {
		return false
	}
	return s3BucketRegexp.MatchString(name)
}

package config

import (
	"os"
	"testing"
	"time"
)

// writeTempConfig creates a minimal configuration file required for LoadConfig
// and returns its path.
func writeTempConfig(t *testing.T) string {
	t.Helper()
	content := `arbiflow:
  name: "TestApp"
  version: "1.0"
channels:
  raw_buffer: 1
  clean_buffer: 1
reader:
  max_workers: 1
processor:
  max_workers: 1
  batch_size: 1
  batch_timeout: 1s
detection:
  latency_risk_factor: 0.3
  fees:
    binance:
      maker: 0.001
      taker: 0.001
    coinbase:
      maker: 0.005
      taker: 0.005
    kraken:
      maker: 0.0016
      taker: 0.0026
storage:
  s3:
    enabled: false
`
	f, err := os.CreateTemp("", "cfg-*.yml")
	if err != nil {
		t.Fatalf("create temp file: %v", err)
	}
	if _, err := f.WriteString(content); err != nil {
		t.Fatalf("write temp file: %v", err)
	}
	if err := f.Close(); err != nil {
		t.Fatalf("close temp file: %v", err)
	}
	return f.Name()
}

func TestLoadConfig(t *testing.T) {
	path := writeTempConfig(t)
	defer os.Remove(path)

	cfg, err := LoadConfig(path)
	if err != nil {
		t.Fatalf("LoadConfig failed: %v", err)
	}
	if cfg.Arbiflow.Name != "TestApp" {
		t.Errorf("unexpected name: %s", cfg.Arbiflow.Name)
	}
	if cfg.Detection.Fees.Kraken.Taker != 0.0026 {
		t.Errorf("unexpected kraken taker fee: %f", cfg.Detection.Fees.Kraken.Taker)
	}
	// Defaults applied for sections the file omits.
	if cfg.Detection.MinProfitThreshold != 0.01 {
		t.Errorf("unexpected threshold default: %f", cfg.Detection.MinProfitThreshold)
	}
	if cfg.Detection.BaseLatencyPenalty != 0.01 {
		t.Errorf("unexpected base penalty default: %f", cfg.Detection.BaseLatencyPenalty)
	}
	if cfg.Detection.Dedup.Policy != "episodes" || cfg.Detection.Dedup.MaxGap != time.Second {
		t.Errorf("unexpected dedup defaults: %+v", cfg.Detection.Dedup)
	}
	if cfg.Processor.GridInterval != time.Second {
		t.Errorf("unexpected grid interval default: %v", cfg.Processor.GridInterval)
	}
	if cfg.Reader.Tardis.BaseURL != "https://api.tardis.dev" {
		t.Errorf("unexpected tardis base url: %s", cfg.Reader.Tardis.BaseURL)
	}
}

func TestValidateConfigRejectsBadParameters(t *testing.T) {
	base := func() *Config {
		cfg := &Config{}
		cfg.Arbiflow = ArbiflowConfig{Name: "t", Version: "1"}
		cfg.Channels = ChannelsConfig{RawBuffer: 1, CleanBuffer: 1}
		cfg.Reader.MaxWorkers = 1
		cfg.Processor = ProcessorConfig{MaxWorkers: 1, BatchSize: 1, BatchTimeout: time.Second, GridInterval: time.Second}
		cfg.Detection.Dedup = DedupConfig{Policy: "all"}
		return cfg
	}

	cfg := base()
	cfg.Detection.LatencyRiskFactor = 1.5
	if err := validateConfig(cfg); err == nil {
		t.Error("expected error for latency risk factor out of range")
	}

	cfg = base()
	cfg.Detection.MinProfitThreshold = -0.01
	if err := validateConfig(cfg); err == nil {
		t.Error("expected error for negative threshold")
	}

	cfg = base()
	cfg.Detection.Fees.Coinbase.Taker = 1.0
	if err := validateConfig(cfg); err == nil {
		t.Error("expected error for fee rate of 1.0")
	}

	cfg = base()
	cfg.Detection.Dedup.Policy = "collapse"
	if err := validateConfig(cfg); err == nil {
		t.Error("expected error for unknown dedup policy")
	}
}

func TestIsValidS3Bucket(t *testing.T) {
	cases := []struct {
		name  string
		valid bool
	}{
		{"valid-bucket", true},
		{"Invalid", false},
		{"ab", false},
		{"my..bucket", false},
	}
	for _, c := range cases {
		if got := isValidS3Bucket(c.name); got != c.valid {
			t.Errorf("isValidS3Bucket(%q) = %v, want %v", c.name, got, c.valid)
		}
	}
}

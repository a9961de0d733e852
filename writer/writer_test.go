package writer

import (
	"context"
	"encoding/csv"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	appconfig "arbiflow/config"
	"arbiflow/internal/exchange"
	"arbiflow/models"

	kafka "github.com/segmentio/kafka-go"
)

func sampleReport(t *testing.T, resultsDir string) (*appconfig.Config, *models.Report) {
	t.Helper()
	cfg := &appconfig.Config{}
	cfg.Arbiflow.Version = "1.0"
	cfg.Writer.ResultsDir = resultsDir

	report := &models.Report{
		RunID:       "run-1",
		GeneratedAt: time.Date(2023, 6, 1, 13, 0, 0, 0, time.UTC),
		Params: models.RunParams{
			RunDate:            "2023-06-01",
			LatencyRiskFactor:  0.3,
			LatencyPenalty:     0.003,
			MinProfitThreshold: 0.01,
			DedupPolicy:        "episodes",
		},
		Opportunities: []models.Opportunity{{
			Instrument:     "btcusdt",
			Timestamp:      time.Date(2023, 6, 1, 12, 0, 0, 0, time.UTC),
			BuyExchange:    exchange.Binance,
			SellExchange:   exchange.Kraken,
			BuyPrice:       114000,
			SellPrice:      116500,
			GrossSpreadPct: 0.0219298,
			NetProfitPct:   0.0153298,
		}},
		Performance: map[exchange.Exchange]*models.ExchangePerformance{
			exchange.Binance: {Exchange: exchange.Binance, TotalTrades: 301970, AvgPrice: 114250, Instruments: []string{"btcusdt", "ethusdt", "solusdt"}},
		},
	}
	return cfg, report
}

func TestWriteCSV(t *testing.T) {
	dir := t.TempDir()
	cfg, report := sampleReport(t, dir)

	path, err := NewResultsWriter(cfg).WriteCSV(report)
	if err != nil {
		t.Fatalf("WriteCSV failed: %v", err)
	}
	if filepath.Dir(path) != filepath.Join(dir, "2023-06-01") {
		t.Errorf("unexpected results path: %s", path)
	}

	f, err := os.Open(path)
	if err != nil {
		t.Fatalf("open csv: %v", err)
	}
	defer f.Close()
	rows, err := csv.NewReader(f).ReadAll()
	if err != nil {
		t.Fatalf("read csv: %v", err)
	}
	if len(rows) != 2 {
		t.Fatalf("expected header plus 1 row, got %d rows", len(rows))
	}
	if rows[0][0] != "buy_exchange" || rows[1][0] != "binance" || rows[1][1] != "kraken" {
		t.Errorf("unexpected rows: %v", rows)
	}
}

func TestRenderText(t *testing.T) {
	_, report := sampleReport(t, "")
	out := RenderText(report)

	for _, want := range []string{
		"ARBITRAGE DETECTION REPORT",
		"Opportunities:        1",
		"buy binance / sell kraken",
		"BINANCE: 301970 trades",
	} {
		if !strings.Contains(out, want) {
			t.Errorf("rendered report missing %q:\n%s", want, out)
		}
	}
}

func TestParquetWriteCreatesFileAndMetadata(t *testing.T) {
	dir := t.TempDir()
	cfg, report := sampleReport(t, dir)

	path, err := NewParquetWriter(cfg).Write(report)
	if err != nil {
		t.Fatalf("Write failed: %v", err)
	}

	info, err := os.Stat(path)
	if err != nil {
		t.Fatalf("parquet file missing: %v", err)
	}
	if info.Size() == 0 {
		t.Error("parquet file is empty")
	}

	if _, err := os.Stat(filepath.Join(dir, "metadata", "metadata.json")); err != nil {
		t.Errorf("table metadata missing: %v", err)
	}
}

type fakeProducer struct {
	msgs   []kafka.Message
	closed bool
}

func (f *fakeProducer) WriteMessages(ctx context.Context, msgs ...kafka.Message) error {
	f.msgs = append(f.msgs, msgs...)
	return nil
}

func (f *fakeProducer) Close() error {
	f.closed = true
	return nil
}

func TestKafkaPublishReport(t *testing.T) {
	cfg, report := sampleReport(t, "")
	cfg.Storage.Kafka = appconfig.KafkaConfig{Enabled: true, Brokers: []string{"localhost:9092"}, Topic: "opportunities"}

	kp, err := NewKafkaPublisher(cfg)
	if err != nil {
		t.Fatalf("NewKafkaPublisher failed: %v", err)
	}
	fake := &fakeProducer{}
	kp.producer = fake

	if err := kp.PublishReport(context.Background(), report); err != nil {
		t.Fatalf("PublishReport failed: %v", err)
	}
	if len(fake.msgs) != 1 {
		t.Fatalf("expected 1 message, got %d", len(fake.msgs))
	}
	if string(fake.msgs[0].Key) != "btcusdt" {
		t.Errorf("unexpected key: %s", fake.msgs[0].Key)
	}

	if err := kp.Close(); err != nil || !fake.closed {
		t.Error("publisher did not close the producer")
	}
}

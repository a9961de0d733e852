package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"sync"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"arbiflow/config"
	"arbiflow/detector"
	"arbiflow/internal/channel"
	"arbiflow/logger"
	"arbiflow/models"
	"arbiflow/processor"
	"arbiflow/reader/binance"
	"arbiflow/reader/coinbase"
	"arbiflow/reader/kraken"
	"arbiflow/reader/tardis"
	"arbiflow/writer"
)

func main() {
	log := logger.GetLogger()

	// Load environment variables from .env if present
	if err := godotenv.Load(); err != nil && !os.IsNotExist(err) {
		log.WithError(err).Warn("Error loading .env file")
	}

	configPath := flag.String("config", config.DefaultConfigPath, "Path to configuration file")
	runDate := flag.String("date", "", "Run date (YYYY-MM-DD) of the historical day to analyze")
	latency := flag.Float64("latency", -1, "Latency risk factor override, fraction within [0, 1]")
	mode := flag.String("mode", "regular", "Detection mode: regular, triangular or both")

	flag.Parse()

	cfg, err := config.LoadConfig(config.ResolvePath(*configPath))
	if err != nil {
		log.WithError(err).Error("Failed to load configuration")
		os.Exit(1)
	}

	if err := log.Configure(cfg.Logging.Level, cfg.Logging.Format, cfg.Logging.Output, cfg.Logging.MaxAge); err != nil {
		log.WithError(err).Error("Failed to configure logger")
		os.Exit(1)
	}

	day, err := parseRunDate(*runDate, cfg.Reader.Tardis.APIKey != "")
	if err != nil {
		log.WithError(err).Error("invalid -date value")
		os.Exit(1)
	}

	if *latency >= 0 {
		if *latency > 1 {
			log.Error("-latency must be a fraction within [0, 1]")
			os.Exit(1)
		}
		cfg.Detection.LatencyRiskFactor = *latency
	}

	switch strings.ToLower(*mode) {
	case "regular":
		cfg.Detection.Triangular = false
	case "triangular", "both":
		cfg.Detection.Triangular = true
	default:
		log.Error("-mode must be regular, triangular or both")
		os.Exit(1)
	}

	log.WithFields(logger.Fields{
		"service":  cfg.Arbiflow.Name,
		"version":  cfg.Arbiflow.Version,
		"run_date": day.Format("2006-01-02"),
		"mode":     strings.ToLower(*mode),
	}).Info("starting arbiflow")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	go func() {
		sigChan := make(chan os.Signal, 1)
		signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
		sig := <-sigChan
		log.WithFields(logger.Fields{"signal": sig.String()}).Info("shutdown signal received")
		cancel()
	}()

	if cfg.Logging.DashboardName != "" && cfg.Storage.S3.Enabled {
		logger.InitCloudWatch(cfg.Storage.S3.Region, "Arbiflow", cfg.Logging.DashboardName)
	}
	if strings.ToLower(cfg.Logging.Level) == "report" {
		logger.StartReport(ctx, log, 30*time.Second)
	}

	series, err := replayDay(ctx, cfg, day)
	if err != nil {
		log.WithError(err).Error("replay failed")
		os.Exit(1)
	}

	cleaned := processor.CleanSeries(series, cfg.Processor.OutlierSigmas, cfg.Processor.MaxPrice)
	synced := processor.Synchronize(cleaned, cfg.Processor.GridInterval)

	engine, err := detector.NewEngine(cfg.Detection)
	if err != nil {
		log.WithError(err).Error("failed to build detection engine")
		os.Exit(1)
	}

	report, err := engine.Run(ctx, day.Format("2006-01-02"), synced)
	if err != nil {
		log.WithError(err).Error("detection failed")
		os.Exit(1)
	}

	if err := writeResults(ctx, cfg, report); err != nil {
		log.WithError(err).Error("failed to write results")
		os.Exit(1)
	}

	fmt.Print(writer.RenderText(report))
	log.Info("arbiflow finished")
}

// parseRunDate validates the -date flag. Without an API key, tardis.dev only
// serves the first day of each month, so anonymous runs are restricted to
// those. An empty value defaults to the most recent replayable day.
func parseRunDate(value string, hasAPIKey bool) (time.Time, error) {
	now := time.Now().UTC()
	if value == "" {
		day := now.AddDate(0, 0, -1).Truncate(24 * time.Hour)
		if !hasAPIKey {
			day = time.Date(now.Year(), now.Month(), 1, 0, 0, 0, 0, time.UTC)
			if !day.Before(now.Truncate(24 * time.Hour)) {
				day = day.AddDate(0, -1, 0)
			}
		}
		return day, nil
	}
	day, err := time.Parse("2006-01-02", value)
	if err != nil {
		return time.Time{}, fmt.Errorf("expected YYYY-MM-DD: %w", err)
	}
	if day.After(now) {
		return time.Time{}, fmt.Errorf("run date %s is in the future", value)
	}
	if !hasAPIKey && day.Day() != 1 {
		return time.Time{}, fmt.Errorf("run date %s requires an API key; anonymous replay covers only the first day of each month", value)
	}
	return day, nil
}

// replayDay runs the ingest pipeline for one historical day and returns the
// accumulated trade series once every source has drained.
func replayDay(ctx context.Context, cfg *config.Config, day time.Time) (models.Series, error) {
	log := logger.GetLogger().WithComponent("main")
	from := day
	to := day.AddDate(0, 0, 1)

	channels := channel.NewChannels(cfg.Channels.RawBuffer, cfg.Channels.CleanBuffer)
	channels.StartMetricsReporting(ctx, 30*time.Second)

	var replayer tardis.Replayer
	if cfg.Reader.Tardis.Machine.Enabled {
		replayer = tardis.NewMachineClient(cfg.Reader.Tardis.Machine.WSURL)
	} else {
		replayer = tardis.NewClient(
			cfg.Reader.Tardis.BaseURL,
			cfg.Reader.Tardis.APIKey,
			float64(cfg.Reader.Tardis.RequestsPerSecond),
			cfg.Reader.Tardis.BurstSize,
		)
	}

	binanceReader := binance.Binance_Trades_NewReader(cfg, replayer, channels, from, to)
	coinbaseReader := coinbase.Coinbase_Trades_NewReader(cfg, replayer, channels, from, to)
	krakenReader := kraken.Kraken_Trades_NewReader(cfg, replayer, channels, from, to)

	normalizer := processor.NewNormalizer(cfg, channels)
	collector := processor.NewCollector(channels)

	if err := collector.Start(ctx); err != nil {
		return nil, err
	}
	if err := normalizer.Start(ctx); err != nil {
		return nil, err
	}

	var wg sync.WaitGroup
	for name, start := range map[string]func(context.Context) error{
		"binance":  binanceReader.Binance_Trades_Start,
		"coinbase": coinbaseReader.Coinbase_Trades_Start,
		"kraken":   krakenReader.Kraken_Trades_Start,
	} {
		wg.Add(1)
		go func(name string, start func(context.Context) error) {
			defer wg.Done()
			if err := start(ctx); err != nil {
				log.WithError(err).WithFields(logger.Fields{"exchange": name}).Warn("reader failed to start")
			}
		}(name, start)
	}

	if cfg.Reader.Backfill.Enabled {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := binance.NewBackfiller(cfg, channels).Backfill(ctx, from, to); err != nil {
				log.WithError(err).Warn("binance backfill failed")
			}
		}()
	}

	// Replay workers return once their range is exhausted; stop the pipeline
	// stages in source order so every in-flight trade reaches the series.
	wg.Wait()
	binanceReader.Binance_Trades_Stop()
	coinbaseReader.Coinbase_Trades_Stop()
	krakenReader.Kraken_Trades_Stop()
	channels.CloseRaw()
	normalizer.Stop()
	channels.CloseClean()
	collector.Stop()

	if err := ctx.Err(); err != nil {
		return nil, err
	}

	series := collector.Series()
	log.WithFields(logger.Fields{
		"instruments": len(series.Instruments()),
		"trades":      series.TotalTrades(),
	}).Info("replay finished")
	return series, nil
}

// writeResults exports the report through every enabled sink.
func writeResults(ctx context.Context, cfg *config.Config, report *models.Report) error {
	log := logger.GetLogger().WithComponent("main")

	if cfg.Writer.CSV.Enabled {
		rw := writer.NewResultsWriter(cfg)
		if _, err := rw.WriteCSV(report); err != nil {
			return fmt.Errorf("csv export: %w", err)
		}
		if _, err := rw.WriteTriangularCSV(report); err != nil {
			return fmt.Errorf("triangular csv export: %w", err)
		}
	}

	if cfg.Writer.Parquet.Enabled || cfg.Storage.S3.Enabled {
		pw := writer.NewParquetWriter(cfg)
		if cfg.Writer.Parquet.Enabled {
			if _, err := pw.Write(report); err != nil {
				return fmt.Errorf("parquet export: %w", err)
			}
		}
		if cfg.Storage.S3.Enabled {
			sw, err := writer.NewS3Writer(ctx, cfg)
			if err != nil {
				return fmt.Errorf("s3 writer: %w", err)
			}
			data, err := pw.Encode(report)
			if err != nil {
				return fmt.Errorf("parquet encode: %w", err)
			}
			if _, err := sw.UploadParquet(ctx, report, data); err != nil {
				return fmt.Errorf("s3 upload: %w", err)
			}
		}
	}

	if cfg.Storage.Kafka.Enabled {
		kp, err := writer.NewKafkaPublisher(cfg)
		if err != nil {
			return fmt.Errorf("kafka publisher: %w", err)
		}
		defer kp.Close()
		if err := kp.PublishReport(ctx, report); err != nil {
			return fmt.Errorf("kafka publish: %w", err)
		}
	}

	log.Info("results written")
	return nil
}

package writer

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"

	"github.com/xitongsys/parquet-go/parquet"
	"github.com/xitongsys/parquet-go/source"
	pqwriter "github.com/xitongsys/parquet-go/writer"

	appconfig "arbiflow/config"
	"arbiflow/internal/metadata"
	"arbiflow/logger"
	"arbiflow/models"
)

// OpportunityRecord is the parquet row layout for one detected opportunity.
type OpportunityRecord struct {
	Instrument     string  `parquet:"name=instrument, type=BYTE_ARRAY, convertedtype=UTF8"`
	Timestamp      int64   `parquet:"name=timestamp, type=INT64"`
	BuyExchange    string  `parquet:"name=buy_exchange, type=BYTE_ARRAY, convertedtype=UTF8"`
	SellExchange   string  `parquet:"name=sell_exchange, type=BYTE_ARRAY, convertedtype=UTF8"`
	BuyPrice       float64 `parquet:"name=buy_price, type=DOUBLE"`
	SellPrice      float64 `parquet:"name=sell_price, type=DOUBLE"`
	GrossSpreadPct float64 `parquet:"name=gross_spread_pct, type=DOUBLE"`
	NetProfitPct   float64 `parquet:"name=net_profit_pct, type=DOUBLE"`
}

// memoryFileWriter implements the ParquetFile interface over a byte buffer so
// files can be built in memory before hitting disk or S3.
type memoryFileWriter struct {
	buffer *bytes.Buffer
}

func newMemoryFileWriter() *memoryFileWriter {
	return &memoryFileWriter{buffer: &bytes.Buffer{}}
}

func (mfw *memoryFileWriter) Create(name string) (source.ParquetFile, error) { return mfw, nil }
func (mfw *memoryFileWriter) Open(name string) (source.ParquetFile, error)   { return mfw, nil }

func (mfw *memoryFileWriter) Seek(offset int64, whence int) (int64, error) {
	// Write-only usage never seeks backwards.
	return int64(mfw.buffer.Len()), nil
}

func (mfw *memoryFileWriter) Read(b []byte) (int, error)  { return mfw.buffer.Read(b) }
func (mfw *memoryFileWriter) Write(b []byte) (int, error) { return mfw.buffer.Write(b) }
func (mfw *memoryFileWriter) Close() error                { return nil }
func (mfw *memoryFileWriter) Bytes() []byte               { return mfw.buffer.Bytes() }

// ParquetWriter serializes reports to parquet and keeps Iceberg style table
// metadata alongside the files.
type ParquetWriter struct {
	config  *appconfig.Config
	baseDir string
	metaGen *metadata.Generator
	log     *logger.Log
}

func NewParquetWriter(cfg *appconfig.Config) *ParquetWriter {
	dir := cfg.Writer.ResultsDir
	if dir == "" {
		dir = "results"
	}
	return &ParquetWriter{
		config:  cfg,
		baseDir: dir,
		metaGen: metadata.NewGenerator(dir, "opportunities"),
		log:     logger.GetLogger(),
	}
}

// Encode builds the parquet file in memory and returns its bytes.
func (w *ParquetWriter) Encode(report *models.Report) ([]byte, error) {
	fw := newMemoryFileWriter()

	pw, err := pqwriter.NewParquetWriter(fw, new(OpportunityRecord), 4)
	if err != nil {
		return nil, fmt.Errorf("create parquet writer: %w", err)
	}

	switch w.config.Writer.Parquet.Compression {
	case "snappy":
		pw.CompressionType = parquet.CompressionCodec_SNAPPY
	case "gzip":
		pw.CompressionType = parquet.CompressionCodec_GZIP
	default:
		pw.CompressionType = parquet.CompressionCodec_UNCOMPRESSED
	}

	for _, opp := range report.Opportunities {
		record := OpportunityRecord{
			Instrument:     opp.Instrument,
			Timestamp:      opp.Timestamp.UnixMilli(),
			BuyExchange:    opp.BuyExchange.String(),
			SellExchange:   opp.SellExchange.String(),
			BuyPrice:       opp.BuyPrice,
			SellPrice:      opp.SellPrice,
			GrossSpreadPct: opp.GrossSpreadPct,
			NetProfitPct:   opp.NetProfitPct,
		}
		if err := pw.Write(record); err != nil {
			pw.WriteStop()
			return nil, fmt.Errorf("write parquet record: %w", err)
		}
	}

	if err := pw.WriteStop(); err != nil {
		return nil, fmt.Errorf("finalize parquet file: %w", err)
	}
	return fw.Bytes(), nil
}

// Write encodes the report and stores it under the results directory,
// recording the file in the table metadata.
func (w *ParquetWriter) Write(report *models.Report) (string, error) {
	data, err := w.Encode(report)
	if err != nil {
		return "", err
	}

	dir := filepath.Join(w.baseDir, report.Params.RunDate)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("create results dir: %w", err)
	}

	path := filepath.Join(dir, fmt.Sprintf("opportunities_%s.parquet", report.RunID))
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return "", fmt.Errorf("write parquet file: %w", err)
	}
	logger.IncrementResultWrite(int64(len(data)))

	df := metadata.DataFile{
		Path:        path,
		FileSize:    int64(len(data)),
		RecordCount: int64(report.Count()),
		Partition: map[string]any{
			"date": report.Params.RunDate,
		},
		Timestamp: report.GeneratedAt,
	}
	if err := w.metaGen.AddFile(df); err != nil {
		w.log.WithComponent("parquet_writer").WithError(err).Warn("failed to update table metadata")
	} else if err := w.metaGen.WriteCatalogEntry(filepath.Join(w.baseDir, "catalog")); err != nil {
		w.log.WithComponent("parquet_writer").WithError(err).Warn("failed to update catalog entry")
	}

	w.log.WithComponent("parquet_writer").WithFields(logger.Fields{
		"path":        path,
		"file_size":   len(data),
		"rows":        report.Count(),
		"compression": w.config.Writer.Parquet.Compression,
	}).Info("report exported to parquet")
	return path, nil
}

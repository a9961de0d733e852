package writer

import (
	"encoding/csv"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	appconfig "arbiflow/config"
	"arbiflow/internal/exchange"
	"arbiflow/logger"
	"arbiflow/models"
)

// ResultsWriter renders a finished detection report to the local results
// directory: one CSV row per opportunity plus a human readable summary.
type ResultsWriter struct {
	config *appconfig.Config
	log    *logger.Log
}

func NewResultsWriter(cfg *appconfig.Config) *ResultsWriter {
	return &ResultsWriter{config: cfg, log: logger.GetLogger()}
}

func (w *ResultsWriter) runDir(report *models.Report) string {
	dir := w.config.Writer.ResultsDir
	if dir == "" {
		dir = "results"
	}
	return filepath.Join(dir, report.Params.RunDate)
}

// WriteCSV exports the ranked opportunities, one row each, and returns the
// file path.
func (w *ResultsWriter) WriteCSV(report *models.Report) (string, error) {
	dir := w.runDir(report)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("create results dir: %w", err)
	}

	path := filepath.Join(dir, "opportunities.csv")
	f, err := os.Create(path)
	if err != nil {
		return "", fmt.Errorf("create csv file: %w", err)
	}
	defer f.Close()

	cw := csv.NewWriter(f)
	header := []string{"buy_exchange", "sell_exchange", "instrument", "timestamp", "buy_price", "sell_price", "profit_pct"}
	if err := cw.Write(header); err != nil {
		return "", err
	}
	for _, opp := range report.Opportunities {
		row := []string{
			opp.BuyExchange.String(),
			opp.SellExchange.String(),
			opp.Instrument,
			opp.Timestamp.UTC().Format("2006-01-02 15:04:05"),
			strconv.FormatFloat(opp.BuyPrice, 'f', -1, 64),
			strconv.FormatFloat(opp.SellPrice, 'f', -1, 64),
			strconv.FormatFloat(opp.NetProfitPct, 'f', -1, 64),
		}
		if err := cw.Write(row); err != nil {
			return "", err
		}
	}
	cw.Flush()
	if err := cw.Error(); err != nil {
		return "", err
	}

	if info, err := f.Stat(); err == nil {
		logger.IncrementResultWrite(info.Size())
	}
	w.log.LogMetric("results_writer", "opportunities_exported", report.Count(), "counter", logger.Fields{"path": path})
	return path, nil
}

// WriteTriangularCSV exports triangular rotations when the run produced any.
func (w *ResultsWriter) WriteTriangularCSV(report *models.Report) (string, error) {
	if len(report.Triangular) == 0 {
		return "", nil
	}

	dir := w.runDir(report)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("create results dir: %w", err)
	}

	path := filepath.Join(dir, "triangular.csv")
	f, err := os.Create(path)
	if err != nil {
		return "", fmt.Errorf("create csv file: %w", err)
	}
	defer f.Close()

	cw := csv.NewWriter(f)
	if err := cw.Write([]string{"exchange", "path", "timestamp", "gross_pct", "fee_impact_pct", "net_profit_pct"}); err != nil {
		return "", err
	}
	for _, opp := range report.Triangular {
		row := []string{
			opp.Exchange.String(),
			strings.Join(opp.Path[:], "->"),
			opp.Timestamp.UTC().Format("2006-01-02 15:04:05"),
			strconv.FormatFloat(opp.GrossPct, 'f', -1, 64),
			strconv.FormatFloat(opp.FeeImpactPct, 'f', -1, 64),
			strconv.FormatFloat(opp.NetProfitPct, 'f', -1, 64),
		}
		if err := cw.Write(row); err != nil {
			return "", err
		}
	}
	cw.Flush()
	if err := cw.Error(); err != nil {
		return "", err
	}

	if info, err := f.Stat(); err == nil {
		logger.IncrementResultWrite(info.Size())
	}
	return path, nil
}

// RenderText formats the report for console output.
func RenderText(report *models.Report) string {
	var b strings.Builder
	line := strings.Repeat("=", 60)

	fmt.Fprintln(&b, line)
	fmt.Fprintln(&b, "ARBITRAGE DETECTION REPORT")
	fmt.Fprintln(&b, line)
	fmt.Fprintf(&b, "Run:                  %s (%s)\n", report.Params.RunDate, report.RunID)
	fmt.Fprintf(&b, "Opportunities:        %d\n", report.Count())
	fmt.Fprintf(&b, "Latency risk factor:  %.2f (penalty %.4f)\n", report.Params.LatencyRiskFactor, report.Params.LatencyPenalty)
	fmt.Fprintf(&b, "Min profit threshold: %.4f\n", report.Params.MinProfitThreshold)
	fmt.Fprintf(&b, "Dedup policy:         %s\n", report.Params.DedupPolicy)

	if report.Count() > 0 {
		fmt.Fprintln(&b, "\nTop opportunities:")
		top := report.Opportunities
		if len(top) > 5 {
			top = top[:5]
		}
		for i, opp := range top {
			fmt.Fprintf(&b, "  %d. %s buy %s / sell %s at %s: net %.4f%% (gross %.4f%%)\n",
				i+1, opp.Instrument, opp.BuyExchange, opp.SellExchange,
				opp.Timestamp.UTC().Format("15:04:05"),
				opp.NetProfitPct*100, opp.GrossSpreadPct*100)
		}
	} else {
		fmt.Fprintln(&b, "\nNo opportunities cleared the threshold.")
	}

	if len(report.Triangular) > 0 {
		fmt.Fprintln(&b, "\nTriangular rotations:")
		for i, opp := range report.Triangular {
			fmt.Fprintf(&b, "  %d. %s %s: net %.4f%%\n", i+1, opp.Exchange, strings.Join(opp.Path[:], " -> "), opp.NetProfitPct*100)
		}
	}

	fmt.Fprintln(&b, "\nExchange performance:")
	for _, ex := range exchange.All() {
		perf, ok := report.Performance[ex]
		if !ok {
			continue
		}
		fmt.Fprintf(&b, "  %s: %d trades, avg price %.2f, instruments %s\n",
			strings.ToUpper(ex.String()), perf.TotalTrades, perf.AvgPrice, strings.Join(perf.Instruments, ", "))
	}

	return b.String()
}

package detector

import (
	"context"
	"time"

	"golang.org/x/sync/errgroup"

	appconfig "arbiflow/config"
	"arbiflow/internal/exchange"
	"arbiflow/logger"
	"arbiflow/models"
)

// Engine wires the scanner, ranker, triangular scanner and performance
// aggregator into one detection run over a synchronized series.
type Engine struct {
	cfg     appconfig.DetectionConfig
	fees    *FeeSchedule
	scanner *Scanner
	tri     *TriangularScanner
	log     *logger.Log
}

func NewEngine(cfg appconfig.DetectionConfig) (*Engine, error) {
	fees, err := FeeScheduleFromConfig(cfg.Fees)
	if err != nil {
		return nil, err
	}

	params := Params{
		LatencyRiskFactor:  cfg.LatencyRiskFactor,
		BasePenalty:        cfg.BaseLatencyPenalty,
		MinProfitThreshold: cfg.MinProfitThreshold,
		MaxParallel:        cfg.MaxParallel,
	}

	scanner, err := NewScanner(fees, params)
	if err != nil {
		return nil, err
	}

	var tri *TriangularScanner
	if cfg.Triangular {
		if tri, err = NewTriangularScanner(fees, params); err != nil {
			return nil, err
		}
	}

	return &Engine{
		cfg:     cfg,
		fees:    fees,
		scanner: scanner,
		tri:     tri,
		log:     logger.GetLogger(),
	}, nil
}

// Run executes a full detection pass. The scanner and the performance
// aggregator both only read the series, so they run concurrently.
func (e *Engine) Run(ctx context.Context, runDate string, series models.SyncedSeries) (*models.Report, error) {
	start := time.Now()

	var (
		opps []models.Opportunity
		tri  []models.TriangularOpportunity
		perf map[exchange.Exchange]*models.ExchangePerformance
	)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		opps, err = e.scanner.Scan(gctx, series)
		return err
	})
	g.Go(func() error {
		perf = Aggregate(series)
		return nil
	})
	if e.tri != nil {
		g.Go(func() error {
			var err error
			tri, err = e.tri.Scan(series)
			return err
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	ranked, err := Rank(opps, e.cfg.Dedup.Policy, e.cfg.Dedup.MaxGap, e.cfg.TopK)
	if err != nil {
		return nil, err
	}

	params := models.RunParams{
		RunDate:            runDate,
		LatencyRiskFactor:  e.cfg.LatencyRiskFactor,
		LatencyPenalty:     e.cfg.LatencyRiskFactor * e.cfg.BaseLatencyPenalty,
		MinProfitThreshold: e.cfg.MinProfitThreshold,
		TopK:               e.cfg.TopK,
		DedupPolicy:        e.cfg.Dedup.Policy,
	}
	report := Assemble(params, ranked, tri, perf)

	logger.LogPerformanceEntry(e.log.WithFields(logger.Fields{
		"run_id":        report.RunID,
		"opportunities": report.Count(),
		"triangular":    len(tri),
		"exchanges":     len(perf),
	}), "detector", "detection_run", time.Since(start), nil)
	return report, nil
}

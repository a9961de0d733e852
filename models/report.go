package models

import (
	"time"

	"arbiflow/internal/exchange"
)

// Opportunity is a detected cross-exchange price divergence that stayed
// profitable after taker fees on both legs and the latency risk discount.
// Percentages are fractions (0.01 == 1%). Opportunities are immutable once
// emitted by the scanner.
type Opportunity struct {
	Instrument     string            `json:"instrument"`
	Timestamp      time.Time         `json:"timestamp"`
	BuyExchange    exchange.Exchange `json:"buy_exchange"`
	SellExchange   exchange.Exchange `json:"sell_exchange"`
	BuyPrice       float64           `json:"buy_price"`
	SellPrice      float64           `json:"sell_price"`
	GrossSpreadPct float64           `json:"gross_spread_pct"`
	NetProfitPct   float64           `json:"net_profit_pct"`
}

// TriangularOpportunity is a profitable three-leg rotation on a single
// exchange, e.g. btc -> eth -> sol -> btc.
type TriangularOpportunity struct {
	Exchange     exchange.Exchange  `json:"exchange"`
	Path         [3]string          `json:"path"`
	Timestamp    time.Time          `json:"timestamp"`
	GrossPct     float64            `json:"gross_pct"`
	FeeImpactPct float64            `json:"fee_impact_pct"`
	NetProfitPct float64            `json:"net_profit_pct"`
	Rates        map[string]float64 `json:"rates"`
}

// ExchangePerformance summarizes one exchange's contribution to the scanned
// window. AvgPrice is the unweighted mean of the per-instrument mean prices;
// InstrumentAvg keeps the per-instrument means it was derived from.
type ExchangePerformance struct {
	Exchange      exchange.Exchange  `json:"exchange"`
	TotalTrades   int64              `json:"total_trades"`
	AvgPrice      float64            `json:"avg_price"`
	InstrumentAvg map[string]float64 `json:"instrument_avg"`
	Instruments   []string           `json:"instruments"`
}

// RunParams records the detection parameters a report was produced with.
type RunParams struct {
	RunDate            string  `json:"run_date"`
	LatencyRiskFactor  float64 `json:"latency_risk_factor"`
	LatencyPenalty     float64 `json:"latency_penalty"`
	MinProfitThreshold float64 `json:"min_profit_threshold"`
	TopK               int     `json:"top_k,omitempty"`
	DedupPolicy        string  `json:"dedup_policy"`
}

// Report is the immutable result of a detection run: the ranked opportunity
// list, the parameters used and the per-exchange performance table.
// Rendering and export live in the writer package.
type Report struct {
	RunID         string                                        `json:"run_id"`
	GeneratedAt   time.Time                                     `json:"generated_at"`
	Params        RunParams                                     `json:"params"`
	Opportunities []Opportunity                                 `json:"opportunities"`
	Triangular    []TriangularOpportunity                       `json:"triangular,omitempty"`
	Performance   map[exchange.Exchange]*ExchangePerformance `json:"performance"`
}

// Count returns the number of ranked pairwise opportunities.
func (r *Report) Count() int {
	return len(r.Opportunities)
}

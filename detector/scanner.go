package detector

import (
	"context"
	"fmt"
	"sort"
	"time"

	"golang.org/x/sync/errgroup"

	"arbiflow/internal/exchange"
	"arbiflow/logger"
	"arbiflow/models"
)

// Params are the caller-supplied knobs of a detection run. They are validated
// once at construction and constant afterwards.
type Params struct {
	// LatencyRiskFactor scales the base penalty, 0.3 modeling roughly 300ms
	// of execution delay.
	LatencyRiskFactor float64
	// BasePenalty is the profit fraction discounted at full risk (factor 1.0).
	BasePenalty float64
	// MinProfitThreshold is the inclusive net-profit floor for emitting an
	// opportunity, as a fraction.
	MinProfitThreshold float64
	// MaxParallel bounds concurrent per-instrument scans. Zero means one
	// goroutine per instrument.
	MaxParallel int
}

func (p Params) Validate() error {
	if p.LatencyRiskFactor < 0 || p.LatencyRiskFactor > 1 {
		return fmt.Errorf("%w: latency_risk_factor %.4f outside [0, 1]", ErrInvalidParameter, p.LatencyRiskFactor)
	}
	if p.BasePenalty < 0 {
		return fmt.Errorf("%w: base penalty must not be negative", ErrInvalidParameter)
	}
	if p.MinProfitThreshold < 0 {
		return fmt.Errorf("%w: min_profit_threshold must not be negative", ErrInvalidParameter)
	}
	return nil
}

// latencyPenalty is the profit fraction subtracted from every gross spread.
func (p Params) latencyPenalty() float64 {
	return p.LatencyRiskFactor * p.BasePenalty
}

// Scanner enumerates cross-exchange price divergences in a synchronized
// series and keeps those profitable after fees and the latency discount.
type Scanner struct {
	fees   *FeeSchedule
	params Params
	log    *logger.Log
}

func NewScanner(fees *FeeSchedule, params Params) (*Scanner, error) {
	if err := params.Validate(); err != nil {
		return nil, err
	}
	return &Scanner{fees: fees, params: params, log: logger.GetLogger()}, nil
}

// Scan walks every instrument in the series and returns all qualifying
// opportunities ordered by instrument, then timestamp ascending, then
// (buy_exchange, sell_exchange) lexically. Instruments are scanned in
// parallel; the merge preserves the deterministic order.
func (s *Scanner) Scan(ctx context.Context, series models.SyncedSeries) ([]models.Opportunity, error) {
	if err := validateSeries(series); err != nil {
		return nil, err
	}

	instruments := series.Instruments()
	results := make([][]models.Opportunity, len(instruments))

	g, ctx := errgroup.WithContext(ctx)
	if s.params.MaxParallel > 0 {
		g.SetLimit(s.params.MaxParallel)
	}
	for i, instrument := range instruments {
		i, instrument := i, instrument
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				return err
			}
			opps, err := s.scanInstrument(instrument, series[instrument])
			if err != nil {
				return err
			}
			results[i] = opps
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	var merged []models.Opportunity
	for _, opps := range results {
		merged = append(merged, opps...)
	}

	s.log.WithComponent("scanner").WithFields(logger.Fields{
		"instruments":   len(instruments),
		"opportunities": len(merged),
		"threshold":     s.params.MinProfitThreshold,
		"penalty":       s.params.latencyPenalty(),
	}).Info("scan finished")
	return merged, nil
}

func (s *Scanner) scanInstrument(instrument string, byExchange map[exchange.Exchange][]models.Trade) ([]models.Opportunity, error) {
	type tick struct {
		ts     int64
		prices map[exchange.Exchange]float64
	}

	byTimestamp := map[int64]map[exchange.Exchange]float64{}
	for ex, trades := range byExchange {
		for _, t := range trades {
			ns := t.Timestamp.UnixNano()
			prices, ok := byTimestamp[ns]
			if !ok {
				prices = map[exchange.Exchange]float64{}
				byTimestamp[ns] = prices
			}
			prices[ex] = t.Price
		}
	}

	ticks := make([]tick, 0, len(byTimestamp))
	for ns, prices := range byTimestamp {
		if len(prices) < 2 {
			// A single exchange cannot form a pair.
			continue
		}
		ticks = append(ticks, tick{ts: ns, prices: prices})
	}
	sort.Slice(ticks, func(i, j int) bool { return ticks[i].ts < ticks[j].ts })

	penalty := s.params.latencyPenalty()
	var opps []models.Opportunity
	for _, tk := range ticks {
		present := make([]exchange.Exchange, 0, len(tk.prices))
		for ex := range tk.prices {
			present = append(present, ex)
		}
		sort.Slice(present, func(i, j int) bool { return present[i] < present[j] })

		for _, buy := range present {
			for _, sell := range present {
				if buy == sell {
					continue
				}
				buyPrice := tk.prices[buy]
				sellPrice := tk.prices[sell]
				if sellPrice <= buyPrice {
					continue
				}

				buyFee, err := s.fees.Taker(buy)
				if err != nil {
					return nil, err
				}
				sellFee, err := s.fees.Taker(sell)
				if err != nil {
					return nil, err
				}

				gross := (sellPrice - buyPrice) / buyPrice
				net := gross - buyFee - sellFee - penalty
				if net < s.params.MinProfitThreshold {
					continue
				}

				opps = append(opps, models.Opportunity{
					Instrument:     instrument,
					Timestamp:      nanoTime(tk.ts),
					BuyExchange:    buy,
					SellExchange:   sell,
					BuyPrice:       buyPrice,
					SellPrice:      sellPrice,
					GrossSpreadPct: gross,
					NetProfitPct:   net,
				})
			}
		}
	}
	return opps, nil
}

func nanoTime(ns int64) time.Time {
	return time.Unix(0, ns).UTC()
}

// validateSeries rejects series with invalid observations or duplicate
// (instrument, timestamp, exchange) entries before any scanning starts.
func validateSeries(series models.SyncedSeries) error {
	for instrument, byExchange := range series {
		seen := map[int64]map[exchange.Exchange]struct{}{}
		for ex, trades := range byExchange {
			if !ex.Valid() {
				return fmt.Errorf("%w: unrecognized exchange %q for %s", ErrInvalidObservation, ex, instrument)
			}
			for _, t := range trades {
				if t.Price <= 0 {
					return fmt.Errorf("%w: non-positive price %.8f on %s %s", ErrInvalidObservation, t.Price, ex, instrument)
				}
				if t.Timestamp.IsZero() {
					return fmt.Errorf("%w: missing timestamp on %s %s", ErrInvalidObservation, ex, instrument)
				}
				ns := t.Timestamp.UnixNano()
				byEx, ok := seen[ns]
				if !ok {
					byEx = map[exchange.Exchange]struct{}{}
					seen[ns] = byEx
				}
				if _, dup := byEx[ex]; dup {
					return fmt.Errorf("%w: duplicate observation for %s %s at %s", ErrInvalidObservation, ex, instrument, t.Timestamp)
				}
				byEx[ex] = struct{}{}
			}
		}
	}
	return nil
}

package detector

import (
	"fmt"
	"sort"
	"time"

	"arbiflow/internal/exchange"
	"arbiflow/internal/symbols"
	"arbiflow/models"
)

// triangularPaths are the three-leg rotations evaluated per exchange. Each
// path starts and ends on its first asset.
var triangularPaths = [][3]string{
	{"btc", "eth", "sol"},
	{"eth", "sol", "btc"},
	{"sol", "btc", "eth"},
}

// TriangularScanner evaluates three-leg rotations within a single exchange
// using cross rates synthesized from each asset's latest quote price. All
// three legs pay the taker fee and the remaining profit is discounted by the
// latency risk factor.
type TriangularScanner struct {
	fees   *FeeSchedule
	params Params
}

func NewTriangularScanner(fees *FeeSchedule, params Params) (*TriangularScanner, error) {
	if err := params.Validate(); err != nil {
		return nil, err
	}
	return &TriangularScanner{fees: fees, params: params}, nil
}

// Scan returns the profitable rotations sorted by net profit descending.
func (t *TriangularScanner) Scan(series models.SyncedSeries) ([]models.TriangularOpportunity, error) {
	if err := validateSeries(series); err != nil {
		return nil, err
	}

	type quote struct {
		price float64
		ts    time.Time
	}

	// Latest price per (exchange, base asset).
	latest := map[exchange.Exchange]map[string]quote{}
	for instrument, byExchange := range series {
		asset := symbols.BaseAsset(instrument)
		for ex, trades := range byExchange {
			if len(trades) == 0 {
				continue
			}
			last := trades[len(trades)-1]
			if latest[ex] == nil {
				latest[ex] = map[string]quote{}
			}
			if prev, ok := latest[ex][asset]; !ok || last.Timestamp.After(prev.ts) {
				latest[ex][asset] = quote{price: last.Price, ts: last.Timestamp}
			}
		}
	}

	var opps []models.TriangularOpportunity
	for _, ex := range exchange.All() {
		quotes, ok := latest[ex]
		if !ok {
			continue
		}

		taker, err := t.fees.Taker(ex)
		if err != nil {
			return nil, err
		}

		for _, path := range triangularPaths {
			a, ok1 := quotes[path[0]]
			b, ok2 := quotes[path[1]]
			c, ok3 := quotes[path[2]]
			if !ok1 || !ok2 || !ok3 {
				continue
			}

			rateAB := a.price / b.price
			rateBC := b.price / c.price
			rateCA := c.price / a.price

			gross := rateAB*rateBC*rateCA - 1
			feeImpact := 3 * taker
			net := gross - feeImpact
			riskAdjusted := net * (1 - t.params.LatencyRiskFactor)
			if riskAdjusted < t.params.MinProfitThreshold {
				continue
			}

			ts := a.ts
			if b.ts.After(ts) {
				ts = b.ts
			}
			if c.ts.After(ts) {
				ts = c.ts
			}

			opps = append(opps, models.TriangularOpportunity{
				Exchange:     ex,
				Path:         path,
				Timestamp:    ts,
				GrossPct:     gross,
				FeeImpactPct: feeImpact,
				NetProfitPct: riskAdjusted,
				Rates: map[string]float64{
					fmt.Sprintf("%s_to_%s", path[0], path[1]): rateAB,
					fmt.Sprintf("%s_to_%s", path[1], path[2]): rateBC,
					fmt.Sprintf("%s_to_%s", path[2], path[0]): rateCA,
				},
			})
		}
	}

	sort.SliceStable(opps, func(i, j int) bool {
		return opps[i].NetProfitPct > opps[j].NetProfitPct
	})
	return opps, nil
}

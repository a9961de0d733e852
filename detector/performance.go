package detector

import (
	"sort"

	"arbiflow/internal/exchange"
	"arbiflow/models"
)

// Aggregate summarizes each exchange's contribution to the series:
// observation count, per-instrument mean price and the set of instruments
// seen. AvgPrice is the unweighted mean of the per-instrument means, so a
// high-volume instrument does not dominate the figure. The pass is read-only
// and independent of the scanner.
func Aggregate(series models.SyncedSeries) map[exchange.Exchange]*models.ExchangePerformance {
	out := map[exchange.Exchange]*models.ExchangePerformance{}

	for instrument, byExchange := range series {
		for ex, trades := range byExchange {
			if len(trades) == 0 {
				continue
			}
			perf, ok := out[ex]
			if !ok {
				perf = &models.ExchangePerformance{
					Exchange:      ex,
					InstrumentAvg: map[string]float64{},
				}
				out[ex] = perf
			}

			sum := 0.0
			for _, t := range trades {
				sum += t.Price
			}
			perf.TotalTrades += int64(len(trades))
			perf.InstrumentAvg[instrument] = sum / float64(len(trades))
		}
	}

	for _, perf := range out {
		instruments := make([]string, 0, len(perf.InstrumentAvg))
		total := 0.0
		for instrument, avg := range perf.InstrumentAvg {
			instruments = append(instruments, instrument)
			total += avg
		}
		sort.Strings(instruments)
		perf.Instruments = instruments
		perf.AvgPrice = total / float64(len(perf.InstrumentAvg))
	}
	return out
}

package processor

import (
	"math"
	"sort"

	"arbiflow/internal/exchange"
	"arbiflow/logger"
	"arbiflow/models"
)

// SortByTime orders trades by timestamp ascending in place. Ties keep their
// original relative order.
func SortByTime(trades []models.Trade) {
	sort.SliceStable(trades, func(i, j int) bool {
		return trades[i].Timestamp.Before(trades[j].Timestamp)
	})
}

// Dedupe removes exact duplicate observations, keeping the first occurrence.
// Replay feeds occasionally deliver the same trade twice across slice
// boundaries.
func Dedupe(trades []models.Trade) []models.Trade {
	type key struct {
		ts    int64
		price float64
		qty   float64
		id    string
	}
	seen := make(map[key]struct{}, len(trades))
	out := trades[:0]
	for _, t := range trades {
		k := key{ts: t.Timestamp.UnixNano(), price: t.Price, qty: t.Quantity, id: t.TradeID}
		if _, ok := seen[k]; ok {
			continue
		}
		seen[k] = struct{}{}
		out = append(out, t)
	}
	return out
}

// FilterInvalid drops trades with non-positive price or quantity, a zero
// timestamp, or a price above maxPrice. A maxPrice of zero disables the
// upper bound.
func FilterInvalid(trades []models.Trade, maxPrice float64) []models.Trade {
	out := trades[:0]
	for _, t := range trades {
		if t.Price <= 0 || t.Quantity <= 0 || t.Timestamp.IsZero() {
			continue
		}
		if maxPrice > 0 && t.Price > maxPrice {
			continue
		}
		out = append(out, t)
	}
	return out
}

// FilterOutliers drops trades whose price lies more than sigmas standard
// deviations from the mean. With fewer than three observations or a zero
// deviation the input is returned unchanged.
func FilterOutliers(trades []models.Trade, sigmas float64) []models.Trade {
	if len(trades) < 3 || sigmas <= 0 {
		return trades
	}

	mean := 0.0
	for _, t := range trades {
		mean += t.Price
	}
	mean /= float64(len(trades))

	variance := 0.0
	for _, t := range trades {
		d := t.Price - mean
		variance += d * d
	}
	variance /= float64(len(trades))
	stddev := math.Sqrt(variance)
	if stddev == 0 {
		return trades
	}

	out := trades[:0]
	for _, t := range trades {
		if math.Abs(t.Price-mean) > sigmas*stddev {
			continue
		}
		out = append(out, t)
	}
	return out
}

// CleanSeries applies validity filtering, deduplication, outlier removal and
// time ordering to every (instrument, exchange) list in the series.
func CleanSeries(s models.Series, sigmas, maxPrice float64) models.Series {
	log := logger.GetLogger().WithComponent("cleaner")

	out := models.Series{}
	dropped := 0
	kept := 0
	for _, instrument := range s.Instruments() {
		for _, ex := range s.Exchanges(instrument) {
			trades := append([]models.Trade(nil), s[instrument][ex]...)
			before := len(trades)

			trades = FilterInvalid(trades, maxPrice)
			trades = Dedupe(trades)
			trades = FilterOutliers(trades, sigmas)
			SortByTime(trades)

			dropped += before - len(trades)
			kept += len(trades)
			if len(trades) == 0 {
				continue
			}
			if out[instrument] == nil {
				out[instrument] = map[exchange.Exchange][]models.Trade{}
			}
			out[instrument][ex] = trades
		}
	}

	log.WithFields(logger.Fields{"kept": kept, "dropped": dropped}).Info("series cleaned")
	return out
}

package processor

import (
	"time"

	"arbiflow/internal/exchange"
	"arbiflow/logger"
	"arbiflow/models"
)

// Synchronize aligns every instrument's per-exchange trade lists to a shared
// timestamp grid. For each grid bucket the last trade inside the bucket wins
// and its timestamp is snapped to the bucket boundary. Observations outside
// the overlapping time range of all exchanges carrying the instrument are
// dropped, so cross-exchange comparisons always see the same window.
func Synchronize(s models.Series, grid time.Duration) models.SyncedSeries {
	log := logger.GetLogger().WithComponent("synchronizer")
	if grid <= 0 {
		grid = time.Second
	}

	out := models.SyncedSeries{}
	for _, instrument := range s.Instruments() {
		byExchange := s[instrument]

		var start, end time.Time
		first := true
		for _, trades := range byExchange {
			if len(trades) == 0 {
				continue
			}
			lo := trades[0].Timestamp
			hi := trades[len(trades)-1].Timestamp
			if first {
				start, end = lo, hi
				first = false
				continue
			}
			if lo.After(start) {
				start = lo
			}
			if hi.Before(end) {
				end = hi
			}
		}
		if first || end.Before(start) {
			log.WithFields(logger.Fields{"instrument": instrument}).Warn("no overlapping time range, dropping instrument")
			continue
		}

		start = start.Truncate(grid)
		for _, ex := range s.Exchanges(instrument) {
			aligned := alignToGrid(byExchange[ex], start, end, grid)
			if len(aligned) == 0 {
				continue
			}
			if out[instrument] == nil {
				out[instrument] = map[exchange.Exchange][]models.Trade{}
			}
			out[instrument][ex] = aligned
		}
	}

	log.WithFields(logger.Fields{
		"instruments": len(out),
		"trades":      out.TotalTrades(),
		"grid":        grid.String(),
	}).Info("series synchronized")
	return out
}

// alignToGrid assumes trades are sorted by timestamp ascending.
func alignToGrid(trades []models.Trade, start, end time.Time, grid time.Duration) []models.Trade {
	var out []models.Trade
	for _, t := range trades {
		if t.Timestamp.Before(start) || t.Timestamp.After(end) {
			continue
		}
		bucket := t.Timestamp.Truncate(grid)
		snapped := t
		snapped.Timestamp = bucket
		if len(out) > 0 && out[len(out)-1].Timestamp.Equal(bucket) {
			out[len(out)-1] = snapped
			continue
		}
		out = append(out, snapped)
	}
	return out
}

package detector

import (
	"fmt"
	"sort"
	"time"

	"arbiflow/models"
)

// Dedup policies. "all" reports every qualifying timestamp; "episodes"
// collapses contiguous runs of the same divergence to their most profitable
// timestamp.
const (
	DedupAll      = "all"
	DedupEpisodes = "episodes"
)

// Rank produces the final ordered opportunity list: optional episode
// collapsing, then a stable sort by net profit descending that preserves the
// scanner's deterministic secondary order, then an optional top-K cap.
// Input must be in scanner order (instrument, timestamp ascending, pair).
func Rank(opps []models.Opportunity, policy string, maxGap time.Duration, topK int) ([]models.Opportunity, error) {
	switch policy {
	case DedupAll, "":
	case DedupEpisodes:
		opps = collapseEpisodes(opps, maxGap)
	default:
		return nil, fmt.Errorf("%w: dedup policy %q", ErrInvalidParameter, policy)
	}

	ranked := append([]models.Opportunity(nil), opps...)
	sort.SliceStable(ranked, func(i, j int) bool {
		return ranked[i].NetProfitPct > ranked[j].NetProfitPct
	})

	if topK > 0 && len(ranked) > topK {
		ranked = ranked[:topK]
	}
	return ranked, nil
}

type pairKey struct {
	instrument string
	buy        string
	sell       string
}

type episode struct {
	best   models.Opportunity
	lastTS time.Time
	order  int
}

// collapseEpisodes treats successive opportunities for the same
// (instrument, buy, sell) whose timestamps are at most maxGap apart as one
// persistent divergence and keeps the max-profit timestamp. The earliest
// entry wins profit ties so output stays deterministic.
func collapseEpisodes(opps []models.Opportunity, maxGap time.Duration) []models.Opportunity {
	if maxGap <= 0 {
		maxGap = time.Second
	}

	open := map[pairKey]*episode{}
	var closed []episode
	nextOrder := 0

	for _, opp := range opps {
		key := pairKey{instrument: opp.Instrument, buy: opp.BuyExchange.String(), sell: opp.SellExchange.String()}
		ep, ok := open[key]
		if ok && opp.Timestamp.Sub(ep.lastTS) <= maxGap {
			ep.lastTS = opp.Timestamp
			if opp.NetProfitPct > ep.best.NetProfitPct {
				ep.best = opp
			}
			continue
		}
		if ok {
			closed = append(closed, *ep)
		}
		open[key] = &episode{best: opp, lastTS: opp.Timestamp, order: nextOrder}
		nextOrder++
	}
	for _, ep := range open {
		closed = append(closed, *ep)
	}

	sort.Slice(closed, func(i, j int) bool { return closed[i].order < closed[j].order })

	out := make([]models.Opportunity, 0, len(closed))
	for _, ep := range closed {
		out = append(out, ep.best)
	}
	return out
}

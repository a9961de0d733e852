package models

import (
	"sort"

	"arbiflow/internal/exchange"
)

// Series maps instrument -> exchange -> time-ordered trades. A Series fresh
// out of the collector still needs cleaning and grid alignment; a
// SyncedSeries has been deduplicated and aligned to a common timestamp grid
// and is the only form the detector accepts.
type Series map[string]map[exchange.Exchange][]Trade

// SyncedSeries is a Series whose timestamps are aligned to a shared grid
// across exchanges, with at most one observation per (instrument, timestamp,
// exchange). The detector treats it as read-only.
type SyncedSeries = Series

// Instruments returns the instrument identifiers in lexical order.
func (s Series) Instruments() []string {
	out := make([]string, 0, len(s))
	for instrument := range s {
		out = append(out, instrument)
	}
	sort.Strings(out)
	return out
}

// Exchanges returns the exchanges carrying the given instrument in lexical
// order.
func (s Series) Exchanges(instrument string) []exchange.Exchange {
	byExchange := s[instrument]
	out := make([]exchange.Exchange, 0, len(byExchange))
	for ex := range byExchange {
		out = append(out, ex)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// Add appends a trade under its instrument and exchange.
func (s Series) Add(t Trade) {
	byExchange, ok := s[t.Instrument]
	if !ok {
		byExchange = make(map[exchange.Exchange][]Trade)
		s[t.Instrument] = byExchange
	}
	byExchange[t.Exchange] = append(byExchange[t.Exchange], t)
}

// TotalTrades counts all observations in the series.
func (s Series) TotalTrades() int {
	n := 0
	for _, byExchange := range s {
		for _, trades := range byExchange {
			n += len(trades)
		}
	}
	return n
}

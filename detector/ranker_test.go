package detector

import (
	"errors"
	"testing"
	"time"

	"arbiflow/internal/exchange"
	"arbiflow/models"
)

func opp(instrument string, sec int, buy, sell exchange.Exchange, net float64) models.Opportunity {
	return models.Opportunity{
		Instrument:   instrument,
		Timestamp:    time.Date(2023, 6, 1, 12, 0, sec, 0, time.UTC),
		BuyExchange:  buy,
		SellExchange: sell,
		NetProfitPct: net,
	}
}

func TestRankSortsByNetProfitDescending(t *testing.T) {
	in := []models.Opportunity{
		opp("btcusdt", 0, exchange.Binance, exchange.Kraken, 0.012),
		opp("ethusdt", 0, exchange.Binance, exchange.Coinbase, 0.020),
		opp("solusdt", 0, exchange.Coinbase, exchange.Kraken, 0.015),
	}

	out, err := Rank(in, DedupAll, 0, 0)
	if err != nil {
		t.Fatalf("Rank failed: %v", err)
	}
	for i := 1; i < len(out); i++ {
		if out[i].NetProfitPct > out[i-1].NetProfitPct {
			t.Fatal("ranking is not monotonically non-increasing")
		}
	}
	if out[0].Instrument != "ethusdt" {
		t.Errorf("unexpected top opportunity: %+v", out[0])
	}
}

func TestRankIsStableOnTies(t *testing.T) {
	// Scanner order on equal profit must survive the sort.
	in := []models.Opportunity{
		opp("btcusdt", 0, exchange.Binance, exchange.Coinbase, 0.015),
		opp("btcusdt", 0, exchange.Binance, exchange.Kraken, 0.015),
	}

	out, err := Rank(in, DedupAll, 0, 0)
	if err != nil {
		t.Fatalf("Rank failed: %v", err)
	}
	if out[0].SellExchange != exchange.Coinbase || out[1].SellExchange != exchange.Kraken {
		t.Errorf("tie order not preserved: %+v", out)
	}
}

func TestRankCapsToTopK(t *testing.T) {
	in := []models.Opportunity{
		opp("btcusdt", 0, exchange.Binance, exchange.Kraken, 0.012),
		opp("btcusdt", 5, exchange.Binance, exchange.Kraken, 0.020),
		opp("btcusdt", 10, exchange.Binance, exchange.Kraken, 0.015),
	}
	out, err := Rank(in, DedupAll, 0, 2)
	if err != nil {
		t.Fatalf("Rank failed: %v", err)
	}
	if len(out) != 2 || out[0].NetProfitPct != 0.020 {
		t.Errorf("unexpected top-K result: %+v", out)
	}
}

func TestRankRejectsUnknownPolicy(t *testing.T) {
	if _, err := Rank(nil, "collapse", 0, 0); !errors.Is(err, ErrInvalidParameter) {
		t.Fatalf("expected ErrInvalidParameter, got %v", err)
	}
}

func TestCollapseEpisodesKeepsMaxProfitTimestamp(t *testing.T) {
	// Three contiguous ticks of the same divergence, then a gap, then a new
	// episode of the same pair.
	in := []models.Opportunity{
		opp("btcusdt", 0, exchange.Binance, exchange.Kraken, 0.012),
		opp("btcusdt", 1, exchange.Binance, exchange.Kraken, 0.018),
		opp("btcusdt", 2, exchange.Binance, exchange.Kraken, 0.014),
		opp("btcusdt", 30, exchange.Binance, exchange.Kraken, 0.011),
	}

	out := collapseEpisodes(in, time.Second)
	if len(out) != 2 {
		t.Fatalf("expected 2 episodes, got %d", len(out))
	}
	if out[0].Timestamp.Second() != 1 || out[0].NetProfitPct != 0.018 {
		t.Errorf("first episode should keep its max-profit tick, got %+v", out[0])
	}
	if out[1].Timestamp.Second() != 30 {
		t.Errorf("gap should open a new episode, got %+v", out[1])
	}
}

func TestCollapseEpisodesSeparatesPairs(t *testing.T) {
	// Interleaved pairs at adjacent timestamps stay distinct episodes.
	in := []models.Opportunity{
		opp("btcusdt", 0, exchange.Binance, exchange.Kraken, 0.012),
		opp("btcusdt", 0, exchange.Coinbase, exchange.Kraken, 0.013),
		opp("btcusdt", 1, exchange.Binance, exchange.Kraken, 0.012),
		opp("btcusdt", 1, exchange.Coinbase, exchange.Kraken, 0.011),
	}

	out := collapseEpisodes(in, time.Second)
	if len(out) != 2 {
		t.Fatalf("expected one episode per pair, got %d", len(out))
	}
}

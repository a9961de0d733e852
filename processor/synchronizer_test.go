package processor

import (
	"testing"
	"time"

	"arbiflow/internal/exchange"
	"arbiflow/models"
)

func TestSynchronizeTrimsToCommonRange(t *testing.T) {
	s := models.Series{}
	// Binance covers seconds 0..10, Kraken only 4..8.
	for sec := 0; sec <= 10; sec += 2 {
		s.Add(mkTrade(exchange.Binance, "btcusdt", sec, 30000+float64(sec)))
	}
	for sec := 4; sec <= 8; sec += 2 {
		s.Add(mkTrade(exchange.Kraken, "btcusdt", sec, 30100+float64(sec)))
	}

	out := Synchronize(s, time.Second)
	binance := out["btcusdt"][exchange.Binance]
	if len(binance) == 0 {
		t.Fatal("binance series is empty after synchronization")
	}
	for _, tr := range binance {
		sec := tr.Timestamp.Second()
		if sec < 4 || sec > 8 {
			t.Errorf("trade outside common range survived: %s", tr.Timestamp)
		}
	}
}

func TestSynchronizeKeepsLastTradePerBucket(t *testing.T) {
	s := models.Series{}
	base := time.Date(2023, 6, 1, 0, 0, 1, 0, time.UTC)
	s.Add(models.Trade{Exchange: exchange.Binance, Instrument: "ethusdt", Timestamp: base.Add(100 * time.Millisecond), Price: 1900, Quantity: 1})
	s.Add(models.Trade{Exchange: exchange.Binance, Instrument: "ethusdt", Timestamp: base.Add(900 * time.Millisecond), Price: 1901, Quantity: 1})

	out := Synchronize(s, time.Second)
	trades := out["ethusdt"][exchange.Binance]
	if len(trades) != 1 {
		t.Fatalf("expected 1 trade per bucket, got %d", len(trades))
	}
	if trades[0].Price != 1901 {
		t.Errorf("expected last trade to win, got price %f", trades[0].Price)
	}
	if trades[0].Timestamp.Nanosecond() != 0 {
		t.Errorf("timestamp not snapped to grid: %s", trades[0].Timestamp)
	}
}

func TestSynchronizeDropsDisjointRanges(t *testing.T) {
	s := models.Series{}
	s.Add(mkTrade(exchange.Binance, "solusdt", 1, 150))
	s.Add(models.Trade{Exchange: exchange.Coinbase, Instrument: "solusdt", Timestamp: time.Date(2023, 6, 2, 0, 0, 0, 0, time.UTC), Price: 151, Quantity: 1})

	out := Synchronize(s, time.Second)
	if _, ok := out["solusdt"]; ok {
		t.Fatal("instrument with disjoint exchange ranges should be dropped")
	}
}

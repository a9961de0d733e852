package models

import (
	"encoding/json"
	"testing"
	"time"

	"arbiflow/internal/exchange"
)

func TestOpportunityJSON(t *testing.T) {
	opp := Opportunity{
		Instrument:     "btcusdt",
		Timestamp:      time.Unix(1759276800, 0).UTC(),
		BuyExchange:    exchange.Binance,
		SellExchange:   exchange.Kraken,
		BuyPrice:       114000,
		SellPrice:      116500,
		GrossSpreadPct: 0.0219,
		NetProfitPct:   0.0153,
	}
	data, err := json.Marshal(opp)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	var out Opportunity
	if err := json.Unmarshal(data, &out); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if opp.Instrument != out.Instrument || opp.BuyExchange != out.BuyExchange ||
		opp.SellExchange != out.SellExchange || !opp.Timestamp.Equal(out.Timestamp) ||
		opp.NetProfitPct != out.NetProfitPct {
		t.Fatalf("round trip mismatch: %+v != %+v", opp, out)
	}
}

func TestSeriesAddAndOrder(t *testing.T) {
	s := Series{}
	ts := time.Unix(0, 0)
	s.Add(Trade{Exchange: exchange.Kraken, Instrument: "ethusdt", Timestamp: ts, Price: 4000})
	s.Add(Trade{Exchange: exchange.Binance, Instrument: "btcusdt", Timestamp: ts, Price: 114000})
	s.Add(Trade{Exchange: exchange.Coinbase, Instrument: "btcusdt", Timestamp: ts, Price: 114500})

	instruments := s.Instruments()
	if len(instruments) != 2 || instruments[0] != "btcusdt" || instruments[1] != "ethusdt" {
		t.Fatalf("unexpected instruments: %v", instruments)
	}
	exchanges := s.Exchanges("btcusdt")
	if len(exchanges) != 2 || exchanges[0] != exchange.Binance || exchanges[1] != exchange.Coinbase {
		t.Fatalf("unexpected exchanges: %v", exchanges)
	}
	if s.TotalTrades() != 3 {
		t.Fatalf("expected 3 trades, got %d", s.TotalTrades())
	}
}

package detector

import (
	"context"
	"errors"
	"math"
	"reflect"
	"testing"
	"time"

	"arbiflow/internal/exchange"
	"arbiflow/models"
)

func defaultFees(t *testing.T) *FeeSchedule {
	t.Helper()
	fees, err := NewFeeSchedule(map[exchange.Exchange]FeeRates{
		exchange.Binance:  {Maker: 0.001, Taker: 0.001},
		exchange.Coinbase: {Maker: 0.005, Taker: 0.005},
		exchange.Kraken:   {Maker: 0.0016, Taker: 0.0026},
	})
	if err != nil {
		t.Fatalf("NewFeeSchedule failed: %v", err)
	}
	return fees
}

func defaultParams() Params {
	return Params{LatencyRiskFactor: 0.3, BasePenalty: 0.01, MinProfitThreshold: 0.01}
}

func obs(ex exchange.Exchange, instrument string, ts time.Time, price float64) models.Trade {
	return models.Trade{Exchange: ex, Instrument: instrument, Timestamp: ts, Price: price, Quantity: 1}
}

func seriesOf(trades ...models.Trade) models.SyncedSeries {
	s := models.SyncedSeries{}
	for _, t := range trades {
		s.Add(t)
	}
	return s
}

func TestScanSkipsSpreadEatenByFees(t *testing.T) {
	sc, err := NewScanner(defaultFees(t), defaultParams())
	if err != nil {
		t.Fatalf("NewScanner failed: %v", err)
	}

	ts := time.Date(2023, 6, 1, 12, 0, 0, 0, time.UTC)
	series := seriesOf(
		obs(exchange.Binance, "btcusdt", ts, 114000),
		obs(exchange.Coinbase, "btcusdt", ts, 114500),
	)

	opps, err := sc.Scan(context.Background(), series)
	if err != nil {
		t.Fatalf("Scan failed: %v", err)
	}
	if len(opps) != 0 {
		t.Fatalf("expected no opportunities, got %+v", opps)
	}
}

func TestScanEmitsProfitableDivergence(t *testing.T) {
	sc, err := NewScanner(defaultFees(t), defaultParams())
	if err != nil {
		t.Fatalf("NewScanner failed: %v", err)
	}

	ts := time.Date(2023, 6, 1, 12, 0, 0, 0, time.UTC)
	series := seriesOf(
		obs(exchange.Binance, "btcusdt", ts, 114000),
		obs(exchange.Kraken, "btcusdt", ts, 116500),
	)

	opps, err := sc.Scan(context.Background(), series)
	if err != nil {
		t.Fatalf("Scan failed: %v", err)
	}
	if len(opps) != 1 {
		t.Fatalf("expected 1 opportunity, got %d", len(opps))
	}

	opp := opps[0]
	if opp.BuyExchange != exchange.Binance || opp.SellExchange != exchange.Kraken {
		t.Errorf("unexpected direction: buy=%s sell=%s", opp.BuyExchange, opp.SellExchange)
	}
	wantGross := 2500.0 / 114000.0
	wantNet := wantGross - 0.001 - 0.0026 - 0.003
	if math.Abs(opp.GrossSpreadPct-wantGross) > 1e-12 {
		t.Errorf("gross spread = %.10f, want %.10f", opp.GrossSpreadPct, wantGross)
	}
	if math.Abs(opp.NetProfitPct-wantNet) > 1e-12 {
		t.Errorf("net profit = %.10f, want %.10f", opp.NetProfitPct, wantNet)
	}
}

func TestScanDirectionality(t *testing.T) {
	// Both directions are evaluated independently; only buy-low sell-high
	// can clear the threshold.
	sc, err := NewScanner(defaultFees(t), Params{LatencyRiskFactor: 0, BasePenalty: 0.01, MinProfitThreshold: 0})
	if err != nil {
		t.Fatalf("NewScanner failed: %v", err)
	}

	ts := time.Date(2023, 6, 1, 12, 0, 0, 0, time.UTC)
	series := seriesOf(
		obs(exchange.Binance, "btcusdt", ts, 100000),
		obs(exchange.Kraken, "btcusdt", ts, 110000),
	)

	opps, err := sc.Scan(context.Background(), series)
	if err != nil {
		t.Fatalf("Scan failed: %v", err)
	}
	if len(opps) != 1 {
		t.Fatalf("expected exactly 1 direction to qualify, got %d", len(opps))
	}
	if opps[0].BuyExchange != exchange.Binance {
		t.Errorf("wrong buy side: %s", opps[0].BuyExchange)
	}
}

func TestScanSkipsSingleExchangeTimestamps(t *testing.T) {
	sc, err := NewScanner(defaultFees(t), defaultParams())
	if err != nil {
		t.Fatalf("NewScanner failed: %v", err)
	}

	base := time.Date(2023, 6, 1, 12, 0, 0, 0, time.UTC)
	series := seriesOf(
		obs(exchange.Binance, "btcusdt", base, 114000),
		obs(exchange.Binance, "btcusdt", base.Add(time.Second), 114100),
	)

	opps, err := sc.Scan(context.Background(), series)
	if err != nil {
		t.Fatalf("Scan failed: %v", err)
	}
	if len(opps) != 0 {
		t.Fatalf("single-exchange timestamps must yield nothing, got %d", len(opps))
	}
}

func TestScanIncludesExactThreshold(t *testing.T) {
	// Zero fees and penalty make net == gross; pick prices whose gross hits
	// the threshold exactly.
	fees, err := NewFeeSchedule(map[exchange.Exchange]FeeRates{
		exchange.Binance: {},
		exchange.Kraken:  {},
	})
	if err != nil {
		t.Fatalf("NewFeeSchedule failed: %v", err)
	}
	sc, err := NewScanner(fees, Params{MinProfitThreshold: 0.01})
	if err != nil {
		t.Fatalf("NewScanner failed: %v", err)
	}

	ts := time.Date(2023, 6, 1, 12, 0, 0, 0, time.UTC)
	series := seriesOf(
		obs(exchange.Binance, "btcusdt", ts, 100000),
		obs(exchange.Kraken, "btcusdt", ts, 101000),
	)

	opps, err := sc.Scan(context.Background(), series)
	if err != nil {
		t.Fatalf("Scan failed: %v", err)
	}
	if len(opps) != 1 {
		t.Fatalf("net profit equal to the threshold must be included, got %d opportunities", len(opps))
	}
}

func TestScanRejectsInvalidObservation(t *testing.T) {
	sc, err := NewScanner(defaultFees(t), defaultParams())
	if err != nil {
		t.Fatalf("NewScanner failed: %v", err)
	}

	ts := time.Date(2023, 6, 1, 12, 0, 0, 0, time.UTC)
	series := seriesOf(
		obs(exchange.Binance, "btcusdt", ts, -1),
		obs(exchange.Kraken, "btcusdt", ts, 116500),
	)

	if _, err := sc.Scan(context.Background(), series); !errors.Is(err, ErrInvalidObservation) {
		t.Fatalf("expected ErrInvalidObservation, got %v", err)
	}
}

func TestScanRejectsDuplicateObservation(t *testing.T) {
	sc, err := NewScanner(defaultFees(t), defaultParams())
	if err != nil {
		t.Fatalf("NewScanner failed: %v", err)
	}

	ts := time.Date(2023, 6, 1, 12, 0, 0, 0, time.UTC)
	series := seriesOf(
		obs(exchange.Binance, "btcusdt", ts, 114000),
		obs(exchange.Binance, "btcusdt", ts, 114001),
	)

	if _, err := sc.Scan(context.Background(), series); !errors.Is(err, ErrInvalidObservation) {
		t.Fatalf("expected ErrInvalidObservation for duplicate, got %v", err)
	}
}

func TestScanDeterministicAcrossRuns(t *testing.T) {
	sc, err := NewScanner(defaultFees(t), Params{LatencyRiskFactor: 0, BasePenalty: 0, MinProfitThreshold: 0, MaxParallel: 4})
	if err != nil {
		t.Fatalf("NewScanner failed: %v", err)
	}

	base := time.Date(2023, 6, 1, 12, 0, 0, 0, time.UTC)
	var trades []models.Trade
	for _, instrument := range []string{"btcusdt", "ethusdt", "solusdt"} {
		for sec := 0; sec < 10; sec++ {
			ts := base.Add(time.Duration(sec) * time.Second)
			trades = append(trades,
				obs(exchange.Binance, instrument, ts, 100+float64(sec)),
				obs(exchange.Coinbase, instrument, ts, 102+float64(sec%3)),
				obs(exchange.Kraken, instrument, ts, 101+float64(sec%5)),
			)
		}
	}
	series := seriesOf(trades...)

	first, err := sc.Scan(context.Background(), series)
	if err != nil {
		t.Fatalf("Scan failed: %v", err)
	}
	for i := 0; i < 5; i++ {
		again, err := sc.Scan(context.Background(), series)
		if err != nil {
			t.Fatalf("Scan failed: %v", err)
		}
		if !reflect.DeepEqual(first, again) {
			t.Fatal("repeated scans over identical input diverged")
		}
	}
}

func TestParamsValidate(t *testing.T) {
	cases := []struct {
		name   string
		params Params
		ok     bool
	}{
		{"defaults", defaultParams(), true},
		{"factor too high", Params{LatencyRiskFactor: 1.5}, false},
		{"factor negative", Params{LatencyRiskFactor: -0.1}, false},
		{"negative threshold", Params{MinProfitThreshold: -0.01}, false},
		{"negative penalty", Params{BasePenalty: -1}, false},
	}
	for _, c := range cases {
		err := c.params.Validate()
		if c.ok && err != nil {
			t.Errorf("%s: unexpected error %v", c.name, err)
		}
		if !c.ok && !errors.Is(err, ErrInvalidParameter) {
			t.Errorf("%s: expected ErrInvalidParameter, got %v", c.name, err)
		}
	}
}

package detector

import (
	"errors"
	"testing"

	"arbiflow/internal/exchange"
)

func TestFeeLookup(t *testing.T) {
	fees := defaultFees(t)

	got, err := fees.Fee(exchange.Kraken, SideTaker)
	if err != nil {
		t.Fatalf("Fee failed: %v", err)
	}
	if got != 0.0026 {
		t.Errorf("kraken taker = %f, want 0.0026", got)
	}

	got, err = fees.Fee(exchange.Kraken, SideMaker)
	if err != nil {
		t.Fatalf("Fee failed: %v", err)
	}
	if got != 0.0016 {
		t.Errorf("kraken maker = %f, want 0.0016", got)
	}
}

func TestFeeUnknownExchange(t *testing.T) {
	fees, err := NewFeeSchedule(map[exchange.Exchange]FeeRates{
		exchange.Binance: {Taker: 0.001},
	})
	if err != nil {
		t.Fatalf("NewFeeSchedule failed: %v", err)
	}
	if _, err := fees.Taker(exchange.Kraken); !errors.Is(err, ErrUnknownExchange) {
		t.Fatalf("expected ErrUnknownExchange, got %v", err)
	}
}

func TestNewFeeScheduleRejectsBadRates(t *testing.T) {
	if _, err := NewFeeSchedule(map[exchange.Exchange]FeeRates{
		exchange.Binance: {Taker: 1.0},
	}); !errors.Is(err, ErrInvalidParameter) {
		t.Fatalf("expected ErrInvalidParameter for rate of 1.0, got %v", err)
	}

	if _, err := NewFeeSchedule(map[exchange.Exchange]FeeRates{
		exchange.Exchange("bitmex"): {Taker: 0.001},
	}); !errors.Is(err, ErrUnknownExchange) {
		t.Fatalf("expected ErrUnknownExchange for unrecognized exchange, got %v", err)
	}
}

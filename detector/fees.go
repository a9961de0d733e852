package detector

import (
	"fmt"

	appconfig "arbiflow/config"
	"arbiflow/internal/exchange"
)

// Side selects the fee rate charged for an order.
type Side string

const (
	SideMaker Side = "maker"
	SideTaker Side = "taker"
)

// FeeRates holds one exchange's maker and taker rates as fractions.
type FeeRates struct {
	Maker float64
	Taker float64
}

// FeeSchedule is an immutable per-exchange fee table fixed for the duration
// of a detection run. Construct one per run; concurrent runs with different
// fee assumptions never share state.
type FeeSchedule struct {
	rates map[exchange.Exchange]FeeRates
}

// NewFeeSchedule builds a schedule from per-exchange rates. Every rate must
// be a fraction in [0, 1).
func NewFeeSchedule(rates map[exchange.Exchange]FeeRates) (*FeeSchedule, error) {
	copied := make(map[exchange.Exchange]FeeRates, len(rates))
	for ex, r := range rates {
		if !ex.Valid() {
			return nil, fmt.Errorf("%w: %q", ErrUnknownExchange, ex)
		}
		if r.Maker < 0 || r.Maker >= 1 || r.Taker < 0 || r.Taker >= 1 {
			return nil, fmt.Errorf("%w: fee rates for %s must be fractions in [0, 1)", ErrInvalidParameter, ex)
		}
		copied[ex] = r
	}
	return &FeeSchedule{rates: copied}, nil
}

// FeeScheduleFromConfig builds the schedule from the detection configuration.
func FeeScheduleFromConfig(cfg appconfig.FeesConfig) (*FeeSchedule, error) {
	return NewFeeSchedule(map[exchange.Exchange]FeeRates{
		exchange.Binance:  {Maker: cfg.Binance.Maker, Taker: cfg.Binance.Taker},
		exchange.Coinbase: {Maker: cfg.Coinbase.Maker, Taker: cfg.Coinbase.Taker},
		exchange.Kraken:   {Maker: cfg.Kraken.Maker, Taker: cfg.Kraken.Taker},
	})
}

// Fee returns the configured rate for the exchange and side.
func (f *FeeSchedule) Fee(ex exchange.Exchange, side Side) (float64, error) {
	r, ok := f.rates[ex]
	if !ok {
		return 0, fmt.Errorf("%w: %q", ErrUnknownExchange, ex)
	}
	switch side {
	case SideMaker:
		return r.Maker, nil
	case SideTaker:
		return r.Taker, nil
	default:
		return 0, fmt.Errorf("%w: fee side %q", ErrInvalidParameter, side)
	}
}

// Taker is a shorthand for the taker rate, the side detection always uses
// since arbitrage execution cannot assume resting orders.
func (f *FeeSchedule) Taker(ex exchange.Exchange) (float64, error) {
	return f.Fee(ex, SideTaker)
}

package exchange

import (
	"fmt"
	"strings"
)

// Exchange identifies one of the supported trading venues. The set is closed:
// fee schedules, replay channels and symbol mappings are only defined for the
// exchanges listed here.
type Exchange string

const (
	Binance  Exchange = "binance"
	Coinbase Exchange = "coinbase"
	Kraken   Exchange = "kraken"
)

// All returns the supported exchanges in lexical order.
func All() []Exchange {
	return []Exchange{Binance, Coinbase, Kraken}
}

// Parse converts a free-form identifier into an Exchange.
func Parse(s string) (Exchange, error) {
	switch Exchange(strings.ToLower(strings.TrimSpace(s))) {
	case Binance:
		return Binance, nil
	case Coinbase:
		return Coinbase, nil
	case Kraken:
		return Kraken, nil
	default:
		return "", fmt.Errorf("unsupported exchange %q", s)
	}
}

func (e Exchange) String() string {
	return string(e)
}

// Valid reports whether e is one of the supported exchanges.
func (e Exchange) Valid() bool {
	switch e {
	case Binance, Coinbase, Kraken:
		return true
	default:
		return false
	}
}

// ReplayChannel returns the tardis.dev channel name carrying trade events for
// this exchange. Coinbase publishes executed trades on the "match" channel.
func (e Exchange) ReplayChannel() string {
	if e == Coinbase {
		return "match"
	}
	return "trade"
}

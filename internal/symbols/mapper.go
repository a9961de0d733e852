package symbols

import (
	"strings"

	"arbiflow/internal/exchange"
)

// ToCanonical converts exchange-specific symbols to a shared instrument
// identifier so the same asset can be matched across venues.
// Examples:
//
//	binance  btcusdt  -> btcusdt
//	coinbase BTC-USD  -> btcusdt
//	kraken   XBT/USD  -> btcusdt
//
// Separators are stripped, XBT is mapped to BTC and a bare USD quote is
// folded into USDT: USD and USDT books are treated as the same instrument
// for cross-exchange comparison.
func ToCanonical(ex exchange.Exchange, sym string) string {
	sym = strings.ToUpper(sym)
	sym = strings.ReplaceAll(sym, "-", "")
	sym = strings.ReplaceAll(sym, "/", "")
	sym = strings.ReplaceAll(sym, "_", "")

	if strings.HasPrefix(sym, "XBT") {
		sym = "BTC" + sym[3:]
	}
	if strings.HasSuffix(sym, "USD") {
		sym += "T"
	}
	return strings.ToLower(sym)
}

// BaseAsset extracts the lowercase base asset from a canonical instrument,
// e.g. btcusdt -> btc. The instrument is returned unchanged when no known
// quote suffix is present.
func BaseAsset(instrument string) string {
	for _, quote := range []string{"usdt", "usdc", "usd"} {
		if strings.HasSuffix(instrument, quote) && len(instrument) > len(quote) {
			return strings.TrimSuffix(instrument, quote)
		}
	}
	return instrument
}

package processor

import (
	"context"
	"testing"
	"time"

	"arbiflow/internal/channel"
	"arbiflow/internal/exchange"
	"arbiflow/models"
)

// Exercises the ingest path end to end: raw payloads in, normalized series
// out, with the staged channel shutdown used by the binary.
func TestPipelineDrainsOnClose(t *testing.T) {
	cfg := testConfig()
	chans := channel.NewChannels(16, 16)

	n := NewNormalizer(cfg, chans)
	c := NewCollector(chans)

	ctx := context.Background()
	if err := c.Start(ctx); err != nil {
		t.Fatalf("collector start: %v", err)
	}
	if err := n.Start(ctx); err != nil {
		t.Fatalf("normalizer start: %v", err)
	}

	payloads := []string{
		`{"e":"trade","s":"BTCUSDT","t":1,"p":"114000","q":"1","T":1685577601000,"m":false}`,
		`{"e":"trade","s":"BTCUSDT","t":2,"p":"114010","q":"2","T":1685577602000,"m":true}`,
	}
	for _, p := range payloads {
		ok := chans.SendRaw(ctx, models.RawTradeMessage{
			Exchange:  exchange.Binance,
			Data:      []byte(p),
			Timestamp: time.Now(),
		})
		if !ok {
			t.Fatal("raw send dropped")
		}
	}

	chans.CloseRaw()
	n.Stop()
	chans.CloseClean()
	c.Stop()

	series := c.Series()
	trades := series["btcusdt"][exchange.Binance]
	if len(trades) != 2 {
		t.Fatalf("expected 2 collected trades, got %d", len(trades))
	}
	if trades[0].Price != 114000 || trades[1].Side != "sell" {
		t.Errorf("unexpected trades: %+v", trades)
	}
}

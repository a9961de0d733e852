package kraken

import (
	"context"
	"fmt"
	"sync"
	"time"

	"arbiflow/config"
	"arbiflow/internal/channel"
	"arbiflow/internal/exchange"
	"arbiflow/logger"
	"arbiflow/models"
	"arbiflow/reader/tardis"
)

// Replayer streams historical exchange messages for a time range.
type Replayer interface {
	Replay(ctx context.Context, opts tardis.ReplayOptions, fn tardis.MessageFunc) error
}

// Kraken_Trades_Reader replays historical Kraken trades into the raw channel.
// Kraken uses XBT notation for Bitcoin pairs; the normalizer maps those onto
// canonical instruments.
type Kraken_Trades_Reader struct {
	config   *config.Config
	replayer Replayer
	chans    *channel.Channels
	from     time.Time
	to       time.Time
	ctx      context.Context
	wg       *sync.WaitGroup
	mu       sync.RWMutex
	running  bool
	log      *logger.Log
}

func Kraken_Trades_NewReader(cfg *config.Config, replayer Replayer, chans *channel.Channels, from, to time.Time) *Kraken_Trades_Reader {
	return &Kraken_Trades_Reader{
		config:   cfg,
		replayer: replayer,
		chans:    chans,
		from:     from,
		to:       to,
		wg:       &sync.WaitGroup{},
		log:      logger.GetLogger(),
	}
}

func (r *Kraken_Trades_Reader) Kraken_Trades_Start(ctx context.Context) error {
	r.mu.Lock()
	if r.running {
		r.mu.Unlock()
		return fmt.Errorf("reader already running")
	}
	r.running = true
	r.ctx = ctx
	r.mu.Unlock()

	log := r.log.WithComponent("kraken_reader").WithFields(logger.Fields{"operation": "Kraken_Trades_Start"})
	src := r.config.Source.Kraken
	if !src.Enabled {
		log.Warn("kraken trade replay is disabled")
		return fmt.Errorf("kraken trade replay is disabled")
	}

	log.WithFields(logger.Fields{"symbols": src.Symbols, "from": r.from, "to": r.to}).Info("starting kraken trade reader")
	r.wg.Add(1)
	go r.replayWorker(src.Symbols)
	return nil
}

func (r *Kraken_Trades_Reader) Kraken_Trades_Stop() {
	r.mu.Lock()
	r.running = false
	r.mu.Unlock()
	r.log.WithComponent("kraken_reader").Info("stopping kraken trade reader")
	r.wg.Wait()
	r.log.WithComponent("kraken_reader").Info("kraken trade reader stopped")
}

func (r *Kraken_Trades_Reader) replayWorker(symbols []string) {
	defer r.wg.Done()
	log := r.log.WithComponent("kraken_reader").WithFields(logger.Fields{"worker": "trade_replayer"})

	opts := tardis.ReplayOptions{
		Exchange: exchange.Kraken.String(),
		From:     r.from,
		To:       r.to,
		Channel:  exchange.Kraken.ReplayChannel(),
		Symbols:  symbols,
	}

	err := r.replayer.Replay(r.ctx, opts, func(localTS time.Time, payload []byte) error {
		msg := models.RawTradeMessage{
			Exchange:  exchange.Kraken,
			Data:      payload,
			Timestamp: localTS,
		}
		if !r.chans.SendRaw(r.ctx, msg) {
			if r.ctx.Err() != nil {
				return r.ctx.Err()
			}
			log.Warn("raw channel is full, dropping trade message")
		}
		return nil
	})
	if err != nil && r.ctx.Err() == nil {
		log.WithError(err).Error("kraken trade replay failed")
	}
}

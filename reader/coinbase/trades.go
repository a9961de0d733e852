package coinbase

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

// Coinbase_Trades_Reader replays historical Coinbase match messages into the
// raw channel. Coinbase publishes executed trades on the "match" channel
// rather than a dedicated trade feed.
type Coinbase_Trades_Reader struct {
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

func Coinbase_Trades_NewReader(cfg *config.Config, replayer Replayer, chans *channel.Channels, from, to time.Time) *Coinbase_Trades_Reader {
	return &Coinbase_Trades_Reader{
		config:   cfg,
		replayer: replayer,
		chans:    chans,
		from:     from,
		to:       to,
		wg:       &sync.WaitGroup{},
		log:      logger.GetLogger(),
	}
}

func (r *Coinbase_Trades_Reader) Coinbase_Trades_Start(ctx context.Context) error {
	r.mu.Lock()
	if r.running {
		r.mu.Unlock()
		return fmt.Errorf("reader already running")
	}
	r.running = true
	r.ctx = ctx
	r.mu.Unlock()

	log := r.log.WithComponent("coinbase_reader").WithFields(logger.Fields{"operation": "Coinbase_Trades_Start"})
	src := r.config.Source.Coinbase
	if !src.Enabled {
		log.Warn("coinbase trade replay is disabled")
		return fmt.Errorf("coinbase trade replay is disabled")
	}

	log.WithFields(logger.Fields{"symbols": src.Symbols, "from": r.from, "to": r.to}).Info("starting coinbase trade reader")
	r.wg.Add(1)
	go r.replayWorker(src.Symbols)
	return nil
}

func (r *Coinbase_Trades_Reader) Coinbase_Trades_Stop() {
	r.mu.Lock()
	r.running = false
	r.mu.Unlock()
	r.log.WithComponent("coinbase_reader").Info("stopping coinbase trade reader")
	r.wg.Wait()
	r.log.WithComponent("coinbase_reader").Info("coinbase trade reader stopped")
}

func (r *Coinbase_Trades_Reader) replayWorker(symbols []string) {
	defer r.wg.Done()
	log := r.log.WithComponent("coinbase_reader").WithFields(logger.Fields{"worker": "trade_replayer"})

	opts := tardis.ReplayOptions{
		Exchange: exchange.Coinbase.String(),
		From:     r.from,
		To:       r.to,
		Channel:  exchange.Coinbase.ReplayChannel(),
		Symbols:  symbols,
	}

	err := r.replayer.Replay(r.ctx, opts, func(localTS time.Time, payload []byte) error {
		msg := models.RawTradeMessage{
			Exchange:  exchange.Coinbase,
			Data:      payload,
			Timestamp: localTS,
		}
		if !r.chans.SendRaw(r.ctx, msg) {
			if r.ctx.Err() != nil {
				return r.ctx.Err()
			}
			log.Warn("raw channel is full, dropping match message")
		}
		return nil
	})
	if err != nil && r.ctx.Err() == nil {
		log.WithError(err).Error("coinbase trade replay failed")
	}
}

package binance

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

// Binance_Trades_Reader replays historical Binance spot trades into the raw
// channel.
type Binance_Trades_Reader struct {
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

// Binance_Trades_NewReader creates a replay reader covering [from, to).
func Binance_Trades_NewReader(cfg *config.Config, replayer Replayer, chans *channel.Channels, from, to time.Time) *Binance_Trades_Reader {
	return &Binance_Trades_Reader{
		config:   cfg,
		replayer: replayer,
		chans:    chans,
		from:     from,
		to:       to,
		wg:       &sync.WaitGroup{},
		log:      logger.GetLogger(),
	}
}

// Binance_Trades_Start launches the replay worker.
func (r *Binance_Trades_Reader) Binance_Trades_Start(ctx context.Context) error {
	r.mu.Lock()
	if r.running {
		r.mu.Unlock()
		return fmt.Errorf("reader already running")
	}
	r.running = true
	r.ctx = ctx
	r.mu.Unlock()

	log := r.log.WithComponent("binance_reader").WithFields(logger.Fields{"operation": "Binance_Trades_Start"})
	src := r.config.Source.Binance
	if !src.Enabled {
		log.Warn("binance trade replay is disabled")
		return fmt.Errorf("binance trade replay is disabled")
	}

	log.WithFields(logger.Fields{"symbols": src.Symbols, "from": r.from, "to": r.to}).Info("starting binance trade reader")
	r.wg.Add(1)
	go r.replayWorker(src.Symbols)
	return nil
}

// Binance_Trades_Stop waits for the replay worker to finish.
func (r *Binance_Trades_Reader) Binance_Trades_Stop() {
	r.mu.Lock()
	r.running = false
	r.mu.Unlock()
	r.log.WithComponent("binance_reader").Info("stopping binance trade reader")
	r.wg.Wait()
	r.log.WithComponent("binance_reader").Info("binance trade reader stopped")
}

func (r *Binance_Trades_Reader) replayWorker(symbols []string) {
	defer r.wg.Done()
	log := r.log.WithComponent("binance_reader").WithFields(logger.Fields{"worker": "trade_replayer"})

	opts := tardis.ReplayOptions{
		Exchange: exchange.Binance.String(),
		From:     r.from,
		To:       r.to,
		Channel:  exchange.Binance.ReplayChannel(),
		Symbols:  symbols,
	}

	err := r.replayer.Replay(r.ctx, opts, func(localTS time.Time, payload []byte) error {
		msg := models.RawTradeMessage{
			Exchange:  exchange.Binance,
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
		log.WithError(err).Error("binance trade replay failed")
	}
}

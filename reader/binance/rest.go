package binance

import (
	"context"
	"strconv"
	"time"

	"arbiflow/config"
	"arbiflow/internal/channel"
	"arbiflow/internal/exchange"
	"arbiflow/internal/symbols"
	"arbiflow/logger"
	"arbiflow/models"

	sdk "github.com/adshao/go-binance/v2"
	"github.com/google/uuid"
)

// aggTradesService is the slice of the Binance SDK used by the backfiller.
type aggTradesService interface {
	AggTrades(ctx context.Context, symbol string, startTime, endTime int64, limit int) ([]*sdk.AggTrade, error)
}

type sdkAggTrades struct {
	client *sdk.Client
}

func (s sdkAggTrades) AggTrades(ctx context.Context, symbol string, startTime, endTime int64, limit int) ([]*sdk.AggTrade, error) {
	return s.client.NewAggTradesService().
		Symbol(symbol).
		StartTime(startTime).
		EndTime(endTime).
		Limit(limit).
		Do(ctx)
}

// Backfiller fills replay coverage gaps with aggregated trades from the
// Binance REST API. Batches are already normalized, so they bypass the raw
// channel and go straight to the clean channel.
type Backfiller struct {
	config  *config.Config
	service aggTradesService
	chans   *channel.Channels
	log     *logger.Log
}

func NewBackfiller(cfg *config.Config, chans *channel.Channels) *Backfiller {
	return &Backfiller{
		config:  cfg,
		service: sdkAggTrades{client: sdk.NewClient("", "")},
		chans:   chans,
		log:     logger.GetLogger(),
	}
}

// Backfill fetches aggregated trades for every configured symbol in
// [from, to) and sends them to the clean channel in batches.
func (b *Backfiller) Backfill(ctx context.Context, from, to time.Time) error {
	if !b.config.Reader.Backfill.Enabled {
		return nil
	}

	limit := b.config.Reader.Backfill.PageLimit
	if limit <= 0 {
		limit = 1000
	}

	for _, sym := range b.config.Source.Binance.Symbols {
		if err := b.backfillSymbol(ctx, sym, from, to, limit); err != nil {
			return err
		}
	}
	return nil
}

func (b *Backfiller) backfillSymbol(ctx context.Context, symbol string, from, to time.Time, limit int) error {
	log := b.log.WithComponent("binance_backfill").WithFields(logger.Fields{"symbol": symbol})
	instrument := symbols.ToCanonical(exchange.Binance, symbol)

	cursor := from.UnixMilli()
	end := to.UnixMilli()
	total := 0

	for cursor < end {
		if err := ctx.Err(); err != nil {
			return err
		}

		aggTrades, err := b.service.AggTrades(ctx, symbol, cursor, end, limit)
		if err != nil {
			log.WithError(err).Error("aggregated trades request failed")
			return err
		}
		if len(aggTrades) == 0 {
			break
		}

		trades := make([]models.Trade, 0, len(aggTrades))
		for _, at := range aggTrades {
			price, err := strconv.ParseFloat(at.Price, 64)
			if err != nil {
				log.WithError(err).Warn("skipping aggregated trade with invalid price")
				continue
			}
			qty, err := strconv.ParseFloat(at.Quantity, 64)
			if err != nil {
				log.WithError(err).Warn("skipping aggregated trade with invalid quantity")
				continue
			}
			side := "buy"
			if at.IsBuyerMaker {
				side = "sell"
			}
			trades = append(trades, models.Trade{
				Exchange:   exchange.Binance,
				Instrument: instrument,
				Timestamp:  time.UnixMilli(at.Timestamp).UTC(),
				Price:      price,
				Quantity:   qty,
				Side:       side,
				TradeID:    strconv.FormatInt(at.AggTradeID, 10),
			})
			logger.IncrementBackfillRead(len(at.Price) + len(at.Quantity))
		}

		if len(trades) > 0 {
			batch := models.TradeBatch{
				BatchID:     uuid.New().String(),
				Exchange:    exchange.Binance,
				Instrument:  instrument,
				Trades:      trades,
				RecordCount: len(trades),
				ProcessedAt: time.Now().UTC(),
			}
			if !b.chans.SendClean(ctx, batch) {
				if ctx.Err() != nil {
					return ctx.Err()
				}
				log.Warn("clean channel is full, dropping backfill batch")
			}
			total += len(trades)
		}

		last := aggTrades[len(aggTrades)-1].Timestamp
		if last < cursor {
			break
		}
		cursor = last + 1
	}

	log.WithField("trades", total).Info("backfill finished")
	return nil
}

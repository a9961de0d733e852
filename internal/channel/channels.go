package channel

import (
	"context"
	"sync"
	"time"

	"arbiflow/logger"
	"arbiflow/models"
)

type ChannelStats struct {
	RawSent      int64
	CleanSent    int64
	RawDropped   int64
	CleanDropped int64
}

// Channels carries trade data between pipeline stages. RawTrades holds
// exchange payloads exactly as received and Clean holds normalized batches.
type Channels struct {
	RawTrades chan models.RawTradeMessage
	Clean     chan models.TradeBatch

	stats      ChannelStats
	statsMutex sync.RWMutex
	log        *logger.Log
}

func NewChannels(rawBufferSize, cleanBufferSize int) *Channels {
	log := logger.GetLogger()
	c := &Channels{
		RawTrades: make(chan models.RawTradeMessage, rawBufferSize),
		Clean:     make(chan models.TradeBatch, cleanBufferSize),
		log:       log,
	}

	log.WithComponent("trade_channels").WithFields(logger.Fields{
		"raw_buffer_size":   rawBufferSize,
		"clean_buffer_size": cleanBufferSize,
	}).Info("trade channels initialized")

	return c
}

// CloseRaw signals the normalizer that no more raw payloads will arrive.
func (c *Channels) CloseRaw() {
	close(c.RawTrades)
	c.log.WithComponent("trade_channels").Info("raw trade channel closed")
}

// CloseClean signals the collector that no more batches will arrive.
func (c *Channels) CloseClean() {
	close(c.Clean)
	c.log.WithComponent("trade_channels").Info("clean trade channel closed")
}

func (c *Channels) IncrementRawSent() {
	c.statsMutex.Lock()
	c.stats.RawSent++
	c.statsMutex.Unlock()
}

func (c *Channels) IncrementCleanSent() {
	c.statsMutex.Lock()
	c.stats.CleanSent++
	c.statsMutex.Unlock()
}

func (c *Channels) IncrementRawDropped() {
	c.statsMutex.Lock()
	c.stats.RawDropped++
	c.statsMutex.Unlock()
}

func (c *Channels) IncrementCleanDropped() {
	c.statsMutex.Lock()
	c.stats.CleanDropped++
	c.statsMutex.Unlock()
}

// SendRaw attempts a non-blocking send of a raw trade message. It returns
// false when the channel is full or the context has been cancelled.
func (c *Channels) SendRaw(ctx context.Context, msg models.RawTradeMessage) bool {
	select {
	case c.RawTrades <- msg:
		c.IncrementRawSent()
		logger.RecordChannelMessage("raw_trades", len(msg.Data))
		return true
	case <-ctx.Done():
		return false
	default:
		c.IncrementRawDropped()
		return false
	}
}

// SendClean attempts a non-blocking send of a normalized trade batch.
func (c *Channels) SendClean(ctx context.Context, batch models.TradeBatch) bool {
	select {
	case c.Clean <- batch:
		c.IncrementCleanSent()
		logger.RecordChannelMessage("clean_trades", batch.RecordCount)
		return true
	case <-ctx.Done():
		return false
	default:
		c.IncrementCleanDropped()
		return false
	}
}

func (c *Channels) GetStats() ChannelStats {
	c.statsMutex.RLock()
	defer c.statsMutex.RUnlock()
	return c.stats
}

// StartMetricsReporting periodically logs channel utilization until the
// context is cancelled.
func (c *Channels) StartMetricsReporting(ctx context.Context, interval time.Duration) {
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				stats := c.GetStats()
				c.log.WithComponent("trade_channels").WithFields(logger.Fields{
					"raw_len":       len(c.RawTrades),
					"raw_cap":       cap(c.RawTrades),
					"clean_len":     len(c.Clean),
					"clean_cap":     cap(c.Clean),
					"raw_sent":      stats.RawSent,
					"clean_sent":    stats.CleanSent,
					"raw_dropped":   stats.RawDropped,
					"clean_dropped": stats.CleanDropped,
				}).Debug("channel utilization")
			}
		}
	}()
}

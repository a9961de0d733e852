package processor

import (
	"context"
	"fmt"
	"sync"

	"arbiflow/internal/channel"
	"arbiflow/logger"
	"arbiflow/models"
)

// Collector drains the clean channel and accumulates normalized trades into
// an in-memory series keyed by instrument and exchange.
type Collector struct {
	chans   *channel.Channels
	series  models.Series
	ctx     context.Context
	wg      *sync.WaitGroup
	mu      sync.RWMutex
	running bool
	log     *logger.Log

	batchesCollected int64
	tradesCollected  int64
}

func NewCollector(chans *channel.Channels) *Collector {
	return &Collector{
		chans:  chans,
		series: models.Series{},
		wg:     &sync.WaitGroup{},
		log:    logger.GetLogger(),
	}
}

func (c *Collector) Start(ctx context.Context) error {
	c.mu.Lock()
	if c.running {
		c.mu.Unlock()
		return fmt.Errorf("collector already running")
	}
	c.running = true
	c.ctx = ctx
	c.mu.Unlock()

	c.log.WithComponent("collector").Info("starting series collector")
	c.wg.Add(1)
	go c.collect()
	return nil
}

// Stop waits for the clean channel to drain. The channel must be closed by
// the producer side before calling Stop.
func (c *Collector) Stop() {
	c.mu.Lock()
	c.running = false
	c.mu.Unlock()

	c.wg.Wait()
	logger.LogDataFlowEntry(c.log.WithComponent("collector"), "clean_channel", "series", int(c.tradesCollected), "trades")
	c.log.WithComponent("collector").WithFields(logger.Fields{
		"batches": c.batchesCollected,
		"trades":  c.tradesCollected,
	}).Info("series collector stopped")
}

// Series returns the accumulated trade series. Call after Stop.
func (c *Collector) Series() models.Series {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.series
}

func (c *Collector) collect() {
	defer c.wg.Done()
	log := c.log.WithComponent("collector")

	for {
		select {
		case <-c.ctx.Done():
			log.Info("collector stopped due to context cancellation")
			return
		case batch, ok := <-c.chans.Clean:
			if !ok {
				log.Info("clean channel closed, collector draining finished")
				return
			}
			c.mu.Lock()
			for _, t := range batch.Trades {
				c.series.Add(t)
			}
			c.batchesCollected++
			c.tradesCollected += int64(batch.RecordCount)
			c.mu.Unlock()
		}
	}
}

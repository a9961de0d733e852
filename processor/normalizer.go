package processor

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"sync"
	"time"

	"github.com/google/uuid"

	appconfig "arbiflow/config"
	"arbiflow/internal/channel"
	"arbiflow/internal/exchange"
	"arbiflow/internal/symbols"
	"arbiflow/logger"
	"arbiflow/models"
)

// Normalizer converts raw replayed exchange payloads into normalized trades
// grouped into per-instrument batches.
type Normalizer struct {
	config  *appconfig.Config
	chans   *channel.Channels
	ctx     context.Context
	wg      *sync.WaitGroup
	mu      sync.RWMutex
	running bool
	log     *logger.Log

	// Batching
	batches   map[string]*models.TradeBatch
	lastFlush map[string]time.Time

	// Metrics
	messagesProcessed int64
	batchesProcessed  int64
	errorsCount       int64
	tradesProcessed   int64
}

func NewNormalizer(cfg *appconfig.Config, chans *channel.Channels) *Normalizer {
	return &Normalizer{
		config:    cfg,
		chans:     chans,
		wg:        &sync.WaitGroup{},
		log:       logger.GetLogger(),
		batches:   make(map[string]*models.TradeBatch),
		lastFlush: make(map[string]time.Time),
	}
}

func (n *Normalizer) Start(ctx context.Context) error {
	n.mu.Lock()
	if n.running {
		n.mu.Unlock()
		return fmt.Errorf("normalizer already running")
	}
	n.running = true
	n.ctx = ctx
	n.mu.Unlock()

	log := n.log.WithComponent("normalizer").WithFields(logger.Fields{"operation": "start"})

	numWorkers := n.config.Processor.MaxWorkers
	if numWorkers < 1 {
		numWorkers = 1
	}
	log.WithFields(logger.Fields{"workers": numWorkers}).Info("starting normalizer workers")

	for i := 0; i < numWorkers; i++ {
		n.wg.Add(1)
		go n.worker(i)
	}

	n.wg.Add(1)
	go n.batchFlusher()

	go n.metricsReporter(ctx)

	log.Info("normalizer started successfully")
	return nil
}

func (n *Normalizer) Stop() {
	n.mu.Lock()
	n.running = false
	n.mu.Unlock()

	n.log.WithComponent("normalizer").Info("stopping normalizer")
	n.wg.Wait()
	n.flushAllBatches()
	n.log.WithComponent("normalizer").Info("normalizer stopped")
}

func (n *Normalizer) worker(workerID int) {
	defer n.wg.Done()

	log := n.log.WithComponent("normalizer").WithFields(logger.Fields{
		"worker_id": workerID,
		"worker":    "normalizer",
	})
	log.Info("starting normalizer worker")

	for {
		select {
		case <-n.ctx.Done():
			log.Info("worker stopped due to context cancellation")
			return
		case rawMsg, ok := <-n.chans.RawTrades:
			if !ok {
				log.Info("raw channel closed, worker stopping")
				return
			}
			processed := n.processMessage(rawMsg)
			n.mu.Lock()
			n.messagesProcessed++
			n.tradesProcessed += int64(processed)
			n.mu.Unlock()
		}
	}
}

func (n *Normalizer) processMessage(rawMsg models.RawTradeMessage) int {
	log := n.log.WithComponent("normalizer").WithFields(logger.Fields{
		"exchange":  rawMsg.Exchange,
		"operation": "process_message",
	})

	var trades []models.Trade
	var err error
	switch rawMsg.Exchange {
	case exchange.Binance:
		trades, err = n.parseBinance(rawMsg)
	case exchange.Coinbase:
		trades, err = n.parseCoinbase(rawMsg)
	case exchange.Kraken:
		trades, err = n.parseKraken(rawMsg)
	default:
		err = fmt.Errorf("no parser for exchange %q", rawMsg.Exchange)
	}
	if err != nil {
		n.mu.Lock()
		n.errorsCount++
		n.mu.Unlock()
		log.WithError(err).Warn("failed to parse trade payload")
		return 0
	}
	if len(trades) == 0 {
		return 0
	}

	for _, t := range trades {
		n.addToBatch(t)
	}
	return len(trades)
}

func (n *Normalizer) parseBinance(rawMsg models.RawTradeMessage) ([]models.Trade, error) {
	var event models.BinanceTradeEvent
	if err := json.Unmarshal(rawMsg.Data, &event); err != nil {
		return nil, err
	}
	data := event.Data
	if data.EventType == "" {
		// Some feeds emit the inner event without the stream wrapper.
		if err := json.Unmarshal(rawMsg.Data, &data); err != nil {
			return nil, err
		}
	}
	if data.EventType != "trade" {
		return nil, nil
	}

	price, err := strconv.ParseFloat(data.Price, 64)
	if err != nil {
		return nil, fmt.Errorf("parse price %q: %w", data.Price, err)
	}
	qty, err := strconv.ParseFloat(data.Quantity, 64)
	if err != nil {
		return nil, fmt.Errorf("parse quantity %q: %w", data.Quantity, err)
	}

	side := "buy"
	if data.IsBuyerMaker {
		side = "sell"
	}

	return []models.Trade{{
		Exchange:   exchange.Binance,
		Instrument: symbols.ToCanonical(exchange.Binance, data.Symbol),
		Timestamp:  time.UnixMilli(data.TradeTime).UTC(),
		Price:      price,
		Quantity:   qty,
		Side:       side,
		TradeID:    strconv.FormatInt(data.TradeID, 10),
	}}, nil
}

func (n *Normalizer) parseCoinbase(rawMsg models.RawTradeMessage) ([]models.Trade, error) {
	var event models.CoinbaseMatchEvent
	if err := json.Unmarshal(rawMsg.Data, &event); err != nil {
		return nil, err
	}
	if event.Type != "match" && event.Type != "last_match" {
		return nil, nil
	}

	price, err := strconv.ParseFloat(event.Price, 64)
	if err != nil {
		return nil, fmt.Errorf("parse price %q: %w", event.Price, err)
	}
	size, err := strconv.ParseFloat(event.Size, 64)
	if err != nil {
		return nil, fmt.Errorf("parse size %q: %w", event.Size, err)
	}
	ts, err := time.Parse(time.RFC3339Nano, event.Time)
	if err != nil {
		return nil, fmt.Errorf("parse time %q: %w", event.Time, err)
	}

	// Coinbase reports the maker side; the aggressor took the opposite side.
	side := "buy"
	if event.Side == "buy" {
		side = "sell"
	}

	return []models.Trade{{
		Exchange:   exchange.Coinbase,
		Instrument: symbols.ToCanonical(exchange.Coinbase, event.ProductID),
		Timestamp:  ts.UTC(),
		Price:      price,
		Quantity:   size,
		Side:       side,
		TradeID:    strconv.FormatInt(event.TradeID, 10),
	}}, nil
}

// parseKraken decodes Kraken's positional trade message:
// [channelID, [[price, volume, time, side, orderType, misc], ...], "trade", pair].
func (n *Normalizer) parseKraken(rawMsg models.RawTradeMessage) ([]models.Trade, error) {
	var parts []json.RawMessage
	if err := json.Unmarshal(rawMsg.Data, &parts); err != nil {
		return nil, err
	}
	if len(parts) < 4 {
		return nil, fmt.Errorf("unexpected kraken message with %d elements", len(parts))
	}

	var channelName string
	if err := json.Unmarshal(parts[len(parts)-2], &channelName); err != nil {
		return nil, fmt.Errorf("parse channel name: %w", err)
	}
	if channelName != "trade" {
		return nil, nil
	}

	var pair string
	if err := json.Unmarshal(parts[len(parts)-1], &pair); err != nil {
		return nil, fmt.Errorf("parse pair: %w", err)
	}

	var rows [][]string
	if err := json.Unmarshal(parts[1], &rows); err != nil {
		return nil, fmt.Errorf("parse trade rows: %w", err)
	}

	instrument := symbols.ToCanonical(exchange.Kraken, pair)
	trades := make([]models.Trade, 0, len(rows))
	for _, row := range rows {
		if len(row) < 4 {
			return nil, fmt.Errorf("unexpected kraken trade row with %d fields", len(row))
		}
		price, err := strconv.ParseFloat(row[0], 64)
		if err != nil {
			return nil, fmt.Errorf("parse price %q: %w", row[0], err)
		}
		volume, err := strconv.ParseFloat(row[1], 64)
		if err != nil {
			return nil, fmt.Errorf("parse volume %q: %w", row[1], err)
		}
		seconds, err := strconv.ParseFloat(row[2], 64)
		if err != nil {
			return nil, fmt.Errorf("parse time %q: %w", row[2], err)
		}

		side := "buy"
		if row[3] == "s" {
			side = "sell"
		}

		trades = append(trades, models.Trade{
			Exchange:   exchange.Kraken,
			Instrument: instrument,
			Timestamp:  time.UnixMicro(int64(seconds * 1e6)).UTC(),
			Price:      price,
			Quantity:   volume,
			Side:       side,
		})
	}
	return trades, nil
}

func (n *Normalizer) addToBatch(trade models.Trade) {
	n.mu.Lock()
	defer n.mu.Unlock()

	batchKey := fmt.Sprintf("%s_%s", trade.Exchange, trade.Instrument)

	batch, exists := n.batches[batchKey]
	if !exists {
		batch = &models.TradeBatch{
			BatchID:     uuid.New().String(),
			Exchange:    trade.Exchange,
			Instrument:  trade.Instrument,
			Trades:      make([]models.Trade, 0, n.config.Processor.BatchSize),
			ProcessedAt: time.Now().UTC(),
		}
		n.batches[batchKey] = batch
		n.lastFlush[batchKey] = time.Now()
	}

	batch.Trades = append(batch.Trades, trade)
	batch.RecordCount = len(batch.Trades)

	if batch.RecordCount >= n.config.Processor.BatchSize {
		n.flushBatch(batchKey)
	}
}

func (n *Normalizer) batchFlusher() {
	defer n.wg.Done()

	ticker := time.NewTicker(1 * time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-n.ctx.Done():
			return
		case <-ticker.C:
			n.mu.RLock()
			running := n.running
			n.mu.RUnlock()
			if !running {
				return
			}
			n.flushTimedOutBatches()
		}
	}
}

func (n *Normalizer) flushTimedOutBatches() {
	n.mu.Lock()
	defer n.mu.Unlock()

	now := time.Now()
	for batchKey, lastFlush := range n.lastFlush {
		if now.Sub(lastFlush) >= n.config.Processor.BatchTimeout {
			n.flushBatch(batchKey)
		}
	}
}

// flushBatch sends a batch downstream. Callers must hold n.mu.
func (n *Normalizer) flushBatch(batchKey string) {
	batch, exists := n.batches[batchKey]
	if !exists || batch.RecordCount == 0 {
		return
	}

	log := n.log.WithComponent("normalizer").WithFields(logger.Fields{
		"batch_id":     batch.BatchID,
		"exchange":     batch.Exchange,
		"instrument":   batch.Instrument,
		"record_count": batch.RecordCount,
		"operation":    "flush_batch",
	})

	if n.chans.SendClean(n.ctx, *batch) {
		n.batchesProcessed++
		delete(n.batches, batchKey)
		delete(n.lastFlush, batchKey)
		log.Debug("batch flushed")
	} else if n.ctx.Err() == nil {
		log.Warn("clean channel is full, batch not sent")
	}
}

func (n *Normalizer) flushAllBatches() {
	n.mu.Lock()
	defer n.mu.Unlock()

	for batchKey := range n.batches {
		n.flushBatch(batchKey)
	}
}

func (n *Normalizer) metricsReporter(ctx context.Context) {
	ticker := time.NewTicker(30 * time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			n.reportMetrics()
		}
	}
}

func (n *Normalizer) reportMetrics() {
	n.mu.RLock()
	messagesProcessed := n.messagesProcessed
	batchesProcessed := n.batchesProcessed
	errorsCount := n.errorsCount
	tradesProcessed := n.tradesProcessed
	activeBatches := len(n.batches)
	n.mu.RUnlock()

	errorRate := float64(0)
	if messagesProcessed+errorsCount > 0 {
		errorRate = float64(errorsCount) / float64(messagesProcessed+errorsCount)
	}

	n.log.WithComponent("normalizer").WithFields(logger.Fields{
		"messages_processed": messagesProcessed,
		"batches_processed":  batchesProcessed,
		"trades_processed":   tradesProcessed,
		"errors_count":       errorsCount,
		"error_rate":         errorRate,
		"active_batches":     activeBatches,
	}).Info("normalizer metrics")
}

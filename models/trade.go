package models

import (
	"time"

	"arbiflow/internal/exchange"
)

// RawTradeMessage represents a raw replayed message before normalization.
// Data holds the untouched exchange payload; Timestamp is the local capture
// timestamp recorded by the historical feed.
type RawTradeMessage struct {
	Exchange  exchange.Exchange
	Symbol    string
	Data      []byte
	Timestamp time.Time
}

// Trade is a single normalized price observation for one instrument on one
// exchange. Instrument uses the canonical symbol form (see internal/symbols).
type Trade struct {
	Exchange   exchange.Exchange `json:"exchange"`
	Instrument string            `json:"instrument"`
	Timestamp  time.Time         `json:"timestamp"`
	Price      float64           `json:"price"`
	Quantity   float64           `json:"quantity"`
	Side       string            `json:"side"` // "buy" or "sell"
	TradeID    string            `json:"trade_id"`
}

// TradeBatch groups normalized trades of one (exchange, instrument) pair for
// handoff between the normalizer and the series collector.
type TradeBatch struct {
	BatchID     string            `json:"batch_id"`
	Exchange    exchange.Exchange `json:"exchange"`
	Instrument  string            `json:"instrument"`
	Trades      []Trade           `json:"trades"`
	RecordCount int               `json:"record_count"`
	ProcessedAt time.Time         `json:"processed_at"`
}

// BinanceTradeEvent is the payload of a Binance trade stream message.
type BinanceTradeEvent struct {
	Stream string `json:"stream"`
	Data   struct {
		EventType    string `json:"e"`
		Symbol       string `json:"s"`
		TradeID      int64  `json:"t"`
		Price        string `json:"p"`
		Quantity     string `json:"q"`
		TradeTime    int64  `json:"T"`
		IsBuyerMaker bool   `json:"m"`
	} `json:"data"`
}

// CoinbaseMatchEvent is a Coinbase "match" channel message, emitted once per
// executed trade.
type CoinbaseMatchEvent struct {
	Type      string `json:"type"`
	TradeID   int64  `json:"trade_id"`
	ProductID string `json:"product_id"`
	Price     string `json:"price"`
	Size      string `json:"size"`
	Side      string `json:"side"`
	Time      string `json:"time"`
}

// KrakenTradeEvent mirrors Kraken's positional trade message:
// [channelID, [[price, volume, time, side, orderType, misc], ...], channelName, pair].
// Payloads are decoded from the raw JSON array in the normalizer.
type KrakenTradeEvent struct {
	ChannelID int64
	Trades    [][]string
	Channel   string
	Pair      string
}

package moex

import (
	"context"
	"time"
)

// Candle is one immutable OHLCV bar in exchange-local time.
type Candle struct {
	Instrument string    `json:"instrument"`
	OpenTime   time.Time `json:"open_time"`
	Open       float64   `json:"open"`
	High       float64   `json:"high"`
	Low        float64   `json:"low"`
	Close      float64   `json:"close"`
	Volume     float64   `json:"volume"`
	Interval   string    `json:"interval"`
	Complete   bool      `json:"complete"`
}

// OrderBook is a top-of-book summary.
type OrderBook struct {
	Instrument    string  `json:"instrument"`
	BestBid       float64 `json:"best_bid"`
	BestAsk       float64 `json:"best_ask"`
	BidVolume     float64 `json:"bid_volume"`
	AskVolume     float64 `json:"ask_volume"`
	SpreadPercent float64 `json:"spread_percent"`
}

// InstrumentMeta is static reference data for a listed instrument.
type InstrumentMeta struct {
	Instrument string `json:"instrument"`
	Name       string `json:"name"`
	LotSize    int    `json:"lot_size"`
	Currency   string `json:"currency"`
	Tradable   bool   `json:"tradable"`
}

// Supported candle intervals.
const (
	Interval1Min  = "1m"
	Interval5Min  = "5m"
	Interval15Min = "15m"
	IntervalHour  = "hour"
	IntervalDay   = "day"
)

// IntervalDuration returns the bar length for a supported interval,
// or zero for an unknown one.
func IntervalDuration(interval string) time.Duration {
	switch interval {
	case Interval1Min:
		return time.Minute
	case Interval5Min:
		return 5 * time.Minute
	case Interval15Min:
		return 15 * time.Minute
	case IntervalHour:
		return time.Hour
	case IntervalDay:
		return 24 * time.Hour
	default:
		return 0
	}
}

// MarketDataProvider is the narrow adapter contract the scanner consumes.
// Implementations are pure I/O; candles are returned newest last.
type MarketDataProvider interface {
	LastPrice(ctx context.Context, instrument string) (float64, error)
	Candles(ctx context.Context, instrument, interval string, count int) ([]Candle, error)
	OrderBook(ctx context.Context, instrument string, depth int) (*OrderBook, error)
	InstrumentMeta(ctx context.Context, instrument string) (*InstrumentMeta, error)
}

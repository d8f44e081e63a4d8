package scanner

import (
	"context"
	"fmt"
	"math"

	"moex-panic-scanner/internal/detector"
	"moex-panic-scanner/internal/indicators"
	"moex-panic-scanner/internal/moex"
)

// minCandles is the smallest window the indicators can work with.
const minCandles = 30

// PrepareWindow builds the detector input for one instrument: candle window
// through the cache layers, indicator scalars, last price and spread.
// realTime forces a fresh adapter fetch past the caches.
func (s *Scanner) PrepareWindow(ctx context.Context, instrument string, realTime bool) (detector.Window, error) {
	var w detector.Window

	candles, err := s.candleWindow(ctx, instrument, realTime)
	if err != nil {
		return w, err
	}
	if len(candles) < minCandles {
		return w, fmt.Errorf("insufficient candles for %s: %d < %d", instrument, len(candles), minCandles)
	}

	closes := make([]float64, len(candles))
	highs := make([]float64, len(candles))
	lows := make([]float64, len(candles))
	volumes := make([]float64, len(candles))
	for i, c := range candles {
		closes[i] = c.Close
		highs[i] = c.High
		lows[i] = c.Low
		volumes[i] = c.Volume
	}

	w.Instrument = instrument
	w.Closes = closes
	w.Highs = highs
	w.Lows = lows
	w.Volumes = volumes

	w.RSI7 = lastOrNaN(indicators.CalculateRSI(closes, 7))
	w.RSI14 = lastOrNaN(indicators.CalculateRSI(closes, 14))
	w.RSI21 = lastOrNaN(indicators.CalculateRSI(closes, 21))
	w.SMA20 = lastOrNaN(indicators.CalculateSMA(closes, 20))

	atrSeries := indicators.CalculateATR(highs, lows, closes, 14)
	w.ATR = lastOrNaN(atrSeries)
	w.AvgATR = tailMean(atrSeries, 20)

	w.CurrentVolume = volumes[len(volumes)-1]
	w.AvgVolume = tailMeanRaw(volumes[:len(volumes)-1], 20)
	w.VolumeRatio = indicators.VolumeRatio(w.CurrentVolume, tailSlice(volumes[:len(volumes)-1], 20))

	w.LastPrice = s.lastPrice(ctx, instrument, closes[len(closes)-1], realTime)
	w.SpreadPercent = s.spreadPercent(ctx, instrument)

	return w, nil
}

// candleWindow walks cache layers: in-process, Redis, then the adapter.
func (s *Scanner) candleWindow(ctx context.Context, instrument string, realTime bool) ([]moex.Candle, error) {
	if !realTime {
		if candles, ok := s.cache.GetCandles(instrument, s.cfg.CandleInterval); ok {
			return candles, nil
		}
		if s.redis != nil {
			if candles, ok := s.redis.GetCandles(ctx, instrument, s.cfg.CandleInterval); ok {
				s.cache.SetCandles(instrument, s.cfg.CandleInterval, candles, s.cfg.ScanInterval)
				return candles, nil
			}
		}
	}

	candles, err := s.provider.Candles(ctx, instrument, s.cfg.CandleInterval, s.cfg.CandleCount)
	if err != nil {
		return nil, fmt.Errorf("fetch candles for %s: %w", instrument, err)
	}
	s.cache.SetCandles(instrument, s.cfg.CandleInterval, candles, s.cfg.ScanInterval)
	if s.redis != nil {
		s.redis.SetCandles(ctx, instrument, s.cfg.CandleInterval, candles)
	}
	return candles, nil
}

func (s *Scanner) lastPrice(ctx context.Context, instrument string, fallback float64, realTime bool) float64 {
	if !realTime {
		if p, ok := s.cache.GetPrice(instrument); ok {
			return p
		}
	}
	p, err := s.provider.LastPrice(ctx, instrument)
	if err != nil || p <= 0 {
		return fallback
	}
	s.cache.SetPrice(instrument, p, s.cfg.ScanInterval/2)
	if s.redis != nil {
		s.redis.SetPrice(ctx, instrument, p)
	}
	return p
}

// spreadPercent is best-effort; an unavailable order book falls back to the
// default spread.
func (s *Scanner) spreadPercent(ctx context.Context, instrument string) float64 {
	book, err := s.provider.OrderBook(ctx, instrument, 10)
	if err != nil || book == nil {
		return detector.DefaultSpreadPercent
	}
	if book.SpreadPercent <= 0 {
		return detector.DefaultSpreadPercent
	}
	return book.SpreadPercent
}

func lastOrNaN(series []float64) float64 {
	if v, ok := indicators.LastValid(series); ok {
		return v
	}
	return math.NaN()
}

// tailMean averages the last n defined entries of a series.
func tailMean(series []float64, n int) float64 {
	sum, count := 0.0, 0
	for i := len(series) - 1; i >= 0 && count < n; i-- {
		if math.IsNaN(series[i]) {
			continue
		}
		sum += series[i]
		count++
	}
	if count == 0 {
		return math.NaN()
	}
	return sum / float64(count)
}

func tailMeanRaw(values []float64, n int) float64 {
	tail := tailSlice(values, n)
	if len(tail) == 0 {
		return 0
	}
	sum := 0.0
	for _, v := range tail {
		sum += v
	}
	return sum / float64(len(tail))
}

func tailSlice(values []float64, n int) []float64 {
	if len(values) > n {
		return values[len(values)-n:]
	}
	return values
}

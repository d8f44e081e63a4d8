package indicators

import "math"

// Series-producing indicator functions. Every function returns a fresh slice
// of the same length as its input; entries that cannot be computed yet (the
// warm-up prefix) are NaN. Inputs are never mutated.

// ============================================================================
// MOVING AVERAGES
// ============================================================================

// CalculateSMA calculates the Simple Moving Average series.
// Entries before index period-1 are NaN.
func CalculateSMA(values []float64, period int) []float64 {
	out := nanSlice(len(values))
	if period <= 0 || len(values) < period {
		return out
	}

	sum := 0.0
	for i, v := range values {
		sum += v
		if i >= period {
			sum -= values[i-period]
		}
		if i >= period-1 {
			out[i] = sum / float64(period)
		}
	}
	return out
}

// CalculateEMA calculates the Exponential Moving Average series, seeded with
// the SMA of the first period values.
func CalculateEMA(values []float64, period int) []float64 {
	out := nanSlice(len(values))
	if period <= 0 || len(values) < period {
		return out
	}

	sum := 0.0
	for i := 0; i < period; i++ {
		sum += values[i]
	}
	ema := sum / float64(period)
	out[period-1] = ema

	multiplier := 2.0 / float64(period+1)
	for i := period; i < len(values); i++ {
		ema = (values[i]-ema)*multiplier + ema
		out[i] = ema
	}
	return out
}

// ============================================================================
// RSI (Relative Strength Index)
// ============================================================================

// CalculateRSI calculates the Wilder-smoothed RSI series.
// The first period entries are NaN. A window with zero average loss yields
// 100, zero average gain yields 0.
func CalculateRSI(closes []float64, period int) []float64 {
	out := nanSlice(len(closes))
	if period <= 0 || len(closes) < period+1 {
		return out
	}

	gains := 0.0
	losses := 0.0
	for i := 1; i <= period; i++ {
		change := closes[i] - closes[i-1]
		if change > 0 {
			gains += change
		} else {
			losses += -change
		}
	}

	avgGain := gains / float64(period)
	avgLoss := losses / float64(period)
	out[period] = rsiFromAverages(avgGain, avgLoss)

	for i := period + 1; i < len(closes); i++ {
		change := closes[i] - closes[i-1]
		gain, loss := 0.0, 0.0
		if change > 0 {
			gain = change
		} else {
			loss = -change
		}
		avgGain = (avgGain*float64(period-1) + gain) / float64(period)
		avgLoss = (avgLoss*float64(period-1) + loss) / float64(period)
		out[i] = rsiFromAverages(avgGain, avgLoss)
	}
	return out
}

func rsiFromAverages(avgGain, avgLoss float64) float64 {
	if avgLoss == 0 {
		return 100.0
	}
	if avgGain == 0 {
		return 0.0
	}
	rs := avgGain / avgLoss
	return 100.0 - 100.0/(1.0+rs)
}

// ============================================================================
// ATR (Average True Range)
// ============================================================================

// CalculateATR calculates the Wilder-smoothed Average True Range series.
// The first period entries are NaN; the first defined value is the arithmetic
// mean of the first period true ranges.
func CalculateATR(highs, lows, closes []float64, period int) []float64 {
	n := len(closes)
	out := nanSlice(n)
	if period <= 0 || n < period+1 || len(highs) != n || len(lows) != n {
		return out
	}

	trSum := 0.0
	for i := 1; i <= period; i++ {
		trSum += trueRange(highs[i], lows[i], closes[i-1])
	}
	atr := trSum / float64(period)
	out[period] = atr

	for i := period + 1; i < n; i++ {
		tr := trueRange(highs[i], lows[i], closes[i-1])
		atr = (atr*float64(period-1) + tr) / float64(period)
		out[i] = atr
	}
	return out
}

func trueRange(high, low, prevClose float64) float64 {
	tr := high - low
	if d := math.Abs(high - prevClose); d > tr {
		tr = d
	}
	if d := math.Abs(low - prevClose); d > tr {
		tr = d
	}
	return tr
}

// ============================================================================
// VOLUME
// ============================================================================

// VolumeRatio compares the current volume against the mean of the historical
// volumes. Returns 1.0 when no meaningful history is available.
func VolumeRatio(currentVolume float64, historicalVolumes []float64) float64 {
	if len(historicalVolumes) == 0 {
		return 1.0
	}
	sum := 0.0
	for _, v := range historicalVolumes {
		sum += v
	}
	mean := sum / float64(len(historicalVolumes))
	if mean == 0 {
		return 1.0
	}
	return currentVolume / mean
}

// ============================================================================
// HELPERS
// ============================================================================

// LastValid returns the last non-NaN entry of a series.
func LastValid(series []float64) (float64, bool) {
	for i := len(series) - 1; i >= 0; i-- {
		if !math.IsNaN(series[i]) {
			return series[i], true
		}
	}
	return 0, false
}

func nanSlice(n int) []float64 {
	out := make([]float64, n)
	for i := range out {
		out[i] = math.NaN()
	}
	return out
}

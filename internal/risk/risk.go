package risk

import (
	"fmt"
	"math"
)

// Level is the categorical risk grade derived from the score.
type Level string

const (
	LevelVeryLow  Level = "very_low"
	LevelLow      Level = "low"
	LevelModerate Level = "moderate"
	LevelHigh     Level = "high"
	LevelVeryHigh Level = "very_high"
	LevelExtreme  Level = "extreme"
)

// DefaultATRNormal is the ATR considered ordinary when no override is set.
const DefaultATRNormal = 2.0

// Metrics is the combined risk assessment attached to a signal.
type Metrics struct {
	Score               float64 `json:"score"`
	Level               Level   `json:"level"`
	RSIComponent        float64 `json:"rsi_component"`
	VolumeComponent     float64 `json:"volume_component"`
	VolatilityComponent float64 `json:"volatility_component"`
	Interpretation      string  `json:"interpretation"`
}

// Score combines RSI deviation, volume ratio and ATR into a 0-100 risk
// score. Purely arithmetic on its inputs.
func Score(rsi, volumeRatio, atr, atrNormal float64, signalType string) Metrics {
	if atrNormal <= 0 {
		atrNormal = DefaultATRNormal
	}

	rsiComp := math.Abs(rsi-50.0) / 50.0
	if rsiComp > 1.0 {
		// Soft overflow for out-of-range RSI inputs.
		rsiComp = 1.0 + (rsiComp-1.0)*0.5
	}
	rsiScore := rsiComp
	if rsiScore > 1.0 {
		rsiScore = 1.0
	}

	volComp := clip(math.Log2(volumeRatio+1.0), 0, 2) / 2.0
	atrComp := clip(atr/atrNormal, 0, 3) / 3.0

	score := 100.0 * rsiScore * volComp * atrComp
	level := levelFor(score)

	return Metrics{
		Score:               score,
		Level:               level,
		RSIComponent:        rsiComp,
		VolumeComponent:     volComp,
		VolatilityComponent: atrComp,
		Interpretation:      interpret(level, signalType, rsiScore, volComp, atrComp),
	}
}

func levelFor(score float64) Level {
	switch {
	case score <= 10:
		return LevelVeryLow
	case score <= 25:
		return LevelLow
	case score <= 50:
		return LevelModerate
	case score <= 75:
		return LevelHigh
	case score <= 90:
		return LevelVeryHigh
	default:
		return LevelExtreme
	}
}

func interpret(level Level, signalType string, rsiComp, volComp, atrComp float64) string {
	dominant := "RSI deviation"
	if volComp > rsiComp && volComp >= atrComp {
		dominant = "volume surge"
	} else if atrComp > rsiComp && atrComp > volComp {
		dominant = "volatility"
	}
	return fmt.Sprintf("%s risk on %s signal, driven mostly by %s", levelText(level), signalType, dominant)
}

func levelText(l Level) string {
	switch l {
	case LevelVeryLow:
		return "very low"
	case LevelLow:
		return "low"
	case LevelModerate:
		return "moderate"
	case LevelHigh:
		return "high"
	case LevelVeryHigh:
		return "very high"
	default:
		return "extreme"
	}
}

func clip(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

package detector

import (
	"time"

	"moex-panic-scanner/internal/clusters"
	"moex-panic-scanner/internal/filters"
	"moex-panic-scanner/internal/risk"
)

// SignalType distinguishes oversold panic from overbought greed.
type SignalType string

const (
	SignalPanic SignalType = "panic"
	SignalGreed SignalType = "greed"
)

// BaseLevel is the pre-filter grading from multi-period RSI confirmation.
type BaseLevel string

const (
	BaseStrong BaseLevel = "strong"
	BaseGood   BaseLevel = "good"
	BaseUrgent BaseLevel = "urgent"
	BaseNone   BaseLevel = "none"
)

// FinalLevel is the graded output after volume promotion and filter
// downgrades.
type FinalLevel string

const (
	LevelRed    FinalLevel = "red"
	LevelYellow FinalLevel = "yellow"
	LevelWhite  FinalLevel = "white"
	LevelIgnore FinalLevel = "ignore"
)

// DefaultSpreadPercent is assumed when the order book is unavailable.
const DefaultSpreadPercent = 0.1

// LevelThresholds is one row of the grading table.
type LevelThresholds struct {
	RSIBuy    float64 `json:"rsi_buy"`
	RSISell   float64 `json:"rsi_sell"`
	VolumeMin float64 `json:"volume_min"`
}

// Thresholds holds the full grading table. Only the white row gates entry;
// red/yellow/white grading is realized through multi-period confirmation
// and filter downgrades.
type Thresholds struct {
	Red    LevelThresholds `json:"red"`
	Yellow LevelThresholds `json:"yellow"`
	White  LevelThresholds `json:"white"`
}

func DefaultThresholds() Thresholds {
	return Thresholds{
		Red:    LevelThresholds{RSIBuy: 25, RSISell: 75, VolumeMin: 2.0},
		Yellow: LevelThresholds{RSIBuy: 30, RSISell: 70, VolumeMin: 1.5},
		White:  LevelThresholds{RSIBuy: 35, RSISell: 65, VolumeMin: 1.2},
	}
}

// Window is the prepared per-instrument input for one detector invocation.
// Scalar indicator values are NaN when not computable from the data at hand.
type Window struct {
	Instrument string

	Closes  []float64
	Highs   []float64
	Lows    []float64
	Volumes []float64

	RSI7  float64
	RSI14 float64
	RSI21 float64

	ATR    float64
	AvgATR float64
	SMA20  float64

	CurrentVolume float64
	AvgVolume     float64
	VolumeRatio   float64

	LastPrice     float64
	SpreadPercent float64
}

// PanicSignal is the fully-populated detection result.
type PanicSignal struct {
	ID         int64      `json:"id,omitempty"`
	Instrument string     `json:"instrument"`
	DetectedAt time.Time  `json:"detected_at"`
	SignalType SignalType `json:"signal_type"`

	RSI7  float64 `json:"rsi7,omitempty"`
	RSI14 float64 `json:"rsi14"`
	RSI21 float64 `json:"rsi21,omitempty"`

	VolumeRatio   float64 `json:"volume_ratio"`
	CurrentVolume float64 `json:"current_volume,omitempty"`
	AvgVolume     float64 `json:"avg_volume,omitempty"`

	BaseLevel  BaseLevel  `json:"base_level"`
	FinalLevel FinalLevel `json:"final_level"`

	PassedFilters []filters.Result `json:"passed_filters"`
	FailedFilters []filters.Result `json:"failed_filters"`

	Price         float64 `json:"price,omitempty"`
	ATR           float64 `json:"atr,omitempty"`
	SMA20         float64 `json:"sma20,omitempty"`
	SpreadPercent float64 `json:"spread_percent"`

	VolumeClusters []clusters.Cluster `json:"volume_clusters"`
	ClusterSummary string             `json:"cluster_summary"`

	RiskScore          float64 `json:"risk_score"`
	RiskLevel          risk.Level `json:"risk_level"`
	RiskInterpretation string  `json:"risk_interpretation"`

	Interpretation string `json:"interpretation"`
	Recommendation string `json:"recommendation"`
	RiskLevelText  string `json:"risk_level_text"`
}

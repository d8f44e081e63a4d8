package filters

import (
	"context"
	"fmt"
)

// Input is the prepared per-instrument snapshot the filters evaluate.
// SignalType is "panic" or "greed".
type Input struct {
	Instrument    string
	SignalType    string
	Price         float64
	SMA20         float64
	ATR           float64
	AvgATR        float64
	VolumeRatio   float64
	CurrentVolume float64
}

// Filter is a single pass/fail predicate with a short reason.
type Filter interface {
	Name() string
	Check(ctx context.Context, in Input) (passed bool, reason string)
}

// Result records one filter outcome for downgrade accounting.
type Result struct {
	Name   string `json:"name"`
	Reason string `json:"reason"`
}

// Run evaluates filters in order and splits outcomes into passed and failed.
func Run(ctx context.Context, fs []Filter, in Input) (passed, failed []Result) {
	for _, f := range fs {
		ok, reason := f.Check(ctx, in)
		r := Result{Name: f.Name(), Reason: reason}
		if ok {
			passed = append(passed, r)
		} else {
			failed = append(failed, r)
		}
	}
	return passed, failed
}

// ============================================================================
// VOLATILITY
// ============================================================================

// VolatilityConfig bounds how quiet an instrument may be before its signals
// are downgraded.
type VolatilityConfig struct {
	MinRatio          float64 // ATR relative to its own average
	MinAbsoluteATRPct float64 // ATR as a percentage of price
}

func DefaultVolatilityConfig() VolatilityConfig {
	return VolatilityConfig{MinRatio: 0.8, MinAbsoluteATRPct: 0.5}
}

type VolatilityFilter struct {
	cfg VolatilityConfig
}

func NewVolatilityFilter(cfg VolatilityConfig) *VolatilityFilter {
	if cfg.MinRatio <= 0 {
		cfg.MinRatio = 0.8
	}
	if cfg.MinAbsoluteATRPct <= 0 {
		cfg.MinAbsoluteATRPct = 0.5
	}
	return &VolatilityFilter{cfg: cfg}
}

func (f *VolatilityFilter) Name() string { return "volatility" }

func (f *VolatilityFilter) Check(_ context.Context, in Input) (bool, string) {
	if in.Price <= 0 {
		return false, "price unavailable"
	}
	if in.AvgATR > 0 && in.ATR < f.cfg.MinRatio*in.AvgATR {
		return false, fmt.Sprintf("ATR %.4f below %.1f%% of average %.4f", in.ATR, f.cfg.MinRatio*100, in.AvgATR)
	}
	atrPct := in.ATR / in.Price * 100.0
	if atrPct < f.cfg.MinAbsoluteATRPct {
		return false, fmt.Sprintf("ATR %.2f%% of price below %.2f%% minimum", atrPct, f.cfg.MinAbsoluteATRPct)
	}
	return true, fmt.Sprintf("ATR %.2f%% of price", atrPct)
}

// ============================================================================
// TREND
// ============================================================================

// TrendConfig controls whether the implied action must align with the
// price/SMA trend.
type TrendConfig struct {
	MAPeriod              int
	RequireTrendAlignment bool
}

func DefaultTrendConfig() TrendConfig {
	return TrendConfig{MAPeriod: 20, RequireTrendAlignment: true}
}

type TrendFilter struct {
	cfg TrendConfig
}

func NewTrendFilter(cfg TrendConfig) *TrendFilter {
	if cfg.MAPeriod <= 0 {
		cfg.MAPeriod = 20
	}
	return &TrendFilter{cfg: cfg}
}

func (f *TrendFilter) Name() string { return "trend" }

// Check maps panic to a buy and greed to a sell, then requires the price to
// sit on the favorable side of the moving average.
func (f *TrendFilter) Check(_ context.Context, in Input) (bool, string) {
	if !f.cfg.RequireTrendAlignment {
		return true, "trend alignment not required"
	}
	if in.SMA20 <= 0 {
		return false, "moving average unavailable"
	}

	switch in.SignalType {
	case "panic": // implied buy
		if in.Price > in.SMA20 {
			return true, fmt.Sprintf("price %.2f above SMA%d %.2f", in.Price, f.cfg.MAPeriod, in.SMA20)
		}
		return false, fmt.Sprintf("price %.2f not above SMA%d %.2f", in.Price, f.cfg.MAPeriod, in.SMA20)
	case "greed": // implied sell
		if in.Price < in.SMA20 {
			return true, fmt.Sprintf("price %.2f below SMA%d %.2f", in.Price, f.cfg.MAPeriod, in.SMA20)
		}
		return false, fmt.Sprintf("price %.2f not below SMA%d %.2f", in.Price, f.cfg.MAPeriod, in.SMA20)
	default:
		return false, fmt.Sprintf("unknown signal type %q", in.SignalType)
	}
}

// ============================================================================
// VOLUME
// ============================================================================

// AvgVolumeFunc fetches the average volume for an instrument when the input
// carries no precomputed ratio. Implementations cache with a 1-hour TTL.
type AvgVolumeFunc func(ctx context.Context, instrument string) (float64, error)

type VolumeConfig struct {
	MinVolumeRatio float64
}

func DefaultVolumeConfig() VolumeConfig {
	return VolumeConfig{MinVolumeRatio: 1.5}
}

type VolumeFilter struct {
	cfg       VolumeConfig
	avgVolume AvgVolumeFunc
}

// NewVolumeFilter creates the volume filter. avgVolume may be nil; the
// filter then fails closed when the input carries no ratio.
func NewVolumeFilter(cfg VolumeConfig, avgVolume AvgVolumeFunc) *VolumeFilter {
	if cfg.MinVolumeRatio <= 0 {
		cfg.MinVolumeRatio = 1.5
	}
	return &VolumeFilter{cfg: cfg, avgVolume: avgVolume}
}

func (f *VolumeFilter) Name() string { return "volume" }

func (f *VolumeFilter) Check(ctx context.Context, in Input) (bool, string) {
	ratio := in.VolumeRatio
	if ratio <= 0 {
		if f.avgVolume == nil {
			return false, "volume ratio unavailable"
		}
		avg, err := f.avgVolume(ctx, in.Instrument)
		if err != nil || avg <= 0 {
			return false, "average volume unavailable"
		}
		ratio = in.CurrentVolume / avg
	}
	if ratio < f.cfg.MinVolumeRatio {
		return false, fmt.Sprintf("volume ratio %.2f below %.2f", ratio, f.cfg.MinVolumeRatio)
	}
	return true, fmt.Sprintf("volume ratio %.2f", ratio)
}

// ============================================================================
// CHAIN
// ============================================================================

// Chain returns the downgrade filters in their fixed evaluation order.
func Chain(vol *VolatilityFilter, trend *TrendFilter, volume *VolumeFilter) []Filter {
	return []Filter{vol, trend, volume}
}

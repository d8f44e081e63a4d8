package detector

import (
	"context"
	"math"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"moex-panic-scanner/internal/clusters"
	"moex-panic-scanner/internal/filters"
	"moex-panic-scanner/internal/risk"
)

// MarketClock gates detection on exchange trading time. Satisfied by
// *calendar.Calendar.
type MarketClock interface {
	Now() time.Time
	IsMarketOpenAt(t time.Time) (bool, string)
	InActiveZone(t time.Time) bool
}

// Detector runs the ten-step grading pipeline over a prepared window and
// produces at most one signal per invocation.
type Detector struct {
	thresholds Thresholds
	chain      []filters.Filter
	analyzer   *clusters.Analyzer
	atrNormal  float64
	clock      MarketClock
	log        zerolog.Logger
}

// Config assembles a detector from its collaborators.
type Config struct {
	Thresholds Thresholds
	Filters    []filters.Filter
	Analyzer   *clusters.Analyzer
	ATRNormal  float64
	Clock      MarketClock
}

func New(cfg Config) *Detector {
	if cfg.ATRNormal <= 0 {
		cfg.ATRNormal = risk.DefaultATRNormal
	}
	if cfg.Analyzer == nil {
		cfg.Analyzer = clusters.NewAnalyzer(clusters.DefaultConfig())
	}
	return &Detector{
		thresholds: cfg.Thresholds,
		chain:      cfg.Filters,
		analyzer:   cfg.Analyzer,
		atrNormal:  cfg.ATRNormal,
		clock:      cfg.Clock,
		log:        log.With().Str("component", "detector").Logger(),
	}
}

// Detect grades one instrument window. A nil signal with a non-empty reason
// is an expected drop, not an error; panics in numerical steps degrade to a
// drop so one bad instrument never stalls a batch.
func (d *Detector) Detect(ctx context.Context, w Window) (sig *PanicSignal, dropReason string) {
	defer func() {
		if r := recover(); r != nil {
			d.log.Error().Str("instrument", w.Instrument).Interface("panic", r).Msg("detector step failed")
			sig, dropReason = nil, "internal error"
		}
	}()

	now := d.clock.Now()

	// Step 1: market time.
	if open, reason := d.clock.IsMarketOpenAt(now); !open {
		return nil, "market closed: " + reason
	}
	if !d.clock.InActiveZone(now) {
		return nil, "outside active trading zone"
	}

	// Step 2: data completeness.
	if w.Instrument == "" || !finite(w.RSI14) || w.VolumeRatio <= 0 || w.LastPrice <= 0 {
		return nil, "insufficient data"
	}

	// Step 3: signal type from RSI(14) against the entry thresholds.
	gate := d.thresholds.White
	var sigType SignalType
	switch {
	case w.RSI14 <= gate.RSIBuy:
		sigType = SignalPanic
	case w.RSI14 >= gate.RSISell:
		sigType = SignalGreed
	default:
		return nil, "rsi in normal range"
	}

	// Step 4: minimum volume.
	if w.VolumeRatio < gate.VolumeMin {
		return nil, "volume insufficient"
	}

	// Step 5: multi-period confirmation.
	base := d.baseLevel(sigType, w)
	if base == BaseNone {
		return nil, "no multi-period confirmation"
	}

	// Step 6: volume bump.
	level := base
	if w.VolumeRatio >= d.thresholds.Red.VolumeMin {
		level = promote(level)
	}

	// Step 7: context filters, one downgrade per failure.
	passed, failed := filters.Run(ctx, d.chain, filters.Input{
		Instrument:    w.Instrument,
		SignalType:    string(sigType),
		Price:         w.LastPrice,
		SMA20:         nanToZero(w.SMA20),
		ATR:           nanToZero(w.ATR),
		AvgATR:        nanToZero(w.AvgATR),
		VolumeRatio:   w.VolumeRatio,
		CurrentVolume: w.CurrentVolume,
	})
	for range failed {
		level = demote(level)
	}

	// Step 8: finalize.
	final := finalize(level)
	if final == LevelIgnore {
		return nil, "filtered out"
	}

	spread := w.SpreadPercent
	if spread <= 0 {
		spread = DefaultSpreadPercent
	}

	s := &PanicSignal{
		Instrument:    w.Instrument,
		DetectedAt:    now,
		SignalType:    sigType,
		RSI7:          nanToZero(w.RSI7),
		RSI14:         w.RSI14,
		RSI21:         nanToZero(w.RSI21),
		VolumeRatio:   w.VolumeRatio,
		CurrentVolume: w.CurrentVolume,
		AvgVolume:     w.AvgVolume,
		BaseLevel:     base,
		FinalLevel:    final,
		PassedFilters: passed,
		FailedFilters: failed,
		Price:         w.LastPrice,
		ATR:           nanToZero(w.ATR),
		SMA20:         nanToZero(w.SMA20),
		SpreadPercent: spread,
	}

	// Step 9: volume clusters.
	s.VolumeClusters = d.analyzer.Analyze(w.Closes, w.Volumes, w.LastPrice)
	s.ClusterSummary = clusters.Summarize(s.VolumeClusters)

	// Step 10: risk and prose.
	m := risk.Score(w.RSI14, w.VolumeRatio, nanToZero(w.ATR), d.atrNormal, string(sigType))
	s.RiskScore = m.Score
	s.RiskLevel = m.Level
	s.RiskInterpretation = m.Interpretation
	s.Interpretation = interpretation(sigType, final, w.RSI14)
	s.Recommendation = recommendation(sigType, final)
	s.RiskLevelText = riskLevelText(final)

	if sigType == SignalPanic && w.RSI14 > 50 {
		d.log.Warn().Str("instrument", w.Instrument).Float64("rsi14", w.RSI14).
			Msg("panic signal with RSI above midline")
	}

	return s, ""
}

// baseLevel applies the multi-period confirmation table. Missing periods
// count as not confirming.
func (d *Detector) baseLevel(t SignalType, w Window) BaseLevel {
	gate := d.thresholds.White
	outside := func(x float64) bool {
		if !finite(x) {
			return false
		}
		if t == SignalPanic {
			return x < gate.RSIBuy
		}
		return x > gate.RSISell
	}

	o7, o14, o21 := outside(w.RSI7), outside(w.RSI14), outside(w.RSI21)
	switch {
	case o7 && o14 && o21:
		return BaseStrong
	case (o7 && o14) || (o14 && o21):
		return BaseGood
	case o14:
		return BaseUrgent
	default:
		return BaseNone
	}
}

func promote(l BaseLevel) BaseLevel {
	switch l {
	case BaseUrgent:
		return BaseGood
	case BaseGood:
		return BaseStrong
	default:
		return l
	}
}

func demote(l BaseLevel) BaseLevel {
	switch l {
	case BaseStrong:
		return BaseGood
	case BaseGood:
		return BaseUrgent
	default:
		return BaseNone
	}
}

func finalize(l BaseLevel) FinalLevel {
	switch l {
	case BaseStrong:
		return LevelRed
	case BaseGood:
		return LevelYellow
	case BaseUrgent:
		return LevelWhite
	default:
		return LevelIgnore
	}
}

func finite(x float64) bool {
	return !math.IsNaN(x) && !math.IsInf(x, 0)
}

func nanToZero(x float64) float64 {
	if !finite(x) {
		return 0
	}
	return x
}

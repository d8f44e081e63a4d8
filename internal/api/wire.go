package api

import (
	"time"

	"moex-panic-scanner/internal/clusters"
	"moex-panic-scanner/internal/detector"
	"moex-panic-scanner/internal/filters"
	"moex-panic-scanner/internal/scanner"
)

// Wire-level enumerations.
const (
	WireLevelStrong   = "STRONG"   // red
	WireLevelModerate = "MODERATE" // yellow
	WireLevelUrgent   = "URGENT"   // white
	WireLevelIgnore   = "IGNORE"

	WireTypePanic   = "PANIC"
	WireTypeGreed   = "GREED"
	WireTypeNeutral = "NEUTRAL"
)

// WireSignal is the JSON shape of one signal on the API surface.
type WireSignal struct {
	ID         int64  `json:"id,omitempty"`
	Instrument string `json:"instrument"`
	DetectedAt string `json:"detected_at"`
	SignalType string `json:"signal_type"`
	Level      string `json:"level"`
	BaseLevel  string `json:"base_level"`

	RSI7  float64 `json:"rsi7,omitempty"`
	RSI14 float64 `json:"rsi14"`
	RSI21 float64 `json:"rsi21,omitempty"`

	VolumeRatio   float64 `json:"volume_ratio"`
	Price         float64 `json:"price,omitempty"`
	ATR           float64 `json:"atr,omitempty"`
	SMA20         float64 `json:"sma20,omitempty"`
	SpreadPercent float64 `json:"spread_percent"`

	PassedFilters  []filters.Result   `json:"passed_filters"`
	FailedFilters  []filters.Result   `json:"failed_filters"`
	Clusters       []clusters.Cluster `json:"volume_clusters"`
	ClusterSummary string             `json:"cluster_summary"`

	RiskScore          float64 `json:"risk_score"`
	RiskLevel          string  `json:"risk_level"`
	RiskInterpretation string  `json:"risk_interpretation"`
	Interpretation     string  `json:"interpretation"`
	Recommendation     string  `json:"recommendation"`
	RiskLevelText      string  `json:"risk_level_text"`
}

// WireScanResult is the response of the scan operation.
type WireScanResult struct {
	ScanID       string       `json:"scan_id"`
	ScannedAt    string       `json:"scanned_at"`
	TotalScanned int          `json:"total_scanned"`
	SignalsFound int          `json:"signals_found"`
	Signals      []WireSignal `json:"signals"`
}

func wireLevel(l detector.FinalLevel) string {
	switch l {
	case detector.LevelRed:
		return WireLevelStrong
	case detector.LevelYellow:
		return WireLevelModerate
	case detector.LevelWhite:
		return WireLevelUrgent
	default:
		return WireLevelIgnore
	}
}

func wireType(t detector.SignalType) string {
	switch t {
	case detector.SignalPanic:
		return WireTypePanic
	case detector.SignalGreed:
		return WireTypeGreed
	default:
		return WireTypeNeutral
	}
}

func toWireSignal(s *detector.PanicSignal, loc *time.Location) WireSignal {
	return WireSignal{
		ID:                 s.ID,
		Instrument:         s.Instrument,
		DetectedAt:         s.DetectedAt.In(loc).Format(time.RFC3339),
		SignalType:         wireType(s.SignalType),
		Level:              wireLevel(s.FinalLevel),
		BaseLevel:          string(s.BaseLevel),
		RSI7:               s.RSI7,
		RSI14:              s.RSI14,
		RSI21:              s.RSI21,
		VolumeRatio:        s.VolumeRatio,
		Price:              s.Price,
		ATR:                s.ATR,
		SMA20:              s.SMA20,
		SpreadPercent:      s.SpreadPercent,
		PassedFilters:      s.PassedFilters,
		FailedFilters:      s.FailedFilters,
		Clusters:           s.VolumeClusters,
		ClusterSummary:     s.ClusterSummary,
		RiskScore:          s.RiskScore,
		RiskLevel:          string(s.RiskLevel),
		RiskInterpretation: s.RiskInterpretation,
		Interpretation:     s.Interpretation,
		Recommendation:     s.Recommendation,
		RiskLevelText:      s.RiskLevelText,
	}
}

func toWireSignals(in []*detector.PanicSignal, loc *time.Location) []WireSignal {
	out := make([]WireSignal, 0, len(in))
	for _, s := range in {
		out = append(out, toWireSignal(s, loc))
	}
	return out
}

func toWireScanResult(r *scanner.ScanResult, loc *time.Location) WireScanResult {
	return WireScanResult{
		ScanID:       r.ScanID,
		ScannedAt:    r.ScannedAt.In(loc).Format(time.RFC3339),
		TotalScanned: r.TotalScanned,
		SignalsFound: r.SignalsFound,
		Signals:      toWireSignals(r.Signals, loc),
	}
}

// OverheatPct maps RSI deviation from the midline onto [0,100].
func OverheatPct(rsi14 float64) float64 {
	pct := (rsi14 - 50.0) * 2.0
	if pct < 0 {
		pct = -pct
	}
	if pct > 100 {
		pct = 100
	}
	return pct
}

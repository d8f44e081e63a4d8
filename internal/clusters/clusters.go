package clusters

import (
	"fmt"
	"sort"
	"strings"
)

const maxBins = 20

// Role classifies a price zone relative to the current price.
type Role string

const (
	RoleSupport    Role = "support"
	RoleResistance Role = "resistance"
	RoleNeutral    Role = "neutral"
)

// Cluster is one significant price zone of intraday volume concentration.
type Cluster struct {
	PriceLevel       float64 `json:"price_level"`
	VolumePercentage float64 `json:"volume_percentage"`
	VolumeAmount     float64 `json:"volume_amount"`
	Role             Role    `json:"role"`
	Significance     float64 `json:"significance"`
}

// Config controls cluster extraction.
type Config struct {
	NumClusters    int     // top-K zones to keep
	MinVolumeShare float64 // fraction of total volume below which a bin is dropped
}

// DefaultConfig matches the scanner defaults.
func DefaultConfig() Config {
	return Config{NumClusters: 3, MinVolumeShare: 0.1}
}

// Analyzer bins intraday (price, volume) pairs into price zones and extracts
// the most significant ones.
type Analyzer struct {
	cfg Config
}

func NewAnalyzer(cfg Config) *Analyzer {
	if cfg.NumClusters <= 0 {
		cfg.NumClusters = 3
	}
	if cfg.MinVolumeShare <= 0 {
		cfg.MinVolumeShare = 0.1
	}
	return &Analyzer{cfg: cfg}
}

// Analyze returns at most NumClusters zones, strongest first, with volume
// percentages renormalized so the selected zones sum to 100%.
func (a *Analyzer) Analyze(prices, volumes []float64, lastClose float64) []Cluster {
	if len(prices) == 0 || len(prices) != len(volumes) {
		return nil
	}

	totalVolume := 0.0
	for _, v := range volumes {
		totalVolume += v
	}
	if totalVolume <= 0 {
		return nil
	}

	minPrice, maxPrice := prices[0], prices[0]
	distinct := make(map[float64]struct{}, len(prices))
	for _, p := range prices {
		if p < minPrice {
			minPrice = p
		}
		if p > maxPrice {
			maxPrice = p
		}
		distinct[p] = struct{}{}
	}

	// All trades at one price: a single zone holds everything.
	if minPrice == maxPrice {
		c := Cluster{
			PriceLevel:       minPrice,
			VolumePercentage: 100.0,
			VolumeAmount:     totalVolume,
			Role:             roleFor(minPrice, lastClose),
			Significance:     1.0,
		}
		return []Cluster{c}
	}

	numBins := len(distinct)
	if numBins > maxBins {
		numBins = maxBins
	}
	width := (maxPrice - minPrice) / float64(numBins)

	binVolumes := make([]float64, numBins)
	for i, p := range prices {
		idx := int((p - minPrice) / width)
		if idx >= numBins {
			idx = numBins - 1
		}
		binVolumes[idx] += volumes[i]
	}

	type bin struct {
		level  float64
		volume float64
	}
	candidates := make([]bin, 0, numBins)
	for i, v := range binVolumes {
		if v < a.cfg.MinVolumeShare*totalVolume {
			continue
		}
		center := minPrice + (float64(i)+0.5)*width
		candidates = append(candidates, bin{level: center, volume: v})
	}
	if len(candidates) == 0 {
		return nil
	}

	sort.Slice(candidates, func(i, j int) bool {
		if candidates[i].volume != candidates[j].volume {
			return candidates[i].volume > candidates[j].volume
		}
		return candidates[i].level < candidates[j].level
	})
	if len(candidates) > a.cfg.NumClusters {
		candidates = candidates[:a.cfg.NumClusters]
	}

	selectedVolume := 0.0
	for _, b := range candidates {
		selectedVolume += b.volume
	}

	out := make([]Cluster, 0, len(candidates))
	for _, b := range candidates {
		pct := b.volume / selectedVolume * 100.0
		sig := pct / 100.0 * 2.0
		if sig > 1.0 {
			sig = 1.0
		}
		out = append(out, Cluster{
			PriceLevel:       b.level,
			VolumePercentage: pct,
			VolumeAmount:     b.volume,
			Role:             roleFor(b.level, lastClose),
			Significance:     sig,
		})
	}
	return out
}

// Summarize renders a short prose description of the zones.
func Summarize(cs []Cluster) string {
	if len(cs) == 0 {
		return "no significant volume zones"
	}
	parts := make([]string, 0, len(cs))
	for _, c := range cs {
		parts = append(parts, fmt.Sprintf("%.2f (%.1f%%, %s)", c.PriceLevel, c.VolumePercentage, c.Role))
	}
	return fmt.Sprintf("%d volume zone(s): %s", len(cs), strings.Join(parts, ", "))
}

func roleFor(level, lastClose float64) Role {
	switch {
	case level < lastClose:
		return RoleSupport
	case level > lastClose:
		return RoleResistance
	default:
		return RoleNeutral
	}
}

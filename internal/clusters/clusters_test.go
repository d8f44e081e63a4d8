package clusters

import (
	"math"
	"strings"
	"testing"
)

func TestFlatPricesSingleCluster(t *testing.T) {
	prices := make([]float64, 50)
	volumes := make([]float64, 50)
	for i := range prices {
		prices[i] = 100
		volumes[i] = 10
	}

	a := NewAnalyzer(DefaultConfig())
	got := a.Analyze(prices, volumes, 100)

	if len(got) != 1 {
		t.Fatalf("expected exactly one cluster, got %d", len(got))
	}
	c := got[0]
	if c.PriceLevel != 100 {
		t.Errorf("price level = %f, want 100", c.PriceLevel)
	}
	if math.Abs(c.VolumePercentage-100) > 1e-9 {
		t.Errorf("volume percentage = %f, want 100", c.VolumePercentage)
	}
	if c.VolumeAmount != 500 {
		t.Errorf("volume amount = %f, want 500", c.VolumeAmount)
	}
	if c.Role != RoleNeutral {
		t.Errorf("role = %s, want neutral", c.Role)
	}
	if c.Significance != 1.0 {
		t.Errorf("significance = %f, want 1", c.Significance)
	}
}

func TestTopClustersRenormalized(t *testing.T) {
	// Three heavy zones and background noise spread across the range.
	var prices, volumes []float64
	add := func(p, v float64, n int) {
		for i := 0; i < n; i++ {
			prices = append(prices, p)
			volumes = append(volumes, v)
		}
	}
	add(100, 100, 5) // 500
	add(105, 80, 5)  // 400
	add(110, 60, 5)  // 300
	add(115, 1, 5)   // 5, below the 10% share

	a := NewAnalyzer(DefaultConfig())
	got := a.Analyze(prices, volumes, 104)

	if len(got) != 3 {
		t.Fatalf("expected 3 clusters, got %d", len(got))
	}

	sum := 0.0
	for _, c := range got {
		sum += c.VolumePercentage
	}
	if math.Abs(sum-100) > 1e-6 {
		t.Errorf("selected zones should renormalize to 100%%, got %f", sum)
	}

	// Strongest first.
	for i := 1; i < len(got); i++ {
		if got[i].VolumeAmount > got[i-1].VolumeAmount {
			t.Errorf("clusters not ordered by volume: %f after %f", got[i].VolumeAmount, got[i-1].VolumeAmount)
		}
	}

	// Roles relative to last close 104.
	if got[0].Role != RoleSupport {
		t.Errorf("heaviest zone near 100 should be support, got %s", got[0].Role)
	}
}

func TestTiesBrokenByLowerPrice(t *testing.T) {
	// Two zones with identical volume at the range extremes.
	prices := []float64{100, 100, 100, 120, 120, 120}
	volumes := []float64{10, 10, 10, 10, 10, 10}

	a := NewAnalyzer(Config{NumClusters: 1, MinVolumeShare: 0.1})
	got := a.Analyze(prices, volumes, 110)

	if len(got) != 1 {
		t.Fatalf("expected 1 cluster, got %d", len(got))
	}
	if got[0].PriceLevel > 110 {
		t.Errorf("tie should be broken by lower price level, got %f", got[0].PriceLevel)
	}
}

func TestAnalyzeDegenerateInputs(t *testing.T) {
	a := NewAnalyzer(DefaultConfig())

	if got := a.Analyze(nil, nil, 100); got != nil {
		t.Errorf("empty input should produce no clusters, got %v", got)
	}
	if got := a.Analyze([]float64{100}, []float64{1, 2}, 100); got != nil {
		t.Errorf("mismatched lengths should produce no clusters, got %v", got)
	}
	if got := a.Analyze([]float64{100, 101}, []float64{0, 0}, 100); got != nil {
		t.Errorf("zero total volume should produce no clusters, got %v", got)
	}
}

func TestSummarize(t *testing.T) {
	if s := Summarize(nil); !strings.Contains(s, "no significant") {
		t.Errorf("empty summary = %q", s)
	}

	cs := []Cluster{{PriceLevel: 100.5, VolumePercentage: 60, Role: RoleSupport}}
	s := Summarize(cs)
	if !strings.Contains(s, "100.50") || !strings.Contains(s, "support") {
		t.Errorf("summary missing zone details: %q", s)
	}
}

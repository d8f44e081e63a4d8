package risk

import (
	"math"
	"strings"
	"testing"
)

func TestScoreComponents(t *testing.T) {
	// rsi=25 → rsiComp 0.5; volumeRatio=3 → log2(4)=2 → volComp 1;
	// atr=2, atrNormal=2 → atrComp 1/3; score = 100*0.5*1*(1/3).
	m := Score(25, 3, 2, 2, "panic")

	if math.Abs(m.RSIComponent-0.5) > 1e-9 {
		t.Errorf("rsi component = %f, want 0.5", m.RSIComponent)
	}
	if math.Abs(m.VolumeComponent-1.0) > 1e-9 {
		t.Errorf("volume component = %f, want 1", m.VolumeComponent)
	}
	if math.Abs(m.VolatilityComponent-1.0/3.0) > 1e-9 {
		t.Errorf("volatility component = %f, want 1/3", m.VolatilityComponent)
	}
	want := 100.0 * 0.5 * 1.0 / 3.0
	if math.Abs(m.Score-want) > 1e-9 {
		t.Errorf("score = %f, want %f", m.Score, want)
	}
}

func TestScoreBounds(t *testing.T) {
	cases := []struct {
		rsi, vr, atr float64
	}{
		{0, 100, 100},
		{100, 0, 0},
		{50, 1, 2},
		{-10, 5, 10}, // out-of-range RSI triggers soft overflow, score stays bounded
	}
	for _, c := range cases {
		m := Score(c.rsi, c.vr, c.atr, 2, "greed")
		if m.Score < 0 || m.Score > 100 {
			t.Errorf("Score(%v) = %f out of [0,100]", c, m.Score)
		}
	}
}

func TestLevelThresholds(t *testing.T) {
	tests := []struct {
		score float64
		want  Level
	}{
		{0, LevelVeryLow},
		{10, LevelVeryLow},
		{10.1, LevelLow},
		{25, LevelLow},
		{50, LevelModerate},
		{75, LevelHigh},
		{90, LevelVeryHigh},
		{90.1, LevelExtreme},
	}
	for _, tt := range tests {
		if got := levelFor(tt.score); got != tt.want {
			t.Errorf("levelFor(%f) = %s, want %s", tt.score, got, tt.want)
		}
	}
}

func TestInterpretationNamesDominantComponent(t *testing.T) {
	// Extreme RSI, calm volume and volatility.
	m := Score(2, 0.1, 0.1, 2, "panic")
	if !strings.Contains(m.Interpretation, "RSI") {
		t.Errorf("expected RSI-dominated interpretation, got %q", m.Interpretation)
	}

	// Mild RSI, huge volume.
	m = Score(45, 10, 0.1, 2, "greed")
	if !strings.Contains(m.Interpretation, "volume") {
		t.Errorf("expected volume-dominated interpretation, got %q", m.Interpretation)
	}

	// Mild RSI, calm volume, violent range.
	m = Score(45, 0.2, 10, 2, "panic")
	if !strings.Contains(m.Interpretation, "volatility") {
		t.Errorf("expected volatility-dominated interpretation, got %q", m.Interpretation)
	}
}

func TestZeroAtrNormalFallsBackToDefault(t *testing.T) {
	a := Score(25, 2, 2, 0, "panic")
	b := Score(25, 2, 2, DefaultATRNormal, "panic")
	if math.Abs(a.Score-b.Score) > 1e-9 {
		t.Errorf("zero atrNormal should use the default, got %f vs %f", a.Score, b.Score)
	}
}

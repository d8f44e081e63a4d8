package database

import (
	"testing"
	"time"

	"moex-panic-scanner/internal/detector"
)

func TestLevelPriorityOrdering(t *testing.T) {
	if LevelPriority(detector.LevelRed) <= LevelPriority(detector.LevelYellow) {
		t.Error("red must outrank yellow")
	}
	if LevelPriority(detector.LevelYellow) <= LevelPriority(detector.LevelWhite) {
		t.Error("yellow must outrank white")
	}
	if LevelPriority(detector.LevelWhite) <= LevelPriority(detector.LevelIgnore) {
		t.Error("white must outrank ignore")
	}
}

func TestMarketTension(t *testing.T) {
	tests := []struct {
		name    string
		byLevel map[string]int
		total   int
		want    string
	}{
		{"no signals", map[string]int{}, 0, "calm"},
		{"mostly red", map[string]int{"red": 4, "white": 6}, 10, "high"},
		{"mostly yellow", map[string]int{"yellow": 6, "white": 4}, 10, "moderate"},
		{"scattered whites", map[string]int{"white": 10}, 10, "calm"},
		{"red at exactly 30 percent", map[string]int{"red": 3, "white": 7}, 10, "calm"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := MarketTension(tt.byLevel, tt.total); got != tt.want {
				t.Errorf("MarketTension = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestPeriodBounds(t *testing.T) {
	loc, err := time.LoadLocation("Europe/Moscow")
	if err != nil {
		t.Fatalf("load location: %v", err)
	}
	now := time.Date(2026, 4, 15, 14, 30, 0, 0, loc)

	from, to, err := PeriodBounds("today", now)
	if err != nil {
		t.Fatalf("today: %v", err)
	}
	if from.Format("2006-01-02 15:04") != "2026-04-15 00:00" {
		t.Errorf("today from = %s", from)
	}
	if to.Format("2006-01-02 15:04") != "2026-04-16 00:00" {
		t.Errorf("today to = %s", to)
	}

	from, to, err = PeriodBounds("yesterday", now)
	if err != nil {
		t.Fatalf("yesterday: %v", err)
	}
	if from.Format("2006-01-02") != "2026-04-14" || to.Format("2006-01-02") != "2026-04-15" {
		t.Errorf("yesterday bounds = %s .. %s", from, to)
	}

	from, _, err = PeriodBounds("week", now)
	if err != nil {
		t.Fatalf("week: %v", err)
	}
	if from.Format("2006-01-02") != "2026-04-08" {
		t.Errorf("week from = %s", from)
	}

	if _, _, err := PeriodBounds("decade", now); err == nil {
		t.Error("unknown period should be rejected")
	}
}

package calendar

import (
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func newTestCalendar(t *testing.T) *Calendar {
	t.Helper()
	c, err := New("")
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return c
}

func moscowDate(t *testing.T, c *Calendar, value string) time.Time {
	t.Helper()
	d, err := time.ParseInLocation("2006-01-02 15:04", value, c.Location())
	if err != nil {
		t.Fatalf("parse %q: %v", value, err)
	}
	return d
}

func TestIsTradingDay(t *testing.T) {
	c := newTestCalendar(t)

	tests := []struct {
		date string
		want bool
	}{
		{"2026-04-15 12:00", true},  // regular Wednesday
		{"2026-04-18 12:00", false}, // Saturday
		{"2026-04-19 12:00", false}, // Sunday
		{"2026-01-01 12:00", false}, // New Year holiday
		{"2026-02-23 12:00", false}, // Defender of the Fatherland Day
		{"2026-05-01 12:00", false}, // Spring and Labour Day
	}

	for _, tt := range tests {
		if got := c.IsTradingDay(moscowDate(t, c, tt.date)); got != tt.want {
			t.Errorf("IsTradingDay(%s) = %v, want %v", tt.date, got, tt.want)
		}
	}
}

func TestWeekendHolidayShiftsToMonday(t *testing.T) {
	c := newTestCalendar(t)

	// March 8 2026 falls on a Sunday; the following Monday is off too.
	if c.IsTradingDay(moscowDate(t, c, "2026-03-09 12:00")) {
		t.Error("Monday after a Sunday holiday should not be a trading day")
	}
}

func TestTradingHours(t *testing.T) {
	c := newTestCalendar(t)

	open, close, err := c.TradingHours(moscowDate(t, c, "2026-04-15 12:00"))
	if err != nil {
		t.Fatalf("TradingHours: %v", err)
	}
	if open.Hour() != 10 || open.Minute() != 0 {
		t.Errorf("regular open = %s, want 10:00", open.Format("15:04"))
	}
	if close.Hour() != 18 || close.Minute() != 30 {
		t.Errorf("regular close = %s, want 18:30", close.Format("15:04"))
	}

	if _, _, err := c.TradingHours(moscowDate(t, c, "2026-04-18 12:00")); err == nil {
		t.Error("TradingHours on a weekend should fail")
	}
}

func TestShortSessionBeforeHoliday(t *testing.T) {
	c := newTestCalendar(t)

	// November 3 2026 precedes Unity Day.
	d := moscowDate(t, c, "2026-11-03 12:00")
	if !c.IsShortSession(d) {
		t.Fatal("working day before a holiday should be a short session")
	}
	_, close, err := c.TradingHours(d)
	if err != nil {
		t.Fatalf("TradingHours: %v", err)
	}
	if close.Hour() != 15 || close.Minute() != 30 {
		t.Errorf("short close = %s, want 15:30", close.Format("15:04"))
	}
}

func TestIsMarketOpenAt(t *testing.T) {
	c := newTestCalendar(t)

	open, reason := c.IsMarketOpenAt(moscowDate(t, c, "2026-04-15 12:00"))
	if !open {
		t.Errorf("midday on a trading day should be open, got %q", reason)
	}
	if !strings.Contains(reason, "minutes to close") {
		t.Errorf("open reason should mention time to close, got %q", reason)
	}

	open, reason = c.IsMarketOpenAt(moscowDate(t, c, "2026-04-15 09:30"))
	if open || !strings.Contains(reason, "opens at") {
		t.Errorf("pre-open should be closed with opening time, got (%v, %q)", open, reason)
	}

	open, reason = c.IsMarketOpenAt(moscowDate(t, c, "2026-04-15 19:30"))
	if open || !strings.Contains(reason, "next trading day") {
		t.Errorf("post-close should point at next trading day, got (%v, %q)", open, reason)
	}

	open, _ = c.IsMarketOpenAt(moscowDate(t, c, "2026-04-18 12:00"))
	if open {
		t.Error("Saturday should be closed")
	}
}

func TestActiveZone(t *testing.T) {
	c := newTestCalendar(t)

	tests := []struct {
		at   string
		want bool
	}{
		{"2026-04-15 10:30", false},
		{"2026-04-15 11:00", true},
		{"2026-04-15 15:59", true},
		{"2026-04-15 16:00", false},
	}
	for _, tt := range tests {
		if got := c.InActiveZone(moscowDate(t, c, tt.at)); got != tt.want {
			t.Errorf("InActiveZone(%s) = %v, want %v", tt.at, got, tt.want)
		}
	}
}

func TestNextPreviousTradingDay(t *testing.T) {
	c := newTestCalendar(t)

	next := c.NextTradingDay(moscowDate(t, c, "2026-04-17 12:00")) // Friday
	if next.Format("2006-01-02") != "2026-04-20" {
		t.Errorf("next trading day after Friday = %s, want Monday 2026-04-20", next.Format("2006-01-02"))
	}

	prev := c.PreviousTradingDay(moscowDate(t, c, "2026-04-20 12:00"))
	if prev.Format("2006-01-02") != "2026-04-17" {
		t.Errorf("previous trading day before Monday = %s, want 2026-04-17", prev.Format("2006-01-02"))
	}
}

func TestHolidayCacheRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "holidays.json")

	cached := holidayCache{
		GeneratedAt: time.Now(),
		Holidays:    []string{"2026-04-15"},
	}
	data, err := json.Marshal(cached)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		t.Fatalf("write cache: %v", err)
	}

	c, err := New(path)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if c.IsTradingDay(moscowDate(t, c, "2026-04-15 12:00")) {
		t.Error("date listed in a fresh cache should not be a trading day")
	}
}

func TestStaleHolidayCacheIsRecomputed(t *testing.T) {
	path := filepath.Join(t.TempDir(), "holidays.json")

	cached := holidayCache{
		GeneratedAt: time.Now().Add(-60 * 24 * time.Hour),
		Holidays:    []string{"2026-04-15"},
	}
	data, _ := json.Marshal(cached)
	if err := os.WriteFile(path, data, 0o644); err != nil {
		t.Fatalf("write cache: %v", err)
	}

	c, err := New(path)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if !c.IsTradingDay(moscowDate(t, c, "2026-04-15 12:00")) {
		t.Error("stale cache should be ignored in favor of the computed set")
	}
}

package calendar

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

const (
	// Moscow Exchange equity section hours.
	regularOpenHour   = 10
	regularOpenMin    = 0
	regularCloseHour  = 18
	regularCloseMin   = 30
	shortCloseHour    = 15
	shortCloseMin     = 30
	activeZoneStartHr = 11
	activeZoneEndHr   = 16

	cacheFreshness = 30 * 24 * time.Hour
	dateLayout     = "2006-01-02"
)

// Calendar answers trading-day and trading-hours questions for the Moscow
// Exchange. The holiday set is loaded from a small on-disk JSON cache and
// recomputed from the fixed national holiday list when the cache is stale
// or missing.
type Calendar struct {
	mu        sync.RWMutex
	loc       *time.Location
	cachePath string
	holidays  map[string]struct{}
	log       zerolog.Logger
}

type holidayCache struct {
	GeneratedAt time.Time `json:"generated_at"`
	Holidays    []string  `json:"holidays"`
}

// New creates a calendar in the Europe/Moscow timezone. cachePath may be
// empty to skip the disk cache entirely.
func New(cachePath string) (*Calendar, error) {
	loc, err := time.LoadLocation("Europe/Moscow")
	if err != nil {
		return nil, fmt.Errorf("load exchange timezone: %w", err)
	}

	c := &Calendar{
		loc:       loc,
		cachePath: cachePath,
		log:       log.With().Str("component", "calendar").Logger(),
	}
	if err := c.Reload(); err != nil {
		return nil, err
	}
	return c, nil
}

// Reload rebuilds the holiday set: from the disk cache when it is fresh,
// otherwise from the computed national holiday list (and rewrites the cache).
// Readers see the new set atomically.
func (c *Calendar) Reload() error {
	if set, ok := c.loadFromCache(); ok {
		c.mu.Lock()
		c.holidays = set
		c.mu.Unlock()
		c.log.Info().Int("holidays", len(set)).Msg("holiday set loaded from cache")
		return nil
	}

	now := time.Now().In(c.loc)
	set := make(map[string]struct{})
	for _, year := range []int{now.Year(), now.Year() + 1} {
		for _, d := range nationalHolidays(year, c.loc) {
			set[d.Format(dateLayout)] = struct{}{}
		}
	}

	c.mu.Lock()
	c.holidays = set
	c.mu.Unlock()

	c.writeCache(set)
	c.log.Info().Int("holidays", len(set)).Msg("holiday set computed")
	return nil
}

func (c *Calendar) loadFromCache() (map[string]struct{}, bool) {
	if c.cachePath == "" {
		return nil, false
	}
	data, err := os.ReadFile(c.cachePath)
	if err != nil {
		return nil, false
	}
	var cached holidayCache
	if err := json.Unmarshal(data, &cached); err != nil {
		c.log.Warn().Err(err).Str("path", c.cachePath).Msg("holiday cache unreadable, recomputing")
		return nil, false
	}
	if time.Since(cached.GeneratedAt) > cacheFreshness {
		return nil, false
	}
	set := make(map[string]struct{}, len(cached.Holidays))
	for _, d := range cached.Holidays {
		set[d] = struct{}{}
	}
	return set, true
}

func (c *Calendar) writeCache(set map[string]struct{}) {
	if c.cachePath == "" {
		return
	}
	cached := holidayCache{GeneratedAt: time.Now(), Holidays: make([]string, 0, len(set))}
	for d := range set {
		cached.Holidays = append(cached.Holidays, d)
	}
	data, err := json.MarshalIndent(cached, "", "  ")
	if err != nil {
		return
	}
	if dir := filepath.Dir(c.cachePath); dir != "." {
		os.MkdirAll(dir, 0o755)
	}
	if err := os.WriteFile(c.cachePath, data, 0o644); err != nil {
		c.log.Warn().Err(err).Str("path", c.cachePath).Msg("failed to write holiday cache")
	}
}

// nationalHolidays returns the Russian national holidays for a year, with
// holidays that land on a weekend shifted to the following Monday.
func nationalHolidays(year int, loc *time.Location) []time.Time {
	base := []time.Time{}
	for day := 1; day <= 8; day++ {
		base = append(base, time.Date(year, time.January, day, 0, 0, 0, 0, loc))
	}
	base = append(base,
		time.Date(year, time.February, 23, 0, 0, 0, 0, loc),
		time.Date(year, time.March, 8, 0, 0, 0, 0, loc),
		time.Date(year, time.May, 1, 0, 0, 0, 0, loc),
		time.Date(year, time.May, 9, 0, 0, 0, 0, loc),
		time.Date(year, time.June, 12, 0, 0, 0, 0, loc),
		time.Date(year, time.November, 4, 0, 0, 0, 0, loc),
	)

	out := make([]time.Time, 0, len(base))
	for _, d := range base {
		switch d.Weekday() {
		case time.Saturday:
			out = append(out, d, d.AddDate(0, 0, 2))
		case time.Sunday:
			out = append(out, d, d.AddDate(0, 0, 1))
		default:
			out = append(out, d)
		}
	}
	return out
}

// Location returns the exchange timezone.
func (c *Calendar) Location() *time.Location {
	return c.loc
}

// Now returns the current instant in exchange time.
func (c *Calendar) Now() time.Time {
	return time.Now().In(c.loc)
}

// IsHoliday reports whether the date is in the holiday set.
func (c *Calendar) IsHoliday(d time.Time) bool {
	key := d.In(c.loc).Format(dateLayout)
	c.mu.RLock()
	defer c.mu.RUnlock()
	_, ok := c.holidays[key]
	return ok
}

// IsTradingDay reports whether the exchange trades on the given date.
func (c *Calendar) IsTradingDay(d time.Time) bool {
	d = d.In(c.loc)
	if wd := d.Weekday(); wd == time.Saturday || wd == time.Sunday {
		return false
	}
	return !c.IsHoliday(d)
}

// IsShortSession reports whether the date is a working day immediately
// before a holiday, which trades with an early close.
func (c *Calendar) IsShortSession(d time.Time) bool {
	d = d.In(c.loc)
	return c.IsTradingDay(d) && c.IsHoliday(d.AddDate(0, 0, 1))
}

// TradingHours returns the session open and close for a trading day.
func (c *Calendar) TradingHours(d time.Time) (open, close time.Time, err error) {
	d = d.In(c.loc)
	if !c.IsTradingDay(d) {
		return time.Time{}, time.Time{}, fmt.Errorf("%s is not a trading day", d.Format(dateLayout))
	}
	y, m, day := d.Date()
	open = time.Date(y, m, day, regularOpenHour, regularOpenMin, 0, 0, c.loc)
	if c.IsShortSession(d) {
		close = time.Date(y, m, day, shortCloseHour, shortCloseMin, 0, 0, c.loc)
	} else {
		close = time.Date(y, m, day, regularCloseHour, regularCloseMin, 0, 0, c.loc)
	}
	return open, close, nil
}

// IsMarketOpenAt reports whether the exchange is trading at the given
// instant, with a human-readable reason.
func (c *Calendar) IsMarketOpenAt(t time.Time) (bool, string) {
	t = t.In(c.loc)
	if !c.IsTradingDay(t) {
		next := c.NextTradingDay(t)
		return false, fmt.Sprintf("market closed, next trading day %s", next.Format(dateLayout))
	}

	open, close, err := c.TradingHours(t)
	if err != nil {
		return false, err.Error()
	}
	switch {
	case t.Before(open):
		return false, fmt.Sprintf("market opens at %s", open.Format("15:04"))
	case t.After(close) || t.Equal(close):
		next := c.NextTradingDay(t)
		return false, fmt.Sprintf("market closed, next trading day %s", next.Format(dateLayout))
	default:
		minutesLeft := int(close.Sub(t).Minutes())
		return true, fmt.Sprintf("market open, %d minutes to close", minutesLeft)
	}
}

// IsMarketOpenNow applies IsMarketOpenAt to the current instant.
func (c *Calendar) IsMarketOpenNow() (bool, string) {
	return c.IsMarketOpenAt(time.Now())
}

// InActiveZone reports whether the instant is inside the intraday window
// during which signals are emitted.
func (c *Calendar) InActiveZone(t time.Time) bool {
	t = t.In(c.loc)
	y, m, d := t.Date()
	start := time.Date(y, m, d, activeZoneStartHr, 0, 0, 0, c.loc)
	end := time.Date(y, m, d, activeZoneEndHr, 0, 0, 0, c.loc)
	return !t.Before(start) && t.Before(end)
}

// NextTradingDay walks forward from the day after d to the next trading day.
func (c *Calendar) NextTradingDay(d time.Time) time.Time {
	d = d.In(c.loc).AddDate(0, 0, 1)
	for !c.IsTradingDay(d) {
		d = d.AddDate(0, 0, 1)
	}
	return d
}

// PreviousTradingDay walks backward from the day before d.
func (c *Calendar) PreviousTradingDay(d time.Time) time.Time {
	d = d.In(c.loc).AddDate(0, 0, -1)
	for !c.IsTradingDay(d) {
		d = d.AddDate(0, 0, -1)
	}
	return d
}

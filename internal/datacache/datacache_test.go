package datacache

import (
	"fmt"
	"testing"
	"time"

	"moex-panic-scanner/internal/moex"
)

func TestSetGetRoundTrip(t *testing.T) {
	c := New(10)
	c.Set("k", 42, time.Minute)

	v, ok := c.Get("k")
	if !ok || v.(int) != 42 {
		t.Errorf("Get = (%v, %v), want (42, true)", v, ok)
	}
}

func TestExpiredEntryMisses(t *testing.T) {
	c := New(10)
	c.Set("k", "v", -time.Second)

	if _, ok := c.Get("k"); ok {
		t.Error("expired entry should miss")
	}
	if c.Len() != 0 {
		t.Errorf("expired entry should be dropped on read, len = %d", c.Len())
	}
}

func TestOldestFirstEviction(t *testing.T) {
	c := New(3)
	for i := 0; i < 3; i++ {
		c.Set(fmt.Sprintf("k%d", i), i, time.Minute)
		time.Sleep(time.Millisecond)
	}
	c.Set("k3", 3, time.Minute)

	if c.Len() != 3 {
		t.Fatalf("len = %d, want 3 after eviction", c.Len())
	}
	if _, ok := c.Get("k0"); ok {
		t.Error("oldest entry should have been evicted")
	}
	if _, ok := c.Get("k3"); !ok {
		t.Error("newest entry should be present")
	}
}

func TestOverwriteDoesNotEvict(t *testing.T) {
	c := New(2)
	c.Set("a", 1, time.Minute)
	c.Set("b", 2, time.Minute)
	c.Set("a", 3, time.Minute)

	if v, ok := c.Get("a"); !ok || v.(int) != 3 {
		t.Errorf("overwritten value = (%v, %v), want (3, true)", v, ok)
	}
	if _, ok := c.Get("b"); !ok {
		t.Error("overwrite of an existing key must not evict another entry")
	}
}

func TestStats(t *testing.T) {
	c := New(10)
	c.Set("k", 1, time.Minute)
	c.Get("k")
	c.Get("missing")

	hits, misses, rate := c.Stats()
	if hits != 1 || misses != 1 {
		t.Errorf("stats = (%d, %d), want (1, 1)", hits, misses)
	}
	if rate != 50 {
		t.Errorf("hit rate = %f, want 50", rate)
	}
}

func TestTypedHelpers(t *testing.T) {
	c := New(10)

	candles := []moex.Candle{{Instrument: "SBER", Close: 310, Interval: moex.IntervalHour}}
	c.SetCandles("SBER", moex.IntervalHour, candles, time.Minute)
	got, ok := c.GetCandles("SBER", moex.IntervalHour)
	if !ok || len(got) != 1 || got[0].Close != 310 {
		t.Errorf("GetCandles = (%v, %v)", got, ok)
	}

	c.SetPrice("SBER", 310.5, time.Minute)
	if p, ok := c.GetPrice("SBER"); !ok || p != 310.5 {
		t.Errorf("GetPrice = (%f, %v)", p, ok)
	}

	c.SetAvgVolume("SBER", 1e6, time.Hour)
	if v, ok := c.GetAvgVolume("SBER"); !ok || v != 1e6 {
		t.Errorf("GetAvgVolume = (%f, %v)", v, ok)
	}

	if _, ok := c.GetCandles("GAZP", moex.IntervalHour); ok {
		t.Error("unknown instrument should miss")
	}
}

package scanner

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"moex-panic-scanner/internal/clusters"
	"moex-panic-scanner/internal/datacache"
	"moex-panic-scanner/internal/detector"
	"moex-panic-scanner/internal/events"
	"moex-panic-scanner/internal/filters"
	"moex-panic-scanner/internal/moex"
)

type openClock struct{}

func (openClock) Now() time.Time { return time.Date(2026, 4, 15, 12, 0, 0, 0, time.UTC) }

func (openClock) IsMarketOpenAt(time.Time) (bool, string) { return true, "market open" }

func (openClock) InActiveZone(time.Time) bool { return true }

type fakeStore struct {
	mu        sync.Mutex
	saved     []*detector.PanicSignal
	failTimes int
	nextID    int64
}

func (f *fakeStore) SaveSignal(_ context.Context, s *detector.PanicSignal) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failTimes > 0 {
		f.failTimes--
		return 0, errors.New("store unavailable")
	}
	f.nextID++
	f.saved = append(f.saved, s)
	return f.nextID, nil
}

type recordingNotifier struct {
	mu   sync.Mutex
	sent []string
}

func (r *recordingNotifier) NotifySignal(_ context.Context, s *detector.PanicSignal) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.sent = append(r.sent, s.Instrument)
}

func (r *recordingNotifier) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.sent)
}

// panicCandles builds a strictly declining series with a volume spike on the
// last bar, enough to grade a strong panic.
func panicCandles(instrument string, n int) []moex.Candle {
	out := make([]moex.Candle, n)
	base := time.Date(2026, 2, 1, 0, 0, 0, 0, time.UTC)
	for i := 0; i < n; i++ {
		close := 400.0 - 2.0*float64(i)
		vol := 1000.0
		if i == n-1 {
			vol = 3000.0
		}
		out[i] = moex.Candle{
			Instrument: instrument,
			OpenTime:   base.AddDate(0, 0, i),
			Open:       close + 2,
			High:       close + 3,
			Low:        close - 3,
			Close:      close,
			Volume:     vol,
			Interval:   moex.IntervalDay,
			Complete:   true,
		}
	}
	return out
}

func testDetector() *detector.Detector {
	chain := filters.Chain(
		filters.NewVolatilityFilter(filters.DefaultVolatilityConfig()),
		filters.NewTrendFilter(filters.DefaultTrendConfig()),
		filters.NewVolumeFilter(filters.DefaultVolumeConfig(), nil),
	)
	return detector.New(detector.Config{
		Thresholds: detector.DefaultThresholds(),
		Filters:    chain,
		Analyzer:   clusters.NewAnalyzer(clusters.DefaultConfig()),
		Clock:      openClock{},
	})
}

func testScanner(provider moex.MarketDataProvider, store SignalStore, notifier SignalNotifier) *Scanner {
	return New(Config{
		Instruments:    []string{"SBER", "GAZP"},
		MaxWorkers:     2,
		AdapterTimeout: 5 * time.Second,
	}, Deps{
		Provider: provider,
		Cache:    datacache.New(100),
		Detector: testDetector(),
		Store:    store,
		Bus:      events.NewEventBus(),
		Notifier: notifier,
	})
}

func TestScanAllEmitsRedAndNotifies(t *testing.T) {
	provider := moex.NewMockProvider()
	provider.CandleSets["SBER"] = panicCandles("SBER", 60)
	provider.Prices["SBER"] = 400 // above the moving average, trend passes

	store := &fakeStore{}
	notifier := &recordingNotifier{}
	s := testScanner(provider, store, notifier)

	result := s.ScanAll(context.Background(), []string{"SBER"}, false)

	if result.TotalScanned != 1 || result.SignalsFound != 1 {
		t.Fatalf("scanned=%d signals=%d, want 1/1", result.TotalScanned, result.SignalsFound)
	}
	sig := result.Signals[0]
	if sig.FinalLevel != detector.LevelRed {
		t.Errorf("final level = %s, want red", sig.FinalLevel)
	}
	if sig.ID == 0 {
		t.Error("persisted signal should carry its store id")
	}
	if len(store.saved) != 1 {
		t.Errorf("store holds %d signals, want 1", len(store.saved))
	}
	if notifier.count() != 1 {
		t.Errorf("red signal should notify once, got %d", notifier.count())
	}
}

func TestScanAllYellowDoesNotNotify(t *testing.T) {
	provider := moex.NewMockProvider()
	// No last price: the window falls back to the latest close, which sits
	// below the moving average, so the trend filter downgrades red to yellow.
	provider.CandleSets["GAZP"] = panicCandles("GAZP", 60)

	store := &fakeStore{}
	notifier := &recordingNotifier{}
	s := testScanner(provider, store, notifier)

	result := s.ScanAll(context.Background(), []string{"GAZP"}, false)

	if result.SignalsFound != 1 {
		t.Fatalf("signals = %d, want 1", result.SignalsFound)
	}
	if got := result.Signals[0].FinalLevel; got != detector.LevelYellow {
		t.Errorf("final level = %s, want yellow", got)
	}
	if notifier.count() != 0 {
		t.Errorf("non-red signal must not notify, got %d", notifier.count())
	}
}

func TestScanAllSkipsFailingInstrument(t *testing.T) {
	provider := moex.NewMockProvider()
	provider.CandleSets["SBER"] = panicCandles("SBER", 60)
	provider.Prices["SBER"] = 400
	provider.Errs["GAZP"] = moex.ErrTransient

	s := testScanner(provider, &fakeStore{}, &recordingNotifier{})
	result := s.ScanAll(context.Background(), []string{"SBER", "GAZP"}, false)

	if result.TotalScanned != 2 {
		t.Errorf("both instruments should be accounted, got %d", result.TotalScanned)
	}
	if result.SignalsFound != 1 {
		t.Errorf("the healthy instrument should still produce its signal, got %d", result.SignalsFound)
	}
}

func TestScanAllInsufficientCandlesSkips(t *testing.T) {
	provider := moex.NewMockProvider()
	provider.CandleSets["SBER"] = panicCandles("SBER", 10)

	s := testScanner(provider, &fakeStore{}, &recordingNotifier{})
	result := s.ScanAll(context.Background(), []string{"SBER"}, false)

	if result.SignalsFound != 0 {
		t.Errorf("short window must not produce signals, got %d", result.SignalsFound)
	}
}

func TestPersistRetriesOnce(t *testing.T) {
	provider := moex.NewMockProvider()
	provider.CandleSets["SBER"] = panicCandles("SBER", 60)
	provider.Prices["SBER"] = 400

	store := &fakeStore{failTimes: 1}
	s := testScanner(provider, store, &recordingNotifier{})
	result := s.ScanAll(context.Background(), []string{"SBER"}, false)

	if result.SignalsFound != 1 {
		t.Fatalf("signals = %d, want 1", result.SignalsFound)
	}
	if len(store.saved) != 1 {
		t.Errorf("save should succeed on retry, store holds %d", len(store.saved))
	}
	if result.Signals[0].ID == 0 {
		t.Error("retried save should still assign the id")
	}
}

func TestIgnoreMapExcludesInstrument(t *testing.T) {
	s := testScanner(moex.NewMockProvider(), &fakeStore{}, &recordingNotifier{})

	s.IgnoreInstrument("SBER", time.Hour)
	active := s.activeInstruments()
	if len(active) != 1 || active[0] != "GAZP" {
		t.Errorf("active instruments = %v, want [GAZP]", active)
	}

	if _, ok := s.IgnoredUntil("SBER"); !ok {
		t.Error("SBER should report an active exclusion")
	}
	if _, ok := s.IgnoredUntil("GAZP"); ok {
		t.Error("GAZP should not be excluded")
	}
}

func TestExpiredIgnoreIsDropped(t *testing.T) {
	s := testScanner(moex.NewMockProvider(), &fakeStore{}, &recordingNotifier{})

	s.IgnoreInstrument("SBER", -time.Minute)
	if len(s.activeInstruments()) != 2 {
		t.Error("expired exclusion should not filter the instrument")
	}
}

func TestAvgVolumeCached(t *testing.T) {
	provider := moex.NewMockProvider()
	provider.CandleSets["SBER"] = panicCandles("SBER", 60)

	s := testScanner(provider, &fakeStore{}, &recordingNotifier{})
	ctx := context.Background()

	first, err := s.AvgVolume(ctx, "SBER")
	if err != nil {
		t.Fatalf("AvgVolume: %v", err)
	}
	callsAfterFirst := provider.Calls

	second, err := s.AvgVolume(ctx, "SBER")
	if err != nil {
		t.Fatalf("AvgVolume: %v", err)
	}
	if provider.Calls != callsAfterFirst {
		t.Error("second lookup should be served from cache")
	}
	if first != second {
		t.Errorf("cached value changed: %f vs %f", first, second)
	}
}

func TestCandleWindowUsesCache(t *testing.T) {
	provider := moex.NewMockProvider()
	provider.CandleSets["SBER"] = panicCandles("SBER", 60)

	s := testScanner(provider, &fakeStore{}, &recordingNotifier{})
	ctx := context.Background()

	if _, err := s.candleWindow(ctx, "SBER", false); err != nil {
		t.Fatalf("candleWindow: %v", err)
	}
	calls := provider.Calls
	if _, err := s.candleWindow(ctx, "SBER", false); err != nil {
		t.Fatalf("candleWindow: %v", err)
	}
	if provider.Calls != calls {
		t.Error("second window should come from the in-process cache")
	}

	if _, err := s.candleWindow(ctx, "SBER", true); err != nil {
		t.Fatalf("candleWindow realTime: %v", err)
	}
	if provider.Calls == calls {
		t.Error("realTime=true must bypass the cache")
	}
}

package scanner

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"moex-panic-scanner/internal/cache"
	"moex-panic-scanner/internal/calendar"
	"moex-panic-scanner/internal/datacache"
	"moex-panic-scanner/internal/detector"
	"moex-panic-scanner/internal/events"
	"moex-panic-scanner/internal/moex"
)

// SignalNotifier delivers red signals to the chat channels. Satisfied by
// *notification.Manager.
type SignalNotifier interface {
	NotifySignal(ctx context.Context, s *detector.PanicSignal)
}

// Scanner drives the periodic market scan: gate on the calendar, fan out
// across instruments with a bounded worker pool, persist and publish every
// emitted signal, notify on red.
type Scanner struct {
	cfg      Config
	provider moex.MarketDataProvider
	cache    *datacache.Cache
	redis    *cache.CacheService // optional second level
	detector *detector.Detector
	store    SignalStore
	bus      *events.EventBus
	notifier SignalNotifier
	cal      *calendar.Calendar

	ignoreMu sync.RWMutex
	ignored  map[string]time.Time // instrument -> ignoredUntil

	running  sync.Mutex // serializes ticks; TryLock skips overlapping ones
	stopChan chan struct{}
	stopOnce sync.Once
	wg       sync.WaitGroup

	log zerolog.Logger
}

// Deps collects the scanner's collaborators.
type Deps struct {
	Provider moex.MarketDataProvider
	Cache    *datacache.Cache
	Redis    *cache.CacheService
	Detector *detector.Detector
	Store    SignalStore
	Bus      *events.EventBus
	Notifier SignalNotifier
	Calendar *calendar.Calendar
}

func New(cfg Config, deps Deps) *Scanner {
	return &Scanner{
		cfg:      cfg.withDefaults(),
		provider: deps.Provider,
		cache:    deps.Cache,
		redis:    deps.Redis,
		detector: deps.Detector,
		store:    deps.Store,
		bus:      deps.Bus,
		notifier: deps.Notifier,
		cal:      deps.Calendar,
		ignored:  make(map[string]time.Time),
		stopChan: make(chan struct{}),
		log:      log.With().Str("component", "scanner").Logger(),
	}
}

// Start launches the scan loop. Returns immediately.
func (s *Scanner) Start() {
	s.wg.Add(1)
	go s.loop()
	s.log.Info().
		Int("instruments", len(s.cfg.Instruments)).
		Dur("interval", s.cfg.ScanInterval).
		Msg("scanner started")
}

// Stop halts new ticks and drains in-flight work, bounded by the configured
// drain deadline.
func (s *Scanner) Stop() {
	s.stopOnce.Do(func() { close(s.stopChan) })

	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		s.log.Info().Msg("scanner stopped")
	case <-time.After(s.cfg.ShutdownDrain):
		s.log.Warn().Dur("drain", s.cfg.ShutdownDrain).Msg("scanner drain deadline exceeded")
	}
}

func (s *Scanner) loop() {
	defer s.wg.Done()

	timer := time.NewTimer(0) // first tick immediately
	defer timer.Stop()

	for {
		select {
		case <-s.stopChan:
			return
		case <-timer.C:
		}

		next := s.cfg.ScanInterval
		if open, reason := s.cal.IsMarketOpenNow(); !open {
			s.log.Debug().Str("reason", reason).Msg("market closed, cooling down")
			s.bus.PublishMarketStatus(false, reason)
			next = s.cfg.CooldownClosed
		} else {
			s.tick()
		}
		timer.Reset(next)
	}
}

// tick runs one fan-out unless the previous one is still in flight.
func (s *Scanner) tick() {
	if !s.running.TryLock() {
		s.log.Warn().Msg("previous scan still in flight, skipping tick")
		return
	}
	defer s.running.Unlock()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() {
		select {
		case <-s.stopChan:
			cancel()
		case <-ctx.Done():
		}
	}()

	s.ScanAll(ctx, s.activeInstruments(), false)
}

// ScanAll fans detection across instruments with the bounded worker pool.
// Every emitted signal is persisted and published; red signals are also
// sent to the notification channels. Used by both the tick loop and the
// on-demand scan API.
func (s *Scanner) ScanAll(ctx context.Context, instruments []string, realTime bool) *ScanResult {
	started := time.Now()
	result := &ScanResult{
		ScanID:    uuid.NewString(),
		ScannedAt: started,
		Signals:   make([]*detector.PanicSignal, 0),
	}
	if len(instruments) == 0 {
		return result
	}

	s.bus.PublishScanStarted(result.ScanID, len(instruments))

	jobs := make(chan string)
	var mu sync.Mutex
	var wg sync.WaitGroup

	workers := s.cfg.MaxWorkers
	if workers > len(instruments) {
		workers = len(instruments)
	}
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for instrument := range jobs {
				sig := s.scanOne(ctx, instrument, realTime)
				mu.Lock()
				result.TotalScanned++
				if sig != nil {
					result.SignalsFound++
					result.Signals = append(result.Signals, sig)
				}
				mu.Unlock()
			}
		}()
	}

	for _, instrument := range instruments {
		select {
		case <-ctx.Done():
			close(jobs)
			wg.Wait()
			return result
		case jobs <- instrument:
		}
	}
	close(jobs)
	wg.Wait()

	s.bus.PublishScanCompleted(result.ScanID, result.TotalScanned, result.SignalsFound, time.Since(started))
	s.log.Info().
		Str("scan_id", result.ScanID).
		Int("scanned", result.TotalScanned).
		Int("signals", result.SignalsFound).
		Dur("took", time.Since(started)).
		Msg("scan completed")
	return result
}

// scanOne prepares, detects, persists and publishes for one instrument.
// Any failure degrades to a per-instrument skip.
func (s *Scanner) scanOne(ctx context.Context, instrument string, realTime bool) *detector.PanicSignal {
	ctx, cancel := context.WithTimeout(ctx, s.cfg.AdapterTimeout)
	defer cancel()

	w, err := s.PrepareWindow(ctx, instrument, realTime)
	if err != nil {
		s.log.Warn().Err(err).Str("instrument", instrument).Msg("window preparation failed, skipping")
		return nil
	}

	sig, dropReason := s.detector.Detect(ctx, w)
	if sig == nil {
		s.log.Debug().Str("instrument", instrument).Str("reason", dropReason).Msg("no signal")
		return nil
	}

	s.persist(ctx, sig)
	s.bus.PublishSignal(sig)
	if sig.FinalLevel == detector.LevelRed && s.notifier != nil {
		s.notifier.NotifySignal(ctx, sig)
	}
	return sig
}

// persist writes the signal, retrying once. A write that still fails is
// logged; the signal stays in the tick result and on the event bus so it
// remains visible.
func (s *Scanner) persist(ctx context.Context, sig *detector.PanicSignal) {
	id, err := s.store.SaveSignal(ctx, sig)
	if err != nil {
		s.log.Warn().Err(err).Str("instrument", sig.Instrument).Msg("signal save failed, retrying")
		id, err = s.store.SaveSignal(ctx, sig)
	}
	if err != nil {
		s.log.Error().Err(err).Str("instrument", sig.Instrument).Msg("signal save failed twice, continuing unpersisted")
		return
	}
	sig.ID = id
}

// activeInstruments snapshots the configured set minus the ignore map.
func (s *Scanner) activeInstruments() []string {
	now := time.Now()
	s.ignoreMu.RLock()
	defer s.ignoreMu.RUnlock()

	out := make([]string, 0, len(s.cfg.Instruments))
	for _, instrument := range s.cfg.Instruments {
		if until, ok := s.ignored[instrument]; ok && until.After(now) {
			continue
		}
		out = append(out, instrument)
	}
	return out
}

// IgnoreInstrument excludes an instrument from scans for the duration.
// The exclusion lives in process memory only.
func (s *Scanner) IgnoreInstrument(instrument string, d time.Duration) time.Time {
	until := time.Now().Add(d)
	s.ignoreMu.Lock()
	s.ignored[instrument] = until
	s.ignoreMu.Unlock()
	s.log.Info().Str("instrument", instrument).Time("until", until).Msg("instrument ignored")
	return until
}

// IgnoredUntil reports the active exclusion for an instrument, if any.
func (s *Scanner) IgnoredUntil(instrument string) (time.Time, bool) {
	s.ignoreMu.RLock()
	defer s.ignoreMu.RUnlock()
	until, ok := s.ignored[instrument]
	if !ok || !until.After(time.Now()) {
		return time.Time{}, false
	}
	return until, true
}

// AvgVolume serves the volume filter: average daily volume with a one-hour
// cache.
func (s *Scanner) AvgVolume(ctx context.Context, instrument string) (float64, error) {
	if avg, ok := s.cache.GetAvgVolume(instrument); ok {
		return avg, nil
	}
	candles, err := s.provider.Candles(ctx, instrument, s.cfg.CandleInterval, s.cfg.CandleCount)
	if err != nil {
		return 0, err
	}
	if len(candles) == 0 {
		return 0, nil
	}
	sum := 0.0
	for _, c := range candles {
		sum += c.Volume
	}
	avg := sum / float64(len(candles))
	s.cache.SetAvgVolume(instrument, avg, time.Hour)
	return avg, nil
}

// Config returns the effective configuration.
func (s *Scanner) Config() Config {
	return s.cfg
}

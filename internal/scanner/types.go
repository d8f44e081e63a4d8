package scanner

import (
	"context"
	"time"

	"moex-panic-scanner/internal/detector"
)

// Config drives the periodic scan loop.
type Config struct {
	Instruments []string `json:"instruments"`

	ScanInterval   time.Duration `json:"scan_interval"`
	CooldownClosed time.Duration `json:"cooldown_closed"`
	MaxWorkers     int           `json:"max_workers"`
	AdapterTimeout time.Duration `json:"adapter_timeout"`
	ShutdownDrain  time.Duration `json:"shutdown_drain"`

	CandleInterval string `json:"candle_interval"`
	CandleCount    int    `json:"candle_count"`
}

// DefaultConfig returns the documented defaults.
func DefaultConfig() Config {
	return Config{
		ScanInterval:   60 * time.Second,
		CooldownClosed: 300 * time.Second,
		MaxWorkers:     8,
		AdapterTimeout: 10 * time.Second,
		ShutdownDrain:  10 * time.Second,
		CandleInterval: "day",
		CandleCount:    60,
	}
}

func (c Config) withDefaults() Config {
	d := DefaultConfig()
	if c.ScanInterval <= 0 {
		c.ScanInterval = d.ScanInterval
	}
	if c.CooldownClosed <= 0 {
		c.CooldownClosed = d.CooldownClosed
	}
	if c.MaxWorkers <= 0 {
		c.MaxWorkers = d.MaxWorkers
	}
	if c.AdapterTimeout <= 0 {
		c.AdapterTimeout = d.AdapterTimeout
	}
	if c.ShutdownDrain <= 0 {
		c.ShutdownDrain = d.ShutdownDrain
	}
	if c.CandleInterval == "" {
		c.CandleInterval = d.CandleInterval
	}
	if c.CandleCount <= 0 {
		c.CandleCount = d.CandleCount
	}
	return c
}

// ScanResult summarizes one fan-out over a set of instruments.
type ScanResult struct {
	ScanID       string                  `json:"scan_id"`
	ScannedAt    time.Time               `json:"scanned_at"`
	TotalScanned int                     `json:"total_scanned"`
	SignalsFound int                     `json:"signals_found"`
	Signals      []*detector.PanicSignal `json:"signals"`
}

// SignalStore is the persistence surface the scanner needs.
type SignalStore interface {
	SaveSignal(ctx context.Context, s *detector.PanicSignal) (int64, error)
}

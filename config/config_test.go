package config

import (
	"os"
	"path/filepath"
	"testing"
)

func TestLoadDefaultsWithoutFile(t *testing.T) {
	cfg, err := LoadFrom(filepath.Join(t.TempDir(), "missing.json"))
	if err != nil {
		t.Fatalf("LoadFrom: %v", err)
	}

	if cfg.ScannerConfig.ScanIntervalSec != 60 {
		t.Errorf("scan interval = %d, want 60", cfg.ScannerConfig.ScanIntervalSec)
	}
	if cfg.ScannerConfig.CooldownClosedSec != 300 {
		t.Errorf("cooldown = %d, want 300", cfg.ScannerConfig.CooldownClosedSec)
	}
	if cfg.ThresholdsConfig.Red.RSIBuy != 25 || cfg.ThresholdsConfig.Red.VolumeMin != 2.0 {
		t.Errorf("red thresholds = %+v", cfg.ThresholdsConfig.Red)
	}
	if cfg.ThresholdsConfig.White.RSISell != 65 {
		t.Errorf("white rsi_sell = %f, want 65", cfg.ThresholdsConfig.White.RSISell)
	}
	if cfg.MoexConfig.RequestDelayMS != 200 {
		t.Errorf("request delay = %d, want 200", cfg.MoexConfig.RequestDelayMS)
	}
	if len(cfg.ScannerConfig.Instruments) == 0 {
		t.Error("default watchlist should not be empty")
	}
	if cfg.ServerConfig.Port != 8080 {
		t.Errorf("port = %d, want 8080", cfg.ServerConfig.Port)
	}
}

func TestLoadFromFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.json")
	body := `{
		"scanner": {"instruments": ["SBER"], "scan_interval_sec": 30},
		"thresholds": {"red": {"rsi_buy": 20, "rsi_sell": 80, "volume_min": 2.5}},
		"server": {"port": 9000}
	}`
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatal(err)
	}

	cfg, err := LoadFrom(path)
	if err != nil {
		t.Fatalf("LoadFrom: %v", err)
	}

	if len(cfg.ScannerConfig.Instruments) != 1 || cfg.ScannerConfig.Instruments[0] != "SBER" {
		t.Errorf("instruments = %v", cfg.ScannerConfig.Instruments)
	}
	if cfg.ScannerConfig.ScanIntervalSec != 30 {
		t.Errorf("scan interval = %d, want 30", cfg.ScannerConfig.ScanIntervalSec)
	}
	if cfg.ThresholdsConfig.Red.RSIBuy != 20 {
		t.Errorf("red rsi_buy = %f, want 20 from file", cfg.ThresholdsConfig.Red.RSIBuy)
	}
	// Unset sections still get defaults.
	if cfg.ThresholdsConfig.Yellow.VolumeMin != 1.5 {
		t.Errorf("yellow volume_min = %f, want default 1.5", cfg.ThresholdsConfig.Yellow.VolumeMin)
	}
	if cfg.ServerConfig.Port != 9000 {
		t.Errorf("port = %d, want 9000", cfg.ServerConfig.Port)
	}
}

func TestLoadRejectsMalformedFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.json")
	if err := os.WriteFile(path, []byte("{not json"), 0o644); err != nil {
		t.Fatal(err)
	}
	if _, err := LoadFrom(path); err == nil {
		t.Error("malformed config should fail loudly")
	}
}

func TestEnvOverrides(t *testing.T) {
	t.Setenv("SCANNER_INSTRUMENTS", "sber, gazp")
	t.Setenv("SCANNER_INTERVAL_SEC", "15")
	t.Setenv("DATABASE_URL", "postgres://scanner:pw@localhost:5432/signals")
	t.Setenv("REDIS_ADDRESS", "redis:6379")
	t.Setenv("LOG_LEVEL", "debug")

	cfg, err := LoadFrom(filepath.Join(t.TempDir(), "missing.json"))
	if err != nil {
		t.Fatalf("LoadFrom: %v", err)
	}

	want := []string{"SBER", "GAZP"}
	if len(cfg.ScannerConfig.Instruments) != 2 ||
		cfg.ScannerConfig.Instruments[0] != want[0] ||
		cfg.ScannerConfig.Instruments[1] != want[1] {
		t.Errorf("instruments = %v, want %v", cfg.ScannerConfig.Instruments, want)
	}
	if cfg.ScannerConfig.ScanIntervalSec != 15 {
		t.Errorf("scan interval = %d, want 15", cfg.ScannerConfig.ScanIntervalSec)
	}
	if cfg.DatabaseConfig.URL == "" {
		t.Error("database url should come from the environment")
	}
	if !cfg.RedisConfig.Enabled {
		t.Error("setting REDIS_ADDRESS should enable redis")
	}
	if cfg.LoggingConfig.Level != "debug" {
		t.Errorf("log level = %s, want debug", cfg.LoggingConfig.Level)
	}
}

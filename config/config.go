// Package config loads the scanner configuration from config.json with
// environment variable overrides on top.
package config

import (
	"encoding/json"
	"fmt"
	"os"
	"strconv"
	"strings"
)

type Config struct {
	MoexConfig         MoexConfig         `json:"moex"`
	ScannerConfig      ScannerConfig      `json:"scanner"`
	ThresholdsConfig   ThresholdsConfig   `json:"thresholds"`
	FiltersConfig      FiltersConfig      `json:"filters"`
	ClustersConfig     ClustersConfig     `json:"clusters"`
	RiskConfig         RiskConfig         `json:"risk"`
	CalendarConfig     CalendarConfig     `json:"calendar"`
	DatabaseConfig     DatabaseConfig     `json:"database"`
	RedisConfig        RedisConfig        `json:"redis"`
	NotificationConfig NotificationConfig `json:"notification"`
	ServerConfig       ServerConfig       `json:"server"`
	LoggingConfig      LoggingConfig      `json:"logging"`
}

// MoexConfig holds the market data adapter settings.
type MoexConfig struct {
	Token          string `json:"token"`
	BaseURL        string `json:"base_url"`
	RequestDelayMS int    `json:"request_delay_ms"` // spacing between upstream requests
}

type ScannerConfig struct {
	Instruments       []string `json:"instruments"`
	ScanIntervalSec   int      `json:"scan_interval_sec"`
	CooldownClosedSec int      `json:"cooldown_closed_sec"`
	MaxWorkers        int      `json:"max_workers"`
	AdapterTimeoutSec int      `json:"adapter_timeout_sec"`
	CandleInterval    string   `json:"candle_interval"`
	CandleCount       int      `json:"candle_count"`
}

// LevelThresholds mirrors one detection rung.
type LevelThresholds struct {
	RSIBuy    float64 `json:"rsi_buy"`
	RSISell   float64 `json:"rsi_sell"`
	VolumeMin float64 `json:"volume_min"`
}

type ThresholdsConfig struct {
	Red    LevelThresholds `json:"red"`
	Yellow LevelThresholds `json:"yellow"`
	White  LevelThresholds `json:"white"`
}

type FiltersConfig struct {
	MinVolatilityRatio    float64 `json:"min_volatility_ratio"`
	MinAbsoluteATRPct     float64 `json:"min_absolute_atr_pct"`
	RequireTrendAlignment bool    `json:"require_trend_alignment"`
	MinVolumeRatio        float64 `json:"min_volume_ratio"`
}

type ClustersConfig struct {
	NumClusters    int     `json:"num_clusters"`
	MinVolumeShare float64 `json:"min_volume_share"`
}

type RiskConfig struct {
	ATRNormal float64 `json:"atr_normal"`
}

type CalendarConfig struct {
	CachePath string `json:"cache_path"`
}

type DatabaseConfig struct {
	URL string `json:"url"` // postgres connection string
}

type RedisConfig struct {
	Enabled  bool   `json:"enabled"`
	Address  string `json:"address"`
	Password string `json:"password"`
	DB       int    `json:"db"`
	PoolSize int    `json:"pool_size"`
}

type NotificationConfig struct {
	Enabled  bool           `json:"enabled"`
	Telegram TelegramConfig `json:"telegram"`
	Discord  DiscordConfig  `json:"discord"`
}

type TelegramConfig struct {
	Enabled  bool   `json:"enabled"`
	BotToken string `json:"bot_token"`
	ChatID   string `json:"chat_id"`
}

type DiscordConfig struct {
	Enabled    bool   `json:"enabled"`
	WebhookURL string `json:"webhook_url"`
}

type ServerConfig struct {
	Host           string   `json:"host"`
	Port           int      `json:"port"`
	ProductionMode bool     `json:"production_mode"`
	RateLimit      int      `json:"rate_limit"`
	AllowedOrigins []string `json:"allowed_origins"`
}

type LoggingConfig struct {
	Level  string `json:"level"`
	Pretty bool   `json:"pretty"`
	Output string `json:"output"`
}

// Load reads config.json if present and applies environment overrides.
func Load() (*Config, error) {
	return LoadFrom("config.json")
}

// LoadFrom reads the named file if present and applies environment overrides.
func LoadFrom(path string) (*Config, error) {
	cfg, err := loadFromFile(path)
	if err != nil {
		if !os.IsNotExist(err) {
			return nil, err
		}
		cfg = &Config{}
	}

	applyEnvOverrides(cfg)
	applyDefaults(cfg)
	return cfg, nil
}

func loadFromFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var cfg Config
	if err := json.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}
	return &cfg, nil
}

func applyEnvOverrides(cfg *Config) {
	cfg.MoexConfig.Token = getEnvOrDefault("MOEX_API_TOKEN", cfg.MoexConfig.Token)
	cfg.MoexConfig.BaseURL = getEnvOrDefault("MOEX_BASE_URL", cfg.MoexConfig.BaseURL)
	cfg.MoexConfig.RequestDelayMS = getEnvIntOrDefault("MOEX_REQUEST_DELAY_MS", cfg.MoexConfig.RequestDelayMS)

	if raw := os.Getenv("SCANNER_INSTRUMENTS"); raw != "" {
		cfg.ScannerConfig.Instruments = splitList(raw)
	}
	cfg.ScannerConfig.ScanIntervalSec = getEnvIntOrDefault("SCANNER_INTERVAL_SEC", cfg.ScannerConfig.ScanIntervalSec)
	cfg.ScannerConfig.MaxWorkers = getEnvIntOrDefault("SCANNER_MAX_WORKERS", cfg.ScannerConfig.MaxWorkers)

	cfg.DatabaseConfig.URL = getEnvOrDefault("DATABASE_URL", cfg.DatabaseConfig.URL)

	cfg.RedisConfig.Address = getEnvOrDefault("REDIS_ADDRESS", cfg.RedisConfig.Address)
	cfg.RedisConfig.Password = getEnvOrDefault("REDIS_PASSWORD", cfg.RedisConfig.Password)
	if os.Getenv("REDIS_ADDRESS") != "" {
		cfg.RedisConfig.Enabled = true
	}

	cfg.NotificationConfig.Telegram.BotToken = getEnvOrDefault("TELEGRAM_BOT_TOKEN", cfg.NotificationConfig.Telegram.BotToken)
	cfg.NotificationConfig.Telegram.ChatID = getEnvOrDefault("TELEGRAM_CHAT_ID", cfg.NotificationConfig.Telegram.ChatID)
	cfg.NotificationConfig.Discord.WebhookURL = getEnvOrDefault("DISCORD_WEBHOOK_URL", cfg.NotificationConfig.Discord.WebhookURL)

	cfg.ServerConfig.Host = getEnvOrDefault("SERVER_HOST", cfg.ServerConfig.Host)
	cfg.ServerConfig.Port = getEnvIntOrDefault("SERVER_PORT", cfg.ServerConfig.Port)
	if os.Getenv("PRODUCTION_MODE") == "true" {
		cfg.ServerConfig.ProductionMode = true
	}

	cfg.LoggingConfig.Level = getEnvOrDefault("LOG_LEVEL", cfg.LoggingConfig.Level)
	if os.Getenv("LOG_PRETTY") == "true" {
		cfg.LoggingConfig.Pretty = true
	}
}

func applyDefaults(cfg *Config) {
	if cfg.MoexConfig.RequestDelayMS <= 0 {
		cfg.MoexConfig.RequestDelayMS = 200
	}

	if len(cfg.ScannerConfig.Instruments) == 0 {
		cfg.ScannerConfig.Instruments = []string{"SBER", "GAZP", "LKOH", "YNDX", "VTBR", "ROSN", "GMKN", "NVTK"}
	}
	if cfg.ScannerConfig.ScanIntervalSec <= 0 {
		cfg.ScannerConfig.ScanIntervalSec = 60
	}
	if cfg.ScannerConfig.CooldownClosedSec <= 0 {
		cfg.ScannerConfig.CooldownClosedSec = 300
	}
	if cfg.ScannerConfig.MaxWorkers <= 0 {
		cfg.ScannerConfig.MaxWorkers = 8
	}
	if cfg.ScannerConfig.AdapterTimeoutSec <= 0 {
		cfg.ScannerConfig.AdapterTimeoutSec = 10
	}
	if cfg.ScannerConfig.CandleInterval == "" {
		cfg.ScannerConfig.CandleInterval = "day"
	}
	if cfg.ScannerConfig.CandleCount <= 0 {
		cfg.ScannerConfig.CandleCount = 60
	}

	if cfg.ThresholdsConfig.Red.VolumeMin == 0 {
		cfg.ThresholdsConfig.Red = LevelThresholds{RSIBuy: 25, RSISell: 75, VolumeMin: 2.0}
	}
	if cfg.ThresholdsConfig.Yellow.VolumeMin == 0 {
		cfg.ThresholdsConfig.Yellow = LevelThresholds{RSIBuy: 30, RSISell: 70, VolumeMin: 1.5}
	}
	if cfg.ThresholdsConfig.White.VolumeMin == 0 {
		cfg.ThresholdsConfig.White = LevelThresholds{RSIBuy: 35, RSISell: 65, VolumeMin: 1.2}
	}

	if cfg.FiltersConfig.MinVolatilityRatio <= 0 {
		cfg.FiltersConfig.MinVolatilityRatio = 0.8
	}
	if cfg.FiltersConfig.MinAbsoluteATRPct <= 0 {
		cfg.FiltersConfig.MinAbsoluteATRPct = 0.5
	}
	if cfg.FiltersConfig.MinVolumeRatio <= 0 {
		cfg.FiltersConfig.MinVolumeRatio = 1.5
	}

	if cfg.ClustersConfig.NumClusters <= 0 {
		cfg.ClustersConfig.NumClusters = 3
	}
	if cfg.ClustersConfig.MinVolumeShare <= 0 {
		cfg.ClustersConfig.MinVolumeShare = 0.1
	}

	if cfg.RiskConfig.ATRNormal <= 0 {
		cfg.RiskConfig.ATRNormal = 2.0
	}

	if cfg.CalendarConfig.CachePath == "" {
		cfg.CalendarConfig.CachePath = "data/holidays.json"
	}

	if cfg.RedisConfig.Address == "" {
		cfg.RedisConfig.Address = "localhost:6379"
	}

	if cfg.ServerConfig.Host == "" {
		cfg.ServerConfig.Host = "0.0.0.0"
	}
	if cfg.ServerConfig.Port <= 0 {
		cfg.ServerConfig.Port = 8080
	}
	if cfg.ServerConfig.RateLimit <= 0 {
		cfg.ServerConfig.RateLimit = 120
	}

	if cfg.LoggingConfig.Level == "" {
		cfg.LoggingConfig.Level = "info"
	}
}

func splitList(raw string) []string {
	parts := strings.Split(raw, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.ToUpper(strings.TrimSpace(p))
		if p != "" {
			out = append(out, p)
		}
	}
	return out
}

func getEnvOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvIntOrDefault(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if parsed, err := strconv.Atoi(value); err == nil {
			return parsed
		}
	}
	return defaultValue
}

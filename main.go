package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog/log"

	"moex-panic-scanner/config"
	"moex-panic-scanner/internal/api"
	"moex-panic-scanner/internal/cache"
	"moex-panic-scanner/internal/calendar"
	"moex-panic-scanner/internal/clusters"
	"moex-panic-scanner/internal/database"
	"moex-panic-scanner/internal/datacache"
	"moex-panic-scanner/internal/detector"
	"moex-panic-scanner/internal/events"
	"moex-panic-scanner/internal/filters"
	"moex-panic-scanner/internal/logging"
	"moex-panic-scanner/internal/moex"
	"moex-panic-scanner/internal/notification"
	"moex-panic-scanner/internal/scanner"
)

func main() {
	godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		log.Fatal().Err(err).Msg("failed to load configuration")
	}

	logging.Setup(logging.Config{
		Level:  cfg.LoggingConfig.Level,
		Pretty: cfg.LoggingConfig.Pretty,
		Output: cfg.LoggingConfig.Output,
	})
	logger := logging.Component("main")

	eventBus := events.NewEventBus()

	cal, err := calendar.New(cfg.CalendarConfig.CachePath)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to initialize trading calendar")
	}
	logger.Info().Str("cache", cfg.CalendarConfig.CachePath).Msg("trading calendar ready")

	memCache := datacache.New(1000)

	var redisCache *cache.CacheService
	if cfg.RedisConfig.Enabled {
		redisCache, err = cache.New(cache.Config{
			Enabled:  true,
			Address:  cfg.RedisConfig.Address,
			Password: cfg.RedisConfig.Password,
			DB:       cfg.RedisConfig.DB,
			PoolSize: cfg.RedisConfig.PoolSize,
		})
		if err != nil {
			logger.Warn().Err(err).Msg("redis unavailable, continuing without it")
			redisCache = nil
		} else {
			defer redisCache.Close()
		}
	}

	ctx := context.Background()
	db, err := database.New(ctx, cfg.DatabaseConfig.URL)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to connect to database")
	}
	defer db.Close()
	repo := database.NewRepository(db, cal.Location())

	provider := moex.NewClient(moex.ClientConfig{
		BaseURL:      cfg.MoexConfig.BaseURL,
		Token:        cfg.MoexConfig.Token,
		RequestDelay: time.Duration(cfg.MoexConfig.RequestDelayMS) * time.Millisecond,
	})

	notifyCfg := notification.Config{Enabled: cfg.NotificationConfig.Enabled}
	if cfg.NotificationConfig.Telegram.Enabled {
		notifyCfg.TelegramBotToken = cfg.NotificationConfig.Telegram.BotToken
		notifyCfg.TelegramChatID = cfg.NotificationConfig.Telegram.ChatID
	}
	if cfg.NotificationConfig.Discord.Enabled {
		notifyCfg.DiscordWebhookURL = cfg.NotificationConfig.Discord.WebhookURL
	}
	notifyManager := notification.NewManager(notifyCfg)
	if notifyManager.Enabled() {
		logger.Info().Msg("notifications enabled")
	}

	// The volume filter needs the scanner's cached average volume, and the
	// scanner needs the detector; the closure breaks the cycle.
	var sc *scanner.Scanner
	avgVolume := func(ctx context.Context, instrument string) (float64, error) {
		return sc.AvgVolume(ctx, instrument)
	}

	chain := filters.Chain(
		filters.NewVolatilityFilter(filters.VolatilityConfig{
			MinRatio:          cfg.FiltersConfig.MinVolatilityRatio,
			MinAbsoluteATRPct: cfg.FiltersConfig.MinAbsoluteATRPct,
		}),
		filters.NewTrendFilter(filters.TrendConfig{
			MAPeriod:              20,
			RequireTrendAlignment: cfg.FiltersConfig.RequireTrendAlignment,
		}),
		filters.NewVolumeFilter(filters.VolumeConfig{
			MinVolumeRatio: cfg.FiltersConfig.MinVolumeRatio,
		}, avgVolume),
	)

	det := detector.New(detector.Config{
		Thresholds: detector.Thresholds{
			Red:    detector.LevelThresholds(cfg.ThresholdsConfig.Red),
			Yellow: detector.LevelThresholds(cfg.ThresholdsConfig.Yellow),
			White:  detector.LevelThresholds(cfg.ThresholdsConfig.White),
		},
		Filters: chain,
		Analyzer: clusters.NewAnalyzer(clusters.Config{
			NumClusters:    cfg.ClustersConfig.NumClusters,
			MinVolumeShare: cfg.ClustersConfig.MinVolumeShare,
		}),
		ATRNormal: cfg.RiskConfig.ATRNormal,
		Clock:     cal,
	})

	sc = scanner.New(scanner.Config{
		Instruments:    cfg.ScannerConfig.Instruments,
		ScanInterval:   time.Duration(cfg.ScannerConfig.ScanIntervalSec) * time.Second,
		CooldownClosed: time.Duration(cfg.ScannerConfig.CooldownClosedSec) * time.Second,
		MaxWorkers:     cfg.ScannerConfig.MaxWorkers,
		AdapterTimeout: time.Duration(cfg.ScannerConfig.AdapterTimeoutSec) * time.Second,
		CandleInterval: cfg.ScannerConfig.CandleInterval,
		CandleCount:    cfg.ScannerConfig.CandleCount,
	}, scanner.Deps{
		Provider: provider,
		Cache:    memCache,
		Redis:    redisCache,
		Detector: det,
		Store:    repo,
		Bus:      eventBus,
		Notifier: notifyManager,
		Calendar: cal,
	})
	sc.Start()

	server := api.NewServer(api.ServerConfig{
		Host:           cfg.ServerConfig.Host,
		Port:           cfg.ServerConfig.Port,
		ProductionMode: cfg.ServerConfig.ProductionMode,
		RateLimit:      cfg.ServerConfig.RateLimit,
		AllowedOrigins: cfg.ServerConfig.AllowedOrigins,
	}, sc, repo, provider, cal, eventBus)
	if err := server.Start(); err != nil {
		logger.Fatal().Err(err).Msg("failed to start api server")
	}

	logger.Info().
		Int("instruments", len(cfg.ScannerConfig.Instruments)).
		Int("port", cfg.ServerConfig.Port).
		Msg("panic scanner running")

	reload := make(chan os.Signal, 1)
	signal.Notify(reload, syscall.SIGHUP)
	go func() {
		for range reload {
			if err := cal.Reload(); err != nil {
				logger.Error().Err(err).Msg("calendar reload failed")
			} else {
				logger.Info().Msg("calendar reloaded")
			}
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info().Msg("shutting down")
	sc.Stop()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Stop(shutdownCtx); err != nil {
		logger.Error().Err(err).Msg("api server shutdown failed")
	}
	logger.Info().Msg("goodbye")
}

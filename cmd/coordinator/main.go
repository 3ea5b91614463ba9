package main

import (
	"context"
	"flag"
	"log"
	"os"
	"os/signal"
	"syscall"

	"go.uber.org/zap"

	"github.com/marketpulse/marketpulse-x/internal/config"
	"github.com/marketpulse/marketpulse-x/internal/coordinator"
	"github.com/marketpulse/marketpulse-x/internal/ingest"
	"github.com/marketpulse/marketpulse-x/internal/ruleengine"
)

func main() {
	cfgPath := flag.String("config", "config.yaml", "path to config file")
	flag.Parse()

	cfg, err := config.LoadFile(*cfgPath)
	if err != nil {
		log.Printf("warning: config file: %v, using defaults", err)
		cfg = config.Default()
	}
	cfg.ApplyEnv()

	logger, err := buildLogger(cfg.LogLevel)
	if err != nil {
		log.Fatalf("logger: %v", err)
	}
	defer logger.Sync()

	if err := cfg.Validate(); err != nil {
		logger.Fatal("invalid configuration", zap.Error(err))
	}

	logger.Info("marketpulse-x starting",
		zap.String("data_source_mode", cfg.DataSourceMode),
		zap.Bool("telegram_enabled", cfg.Telegram.Enabled),
	)

	appCfg := coordinator.DefaultConfig()
	appCfg.DBPath = cfg.DBPath
	appCfg.DataSourceMode = cfg.DataSourceMode
	appCfg.VenueBaseURL = cfg.VenueBaseURL
	appCfg.RulesDir = cfg.RulesDir
	appCfg.SynonymsDir = cfg.SynonymsDir
	appCfg.PolicyID = cfg.PolicyID
	appCfg.TelegramEnabled = cfg.Telegram.Enabled
	appCfg.TelegramToken = cfg.Telegram.BotToken
	appCfg.TelegramChatID = cfg.Telegram.ChatID
	appCfg.MetricsAddr = cfg.MetricsAddr
	appCfg.ExpireInterval = cfg.Intent.ExpireInterval
	appCfg.IngestConfig = ingest.Config{
		PollInterval:     cfg.Ingest.PollInterval,
		ChunkSize:        cfg.Ingest.ChunkSize,
		MaxConcurrency:   cfg.Ingest.MaxConcurrency,
		MinFlushInterval: cfg.Ingest.MinFlushInterval,
		MaxRetries:       appCfg.IngestConfig.MaxRetries,
		Source:           appCfg.IngestConfig.Source,
	}
	appCfg.RuleConfig = ruleengine.Config{
		EvalInterval: cfg.Rules.EvalInterval,
		Lookback:     cfg.Rules.Lookback,
	}

	app, err := coordinator.New(appCfg, logger)
	if err != nil {
		logger.Fatal("construct app", zap.Error(err))
	}
	defer app.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigCh
		logger.Info("shutdown signal received")
		cancel()
	}()

	if err := app.Run(ctx); err != nil {
		logger.Fatal("run", zap.Error(err))
	}
	logger.Info("marketpulse-x stopped")
}

func buildLogger(level string) (*zap.Logger, error) {
	cfg := zap.NewProductionConfig()
	if l, err := zap.ParseAtomicLevel(level); err == nil {
		cfg.Level = l
	}
	return cfg.Build()
}

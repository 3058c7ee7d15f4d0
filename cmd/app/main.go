package main

import (
	"flag"
	"os"

	"VolGuard/internal/di"
	"VolGuard/pkg/config"
	applogger "VolGuard/pkg/logger"
)

func main() {
	configPath := flag.String("config", "config/config.yaml", "config file path")
	flag.Parse()

	boot, err := applogger.New(&applogger.Config{Level: "info", Format: "json"})
	if err != nil {
		os.Exit(1)
	}

	cfg, err := config.LoadWithEnv(*configPath)
	if err != nil {
		boot.Fatal("config load failed", applogger.Error(err))
	}

	boot.Info("starting volguard",
		applogger.String("env", cfg.Environment),
		applogger.String("estimator", cfg.Estimator.Method),
		applogger.String("dedup_backend", cfg.Risk.DedupBackend),
		applogger.String("notify_backend", cfg.Notify.Backend),
	)

	app, err := di.InitializeApp(cfg)
	if err != nil {
		boot.Fatal("app initialization failed", applogger.Error(err))
	}

	boot.Info("infrastructure ready",
		applogger.String("clickhouse_db", cfg.ClickHouse.Database),
		applogger.Strings("kafka_brokers", cfg.Kafka.Brokers),
		applogger.String("bars_topic", cfg.Kafka.Topics.Bars),
		applogger.String("updates_topic", cfg.Kafka.Topics.Updates),
	)

	// blocks until signal
	if err := app.Run(); err != nil {
		boot.Error("app error", applogger.Error(err))
		os.Exit(1)
	}
}

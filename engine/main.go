package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"syscall"

	"github.com/sirupsen/logrus"

	"github.com/evaldash/engine/analysis"
	"github.com/evaldash/engine/api"
	"github.com/evaldash/engine/comparator"
	"github.com/evaldash/engine/config"
	"github.com/evaldash/engine/schema"
	"github.com/evaldash/engine/storage"
)

func main() {
	configPath := flag.String("config", "", "Path to YAML configuration file")
	listenAddr := flag.String("addr", "", "Listen address, overrides the config file")
	flag.Parse()

	log := logrus.New()
	log.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})

	cfg, err := config.LoadFromFile(*configPath, log)
	if err != nil {
		log.WithError(err).Fatal("Failed to load configuration")
	}
	if *listenAddr != "" {
		cfg.ListenAddr = *listenAddr
	}
	if level, err := logrus.ParseLevel(cfg.LogLevel); err == nil {
		log.SetLevel(level)
	} else {
		log.WithField("log_level", cfg.LogLevel).Warn("Unknown log level, keeping info")
	}

	store, err := openStore(cfg, log)
	if err != nil {
		log.WithError(err).Fatal("Failed to initialize storage")
	}
	defer store.Close()

	validator, err := schema.NewValidator()
	if err != nil {
		log.WithError(err).Fatal("Failed to compile run schema")
	}

	comp := comparator.NewWith(log, cfg.Analysis.Comparator)
	aggregator := analysis.NewAggregatorWith(log, cfg.Analysis.Trend, cfg.Analysis.Regression)

	server := api.NewServer(cfg.ListenAddr, store, comp, aggregator, validator, log)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if err := server.Start(ctx); err != nil {
		log.WithError(err).Fatal("Failed to start API server")
	}
	log.WithField("addr", cfg.ListenAddr).Info("API server started")

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	<-sigChan

	log.Info("Received shutdown signal, shutting down API server...")
	if err := server.Stop(); err != nil {
		log.WithError(err).Error("Shutdown failed")
	}
}

func openStore(cfg *config.Config, log logrus.FieldLogger) (storage.HistoryStore, error) {
	switch cfg.Storage.Backend {
	case "postgres":
		return storage.NewPostgresStore(&cfg.Storage.PostgreSQL, log)
	default:
		log.WithField("backend", cfg.Storage.Backend).Info("Using in-memory run store")
		return storage.NewMemoryStore(), nil
	}
}

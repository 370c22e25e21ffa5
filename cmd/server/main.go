/*
main.go - Application entry point

PURPOSE:
  Initializes and starts the festival engine server. Handles configuration,
  dependency injection, and graceful shutdown.

STARTUP SEQUENCE:
  1. Parse command-line flags, load config file + env overrides
  2. Initialize the configured store backend
  3. Wire the engine components and API handler
  4. Start the HTTP server with graceful shutdown

COMMAND-LINE FLAGS:
  -config  Path to a YAML config file (optional; FESTIVAL_* env vars and
           defaults apply without it)

GRACEFUL SHUTDOWN:
  On SIGINT/SIGTERM:
  1. Stop accepting new connections
  2. Wait for active requests to complete (config shutdown_timeout)
  3. Close the store and the notifier
  4. Exit

EXAMPLES:
  # Defaults: sqlite at ./data/festival.db, port 8080, log notifier
  ./server

  # Postgres backend with Kafka events
  FESTIVAL_STORE_BACKEND=postgres ./server -config=./festival.yaml

SEE ALSO:
  - config/config.go: Configuration structure
  - api/server.go: Router configuration
*/
package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/fieldpass/festival-engine/api"
	"github.com/fieldpass/festival-engine/config"
	"github.com/fieldpass/festival-engine/core"
	memstore "github.com/fieldpass/festival-engine/core/store"
	"github.com/fieldpass/festival-engine/notify"
	"github.com/fieldpass/festival-engine/store/postgres"
	"github.com/fieldpass/festival-engine/store/sqlite"
)

func main() {
	configPath := flag.String("config", "", "path to YAML config file")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}

	log := newLogger(cfg.Log)

	store, closeStore, err := openStore(cfg.Store)
	if err != nil {
		log.WithError(err).Fatal("failed to initialize store")
	}
	defer closeStore()

	var notifier core.Notifier
	if len(cfg.Kafka.Brokers) > 0 {
		kn := notify.NewKafkaNotifier(cfg.Kafka.Brokers, cfg.Kafka.Topic, log)
		defer kn.Close()
		notifier = kn
		log.WithField("topic", cfg.Kafka.Topic).Info("kafka notifier enabled")
	} else {
		notifier = notify.NewLogNotifier(log)
	}

	guard := core.NewOwnershipGuard()
	tokens := core.NewUUIDTokens()
	handler := api.NewHandler(
		core.NewTicketInventory(store, tokens, guard, notifier, log),
		core.NewCashlessLedger(store, guard, log),
		core.NewWristbandBinder(store, guard, log),
		core.NewFestivalLifecycle(store, guard, log),
		store,
		log,
	)

	server := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:      api.NewRouter(handler),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		log.WithFields(logrus.Fields{
			"port":    cfg.Server.Port,
			"backend": cfg.Store.Backend,
		}).Info("server starting")
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.WithError(err).Fatal("server failed")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info("shutting down server")

	ctx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()
	if err := server.Shutdown(ctx); err != nil {
		log.WithError(err).Fatal("server forced to shutdown")
	}

	log.Info("server stopped")
}

func newLogger(cfg config.Log) *logrus.Logger {
	log := logrus.New()
	level, err := logrus.ParseLevel(cfg.Level)
	if err != nil {
		level = logrus.InfoLevel
	}
	log.SetLevel(level)
	if cfg.Format == "json" {
		log.SetFormatter(&logrus.JSONFormatter{})
	}
	return log
}

func openStore(cfg config.Store) (core.LedgerStore, func(), error) {
	switch cfg.Backend {
	case "memory":
		return memstore.NewMemoryWithLockWait(cfg.LockWait), func() {}, nil
	case "sqlite":
		s, err := sqlite.New(cfg.SQLitePath)
		if err != nil {
			return nil, nil, err
		}
		return s, closer(s), nil
	case "postgres":
		s, err := postgres.New(cfg.PostgresDSN)
		if err != nil {
			return nil, nil, err
		}
		return s, closer(s), nil
	default:
		return nil, nil, fmt.Errorf("unknown store backend %q", cfg.Backend)
	}
}

func closer(c io.Closer) func() {
	return func() { c.Close() }
}
